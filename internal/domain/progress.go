package domain

import "fmt"

// Progress is a user's completion state for one track step.
type Progress struct {
	UserID    string `json:"user_id"`
	TrackID   string `json:"track_id"`
	StepID    string `json:"step_id"`
	Completed bool   `json:"completed"`
	UpdatedAt int64  `json:"updated_at"` // Unix milliseconds
}

// CacheID is the knowledge id under which the progress record is cached.
func (p Progress) CacheID() string {
	return fmt.Sprintf("progress:%s:%s:%s", p.UserID, p.TrackID, p.StepID)
}

// ProgressFunc reports prefetch progress: (3, 50), (4, 50), ...
type ProgressFunc func(done, total int)
