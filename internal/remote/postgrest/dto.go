package postgrest

// Row shapes as the REST endpoint returns them. Column names follow the
// dataset tables, not the domain types.

type bookRow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Testament string `json:"testament"`
	Position  int    `json:"position"`
	Chapters  int    `json:"chapter_count"`
}

type chapterRow struct {
	BookID string `json:"book_id"`
	Number int    `json:"number"`
	Verses int    `json:"verse_count"`
}

type verseRow struct {
	BookID  string `json:"book_id"`
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
	Text    string `json:"text"`
}

type paragraphRow struct {
	Number  int    `json:"number"`
	Text    string `json:"text"`
	Section string `json:"section"`
}

type documentRow struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Author   string `json:"author"`
	Year     int    `json:"year"`
	Summary  string `json:"summary"`
	Body     string `json:"body"`
}

// trackRow is a track with its modules and steps embedded by the select clause.
type trackRow struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Modules     []moduleRow `json:"modules"`
}

type moduleRow struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Position int       `json:"position"`
	Steps    []stepRow `json:"steps"`
}

type stepRow struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Position  int    `json:"position"`
	Kind      string `json:"kind"`
	Reference string `json:"reference"`
	Body      string `json:"body"`
}

type progressRow struct {
	UserID    string `json:"user_id"`
	TrackID   string `json:"track_id"`
	StepID    string `json:"step_id"`
	Completed bool   `json:"completed"`
	UpdatedAt string `json:"updated_at"` // RFC 3339
}
