// Package progress records learning-track progress. Records are cached first;
// those the remote store has not acknowledged stay pending and are pushed when
// connectivity returns.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/lectio/internal/domain"
	"github.com/mmcdole/lectio/internal/events"
)

const eventDomain = "progress"

// Service owns user progress.
//
// A record lives under one cache id; its content type says whether the remote
// has it (progress) or not yet (progress_pending).
type Service struct {
	cache  domain.Cache
	remote domain.RemoteStore
	conn   domain.Connectivity
	bus    *events.Broadcaster[events.ContentChanged]
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex // serializes writes of one record against a flush
	unsubscribe func()

	lifeMu sync.Mutex // guards closed and wg.Add
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates the service and subscribes it to connectivity changes.
func NewService(cache domain.Cache, remote domain.RemoteStore, conn domain.Connectivity,
	bus *events.Broadcaster[events.ContentChanged], logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if bus == nil {
		bus = &events.Broadcaster[events.ContentChanged]{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cache:  cache,
		remote: remote,
		conn:   conn,
		bus:    bus,
		logger: logger.With("component", "progress"),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	s.unsubscribe = conn.Subscribe(s.onConnectivity)
	return s
}

// onConnectivity starts a flush when the monitor enters Syncing. It runs on
// the monitor's goroutine, so the flush itself is asynchronous.
func (s *Service) onConnectivity(state domain.ConnectivityState) {
	if !state.IsSyncing {
		return
	}
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if n := s.Flush(s.ctx); n > 0 {
			s.logger.Info("pushed pending progress", "count", n)
		}
	}()
}

// Close stops reacting to connectivity and waits for a running flush.
func (s *Service) Close() error {
	s.lifeMu.Lock()
	if s.closed {
		s.lifeMu.Unlock()
		return nil
	}
	s.closed = true
	s.lifeMu.Unlock()

	s.unsubscribe()
	s.cancel()
	s.wg.Wait()
	return nil
}

// Record stores p and pushes it to the remote when online. It reports whether
// the remote acknowledged the write; an unacknowledged record stays pending.
// A record older than the stored one is dropped and the stored one's sync
// state is reported.
func (s *Service) Record(ctx context.Context, p domain.Progress) bool {
	if p.UserID == "" || p.TrackID == "" || p.StepID == "" {
		s.logger.Warn("ignoring incomplete progress record", "track", p.TrackID, "step", p.StepID)
		return false
	}
	if p.UpdatedAt == 0 {
		p.UpdatedAt = s.now().UnixMilli()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.cache.Get(ctx, p.CacheID()); ok {
		var stored domain.Progress
		if entry.DecodePayload(&stored) == nil && stored.UpdatedAt > p.UpdatedAt {
			s.logger.Debug("ignoring stale progress record", "id", p.CacheID(), "stored", stored.UpdatedAt, "incoming", p.UpdatedAt)
			return entry.ContentType == domain.TypeProgress
		}
	}

	synced := s.conn.IsOnline() && s.remote.UpsertProgress(ctx, p)
	contentType := domain.TypeProgressPending
	if synced {
		contentType = domain.TypeProgress
	}
	s.put(ctx, p, contentType)
	return synced
}

func (s *Service) put(ctx context.Context, p domain.Progress, contentType string) {
	entry, err := domain.NewCacheEntry(p.CacheID(), contentType, p.StepID, p)
	if err != nil {
		s.logger.Warn("failed to encode progress", "id", p.CacheID(), "error", err)
		return
	}
	s.cache.Put(ctx, entry)
	s.bus.Publish(events.ContentChanged{Domain: eventDomain, Keys: []string{entry.ID}})
}

// Flush pushes every pending record and returns how many the remote accepted.
// It stops at the first refusal; the rest stay pending for the next attempt.
func (s *Service) Flush(ctx context.Context) int {
	pushed := 0
	for _, id := range s.cache.GetAllByType(ctx, domain.TypeProgressPending) {
		if ctx.Err() != nil || !s.conn.IsOnline() {
			break
		}
		ok, accepted := s.flushOne(ctx, id)
		if !ok {
			continue
		}
		if !accepted {
			break
		}
		pushed++
	}
	return pushed
}

// flushOne pushes one pending record. ok is false when the record is no
// longer pending.
func (s *Service) flushOne(ctx context.Context, id string) (ok, accepted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found := s.cache.Get(ctx, id)
	if !found || entry.ContentType != domain.TypeProgressPending {
		return false, false
	}
	var p domain.Progress
	if err := entry.DecodePayload(&p); err != nil {
		s.logger.Warn("dropping undecodable pending progress", "id", id, "error", err)
		return false, false
	}
	if !s.remote.UpsertProgress(ctx, p) {
		return true, false
	}
	s.put(ctx, p, domain.TypeProgress)
	return true, true
}

// Get returns the recorded steps of a track for user, pending ones included,
// ordered by step id.
func (s *Service) Get(ctx context.Context, userID, trackID string) []domain.Progress {
	prefix := fmt.Sprintf("progress:%s:%s:", userID, trackID)
	var out []domain.Progress
	for _, contentType := range []string{domain.TypeProgress, domain.TypeProgressPending} {
		for _, id := range s.cache.GetAllByType(ctx, contentType) {
			if !strings.HasPrefix(id, prefix) {
				continue
			}
			if p, ok := s.load(ctx, id); ok {
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepID < out[j].StepID })
	return out
}

// Pending returns the records the remote has not acknowledged yet.
func (s *Service) Pending(ctx context.Context) []domain.Progress {
	var out []domain.Progress
	for _, id := range s.cache.GetAllByType(ctx, domain.TypeProgressPending) {
		if p, ok := s.load(ctx, id); ok {
			out = append(out, p)
		}
	}
	return out
}

func (s *Service) load(ctx context.Context, id string) (domain.Progress, bool) {
	entry, ok := s.cache.Get(ctx, id)
	if !ok {
		return domain.Progress{}, false
	}
	var p domain.Progress
	if err := entry.DecodePayload(&p); err != nil {
		return domain.Progress{}, false
	}
	return p, true
}

// Completion returns the done and total step counts of track for user.
func (s *Service) Completion(ctx context.Context, userID string, track domain.Track) (done, total int) {
	total = track.StepCount()
	for _, p := range s.Get(ctx, userID, track.ID) {
		if _, ok := track.Step(p.StepID); ok && p.Completed {
			done++
		}
	}
	return done, total
}
