package resolver

import (
	"context"
	"strings"

	"github.com/mmcdole/lectio/internal/domain"
	"github.com/mmcdole/lectio/internal/generative"
)

// TrackRequest identifies a track by id, by topic, or both. Topic is only used
// to generate a track when no tier knows the id.
type TrackRequest struct {
	ID    string
	Topic string
}

// Tracks resolves learning tracks.
type Tracks struct {
	*base
}

func NewTracks(deps Deps) *Tracks {
	return &Tracks{base: newBase(deps, "tracks")}
}

func (t *Tracks) indexID() string { return "tracks:" + t.deps.Locale }

// TrackID is the cache id of a track.
func TrackID(id string) string { return "track:" + id }

// List returns the curated tracks. Offline without a cached index it falls
// back to every cached track, generated ones included.
func (t *Tracks) List(ctx context.Context) Result[[]domain.Track] {
	id := t.indexID()
	return coalesce(ctx, t.base, id, func(ctx context.Context) Result[[]domain.Track] {
		ctx, span := t.tracer.Start(ctx, "tracks.list")
		defer span.End()

		var ids []string
		if t.getEntry(ctx, id, &ids) && len(ids) > 0 {
			if tracks := t.load(ctx, ids); len(tracks) == len(ids) {
				return Result[[]domain.Track]{Value: tracks, Source: domain.SourceCache}
			}
		}

		if t.online() {
			rctx, rspan := t.startTier(ctx, "remote")
			tracks := t.deps.Remote.Tracks(rctx)
			rspan.End()
			if len(tracks) > 0 {
				t.writeBack(ctx, tracks)
				return Result[[]domain.Track]{Value: tracks, Source: domain.SourceRemote}
			}
		}

		var cached []string
		for _, cacheID := range t.deps.Cache.GetAllByType(ctx, domain.TypeTrack) {
			cached = append(cached, strings.TrimPrefix(cacheID, "track:"))
		}
		if tracks := t.load(ctx, cached); len(tracks) > 0 {
			return Result[[]domain.Track]{Value: tracks, Source: domain.SourceCache}
		}
		return Result[[]domain.Track]{Source: domain.SourceNone}
	})
}

func (t *Tracks) load(ctx context.Context, ids []string) []domain.Track {
	var tracks []domain.Track
	for _, trackID := range ids {
		var track domain.Track
		if t.getEntry(ctx, TrackID(trackID), &track) {
			tracks = append(tracks, track)
		}
	}
	return tracks
}

func (t *Tracks) writeBack(ctx context.Context, tracks []domain.Track) {
	keys := make([]string, 0, len(tracks)+1)
	ids := make([]string, 0, len(tracks))
	for _, track := range tracks {
		if track.ID == "" {
			continue
		}
		if t.putEntry(ctx, TrackID(track.ID), domain.TypeTrack, track.Title, track) {
			keys = append(keys, TrackID(track.ID))
			ids = append(ids, track.ID)
		}
	}
	if len(ids) > 0 && t.putEntry(ctx, t.indexID(), domain.TypeTrackIndex, "Tracks", ids) {
		keys = append(keys, t.indexID())
	}
	t.publish(DomainTracks, keys...)
}

// Track resolves one track: cache, then the remote track list, then a
// generated track about req.Topic.
func (t *Tracks) Track(ctx context.Context, req TrackRequest) Result[*domain.Track] {
	if req.ID == "" && req.Topic == "" {
		return Result[*domain.Track]{Source: domain.SourceNone}
	}
	genID := ""
	if req.Topic != "" {
		genID = generative.TrackID(req.Topic, t.deps.Locale)
	}

	key := TrackID(req.ID) + "|" + req.Topic
	return coalesce(ctx, t.base, key, func(ctx context.Context) Result[*domain.Track] {
		ctx, span := t.tracer.Start(ctx, "tracks.track", attr("id", req.ID), attr("topic", req.Topic))
		defer span.End()

		for _, id := range []string{req.ID, genID} {
			if id == "" {
				continue
			}
			var track domain.Track
			if t.getEntry(ctx, TrackID(id), &track) {
				return Result[*domain.Track]{Value: &track, Source: domain.SourceCache}
			}
		}
		if !t.online() {
			return Result[*domain.Track]{Source: domain.SourceNone}
		}

		if req.ID != "" {
			rctx, rspan := t.startTier(ctx, "remote")
			tracks := t.deps.Remote.Tracks(rctx)
			rspan.End()
			if len(tracks) > 0 {
				t.writeBack(ctx, tracks)
			}
			for i := range tracks {
				if tracks[i].ID == req.ID {
					return Result[*domain.Track]{Value: &tracks[i], Source: domain.SourceRemote}
				}
			}
		}

		if req.Topic == "" || !t.online() {
			return Result[*domain.Track]{Source: domain.SourceNone}
		}
		gctx, gspan := t.startTier(ctx, "generative")
		track := t.deps.Generator.GenerateTrack(gctx, req.Topic, t.deps.Locale)
		gspan.End()
		if track == nil || track.ID == "" {
			return Result[*domain.Track]{Source: domain.SourceNone}
		}
		if t.putEntry(ctx, TrackID(track.ID), domain.TypeTrack, track.Title, track) {
			t.publish(DomainTracks, TrackID(track.ID))
		}
		return Result[*domain.Track]{Value: track, Source: domain.SourceGenerative}
	})
}
