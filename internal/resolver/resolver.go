// Package resolver answers content requests through the tier chain: local
// cache, then the remote store, then generative fallback. Upstream hits are
// written back before returning and network tiers are skipped while offline.
package resolver

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/mmcdole/lectio/internal/domain"
	"github.com/mmcdole/lectio/internal/events"
)

const tracerName = "github.com/mmcdole/lectio/internal/resolver"

// Event domains.
const (
	DomainScripture  = "scripture"
	DomainParagraphs = "paragraphs"
	DomainDocuments  = "documents"
	DomainTracks     = "tracks"
)

// Deps are the collaborators shared by every resolver.
type Deps struct {
	Cache        domain.Cache
	Remote       domain.RemoteStore
	Generator    domain.Generator
	Connectivity domain.Connectivity
	Events       *events.Broadcaster[events.ContentChanged]
	Locale       string
	Logger       *slog.Logger
	Tracer       trace.Tracer // defaults to the global provider
}

// Result is a resolved value and the tier(s) it came from.
type Result[T any] struct {
	Value  T
	Source domain.Source
}

// Found reports whether any tier produced the value.
func (r Result[T]) Found() bool { return r.Source != "" && r.Source != domain.SourceNone }

type base struct {
	deps   Deps
	logger *slog.Logger
	tracer trace.Tracer
	group  singleflight.Group
}

func newBase(deps Deps, component string) *base {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if deps.Locale == "" {
		deps.Locale = "en"
	}
	if deps.Events == nil {
		deps.Events = &events.Broadcaster[events.ContentChanged]{}
	}
	return &base{
		deps:   deps,
		logger: deps.Logger.With("component", component),
		tracer: deps.Tracer,
	}
}

// online is consulted before every network tier, so a drop between tiers
// stops the chain.
func (b *base) online() bool {
	return b.deps.Connectivity != nil && b.deps.Connectivity.IsOnline()
}

func (b *base) publish(domainName string, keys ...string) {
	if len(keys) == 0 {
		return
	}
	b.deps.Events.Publish(events.ContentChanged{Domain: domainName, Keys: keys})
}

func attr(k, v string) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String(k, v))
}

// startTier opens a span for one tier of a resolution.
func (b *base) startTier(ctx context.Context, tier string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, "tier."+tier, trace.WithAttributes(attrs...))
}

// coalesce runs fn once per key across concurrent callers. The shared work is
// detached from any single caller's cancellation; a caller that gives up early
// gets the zero Result.
func coalesce[T any](ctx context.Context, b *base, key string, fn func(ctx context.Context) Result[T]) Result[T] {
	ch := b.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx)), nil
	})
	select {
	case res := <-ch:
		if res.Shared {
			b.logger.Debug("coalesced resolution", "key", key)
		}
		return res.Val.(Result[T])
	case <-ctx.Done():
		return Result[T]{Source: domain.SourceNone}
	}
}

// putEntry encodes v and writes it to the cache, returning the id on success.
func (b *base) putEntry(ctx context.Context, id, contentType, title string, v any) bool {
	entry, err := domain.NewCacheEntry(id, contentType, title, v)
	if err != nil {
		b.logger.Warn("failed to encode cache entry", "id", id, "error", err)
		return false
	}
	b.deps.Cache.Put(ctx, entry)
	return true
}

// getEntry decodes the cached entry id into v.
func (b *base) getEntry(ctx context.Context, id string, v any) bool {
	entry, ok := b.deps.Cache.Get(ctx, id)
	if !ok {
		return false
	}
	if err := entry.DecodePayload(v); err != nil {
		b.logger.Warn("ignoring undecodable cache entry", "id", id, "error", err)
		return false
	}
	return true
}
