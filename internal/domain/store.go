package domain

import "context"

// Cache is the durable local tier. Reads miss instead of failing and writes never
// return errors: a store that cannot open behaves as an empty cache.
type Cache interface {
	// Init opens the store once. Concurrent callers share the same open.
	Init(ctx context.Context) error

	// === Knowledge items (id-indexed, secondary index on content type) ===
	Put(ctx context.Context, entry CacheEntry)
	Get(ctx context.Context, id string) (CacheEntry, bool)
	GetAllByType(ctx context.Context, contentType string) []string

	// === Range records (unit-indexed under a composite key) ===
	// PutRange writes all records in one transaction. total is the known unit
	// length of key, 0 if unknown.
	PutRange(ctx context.Context, key RangeKey, records []RangeRecord, total int)
	GetRange(ctx context.Context, key RangeKey, span Span) RangeCoverage
	Collections(ctx context.Context, collectionPrefix string) []RangeCatalogEntry

	// Purge is the only deletion path. Returns the number of removed records.
	Purge(ctx context.Context, filter PurgeFilter) int

	Close() error
}

// RangeCatalogEntry summarizes what is cached for one range key.
type RangeCatalogEntry struct {
	Key       RangeKey `json:"key"`
	Total     int      `json:"total"`
	Present   int      `json:"present"`
	UpdatedAt int64    `json:"updated_at"`
}

// Complete reports whether every unit of a known-length key is cached.
func (e RangeCatalogEntry) Complete() bool {
	return e.Total > 0 && e.Present >= e.Total
}

// PurgeFilter selects records for bulk removal. The zero value matches nothing.
type PurgeFilter struct {
	All              bool
	ContentType      string // knowledge items of this type
	CollectionPrefix string // range keys whose collection starts with this prefix
}

// Empty reports whether the filter selects nothing.
func (f PurgeFilter) Empty() bool {
	return !f.All && f.ContentType == "" && f.CollectionPrefix == ""
}
