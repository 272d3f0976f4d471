package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.trai.ch/zerr"

	"github.com/mmcdole/lectio/internal/domain"
)

// === Range records (hierarchical: ranges/{collection:unit}/{unit index}) ===

// PutRange writes records under key in a single transaction, so a batch is
// either fully cached or not at all. total raises the known unit length of key.
func (s *Store) PutRange(ctx context.Context, key domain.RangeKey, records []domain.RangeRecord, total int) {
	if len(records) == 0 && total <= 0 {
		return
	}
	db := s.handle(ctx)
	if db == nil {
		return
	}

	name := []byte(key.String())
	err := db.Update(func(tx *bolt.Tx) error {
		units, err := tx.Bucket(bucketRanges).CreateBucketIfNotExists(name)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if rec.UnitIndex <= 0 {
				continue
			}
			rec.Key = key
			data, err := encode(rec)
			if err != nil {
				return err
			}
			if err := units.Put(unitKey(rec.UnitIndex), data); err != nil {
				return err
			}
		}
		return s.updateCatalog(tx, key, units, total)
	})
	if err != nil {
		s.logger.Warn("failed to cache range", "error", zerr.Wrap(err, domain.ErrStoreWrite.Error()), "key", key.String())
	}
}

func (s *Store) updateCatalog(tx *bolt.Tx, key domain.RangeKey, units *bolt.Bucket, total int) error {
	catalog := tx.Bucket(bucketRangeCatalog)
	name := []byte(key.String())

	var entry domain.RangeCatalogEntry
	if v := catalog.Get(name); v != nil {
		json.Unmarshal(v, &entry)
	}
	entry.Key = key
	if total > entry.Total {
		entry.Total = total
	}
	entry.Present = 0
	units.ForEach(func(_, _ []byte) error {
		entry.Present++
		return nil
	})
	entry.UpdatedAt = time.Now().UnixMilli()

	data, err := encode(entry)
	if err != nil {
		return err
	}
	return catalog.Put(name, data)
}

// GetRange returns the cached records of key within span plus the missing
// sub-spans. An open span ends at the known total; if the total is unknown the
// trailing gap stays open.
func (s *Store) GetRange(ctx context.Context, key domain.RangeKey, span domain.Span) domain.RangeCoverage {
	if span.Start <= 0 {
		span.Start = 1
	}
	cov := domain.RangeCoverage{Key: key}

	db := s.handle(ctx)
	if db == nil {
		cov.Missing = []domain.Span{span}
		return cov
	}

	name := []byte(key.String())
	db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketRangeCatalog).Get(name); v != nil {
			var entry domain.RangeCatalogEntry
			if json.Unmarshal(v, &entry) == nil {
				cov.Total = entry.Total
			}
		}
		units := tx.Bucket(bucketRanges).Bucket(name)
		if units == nil {
			return nil
		}
		c := units.Cursor()
		for k, v := c.Seek(unitKey(span.Start)); k != nil; k, v = c.Next() {
			idx := int(binary.BigEndian.Uint32(k))
			if !span.Open() && idx > span.End {
				break
			}
			if cov.Total > 0 && span.Open() && idx > cov.Total {
				break
			}
			var rec domain.RangeRecord
			if json.Unmarshal(v, &rec) != nil {
				continue // treated as missing
			}
			cov.Records = append(cov.Records, rec)
		}
		return nil
	})

	end := span.End
	if span.Open() && cov.Total > 0 {
		end = cov.Total
	}
	cov.Missing = missingSpans(cov.Records, span.Start, end)
	return cov
}

// missingSpans returns the gaps of records within [start, end]. end == 0 means
// the range length is unknown and the trailing gap is open.
func missingSpans(records []domain.RangeRecord, start, end int) []domain.Span {
	var missing []domain.Span
	next := start
	for _, rec := range records {
		if rec.UnitIndex > next {
			missing = append(missing, domain.Span{Start: next, End: rec.UnitIndex - 1})
		}
		if rec.UnitIndex >= next {
			next = rec.UnitIndex + 1
		}
	}
	switch {
	case end == 0:
		missing = append(missing, domain.Span{Start: next})
	case next <= end:
		missing = append(missing, domain.Span{Start: next, End: end})
	}
	return missing
}

// Collections returns catalog entries whose range key starts with prefix.
func (s *Store) Collections(ctx context.Context, collectionPrefix string) []domain.RangeCatalogEntry {
	db := s.handle(ctx)
	if db == nil {
		return nil
	}

	var entries []domain.RangeCatalogEntry
	prefix := []byte(collectionPrefix)
	db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRangeCatalog).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var entry domain.RangeCatalogEntry
			if json.Unmarshal(v, &entry) == nil {
				entries = append(entries, entry)
			}
		}
		return nil
	})

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Key.Collection != entries[j].Key.Collection {
			return entries[i].Key.Collection < entries[j].Key.Collection
		}
		return entries[i].Key.Unit < entries[j].Key.Unit
	})
	return entries
}

func unitKey(index int) []byte {
	return encodeUint32(uint32(index))
}
