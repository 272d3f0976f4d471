package store

import (
	"bytes"
	"context"

	bolt "go.etcd.io/bbolt"

	"github.com/mmcdole/lectio/internal/domain"
)

// === Bulk purge ===

// Purge removes every record matched by filter and returns how many were
// removed. It deletes data only; buckets and the schema version stay in place.
func (s *Store) Purge(ctx context.Context, filter domain.PurgeFilter) int {
	if filter.Empty() {
		return 0
	}
	db := s.handle(ctx)
	if db == nil {
		return 0
	}

	removed := 0
	err := db.Update(func(tx *bolt.Tx) error {
		var err error
		switch {
		case filter.All:
			removed, err = purgeAll(tx)
		default:
			if filter.ContentType != "" {
				n, err := purgeType(tx, filter.ContentType)
				if err != nil {
					return err
				}
				removed += n
			}
			if filter.CollectionPrefix != "" {
				n, err := purgeCollections(tx, []byte(filter.CollectionPrefix))
				if err != nil {
					return err
				}
				removed += n
			}
		}
		return err
	})
	if err != nil {
		s.logger.Warn("purge failed", "error", err, "filter", filter)
		return 0
	}

	// Knowledge ids are not tracked per filter in memory; drop the hot cache.
	s.hotReset()
	s.logger.Info("purged local store", "removed", removed, "filter", filter)
	return removed
}

func purgeAll(tx *bolt.Tx) (int, error) {
	removed, err := deleteKeys(tx.Bucket(bucketKnowledge))
	if err != nil {
		return 0, err
	}
	index := tx.Bucket(bucketKnowledgeByType)
	if err := deleteNested(index, nil); err != nil {
		return 0, err
	}
	n, err := purgeCollections(tx, nil)
	return removed + n, err
}

func purgeType(tx *bolt.Tx, contentType string) (int, error) {
	index := tx.Bucket(bucketKnowledgeByType)
	typed := index.Bucket([]byte(contentType))
	if typed == nil {
		return 0, nil
	}

	var ids [][]byte
	typed.ForEach(func(k, _ []byte) error {
		ids = append(ids, append([]byte(nil), k...))
		return nil
	})

	knowledge := tx.Bucket(bucketKnowledge)
	for _, id := range ids {
		if err := knowledge.Delete(id); err != nil {
			return 0, err
		}
		if err := typed.Delete(id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// purgeCollections removes range units and catalog entries whose key starts
// with prefix; a nil prefix matches every key.
func purgeCollections(tx *bolt.Tx, prefix []byte) (int, error) {
	ranges := tx.Bucket(bucketRanges)
	catalog := tx.Bucket(bucketRangeCatalog)

	var names [][]byte
	ranges.ForEachBucket(func(k []byte) error {
		if bytes.HasPrefix(k, prefix) {
			names = append(names, append([]byte(nil), k...))
		}
		return nil
	})

	removed := 0
	for _, name := range names {
		n, err := deleteKeys(ranges.Bucket(name))
		if err != nil {
			return 0, err
		}
		removed += n
		if err := catalog.Delete(name); err != nil {
			return 0, err
		}
	}
	return removed, nil
}

// deleteKeys removes every plain key of b. Nested buckets are left alone.
func deleteKeys(b *bolt.Bucket) (int, error) {
	if b == nil {
		return 0, nil
	}
	var keys [][]byte
	b.ForEach(func(k, v []byte) error {
		if v != nil {
			keys = append(keys, append([]byte(nil), k...))
		}
		return nil
	})
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// deleteNested empties every nested bucket of b whose name starts with prefix.
func deleteNested(b *bolt.Bucket, prefix []byte) error {
	var names [][]byte
	b.ForEachBucket(func(k []byte) error {
		if bytes.HasPrefix(k, prefix) {
			names = append(names, append([]byte(nil), k...))
		}
		return nil
	})
	for _, name := range names {
		if _, err := deleteKeys(b.Bucket(name)); err != nil {
			return err
		}
	}
	return nil
}
