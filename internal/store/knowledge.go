package store

import (
	"context"
	"encoding/json"

	bolt "go.etcd.io/bbolt"
	"go.trai.ch/zerr"

	"github.com/mmcdole/lectio/internal/domain"
)

// === Knowledge items ===

// Put upserts entry by id. The stored timestamp never moves backwards; the
// payload is last-write-wins. Failures are logged and the entry is not cached.
func (s *Store) Put(ctx context.Context, entry domain.CacheEntry) {
	if entry.ID == "" {
		s.logger.Warn("refusing to cache entry without id", "type", entry.ContentType)
		return
	}
	db := s.handle(ctx)
	if db == nil {
		return
	}

	var stored []byte
	err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKnowledge)
		if prev := b.Get([]byte(entry.ID)); prev != nil {
			var old domain.CacheEntry
			if json.Unmarshal(prev, &old) == nil {
				if old.Timestamp > entry.Timestamp {
					entry.Timestamp = old.Timestamp
				}
				if old.ContentType != "" && old.ContentType != entry.ContentType {
					if idx := tx.Bucket(bucketKnowledgeByType).Bucket([]byte(old.ContentType)); idx != nil {
						if err := idx.Delete([]byte(entry.ID)); err != nil {
							return err
						}
					}
				}
			}
		}

		data, err := encode(entry)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(entry.ID), data); err != nil {
			return err
		}
		if entry.ContentType != "" {
			idx, err := tx.Bucket(bucketKnowledgeByType).CreateBucketIfNotExists([]byte(entry.ContentType))
			if err != nil {
				return err
			}
			if err := idx.Put([]byte(entry.ID), indexMarker); err != nil {
				return err
			}
		}
		stored = data
		return nil
	})
	if err != nil {
		s.logger.Warn("failed to cache entry", "error", zerr.Wrap(err, domain.ErrStoreWrite.Error()), "id", entry.ID)
		s.hotDelete(entry.ID)
		return
	}
	s.hotSet(entry.ID, stored)
}

// Get returns the entry with id, promoting it to the memory cache.
func (s *Store) Get(ctx context.Context, id string) (domain.CacheEntry, bool) {
	if data, ok := s.hotGet(id); ok {
		return decodeEntry(data)
	}

	db := s.handle(ctx)
	if db == nil {
		return domain.CacheEntry{}, false
	}

	var data []byte
	db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketKnowledge).Get([]byte(id)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if data == nil {
		return domain.CacheEntry{}, false
	}

	entry, ok := decodeEntry(data)
	if !ok {
		s.logger.Warn("dropping unreadable cache entry from read path", "id", id)
		return domain.CacheEntry{}, false
	}
	s.hotSet(id, data)
	return entry, true
}

// GetAllByType returns the ids cached for a content type, in key order.
func (s *Store) GetAllByType(ctx context.Context, contentType string) []string {
	db := s.handle(ctx)
	if db == nil {
		return nil
	}

	var ids []string
	db.View(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketKnowledgeByType).Bucket([]byte(contentType))
		if idx == nil {
			return nil
		}
		return idx.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids
}

func decodeEntry(data []byte) (domain.CacheEntry, bool) {
	var entry domain.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return domain.CacheEntry{}, false
	}
	return entry, true
}
