package store

import (
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.trai.ch/zerr"

	"github.com/mmcdole/lectio/internal/domain"
)

// Schema versions:
// v1: knowledge (id -> entry) and ranges (range key -> unit index -> record)
// v2: knowledge_by_type secondary index, backfilled from knowledge
// v3: range_catalog (range key -> total/present), backfilled from ranges
//
// Migrations are additive only: they may create buckets and keys, never delete or
// rename existing ones, so cached user data survives every upgrade.
const CurrentSchemaVersion = 3

// Bucket names
var (
	bucketMeta            = []byte("meta")
	bucketKnowledge       = []byte("knowledge")
	bucketKnowledgeByType = []byte("knowledge_by_type")
	bucketRanges          = []byte("ranges")
	bucketRangeCatalog    = []byte("range_catalog")

	keySchemaVersion = []byte("schema_version")

	// indexMarker is the value stored in secondary index buckets.
	indexMarker = []byte{1}
)

type migration struct {
	version int
	name    string
	apply   func(tx *bolt.Tx) error
}

var migrations = []migration{
	{1, "create knowledge and ranges", migrateV1},
	{2, "index knowledge by content type", migrateV2},
	{3, "catalog range keys", migrateV3},
}

// MigrationResult holds the result of a migration run.
type MigrationResult struct {
	From    int
	To      int
	Applied int
}

// migrate applies every migration newer than the stored version in one
// transaction. A database from a newer build is left untouched.
func migrate(db *bolt.DB) (MigrationResult, error) {
	var result MigrationResult
	err := db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		result.From = readVersion(tx)
		result.To = result.From
		if result.From >= CurrentSchemaVersion {
			return nil
		}

		for _, m := range migrations {
			if m.version <= result.From {
				continue
			}
			if err := m.apply(tx); err != nil {
				return zerr.With(zerr.With(err, "version", m.version), "migration", m.name)
			}
			result.To = m.version
			result.Applied++
		}
		return meta.Put(keySchemaVersion, encodeUint32(uint32(result.To)))
	})
	if err != nil {
		return result, zerr.Wrap(err, domain.ErrStoreMigrate.Error())
	}
	return result, nil
}

func readVersion(tx *bolt.Tx) int {
	meta := tx.Bucket(bucketMeta)
	if meta == nil {
		return 0
	}
	v := meta.Get(keySchemaVersion)
	if len(v) != 4 {
		return 0
	}
	return int(binary.BigEndian.Uint32(v))
}

func migrateV1(tx *bolt.Tx) error {
	for _, name := range [][]byte{bucketKnowledge, bucketRanges} {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return err
		}
	}
	return nil
}

func migrateV2(tx *bolt.Tx) error {
	index, err := tx.CreateBucketIfNotExists(bucketKnowledgeByType)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketKnowledge).ForEach(func(k, v []byte) error {
		var entry domain.CacheEntry
		if json.Unmarshal(v, &entry) != nil || entry.ContentType == "" {
			return nil // unreadable entries stay where they are
		}
		typed, err := index.CreateBucketIfNotExists([]byte(entry.ContentType))
		if err != nil {
			return err
		}
		return typed.Put(k, indexMarker)
	})
}

func migrateV3(tx *bolt.Tx) error {
	catalog, err := tx.CreateBucketIfNotExists(bucketRangeCatalog)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	ranges := tx.Bucket(bucketRanges)
	return ranges.ForEachBucket(func(name []byte) error {
		units := ranges.Bucket(name)
		entry := domain.RangeCatalogEntry{UpdatedAt: now}
		units.ForEach(func(_, v []byte) error {
			var rec domain.RangeRecord
			if json.Unmarshal(v, &rec) == nil {
				entry.Key = rec.Key
			}
			entry.Present++
			return nil
		})
		data, err := encode(entry)
		if err != nil {
			return err
		}
		return catalog.Put(name, data)
	})
}

func encodeUint32(n uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return b
}
