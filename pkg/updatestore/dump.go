package updatestore

import (
	"encoding/json"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/latticesearch/latticed/pkg/types"
)

// Snapshot writes a restorable copy of the named indexes plus this store's
// own bbolt environment into dstDir. It does not block the writer goroutine
// indefinitely: the environment copy runs inside a single read transaction,
// which bbolt serves from an MVCC snapshot rather than locking out writers.
func (s *Store) Snapshot(indexes []types.IndexUID, dstDir string) error {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}

	for _, uid := range indexes {
		idxDir := filepath.Join(dstDir, "indexes", string(uid))
		if err := os.MkdirAll(idxDir, 0o755); err != nil {
			return err
		}
		if err := s.resolver.Snapshot(uid, idxDir); err != nil {
			return err
		}
	}

	return s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(filepath.Join(dstDir, "updates.db"), 0o600)
	})
}

// Dump asks the resolver to dump each named index first, then writes the
// update queues that accompany them as newline-delimited JSON and copies
// their referenced payloads. Dumping the indexes before the queue matters:
// a Dump Loader replaying the queue must never see a record the index
// itself doesn't yet reflect, and the resolver is given the chance to run
// first while the queue is still exactly what it was at the start of this
// call. Unlike Snapshot, the output is meant to be replayed by the Dump
// Loader rather than opened directly as a bbolt environment.
func (s *Store) Dump(indexes []types.IndexUID, dstDir string) error {
	for _, uid := range indexes {
		idxDir := filepath.Join(dstDir, "indexes", string(uid))
		if err := os.MkdirAll(idxDir, 0o755); err != nil {
			return err
		}
		if err := s.resolver.Dump(uid, idxDir); err != nil {
			return err
		}
	}

	updatesDir := filepath.Join(dstDir, "updates")
	filesDir := filepath.Join(updatesDir, "updates_files")
	if err := os.MkdirAll(filesDir, 0o755); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(updatesDir, "data.jsonl"))
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)

	var contentIDs []string

	err = s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		for _, uid := range indexes {
			idxBucket := meta.Bucket([]byte(uid))
			if idxBucket == nil {
				continue
			}
			err := idxBucket.ForEach(func(_, v []byte) error {
				rec, err := unmarshalRecord(v)
				if err != nil {
					return err
				}
				if err := enc.Encode(rec); err != nil {
					return err
				}
				if rec.Kind.Tag == types.KindDocumentAddition && rec.Kind.ContentID != "" {
					contentIDs = append(contentIDs, string(rec.Kind.ContentID))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.files != nil {
		if err := s.files.DumpTo(filesDir, contentIDs); err != nil {
			return err
		}
	}

	return nil
}
