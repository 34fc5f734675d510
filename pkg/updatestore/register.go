package updatestore

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/latticesearch/latticed/pkg/metrics"
	"github.com/latticesearch/latticed/pkg/types"
)

// RegisterUpdate allocates an update id for indexUID, persists an Enqueued
// record, appends it to the global pending queue and wakes the writer.
func (s *Store) RegisterUpdate(indexUID types.IndexUID, kind types.UpdateKind) (*types.UpdateRecord, error) {
	var rec *types.UpdateRecord

	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		idxBucket, err := meta.CreateBucketIfNotExists([]byte(indexUID))
		if err != nil {
			return err
		}

		// bbolt's own sequence starts at 1, but update ids for a fresh index
		// must start at 0 (spec §8 scenario 1: the first registration on an
		// index gets update_id 0), so the stored id is the sequence minus one.
		seq, err := idxBucket.NextSequence()
		if err != nil {
			return err
		}
		id := seq - 1

		rec = &types.UpdateRecord{
			UpdateID:   id,
			IndexUID:   indexUID,
			Kind:       kind,
			Status:     types.Enqueued(),
			EnqueuedAt: time.Now(),
		}

		data, err := marshalRecord(rec)
		if err != nil {
			return err
		}
		if err := idxBucket.Put(idKey(id), data); err != nil {
			return err
		}

		pending := tx.Bucket(bucketPending)
		seq, err = pending.NextSequence()
		if err != nil {
			return err
		}
		pe := pendingEntry{IndexUID: indexUID, UpdateID: id}
		peData, err := json.Marshal(pe)
		if err != nil {
			return err
		}
		return pending.Put(seqKey(seq), peData)
	})
	if err != nil {
		return nil, err
	}

	metrics.UpdatesEnqueued.WithLabelValues(string(indexUID)).Inc()
	metrics.UpdateStorePending.Inc()
	s.wake()

	return rec, nil
}

// List returns every record for indexUID, ordered by update id ascending.
// It uses a read transaction and so observes a consistent snapshot even if
// the writer mutates records concurrently.
func (s *Store) List(indexUID types.IndexUID) ([]*types.UpdateRecord, error) {
	var records []*types.UpdateRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		idxBucket := tx.Bucket(bucketMeta).Bucket([]byte(indexUID))
		if idxBucket == nil {
			return nil
		}
		return idxBucket.ForEach(func(_, v []byte) error {
			rec, err := unmarshalRecord(v)
			if err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Meta returns the record for (indexUID, updateID), or ErrUnexistingUpdate.
func (s *Store) Meta(indexUID types.IndexUID, updateID uint64) (*types.UpdateRecord, error) {
	var rec *types.UpdateRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		idxBucket := tx.Bucket(bucketMeta).Bucket([]byte(indexUID))
		if idxBucket == nil {
			return ErrUnexistingUpdate
		}
		data := idxBucket.Get(idKey(updateID))
		if data == nil {
			return ErrUnexistingUpdate
		}
		var err error
		rec, err = unmarshalRecord(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteAll removes every record and pending entry for indexUID. If the
// writer is currently Processing an update for that index, it also records
// that update's id so the writer discards its result instead of persisting
// it once DeleteAll has already torn down the index's meta bucket. It is
// idempotent: deleting an index with no records is a no-op.
func (s *Store) DeleteAll(indexUID types.IndexUID) error {
	s.procMu.RLock()
	processing := s.processing
	s.procMu.RUnlock()

	if processing != nil && processing.IndexUID == indexUID {
		s.cancelMu.Lock()
		s.cancelled[indexUID] = processing.UpdateID
		s.cancelMu.Unlock()
	}

	var contentIDs []string

	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if idxBucket := meta.Bucket([]byte(indexUID)); idxBucket != nil {
			err := idxBucket.ForEach(func(_, v []byte) error {
				rec, err := unmarshalRecord(v)
				if err != nil {
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
			if err := meta.DeleteBucket([]byte(indexUID)); err != nil {
				return err
			}
		}

		pending := tx.Bucket(bucketPending)
		var staleKeys [][]byte
		err := pending.ForEach(func(k, v []byte) error {
			var pe pendingEntry
			if err := json.Unmarshal(v, &pe); err != nil {
				return err
			}
			if pe.IndexUID == indexUID {
				staleKeys = append(staleKeys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range staleKeys {
			if err := pending.Delete(k); err != nil {
				return err
			}
		}
		if len(staleKeys) > 0 {
			metrics.UpdateStorePending.Sub(float64(len(staleKeys)))
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.files != nil {
		for _, id := range contentIDs {
			if err := s.files.Delete(id); err != nil {
				return err
			}
		}
	}

	return nil
}
