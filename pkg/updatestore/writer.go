package updatestore

import (
	"encoding/json"
	"io"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/latticesearch/latticed/pkg/log"
	"github.com/latticesearch/latticed/pkg/metrics"
	"github.com/latticesearch/latticed/pkg/types"
)

// runWriter is the single writer thread described by the design: it wakes on
// a signal or a periodic tick, drains the pending queue one record at a
// time, and checks must_exit between records.
func (s *Store) runWriter() {
	defer s.wg.Done()

	logger := log.WithComponent("updatestore-writer")
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.doneCh:
			return
		case <-s.signal:
		case <-ticker.C:
		}

		if s.mustExit.Load() {
			return
		}

		for s.processOne(&logger) {
			if s.mustExit.Load() {
				return
			}
		}
	}
}

// processOne pops the head of the pending queue, marks it Processing,
// applies it against the resolved index, then persists a terminal status.
// It returns false once the pending queue is empty.
func (s *Store) processOne(logger *zerolog.Logger) bool {
	pe, rec, ok := s.popPending(logger)
	if !ok {
		return false
	}

	s.setProcessing(rec)
	metrics.UpdateStorePending.Dec()

	var result string
	var applyErr error

	handle, herr := s.resolver.Resolve(rec.IndexUID)
	if herr != nil {
		applyErr = herr
	} else {
		var payload io.Reader
		if rec.Kind.Tag == types.KindDocumentAddition && rec.Kind.ContentID != "" && s.files != nil {
			rf, err := s.files.Get(string(rec.Kind.ContentID))
			if err != nil {
				applyErr = err
			} else {
				payload = rf
				defer rf.Close()
			}
		}
		if applyErr == nil {
			timer := metrics.NewTimer()
			result, applyErr = handle.ApplyUpdate(rec.Kind, payload)
			timer.ObserveDuration(metrics.UpdateProcessingDuration)
		}
	}

	s.finish(pe, rec, result, applyErr, logger)
	return true
}

// popPending dequeues the oldest pending entry and transitions its record to
// Processing, all within one write transaction. It returns ok=false when the
// pending queue is empty or the referenced record already vanished (deleted
// concurrently by DeleteAll).
func (s *Store) popPending(logger *zerolog.Logger) (pendingEntry, *types.UpdateRecord, bool) {
	var pe pendingEntry
	var rec *types.UpdateRecord
	var found bool

	err := s.db.Update(func(tx *bolt.Tx) error {
		pending := tx.Bucket(bucketPending)
		cur := pending.Cursor()
		k, v := cur.First()
		if k == nil {
			return nil
		}

		if err := json.Unmarshal(v, &pe); err != nil {
			return err
		}
		if err := pending.Delete(k); err != nil {
			return err
		}

		meta := tx.Bucket(bucketMeta)
		idxBucket := meta.Bucket([]byte(pe.IndexUID))
		if idxBucket == nil {
			return nil
		}
		data := idxBucket.Get(idKey(pe.UpdateID))
		if data == nil {
			return nil
		}

		r, err := unmarshalRecord(data)
		if err != nil {
			return err
		}
		now := time.Now()
		r.Status = types.Processing()
		r.StartedAt = &now

		newData, err := marshalRecord(r)
		if err != nil {
			return err
		}
		if err := idxBucket.Put(idKey(pe.UpdateID), newData); err != nil {
			return err
		}

		rec = r
		found = true
		return nil
	})
	if err != nil {
		errLogger := log.WithUpdate(*logger, pe.IndexUID, pe.UpdateID)
		errLogger.Error().Err(err).Msg("writer: failed to pop pending entry")
		return pendingEntry{}, nil, false
	}
	if !found {
		return pendingEntry{}, nil, false
	}
	return pe, rec, true
}

// finish persists the terminal status for an applied update, honoring
// cancellation of this specific (index, update id) set by DeleteAll while
// it was in flight: its result is discarded rather than resurrecting the
// index's meta bucket. The id check matters because cancelled is keyed by
// index, not by record — without it, an entry that outlived its own update
// would silently swallow the next update registered against that same index
// even though that update carries a different id.
func (s *Store) finish(pe pendingEntry, rec *types.UpdateRecord, result string, applyErr error, logger *zerolog.Logger) {
	s.clearProcessing()

	s.cancelMu.Lock()
	cancelledID, wasCancelled := s.cancelled[pe.IndexUID]
	cancelled := wasCancelled && cancelledID == rec.UpdateID
	if cancelled {
		delete(s.cancelled, pe.IndexUID)
	}
	s.cancelMu.Unlock()

	if cancelled {
		return
	}

	var status types.UpdateStatus
	if applyErr != nil {
		status = types.Failed(applyErr.Error())
	} else {
		status = types.Processed(result)
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		idxBucket, err := meta.CreateBucketIfNotExists([]byte(pe.IndexUID))
		if err != nil {
			return err
		}
		data := idxBucket.Get(idKey(pe.UpdateID))
		if data == nil {
			return nil
		}
		r, err := unmarshalRecord(data)
		if err != nil {
			return err
		}
		now := time.Now()
		r.Status = status
		r.FinishedAt = &now
		newData, err := marshalRecord(r)
		if err != nil {
			return err
		}
		return idxBucket.Put(idKey(pe.UpdateID), newData)
	})
	if err != nil {
		errLogger := log.WithUpdate(*logger, pe.IndexUID, pe.UpdateID)
		errLogger.Error().Err(err).Msg("writer: failed to persist terminal status")
		return
	}

	if applyErr != nil {
		metrics.UpdatesFailed.WithLabelValues(string(pe.IndexUID)).Inc()
	} else {
		metrics.UpdatesProcessed.WithLabelValues(string(pe.IndexUID)).Inc()
	}

	if s.grace == 0 && rec.Kind.Tag == types.KindDocumentAddition && rec.Kind.ContentID != "" && s.files != nil {
		if err := s.files.Delete(string(rec.Kind.ContentID)); err != nil {
			logger.Error().Err(err).Str("content_id", string(rec.Kind.ContentID)).Msg("writer: failed to reclaim payload")
		}
	}
}
