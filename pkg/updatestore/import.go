package updatestore

import (
	bolt "go.etcd.io/bbolt"

	"github.com/latticesearch/latticed/pkg/types"
)

// ImportRecords seeds a fresh bbolt environment at dbPath with records,
// forcing every non-terminal status to Processed. It is used by the Dump
// Loader's V3 path to restore the update log that accompanied a dump
// without re-running any of it through the pending queue: the loader has
// already re-ingested the documents those updates produced, so the only
// thing worth keeping is the historical record.
//
// It does not start a writer goroutine, and it closes the environment before
// returning; Open reopens it normally later.
//
// mmapSizeBytes, when positive, seeds bbolt's initial mmap size the same way
// Config.MapSizeBytes does for Open; a zero value lets bbolt pick its own
// default.
func ImportRecords(dbPath string, records []*types.UpdateRecord, mmapSizeBytes int) error {
	opts := &bolt.Options{}
	if mmapSizeBytes > 0 {
		opts.InitialMmapSize = mmapSizeBytes
	}
	db, err := bolt.Open(dbPath, 0o600, opts)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketPending); err != nil {
			return err
		}

		highest := make(map[types.IndexUID]uint64)

		for _, rec := range records {
			if !rec.Status.Terminal() {
				rec.Status = types.Processed("")
			}

			idxBucket, err := meta.CreateBucketIfNotExists([]byte(rec.IndexUID))
			if err != nil {
				return err
			}

			data, err := marshalRecord(rec)
			if err != nil {
				return err
			}
			if err := idxBucket.Put(idKey(rec.UpdateID), data); err != nil {
				return err
			}

			if rec.UpdateID > highest[rec.IndexUID] {
				highest[rec.IndexUID] = rec.UpdateID
			}
		}

		for uid, max := range highest {
			idxBucket := meta.Bucket([]byte(uid))
			// update ids are max's sequence minus one (see RegisterUpdate), so
			// the next NextSequence() call must return max+2 for the next
			// registration to land on max+1 rather than re-using max.
			want := max + 1
			if seq := idxBucket.Sequence(); seq < want {
				if err := idxBucket.SetSequence(want); err != nil {
					return err
				}
			}
		}

		return nil
	})
}
