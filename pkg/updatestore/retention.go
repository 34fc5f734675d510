package updatestore

import (
	bolt "go.etcd.io/bbolt"

	"github.com/latticesearch/latticed/pkg/types"
)

// DocumentAdditionRecords returns every DocumentAddition record across every
// index that carries a non-empty ContentID, for pkg/retention's sweeper to
// cross-reference against the File Store's contents.
func (s *Store) DocumentAdditionRecords() ([]*types.UpdateRecord, error) {
	var records []*types.UpdateRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		return meta.ForEach(func(k, v []byte) error {
			if v != nil {
				// Not a nested index bucket.
				return nil
			}
			idxBucket := meta.Bucket(k)
			return idxBucket.ForEach(func(_, v []byte) error {
				rec, err := unmarshalRecord(v)
				if err != nil {
					return err
				}
				if rec.Kind.Tag == types.KindDocumentAddition && rec.Kind.ContentID != "" {
					records = append(records, rec)
				}
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
