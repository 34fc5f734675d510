package updatestore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/latticesearch/latticed/pkg/filestore"
	"github.com/latticesearch/latticed/pkg/resolver"
	"github.com/latticesearch/latticed/pkg/types"
)

var (
	bucketMeta    = []byte("meta")
	bucketPending = []byte("pending")
)

// ErrUnexistingUpdate is returned by Meta when no record exists for the
// requested (index, update id) pair.
var ErrUnexistingUpdate = errors.New("updatestore: update id not found")

// Config configures Open.
type Config struct {
	// Path is the bbolt file path, conventionally <dbRoot>/updates/data.mdb.
	Path string

	// MapSizeBytes seeds bbolt's initial mmap size. Zero uses bbolt's
	// default growth behavior.
	MapSizeBytes int

	// Resolver resolves an index uid to a live handle for applying updates
	// and producing snapshots/dumps.
	Resolver resolver.Resolver

	// FileStore backs DocumentAddition payload storage.
	FileStore *filestore.Store

	// RetentionGrace, when non-zero, defers deletion of a terminal update's
	// payload to pkg/retention's sweeper instead of deleting it inline as
	// soon as the update reaches Processed or Failed.
	RetentionGrace time.Duration
}

// Store is the Update Store described by the design: a bbolt environment
// plus the single writer goroutine that applies pending updates.
type Store struct {
	db       *bolt.DB
	resolver resolver.Resolver
	files    *filestore.Store
	grace    time.Duration

	signal chan struct{}
	doneCh chan struct{}
	wg     sync.WaitGroup

	mustExit atomic.Bool

	// cancelled maps an indexUID to the single update id that was Processing
	// for it at the moment DeleteAll observed it in flight. It is scoped to
	// that one record, not to the uid in general, so a later, unrelated
	// update on the same uid is never mistaken for the cancelled one.
	cancelMu  sync.Mutex
	cancelled map[types.IndexUID]uint64

	procMu     sync.RWMutex
	processing *types.UpdateRecord
}

// Open opens (creating if absent) the bbolt environment at cfg.Path and
// starts the writer goroutine.
func Open(cfg Config) (*Store, error) {
	opts := &bolt.Options{Timeout: 5 * time.Second}
	if cfg.MapSizeBytes > 0 {
		opts.InitialMmapSize = cfg.MapSizeBytes
	}

	db, err := bolt.Open(cfg.Path, 0o600, opts)
	if err != nil {
		return nil, fmt.Errorf("updatestore: open %s: %w", cfg.Path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketPending)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("updatestore: init buckets: %w", err)
	}

	s := &Store{
		db:        db,
		resolver:  cfg.Resolver,
		files:     cfg.FileStore,
		grace:     cfg.RetentionGrace,
		signal:    make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
		cancelled: make(map[types.IndexUID]uint64),
	}

	s.wg.Add(1)
	go s.runWriter()

	return s, nil
}

// Close stops the writer goroutine and closes the underlying database.
func (s *Store) Close() error {
	s.mustExit.Store(true)
	close(s.doneCh)
	s.wg.Wait()
	return s.db.Close()
}

// GetInfo returns the store's on-disk size and the record currently being
// processed, if any.
func (s *Store) GetInfo() (*types.UpdateStoreInfo, error) {
	info, err := os.Stat(s.db.Path())
	if err != nil {
		return nil, err
	}

	s.procMu.RLock()
	processing := s.processing
	s.procMu.RUnlock()

	return &types.UpdateStoreInfo{Size: info.Size(), Processing: processing}, nil
}

func (s *Store) setProcessing(rec *types.UpdateRecord) {
	s.procMu.Lock()
	s.processing = rec
	s.procMu.Unlock()
}

func (s *Store) clearProcessing() {
	s.procMu.Lock()
	s.processing = nil
	s.procMu.Unlock()
}

// wake signals the writer goroutine without blocking. A buffered channel of
// depth 1 coalesces bursts of registrations into a single wakeup, mirroring
// a semaphore that saturates at one outstanding permit.
func (s *Store) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func idKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func seqKey(seq uint64) []byte {
	return idKey(seq)
}

type pendingEntry struct {
	IndexUID types.IndexUID `json:"indexUid"`
	UpdateID uint64         `json:"updateId"`
}

func marshalRecord(rec *types.UpdateRecord) ([]byte, error) {
	return json.Marshal(rec)
}

func unmarshalRecord(data []byte) (*types.UpdateRecord, error) {
	var rec types.UpdateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
