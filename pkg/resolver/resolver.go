package resolver

import (
	"errors"
	"io"

	"github.com/latticesearch/latticed/pkg/types"
)

// ErrIndexNotFound is returned by Resolve, Dump, Snapshot and Delete when no
// index exists under the requested uid.
var ErrIndexNotFound = errors.New("resolver: index not found")

// ErrInvalidIndexUID is returned when a uid fails the resolver's own
// syntactic validation, before any lookup is attempted.
var ErrInvalidIndexUID = errors.New("resolver: invalid index uid")

// IndexerOpts carries resource limits the resolver's own indexer should
// respect while rebuilding an index from a dump. latticed does not
// interpret these itself; it only forwards whatever the CLI or config layer
// was given to whichever call actually rebuilds the index.
type IndexerOpts struct {
	MaxMemoryBytes int64
	MaxThreads     int
}

// IndexHandle is a live handle to one index, good for the lifetime of a
// single Update Loop handler invocation.
type IndexHandle interface {
	// ApplyUpdate applies kind against the index's write transaction. payload
	// carries the document body for DocumentAddition kinds and is nil for
	// every other kind. The returned string is an opaque success detail
	// stored on the record's Processed status.
	ApplyUpdate(kind types.UpdateKind, payload io.Reader) (result string, err error)

	// WriteSnapshot produces a restorable snapshot of the index into dstDir.
	WriteSnapshot(dstDir string) error

	// WriteDump produces documents.jsonl and settings.json for the index
	// into dstDir.
	WriteDump(dstDir string) error
}

// Resolver is the index engine's boundary, consumed by the Update Store, the
// Dump Task and the Dump Loader. It is polymorphic over however the engine
// actually keeps track of indexes; latticed only ever calls these six
// methods.
type Resolver interface {
	// Resolve returns a live handle for uid, or ErrIndexNotFound.
	Resolve(uid types.IndexUID) (IndexHandle, error)

	// ListAllUIDs returns every index uid currently known to the engine.
	ListAllUIDs() ([]types.IndexUID, error)

	// Dump writes the index identified by uid into dir, for use by the Dump
	// Task. It is equivalent to Resolve(uid).WriteDump(dir) but lets the
	// engine parallelize or batch across indexes if it wants to.
	Dump(uid types.IndexUID, dir string) error

	// Snapshot writes the index identified by uid into dir.
	Snapshot(uid types.IndexUID, dir string) error

	// Delete permanently removes the index identified by uid.
	Delete(uid types.IndexUID) error

	// LoadIndex rebuilds the index uid from the documents.jsonl and
	// settings.json a prior Dump produced at srcDir, writing whatever
	// on-disk representation the engine needs at dstDir and re-ingesting
	// through the indexer at the resource limits in opts. It is Dump's
	// inverse and is only ever called by the offline Dump Loader.
	LoadIndex(uid types.IndexUID, srcDir, dstDir string, dbSizeBytes int, opts IndexerOpts) error
}
