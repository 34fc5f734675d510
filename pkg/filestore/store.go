package filestore

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no payload is persisted under the
// requested content id.
var ErrNotFound = errors.New("filestore: content id not found")

// Store is a content-addressed blob store rooted at a single directory.
// Payloads are written through a WritableFile, which stages the write at a
// temporary path and only exposes it under its canonical path once Persist
// succeeds. It is safe for concurrent use.
type Store struct {
	root string
}

// New creates a Store rooted at dir, creating the directory if necessary.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("filestore: root directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: dir}, nil
}

// Content ids are opaque strings here; filestore does not depend on
// pkg/types so that it stays usable from pkg/dump's loader path too.
func (s *Store) pathFor(id string) string {
	return filepath.Join(s.root, id)
}

// WritableFile is the handle returned by NewUpdate. Callers write the payload
// body to it and call Persist to make it durable and visible, or Abort to
// discard it.
type WritableFile struct {
	f        *os.File
	tmpPath  string
	realPath string
	done     bool
}

// Write implements io.Writer, appending to the staged temporary file.
func (w *WritableFile) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

// Persist flushes the staged file to disk and atomically renames it into its
// canonical path. After Persist returns successfully the payload is visible
// to Get. Persist is a no-op if already called.
func (w *WritableFile) Persist() error {
	if w.done {
		return nil
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		os.Remove(w.tmpPath)
		return err
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.tmpPath)
		return err
	}
	if err := os.Rename(w.tmpPath, w.realPath); err != nil {
		os.Remove(w.tmpPath)
		return err
	}
	w.done = true
	return nil
}

// Abort discards the staged file without persisting it.
func (w *WritableFile) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.f.Close()
	return os.Remove(w.tmpPath)
}

// NewUpdate allocates a fresh content id and returns a handle that stages
// writes at a temporary path under the store's root. Callers must call
// Persist (or Abort) on the returned WritableFile.
func (s *Store) NewUpdate() (string, *WritableFile, error) {
	id := uuid.New().String()
	realPath := s.pathFor(id)
	tmpPath := realPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", nil, err
	}

	return id, &WritableFile{f: f, tmpPath: tmpPath, realPath: realPath}, nil
}

// ReadableFile is a handle to a persisted payload. It wraps *os.File and
// exposes io.ReadCloser plus io.Seeker for re-reading.
type ReadableFile struct {
	*os.File
}

// Get opens the payload persisted under id. It returns ErrNotFound if no
// payload has been persisted under that id.
func (s *Store) Get(id string) (*ReadableFile, error) {
	f, err := os.Open(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ReadableFile{File: f}, nil
}

// Delete removes the payload persisted under id. It is idempotent: deleting
// an id that does not exist is not an error.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.pathFor(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DumpTo copies the payloads named by ids into dstDir, which must already
// exist. Missing ids are skipped rather than treated as an error, since a
// payload may have already been reclaimed by retention between enumeration
// and dump.
func (s *Store) DumpTo(dstDir string, ids []string) error {
	for _, id := range ids {
		if err := copyFile(s.pathFor(id), filepath.Join(dstDir, id)); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// ListIDs returns the content ids of every persisted payload currently held.
// Staged-but-not-yet-persisted ".tmp" files are excluded; only payloads that
// survived a Persist call are real content ids.
func (s *Store) ListIDs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}

// Size walks the store's root and returns the total bytes of payloads
// currently held. Nothing in this module calls it to set the
// filestore_bytes gauge.
func (s *Store) Size() (int64, error) {
	var total int64
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}
