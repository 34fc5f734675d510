package resolver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/latticesearch/latticed/pkg/types"
)

// Fake is an in-memory Resolver used by this module's own tests and wired in
// by cmd/latticed and cmd/latticed-migrate. It keeps no
// real documents; ApplyUpdate just counts applied updates per index and
// echoes back a deterministic result string.
type Fake struct {
	mu      sync.Mutex
	indexes map[types.IndexUID]*fakeIndex
}

type fakeIndex struct {
	applied  int
	settings types.SettingsPatch
	deleted  bool
}

// NewFake returns an empty Fake resolver.
func NewFake() *Fake {
	return &Fake{indexes: make(map[types.IndexUID]*fakeIndex)}
}

// Seed registers uid with the resolver so ListAllUIDs reports it, without
// applying any updates. Resolve does not need it: it creates an unknown uid
// on first use.
func (f *Fake) Seed(uid types.IndexUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.indexes[uid]; !ok {
		f.indexes[uid] = &fakeIndex{}
	}
}

func (f *Fake) Resolve(uid types.IndexUID) (IndexHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, ok := f.indexes[uid]
	if !ok {
		idx = &fakeIndex{}
		f.indexes[uid] = idx
	}
	return &fakeHandle{uid: uid, idx: idx, mu: &f.mu}, nil
}

func (f *Fake) ListAllUIDs() ([]types.IndexUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uids := make([]types.IndexUID, 0, len(f.indexes))
	for uid, idx := range f.indexes {
		if idx.deleted {
			continue
		}
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

func (f *Fake) Dump(uid types.IndexUID, dir string) error {
	h, err := f.Resolve(uid)
	if err != nil {
		return err
	}
	return h.WriteDump(dir)
}

func (f *Fake) Snapshot(uid types.IndexUID, dir string) error {
	h, err := f.Resolve(uid)
	if err != nil {
		return err
	}
	return h.WriteSnapshot(dir)
}

func (f *Fake) Delete(uid types.IndexUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, ok := f.indexes[uid]
	if !ok {
		return ErrIndexNotFound
	}
	idx.deleted = true
	return nil
}

// LoadIndex replays a dumped index's documents and settings into the fake,
// as if the real engine had rebuilt its own storage from them. dbSizeBytes
// and opts are recorded on the written marker rather than enforced: the
// fake keeps no storage engine of its own to size or thread-limit.
func (f *Fake) LoadIndex(uid types.IndexUID, srcDir, dstDir string, dbSizeBytes int, opts IndexerOpts) error {
	idx := &fakeIndex{}

	docBytes, err := os.ReadFile(filepath.Join(srcDir, "documents.jsonl"))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	idx.applied = countNonEmptyLines(docBytes)

	settingsBytes, err := os.ReadFile(filepath.Join(srcDir, "settings.json"))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if len(settingsBytes) > 0 {
		var settings types.SettingsPatch
		if err := json.Unmarshal(settingsBytes, &settings); err != nil {
			return err
		}
		idx.settings = settings
	}

	f.mu.Lock()
	f.indexes[uid] = idx
	f.mu.Unlock()

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}
	marker := fmt.Sprintf("documents=%d dbSizeBytes=%d maxMemoryBytes=%d maxThreads=%d\n",
		idx.applied, dbSizeBytes, opts.MaxMemoryBytes, opts.MaxThreads)
	return os.WriteFile(filepath.Join(dstDir, string(uid)+".loaded"), []byte(marker), 0o644)
}

func countNonEmptyLines(data []byte) int {
	n := 0
	for _, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			n++
		}
	}
	return n
}

type fakeHandle struct {
	uid types.IndexUID
	idx *fakeIndex
	mu  *sync.Mutex
}

func (h *fakeHandle) ApplyUpdate(kind types.UpdateKind, payload io.Reader) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch kind.Tag {
	case types.KindDocumentAddition:
		if payload != nil {
			if _, err := io.Copy(io.Discard, payload); err != nil {
				return "", err
			}
		}
	case types.KindSettings:
		if kind.Settings != nil {
			h.idx.settings = *kind.Settings
		}
	case types.KindClearDocuments, types.KindDeleteDocuments:
		// no document store to mutate in the fake.
	}

	h.idx.applied++
	return fmt.Sprintf("applied %d", h.idx.applied), nil
}

func (h *fakeHandle) WriteSnapshot(dstDir string) error {
	return os.WriteFile(filepath.Join(dstDir, string(h.uid)+".snapshot"), []byte("fake-snapshot"), 0o644)
}

func (h *fakeHandle) WriteDump(dstDir string) error {
	if err := os.WriteFile(filepath.Join(dstDir, "documents.jsonl"), nil, 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dstDir, "settings.json"), []byte("{}"), 0o644)
}
