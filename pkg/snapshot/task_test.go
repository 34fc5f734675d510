package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticesearch/latticed/pkg/filestore"
	"github.com/latticesearch/latticed/pkg/resolver"
	"github.com/latticesearch/latticed/pkg/types"
	"github.com/latticesearch/latticed/pkg/updateloop"
	"github.com/latticesearch/latticed/pkg/updatestore"
)

// failingResolver wraps a Fake but forces Snapshot to fail, so tests can
// exercise the cleanup path without depending on Fake ever rejecting a uid.
type failingResolver struct {
	*resolver.Fake
}

func (failingResolver) Snapshot(types.IndexUID, string) error {
	return errors.New("simulated snapshot failure")
}

func newTestLoop(t *testing.T) (*updateloop.Loop, *resolver.Fake) {
	t.Helper()
	fake := resolver.NewFake()
	return newTestLoopWithResolver(t, fake), fake
}

func newTestLoopWithResolver(t *testing.T, res resolver.Resolver) *updateloop.Loop {
	t.Helper()

	fs, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	store, err := updatestore.Open(updatestore.Config{
		Path:      filepath.Join(t.TempDir(), "updates.db"),
		Resolver:  res,
		FileStore: fs,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	loop := updateloop.New(store, fs)
	loop.Run()
	t.Cleanup(loop.Close)

	return loop
}

func TestCreate_PublishesAtomicallyAndCleansStaging(t *testing.T) {
	loop, fake := newTestLoop(t)
	fake.Seed("movies")

	snapshotsDir := filepath.Join(t.TempDir(), "snapshots")

	path, err := Create(loop, snapshotsDir, []types.IndexUID{"movies"}, "20260731T000000Z")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(snapshotsDir, "20260731T000000Z.snapshot"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = os.Stat(filepath.Join(path, "indexes", "movies", "movies.snapshot"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(path, "updates.db"))
	require.NoError(t, err)

	entries, err := os.ReadDir(snapshotsDir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no leftover staging-* directory once the snapshot is published")
	assert.Equal(t, "20260731T000000Z.snapshot", entries[0].Name())
}

func TestCreate_FailureLeavesNoPartialSnapshotAtFinalName(t *testing.T) {
	res := failingResolver{resolver.NewFake()}
	res.Seed("movies")
	loop := newTestLoopWithResolver(t, res)

	snapshotsDir := filepath.Join(t.TempDir(), "snapshots")

	_, err := Create(loop, snapshotsDir, []types.IndexUID{"movies"}, "broken")
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(snapshotsDir, "broken.snapshot"))
	assert.True(t, os.IsNotExist(statErr), "a failed snapshot must never appear at its final name")

	entries, err := os.ReadDir(snapshotsDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging directory must be cleaned up on failure")
}
