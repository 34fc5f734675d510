package filestore

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestStore_PersistAndGet(t *testing.T) {
	s := newTestStore(t)

	id, wf, err := s.NewUpdate()
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = wf.Write([]byte(`{"hello":"world"}`))
	require.NoError(t, err)
	require.NoError(t, wf.Persist())

	rf, err := s.Get(id)
	require.NoError(t, err)
	defer rf.Close()

	body, err := io.ReadAll(rf)
	require.NoError(t, err)
	assert.Equal(t, `{"hello":"world"}`, string(body))
}

func TestStore_GetMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_NotVisibleBeforePersist(t *testing.T) {
	s := newTestStore(t)

	id, wf, err := s.NewUpdate()
	require.NoError(t, err)
	_, err = wf.Write([]byte("partial"))
	require.NoError(t, err)

	_, err = s.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, wf.Persist())
	_, err = s.Get(id)
	assert.NoError(t, err)
}

func TestWritableFile_Abort(t *testing.T) {
	s := newTestStore(t)

	id, wf, err := s.NewUpdate()
	require.NoError(t, err)
	_, err = wf.Write([]byte("discarded"))
	require.NoError(t, err)
	require.NoError(t, wf.Abort())

	_, err = s.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)

	// Aborting twice is a no-op, not an error.
	assert.NoError(t, wf.Abort())
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	id, wf, err := s.NewUpdate()
	require.NoError(t, err)
	_, err = wf.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, wf.Persist())

	require.NoError(t, s.Delete(id))
	require.NoError(t, s.Delete(id))

	_, err = s.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DumpTo(t *testing.T) {
	s := newTestStore(t)

	var ids []string
	for _, body := range []string{"one", "two", "three"} {
		id, wf, err := s.NewUpdate()
		require.NoError(t, err)
		_, err = wf.Write([]byte(body))
		require.NoError(t, err)
		require.NoError(t, wf.Persist())
		ids = append(ids, id)
	}

	// A missing id mixed in must be skipped, not fatal.
	ids = append(ids, "missing-id")

	dstDir := t.TempDir()
	require.NoError(t, s.DumpTo(dstDir, ids))

	for _, id := range ids[:3] {
		_, err := os.Stat(filepath.Join(dstDir, id))
		assert.NoError(t, err)
	}
	_, err := os.Stat(filepath.Join(dstDir, "missing-id"))
	assert.True(t, os.IsNotExist(err))
}

func TestStore_Size(t *testing.T) {
	s := newTestStore(t)

	_, wf, err := s.NewUpdate()
	require.NoError(t, err)
	_, err = wf.Write([]byte("12345"))
	require.NoError(t, err)
	require.NoError(t, wf.Persist())

	size, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
}
