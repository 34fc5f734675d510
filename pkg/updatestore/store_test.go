package updatestore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticesearch/latticed/pkg/filestore"
	"github.com/latticesearch/latticed/pkg/resolver"
	"github.com/latticesearch/latticed/pkg/types"
)

func newTestStore(t *testing.T) (*Store, *resolver.Fake, *filestore.Store) {
	t.Helper()

	fs, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	fake := resolver.NewFake()

	s, err := Open(Config{
		Path:      filepath.Join(t.TempDir(), "updates.db"),
		Resolver:  fake,
		FileStore: fs,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s, fake, fs
}

func waitForTerminal(t *testing.T, s *Store, uid types.IndexUID, updateID uint64) *types.UpdateRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := s.Meta(uid, updateID)
		require.NoError(t, err)
		if rec.Status.Terminal() {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("update %d on %s never reached a terminal status", updateID, uid)
	return nil
}

func TestRegisterUpdateIsProcessed(t *testing.T) {
	s, fake, _ := newTestStore(t)
	fake.Seed("movies")

	rec, err := s.RegisterUpdate("movies", types.NewClearDocuments())
	require.NoError(t, err)
	assert.Equal(t, types.StatusEnqueued, rec.Status.Kind)

	final := waitForTerminal(t, s, "movies", rec.UpdateID)
	assert.Equal(t, types.StatusProcessed, final.Status.Kind)
	assert.NotNil(t, final.StartedAt)
	assert.NotNil(t, final.FinishedAt)
}

func TestListOrdersByUpdateIDAscending(t *testing.T) {
	s, fake, _ := newTestStore(t)
	fake.Seed("movies")

	var last uint64
	for i := 0; i < 5; i++ {
		rec, err := s.RegisterUpdate("movies", types.NewClearDocuments())
		require.NoError(t, err)
		last = rec.UpdateID
	}
	waitForTerminal(t, s, "movies", last)

	records, err := s.List("movies")
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, uint64(i), rec.UpdateID)
	}
}

func TestMetaUnknownUpdateReturnsError(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.Meta("movies", 999)
	assert.ErrorIs(t, err, ErrUnexistingUpdate)
}

func TestDeleteAllIsIdempotent(t *testing.T) {
	s, fake, _ := newTestStore(t)
	fake.Seed("movies")

	rec, err := s.RegisterUpdate("movies", types.NewClearDocuments())
	require.NoError(t, err)
	waitForTerminal(t, s, "movies", rec.UpdateID)

	require.NoError(t, s.DeleteAll("movies"))
	require.NoError(t, s.DeleteAll("movies"))

	records, err := s.List("movies")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDeleteAllWhenIdleDoesNotCancelLaterUpdates(t *testing.T) {
	s, fake, fs := newTestStore(t)
	fake.Seed("movies")

	// First cycle completes fully, so nothing is Processing by the time
	// DeleteAll runs.
	first, err := s.RegisterUpdate("movies", types.NewClearDocuments())
	require.NoError(t, err)
	waitForTerminal(t, s, "movies", first.UpdateID)

	require.NoError(t, s.DeleteAll("movies"))

	id, wf, err := fs.NewUpdate()
	require.NoError(t, err)
	_, err = wf.Write([]byte(`{"id":1}`))
	require.NoError(t, err)
	require.NoError(t, wf.Persist())

	kind := types.NewDocumentAddition("id", types.MethodReplaceDocuments, types.ContentID(id))
	second, err := s.RegisterUpdate("movies", kind)
	require.NoError(t, err)

	final := waitForTerminal(t, s, "movies", second.UpdateID)
	assert.Equal(t, types.StatusProcessed, final.Status.Kind)

	_, err = fs.Get(id)
	assert.ErrorIs(t, err, filestore.ErrNotFound)
}

func TestRegisterUpdateWithDocumentAdditionReclaimsPayload(t *testing.T) {
	s, fake, fs := newTestStore(t)
	fake.Seed("movies")

	id, wf, err := fs.NewUpdate()
	require.NoError(t, err)
	_, err = wf.Write([]byte(`{"id":1}`))
	require.NoError(t, err)
	require.NoError(t, wf.Persist())

	kind := types.NewDocumentAddition("id", types.MethodReplaceDocuments, types.ContentID(id))
	rec, err := s.RegisterUpdate("movies", kind)
	require.NoError(t, err)

	final := waitForTerminal(t, s, "movies", rec.UpdateID)
	assert.Equal(t, types.StatusProcessed, final.Status.Kind)

	// Grace is zero by default: the writer reclaims the payload once the
	// update reaches a terminal state.
	_, err = fs.Get(id)
	assert.ErrorIs(t, err, filestore.ErrNotFound)
}

func TestGetInfoReportsSize(t *testing.T) {
	s, _, _ := newTestStore(t)
	info, err := s.GetInfo()
	require.NoError(t, err)
	assert.Greater(t, info.Size, int64(0))
	assert.Nil(t, info.Processing)
}
