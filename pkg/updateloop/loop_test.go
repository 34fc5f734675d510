package updateloop

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticesearch/latticed/pkg/filestore"
	"github.com/latticesearch/latticed/pkg/resolver"
	"github.com/latticesearch/latticed/pkg/types"
	"github.com/latticesearch/latticed/pkg/updatestore"
)

func newTestLoop(t *testing.T) (*Loop, *resolver.Fake) {
	t.Helper()

	fs, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	fake := resolver.NewFake()

	store, err := updatestore.Open(updatestore.Config{
		Path:      filepath.Join(t.TempDir(), "updates.db"),
		Resolver:  fake,
		FileStore: fs,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	loop := New(store, fs)
	loop.Run()
	t.Cleanup(loop.Close)

	return loop, fake
}

func TestLoop_UpdateDocumentAddition(t *testing.T) {
	loop, fake := newTestLoop(t)
	fake.Seed("movies")

	rec, err := loop.Update("movies", UpdateRequest{
		Tag:     types.KindDocumentAddition,
		Method:  types.MethodReplaceDocuments,
		Format:  types.FormatJSON,
		Payload: strings.NewReader(`[{"id":1}]`),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusEnqueued, rec.Status.Kind)
}

func TestLoop_UpdateEmptyPayloadFailsWithMissingPayload(t *testing.T) {
	loop, fake := newTestLoop(t)
	fake.Seed("movies")

	_, err := loop.Update("movies", UpdateRequest{
		Tag:     types.KindDocumentAddition,
		Format:  types.FormatNDJSON,
		Payload: strings.NewReader(""),
	})

	var missing *MissingPayloadError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, types.FormatNDJSON, missing.Format)

	records, err := loop.ListUpdates("movies")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLoop_ListAndGetUpdate(t *testing.T) {
	loop, fake := newTestLoop(t)
	fake.Seed("movies")

	rec, err := loop.Update("movies", UpdateRequest{Tag: types.KindClearDocuments})
	require.NoError(t, err)

	got, err := loop.GetUpdate("movies", rec.UpdateID)
	require.NoError(t, err)
	assert.Equal(t, rec.UpdateID, got.UpdateID)

	records, err := loop.ListUpdates("movies")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestLoop_DeleteIndex(t *testing.T) {
	loop, fake := newTestLoop(t)
	fake.Seed("movies")

	_, err := loop.Update("movies", UpdateRequest{Tag: types.KindClearDocuments})
	require.NoError(t, err)

	require.NoError(t, loop.DeleteIndex("movies"))

	records, err := loop.ListUpdates("movies")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLoop_GetInfo(t *testing.T) {
	loop, _ := newTestLoop(t)

	info, err := loop.GetInfo()
	require.NoError(t, err)
	assert.Greater(t, info.Size, int64(0))
}

func TestLoop_ClosedRejectsNewWork(t *testing.T) {
	loop, fake := newTestLoop(t)
	fake.Seed("movies")

	loop.Close()

	_, err := loop.Update("movies", UpdateRequest{Tag: types.KindClearDocuments})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLoop_ConcurrentUpdatesBeyondFanOutAllRegister(t *testing.T) {
	loop, fake := newTestLoop(t)
	fake.Seed("movies")

	done := make(chan struct{}, 20)
	for i := 0; i < 20; i++ {
		go func() {
			_, _ = loop.Update("movies", UpdateRequest{Tag: types.KindClearDocuments})
			done <- struct{}{}
		}()
	}

	for i := 0; i < 20; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("updates did not complete in time")
		}
	}

	records, err := loop.ListUpdates("movies")
	require.NoError(t, err)
	assert.Len(t, records, 20)
}
