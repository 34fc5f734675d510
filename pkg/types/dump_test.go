package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpMetadata_V3RoundTripPreservesAllFields(t *testing.T) {
	want := DumpMetadata{
		DumpVersion:  DumpV3,
		DBVersion:    "1",
		IndexDBSize:  4096,
		UpdateDBSize: 2048,
		DumpDate:     time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(want)
	require.NoError(t, err)

	var got DumpMetadata
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, want.DumpVersion, got.DumpVersion)
	assert.Equal(t, want.DBVersion, got.DBVersion)
	assert.Equal(t, want.IndexDBSize, got.IndexDBSize)
	assert.Equal(t, want.UpdateDBSize, got.UpdateDBSize)
	assert.True(t, want.DumpDate.Equal(got.DumpDate))
	assert.True(t, got.HasDumpDate())
}

func TestDumpMetadata_V2RoundTripPreservesAllFields(t *testing.T) {
	want := DumpMetadata{
		DumpVersion:  DumpV2,
		DBVersion:    "1",
		IndexDBSize:  1024,
		UpdateDBSize: 512,
		DumpDate:     time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := json.Marshal(want)
	require.NoError(t, err)

	var got DumpMetadata
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, want, got, "V2 metadata marshals with Go's default time.Time encoding, so Equal also works here")
	assert.True(t, got.HasDumpDate())
}

// TestDumpMetadata_V1OmitsDumpDate exercises the legacy metadata.json shape a
// V1 archive actually carries on disk: no dumpDate field at all, since the
// field postdates the V1 format. The loader must tolerate this rather than
// fail to parse it.
func TestDumpMetadata_V1OmitsDumpDate(t *testing.T) {
	const v1JSON = `{"dumpVersion":"V1","dbVersion":"1"}`

	var got DumpMetadata
	require.NoError(t, json.Unmarshal([]byte(v1JSON), &got))

	assert.Equal(t, DumpV1, got.DumpVersion)
	assert.Equal(t, "1", got.DBVersion)
	assert.True(t, got.DumpDate.IsZero())
	assert.False(t, got.HasDumpDate(), "V1 metadata never reports a dump date, even if DumpDate were somehow non-zero")
	assert.Zero(t, got.IndexDBSize)
	assert.Zero(t, got.UpdateDBSize)
}

func TestDumpMetadata_HasDumpDateFalseForZeroDate(t *testing.T) {
	m := DumpMetadata{DumpVersion: DumpV3, DBVersion: "1"}
	assert.False(t, m.HasDumpDate())
}
