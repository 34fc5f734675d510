package dump

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/latticesearch/latticed/pkg/resolver"
	"github.com/latticesearch/latticed/pkg/types"
	"github.com/latticesearch/latticed/pkg/updateloop"
)

// dbVersion is stamped into every dump's metadata.json, identifying the
// on-disk schema the Update Store and resolver wrote it with. It has no
// relationship to the server's own release version.
const dbVersion = "1"

// runDumpTask performs the Dump Task's steps for one dump, leaving the
// finished archive at <dumpsDir>/<uid>.dump. It never returns a partially
// written archive: the tar+gzip pass writes to a sibling temp file first and
// only the final rename makes <uid>.dump visible.
func runDumpTask(dumpsDir string, res resolver.Resolver, loop *updateloop.Loop, uid string) error {
	if err := os.MkdirAll(dumpsDir, 0o755); err != nil {
		return err
	}

	staging, err := os.MkdirTemp(dumpsDir, "staging-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	uids, err := res.ListAllUIDs()
	if err != nil {
		return err
	}

	meta := types.DumpMetadata{
		DumpVersion: types.DumpV3,
		DBVersion:   dbVersion,
		DumpDate:    time.Now(),
	}
	if info, err := loop.GetInfo(); err == nil {
		meta.UpdateDBSize = info.Size
	}

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(staging, "metadata.json"), metaBytes, 0o644); err != nil {
		return err
	}

	// The Update Loop writes each index's resolver dump, its update queue,
	// and the payload files that queue references, all into staging.
	if err := loop.Dump(uids, staging); err != nil {
		return err
	}

	archivePath := filepath.Join(dumpsDir, uid+".dump")
	tmpArchive := archivePath + ".tmp"
	if err := packTarGz(staging, tmpArchive); err != nil {
		os.Remove(tmpArchive)
		return err
	}

	if err := os.Rename(tmpArchive, archivePath); err != nil {
		os.Remove(tmpArchive)
		return err
	}

	return nil
}
