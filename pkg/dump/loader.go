package dump

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/latticesearch/latticed/pkg/resolver"
	"github.com/latticesearch/latticed/pkg/types"
	"github.com/latticesearch/latticed/pkg/updatestore"
)

// IndexerOpts carries resource limits forwarded to the resolver's own
// re-indexing pass while a dump is loaded. It is an alias of resolver.
// IndexerOpts so callers can build a LoadConfig without importing
// pkg/resolver directly.
type IndexerOpts = resolver.IndexerOpts

// LoadConfig configures LoadDump.
type LoadConfig struct {
	IndexDBSizeBytes  int
	UpdateDBSizeBytes int
	IndexerOpts       IndexerOpts
}

// LoadDump extracts the dump archive at srcArchive and reconstructs a data
// directory tree at dstDir, replacing it atomically. It runs synchronously
// and offline: callers invoke it before any server is listening, typically
// from a migration command.
//
// res rebuilds each index's own on-disk representation from the
// documents.jsonl/settings.json a dump produced; the migration CLI passes
// the same resolver.Resolver implementation the server would use against
// that data directory.
//
// Work happens on the same filesystem as dstDir's parent so the final
// rename is atomic; both the extraction staging directory and the rebuilt
// tree are created there rather than under the OS default temp directory.
func LoadDump(dstDir, srcArchive string, res resolver.Resolver, cfg LoadConfig) error {
	parent := filepath.Dir(dstDir)
	if parent == "" {
		parent = "."
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}
	setPlatformTempDir(parent)

	tmpSrc, err := os.MkdirTemp(parent, "dump-src-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpSrc)

	if err := unpackTarGz(srcArchive, tmpSrc); err != nil {
		return fmt.Errorf("dump: extract %s: %w", srcArchive, err)
	}

	metaBytes, err := os.ReadFile(filepath.Join(tmpSrc, "metadata.json"))
	if err != nil {
		return fmt.Errorf("dump: read metadata.json: %w", err)
	}
	var meta types.DumpMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return fmt.Errorf("dump: parse metadata.json: %w", err)
	}

	tmpDst, err := os.MkdirTemp(parent, "dump-dst-*")
	if err != nil {
		return err
	}
	removeTmpDst := true
	defer func() {
		if removeTmpDst {
			os.RemoveAll(tmpDst)
		}
	}()

	switch meta.DumpVersion {
	case types.DumpV1:
		err = loadV1(tmpSrc, tmpDst, res, cfg)
	case types.DumpV2:
		err = loadV2(tmpSrc, tmpDst, res, cfg)
	case types.DumpV3:
		err = loadV3(tmpSrc, tmpDst, res, cfg)
	default:
		err = fmt.Errorf("dump: unrecognized dump version %q", meta.DumpVersion)
	}
	if err != nil {
		return err
	}

	if _, statErr := os.Stat(dstDir); statErr == nil {
		if err := os.RemoveAll(dstDir); err != nil {
			return err
		}
	}

	if err := os.Rename(tmpDst, dstDir); err != nil {
		return err
	}
	removeTmpDst = false
	return nil
}

// ReadMetadata reads and parses only metadata.json out of the archive at
// archivePath, without extracting anything else or touching a destination
// directory. It is meant for a migration CLI's --dry-run preview, where the
// caller wants to know what a dump contains before committing to a full
// LoadDump.
func ReadMetadata(archivePath string) (types.DumpMetadata, error) {
	data, err := readArchiveEntry(archivePath, "metadata.json")
	if err != nil {
		return types.DumpMetadata{}, fmt.Errorf("dump: read metadata.json from %s: %w", archivePath, err)
	}

	var meta types.DumpMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return types.DumpMetadata{}, fmt.Errorf("dump: parse metadata.json: %w", err)
	}
	return meta, nil
}

// setPlatformTempDir points the OS temp directory environment variable at
// dir, matching the original loader's requirement that extraction staging
// live on the same filesystem as the destination so the final rename is a
// metadata-only operation rather than a cross-device copy.
func setPlatformTempDir(dir string) {
	if runtime.GOOS == "windows" {
		os.Setenv("TMP", dir)
		return
	}
	os.Setenv("TMPDIR", dir)
}

// defaultV1IndexUID names the single index a legacy V1 archive is loaded
// under, since V1 predates multi-index dumps and carries no uid of its own.
const defaultV1IndexUID = types.IndexUID("default")

// loadV1 restores the legacy single-index archive layout, in which
// documents and settings sit directly under the archive root rather than
// under indexes/<uid>. It is reparented under defaultV1IndexUID and
// re-ingested through res.LoadIndex like any other index.
func loadV1(tmpSrc, tmpDst string, res resolver.Resolver, cfg LoadConfig) error {
	idxDst := filepath.Join(tmpDst, "indexes", string(defaultV1IndexUID))
	if err := os.MkdirAll(idxDst, 0o755); err != nil {
		return err
	}
	return res.LoadIndex(defaultV1IndexUID, tmpSrc, idxDst, cfg.IndexDBSizeBytes, cfg.IndexerOpts)
}

// loadV2 restores the multi-index indexes/<uid> layout introduced once the
// archive format gained a per-index subdirectory, but before the Update
// Store had its own queue worth preserving. Each index's documents and
// settings are re-ingested through res.LoadIndex rather than copied raw.
func loadV2(tmpSrc, tmpDst string, res resolver.Resolver, cfg LoadConfig) error {
	return loadIndexes(tmpSrc, tmpDst, res, cfg)
}

// loadV3 additionally restores the Update Store's queue. No record is
// replayed through the pending queue: records that were not yet terminal are
// written as Processed and already-terminal ones keep their status, since the
// resolver's rebuilt index already reflects their effect on the documents
// and re-running them would double-apply the mutation.
func loadV3(tmpSrc, tmpDst string, res resolver.Resolver, cfg LoadConfig) error {
	if err := loadIndexes(tmpSrc, tmpDst, res, cfg); err != nil {
		return err
	}
	return loadUpdates(tmpSrc, tmpDst, cfg)
}

// loadIndexes discovers every indexes/<uid> directory in the archive and
// re-ingests each one through res.LoadIndex at the resource limits cfg
// carries, rather than copying the raw on-disk bytes a resolver wrote.
func loadIndexes(tmpSrc, tmpDst string, res resolver.Resolver, cfg LoadConfig) error {
	srcIndexes := filepath.Join(tmpSrc, "indexes")
	entries, err := os.ReadDir(srcIndexes)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	dstIndexes := filepath.Join(tmpDst, "indexes")
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		uid := types.IndexUID(entry.Name())
		srcIdxDir := filepath.Join(srcIndexes, entry.Name())
		dstIdxDir := filepath.Join(dstIndexes, entry.Name())
		if err := os.MkdirAll(dstIdxDir, 0o755); err != nil {
			return err
		}
		if err := res.LoadIndex(uid, srcIdxDir, dstIdxDir, cfg.IndexDBSizeBytes, cfg.IndexerOpts); err != nil {
			return err
		}
	}
	return nil
}

// loadUpdates copies the dump's update payload files as-is and seeds a
// fresh bbolt environment at tmpDst/updates/data.mdb with every record from
// updates/data.jsonl, forced to a terminal status, sized per
// cfg.UpdateDBSizeBytes.
func loadUpdates(tmpSrc, tmpDst string, cfg LoadConfig) error {
	srcUpdates := filepath.Join(tmpSrc, "updates")
	if _, err := os.Stat(srcUpdates); os.IsNotExist(err) {
		return nil
	}

	dstUpdates := filepath.Join(tmpDst, "updates")
	if err := os.MkdirAll(dstUpdates, 0o755); err != nil {
		return err
	}

	srcFiles := filepath.Join(srcUpdates, "updates_files")
	if _, err := os.Stat(srcFiles); err == nil {
		if err := copyTree(srcFiles, filepath.Join(dstUpdates, "updates_files"), nil); err != nil {
			return err
		}
	}

	records, err := readDumpRecords(filepath.Join(srcUpdates, "data.jsonl"))
	if err != nil {
		return err
	}

	return updatestore.ImportRecords(filepath.Join(dstUpdates, "data.mdb"), records, cfg.UpdateDBSizeBytes)
}

func readDumpRecords(path string) ([]*types.UpdateRecord, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []*types.UpdateRecord
	dec := json.NewDecoder(f)
	for {
		var rec types.UpdateRecord
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, nil
}

// copyTree copies every regular file under src into dst, preserving the
// relative directory structure. skip, when non-nil, is consulted with each
// entry's base name and excludes matches from the copy.
func copyTree(src, dst string, skip func(name string) bool) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == src {
			return nil
		}
		if skip != nil && skip(info.Name()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
