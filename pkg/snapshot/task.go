package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/latticesearch/latticed/pkg/types"
	"github.com/latticesearch/latticed/pkg/updateloop"
)

// Create produces a same-version snapshot of indexes plus the Update
// Store's own environment under snapshotsDir, publishing it as
// <name>.snapshot. It stages the Loop's Snapshot output in a sibling
// temporary directory first and only os.Rename's it into place once the
// Loop call has fully succeeded, so a crash mid-snapshot leaves only a
// stray "staging-*" directory rather than a partially written
// <name>.snapshot sitting at the path a restore would look for (spec.md
// §4.2: snapshot "emits a single atomically-renamed archive").
//
// Unlike a Dump Task's archive, the published snapshot is a directory, not
// a tar.gz file: a snapshot is a same-version, local-restore artifact with
// no portability requirement, so there is nothing to pack.
func Create(loop *updateloop.Loop, snapshotsDir string, uids []types.IndexUID, name string) (string, error) {
	if err := os.MkdirAll(snapshotsDir, 0o755); err != nil {
		return "", err
	}

	staging, err := os.MkdirTemp(snapshotsDir, "staging-*")
	if err != nil {
		return "", err
	}
	published := false
	defer func() {
		if !published {
			os.RemoveAll(staging)
		}
	}()

	if err := loop.Snapshot(uids, staging); err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}

	finalPath := filepath.Join(snapshotsDir, name+".snapshot")
	if err := os.Rename(staging, finalPath); err != nil {
		return "", fmt.Errorf("snapshot: publish %s: %w", finalPath, err)
	}
	published = true

	return finalPath, nil
}
