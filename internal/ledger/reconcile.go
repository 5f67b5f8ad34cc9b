package ledger

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// Reconcile scans the project's files/ subtree and compares it to the
// ledger, classifying disagreements as orphan (on disk, not in ledger),
// missing (in ledger, not on disk) or size-mismatch, and either repairing
// or merely reporting them depending on mode (§4.2).
func (l *Ledger) Reconcile(ctx context.Context, projectID contracts.ProjectID, mode contracts.ReconcileMode) (contracts.ReconcileReport, error) {
	lk := l.projectLock(projectID)
	lk.Lock()
	defer lk.Unlock()

	var report contracts.ReconcileReport

	refs, err := l.store.QueryArtifacts(ctx, projectID, contracts.ArtifactFilter{})
	if err != nil {
		return report, err
	}
	byRelPath := make(map[string]contracts.ArtifactRef, len(refs))
	for _, ref := range refs {
		byRelPath[filepath.Clean(ref.RelPath)] = ref
	}

	base := l.projectRoot(projectID)
	filesRoot := filepath.Join(base, "files")
	seen := make(map[string]bool, len(refs))

	err = filepath.WalkDir(filesRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		rel = filepath.Clean(rel)
		info, err := d.Info()
		if err != nil {
			return err
		}

		ref, known := byRelPath[rel]
		if !known {
			report.Orphans = append(report.Orphans, rel)
			if mode == contracts.AutoRepair {
				artType := inferType(rel)
				newRef := contracts.ArtifactRef{
					ProjectID: projectID,
					Type:      artType,
					Category:  contracts.CategoryOutput,
					RelPath:   rel,
					FileName:  filepath.Base(rel),
					SizeBytes: info.Size(),
					CreatedAt: contracts.Now(),
				}
				if _, err := l.store.RegisterArtifact(ctx, newRef); err != nil {
					return err
				}
				report.Repaired = true
			}
			return nil
		}

		seen[rel] = true
		if ref.SizeBytes != info.Size() {
			report.SizeMismatch = append(report.SizeMismatch, ref.ID)
			if mode == contracts.AutoRepair {
				ref.SizeBytes = info.Size()
				if err := l.store.DeleteArtifact(ctx, ref.ID); err != nil {
					return err
				}
				if _, err := l.store.RegisterArtifact(ctx, ref); err != nil {
					return err
				}
				report.Repaired = true
			}
		}
		return nil
	})
	if err != nil && !strings.Contains(err.Error(), "no such file or directory") {
		return report, &contracts.FilesystemError{Op: "reconcile_walk", Path: filesRoot, Cause: err}
	}

	for rel, ref := range byRelPath {
		if seen[rel] {
			continue
		}
		if _, err := os.Stat(filepath.Join(base, rel)); err == nil {
			continue
		}
		report.Missing = append(report.Missing, ref.ID)
		if mode == contracts.AutoRepair {
			if err := l.store.DeleteArtifact(ctx, ref.ID); err != nil {
				return report, err
			}
			report.Repaired = true
		}
	}

	log.Printf("[LEDGER] event=reconcile project=%s mode=%s orphans=%d missing=%d size_mismatch=%d",
		projectID, mode, len(report.Orphans), len(report.Missing), len(report.SizeMismatch))
	return report, nil
}

// inferType guesses an ArtifactType from an orphaned file's position
// beneath files/ during AutoRepair.
func inferType(rel string) contracts.ArtifactType {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return contracts.ArtifactMetadata
	}
	for typ, dir := range typeDir {
		if dir == parts[1] {
			return typ
		}
	}
	return contracts.ArtifactMetadata
}
