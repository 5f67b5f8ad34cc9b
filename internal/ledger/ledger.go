// Package ledger implements the Artifact Ledger & File Layout (C2): it
// maps logical (stage, type, category) artifacts to on-disk paths beneath
// a per-project root, writes them atomically, and reconciles the ledger
// against the filesystem.
package ledger

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// typeDir maps an ArtifactType to its subdirectory under files/.
var typeDir = map[contracts.ArtifactType]string{
	contracts.ArtifactAudio:    "audio",
	contracts.ArtifactVideo:    "video",
	contracts.ArtifactImage:    "images",
	contracts.ArtifactScript:   "scripts",
	contracts.ArtifactSubtitle: "subtitles",
	contracts.ArtifactMetadata: "metadata",
}

var projectSubdirs = []string{"logs", "cache", "checkpoints"}

// Ledger is the sqlite-store-backed contracts.ArtifactLedger.
type Ledger struct {
	root       string
	store      contracts.ProjectStore
	quotaBytes int64 // 0 disables the quota check

	mu    sync.Mutex
	locks map[contracts.ProjectID]*sync.Mutex
}

// New creates a Ledger rooted at projectsRoot, backed by store. quotaBytes
// of 0 disables per-project quota enforcement.
func New(projectsRoot string, store contracts.ProjectStore, quotaBytes int64) *Ledger {
	return &Ledger{
		root:       projectsRoot,
		store:      store,
		quotaBytes: quotaBytes,
		locks:      make(map[contracts.ProjectID]*sync.Mutex),
	}
}

func (l *Ledger) projectLock(projectID contracts.ProjectID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[projectID]
	if !ok {
		lk = &sync.Mutex{}
		l.locks[projectID] = lk
	}
	return lk
}

func (l *Ledger) projectRoot(projectID contracts.ProjectID) string {
	return filepath.Join(l.root, string(projectID))
}

// EnsureProjectLayout creates the on-disk subtree for a project (§6.3).
func (l *Ledger) EnsureProjectLayout(projectID contracts.ProjectID) error {
	base := l.projectRoot(projectID)
	for _, dir := range typeDir {
		if err := os.MkdirAll(filepath.Join(base, "files", dir), 0o755); err != nil {
			return &contracts.FilesystemError{Op: "mkdir", Path: dir, Cause: err}
		}
	}
	for _, dir := range projectSubdirs {
		if err := os.MkdirAll(filepath.Join(base, dir), 0o755); err != nil {
			return &contracts.FilesystemError{Op: "mkdir", Path: dir, Cause: err}
		}
	}
	return nil
}

// ResolvePath resolves relPath against the project root, rejecting any
// path that, after lexical normalization, escapes it (§8 property 6).
func (l *Ledger) ResolvePath(projectID contracts.ProjectID, relPath string) (string, error) {
	base := l.projectRoot(projectID)
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", &contracts.FilesystemError{Op: "resolve", Path: relPath, Cause: err}
	}
	joined := filepath.Join(absBase, relPath)
	cleaned := filepath.Clean(joined)
	if cleaned != absBase && !strings.HasPrefix(cleaned, absBase+string(filepath.Separator)) {
		return "", contracts.ErrPathTraversal
	}
	return cleaned, nil
}

// WriteFile atomically writes data (write-to-temp then rename within the
// same directory) and registers the ledger entry. If registration fails
// the file is unlinked so the ledger and disk never disagree.
func (l *Ledger) WriteFile(ctx context.Context, projectID contracts.ProjectID, relPath string, data []byte, opts contracts.WriteOpts) (contracts.ArtifactRef, error) {
	lk := l.projectLock(projectID)
	lk.Lock()
	defer lk.Unlock()

	var zero contracts.ArtifactRef

	absPath, err := l.ResolvePath(projectID, relPath)
	if err != nil {
		return zero, err
	}

	if l.quotaBytes > 0 {
		used, err := l.usedBytes(projectID)
		if err != nil {
			return zero, err
		}
		if used+int64(len(data)) > l.quotaBytes {
			return zero, contracts.ErrQuota
		}
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return zero, &contracts.FilesystemError{Op: "mkdir", Path: relPath, Cause: err}
	}

	tmp := absPath + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return zero, &contracts.FilesystemError{Op: "write_temp", Path: relPath, Cause: err}
	}
	if err := os.Rename(tmp, absPath); err != nil {
		os.Remove(tmp)
		return zero, &contracts.FilesystemError{Op: "rename", Path: relPath, Cause: err}
	}

	ref := contracts.ArtifactRef{
		ProjectID:   projectID,
		StageName:   opts.StageName,
		Type:        opts.Type,
		Category:    opts.Category,
		RelPath:     relPath,
		FileName:    filepath.Base(relPath),
		SizeBytes:   int64(len(data)),
		CreatedAt:   contracts.Now(),
		Metadata:    opts.Metadata,
		IsTemporary: opts.IsTemporary,
	}
	id, err := l.store.RegisterArtifact(ctx, ref)
	if err != nil {
		os.Remove(absPath)
		return zero, err
	}
	ref.ID = id
	log.Printf("[LEDGER] event=write_file project=%s path=%s bytes=%d", projectID, relPath, len(data))
	return ref, nil
}

func (l *Ledger) usedBytes(projectID contracts.ProjectID) (int64, error) {
	refs, err := l.store.QueryArtifacts(context.Background(), projectID, contracts.ArtifactFilter{})
	if err != nil {
		return 0, err
	}
	var total int64
	for _, r := range refs {
		total += r.SizeBytes
	}
	return total, nil
}

// CleanupTemporary removes temporary artifacts older than the cutoff and
// their ledger rows. Idempotent: a second call with an unchanged cutoff
// finds nothing left to remove.
func (l *Ledger) CleanupTemporary(ctx context.Context, projectID contracts.ProjectID, olderThan time.Duration) (int, error) {
	lk := l.projectLock(projectID)
	lk.Lock()
	defer lk.Unlock()

	refs, err := l.store.QueryArtifacts(ctx, projectID, contracts.ArtifactFilter{})
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, ref := range refs {
		if !ref.IsTemporary {
			continue
		}
		if time.UnixMilli(int64(ref.CreatedAt)).After(cutoff) {
			continue
		}
		absPath, err := l.ResolvePath(projectID, ref.RelPath)
		if err == nil {
			os.Remove(absPath)
		}
		if err := l.store.DeleteArtifact(ctx, ref.ID); err != nil {
			return removed, err
		}
		removed++
	}
	log.Printf("[LEDGER] event=cleanup_temporary project=%s removed=%d", projectID, removed)
	return removed, nil
}
