// Package checkpoint implements Checkpoint & Recovery (C6): periodic
// crash-safe JSON snapshots of a project's store state, and the recovery
// operations that find and normalize work interrupted mid-stage.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yukkuri-system/workflow-core/contracts"
)

const formatVersion = 1

// sequenceDigits fixes the zero-padded width of a checkpoint file's
// sequence number component (§6.3: "NNN zero-padded sequence").
const sequenceDigits = 6

// Checkpointer is the contracts.Checkpointer implementation.
type Checkpointer struct {
	store     contracts.ProjectStore
	ledger    contracts.ArtifactLedger
	root      string
	retention int

	mu    sync.Mutex
	locks map[contracts.ProjectID]*sync.Mutex
}

// New creates a Checkpointer rooted at the same projects_root the Artifact
// Ledger uses. retention <= 0 falls back to the default of 10 (§6.5
// checkpoint_retention_count).
func New(store contracts.ProjectStore, ledger contracts.ArtifactLedger, projectsRoot string, retention int) *Checkpointer {
	if retention <= 0 {
		retention = 10
	}
	return &Checkpointer{
		store:     store,
		ledger:    ledger,
		root:      projectsRoot,
		retention: retention,
		locks:     make(map[contracts.ProjectID]*sync.Mutex),
	}
}

func (c *Checkpointer) projectLock(projectID contracts.ProjectID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lk, ok := c.locks[projectID]
	if !ok {
		lk = &sync.Mutex{}
		c.locks[projectID] = lk
	}
	return lk
}

func (c *Checkpointer) checkpointDir(projectID contracts.ProjectID) string {
	return filepath.Join(c.root, string(projectID), "checkpoints")
}

// Save gathers the project's current store state into a Checkpoint,
// computes its checksum, and writes it atomically (§4.6).
func (c *Checkpointer) Save(ctx context.Context, projectID contracts.ProjectID) (contracts.Checkpoint, error) {
	lk := c.projectLock(projectID)
	lk.Lock()
	defer lk.Unlock()

	var zero contracts.Checkpoint

	project, err := c.store.GetProject(ctx, projectID)
	if err != nil {
		return zero, err
	}
	stages, err := c.store.ListStageRecords(ctx, projectID)
	if err != nil {
		return zero, err
	}
	artifacts, err := c.store.QueryArtifacts(ctx, projectID, contracts.ArtifactFilter{})
	if err != nil {
		return zero, err
	}

	dir := c.checkpointDir(projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return zero, &contracts.FilesystemError{Op: "mkdir", Path: dir, Cause: err}
	}
	seq, err := nextSequence(dir)
	if err != nil {
		return zero, &contracts.FilesystemError{Op: "scan_checkpoints", Path: dir, Cause: err}
	}

	cp := contracts.Checkpoint{
		FormatVersion: formatVersion,
		Sequence:      seq,
		Timestamp:     time.Now().UTC(),
		Project:       project,
		Stages:        stages,
		Artifacts:     artifacts,
	}
	checksum, err := checksumOf(cp)
	if err != nil {
		return zero, &contracts.StoreError{Op: "checkpoint_checksum", Cause: err}
	}
	cp.Checksum = checksum

	data, err := json.Marshal(cp)
	if err != nil {
		return zero, &contracts.StoreError{Op: "checkpoint_marshal", Cause: err}
	}

	path := filepath.Join(dir, sequenceFileName(seq))
	if err := writeAtomic(path, data); err != nil {
		return zero, &contracts.FilesystemError{Op: "checkpoint_write", Path: path, Cause: err}
	}

	if err := c.applyRetention(dir); err != nil {
		log.Printf("[CHECKPOINT] event=retention_failed project=%s error=%v", projectID, err)
	}
	log.Printf("[CHECKPOINT] event=save project=%s sequence=%d stages=%d artifacts=%d", projectID, seq, len(stages), len(artifacts))
	return cp, nil
}

// Load reads and typechecks a checkpoint file from disk.
func (c *Checkpointer) Load(path string) (contracts.Checkpoint, error) {
	var cp contracts.Checkpoint
	data, err := os.ReadFile(path)
	if err != nil {
		return cp, &contracts.FilesystemError{Op: "checkpoint_read", Path: path, Cause: err}
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, &contracts.StoreError{Op: "checkpoint_unmarshal", Cause: err}
	}
	return cp, nil
}

// Validate typechecks a Checkpoint value and verifies its checksum.
func (c *Checkpointer) Validate(cp contracts.Checkpoint) error {
	if cp.FormatVersion != formatVersion {
		return &contracts.IntegrityError{ProjectID: cp.Project.ID, Reason: fmt.Sprintf("unsupported checkpoint format_version %d", cp.FormatVersion)}
	}
	if cp.Project.ID == "" {
		return &contracts.ValidationError{Field: "project.id", Message: "empty"}
	}
	want, err := checksumOf(contracts.Checkpoint{
		FormatVersion: cp.FormatVersion,
		Sequence:      cp.Sequence,
		Timestamp:     cp.Timestamp,
		Project:       cp.Project,
		Stages:        cp.Stages,
		Artifacts:     cp.Artifacts,
	})
	if err != nil {
		return &contracts.StoreError{Op: "checkpoint_checksum", Cause: err}
	}
	if want != cp.Checksum {
		return &contracts.IntegrityError{ProjectID: cp.Project.ID, Reason: "checksum mismatch"}
	}
	return nil
}

// Verify cross-checks the latest checkpoint's checksum against a store/
// ledger/disk reconciliation in ReportOnly mode (§4.6).
func (c *Checkpointer) Verify(ctx context.Context, projectID contracts.ProjectID) (contracts.IntegrityReport, error) {
	var report contracts.IntegrityReport

	dir := c.checkpointDir(projectID)
	path, err := latestCheckpointPath(dir)
	if err != nil {
		return report, &contracts.FilesystemError{Op: "find_latest_checkpoint", Path: dir, Cause: err}
	}
	if path == "" {
		report.Errors = append(report.Errors, "no checkpoint found")
	} else {
		cp, err := c.Load(path)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
		} else if err := c.Validate(cp); err != nil {
			report.Errors = append(report.Errors, err.Error())
		} else {
			report.ChecksumOK = true
		}
	}

	reconcile, err := c.ledger.Reconcile(ctx, projectID, contracts.ReportOnly)
	if err != nil {
		return report, err
	}
	report.Reconcile = reconcile
	return report, nil
}

// FindInterrupted scans every project under projectsRoot and reports those
// whose latest checkpoint shows a stage still in running status, a sign
// the scheduler died mid-stage.
func (c *Checkpointer) FindInterrupted(projectsRoot string) ([]contracts.ProjectID, error) {
	entries, err := os.ReadDir(projectsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &contracts.FilesystemError{Op: "scan_projects", Path: projectsRoot, Cause: err}
	}

	var interrupted []contracts.ProjectID
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		projectID := contracts.ProjectID(entry.Name())
		dir := filepath.Join(projectsRoot, entry.Name(), "checkpoints")
		path, err := latestCheckpointPath(dir)
		if err != nil || path == "" {
			continue
		}
		cp, err := c.Load(path)
		if err != nil {
			continue
		}
		for _, s := range cp.Stages {
			if s.Status == contracts.StageRunning {
				interrupted = append(interrupted, projectID)
				break
			}
		}
	}
	sort.Slice(interrupted, func(i, j int) bool { return interrupted[i] < interrupted[j] })
	return interrupted, nil
}

// Resume normalizes every running stage to failed with an Interrupted
// cause, so the scheduler's ordinary retry logic re-drives them on the
// next Execute call (§4.6).
func (c *Checkpointer) Resume(ctx context.Context, projectID contracts.ProjectID) error {
	records, err := c.store.ListStageRecords(ctx, projectID)
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.Status != contracts.StageRunning {
			continue
		}
		msg := "interrupted: scheduler did not observe a terminal transition"
		if err := c.store.UpdateStageStatus(ctx, projectID, r.StageName, contracts.StageFailed, contracts.StageUpdateOpts{ErrorMessage: &msg}); err != nil {
			return err
		}
		log.Printf("[CHECKPOINT] event=normalize_interrupted project=%s stage=%s", projectID, r.StageName)
	}
	return nil
}

// checksumOf computes the hex-SHA-256 of the canonical JSON encoding of a
// checkpoint's content fields (every field except Checksum itself).
// encoding/json sorts map keys, so this is deterministic given the same
// Go values.
func checksumOf(cp contracts.Checkpoint) (string, error) {
	cp.Checksum = ""
	data, err := json.Marshal(cp)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// writeAtomic writes data to a temp file in the same directory as path,
// fsyncs it, then renames it into place (§4.6: "write to
// checkpoints/NNN.json.tmp, fsync, rename").
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func sequenceFileName(seq uint64) string {
	return fmt.Sprintf("%0*d.json", sequenceDigits, seq)
}

// nextSequence scans dir for existing NNN.json files and returns the
// highest sequence number found, plus one.
func nextSequence(dir string) (uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var max uint64
	for _, e := range entries {
		seq, ok := parseSequenceFileName(e.Name())
		if ok && seq > max {
			max = seq
		}
	}
	return max + 1, nil
}

func parseSequenceFileName(name string) (uint64, bool) {
	if !strings.HasSuffix(name, ".json") {
		return 0, false
	}
	base := strings.TrimSuffix(name, ".json")
	n, err := strconv.ParseUint(base, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// latestCheckpointPath returns the path of the highest-sequence checkpoint
// file in dir, or "" if none exist.
func latestCheckpointPath(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	var best string
	var bestSeq uint64
	found := false
	for _, e := range entries {
		seq, ok := parseSequenceFileName(e.Name())
		if !ok {
			continue
		}
		if !found || seq > bestSeq {
			found = true
			bestSeq = seq
			best = e.Name()
		}
	}
	if !found {
		return "", nil
	}
	return filepath.Join(dir, best), nil
}

// applyRetention deletes all but the newest c.retention checkpoint files
// in dir (§6.5 checkpoint_retention_count).
func (c *Checkpointer) applyRetention(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var seqs []uint64
	for _, e := range entries {
		if seq, ok := parseSequenceFileName(e.Name()); ok {
			seqs = append(seqs, seq)
		}
	}
	if len(seqs) <= c.retention {
		return nil
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] > seqs[j] })
	for _, seq := range seqs[c.retention:] {
		path := filepath.Join(dir, sequenceFileName(seq))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
