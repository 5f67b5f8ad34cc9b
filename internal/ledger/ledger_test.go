package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// fakeStore is a minimal in-memory contracts.ProjectStore exercising only
// the artifact-related methods the ledger calls.
type fakeStore struct {
	mu   sync.Mutex
	refs map[contracts.ArtifactID]contracts.ArtifactRef
	seq  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{refs: make(map[contracts.ArtifactID]contracts.ArtifactRef)}
}

func (s *fakeStore) CreateProject(ctx context.Context, p contracts.Project) (contracts.Project, error) {
	return p, nil
}
func (s *fakeStore) GetProject(ctx context.Context, id contracts.ProjectID) (contracts.Project, error) {
	return contracts.Project{}, nil
}
func (s *fakeStore) ListProjects(ctx context.Context, filter contracts.ProjectFilter, limit, offset int) ([]contracts.Project, error) {
	return nil, nil
}
func (s *fakeStore) UpdateProjectStatus(ctx context.Context, id contracts.ProjectID, newStatus contracts.ProjectStatus) error {
	return nil
}
func (s *fakeStore) CreateStageRecords(ctx context.Context, projectID contracts.ProjectID, defs []contracts.StageDef) error {
	return nil
}
func (s *fakeStore) GetStageRecord(ctx context.Context, projectID contracts.ProjectID, name contracts.StageName) (contracts.StageRecord, error) {
	return contracts.StageRecord{}, nil
}
func (s *fakeStore) ListStageRecords(ctx context.Context, projectID contracts.ProjectID) ([]contracts.StageRecord, error) {
	return nil, nil
}
func (s *fakeStore) UpdateStageStatus(ctx context.Context, projectID contracts.ProjectID, name contracts.StageName, newStatus contracts.StageStatus, opts contracts.StageUpdateOpts) error {
	return nil
}

func (s *fakeStore) RegisterArtifact(ctx context.Context, ref contracts.ArtifactRef) (contracts.ArtifactID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := contracts.ArtifactID(itoa(s.seq))
	ref.ID = id
	s.refs[id] = ref
	return id, nil
}

func (s *fakeStore) QueryArtifacts(ctx context.Context, projectID contracts.ProjectID, filter contracts.ArtifactFilter) ([]contracts.ArtifactRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []contracts.ArtifactRef
	for _, r := range s.refs {
		if r.ProjectID == projectID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteArtifact(ctx context.Context, id contracts.ArtifactID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refs, id)
	return nil
}

func (s *fakeStore) RecordApiUsage(ctx context.Context, rec contracts.ApiUsageRecord) error { return nil }
func (s *fakeStore) RecordStat(ctx context.Context, stat contracts.StatCounter) error       { return nil }
func (s *fakeStore) GetSystemConfig(ctx context.Context, key string) (contracts.SystemConfig, error) {
	return contracts.SystemConfig{}, nil
}
func (s *fakeStore) SetSystemConfig(ctx context.Context, cfg contracts.SystemConfig) error { return nil }
func (s *fakeStore) Migrate(ctx context.Context) error                                    { return nil }
func (s *fakeStore) Backup(ctx context.Context, path string) error                        { return nil }
func (s *fakeStore) HealthCheck(ctx context.Context) contracts.HealthStatus {
	return contracts.HealthStatus{Healthy: true}
}
func (s *fakeStore) Close() error { return nil }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestEnsureProjectLayout(t *testing.T) {
	root := t.TempDir()
	l := New(root, newFakeStore(), 0)

	require.NoError(t, l.EnsureProjectLayout("proj1"))
	for _, dir := range []string{"files/audio", "files/video", "logs", "cache", "checkpoints"} {
		_, err := os.Stat(filepath.Join(root, "proj1", dir))
		require.NoErrorf(t, err, "expected %s to exist", dir)
	}
}

func TestResolvePath_RejectsTraversal(t *testing.T) {
	root := t.TempDir()
	l := New(root, newFakeStore(), 0)

	_, err := l.ResolvePath("proj1", "../../etc/passwd")
	require.True(t, errors.Is(err, contracts.ErrPathTraversal))

	_, err = l.ResolvePath("proj1", "files/audio/clip.wav")
	require.NoError(t, err)
}

func TestWriteFile_AtomicAndRegistered(t *testing.T) {
	root := t.TempDir()
	store := newFakeStore()
	l := New(root, store, 0)

	ref, err := l.WriteFile(context.Background(), "proj1", "files/audio/clip.wav", []byte("data"), contracts.WriteOpts{
		StageName: "fetch",
		Type:      contracts.ArtifactAudio,
	})
	require.NoError(t, err)
	require.NotEmpty(t, ref.ID)

	data, err := os.ReadFile(filepath.Join(root, "proj1", "files/audio/clip.wav"))
	require.NoError(t, err)
	require.Equal(t, "data", string(data))

	refs, err := store.QueryArtifacts(context.Background(), "proj1", contracts.ArtifactFilter{})
	require.NoError(t, err)
	require.Len(t, refs, 1)
}

func TestWriteFile_QuotaExceeded(t *testing.T) {
	root := t.TempDir()
	l := New(root, newFakeStore(), 5)

	_, err := l.WriteFile(context.Background(), "proj1", "files/audio/clip.wav", []byte("more than five bytes"), contracts.WriteOpts{Type: contracts.ArtifactAudio})
	require.True(t, errors.Is(err, contracts.ErrQuota))
}

func TestCleanupTemporary_RemovesOldTemporaryArtifacts(t *testing.T) {
	root := t.TempDir()
	store := newFakeStore()
	l := New(root, store, 0)

	_, err := l.WriteFile(context.Background(), "proj1", "files/cache/tmp.bin", []byte("x"), contracts.WriteOpts{
		Type:        contracts.ArtifactMetadata,
		IsTemporary: true,
	})
	require.NoError(t, err)

	removed, err := l.CleanupTemporary(context.Background(), "proj1", 0)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
}
