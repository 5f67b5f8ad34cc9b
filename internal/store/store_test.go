package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yukkuri-system/workflow-core/contracts"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), path, contracts.SchemeSortable)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetProject(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.CreateProject(ctx, contracts.Project{Name: "demo", Theme: "space"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, contracts.ProjectInitialized, created.Status)

	got, err := s.GetProject(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "demo", got.Name)
	require.Equal(t, "space", got.Theme)
}

func TestGetProject_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetProject(context.Background(), "missing")
	require.True(t, errors.Is(err, contracts.ErrProjectNotFound))
}

func TestUpdateProjectStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.CreateProject(ctx, contracts.Project{Name: "demo"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateProjectStatus(ctx, created.ID, contracts.ProjectProcessing))

	got, err := s.GetProject(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, contracts.ProjectProcessing, got.Status)
}

func TestListProjects_FiltersByStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.CreateProject(ctx, contracts.Project{Name: "a"})
	require.NoError(t, err)
	_, err = s.CreateProject(ctx, contracts.Project{Name: "b"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateProjectStatus(ctx, a.ID, contracts.ProjectProcessing))
	require.NoError(t, s.UpdateProjectStatus(ctx, a.ID, contracts.ProjectCompleted))

	completed := contracts.ProjectCompleted
	list, err := s.ListProjects(ctx, contracts.ProjectFilter{Status: &completed}, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, a.ID, list[0].ID)
}

func TestStageRecords_CreateGetUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	project, err := s.CreateProject(ctx, contracts.Project{Name: "demo"})
	require.NoError(t, err)

	defs := []contracts.StageDef{{Name: "fetch"}, {Name: "publish", Dependencies: []contracts.StageName{"fetch"}}}
	require.NoError(t, s.CreateStageRecords(ctx, project.ID, defs))

	records, err := s.ListStageRecords(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)

	msg := "boom"
	require.NoError(t, s.UpdateStageStatus(ctx, project.ID, "fetch", contracts.StageRunning, contracts.StageUpdateOpts{}))
	require.NoError(t, s.UpdateStageStatus(ctx, project.ID, "fetch", contracts.StageFailed, contracts.StageUpdateOpts{ErrorMessage: &msg}))

	fetched, err := s.GetStageRecord(ctx, project.ID, "fetch")
	require.NoError(t, err)
	require.Equal(t, contracts.StageFailed, fetched.Status)
	require.Equal(t, "boom", fetched.ErrorMessage)
}

func TestGetStageRecord_NotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	project, err := s.CreateProject(ctx, contracts.Project{Name: "demo"})
	require.NoError(t, err)

	_, err = s.GetStageRecord(ctx, project.ID, "ghost")
	require.True(t, errors.Is(err, contracts.ErrStageNotFound))
}

func TestArtifacts_RegisterQueryDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	project, err := s.CreateProject(ctx, contracts.Project{Name: "demo"})
	require.NoError(t, err)

	id, err := s.RegisterArtifact(ctx, contracts.ArtifactRef{
		ProjectID: project.ID,
		StageName: "fetch",
		Type:      contracts.ArtifactAudio,
		Category:  contracts.CategoryOutput,
		RelPath:   "files/audio/clip.wav",
		FileName:  "clip.wav",
		SizeBytes: 1024,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	refs, err := s.QueryArtifacts(ctx, project.ID, contracts.ArtifactFilter{Type: contracts.ArtifactAudio})
	require.NoError(t, err)
	require.Len(t, refs, 1)

	require.NoError(t, s.DeleteArtifact(ctx, id))
	refs, err = s.QueryArtifacts(ctx, project.ID, contracts.ArtifactFilter{})
	require.NoError(t, err)
	require.Empty(t, refs)
}

func TestHealthCheck(t *testing.T) {
	s := openTestStore(t)
	health := s.HealthCheck(context.Background())
	require.True(t, health.Healthy)
}
