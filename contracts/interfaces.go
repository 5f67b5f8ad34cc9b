package contracts

import (
	"context"
	"time"
)

// =============================================================================
// Stage processor contract (§6.1)
// =============================================================================

// StageProcessor is caller-supplied code that implements one stage's work.
// Implementations registered against a stage name must be safe to invoke
// concurrently with other stages (but never concurrently with themselves
// for the same project+stage).
type StageProcessor interface {
	Execute(ctx StageContext, input map[string]interface{}) StageResult
}

// CanSkip is an optional capability a StageProcessor may implement to
// override a stage's static CanSkip flag at runtime. Discovered by
// interface assertion, not inheritance.
type CanSkip interface {
	CanSkip() bool
}

// EstimateDuration is an optional capability a StageProcessor may implement
// to override a stage's static EstimatedDuration at runtime.
type EstimateDuration interface {
	EstimateDuration() time.Duration
}

// StageContext is the value the engine passes into a stage processor. It
// carries project/stage identity, merged inputs, an artifact-write
// facility bound to (project, stage), and a cancellation signal. A stage
// processor never touches the store, ledger or arbiter directly, only
// through this narrow surface.
type StageContext interface {
	Context() context.Context
	ProjectID() ProjectID
	StageName() StageName

	// Input returns the caller-provided initial input merged with the
	// outputSummary of every transitively-depended stage that completed
	// successfully, keyed by stage name.
	Input() map[string]interface{}

	// RegisterArtifact writes bytes under the project root and records a
	// ledger entry attributed to this stage. It funnels through the
	// Artifact Ledger (C2).
	RegisterArtifact(relPath string, typ ArtifactType, category ArtifactCategory, data []byte, metadata map[string]interface{}, isTemporary bool) (ArtifactID, error)

	// Done reports cancellation of the whole execution. A stage processor
	// must poll it at every I/O boundary.
	Done() <-chan struct{}

	// RecordApiUsage lets a stage report an outbound API call for cost
	// accounting (feeds C1's ApiUsageRecord via internal/cost).
	RecordApiUsage(provider, endpoint string, tokensIn, tokensOut TokenCount, responseTimeMs int64, statusCode int)

	// MemoryGet/MemoryPut expose per-project ephemeral key/value storage
	// that outlives any single stage but not the engine process, for
	// stages that need to pass small pieces of state to later stages
	// outside the outputSummary channel.
	MemoryGet(key string) (string, bool)
	MemoryPut(key string, value string)
}

// =============================================================================
// C1: Project Store
// =============================================================================

// ArtifactFilter constrains QueryArtifacts by equality on the given
// (non-zero) fields.
type ArtifactFilter struct {
	StageName StageName
	Type      ArtifactType
	Category  ArtifactCategory
}

// ProjectFilter constrains ListProjects.
type ProjectFilter struct {
	Status *ProjectStatus
}

// HealthStatus is the result of ProjectStore.HealthCheck.
type HealthStatus struct {
	Healthy bool
	Reason  string
}

// ProjectStore provides a transactional key-value-plus-relations interface
// over Projects, StageRecords, ArtifactRefs, StatCounters, ApiUsageRecords
// and SystemConfigs (§4.1).
type ProjectStore interface {
	CreateProject(ctx context.Context, p Project) (Project, error)
	GetProject(ctx context.Context, id ProjectID) (Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter, limit, offset int) ([]Project, error)
	UpdateProjectStatus(ctx context.Context, id ProjectID, newStatus ProjectStatus) error

	CreateStageRecords(ctx context.Context, projectID ProjectID, defs []StageDef) error
	GetStageRecord(ctx context.Context, projectID ProjectID, name StageName) (StageRecord, error)
	ListStageRecords(ctx context.Context, projectID ProjectID) ([]StageRecord, error)
	UpdateStageStatus(ctx context.Context, projectID ProjectID, name StageName, newStatus StageStatus, opts StageUpdateOpts) error

	RegisterArtifact(ctx context.Context, ref ArtifactRef) (ArtifactID, error)
	QueryArtifacts(ctx context.Context, projectID ProjectID, filter ArtifactFilter) ([]ArtifactRef, error)
	DeleteArtifact(ctx context.Context, id ArtifactID) error

	RecordApiUsage(ctx context.Context, rec ApiUsageRecord) error
	RecordStat(ctx context.Context, stat StatCounter) error

	GetSystemConfig(ctx context.Context, key string) (SystemConfig, error)
	SetSystemConfig(ctx context.Context, cfg SystemConfig) error

	Migrate(ctx context.Context) error
	Backup(ctx context.Context, path string) error
	HealthCheck(ctx context.Context) HealthStatus

	Close() error
}

// StageUpdateOpts carries the optional fields of UpdateStageStatus.
type StageUpdateOpts struct {
	ErrorMessage *string
	RetryCount   *int
	Output       map[string]interface{}
	ElapsedSec   *float64
}

// =============================================================================
// C2: Artifact Ledger & File Layout
// =============================================================================

// ReconcileMode controls how Reconcile resolves disagreements.
type ReconcileMode string

const (
	ReportOnly ReconcileMode = "report_only"
	AutoRepair ReconcileMode = "auto_repair"
)

// ReconcileReport summarizes a ledger/disk comparison.
type ReconcileReport struct {
	Orphans       []string      // files on disk with no ledger entry
	Missing       []ArtifactID  // ledger rows with no file on disk
	SizeMismatch  []ArtifactID  // ledger rows whose recorded size disagrees with disk
	Repaired      bool
}

// WriteOpts carries the optional metadata for ArtifactLedger.WriteFile.
type WriteOpts struct {
	Category    ArtifactCategory
	Type        ArtifactType
	IsTemporary bool
	Metadata    map[string]interface{}
	StageName   StageName
}

// ArtifactLedger maps logical (stage, type, category) artifacts to on-disk
// paths and reconciles the ledger against the filesystem (§4.2).
type ArtifactLedger interface {
	ResolvePath(projectID ProjectID, relPath string) (string, error)
	WriteFile(ctx context.Context, projectID ProjectID, relPath string, data []byte, opts WriteOpts) (ArtifactRef, error)
	Reconcile(ctx context.Context, projectID ProjectID, mode ReconcileMode) (ReconcileReport, error)
	CleanupTemporary(ctx context.Context, projectID ProjectID, olderThan time.Duration) (int, error)
	EnsureProjectLayout(projectID ProjectID) error
}

// =============================================================================
// C3: Dependency Planner
// =============================================================================

// Planner builds an ExecutionPlan from a workflow's StageDefs (§4.3).
type Planner interface {
	Plan(workflowName WorkflowName, defs []StageDef) (*ExecutionPlan, error)
	EstimateTotalTime(plan *ExecutionPlan) time.Duration
	RequiredResources(plan *ExecutionPlan) []map[ResourceName]int
}

// =============================================================================
// C4: Resource Arbiter
// =============================================================================

// ResourceArbiter manages named counted semaphore pools with deadlock-
// avoidant acquisition (§4.4).
type ResourceArbiter interface {
	Acquire(ctx context.Context, stageID string, needed map[ResourceName]int) error
	Release(stageID string)
	Capacity(name ResourceName) (int, bool)
}

// =============================================================================
// C5: Scheduler / Engine
// =============================================================================

// ProgressFunc receives rate-limited ExecutionState snapshots.
type ProgressFunc func(ExecutionState)

// Engine drives a registered workflow to completion for a given project
// (§4.5). It composes C1–C4 and C6.
type Engine interface {
	RegisterWorkflow(name WorkflowName, defs []StageDef) error
	RegisterProcessor(stageName StageName, proc StageProcessor)

	Execute(ctx context.Context, workflowName WorkflowName, projectID ProjectID, initialInput map[string]interface{}, onProgress ProgressFunc) (*ExecutionResult, error)

	Cancel(projectID ProjectID, reason string)
	Pause(projectID ProjectID)
	Resume(projectID ProjectID)
}

// =============================================================================
// C6: Checkpoint & Recovery
// =============================================================================

// IntegrityReport is the result of Checkpointer.Verify.
type IntegrityReport struct {
	ChecksumOK bool
	Reconcile  ReconcileReport
	Errors     []string
}

// Checkpointer persists and restores Project snapshots for crash recovery
// (§4.6).
type Checkpointer interface {
	Save(ctx context.Context, projectID ProjectID) (Checkpoint, error)
	Load(path string) (Checkpoint, error)
	Validate(cp Checkpoint) error
	Verify(ctx context.Context, projectID ProjectID) (IntegrityReport, error)
	FindInterrupted(projectsRoot string) ([]ProjectID, error)
	Resume(ctx context.Context, projectID ProjectID) error
}
