package contracts

import "time"

// Project is the aggregate root for a single media-generation job.
type Project struct {
	ID                ProjectID
	Name              string
	Theme             string
	TargetLengthMin   int
	Status            ProjectStatus
	ConfigJSON        map[string]interface{}
	EstimatedDuration time.Duration
	ActualDuration    time.Duration
	ExternalID        string
	ExternalURL       string
	CreatedAt         Timestamp
	UpdatedAt         Timestamp
}

// StageRecord is one row per (Project, stage name).
type StageRecord struct {
	ProjectID     ProjectID
	StageName     StageName
	Ordinal       int
	Status        StageStatus
	InputParams   map[string]interface{}
	OutputSummary map[string]interface{}
	ErrorMessage  string
	RetryCount    int
	StartedAt     *Timestamp
	CompletedAt   *Timestamp
	ElapsedSec    float64
}

// ArtifactType is the logical kind of an artifact.
type ArtifactType string

const (
	ArtifactAudio    ArtifactType = "audio"
	ArtifactVideo    ArtifactType = "video"
	ArtifactImage    ArtifactType = "image"
	ArtifactScript   ArtifactType = "script"
	ArtifactSubtitle ArtifactType = "subtitle"
	ArtifactMetadata ArtifactType = "metadata"
)

// ArtifactCategory classifies an artifact's role in the pipeline.
type ArtifactCategory string

const (
	CategoryInput        ArtifactCategory = "input"
	CategoryOutput       ArtifactCategory = "output"
	CategoryIntermediate ArtifactCategory = "intermediate"
	CategoryFinal        ArtifactCategory = "final"
)

// ArtifactRef is an entry in the file ledger.
type ArtifactRef struct {
	ID          ArtifactID
	ProjectID   ProjectID
	StageName   StageName // empty if not attributed to a stage
	Type        ArtifactType
	Category    ArtifactCategory
	RelPath     string
	FileName    string
	SizeBytes   int64
	CreatedAt   Timestamp
	Metadata    map[string]interface{}
	IsTemporary bool
}

// StatCounter is a numeric metric keyed by (project, stage, name).
type StatCounter struct {
	ProjectID  ProjectID
	StageName  StageName
	Name       string
	Value      float64
	Unit       string
	RecordedAt Timestamp
}

// ApiUsageRecord is a single outbound provider API call.
type ApiUsageRecord struct {
	ID             int64
	ProjectID      *ProjectID // nil once the owning project is deleted
	StageName      StageName
	Provider       string
	Endpoint       string
	Timestamp      Timestamp
	TokensInput    TokenCount
	TokensOutput   TokenCount
	EstimatedCost  float64
	ResponseTimeMs int64
	StatusCode     int
}

// SystemConfigValueType is the declared type of a SystemConfig value.
type SystemConfigValueType string

const (
	ConfigString  SystemConfigValueType = "string"
	ConfigInteger SystemConfigValueType = "integer"
	ConfigBoolean SystemConfigValueType = "boolean"
	ConfigJSON    SystemConfigValueType = "json"
)

// SystemConfig is a process-wide typed key/value setting.
type SystemConfig struct {
	Key       string
	Value     string
	ValueType SystemConfigValueType
	UpdatedAt Timestamp
	UpdatedBy string
}

// Checkpoint is the normative JSON snapshot of a Project at a moment in
// time (§6.4).
type Checkpoint struct {
	FormatVersion int           `json:"format_version"`
	Sequence      uint64        `json:"sequence"`
	Timestamp     time.Time     `json:"timestamp"`
	Project       Project       `json:"project"`
	Stages        []StageRecord `json:"stages"`
	Artifacts     []ArtifactRef `json:"artifacts"`
	Checksum      string        `json:"checksum"`
}

// FailurePolicy controls what happens to a stage's dependents when it
// exhausts its retries.
type FailurePolicy string

const (
	FailStop        FailurePolicy = "stop"           // default: fails the whole workflow
	SkipDependents  FailurePolicy = "skip_dependents" // mark dependents Skipped
)

// StageDef is one node of a registered workflow (planner input, §4.3).
type StageDef struct {
	Name               StageName
	Dependencies       []StageName
	Priority           int
	Timeout            time.Duration
	RequiredResources  map[ResourceName]int
	EstimatedDuration  time.Duration
	RetryCount         int
	CanSkip            bool
	FailurePolicy      FailurePolicy
}

// Phase is a set of stage names the planner determined can run concurrently.
type Phase struct {
	Stages []StageName // ordered by priority desc, then lexicographic name
}

// ExecutionPlan is the ordered list of phases produced by the planner.
type ExecutionPlan struct {
	WorkflowName WorkflowName
	Phases       []Phase
	stageDefs    map[StageName]StageDef
}

// StageDef looks up the definition for a stage named in the plan.
func (p *ExecutionPlan) StageDef(name StageName) (StageDef, bool) {
	d, ok := p.stageDefs[name]
	return d, ok
}

// SetStageDefs attaches the resolved StageDef for every stage in the plan.
// Called once by the Planner after layering.
func (p *ExecutionPlan) SetStageDefs(defs map[StageName]StageDef) {
	p.stageDefs = defs
}

// ErrorKind classifies a stage or engine failure per the §7 taxonomy.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindDependency  ErrorKind = "dependency"
	KindResource    ErrorKind = "resource"
	KindTimeout     ErrorKind = "timeout"
	KindExecution   ErrorKind = "execution"
	KindStore       ErrorKind = "store"
	KindFilesystem  ErrorKind = "filesystem"
	KindCancelled   ErrorKind = "cancelled"
	KindIntegrity   ErrorKind = "integrity"
)

// Severity is the severity a stage processor attaches to an ExecutionError.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RecoveryAction is the recovery action a stage processor requests for an
// ExecutionError.
type RecoveryAction string

const (
	RecoveryRetry  RecoveryAction = "retry"
	RecoverySkip   RecoveryAction = "skip"
	RecoveryAbort  RecoveryAction = "abort"
	RecoveryManual RecoveryAction = "manual"
)

// StageResultStatus is the tag of the StageResult sum type.
type StageResultStatus string

const (
	ResultSuccess   StageResultStatus = "success"
	ResultFailure   StageResultStatus = "failure"
	ResultSkipped   StageResultStatus = "skipped"
	ResultCancelled StageResultStatus = "cancelled"
)

// StageResult is the tagged sum a StageProcessor returns: success | failure
// | skipped | cancelled. The engine only ever switches on Status; it never
// does structural introspection beyond that tag.
type StageResult struct {
	Status StageResultStatus

	// populated when Status == ResultSuccess
	OutputSummary map[string]interface{}
	Metadata      map[string]interface{}

	// populated when Status == ResultFailure
	Kind      ErrorKind
	Message   string
	Details   map[string]interface{}
	Severity  Severity
	Recovery  RecoveryAction
}

// Succeeded builds a success StageResult.
func Succeeded(outputSummary map[string]interface{}) StageResult {
	return StageResult{Status: ResultSuccess, OutputSummary: outputSummary}
}

// Failed builds a failure StageResult.
func Failed(kind ErrorKind, message string, severity Severity, recovery RecoveryAction) StageResult {
	return StageResult{Status: ResultFailure, Kind: kind, Message: message, Severity: severity, Recovery: recovery}
}

// ExecutionState is the progress snapshot emitted to the caller's progress
// callback (§4.5).
type ExecutionState struct {
	ProjectID           ProjectID
	WorkflowName        WorkflowName
	CountsByStatus       map[StageStatus]int
	Total               int
	CompletedFraction   float64
	EstimatedRemaining  time.Duration
	LastTransition      StageName
	UpdatedAt           Timestamp
}

// ExecutionResult is the final, user-visible outcome of Execute (§7).
type ExecutionResult struct {
	ProjectID      ProjectID
	Status         ProjectStatus
	StageStatuses  map[StageName]StageStatus
	StageErrors    map[StageName]string
	Elapsed        time.Duration
	SuccessRate    float64
	FirstFatalError string
}
