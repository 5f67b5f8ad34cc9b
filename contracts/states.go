package contracts

// ProjectStatus represents the lifecycle status of a Project.
type ProjectStatus int

const (
	ProjectInitialized ProjectStatus = iota
	ProjectProcessing
	ProjectCompleted
	ProjectFailed
	ProjectCancelled
)

func (s ProjectStatus) String() string {
	switch s {
	case ProjectInitialized:
		return "initialized"
	case ProjectProcessing:
		return "processing"
	case ProjectCompleted:
		return "completed"
	case ProjectFailed:
		return "failed"
	case ProjectCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseProjectStatus parses the canonical string form back into a ProjectStatus.
func ParseProjectStatus(s string) (ProjectStatus, bool) {
	switch s {
	case "initialized":
		return ProjectInitialized, true
	case "processing":
		return ProjectProcessing, true
	case "completed":
		return ProjectCompleted, true
	case "failed":
		return ProjectFailed, true
	case "cancelled":
		return ProjectCancelled, true
	default:
		return 0, false
	}
}

// projectTransitions enumerates the legal Project status edges (§4.5, §9 Q2:
// the initialized -> completed shortcut some source modules used is not
// preserved here).
var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectInitialized: {ProjectProcessing, ProjectCancelled, ProjectFailed},
	ProjectProcessing:  {ProjectCompleted, ProjectFailed, ProjectCancelled},
	ProjectCompleted:   {},
	ProjectFailed:      {ProjectProcessing}, // resume re-drives
	ProjectCancelled:   {},
}

// IsValidProjectTransition reports whether from -> to is a legal edge.
func IsValidProjectTransition(from, to ProjectStatus) bool {
	for _, s := range projectTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StageStatus represents the status of a single StageRecord.
type StageStatus int

const (
	StagePending StageStatus = iota
	StageRunning
	StageCompleted
	StageFailed
	StageSkipped
	StageCancelled
)

func (s StageStatus) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageRunning:
		return "running"
	case StageCompleted:
		return "completed"
	case StageFailed:
		return "failed"
	case StageSkipped:
		return "skipped"
	case StageCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseStageStatus parses the canonical string form back into a StageStatus.
func ParseStageStatus(s string) (StageStatus, bool) {
	switch s {
	case "pending":
		return StagePending, true
	case "running":
		return StageRunning, true
	case "completed":
		return StageCompleted, true
	case "failed":
		return StageFailed, true
	case "skipped":
		return StageSkipped, true
	case "cancelled":
		return StageCancelled, true
	default:
		return 0, false
	}
}

// stageTransitions enumerates the legal StageRecord status edges per the
// state machine in §4.5: pending -> running -> completed, running -> failed
// -> (retry) running or (give up) failed, pending -> skipped, and pending or
// running -> cancelled.
var stageTransitions = map[StageStatus][]StageStatus{
	StagePending:   {StageRunning, StageSkipped, StageCancelled},
	StageRunning:   {StageCompleted, StageFailed, StageCancelled},
	StageCompleted: {},
	StageFailed:    {StageRunning}, // retry
	StageSkipped:   {},
	StageCancelled: {},
}

// IsValidStageTransition reports whether from -> to is a legal edge.
func IsValidStageTransition(from, to StageStatus) bool {
	for _, s := range stageTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalStageStatus reports whether a status admits no further transitions.
func IsTerminalStageStatus(s StageStatus) bool {
	return s == StageCompleted || s == StageSkipped || s == StageCancelled ||
		(s == StageFailed) // terminal unless a retry transition is attempted explicitly
}
