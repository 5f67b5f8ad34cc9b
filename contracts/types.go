// Package contracts defines the shared types, state machines, error
// taxonomy and interfaces for the workflow orchestration core.
package contracts

import "time"

// ProjectID uniquely identifies a project (either YYYYMMDD_nnn or a UUIDv4,
// per the deployment's configured scheme; see ProjectIDScheme).
type ProjectID string

// StageName uniquely identifies a stage within a workflow.
type StageName string

// ArtifactID uniquely identifies an entry in the artifact ledger.
type ArtifactID string

// ResourceName identifies a named counted resource pool in the arbiter.
type ResourceName string

// WorkflowName identifies a registered ordered set of StageDefs.
type WorkflowName string

// Timestamp is a Unix timestamp in milliseconds.
type Timestamp int64

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return Timestamp(time.Now().UnixMilli())
}

// TokenCount represents a count of input/output tokens for an API call.
type TokenCount int64

// Currency is a currency code (e.g. "USD").
type Currency string

// ProjectIDScheme selects the generator used for new project IDs.
type ProjectIDScheme string

const (
	SchemeSortable ProjectIDScheme = "sortable" // YYYYMMDD_nnn
	SchemeUUID     ProjectIDScheme = "uuid"
)
