package store

import (
	"strings"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// mapConstraintErr classifies a sqlite3 error as ErrExists / ErrIntegrity
// (constraint violations) versus an opaque StoreError (everything else).
func mapConstraintErr(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return contracts.ErrExists
	case strings.Contains(msg, "FOREIGN KEY constraint failed"),
		strings.Contains(msg, "NOT NULL constraint failed"),
		strings.Contains(msg, "CHECK constraint failed"):
		return &contracts.IntegrityError{Reason: msg}
	default:
		return &contracts.StoreError{Op: op, Cause: err}
	}
}
