package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/yukkuri-system/workflow-core/contracts"
)

var sortableIDPattern = regexp.MustCompile(`^\d{8}_\d{3,}$`)

// matchesScheme reports whether id is well-formed for the store's
// configured project-ID scheme (§9 Open Question 1: a deployment picks one
// scheme and rejects the other).
func (s *Store) matchesScheme(id contracts.ProjectID) bool {
	switch s.scheme {
	case contracts.SchemeUUID:
		_, err := uuid.Parse(string(id))
		return err == nil
	case contracts.SchemeSortable:
		return sortableIDPattern.MatchString(string(id))
	default:
		return true
	}
}

// NewProjectID generates a project ID matching the store's configured
// scheme.
func (s *Store) NewProjectID(ctx context.Context, tx *sql.Tx) (contracts.ProjectID, error) {
	switch s.scheme {
	case contracts.SchemeUUID:
		return contracts.ProjectID(uuid.NewString()), nil
	default:
		day := time.Now().Format("20060102")
		var count int
		row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE id LIKE ?`, day+"_%")
		if err := row.Scan(&count); err != nil {
			return "", fmt.Errorf("sequence lookup: %w", err)
		}
		return contracts.ProjectID(fmt.Sprintf("%s_%03d", day, count+1)), nil
	}
}

// NewArtifactID generates an artifact ID (§9: always uuid.v4, regardless of
// the project-ID scheme in effect).
func NewArtifactID() contracts.ArtifactID {
	return contracts.ArtifactID(uuid.NewString())
}
