package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// CreateProject atomically inserts the project row. It is idempotent on
// identical input: a second call with the same ID returns the existing
// project rather than erroring, per §8's idempotence law.
func (s *Store) CreateProject(ctx context.Context, p contracts.Project) (contracts.Project, error) {
	var result contracts.Project
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		id := p.ID
		if id == "" {
			generated, err := s.NewProjectID(ctx, tx)
			if err != nil {
				return err
			}
			id = generated
		} else if !s.matchesScheme(id) {
			return &contracts.ValidationError{Field: "id", Message: fmt.Sprintf("project id %q does not match configured scheme %s", id, s.scheme)}
		}

		if existing, err := getProjectTx(ctx, tx, id); err == nil {
			result = existing
			return nil
		}

		if p.Name == "" {
			return &contracts.ValidationError{Field: "name", Message: "name is required"}
		}

		now := contracts.Now()
		status := p.Status
		cfg, err := json.Marshal(orEmptyMap(p.ConfigJSON))
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO projects(id, name, theme, target_length_minutes, status, config_json,
				estimated_duration, actual_duration, external_id, external_url, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, p.Name, p.Theme, p.TargetLengthMin, status.String(), string(cfg),
			int64(p.EstimatedDuration.Seconds()), int64(p.ActualDuration.Seconds()),
			p.ExternalID, p.ExternalURL, now, now)
		if err != nil {
			return mapConstraintErr("create_project", err)
		}

		result = p
		result.ID = id
		result.Status = status
		result.CreatedAt = now
		result.UpdatedAt = now
		return nil
	})
	return result, err
}

// GetProject is a read-only lookup.
func (s *Store) GetProject(ctx context.Context, id contracts.ProjectID) (contracts.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, theme, target_length_minutes, status, config_json,
			estimated_duration, actual_duration, external_id, external_url, created_at, updated_at
		FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

func getProjectTx(ctx context.Context, tx *sql.Tx, id contracts.ProjectID) (contracts.Project, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, name, theme, target_length_minutes, status, config_json,
			estimated_duration, actual_duration, external_id, external_url, created_at, updated_at
		FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(row rowScanner) (contracts.Project, error) {
	var p contracts.Project
	var statusStr, cfgStr string
	var estSec, actSec int64
	if err := row.Scan(&p.ID, &p.Name, &p.Theme, &p.TargetLengthMin, &statusStr, &cfgStr,
		&estSec, &actSec, &p.ExternalID, &p.ExternalURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, contracts.ErrProjectNotFound
		}
		return p, &contracts.StoreError{Op: "get_project", Cause: err}
	}
	status, ok := contracts.ParseProjectStatus(statusStr)
	if !ok {
		return p, &contracts.IntegrityError{ProjectID: p.ID, Reason: "unknown status " + statusStr}
	}
	p.Status = status
	_ = json.Unmarshal([]byte(cfgStr), &p.ConfigJSON)
	p.EstimatedDuration = secToDuration(estSec)
	p.ActualDuration = secToDuration(actSec)
	return p, nil
}

// ListProjects returns projects optionally filtered by status.
func (s *Store) ListProjects(ctx context.Context, filter contracts.ProjectFilter, limit, offset int) ([]contracts.Project, error) {
	query := `SELECT id, name, theme, target_length_minutes, status, config_json,
		estimated_duration, actual_duration, external_id, external_url, created_at, updated_at
		FROM projects`
	args := []interface{}{}
	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, filter.Status.String())
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &contracts.StoreError{Op: "list_projects", Cause: err}
	}
	defer rows.Close()

	var out []contracts.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProjectStatus transitions a project's status; legal only per the
// state machine in contracts.IsValidProjectTransition.
func (s *Store) UpdateProjectStatus(ctx context.Context, id contracts.ProjectID, newStatus contracts.ProjectStatus) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getProjectTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status == newStatus {
			return nil
		}
		if !contracts.IsValidProjectTransition(current.Status, newStatus) {
			return &contracts.ValidationError{Field: "status", Message: fmt.Sprintf("cannot transition project %s from %s to %s", id, current.Status, newStatus)}
		}
		_, err = tx.ExecContext(ctx, `UPDATE projects SET status = ?, updated_at = ? WHERE id = ?`,
			newStatus.String(), contracts.Now(), id)
		if err != nil {
			return &contracts.StoreError{Op: "update_project_status", Cause: err}
		}
		return nil
	})
}

func orEmptyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func secToDuration(sec int64) time.Duration {
	return time.Duration(sec) * time.Second
}
