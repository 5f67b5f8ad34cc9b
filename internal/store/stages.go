package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// CreateStageRecords bulk-inserts one row per StageDef in a single
// transaction. It is idempotent on repeat with identical input: rows that
// already exist for (projectID, stepName) are left untouched.
func (s *Store) CreateStageRecords(ctx context.Context, projectID contracts.ProjectID, defs []contracts.StageDef) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getProjectTx(ctx, tx, projectID); err != nil {
			return err
		}
		for ordinal, def := range defs {
			params, err := json.Marshal(map[string]interface{}{
				"dependencies":       def.Dependencies,
				"priority":           def.Priority,
				"timeout_seconds":    def.Timeout.Seconds(),
				"required_resources": def.RequiredResources,
				"estimated_duration": def.EstimatedDuration.Seconds(),
				"retry_count":        def.RetryCount,
				"can_skip":           def.CanSkip,
				"failure_policy":     def.FailurePolicy,
			})
			if err != nil {
				return fmt.Errorf("marshal stage def %s: %w", def.Name, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO workflow_steps(project_id, step_name, step_order, status, input_params_json)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(project_id, step_name) DO NOTHING`,
				projectID, def.Name, ordinal, contracts.StagePending.String(), string(params))
			if err != nil {
				return mapConstraintErr("create_stage_records", err)
			}
		}
		return nil
	})
}

// GetStageRecord is a read-only lookup.
func (s *Store) GetStageRecord(ctx context.Context, projectID contracts.ProjectID, name contracts.StageName) (contracts.StageRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT project_id, step_name, step_order, status, started_at, completed_at,
			input_params_json, output_summary_json, error_message, retry_count, processing_time_seconds
		FROM workflow_steps WHERE project_id = ? AND step_name = ?`, projectID, name)
	return scanStage(row)
}

// ListStageRecords returns all stage records for a project, ordered by
// their workflow ordinal position.
func (s *Store) ListStageRecords(ctx context.Context, projectID contracts.ProjectID) ([]contracts.StageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, step_name, step_order, status, started_at, completed_at,
			input_params_json, output_summary_json, error_message, retry_count, processing_time_seconds
		FROM workflow_steps WHERE project_id = ? ORDER BY step_order ASC`, projectID)
	if err != nil {
		return nil, &contracts.StoreError{Op: "list_stage_records", Cause: err}
	}
	defer rows.Close()

	var out []contracts.StageRecord
	for rows.Next() {
		rec, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanStage(row rowScanner) (contracts.StageRecord, error) {
	var rec contracts.StageRecord
	var statusStr, inputJSON, outputJSON string
	var startedAt, completedAt sql.NullInt64
	if err := row.Scan(&rec.ProjectID, &rec.StageName, &rec.Ordinal, &statusStr, &startedAt, &completedAt,
		&inputJSON, &outputJSON, &rec.ErrorMessage, &rec.RetryCount, &rec.ElapsedSec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, contracts.ErrStageNotFound
		}
		return rec, &contracts.StoreError{Op: "get_stage", Cause: err}
	}
	status, ok := contracts.ParseStageStatus(statusStr)
	if !ok {
		return rec, &contracts.IntegrityError{ProjectID: rec.ProjectID, Reason: "unknown stage status " + statusStr}
	}
	rec.Status = status
	_ = json.Unmarshal([]byte(inputJSON), &rec.InputParams)
	_ = json.Unmarshal([]byte(outputJSON), &rec.OutputSummary)
	if startedAt.Valid {
		t := contracts.Timestamp(startedAt.Int64)
		rec.StartedAt = &t
	}
	if completedAt.Valid {
		t := contracts.Timestamp(completedAt.Int64)
		rec.CompletedAt = &t
	}
	return rec, nil
}

// UpdateStageStatus transitions a StageRecord's status; legal only per
// contracts.IsValidStageTransition.
func (s *Store) UpdateStageStatus(ctx context.Context, projectID contracts.ProjectID, name contracts.StageName, newStatus contracts.StageStatus, opts contracts.StageUpdateOpts) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT project_id, step_name, step_order, status, started_at, completed_at,
				input_params_json, output_summary_json, error_message, retry_count, processing_time_seconds
			FROM workflow_steps WHERE project_id = ? AND step_name = ?`, projectID, name)
		current, err := scanStage(row)
		if err != nil {
			return err
		}
		if current.Status == newStatus {
			return nil
		}
		if !contracts.IsValidStageTransition(current.Status, newStatus) {
			return &contracts.ValidationError{Field: "status", Message: fmt.Sprintf("cannot transition stage %s/%s from %s to %s", projectID, name, current.Status, newStatus)}
		}

		now := contracts.Now()
		setClauses := []string{"status = ?"}
		args := []interface{}{newStatus.String()}

		if newStatus == contracts.StageRunning && current.Status != contracts.StageRunning {
			setClauses = append(setClauses, "started_at = ?")
			args = append(args, now)
		}
		if newStatus == contracts.StageCompleted || newStatus == contracts.StageFailed || newStatus == contracts.StageCancelled {
			setClauses = append(setClauses, "completed_at = ?")
			args = append(args, now)
		}
		if opts.ErrorMessage != nil {
			setClauses = append(setClauses, "error_message = ?")
			args = append(args, *opts.ErrorMessage)
		}
		if opts.RetryCount != nil {
			setClauses = append(setClauses, "retry_count = ?")
			args = append(args, *opts.RetryCount)
		}
		if opts.Output != nil {
			out, err := json.Marshal(opts.Output)
			if err != nil {
				return fmt.Errorf("marshal output summary: %w", err)
			}
			setClauses = append(setClauses, "output_summary_json = ?")
			args = append(args, string(out))
		}
		if opts.ElapsedSec != nil {
			setClauses = append(setClauses, "processing_time_seconds = ?")
			args = append(args, *opts.ElapsedSec)
		}

		query := "UPDATE workflow_steps SET "
		for i, c := range setClauses {
			if i > 0 {
				query += ", "
			}
			query += c
		}
		query += " WHERE project_id = ? AND step_name = ?"
		args = append(args, projectID, name)

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return mapConstraintErr("update_stage_status", err)
		}
		return nil
	})
}
