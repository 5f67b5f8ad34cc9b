package store

import (
	"context"
	"database/sql"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// RecordApiUsage inserts a single outbound API call record. ProjectID may
// be nil (billing-only rows survive project deletion per §3).
func (s *Store) RecordApiUsage(ctx context.Context, rec contracts.ApiUsageRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var projectID interface{}
		if rec.ProjectID != nil {
			projectID = *rec.ProjectID
		}
		ts := rec.Timestamp
		if ts == 0 {
			ts = contracts.Now()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO api_usage(project_id, step_name, api_provider, api_endpoint, request_timestamp,
				tokens_input, tokens_output, estimated_cost_usd, response_time_ms, status_code)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			projectID, rec.StageName, rec.Provider, rec.Endpoint, ts,
			rec.TokensInput, rec.TokensOutput, rec.EstimatedCost, rec.ResponseTimeMs, rec.StatusCode)
		return mapConstraintErr("record_api_usage", err)
	})
}

// RecordStat inserts a StatCounter row.
func (s *Store) RecordStat(ctx context.Context, stat contracts.StatCounter) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ts := stat.RecordedAt
		if ts == 0 {
			ts = contracts.Now()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO project_statistics(project_id, stage_name, stat_name, stat_value, stat_unit, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			stat.ProjectID, stat.StageName, stat.Name, stat.Value, stat.Unit, ts)
		return mapConstraintErr("record_stat", err)
	})
}
