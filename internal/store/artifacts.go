package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// RegisterArtifact inserts a ledger entry. An empty ref.ID is replaced by a
// fresh NewArtifactID (internal/ledger relies on this after an atomic
// rename); an ID already in the ledger is rejected with ErrExists.
func (s *Store) RegisterArtifact(ctx context.Context, ref contracts.ArtifactRef) (contracts.ArtifactID, error) {
	id := ref.ID
	if id == "" {
		id = NewArtifactID()
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		meta, err := json.Marshal(orEmptyMap(ref.Metadata))
		if err != nil {
			return fmt.Errorf("marshal artifact metadata: %w", err)
		}
		now := ref.CreatedAt
		if now == 0 {
			now = contracts.Now()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO project_files(id, project_id, step_name, file_type, file_category,
				file_path, file_name, file_size_bytes, created_at, metadata_json, is_temporary)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, ref.ProjectID, ref.StageName, ref.Type, ref.Category, ref.RelPath, ref.FileName,
			ref.SizeBytes, now, string(meta), boolToInt(ref.IsTemporary))
		return mapConstraintErr("register_artifact", err)
	})
	return id, err
}

// QueryArtifacts returns matching ArtifactRefs; filter supports equality on
// (stageName, type, category), any of which may be left zero to mean "any".
func (s *Store) QueryArtifacts(ctx context.Context, projectID contracts.ProjectID, filter contracts.ArtifactFilter) ([]contracts.ArtifactRef, error) {
	query := `SELECT id, project_id, step_name, file_type, file_category, file_path, file_name,
		file_size_bytes, created_at, metadata_json, is_temporary FROM project_files WHERE project_id = ?`
	args := []interface{}{projectID}
	if filter.StageName != "" {
		query += " AND step_name = ?"
		args = append(args, filter.StageName)
	}
	if filter.Type != "" {
		query += " AND file_type = ?"
		args = append(args, filter.Type)
	}
	if filter.Category != "" {
		query += " AND file_category = ?"
		args = append(args, filter.Category)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &contracts.StoreError{Op: "query_artifacts", Cause: err}
	}
	defer rows.Close()

	var out []contracts.ArtifactRef
	for rows.Next() {
		ref, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func scanArtifact(row rowScanner) (contracts.ArtifactRef, error) {
	var ref contracts.ArtifactRef
	var metaJSON string
	var isTemp int
	if err := row.Scan(&ref.ID, &ref.ProjectID, &ref.StageName, &ref.Type, &ref.Category,
		&ref.RelPath, &ref.FileName, &ref.SizeBytes, &ref.CreatedAt, &metaJSON, &isTemp); err != nil {
		return ref, &contracts.StoreError{Op: "scan_artifact", Cause: err}
	}
	_ = json.Unmarshal([]byte(metaJSON), &ref.Metadata)
	ref.IsTemporary = isTemp != 0
	return ref, nil
}

// DeleteArtifact removes a ledger row (used by Reconcile for missing files).
func (s *Store) DeleteArtifact(ctx context.Context, id contracts.ArtifactID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM project_files WHERE id = ?`, id)
		return mapConstraintErr("delete_artifact", err)
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
