package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// GetSystemConfig reads a single typed key/value setting.
func (s *Store) GetSystemConfig(ctx context.Context, key string) (contracts.SystemConfig, error) {
	var cfg contracts.SystemConfig
	row := s.db.QueryRowContext(ctx, `SELECT config_key, config_value, config_type, updated_at, updated_by
		FROM system_config WHERE config_key = ?`, key)
	if err := row.Scan(&cfg.Key, &cfg.Value, &cfg.ValueType, &cfg.UpdatedAt, &cfg.UpdatedBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cfg, contracts.ErrInvalidInput
		}
		return cfg, &contracts.StoreError{Op: "get_system_config", Cause: err}
	}
	return cfg, nil
}

// SetSystemConfig upserts a key/value setting.
func (s *Store) SetSystemConfig(ctx context.Context, cfg contracts.SystemConfig) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := contracts.Now()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO system_config(config_key, config_value, config_type, updated_at, updated_by)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(config_key) DO UPDATE SET config_value = excluded.config_value,
				config_type = excluded.config_type, updated_at = excluded.updated_at, updated_by = excluded.updated_by`,
			cfg.Key, cfg.Value, cfg.ValueType, now, cfg.UpdatedBy)
		return mapConstraintErr("set_system_config", err)
	})
}
