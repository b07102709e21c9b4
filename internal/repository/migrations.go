package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// migrations 按顺序执行，只追加不修改
var migrations = []string{
	`CREATE SEQUENCE IF NOT EXISTS alert_seq;
	CREATE TABLE IF NOT EXISTS alert (
		id BIGINT PRIMARY KEY DEFAULT nextval('alert_seq'),
		alert_type VARCHAR(50) NOT NULL,
		alert_entity_type VARCHAR(100) NOT NULL,
		alert_entity_id BIGINT NOT NULL,
		severity VARCHAR(20) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'OPEN',
		message TEXT NOT NULL DEFAULT '',
		context_data JSONB NOT NULL DEFAULT '{}'::jsonb,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		duplicate_count INTEGER NOT NULL DEFAULT 0,
		last_duplicate_time TIMESTAMPTZ,
		acknowledged_at TIMESTAMPTZ,
		acknowledged_by BIGINT,
		resolved_at TIMESTAMPTZ,
		resolved_by BIGINT,
		resolution_notes TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_alert_entity ON alert(alert_entity_type, alert_entity_id);
	CREATE INDEX IF NOT EXISTS idx_alert_dedup ON alert(alert_entity_type, alert_entity_id, alert_type, status);
	CREATE INDEX IF NOT EXISTS idx_alert_status ON alert(status);
	CREATE INDEX IF NOT EXISTS idx_alert_start_time ON alert(start_time DESC);`,

	`CREATE TABLE IF NOT EXISTS notification_config_option (
		id BIGSERIAL PRIMARY KEY,
		notification_nature VARCHAR(50) NOT NULL,
		notification_method VARCHAR(20) NOT NULL,
		notification_person_type VARCHAR(20) NOT NULL DEFAULT 'PROVIDER',
		active BOOLEAN NOT NULL DEFAULT FALSE,
		additional_contacts TEXT,
		UNIQUE (notification_nature, notification_method, notification_person_type)
	);`,

	`CREATE TABLE IF NOT EXISTS site_information (
		name VARCHAR(100) PRIMARY KEY,
		value TEXT,
		value_type VARCHAR(20) NOT NULL DEFAULT 'text'
	);`,

	`CREATE TABLE IF NOT EXISTS freezer (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		target_temperature NUMERIC(6,2),
		warning_threshold NUMERIC(6,2),
		critical_threshold NUMERIC(6,2),
		active BOOLEAN NOT NULL DEFAULT TRUE
	);
	CREATE TABLE IF NOT EXISTS threshold_profile (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		warning_min NUMERIC(6,2),
		warning_max NUMERIC(6,2),
		critical_min NUMERIC(6,2),
		critical_max NUMERIC(6,2),
		humidity_warning_min NUMERIC(6,2),
		humidity_warning_max NUMERIC(6,2),
		humidity_critical_min NUMERIC(6,2),
		humidity_critical_max NUMERIC(6,2)
	);
	CREATE TABLE IF NOT EXISTS freezer_threshold_profile (
		id BIGSERIAL PRIMARY KEY,
		freezer_id BIGINT NOT NULL REFERENCES freezer(id),
		threshold_profile_id BIGINT NOT NULL REFERENCES threshold_profile(id),
		effective_start TIMESTAMPTZ NOT NULL,
		effective_end TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_ftp_freezer ON freezer_threshold_profile(freezer_id, effective_start DESC);`,
}

// RunMigrations 执行未应用的迁移，每个版本一个事务
func RunMigrations(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var currentVersion int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to apply migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", i+1, err)
		}
		logger.Info("Applied migration", zap.Int("version", i+1))
	}

	return nil
}

// SchemaVersion 当前迁移版本数
func SchemaVersion() int {
	return len(migrations)
}
