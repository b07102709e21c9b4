package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"openelis-alert/common/database"
	"openelis-alert/internal/models"

	"go.uber.org/zap"
)

const alertColumns = `
			id,
			alert_type,
			alert_entity_type,
			alert_entity_id,
			severity,
			status,
			message,
			context_data,
			start_time,
			end_time,
			duplicate_count,
			last_duplicate_time,
			acknowledged_at,
			acknowledged_by,
			resolved_at,
			resolved_by,
			resolution_notes`

// PostgresAlertsRepository 告警仓库（PostgreSQL）
type PostgresAlertsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAlertsRepository 创建告警仓库
func NewPostgresAlertsRepository(db *sql.DB, logger *zap.Logger) *PostgresAlertsRepository {
	return &PostgresAlertsRepository{
		db:     db,
		logger: logger,
	}
}

var _ AlertsRepository = (*PostgresAlertsRepository)(nil)

// CreateOrFold 在一个事务内完成去重：
// 1. pg_advisory_xact_lock(hashtext(去重键)) 串行化同键的并发创建（事务结束自动释放）
// 2. SELECT ... FOR UPDATE 读取候选告警
// 3. 命中则折叠（UPDATE），否则 INSERT ... RETURNING id
func (r *PostgresAlertsRepository) CreateOrFold(ctx context.Context, candidate *models.Alert, cutoff time.Time) (*models.Alert, bool, error) {
	if candidate == nil {
		return nil, false, fmt.Errorf("alert is required")
	}
	if err := candidate.Entity.Validate(); err != nil {
		return nil, false, err
	}

	key := candidate.DedupKey()
	var result *models.Alert
	var folded bool

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
			return fmt.Errorf("failed to acquire dedup lock: %w", err)
		}

		query := `
		SELECT` + alertColumns + `
		FROM alert
		WHERE alert_entity_type = $1
		  AND alert_entity_id = $2
		  AND alert_type = $3
		  AND status IN ('OPEN', 'ACKNOWLEDGED')
		  AND COALESCE(last_duplicate_time, start_time) > $4
		ORDER BY start_time DESC
		LIMIT 1
		FOR UPDATE
	`
		existing, err := scanAlert(tx.QueryRowContext(ctx, query,
			key.Entity.EntityType, key.Entity.EntityID, string(key.AlertType), cutoff))
		switch {
		case err == nil:
			updateQuery := `
			UPDATE alert
			SET duplicate_count = duplicate_count + 1,
			    last_duplicate_time = $2
			WHERE id = $1
		`
			if _, err := tx.ExecContext(ctx, updateQuery, existing.ID, candidate.StartTime); err != nil {
				return fmt.Errorf("failed to fold duplicate alert: %w", err)
			}
			existing.DuplicateCount++
			t := candidate.StartTime
			existing.LastDuplicateTime = &t
			result = existing
			folded = true
			return nil
		case err == sql.ErrNoRows:
			// 无可折叠告警，插入新告警
		default:
			return fmt.Errorf("failed to query duplicate alert: %w", err)
		}

		created := candidate.Clone()
		created.Status = models.StatusOpen
		created.DuplicateCount = 0
		created.LastDuplicateTime = nil
		if len(created.ContextData) == 0 {
			created.ContextData = json.RawMessage("{}")
		}

		insertQuery := `
		INSERT INTO alert (
			alert_type,
			alert_entity_type,
			alert_entity_id,
			severity,
			status,
			message,
			context_data,
			start_time,
			duplicate_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, 0)
		RETURNING id
	`
		if err := tx.QueryRowContext(ctx, insertQuery,
			string(created.AlertType),
			created.Entity.EntityType,
			created.Entity.EntityID,
			string(created.Severity),
			string(created.Status),
			created.Message,
			string(created.ContextData),
			created.StartTime,
		).Scan(&created.ID); err != nil {
			return fmt.Errorf("failed to insert alert: %w", err)
		}
		result = created
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	r.logger.Debug("Alert persisted",
		zap.Int64("alert_id", result.ID),
		zap.String("dedup_key", key.String()),
		zap.Bool("folded", folded),
	)
	return result, folded, nil
}

// GetAlert 根据 id 获取告警
func (r *PostgresAlertsRepository) GetAlert(ctx context.Context, id int64) (*models.Alert, error) {
	query := `
		SELECT` + alertColumns + `
		FROM alert
		WHERE id = $1
	`
	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("alert %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// TransitionAlert 条件更新：WHERE status = from，未命中返回 ErrConflict
func (r *PostgresAlertsRepository) TransitionAlert(ctx context.Context, alert *models.Alert, from models.AlertStatus) error {
	if alert == nil {
		return fmt.Errorf("alert is required")
	}

	query := `
		UPDATE alert
		SET status = $2,
		    acknowledged_at = $3,
		    acknowledged_by = $4,
		    resolved_at = $5,
		    resolved_by = $6,
		    resolution_notes = $7,
		    end_time = $8
		WHERE id = $1
		  AND status = $9
	`
	res, err := r.db.ExecContext(ctx, query,
		alert.ID,
		string(alert.Status),
		alert.AcknowledgedAt,
		alert.AcknowledgedBy,
		alert.ResolvedAt,
		alert.ResolvedBy,
		alert.ResolutionNotes,
		alert.EndTime,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("alert %d no longer %s: %w", alert.ID, from, ErrConflict)
	}
	return nil
}

// GetAlertsByEntity 获取实体的全部告警
func (r *PostgresAlertsRepository) GetAlertsByEntity(ctx context.Context, key models.EntityKey) ([]*models.Alert, error) {
	query := `
		SELECT` + alertColumns + `
		FROM alert
		WHERE alert_entity_type = $1
		  AND alert_entity_id = $2
		ORDER BY start_time DESC
	`
	return r.queryAlerts(ctx, query, key.EntityType, key.EntityID)
}

// GetAlertsByAlertType 按告警类型查询
func (r *PostgresAlertsRepository) GetAlertsByAlertType(ctx context.Context, alertType models.AlertType) ([]*models.Alert, error) {
	query := `
		SELECT` + alertColumns + `
		FROM alert
		WHERE alert_type = $1
		ORDER BY start_time DESC
	`
	return r.queryAlerts(ctx, query, string(alertType))
}

// GetAlertsByStatus 按状态查询
func (r *PostgresAlertsRepository) GetAlertsByStatus(ctx context.Context, status models.AlertStatus) ([]*models.Alert, error) {
	query := `
		SELECT` + alertColumns + `
		FROM alert
		WHERE status = $1
		ORDER BY start_time DESC
	`
	return r.queryAlerts(ctx, query, string(status))
}

// CountActiveAlertsForEntity 统计实体的 OPEN + ACKNOWLEDGED 告警数
func (r *PostgresAlertsRepository) CountActiveAlertsForEntity(ctx context.Context, key models.EntityKey) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM alert
		WHERE alert_entity_type = $1
		  AND alert_entity_id = $2
		  AND status IN ('OPEN', 'ACKNOWLEDGED')
	`
	var count int64
	if err := r.db.QueryRowContext(ctx, query, key.EntityType, key.EntityID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active alerts: %w", err)
	}
	return count, nil
}

func (r *PostgresAlertsRepository) queryAlerts(ctx context.Context, query string, args ...interface{}) ([]*models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*models.Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return alerts, nil
}

// rowScanner *sql.Row 与 *sql.Rows 的公共接口
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var alert models.Alert
	var alertType, severity, status string
	var contextData []byte
	var endTime, lastDuplicateTime, acknowledgedAt, resolvedAt sql.NullTime
	var acknowledgedBy, resolvedBy sql.NullInt64
	var resolutionNotes sql.NullString

	err := row.Scan(
		&alert.ID,
		&alertType,
		&alert.Entity.EntityType,
		&alert.Entity.EntityID,
		&severity,
		&status,
		&alert.Message,
		&contextData,
		&alert.StartTime,
		&endTime,
		&alert.DuplicateCount,
		&lastDuplicateTime,
		&acknowledgedAt,
		&acknowledgedBy,
		&resolvedAt,
		&resolvedBy,
		&resolutionNotes,
	)
	if err != nil {
		return nil, err
	}

	alert.AlertType = models.AlertType(alertType)
	alert.Severity = models.AlertSeverity(severity)
	alert.Status = models.AlertStatus(status)

	// 处理可空字段
	if endTime.Valid {
		alert.EndTime = &endTime.Time
	}
	if lastDuplicateTime.Valid {
		alert.LastDuplicateTime = &lastDuplicateTime.Time
	}
	if acknowledgedAt.Valid {
		alert.AcknowledgedAt = &acknowledgedAt.Time
	}
	if acknowledgedBy.Valid {
		alert.AcknowledgedBy = &acknowledgedBy.Int64
	}
	if resolvedAt.Valid {
		alert.ResolvedAt = &resolvedAt.Time
	}
	if resolvedBy.Valid {
		alert.ResolvedBy = &resolvedBy.Int64
	}
	if resolutionNotes.Valid {
		alert.ResolutionNotes = &resolutionNotes.String
	}

	// 处理 JSONB 字段
	if len(contextData) > 0 {
		alert.ContextData = json.RawMessage(contextData)
	} else {
		alert.ContextData = json.RawMessage("{}")
	}

	return &alert, nil
}
