package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"openelis-alert/internal/models"

	"go.uber.org/zap"
)

// PostgresThresholdsRepository 冷库阈值仓库（PostgreSQL）
type PostgresThresholdsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresThresholdsRepository(db *sql.DB, logger *zap.Logger) *PostgresThresholdsRepository {
	return &PostgresThresholdsRepository{
		db:     db,
		logger: logger,
	}
}

var _ ThresholdsRepository = (*PostgresThresholdsRepository)(nil)

// GetFreezer 获取冷库基础阈值
func (r *PostgresThresholdsRepository) GetFreezer(ctx context.Context, freezerID int64) (*models.Freezer, error) {
	query := `
		SELECT
			id,
			name,
			target_temperature,
			warning_threshold,
			critical_threshold,
			active
		FROM freezer
		WHERE id = $1
	`
	var f models.Freezer
	var target, warning, critical sql.NullFloat64
	err := r.db.QueryRowContext(ctx, query, freezerID).Scan(
		&f.ID,
		&f.Name,
		&target,
		&warning,
		&critical,
		&f.Active,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("freezer %d: %w", freezerID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get freezer: %w", err)
	}
	f.TargetTemperature = nullFloat(target)
	f.WarningThreshold = nullFloat(warning)
	f.CriticalThreshold = nullFloat(critical)
	return &f, nil
}

// GetActiveProfile at 时刻生效的阈值模板（effective_start <= at < effective_end）
func (r *PostgresThresholdsRepository) GetActiveProfile(ctx context.Context, freezerID int64, at time.Time) (*models.ThresholdProfile, error) {
	query := `
		SELECT
			tp.id,
			tp.name,
			tp.warning_min,
			tp.warning_max,
			tp.critical_min,
			tp.critical_max,
			tp.humidity_warning_min,
			tp.humidity_warning_max,
			tp.humidity_critical_min,
			tp.humidity_critical_max
		FROM freezer_threshold_profile ftp
		JOIN threshold_profile tp ON tp.id = ftp.threshold_profile_id
		WHERE ftp.freezer_id = $1
		  AND ftp.effective_start <= $2
		  AND (ftp.effective_end IS NULL OR ftp.effective_end > $2)
		ORDER BY ftp.effective_start DESC
		LIMIT 1
	`
	var p models.ThresholdProfile
	var warnMin, warnMax, critMin, critMax sql.NullFloat64
	var humWarnMin, humWarnMax, humCritMin, humCritMax sql.NullFloat64
	err := r.db.QueryRowContext(ctx, query, freezerID, at).Scan(
		&p.ID,
		&p.Name,
		&warnMin,
		&warnMax,
		&critMin,
		&critMax,
		&humWarnMin,
		&humWarnMax,
		&humCritMin,
		&humCritMax,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("threshold profile for freezer %d: %w", freezerID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get active threshold profile: %w", err)
	}

	p.WarningMin = nullFloat(warnMin)
	p.WarningMax = nullFloat(warnMax)
	p.CriticalMin = nullFloat(critMin)
	p.CriticalMax = nullFloat(critMax)
	p.HumidityWarningMin = nullFloat(humWarnMin)
	p.HumidityWarningMax = nullFloat(humWarnMax)
	p.HumidityCriticalMin = nullFloat(humCritMin)
	p.HumidityCriticalMax = nullFloat(humCritMax)
	return &p, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
