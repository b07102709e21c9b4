package coldstorage

import (
	"context"
	"errors"
	"fmt"

	"openelis-alert/internal/models"
	"openelis-alert/internal/repository"

	"go.uber.org/zap"
)

// Monitor 冷库读数评估
type Monitor struct {
	thresholds repository.ThresholdsRepository
	alerts     *FreezerAlertService
	logger     *zap.Logger
}

func NewMonitor(thresholds repository.ThresholdsRepository, alerts *FreezerAlertService, logger *zap.Logger) *Monitor {
	return &Monitor{
		thresholds: thresholds,
		alerts:     alerts,
		logger:     logger,
	}
}

// ReadingResult 评估结果；Alert 为 nil 表示未越限
type ReadingResult struct {
	Status models.ReadingStatus
	Breach *Breach
	Alert  *models.Alert
}

// ProcessReading 评估读数：
// 1. 取读数时刻生效的阈值模板，按模板判断
// 2. 没有模板时按冷库 target ± 偏差判断
// 3. 越限则创建 FREEZER_TEMPERATURE 告警
func (m *Monitor) ProcessReading(ctx context.Context, reading models.FreezerReading) (*ReadingResult, error) {
	if reading.FreezerID <= 0 {
		return nil, fmt.Errorf("freezer_id is required")
	}

	profile, err := m.thresholds.GetActiveProfile(ctx, reading.FreezerID, reading.RecordedAt)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to resolve threshold profile: %w", err)
	}

	result := &ReadingResult{Status: EvaluateStatus(reading.Temperature, reading.Humidity, profile)}
	if reading.Temperature == nil {
		return result, nil
	}

	var breach Breach
	var breached bool
	if profile != nil {
		breach, breached = DetectBreach(*reading.Temperature, profile)
	} else {
		m.logger.Debug("No threshold profile for freezer, using target deviation",
			zap.Int64("freezer_id", reading.FreezerID),
		)
		freezer, err := m.thresholds.GetFreezer(ctx, reading.FreezerID)
		switch {
		case err == nil:
			breach, breached = DetectSimpleBreach(*reading.Temperature, freezer)
		case errors.Is(err, repository.ErrNotFound):
			m.logger.Warn("Reading for unknown freezer", zap.Int64("freezer_id", reading.FreezerID))
		default:
			return nil, fmt.Errorf("failed to load freezer: %w", err)
		}
	}
	if !breached {
		return result, nil
	}

	result.Breach = &breach
	alert, err := m.alerts.CreateFreezerTemperatureAlert(ctx, reading.FreezerID, breach.Temperature, breach.Threshold, breach.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to raise freezer alert: %w", err)
	}
	result.Alert = alert
	return result, nil
}
