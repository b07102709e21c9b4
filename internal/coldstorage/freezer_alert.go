package coldstorage

import (
	"context"
	"encoding/json"
	"fmt"

	"openelis-alert/internal/models"

	"go.uber.org/zap"
)

// EntityTypeFreezer 冷库告警的实体类型
const EntityTypeFreezer = "Freezer"

// AlertCreator 告警创建（service.AlertService 实现）
type AlertCreator interface {
	CreateAlert(
		ctx context.Context,
		alertType models.AlertType,
		entityType string,
		entityID int64,
		severity models.AlertSeverity,
		message string,
		contextData json.RawMessage,
	) (*models.Alert, error)
}

// FreezerAlertService 冷库温度告警
type FreezerAlertService struct {
	alerts AlertCreator
	logger *zap.Logger
}

func NewFreezerAlertService(alerts AlertCreator, logger *zap.Logger) *FreezerAlertService {
	return &FreezerAlertService{
		alerts: alerts,
		logger: logger,
	}
}

type freezerAlertContext struct {
	Temperature   float64       `json:"temperature"`
	Threshold     float64       `json:"threshold"`
	ThresholdType ThresholdType `json:"thresholdType"`
}

// CreateFreezerTemperatureAlert 创建 FREEZER_TEMPERATURE 告警（Freezer/<id>），级别由越限类型决定
func (s *FreezerAlertService) CreateFreezerTemperatureAlert(
	ctx context.Context,
	freezerID int64,
	temperature, threshold float64,
	thresholdType ThresholdType,
) (*models.Alert, error) {
	contextData, err := json.Marshal(freezerAlertContext{
		Temperature:   temperature,
		Threshold:     threshold,
		ThresholdType: thresholdType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal freezer alert context: %w", err)
	}

	message := fmt.Sprintf("Freezer temperature %.1f°C breached %s threshold %.1f°C", temperature, thresholdType, threshold)

	alert, err := s.alerts.CreateAlert(ctx,
		models.AlertTypeFreezerTemperature,
		EntityTypeFreezer,
		freezerID,
		thresholdType.Severity(),
		message,
		contextData,
	)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Freezer temperature alert raised",
		zap.Int64("freezer_id", freezerID),
		zap.Float64("temperature", temperature),
		zap.Float64("threshold", threshold),
		zap.String("threshold_type", string(thresholdType)),
		zap.Int64("alert_id", alert.ID),
	)
	return alert, nil
}
