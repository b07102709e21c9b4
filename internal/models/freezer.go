package models

import "time"

// FreezerReading 冷库/冰箱温湿度读数（MQTT 上报）
type FreezerReading struct {
	FreezerID   int64     `json:"freezer_id"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// ReadingStatus 读数评估结果
type ReadingStatus string

const (
	ReadingNormal   ReadingStatus = "NORMAL"
	ReadingWarning  ReadingStatus = "WARNING"
	ReadingCritical ReadingStatus = "CRITICAL"
)

// ThresholdProfile 阈值模板
// 警告区间：介于 warning 与 critical 之间（含 warning 边界，不含 critical 边界）
type ThresholdProfile struct {
	ID                  int64    `json:"id"`
	Name                string   `json:"name"`
	WarningMin          *float64 `json:"warning_min,omitempty"`
	WarningMax          *float64 `json:"warning_max,omitempty"`
	CriticalMin         *float64 `json:"critical_min,omitempty"`
	CriticalMax         *float64 `json:"critical_max,omitempty"`
	HumidityWarningMin  *float64 `json:"humidity_warning_min,omitempty"`
	HumidityWarningMax  *float64 `json:"humidity_warning_max,omitempty"`
	HumidityCriticalMin *float64 `json:"humidity_critical_min,omitempty"`
	HumidityCriticalMax *float64 `json:"humidity_critical_max,omitempty"`
}

// Freezer 冷库基础信息：未分配阈值模板时按 target ± 偏差判断
type Freezer struct {
	ID                int64    `json:"id"`
	Name              string   `json:"name"`
	TargetTemperature *float64 `json:"target_temperature,omitempty"`
	WarningThreshold  *float64 `json:"warning_threshold,omitempty"`
	CriticalThreshold *float64 `json:"critical_threshold,omitempty"`
	Active            bool     `json:"active"`
}
