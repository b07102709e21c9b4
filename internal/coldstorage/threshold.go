package coldstorage

import (
	"strings"

	"openelis-alert/internal/models"
)

// ThresholdType 越限类型
type ThresholdType string

const (
	CriticalHigh ThresholdType = "CRITICAL_HIGH"
	WarningHigh  ThresholdType = "WARNING_HIGH"
	CriticalLow  ThresholdType = "CRITICAL_LOW"
	WarningLow   ThresholdType = "WARNING_LOW"
)

// Severity CRITICAL_* → CRITICAL，其余 → WARNING
func (t ThresholdType) Severity() models.AlertSeverity {
	if strings.HasPrefix(string(t), "CRITICAL") {
		return models.SeverityCritical
	}
	return models.SeverityWarning
}

// Breach 一次越限
type Breach struct {
	Temperature float64
	Threshold   float64
	Type        ThresholdType
}

// EvaluateStatus 读数状态
// CRITICAL：温度低于 critical_min 或高于 critical_max，或湿度越过 critical 限
// WARNING：温度位于 [critical_min, warning_min] 或 [warning_max, critical_max)，或湿度越过 warning 限
func EvaluateStatus(temperature, humidity *float64, p *models.ThresholdProfile) models.ReadingStatus {
	if p == nil || temperature == nil {
		return models.ReadingNormal
	}
	t := *temperature

	if below(t, p.CriticalMin) || above(t, p.CriticalMax) || isCriticalHumidity(humidity, p) {
		return models.ReadingCritical
	}

	warningLow := p.WarningMin != nil && p.CriticalMin != nil && t >= *p.CriticalMin && t <= *p.WarningMin
	warningHigh := p.WarningMax != nil && p.CriticalMax != nil && t >= *p.WarningMax && t < *p.CriticalMax
	if warningLow || warningHigh || isWarningHumidity(humidity, p) {
		return models.ReadingWarning
	}
	return models.ReadingNormal
}

// DetectBreach 按 CRITICAL_HIGH、WARNING_HIGH、CRITICAL_LOW、WARNING_LOW 的顺序检查
func DetectBreach(temperature float64, p *models.ThresholdProfile) (Breach, bool) {
	if p == nil {
		return Breach{}, false
	}
	switch {
	case above(temperature, p.CriticalMax):
		return Breach{Temperature: temperature, Threshold: *p.CriticalMax, Type: CriticalHigh}, true
	case above(temperature, p.WarningMax):
		return Breach{Temperature: temperature, Threshold: *p.WarningMax, Type: WarningHigh}, true
	case below(temperature, p.CriticalMin):
		return Breach{Temperature: temperature, Threshold: *p.CriticalMin, Type: CriticalLow}, true
	case below(temperature, p.WarningMin):
		return Breach{Temperature: temperature, Threshold: *p.WarningMin, Type: WarningLow}, true
	}
	return Breach{}, false
}

// DetectSimpleBreach 未分配阈值模板时，按 |t - target| 与 warning / critical 偏差比较
func DetectSimpleBreach(temperature float64, f *models.Freezer) (Breach, bool) {
	if f == nil || f.TargetTemperature == nil {
		return Breach{}, false
	}
	target := *f.TargetTemperature
	deviation := temperature - target
	high := deviation > 0
	if deviation < 0 {
		deviation = -deviation
	}

	check := func(limit *float64, hi, lo ThresholdType) (Breach, bool) {
		if limit == nil || deviation <= *limit {
			return Breach{}, false
		}
		if high {
			return Breach{Temperature: temperature, Threshold: target + *limit, Type: hi}, true
		}
		return Breach{Temperature: temperature, Threshold: target - *limit, Type: lo}, true
	}

	if b, ok := check(f.CriticalThreshold, CriticalHigh, CriticalLow); ok {
		return b, true
	}
	return check(f.WarningThreshold, WarningHigh, WarningLow)
}

func isCriticalHumidity(h *float64, p *models.ThresholdProfile) bool {
	return h != nil && (below(*h, p.HumidityCriticalMin) || above(*h, p.HumidityCriticalMax))
}

func isWarningHumidity(h *float64, p *models.ThresholdProfile) bool {
	return h != nil && (below(*h, p.HumidityWarningMin) || above(*h, p.HumidityWarningMax))
}

func below(v float64, limit *float64) bool { return limit != nil && v < *limit }
func above(v float64, limit *float64) bool { return limit != nil && v > *limit }
