package models

// AlertStatus 告警状态：OPEN → ACKNOWLEDGED → RESOLVED，只能前进，不能跳过
type AlertStatus string

const (
	StatusOpen         AlertStatus = "OPEN"
	StatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	StatusResolved     AlertStatus = "RESOLVED"
)

// ActiveStatuses 参与去重与活跃计数的状态
var ActiveStatuses = []AlertStatus{StatusOpen, StatusAcknowledged}

func (s AlertStatus) Valid() bool {
	return s == StatusOpen || s == StatusAcknowledged || s == StatusResolved
}

// IsActive OPEN 或 ACKNOWLEDGED
func (s AlertStatus) IsActive() bool {
	return s == StatusOpen || s == StatusAcknowledged
}

// IsTerminal RESOLVED 为终态
func (s AlertStatus) IsTerminal() bool {
	return s == StatusResolved
}

// CanTransitionTo 状态机允许的迁移
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	switch s {
	case StatusOpen:
		return next == StatusAcknowledged
	case StatusAcknowledged:
		return next == StatusResolved
	default:
		return false
	}
}
