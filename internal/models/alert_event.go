package models

import "time"

// AlertEventKind 告警生命周期事件类型
type AlertEventKind string

const (
	AlertCreated      AlertEventKind = "alert.created"
	AlertAcknowledged AlertEventKind = "alert.acknowledged"
	AlertResolved     AlertEventKind = "alert.resolved"
)

// AlertEvent 进程内事件，Alert 为发布时刻的快照
type AlertEvent struct {
	Kind       AlertEventKind `json:"kind"`
	Alert      *Alert         `json:"alert"`
	UserID     *int64         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
