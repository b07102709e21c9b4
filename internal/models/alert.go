package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// AlertType 告警类型
type AlertType string

const (
	AlertTypeFreezerTemperature AlertType = "FREEZER_TEMPERATURE"
	AlertTypeEquipmentFailure   AlertType = "EQUIPMENT_FAILURE"
	AlertTypeInventoryLow       AlertType = "INVENTORY_LOW"
	AlertTypeSampleTracking     AlertType = "SAMPLE_TRACKING"
	AlertTypeOther              AlertType = "OTHER"
)

// Valid 是否为已知告警类型
func (t AlertType) Valid() bool {
	switch t {
	case AlertTypeFreezerTemperature, AlertTypeEquipmentFailure, AlertTypeInventoryLow,
		AlertTypeSampleTracking, AlertTypeOther:
		return true
	}
	return false
}

// ParseAlertType 解析告警类型字符串
func ParseAlertType(s string) (AlertType, error) {
	t := AlertType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown alert type: %q", s)
	}
	return t, nil
}

// AlertSeverity 告警级别
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

func (s AlertSeverity) Valid() bool {
	return s == SeverityWarning || s == SeverityCritical
}

// ParseAlertSeverity 解析告警级别字符串
func ParseAlertSeverity(s string) (AlertSeverity, error) {
	sev := AlertSeverity(s)
	if !sev.Valid() {
		return "", fmt.Errorf("unknown alert severity: %q", s)
	}
	return sev, nil
}

// EntityKey 被监控实体的松散引用（entity_type + entity_id），不做外键约束
type EntityKey struct {
	EntityType string `json:"entity_type"`
	EntityID   int64  `json:"entity_id"`
}

func (k EntityKey) String() string {
	return fmt.Sprintf("%s/%d", k.EntityType, k.EntityID)
}

// Validate entity_type 必填
func (k EntityKey) Validate() error {
	if k.EntityType == "" {
		return errors.New("entity_type is required")
	}
	return nil
}

// DedupKey 去重键：同一实体 + 同一告警类型
type DedupKey struct {
	Entity    EntityKey
	AlertType AlertType
}

func (k DedupKey) String() string {
	return fmt.Sprintf("%s:%d:%s", k.Entity.EntityType, k.Entity.EntityID, k.AlertType)
}

// Alert 告警（对应 alert 表）
type Alert struct {
	ID                int64           `json:"id"`
	AlertType         AlertType       `json:"alert_type"`
	Entity            EntityKey       `json:"entity"`
	Severity          AlertSeverity   `json:"severity"`
	Status            AlertStatus     `json:"status"`
	Message           string          `json:"message"`
	ContextData       json.RawMessage `json:"context_data"` // JSONB
	StartTime         time.Time       `json:"start_time"`
	EndTime           *time.Time      `json:"end_time,omitempty"`
	DuplicateCount    int             `json:"duplicate_count"`
	LastDuplicateTime *time.Time      `json:"last_duplicate_time,omitempty"`
	AcknowledgedAt    *time.Time      `json:"acknowledged_at,omitempty"`
	AcknowledgedBy    *int64          `json:"acknowledged_by,omitempty"`
	ResolvedAt        *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy        *int64          `json:"resolved_by,omitempty"`
	ResolutionNotes   *string         `json:"resolution_notes,omitempty"`
}

// DedupKey 返回告警的去重键
func (a *Alert) DedupKey() DedupKey {
	return DedupKey{Entity: a.Entity, AlertType: a.AlertType}
}

// LastActivity 最近一次重复时间，没有则为创建时间
func (a *Alert) LastActivity() time.Time {
	if a.LastDuplicateTime != nil {
		return *a.LastDuplicateTime
	}
	return a.StartTime
}

// FoldsInto 判断同键的新告警是否应折叠进 a：a 仍处于活跃状态，且最近活动晚于 cutoff
func (a *Alert) FoldsInto(key DedupKey, cutoff time.Time) bool {
	return a.DedupKey() == key && a.Status.IsActive() && a.LastActivity().After(cutoff)
}

// Clone 深拷贝（内存仓库返回副本，避免调用方修改内部状态）
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	c := *a
	if a.ContextData != nil {
		c.ContextData = append(json.RawMessage(nil), a.ContextData...)
	}
	c.EndTime = cloneTime(a.EndTime)
	c.LastDuplicateTime = cloneTime(a.LastDuplicateTime)
	c.AcknowledgedAt = cloneTime(a.AcknowledgedAt)
	c.ResolvedAt = cloneTime(a.ResolvedAt)
	if a.AcknowledgedBy != nil {
		v := *a.AcknowledgedBy
		c.AcknowledgedBy = &v
	}
	if a.ResolvedBy != nil {
		v := *a.ResolvedBy
		c.ResolvedBy = &v
	}
	if a.ResolutionNotes != nil {
		v := *a.ResolutionNotes
		c.ResolutionNotes = &v
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
