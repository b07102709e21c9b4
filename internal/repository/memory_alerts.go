package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"openelis-alert/internal/models"
)

// MemoryAlertsRepository 内存告警仓库：用于 DB 未就绪时的联调与单元测试
// - 一把互斥锁保证 CreateOrFold 的原子性
// - 读写均返回副本
type MemoryAlertsRepository struct {
	mu     sync.Mutex
	nextID int64
	alerts map[int64]*models.Alert
}

func NewMemoryAlertsRepository() *MemoryAlertsRepository {
	return &MemoryAlertsRepository{
		alerts: map[int64]*models.Alert{},
	}
}

var _ AlertsRepository = (*MemoryAlertsRepository)(nil)

func (r *MemoryAlertsRepository) CreateOrFold(_ context.Context, candidate *models.Alert, cutoff time.Time) (*models.Alert, bool, error) {
	if candidate == nil {
		return nil, false, fmt.Errorf("alert is required")
	}
	if err := candidate.Entity.Validate(); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := candidate.DedupKey()
	var match *models.Alert
	for _, a := range r.alerts {
		if !a.FoldsInto(key, cutoff) {
			continue
		}
		if match == nil || a.StartTime.After(match.StartTime) {
			match = a
		}
	}

	if match != nil {
		match.DuplicateCount++
		t := candidate.StartTime
		match.LastDuplicateTime = &t
		return match.Clone(), true, nil
	}

	r.nextID++
	created := candidate.Clone()
	created.ID = r.nextID
	created.Status = models.StatusOpen
	created.DuplicateCount = 0
	created.LastDuplicateTime = nil
	if len(created.ContextData) == 0 {
		created.ContextData = json.RawMessage("{}")
	}
	r.alerts[created.ID] = created
	return created.Clone(), false, nil
}

func (r *MemoryAlertsRepository) GetAlert(_ context.Context, id int64) (*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	return a.Clone(), nil
}

func (r *MemoryAlertsRepository) TransitionAlert(_ context.Context, alert *models.Alert, from models.AlertStatus) error {
	if alert == nil {
		return fmt.Errorf("alert is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.alerts[alert.ID]
	if !ok {
		return fmt.Errorf("alert %d: %w", alert.ID, ErrNotFound)
	}
	if cur.Status != from {
		return fmt.Errorf("alert %d no longer %s: %w", alert.ID, from, ErrConflict)
	}

	// 只覆盖生命周期字段，去重计数保持存储中的值
	next := cur.Clone()
	updated := alert.Clone()
	next.Status = updated.Status
	next.AcknowledgedAt = updated.AcknowledgedAt
	next.AcknowledgedBy = updated.AcknowledgedBy
	next.ResolvedAt = updated.ResolvedAt
	next.ResolvedBy = updated.ResolvedBy
	next.ResolutionNotes = updated.ResolutionNotes
	next.EndTime = updated.EndTime
	r.alerts[alert.ID] = next
	return nil
}

func (r *MemoryAlertsRepository) GetAlertsByEntity(_ context.Context, key models.EntityKey) ([]*models.Alert, error) {
	return r.filter(func(a *models.Alert) bool { return a.Entity == key }), nil
}

func (r *MemoryAlertsRepository) GetAlertsByAlertType(_ context.Context, alertType models.AlertType) ([]*models.Alert, error) {
	return r.filter(func(a *models.Alert) bool { return a.AlertType == alertType }), nil
}

func (r *MemoryAlertsRepository) GetAlertsByStatus(_ context.Context, status models.AlertStatus) ([]*models.Alert, error) {
	return r.filter(func(a *models.Alert) bool { return a.Status == status }), nil
}

func (r *MemoryAlertsRepository) CountActiveAlertsForEntity(_ context.Context, key models.EntityKey) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, a := range r.alerts {
		if a.Entity == key && a.Status.IsActive() {
			n++
		}
	}
	return n, nil
}

func (r *MemoryAlertsRepository) filter(match func(*models.Alert) bool) []*models.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []*models.Alert{}
	for _, a := range r.alerts {
		if match(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}
