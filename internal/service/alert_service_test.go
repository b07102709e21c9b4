package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"openelis-alert/internal/models"
	"openelis-alert/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.AlertEvent
}

func (p *recordingPublisher) Publish(e models.AlertEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) kinds() []models.AlertEventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.AlertEventKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupAlertService(t *testing.T) (*AlertService, *recordingPublisher, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	pub := &recordingPublisher{}
	svc := NewAlertService(repository.NewMemoryAlertsRepository(), pub, zap.NewNop(), WithClock(clock.Now))
	return svc, pub, clock
}

func createFreezerAlert(t *testing.T, svc *AlertService, freezerID int64) *models.Alert {
	t.Helper()
	a, err := svc.CreateAlert(context.Background(), models.AlertTypeFreezerTemperature, "Freezer", freezerID,
		models.SeverityCritical, "Temperature above critical threshold", json.RawMessage(`{"temperature":-15.5}`))
	require.NoError(t, err)
	return a
}

// ============================================
// 创建与去重
// ============================================

func TestCreateAlert_NewAlertIsOpenAndPublished(t *testing.T) {
	svc, pub, clock := setupAlertService(t)

	a := createFreezerAlert(t, svc, 100)

	assert.NotZero(t, a.ID)
	assert.Equal(t, models.StatusOpen, a.Status)
	assert.Equal(t, 0, a.DuplicateCount)
	assert.Nil(t, a.LastDuplicateTime)
	assert.True(t, clock.Now().Equal(a.StartTime))
	assert.Equal(t, []models.AlertEventKind{models.AlertCreated}, pub.kinds())
}

func TestCreateAlert_DuplicateWithinWindowFolds(t *testing.T) {
	svc, pub, clock := setupAlertService(t)

	first := createFreezerAlert(t, svc, 100)
	clock.Advance(10 * time.Minute)
	second := createFreezerAlert(t, svc, 100)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, second.DuplicateCount)
	require.NotNil(t, second.LastDuplicateTime)
	assert.True(t, clock.Now().Equal(*second.LastDuplicateTime))
	// 折叠不发布事件
	assert.Len(t, pub.kinds(), 1)
}

func TestCreateAlert_OutsideWindowCreatesNewAlert(t *testing.T) {
	svc, pub, clock := setupAlertService(t)

	first := createFreezerAlert(t, svc, 100)
	clock.Advance(31 * time.Minute)
	second := createFreezerAlert(t, svc, 100)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 0, second.DuplicateCount)
	assert.Len(t, pub.kinds(), 2)
}

func TestCreateAlert_DifferentEntitiesDoNotFold(t *testing.T) {
	svc, pub, _ := setupAlertService(t)

	a := createFreezerAlert(t, svc, 1)
	b := createFreezerAlert(t, svc, 2)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, int64(2), b.Entity.EntityID)
	assert.Len(t, pub.kinds(), 2)
}

func TestCreateAlert_ResolvedAlertIsNotFoldTarget(t *testing.T) {
	svc, _, clock := setupAlertService(t)
	ctx := context.Background()

	first := createFreezerAlert(t, svc, 100)
	_, err := svc.AcknowledgeAlert(ctx, first.ID, 1)
	require.NoError(t, err)
	_, err = svc.ResolveAlert(ctx, first.ID, 1, "fixed")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	second := createFreezerAlert(t, svc, 100)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.StatusOpen, second.Status)
}

func TestCreateAlert_AcknowledgedAlertStillFolds(t *testing.T) {
	svc, _, clock := setupAlertService(t)

	first := createFreezerAlert(t, svc, 100)
	_, err := svc.AcknowledgeAlert(context.Background(), first.ID, 1)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	second := createFreezerAlert(t, svc, 100)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.StatusAcknowledged, second.Status)
	assert.Equal(t, 1, second.DuplicateCount)
}

func TestCreateAlert_DefaultsEmptyContextData(t *testing.T) {
	svc, _, _ := setupAlertService(t)

	a, err := svc.CreateAlert(context.Background(), models.AlertTypeInventoryLow, "InventoryItem", 7,
		models.SeverityWarning, "Reagent below reorder point", nil)

	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(a.ContextData))
}

func TestCreateAlert_ValidatesArguments(t *testing.T) {
	svc, pub, _ := setupAlertService(t)
	ctx := context.Background()

	_, err := svc.CreateAlert(ctx, "BOGUS", "Freezer", 1, models.SeverityWarning, "m", nil)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = svc.CreateAlert(ctx, models.AlertTypeOther, "Freezer", 1, "INFO", "m", nil)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = svc.CreateAlert(ctx, models.AlertTypeOther, "", 1, models.SeverityWarning, "m", nil)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = svc.CreateAlert(ctx, models.AlertTypeOther, "Freezer", 1, models.SeverityWarning, "m", json.RawMessage(`{bad`))
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	assert.Empty(t, pub.kinds())
}

func TestCreateAlert_ConcurrentDuplicatesYieldOneAlert(t *testing.T) {
	svc, pub, _ := setupAlertService(t)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateAlert(context.Background(), models.AlertTypeFreezerTemperature, "Freezer", 100,
				models.SeverityCritical, "hot", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	alerts, err := svc.GetAlertsByEntity(context.Background(), "Freezer", 100)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, n-1, alerts[0].DuplicateCount)
	assert.Len(t, pub.kinds(), 1)
}

// ============================================
// 状态迁移
// ============================================

func TestAcknowledgeAlert_SetsFields(t *testing.T) {
	svc, pub, clock := setupAlertService(t)
	ctx := context.Background()

	a := createFreezerAlert(t, svc, 100)
	clock.Advance(2 * time.Minute)

	acked, err := svc.AcknowledgeAlert(ctx, a.ID, 42)
	require.NoError(t, err)

	assert.Equal(t, models.StatusAcknowledged, acked.Status)
	require.NotNil(t, acked.AcknowledgedBy)
	assert.Equal(t, int64(42), *acked.AcknowledgedBy)
	require.NotNil(t, acked.AcknowledgedAt)
	assert.True(t, clock.Now().Equal(*acked.AcknowledgedAt))

	stored, err := svc.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAcknowledged, stored.Status)
	assert.Equal(t, []models.AlertEventKind{models.AlertCreated, models.AlertAcknowledged}, pub.kinds())
}

func TestResolveAlert_SetsFieldsAndEndTime(t *testing.T) {
	svc, pub, clock := setupAlertService(t)
	ctx := context.Background()

	a := createFreezerAlert(t, svc, 100)
	_, err := svc.AcknowledgeAlert(ctx, a.ID, 42)
	require.NoError(t, err)
	clock.Advance(time.Hour)

	resolved, err := svc.ResolveAlert(ctx, a.ID, 43, "Door was left open")
	require.NoError(t, err)

	assert.Equal(t, models.StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, int64(43), *resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolutionNotes)
	assert.Equal(t, "Door was left open", *resolved.ResolutionNotes)
	require.NotNil(t, resolved.ResolvedAt)
	require.NotNil(t, resolved.EndTime)
	assert.True(t, resolved.ResolvedAt.Equal(*resolved.EndTime))
	// 确认信息保持不变
	require.NotNil(t, resolved.AcknowledgedBy)
	assert.Equal(t, int64(42), *resolved.AcknowledgedBy)

	assert.Equal(t, models.AlertResolved, pub.kinds()[2])
}

func TestResolveAlert_EmptyNotesKept(t *testing.T) {
	svc, _, _ := setupAlertService(t)
	ctx := context.Background()

	a := createFreezerAlert(t, svc, 100)
	_, err := svc.AcknowledgeAlert(ctx, a.ID, 1)
	require.NoError(t, err)

	resolved, err := svc.ResolveAlert(ctx, a.ID, 1, "")
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolutionNotes)
	assert.Equal(t, "", *resolved.ResolutionNotes)

	stored, err := svc.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ResolutionNotes)
	assert.Equal(t, "", *stored.ResolutionNotes)
}

func TestResolveAlert_RequiresAcknowledge(t *testing.T) {
	svc, _, _ := setupAlertService(t)

	a := createFreezerAlert(t, svc, 100)

	_, err := svc.ResolveAlert(context.Background(), a.ID, 1, "")
	assert.True(t, errors.Is(err, ErrInvalidStateTransition))
}

func TestAcknowledgeAlert_TwiceFails(t *testing.T) {
	svc, _, _ := setupAlertService(t)
	ctx := context.Background()

	a := createFreezerAlert(t, svc, 100)
	_, err := svc.AcknowledgeAlert(ctx, a.ID, 1)
	require.NoError(t, err)

	_, err = svc.AcknowledgeAlert(ctx, a.ID, 2)
	assert.True(t, errors.Is(err, ErrInvalidStateTransition))

	stored, err := svc.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), *stored.AcknowledgedBy)
}

func TestTransitions_UnknownAlertAndBadUser(t *testing.T) {
	svc, _, _ := setupAlertService(t)
	ctx := context.Background()

	_, err := svc.AcknowledgeAlert(ctx, 999, 1)
	assert.True(t, errors.Is(err, ErrAlertNotFound))

	_, err = svc.ResolveAlert(ctx, 999, 1, "")
	assert.True(t, errors.Is(err, ErrAlertNotFound))

	a := createFreezerAlert(t, svc, 100)
	_, err = svc.AcknowledgeAlert(ctx, a.ID, 0)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

// ============================================
// 查询
// ============================================

func TestCountActiveAlertsForEntity(t *testing.T) {
	svc, _, clock := setupAlertService(t)
	ctx := context.Background()

	a := createFreezerAlert(t, svc, 100)
	_, err := svc.CreateAlert(ctx, models.AlertTypeEquipmentFailure, "Freezer", 100, models.SeverityWarning, "compressor", nil)
	require.NoError(t, err)
	createFreezerAlert(t, svc, 200)

	n, err := svc.CountActiveAlertsForEntity(ctx, "Freezer", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = svc.AcknowledgeAlert(ctx, a.ID, 1)
	require.NoError(t, err)
	n, err = svc.CountActiveAlertsForEntity(ctx, "Freezer", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	clock.Advance(time.Minute)
	_, err = svc.ResolveAlert(ctx, a.ID, 1, "")
	require.NoError(t, err)
	n, err = svc.CountActiveAlertsForEntity(ctx, "Freezer", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGetAlertsByEntity_NewestFirst(t *testing.T) {
	svc, _, clock := setupAlertService(t)
	ctx := context.Background()

	older := createFreezerAlert(t, svc, 100)
	clock.Advance(time.Hour)
	newer := createFreezerAlert(t, svc, 100)

	alerts, err := svc.GetAlertsByEntity(ctx, "Freezer", 100)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, newer.ID, alerts[0].ID)
	assert.Equal(t, older.ID, alerts[1].ID)

	none, err := svc.GetAlertsByEntity(ctx, "Freezer", 404)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetAlertsByTypeAndStatus(t *testing.T) {
	svc, _, _ := setupAlertService(t)
	ctx := context.Background()

	createFreezerAlert(t, svc, 100)
	_, err := svc.CreateAlert(ctx, models.AlertTypeInventoryLow, "InventoryItem", 3, models.SeverityWarning, "low", nil)
	require.NoError(t, err)

	byType, err := svc.GetAlertsByAlertType(ctx, models.AlertTypeInventoryLow)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "InventoryItem", byType[0].Entity.EntityType)

	open, err := svc.GetAlertsByStatus(ctx, models.StatusOpen)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	_, err = svc.GetAlertsByStatus(ctx, "CLOSED")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestDedupPolicy_Cutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(-30*time.Minute), DefaultDedupPolicy().Cutoff(now))
	assert.Equal(t, now.Add(-5*time.Minute), DedupPolicy{Window: 5 * time.Minute}.Cutoff(now))
	assert.Equal(t, now.Add(-30*time.Minute), DedupPolicy{}.Cutoff(now))
}
