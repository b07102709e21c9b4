package notification

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"openelis-alert/internal/models"

	"go.uber.org/zap"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
)

// Handler 事件处理器
type Handler interface {
	Handle(ctx context.Context, event models.AlertEvent)
}

// HandlerFunc 函数适配器
type HandlerFunc func(ctx context.Context, event models.AlertEvent)

func (f HandlerFunc) Handle(ctx context.Context, event models.AlertEvent) { f(ctx, event) }

// Dispatcher 有界队列 + 固定 worker 池
// - Publish 从不阻塞：队列满或已停止时丢弃事件并计数
// - 单个事件处理 panic 不影响 worker
type Dispatcher struct {
	queue    chan models.AlertEvent
	workers  int
	handlers []Handler
	logger   *zap.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// NewDispatcher 创建分发器；workers / queueSize <= 0 使用默认值
func NewDispatcher(workers, queueSize int, logger *zap.Logger, handlers ...Handler) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		queue:    make(chan models.AlertEvent, queueSize),
		workers:  workers,
		handlers: handlers,
		logger:   logger,
	}
}

// Start 启动 worker；重复调用无效
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	d.logger.Info("Notification dispatcher started",
		zap.Int("workers", d.workers),
		zap.Int("queue_size", cap(d.queue)),
	)
}

// Publish 非阻塞入队
func (d *Dispatcher) Publish(event models.AlertEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(event, "dispatcher stopped")
		return
	}

	select {
	case d.queue <- event:
	default:
		d.drop(event, "queue full")
	}
}

// Stop 停止接收新事件，等待队列中已有事件处理完毕
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("Notification dispatcher stopped", zap.Int64("dropped", d.Dropped()))
}

// Dropped 累计丢弃的事件数
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

func (d *Dispatcher) drop(event models.AlertEvent, reason string) {
	d.dropped.Add(1)
	fields := []zap.Field{
		zap.String("reason", reason),
		zap.String("kind", string(event.Kind)),
	}
	if event.Alert != nil {
		fields = append(fields, zap.Int64("alert_id", event.Alert.ID))
	}
	d.logger.Warn("Alert event dropped", fields...)
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for event := range d.queue {
		for _, h := range d.handlers {
			d.safeHandle(ctx, id, h, event)
		}
	}
}

func (d *Dispatcher) safeHandle(ctx context.Context, id int, h Handler, event models.AlertEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Alert event handler panicked",
				zap.Int("worker", id),
				zap.String("kind", string(event.Kind)),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	h.Handle(ctx, event)
}
