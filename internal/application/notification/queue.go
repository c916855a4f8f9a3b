// Package notification delivers approval notifications off the request path.
// Tasks live only in memory: a restart drops whatever is still queued.
package notification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// DefaultMaxRetries is how many times a failed task is retried before the fallback runs
const DefaultMaxRetries = 3

// DefaultRetryDelays are the waits before retry 1, 2 and 3; later retries reuse the last one
var DefaultRetryDelays = []time.Duration{1 * time.Second, 5 * time.Second, 15 * time.Second}

// ErrQueueRunning is returned by Start on a queue that is already running
var ErrQueueRunning = errors.New("notification queue already running")

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Handler performs delivery. Fallback runs once for a task whose retries are exhausted.
type Handler interface {
	Deliver(ctx context.Context, task *entity.NotificationTask) error
	Fallback(ctx context.Context, task *entity.NotificationTask) error
}

// Queue is a FIFO of notification tasks drained by a single goroutine.
// Failed tasks wait on a timer and re-enter the tail, so one failing task never stalls the rest.
type Queue struct {
	handler Handler
	logger  Logger

	maxRetries      int
	retryDelays     []time.Duration
	deliveryTimeout time.Duration

	mu       sync.Mutex
	pending  []*entity.NotificationTask
	delayed  map[string]*time.Timer
	inFlight int
	running  bool

	wake       chan struct{}
	processing atomic.Bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

var _ port.NotificationQueue = (*Queue)(nil)

// Option configures the queue
type Option func(*Queue)

// WithMaxRetries sets the retry budget per task
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n >= 0 {
			q.maxRetries = n
		}
	}
}

// WithRetryDelays sets the per-retry delays. They are sorted into non-decreasing order.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(q *Queue) {
		if len(delays) == 0 {
			return
		}
		sorted := make([]time.Duration, len(delays))
		copy(sorted, delays)
		for i := 1; i < len(sorted); i++ {
			if sorted[i] < sorted[i-1] {
				sorted[i] = sorted[i-1]
			}
		}
		q.retryDelays = sorted
	}
}

// WithDeliveryTimeout bounds each delivery attempt
func WithDeliveryTimeout(d time.Duration) Option {
	return func(q *Queue) {
		q.deliveryTimeout = d
	}
}

// NewQueue creates a stopped queue; call Start to begin processing
func NewQueue(handler Handler, logger Logger, opts ...Option) *Queue {
	q := &Queue{
		handler:     handler,
		logger:      logger,
		maxRetries:  DefaultMaxRetries,
		retryDelays: DefaultRetryDelays,
		delayed:     make(map[string]*time.Timer),
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Name implements worker.Worker
func (q *Queue) Name() string {
	return "notification-queue"
}

// Start launches the processing goroutine
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return ErrQueueRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.running = true
	q.mu.Unlock()

	q.wg.Add(1)
	go q.run(runCtx)
	q.signal()
	return nil
}

// Stop halts processing and cancels pending retries. Undelivered tasks are dropped.
func (q *Queue) Stop() error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	cancel := q.cancel
	for id, timer := range q.delayed {
		timer.Stop()
		delete(q.delayed, id)
	}
	dropped := len(q.pending)
	q.pending = nil
	q.mu.Unlock()

	cancel()
	q.wg.Wait()

	if dropped > 0 {
		q.logger.Warn("Notification queue stopped with undelivered tasks", "dropped", dropped)
	}
	return nil
}

// Enqueue appends a task and returns its id without waiting for delivery
func (q *Queue) Enqueue(notificationType entity.NotificationType, payload entity.NotificationPayload) string {
	now := time.Now().UTC()
	task := &entity.NotificationTask{
		ID:            uuid.NewString(),
		Type:          notificationType,
		Payload:       payload,
		MaxRetries:    q.maxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
		NextAttemptAt: now,
	}

	q.mu.Lock()
	q.pending = append(q.pending, task)
	q.mu.Unlock()

	q.signal()
	return task.ID
}

// Len counts queued, in-flight and retry-waiting tasks
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + len(q.delayed) + q.inFlight
}

// Processing reports whether the loop is currently draining tasks
func (q *Queue) Processing() bool {
	return q.processing.Load()
}

// Drain blocks until every task, including scheduled retries, has been settled
func (q *Queue) Drain(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for q.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
			q.drainPending(ctx)
		}
	}
}

func (q *Queue) drainPending(ctx context.Context) {
	if !q.processing.CompareAndSwap(false, true) {
		return
	}
	defer q.processing.Store(false)

	for ctx.Err() == nil {
		task := q.pop()
		if task == nil {
			return
		}
		q.process(ctx, task)
		q.mu.Lock()
		q.inFlight--
		q.mu.Unlock()
	}
}

func (q *Queue) pop() *entity.NotificationTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	task := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.inFlight++
	return task
}

func (q *Queue) process(ctx context.Context, task *entity.NotificationTask) {
	attemptCtx := ctx
	if q.deliveryTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, q.deliveryTimeout)
		defer cancel()
	}

	err := q.handler.Deliver(attemptCtx, task)
	if err == nil {
		q.logger.Info("Notification delivered",
			"task_id", task.ID, "type", string(task.Type), "attempts", task.RetryCount+1)
		return
	}

	if task.RetryCount < task.MaxRetries {
		task.RetryCount++
		delay := q.delayFor(task.RetryCount)
		task.UpdatedAt = time.Now().UTC()
		task.NextAttemptAt = task.UpdatedAt.Add(delay)

		q.logger.Warn("Notification delivery failed, retry scheduled",
			"task_id", task.ID, "type", string(task.Type), "retry", task.RetryCount, "delay", delay.String(), "error", err)
		q.scheduleRetry(task, delay)
		return
	}

	q.logger.Error("Notification retries exhausted, falling back",
		"task_id", task.ID, "type", string(task.Type), "attempts", task.RetryCount+1, "critical", true, "error", err)

	if ferr := q.handler.Fallback(ctx, task); ferr != nil {
		q.logger.Error("Notification fallback failed, task discarded",
			"task_id", task.ID, "type", string(task.Type), "critical", true, "error", ferr)
		return
	}
	q.logger.Info("Notification delivered by fallback", "task_id", task.ID, "type", string(task.Type))
}

// delayFor returns the wait before the given 1-based retry
func (q *Queue) delayFor(retry int) time.Duration {
	if len(q.retryDelays) == 0 {
		return 0
	}
	if retry > len(q.retryDelays) {
		retry = len(q.retryDelays)
	}
	return q.retryDelays[retry-1]
}

func (q *Queue) scheduleRetry(task *entity.NotificationTask, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		q.logger.Warn("Notification queue stopping, retry dropped", "task_id", task.ID)
		return
	}

	q.delayed[task.ID] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		if _, ok := q.delayed[task.ID]; !ok {
			q.mu.Unlock()
			return
		}
		delete(q.delayed, task.ID)
		q.pending = append(q.pending, task)
		q.mu.Unlock()
		q.signal()
	})
}
