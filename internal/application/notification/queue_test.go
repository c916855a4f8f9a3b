package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *nopLogger) Info(msg string, kv ...interface{}) {}
func (l *nopLogger) Warn(msg string, kv ...interface{}) {}
func (l *nopLogger) Error(msg string, kv ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *nopLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

// scriptedHandler fails deliveries for which fail returns true
type scriptedHandler struct {
	mu        sync.Mutex
	fail      func(task *entity.NotificationTask) bool
	attempts  map[string][]int
	delivered []string
	fallbacks []string
}

func newScriptedHandler(fail func(task *entity.NotificationTask) bool) *scriptedHandler {
	return &scriptedHandler{fail: fail, attempts: make(map[string][]int)}
}

func (h *scriptedHandler) Deliver(ctx context.Context, task *entity.NotificationTask) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts[task.ID] = append(h.attempts[task.ID], task.RetryCount)
	if h.fail != nil && h.fail(task) {
		return errors.New("transport down")
	}
	h.delivered = append(h.delivered, task.ID)
	return nil
}

func (h *scriptedHandler) Fallback(ctx context.Context, task *entity.NotificationTask) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fallbacks = append(h.fallbacks, task.ID)
	return nil
}

func (h *scriptedHandler) snapshot() (attempts map[string][]int, delivered, fallbacks []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	attempts = make(map[string][]int, len(h.attempts))
	for k, v := range h.attempts {
		attempts[k] = append([]int(nil), v...)
	}
	return attempts, append([]string(nil), h.delivered...), append([]string(nil), h.fallbacks...)
}

func startQueue(t *testing.T, h Handler, logger Logger, opts ...Option) *Queue {
	t.Helper()
	q := NewQueue(h, logger, opts...)
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(func() { _ = q.Stop() })
	return q
}

func TestQueue_AlwaysFailingTaskFallsBackOnce(t *testing.T) {
	h := newScriptedHandler(func(*entity.NotificationTask) bool { return true })
	logger := &nopLogger{}
	q := startQueue(t, h, logger, WithRetryDelays(time.Millisecond, 2*time.Millisecond, 3*time.Millisecond))

	id := q.Enqueue(entity.NotificationStatusChange, entity.NotificationPayload{RequestID: 1, RecipientIDs: []int64{7}})

	require.Eventually(t, func() bool {
		_, _, fallbacks := h.snapshot()
		return len(fallbacks) == 1 && q.Len() == 0
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))

	attempts, delivered, fallbacks := h.snapshot()
	assert.Equal(t, []int{0, 1, 2, 3}, attempts[id], "one attempt plus three retries")
	assert.Empty(t, delivered)
	assert.Equal(t, []string{id}, fallbacks)
	assert.Equal(t, 0, q.Len())
	assert.GreaterOrEqual(t, logger.errorCount(), 1)
}

func TestQueue_SuccessfulDelivery(t *testing.T) {
	h := newScriptedHandler(nil)
	q := startQueue(t, h, &nopLogger{})

	id := q.Enqueue(entity.NotificationApprovalRequired, entity.NotificationPayload{RequestID: 2})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))

	attempts, delivered, fallbacks := h.snapshot()
	assert.Equal(t, []int{0}, attempts[id])
	assert.Equal(t, []string{id}, delivered)
	assert.Empty(t, fallbacks)
}

func TestQueue_FailingTaskDoesNotBlockOthers(t *testing.T) {
	var failing string
	var mu sync.Mutex
	h := newScriptedHandler(func(task *entity.NotificationTask) bool {
		mu.Lock()
		defer mu.Unlock()
		return task.ID == failing
	})
	q := NewQueue(h, &nopLogger{}, WithRetryDelays(time.Hour))

	mu.Lock()
	failing = q.Enqueue(entity.NotificationStatusChange, entity.NotificationPayload{RequestID: 1})
	mu.Unlock()
	ok := q.Enqueue(entity.NotificationStatusChange, entity.NotificationPayload{RequestID: 2})

	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(func() { _ = q.Stop() })

	require.Eventually(t, func() bool {
		_, delivered, _ := h.snapshot()
		return len(delivered) == 1
	}, time.Second, 5*time.Millisecond)

	_, delivered, fallbacks := h.snapshot()
	assert.Equal(t, []string{ok}, delivered)
	assert.Empty(t, fallbacks)
	assert.Equal(t, 1, q.Len(), "the failing task waits for its retry")
}

func TestQueue_EnqueueNeverBlocks(t *testing.T) {
	q := NewQueue(newScriptedHandler(nil), &nopLogger{})

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := q.Enqueue(entity.NotificationApprovalRequired, entity.NotificationPayload{RequestID: int64(i)})
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Equal(t, 100, q.Len())
}

func TestQueue_StartTwice(t *testing.T) {
	q := startQueue(t, newScriptedHandler(nil), &nopLogger{})
	assert.ErrorIs(t, q.Start(context.Background()), ErrQueueRunning)
}

func TestQueue_StopDropsRetries(t *testing.T) {
	h := newScriptedHandler(func(*entity.NotificationTask) bool { return true })
	q := NewQueue(h, &nopLogger{}, WithRetryDelays(time.Hour))
	require.NoError(t, q.Start(context.Background()))

	q.Enqueue(entity.NotificationStatusChange, entity.NotificationPayload{})
	require.Eventually(t, func() bool {
		attempts, _, _ := h.snapshot()
		return len(attempts) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, q.Stop())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_RetryDelaysAreNonDecreasing(t *testing.T) {
	q := NewQueue(nil, &nopLogger{}, WithRetryDelays(5*time.Second, time.Second, 15*time.Second))

	var prev time.Duration
	for retry := 1; retry <= 5; retry++ {
		d := q.delayFor(retry)
		assert.GreaterOrEqual(t, d, prev, "retry %d", retry)
		prev = d
	}
	assert.Equal(t, 5*time.Second, q.delayFor(2))

	defaults := NewQueue(nil, &nopLogger{})
	assert.Equal(t, time.Second, defaults.delayFor(1))
	assert.Equal(t, 5*time.Second, defaults.delayFor(2))
	assert.Equal(t, 15*time.Second, defaults.delayFor(3))
	assert.Equal(t, DefaultMaxRetries, defaults.maxRetries)
}
