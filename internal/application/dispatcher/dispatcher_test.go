package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingLogger implements Logger for testing
type recordingLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (l *recordingLogger) Info(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *recordingLogger) Error(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) ErrorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func savedEvent() *event.Event {
	return event.NewEvent(event.TypeExpenseSaved, 1, nil)
}

func TestDispatch(t *testing.T) {
	t.Run("runs handlers in subscription order", func(t *testing.T) {
		d := NewDispatcher()
		var order []string

		d.SubscribeNamed(event.TypeExpenseSaved, "first", func(ctx context.Context, evt *event.Event) error {
			order = append(order, "first")
			return nil
		})
		d.SubscribeNamed(event.TypeExpenseSaved, "second", func(ctx context.Context, evt *event.Event) error {
			order = append(order, "second")
			return nil
		})

		require.NoError(t, d.Dispatch(context.Background(), savedEvent()))
		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("stops at first error", func(t *testing.T) {
		logger := &recordingLogger{}
		d := NewDispatcher(WithLogger(logger))
		called := false

		d.Subscribe(event.TypeExpenseSaved, func(ctx context.Context, evt *event.Event) error {
			return errors.New("boom")
		})
		d.Subscribe(event.TypeExpenseSaved, func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		err := d.Dispatch(context.Background(), savedEvent())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
		assert.False(t, called)
		assert.Equal(t, 1, logger.ErrorCount())
	})

	t.Run("recovers from handler panic", func(t *testing.T) {
		d := NewDispatcher()
		d.Subscribe(event.TypeExpenseSaved, func(ctx context.Context, evt *event.Event) error {
			panic("kaboom")
		})

		err := d.Dispatch(context.Background(), savedEvent())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "handler panic")
	})

	t.Run("only matching event type is routed", func(t *testing.T) {
		d := NewDispatcher()
		called := false
		d.Subscribe(event.TypeReportSubmitted, func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		require.NoError(t, d.Dispatch(context.Background(), savedEvent()))
		assert.False(t, called)
	})

	t.Run("fails when closed", func(t *testing.T) {
		d := NewDispatcher()
		require.NoError(t, d.Close())
		assert.Error(t, d.Dispatch(context.Background(), savedEvent()))
	})
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	var calls []string

	d.SubscribeNamed(event.TypeExpenseSaved, "keep", func(ctx context.Context, evt *event.Event) error {
		calls = append(calls, "keep")
		return nil
	})
	d.SubscribeNamed(event.TypeExpenseSaved, "drop", func(ctx context.Context, evt *event.Event) error {
		calls = append(calls, "drop")
		return nil
	})

	d.Unsubscribe(event.TypeExpenseSaved, "drop")

	require.NoError(t, d.Dispatch(context.Background(), savedEvent()))
	assert.Equal(t, []string{"keep"}, calls)
}

func TestDispatchAsync(t *testing.T) {
	t.Run("close waits for handlers", func(t *testing.T) {
		d := NewDispatcher()
		var called atomic.Int32

		for i := 0; i < 2; i++ {
			d.Subscribe(event.TypeExpenseSaved, func(ctx context.Context, evt *event.Event) error {
				time.Sleep(10 * time.Millisecond)
				called.Add(1)
				return nil
			})
		}

		d.DispatchAsync(context.Background(), savedEvent())
		require.NoError(t, d.Close())
		assert.Equal(t, int32(2), called.Load())
	})

	t.Run("handlers survive caller cancellation", func(t *testing.T) {
		d := NewDispatcher()
		var ctxErr atomic.Value
		started := make(chan struct{})

		d.Subscribe(event.TypeReportSubmitted, func(ctx context.Context, evt *event.Event) error {
			<-started
			ctxErr.Store(fmt.Sprint(ctx.Err()))
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		d.DispatchAsync(ctx, event.NewEvent(event.TypeReportSubmitted, 9, nil))
		cancel()
		close(started)

		require.NoError(t, d.Close())
		assert.Equal(t, "<nil>", ctxErr.Load())
	})

	t.Run("async timeout bounds handlers", func(t *testing.T) {
		d := NewDispatcher(WithAsyncTimeout(20 * time.Millisecond))
		var timedOut atomic.Bool

		d.Subscribe(event.TypeExpenseSaved, func(ctx context.Context, evt *event.Event) error {
			<-ctx.Done()
			timedOut.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
			return ctx.Err()
		})

		d.DispatchAsync(context.Background(), savedEvent())
		require.NoError(t, d.Close())
		assert.True(t, timedOut.Load())
	})

	t.Run("errors and panics are logged, not returned", func(t *testing.T) {
		logger := &recordingLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Int32

		d.Subscribe(event.TypeExpenseSaved, func(ctx context.Context, evt *event.Event) error {
			return errors.New("handler error")
		})
		d.Subscribe(event.TypeExpenseSaved, func(ctx context.Context, evt *event.Event) error {
			panic("async panic")
		})
		d.Subscribe(event.TypeExpenseSaved, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		d.DispatchAsync(context.Background(), savedEvent())
		require.NoError(t, d.Close())

		assert.Equal(t, int32(1), called.Load())
		assert.GreaterOrEqual(t, logger.ErrorCount(), 2)
	})

	t.Run("dropped after close", func(t *testing.T) {
		logger := &recordingLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Int32
		d.Subscribe(event.TypeExpenseSaved, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		require.NoError(t, d.Close())
		d.DispatchAsync(context.Background(), savedEvent())

		time.Sleep(20 * time.Millisecond)
		assert.Zero(t, called.Load())
		assert.Equal(t, 1, logger.ErrorCount())
	})
}

func TestListHandlers(t *testing.T) {
	d := NewDispatcher()
	assert.Empty(t, d.ListHandlers(event.TypeExpenseSaved))

	d.SubscribeNamed(event.TypeExpenseSaved, "duplicate-check", func(ctx context.Context, evt *event.Event) error {
		return nil
	})
	d.SubscribeNamed(event.TypeReportSubmitted, "other", func(ctx context.Context, evt *event.Event) error {
		return nil
	})

	handlers := d.ListHandlers(event.TypeExpenseSaved)
	require.Len(t, handlers, 1)
	assert.Equal(t, "duplicate-check", handlers[0].Name)
	assert.Equal(t, event.TypeExpenseSaved, handlers[0].EventType)
	assert.Nil(t, handlers[0].Handler)
}

func TestClose_Twice(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Close())
	assert.Error(t, d.Close())
}

func TestConcurrentSubscribeAndDispatch(t *testing.T) {
	d := NewDispatcher()
	var called atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.SubscribeNamed(event.TypeExpenseSaved, fmt.Sprintf("handler-%d", id), func(ctx context.Context, evt *event.Event) error {
				called.Add(1)
				return nil
			})
		}(i)
	}
	wg.Wait()
	require.Len(t, d.ListHandlers(event.TypeExpenseSaved), 10)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Dispatch(context.Background(), savedEvent())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(100), called.Load())
}
