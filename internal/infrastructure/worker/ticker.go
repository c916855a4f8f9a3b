package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// periodic runs task once at start and then every interval until stopped
type periodic struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context) error
	logger   *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
	runs      int
	failures  int
	lastError error
}

func newPeriodic(name string, interval time.Duration, task func(ctx context.Context) error, logger *zap.Logger) *periodic {
	return &periodic{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger,
	}
}

// Start launches the loop in a background goroutine
func (p *periodic) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRunning {
		return fmt.Errorf("%s already running", p.name)
	}
	if p.interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", p.name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.isRunning = true

	p.logger.Info("Worker loop started",
		zap.String("worker_name", p.name),
		zap.Duration("interval", p.interval))

	go p.loop(runCtx, p.done)
	return nil
}

// Stop cancels the loop and waits for an in-progress run to return
func (p *periodic) Stop() error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger.Info("Worker loop stopped",
		zap.String("worker_name", p.name),
		zap.Int("runs", p.runs),
		zap.Int("failures", p.failures))
	return nil
}

// Name returns the worker name for identification
func (p *periodic) Name() string {
	return p.name
}

// Stats returns completed runs, failed runs and the last failure
func (p *periodic) Stats() (runs, failures int, lastErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs, p.failures, p.lastError
}

func (p *periodic) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *periodic) runOnce(ctx context.Context) {
	err := p.task(ctx)

	p.mu.Lock()
	p.runs++
	if err != nil {
		p.failures++
		p.lastError = err
	}
	p.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		p.logger.Error("Worker run failed", zap.String("worker_name", p.name), zap.Error(err))
	}
}
