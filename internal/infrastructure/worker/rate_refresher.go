package worker

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"go.uber.org/zap"
)

// RateRefresher is the converter side of a rate refresh
type RateRefresher interface {
	Refresh(ctx context.Context, fetcher port.RateFetcher) (int, error)
}

// RateRefreshWorker periodically pulls exchange rates into the converter
type RateRefreshWorker struct {
	*periodic
	refresher RateRefresher
	fetcher   port.RateFetcher
	timeout   time.Duration
	logger    *zap.Logger
}

// NewRateRefreshWorker creates a worker that refreshes rates every interval
func NewRateRefreshWorker(refresher RateRefresher, fetcher port.RateFetcher, interval time.Duration, logger *zap.Logger) *RateRefreshWorker {
	w := &RateRefreshWorker{
		refresher: refresher,
		fetcher:   fetcher,
		timeout:   30 * time.Second,
		logger:    logger,
	}
	w.periodic = newPeriodic("rate-refresher", interval, w.refresh, logger)
	return w
}

func (w *RateRefreshWorker) refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	n, err := w.refresher.Refresh(ctx, w.fetcher)
	if err != nil {
		return err
	}
	w.logger.Info("Exchange rates refreshed", zap.Int("currencies", n))
	return nil
}
