package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"go.uber.org/zap"
)

// CompanyLister lists the companies that get a dashboard snapshot
type CompanyLister interface {
	ListCompanyIDs(ctx context.Context) ([]int64, error)
}

// SnapshotConfig holds configuration for the dashboard snapshot worker
type SnapshotConfig struct {
	Interval time.Duration
	Months   int
}

// SnapshotWorker writes a dashboard workbook per company on every run.
// Each snapshot covers the trailing Months calendar months up to now.
type SnapshotWorker struct {
	*periodic
	config    SnapshotConfig
	dashboard service.DashboardService
	companies CompanyLister
	storage   port.FileStorage
	pathFor   func(companyID int64, generatedAt time.Time) string
	now       func() time.Time
	logger    *zap.Logger
}

// NewSnapshotWorker creates a new snapshot worker; pathFor names each workbook
func NewSnapshotWorker(
	config SnapshotConfig,
	dashboard service.DashboardService,
	companies CompanyLister,
	storage port.FileStorage,
	pathFor func(companyID int64, generatedAt time.Time) string,
	logger *zap.Logger,
) *SnapshotWorker {
	if config.Months <= 0 {
		config.Months = 6
	}
	w := &SnapshotWorker{
		config:    config,
		dashboard: dashboard,
		companies: companies,
		storage:   storage,
		pathFor:   pathFor,
		now:       time.Now,
		logger:    logger,
	}
	w.periodic = newPeriodic("dashboard-snapshot", config.Interval, w.snapshotAll, logger)
	return w
}

func (w *SnapshotWorker) snapshotAll(ctx context.Context) error {
	ids, err := w.companies.ListCompanyIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list companies: %w", err)
	}

	now := w.now().UTC()
	var errs []error
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		path, err := w.snapshot(ctx, id, now)
		if err != nil {
			w.logger.Warn("Dashboard snapshot failed", zap.Int64("company_id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("company %d: %w", id, err))
			continue
		}
		w.logger.Info("Dashboard snapshot written", zap.Int64("company_id", id), zap.String("path", path))
	}
	return errors.Join(errs...)
}

func (w *SnapshotWorker) snapshot(ctx context.Context, companyID int64, now time.Time) (string, error) {
	to := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, -w.config.Months, 0)

	f, err := w.dashboard.ExportXLSX(ctx, companyID, from, to, w.config.Months)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", fmt.Errorf("failed to encode workbook: %w", err)
	}

	path := w.pathFor(companyID, now)
	if err := w.storage.Save(ctx, path, buf.Bytes()); err != nil {
		return "", err
	}
	return path, nil
}
