package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type recordingWorker struct {
	name     string
	startErr error
	log      *[]string
}

func (w *recordingWorker) Start(ctx context.Context) error {
	*w.log = append(*w.log, "start "+w.name)
	return w.startErr
}

func (w *recordingWorker) Stop() error {
	*w.log = append(*w.log, "stop "+w.name)
	return nil
}

func (w *recordingWorker) Name() string { return w.name }

func TestWorkerManager_Lifecycle(t *testing.T) {
	var log []string
	m := NewWorkerManager(zap.NewNop())
	m.Register(&recordingWorker{name: "queue", log: &log})
	m.Register(&recordingWorker{name: "rates", log: &log})

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.Error(t, m.StartAll(context.Background()), "double start")

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	assert.Equal(t, []string{"start queue", "start rates", "stop rates", "stop queue"}, log)
	assert.Equal(t, 2, m.GetWorkerCount())
}

func TestWorkerManager_StartFailureIsReported(t *testing.T) {
	var log []string
	m := NewWorkerManager(zap.NewNop())
	m.Register(&recordingWorker{name: "broken", startErr: errors.New("boom"), log: &log})
	m.Register(&recordingWorker{name: "ok", log: &log})

	err := m.StartAll(context.Background())
	assert.ErrorContains(t, err, "1 of 2")
	assert.Contains(t, log, "start ok")
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingRefresher) Refresh(ctx context.Context, fetcher port.RateFetcher) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return 3, r.err
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestRateRefreshWorker_RunsImmediatelyAndPeriodically(t *testing.T) {
	refresher := &countingRefresher{}
	w := NewRateRefreshWorker(refresher, nil, 10*time.Millisecond, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Eventually(t, func() bool { return refresher.count() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())

	stopped := refresher.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, refresher.count(), "no runs after Stop")
	assert.Equal(t, "rate-refresher", w.Name())
}

func TestRateRefreshWorker_RecordsFailures(t *testing.T) {
	refresher := &countingRefresher{err: errors.New("provider down")}
	w := NewRateRefreshWorker(refresher, nil, time.Hour, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Eventually(t, func() bool {
		_, failures, _ := w.Stats()
		return failures == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())

	_, _, lastErr := w.Stats()
	assert.ErrorContains(t, lastErr, "provider down")
}

type fakeDashboard struct {
	mu    sync.Mutex
	calls []int64
	fail  map[int64]bool
	from  time.Time
	to    time.Time
}

func (d *fakeDashboard) Rollup(ctx context.Context, companyID int64, dimension string, from, to time.Time) (*entity.SpendRollup, error) {
	return nil, nil
}

func (d *fakeDashboard) Trends(ctx context.Context, companyID int64, months int, now time.Time) ([]entity.TrendPoint, error) {
	return nil, nil
}

func (d *fakeDashboard) Summary(ctx context.Context, companyID int64, from, to time.Time, months int) (*entity.DashboardSummary, error) {
	return nil, nil
}

func (d *fakeDashboard) ExportXLSX(ctx context.Context, companyID int64, from, to time.Time, months int) (*excelize.File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, companyID)
	d.from, d.to = from, to
	if d.fail[companyID] {
		return nil, errors.New("aggregation failed")
	}
	f := excelize.NewFile()
	_ = f.SetCellValue("Sheet1", "A1", companyID)
	return f, nil
}

type staticCompanies []int64

func (c staticCompanies) ListCompanyIDs(ctx context.Context) ([]int64, error) {
	return c, nil
}

type memoryStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (s *memoryStorage) Save(ctx context.Context, path string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = content
	return nil
}

func (s *memoryStorage) Read(ctx context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[path], nil
}

func (s *memoryStorage) Exists(ctx context.Context, path string) bool {
	_, ok := s.files[path]
	return ok
}

func (s *memoryStorage) Delete(ctx context.Context, path string) error {
	delete(s.files, path)
	return nil
}

func (s *memoryStorage) GetFullPath(relativePath string) string {
	return "/tmp/" + relativePath
}

func TestSnapshotWorker_WritesOneWorkbookPerCompany(t *testing.T) {
	dashboard := &fakeDashboard{fail: map[int64]bool{2: true}}
	storage := &memoryStorage{files: make(map[string][]byte)}
	pathFor := func(companyID int64, at time.Time) string {
		return "exports/" + string(rune('0'+companyID)) + ".xlsx"
	}

	w := NewSnapshotWorker(SnapshotConfig{Interval: time.Hour, Months: 3}, dashboard, staticCompanies{1, 2, 3}, storage, pathFor, zap.NewNop())
	w.now = func() time.Time { return time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC) }

	err := w.snapshotAll(context.Background())
	assert.ErrorContains(t, err, "company 2")

	assert.Equal(t, []int64{1, 2, 3}, dashboard.calls)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), dashboard.from)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), dashboard.to)

	require.Len(t, storage.files, 2)
	content := storage.files["exports/1.xlsx"]
	require.NotEmpty(t, content)
	assert.Equal(t, []byte("PK"), content[:2], "xlsx is a zip container")
}
