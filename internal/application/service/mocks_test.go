package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

type logEntry struct {
	level string
	msg   string
	kv    []interface{}
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string, kv []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, kv: kv})
}

func (l *recordingLogger) Info(msg string, kv ...interface{})  { l.add("info", msg, kv) }
func (l *recordingLogger) Warn(msg string, kv ...interface{})  { l.add("warn", msg, kv) }
func (l *recordingLogger) Error(msg string, kv ...interface{}) { l.add("error", msg, kv) }

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

// memoryExpenses is an in-memory ExpenseRepository following the SQLite repository's ordering rules
type memoryExpenses struct {
	mu         sync.Mutex
	items      map[int64]*entity.Expense
	nextID     int64
	findErr    error
	updateErr  error
	flagWrites int
	lastQuery  port.CandidateQuery
}

func newMemoryExpenses() *memoryExpenses {
	return &memoryExpenses{items: make(map[int64]*entity.Expense)}
}

func (m *memoryExpenses) put(e *entity.Expense) *entity.Expense {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *e
	cp.ID = m.nextID
	if cp.Status == "" {
		cp.Status = entity.ExpenseStatusDraft
	}
	m.items[cp.ID] = &cp
	return &cp
}

func (m *memoryExpenses) Create(ctx context.Context, e *entity.Expense) error {
	stored := m.put(e)
	e.ID = stored.ID
	return nil
}

func (m *memoryExpenses) Update(ctx context.Context, e *entity.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	cp := *e
	m.items[e.ID] = &cp
	return nil
}

func (m *memoryExpenses) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *memoryExpenses) ListByReportID(ctx context.Context, reportID int64) ([]*entity.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*entity.Expense
	for id := int64(1); id <= m.nextID; id++ {
		if e, ok := m.items[id]; ok && e.ReportID != nil && *e.ReportID == reportID {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *memoryExpenses) FindDuplicateCandidates(ctx context.Context, q port.CandidateQuery) ([]*entity.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = q
	if m.findErr != nil {
		return nil, m.findErr
	}
	var result []*entity.Expense
	for id := int64(1); id <= m.nextID; id++ {
		e, ok := m.items[id]
		if !ok || e.ID == q.ExcludeID || entity.IsExcludedFromDuplicateSearch(e.Status) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

func (m *memoryExpenses) UpdateDuplicateFlag(ctx context.Context, id int64, flag *entity.DuplicateFlag, reason *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok {
		return fmt.Errorf("expense %d not found", id)
	}
	m.flagWrites++
	e.SetDuplicate(flag, reason)
	return nil
}

func (m *memoryExpenses) UpdateStatusByReport(ctx context.Context, reportID int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.items {
		if e.ReportID != nil && *e.ReportID == reportID {
			e.Status = status
		}
	}
	return nil
}

type mockUserDirectory struct {
	users         map[int64]*entity.User
	roles         map[int64]*entity.Role
	getErr        error
	listByIDsErr  error
	listByRoleErr error
}

func newUserDirectory(users ...*entity.User) *mockUserDirectory {
	d := &mockUserDirectory{users: make(map[int64]*entity.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (m *mockUserDirectory) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.users[id], nil
}

func (m *mockUserDirectory) ListActiveByIDs(ctx context.Context, companyID int64, ids []int64) ([]*entity.User, error) {
	if m.listByIDsErr != nil {
		return nil, m.listByIDsErr
	}
	var result []*entity.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok && u.Active && u.CompanyID == companyID {
			result = append(result, u)
		}
	}
	return result, nil
}

func (m *mockUserDirectory) ListActiveByRoles(ctx context.Context, companyID int64, roleIDs []int64) ([]*entity.User, error) {
	if m.listByRoleErr != nil {
		return nil, m.listByRoleErr
	}
	var result []*entity.User
	for _, u := range m.users {
		if u.Active && u.CompanyID == companyID && u.HasAnyRole(roleIDs) {
			result = append(result, u)
		}
	}
	return result, nil
}

func (m *mockUserDirectory) ListRoles(ctx context.Context, companyID int64, roleIDs []int64) ([]*entity.Role, error) {
	var result []*entity.Role
	for _, id := range roleIDs {
		if r, ok := m.roles[id]; ok && r.CompanyID == companyID {
			result = append(result, r)
		}
	}
	return result, nil
}

type mockSpendRepo struct {
	byDimensionFunc func(ctx context.Context, companyID int64, dimension string, from, to time.Time) ([]entity.SpendRow, error)
	byMonthFunc     func(ctx context.Context, companyID int64, from, to time.Time) ([]entity.SpendRow, error)
}

func (m *mockSpendRepo) SumByDimension(ctx context.Context, companyID int64, dimension string, from, to time.Time) ([]entity.SpendRow, error) {
	if m.byDimensionFunc != nil {
		return m.byDimensionFunc(ctx, companyID, dimension, from, to)
	}
	return nil, nil
}

func (m *mockSpendRepo) SumByMonth(ctx context.Context, companyID int64, from, to time.Time) ([]entity.SpendRow, error) {
	if m.byMonthFunc != nil {
		return m.byMonthFunc(ctx, companyID, from, to)
	}
	return nil, nil
}

func (m *mockSpendRepo) ListCompanyIDs(ctx context.Context) ([]int64, error) {
	return nil, nil
}

// fixedRates converts with a static table
type fixedRates map[string]float64

func (r fixedRates) ConvertToINR(ctx context.Context, amount float64, currency string) (float64, error) {
	rate, ok := r[currency]
	if !ok {
		return 0, fmt.Errorf("no rate for %s", currency)
	}
	return amount * rate, nil
}

type mockStorage struct {
	saved   map[string][]byte
	saveErr error
}

func (m *mockStorage) Save(ctx context.Context, path string, content []byte) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.saved[path] = content
	return nil
}

func (m *mockStorage) Read(ctx context.Context, path string) ([]byte, error) {
	return m.saved[path], nil
}

func (m *mockStorage) Exists(ctx context.Context, path string) bool {
	_, ok := m.saved[path]
	return ok
}

func (m *mockStorage) Delete(ctx context.Context, path string) error {
	delete(m.saved, path)
	return nil
}

func (m *mockStorage) GetFullPath(relativePath string) string {
	return "/data/" + relativePath
}

type mockParser struct {
	parseFunc func(ctx context.Context, content []byte, mimeType string) (*entity.ReceiptData, error)
}

func (m *mockParser) Parse(ctx context.Context, content []byte, mimeType string) (*entity.ReceiptData, error) {
	return m.parseFunc(ctx, content, mimeType)
}

// capturingDispatcher records published events without running handlers
type capturingDispatcher struct {
	mu       sync.Mutex
	events   []*event.Event
	handlers map[event.Type][]dispatcher.HandlerInfo
}

func (d *capturingDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {
	d.SubscribeNamed(eventType, string(eventType), handler)
}

func (d *capturingDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers == nil {
		d.handlers = make(map[event.Type][]dispatcher.HandlerInfo)
	}
	d.handlers[eventType] = append(d.handlers[eventType], dispatcher.HandlerInfo{Name: name, EventType: eventType, Handler: handler})
}

func (d *capturingDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (d *capturingDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
	return nil
}

func (d *capturingDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	_ = d.Dispatch(ctx, evt)
}

func (d *capturingDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handlers[eventType]
}

func (d *capturingDispatcher) Close() error { return nil }
