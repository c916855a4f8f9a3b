package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type fakeExpenses struct {
	createFunc func(ctx context.Context, e *entity.Expense) (*entity.Expense, error)
	updateFunc func(ctx context.Context, e *entity.Expense) (*entity.Expense, error)
	getFunc    func(ctx context.Context, id int64) (*entity.Expense, error)
}

func (f *fakeExpenses) Create(ctx context.Context, e *entity.Expense) (*entity.Expense, error) {
	return f.createFunc(ctx, e)
}

func (f *fakeExpenses) Update(ctx context.Context, e *entity.Expense) (*entity.Expense, error) {
	return f.updateFunc(ctx, e)
}

func (f *fakeExpenses) Get(ctx context.Context, id int64) (*entity.Expense, error) {
	return f.getFunc(ctx, id)
}

type fakeApprovals struct {
	decideFunc func(ctx context.Context, req workflow.DecisionRequest) (*workflow.Transition, error)
}

func (f *fakeApprovals) Submit(ctx context.Context, reportID, submitterID int64) (*workflow.Transition, error) {
	return nil, errors.New("not used")
}

func (f *fakeApprovals) Decide(ctx context.Context, req workflow.DecisionRequest) (*workflow.Transition, error) {
	return f.decideFunc(ctx, req)
}

func (f *fakeApprovals) AddApprover(ctx context.Context, requestType string, requestID int64, level int, userID, addedBy int64) error {
	return nil
}

func (f *fakeApprovals) GetInstance(ctx context.Context, requestType string, requestID int64) (*entity.ApprovalInstance, error) {
	return nil, errors.New("not used")
}

type fakeDashboard struct {
	rollupFunc func(ctx context.Context, companyID int64, dimension string, from, to time.Time) (*entity.SpendRollup, error)
}

func (f *fakeDashboard) Rollup(ctx context.Context, companyID int64, dimension string, from, to time.Time) (*entity.SpendRollup, error) {
	return f.rollupFunc(ctx, companyID, dimension, from, to)
}

func (f *fakeDashboard) Trends(ctx context.Context, companyID int64, months int, now time.Time) ([]entity.TrendPoint, error) {
	return nil, nil
}

func (f *fakeDashboard) Summary(ctx context.Context, companyID int64, from, to time.Time, months int) (*entity.DashboardSummary, error) {
	return nil, nil
}

func (f *fakeDashboard) ExportXLSX(ctx context.Context, companyID int64, from, to time.Time, months int) (*excelize.File, error) {
	return excelize.NewFile(), nil
}

type fakeUsers map[int64]*entity.User

func (f fakeUsers) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	return f[id], nil
}

func (f fakeUsers) ListActiveByIDs(ctx context.Context, companyID int64, ids []int64) ([]*entity.User, error) {
	return nil, nil
}

func (f fakeUsers) ListActiveByRoles(ctx context.Context, companyID int64, roleIDs []int64) ([]*entity.User, error) {
	return nil, nil
}

func (f fakeUsers) ListRoles(ctx context.Context, companyID int64, roleIDs []int64) ([]*entity.Role, error) {
	return nil, nil
}

func newTestServer(services Services) *Server {
	if services.Users == nil {
		services.Users = fakeUsers{10: {ID: 10, CompanyID: 1, Active: true}}
	}
	return NewServer(DefaultServerConfig(), services, nopLogger{})
}

func do(t *testing.T, s *Server, method, path string, userID int64, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set(UserIDHeader, fmt.Sprint(userID))
	}

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	var resp Response
	if w.Header().Get("Content-Type") != xlsxContentType {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func TestHealthCheck(t *testing.T) {
	w, resp := do(t, newTestServer(Services{}), http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}

func TestAPI_RequiresUserHeader(t *testing.T) {
	w, resp := do(t, newTestServer(Services{}), http.MethodGet, "/api/expenses/1", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", resp.Code)
}

func TestCreateExpense(t *testing.T) {
	var captured *entity.Expense
	expenses := &fakeExpenses{
		createFunc: func(ctx context.Context, e *entity.Expense) (*entity.Expense, error) {
			captured = e
			out := *e
			out.ID = 55
			flag := entity.DuplicatePotential
			reason := "vendor + amount + date"
			out.SetDuplicate(&flag, &reason)
			return &out, nil
		},
	}
	s := newTestServer(Services{Expenses: expenses})

	w, resp := do(t, s, http.MethodPost, "/api/expenses", 10, map[string]interface{}{
		"vendor":       "Uber Technologies!!",
		"amount":       100,
		"currency":     "INR",
		"expense_date": "2024-05-10",
		"invoice_date": "2024-05-09",
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, resp.Success)
	require.NotNil(t, captured)
	assert.Equal(t, int64(10), captured.UserID)
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), captured.ExpenseDate)
	require.NotNil(t, captured.InvoiceDate)

	data := resp.Data.(map[string]interface{})
	assert.Contains(t, data["warning"], "matched on vendor + amount + date")
}

func TestCreateExpense_BindingErrors(t *testing.T) {
	s := newTestServer(Services{Expenses: &fakeExpenses{}})

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing amount", map[string]interface{}{"vendor": "Uber", "expense_date": "2024-05-10"}},
		{"lowercase currency", map[string]interface{}{"vendor": "Uber", "amount": 5, "currency": "usd", "expense_date": "2024-05-10"}},
		{"bad date", map[string]interface{}{"vendor": "Uber", "amount": 5, "expense_date": "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, s, http.MethodPost, "/api/expenses", 10, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "INVALID_INPUT", resp.Code)
		})
	}
}

func TestUpdateExpense_OwnerOnly(t *testing.T) {
	expenses := &fakeExpenses{
		getFunc: func(ctx context.Context, id int64) (*entity.Expense, error) {
			return &entity.Expense{ID: id, UserID: 99}, nil
		},
	}
	s := newTestServer(Services{Expenses: expenses})

	w, resp := do(t, s, http.MethodPut, "/api/expenses/3", 10, map[string]interface{}{
		"vendor": "Uber", "amount": 5, "expense_date": "2024-05-10",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", resp.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: 3", service.ErrExpenseNotFound), http.StatusNotFound, "NOT_FOUND"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		expenses := &fakeExpenses{
			getFunc: func(ctx context.Context, id int64) (*entity.Expense, error) { return nil, tt.err },
		}
		w, resp := do(t, newTestServer(Services{Expenses: expenses}), http.MethodGet, "/api/expenses/3", 10, nil)
		assert.Equal(t, tt.status, w.Code)
		assert.Equal(t, tt.code, resp.Code)
		assert.NotContains(t, resp.Error, "disk")
	}
}

func TestDecideReport(t *testing.T) {
	var captured workflow.DecisionRequest
	approvals := &fakeApprovals{
		decideFunc: func(ctx context.Context, req workflow.DecisionRequest) (*workflow.Transition, error) {
			captured = req
			if req.Level != 1 {
				return nil, fmt.Errorf("%w: current level is 1", domainwf.ErrWrongLevel)
			}
			return &workflow.Transition{PreviousState: "PENDING_APPROVAL_L1", NewState: "PENDING_APPROVAL_L2"}, nil
		},
	}
	s := newTestServer(Services{Approvals: approvals})

	w, resp := do(t, s, http.MethodPost, "/api/reports/7/decisions", 20, map[string]interface{}{"level": 1, "decision": "maybe"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", resp.Code)

	w, resp = do(t, s, http.MethodPost, "/api/reports/7/decisions", 20, map[string]interface{}{"level": 2, "decision": "approve"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, domainwf.ReasonWrongLevel, resp.Code)

	w, _ = do(t, s, http.MethodPost, "/api/reports/7/decisions", 20, map[string]interface{}{
		"level": 1, "decision": "changes_requested", "comment": "missing receipt",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, workflow.DecisionRequest{
		RequestType: entity.RequestTypeExpenseReport,
		RequestID:   7,
		Level:       1,
		ApproverID:  20,
		Decision:    "changes_requested",
		Comment:     "missing receipt",
	}, captured)
}

func TestDashboard(t *testing.T) {
	var gotFrom, gotTo time.Time
	var gotDimension string
	dashboard := &fakeDashboard{
		rollupFunc: func(ctx context.Context, companyID int64, dimension string, from, to time.Time) (*entity.SpendRollup, error) {
			gotDimension, gotFrom, gotTo = dimension, from, to
			return &entity.SpendRollup{CompanyID: companyID, Dimension: dimension}, nil
		},
	}
	s := newTestServer(Services{Dashboard: dashboard})

	w, _ := do(t, s, http.MethodGet, "/api/dashboard/2/rollup?dimension=project", 10, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = do(t, s, http.MethodGet, "/api/dashboard/1/rollup?dimension=region", 10, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, s, http.MethodGet, "/api/dashboard/1/rollup?dimension=project&from=2024-05-01&to=2024-05-01", 10, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp := do(t, s, http.MethodGet, "/api/dashboard/1/rollup?dimension=project&from=2024-05-01&to=2024-06-01", 10, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, resp.Success)
	assert.Equal(t, "project", gotDimension)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), gotFrom)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), gotTo)

	w, _ = do(t, s, http.MethodGet, "/api/dashboard/1/export?from=2024-05-01&to=2024-06-01", 10, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "spend-1-2024-05.xlsx")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))
}
