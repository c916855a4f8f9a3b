package service

import (
	"context"
	"testing"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expenseFixture struct {
	repo       *memoryExpenses
	reports    *memoryReports
	dispatcher *capturingDispatcher
	svc        ExpenseService
}

func newExpenseFixture() *expenseFixture {
	repo := newMemoryExpenses()
	reports := newMemoryReports()
	users := newUserDirectory(
		&entity.User{ID: 1, CompanyID: 10, Active: true},
		&entity.User{ID: 2, CompanyID: 10, Active: true},
	)
	logger := &recordingLogger{}
	d := &capturingDispatcher{}
	dup := NewDuplicateService(repo, users, logger)
	svc := NewExpenseService(repo, reports, users, dup, logger,
		WithCurrencyConverter(fixedRates{"USD": 83}),
		WithExpenseDispatcher(d),
	)
	return &expenseFixture{repo: repo, reports: reports, dispatcher: d, svc: svc}
}

func TestExpenseService_CreateStoresFlagAndNeverBlocks(t *testing.T) {
	f := newExpenseFixture()
	ctx := context.Background()

	first, err := f.svc.Create(ctx, &entity.Expense{UserID: 1, Vendor: "uber technologies", Amount: 100, ExpenseDate: may(11)})
	require.NoError(t, err)
	assert.Nil(t, first.DuplicateFlag)

	second, err := f.svc.Create(ctx, &entity.Expense{UserID: 1, Vendor: "Uber Technologies!!", Amount: 100, ExpenseDate: may(10)})
	require.NoError(t, err)
	require.NotZero(t, second.ID)
	require.NotNil(t, second.DuplicateFlag)
	assert.Equal(t, entity.DuplicatePotential, *second.DuplicateFlag)
	assert.Equal(t, "vendor + amount + date", *second.DuplicateReason)
	assert.Equal(t, entity.ExpenseStatusDraft, second.Status)
	assert.Equal(t, entity.BaseCurrency, second.Currency)

	require.Len(t, f.dispatcher.events, 2)
	assert.Equal(t, event.TypeExpenseSaved, f.dispatcher.events[1].Type)
	assert.Equal(t, second.ID, f.dispatcher.events[1].AggregateID)
}

func TestExpenseService_CreateConvertsForeignCurrency(t *testing.T) {
	f := newExpenseFixture()

	e, err := f.svc.Create(context.Background(), &entity.Expense{UserID: 1, Vendor: "AWS", Amount: 10, Currency: "usd", ExpenseDate: may(2)})

	require.NoError(t, err)
	assert.Equal(t, entity.BaseCurrency, e.Currency)
	assert.InDelta(t, 830, e.Amount, 0.0001)
	require.NotNil(t, e.OriginalAmount)
	assert.Equal(t, 10.0, *e.OriginalAmount)
	assert.Equal(t, "USD", e.OriginalCurrency)
}

func TestExpenseService_CreateValidation(t *testing.T) {
	f := newExpenseFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, &entity.Expense{UserID: 1, Vendor: "x", Amount: 0, ExpenseDate: may(1)})
	assert.ErrorIs(t, err, ErrInvalidExpense)

	_, err = f.svc.Create(ctx, &entity.Expense{UserID: 1, Vendor: "x", Amount: 5})
	assert.ErrorIs(t, err, ErrInvalidExpense)

	_, err = f.svc.Create(ctx, &entity.Expense{UserID: 99, Vendor: "x", Amount: 5, ExpenseDate: may(1)})
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = f.svc.Create(ctx, &entity.Expense{UserID: 1, Vendor: "x", Amount: 5, Currency: "GBP", ExpenseDate: may(1)})
	assert.Error(t, err, "no rate configured for GBP")
}

func TestExpenseService_UpdateRechecksAndClears(t *testing.T) {
	f := newExpenseFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, &entity.Expense{UserID: 1, Vendor: "Cafe", Amount: 12, ExpenseDate: may(5), InvoiceID: "R-9"})
	require.NoError(t, err)
	dup, err := f.svc.Create(ctx, &entity.Expense{UserID: 1, Vendor: "Cafe", Amount: 12, ExpenseDate: may(5), InvoiceID: "r9"})
	require.NoError(t, err)
	require.NotNil(t, dup.DuplicateFlag)

	changed := *dup
	changed.InvoiceID = "R-10"
	changed.Amount = 15
	updated, err := f.svc.Update(ctx, &changed)
	require.NoError(t, err)
	assert.Nil(t, updated.DuplicateFlag)
	assert.Nil(t, updated.DuplicateReason)

	stored, _ := f.repo.GetByID(ctx, dup.ID)
	assert.Equal(t, 15.0, stored.Amount)
	assert.Nil(t, stored.DuplicateFlag)
}

func TestExpenseService_UpdateRequiresDraft(t *testing.T) {
	f := newExpenseFixture()
	ctx := context.Background()

	submitted := f.repo.put(&entity.Expense{UserID: 1, Vendor: "Cafe", Amount: 12, ExpenseDate: may(5), Status: entity.ExpenseStatusSubmitted})

	_, err := f.svc.Update(ctx, submitted)
	assert.ErrorIs(t, err, ErrExpenseNotEditable)

	_, err = f.svc.Update(ctx, &entity.Expense{ID: 404})
	assert.ErrorIs(t, err, ErrExpenseNotFound)
}

func TestExpenseService_ReportMustBeOwnedAndEditable(t *testing.T) {
	f := newExpenseFixture()
	ctx := context.Background()

	report := func(userID int64, status string) *int64 {
		r := &entity.ExpenseReport{UserID: userID, CompanyID: 10, Name: "May", Status: status}
		require.NoError(t, f.reports.Create(ctx, r))
		return &r.ID
	}
	draft := report(1, "DRAFT")
	reopened := report(1, "CHANGES_REQUESTED")
	pending := report(1, "PENDING_APPROVAL_L1")
	approved := report(1, "APPROVED")
	foreign := report(2, "DRAFT")
	missing := int64(777)

	for _, id := range []*int64{&missing, foreign, pending, approved} {
		_, err := f.svc.Create(ctx, &entity.Expense{UserID: 1, ReportID: id, Vendor: "Cafe", Amount: 12, ExpenseDate: may(5)})
		assert.ErrorIs(t, err, ErrInvalidExpense, "report %d", *id)
	}
	assert.Empty(t, f.repo.items)

	e, err := f.svc.Create(ctx, &entity.Expense{UserID: 1, ReportID: draft, Vendor: "Cafe", Amount: 12, ExpenseDate: may(5)})
	require.NoError(t, err)
	assert.Equal(t, *draft, *e.ReportID)

	moved := *e
	moved.ReportID = reopened
	updated, err := f.svc.Update(ctx, &moved)
	require.NoError(t, err)
	assert.Equal(t, *reopened, *updated.ReportID)

	moved.ReportID = foreign
	_, err = f.svc.Update(ctx, &moved)
	assert.ErrorIs(t, err, ErrInvalidExpense)

	stored, _ := f.repo.GetByID(ctx, e.ID)
	assert.Equal(t, *reopened, *stored.ReportID)
}
