package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const (
	defaultTrendMonths = 6
	maxTrendMonths     = 24
)

// Dimensions lists the rollup dimensions in display order
var Dimensions = []string{entity.DimensionDepartment, entity.DimensionProject, entity.DimensionCostCentre}

// IsValidDimension reports whether d is a supported rollup dimension
func IsValidDimension(d string) bool {
	for _, known := range Dimensions {
		if d == known {
			return true
		}
	}
	return false
}

// DashboardService reads spend aggregates. All amounts are converted to INR.
type DashboardService interface {
	Rollup(ctx context.Context, companyID int64, dimension string, from, to time.Time) (*entity.SpendRollup, error)
	Trends(ctx context.Context, companyID int64, months int, now time.Time) ([]entity.TrendPoint, error)
	Summary(ctx context.Context, companyID int64, from, to time.Time, months int) (*entity.DashboardSummary, error)
	ExportXLSX(ctx context.Context, companyID int64, from, to time.Time, months int) (*excelize.File, error)
}

type dashboardServiceImpl struct {
	spend     port.SpendRepository
	converter port.CurrencyConverter
	logger    Logger
	now       func() time.Time
}

// NewDashboardService creates a new DashboardService
func NewDashboardService(spend port.SpendRepository, converter port.CurrencyConverter, logger Logger) DashboardService {
	return &dashboardServiceImpl{
		spend:     spend,
		converter: converter,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *dashboardServiceImpl) Rollup(ctx context.Context, companyID int64, dimension string, from, to time.Time) (*entity.SpendRollup, error) {
	if !IsValidDimension(dimension) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDimension, dimension)
	}
	if !to.After(from) {
		return nil, ErrInvalidRange
	}

	rows, err := s.spend.SumByDimension(ctx, companyID, dimension, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s spend: %w", dimension, err)
	}

	totals, counts, err := s.toINR(ctx, rows)
	if err != nil {
		return nil, err
	}

	rollup := &entity.SpendRollup{
		CompanyID: companyID,
		Dimension: dimension,
		From:      from,
		To:        to,
		Buckets:   make([]entity.SpendBucket, 0, len(totals)),
	}
	total := decimal.Zero
	for key, amount := range totals {
		total = total.Add(amount)
		rollup.Buckets = append(rollup.Buckets, entity.SpendBucket{
			Key:          key,
			AmountINR:    amount.Round(2).InexactFloat64(),
			ExpenseCount: counts[key],
		})
	}
	sort.Slice(rollup.Buckets, func(i, j int) bool {
		a, b := rollup.Buckets[i], rollup.Buckets[j]
		if a.AmountINR != b.AmountINR {
			return a.AmountINR > b.AmountINR
		}
		return a.Key < b.Key
	})
	rollup.TotalINR = total.Round(2).InexactFloat64()
	return rollup, nil
}

// Trends returns one point per calendar month ending with the month of now, oldest first.
// ChangePercent is nil for the first month and whenever the previous month had no spend.
func (s *dashboardServiceImpl) Trends(ctx context.Context, companyID int64, months int, now time.Time) ([]entity.TrendPoint, error) {
	if months <= 0 {
		months = defaultTrendMonths
	}
	if months > maxTrendMonths {
		months = maxTrendMonths
	}

	u := now.UTC()
	end := time.Date(u.Year(), u.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, -months, 0)

	rows, err := s.spend.SumByMonth(ctx, companyID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly spend: %w", err)
	}

	totals, counts, err := s.toINR(ctx, rows)
	if err != nil {
		return nil, err
	}

	points := make([]entity.TrendPoint, 0, months)
	var prev decimal.Decimal
	for i := 0; i < months; i++ {
		month := start.AddDate(0, i, 0).Format("2006-01")
		amount := totals[month]

		point := entity.TrendPoint{
			Month:        month,
			AmountINR:    amount.Round(2).InexactFloat64(),
			ExpenseCount: counts[month],
		}
		if i > 0 && !prev.IsZero() {
			change := amount.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
			point.ChangePercent = &change
		}
		points = append(points, point)
		prev = amount
	}
	return points, nil
}

// Summary computes the three rollups and the trend concurrently
func (s *dashboardServiceImpl) Summary(ctx context.Context, companyID int64, from, to time.Time, months int) (*entity.DashboardSummary, error) {
	summary := &entity.DashboardSummary{CompanyID: companyID, GeneratedAt: s.now().UTC()}

	g, gctx := errgroup.WithContext(ctx)
	targets := map[string]*entity.SpendRollup{
		entity.DimensionDepartment: &summary.ByDepartment,
		entity.DimensionProject:    &summary.ByProject,
		entity.DimensionCostCentre: &summary.ByCostCentre,
	}
	for dimension, target := range targets {
		dimension, target := dimension, target
		g.Go(func() error {
			rollup, err := s.Rollup(gctx, companyID, dimension, from, to)
			if err != nil {
				return err
			}
			*target = *rollup
			return nil
		})
	}
	g.Go(func() error {
		trend, err := s.Trends(gctx, companyID, months, to.Add(-time.Nanosecond))
		if err != nil {
			return err
		}
		summary.Trend = trend
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("Dashboard summary failed", "company_id", companyID, "error", err)
		return nil, err
	}
	return summary, nil
}

// ExportXLSX renders the summary as a workbook with one sheet per dimension plus the trend
func (s *dashboardServiceImpl) ExportXLSX(ctx context.Context, companyID int64, from, to time.Time, months int) (*excelize.File, error) {
	summary, err := s.Summary(ctx, companyID, from, to, months)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	header, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	money, _ := f.NewStyle(&excelize.Style{NumFmt: 4})

	sheets := []struct {
		name   string
		rollup entity.SpendRollup
	}{
		{"Department", summary.ByDepartment},
		{"Project", summary.ByProject},
		{"Cost Centre", summary.ByCostCentre},
	}
	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.name); err != nil {
				return nil, fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			return nil, fmt.Errorf("failed to add sheet: %w", err)
		}

		writeRow(f, sh.name, 1, header, "Bucket", "Amount (INR)", "Expenses")
		row := 2
		for _, b := range sh.rollup.Buckets {
			writeRow(f, sh.name, row, 0, b.Key, b.AmountINR, b.ExpenseCount)
			row++
		}
		writeRow(f, sh.name, row, header, "Total", sh.rollup.TotalINR, "")
		_ = f.SetCellStyle(sh.name, "B2", fmt.Sprintf("B%d", row), money)
		_ = f.SetColWidth(sh.name, "A", "A", 28)
		_ = f.SetColWidth(sh.name, "B", "C", 16)
	}

	const trendSheet = "Trend"
	if _, err := f.NewSheet(trendSheet); err != nil {
		return nil, fmt.Errorf("failed to add sheet: %w", err)
	}
	writeRow(f, trendSheet, 1, header, "Month", "Amount (INR)", "Expenses", "Change %")
	for i, p := range summary.Trend {
		var change interface{} = ""
		if p.ChangePercent != nil {
			change = *p.ChangePercent
		}
		writeRow(f, trendSheet, i+2, 0, p.Month, p.AmountINR, p.ExpenseCount, change)
	}
	_ = f.SetColWidth(trendSheet, "A", "D", 16)

	f.SetActiveSheet(0)
	return f, nil
}

// toINR converts raw rows into per-key INR totals and expense counts
func (s *dashboardServiceImpl) toINR(ctx context.Context, rows []entity.SpendRow) (map[string]decimal.Decimal, map[string]int, error) {
	totals := make(map[string]decimal.Decimal)
	counts := make(map[string]int)
	for _, r := range rows {
		amount := r.Amount
		if r.Currency != "" && r.Currency != entity.BaseCurrency {
			converted, err := s.converter.ConvertToINR(ctx, r.Amount, r.Currency)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to convert %s spend: %w", r.Currency, err)
			}
			amount = converted
		}
		totals[r.Key] = totals[r.Key].Add(decimal.NewFromFloat(amount))
		counts[r.Key] += r.Count
	}
	return totals, counts, nil
}

func writeRow(f *excelize.File, sheet string, row, style int, values ...interface{}) {
	for i, v := range values {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := fmt.Sprintf("%s%d", col, row)
		_ = f.SetCellValue(sheet, cell, v)
		if style != 0 {
			_ = f.SetCellStyle(sheet, cell, cell, style)
		}
	}
}
