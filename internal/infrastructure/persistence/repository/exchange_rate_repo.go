package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ExchangeRateRepository implements port.ExchangeRateRepository
type ExchangeRateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ port.ExchangeRateRepository = (*ExchangeRateRepository)(nil)

// NewExchangeRateRepository creates a new exchange rate repository
func NewExchangeRateRepository(db *sql.DB, logger *zap.Logger) *ExchangeRateRepository {
	return &ExchangeRateRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert stores the latest rate for each currency
func (r *ExchangeRateRepository) Upsert(ctx context.Context, rates []entity.ExchangeRate) error {
	query := `
		INSERT INTO exchange_rates (currency, rate_to_inr, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (currency) DO UPDATE SET
			rate_to_inr = excluded.rate_to_inr,
			updated_at = excluded.updated_at
	`

	exec := sqlite.Executor(ctx, r.db)
	for _, rate := range rates {
		if _, err := exec.ExecContext(ctx, query,
			strings.ToUpper(rate.Currency), rate.RateToINR, sqlite.FormatTime(rate.UpdatedAt),
		); err != nil {
			r.logger.Error("Failed to upsert exchange rate",
				zap.String("currency", rate.Currency),
				zap.Error(err))
			return fmt.Errorf("failed to upsert rate for %s: %w", rate.Currency, err)
		}
	}
	return nil
}

// Get returns the stored rate for currency, or nil when unknown
func (r *ExchangeRateRepository) Get(ctx context.Context, currency string) (*entity.ExchangeRate, error) {
	var rate entity.ExchangeRate
	var updated string

	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT currency, rate_to_inr, updated_at FROM exchange_rates WHERE currency = ?`,
		strings.ToUpper(currency),
	).Scan(&rate.Currency, &rate.RateToINR, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange rate: %w", err)
	}

	rate.UpdatedAt = sqlite.ParseTime(updated)
	return &rate, nil
}

// List returns all stored rates ordered by currency
func (r *ExchangeRateRepository) List(ctx context.Context) ([]entity.ExchangeRate, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx,
		`SELECT currency, rate_to_inr, updated_at FROM exchange_rates ORDER BY currency`)
	if err != nil {
		return nil, fmt.Errorf("failed to list exchange rates: %w", err)
	}
	defer rows.Close()

	var rates []entity.ExchangeRate
	for rows.Next() {
		var rate entity.ExchangeRate
		var updated string
		if err := rows.Scan(&rate.Currency, &rate.RateToINR, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan exchange rate: %w", err)
		}
		rate.UpdatedAt = sqlite.ParseTime(updated)
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}
