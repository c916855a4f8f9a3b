// Package currency converts foreign-currency amounts into INR using stored exchange rates.
package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrUnknownCurrency is returned when no rate is stored for a currency
var ErrUnknownCurrency = errors.New("no exchange rate for currency")

// RateConverter implements port.CurrencyConverter from an in-memory cache backed by the rate table
type RateConverter struct {
	repo   port.ExchangeRateRepository
	logger *zap.Logger

	mu    sync.RWMutex
	rates map[string]decimal.Decimal
}

var _ port.CurrencyConverter = (*RateConverter)(nil)

// NewRateConverter creates a converter with an empty cache
func NewRateConverter(repo port.ExchangeRateRepository, logger *zap.Logger) *RateConverter {
	return &RateConverter{
		repo:   repo,
		logger: logger,
		rates:  make(map[string]decimal.Decimal),
	}
}

// ConvertToINR returns amount in INR rounded to cents. INR and an empty currency pass through.
func (c *RateConverter) ConvertToINR(ctx context.Context, amount float64, currency string) (float64, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == entity.BaseCurrency {
		return amount, nil
	}

	rate, err := c.rate(ctx, currency)
	if err != nil {
		return 0, err
	}

	converted := decimal.NewFromFloat(amount).Mul(rate).Round(2)
	return converted.InexactFloat64(), nil
}

func (c *RateConverter) rate(ctx context.Context, currency string) (decimal.Decimal, error) {
	c.mu.RLock()
	rate, ok := c.rates[currency]
	c.mu.RUnlock()
	if ok {
		return rate, nil
	}

	stored, err := c.repo.Get(ctx, currency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load rate for %s: %w", currency, err)
	}
	if stored == nil || stored.RateToINR <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownCurrency, currency)
	}

	rate = decimal.NewFromFloat(stored.RateToINR)
	c.mu.Lock()
	c.rates[currency] = rate
	c.mu.Unlock()
	return rate, nil
}

// Warm loads every stored rate into the cache
func (c *RateConverter) Warm(ctx context.Context) error {
	rates, err := c.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list exchange rates: %w", err)
	}
	c.replace(rates)
	c.logger.Info("Exchange rate cache warmed", zap.Int("currencies", len(rates)))
	return nil
}

// Refresh pulls current rates from fetcher, stores them and swaps them into the cache
func (c *RateConverter) Refresh(ctx context.Context, fetcher port.RateFetcher) (int, error) {
	rates, err := fetcher.FetchRates(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch exchange rates: %w", err)
	}
	if len(rates) == 0 {
		return 0, nil
	}

	if err := c.repo.Upsert(ctx, rates); err != nil {
		return 0, fmt.Errorf("failed to store exchange rates: %w", err)
	}
	c.replace(rates)
	return len(rates), nil
}

func (c *RateConverter) replace(rates []entity.ExchangeRate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range rates {
		if r.RateToINR <= 0 {
			continue
		}
		c.rates[strings.ToUpper(r.Currency)] = decimal.NewFromFloat(r.RateToINR)
	}
}
