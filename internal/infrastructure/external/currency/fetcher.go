package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxResponseSize bounds how much of the provider's response is read
const maxResponseSize = 1 << 20

// HTTPRateFetcher reads INR-based rates from an open exchange-rate endpoint.
// The endpoint returns units of each currency per 1 INR; stored rates are the inverse.
type HTTPRateFetcher struct {
	url    string
	client *http.Client
	now    func() time.Time
	logger *zap.Logger
}

var _ port.RateFetcher = (*HTTPRateFetcher)(nil)

// ratesResponse is the provider payload, e.g. {"result":"success","base_code":"INR","rates":{"USD":0.012}}
type ratesResponse struct {
	Result   string             `json:"result"`
	BaseCode string             `json:"base_code"`
	Rates    map[string]float64 `json:"rates"`
}

// NewHTTPRateFetcher creates a fetcher for url
func NewHTTPRateFetcher(url string, timeout time.Duration, logger *zap.Logger) *HTTPRateFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRateFetcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
		logger: logger,
	}
}

// FetchRates returns one rate per currency, sorted by currency code
func (f *HTTPRateFetcher) FetchRates(ctx context.Context) ([]entity.ExchangeRate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate provider returned status %d", resp.StatusCode)
	}

	var payload ratesResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode rates: %w", err)
	}
	if payload.Result != "" && payload.Result != "success" {
		return nil, fmt.Errorf("rate provider returned result %q", payload.Result)
	}
	if base := strings.ToUpper(payload.BaseCode); base != "" && base != entity.BaseCurrency {
		return nil, fmt.Errorf("rate provider base is %s, want %s", base, entity.BaseCurrency)
	}

	now := f.now().UTC()
	rates := make([]entity.ExchangeRate, 0, len(payload.Rates))
	for code, perINR := range payload.Rates {
		code = strings.ToUpper(code)
		if perINR <= 0 || code == entity.BaseCurrency {
			continue
		}
		toINR := decimal.NewFromInt(1).DivRound(decimal.NewFromFloat(perINR), 8)
		rates = append(rates, entity.ExchangeRate{
			Currency:  code,
			RateToINR: toINR.InexactFloat64(),
			UpdatedAt: now,
		})
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].Currency < rates[j].Currency })

	f.logger.Debug("Fetched exchange rates", zap.Int("count", len(rates)))
	return rates, nil
}
