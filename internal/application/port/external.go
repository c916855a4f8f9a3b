package port

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// PushSender delivers a push notification to one user
type PushSender interface {
	SendPush(ctx context.Context, user *entity.User, title, body string, data map[string]string) error
}

// EmailSender delivers a templated email
type EmailSender interface {
	SendEmail(ctx context.Context, to string, template string, data map[string]interface{}) error
}

// NotificationQueue accepts notification work without waiting for delivery
type NotificationQueue interface {
	Enqueue(notificationType entity.NotificationType, payload entity.NotificationPayload) string
}

// CurrencyConverter converts an amount in currency into the base currency
type CurrencyConverter interface {
	ConvertToINR(ctx context.Context, amount float64, currency string) (float64, error)
}

// RateFetcher pulls current exchange rates from an upstream provider
type RateFetcher interface {
	FetchRates(ctx context.Context) ([]entity.ExchangeRate, error)
}

// ReceiptParser extracts structured data from a receipt image or PDF
type ReceiptParser interface {
	Parse(ctx context.Context, content []byte, mimeType string) (*entity.ReceiptData, error)
}
