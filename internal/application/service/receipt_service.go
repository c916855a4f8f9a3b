package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/duplicate"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/similarity"
)

// MaxReceiptSize bounds an uploaded receipt
const MaxReceiptSize = 10 << 20

var (
	ErrUnsupportedReceipt = errors.New("unsupported receipt type")
	ErrReceiptTooLarge    = errors.New("receipt too large")
	ErrReceiptParse       = errors.New("receipt could not be parsed")
)

var supportedReceiptTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// ReceiptPathFunc decides where an uploaded receipt is stored
type ReceiptPathFunc func(userID int64, uploadedAt time.Time, fileName string) string

// ReceiptScan is the outcome of scanning one receipt: an unsaved draft plus its duplicate classification
type ReceiptScan struct {
	Draft     *entity.Expense     `json:"draft"`
	Receipt   *entity.ReceiptData `json:"receipt"`
	Duplicate duplicate.Result    `json:"duplicate"`
}

// ReceiptService turns receipt uploads into expense drafts
type ReceiptService interface {
	Scan(ctx context.Context, userID int64, fileName, mimeType string, content []byte) (*ReceiptScan, error)
}

type receiptServiceImpl struct {
	storage    port.FileStorage
	parser     port.ReceiptParser
	users      port.UserDirectory
	duplicates DuplicateService
	pathFor    ReceiptPathFunc
	logger     Logger
	now        func() time.Time
}

// NewReceiptService creates a new ReceiptService
func NewReceiptService(
	storage port.FileStorage,
	parser port.ReceiptParser,
	users port.UserDirectory,
	duplicates DuplicateService,
	pathFor ReceiptPathFunc,
	logger Logger,
) ReceiptService {
	return &receiptServiceImpl{
		storage:    storage,
		parser:     parser,
		users:      users,
		duplicates: duplicates,
		pathFor:    pathFor,
		logger:     logger,
		now:        time.Now,
	}
}

// Scan stores the upload, extracts its fields and runs the pre-save duplicate check.
// Nothing is written to the expenses table; the caller decides whether to create the draft.
func (s *receiptServiceImpl) Scan(ctx context.Context, userID int64, fileName, mimeType string, content []byte) (*ReceiptScan, error) {
	mimeType = strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if !supportedReceiptTypes[mimeType] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedReceipt, mimeType)
	}
	if len(content) == 0 || len(content) > MaxReceiptSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrReceiptTooLarge, len(content))
	}

	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if owner == nil {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}

	path := s.pathFor(userID, s.now().UTC(), fileName)
	if err := s.storage.Save(ctx, path, content); err != nil {
		return nil, fmt.Errorf("failed to store receipt: %w", err)
	}

	data, err := s.parser.Parse(ctx, content, mimeType)
	if err != nil {
		s.logger.Error("Receipt parsing failed", "user_id", userID, "path", path, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrReceiptParse, err)
	}

	draft := draftFromReceipt(userID, path, data)
	result := s.duplicates.CheckForDuplicateBeforeSave(ctx, draft, owner.CompanyID, 0)
	draft.SetDuplicate(result.Flag, result.Reason)

	s.logger.Info("Receipt scanned",
		"user_id", userID, "path", path, "vendor", draft.Vendor, "confidence", data.Confidence, "duplicate", result.IsDuplicate())

	return &ReceiptScan{Draft: draft, Receipt: data, Duplicate: result}, nil
}

func draftFromReceipt(userID int64, path string, data *entity.ReceiptData) *entity.Expense {
	draft := &entity.Expense{
		UserID:      userID,
		Vendor:      strings.TrimSpace(data.Vendor),
		Amount:      data.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(data.Currency)),
		InvoiceID:   strings.TrimSpace(data.InvoiceID),
		Category:    data.Category,
		ReceiptPath: path,
		Status:      entity.ExpenseStatusDraft,
	}
	if draft.Currency == "" {
		draft.Currency = entity.BaseCurrency
	}
	if math.IsNaN(draft.Amount) || math.IsInf(draft.Amount, 0) {
		draft.Amount = 0
	}
	if d, ok := similarity.ParseDate(data.ExpenseDate); ok {
		draft.ExpenseDate = d
	}
	if d, ok := similarity.ParseDate(data.InvoiceDate); ok {
		draft.InvoiceDate = &d
	}
	return draft
}
