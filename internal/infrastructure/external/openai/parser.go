// Package openai extracts structured receipt data with an OpenAI vision model.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrEmptyResponse is returned when the model returns no choices or no content
var ErrEmptyResponse = errors.New("no response from OpenAI")

// Config holds the receipt parser settings
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	MaxPages int
	Timeout  time.Duration
}

// ReceiptParser implements port.ReceiptParser using chat completions with image input
type ReceiptParser struct {
	client   *openai.Client
	model    string
	maxPages int
	timeout  time.Duration
	prompts  *PromptConfig
	logger   *zap.Logger
}

var _ port.ReceiptParser = (*ReceiptParser)(nil)

// NewReceiptParser creates a new receipt parser. A nil prompts uses DefaultPrompts.
func NewReceiptParser(cfg Config, prompts *PromptConfig, logger *zap.Logger) *ReceiptParser {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 2
	}

	return &ReceiptParser{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		maxPages: cfg.MaxPages,
		timeout:  cfg.Timeout,
		prompts:  prompts,
		logger:   logger,
	}
}

// receiptResponse mirrors the JSON object the prompt asks for
type receiptResponse struct {
	Vendor      string          `json:"vendor"`
	Amount      json.RawMessage `json:"amount"`
	Currency    string          `json:"currency"`
	ExpenseDate string          `json:"expense_date"`
	InvoiceID   string          `json:"invoice_id"`
	InvoiceDate string          `json:"invoice_date"`
	Category    string          `json:"category"`
	Confidence  float64         `json:"confidence"`
	Warnings    []string        `json:"warnings"`
}

// Parse extracts receipt fields from an image or PDF
func (p *ReceiptParser) Parse(ctx context.Context, content []byte, mimeType string) (*entity.ReceiptData, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	images, imageType, err := p.pages(content, mimeType)
	if err != nil {
		return nil, err
	}

	cfg := p.prompts.ReceiptExtraction
	prompt, err := renderTemplate(cfg.UserTemplate, promptData{Pages: len(images), DefaultCurrency: entity.BaseCurrency})
	if err != nil {
		return nil, err
	}

	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: prompt}}
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:%s;base64,%s", imageType, base64.StdEncoding.EncodeToString(img)),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}

	p.logger.Info("Extracting receipt with vision model",
		zap.String("model", p.model),
		zap.String("mime_type", mimeType),
		zap.Int("pages", len(images)))

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: cfg.System},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		p.logger.Error("OpenAI API call failed", zap.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyResponse
	}

	data, err := decodeReceipt(resp.Choices[0].Message.Content)
	if err != nil {
		p.logger.Error("Failed to parse OpenAI response",
			zap.Error(err),
			zap.String("content", resp.Choices[0].Message.Content))
		return nil, err
	}

	p.logger.Info("Receipt extracted",
		zap.String("vendor", data.Vendor),
		zap.Float64("amount", data.Amount),
		zap.String("currency", data.Currency),
		zap.Float64("confidence", data.Confidence))
	return data, nil
}

// pages returns the images to send and their mime type
func (p *ReceiptParser) pages(content []byte, mimeType string) ([][]byte, string, error) {
	if mimeType == "application/pdf" {
		images, err := renderPDFPages(content, p.maxPages, p.logger)
		if err != nil {
			return nil, "", err
		}
		return images, "image/jpeg", nil
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, "", fmt.Errorf("unsupported receipt type %q", mimeType)
	}
	return [][]byte{content}, mimeType, nil
}

// decodeReceipt parses the model output, tolerating a fenced code block around the JSON
func decodeReceipt(content string) (*entity.ReceiptData, error) {
	var raw receiptResponse
	if err := json.Unmarshal([]byte(extractJSON(content)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	data := &entity.ReceiptData{
		Vendor:      strings.TrimSpace(raw.Vendor),
		Currency:    strings.ToUpper(strings.TrimSpace(raw.Currency)),
		ExpenseDate: strings.TrimSpace(raw.ExpenseDate),
		InvoiceID:   strings.TrimSpace(raw.InvoiceID),
		InvoiceDate: strings.TrimSpace(raw.InvoiceDate),
		Category:    strings.ToLower(strings.TrimSpace(raw.Category)),
		Confidence:  math.Max(0, math.Min(1, raw.Confidence)),
		Warnings:    raw.Warnings,
	}

	if s := amountText(raw.Amount); s != "" {
		amount, err := strconv.ParseFloat(s, 64)
		if err != nil || amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
			data.Warnings = append(data.Warnings, "amount could not be read")
		} else {
			data.Amount = amount
		}
	}
	if data.Currency == "" {
		data.Currency = entity.BaseCurrency
	}
	if data.Vendor == "" {
		data.Warnings = append(data.Warnings, "vendor missing")
	}
	if data.ExpenseDate == "" {
		data.Warnings = append(data.Warnings, "expense date missing")
	}
	return data, nil
}

// amountText accepts the amount as a JSON number or a string with thousands separators
func amountText(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	s = strings.Trim(s, `"`)
	return strings.ReplaceAll(strings.TrimSpace(s), ",", "")
}

// extractJSON returns the outermost {...} span of content, or content unchanged
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return content
	}
	return content[start : end+1]
}
