package openai

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// PromptConfig holds the receipt extraction prompt and its model parameters
type PromptConfig struct {
	ReceiptExtraction struct {
		Temperature  float32 `yaml:"temperature"`
		MaxTokens    int     `yaml:"max_tokens"`
		System       string  `yaml:"system"`
		UserTemplate string  `yaml:"user_template"`
	} `yaml:"receipt_extraction"`
}

const defaultSystemPrompt = `You read receipts and invoices for an expense management system.
Extract only what is printed on the document. Never guess a value that is not visible.
Always respond with a single JSON object.`

const defaultUserTemplate = `Extract these fields from the attached receipt ({{.Pages}} page(s)):
- vendor: merchant or supplier name as printed
- amount: final total paid, as a number without currency symbols or thousands separators
- currency: ISO 4217 code; use {{.DefaultCurrency}} when only a rupee symbol or no symbol is shown
- expense_date: transaction date as YYYY-MM-DD
- invoice_id: invoice, bill or receipt number, empty when absent
- invoice_date: invoice date as YYYY-MM-DD, empty when absent
- category: one of travel, meals, lodging, transport, office, software, other
- confidence: 0 to 1, how sure you are about vendor, amount and date together
- warnings: short notes about unreadable or ambiguous fields

Respond with JSON only, using exactly these keys.`

// DefaultPrompts returns the built-in prompt configuration
func DefaultPrompts() *PromptConfig {
	var p PromptConfig
	p.ReceiptExtraction.Temperature = 0.1
	p.ReceiptExtraction.MaxTokens = 1024
	p.ReceiptExtraction.System = defaultSystemPrompt
	p.ReceiptExtraction.UserTemplate = defaultUserTemplate
	return &p
}

// LoadPrompts reads a YAML prompt file over the defaults. An empty path returns the defaults.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	prompts := DefaultPrompts()
	if promptsPath == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	if err := yaml.Unmarshal(data, prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	if _, err := renderTemplate(prompts.ReceiptExtraction.UserTemplate, promptData{Pages: 1, DefaultCurrency: "INR"}); err != nil {
		return nil, fmt.Errorf("invalid receipt_extraction.user_template: %w", err)
	}
	return prompts, nil
}

type promptData struct {
	Pages           int
	DefaultCurrency string
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
