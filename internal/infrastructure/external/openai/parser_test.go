package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDecodeReceipt(t *testing.T) {
	content := "```json\n" + `{"vendor":" Uber India ","amount":"1,250.50","currency":"inr","expense_date":"2024-05-10",` +
		`"invoice_id":"UB-99","category":"Transport","confidence":1.4}` + "\n```"

	data, err := decodeReceipt(content)
	require.NoError(t, err)
	assert.Equal(t, "Uber India", data.Vendor)
	assert.Equal(t, 1250.50, data.Amount)
	assert.Equal(t, "INR", data.Currency)
	assert.Equal(t, "2024-05-10", data.ExpenseDate)
	assert.Equal(t, "UB-99", data.InvoiceID)
	assert.Equal(t, "transport", data.Category)
	assert.Equal(t, 1.0, data.Confidence)
	assert.Empty(t, data.Warnings)
}

func TestDecodeReceipt_MissingFields(t *testing.T) {
	data, err := decodeReceipt(`{"amount": 12}`)
	require.NoError(t, err)
	assert.Equal(t, 12.0, data.Amount)
	assert.Equal(t, "INR", data.Currency)
	assert.Contains(t, data.Warnings, "vendor missing")
	assert.Contains(t, data.Warnings, "expense date missing")

	_, err = decodeReceipt("sorry, I cannot read this")
	assert.Error(t, err)
}

func TestDecodeReceipt_NonFiniteAmount(t *testing.T) {
	for _, amount := range []string{`"NaN"`, `"Infinity"`, `"-Inf"`} {
		data, err := decodeReceipt(`{"vendor":"Uber","amount":` + amount + `,"expense_date":"2024-05-10"}`)
		require.NoError(t, err)
		assert.Zero(t, data.Amount, "amount %s", amount)
		assert.Contains(t, data.Warnings, "amount could not be read")
	}
}

func TestLoadPrompts(t *testing.T) {
	defaults, err := LoadPrompts("")
	require.NoError(t, err)
	assert.Equal(t, 1024, defaults.ReceiptExtraction.MaxTokens)

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("receipt_extraction:\n  max_tokens: 512\n"), 0o600))
	loaded, err := LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, 512, loaded.ReceiptExtraction.MaxTokens)
	assert.Equal(t, defaultSystemPrompt, loaded.ReceiptExtraction.System)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("receipt_extraction:\n  user_template: \"{{.Missing}}\"\n"), 0o600))
	_, err = LoadPrompts(bad)
	assert.Error(t, err)
}

func TestReceiptParser_Parse(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"vendor\":\"Taj Hotels\",\"amount\":8400,\"currency\":\"INR\",\"expense_date\":\"2024-04-02\",\"invoice_id\":\"TH/2024/77\",\"confidence\":0.92}"}
			}]
		}`))
	}))
	defer server.Close()

	p := NewReceiptParser(Config{APIKey: "test", BaseURL: server.URL + "/v1", Model: "gpt-4o"}, nil, zap.NewNop())

	data, err := p.Parse(context.Background(), []byte{0xff, 0xd8, 0xff}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "Taj Hotels", data.Vendor)
	assert.Equal(t, 8400.0, data.Amount)
	assert.Equal(t, "TH/2024/77", data.InvoiceID)
	assert.Equal(t, 0.92, data.Confidence)

	assert.Equal(t, "gpt-4o", captured["model"])
	messages := captured["messages"].([]interface{})
	require.Len(t, messages, 2)
	user := messages[1].(map[string]interface{})
	parts := user["content"].([]interface{})
	require.Len(t, parts, 2)
	image := parts[1].(map[string]interface{})["image_url"].(map[string]interface{})
	assert.True(t, strings.HasPrefix(image["url"].(string), "data:image/jpeg;base64,"))
}

func TestReceiptParser_RejectsUnsupportedType(t *testing.T) {
	p := NewReceiptParser(Config{APIKey: "test"}, nil, zap.NewNop())
	_, err := p.Parse(context.Background(), []byte("hello"), "text/plain")
	assert.ErrorContains(t, err, "unsupported receipt type")
}
