package lark

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/garyjia/expense-approval/internal/application/port"
	"go.uber.org/zap"
)

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var emailTemplates = map[string]emailTemplate{
	"approval_required": mustEmailTemplate(
		"Action needed: {{.title}}",
		`Hello {{.name}},

{{.body}}

Request: {{.request_type}} #{{.request_id}}
Level: {{.level}}

Please open the expense portal to approve, reject or request changes.`),
	"status_change": mustEmailTemplate(
		"{{.title}}",
		`Hello {{.name}},

{{.body}}

Request: {{.request_type}} #{{.request_id}}
Current status: {{.status}}`),
	"additional_approver": mustEmailTemplate(
		"{{.title}}",
		`Hello {{.name}},

{{.body}}

Request: {{.request_type}} #{{.request_id}}`),
}

func mustEmailTemplate(subject, body string) emailTemplate {
	return emailTemplate{
		subject: template.Must(template.New("subject").Parse(subject)),
		body:    template.Must(template.New("body").Parse(body)),
	}
}

// EmailSender implements port.EmailSender by mailing through Lark's email receive type
type EmailSender struct {
	client *Client
	logger *zap.Logger
}

var _ port.EmailSender = (*EmailSender)(nil)

// NewEmailSender creates a new email sender
func NewEmailSender(client *Client, logger *zap.Logger) *EmailSender {
	return &EmailSender{
		client: client,
		logger: logger,
	}
}

// SendEmail renders template with data and sends it to the address
func (s *EmailSender) SendEmail(ctx context.Context, to string, templateName string, data map[string]interface{}) error {
	if to == "" {
		return fmt.Errorf("recipient address cannot be empty")
	}

	subject, body, err := renderEmail(templateName, data)
	if err != nil {
		return err
	}

	content, err := postContent(subject, body, nil)
	if err != nil {
		return err
	}

	messageID, err := s.client.SendMessage(ctx, ReceiveIDTypeEmail, to, "post", content, "")
	if err != nil {
		s.logger.Error("Failed to send email",
			zap.String("to", to),
			zap.String("template", templateName),
			zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("Email sent",
		zap.String("to", to),
		zap.String("template", templateName),
		zap.String("message_id", messageID))
	return nil
}

func renderEmail(name string, data map[string]interface{}) (string, string, error) {
	tmpl, ok := emailTemplates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}

	var subject, body bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("failed to render subject: %w", err)
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("failed to render body: %w", err)
	}
	return strings.TrimSpace(subject.String()), body.String(), nil
}
