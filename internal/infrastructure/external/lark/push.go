package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"go.uber.org/zap"
)

// PushSender implements port.PushSender with Lark post messages
type PushSender struct {
	client        *Client
	receiveIDType string
	logger        *zap.Logger
}

var _ port.PushSender = (*PushSender)(nil)

// NewPushSender creates a push sender; an empty receiveIDType addresses users by email
func NewPushSender(client *Client, receiveIDType string, logger *zap.Logger) *PushSender {
	if receiveIDType == "" {
		receiveIDType = ReceiveIDTypeEmail
	}
	return &PushSender{
		client:        client,
		receiveIDType: receiveIDType,
		logger:        logger,
	}
}

// SendPush delivers title and body to one user
func (s *PushSender) SendPush(ctx context.Context, user *entity.User, title, body string, data map[string]string) error {
	receiveID := s.receiveID(user)
	if receiveID == "" {
		return fmt.Errorf("user %d has no %s to address", user.ID, s.receiveIDType)
	}

	content, err := postContent(title, body, data)
	if err != nil {
		return err
	}

	if _, err := s.client.SendMessage(ctx, s.receiveIDType, receiveID, "post", content, ""); err != nil {
		return err
	}

	s.logger.Info("Push sent",
		zap.Int64("user_id", user.ID),
		zap.String("type", data["type"]),
		zap.String("request_id", data["request_id"]))
	return nil
}

func (s *PushSender) receiveID(user *entity.User) string {
	if s.receiveIDType == ReceiveIDTypeEmail {
		return user.Email
	}
	return strconv.FormatInt(user.ID, 10)
}

type postElement struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

type postBody struct {
	Title   string          `json:"title"`
	Content [][]postElement `json:"content"`
}

// postContent builds a rich-text message: the body line, then the request reference
func postContent(title, body string, data map[string]string) (string, error) {
	lines := [][]postElement{{{Tag: "text", Text: body}}}
	if ref := data["request_id"]; ref != "" {
		lines = append(lines, []postElement{{Tag: "text", Text: "Report #" + ref}})
	}

	content, err := json.Marshal(map[string]postBody{
		"en_us": {Title: title, Content: lines},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal post content: %w", err)
	}
	return string(content), nil
}
