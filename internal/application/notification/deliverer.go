package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Email templates used by the fallback path
const (
	TemplateApprovalRequired   = "approval_required"
	TemplateStatusChange       = "status_change"
	TemplateAdditionalApprover = "additional_approver"
)

// Message is the rendered form of a task, shared by every transport
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Deliverer sends tasks over push and records them in-app; email is the fallback.
// The in-app record is written on the first attempt only so retries do not duplicate it.
type Deliverer struct {
	users  port.UserDirectory
	push   port.PushSender
	email  port.EmailSender
	inApp  port.InAppNotificationRepository
	logger Logger
}

var _ Handler = (*Deliverer)(nil)

// NewDeliverer creates a new Deliverer
func NewDeliverer(
	users port.UserDirectory,
	push port.PushSender,
	email port.EmailSender,
	inApp port.InAppNotificationRepository,
	logger Logger,
) *Deliverer {
	return &Deliverer{
		users:  users,
		push:   push,
		email:  email,
		inApp:  inApp,
		logger: logger,
	}
}

// Deliver pushes to every recipient; any push failure fails the attempt
func (d *Deliverer) Deliver(ctx context.Context, task *entity.NotificationTask) error {
	recipients, err := d.recipients(ctx, task)
	if err != nil {
		return err
	}

	msg := Render(task)
	var errs []error
	for _, user := range recipients {
		if task.RetryCount == 0 {
			d.recordInApp(ctx, task, user, msg)
		}
		if err := d.push.SendPush(ctx, user, msg.Title, msg.Body, msg.Data); err != nil {
			errs = append(errs, fmt.Errorf("push to user %d: %w", user.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Fallback emails every recipient that has an address
func (d *Deliverer) Fallback(ctx context.Context, task *entity.NotificationTask) error {
	recipients, err := d.recipients(ctx, task)
	if err != nil {
		return err
	}

	msg := Render(task)
	data := map[string]interface{}{
		"title": msg.Title,
		"body":  msg.Body,
	}
	for k, v := range msg.Data {
		data[k] = v
	}

	var errs []error
	for _, user := range recipients {
		if user.Email == "" {
			continue
		}
		data["name"] = user.Name
		if err := d.email.SendEmail(ctx, user.Email, TemplateFor(task.Type), data); err != nil {
			errs = append(errs, fmt.Errorf("email to user %d: %w", user.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Deliverer) recipients(ctx context.Context, task *entity.NotificationTask) ([]*entity.User, error) {
	users := make([]*entity.User, 0, len(task.Payload.RecipientIDs))
	for _, id := range task.Payload.RecipientIDs {
		u, err := d.users.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load recipient %d: %w", id, err)
		}
		if u == nil {
			d.logger.Warn("Notification recipient not found", "task_id", task.ID, "user_id", id)
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func (d *Deliverer) recordInApp(ctx context.Context, task *entity.NotificationTask, user *entity.User, msg Message) {
	data, _ := json.Marshal(msg.Data)
	record := &entity.InAppNotification{
		UserID: user.ID,
		Type:   string(task.Type),
		Title:  msg.Title,
		Body:   msg.Body,
		Data:   string(data),
	}
	if err := d.inApp.Create(ctx, record); err != nil {
		d.logger.Error("Failed to write in-app notification",
			"task_id", task.ID, "user_id", user.ID, "error", err)
	}
}

// TemplateFor maps a notification type to its email template
func TemplateFor(t entity.NotificationType) string {
	switch t {
	case entity.NotificationApprovalRequired:
		return TemplateApprovalRequired
	case entity.NotificationAdditionalApprover:
		return TemplateAdditionalApprover
	default:
		return TemplateStatusChange
	}
}

// Render builds the transport-neutral message for a task
func Render(task *entity.NotificationTask) Message {
	p := task.Payload
	msg := Message{
		Data: map[string]string{
			"type":         string(task.Type),
			"request_type": p.RequestType,
			"request_id":   strconv.FormatInt(p.RequestID, 10),
			"instance_id":  strconv.FormatInt(p.InstanceID, 10),
			"level":        strconv.Itoa(p.Level),
			"status":       p.Status,
		},
	}
	if p.Decision != "" {
		msg.Data["decision"] = p.Decision
	}

	switch task.Type {
	case entity.NotificationApprovalRequired:
		msg.Title = "Approval required"
		msg.Body = fmt.Sprintf("Expense report #%d is waiting for your decision at level %d.", p.RequestID, p.Level)
	case entity.NotificationAdditionalApprover:
		msg.Title = "You were added as an approver"
		msg.Body = fmt.Sprintf("You can now decide level %d of expense report #%d.", p.Level, p.RequestID)
	default:
		msg.Title = "Expense report " + statusLabel(p.Status)
		msg.Body = fmt.Sprintf("Your expense report #%d is now %s.", p.RequestID, statusLabel(p.Status))
		if p.Comment != "" {
			msg.Body += " Comment: " + p.Comment
		}
	}
	return msg
}

func statusLabel(status string) string {
	switch status {
	case "APPROVED":
		return "approved"
	case "REJECTED":
		return "rejected"
	case "CHANGES_REQUESTED":
		return "returned for changes"
	default:
		return status
	}
}
