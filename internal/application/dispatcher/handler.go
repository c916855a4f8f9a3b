package dispatcher

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes one subscription
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}
