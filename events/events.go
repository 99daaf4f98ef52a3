// Package events carries domain events between mutations and the
// subscription transport. The production bus rides on NATS; an in-process
// bus backs tests and single-node development.
package events

import (
	"context"

	"github.com/c360/socialgate/message"
)

// Type names for published events.
const (
	TypeMessageCreated = "message.created"
	TypeMessageDeleted = "message.deleted"
)

// Event is the envelope delivered to subscription handlers.
type Event struct {
	Type    string           `json:"type"`
	Message *message.Message `json:"message,omitempty"`
}

// Handler consumes one delivered event. Each delivery to a subscription
// client is one operation; handlers receive a context scoped to it.
type Handler func(ctx context.Context, ev Event)

// Bus is the publish/subscribe boundary.
type Bus interface {
	// Publish delivers the event to all current subscribers.
	Publish(ctx context.Context, ev Event) error

	// Subscribe registers a handler for all events. The returned function
	// cancels the subscription.
	Subscribe(ctx context.Context, h Handler) (func(), error)
}
