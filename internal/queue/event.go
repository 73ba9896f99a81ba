// Package queue defines the notification payload exchanged over the
// message broker and the consumer that drains it.
package queue

import (
	"time"

	"github.com/armyboard/connection-service/internal/connection"
)

// NotificationQueue is the durable queue connection events are published to.
const NotificationQueue = "connection.events"

// ConnectionEvent is published once per recipient whenever a connection
// action produces a notification.  It carries enough for the dispatcher to
// render a push or in-app message without querying the connection store.
type ConnectionEvent struct {
	EventID      string `json:"event_id"`
	Type         string `json:"type"`
	ConnectionID uint64 `json:"connection_id"`
	ListingID    uint64 `json:"listing_id"`
	Kind         string `json:"kind"`
	RecipientID  uint64 `json:"recipient_id"`
	Recipient    string `json:"recipient_role"`
	Actor        string `json:"actor_role,omitempty"`
	Stage        string `json:"stage"`
	OccurredAt   string `json:"occurred_at"`
}

// FromEvent converts an engine event into its wire payload.
func FromEvent(id string, ev connection.Event) ConnectionEvent {
	return ConnectionEvent{
		EventID:      id,
		Type:         string(ev.Type),
		ConnectionID: ev.ConnectionID,
		ListingID:    ev.ListingID,
		Kind:         string(ev.Kind),
		RecipientID:  ev.RecipientID,
		Recipient:    string(ev.Recipient),
		Actor:        string(ev.Actor),
		Stage:        string(ev.Stage),
		OccurredAt:   ev.At.UTC().Format(time.RFC3339),
	}
}
