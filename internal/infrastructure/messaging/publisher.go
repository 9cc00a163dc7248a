// Package messaging publishes transaction status changes to downstream
// consumers.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
)

// EventTypeStatusChanged is set on every status change message
const EventTypeStatusChanged = "transaction.status_changed"

// Publisher sends status change events
type Publisher interface {
	PublishStatusChange(ctx context.Context, event entities.StatusChangedEvent) error
	Close() error
}

// NoopPublisher drops every event. Used when messaging is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishStatusChange(context.Context, entities.StatusChangedEvent) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }

type envelope struct {
	Type string                      `json:"type"`
	Data entities.StatusChangedEvent `json:"data"`
}

// encode returns the message key and JSON value for an event. Keying by
// transaction id keeps a transaction's events on one partition.
func encode(event entities.StatusChangedEvent) ([]byte, []byte, error) {
	if event.TransactionID == "" {
		return nil, nil, fmt.Errorf("status change event has no transaction id")
	}
	value, err := json.Marshal(envelope{Type: EventTypeStatusChanged, Data: event})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal status change: %w", err)
	}
	return []byte(event.TransactionID), value, nil
}
