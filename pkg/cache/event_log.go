package cache

import (
	"context"
	"fmt"
	"time"
)

// EventKeyPrefix namespaces processed webhook event ids
const EventKeyPrefix = "webhook:event:"

// DefaultEventTTL is how long a processed event id is remembered. The
// provider stops redelivering well before this.
const DefaultEventTTL = 7 * 24 * time.Hour

// EventLog records processed webhook events in Redis. Entries expire on
// their own, so no purge job is needed.
type EventLog struct {
	client *Client
	ttl    time.Duration
}

// NewEventLog creates an event log; a non-positive ttl uses DefaultEventTTL
func NewEventLog(client *Client, ttl time.Duration) *EventLog {
	if ttl <= 0 {
		ttl = DefaultEventTTL
	}
	return &EventLog{client: client, ttl: ttl}
}

// Seen reports whether eventID has been processed
func (l *EventLog) Seen(ctx context.Context, eventID string) (bool, error) {
	seen, err := l.client.Exists(ctx, EventKeyPrefix+eventID)
	if err != nil {
		return false, fmt.Errorf("failed checking webhook event: %w", err)
	}
	return seen, nil
}

// MarkProcessed remembers eventID; marking twice is a no-op
func (l *EventLog) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	if _, err := l.client.SetNX(ctx, EventKeyPrefix+eventID, eventType, l.ttl); err != nil {
		return fmt.Errorf("failed recording webhook event: %w", err)
	}
	return nil
}
