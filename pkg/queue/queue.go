package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// QueueService is the publish half of the queue, for callers that only
// enqueue work.
type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// QueueConfig sizes the consumer side.
type QueueConfig struct {
	Workers    int           // concurrent job handlers
	QueueSize  int           // max pending messages, 0 for unbounded
	RetryLimit int           // retries before a message is dead-lettered
	RetryDelay time.Duration // wait between attempts
}

// Message is the wire form stored in Redis. Payload round-trips through
// JSON, so handlers receive it decoded, not as the type that was published.
type Message struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Attempts  int         `json:"attempts"`
	Timestamp time.Time   `json:"ts"`
}

// ParsePayload recovers a typed payload from whatever form the queue
// delivered: the original value when dispatched in-process, or decoded JSON
// after a round-trip through Redis.
func ParsePayload[T any](payload interface{}) (*T, error) {
	var out T

	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		if err := json.Unmarshal(p, &out); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &out, nil
	case map[string]interface{}, []interface{}:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("re-encode payload: %w", err)
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &out, nil
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}
}
