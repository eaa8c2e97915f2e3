package queue

import "context"

// Job consumes messages of one type from the queue.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type this job consumes.
	Type() string

	// Handle processes one message. The payload arrives in wire form; use
	// ParsePayload to recover the typed value.
	Handle(ctx context.Context, payload interface{}) error
}
