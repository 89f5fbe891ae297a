package queue

import "context"

// Publisher hands delivery ids to the evaluation workers. Publish blocks when
// the queue is full, which is the intake back-pressure mechanism.
type Publisher interface {
	Publish(ctx context.Context, deliveryID string) error
}

// Consumer receives delivery ids for evaluation. Receive blocks until an id
// is available or the context is cancelled.
type Consumer interface {
	Receive(ctx context.Context) (string, error)
}
