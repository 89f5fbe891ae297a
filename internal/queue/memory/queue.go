package memory

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrClosed is returned by Receive after Close drains the queue.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-process delivery-id queue. The element is a database
// key, not the event itself: workers re-read the row and the conditional
// status update keeps duplicate ids harmless.
type Queue struct {
	ch    chan string
	depth prometheus.Gauge
}

// New creates a queue with the given capacity. The gauge tracks queued ids
// and may be nil.
func New(size int, depth prometheus.Gauge) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		ch:    make(chan string, size),
		depth: depth,
	}
}

// Publish enqueues a delivery id, blocking while the queue is full.
func (q *Queue) Publish(ctx context.Context, deliveryID string) error {
	select {
	case q.ch <- deliveryID:
		if q.depth != nil {
			q.depth.Inc()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive dequeues the next delivery id, blocking until one is available.
func (q *Queue) Receive(ctx context.Context) (string, error) {
	select {
	case id, ok := <-q.ch:
		if !ok {
			return "", ErrClosed
		}
		if q.depth != nil {
			q.depth.Dec()
		}
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close stops accepting ids. Queued ids are still delivered to Receive.
func (q *Queue) Close() {
	close(q.ch)
}
