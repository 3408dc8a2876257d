package port

import "context"

// QueueStore defines the interface for message queues (NATS JetStream streams, Redis lists).
type QueueStore interface {
	// OpenQueue returns a handle to the named queue, creating it if absent.
	OpenQueue(ctx context.Context, name string) (Queue, error)
}

// Queue is an opened queue.
type Queue interface {
	// Enqueue publishes payload and blocks until the broker acknowledges it.
	Enqueue(ctx context.Context, payload []byte) error
}

// QueueStoreFactory builds a QueueStore from an already resolved connection string.
type QueueStoreFactory func(ctx context.Context, connection string) (QueueStore, error)
