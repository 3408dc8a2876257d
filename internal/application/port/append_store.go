package port

import "context"

// AppendStore is a remote service holding append-only objects inside containers
// (S3 buckets, CloudWatch log groups).
type AppendStore interface {
	// OpenContainer returns a handle to the named container, creating it if absent.
	OpenContainer(ctx context.Context, name string) (AppendContainer, error)
}

// AppendContainer is an opened container.
type AppendContainer interface {
	// OpenObject returns a handle to the named append-only object, creating it if absent.
	OpenObject(ctx context.Context, name string) (AppendObject, error)
}

// AppendObject is an opened append-only object.
type AppendObject interface {
	// Append appends payload to the end of the object. The call blocks until
	// the remote service acknowledges the write.
	Append(ctx context.Context, payload []byte) error
}

// AppendStoreFactory builds an AppendStore from an already resolved connection string.
type AppendStoreFactory func(ctx context.Context, connection string) (AppendStore, error)
