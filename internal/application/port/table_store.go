package port

import (
	"context"
	"time"
)

// TableRow is a single log row written to a table sink.
type TableRow struct {
	PartitionKey string
	RowKey       string
	Timestamp    time.Time
	Level        string
	Message      string
}

// TableStore defines the interface for table-like sinks (DynamoDB, PostgreSQL).
type TableStore interface {
	// OpenTable returns a handle to the named table, creating it if absent.
	OpenTable(ctx context.Context, name string) (Table, error)
}

// Table is an opened table.
type Table interface {
	// InsertRows writes rows in as few remote calls as the backend allows.
	// Implementations handle backend batching limits (e.g., DynamoDB's 25 items/request).
	InsertRows(ctx context.Context, rows []TableRow) error
}

// TableStoreFactory builds a TableStore from an already resolved connection string.
type TableStoreFactory func(ctx context.Context, connection string) (TableStore, error)
