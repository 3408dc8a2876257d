package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dreschagin/cloudsink/internal/application/port"
	"github.com/dreschagin/cloudsink/internal/infrastructure/connection"
)

const defaultKeyPrefix = "cloudsink"

// client is the subset of *redis.Client used by QueueStore
type client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Close() error
}

// QueueStore implements queues as Redis lists: producers RPUSH,
// consumers BLPOP from "<prefix>:queue:<name>".
type QueueStore struct {
	client    client
	keyPrefix string
	maxLen    int64
}

// QueueStoreConfig holds Redis connection and list settings
type QueueStoreConfig struct {
	Options   *redis.Options
	KeyPrefix string
	MaxLen    int64 // 0 means unbounded
}

// NewQueueStore creates a new Redis queue store
func NewQueueStore(ctx context.Context, cfg QueueStoreConfig) (*QueueStore, error) {
	rdb := redis.NewClient(cfg.Options)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newQueueStore(rdb, cfg), nil
}

func newQueueStore(c client, cfg QueueStoreConfig) *QueueStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &QueueStore{client: c, keyPrefix: prefix, maxLen: cfg.MaxLen}
}

// NewQueueStoreFromConnection is a port.QueueStoreFactory.
// Accepts "redis://:password@host:6379/0" or
// "Addr=host:6379;Password=secret;DB=0;KeyPrefix=cloudsink;MaxLen=100000".
func NewQueueStoreFromConnection(ctx context.Context, raw string) (port.QueueStore, error) {
	cfg, err := parseQueueStoreConfig(raw)
	if err != nil {
		return nil, err
	}
	return NewQueueStore(ctx, cfg)
}

func parseQueueStoreConfig(raw string) (QueueStoreConfig, error) {
	descriptor, err := connection.Parse(raw)
	if err != nil {
		return QueueStoreConfig{}, err
	}

	var options *redis.Options
	if url := descriptor.URL(); url != "" {
		options, err = redis.ParseURL(url)
		if err != nil {
			return QueueStoreConfig{}, fmt.Errorf("%w: %w", connection.ErrInvalidDescriptor, err)
		}
	} else {
		addr, err := descriptor.Require("Addr")
		if err != nil {
			return QueueStoreConfig{}, err
		}
		db, err := descriptor.Int("DB", 0)
		if err != nil {
			return QueueStoreConfig{}, err
		}
		options = &redis.Options{
			Addr:     addr,
			Password: descriptor.Get("Password"),
			DB:       db,
		}
	}
	options.MaxRetries = 3

	maxLen, err := descriptor.Int("MaxLen", 0)
	if err != nil {
		return QueueStoreConfig{}, err
	}
	if maxLen < 0 {
		return QueueStoreConfig{}, fmt.Errorf("%w: MaxLen must not be negative", connection.ErrInvalidDescriptor)
	}

	return QueueStoreConfig{
		Options:   options,
		KeyPrefix: descriptor.GetDefault("KeyPrefix", defaultKeyPrefix),
		MaxLen:    int64(maxLen),
	}, nil
}

// OpenQueue registers the queue in the "<prefix>:queues" set.
// Lists need no creation, the registry lets consumers discover queues.
func (s *QueueStore) OpenQueue(ctx context.Context, name string) (port.Queue, error) {
	if err := s.client.SAdd(ctx, s.keyPrefix+":queues", name).Err(); err != nil {
		return nil, fmt.Errorf("failed to register queue %s: %w", name, err)
	}

	return &queue{store: s, key: s.keyPrefix + ":queue:" + name}, nil
}

// Close closes the Redis connection
func (s *QueueStore) Close() error {
	return s.client.Close()
}

type queue struct {
	store *QueueStore
	key   string
}

// Enqueue appends payload to the tail of the list
func (q *queue) Enqueue(ctx context.Context, payload []byte) error {
	if err := q.store.client.RPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", q.key, err)
	}

	if q.store.maxLen > 0 {
		// the payload is already queued; a failed trim is retried by the next push
		_ = q.store.client.LTrim(ctx, q.key, -q.store.maxLen, -1).Err()
	}

	return nil
}
