package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dreschagin/cloudsink/internal/application/port"
	"github.com/dreschagin/cloudsink/internal/infrastructure/connection"
	"github.com/dreschagin/cloudsink/pkg/logger"
)

// jetStream is the subset of nats.JetStreamContext used by QueueStore.
type jetStream interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// QueueStoreConfig holds JetStream settings for queues.
type QueueStoreConfig struct {
	URL           string
	SubjectPrefix string               // subject = prefix + "." + queue name
	Storage       nats.StorageType     // file or memory
	MaxAge        time.Duration        // 0 keeps messages until consumed
	Retention     nats.RetentionPolicy // work queue unless Retention=limits
}

// QueueStore maps queues to JetStream streams with a single subject each.
type QueueStore struct {
	nc     *nats.Conn
	js     jetStream
	cfg    QueueStoreConfig
	logger *logger.Logger
}

// NewQueueStore connects to NATS and returns a JetStream backed queue store
func NewQueueStore(cfg QueueStoreConfig, log *logger.Logger) (*QueueStore, error) {
	// Connect to NATS with retry
	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Get JetStream context
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	log.Info("Connected to NATS", "url", nc.ConnectedUrl())

	store := newQueueStore(js, cfg, log)
	store.nc = nc
	return store, nil
}

func newQueueStore(js jetStream, cfg QueueStoreConfig, log *logger.Logger) *QueueStore {
	return &QueueStore{js: js, cfg: cfg, logger: log}
}

// QueueStoreFactory returns a port.QueueStoreFactory.
// The connection string is either a NATS URL or
// "Url=nats://host:4222;SubjectPrefix=logs;Storage=memory;MaxAge=24h".
func QueueStoreFactory(log *logger.Logger) port.QueueStoreFactory {
	return func(_ context.Context, raw string) (port.QueueStore, error) {
		cfg, err := parseQueueStoreConfig(raw)
		if err != nil {
			return nil, err
		}
		return NewQueueStore(cfg, log)
	}
}

func parseQueueStoreConfig(raw string) (QueueStoreConfig, error) {
	descriptor, err := connection.Parse(raw)
	if err != nil {
		return QueueStoreConfig{}, err
	}

	url := descriptor.URL()
	if url == "" {
		return QueueStoreConfig{}, fmt.Errorf("%w: Url is required", connection.ErrInvalidDescriptor)
	}

	maxAge, err := descriptor.Duration("MaxAge", 0)
	if err != nil {
		return QueueStoreConfig{}, err
	}

	cfg := QueueStoreConfig{
		URL:           url,
		SubjectPrefix: strings.Trim(descriptor.Get("SubjectPrefix"), "."),
		Storage:       nats.FileStorage,
		MaxAge:        maxAge,
		Retention:     nats.WorkQueuePolicy,
	}

	switch strings.ToLower(descriptor.GetDefault("Storage", "file")) {
	case "file":
	case "memory":
		cfg.Storage = nats.MemoryStorage
	default:
		return QueueStoreConfig{}, fmt.Errorf("%w: unknown Storage %q", connection.ErrInvalidDescriptor, descriptor.Get("Storage"))
	}

	if strings.EqualFold(descriptor.Get("Retention"), "limits") {
		cfg.Retention = nats.LimitsPolicy
	}

	return cfg, nil
}

// OpenQueue ensures a stream named after the queue exists.
func (s *QueueStore) OpenQueue(ctx context.Context, name string) (port.Queue, error) {
	subject := s.subject(name)

	_, err := s.js.StreamInfo(name, nats.Context(ctx))
	if err == nil {
		return &queue{store: s, name: name, subject: subject}, nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return nil, fmt.Errorf("failed to get stream %s: %w", name, err)
	}

	_, err = s.js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  []string{subject},
		Storage:   s.cfg.Storage,
		Retention: s.cfg.Retention,
		MaxAge:    s.cfg.MaxAge,
	}, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil, fmt.Errorf("failed to create stream %s: %w", name, err)
	}

	s.logger.Info("Stream created", "stream", name, "subject", subject)
	return &queue{store: s, name: name, subject: subject}, nil
}

func (s *QueueStore) subject(name string) string {
	if s.cfg.SubjectPrefix == "" {
		return name
	}
	return s.cfg.SubjectPrefix + "." + name
}

// Close closes the NATS connection
func (s *QueueStore) Close() error {
	if s.nc != nil {
		s.logger.Info("Closing NATS connection")
		s.nc.Close()
	}
	return nil
}

type queue struct {
	store   *QueueStore
	name    string
	subject string
}

// Enqueue publishes synchronously and waits for the JetStream ack.
func (q *queue) Enqueue(ctx context.Context, payload []byte) error {
	ack, err := q.store.js.Publish(q.subject, payload, nats.Context(ctx), nats.ExpectStream(q.name))
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", q.name, err)
	}

	q.store.logger.Debug("Message enqueued",
		"stream", ack.Stream,
		"seq", ack.Sequence,
		"size", len(payload),
	)

	return nil
}
