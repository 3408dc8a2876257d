package nats

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dreschagin/cloudsink/internal/infrastructure/connection"
	"github.com/dreschagin/cloudsink/pkg/logger"
)

type published struct {
	subject string
	data    string
}

type fakeJetStream struct {
	streams    map[string]*nats.StreamConfig
	added      []*nats.StreamConfig
	published  []published
	publishErr error
	infoErr    error
}

func newFakeJetStream() *fakeJetStream {
	return &fakeJetStream{streams: map[string]*nats.StreamConfig{}}
}

func (f *fakeJetStream) StreamInfo(stream string, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	cfg, ok := f.streams[stream]
	if !ok {
		return nil, nats.ErrStreamNotFound
	}
	return &nats.StreamInfo{Config: *cfg}, nil
}

func (f *fakeJetStream) AddStream(cfg *nats.StreamConfig, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	f.streams[cfg.Name] = cfg
	f.added = append(f.added, cfg)
	return &nats.StreamInfo{Config: *cfg}, nil
}

func (f *fakeJetStream) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.published = append(f.published, published{subject: subj, data: string(data)})
	return &nats.PubAck{Stream: subj, Sequence: uint64(len(f.published))}, nil
}

func testLogger() *logger.Logger {
	return logger.NewWithWriter("error", io.Discard)
}

func TestQueueStore_CreatesMissingStream(t *testing.T) {
	js := newFakeJetStream()
	store := newQueueStore(js, QueueStoreConfig{SubjectPrefix: "logs", Storage: nats.MemoryStorage, Retention: nats.WorkQueuePolicy}, testLogger())

	q, err := store.OpenQueue(context.Background(), "defaultqueue")
	if err != nil {
		t.Fatalf("OpenQueue() error = %v", err)
	}

	if len(js.added) != 1 {
		t.Fatalf("expected stream to be created once, got %d", len(js.added))
	}
	cfg := js.added[0]
	if cfg.Name != "defaultqueue" || len(cfg.Subjects) != 1 || cfg.Subjects[0] != "logs.defaultqueue" {
		t.Fatalf("unexpected stream config %+v", cfg)
	}
	if cfg.Storage != nats.MemoryStorage || cfg.Retention != nats.WorkQueuePolicy {
		t.Fatalf("unexpected storage/retention %v/%v", cfg.Storage, cfg.Retention)
	}

	if err := q.Enqueue(context.Background(), []byte("a\nb")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if len(js.published) != 1 || js.published[0].subject != "logs.defaultqueue" || js.published[0].data != "a\nb" {
		t.Fatalf("unexpected publish %+v", js.published)
	}
}

func TestQueueStore_ExistingStreamIsReused(t *testing.T) {
	js := newFakeJetStream()
	js.streams["orders"] = &nats.StreamConfig{Name: "orders", Subjects: []string{"orders"}}
	store := newQueueStore(js, QueueStoreConfig{}, testLogger())

	if _, err := store.OpenQueue(context.Background(), "orders"); err != nil {
		t.Fatalf("OpenQueue() error = %v", err)
	}
	if len(js.added) != 0 {
		t.Fatal("existing stream must not be recreated")
	}
}

func TestQueueStore_Errors(t *testing.T) {
	boom := errors.New("no responders")

	js := newFakeJetStream()
	js.infoErr = boom
	store := newQueueStore(js, QueueStoreConfig{}, testLogger())
	if _, err := store.OpenQueue(context.Background(), "q"); !errors.Is(err, boom) {
		t.Fatalf("expected stream info error, got %v", err)
	}

	js = newFakeJetStream()
	js.publishErr = boom
	store = newQueueStore(js, QueueStoreConfig{}, testLogger())
	q, err := store.OpenQueue(context.Background(), "q")
	if err != nil {
		t.Fatalf("OpenQueue() error = %v", err)
	}
	if err := q.Enqueue(context.Background(), []byte("x")); !errors.Is(err, boom) {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestParseQueueStoreConfig(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    QueueStoreConfig
		wantErr bool
	}{
		{
			name: "plain url",
			raw:  "nats://localhost:4222",
			want: QueueStoreConfig{URL: "nats://localhost:4222", Storage: nats.FileStorage, Retention: nats.WorkQueuePolicy},
		},
		{
			name: "key value",
			raw:  "Url=nats://nats:4222;SubjectPrefix=logs.;Storage=memory;MaxAge=24h;Retention=limits",
			want: QueueStoreConfig{
				URL:           "nats://nats:4222",
				SubjectPrefix: "logs",
				Storage:       nats.MemoryStorage,
				MaxAge:        24 * time.Hour,
				Retention:     nats.LimitsPolicy,
			},
		},
		{name: "missing url", raw: "Storage=file", wantErr: true},
		{name: "bad storage", raw: "Url=nats://x;Storage=tape", wantErr: true},
		{name: "bad max age", raw: "Url=nats://x;MaxAge=soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseQueueStoreConfig(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseQueueStoreConfig() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseQueueStoreConfig_InvalidDescriptor(t *testing.T) {
	if _, err := parseQueueStoreConfig("Storage=file"); !errors.Is(err, connection.ErrInvalidDescriptor) {
		t.Fatalf("expected ErrInvalidDescriptor, got %v", err)
	}
}
