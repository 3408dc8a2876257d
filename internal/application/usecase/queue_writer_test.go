package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/dreschagin/cloudsink/internal/application/port"
	"github.com/dreschagin/cloudsink/internal/domain/entity"
	"github.com/dreschagin/cloudsink/internal/domain/service"
)

func newTestQueueWriter(store *fakeQueueStore) *QueueWriter {
	return NewQueueWriter(QueueWriterConfig{
		Connection: "nats://localhost:4222",
		Factory: func(_ context.Context, _ string) (port.QueueStore, error) {
			return store, nil
		},
	}, nil, testLogger())
}

func TestQueueWriter_SingleMessageHasNoTrailingNewline(t *testing.T) {
	store := &fakeQueueStore{}
	w := newTestQueueWriter(store)

	if err := w.Write(context.Background(), event("payload", "Audit.Events", "")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	want := []enqueueCall{{queue: "audit-events", payload: "payload"}}
	if !reflect.DeepEqual(store.enqueues, want) {
		t.Fatalf("enqueues = %+v, want %+v", store.enqueues, want)
	}
}

func TestQueueWriter_BatchOneMessagePerQueue(t *testing.T) {
	store := &fakeQueueStore{}
	w := newTestQueueWriter(store)

	receipt, err := w.WriteBatch(context.Background(), []entity.LogEvent{
		event("a1", "alpha", ""),
		event("b1", "beta", ""),
		event("a2", "alpha", ""),
		event("a3", "alpha", "ignored"),
	})
	if err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}

	want := []enqueueCall{
		{queue: "alpha", payload: "a1\na2\na3"},
		{queue: "beta", payload: "b1"},
	}
	if !reflect.DeepEqual(store.enqueues, want) {
		t.Fatalf("enqueues = %+v, want %+v", store.enqueues, want)
	}
	if !reflect.DeepEqual(store.opens, []string{"alpha", "beta"}) {
		t.Fatalf("opens = %v", store.opens)
	}
	if !reflect.DeepEqual(receipt.Delivered, []int{0, 2, 3, 1}) {
		t.Fatalf("delivered = %v", receipt.Delivered)
	}
}

func TestQueueWriter_InvalidQueueNameFallsBack(t *testing.T) {
	store := &fakeQueueStore{}
	w := newTestQueueWriter(store)

	if err := w.Write(context.Background(), event("x", "__", "")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if store.enqueues[0].queue != service.DefaultQueueName {
		t.Fatalf("expected fallback queue, got %q", store.enqueues[0].queue)
	}
}

func TestQueueWriter_EnqueueFailure(t *testing.T) {
	store := &fakeQueueStore{failTo: map[string]error{"alpha": errRemote}}
	w := newTestQueueWriter(store)

	receipt, err := w.WriteBatch(context.Background(), []entity.LogEvent{
		event("a1", "alpha", ""),
		event("b1", "beta", ""),
	})
	if !errors.Is(err, ErrRemoteCall) {
		t.Fatalf("expected remote call error, got %v", err)
	}
	if len(receipt.Delivered) != 0 || !reflect.DeepEqual(receipt.Failed, []int{0, 1}) {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if len(store.enqueues) != 0 {
		t.Fatalf("expected nothing enqueued, got %+v", store.enqueues)
	}
}
