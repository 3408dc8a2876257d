package usecase

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/dreschagin/cloudsink/internal/domain/entity"
	"github.com/dreschagin/cloudsink/internal/domain/service"
)

func newTestAppendWriter(store *fakeAppendStore, factoryCalls *int) *AppendWriter {
	return NewAppendWriter(AppendWriterConfig{
		Connection: "Provider=fake",
		Factory:    appendFactory(store, factoryCalls),
	}, nil, testLogger())
}

func TestAppendWriter_LazyInitialization(t *testing.T) {
	store := &fakeAppendStore{}
	calls := 0
	w := newTestAppendWriter(store, &calls)

	if w.State() != StateUninitialized {
		t.Fatalf("expected uninitialized state, got %s", w.State())
	}
	if calls != 0 {
		t.Fatalf("factory must not be called before the first write")
	}

	for i := 0; i < 3; i++ {
		if err := w.Write(context.Background(), event("hello", "logs", "app.log")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	if calls != 1 {
		t.Fatalf("expected factory to be called once, got %d", calls)
	}
	if w.State() != StateReady {
		t.Fatalf("expected ready state, got %s", w.State())
	}
}

func TestAppendWriter_InitializationFailureIsPermanent(t *testing.T) {
	store := &fakeAppendStore{}
	calls := 0
	w := NewAppendWriter(AppendWriterConfig{Factory: appendFactory(store, &calls)}, nil, testLogger())

	err := w.Write(context.Background(), event("hello", "logs", "app.log"))
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if w.State() != StateFaulted {
		t.Fatalf("expected faulted state, got %s", w.State())
	}

	receipt, err := w.WriteBatch(context.Background(), []entity.LogEvent{
		event("a", "logs", "app.log"),
		event("b", "logs", "app.log"),
	})
	if !errors.Is(err, ErrWriterFaulted) || !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected faulted configuration error, got %v", err)
	}
	if !reflect.DeepEqual(receipt.Failed, []int{0, 1}) {
		t.Fatalf("expected all events failed, got %+v", receipt)
	}
	if calls != 1 {
		t.Fatalf("expected no re-initialization, factory called %d times", calls)
	}
	if len(store.appends) != 0 {
		t.Fatalf("expected no appends, got %d", len(store.appends))
	}
}

func TestAppendWriter_MissingFactory(t *testing.T) {
	w := NewAppendWriter(AppendWriterConfig{Connection: "x"}, nil, testLogger())

	if err := w.Write(context.Background(), event("hello", "logs", "a.log")); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestAppendWriter_EmptyMessageIsNoop(t *testing.T) {
	store := &fakeAppendStore{}
	calls := 0
	w := newTestAppendWriter(store, &calls)

	if err := w.Write(context.Background(), event("", "logs", "app.log")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if calls != 0 || len(store.appends) != 0 {
		t.Fatalf("expected empty message to be ignored, factory=%d appends=%d", calls, len(store.appends))
	}
}

func TestAppendWriter_SingleWriteSanitizesAndAppendsLine(t *testing.T) {
	store := &fakeAppendStore{}
	calls := 0
	w := newTestAppendWriter(store, &calls)

	if err := w.Write(context.Background(), event("first line", "My_Container.01", "app/2026.log")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	want := []appendCall{{container: "my-container-01", object: "app/2026.log", payload: "first line\n"}}
	if !reflect.DeepEqual(store.appends, want) {
		t.Fatalf("appends = %+v, want %+v", store.appends, want)
	}
}

func TestAppendWriter_ReusesHandleUntilDestinationChanges(t *testing.T) {
	store := &fakeAppendStore{}
	calls := 0
	w := newTestAppendWriter(store, &calls)
	ctx := context.Background()

	mustWrite := func(e entity.LogEvent) {
		t.Helper()
		if err := w.Write(ctx, e); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	mustWrite(event("1", "logs", "a.log"))
	mustWrite(event("2", "logs", "a.log"))
	mustWrite(event("3", "LOGS", "a.log")) // same container after repair
	mustWrite(event("4", "logs", "b.log"))
	mustWrite(event("5", "audit", "b.log"))

	if !reflect.DeepEqual(store.containerOpens, []string{"logs", "audit"}) {
		t.Fatalf("container opens = %v", store.containerOpens)
	}
	if !reflect.DeepEqual(store.objectOpens, []string{"logs/a.log", "logs/b.log", "audit/b.log"}) {
		t.Fatalf("object opens = %v", store.objectOpens)
	}
	if len(store.appends) != 5 {
		t.Fatalf("expected 5 appends, got %d", len(store.appends))
	}
}

func TestAppendWriter_BatchGroupsByDestination(t *testing.T) {
	store := &fakeAppendStore{}
	calls := 0
	observer := &recordingObserver{}
	w := NewAppendWriter(AppendWriterConfig{
		Connection: "Provider=fake",
		Factory:    appendFactory(store, &calls),
		Observer:   observer,
	}, nil, testLogger())

	receipt, err := w.WriteBatch(context.Background(), []entity.LogEvent{
		event("a1", "container-a", "app.log"),
		event("b1", "container-b", "app.log"),
		event("a2", "Container_A", "app.log"),
	})
	if err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}

	want := []appendCall{
		{container: "container-a", object: "app.log", payload: "a1\na2\n"},
		{container: "container-b", object: "app.log", payload: "b1\n"},
	}
	if !reflect.DeepEqual(store.appends, want) {
		t.Fatalf("appends = %+v, want %+v", store.appends, want)
	}
	if !reflect.DeepEqual(receipt.Delivered, []int{0, 2, 1}) || !receipt.AllDelivered() {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if len(observer.stats) != 2 || observer.stats[0].Events != 2 || observer.stats[0].Bytes != len("a1\na2\n") {
		t.Fatalf("unexpected delivery stats %+v", observer.stats)
	}
}

func TestAppendWriter_BatchFailureStopsAndReportsPending(t *testing.T) {
	store := &fakeAppendStore{failAppendTo: map[string]error{"beta/app.log": errRemote}}
	calls := 0
	w := newTestAppendWriter(store, &calls)

	receipt, err := w.WriteBatch(context.Background(), []entity.LogEvent{
		event("a1", "alpha", "app.log"),
		event("b1", "beta", "app.log"),
		event("c1", "gamma", "app.log"),
		event("a2", "alpha", "app.log"),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrRemoteCall) || !errors.Is(err, errRemote) {
		t.Fatalf("expected remote call error, got %v", err)
	}

	var deliveryErr *DeliveryError
	if !errors.As(err, &deliveryErr) {
		t.Fatalf("expected *DeliveryError, got %T", err)
	}
	if deliveryErr.Destination.Resource != "beta" || deliveryErr.Events != 1 {
		t.Fatalf("unexpected delivery error %+v", deliveryErr)
	}

	if !reflect.DeepEqual(receipt.Delivered, []int{0, 3}) {
		t.Fatalf("delivered = %v", receipt.Delivered)
	}
	if !reflect.DeepEqual(receipt.Failed, []int{1, 2}) {
		t.Fatalf("failed = %v", receipt.Failed)
	}
	if len(store.appends) != 1 || store.appends[0].container != "alpha" {
		t.Fatalf("expected only alpha to be appended, got %+v", store.appends)
	}
}

func TestAppendWriter_OpenFailurePropagates(t *testing.T) {
	store := &fakeAppendStore{failOpen: map[string]error{"locked": errRemote}}
	calls := 0
	w := newTestAppendWriter(store, &calls)

	err := w.Write(context.Background(), event("x", "locked", "app.log"))
	if !errors.Is(err, ErrRemoteCall) {
		t.Fatalf("expected remote call error, got %v", err)
	}
	if w.State() != StateReady {
		t.Fatalf("remote errors must not fault the writer, state = %s", w.State())
	}

	if err := w.Write(context.Background(), event("y", "open", "app.log")); err != nil {
		t.Fatalf("expected next write to succeed, got %v", err)
	}
}

func TestAppendWriter_BlobFallbackName(t *testing.T) {
	store := &fakeAppendStore{}
	calls := 0
	clock := func() time.Time { return time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC) }
	w := NewAppendWriter(AppendWriterConfig{
		Connection: "Provider=fake",
		Factory:    appendFactory(store, &calls),
	}, service.NewNameSanitizerWithClock(clock), testLogger())

	if err := w.Write(context.Background(), event("x", "logs", strings.Repeat("b", 1025))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if store.appends[0].object != "Log-26-10-19.log" {
		t.Fatalf("expected date fallback blob name, got %q", store.appends[0].object)
	}
}

func TestAppendWriter_BatchSkipsEmptyMessages(t *testing.T) {
	store := &fakeAppendStore{}
	calls := 0
	w := newTestAppendWriter(store, &calls)

	receipt, err := w.WriteBatch(context.Background(), []entity.LogEvent{
		event("", "empty", "a.log"),
		event("x", "logs", "a.log"),
		event("", "logs", "a.log"),
	})
	if err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}
	if len(store.appends) != 1 || store.appends[0].payload != "x\n" {
		t.Fatalf("unexpected appends %+v", store.appends)
	}
	if len(receipt.Delivered) != 3 {
		t.Fatalf("expected all 3 events acknowledged, got %+v", receipt)
	}
}

func TestAppendWriter_SmallBatches(t *testing.T) {
	store := &fakeAppendStore{}
	calls := 0
	w := newTestAppendWriter(store, &calls)

	receipt, err := w.WriteBatch(context.Background(), nil)
	if err != nil || len(receipt.Delivered) != 0 || len(receipt.Failed) != 0 {
		t.Fatalf("empty batch: receipt=%+v err=%v", receipt, err)
	}
	if calls != 0 {
		t.Fatal("empty batch must not initialize the writer")
	}

	receipt, err = w.WriteBatch(context.Background(), []entity.LogEvent{event("only", "logs", "a.log")})
	if err != nil || !reflect.DeepEqual(receipt.Delivered, []int{0}) {
		t.Fatalf("single batch: receipt=%+v err=%v", receipt, err)
	}
}

func TestAppendWriter_LargeBatchReleasesBuffer(t *testing.T) {
	store := &fakeAppendStore{}
	calls := 0
	w := newTestAppendWriter(store, &calls)

	line := strings.Repeat("x", 1024)
	events := make([]entity.LogEvent, 1024)
	for i := range events {
		events[i] = event(line, "logs", "big.log")
	}

	if _, err := w.WriteBatch(context.Background(), events); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}
	if len(store.appends[0].payload) != len(events)*(len(line)+1) {
		t.Fatalf("unexpected payload size %d", len(store.appends[0].payload))
	}
	if cap(w.buffer.data) > maxRetainedPayloadCapacity {
		t.Fatalf("expected buffer capacity to be trimmed, got %d", cap(w.buffer.data))
	}
}

func TestAppendWriter_CloseReleasesStore(t *testing.T) {
	store := &fakeAppendStore{}
	calls := 0
	w := newTestAppendWriter(store, &calls)

	if err := w.Close(); err != nil {
		t.Fatalf("Close() before init error = %v", err)
	}
	if store.closed {
		t.Fatal("store must not be touched before initialization")
	}

	if err := w.Write(context.Background(), event("hello", "logs", "app.log")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !store.closed {
		t.Fatal("expected store to be closed")
	}
}
