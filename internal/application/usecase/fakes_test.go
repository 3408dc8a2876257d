package usecase

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/dreschagin/cloudsink/internal/application/port"
	"github.com/dreschagin/cloudsink/internal/domain/entity"
	"github.com/dreschagin/cloudsink/internal/domain/valueobject"
	"github.com/dreschagin/cloudsink/pkg/logger"
)

var errRemote = errors.New("remote unavailable")

func testLogger() *logger.Logger {
	return logger.NewWithWriter("error", io.Discard)
}

func event(message, resource, object string) entity.LogEvent {
	return entity.NewLogEvent(message, "INFO", time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC), valueobject.NewDestinationKey(resource, object))
}

type appendCall struct {
	container string
	object    string
	payload   string
}

type fakeAppendStore struct {
	containerOpens []string
	objectOpens    []string
	appends        []appendCall
	failAppendTo   map[string]error // container/object -> error
	failOpen       map[string]error // container -> error
	closed         bool
}

func (s *fakeAppendStore) Close() error {
	s.closed = true
	return nil
}

func (s *fakeAppendStore) OpenContainer(_ context.Context, name string) (port.AppendContainer, error) {
	s.containerOpens = append(s.containerOpens, name)
	if err, ok := s.failOpen[name]; ok {
		return nil, err
	}
	return &fakeAppendContainer{store: s, name: name}, nil
}

type fakeAppendContainer struct {
	store *fakeAppendStore
	name  string
}

func (c *fakeAppendContainer) OpenObject(_ context.Context, name string) (port.AppendObject, error) {
	c.store.objectOpens = append(c.store.objectOpens, c.name+"/"+name)
	return &fakeAppendObject{store: c.store, container: c.name, name: name}, nil
}

type fakeAppendObject struct {
	store     *fakeAppendStore
	container string
	name      string
}

func (o *fakeAppendObject) Append(_ context.Context, payload []byte) error {
	if err, ok := o.store.failAppendTo[o.container+"/"+o.name]; ok {
		return err
	}
	o.store.appends = append(o.store.appends, appendCall{
		container: o.container,
		object:    o.name,
		payload:   string(payload),
	})
	return nil
}

func appendFactory(store *fakeAppendStore, calls *int) port.AppendStoreFactory {
	return func(_ context.Context, connection string) (port.AppendStore, error) {
		*calls++
		if connection == "" {
			return nil, errors.New("empty connection string")
		}
		return store, nil
	}
}

type enqueueCall struct {
	queue   string
	payload string
}

type fakeQueueStore struct {
	opens    []string
	enqueues []enqueueCall
	failTo   map[string]error
}

func (s *fakeQueueStore) OpenQueue(_ context.Context, name string) (port.Queue, error) {
	s.opens = append(s.opens, name)
	return &fakeQueue{store: s, name: name}, nil
}

type fakeQueue struct {
	store *fakeQueueStore
	name  string
}

func (q *fakeQueue) Enqueue(_ context.Context, payload []byte) error {
	if err, ok := q.store.failTo[q.name]; ok {
		return err
	}
	q.store.enqueues = append(q.store.enqueues, enqueueCall{queue: q.name, payload: string(payload)})
	return nil
}

type insertCall struct {
	table string
	rows  []port.TableRow
}

type fakeTableStore struct {
	opens   []string
	inserts []insertCall
	failTo  map[string]error
}

func (s *fakeTableStore) OpenTable(_ context.Context, name string) (port.Table, error) {
	s.opens = append(s.opens, name)
	return &fakeTable{store: s, name: name}, nil
}

type fakeTable struct {
	store *fakeTableStore
	name  string
}

func (t *fakeTable) InsertRows(_ context.Context, rows []port.TableRow) error {
	if err, ok := t.store.failTo[t.name]; ok {
		return err
	}
	copied := make([]port.TableRow, len(rows))
	copy(copied, rows)
	t.store.inserts = append(t.store.inserts, insertCall{table: t.name, rows: copied})
	return nil
}

type recordingObserver struct {
	stats []port.DeliveryStat
}

func (o *recordingObserver) ObserveDelivery(_ context.Context, stat port.DeliveryStat) {
	o.stats = append(o.stats, stat)
}
