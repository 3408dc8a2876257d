package port

import (
	"context"
	"time"
)

// SinkKind names the writer that produced a delivery.
type SinkKind string

const (
	SinkAppend SinkKind = "append"
	SinkQueue  SinkKind = "queue"
	SinkTable  SinkKind = "table"
)

// DeliveryStat describes one remote write issued by a writer.
type DeliveryStat struct {
	Sink        SinkKind
	Destination string // sanitized destination, e.g. "container/blob"
	Events      int
	Bytes       int
	Duration    time.Duration
	Err         error
}

// DeliveryObserver receives delivery statistics (Prometheus, CloudWatch metrics).
// Implementations must not block the write path for long.
type DeliveryObserver interface {
	ObserveDelivery(ctx context.Context, stat DeliveryStat)
}

// DeliveryObservers fans a stat out to several observers.
type DeliveryObservers []DeliveryObserver

// ObserveDelivery implements DeliveryObserver.
func (o DeliveryObservers) ObserveDelivery(ctx context.Context, stat DeliveryStat) {
	for _, observer := range o {
		if observer != nil {
			observer.ObserveDelivery(ctx, stat)
		}
	}
}
