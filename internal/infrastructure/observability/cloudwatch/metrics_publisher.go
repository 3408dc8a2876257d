package cloudwatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/dreschagin/cloudsink/internal/application/port"
	"github.com/dreschagin/cloudsink/pkg/logger"
)

const (
	// CloudWatch limits
	maxMetricsPerRequest = 1000

	maxBufferedFlushes = 10
)

// Metric names published per delivery.
const (
	MetricDeliveredEvents = "DeliveredEvents"
	MetricFailedEvents    = "FailedEvents"
	MetricDeliveredBytes  = "DeliveredBytes"
	MetricDeliveryLatency = "DeliveryLatency"
)

// MetricsPublisherConfig holds configuration for CloudWatch metrics publishing.
type MetricsPublisherConfig struct {
	Namespace         string            // CloudWatch namespace (e.g., "CloudSink/Delivery")
	Region            string            // AWS region (e.g., "us-east-1")
	Endpoint          string            // Optional endpoint override (for LocalStack)
	AccessKeyID       string            // AWS access key
	SecretAccessKey   string            // AWS secret key
	DefaultDimensions map[string]string // Default dimensions added to all metrics
	BufferSize        int               // Buffer size before auto-flush
	FlushInterval     time.Duration     // Automatic flush interval
	StorageResolution int32             // Storage resolution in seconds (1 or 60)
}

type metricsAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricsPublisher turns delivery statistics into CloudWatch metric datums.
// It implements port.DeliveryObserver: observations are buffered and pushed
// by a background loop, so the write path never waits on CloudWatch.
type MetricsPublisher struct {
	client            metricsAPI
	namespace         string
	defaultDimensions []types.Dimension
	storageResolution int32
	logger            *logger.Logger

	buffer     []types.MetricDatum
	bufferSize int
	mu         sync.Mutex
	flushMu    sync.Mutex

	flushTicker *time.Ticker
	flushCh     chan struct{}
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewMetricsPublisher creates a new CloudWatch metrics publisher.
func NewMetricsPublisher(ctx context.Context, cfg MetricsPublisherConfig, log *logger.Logger) (*MetricsPublisher, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}

	// Build AWS config
	awsCfg, err := buildAWSConfig(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	p := newMetricsPublisher(cloudwatch.NewFromConfig(awsCfg), cfg, log)
	p.start()

	return p, nil
}

func newMetricsPublisher(client metricsAPI, cfg MetricsPublisherConfig, log *logger.Logger) *MetricsPublisher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.StorageResolution != 1 && cfg.StorageResolution != 60 {
		cfg.StorageResolution = 60 // Default to standard resolution
	}

	return &MetricsPublisher{
		client:            client,
		namespace:         cfg.Namespace,
		defaultDimensions: sortedDimensions(cfg.DefaultDimensions),
		storageResolution: cfg.StorageResolution,
		logger:            log,
		buffer:            make([]types.MetricDatum, 0, cfg.BufferSize),
		bufferSize:        cfg.BufferSize,
		flushTicker:       time.NewTicker(cfg.FlushInterval),
		flushCh:           make(chan struct{}, 1),
		stopCh:            make(chan struct{}),
	}
}

func (p *MetricsPublisher) start() {
	p.wg.Add(1)
	go p.flushLoop()
}

// ObserveDelivery implements port.DeliveryObserver.
func (p *MetricsPublisher) ObserveDelivery(_ context.Context, stat port.DeliveryStat) {
	data := p.convertToDatums(stat, time.Now())

	p.mu.Lock()
	p.buffer = append(p.buffer, data...)
	full := len(p.buffer) >= p.bufferSize
	p.mu.Unlock()

	if full {
		// Wake the flush loop without blocking the caller
		select {
		case p.flushCh <- struct{}{}:
		default:
		}
	}
}

// Flush forces immediate publication of all buffered metrics.
// Datums that could not be published stay buffered for the next flush.
func (p *MetricsPublisher) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	pending := p.buffer
	p.buffer = make([]types.MetricDatum, 0, p.bufferSize)
	p.mu.Unlock()

	remaining, err := p.publish(ctx, pending)
	if err == nil {
		return nil
	}

	p.mu.Lock()
	p.buffer = append(remaining, p.buffer...)
	if overflow := len(p.buffer) - p.bufferSize*maxBufferedFlushes; overflow > 0 {
		// CloudWatch is unreachable for a while, keep the newest datums
		p.buffer = p.buffer[overflow:]
	}
	p.mu.Unlock()

	return err
}

// Close stops the background flush goroutine and flushes remaining metrics.
func (p *MetricsPublisher) Close(ctx context.Context) error {
	close(p.stopCh)
	p.flushTicker.Stop()
	p.wg.Wait()

	return p.Flush(ctx)
}

// flushLoop runs in a background goroutine and flushes the buffer periodically
// or when ObserveDelivery reports a full buffer.
func (p *MetricsPublisher) flushLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.flushTicker.C:
			p.flushInBackground()
		case <-p.flushCh:
			p.flushInBackground()
		case <-p.stopCh:
			return
		}
	}
}

func (p *MetricsPublisher) flushInBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.Flush(ctx); err != nil && p.logger != nil {
		// Unsent datums stay buffered, next tick retries
		p.logger.Error("Failed to publish delivery metrics", err, "namespace", p.namespace)
	}
}

// publish sends data in chunks and returns the unsent tail on failure.
func (p *MetricsPublisher) publish(ctx context.Context, data []types.MetricDatum) ([]types.MetricDatum, error) {
	// Publish in chunks (CloudWatch limit: 1000 metrics/request)
	for sent := 0; sent < len(data); {
		end := min(sent+maxMetricsPerRequest, len(data))

		if err := p.publishBatchWithRetry(ctx, data[sent:end]); err != nil {
			return data[sent:], fmt.Errorf("failed to publish chunk: %w", err)
		}
		sent = end
	}

	return nil, nil
}

// publishBatchWithRetry publishes a batch of metrics with exponential backoff retry.
func (p *MetricsPublisher) publishBatchWithRetry(ctx context.Context, data []types.MetricDatum) error {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	}

	return withRetry(ctx, func() error {
		_, err := p.client.PutMetricData(ctx, input)
		return err
	}, nil)
}

// convertToDatums converts one delivery into CloudWatch datums.
func (p *MetricsPublisher) convertToDatums(stat port.DeliveryStat, at time.Time) []types.MetricDatum {
	dimensions := make([]types.Dimension, 0, len(p.defaultDimensions)+1)
	dimensions = append(dimensions, p.defaultDimensions...)
	dimensions = append(dimensions, types.Dimension{
		Name:  aws.String("Sink"),
		Value: aws.String(string(stat.Sink)),
	})

	datum := func(name string, value float64, unit types.StandardUnit) types.MetricDatum {
		d := types.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(value),
			Unit:       unit,
			Timestamp:  aws.Time(at),
			Dimensions: dimensions,
		}
		// Set storage resolution (high-resolution metrics)
		if p.storageResolution > 0 {
			d.StorageResolution = aws.Int32(p.storageResolution)
		}
		return d
	}

	latency := datum(MetricDeliveryLatency, float64(stat.Duration)/float64(time.Millisecond), types.StandardUnitMilliseconds)
	if stat.Err != nil {
		return []types.MetricDatum{
			datum(MetricFailedEvents, float64(stat.Events), types.StandardUnitCount),
			latency,
		}
	}

	return []types.MetricDatum{
		datum(MetricDeliveredEvents, float64(stat.Events), types.StandardUnitCount),
		datum(MetricDeliveredBytes, float64(stat.Bytes), types.StandardUnitBytes),
		latency,
	}
}

func sortedDimensions(values map[string]string) []types.Dimension {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	dimensions := make([]types.Dimension, 0, len(keys))
	for _, key := range keys {
		dimensions = append(dimensions, types.Dimension{
			Name:  aws.String(key),
			Value: aws.String(values[key]),
		})
	}
	return dimensions
}
