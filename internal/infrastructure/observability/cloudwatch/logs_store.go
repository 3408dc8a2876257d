package cloudwatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/dreschagin/cloudsink/internal/application/port"
	"github.com/dreschagin/cloudsink/internal/infrastructure/connection"
)

const (
	// CloudWatch Logs limits
	maxLogEventsPerRequest = 10000
	maxLogBatchSize        = 1048576 // 1 MB
	maxLogEventSize        = 256000  // 256 KB
	logEventOverhead       = 26      // bytes added per event when computing batch size
)

// LogsStoreConfig holds configuration for the CloudWatch Logs append store.
type LogsStoreConfig struct {
	Region          string // AWS region
	Endpoint        string // Optional endpoint override (for LocalStack)
	AccessKeyID     string // AWS access key
	SecretAccessKey string // AWS secret key
}

// logsAPI is the subset of *cloudwatchlogs.Client used by LogsStore.
type logsAPI interface {
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// LogsStore maps containers to log groups and append-only objects to log
// streams. Each line of an appended payload becomes one log event.
type LogsStore struct {
	client logsAPI
	now    func() time.Time
}

// NewLogsStore creates a CloudWatch Logs backed append store.
func NewLogsStore(ctx context.Context, cfg LogsStoreConfig) (*LogsStore, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}

	awsCfg, err := buildAWSConfig(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	return newLogsStore(cloudwatchlogs.NewFromConfig(awsCfg)), nil
}

func newLogsStore(client logsAPI) *LogsStore {
	return &LogsStore{client: client, now: time.Now}
}

// NewLogsStoreFromConnection is a port.AppendStoreFactory.
// Recognized keys: Region, Endpoint, AccessKeyId, SecretAccessKey.
func NewLogsStoreFromConnection(ctx context.Context, raw string) (port.AppendStore, error) {
	descriptor, err := connection.Parse(raw)
	if err != nil {
		return nil, err
	}

	settings, err := descriptor.AWSSettings("")
	if err != nil {
		return nil, err
	}

	return NewLogsStore(ctx, LogsStoreConfig{
		Region:          settings.Region,
		Endpoint:        settings.Endpoint,
		AccessKeyID:     settings.AccessKeyID,
		SecretAccessKey: settings.SecretAccessKey,
	})
}

// OpenContainer creates the log group if it does not exist yet.
func (s *LogsStore) OpenContainer(ctx context.Context, name string) (port.AppendContainer, error) {
	_, err := s.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(name),
	})
	if err != nil && !isAlreadyExists(err) {
		return nil, fmt.Errorf("failed to create log group %s: %w", name, err)
	}

	return &logGroup{store: s, name: name}, nil
}

type logGroup struct {
	store *LogsStore
	name  string
}

// OpenObject creates the log stream if it does not exist yet.
func (g *logGroup) OpenObject(ctx context.Context, name string) (port.AppendObject, error) {
	_, err := g.store.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(g.name),
		LogStreamName: aws.String(name),
	})
	if err != nil && !isAlreadyExists(err) {
		return nil, fmt.Errorf("failed to create log stream %s/%s: %w", g.name, name, err)
	}

	return &logStream{group: g, name: name}, nil
}

type logStream struct {
	group *logGroup
	name  string
}

// Append publishes every non-empty line of payload as a log event, in order.
func (s *logStream) Append(ctx context.Context, payload []byte) error {
	events := toLogEvents(payload, s.group.store.now())
	if len(events) == 0 {
		return nil
	}

	for _, chunk := range chunkLogEvents(events) {
		if err := s.put(ctx, chunk); err != nil {
			return fmt.Errorf("failed to put log events to %s/%s: %w", s.group.name, s.name, err)
		}
	}

	return nil
}

func (s *logStream) put(ctx context.Context, events []types.InputLogEvent) error {
	client := s.group.store.client
	input := &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(s.group.name),
		LogStreamName: aws.String(s.name),
		LogEvents:     events,
	}

	return withRetry(ctx, func() error {
		out, err := client.PutLogEvents(ctx, input)
		if err != nil {
			return err
		}
		if rejected := out.RejectedLogEventsInfo; rejected != nil {
			return fmt.Errorf("%w: too old until %d, too new from %d, expired until %d",
				errLogEventsRejected,
				aws.ToInt32(rejected.TooOldLogEventEndIndex),
				aws.ToInt32(rejected.TooNewLogEventStartIndex),
				aws.ToInt32(rejected.ExpiredLogEventEndIndex),
			)
		}
		return nil
	}, isRetryableLogsError)
}

// toLogEvents splits payload into lines. All events share one timestamp so
// CloudWatch keeps them in payload order.
func toLogEvents(payload []byte, at time.Time) []types.InputLogEvent {
	timestamp := at.UnixMilli()
	lines := bytes.Split(payload, []byte{'\n'})
	events := make([]types.InputLogEvent, 0, len(lines))

	for _, line := range lines {
		message := strings.TrimRight(string(line), "\r")
		if message == "" {
			continue
		}
		// Truncate if exceeds CloudWatch limit
		if len(message) > maxLogEventSize {
			message = message[:maxLogEventSize-3] + "..."
		}
		events = append(events, types.InputLogEvent{
			Message:   aws.String(message),
			Timestamp: aws.Int64(timestamp),
		})
	}

	return events
}

// chunkLogEvents splits events into PutLogEvents-sized requests.
func chunkLogEvents(events []types.InputLogEvent) [][]types.InputLogEvent {
	var chunks [][]types.InputLogEvent
	start, size := 0, 0

	for i, event := range events {
		eventSize := len(aws.ToString(event.Message)) + logEventOverhead
		if i > start && (i-start >= maxLogEventsPerRequest || size+eventSize > maxLogBatchSize) {
			chunks = append(chunks, events[start:i])
			start, size = i, 0
		}
		size += eventSize
	}

	return append(chunks, events[start:])
}

var errLogEventsRejected = errors.New("log events rejected")

func isAlreadyExists(err error) bool {
	var alreadyExists *types.ResourceAlreadyExistsException
	return errors.As(err, &alreadyExists)
}

func isRetryableLogsError(err error) bool {
	var notFound *types.ResourceNotFoundException
	var invalid *types.InvalidParameterException
	if errors.Is(err, errLogEventsRejected) {
		// part of the batch was accepted, resending would duplicate it
		return false
	}
	return !errors.As(err, &notFound) && !errors.As(err, &invalid)
}
