package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dreschagin/cloudsink/internal/application/port"
	"github.com/dreschagin/cloudsink/internal/infrastructure/connection"
)

const (
	maxBatchWriteSize  = 25
	maxBatchRetries    = 5
	defaultWaitTimeout = 2 * time.Minute

	attrPK          = "PK"
	attrSK          = "SK"
	attrTimestamp   = "timestamp"
	attrTimestampMS = "timestamp_ms"
	attrLevel       = "level"
	attrMessage     = "message"
	attrExpiresAt   = "expires_at"
)

type Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	TTL             time.Duration // 0 disables expires_at
	WaitTimeout     time.Duration // how long to wait for a created table to become ACTIVE
}

// api is the subset of *dynamodb.Client used by TableStore
type api interface {
	dynamodb.DescribeTableAPIClient
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// TableStore stores log rows in DynamoDB tables keyed by PK (partition key)
// and SK (row key).
type TableStore struct {
	client      api
	ttl         time.Duration
	waitTimeout time.Duration
	now         func() time.Time
	backoff     time.Duration
}

func NewTableStore(ctx context.Context, cfg Config) (*TableStore, error) {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	accessKeyID := strings.TrimSpace(cfg.AccessKeyID)
	secretAccessKey := strings.TrimSpace(cfg.SecretAccessKey)
	if accessKeyID != "" || secretAccessKey != "" {
		if accessKeyID == "" || secretAccessKey == "" {
			return nil, fmt.Errorf("both dynamodb access key id and secret access key are required for static credentials")
		}
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config for dynamodb: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(options *dynamodb.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			options.BaseEndpoint = &endpoint
		}
	})

	return newTableStore(client, cfg), nil
}

func newTableStore(client api, cfg Config) *TableStore {
	waitTimeout := cfg.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = defaultWaitTimeout
	}

	return &TableStore{
		client:      client,
		ttl:         cfg.TTL,
		waitTimeout: waitTimeout,
		now:         time.Now,
		backoff:     100 * time.Millisecond,
	}
}

// NewTableStoreFromConnection is a port.TableStoreFactory.
// Recognized keys: Region, Endpoint, AccessKeyId, SecretAccessKey, TTL, WaitTimeout.
func NewTableStoreFromConnection(ctx context.Context, raw string) (port.TableStore, error) {
	descriptor, err := connection.Parse(raw)
	if err != nil {
		return nil, err
	}

	settings, err := descriptor.AWSSettings("us-east-1")
	if err != nil {
		return nil, err
	}

	ttl, err := descriptor.Duration("TTL", 0)
	if err != nil {
		return nil, err
	}
	waitTimeout, err := descriptor.Duration("WaitTimeout", defaultWaitTimeout)
	if err != nil {
		return nil, err
	}

	return NewTableStore(ctx, Config{
		Region:          settings.Region,
		Endpoint:        settings.Endpoint,
		AccessKeyID:     settings.AccessKeyID,
		SecretAccessKey: settings.SecretAccessKey,
		TTL:             ttl,
		WaitTimeout:     waitTimeout,
	})
}

// OpenTable checks that the table exists and creates it otherwise.
func (s *TableStore) OpenTable(ctx context.Context, name string) (port.Table, error) {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &name})
	if err == nil {
		return &table{store: s, name: name}, nil
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return nil, fmt.Errorf("dynamodb describe table %s failed: %w", name, err)
	}

	if err := s.createTable(ctx, name); err != nil {
		return nil, err
	}

	return &table{store: s, name: name}, nil
}

func (s *TableStore) createTable(ctx context.Context, name string) error {
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   &name,
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrPK), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrSK), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrPK), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrSK), KeyType: types.KeyTypeRange},
		},
	})
	if err != nil {
		// created concurrently, wait for it like for our own
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return fmt.Errorf("dynamodb create table %s failed: %w", name, err)
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: &name}, s.waitTimeout); err != nil {
		return fmt.Errorf("dynamodb table %s did not become active: %w", name, err)
	}

	if s.ttl > 0 {
		_, err := s.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
			TableName: &name,
			TimeToLiveSpecification: &types.TimeToLiveSpecification{
				AttributeName: aws.String(attrExpiresAt),
				Enabled:       aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("dynamodb enable ttl on %s failed: %w", name, err)
		}
	}

	return nil
}

type table struct {
	store *TableStore
	name  string
}

// InsertRows writes rows with BatchWriteItem, 25 items per request.
func (t *table) InsertRows(ctx context.Context, rows []port.TableRow) error {
	if len(rows) == 0 {
		return nil
	}

	for start := 0; start < len(rows); start += maxBatchWriteSize {
		end := min(start+maxBatchWriteSize, len(rows))

		requests := make([]types.WriteRequest, 0, end-start)
		for _, row := range rows[start:end] {
			requests = append(requests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: t.store.toItem(row)},
			})
		}

		if err := t.writeBatchWithRetry(ctx, requests); err != nil {
			return err
		}
	}

	return nil
}

func (t *table) writeBatchWithRetry(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{
		t.name: requests,
	}

	for attempt := 0; attempt < maxBatchRetries; attempt++ {
		output, err := t.store.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return fmt.Errorf("dynamodb batch write to %s failed: %w", t.name, err)
		}

		if len(output.UnprocessedItems) == 0 {
			return nil
		}

		pending = output.UnprocessedItems
		select {
		case <-time.After(time.Duration(attempt+1) * t.store.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("dynamodb batch write to %s has unprocessed items after retries", t.name)
}

func (s *TableStore) toItem(row port.TableRow) map[string]types.AttributeValue {
	timestamp := row.Timestamp.UTC()

	item := map[string]types.AttributeValue{
		attrPK:          &types.AttributeValueMemberS{Value: row.PartitionKey},
		attrSK:          &types.AttributeValueMemberS{Value: row.RowKey},
		attrTimestamp:   &types.AttributeValueMemberS{Value: timestamp.Format(time.RFC3339Nano)},
		attrTimestampMS: &types.AttributeValueMemberN{Value: strconv.FormatInt(timestamp.UnixMilli(), 10)},
		attrMessage:     &types.AttributeValueMemberS{Value: row.Message},
	}
	if row.Level != "" {
		item[attrLevel] = &types.AttributeValueMemberS{Value: row.Level}
	}
	if s.ttl > 0 {
		expiresAt := s.now().Add(s.ttl).Unix()
		item[attrExpiresAt] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt, 10)}
	}

	return item
}
