package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/dreschagin/cloudsink/internal/application/port"
	"github.com/dreschagin/cloudsink/internal/infrastructure/connection"
)

// AppendMode selects how appends are emulated on S3.
type AppendMode string

const (
	// AppendModeRewrite reads the object and writes it back with the payload
	// appended, guarded by If-Match on the last known ETag. Works on any
	// S3-compatible storage.
	AppendModeRewrite AppendMode = "rewrite"
	// AppendModeOffset uses native appends (WriteOffsetBytes), available on
	// S3 Express One Zone directory buckets.
	AppendModeOffset AppendMode = "offset"

	defaultContentType = "text/plain; charset=utf-8"
)

type Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	UsePathStyle    bool
	AppendMode      AppendMode
	ContentType     string
}

// api is the subset of *s3.Client used by AppendStore.
type api interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// AppendStore implements port.AppendStore on top of S3 buckets (containers)
// and objects (append-only blobs).
type AppendStore struct {
	client      api
	region      string
	mode        AppendMode
	contentType string
}

func NewAppendStore(ctx context.Context, cfg Config) (*AppendStore, error) {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.AppendMode == "" {
		cfg.AppendMode = AppendModeRewrite
	}
	if cfg.AppendMode != AppendModeRewrite && cfg.AppendMode != AppendModeOffset {
		return nil, fmt.Errorf("unsupported s3 append mode: %s", cfg.AppendMode)
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			options.BaseEndpoint = &endpoint
		}
		options.UsePathStyle = cfg.UsePathStyle
	})

	return newAppendStore(client, cfg), nil
}

func newAppendStore(client api, cfg Config) *AppendStore {
	contentType := cfg.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	mode := cfg.AppendMode
	if mode == "" {
		mode = AppendModeRewrite
	}

	return &AppendStore{
		client:      client,
		region:      cfg.Region,
		mode:        mode,
		contentType: contentType,
	}
}

// NewAppendStoreFromConnection is a port.AppendStoreFactory.
// Recognized keys: Region, Endpoint, AccessKeyId, SecretAccessKey, PathStyle, AppendMode.
func NewAppendStoreFromConnection(ctx context.Context, raw string) (port.AppendStore, error) {
	descriptor, err := connection.Parse(raw)
	if err != nil {
		return nil, err
	}

	settings, err := descriptor.AWSSettings("us-east-1")
	if err != nil {
		return nil, err
	}

	pathStyle, err := descriptor.Bool("PathStyle", false)
	if err != nil {
		return nil, err
	}

	return NewAppendStore(ctx, Config{
		Region:          settings.Region,
		Endpoint:        settings.Endpoint,
		AccessKeyID:     settings.AccessKeyID,
		SecretAccessKey: settings.SecretAccessKey,
		SessionToken:    settings.SessionToken,
		UsePathStyle:    pathStyle,
		AppendMode:      AppendMode(strings.ToLower(descriptor.Get("AppendMode"))),
	})
}

// OpenContainer checks that the bucket exists and creates it otherwise.
func (s *AppendStore) OpenContainer(ctx context.Context, name string) (port.AppendContainer, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &name})
	if err == nil {
		return &bucket{store: s, name: name}, nil
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("head bucket %s failed: %w", name, err)
	}

	input := &s3.CreateBucketInput{Bucket: &name}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}

	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		var ownedByYou *types.BucketAlreadyOwnedByYou
		if !errors.As(err, &ownedByYou) {
			return nil, fmt.Errorf("create bucket %s failed: %w", name, err)
		}
	}

	return &bucket{store: s, name: name}, nil
}

type bucket struct {
	store *AppendStore
	name  string
}

// OpenObject checks that the object exists and creates an empty one otherwise.
func (b *bucket) OpenObject(ctx context.Context, key string) (port.AppendObject, error) {
	head, err := b.store.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &b.name, Key: &key})
	if err == nil {
		return &object{
			bucket: b,
			key:    key,
			size:   aws.ToInt64(head.ContentLength),
			etag:   aws.ToString(head.ETag),
		}, nil
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("head object %s/%s failed: %w", b.name, key, err)
	}

	out, err := b.store.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &b.name,
		Key:         &key,
		Body:        bytes.NewReader(nil),
		ContentType: &b.store.contentType,
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			// someone else created it in between
			return b.OpenObject(ctx, key)
		}
		return nil, fmt.Errorf("create object %s/%s failed: %w", b.name, key, err)
	}

	return &object{bucket: b, key: key, etag: aws.ToString(out.ETag)}, nil
}

type object struct {
	bucket *bucket
	key    string
	size   int64
	etag   string
}

func (o *object) Append(ctx context.Context, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if o.bucket.store.mode == AppendModeOffset {
		return o.appendAtOffset(ctx, payload)
	}
	return o.rewrite(ctx, payload)
}

func (o *object) appendAtOffset(ctx context.Context, payload []byte) error {
	_, err := o.bucket.store.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:           &o.bucket.name,
		Key:              &o.key,
		Body:             bytes.NewReader(payload),
		WriteOffsetBytes: aws.Int64(o.size),
	})
	if err != nil {
		return fmt.Errorf("append to %s/%s at offset %d failed: %w", o.bucket.name, o.key, o.size, err)
	}

	o.size += int64(len(payload))
	return nil
}

func (o *object) rewrite(ctx context.Context, payload []byte) error {
	current, err := o.bucket.store.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &o.bucket.name,
		Key:    &o.key,
	})
	if err != nil {
		return fmt.Errorf("get object %s/%s failed: %w", o.bucket.name, o.key, err)
	}
	existing, err := io.ReadAll(current.Body)
	_ = current.Body.Close()
	if err != nil {
		return fmt.Errorf("read object %s/%s failed: %w", o.bucket.name, o.key, err)
	}

	etag := aws.ToString(current.ETag)
	body := make([]byte, 0, len(existing)+len(payload))
	body = append(body, existing...)
	body = append(body, payload...)

	input := &s3.PutObjectInput{
		Bucket:      &o.bucket.name,
		Key:         &o.key,
		Body:        bytes.NewReader(body),
		ContentType: &o.bucket.store.contentType,
	}
	if etag != "" {
		input.IfMatch = aws.String(etag)
	}

	out, err := o.bucket.store.client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("rewrite object %s/%s failed: %w", o.bucket.name, o.key, err)
	}

	o.etag = aws.ToString(out.ETag)
	o.size = int64(len(body))
	return nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchBucket) || errors.As(err, &noSuchKey) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket", "NoSuchKey":
			return true
		}
	}
	return httpStatus(err) == http.StatusNotFound
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
		return true
	}
	return httpStatus(err) == http.StatusPreconditionFailed
}

func httpStatus(err error) int {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}
