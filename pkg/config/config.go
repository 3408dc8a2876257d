package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Sink     SinkConfig
	Ingest   IngestConfig
	Metrics  MetricsConfig
	Security SecurityConfig
	LogLevel string
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// SinkConfig выбирает writer и его backend
type SinkConfig struct {
	Kind            string // append | queue | table
	Backend         string // s3 | cloudwatch | nats | redis | dynamodb | postgres
	Connection      string
	DefaultResource string
	DefaultObject   string
}

type IngestConfig struct {
	MaxBodyBytes   int64
	MaxEvents      int
	RateLimitRPS   float64
	RateLimitBurst int
}

type MetricsConfig struct {
	PrometheusEnabled bool
	CloudWatch        CloudWatchMetricsConfig
}

type CloudWatchMetricsConfig struct {
	Enabled         bool
	Namespace       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	FlushInterval   time.Duration
	Dimensions      map[string]string
}

type SecurityConfig struct {
	AuthEnabled bool
	AuthToken   string
}

// backendsByKind - допустимые backend для каждого вида writer, первый - по умолчанию
var backendsByKind = map[string][]string{
	"append": {"s3", "cloudwatch"},
	"queue":  {"nats", "redis"},
	"table":  {"dynamodb", "postgres"},
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	maxBodyMB, err := strconv.Atoi(getEnv("INGEST_MAX_BODY_MB", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_MAX_BODY_MB: %w", err)
	}

	maxEvents, err := strconv.Atoi(getEnv("INGEST_MAX_EVENTS", "10000"))
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_MAX_EVENTS: %w", err)
	}

	rateLimitRPS, err := strconv.ParseFloat(getEnv("INGEST_RATE_LIMIT_RPS", "50"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_RATE_LIMIT_RPS: %w", err)
	}

	rateLimitBurst, err := strconv.Atoi(getEnv("INGEST_RATE_LIMIT_BURST", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_RATE_LIMIT_BURST: %w", err)
	}

	flushInterval, err := time.ParseDuration(getEnv("CLOUDWATCH_METRICS_FLUSH_INTERVAL", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLOUDWATCH_METRICS_FLUSH_INTERVAL: %w", err)
	}

	shutdownTimeout, err := time.ParseDuration(getEnv("SERVER_SHUTDOWN_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT: %w", err)
	}

	dimensions, err := parseDimensions(getEnv("CLOUDWATCH_METRICS_DIMENSIONS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid CLOUDWATCH_METRICS_DIMENSIONS: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: shutdownTimeout,
		},
		Sink: SinkConfig{
			Kind:            strings.ToLower(getEnv("SINK_KIND", "append")),
			Backend:         strings.ToLower(getEnv("SINK_BACKEND", "")),
			Connection:      getEnv("SINK_CONNECTION", ""),
			DefaultResource: getEnv("SINK_DEFAULT_RESOURCE", "logs"),
			DefaultObject:   getEnv("SINK_DEFAULT_OBJECT", ""),
		},
		Ingest: IngestConfig{
			MaxBodyBytes:   int64(maxBodyMB) * 1024 * 1024,
			MaxEvents:      maxEvents,
			RateLimitRPS:   rateLimitRPS,
			RateLimitBurst: rateLimitBurst,
		},
		Metrics: MetricsConfig{
			PrometheusEnabled: getEnvBool("METRICS_PROMETHEUS_ENABLED", true),
			CloudWatch: CloudWatchMetricsConfig{
				Enabled:         getEnvBool("CLOUDWATCH_METRICS_ENABLED", false),
				Namespace:       getEnv("CLOUDWATCH_METRICS_NAMESPACE", "CloudSink/Delivery"),
				Region:          getEnv("CLOUDWATCH_METRICS_REGION", getEnv("AWS_REGION", "us-east-1")),
				Endpoint:        getEnv("CLOUDWATCH_METRICS_ENDPOINT", ""),
				AccessKeyID:     getEnv("CLOUDWATCH_METRICS_ACCESS_KEY_ID", ""),
				SecretAccessKey: getEnv("CLOUDWATCH_METRICS_SECRET_ACCESS_KEY", ""),
				FlushInterval:   flushInterval,
				Dimensions:      dimensions,
			},
		},
		Security: SecurityConfig{
			AuthEnabled: getEnvBool("AUTH_ENABLED", false),
			AuthToken:   getEnv("AUTH_BEARER_TOKEN", ""),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Sink.normalize(); err != nil {
		return nil, err
	}

	if cfg.Security.AuthEnabled && cfg.Security.AuthToken == "" {
		return nil, fmt.Errorf("AUTH_BEARER_TOKEN is required when AUTH_ENABLED=true")
	}

	return cfg, nil
}

// normalize проверяет сочетание kind/backend и подставляет backend по умолчанию
func (s *SinkConfig) normalize() error {
	backends, ok := backendsByKind[s.Kind]
	if !ok {
		return fmt.Errorf("invalid SINK_KIND %q: expected append, queue or table", s.Kind)
	}

	if s.Backend == "" {
		s.Backend = backends[0]
	}

	supported := false
	for _, backend := range backends {
		if backend == s.Backend {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("SINK_BACKEND %q is not supported for SINK_KIND=%s (expected one of %s)",
			s.Backend, s.Kind, strings.Join(backends, ", "))
	}

	if strings.TrimSpace(s.Connection) == "" {
		return fmt.Errorf("SINK_CONNECTION is required")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

// parseDimensions разбирает "Env=prod,Service=api"
func parseDimensions(raw string) (map[string]string, error) {
	dimensions := make(map[string]string)
	for _, item := range splitCSV(raw) {
		name, value, ok := strings.Cut(item, "=")
		if !ok || name == "" || value == "" {
			return nil, fmt.Errorf("dimension %q must look like Name=Value", item)
		}
		dimensions[name] = value
	}
	return dimensions, nil
}

func splitCSV(raw string) []string {
	items := make([]string, 0)
	current := ""

	for _, r := range raw {
		if r == ',' {
			if current != "" {
				items = append(items, current)
				current = ""
			}
			continue
		}
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			current += string(r)
		}
	}

	if current != "" {
		items = append(items, current)
	}

	return items
}
