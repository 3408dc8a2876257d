package config

import (
	"strings"
	"testing"
	"time"
)

func setSinkEnv(t *testing.T, kind, backend, connection string) {
	t.Helper()
	t.Setenv("SINK_KIND", kind)
	t.Setenv("SINK_BACKEND", backend)
	t.Setenv("SINK_CONNECTION", connection)
}

func TestLoad_Defaults(t *testing.T) {
	setSinkEnv(t, "", "", "Region=us-east-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Sink.Kind != "append" || cfg.Sink.Backend != "s3" {
		t.Fatalf("unexpected sink %+v", cfg.Sink)
	}
	if cfg.Sink.DefaultResource != "logs" {
		t.Fatalf("DefaultResource = %q", cfg.Sink.DefaultResource)
	}
	if cfg.Ingest.MaxBodyBytes != 5*1024*1024 || cfg.Ingest.MaxEvents != 10000 {
		t.Fatalf("unexpected ingest limits %+v", cfg.Ingest)
	}
	if !cfg.Metrics.PrometheusEnabled || cfg.Metrics.CloudWatch.Enabled {
		t.Fatalf("unexpected metrics config %+v", cfg.Metrics)
	}
	if cfg.Metrics.CloudWatch.FlushInterval != 10*time.Second {
		t.Fatalf("FlushInterval = %v", cfg.Metrics.CloudWatch.FlushInterval)
	}
	if cfg.Server.Port != "8080" || cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
}

func TestLoad_SinkSelection(t *testing.T) {
	tests := []struct {
		kind        string
		backend     string
		wantBackend string
		wantErr     string
	}{
		{kind: "queue", wantBackend: "nats"},
		{kind: "queue", backend: "redis", wantBackend: "redis"},
		{kind: "table", wantBackend: "dynamodb"},
		{kind: "TABLE", backend: "Postgres", wantBackend: "postgres"},
		{kind: "append", backend: "cloudwatch", wantBackend: "cloudwatch"},
		{kind: "append", backend: "redis", wantErr: "not supported"},
		{kind: "stream", wantErr: "invalid SINK_KIND"},
	}

	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.backend, func(t *testing.T) {
			setSinkEnv(t, tt.kind, tt.backend, "Url=nats://localhost:4222")

			cfg, err := Load()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Sink.Backend != tt.wantBackend {
				t.Fatalf("Backend = %q, want %q", cfg.Sink.Backend, tt.wantBackend)
			}
		})
	}
}

func TestLoad_RequiresConnection(t *testing.T) {
	setSinkEnv(t, "append", "s3", "  ")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "SINK_CONNECTION") {
		t.Fatalf("expected SINK_CONNECTION error, got %v", err)
	}
}

func TestLoad_AuthTokenRequired(t *testing.T) {
	setSinkEnv(t, "append", "s3", "Region=us-east-1")
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("AUTH_BEARER_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when auth is enabled without token")
	}
}

func TestLoad_InvalidNumbers(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{key: "INGEST_MAX_BODY_MB", value: "lots"},
		{key: "INGEST_RATE_LIMIT_RPS", value: "fast"},
		{key: "CLOUDWATCH_METRICS_FLUSH_INTERVAL", value: "10"},
		{key: "CLOUDWATCH_METRICS_DIMENSIONS", value: "Env"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			setSinkEnv(t, "append", "s3", "Region=us-east-1")
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Fatalf("expected error mentioning %s, got %v", tt.key, err)
			}
		})
	}
}

func TestParseDimensions(t *testing.T) {
	dims, err := parseDimensions("Env=prod, Service=api")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dims) != 2 || dims["Env"] != "prod" || dims["Service"] != "api" {
		t.Fatalf("unexpected dimensions %v", dims)
	}

	empty, err := parseDimensions("")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty map, got %v (%v)", empty, err)
	}
}
