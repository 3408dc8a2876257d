package main

import (
	"io"
	"testing"

	"github.com/dreschagin/cloudsink/internal/application/usecase"
	"github.com/dreschagin/cloudsink/pkg/config"
	"github.com/dreschagin/cloudsink/pkg/logger"
)

func TestBuildWriter(t *testing.T) {
	log := logger.NewWithWriter("error", io.Discard)

	tests := []struct {
		kind    string
		backend string
		want    string
		wantErr bool
	}{
		{kind: "append", backend: "s3", want: "*usecase.AppendWriter"},
		{kind: "append", backend: "cloudwatch", want: "*usecase.AppendWriter"},
		{kind: "queue", backend: "nats", want: "*usecase.QueueWriter"},
		{kind: "queue", backend: "redis", want: "*usecase.QueueWriter"},
		{kind: "table", backend: "dynamodb", want: "*usecase.TableWriter"},
		{kind: "table", backend: "postgres", want: "*usecase.TableWriter"},
		{kind: "append", backend: "redis", wantErr: true},
		{kind: "blob", backend: "s3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.backend, func(t *testing.T) {
			writer, err := buildWriter(config.SinkConfig{
				Kind:       tt.kind,
				Backend:    tt.backend,
				Connection: "Region=us-east-1",
			}, nil, log)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var got string
			switch writer.(type) {
			case *usecase.AppendWriter:
				got = "*usecase.AppendWriter"
			case *usecase.QueueWriter:
				got = "*usecase.QueueWriter"
			case *usecase.TableWriter:
				got = "*usecase.TableWriter"
			}
			if got != tt.want {
				t.Fatalf("writer = %T, want %s", writer, tt.want)
			}
			if writer.State() != usecase.StateUninitialized {
				t.Fatalf("store must be created lazily, state = %s", writer.State())
			}
		})
	}
}
