package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:  "single service - http",
			input: "http",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP: true,
			},
			expectError: false,
		},
		{
			name:  "single service - worker",
			input: "worker",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
			},
			expectError: false,
		},
		{
			name:  "single service - reaper",
			input: "reaper",
			expected: map[ServiceMode]bool{
				ServiceModeReaper: true,
			},
			expectError: false,
		},
		{
			name:  "multiple services - http and worker",
			input: "http,worker",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeWorker: true,
			},
			expectError: false,
		},
		{
			name:  "all services",
			input: "http,worker,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeWorker: true,
				ServiceModeReaper: true,
			},
			expectError: false,
		},
		{
			name:  "whitespace tolerated",
			input: " http , worker ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeWorker: true,
			},
			expectError: false,
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "invalid service name",
			input:       "http,scheduler",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       ",,,",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error for input %q, got services %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Fatalf("ParseServices(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestAppConfigDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse defaults: %v", err)
	}
	cfg.Sanitize()

	if cfg.Services != "http" {
		t.Errorf("Services default = %q, want %q", cfg.Services, "http")
	}
	if cfg.Postgres.Port != 5432 {
		t.Errorf("Postgres.Port default = %d, want 5432", cfg.Postgres.Port)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr default = %q, want %q", cfg.HTTP.Addr, ":8080")
	}
	if cfg.Worker.Concurrency != 2 {
		t.Errorf("Worker.Concurrency default = %d, want 2", cfg.Worker.Concurrency)
	}
	if cfg.Reaper.Interval != 5*time.Minute {
		t.Errorf("Reaper.Interval default = %s, want 5m", cfg.Reaper.Interval)
	}
	if cfg.Cache.MemoTTL != 6*time.Hour {
		t.Errorf("Cache.MemoTTL default = %s, want 6h", cfg.Cache.MemoTTL)
	}
}

func TestWorkerConfigSanitize(t *testing.T) {
	w := WorkerConfig{Concurrency: 0, JobLease: time.Second, JobTimeout: time.Second, WorkerID: " worker-1 "}
	w.Sanitize()

	if w.Concurrency != 1 {
		t.Errorf("Concurrency = %d, want 1", w.Concurrency)
	}
	if w.JobLease != 5*time.Second {
		t.Errorf("JobLease = %s, want 5s", w.JobLease)
	}
	if w.JobTimeout != 30*time.Second {
		t.Errorf("JobTimeout = %s, want 30s", w.JobTimeout)
	}
	if w.WorkerID != "worker-1" {
		t.Errorf("WorkerID = %q, want trimmed", w.WorkerID)
	}
}

func TestReaperConfigSanitize(t *testing.T) {
	r := ReaperConfig{Interval: time.Second, DeadMaxAge: time.Minute, BatchSize: 50000}
	r.Sanitize()

	if r.Interval != time.Minute {
		t.Errorf("Interval = %s, want 1m", r.Interval)
	}
	if r.DeadMaxAge != time.Hour {
		t.Errorf("DeadMaxAge = %s, want 1h", r.DeadMaxAge)
	}
	if r.BatchSize != 10000 {
		t.Errorf("BatchSize = %d, want 10000", r.BatchSize)
	}
}

func TestObservabilityAuditConfigSanitize(t *testing.T) {
	c := ObservabilityAuditConfig{SinkURL: "  https://collector.example.com/audit  "}
	c.Sanitize()

	if c.SinkURL != "https://collector.example.com/audit" {
		t.Errorf("SinkURL = %q, want trimmed", c.SinkURL)
	}
	if c.Timeout != 5*time.Second {
		t.Errorf("Timeout = %s, want 5s default", c.Timeout)
	}
	if !c.IsEnabled() {
		t.Error("IsEnabled() = false, want true when SinkURL set")
	}

	var empty ObservabilityAuditConfig
	empty.Sanitize()
	if empty.IsEnabled() {
		t.Error("IsEnabled() = true for empty config")
	}
}
