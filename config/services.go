package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the audit computation worker pool.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs the queue and result reaper.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeWorker,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, worker, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains audit worker service configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"2"`

	// JobLease is the duration to lease a claimed audit job.
	JobLease time.Duration `env:"WORKER_JOB_LEASE" envDefault:"2m"`

	// JobTimeout bounds one job's total execution. A job that exceeds it
	// fails transiently and re-enters the retry path.
	JobTimeout time.Duration `env:"WORKER_JOB_TIMEOUT" envDefault:"10m"`

	// WorkerID identifies this worker instance in claims. Defaults to a
	// hostname-derived identity when empty.
	WorkerID string `env:"WORKER_ID" envDefault:""`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.JobLease < 5*time.Second {
		w.JobLease = 5 * time.Second
	}
	if w.JobTimeout < 30*time.Second {
		w.JobTimeout = 30 * time.Second
	}
	w.WorkerID = strings.TrimSpace(w.WorkerID)
}

// RulesEngineConfig contains the external rules engine client configuration.
type RulesEngineConfig struct {
	// BaseURL is the rules engine endpoint.
	BaseURL string `env:"RULES_ENGINE_URL" envDefault:"http://localhost:8090"`

	// Timeout bounds each engine request.
	Timeout time.Duration `env:"RULES_ENGINE_TIMEOUT" envDefault:"2m"`
}

// Sanitize applies guardrails to rules engine configuration values.
func (r *RulesEngineConfig) Sanitize() {
	r.BaseURL = strings.TrimSpace(r.BaseURL)
	if r.Timeout <= 0 {
		r.Timeout = 2 * time.Minute
	}
}

// ReaperConfig contains queue and result reaper configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// DeadMaxAge is the maximum age for dead-lettered jobs before deletion.
	DeadMaxAge time.Duration `env:"REAPER_DEAD_MAX_AGE" envDefault:"168h"` // 7 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.DeadMaxAge < 1*time.Hour {
		r.DeadMaxAge = 1 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
