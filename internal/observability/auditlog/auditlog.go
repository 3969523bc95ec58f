// Package auditlog emits audit events for mutations of advisor-visible
// records. Emission is best effort: sink failures are logged and never
// block or fail the mutation that produced the event.
package auditlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Op identifies the kind of mutation an event records.
type Op string

const (
	// OpInsert records a row creation.
	OpInsert Op = "insert"
	// OpUpdate records a row modification.
	OpUpdate Op = "update"
	// OpDelete records a row removal.
	OpDelete Op = "delete"
	// OpActivate records an active-pointer flip in the result store.
	OpActivate Op = "activate"
)

// Event is one recorded mutation. Before and After carry row images as
// JSON; either may be empty depending on the operation.
type Event struct {
	Table  string          `json:"table"`
	Op     Op              `json:"op"`
	Actor  string          `json:"actor,omitempty"`
	Before json.RawMessage `json:"before,omitempty"`
	After  json.RawMessage `json:"after,omitempty"`
	At     time.Time       `json:"at"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// Emitter fans one event out to its sinks. The zero value is usable and
// drops everything.
type Emitter struct {
	sinks  []Sink
	logger *slog.Logger
}

// EmitterOptions groups dependencies for NewEmitter.
type EmitterOptions struct {
	Logger *slog.Logger // Optional: structured logger; enables the slog sink
	Sinks  []Sink       // Optional: additional sinks (e.g. the HTTP sink)
}

// NewEmitter builds an emitter. When a logger is provided, a slog sink is
// always included so every audit event at least lands in the logs.
func NewEmitter(opts EmitterOptions) *Emitter {
	sinks := make([]Sink, 0, len(opts.Sinks)+1)
	if opts.Logger != nil {
		sinks = append(sinks, &slogSink{logger: opts.Logger})
	}
	for _, sink := range opts.Sinks {
		if sink != nil {
			sinks = append(sinks, sink)
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "auditlog")
	}

	return &Emitter{sinks: sinks, logger: logger}
}

// Emit delivers one event to every sink. Called synchronously after the
// local commit of the mutation it records; errors are logged, never
// returned.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	if e == nil || len(e.sinks) == 0 {
		return
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	for _, sink := range e.sinks {
		if err := sink.Emit(ctx, event); err != nil && e.logger != nil {
			e.logger.WarnContext(ctx, "audit sink emit failed",
				"table", event.Table,
				"op", event.Op,
				"error", err,
			)
		}
	}
}

// slogSink writes audit events to the structured log.
type slogSink struct {
	logger *slog.Logger
}

func (s *slogSink) Emit(ctx context.Context, event Event) error {
	attrs := []any{
		"audit_table", event.Table,
		"audit_op", string(event.Op),
		"at", event.At.Format(time.RFC3339Nano),
	}
	if event.Actor != "" {
		attrs = append(attrs, "actor", event.Actor)
	}
	if len(event.Before) > 0 {
		attrs = append(attrs, "before", json.RawMessage(event.Before))
	}
	if len(event.After) > 0 {
		attrs = append(attrs, "after", json.RawMessage(event.After))
	}

	s.logger.InfoContext(ctx, "audit event", attrs...)
	return nil
}
