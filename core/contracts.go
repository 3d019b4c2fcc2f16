package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

// EventStore persists canonical events with insert-if-absent semantics keyed
// by Event.RequestID. Save must rely on the storage engine's own unique
// constraint so concurrent callers racing on the same request id resolve to
// exactly one insert.
type EventStore interface {
	// Save inserts the event if no record with the same request id exists.
	// It returns true when this call created the record and false when a
	// record already existed; existing records are never overwritten.
	Save(ctx context.Context, event Event) (bool, error)

	// ListRecent returns up to limit events ordered by ingestion time,
	// most recent first. A non-positive limit falls back to the configured
	// default and requests above the hard cap are clamped.
	ListRecent(ctx context.Context, limit int) ([]Event, error)

	// Stats returns the total stored event count and a per-action breakdown.
	Stats(ctx context.Context) (EventStats, error)

	// Ping reports storage reachability for health checks.
	Ping(ctx context.Context) error
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// MetricsRecorder receives pipeline outcome counters. The default is
// NopMetricsRecorder; the HTTP layer installs a Prometheus-backed recorder.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

var _ MetricsRecorder = NopMetricsRecorder{}
