package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/roundtable"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Session lifecycle metrics
	SessionsStartedTotal metric.Int64Counter
	SessionsEndedTotal   metric.Int64Counter
	SessionsDeletedTotal metric.Int64Counter

	// Turn metrics
	AITurnsTotal            metric.Int64Counter
	AITurnsInterruptedTotal metric.Int64Counter
	TokensStreamedTotal     metric.Int64Counter
	ActiveStreams           metric.Int64UpDownCounter
	HandRaisesTotal         metric.Int64Counter
	TurnConflictsTotal      metric.Int64Counter

	// Generation backend metrics
	GenerationFallbacksTotal metric.Int64Counter
	EvaluationDuration       metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Session lifecycle metrics
	m.SessionsStartedTotal, _ = meter.Int64Counter(
		"roundtable.sessions.started.total",
		metric.WithDescription("Total number of discussion sessions started"),
		metric.WithUnit("{session}"),
	)

	m.SessionsEndedTotal, _ = meter.Int64Counter(
		"roundtable.sessions.ended.total",
		metric.WithDescription("Total number of discussion sessions ended"),
		metric.WithUnit("{session}"),
	)

	m.SessionsDeletedTotal, _ = meter.Int64Counter(
		"roundtable.sessions.deleted.total",
		metric.WithDescription("Total number of discussion sessions deleted"),
		metric.WithUnit("{session}"),
	)

	// Turn metrics
	m.AITurnsTotal, _ = meter.Int64Counter(
		"roundtable.turns.ai.total",
		metric.WithDescription("Total number of AI turns started"),
		metric.WithUnit("{turn}"),
	)

	m.AITurnsInterruptedTotal, _ = meter.Int64Counter(
		"roundtable.turns.ai.interrupted.total",
		metric.WithDescription("Total number of AI turns that ended without a terminal marker"),
		metric.WithUnit("{turn}"),
	)

	m.TokensStreamedTotal, _ = meter.Int64Counter(
		"roundtable.tokens.streamed.total",
		metric.WithDescription("Total number of tokens streamed to callers"),
		metric.WithUnit("{token}"),
	)

	m.ActiveStreams, _ = meter.Int64UpDownCounter(
		"roundtable.streams.active",
		metric.WithDescription("Number of AI response streams currently in flight"),
		metric.WithUnit("{stream}"),
	)

	m.HandRaisesTotal, _ = meter.Int64Counter(
		"roundtable.hands.raised.total",
		metric.WithDescription("Total number of raise-hand requests"),
		metric.WithUnit("{request}"),
	)

	m.TurnConflictsTotal, _ = meter.Int64Counter(
		"roundtable.turns.conflicts.total",
		metric.WithDescription("Total number of rejected turn operations (floor, overlap, expiry)"),
		metric.WithUnit("{conflict}"),
	)

	// Generation backend metrics
	m.GenerationFallbacksTotal, _ = meter.Int64Counter(
		"roundtable.generation.fallbacks.total",
		metric.WithDescription("Total number of moderator lines served from canned text after a backend failure"),
		metric.WithUnit("{fallback}"),
	)

	m.EvaluationDuration, _ = meter.Float64Histogram(
		"roundtable.evaluation.duration",
		metric.WithDescription("Duration of end-of-session evaluation calls"),
		metric.WithUnit("ms"),
	)

	return m
}
