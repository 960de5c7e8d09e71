// SPDX-License-Identifier: Apache-2.0
// Package telemetry provides observability for the Agora router and
// artifact store: OTEL initialization, trace-aware logging, and the
// metric instruments both components report to.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RouterMetrics tracks message delivery outcomes. Every method is
// fire-and-forget: nil-safe, non-blocking, never returns an error.
type RouterMetrics struct {
	deliveredCounter metric.Int64Counter
	failedCounter    metric.Int64Counter
	broadcastCounter metric.Int64Counter
	heartbeatCounter metric.Int64Counter
}

// NewRouterMetrics creates the router instruments on the global meter.
func NewRouterMetrics() (*RouterMetrics, error) {
	meter := otel.Meter("agora/router")

	delivered, err := meter.Int64Counter(
		"agora.router.delivered",
		metric.WithDescription("Messages delivered to a mailbox or handler"),
	)
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter(
		"agora.router.failed",
		metric.WithDescription("Delivery failures by reason"),
	)
	if err != nil {
		return nil, err
	}
	broadcasts, err := meter.Int64Counter(
		"agora.router.broadcasts",
		metric.WithDescription("Broadcast fan-outs"),
	)
	if err != nil {
		return nil, err
	}
	heartbeats, err := meter.Int64Counter(
		"agora.router.heartbeats",
		metric.WithDescription("Heartbeats acknowledged locally"),
	)
	if err != nil {
		return nil, err
	}

	return &RouterMetrics{
		deliveredCounter: delivered,
		failedCounter:    failed,
		broadcastCounter: broadcasts,
		heartbeatCounter: heartbeats,
	}, nil
}

// RecordDelivered counts one delivery of the given message type.
func (rm *RouterMetrics) RecordDelivered(ctx context.Context, messageType string) {
	if rm == nil {
		return
	}
	rm.deliveredCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("message.type", messageType)),
	)
}

// RecordFailed counts one delivery failure with its reason.
func (rm *RouterMetrics) RecordFailed(ctx context.Context, reason string) {
	if rm == nil {
		return
	}
	rm.failedCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordBroadcast counts one broadcast fan-out of the given width.
func (rm *RouterMetrics) RecordBroadcast(ctx context.Context, recipients int) {
	if rm == nil {
		return
	}
	rm.broadcastCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.Int("recipients", recipients)),
	)
}

// RecordHeartbeat counts one locally acknowledged heartbeat.
func (rm *RouterMetrics) RecordHeartbeat(ctx context.Context) {
	if rm == nil {
		return
	}
	rm.heartbeatCounter.Add(ctx, 1)
}

// StoreMetrics tracks artifact store operations and cache behavior.
// Every method is fire-and-forget: nil-safe, non-blocking, never
// returns an error.
type StoreMetrics struct {
	opCounter      metric.Int64Counter
	opErrorCounter metric.Int64Counter
	cacheHitCount  metric.Int64Counter
	cacheMissCount metric.Int64Counter
	opLatencyMs    metric.Float64Histogram
}

// NewStoreMetrics creates the store instruments on the global meter.
func NewStoreMetrics() (*StoreMetrics, error) {
	meter := otel.Meter("agora/store")

	ops, err := meter.Int64Counter(
		"agora.store.operations",
		metric.WithDescription("Store operations by kind"),
	)
	if err != nil {
		return nil, err
	}
	opErrors, err := meter.Int64Counter(
		"agora.store.errors",
		metric.WithDescription("Store operation failures by kind"),
	)
	if err != nil {
		return nil, err
	}
	hits, err := meter.Int64Counter(
		"agora.store.cache.hits",
		metric.WithDescription("Artifact cache hits"),
	)
	if err != nil {
		return nil, err
	}
	misses, err := meter.Int64Counter(
		"agora.store.cache.misses",
		metric.WithDescription("Artifact cache misses"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"agora.store.latency_ms",
		metric.WithDescription("Store operation latency in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	return &StoreMetrics{
		opCounter:      ops,
		opErrorCounter: opErrors,
		cacheHitCount:  hits,
		cacheMissCount: misses,
		opLatencyMs:    latency,
	}, nil
}

// RecordOperation counts one store operation and its latency.
func (sm *StoreMetrics) RecordOperation(ctx context.Context, op string, latencyMs float64) {
	if sm == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("operation", op))
	sm.opCounter.Add(ctx, 1, attrs)
	sm.opLatencyMs.Record(ctx, latencyMs, attrs)
}

// RecordError counts one failed store operation.
func (sm *StoreMetrics) RecordError(ctx context.Context, op string) {
	if sm == nil {
		return
	}
	sm.opErrorCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("operation", op)),
	)
}

// RecordCacheHit counts one artifact cache hit.
func (sm *StoreMetrics) RecordCacheHit(ctx context.Context) {
	if sm == nil {
		return
	}
	sm.cacheHitCount.Add(ctx, 1)
}

// RecordCacheMiss counts one artifact cache miss.
func (sm *StoreMetrics) RecordCacheMiss(ctx context.Context) {
	if sm == nil {
		return
	}
	sm.cacheMissCount.Add(ctx, 1)
}
