package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Expirer is implemented by stores that can purge expired artifacts.
type Expirer interface {
	CleanupExpired(ctx context.Context) (int, error)
}

func (l *Local) startSweeper() {
	log := slog.Default()
	if l.sweepInterval <= 0 || l.store == nil {
		log.Info("runtime.sweeper.disabled",
			slog.Duration("interval", l.sweepInterval),
		)
		return
	}
	initSweepMetrics()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.sweepCancel = cancel
	l.sweepDone = done
	go func() {
		defer close(done)
		ticker := time.NewTicker(l.sweepInterval)
		defer ticker.Stop()
		log.Info("runtime.sweeper.start",
			slog.Duration("interval", l.sweepInterval),
		)
		for {
			select {
			case <-ctx.Done():
				log.Info("runtime.sweeper.stop")
				return
			case <-ticker.C:
				l.sweepOnce(ctx, log)
			}
		}
	}()
}

func (l *Local) sweepOnce(ctx context.Context, log *slog.Logger) {
	sweepCtx := ctx
	var cancel context.CancelFunc
	if l.sweepTimeout > 0 {
		sweepCtx, cancel = context.WithTimeout(ctx, l.sweepTimeout)
		defer cancel()
	}
	start := time.Now()
	purged, err := l.store.CleanupExpired(sweepCtx)
	durationMs := float64(time.Since(start).Seconds() * 1000)
	sweepCounter.Add(ctx, 1)
	sweepLatencyMs.Record(ctx, durationMs)
	if err != nil {
		sweepErrorCounter.Add(ctx, 1)
		log.Warn("runtime.sweep.error",
			slog.Float64("duration_ms", durationMs),
			slog.String("error", err.Error()),
		)
		return
	}
	if purged > 0 {
		purgedCounter.Add(ctx, int64(purged))
	}
	log.Info("runtime.sweep.complete",
		slog.Int("purged", purged),
		slog.Float64("duration_ms", durationMs),
	)
}

func (l *Local) stopSweeper() {
	if l.sweepCancel == nil {
		return
	}
	l.sweepCancel()
	if l.sweepDone != nil {
		<-l.sweepDone
	}
	l.sweepCancel = nil
	l.sweepDone = nil
}

var (
	sweepMetricsOnce  sync.Once
	sweepCounter      metric.Int64Counter
	sweepErrorCounter metric.Int64Counter
	purgedCounter     metric.Int64Counter
	sweepLatencyMs    metric.Float64Histogram
)

func initSweepMetrics() {
	sweepMetricsOnce.Do(func() {
		meter := otel.Meter("agora/runtime")
		sweepCounter, _ = meter.Int64Counter("agora.runtime.sweep.count")
		sweepErrorCounter, _ = meter.Int64Counter("agora.runtime.sweep.error.count")
		purgedCounter, _ = meter.Int64Counter("agora.runtime.sweep.purged.count")
		sweepLatencyMs, _ = meter.Float64Histogram("agora.runtime.sweep.latency_ms")
	})
}
