package healthcheck

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PublishFunc delivers an aggregated result, e.g. to the hub health topic.
type PublishFunc func(ctx context.Context, result *AggregatedResult) error

// Reporter runs the engine on a schedule and publishes every result. Status
// transitions are logged at info.
type Reporter struct {
	engine  *Engine
	publish PublishFunc
	logger  *zap.Logger

	mu       sync.Mutex
	status   Status
	failures int
}

// NewReporter creates a reporter over engine.
func NewReporter(engine *Engine, publish PublishFunc, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		engine:  engine,
		publish: publish,
		logger:  logger.With(zap.String("component", "health-reporter")),
		status:  StatusUnknown,
	}
}

// Report checks every component once and publishes the result.
func (r *Reporter) Report(ctx context.Context) error {
	result := r.engine.CheckAll(ctx)

	r.mu.Lock()
	previous := r.status
	r.status = result.OverallStatus
	r.mu.Unlock()

	if previous != result.OverallStatus {
		r.logger.Info("Health status changed",
			zap.String("from", string(previous)),
			zap.String("to", string(result.OverallStatus)))
	}

	if r.publish == nil {
		return nil
	}
	if err := r.publish(ctx, result); err != nil {
		r.mu.Lock()
		r.failures++
		failures := r.failures
		r.mu.Unlock()
		r.logger.Warn("Failed to publish health report",
			zap.Int("consecutive_failures", failures),
			zap.Error(err))
		return err
	}

	r.mu.Lock()
	r.failures = 0
	r.mu.Unlock()
	return nil
}

// Run reports immediately and then every interval until ctx is done.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Debug("Health reporting started", zap.Duration("interval", interval))
	for {
		_ = r.Report(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
