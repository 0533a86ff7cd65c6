package healthcheck

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// DefaultCheckTimeout bounds a single checker run.
const DefaultCheckTimeout = 3 * time.Second

// Engine runs registered checkers concurrently and keeps the latest aggregate.
type Engine struct {
	checkers map[string]Checker
	logger   *zap.Logger
	timeout  time.Duration

	mu   sync.RWMutex
	last *AggregatedResult
}

// NewEngine creates a new health check engine. timeout bounds each checker; zero
// selects DefaultCheckTimeout.
func NewEngine(logger *zap.Logger, timeout time.Duration) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}

	return &Engine{
		checkers: make(map[string]Checker),
		logger:   logger.With(zap.String("component", "healthcheck")),
		timeout:  timeout,
	}
}

// Register adds a health checker to the engine, replacing any checker with the same name.
func (e *Engine) Register(checker Checker) {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := checker.Name()
	e.checkers[name] = checker
	e.logger.Debug("Registered health checker", zap.String("checker", name))
}

// Unregister removes a health checker from the engine.
func (e *Engine) Unregister(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.checkers, name)
}

// CheckAll runs all registered health checks and returns aggregated results.
// A checker that panics or returns nil is reported as unknown.
func (e *Engine) CheckAll(ctx context.Context) *AggregatedResult {
	e.mu.RLock()
	checkers := make(map[string]Checker, len(e.checkers))
	for k, v := range e.checkers {
		checkers[k] = v
	}
	e.mu.RUnlock()

	results := make(map[string]*Result, len(checkers))
	var resultsMu sync.Mutex
	var wg conc.WaitGroup

	for name, checker := range checkers {
		name, checker := name, checker
		wg.Go(func() {
			result := e.run(ctx, name, checker)

			resultsMu.Lock()
			results[name] = result
			resultsMu.Unlock()
		})
	}
	wg.Wait()

	agg := &AggregatedResult{
		OverallStatus: DetermineOverallStatus(results),
		Components:    results,
		Timestamp:     time.Now(),
	}

	e.mu.Lock()
	e.last = agg
	e.mu.Unlock()

	return agg
}

// Last returns the most recent aggregate, or nil before the first CheckAll.
func (e *Engine) Last() *AggregatedResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

func (e *Engine) run(ctx context.Context, name string, checker Checker) (result *Result) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Health checker panicked", zap.String("checker", name), zap.Any("panic", r))
			result = NewResult(name, StatusUnknown, fmt.Sprintf("checker panicked: %v", r))
		}
		result.Duration = time.Since(start)
	}()

	result = checker.Check(ctx)
	if result == nil {
		result = NewResult(name, StatusUnknown, "checker returned no result")
	}
	return result
}
