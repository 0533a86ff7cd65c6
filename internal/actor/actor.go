// Package actor exposes a vehicle as an actor module on the hub: calls arrive on
// the module's call topic and are relayed to the vehicle, translated driver
// events are published on per-event topics.
package actor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/flightlink/copter-actor/internal/translator"
	"github.com/flightlink/copter-actor/pkg/api"
	"github.com/flightlink/copter-actor/pkg/healthcheck"
	"github.com/flightlink/copter-actor/pkg/mqtt"
)

// SpecVersion is advertised with the module spec.
const SpecVersion = 1

// Config holds the module's hub identity and publishing settings.
type Config struct {
	// Module is the module name callers address, e.g. "arduCopter"
	Module string
	// ActorKey identifies this actor on the hub, e.g. "arducopter:1"
	ActorKey string
	// TopicPrefix is the hub's root topic
	TopicPrefix string
	// QoS for every publish and subscription
	QoS byte
	// QueueSize bounds pending events
	QueueSize int
	// HealthInterval between health reports; zero disables periodic reports
	HealthInterval time.Duration
	// HTTPAddr enables the local HTTP surface when set, e.g. ":8081"
	HTTPAddr string
}

// DefaultConfig returns the built-in module settings.
func DefaultConfig() Config {
	return Config{
		Module:         "arduCopter",
		ActorKey:       "arducopter:1",
		TopicPrefix:    mqtt.DefaultTopicPrefix,
		QoS:            1,
		QueueSize:      DefaultQueueSize,
		HealthInterval: 30 * time.Second,
	}
}

// Actor is the hub-facing module wrapping a Vehicle.
type Actor struct {
	cfg     Config
	hub     mqtt.Hub
	vehicle Vehicle
	topics  mqtt.ModuleTopics
	source  string
	logger  *zap.Logger

	health   *healthcheck.Engine
	reporter *healthcheck.Reporter
	filter   *eventFilter
	queue    chan event

	published atomic.Uint64
	dropped   atomic.Uint64

	mu            sync.RWMutex
	running       bool
	startTime     time.Time
	cancel        context.CancelFunc
	done          chan struct{}
	wg            *conc.WaitGroup
	shutdownFuncs []func(context.Context) error
}

// New creates a stopped module relaying calls to vehicle over hub.
func New(cfg Config, hub mqtt.Hub, vehicle Vehicle, logger *zap.Logger) (*Actor, error) {
	if hub == nil {
		return nil, fmt.Errorf("hub cannot be nil")
	}
	if vehicle == nil {
		return nil, fmt.Errorf("vehicle cannot be nil")
	}
	if cfg.Module == "" || cfg.ActorKey == "" {
		return nil, fmt.Errorf("module name and actor key are required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Actor{
		cfg:     cfg,
		hub:     hub,
		vehicle: vehicle,
		topics:  mqtt.NewModuleTopics(cfg.TopicPrefix, cfg.ActorKey, cfg.Module),
		source:  Source(cfg),
		logger:  logger.With(zap.String("component", "actor"), zap.String("module", cfg.Module)),
		health:  healthcheck.NewEngine(logger, healthcheck.DefaultCheckTimeout),
		filter:  newEventFilter(),
		queue:   make(chan event, cfg.QueueSize),
	}
	a.health.Register(healthcheck.CheckerFunc("actor", a.HealthCheck))
	a.reporter = healthcheck.NewReporter(a.health, a.publishHealth, logger)
	return a, nil
}

// Source is the envelope source of every message the module sends.
func Source(cfg Config) string {
	return "actor:" + cfg.ActorKey + "/" + cfg.Module
}

// Name implements api.Module.
func (a *Actor) Name() string {
	return a.cfg.Module
}

// Methods implements api.Module.
func (a *Actor) Methods() []string {
	return MethodNames()
}

// Events implements api.Module.
func (a *Actor) Events() []string {
	return translator.Names()
}

// Topics returns the hub topics of the module.
func (a *Actor) Topics() mqtt.ModuleTopics {
	return a.topics
}

// Spec describes the module's callable surface.
func (a *Actor) Spec() mqtt.SpecMessage {
	return mqtt.SpecMessage{
		Module:  a.cfg.Module,
		Version: SpecVersion,
		Methods: a.Methods(),
		Events:  a.Events(),
	}
}

// RegisterHealthCheck adds a checker to the module's health report.
func (a *Actor) RegisterHealthCheck(checker healthcheck.Checker) {
	a.health.Register(checker)
}

// HealthEngine returns the engine aggregating the module's checks.
func (a *Actor) HealthEngine() *healthcheck.Engine {
	return a.health
}

// Call invokes method with positional arguments. Calls are relayed without
// waiting for the vehicle; the result is always nil on success.
func (a *Actor) Call(_ context.Context, method string, args []interface{}) (interface{}, error) {
	h, ok := methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	a.logger.Debug("Call received", zap.String("method", method), zap.Int("args", len(args)))
	decoded := &arguments{values: args}
	if err := h(a, decoded); err != nil {
		a.logger.Warn("Call failed", zap.String("method", method), zap.Error(err))
		// Vehicle errors already name the supervisor operation.
		if decoded.err != nil {
			err = fmt.Errorf("%s: %w", method, err)
		}
		return nil, err
	}
	return nil, nil
}

// IsRunning implements api.Lifecycle.
func (a *Actor) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// Start connects the hub, subscribes to calls, advertises the module spec and
// starts the event pump and health reporter.
func (a *Actor) Start(ctx context.Context) error {
	if a.IsRunning() {
		return fmt.Errorf("module %s is already running", a.cfg.Module)
	}

	a.logger.Info("Starting module", zap.String("actor", a.cfg.ActorKey))

	if !a.hub.IsConnected() {
		if err := a.hub.Connect(); err != nil {
			return fmt.Errorf("failed to connect MQTT: %w", err)
		}
	}

	if err := a.hub.Subscribe(a.topics.Call, a.cfg.QoS, a.handleCall); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", a.topics.Call, err)
	}
	// Registered first so it runs last, after the reporter has stopped.
	a.RegisterShutdownFunc(func(context.Context) error {
		return a.publishOffline("Module stopped")
	})
	a.RegisterShutdownFunc(func(context.Context) error {
		return a.hub.Unsubscribe(a.topics.Call)
	})

	if err := a.publishSpec(); err != nil {
		a.logger.Warn("Failed to advertise module spec", zap.Error(err))
	}
	a.RegisterShutdownFunc(func(context.Context) error {
		// An empty retained payload clears the advertised spec.
		return a.hub.Publish(a.topics.Spec, a.cfg.QoS, true, nil)
	})

	if a.cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              a.cfg.HTTPAddr,
			Handler:           a.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		a.RegisterShutdownFunc(srv.Shutdown)
		go func() {
			a.logger.Info("HTTP server starting", zap.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("HTTP server error", zap.Error(err))
			}
		}()
	}

	// Events queued during an earlier run are stale.
	for len(a.queue) > 0 {
		<-a.queue
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	wg := conc.NewWaitGroup()
	wg.Go(func() { a.pump(done) })
	if a.cfg.HealthInterval > 0 {
		wg.Go(func() { a.reporter.Run(runCtx, a.cfg.HealthInterval) })
	}

	a.mu.Lock()
	a.running = true
	a.startTime = time.Now()
	a.cancel = cancel
	a.done = done
	a.wg = wg
	a.mu.Unlock()

	a.logger.Info("Module started",
		zap.String("calls", a.topics.Call),
		zap.String("events", a.topics.Events()))
	return nil
}

// Stop flushes pending events, withdraws the module from the hub and
// disconnects.
func (a *Actor) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	cancel, done, wg := a.cancel, a.done, a.wg
	funcs := a.shutdownFuncs
	a.shutdownFuncs = nil
	a.mu.Unlock()

	a.logger.Info("Stopping module")

	cancel()
	close(done)
	wg.Wait()

	// Execute shutdown functions in reverse order
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](ctx); err != nil {
			a.logger.Error("Shutdown function failed", zap.Error(err))
		}
	}

	if a.hub.IsConnected() {
		a.hub.Disconnect()
	}

	a.logger.Info("Module stopped",
		zap.Uint64("events_published", a.published.Load()),
		zap.Uint64("events_dropped", a.dropped.Load()))
	return nil
}

// RegisterShutdownFunc adds a function to be called during Stop.
func (a *Actor) RegisterShutdownFunc(fn func(context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shutdownFuncs = append(a.shutdownFuncs, fn)
}

// HealthCheck implements api.Actor.
func (a *Actor) HealthCheck(ctx context.Context) *healthcheck.Result {
	status := healthcheck.StatusHealthy
	message := "Module is healthy"

	a.mu.RLock()
	running, started := a.running, a.startTime
	a.mu.RUnlock()

	if !running {
		status = healthcheck.StatusUnhealthy
		message = "Module is not running"
	} else if !a.hub.IsConnected() {
		status = healthcheck.StatusDegraded
		message = "MQTT client not connected"
	}

	result := healthcheck.NewResult("actor", status, message)
	result.Details = map[string]interface{}{
		"running":          running,
		"mqtt_connected":   a.hub.IsConnected(),
		"queued_events":    len(a.queue),
		"published_events": a.published.Load(),
		"dropped_events":   a.dropped.Load(),
	}
	if running {
		result.Details["uptime_seconds"] = time.Since(started).Seconds()
	}
	return result
}

// handleCall answers one call envelope on the response topic.
func (a *Actor) handleCall(topic string, payload []byte) error {
	var msg mqtt.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("invalid call envelope on %s: %w", topic, err)
	}
	if msg.Type != mqtt.MessageTypeCall {
		a.logger.Debug("Ignoring non-call message", zap.String("type", string(msg.Type)))
		return nil
	}

	var call mqtt.CallMessage
	resp := mqtt.ResponseMessage{Success: true}
	if err := msg.UnmarshalPayload(&call); err != nil {
		resp = mqtt.ResponseMessage{Error: fmt.Sprintf("invalid call payload: %v", err)}
	} else if data, err := a.Call(context.Background(), call.Method, call.Params); err != nil {
		resp = mqtt.ResponseMessage{Error: err.Error()}
	} else {
		resp.Data = data
	}

	reply, err := mqtt.NewResponse(&msg, a.source, resp)
	if err != nil {
		return fmt.Errorf("failed to create response: %w", err)
	}
	return a.hub.PublishJSON(a.topics.Response, a.cfg.QoS, false, reply)
}

func (a *Actor) publishSpec() error {
	msg, err := mqtt.NewMessage(mqtt.MessageTypeSpec, a.source, a.Spec())
	if err != nil {
		return err
	}
	return a.hub.PublishJSON(a.topics.Spec, a.cfg.QoS, true, msg)
}

func (a *Actor) publishHealth(_ context.Context, result *healthcheck.AggregatedResult) error {
	msg, err := mqtt.NewMessage(mqtt.MessageTypeStatus, a.source, result)
	if err != nil {
		return fmt.Errorf("failed to create health message: %w", err)
	}
	// Retained, replacing the last will once the module is back.
	return a.hub.PublishJSON(a.topics.Health, a.cfg.QoS, true, msg)
}

// publishOffline replaces the retained health report with an unhealthy one.
func (a *Actor) publishOffline(reason string) error {
	msg, err := mqtt.NewMessage(mqtt.MessageTypeStatus, a.source, offlineResult(reason))
	if err != nil {
		return fmt.Errorf("failed to create health message: %w", err)
	}
	return a.hub.PublishJSON(a.topics.Health, a.cfg.QoS, true, msg)
}

func offlineResult(reason string) *healthcheck.AggregatedResult {
	return &healthcheck.AggregatedResult{
		OverallStatus: healthcheck.StatusUnhealthy,
		Components: map[string]*healthcheck.Result{
			"actor": healthcheck.NewResult("actor", healthcheck.StatusUnhealthy, reason),
		},
		Timestamp: time.Now().UTC(),
	}
}

// Will returns the last-will message announcing the module as unhealthy when
// its hub connection drops.
func Will(cfg Config) (*mqtt.Will, error) {
	msg, err := mqtt.NewMessage(mqtt.MessageTypeStatus, Source(cfg), offlineResult("Connection lost"))
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return &mqtt.Will{
		Topic:   mqtt.NewModuleTopics(cfg.TopicPrefix, cfg.ActorKey, cfg.Module).Health,
		Payload: payload,
		QoS:     cfg.QoS,
	}, nil
}

var _ api.Actor = (*Actor)(nil)
