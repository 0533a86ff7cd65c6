// Package caller invokes actor module methods over the hub and follows the
// module's spec and events from the other side of the call topic.
package caller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/flightlink/copter-actor/pkg/mqtt"
)

var (
	// ErrCallFailed wraps the error text returned by the module.
	ErrCallFailed = errors.New("call failed")
	// ErrNotStarted is returned when Call runs before Start.
	ErrNotStarted = errors.New("caller not started")
)

// EventHandler receives every event delivered by Watch.
type EventHandler func(event mqtt.EventMessage)

// Caller correlates call envelopes with the module's responses.
type Caller struct {
	hub    mqtt.Hub
	topics mqtt.ModuleTopics
	source string
	qos    byte
	logger *zap.Logger

	mu      sync.Mutex
	started bool
	pending map[string]chan *mqtt.ResponseMessage
}

// New creates a caller addressing the module behind topics.
func New(hub mqtt.Hub, topics mqtt.ModuleTopics, source string, qos byte, logger *zap.Logger) (*Caller, error) {
	if hub == nil {
		return nil, fmt.Errorf("hub cannot be nil")
	}
	if topics.Call == "" || topics.Response == "" {
		return nil, fmt.Errorf("module topics cannot be empty")
	}
	if source == "" {
		source = "caller:" + mqtt.GenerateMessageID()[:8]
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caller{
		hub:     hub,
		topics:  topics,
		source:  source,
		qos:     qos,
		logger:  logger.With(zap.String("component", "caller")),
		pending: make(map[string]chan *mqtt.ResponseMessage),
	}, nil
}

// Start connects the hub if needed and subscribes to responses.
func (c *Caller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if !c.hub.IsConnected() {
		if err := c.hub.Connect(); err != nil {
			return fmt.Errorf("failed to connect to hub: %w", err)
		}
	}
	if err := c.hub.Subscribe(c.topics.Response, c.qos, c.handleResponse); err != nil {
		return fmt.Errorf("failed to subscribe to responses: %w", err)
	}
	c.started = true
	return nil
}

// Close unsubscribes and fails every pending call.
func (c *Caller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	return c.hub.Unsubscribe(c.topics.Response)
}

// Call publishes method with params and waits for the correlated response.
// A response with Success false is returned together with ErrCallFailed.
func (c *Caller) Call(ctx context.Context, method string, params ...interface{}) (*mqtt.ResponseMessage, error) {
	msg, err := mqtt.NewMessage(mqtt.MessageTypeCall, c.source, mqtt.CallMessage{Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("failed to create call: %w", err)
	}

	ch := make(chan *mqtt.ResponseMessage, 1)
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil, ErrNotStarted
	}
	c.pending[msg.ID] = ch
	c.mu.Unlock()
	defer c.forget(msg.ID)

	c.logger.Debug("Calling module method", zap.String("method", method), zap.String("id", msg.ID))
	if err := c.hub.PublishJSON(c.topics.Call, c.qos, false, msg); err != nil {
		return nil, fmt.Errorf("failed to publish call: %w", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrNotStarted
		}
		if !resp.Success {
			return resp, fmt.Errorf("%w: %s: %s", ErrCallFailed, method, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s response: %w", method, ctx.Err())
	}
}

// Spec waits for the module's retained spec.
func (c *Caller) Spec(ctx context.Context) (*mqtt.SpecMessage, error) {
	specs := make(chan *mqtt.SpecMessage, 1)
	err := c.hub.Subscribe(c.topics.Spec, c.qos, func(topic string, payload []byte) error {
		if len(payload) == 0 {
			return nil
		}
		var msg mqtt.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("invalid spec envelope on %s: %w", topic, err)
		}
		var spec mqtt.SpecMessage
		if err := msg.UnmarshalPayload(&spec); err != nil {
			return fmt.Errorf("invalid spec payload: %w", err)
		}
		select {
		case specs <- &spec:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to spec: %w", err)
	}
	defer func() { _ = c.hub.Unsubscribe(c.topics.Spec) }()

	select {
	case spec := <-specs:
		return spec, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for module spec: %w", ctx.Err())
	}
}

// Watch delivers events to fn until ctx is done. With no names every event
// of the module is delivered.
func (c *Caller) Watch(ctx context.Context, names []string, fn EventHandler) error {
	topics := []string{c.topics.Events()}
	if len(names) > 0 {
		topics = topics[:0]
		for _, name := range names {
			topics = append(topics, c.topics.Event(name))
		}
	}

	handler := func(topic string, payload []byte) error {
		var msg mqtt.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("invalid event envelope on %s: %w", topic, err)
		}
		if msg.Type != mqtt.MessageTypeEvent {
			return nil
		}
		var event mqtt.EventMessage
		if err := msg.UnmarshalPayload(&event); err != nil {
			return fmt.Errorf("invalid event payload: %w", err)
		}
		fn(event)
		return nil
	}

	for i, topic := range topics {
		if err := c.hub.Subscribe(topic, c.qos, handler); err != nil {
			for _, done := range topics[:i] {
				_ = c.hub.Unsubscribe(done)
			}
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}

	<-ctx.Done()
	for _, topic := range topics {
		if err := c.hub.Unsubscribe(topic); err != nil {
			c.logger.Warn("Failed to unsubscribe", zap.String("topic", topic), zap.Error(err))
		}
	}
	return nil
}

func (c *Caller) handleResponse(topic string, payload []byte) error {
	var msg mqtt.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("invalid response envelope on %s: %w", topic, err)
	}
	if msg.Type != mqtt.MessageTypeResponse || msg.CorrelationID == "" {
		return nil
	}

	var resp mqtt.ResponseMessage
	if err := msg.UnmarshalPayload(&resp); err != nil {
		resp = mqtt.ResponseMessage{Error: fmt.Sprintf("invalid response payload: %v", err)}
	}

	// Sent under the lock so Close cannot close ch mid-send.
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.pending[msg.CorrelationID]
	if !ok {
		// Another caller's response on the shared topic.
		return nil
	}
	select {
	case ch <- &resp:
	default:
	}
	return nil
}

func (c *Caller) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
