package actor

import (
	"sync"

	"go.uber.org/zap"

	"github.com/flightlink/copter-actor/internal/translator"
	"github.com/flightlink/copter-actor/pkg/mqtt"
)

// DefaultQueueSize bounds the number of events waiting to be published.
const DefaultQueueSize = 256

type event struct {
	name    string
	payload interface{}
}

// eventFilter holds the set of event names forwarded to the hub. Names that
// the translator never emits may be enabled without effect.
type eventFilter struct {
	mu      sync.RWMutex
	enabled map[string]bool
}

func newEventFilter() *eventFilter {
	f := &eventFilter{}
	f.enable(nil)
	return f
}

// enable adds names to the set. nil restores every event.
func (f *eventFilter) enable(names []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if names == nil {
		f.enabled = make(map[string]bool)
		for _, name := range translator.Names() {
			f.enabled[name] = true
		}
		return
	}
	for _, name := range names {
		f.enabled[name] = true
	}
}

// disable removes names from the set. nil clears it.
func (f *eventFilter) disable(names []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if names == nil {
		f.enabled = make(map[string]bool)
		return
	}
	for _, name := range names {
		delete(f.enabled, name)
	}
}

func (f *eventFilter) allows(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.enabled[name]
}

// Emit queues a translated event for publishing. It never blocks: events are
// dropped while the module is stopped, filtered out or when the queue is full.
func (a *Actor) Emit(name string, payload interface{}) {
	if !a.filter.allows(name) {
		return
	}
	// Held across the send so Stop cannot flush the queue mid-enqueue.
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.running {
		return
	}
	select {
	case a.queue <- event{name: name, payload: payload}:
	default:
		a.dropped.Add(1)
		a.logger.Warn("Event queue full, dropping event",
			zap.String("event", name),
			zap.Int("capacity", cap(a.queue)))
	}
}

// pump publishes queued events in order until done is closed, then flushes
// what is left.
func (a *Actor) pump(done <-chan struct{}) {
	for {
		select {
		case ev := <-a.queue:
			a.publishEvent(ev)
		case <-done:
			for {
				select {
				case ev := <-a.queue:
					a.publishEvent(ev)
				default:
					return
				}
			}
		}
	}
}

func (a *Actor) publishEvent(ev event) {
	msg, err := mqtt.NewMessage(mqtt.MessageTypeEvent, a.source, mqtt.EventMessage{
		Event: ev.name,
		Data:  ev.payload,
	})
	if err != nil {
		a.logger.Error("Failed to create event message",
			zap.String("event", ev.name),
			zap.Error(err))
		return
	}

	topic := a.topics.Event(ev.name)
	if err := a.hub.PublishJSON(topic, a.cfg.QoS, false, msg); err != nil {
		a.logger.Error("Failed to publish event",
			zap.String("topic", topic),
			zap.Error(err))
		return
	}
	a.published.Add(1)
}

var _ translator.EmitFunc = (*Actor)(nil).Emit
