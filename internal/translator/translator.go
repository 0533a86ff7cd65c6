// Package translator maps raw driver events onto the fixed set of named,
// serializable events published to the hub.
package translator

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/flightlink/copter-actor/internal/driver"
	"github.com/flightlink/copter-actor/pkg/coordinate"
	"github.com/flightlink/copter-actor/pkg/mission"
)

// Emitted event names.
const (
	EventConnected      = "connected"
	EventDisconnected   = "disconnected"
	EventType           = "type"
	EventMode           = "mode"
	EventArming         = "arming"
	EventSpeed          = "speed"
	EventBattery        = "battery"
	EventHome           = "home"
	EventAltitude       = "altitude"
	EventGPSPosition    = "gpsPosition"
	EventMission        = "mission"
	EventMissionSaved   = "missionSaved"
	EventCommandReached = "commandReached"
)

// Names lists every event the translator can emit.
func Names() []string {
	return []string{
		EventConnected,
		EventDisconnected,
		EventType,
		EventMode,
		EventArming,
		EventSpeed,
		EventBattery,
		EventHome,
		EventAltitude,
		EventGPSPosition,
		EventMission,
		EventMissionSaved,
		EventCommandReached,
	}
}

// EmitFunc receives translated events. payload is nil, a scalar or a
// map[string]interface{}; ownership passes to the callee.
type EmitFunc func(name string, payload interface{})

// State is the registration state of a Translator.
type State int

const (
	Unregistered State = iota
	Registered
)

func (s State) String() string {
	if s == Registered {
		return "registered"
	}
	return "unregistered"
}

// Option configures a Translator.
type Option func(*Translator)

// WithObserver installs fn to see every raw event before translation.
func WithObserver(fn func(driver.Event)) Option {
	return func(t *Translator) { t.observe = fn }
}

// Translator listens to one Drone while registered.
type Translator struct {
	drone   driver.Drone
	emit    EmitFunc
	observe func(driver.Event)
	logger  *zap.Logger

	mu         sync.Mutex
	state      State
	listenerID driver.ListenerID
	hasLast    bool
	last       [3]uint64
}

// New returns an unregistered Translator for drone.
func New(drone driver.Drone, emit EmitFunc, logger *zap.Logger, opts ...Option) *Translator {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Translator{
		drone:  drone,
		emit:   emit,
		logger: logger.With(zap.String("component", "translator")),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register subscribes to the drone. It is a no-op while already registered.
func (t *Translator) Register() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Registered {
		return
	}
	t.listenerID = t.drone.RegisterListener(driver.Listener{
		OnEvent:       t.Handle,
		OnInterrupted: t.interrupted,
	})
	t.state = Registered
	t.logger.Debug("Registered drone listener")
}

// Unregister drops the subscription and forgets the last position.
func (t *Translator) Unregister() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Unregistered {
		return
	}
	t.drone.UnregisterListener(t.listenerID)
	t.state = Unregistered
	t.hasLast = false
	t.logger.Debug("Unregistered drone listener")
}

// State returns the registration state.
func (t *Translator) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Handle translates one raw event. Events arriving while unregistered are dropped.
func (t *Translator) Handle(ev driver.Event) {
	if t.observe != nil {
		t.observe(ev)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Registered {
		t.logger.Debug("Dropping event while unregistered", zap.String("event", string(ev)))
		return
	}

	switch ev {
	case driver.EventConnected:
		t.send(EventConnected, nil)

	case driver.EventDisconnected:
		t.hasLast = false
		t.send(EventDisconnected, nil)

	case driver.EventTypeUpdated:
		if v, ok := attribute[driver.VehicleType](t, driver.AttrType); ok {
			t.send(EventType, map[string]interface{}{
				"droneType":       v.DroneType,
				"firmwareLabel":   v.FirmwareLabel,
				"firmwareVersion": v.FirmwareVersion,
			})
		}

	case driver.EventModeUpdated:
		if v, ok := attribute[driver.State](t, driver.AttrState); ok {
			t.send(EventMode, map[string]interface{}{"mode": v.Mode.Label})
		}

	case driver.EventArmingUpdated:
		if v, ok := attribute[driver.State](t, driver.AttrState); ok {
			t.send(EventArming, map[string]interface{}{"armed": v.Armed})
		}

	case driver.EventSpeedUpdated:
		if v, ok := attribute[driver.Speed](t, driver.AttrSpeed); ok {
			t.send(EventSpeed, map[string]interface{}{
				"ground":   v.Ground,
				"vertical": v.Vertical,
				"air":      v.Air,
			})
		}

	case driver.EventBatteryUpdated:
		if v, ok := attribute[driver.Battery](t, driver.AttrBattery); ok {
			t.send(EventBattery, map[string]interface{}{
				"remain":  v.Remain,
				"voltage": v.Voltage,
				"current": v.Current,
			})
		}

	case driver.EventHomeUpdated:
		if v, ok := attribute[driver.Home](t, driver.AttrHome); ok {
			t.send(EventHome, map[string]interface{}{"coordinate": v.Coordinate.Encode()})
		}

	case driver.EventAltitudeUpdated:
		v, ok := attribute[driver.Altitude](t, driver.AttrAltitude)
		if ok && t.positionChanged() {
			t.send(EventAltitude, map[string]interface{}{"altitude": v.Altitude})
		}

	case driver.EventGPSPositionUpdated:
		v, ok := attribute[driver.GPS](t, driver.AttrGPS)
		if ok && t.positionChanged() {
			t.send(EventGPSPosition, map[string]interface{}{"coordinate": v.Position.Encode()})
		}

	case driver.EventMissionReceived:
		if v, ok := attribute[mission.Mission](t, driver.AttrMission); ok {
			t.send(EventMission, map[string]interface{}{"commands": mission.Encode(v)})
		}

	case driver.EventMissionSent:
		t.send(EventMissionSaved, nil)

	case driver.EventMissionItemReached:
		if v, ok := attribute[driver.MissionProgress](t, driver.AttrMissionProgress); ok {
			t.send(EventCommandReached, map[string]interface{}{"index": v.ReachedIndex})
		}

	default:
		t.logger.Debug("Unhandled drone event", zap.String("event", string(ev)))
	}
}

func (t *Translator) send(name string, payload interface{}) {
	t.logger.Debug("Drone event", zap.String("event", name), zap.Any("payload", payload))
	if t.emit != nil {
		t.emit(name, payload)
	}
}

func (t *Translator) interrupted(reason string) {
	t.logger.Warn("Drone service interrupted", zap.String("reason", reason))
}

// positionChanged resolves the current 3D position from the GPS fix and altitude
// (NaN for a missing part) and reports whether it differs bitwise from the last
// emitted one. A changed position becomes the new reference.
func (t *Translator) positionChanged() bool {
	pos := coordinate.Coordinate3D{Latitude: math.NaN(), Longitude: math.NaN(), Altitude: math.NaN()}
	if g, ok := attribute[driver.GPS](t, driver.AttrGPS); ok {
		pos.Latitude, pos.Longitude = g.Position.Latitude, g.Position.Longitude
	}
	if a, ok := attribute[driver.Altitude](t, driver.AttrAltitude); ok {
		pos.Altitude = a.Altitude
	}

	bits := [3]uint64{
		math.Float64bits(pos.Latitude),
		math.Float64bits(pos.Longitude),
		math.Float64bits(pos.Altitude),
	}
	if t.hasLast && bits == t.last {
		return false
	}
	t.last = bits
	t.hasLast = true
	return true
}

// attribute fetches an attribute of type T. A missing value, or one of an
// unexpected type, counts as unavailable.
func attribute[T any](t *Translator, at driver.AttributeType) (T, bool) {
	var zero T
	raw, ok := t.drone.Attribute(at)
	if !ok || raw == nil {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		t.logger.Warn("Unexpected attribute value", zap.String("attribute", string(at)), zap.Any("value", raw))
		return zero, false
	}
	return v, true
}
