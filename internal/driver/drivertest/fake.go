// Package drivertest provides synchronous driver doubles that record calls.
package drivertest

import (
	"fmt"
	"sync"

	"github.com/flightlink/copter-actor/internal/driver"
	"github.com/flightlink/copter-actor/pkg/coordinate"
	"github.com/flightlink/copter-actor/pkg/mission"
)

// Call is one recorded driver invocation.
type Call struct {
	Method string
	Args   []interface{}
}

// Drone is a driver.Drone whose attributes are set directly by tests and whose
// events are delivered synchronously by Fire.
type Drone struct {
	mu         sync.Mutex
	listeners  map[driver.ListenerID]driver.Listener
	nextID     driver.ListenerID
	attributes map[driver.AttributeType]interface{}
	calls      []Call
	connected  bool

	// Err, when set, is returned by every command and by Connect.
	Err error
}

// NewDrone returns a disconnected fake with no attributes.
func NewDrone() *Drone {
	return &Drone{
		listeners:  make(map[driver.ListenerID]driver.Listener),
		attributes: make(map[driver.AttributeType]interface{}),
	}
}

// Set makes v the value of attribute t. A nil v makes it unavailable.
func (d *Drone) Set(t driver.AttributeType, v interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v == nil {
		delete(d.attributes, t)
		return
	}
	d.attributes[t] = v
}

// SetConnected sets the IsConnected result without firing events.
func (d *Drone) SetConnected(connected bool) {
	d.mu.Lock()
	d.connected = connected
	d.mu.Unlock()
}

// Fire delivers ev to every listener on the calling goroutine.
func (d *Drone) Fire(ev driver.Event) {
	for _, l := range d.snapshot() {
		if l.OnEvent != nil {
			l.OnEvent(ev)
		}
	}
}

// Interrupt delivers a service interruption to every listener.
func (d *Drone) Interrupt(reason string) {
	for _, l := range d.snapshot() {
		if l.OnInterrupted != nil {
			l.OnInterrupted(reason)
		}
	}
}

// Listeners returns the number of registered listeners.
func (d *Drone) Listeners() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// Calls returns the recorded invocations in order.
func (d *Drone) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// CallsTo returns the recorded invocations of method.
func (d *Drone) CallsTo(method string) []Call {
	var out []Call
	for _, c := range d.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (d *Drone) snapshot() []driver.Listener {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]driver.Listener, 0, len(d.listeners))
	for _, l := range d.listeners {
		out = append(out, l)
	}
	return out
}

func (d *Drone) record(method string, args ...interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Method: method, Args: args})
	return d.Err
}

// Connect records the call; the test fires EventConnected itself.
func (d *Drone) Connect(params driver.ConnectionParameter) error {
	return d.record("Connect", params)
}

// Disconnect records the call; the test fires EventDisconnected itself.
func (d *Drone) Disconnect() error {
	return d.record("Disconnect")
}

// IsConnected implements driver.Drone.
func (d *Drone) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// RegisterListener implements driver.Drone.
func (d *Drone) RegisterListener(l driver.Listener) driver.ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.listeners[d.nextID] = l
	return d.nextID
}

// UnregisterListener implements driver.Drone.
func (d *Drone) UnregisterListener(id driver.ListenerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.listeners, id)
}

// Attribute implements driver.Drone.
func (d *Drone) Attribute(t driver.AttributeType) (interface{}, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.attributes[t]
	return v, ok
}

func (d *Drone) ClimbTo(altitude float64) error { return d.record("ClimbTo", altitude) }
func (d *Drone) GoTo(point coordinate.Coordinate2D, force bool) error {
	return d.record("GoTo", point, force)
}
func (d *Drone) Takeoff(altitude float64) error { return d.record("Takeoff", altitude) }
func (d *Drone) PauseAtCurrentLocation() error  { return d.record("PauseAtCurrentLocation") }
func (d *Drone) TurnTo(angle, angularSpeed float64, relative bool) error {
	return d.record("TurnTo", angle, angularSpeed, relative)
}
func (d *Drone) Arm(arm bool) error               { return d.record("Arm", arm) }
func (d *Drone) SetVehicleMode(mode string) error { return d.record("SetVehicleMode", mode) }
func (d *Drone) SetVehicleHome(home coordinate.Coordinate3D) error {
	return d.record("SetVehicleHome", home)
}
func (d *Drone) GotoWaypoint(index int) error { return d.record("GotoWaypoint", index) }
func (d *Drone) LoadWaypoints() error         { return d.record("LoadWaypoints") }
func (d *Drone) SetMission(m mission.Mission, pushToDrone bool) error {
	return d.record("SetMission", m, pushToDrone)
}
func (d *Drone) StartMission(forceModeChange, forceArm bool) error {
	return d.record("StartMission", forceModeChange, forceArm)
}

// Tower is a driver.Tower whose listener callbacks are fired by the test.
type Tower struct {
	mu        sync.Mutex
	connected bool
	listener  driver.TowerListener
	drones    []driver.Drone
	calls     []Call
}

// NewTower returns a disconnected fake tower.
func NewTower() *Tower {
	return &Tower{}
}

// FireConnected marks the tower up and runs OnConnected.
func (t *Tower) FireConnected() {
	t.mu.Lock()
	t.connected = true
	l := t.listener
	t.mu.Unlock()
	if l.OnConnected != nil {
		l.OnConnected()
	}
}

// FireDisconnected marks the tower down and runs OnDisconnected.
func (t *Tower) FireDisconnected() {
	t.mu.Lock()
	t.connected = false
	l := t.listener
	t.mu.Unlock()
	if l.OnDisconnected != nil {
		l.OnDisconnected()
	}
}

// Calls returns the recorded invocations in order.
func (t *Tower) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// Drones returns the registered drones.
func (t *Tower) Drones() []driver.Drone {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]driver.Drone(nil), t.drones...)
}

// Connect stores l; the test fires the callbacks.
func (t *Tower) Connect(l driver.TowerListener) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = l
	t.calls = append(t.calls, Call{Method: "Connect"})
	return nil
}

// Disconnect implements driver.Tower.
func (t *Tower) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.calls = append(t.calls, Call{Method: "Disconnect"})
	return nil
}

// IsTowerConnected implements driver.Tower.
func (t *Tower) IsTowerConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// RegisterDrone implements driver.Tower.
func (t *Tower) RegisterDrone(d driver.Drone) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return fmt.Errorf("tower not connected")
	}
	t.drones = append(t.drones, d)
	t.calls = append(t.calls, Call{Method: "RegisterDrone"})
	return nil
}

// UnregisterDrone implements driver.Tower.
func (t *Tower) UnregisterDrone(d driver.Drone) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, r := range t.drones {
		if r == d {
			t.drones = append(t.drones[:i], t.drones[i+1:]...)
			break
		}
	}
	t.calls = append(t.calls, Call{Method: "UnregisterDrone"})
	return nil
}

var (
	_ driver.Drone = (*Drone)(nil)
	_ driver.Tower = (*Tower)(nil)
)
