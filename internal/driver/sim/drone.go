// Package sim implements the driver contract with an in-process simulated
// vehicle. It performs no real I/O: link parameters are validated, flight
// commands update the simulated state, and the matching events are delivered to
// listeners in order on a dedicated goroutine.
package sim

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/flightlink/copter-actor/internal/driver"
	"github.com/flightlink/copter-actor/pkg/coordinate"
	"github.com/flightlink/copter-actor/pkg/mission"
)

var (
	// ErrNotRegistered is returned by Connect before a Tower registered the drone.
	ErrNotRegistered = errors.New("drone not registered with a tower")
	// ErrInvalidParameter is returned by Connect for unusable link parameters.
	ErrInvalidParameter = errors.New("invalid connection parameter")
	// ErrRejected is returned for commands the simulated vehicle refuses.
	ErrRejected = errors.New("command rejected by vehicle")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("drone closed")
)

const eventBuffer = 256

// Config shapes the simulated vehicle.
type Config struct {
	DroneType       int
	FirmwareLabel   string
	FirmwareVersion string
	// Home is the position reported after connecting.
	Home coordinate.Coordinate3D
	// LinkDelay elapses between Connect and the connected event.
	LinkDelay time.Duration
}

// DefaultConfig returns a copter parked at the origin.
func DefaultConfig() Config {
	return Config{
		DroneType:       driver.DroneTypeCopter,
		FirmwareLabel:   "ArduCopter",
		FirmwareVersion: "4.5.7",
		LinkDelay:       100 * time.Millisecond,
	}
}

// Drone is a simulated driver.Drone.
type Drone struct {
	cfg    Config
	logger *zap.Logger

	registered atomic.Bool
	nextID     atomic.Uint64

	mu         sync.Mutex
	listeners  map[driver.ListenerID]driver.Listener
	generation uint64
	connecting bool
	connected  bool
	params     driver.ConnectionParameter

	state    driver.State
	vtype    *driver.VehicleType
	speed    *driver.Speed
	battery  *driver.Battery
	home     *driver.Home
	altitude *driver.Altitude
	gps      *driver.GPS
	stored   mission.Mission
	loaded   mission.Mission
	progress *driver.MissionProgress

	events    chan driver.Event
	done      chan struct{}
	closeOnce sync.Once
	wg        conc.WaitGroup
}

// NewDrone starts a simulated vehicle. Close releases its goroutines.
func NewDrone(cfg Config, logger *zap.Logger) *Drone {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DroneType == driver.DroneTypeUnknown {
		cfg.DroneType = driver.DroneTypeCopter
	}

	d := &Drone{
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "sim-drone")),
		listeners: make(map[driver.ListenerID]driver.Listener),
		events:    make(chan driver.Event, eventBuffer),
		done:      make(chan struct{}),
	}
	d.wg.Go(d.pump)
	return d
}

// Close stops event delivery. Pending events are discarded.
func (d *Drone) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
}

// Interrupt notifies listeners that the driver service went away.
func (d *Drone) Interrupt(reason string) {
	for _, l := range d.snapshot() {
		if l.OnInterrupted != nil {
			l.OnInterrupted(reason)
		}
	}
}

func (d *Drone) pump() {
	for {
		select {
		case <-d.done:
			return
		case ev := <-d.events:
			for _, l := range d.snapshot() {
				if l.OnEvent != nil {
					l.OnEvent(ev)
				}
			}
		}
	}
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

// emit queues events in order. It must not be called with d.mu held.
func (d *Drone) emit(events ...driver.Event) {
	for _, ev := range events {
		select {
		case d.events <- ev:
		case <-d.done:
			return
		}
	}
}

// RegisterListener implements driver.Drone.
func (d *Drone) RegisterListener(l driver.Listener) driver.ListenerID {
	id := driver.ListenerID(d.nextID.Add(1))
	d.mu.Lock()
	d.listeners[id] = l
	d.mu.Unlock()
	return id
}

// UnregisterListener implements driver.Drone.
func (d *Drone) UnregisterListener(id driver.ListenerID) {
	d.mu.Lock()
	delete(d.listeners, id)
	d.mu.Unlock()
}

// Connect validates params and brings the link up after Config.LinkDelay.
func (d *Drone) Connect(params driver.ConnectionParameter) error {
	if err := validate(params); err != nil {
		return err
	}
	if !d.registered.Load() {
		return ErrNotRegistered
	}
	select {
	case <-d.done:
		return ErrClosed
	default:
	}

	d.mu.Lock()
	if d.connecting || d.connected {
		d.mu.Unlock()
		d.logger.Debug("Connect ignored, link already up or pending")
		return nil
	}
	d.connecting = true
	d.params = params
	d.generation++
	gen := d.generation
	d.mu.Unlock()

	d.logger.Info("Connecting simulated vehicle", zap.Stringer("params", params))

	d.wg.Go(func() {
		select {
		case <-d.done:
			return
		case <-time.After(d.cfg.LinkDelay):
		}
		d.linkUp(gen)
	})
	return nil
}

func (d *Drone) linkUp(gen uint64) {
	d.mu.Lock()
	if !d.connecting || d.generation != gen {
		d.mu.Unlock()
		return
	}
	d.connecting = false
	d.connected = true

	mode, _ := lookupMode(d.cfg.DroneType, initialModes[d.cfg.DroneType])
	d.state = driver.State{Connected: true, Mode: mode}
	d.vtype = &driver.VehicleType{
		DroneType:       d.cfg.DroneType,
		FirmwareLabel:   d.cfg.FirmwareLabel,
		FirmwareVersion: d.cfg.FirmwareVersion,
	}
	d.speed = &driver.Speed{}
	d.battery = &driver.Battery{Remain: 100, Voltage: 12.6}
	d.home = &driver.Home{Coordinate: d.cfg.Home}
	d.altitude = &driver.Altitude{Altitude: 0}
	d.gps = &driver.GPS{Position: d.cfg.Home.Flat()}
	d.mu.Unlock()

	d.logger.Info("Simulated vehicle connected")
	d.emit(
		driver.EventConnected,
		driver.EventTypeUpdated,
		driver.EventModeUpdated,
		driver.EventArmingUpdated,
		driver.EventHomeUpdated,
		driver.EventBatteryUpdated,
		driver.EventGPSPositionUpdated,
		driver.EventAltitudeUpdated,
	)
}

// Disconnect drops the link, including one still pending.
func (d *Drone) Disconnect() error {
	d.mu.Lock()
	if !d.connecting && !d.connected {
		d.mu.Unlock()
		return nil
	}
	d.connecting = false
	d.connected = false
	d.generation++
	d.state = driver.State{}
	d.vtype, d.speed, d.battery, d.home, d.altitude, d.gps = nil, nil, nil, nil, nil, nil
	d.loaded, d.progress = nil, nil
	d.mu.Unlock()

	d.logger.Info("Simulated vehicle disconnected")
	d.emit(driver.EventDisconnected)
	return nil
}

// IsConnected implements driver.Drone.
func (d *Drone) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Params returns the parameters of the last accepted Connect.
func (d *Drone) Params() driver.ConnectionParameter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params
}

// Attribute implements driver.Drone. Values are copies.
func (d *Drone) Attribute(t driver.AttributeType) (interface{}, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch t {
	case driver.AttrState:
		return d.state, true
	case driver.AttrType:
		return deref(d.vtype)
	case driver.AttrSpeed:
		return deref(d.speed)
	case driver.AttrBattery:
		return deref(d.battery)
	case driver.AttrHome:
		return deref(d.home)
	case driver.AttrAltitude:
		return deref(d.altitude)
	case driver.AttrGPS:
		return deref(d.gps)
	case driver.AttrMission:
		if d.loaded == nil {
			return nil, false
		}
		return append(mission.Mission(nil), d.loaded...), true
	case driver.AttrMissionProgress:
		return deref(d.progress)
	default:
		return nil, false
	}
}

func deref[T any](p *T) (interface{}, bool) {
	if p == nil {
		return nil, false
	}
	return *p, true
}

// command runs fn under the lock when the link is up and emits what it returns.
func (d *Drone) command(name string, fn func() ([]driver.Event, error)) error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return driver.ErrNotConnected
	}
	events, err := fn()
	d.mu.Unlock()

	if err != nil {
		d.logger.Warn("Command rejected", zap.String("command", name), zap.Error(err))
		return err
	}
	d.logger.Debug("Command applied", zap.String("command", name))
	d.emit(events...)
	return nil
}

// ClimbTo implements driver.Drone.
func (d *Drone) ClimbTo(altitude float64) error {
	return d.command("climbTo", func() ([]driver.Event, error) {
		if !d.state.Flying {
			return nil, fmt.Errorf("%w: not flying", ErrRejected)
		}
		d.altitude.Altitude = altitude
		return []driver.Event{driver.EventAltitudeUpdated}, nil
	})
}

// GoTo implements driver.Drone.
func (d *Drone) GoTo(point coordinate.Coordinate2D, force bool) error {
	return d.command("goTo", func() ([]driver.Event, error) {
		if !d.state.Flying {
			return nil, fmt.Errorf("%w: not flying", ErrRejected)
		}
		var events []driver.Event
		if force {
			if m, ok := familyMode(d.cfg.DroneType, "GUIDED"); ok && d.state.Mode != m {
				d.state.Mode = m
				events = append(events, driver.EventModeUpdated)
			}
		}
		d.gps.Position = point
		return append(events, driver.EventGPSPositionUpdated), nil
	})
}

// Takeoff implements driver.Drone.
func (d *Drone) Takeoff(altitude float64) error {
	return d.command("takeoff", func() ([]driver.Event, error) {
		if !d.state.Armed {
			return nil, fmt.Errorf("%w: not armed", ErrRejected)
		}
		if altitude <= 0 {
			return nil, fmt.Errorf("%w: takeoff altitude %v", ErrRejected, altitude)
		}
		d.state.Flying = true
		d.altitude.Altitude = altitude
		d.speed.Vertical = 0
		return []driver.Event{driver.EventAltitudeUpdated, driver.EventSpeedUpdated}, nil
	})
}

// PauseAtCurrentLocation implements driver.Drone.
func (d *Drone) PauseAtCurrentLocation() error {
	return d.command("pause", func() ([]driver.Event, error) {
		*d.speed = driver.Speed{}
		return []driver.Event{driver.EventSpeedUpdated}, nil
	})
}

// TurnTo implements driver.Drone.
func (d *Drone) TurnTo(angle, angularSpeed float64, relative bool) error {
	return d.command("turnTo", func() ([]driver.Event, error) {
		if angularSpeed < 0 {
			return nil, fmt.Errorf("%w: negative angular speed", ErrRejected)
		}
		return []driver.Event{driver.EventAttitudeUpdated}, nil
	})
}

// Arm implements driver.Drone.
func (d *Drone) Arm(arm bool) error {
	return d.command("arm", func() ([]driver.Event, error) {
		if !arm && d.state.Flying {
			return nil, fmt.Errorf("%w: cannot disarm in flight", ErrRejected)
		}
		d.state.Armed = arm
		return []driver.Event{driver.EventArmingUpdated}, nil
	})
}

// SetVehicleMode implements driver.Drone. name must be family-qualified.
func (d *Drone) SetVehicleMode(name string) error {
	return d.command("setVehicleMode", func() ([]driver.Event, error) {
		m, ok := lookupMode(d.cfg.DroneType, name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown mode %q", ErrRejected, name)
		}
		d.state.Mode = m
		events := []driver.Event{driver.EventModeUpdated}

		switch name {
		case familyPrefixes[d.cfg.DroneType] + "LAND":
			d.state.Flying = false
			d.altitude.Altitude = 0
			events = append(events, driver.EventAltitudeUpdated)
		case familyPrefixes[d.cfg.DroneType] + "RTL":
			d.gps.Position = d.home.Coordinate.Flat()
			events = append(events, driver.EventGPSPositionUpdated)
		}
		return events, nil
	})
}

// SetVehicleHome implements driver.Drone.
func (d *Drone) SetVehicleHome(home coordinate.Coordinate3D) error {
	return d.command("setVehicleHome", func() ([]driver.Event, error) {
		d.home.Coordinate = home
		return []driver.Event{driver.EventHomeUpdated}, nil
	})
}

// GotoWaypoint implements driver.Drone.
func (d *Drone) GotoWaypoint(index int) error {
	return d.command("gotoWaypoint", func() ([]driver.Event, error) {
		if index < 0 || index >= len(d.stored) {
			return nil, fmt.Errorf("%w: waypoint %d out of range [0,%d)", ErrRejected, index, len(d.stored))
		}
		d.progress = &driver.MissionProgress{ReachedIndex: index}
		return []driver.Event{driver.EventMissionItemReached}, nil
	})
}

// LoadWaypoints reads the stored mission back and reports it as received.
func (d *Drone) LoadWaypoints() error {
	return d.command("loadWaypoints", func() ([]driver.Event, error) {
		d.loaded = append(mission.Mission{}, d.stored...)
		return []driver.Event{driver.EventMissionReceived}, nil
	})
}

// SetMission stages m and, when pushToDrone is set, stores it on the vehicle.
func (d *Drone) SetMission(m mission.Mission, pushToDrone bool) error {
	return d.command("setMission", func() ([]driver.Event, error) {
		d.loaded = append(mission.Mission{}, m...)
		if !pushToDrone {
			return nil, nil
		}
		d.stored = append(mission.Mission{}, m...)
		return []driver.Event{driver.EventMissionSent}, nil
	})
}

// StartMission begins the stored mission at its first command.
func (d *Drone) StartMission(forceModeChange, forceArm bool) error {
	return d.command("startMission", func() ([]driver.Event, error) {
		if len(d.stored) == 0 {
			return nil, fmt.Errorf("%w: no mission stored", ErrRejected)
		}
		auto, _ := familyMode(d.cfg.DroneType, "AUTO")
		if d.state.Mode != auto && !forceModeChange {
			return nil, fmt.Errorf("%w: mode %s is not %s", ErrRejected, d.state.Mode.Label, auto.Label)
		}
		if !d.state.Armed && !forceArm {
			return nil, fmt.Errorf("%w: not armed", ErrRejected)
		}

		var events []driver.Event
		if d.state.Mode != auto {
			d.state.Mode = auto
			events = append(events, driver.EventModeUpdated)
		}
		if !d.state.Armed {
			d.state.Armed = true
			events = append(events, driver.EventArmingUpdated)
		}
		d.state.Flying = true
		d.progress = &driver.MissionProgress{ReachedIndex: 0}
		return append(events, driver.EventMissionItemReached), nil
	})
}

func validate(p driver.ConnectionParameter) error {
	switch p.Transport {
	case driver.TransportUDP:
		if p.UDP == nil || p.UDP.LocalPort <= 0 || p.UDP.LocalPort > 65535 {
			return fmt.Errorf("%w: udp local port", ErrInvalidParameter)
		}
		if p.UDP.RemoteHost != "" && (p.UDP.RemotePort <= 0 || p.UDP.RemotePort > 65535) {
			return fmt.Errorf("%w: udp remote port", ErrInvalidParameter)
		}
	case driver.TransportUSB:
		if p.USB == nil || p.USB.BaudRate <= 0 {
			return fmt.Errorf("%w: usb baud rate", ErrInvalidParameter)
		}
	default:
		return fmt.Errorf("%w: transport %q", ErrInvalidParameter, p.Transport)
	}
	return nil
}

var _ driver.Drone = (*Drone)(nil)
