// Package supervisor owns the vehicle driver and its tower session, enforces
// the connection state machine and forwards flight commands.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/flightlink/copter-actor/internal/driver"
	"github.com/flightlink/copter-actor/internal/translator"
	"github.com/flightlink/copter-actor/pkg/coordinate"
	"github.com/flightlink/copter-actor/pkg/healthcheck"
	"github.com/flightlink/copter-actor/pkg/mission"
)

// Soft errors are logged and the operation becomes a no-op.
var (
	ErrAlreadyConnected = errors.New("drone already connected")
	ErrNotConnected     = errors.New("drone not connected")
	ErrClosed           = errors.New("supervisor closed")
)

// Hard errors are returned to the caller.
var (
	ErrUnsupportedTransport = errors.New("unsupported transport")
	ErrMalformedAddress     = errors.New("malformed connection address")
	ErrUnknownVehicleType   = errors.New("unknown vehicle type")
)

// ConnectionState of the vehicle link.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Mode suffixes used by Land and ReturnToLaunch.
const (
	ModeLand           = "LAND"
	ModeReturnToLaunch = "RTL"
)

// Config holds the supervisor's lookup tables and link defaults.
type Config struct {
	// ModePrefixes maps a vehicle family (driver.DroneType*) to the prefix of
	// its qualified mode names.
	ModePrefixes   map[int]string
	DefaultUDPPort int
	DefaultUSBBaud int
}

// DefaultModePrefixes returns a fresh copy of the built-in family table.
func DefaultModePrefixes() map[int]string {
	return map[int]string{
		driver.DroneTypeCopter: "COPTER_",
		driver.DroneTypePlane:  "PLANE_",
		driver.DroneTypeRover:  "ROVER_",
	}
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		ModePrefixes:   DefaultModePrefixes(),
		DefaultUDPPort: driver.DefaultUDPPort,
		DefaultUSBBaud: driver.DefaultUSBBaud,
	}
}

func (c Config) withDefaults() Config {
	if c.ModePrefixes == nil {
		c.ModePrefixes = DefaultModePrefixes()
	}
	if c.DefaultUDPPort <= 0 {
		c.DefaultUDPPort = driver.DefaultUDPPort
	}
	if c.DefaultUSBBaud <= 0 {
		c.DefaultUSBBaud = driver.DefaultUSBBaud
	}
	return c
}

// Supervisor is the only holder of the drone and tower handles.
type Supervisor struct {
	cfg        Config
	drone      driver.Drone
	tower      driver.Tower
	translator *translator.Translator
	logger     *zap.Logger

	state   atomic.Int32
	closed  atomic.Bool
	started time.Time
}

// New wires a supervisor around drone and tower. Translated events go to emit.
// Open must be called to start the tower session.
func New(cfg Config, drone driver.Drone, tower driver.Tower, emit translator.EmitFunc, logger *zap.Logger) (*Supervisor, error) {
	if drone == nil {
		return nil, fmt.Errorf("drone cannot be nil")
	}
	if tower == nil {
		return nil, fmt.Errorf("tower cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Supervisor{
		cfg:     cfg.withDefaults(),
		drone:   drone,
		tower:   tower,
		logger:  logger.With(zap.String("component", "supervisor")),
		started: time.Now(),
	}
	s.translator = translator.New(drone, emit, logger, translator.WithObserver(s.observe))
	return s, nil
}

// Open connects the tower. The drone is registered once the tower reports in.
func (s *Supervisor) Open() error {
	if s.closed.Load() {
		return ErrClosed
	}
	err := s.tower.Connect(driver.TowerListener{
		OnConnected:    s.towerConnected,
		OnDisconnected: s.towerDisconnected,
	})
	if err != nil {
		return fmt.Errorf("connect tower: %w", err)
	}
	return nil
}

func (s *Supervisor) towerConnected() {
	s.logger.Info("Drone tower connected")
	if err := s.tower.RegisterDrone(s.drone); err != nil {
		s.logger.Error("Failed to register drone with tower", zap.Error(err))
		return
	}
	s.translator.Register()
}

func (s *Supervisor) towerDisconnected() {
	s.logger.Info("Drone tower disconnected")
	s.translator.Unregister()
}

// observe drives the state machine from the driver's own link callbacks. A
// disconnect is accepted from any state, including Connecting.
func (s *Supervisor) observe(ev driver.Event) {
	switch ev {
	case driver.EventConnected:
		prev := ConnectionState(s.state.Swap(int32(Connected)))
		s.logger.Info("Drone connected", zap.Stringer("previous", prev))
	case driver.EventDisconnected:
		prev := ConnectionState(s.state.Swap(int32(Disconnected)))
		s.logger.Info("Drone disconnected", zap.Stringer("previous", prev))
	}
}

// State returns the current connection state.
func (s *Supervisor) State() ConnectionState {
	return ConnectionState(s.state.Load())
}

// TranslatorState reports whether driver events are currently being translated.
func (s *Supervisor) TranslatorState() translator.State {
	return s.translator.State()
}

func (s *Supervisor) soft(op string, err error) error {
	s.logger.Warn("Ignoring call", zap.String("op", op), zap.Error(err))
	return nil
}

// Connect starts connecting to the vehicle and returns without waiting for the
// link. A call while not Disconnected is a logged no-op.
func (s *Supervisor) Connect(transport, address string) error {
	if s.closed.Load() {
		return s.soft("connect", ErrClosed)
	}
	if s.State() != Disconnected {
		return s.soft("connect", ErrAlreadyConnected)
	}

	params, err := ParseConnection(transport, address, s.cfg)
	if err != nil {
		return err
	}

	if !s.state.CompareAndSwap(int32(Disconnected), int32(Connecting)) {
		return s.soft("connect", ErrAlreadyConnected)
	}

	s.logger.Info("Connecting drone", zap.Stringer("params", params))
	if err := s.drone.Connect(params); err != nil {
		s.state.CompareAndSwap(int32(Connecting), int32(Disconnected))
		return fmt.Errorf("connect drone: %w", err)
	}
	return nil
}

// Disconnect asks the driver to drop the link. The state follows the driver's
// disconnected callback. A call while Disconnected is a logged no-op.
func (s *Supervisor) Disconnect() error {
	if s.closed.Load() {
		return s.soft("disconnect", ErrClosed)
	}
	if s.State() == Disconnected {
		return s.soft("disconnect", ErrNotConnected)
	}
	if err := s.drone.Disconnect(); err != nil {
		return fmt.Errorf("disconnect drone: %w", err)
	}
	return nil
}

// Close tears down the link and the tower session. It is safe to call more than once.
func (s *Supervisor) Close() error {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Info("Closing supervisor")

	var errs []error
	if s.drone != nil && (s.drone.IsConnected() || s.State() != Disconnected) {
		if err := s.drone.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("disconnect drone: %w", err))
		}
	}
	if s.translator != nil {
		s.translator.Unregister()
	}
	if s.tower != nil && s.tower.IsTowerConnected() {
		if s.drone != nil {
			if err := s.tower.UnregisterDrone(s.drone); err != nil {
				errs = append(errs, fmt.Errorf("unregister drone: %w", err))
			}
		}
		if err := s.tower.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("disconnect tower: %w", err))
		}
	}
	s.state.Store(int32(Disconnected))
	return errors.Join(errs...)
}

// forward runs a driver command unless the supervisor is closed.
func (s *Supervisor) forward(op string, fn func() error) error {
	if s.closed.Load() {
		return s.soft(op, ErrClosed)
	}
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Debug("Command forwarded", zap.String("op", op))
	return nil
}

// Takeoff climbs to altitude metres.
func (s *Supervisor) Takeoff(altitude float64) error {
	return s.forward("takeoff", func() error { return s.drone.Takeoff(altitude) })
}

// Land switches to the family's land mode.
func (s *Supervisor) Land() error {
	return s.SetMode(ModeLand)
}

// ReturnToLaunch switches to the family's return-to-launch mode.
func (s *Supervisor) ReturnToLaunch() error {
	return s.SetMode(ModeReturnToLaunch)
}

// ClimbTo changes altitude in place.
func (s *Supervisor) ClimbTo(altitude float64) error {
	return s.forward("climbTo", func() error { return s.drone.ClimbTo(altitude) })
}

// GoTo flies to a point, switching to guided flight if needed.
func (s *Supervisor) GoTo(latitude, longitude float64) error {
	point := coordinate.Coordinate2D{Latitude: latitude, Longitude: longitude}
	return s.forward("goTo", func() error { return s.drone.GoTo(point, true) })
}

// Pause holds the current location.
func (s *Supervisor) Pause() error {
	return s.forward("pause", s.drone.PauseAtCurrentLocation)
}

// TurnTo yaws to angle degrees at angularSpeed deg/s.
func (s *Supervisor) TurnTo(angle, angularSpeed float64, relative bool) error {
	return s.forward("turnTo", func() error { return s.drone.TurnTo(angle, angularSpeed, relative) })
}

// Arm arms or disarms the motors.
func (s *Supervisor) Arm(arm bool) error {
	return s.forward("arm", func() error { return s.drone.Arm(arm) })
}

// SetMode switches flight mode. name is family-independent ("Guided",
// "alt hold", "RTL"); the family prefix comes from Config.ModePrefixes.
func (s *Supervisor) SetMode(name string) error {
	return s.forward("setMode", func() error {
		mode, err := s.ResolveMode(name)
		if err != nil {
			return err
		}
		return s.drone.SetVehicleMode(mode)
	})
}

// ResolveMode qualifies name with the prefix of the vehicle's current family.
func (s *Supervisor) ResolveMode(name string) (string, error) {
	raw, ok := s.drone.Attribute(driver.AttrType)
	vt, isType := raw.(driver.VehicleType)
	if !ok || !isType {
		return "", fmt.Errorf("%w: vehicle type not reported yet", ErrUnknownVehicleType)
	}
	prefix, ok := s.cfg.ModePrefixes[vt.DroneType]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownVehicleType, vt.DroneType)
	}

	mode := strings.ToUpper(strings.Join(strings.Fields(name), "_"))
	if !strings.HasPrefix(mode, prefix) {
		mode = prefix + mode
	}
	return mode, nil
}

// SetHome moves the launch position.
func (s *Supervisor) SetHome(latitude, longitude, altitude float64) error {
	home := coordinate.Coordinate3D{Latitude: latitude, Longitude: longitude, Altitude: altitude}
	return s.forward("setHome", func() error { return s.drone.SetVehicleHome(home) })
}

// GoToWaypointIndex jumps to mission command index.
func (s *Supervisor) GoToWaypointIndex(index int) error {
	return s.forward("goToWaypointIndex", func() error { return s.drone.GotoWaypoint(index) })
}

// LoadMission reads the vehicle's stored mission. It arrives as a mission event.
func (s *Supervisor) LoadMission() error {
	return s.forward("loadMission", s.drone.LoadWaypoints)
}

// SaveMission stores m on the vehicle. Completion arrives as missionSaved.
func (s *Supervisor) SaveMission(m mission.Mission) error {
	return s.forward("saveMission", func() error { return s.drone.SetMission(m, true) })
}

// StartMission runs the stored mission.
func (s *Supervisor) StartMission(forceModeChange, forceArm bool) error {
	return s.forward("startMission", func() error { return s.drone.StartMission(forceModeChange, forceArm) })
}

// Name implements healthcheck.Checker.
func (s *Supervisor) Name() string {
	return "supervisor"
}

// Check implements healthcheck.Checker.
func (s *Supervisor) Check(ctx context.Context) *healthcheck.Result {
	state := s.State()
	status := healthcheck.StatusHealthy
	message := "Drone link up"

	switch {
	case s.closed.Load():
		status, message = healthcheck.StatusUnhealthy, "Supervisor closed"
	case !s.tower.IsTowerConnected():
		status, message = healthcheck.StatusUnhealthy, "Drone tower not connected"
	case state == Connecting:
		status, message = healthcheck.StatusDegraded, "Drone link connecting"
	case state == Disconnected:
		status, message = healthcheck.StatusDegraded, "Drone link down"
	}

	result := healthcheck.NewResult(s.Name(), status, message)
	result.Details = map[string]interface{}{
		"state":           state.String(),
		"translator":      s.translator.State().String(),
		"tower_connected": s.tower.IsTowerConnected(),
		"uptime_seconds":  time.Since(s.started).Seconds(),
	}
	return result
}

var _ healthcheck.Checker = (*Supervisor)(nil)
