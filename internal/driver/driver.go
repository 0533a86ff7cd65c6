// Package driver describes the vehicle control client consumed by the bridge.
//
// A Drone is the link to one vehicle; a Tower is the session broker a Drone must
// be registered with before its listeners receive events. Implementations deliver
// events for one Drone in emission order, on a goroutine of their own.
package driver

import (
	"errors"

	"github.com/flightlink/copter-actor/pkg/coordinate"
	"github.com/flightlink/copter-actor/pkg/mission"
)

// ErrNotConnected is returned by drivers for commands issued without a vehicle link.
var ErrNotConnected = errors.New("vehicle not connected")

// Event is a raw driver event identifier.
type Event string

// Raw events.
const (
	EventConnected          Event = "connected"
	EventDisconnected       Event = "disconnected"
	EventTypeUpdated        Event = "type-updated"
	EventModeUpdated        Event = "mode-updated"
	EventArmingUpdated      Event = "arming-updated"
	EventSpeedUpdated       Event = "speed-updated"
	EventBatteryUpdated     Event = "battery-updated"
	EventHomeUpdated        Event = "home-updated"
	EventAltitudeUpdated    Event = "altitude-updated"
	EventGPSPositionUpdated Event = "gps-position-updated"
	EventMissionReceived    Event = "mission-received"
	EventMissionSent        Event = "mission-sent"
	EventMissionItemReached Event = "mission-item-reached"
	EventAttitudeUpdated    Event = "attitude-updated"
	EventHeartbeat          Event = "heartbeat"
)

// AttributeType selects a value from Drone.Attribute.
type AttributeType string

// Attribute types and the value each one yields.
const (
	AttrState           AttributeType = "state"            // State
	AttrType            AttributeType = "type"             // VehicleType
	AttrSpeed           AttributeType = "speed"            // Speed
	AttrBattery         AttributeType = "battery"          // Battery
	AttrHome            AttributeType = "home"             // Home
	AttrAltitude        AttributeType = "altitude"         // Altitude
	AttrGPS             AttributeType = "gps"              // GPS
	AttrMission         AttributeType = "mission"          // mission.Mission
	AttrMissionProgress AttributeType = "mission-progress" // MissionProgress
)

// Vehicle families reported in VehicleType.DroneType.
const (
	DroneTypeUnknown = 0
	DroneTypePlane   = 1
	DroneTypeCopter  = 2
	DroneTypeRover   = 10
)

// State is the link and flight state of the vehicle.
type State struct {
	Connected bool
	Armed     bool
	Flying    bool
	Mode      Mode
}

// Mode is a flight mode. Name is the family-qualified identifier
// (e.g. "COPTER_GUIDED"); Label is the human form (e.g. "Guided").
type Mode struct {
	Name  string
	Label string
}

// VehicleType identifies the airframe and firmware.
type VehicleType struct {
	DroneType       int
	FirmwareLabel   string
	FirmwareVersion string
}

// Speed in m/s.
type Speed struct {
	Ground   float64
	Vertical float64
	Air      float64
}

// Battery charge in percent, voltage in V and current in A.
type Battery struct {
	Remain  float64
	Voltage float64
	Current float64
}

// Home is the launch position.
type Home struct {
	Coordinate coordinate.Coordinate3D
}

// Altitude in metres relative to home.
type Altitude struct {
	Altitude float64
}

// GPS carries the latest fix.
type GPS struct {
	Position coordinate.Coordinate2D
}

// MissionProgress reports the last reached mission command.
type MissionProgress struct {
	ReachedIndex int
}

// Listener receives a Drone's events. Either field may be nil.
type Listener struct {
	OnEvent       func(event Event)
	OnInterrupted func(reason string)
}

// ListenerID identifies a registered Listener.
type ListenerID uint64

// Drone is the control surface of one vehicle. Commands are forwarded to the
// vehicle without waiting for completion; outcomes arrive as events.
type Drone interface {
	Connect(params ConnectionParameter) error
	Disconnect() error
	IsConnected() bool

	RegisterListener(l Listener) ListenerID
	UnregisterListener(id ListenerID)

	// Attribute returns the current value for t, or false while it is unavailable.
	Attribute(t AttributeType) (interface{}, bool)

	ClimbTo(altitude float64) error
	GoTo(point coordinate.Coordinate2D, force bool) error
	Takeoff(altitude float64) error
	PauseAtCurrentLocation() error
	TurnTo(angle, angularSpeed float64, relative bool) error
	Arm(arm bool) error
	SetVehicleMode(mode string) error
	SetVehicleHome(home coordinate.Coordinate3D) error
	GotoWaypoint(index int) error
	LoadWaypoints() error
	SetMission(m mission.Mission, pushToDrone bool) error
	StartMission(forceModeChange, forceArm bool) error
}

// TowerListener receives session broker notifications. Either field may be nil.
type TowerListener struct {
	OnConnected    func()
	OnDisconnected func()
}

// Tower is the session broker a Drone registers with.
type Tower interface {
	Connect(l TowerListener) error
	Disconnect() error
	IsTowerConnected() bool
	RegisterDrone(d Drone) error
	UnregisterDrone(d Drone) error
}
