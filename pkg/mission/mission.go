// Package mission models vehicle flight plans as an ordered list of typed commands
// and converts them to and from the hub's record-based wire form.
//
// Every command type below implements Command. The set is closed: Command carries
// an unexported method, so only this package can add variants, and each variant
// must provide its own encoder to satisfy the interface.
package mission

import (
	"github.com/flightlink/copter-actor/pkg/coordinate"
)

// Type is the stable wire tag of a command.
type Type string

// Wire tags. These are part of the hub contract and must not change without a
// schema version bump.
const (
	TypeWaypoint       Type = "waypoint"
	TypeSplineWaypoint Type = "splineWaypoint"
	TypeTakeoff        Type = "takeoff"
	TypeChangeSpeed    Type = "changeSpeed"
	TypeReturnToLaunch Type = "returnToLaunch"
	TypeLand           Type = "land"
	TypeCircle         Type = "circle"
	TypeYawCondition   Type = "yawCondition"
	TypeDoJump         Type = "doJump"
)

// SchemaVersion identifies the set of tags and keys above.
const SchemaVersion = 1

// Built-in defaults applied before optional wire fields are read.
const (
	DefaultTakeoffAltitude = 10.0
	DefaultSpeed           = 5.0
	DefaultCircleRadius    = 5.0
	DefaultCircleTurns     = 1
	DefaultRepeatCount     = 1
)

// Command is one step of a Mission.
type Command interface {
	Type() Type
	encode() Record
}

// Mission is an ordered flight plan. Order defines the flight sequence.
type Mission []Command

// Record is the wire form of a single command.
type Record = map[string]interface{}

// Waypoint flies through a point.
type Waypoint struct {
	Coordinate       coordinate.Coordinate3D
	AcceptanceRadius float64
	Delay            float64
	OrbitalRadius    float64
	OrbitCCW         bool
}

// SplineWaypoint flies through a point as a spline control point.
type SplineWaypoint struct {
	Coordinate coordinate.Coordinate3D
	Delay      float64
}

// Takeoff climbs to Altitude.
type Takeoff struct {
	Altitude float64
	Pitch    float64
}

// ChangeSpeed sets the target ground speed in m/s.
type ChangeSpeed struct {
	Speed float64
}

// ReturnToLaunch flies back above home at Altitude.
type ReturnToLaunch struct {
	Altitude float64
}

// Land lands at Coordinate, or in place when it is zero.
type Land struct {
	Coordinate coordinate.Coordinate3D
}

// Circle loiters around Coordinate.
type Circle struct {
	Coordinate coordinate.Coordinate3D
	Radius     float64
	Turns      int
}

// YawCondition turns the vehicle.
type YawCondition struct {
	Angle        float64
	AngularSpeed float64
	Relative     bool
}

// DoJump jumps to the command at TargetIndex, RepeatCount times.
type DoJump struct {
	RepeatCount int
	TargetIndex int
}

// NewTakeoff returns a Takeoff with built-in defaults.
func NewTakeoff() *Takeoff { return &Takeoff{Altitude: DefaultTakeoffAltitude} }

// NewChangeSpeed returns a ChangeSpeed with built-in defaults.
func NewChangeSpeed() *ChangeSpeed { return &ChangeSpeed{Speed: DefaultSpeed} }

// NewCircle returns a Circle with built-in defaults.
func NewCircle() *Circle { return &Circle{Radius: DefaultCircleRadius, Turns: DefaultCircleTurns} }

// NewDoJump returns a DoJump with built-in defaults.
func NewDoJump() *DoJump { return &DoJump{RepeatCount: DefaultRepeatCount} }

func (*Waypoint) Type() Type       { return TypeWaypoint }
func (*SplineWaypoint) Type() Type { return TypeSplineWaypoint }
func (*Takeoff) Type() Type        { return TypeTakeoff }
func (*ChangeSpeed) Type() Type    { return TypeChangeSpeed }
func (*ReturnToLaunch) Type() Type { return TypeReturnToLaunch }
func (*Land) Type() Type           { return TypeLand }
func (*Circle) Type() Type         { return TypeCircle }
func (*YawCondition) Type() Type   { return TypeYawCondition }
func (*DoJump) Type() Type         { return TypeDoJump }

// Types lists every known tag in declaration order.
func Types() []Type {
	return []Type{
		TypeWaypoint,
		TypeSplineWaypoint,
		TypeTakeoff,
		TypeChangeSpeed,
		TypeReturnToLaunch,
		TypeLand,
		TypeCircle,
		TypeYawCondition,
		TypeDoJump,
	}
}
