package actor

import (
	"errors"
	"fmt"
	"sort"

	"github.com/flightlink/copter-actor/internal/supervisor"
	"github.com/flightlink/copter-actor/pkg/mission"
	"github.com/flightlink/copter-actor/pkg/wire"
)

var (
	// ErrUnknownMethod is returned for a call to a method the module does not expose.
	ErrUnknownMethod = errors.New("unknown method")
	// ErrInvalidArgument is returned when a positional argument is missing or
	// cannot be coerced to the parameter type.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Vehicle is the control surface the module relays calls to.
type Vehicle interface {
	Connect(transport, address string) error
	Disconnect() error
	Takeoff(altitude float64) error
	Land() error
	ReturnToLaunch() error
	ClimbTo(altitude float64) error
	GoTo(latitude, longitude float64) error
	Pause() error
	TurnTo(angle, angularSpeed float64, relative bool) error
	Arm(arm bool) error
	SetMode(name string) error
	SetHome(latitude, longitude, altitude float64) error
	GoToWaypointIndex(index int) error
	LoadMission() error
	SaveMission(m mission.Mission) error
	StartMission(forceModeChange, forceArm bool) error
}

var _ Vehicle = (*supervisor.Supervisor)(nil)

// Method names exposed on the hub.
const (
	MethodConnect           = "connect"
	MethodDisconnect        = "disconnect"
	MethodTakeoff           = "takeoff"
	MethodLand              = "land"
	MethodReturnToLaunch    = "returnToLaunch"
	MethodClimbTo           = "climbTo"
	MethodGoTo              = "goTo"
	MethodPause             = "pause"
	MethodTurnTo            = "turnTo"
	MethodArm               = "arm"
	MethodSetMode           = "setMode"
	MethodSetHome           = "setHome"
	MethodGoToWaypointIndex = "goToWaypointIndex"
	MethodLoadMission       = "loadMission"
	MethodSaveMission       = "saveMission"
	MethodStartMission      = "startMission"
	MethodEnableEvents      = "enableEvents"
	MethodDisableEvents     = "disableEvents"
)

type handler func(a *Actor, args *arguments) error

var methods = map[string]handler{
	MethodConnect: func(a *Actor, args *arguments) error {
		transport := args.string(0)
		address := args.optionalString(1)
		if args.err != nil {
			return args.err
		}
		return a.vehicle.Connect(transport, address)
	},
	MethodDisconnect: func(a *Actor, _ *arguments) error {
		return a.vehicle.Disconnect()
	},
	MethodTakeoff: func(a *Actor, args *arguments) error {
		altitude := args.float(0)
		if args.err != nil {
			return args.err
		}
		return a.vehicle.Takeoff(altitude)
	},
	MethodLand: func(a *Actor, _ *arguments) error {
		return a.vehicle.Land()
	},
	MethodReturnToLaunch: func(a *Actor, _ *arguments) error {
		return a.vehicle.ReturnToLaunch()
	},
	MethodClimbTo: func(a *Actor, args *arguments) error {
		altitude := args.float(0)
		if args.err != nil {
			return args.err
		}
		return a.vehicle.ClimbTo(altitude)
	},
	MethodGoTo: func(a *Actor, args *arguments) error {
		lat, lon := args.float(0), args.float(1)
		if args.err != nil {
			return args.err
		}
		return a.vehicle.GoTo(lat, lon)
	},
	MethodPause: func(a *Actor, _ *arguments) error {
		return a.vehicle.Pause()
	},
	MethodTurnTo: func(a *Actor, args *arguments) error {
		angle, speed, relative := args.float(0), args.float(1), args.bool(2)
		if args.err != nil {
			return args.err
		}
		return a.vehicle.TurnTo(angle, speed, relative)
	},
	MethodArm: func(a *Actor, args *arguments) error {
		arm := args.bool(0)
		if args.err != nil {
			return args.err
		}
		return a.vehicle.Arm(arm)
	},
	MethodSetMode: func(a *Actor, args *arguments) error {
		name := args.string(0)
		if args.err != nil {
			return args.err
		}
		return a.vehicle.SetMode(name)
	},
	MethodSetHome: func(a *Actor, args *arguments) error {
		lat, lon, alt := args.float(0), args.float(1), args.float(2)
		if args.err != nil {
			return args.err
		}
		return a.vehicle.SetHome(lat, lon, alt)
	},
	MethodGoToWaypointIndex: func(a *Actor, args *arguments) error {
		index := args.int(0)
		if args.err != nil {
			return args.err
		}
		return a.vehicle.GoToWaypointIndex(index)
	},
	MethodLoadMission: func(a *Actor, _ *arguments) error {
		return a.vehicle.LoadMission()
	},
	MethodSaveMission: func(a *Actor, args *arguments) error {
		m := args.mission(0)
		if args.err != nil {
			return args.err
		}
		return a.vehicle.SaveMission(m)
	},
	MethodStartMission: func(a *Actor, args *arguments) error {
		forceModeChange, forceArm := args.bool(0), args.bool(1)
		if args.err != nil {
			return args.err
		}
		return a.vehicle.StartMission(forceModeChange, forceArm)
	},
	MethodEnableEvents: func(a *Actor, args *arguments) error {
		names := args.names(0)
		if args.err != nil {
			return args.err
		}
		a.filter.enable(names)
		return nil
	},
	MethodDisableEvents: func(a *Actor, args *arguments) error {
		names := args.names(0)
		if args.err != nil {
			return args.err
		}
		a.filter.disable(names)
		return nil
	},
}

// MethodNames returns the exposed method names in sorted order.
func MethodNames() []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// arguments coerces positional call parameters. The first failure is kept in
// err and later reads become no-ops.
type arguments struct {
	values []interface{}
	err    error
}

func (a *arguments) get(i int, optional bool) (interface{}, bool) {
	if a.err != nil {
		return nil, false
	}
	if i >= len(a.values) {
		if !optional {
			a.err = fmt.Errorf("%w: argument %d is missing", ErrInvalidArgument, i)
		}
		return nil, false
	}
	return a.values[i], true
}

func (a *arguments) fail(i int, err error) {
	a.err = fmt.Errorf("%w: argument %d: %v", ErrInvalidArgument, i, err)
}

func (a *arguments) float(i int) float64 {
	v, ok := a.get(i, false)
	if !ok {
		return 0
	}
	f, err := wire.ParseFloat64(v)
	if err != nil {
		a.fail(i, err)
	}
	return f
}

func (a *arguments) int(i int) int {
	v, ok := a.get(i, false)
	if !ok {
		return 0
	}
	n, err := wire.ParseInt(v)
	if err != nil {
		a.fail(i, err)
	}
	return n
}

func (a *arguments) bool(i int) bool {
	v, ok := a.get(i, false)
	if !ok {
		return false
	}
	b, err := wire.ParseBool(v)
	if err != nil {
		a.fail(i, err)
	}
	return b
}

func (a *arguments) string(i int) string {
	v, ok := a.get(i, false)
	if !ok {
		return ""
	}
	s, err := wire.String(v)
	if err != nil {
		a.fail(i, err)
	}
	return s
}

// optionalString treats a missing or null argument as "".
func (a *arguments) optionalString(i int) string {
	v, ok := a.get(i, true)
	if !ok || v == nil {
		return ""
	}
	s, err := wire.String(v)
	if err != nil {
		a.fail(i, err)
	}
	return s
}

// names reads an optional list of event names. Missing or null means all events.
func (a *arguments) names(i int) []string {
	v, ok := a.get(i, true)
	if !ok || v == nil {
		return nil
	}
	names, err := wire.Strings(v)
	if err != nil {
		a.fail(i, err)
		return nil
	}
	if names == nil {
		names = []string{}
	}
	return names
}

func (a *arguments) mission(i int) mission.Mission {
	v, ok := a.get(i, false)
	if !ok {
		return nil
	}
	m, err := mission.Decode(v)
	if err != nil {
		a.err = fmt.Errorf("argument %d: %w", i, err)
	}
	return m
}
