package mission

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/flightlink/copter-actor/pkg/coordinate"
	"github.com/flightlink/copter-actor/pkg/wire"
)

var (
	// ErrUnsupportedCommandType is returned for a record whose type tag is unknown or missing.
	ErrUnsupportedCommandType = errors.New("unsupported mission command type")
	// ErrMalformedField is returned for a field whose value has the wrong shape.
	ErrMalformedField = errors.New("malformed mission field")
)

// Wire keys.
const (
	KeyType             = "type"
	KeyCoordinate       = "coordinate"
	KeyAcceptanceRadius = "acceptanceRadius"
	KeyDelay            = "delay"
	KeyOrbitalRadius    = "orbitalRadius"
	KeyOrbitCCW         = "orbitCCW"
	KeyAltitude         = "altitude"
	KeyPitch            = "pitch"
	KeySpeed            = "speed"
	KeyRadius           = "radius"
	KeyTurns            = "turns"
	KeyAngle            = "angle"
	KeyAngularSpeed     = "angularSpeed"
	KeyRelative         = "relative"
	KeyRepeatCount      = "repeatCount"
	KeyIndex            = "index"
)

// Encode converts m to its wire form. Every field of every command is emitted,
// including values still at their defaults. Nil commands are skipped.
func Encode(m Mission) []Record {
	out := make([]Record, 0, len(m))
	for _, cmd := range m {
		if rec := EncodeCommand(cmd); rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// EncodeCommand converts a single command to its wire form. It returns nil for
// a nil command, including a nil pointer of a concrete command type.
func EncodeCommand(cmd Command) Record {
	if isNil(cmd) {
		return nil
	}
	rec := cmd.encode()
	rec[KeyType] = string(cmd.Type())
	return rec
}

func (c *Waypoint) encode() Record {
	return Record{
		KeyCoordinate:       c.Coordinate.Encode(),
		KeyAcceptanceRadius: c.AcceptanceRadius,
		KeyDelay:            c.Delay,
		KeyOrbitalRadius:    c.OrbitalRadius,
		KeyOrbitCCW:         c.OrbitCCW,
	}
}

func (c *SplineWaypoint) encode() Record {
	return Record{
		KeyCoordinate: c.Coordinate.Encode(),
		KeyDelay:      c.Delay,
	}
}

func (c *Takeoff) encode() Record {
	return Record{
		KeyAltitude: c.Altitude,
		KeyPitch:    c.Pitch,
	}
}

func (c *ChangeSpeed) encode() Record {
	return Record{KeySpeed: c.Speed}
}

func (c *ReturnToLaunch) encode() Record {
	return Record{KeyAltitude: c.Altitude}
}

func (c *Land) encode() Record {
	return Record{KeyCoordinate: c.Coordinate.Encode()}
}

func (c *Circle) encode() Record {
	return Record{
		KeyCoordinate: c.Coordinate.Encode(),
		KeyRadius:     c.Radius,
		KeyTurns:      c.Turns,
	}
}

func (c *YawCondition) encode() Record {
	return Record{
		KeyAngle:        c.Angle,
		KeyAngularSpeed: c.AngularSpeed,
		KeyRelative:     c.Relative,
	}
}

func (c *DoJump) encode() Record {
	return Record{
		KeyRepeatCount: c.RepeatCount,
		KeyIndex:       c.TargetIndex,
	}
}

// Decode converts wire records into a Mission, preserving their order.
// records may be a []Record or any sequence of mappings (as produced by JSON decoding).
// The first bad record aborts the whole decode.
//
// Optional fields absent from a record keep the command's built-in default, so a
// mission decoded from a partial record and encoded again carries those defaults.
func Decode(records interface{}) (Mission, error) {
	items, err := wire.Sequence(records)
	if err != nil {
		return nil, fmt.Errorf("%w: mission: %v", ErrMalformedField, err)
	}

	m := make(Mission, 0, len(items))
	for i, item := range items {
		rec, err := wire.Record(item)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformedField, i, err)
		}
		cmd, err := decodeRecord(i, rec)
		if err != nil {
			return nil, err
		}
		m = append(m, cmd)
	}
	return m, nil
}

// DecodeCommand converts a single record.
func DecodeCommand(rec Record) (Command, error) {
	return decodeRecord(0, rec)
}

type decoder func(r *fieldReader) Command

var decoders = map[Type]decoder{
	TypeWaypoint: func(r *fieldReader) Command {
		c := &Waypoint{}
		r.coordinate3D(KeyCoordinate, &c.Coordinate, true)
		r.float(KeyAcceptanceRadius, &c.AcceptanceRadius)
		r.float(KeyDelay, &c.Delay)
		r.float(KeyOrbitalRadius, &c.OrbitalRadius)
		r.boolean(KeyOrbitCCW, &c.OrbitCCW)
		return c
	},
	TypeSplineWaypoint: func(r *fieldReader) Command {
		c := &SplineWaypoint{}
		r.coordinate3D(KeyCoordinate, &c.Coordinate, true)
		r.float(KeyDelay, &c.Delay)
		return c
	},
	TypeTakeoff: func(r *fieldReader) Command {
		c := NewTakeoff()
		r.float(KeyAltitude, &c.Altitude)
		r.float(KeyPitch, &c.Pitch)
		return c
	},
	TypeChangeSpeed: func(r *fieldReader) Command {
		c := NewChangeSpeed()
		r.float(KeySpeed, &c.Speed)
		return c
	},
	TypeReturnToLaunch: func(r *fieldReader) Command {
		c := &ReturnToLaunch{}
		r.float(KeyAltitude, &c.Altitude)
		return c
	},
	TypeLand: func(r *fieldReader) Command {
		c := &Land{}
		r.coordinate3D(KeyCoordinate, &c.Coordinate, false)
		return c
	},
	TypeCircle: func(r *fieldReader) Command {
		c := NewCircle()
		r.coordinate3D(KeyCoordinate, &c.Coordinate, false)
		r.float(KeyRadius, &c.Radius)
		r.integer(KeyTurns, &c.Turns)
		return c
	},
	TypeYawCondition: func(r *fieldReader) Command {
		c := &YawCondition{}
		r.float(KeyAngle, &c.Angle)
		r.float(KeyAngularSpeed, &c.AngularSpeed)
		r.boolean(KeyRelative, &c.Relative)
		return c
	},
	TypeDoJump: func(r *fieldReader) Command {
		c := NewDoJump()
		r.integer(KeyRepeatCount, &c.RepeatCount)
		r.integer(KeyIndex, &c.TargetIndex)
		return c
	},
}

func decodeRecord(index int, rec Record) (Command, error) {
	rawType, ok := rec[KeyType]
	if !ok {
		return nil, fmt.Errorf("%w: record %d has no %q", ErrUnsupportedCommandType, index, KeyType)
	}
	tag, ok := rawType.(string)
	if !ok {
		return nil, fmt.Errorf("%w: record %d: %v", ErrUnsupportedCommandType, index, rawType)
	}
	decode, ok := decoders[Type(tag)]
	if !ok {
		return nil, fmt.Errorf("%w: record %d: %q", ErrUnsupportedCommandType, index, tag)
	}

	r := &fieldReader{index: index, rec: rec}
	cmd := decode(r)
	if r.err != nil {
		return nil, r.err
	}
	return cmd, nil
}

// fieldReader assigns present fields of a record and keeps the first error.
type fieldReader struct {
	index int
	rec   Record
	err   error
}

func (r *fieldReader) lookup(key string) (interface{}, bool) {
	if r.err != nil {
		return nil, false
	}
	v, ok := r.rec[key]
	return v, ok
}

func (r *fieldReader) fail(key string, v interface{}, err error) {
	r.err = fmt.Errorf("%w: record %d field %q (%v): %v", ErrMalformedField, r.index, key, v, err)
}

func (r *fieldReader) float(key string, dst *float64) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	f, err := wire.Float64(v)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = f
}

func (r *fieldReader) integer(key string, dst *int) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	n, err := wire.Int(v)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = n
}

func (r *fieldReader) boolean(key string, dst *bool) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	b, err := wire.Bool(v)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = b
}

func (r *fieldReader) coordinate3D(key string, dst *coordinate.Coordinate3D, required bool) {
	if r.err != nil {
		return
	}
	v, ok := r.lookup(key)
	if !ok {
		if required {
			r.fail(key, nil, errors.New("required field missing"))
		}
		return
	}
	c, err := coordinate.Decode3D(v)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = c
}

func isNil(cmd Command) bool {
	if cmd == nil {
		return true
	}
	v := reflect.ValueOf(cmd)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
