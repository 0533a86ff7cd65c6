package mission

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightlink/copter-actor/pkg/coordinate"
)

// fullMission populates every field of every command type with non-default values.
func fullMission() Mission {
	return Mission{
		&Takeoff{Altitude: 25, Pitch: 3},
		&Waypoint{
			Coordinate:       coordinate.Coordinate3D{Latitude: 35.681, Longitude: 139.767, Altitude: 50},
			AcceptanceRadius: 2,
			Delay:            1.5,
			OrbitalRadius:    4,
			OrbitCCW:         true,
		},
		&SplineWaypoint{
			Coordinate: coordinate.Coordinate3D{Latitude: 35.682, Longitude: 139.768, Altitude: 45},
			Delay:      0.5,
		},
		&ChangeSpeed{Speed: 8},
		&Circle{
			Coordinate: coordinate.Coordinate3D{Latitude: 35.683, Longitude: 139.769, Altitude: 30},
			Radius:     25,
			Turns:      2,
		},
		&YawCondition{Angle: 90, AngularSpeed: 15, Relative: true},
		&DoJump{RepeatCount: 3, TargetIndex: 1},
		&ReturnToLaunch{Altitude: 20},
		&Land{Coordinate: coordinate.Coordinate3D{Latitude: 35.684, Longitude: 139.77, Altitude: 0}},
	}
}

func TestRoundTrip(t *testing.T) {
	m := fullMission()

	got, err := Decode(Encode(m))
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestRoundTripThroughJSON(t *testing.T) {
	m := fullMission()

	data, err := json.Marshal(Encode(m))
	require.NoError(t, err)

	var raw interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestEveryTypeHasDecoder(t *testing.T) {
	for _, typ := range Types() {
		_, ok := decoders[typ]
		assert.True(t, ok, "no decoder for %s", typ)
	}
	assert.Len(t, decoders, len(Types()))
}

func TestEncodeEmitsAllFields(t *testing.T) {
	tests := []struct {
		cmd  Command
		keys []string
	}{
		{&Waypoint{}, []string{KeyType, KeyCoordinate, KeyAcceptanceRadius, KeyDelay, KeyOrbitalRadius, KeyOrbitCCW}},
		{&SplineWaypoint{}, []string{KeyType, KeyCoordinate, KeyDelay}},
		{NewTakeoff(), []string{KeyType, KeyAltitude, KeyPitch}},
		{NewChangeSpeed(), []string{KeyType, KeySpeed}},
		{&ReturnToLaunch{}, []string{KeyType, KeyAltitude}},
		{&Land{}, []string{KeyType, KeyCoordinate}},
		{NewCircle(), []string{KeyType, KeyCoordinate, KeyRadius, KeyTurns}},
		{&YawCondition{}, []string{KeyType, KeyAngle, KeyAngularSpeed, KeyRelative}},
		{NewDoJump(), []string{KeyType, KeyRepeatCount, KeyIndex}},
	}

	for _, tt := range tests {
		t.Run(string(tt.cmd.Type()), func(t *testing.T) {
			rec := EncodeCommand(tt.cmd)
			assert.Len(t, rec, len(tt.keys))
			for _, k := range tt.keys {
				assert.Contains(t, rec, k)
			}
			assert.Equal(t, string(tt.cmd.Type()), rec[KeyType])
		})
	}
}

func TestEncodeSkipsNilCommands(t *testing.T) {
	m := Mission{nil, (*Waypoint)(nil), NewTakeoff(), (*DoJump)(nil)}

	var records []Record
	require.NotPanics(t, func() { records = Encode(m) })
	require.Len(t, records, 1)
	assert.Equal(t, string(TypeTakeoff), records[0][KeyType])

	assert.Nil(t, EncodeCommand(nil))
	assert.Nil(t, EncodeCommand((*Circle)(nil)))
}

func TestDecodeAbsentFieldsKeepDefaults(t *testing.T) {
	records := []interface{}{
		map[string]interface{}{"type": "takeoff"},
		map[string]interface{}{"type": "changeSpeed"},
		map[string]interface{}{"type": "circle"},
		map[string]interface{}{"type": "doJump"},
		map[string]interface{}{"type": "yawCondition", "angle": 45},
		map[string]interface{}{"type": "land"},
		map[string]interface{}{"type": "waypoint", "coordinate": []interface{}{0, 0, 50}},
	}

	m, err := Decode(records)
	require.NoError(t, err)
	require.Len(t, m, 7)

	assert.Equal(t, &Takeoff{Altitude: DefaultTakeoffAltitude}, m[0])
	assert.Equal(t, &ChangeSpeed{Speed: DefaultSpeed}, m[1])
	assert.Equal(t, &Circle{Radius: DefaultCircleRadius, Turns: DefaultCircleTurns}, m[2])
	assert.Equal(t, &DoJump{RepeatCount: DefaultRepeatCount}, m[3])
	assert.Equal(t, &YawCondition{Angle: 45}, m[4])
	assert.Equal(t, &Land{}, m[5])
	assert.Equal(t, &Waypoint{Coordinate: coordinate.Coordinate3D{Altitude: 50}}, m[6])
}

func TestPartialDecodeReencodesDefaults(t *testing.T) {
	m, err := Decode([]interface{}{map[string]interface{}{"type": "takeoff", "pitch": 2}})
	require.NoError(t, err)

	out := Encode(m)
	require.Len(t, out, 1)
	assert.Equal(t, DefaultTakeoffAltitude, out[0][KeyAltitude])
	assert.Equal(t, 2.0, out[0][KeyPitch])
}

func TestDecodePreservesOrder(t *testing.T) {
	records := []Record{
		{"type": "land"},
		{"type": "takeoff"},
		{"type": "returnToLaunch"},
	}

	m, err := Decode(records)
	require.NoError(t, err)
	require.Len(t, m, 3)
	assert.Equal(t, TypeLand, m[0].Type())
	assert.Equal(t, TypeTakeoff, m[1].Type())
	assert.Equal(t, TypeReturnToLaunch, m[2].Type())
}

func TestDecodeUnsupportedType(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{name: "unknown tag", rec: Record{"type": "doFlip"}},
		{name: "missing tag", rec: Record{"altitude": 10}},
		{name: "non string tag", rec: Record{"type": 3}},
		{name: "case mismatch", rec: Record{"type": "Waypoint"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]Record{{"type": "takeoff"}, tt.rec})
			assert.ErrorIs(t, err, ErrUnsupportedCommandType)
			assert.Contains(t, err.Error(), "record 1")
		})
	}
}

func TestDecodeMalformedField(t *testing.T) {
	tests := []struct {
		name  string
		rec   Record
		field string
	}{
		{name: "string altitude", rec: Record{"type": "takeoff", "altitude": "high"}, field: KeyAltitude},
		{name: "fractional turns", rec: Record{"type": "circle", "turns": 1.5}, field: KeyTurns},
		{name: "numeric relative", rec: Record{"type": "yawCondition", "relative": 1}, field: KeyRelative},
		{name: "short coordinate", rec: Record{"type": "waypoint", "coordinate": []interface{}{1, 2}}, field: KeyCoordinate},
		{name: "missing waypoint coordinate", rec: Record{"type": "waypoint"}, field: KeyCoordinate},
		{name: "missing spline coordinate", rec: Record{"type": "splineWaypoint", "delay": 1}, field: KeyCoordinate},
		{name: "null speed", rec: Record{"type": "changeSpeed", "speed": nil}, field: KeySpeed},
		{name: "string boolean", rec: Record{"type": "waypoint", "coordinate": []interface{}{1, 2, 3}, "orbitCCW": "true"}, field: KeyOrbitCCW},
		{name: "numeric string", rec: Record{"type": "changeSpeed", "speed": "5"}, field: KeySpeed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]Record{{"type": "land"}, {"type": "land"}, tt.rec})
			assert.Nil(t, m)
			require.ErrorIs(t, err, ErrMalformedField)
			assert.Contains(t, err.Error(), "record 2")
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestDecodeNonRecord(t *testing.T) {
	_, err := Decode([]interface{}{"takeoff"})
	assert.ErrorIs(t, err, ErrMalformedField)

	_, err = Decode("not a list")
	assert.ErrorIs(t, err, ErrMalformedField)
}

func TestDecodeEmpty(t *testing.T) {
	m, err := Decode([]interface{}{})
	require.NoError(t, err)
	assert.Empty(t, m)
	assert.Empty(t, Encode(m))
}
