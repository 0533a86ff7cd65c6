package coordinate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeOrder(t *testing.T) {
	assert.Equal(t, []float64{35.1, 139.2}, Encode2D(35.1, 139.2))
	assert.Equal(t, []float64{35.1, 139.2, 40}, Encode3D(35.1, 139.2, 40))
	assert.Equal(t, []float64{1, 2, 3}, Coordinate3D{Latitude: 1, Longitude: 2, Altitude: 3}.Encode())
	assert.Equal(t, []float64{1, 2}, Coordinate3D{Latitude: 1, Longitude: 2, Altitude: 3}.Flat().Encode())
}

func TestDecode3DRoundTrip(t *testing.T) {
	got, err := Decode3D(Encode3D(10.0, 20.0, 30.0))
	require.NoError(t, err)
	assert.Equal(t, Coordinate3D{Latitude: 10, Longitude: 20, Altitude: 30}, got)
}

func TestDecodeFromJSON(t *testing.T) {
	var raw interface{}
	require.NoError(t, json.Unmarshal([]byte(`[35, 139.5, 12]`), &raw))

	got, err := Decode3D(raw)
	require.NoError(t, err)
	assert.Equal(t, Coordinate3D{Latitude: 35, Longitude: 139.5, Altitude: 12}, got)

	got2, err := Decode2D([]interface{}{1, 2.5})
	require.NoError(t, err)
	assert.Equal(t, Coordinate2D{Latitude: 1, Longitude: 2.5}, got2)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		dims  int
	}{
		{name: "nil", input: nil, dims: 3},
		{name: "not a sequence", input: "35,139", dims: 2},
		{name: "mapping", input: map[string]interface{}{"lat": 1}, dims: 2},
		{name: "too short", input: []interface{}{1.0, 2.0}, dims: 3},
		{name: "too long", input: []interface{}{1.0, 2.0, 3.0}, dims: 2},
		{name: "non numeric component", input: []interface{}{1.0, "east", 3.0}, dims: 3},
		{name: "boolean component", input: []interface{}{true, 2.0}, dims: 2},
		{name: "numeric strings", input: []interface{}{"1", "2", "3"}, dims: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.dims == 2 {
				_, err = Decode2D(tt.input)
			} else {
				_, err = Decode3D(tt.input)
			}
			assert.ErrorIs(t, err, ErrMalformedCoordinate)
		})
	}
}
