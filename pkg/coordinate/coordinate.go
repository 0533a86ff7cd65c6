// Package coordinate converts vehicle positions to and from their hub wire form,
// an ordered list of degrees (and metres for altitude).
package coordinate

import (
	"errors"
	"fmt"

	"github.com/flightlink/copter-actor/pkg/wire"
)

// ErrMalformedCoordinate is returned when a wire value is not a valid coordinate.
var ErrMalformedCoordinate = errors.New("malformed coordinate")

// Coordinate2D is a latitude/longitude pair in degrees.
type Coordinate2D struct {
	Latitude  float64
	Longitude float64
}

// Coordinate3D adds altitude in metres relative to home.
type Coordinate3D struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// Flat drops the altitude.
func (c Coordinate3D) Flat() Coordinate2D {
	return Coordinate2D{Latitude: c.Latitude, Longitude: c.Longitude}
}

// Encode2D returns [lat, lon].
func Encode2D(lat, lon float64) []float64 {
	return []float64{lat, lon}
}

// Encode3D returns [lat, lon, alt].
func Encode3D(lat, lon, alt float64) []float64 {
	return []float64{lat, lon, alt}
}

// Encode returns the wire form of c.
func (c Coordinate2D) Encode() []float64 {
	return Encode2D(c.Latitude, c.Longitude)
}

// Encode returns the wire form of c.
func (c Coordinate3D) Encode() []float64 {
	return Encode3D(c.Latitude, c.Longitude, c.Altitude)
}

// Decode2D parses an ordered [lat, lon] sequence.
func Decode2D(v interface{}) (Coordinate2D, error) {
	parts, err := components(v, 2)
	if err != nil {
		return Coordinate2D{}, err
	}
	return Coordinate2D{Latitude: parts[0], Longitude: parts[1]}, nil
}

// Decode3D parses an ordered [lat, lon, alt] sequence.
func Decode3D(v interface{}) (Coordinate3D, error) {
	parts, err := components(v, 3)
	if err != nil {
		return Coordinate3D{}, err
	}
	return Coordinate3D{Latitude: parts[0], Longitude: parts[1], Altitude: parts[2]}, nil
}

func components(v interface{}, n int) ([]float64, error) {
	items, err := wire.Sequence(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCoordinate, err)
	}
	if len(items) != n {
		return nil, fmt.Errorf("%w: want %d components, got %d", ErrMalformedCoordinate, n, len(items))
	}

	out := make([]float64, n)
	for i, item := range items {
		f, err := wire.Float64(item)
		if err != nil {
			return nil, fmt.Errorf("%w: component %d: %v", ErrMalformedCoordinate, i, err)
		}
		out[i] = f
	}
	return out, nil
}
