// README: Shared identifier and coordinate value objects used across modules.
package types

type ID string

type Point struct {
	Lat float64
	Lng float64
}

// Valid reports whether the point lies within WGS84 bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
