// Package geoprivacy provides coordinate obfuscation for privacy-preserving
// location disclosure.
package geoprivacy

import "math"

// gridPrecision is the number of decimal places coordinates are snapped to.
// Two decimals is a grid cell of roughly 1.1 km at the equator, shrinking
// east-west with latitude.
const gridPrecision = 2

// LatLng is a geographic coordinate pair.
type LatLng struct {
	Lat float64
	Lng float64
}

// Approximation is a coarsened location: a grid-snapped center and an
// advisory radius. The radius is display metadata only; the snapping grid is
// fixed and not derived from it.
type Approximation struct {
	Center   LatLng
	RadiusKm float64
}

// Approximate snaps a coordinate pair to the obfuscation grid and pairs it
// with the given advisory radius. It returns nil when either coordinate is
// not a finite number: an unknown location must never be disclosed as a
// zero-valued one.
//
// Approximate is pure; identical inputs always yield identical outputs.
func Approximate(lat, lng, radiusKm float64) *Approximation {
	if !isFinite(lat) || !isFinite(lng) {
		return nil
	}

	return &Approximation{
		Center: LatLng{
			Lat: snap(lat),
			Lng: snap(lng),
		},
		RadiusKm: radiusKm,
	}
}

// snap rounds half away from zero at gridPrecision decimal places.
func snap(v float64) float64 {
	scale := math.Pow(10, gridPrecision)
	return math.Round(v*scale) / scale
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
