// Package geo provides great-circle distance math and point-set helpers for
// observation clusters.
package geo

import "math"

// earthRadiusKm is the mean Earth radius used for haversine distance.
const earthRadiusKm = 6371.0

// Pair is a latitude/longitude coordinate pair, the unit exchanged between
// map, search and cache layers.
type Pair struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HaversineDistance returns the great-circle distance in kilometers between
// two coordinate pairs.
func HaversineDistance(a, b Pair) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// Nearest returns the index of the point closest to target by great-circle
// distance. Linear scan, first seen wins on exact ties. Result sets are small
// so no spatial index is used. Returns -1 for an empty slice.
func Nearest(points []Pair, target Pair) int {
	if len(points) == 0 {
		return -1
	}

	best := 0
	bestDist := HaversineDistance(target, points[0])
	for i := 1; i < len(points); i++ {
		if d := HaversineDistance(target, points[i]); d < bestDist {
			best = i
			bestDist = d
		}
	}

	return best
}

// BoundingCenter returns the midpoint of the axis-aligned bounding box of the
// point set. This is a bounding-box center, not an averaged centroid: two far
// outliers pull it exactly halfway between the extremes. Callers must guard
// against an empty slice.
func BoundingCenter(points []Pair) Pair {
	minLat, maxLat := points[0].Lat, points[0].Lat
	minLng, maxLng := points[0].Lng, points[0].Lng

	for _, p := range points[1:] {
		minLat = math.Min(minLat, p.Lat)
		maxLat = math.Max(maxLat, p.Lat)
		minLng = math.Min(minLng, p.Lng)
		maxLng = math.Max(maxLng, p.Lng)
	}

	return Pair{
		Lat: (minLat + maxLat) / 2,
		Lng: (minLng + maxLng) / 2,
	}
}
