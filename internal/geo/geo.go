package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"
	"github.com/twpayne/go-polyline"

	"transitcat/internal/domain"
)

// EarthRadius is the mean Earth radius in meters
const EarthRadius = 6371000.0

// GeohashPrecision gives cells of roughly 150m, which separates neighbouring urban stops
const GeohashPrecision = 7

const epsilon = 1e-6

// ComputeDistance returns the great-circle distance in meters between two points
func ComputeDistance(from, to domain.Coordinates) float64 {
	if math.Abs(from.Lat-to.Lat) < epsilon && math.Abs(from.Lng-to.Lng) < epsilon {
		return 0
	}

	dLat := (to.Lat - from.Lat) * math.Pi / 180
	dLng := (to.Lng - from.Lng) * math.Pi / 180
	lat1 := from.Lat * math.Pi / 180
	lat2 := to.Lat * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadius * c
}

// RoundedDistance is ComputeDistance rounded to whole meters
func RoundedDistance(from, to domain.Coordinates) int {
	return int(math.Round(ComputeDistance(from, to)))
}

// Geohash encodes a point into a cell identifier at GeohashPrecision
func Geohash(c domain.Coordinates) string {
	return geohash.EncodeWithPrecision(c.Lat, c.Lng, GeohashPrecision)
}

// EncodePolyline encodes a path using the Google polyline algorithm
func EncodePolyline(path []domain.Coordinates) string {
	coords := make([][]float64, 0, len(path))
	for _, p := range path {
		coords = append(coords, []float64{p.Lat, p.Lng})
	}
	return string(polyline.EncodeCoords(coords))
}
