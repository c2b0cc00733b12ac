// Package geo provides great-circle distance on a spherical Earth model.
package geo

import "math"

// EarthRadiusKm is the IUGG mean radius of the WGS-84 ellipsoid.
const EarthRadiusKm = 6371.0088

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Distance returns the haversine distance between a and b in kilometers.
// It is symmetric and zero for identical points. Coordinates are not validated.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := lat2 - lat1
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push h just past 1 for antipodal points.
	h = math.Min(1, h)

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
