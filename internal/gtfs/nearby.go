package gtfs

import (
	"math"
	"sort"
)

const earthRadiusMeters = 6_371_000

// NearbyStop pairs a stop with its distance from a query point.
type NearbyStop struct {
	Stop
	DistanceMeters float64 `json:"distance_meters"`
}

// NearbyStops returns the stops within radiusMeters of a point, nearest
// first, capped at limit. Stops without coordinates never match.
func (s *Store) NearbyStops(lat, lon, radiusMeters float64, limit int) []NearbyStop {
	if limit <= 0 {
		limit = 10
	}
	var results []NearbyStop
	for _, stop := range s.Stops {
		if stop.Lat == 0 && stop.Lon == 0 {
			continue
		}
		d := haversine(lat, lon, stop.Lat, stop.Lon)
		if d > radiusMeters {
			continue
		}
		results = append(results, NearbyStop{Stop: stop, DistanceMeters: d})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].DistanceMeters < results[j].DistanceMeters
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// haversine returns the great-circle distance in meters between two
// lat/lon points.
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
