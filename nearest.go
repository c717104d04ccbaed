package addrmatcher

import (
	"sort"

	"github.com/golang/geo/s2"
)

// earthRadiusKm converts great-circle angles to kilometres.
const earthRadiusKm = 6371.0

// kmPerDegree is the length of one degree of latitude used to size search boxes.
const kmPerDegree = 110.574

type neighbour struct {
	row        int
	distanceKm float64
}

// nearestRows returns the n rows closest to (lat, lon) by great-circle distance,
// nearest first. Equal distances keep row order.
func nearestRows(rows []AddressRecord, lat, lon float64, n int) []neighbour {
	if n <= 0 || len(rows) == 0 {
		return nil
	}
	pv := make(s2.PointVector, len(rows))
	for i, r := range rows {
		pv[i] = s2.PointFromLatLng(s2.LatLngFromDegrees(r.Latitude, r.Longitude))
	}
	index := s2.NewShapeIndex()
	index.Add(&pv)

	opts := s2.NewClosestEdgeQueryOptions().MaxResults(min(n, len(rows)))
	query := s2.NewClosestEdgeQuery(index, opts)
	target := s2.NewMinDistanceToPointTarget(s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon)))

	results := query.FindEdges(target)
	out := make([]neighbour, 0, len(results))
	for _, res := range results {
		out = append(out, neighbour{
			row:        int(res.EdgeID()),
			distanceKm: res.Distance().Angle().Radians() * earthRadiusKm,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].distanceKm != out[j].distanceKm {
			return out[i].distanceKm < out[j].distanceKm
		}
		return out[i].row < out[j].row
	})
	return out
}

// searchBox returns the square box of half-width halfDeg degrees around (lat, lon).
func searchBox(lat, lon, halfDeg float64) Boundary {
	return Boundary{LatMin: lat - halfDeg, LatMax: lat + halfDeg, LonMin: lon - halfDeg, LonMax: lon + halfDeg}
}

// covers reports whether outer contains every point of inner.
func (b Boundary) covers(inner Boundary) bool {
	return b.LatMin <= inner.LatMin && b.LatMax >= inner.LatMax && b.LonMin <= inner.LonMin && b.LonMax >= inner.LonMax
}

// union returns the smallest box containing b and o.
func (b Boundary) union(o Boundary) Boundary {
	return Boundary{
		LatMin: min(b.LatMin, o.LatMin), LatMax: max(b.LatMax, o.LatMax),
		LonMin: min(b.LonMin, o.LonMin), LonMax: max(b.LonMax, o.LonMax),
	}
}
