package subset

import "github.com/paulmach/orb"

// RasterMask is the narrow interface the region walk needs from an
// inclusion-mask raster (spec.md §4.5 step 3 "If a raster mask is
// configured instead, the mask's includes(lon,lat) defines
// inclusion"). The raster package's mask-backed reader implements
// this without subset importing raster, avoiding a cycle between the
// two packages.
type RasterMask interface {
	Includes(lon, lat float64) bool
}

// PolygonMask adapts a projected inclusion polygon (built from
// internal/geo's projection helpers) to RasterMask, for the
// configured-polygon case of the region walk.
type PolygonMask struct {
	Projected orb.Polygon
	project   func(lon, lat float64) orb.Point
}

// NewPolygonMask projects poly once up front (spec.md §4.5 "projects
// the polygon (polar-stereographic when beyond +-70 degrees latitude,
// plate-carree otherwise)").
func NewPolygonMask(poly orb.Polygon, project func(lon, lat float64) orb.Point) *PolygonMask {
	projected := make(orb.Polygon, len(poly))
	for i, ring := range poly {
		pr := make(orb.Ring, len(ring))
		for j, pt := range ring {
			pr[j] = project(pt[0], pt[1])
		}
		projected[i] = pr
	}
	return &PolygonMask{Projected: projected, project: project}
}

func (m *PolygonMask) Includes(lon, lat float64) bool {
	p := m.project(lon, lat)
	return planarPointInPolygon(m.Projected, p)
}

func planarPointInPolygon(poly orb.Polygon, p orb.Point) bool {
	if len(poly) == 0 {
		return false
	}
	if !ringContains(poly[0], p) {
		return false
	}
	for _, hole := range poly[1:] {
		if ringContains(hole, p) {
			return false
		}
	}
	return true
}

// ringContains is the standard even-odd ray-casting test.
func ringContains(ring orb.Ring, p orb.Point) bool {
	in := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := ring[i], ring[j]
		if (pi[1] > p[1]) != (pj[1] > p[1]) {
			slopeX := (pj[0]-pi[0])*(p[1]-pi[1])/(pj[1]-pi[1]) + pi[0]
			if p[0] < slopeX {
				in = !in
			}
		}
	}
	return in
}
