// Package geo holds the coordinate math shared by the subsetter's
// region walk (C5) and the raster tile index (C6): WGS84 metre-scale
// factors for along/across-track stepping, and the polar-stereographic
// / plate-carrée projection switch the spec requires beyond +-70
// degrees latitude.
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// Coefficients are the empirical WGS84 length-of-degree coefficients
// used to convert a metre offset at a given latitude/heading into a
// longitude/latitude delta. Carried over from the teacher's beam
// geolocation math (geo.go), which derives per-beam lon/lat from
// across/along-track metre offsets the same way this module derives
// successive extent boundaries from an along-track step in metres.
type Coefficients struct {
	A, B, C, D float64
	E, F, G    float64
}

// WGS84 returns the standard coefficient set.
func WGS84() Coefficients {
	return Coefficients{
		A: 111132.92, B: 559.82, C: 1.175, D: 0.0023,
		E: 111412.84, F: 93.5, G: 0.118,
	}
}

// StepAlongTrack returns the longitude/latitude reached by moving
// distanceM metres from (lon, lat) on the given heading (degrees
// clockwise from north). Used to turn a configured extent_length /
// extent_step (spec.md §6, in metres) into the along-track geodetic
// window for one extent.
func (c Coefficients) StepAlongTrack(lon, lat, headingDeg, distanceM float64) (outLon, outLat float64) {
	const deg2rad = math.Pi / 180.0

	latRad := deg2rad * lat
	headRad := deg2rad * headingDeg

	latSF := c.A - c.B*math.Cos(2*latRad) + c.C*math.Cos(4*latRad) - c.D*math.Cos(6*latRad)
	lonSF := c.E*math.Cos(latRad) - c.F*math.Cos(3*latRad) + c.G*math.Cos(5*latRad)

	dx := math.Sin(headRad)
	dy := math.Cos(headRad)

	outLon = lon + dx*distanceM/lonSF
	outLat = lat + dy*distanceM/latSF
	return outLon, outLat
}

// PolarLatitudeThreshold is the absolute latitude beyond which the
// subsetter projects the inclusion polygon with a polar-stereographic
// projection rather than plate-carrée (spec.md §4.5 step 3).
const PolarLatitudeThreshold = 70.0

// ProjectPoint projects a WGS84 lon/lat point into the projection
// appropriate for its latitude: polar stereographic beyond
// +-PolarLatitudeThreshold, plate-carrée (a direct degrees-to-metres
// scaling around the earth radius) otherwise. Returns planar (x, y)
// metres suitable for point-in-polygon tests against a
// similarly-projected polygon.
func ProjectPoint(lon, lat float64) orb.Point {
	switch {
	case lat >= PolarLatitudeThreshold:
		return polarStereographic(lon, lat, true)
	case lat <= -PolarLatitudeThreshold:
		return polarStereographic(lon, lat, false)
	default:
		return plateCarree(orb.Point{lon, lat})
	}
}

// polarStereographic implements the standard spherical polar
// stereographic projection (north=true for the Arctic sheet, false
// for the Antarctic), scaled by the mean earth radius so the output
// is in metres and comparable to plateCarree's output for the
// subsetter's relative in-polygon distance test.
func polarStereographic(lon, lat float64, north bool) orb.Point {
	const earthRadius = 6371008.8
	const deg2rad = math.Pi / 180.0

	lonRad := lon * deg2rad
	latRad := lat * deg2rad
	if !north {
		latRad = -latRad
		lonRad = -lonRad
	}

	// Standard (non-secant) spherical stereographic from the pole.
	k := 2 * earthRadius / (1 + math.Sin(latRad))
	x := k * math.Cos(latRad) * math.Sin(lonRad)
	y := -k * math.Cos(latRad) * math.Cos(lonRad)
	if !north {
		x = -x
	}
	return orb.Point{x, y}
}

// plateCarree scales degrees to approximate metres around the mean
// earth radius; sufficient for the short-baseline in-polygon test the
// subsetter performs (it only needs consistent relative distances
// between the polygon and the point, not a geodesically exact area).
func plateCarree(p orb.Point) orb.Point {
	const earthRadius = 6371008.8
	const deg2rad = math.Pi / 180.0
	x := p[0] * deg2rad * earthRadius * math.Cos(p[1]*deg2rad)
	y := p[1] * deg2rad * earthRadius
	return orb.Point{x, y}
}

// ProjectPolygon applies ProjectPoint to every vertex of a polygon's
// outer ring plus holes, returning a polygon in the same planar space
// as ProjectPoint so a planar point-in-polygon test (subset's
// PolygonMask) can be applied to projected points directly.
func ProjectPolygon(poly orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(poly))
	for i, ring := range poly {
		pr := make(orb.Ring, len(ring))
		for j, pt := range ring {
			pr[j] = ProjectPoint(pt[0], pt[1])
		}
		out[i] = pr
	}
	return out
}

// CrossesAntimeridian reports whether consecutive ring vertices jump
// by more than 180 degrees of longitude, the signal the subsetter uses
// to decide whether a polygon needs antimeridian-aware splitting
// before its inclusion test (spec.md §8 boundary behaviours).
func CrossesAntimeridian(ring orb.Ring) bool {
	for i := 1; i < len(ring); i++ {
		if math.Abs(ring[i][0]-ring[i-1][0]) > 180.0 {
			return true
		}
	}
	return false
}

// NormalizeAntimeridian shifts every negative longitude in ring by
//360 degrees when the ring crosses the antimeridian, so a single
// continuous point-in-polygon test can be applied without the ring
// wrapping discontinuously from +180 to -180.
func NormalizeAntimeridian(ring orb.Ring) orb.Ring {
	if !CrossesAntimeridian(ring) {
		return ring
	}
	out := make(orb.Ring, len(ring))
	for i, pt := range ring {
		lon := pt[0]
		if lon < 0 {
			lon += 360.0
		}
		out[i] = orb.Point{lon, pt[1]}
	}
	return out
}
