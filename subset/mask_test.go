package subset

import (
	"testing"

	"github.com/orbitalpipe/granule-pipeline/internal/geo"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func identityProject(lon, lat float64) orb.Point { return orb.Point{lon, lat} }

func TestPolygonMaskIncludesInterior(t *testing.T) {
	square := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	m := NewPolygonMask(orb.Polygon{square}, identityProject)

	assert.True(t, m.Includes(5, 5))
	assert.False(t, m.Includes(20, 20))
}

func TestPolygonMaskHoleExcluded(t *testing.T) {
	outer := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	hole := orb.Ring{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}}
	m := NewPolygonMask(orb.Polygon{outer, hole}, identityProject)

	assert.True(t, m.Includes(1, 1))
	assert.False(t, m.Includes(5, 5))
}

func TestPolygonMaskUsesWGS84ProjectionNearPole(t *testing.T) {
	// A polygon expressed in already-projected polar-stereographic
	// coordinates around the south pole; points beyond the +-70 degree
	// threshold should be projected the same way before the test.
	poly := orb.Ring{{-1e6, -1e6}, {1e6, -1e6}, {1e6, 1e6}, {-1e6, 1e6}, {-1e6, -1e6}}
	m := NewPolygonMask(orb.Polygon{poly}, geo.ProjectPoint)
	assert.True(t, m.Includes(0, -85))
}
