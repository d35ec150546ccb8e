package raster

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square() orb.Polygon {
	return orb.Polygon{
		orb.Ring{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}, {-1, -1}},
	}
}

func TestQueryContainment(t *testing.T) {
	idx := &TileIndex{tiles: []TileDescriptor{
		{URL: "inside", GroupID: "g1", Footprint: square()},
	}}

	got, err := idx.Query(0, 0, SampleOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "inside", got[0].URL)

	got, err = idx.Query(10, 10, SampleOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryGroupAtomicURLFilter(t *testing.T) {
	idx := &TileIndex{tiles: []TileDescriptor{
		{URL: "a-plain", GroupID: "g1", Footprint: square()},
		{URL: "b-plain", GroupID: "g1", Footprint: square()},
		{URL: "c-keep", GroupID: "g2", Footprint: square()},
		{URL: "d-keep", GroupID: "g2", Footprint: square()},
	}}

	got, err := idx.Query(0, 0, SampleOptions{URLSubstring: "keep"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, td := range got {
		assert.Equal(t, "g2", td.GroupID)
	}
}

func TestQueryGroupAtomicURLFilterDropsWholeGroup(t *testing.T) {
	// one member of g1 fails the substring filter; the whole group,
	// including the member that would have passed on its own, drops.
	idx := &TileIndex{tiles: []TileDescriptor{
		{URL: "keep-1", GroupID: "g1", Footprint: square()},
		{URL: "drop-2", GroupID: "g1", Footprint: square()},
	}}

	got, err := idx.Query(0, 0, SampleOptions{URLSubstring: "keep"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryTemporalWindowGroupAtomic(t *testing.T) {
	idx := &TileIndex{tiles: []TileDescriptor{
		{URL: "early", GroupID: "g1", Time: 10, Footprint: square()},
		{URL: "late", GroupID: "g1", Time: 1000, Footprint: square()},
		{URL: "both-in", GroupID: "g2", Time: 150, Footprint: square()},
		{URL: "both-in-2", GroupID: "g2", Time: 160, Footprint: square()},
	}}

	t0, t1 := 100.0, 200.0
	got, err := idx.Query(0, 0, SampleOptions{T0: &t0, T1: &t1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, td := range got {
		assert.Equal(t, "g2", td.GroupID)
	}
}

func TestQueryClosestTimePicksNearestGroup(t *testing.T) {
	idx := &TileIndex{tiles: []TileDescriptor{
		{URL: "a", GroupID: "g1", Time: 100, Footprint: square()},
		{URL: "b", GroupID: "g2", Time: 150, Footprint: square()},
	}}

	t0 := 140.0
	got, err := idx.Query(0, 0, SampleOptions{ClosestTime: true, T0: &t0})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "g2", got[0].GroupID)
}

func TestQueryClosestTimeNoSurvivorsIsEmptyNotError(t *testing.T) {
	idx := &TileIndex{tiles: []TileDescriptor{
		{URL: "a", GroupID: "g1", Time: 100, Footprint: square()},
	}}
	t0, t1 := 1000.0, 2000.0
	got, err := idx.Query(0, 0, SampleOptions{ClosestTime: true, T0: &t0, T1: &t1})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGroupMinTime(t *testing.T) {
	members := []TileDescriptor{{Time: 50}, {Time: 10}, {Time: 30}}
	assert.Equal(t, 10.0, groupMinTime(members))
}

func TestRingContainsHoleExcludesInterior(t *testing.T) {
	outer := orb.Ring{{-2, -2}, {2, -2}, {2, 2}, {-2, 2}, {-2, -2}}
	hole := orb.Ring{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}, {-1, -1}}
	poly := orb.Polygon{outer, hole}

	assert.True(t, polygonContains(poly, orb.Point{1.5, 0}))
	assert.False(t, polygonContains(poly, orb.Point{0, 0}))
}
