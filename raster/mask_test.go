package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTileRegionMaskIncludesPointInsideSurvivingTile(t *testing.T) {
	idx := &TileIndex{tiles: []TileDescriptor{
		{URL: "tile-a", GroupID: "g1", Footprint: square()},
	}}
	mask := NewTileRegionMask(idx)

	assert.True(t, mask.Includes(0, 0))
	assert.False(t, mask.Includes(10, 10))
}

func TestTileRegionMaskIncludesGroupedPointWithoutFilter(t *testing.T) {
	idx := &TileIndex{tiles: []TileDescriptor{
		{URL: "keep-1", GroupID: "g1", Footprint: square()},
		{URL: "drop-2", GroupID: "g1", Footprint: square()},
	}}
	// no SampleOptions filter is configured here, so this exercises the
	// zero-value query path rather than group-atomic dropping; the
	// group-atomic case itself is covered by TestQueryGroupAtomicURLFilterDropsWholeGroup.
	mask := NewTileRegionMask(idx)
	assert.True(t, mask.Includes(0, 0))
}
