package raster

// TileRegionMask adapts a TileIndex to subset's RasterMask interface
// (spec.md §4.5 step 3: "If a raster mask is configured instead, the
// mask's includes(lon,lat) defines inclusion") without raster ever
// importing subset: Go interface satisfaction is structural, so this
// type only needs to match subset.RasterMask's single method.
type TileRegionMask struct {
	idx *TileIndex
}

// NewTileRegionMask wraps idx as an inclusion mask: a point is inside
// the mask whenever at least one tile (post group-atomic filtering)
// contains it.
func NewTileRegionMask(idx *TileIndex) *TileRegionMask {
	return &TileRegionMask{idx: idx}
}

// Includes reports whether any surviving tile in the index contains
// (lon, lat). A query error (malformed footprint data would already
// have failed at OpenTileIndex) is treated as non-inclusion rather
// than propagated, since RasterMask's Includes has no error return.
func (m *TileRegionMask) Includes(lon, lat float64) bool {
	tiles, err := m.idx.Query(lon, lat, SampleOptions{})
	if err != nil {
		return false
	}
	return len(tiles) > 0
}
