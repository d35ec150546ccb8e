package subset

// RegionSubset is the (first_segment, num_segments) window a region
// walk selects out of a full per-segment lat/lon array (spec.md §4.5
// step 3).
type RegionSubset struct {
	FirstSegment int
	NumSegments  int
}

// WalkRegion finds the first in-mask segment, then walks forward to
// the last in-mask segment seen, matching
// original_source/Atl06Reader.cpp's Region::rasterregion: a single
// forward pass, no requirement that every segment between first and
// last also be included (an isolated excluded segment inside the
// window does not truncate it).
//
// A nil mask selects the whole array (spec.md §4.5 "If neither, the
// full arrays are used").
func WalkRegion(lon, lat []float64, mask RasterMask) RegionSubset {
	n := len(lat)
	if mask == nil {
		return RegionSubset{FirstSegment: 0, NumSegments: n}
	}

	firstFound := false
	first := 0
	last := 0
	for i := 0; i < n; i++ {
		included := mask.Includes(lon[i], lat[i])
		if !firstFound && included {
			firstFound = true
			first = i
			last = i
		} else if firstFound && included {
			last = i
		}
	}
	if !firstFound {
		return RegionSubset{FirstSegment: 0, NumSegments: 0}
	}
	return RegionSubset{FirstSegment: first, NumSegments: last - first + 1}
}
