package subset

import "sort"

// photonCandidate is one photon considered while forming extents: its
// along-track distance (metres, monotonically increasing within a
// pair's subsetted region), height, and classification confidence.
// Distance is local bookkeeping only — the emitted Extent.Photons
// tail never carries it, matching the wire record's (height,
// confidence) photon row.
type photonCandidate struct {
	Distance   float64
	Height     float64
	Confidence uint8
}

// trackPhotons is the per-track input WalkExtents consumes: flat,
// already-subsetted along-track photon arrays plus the coarser
// per-segment arrays an extent's metadata is drawn from.
type trackPhotons struct {
	Distance   []float64
	Height     []float64
	Confidence []uint8

	// SegmentIndex[i] is the index into SegmentID/Lat/Lon that photon
	// i belongs to (original_source's Atl03Device.cpp walks segment
	// boundaries directly via segment_ph_cnt; this module carries the
	// same mapping as one flat per-photon array instead, a documented
	// simplification of that bookkeeping).
	SegmentIndex []int
	SegmentID    []uint32
	Lat          []float64
	Lon          []float64
	GPSTime      []float64
}

// extentWindow is one formed along-track window before quality
// filtering, paired with the segment it should report its location
// and metadata from (the segment containing its first photon).
type extentWindow struct {
	SegmentIdx int
	Photons    []photonCandidate
}

// WalkExtents slides a window of extentLength metres forward by
// extentStep metres across tp's photons, grouping photons whose
// confidence meets signalConfidence into successive windows
// (original_source/Atl03Device.cpp's inner photon-accumulation loop,
// simplified from its streaming two-pointer form to a binary-search
// range query per step since this module does not need to match its
// single-pass performance characteristics).
func WalkExtents(tp trackPhotons, signalConfidence int, extentLength, extentStep float64) []extentWindow {
	n := len(tp.Distance)
	if n == 0 || extentLength <= 0 {
		return nil
	}
	if extentStep <= 0 {
		extentStep = extentLength
	}

	var out []extentWindow
	start := tp.Distance[0]
	end := tp.Distance[n-1]

	for lo := start; lo < end+extentStep; lo += extentStep {
		hi := lo + extentLength
		i0 := sort.SearchFloat64s(tp.Distance, lo)
		i1 := sort.SearchFloat64s(tp.Distance, hi)
		if i0 >= n {
			break
		}
		if i1 <= i0 {
			continue
		}

		var photons []photonCandidate
		for i := i0; i < i1; i++ {
			if int(tp.Confidence[i]) >= signalConfidence {
				photons = append(photons, photonCandidate{
					Distance:   tp.Distance[i],
					Height:     tp.Height[i],
					Confidence: tp.Confidence[i],
				})
			}
		}
		if len(photons) == 0 {
			continue
		}
		out = append(out, extentWindow{SegmentIdx: tp.SegmentIndex[i0], Photons: photons})
	}
	return out
}

// passesFilters reports whether w has enough photons and enough
// along-track spread to be emitted (spec.md §8 invariant 1).
func (w extentWindow) passesFilters(minPhotons int, minSpread float64) bool {
	if len(w.Photons) < minPhotons {
		return false
	}
	if minSpread <= 0 {
		return true
	}
	spread := w.Photons[len(w.Photons)-1].Distance - w.Photons[0].Distance
	return spread >= minSpread
}

func (w extentWindow) spread() float64 {
	if len(w.Photons) < 2 {
		return 0
	}
	return w.Photons[len(w.Photons)-1].Distance - w.Photons[0].Distance
}
