package subset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTrackPhotons(n int, step float64) trackPhotons {
	tp := trackPhotons{
		SegmentIndex: make([]int, n),
		SegmentID:    []uint32{1},
		Lat:          []float64{-75},
		Lon:          []float64{100},
		GPSTime:      []float64{1000},
	}
	for i := 0; i < n; i++ {
		tp.Distance = append(tp.Distance, float64(i)*step)
		tp.Height = append(tp.Height, 10+float64(i)*0.01)
		tp.Confidence = append(tp.Confidence, 4)
	}
	return tp
}

func TestWalkExtentsFormsWindows(t *testing.T) {
	tp := makeTrackPhotons(200, 1.0) // one photon per metre, 0..199m
	windows := WalkExtents(tp, 3, 40.0, 20.0)
	require.NotEmpty(t, windows)
	for _, w := range windows {
		assert.NotEmpty(t, w.Photons)
	}
}

func TestWalkExtentsFiltersLowConfidence(t *testing.T) {
	tp := makeTrackPhotons(50, 1.0)
	for i := range tp.Confidence {
		tp.Confidence[i] = 1
	}
	windows := WalkExtents(tp, 4, 40.0, 20.0)
	assert.Empty(t, windows)
}

func TestWalkExtentsEmptyInput(t *testing.T) {
	windows := WalkExtents(trackPhotons{}, 0, 40.0, 20.0)
	assert.Nil(t, windows)
}

func TestExtentWindowPassesFilters(t *testing.T) {
	w := extentWindow{Photons: []photonCandidate{
		{Distance: 0, Height: 1, Confidence: 4},
		{Distance: 5, Height: 1, Confidence: 4},
		{Distance: 11, Height: 1, Confidence: 4},
	}}
	assert.True(t, w.passesFilters(3, 10))
	assert.False(t, w.passesFilters(4, 10))
	assert.False(t, w.passesFilters(3, 20))
}
