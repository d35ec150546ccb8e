package raster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEarthRadius = 6371008.8
	testDeg2Rad     = math.Pi / 180.0
)

// lonScaleAtEquator is the plate-carree x-scale internal/geo.ProjectPoint
// applies at lat=0 (cos(0)=1), used below to pick a pixelWidth that makes
// a tile's column equal its query longitude exactly.
func lonScaleAtEquator() float64 {
	return testDeg2Rad * testEarthRadius
}

func newGridHandle(width, height int, originX, originY, pixelWidth, pixelHeight, nodata float64) *rasterHandle {
	data := make([]float64, width*height)
	for i := range data {
		data[i] = 1.0
	}
	return &rasterHandle{
		gt:     geotransform{originX: originX, pixelWidth: pixelWidth, originY: originY, pixelHeight: pixelHeight},
		width:  width,
		height: height,
		nodata: nodata,
		data:   data,
	}
}

func TestNearestReadsProjectedPixel(t *testing.T) {
	h := newGridHandle(21, 21, -10, -10, 1, 1, -9999)
	h.data[10*21+10] = 42.0 // col=10,row=10 <=> lon=0,lat=0

	v, ok := h.nearest(0, 0)
	require.True(t, ok)
	assert.Equal(t, 42.0, v)
}

func TestNearestMissingIsNodata(t *testing.T) {
	h := newGridHandle(3, 3, -1, -1, 1, 1, -9999)
	for i := range h.data {
		h.data[i] = -9999
	}
	_, ok := h.nearest(0, 0)
	assert.False(t, ok)
}

func TestBilinearExactPixelMatchesNearest(t *testing.T) {
	lonScale := lonScaleAtEquator()
	h := newGridHandle(21, 21, 0, -5, lonScale, 1, -9999)
	h.data[5*21+10] = 7.0 // row=5 (lat=0), col=10 (lon=10)

	v, ok := h.bilinear(10, 0)
	require.True(t, ok)
	assert.Equal(t, 7.0, v)
}

func TestBilinearInterpolatesFractionalPixel(t *testing.T) {
	lonScale := lonScaleAtEquator()
	h := newGridHandle(21, 21, 0, -5, lonScale, 1, -9999)
	h.data[5*21+10] = 0.0
	h.data[5*21+11] = 10.0
	h.data[6*21+10] = 0.0
	h.data[6*21+11] = 10.0

	v, ok := h.bilinear(10.5, 0)
	require.True(t, ok)
	assert.InDelta(t, 5.0, v, 1e-6)
}

func TestBilinearFallsBackToNearestOnNodataNeighbor(t *testing.T) {
	lonScale := lonScaleAtEquator()
	h := newGridHandle(21, 21, 0, -5, lonScale, 1, -9999)
	for i := range h.data {
		h.data[i] = -9999
	}
	h.data[5*21+10] = 99.0 // only the pixel at (10, 0) is valid

	v, ok := h.bilinear(10, 0)
	require.True(t, ok)
	assert.Equal(t, 99.0, v)
}

func TestWindowValuesExcludesNodataAndBoundsAllocation(t *testing.T) {
	bank := NewSamplerBank(nil, nil)
	h := newGridHandle(21, 21, -10, -10, 1, 1, -9999)
	for i := range h.data {
		h.data[i] = 5.0
	}
	h.data[10*21+10] = -9999 // center pixel is nodata

	values, ok := h.windowValues(0, 0, 2, bank)
	require.True(t, ok)
	assert.NotEmpty(t, values)
	for _, v := range values {
		assert.Equal(t, 5.0, v)
	}
}

func TestWindowValuesRejectsWhenPoolExhausted(t *testing.T) {
	bank := NewSamplerBank(nil, nil)
	bank.poolBytesUsed = MaxSubsetPoolBytes
	h := newGridHandle(21, 21, -10, -10, 1, 1, -9999)

	_, ok := h.windowValues(0, 0, 2, bank)
	assert.False(t, ok)
}

func TestWindowValuesDefaultsRadiusToPixelSize(t *testing.T) {
	bank := NewSamplerBank(nil, nil)
	h := newGridHandle(5, 5, -2, -2, 1, 1, -9999)
	values, ok := h.windowValues(0, 0, 0, bank)
	require.True(t, ok)
	assert.NotEmpty(t, values)
}

func TestZonalStatsArithmetic(t *testing.T) {
	z := zonalStats([]float64{1, 2, 3, 4, 5})
	assert.Equal(t, 5, z.Count)
	assert.Equal(t, 1.0, z.Min)
	assert.Equal(t, 5.0, z.Max)
	assert.Equal(t, 3.0, z.Mean)
	assert.Equal(t, 3.0, z.Median)
	assert.InDelta(t, math.Sqrt(2), z.StdDev, 1e-9)
	assert.Equal(t, 1.0, z.MAD)
}

func TestZonalStatsEmpty(t *testing.T) {
	z := zonalStats(nil)
	assert.Equal(t, 0, z.Count)
}

func TestMedianEvenCount(t *testing.T) {
	assert.Equal(t, 2.5, median([]float64{1, 2, 3, 4}))
}

func TestMedianOddCount(t *testing.T) {
	assert.Equal(t, 2.0, median([]float64{1, 2, 3}))
}
