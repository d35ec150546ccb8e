package raster

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/orbitalpipe/granule-pipeline/internal/geo"
	"github.com/orbitalpipe/granule-pipeline/internal/vfsio"
)

// rasterHeaderSize is the fixed-width header every tile carries ahead
// of its row-major pixel grid: an 8-byte magic, a six-element affine
// geotransform (origin x/y, pixel width/height, and the two rotation
// terms GDAL's GetGeoTransform always returns, here always zero since
// this format only supports north-up grids), a width/height pair, and
// a nodata sentinel.
const rasterHeaderSize = 8 + 6*8 + 4 + 4 + 8

var rasterMagic = [8]byte{'G', 'P', 'R', 'A', 'S', 'T', '0', '1'}

// geotransform is GDAL's standard six-coefficient affine mapping from
// pixel (col, row) to projected (x, y): x = originX + col*pixelWidth +
// row*rotX; y = originY + col*rotY + row*pixelHeight. This module's
// tile format always has rotX=rotY=0 (north-up, axis-aligned grids),
// a deliberate narrowing of "any GDAL-readable raster with an affine
// geotransform" (spec.md §6) since no GDAL binding exists anywhere in
// the retrieval pack; see DESIGN.md.
type geotransform struct {
	originX, pixelWidth, rotX float64
	originY, rotY, pixelHeight float64
}

func (g geotransform) worldToPixel(x, y float64) (col, row float64) {
	col = (x - g.originX) / g.pixelWidth
	row = (y - g.originY) / g.pixelHeight
	return col, row
}

// rasterHandle is one open tile: its geotransform, dimensions, nodata
// value, and full pixel grid. The grid is read once at open and held
// in memory for the handle's lifetime; only windowed zonal/resample
// reads charge against the sampler bank's byte pool (spec.md §4.7
// "Global byte pool hard cap ... for windowed subsets"), matching
// original_source/RasterSample.h's pool guarding transient subset
// buffers rather than the whole open raster.
type rasterHandle struct {
	gt       geotransform
	width    int
	height   int
	nodata   float64
	data     []float64 // row-major, len == width*height
}

// openRasterHandle reads uri fully through cfg and parses it as this
// module's dense-grid tile format.
func openRasterHandle(cfg *vfsio.Config, uri string) (*rasterHandle, error) {
	h, err := vfsio.Open(cfg, uri)
	if err != nil {
		return nil, newErr(KindResourceMissing, uri, err)
	}
	defer h.Close()

	size, err := h.Size()
	if err != nil {
		return nil, newErr(KindResourceMissing, uri, err)
	}
	if size < rasterHeaderSize {
		return nil, newErr(KindUnsupportedFormat, uri, nil)
	}

	header := make([]byte, rasterHeaderSize)
	if _, err := h.ReadAt(header, 0); err != nil {
		return nil, newErr(KindResourceMissing, uri, err)
	}
	for i := 0; i < 8; i++ {
		if header[i] != rasterMagic[i] {
			return nil, newErr(KindUnsupportedFormat, uri, nil)
		}
	}

	pos := 8
	readF64 := func() float64 {
		v := math.Float64frombits(binary.LittleEndian.Uint64(header[pos:]))
		pos += 8
		return v
	}
	gt := geotransform{}
	gt.originX = readF64()
	gt.pixelWidth = readF64()
	gt.rotX = readF64()
	gt.originY = readF64()
	gt.rotY = readF64()
	gt.pixelHeight = readF64()
	width := int(binary.LittleEndian.Uint32(header[pos:]))
	pos += 4
	height := int(binary.LittleEndian.Uint32(header[pos:]))
	pos += 4
	nodata := readF64()

	need := int64(rasterHeaderSize) + int64(width)*int64(height)*8
	if size < uint64(need) {
		return nil, newErr(KindUnsupportedFormat, uri, nil)
	}

	body := make([]byte, width*height*8)
	if _, err := h.ReadAt(body, rasterHeaderSize); err != nil {
		return nil, newErr(KindResourceMissing, uri, err)
	}
	data := make([]float64, width*height)
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(body[i*8:]))
	}

	return &rasterHandle{gt: gt, width: width, height: height, nodata: nodata, data: data}, nil
}

func (h *rasterHandle) at(col, row int) (float64, bool) {
	if col < 0 || col >= h.width || row < 0 || row >= h.height {
		return 0, false
	}
	v := h.data[row*h.width+col]
	if v == h.nodata {
		return 0, false
	}
	return v, true
}

// nearest performs a nearest-pixel read at the projected query point
// (spec.md §4.7 step 5 "nearest-pixel read").
func (h *rasterHandle) nearest(lon, lat float64) (float64, bool) {
	p := geo.ProjectPoint(lon, lat)
	col, row := h.gt.worldToPixel(p[0], p[1])
	return h.at(int(math.Round(col)), int(math.Round(row)))
}

// bilinear performs a 2x2 bilinear-weighted resample, standing in for
// the full bilinear/cubic/cubic-spline/lanczos kernel family spec.md
// §4.7 lists (sampling_algo): this module implements exactly one
// interpolated kernel and treats every non-nearest, non-average,
// non-mode algorithm request as bilinear, documented as a deliberate
// simplification in DESIGN.md (no image-resampling library appears
// anywhere in the retrieval pack to provide the others faithfully).
func (h *rasterHandle) bilinear(lon, lat float64) (float64, bool) {
	p := geo.ProjectPoint(lon, lat)
	col, row := h.gt.worldToPixel(p[0], p[1])
	c0, r0 := int(math.Floor(col)), int(math.Floor(row))
	fc, fr := col-float64(c0), row-float64(r0)

	v00, ok00 := h.at(c0, r0)
	v10, ok10 := h.at(c0+1, r0)
	v01, ok01 := h.at(c0, r0+1)
	v11, ok11 := h.at(c0+1, r0+1)
	if !ok00 || !ok10 || !ok01 || !ok11 {
		return h.nearest(lon, lat)
	}
	top := v00*(1-fc) + v10*fc
	bot := v01*(1-fc) + v11*fc
	return top*(1-fr) + bot*fr, true
}

// windowValues collects every non-nodata pixel within radiusPixels of
// the projected query point (a circular disc, tested by normalized
// distance over the pixels of its bounding box), for the average/mode kernels and for
// zonal statistics. bank bounds the allocation against its byte pool;
// an allocation that would exceed the pool returns ok=false without
// erroring the whole request (spec.md §4.7 "allocation failure fails
// only that tile's sample, not the whole request").
func (h *rasterHandle) windowValues(lon, lat, radiusM float64, bank *SamplerBank) ([]float64, bool) {
	p := geo.ProjectPoint(lon, lat)
	col, row := h.gt.worldToPixel(p[0], p[1])
	if radiusM <= 0 {
		radiusM = math.Max(math.Abs(h.gt.pixelWidth), math.Abs(h.gt.pixelHeight))
	}
	radiusPixelsX := radiusM / math.Abs(h.gt.pixelWidth)
	radiusPixelsY := radiusM / math.Abs(h.gt.pixelHeight)

	c0, r0 := int(col), int(row)
	rx, ry := int(math.Ceil(radiusPixelsX)), int(math.Ceil(radiusPixelsY))

	maxValues := (2*rx + 1) * (2*ry + 1)
	if !bank.acquireBytes(int64(maxValues) * 8) {
		return nil, false
	}
	defer bank.releaseBytes(int64(maxValues) * 8)

	var out []float64
	for dr := -ry; dr <= ry; dr++ {
		for dc := -rx; dc <= rx; dc++ {
			// circular disc: keep only pixels within radiusPixels of
			// center in normalized (x/radiusPixelsX, y/radiusPixelsY)
			// space.
			nx := float64(dc) / maxFloat(radiusPixelsX, 1e-9)
			ny := float64(dr) / maxFloat(radiusPixelsY, 1e-9)
			if nx*nx+ny*ny > 1 {
				continue
			}
			if v, ok := h.at(c0+dc, r0+dr); ok {
				out = append(out, v)
			}
		}
	}
	return out, true
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// zonalStats computes the stats a zonal_stats query reports
// (original_source/RasterSample.h's count/min/max/mean/median/stdev/mad),
// excluding nodata.
func zonalStats(values []float64) ZonalSample {
	var z ZonalSample
	if len(values) == 0 {
		return z
	}
	z.Count = len(values)
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	z.Min = sorted[0]
	z.Max = sorted[len(sorted)-1]

	var sum float64
	for _, v := range values {
		sum += v
	}
	z.Mean = sum / float64(len(values))
	z.Median = median(sorted)

	var sqDiff float64
	devs := make([]float64, len(values))
	for i, v := range values {
		d := v - z.Mean
		sqDiff += d * d
		devs[i] = math.Abs(v - z.Median)
	}
	z.StdDev = math.Sqrt(sqDiff / float64(len(values)))

	sort.Float64s(devs)
	z.MAD = median(devs)
	return z
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
