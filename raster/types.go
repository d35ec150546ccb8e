package raster

import "context"

// Sample is one plain tile read (original_source/RasterSample.h's
// value/time/fileId/flags fields).
type Sample struct {
	GroupID string
	URL     string
	Value   float64
	Time    float64 // GPS seconds of the tile's acquisition
	FileID  uint64
	Flags   uint32
}

// ZonalSample adds the windowed statistics a zonal_stats query
// requests over a circular disc around the query point
// (original_source/RasterSample.h's nested stats struct: count, min,
// max, mean, median, stdev, mad), excluding nodata pixels.
type ZonalSample struct {
	Sample
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	Median float64
	StdDev float64
	MAD    float64
}

// Raster is the capability both concrete raster objects expose: given
// a query point, return the samples it covers. The gpsTime argument is
// accepted but neither implementation uses it; closest-time selection
// (TileIndex.Query) measures against opts.T0 instead. One interface, two
// concrete types (spec.md §9's polymorphism note), rather than a
// class hierarchy: IndexedRaster consults a vector-file TileIndex for
// candidates; SingleRaster always samples the one tile it was built
// with.
type Raster interface {
	GetSamples(ctx context.Context, lon, lat, gpsTime float64, opts SampleOptions) ([]Sample, []ZonalSample, error)
}

// SampleOptions carries the per-request knobs the sampler bank needs
// from config.Parameters without raster importing config (avoiding a
// cycle; sample.OptionsFromParams translates config.Parameters into this).
type SampleOptions struct {
	URLSubstring string
	T0, T1       *float64 // GPS seconds
	ClosestTime  bool
	Algo         string
	Radius       float64
	Zonal        bool
}

// IndexedRaster is the vector-file-indexed raster source (C6+C7):
// GetSamples asks idx for the candidate tiles covering the query point
// and dispatches them through bank.
type IndexedRaster struct {
	idx  *TileIndex
	bank *SamplerBank
}

// NewIndexedRaster pairs a TileIndex with the SamplerBank that reads
// its candidate tiles.
func NewIndexedRaster(idx *TileIndex, bank *SamplerBank) *IndexedRaster {
	return &IndexedRaster{idx: idx, bank: bank}
}

func (r *IndexedRaster) GetSamples(ctx context.Context, lon, lat, gpsTime float64, opts SampleOptions) ([]Sample, []ZonalSample, error) {
	candidates, err := r.idx.Query(lon, lat, opts)
	if err != nil {
		return nil, nil, err
	}
	return r.bank.Sample(ctx, candidates, lon, lat, opts)
}

// Bank returns the SamplerBank backing this raster, so a request-scoped
// caller (sample.Run) can build the trailing file-directory record once
// every extent has been sampled.
func (r *IndexedRaster) Bank() *SamplerBank { return r.bank }

// SingleRaster is the one-file shortcut (spec.md §9 "a single-file
// raster shortcut with no vector index"): every query samples the same
// tile, regardless of its footprint.
type SingleRaster struct {
	tile TileDescriptor
	bank *SamplerBank
}

// NewSingleRaster builds a SingleRaster over one fixed tile.
func NewSingleRaster(tile TileDescriptor, bank *SamplerBank) *SingleRaster {
	return &SingleRaster{tile: tile, bank: bank}
}

func (r *SingleRaster) GetSamples(ctx context.Context, lon, lat, gpsTime float64, opts SampleOptions) ([]Sample, []ZonalSample, error) {
	return r.bank.Sample(ctx, []TileDescriptor{r.tile}, lon, lat, opts)
}

// Bank returns the SamplerBank backing this raster, so a request-scoped
// caller (sample.Run) can build the trailing file-directory record once
// every extent has been sampled.
func (r *SingleRaster) Bank() *SamplerBank { return r.bank }
