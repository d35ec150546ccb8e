// Package config parses the request-scoped parameters recognized by
// the subsetter and sampler (spec.md §6's configuration table). The
// embedded scripting layer that would produce these values is an
// external collaborator; this package only validates and holds the
// result of decoding whatever JSON blob that layer (or the fan-out
// proxy) hands down.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// SamplingAlgo enumerates the raster resampling kernels the sampler
// bank supports (spec.md §6 "sampling_algo").
type SamplingAlgo string

const (
	SamplingNearest     SamplingAlgo = "nearest"
	SamplingBilinear    SamplingAlgo = "bilinear"
	SamplingCubic       SamplingAlgo = "cubic"
	SamplingCubicSpline SamplingAlgo = "cubic-spline"
	SamplingLanczos     SamplingAlgo = "lanczos"
	SamplingAverage     SamplingAlgo = "average"
	SamplingMode        SamplingAlgo = "mode"
	SamplingGauss       SamplingAlgo = "gauss"
)

// MaxParameterSize bounds a fan-out proxy sub-request's parameter blob
// (spec.md §4.9 "Parameter size is bounded (default 32 MiB)").
const MaxParameterSize = 32 << 20

// DefaultBatchSize is the subsetter's extent-batch size (spec.md §4.5
// "Every kBatchSize extents (default 256)").
const DefaultBatchSize = 256

// DefaultReadTimeout is applied when a request omits read_timeout.
const DefaultReadTimeout = 30 * time.Second

// DefaultLockTimeout is the fan-out proxy's default orchestrator lock
// hold (spec.md §4.9 "timeout (default 10 minutes)").
const DefaultLockTimeout = 10 * time.Minute

// Parameters is one request's full configuration, decoded from the
// JSON blob the proxy (C9) or a direct subsetter invocation supplies.
// Every field has a zero value that means "unset / use the whole
// granule", matching spec.md §6's "0 = all" convention where one is
// stated.
type Parameters struct {
	Track int `json:"track"` // 0 = all, 1..3 = single ground-track pair group
	Pair  int `json:"pair"`  // 0 = all, else specific pair

	SignalConfidence int     `json:"signal_confidence"`
	PhotonCount      int     `json:"photon_count"`
	AlongTrackSpread float64 `json:"along_track_spread"`

	ExtentLength float64 `json:"extent_length"`
	ExtentStep   float64 `json:"extent_step"`

	Polygon     orb.Polygon `json:"polygon"`
	RasterMask  string      `json:"raster_mask"`

	T0           *time.Time `json:"t0"`
	T1           *time.Time `json:"t1"`
	ClosestTime  bool       `json:"closest_time"`
	URLSubstring string     `json:"url_substring"`

	SamplingAlgo   SamplingAlgo `json:"sampling_algo"`
	SamplingRadius float64      `json:"sampling_radius"`
	ZonalStats     bool         `json:"zonal_stats"`

	ReadTimeoutSeconds float64 `json:"read_timeout"`

	BatchSize int `json:"batch_size"`

	// RasterSources lists every raster source a sampling request
	// attaches (spec.md §4.8 "a request may configure multiple"); the
	// sample dispatcher opens one raster.Raster per entry and samples
	// each at every extent.
	RasterSources []RasterSourceSpec `json:"raster_sources"`
}

// RasterSourceSpec names one raster source a request attaches to the
// sample dispatcher (C8). Exactly one of IndexURL or URL should be
// set: IndexURL opens a vector-indexed raster.IndexedRaster (C6+C7),
// URL opens the single-file raster.SingleRaster shortcut (spec.md §9
// "a single-file raster shortcut with no vector index").
type RasterSourceSpec struct {
	Key      string `json:"key"`
	IndexURL string `json:"index_url"`
	URL      string `json:"url"`
	FlagsURL string `json:"flags_url"`
	GroupID  string `json:"group_id"`
}

// Parse decodes and validates a request's parameter blob, rejecting
// anything over MaxParameterSize (spec.md §4.9).
func Parse(blob []byte) (*Parameters, error) {
	if len(blob) > MaxParameterSize {
		return nil, fmt.Errorf("config: parameter blob of %d bytes exceeds %d byte limit", len(blob), MaxParameterSize)
	}
	p := &Parameters{
		SamplingAlgo: SamplingNearest,
		BatchSize:    DefaultBatchSize,
	}
	if len(blob) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(blob, p); err != nil {
		return nil, fmt.Errorf("config: decoding parameters: %w", err)
	}
	if p.BatchSize <= 0 {
		p.BatchSize = DefaultBatchSize
	}
	if p.SamplingAlgo == "" {
		p.SamplingAlgo = SamplingNearest
	}
	return p, nil
}

// ReadTimeout returns the configured per-array-handle join timeout,
// falling back to DefaultReadTimeout when unset.
func (p *Parameters) ReadTimeout() time.Duration {
	if p.ReadTimeoutSeconds <= 0 {
		return DefaultReadTimeout
	}
	return time.Duration(p.ReadTimeoutSeconds * float64(time.Second))
}

// WantsPair reports whether pair (1, 2, or 3) should be processed
// under this request's track/pair selection.
func (p *Parameters) WantsPair(pair int) bool {
	if p.Track != 0 && p.Track != pair {
		return false
	}
	if p.Pair != 0 && p.Pair != pair {
		return false
	}
	return true
}
