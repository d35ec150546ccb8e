// Package metrics exposes the small set of Prometheus counters and
// gauges this core cares about: cache hit/miss rates for the archive
// block cache (C3) and the raster tile cache (C7), and the number of
// open tile handles. The HTTP endpoint that would expose these to a
// scraper is an explicit external collaborator (spec.md §1); this
// package only registers and updates the series.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry groups the series this core updates. A nil *Registry is
// valid everywhere a *Registry is accepted and simply no-ops, so
// components used outside of a metrics-enabled process (unit tests)
// do not need to fake one.
type Registry struct {
	BlockCacheRequests *prometheus.CounterVec
	TileCacheRequests  *prometheus.CounterVec
	OpenTileHandles     prometheus.Gauge
	SubsetPoolBytesUsed prometheus.Gauge
}

// NewRegistry creates and registers the series against reg. Passing
// prometheus.NewRegistry() keeps this isolated from the global
// default registry, which matters when multiple Registries are
// created in tests.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		BlockCacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "granulepipe",
			Subsystem: "block_cache",
			Name:      "requests_total",
			Help:      "Archive block cache lookups by level and outcome.",
		}, []string{"level", "outcome"}),
		TileCacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "granulepipe",
			Subsystem: "tile_cache",
			Name:      "requests_total",
			Help:      "Raster tile cache lookups by outcome.",
		}, []string{"outcome"}),
		OpenTileHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "granulepipe",
			Subsystem: "tile_cache",
			Name:      "open_handles",
			Help:      "Currently open raster tile handles.",
		}),
		SubsetPoolBytesUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "granulepipe",
			Subsystem: "sampler",
			Name:      "subset_pool_bytes_used",
			Help:      "Bytes currently allocated from the windowed-subset memory pool.",
		}),
	}
	reg.MustRegister(r.BlockCacheRequests, r.TileCacheRequests, r.OpenTileHandles, r.SubsetPoolBytesUsed)
	return r
}

func (r *Registry) blockCache(level, outcome string) {
	if r == nil {
		return
	}
	r.BlockCacheRequests.WithLabelValues(level, outcome).Inc()
}

// BlockCacheHit records a hit served from the given cache level ("l1" or "l2").
func (r *Registry) BlockCacheHit(level string) { r.blockCache(level, "hit") }

// BlockCacheMiss records a miss that required a storage fetch.
func (r *Registry) BlockCacheMiss(level string) { r.blockCache(level, "miss") }

func (r *Registry) TileCache(outcome string) {
	if r == nil {
		return
	}
	r.TileCacheRequests.WithLabelValues(outcome).Inc()
}

func (r *Registry) SetOpenTileHandles(n int) {
	if r == nil {
		return
	}
	r.OpenTileHandles.Set(float64(n))
}

func (r *Registry) SetSubsetPoolBytesUsed(n int64) {
	if r == nil {
		return
	}
	r.SubsetPoolBytesUsed.Set(float64(n))
}
