package sample

import (
	"time"

	"github.com/orbitalpipe/granule-pipeline/config"
	"github.com/orbitalpipe/granule-pipeline/internal/gpstime"
	"github.com/orbitalpipe/granule-pipeline/internal/vfsio"
	"github.com/orbitalpipe/granule-pipeline/raster"
)

// OpenSources opens one raster.Raster per spec against bank (shared
// across every source so the cache, reader pool, and byte budget are
// common to the whole request, matching spec.md §4.7's SamplerBank scope) and cfg,
// the vfsio.Config every tile URL is opened through. A spec with
// neither IndexURL nor URL set is skipped.
func OpenSources(cfg *vfsio.Config, bank *raster.SamplerBank, specs []config.RasterSourceSpec) ([]Source, error) {
	sources := make([]Source, 0, len(specs))
	for _, spec := range specs {
		var r raster.Raster
		switch {
		case spec.IndexURL != "":
			idx, err := raster.OpenTileIndex(cfg, spec.IndexURL)
			if err != nil {
				return nil, err
			}
			r = raster.NewIndexedRaster(idx, bank)
		case spec.URL != "":
			td := raster.TileDescriptor{URL: spec.URL, FlagsURL: spec.FlagsURL, GroupID: spec.GroupID}
			if td.GroupID == "" {
				td.GroupID = td.URL
			}
			r = raster.NewSingleRaster(td, bank)
		default:
			continue
		}
		sources = append(sources, Source{Key: spec.Key, Raster: r})
	}
	return sources, nil
}

// OptionsFromParams translates a request's JSON-decoded parameters
// into the SampleOptions every attached source is queried with.
// raster.SampleOptions avoids importing config to prevent a package
// cycle (raster is lower in the dependency graph than config); this is
// the one place that conversion happens.
func OptionsFromParams(p *config.Parameters) raster.SampleOptions {
	opts := raster.SampleOptions{
		URLSubstring: p.URLSubstring,
		ClosestTime:  p.ClosestTime,
		Algo:         string(p.SamplingAlgo),
		Radius:       p.SamplingRadius,
		Zonal:        p.ZonalStats,
	}
	if p.T0 != nil {
		t := gpsSeconds(*p.T0)
		opts.T0 = &t
	}
	if p.T1 != nil {
		t := gpsSeconds(*p.T1)
		opts.T1 = &t
	}
	return opts
}

func gpsSeconds(t time.Time) float64 { return gpstime.FromTime(t) }
