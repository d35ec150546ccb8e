package main

import (
	"context"
	"sync"

	"github.com/orbitalpipe/granule-pipeline/archive"
	"github.com/orbitalpipe/granule-pipeline/config"
	"github.com/orbitalpipe/granule-pipeline/internal/metrics"
	"github.com/orbitalpipe/granule-pipeline/internal/vfsio"
	"github.com/orbitalpipe/granule-pipeline/internal/xlog"
	"github.com/orbitalpipe/granule-pipeline/queue"
	"github.com/orbitalpipe/granule-pipeline/raster"
	"github.com/orbitalpipe/granule-pipeline/record"
	"github.com/orbitalpipe/granule-pipeline/sample"
	"github.com/orbitalpipe/granule-pipeline/subset"
)

// pipelineResult summarizes one granule's run through subset (C5) and,
// when the request attaches raster sources, sample (C8).
type pipelineResult struct {
	Subset subset.Stats
	Sample sample.Stats
}

// runGranule opens resourceURI as an archive, subsets it per params,
// and -- when params.RasterSources is non-empty -- samples every
// emitted extent, writing the final record stream to outPath via
// drainToFile. This is the control flow spec.md §3 describes for one
// worker: "the subsetter (C5) spawns one worker per ground-track
// pair...pushes extent records through the fabric (C1) into a queue
// (C2); the dispatcher (C8) reads extents, calls the sampler bank
// (C7)...".
func runGranule(ctx context.Context, resourceURI, archiveConfigURI, vfsioConfigURI string, params *config.Parameters, metricsReg *metrics.Registry, log *xlog.Logger, outPath string) (pipelineResult, error) {
	return runGranuleSink(ctx, resourceURI, archiveConfigURI, vfsioConfigURI, params, metricsReg, log,
		func(ctx context.Context, sub *queue.Subscriber) error {
			_, err := drainToFile(ctx, sub, outPath)
			return err
		})
}

// runGranuleForward is runGranule's proxy (C9) variant: instead of
// writing the final record stream to a file, it forwards every
// container onto dst, the fan-out's shared output queue (spec.md §3
// "merges result streams"), without forwarding this slot's own stream
// terminator onto dst (only the fan-out's completion, not one slot's,
// should end dst's stream).
func runGranuleForward(ctx context.Context, resourceURI, archiveConfigURI, vfsioConfigURI string, params *config.Parameters, metricsReg *metrics.Registry, log *xlog.Logger, dst *queue.Queue) (pipelineResult, error) {
	return runGranuleSink(ctx, resourceURI, archiveConfigURI, vfsioConfigURI, params, metricsReg, log,
		func(ctx context.Context, sub *queue.Subscriber) error {
			return forwardContainers(ctx, sub, dst)
		})
}

func runGranuleSink(ctx context.Context, resourceURI, archiveConfigURI, vfsioConfigURI string, params *config.Parameters, metricsReg *metrics.Registry, log *xlog.Logger, sink func(context.Context, *queue.Subscriber) error) (pipelineResult, error) {
	var result pipelineResult

	// ctx is canceled on every exit path below, including the early
	// setup errors that return before a sink ever subscribes to drain
	// the subset producer -- otherwise an OfConfidence Post blocked on
	// back-pressure would wait on a reader that will never arrive.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	arc, err := archive.Open(resourceURI, archiveConfigURI, metricsReg, log)
	if err != nil {
		return result, err
	}
	defer arc.Close()

	reg := record.NewRegistry()
	extQueue := queue.New("extents", 64, queue.OfConfidence)
	extSub := extQueue.Subscribe()

	needsVFS := len(params.RasterSources) > 0 || params.RasterMask != ""
	var vfsCfg *vfsio.Config
	if needsVFS {
		var err error
		vfsCfg, err = vfsio.NewConfig(vfsioConfigURI)
		if err != nil {
			return result, err
		}
		defer vfsCfg.Free()
	}

	// params.RasterMask names a tile index (spec.md §4.5 step 3's
	// "raster mask configured instead" alternative to a polygon) rather
	// than an inclusion polygon; subset.Run receives it through its
	// RasterMask parameter. For the polygon case that parameter stays
	// nil and each worker builds a subset.PolygonMask from params.Polygon.
	var mask subset.RasterMask
	if params.RasterMask != "" {
		idx, err := raster.OpenTileIndex(vfsCfg, params.RasterMask)
		if err != nil {
			return result, err
		}
		mask = raster.NewTileRegionMask(idx)
	}

	var wg sync.WaitGroup
	var subsetErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		result.Subset, subsetErr = subset.Run(ctx, arc, resourceURI, params, mask, reg, extQueue, log)
	}()

	if len(params.RasterSources) == 0 {
		sinkErr := sink(ctx, extSub)
		wg.Wait()
		if subsetErr != nil {
			return result, subsetErr
		}
		return result, sinkErr
	}

	bank := raster.NewSamplerBank(vfsCfg, metricsReg)
	sources, err := sample.OpenSources(vfsCfg, bank, params.RasterSources)
	if err != nil {
		wg.Wait()
		return result, err
	}

	sampleQueue := queue.New("samples", 64, queue.OfConfidence)
	sampleSub := sampleQueue.Subscribe()

	var sampleErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		result.Sample, sampleErr = sample.Run(ctx, sample.Input{
			Reg:     reg,
			In:      extSub,
			Out:     sampleQueue,
			Sources: sources,
			Opts:    sample.OptionsFromParams(params),
			Log:     log,
		})
	}()

	sinkErr := sink(ctx, sampleSub)
	wg.Wait()

	if subsetErr != nil {
		return result, subsetErr
	}
	if sampleErr != nil {
		return result, sampleErr
	}
	return result, sinkErr
}
