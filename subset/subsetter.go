package subset

import (
	"context"
	"sync"

	"github.com/alitto/pond"
	"github.com/orbitalpipe/granule-pipeline/archive"
	"github.com/orbitalpipe/granule-pipeline/config"
	"github.com/orbitalpipe/granule-pipeline/internal/xlog"
	"github.com/orbitalpipe/granule-pipeline/queue"
	"github.com/orbitalpipe/granule-pipeline/record"
)

// maxWorkers bounds the worker pool at six, one per ground-track pair
// (three tracks, left and right each), per spec.md §4.5 "one worker
// per ground-track-pair (up to six)".
const maxWorkers = 6

// pairsPerTrack lists the two pairs (left, right) each of the three
// tracks is split into; Pair values match trackLetters' 1-based index.
var pairsPerTrack = [2]int{1, 2}

// wantsWorker reports whether the request's track/pair selection
// (spec.md §6 "track, pair: 0 = all") includes this (track, pair).
func wantsWorker(params *config.Parameters, track, pair int) bool {
	if params.Track != 0 && params.Track != track {
		return false
	}
	if params.Pair != 0 && params.Pair != pair {
		return false
	}
	return true
}

// Stats aggregates every worker's WorkerStats for one granule run.
type Stats struct {
	WorkerStats
	WorkersStarted   int
	WorkersSucceeded int
}

// Run subsets one granule: it resolves (rgt, cycle, region) from
// resourceURI, spawns up to six ground-track-pair workers over a. pond
// pool, waits for all of them, and posts the stream terminator once
// every worker has returned (spec.md §4.5 "completion is tracked via
// a shared counter across a granule's active workers; the last worker
// to finish posts the terminator").
func Run(ctx context.Context, a *archive.Archive, resourceURI string, params *config.Parameters, mask RasterMask, reg *record.Registry, out *queue.Queue, log *xlog.Logger) (Stats, error) {
	rgt, cycle, region, err := ParseResourceGlobals(resourceURI)
	if err != nil {
		return Stats{}, err
	}
	log.Infof("subsetting %s: rgt=%d cycle=%d region=%d", resourceURI, rgt, cycle, region)

	extentDef, photonDef, err := DefineExtentTypes(reg)
	if err != nil {
		return Stats{}, err
	}

	var counter uint32
	pool := pond.New(maxWorkers, 0, pond.MinWorkers(maxWorkers), pond.Context(ctx))
	defer pool.StopAndWait()

	var mu sync.Mutex
	var agg Stats
	var firstErr error

	for track := 1; track <= 3; track++ {
		for _, pair := range pairsPerTrack {
			if !wantsWorker(params, track, pair) {
				continue
			}
			track, pair := track, pair
			agg.WorkersStarted++
			pool.Submit(func() {
				in := WorkerInput{
					Archive:   a,
					Rgt:       rgt,
					Cycle:     cycle,
					Region:    region,
					Track:     track,
					Pair:      pair,
					Params:    params,
					Mask:      mask,
					ExtentDef: extentDef,
					PhotonDef: photonDef,
					Output:    out,
					Counter:   &counter,
					Log:       log,
				}
				stats, err := RunWorker(ctx, in)

				mu.Lock()
				defer mu.Unlock()
				agg.ExtentsSent += stats.ExtentsSent
				agg.ExtentsDropped += stats.ExtentsDropped
				agg.ExtentsRetried += stats.ExtentsRetried
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					return
				}
				agg.WorkersSucceeded++
			})
		}
	}

	pool.StopAndWait()

	if err := out.PostTerminator(); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	}

	log.Infof("subsetting %s: workers started=%d succeeded=%d extents sent=%d dropped=%d retried=%d",
		resourceURI, agg.WorkersStarted, agg.WorkersSucceeded, agg.ExtentsSent, agg.ExtentsDropped, agg.ExtentsRetried)
	return agg, firstErr
}
