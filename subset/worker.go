package subset

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/orbitalpipe/granule-pipeline/archive"
	"github.com/orbitalpipe/granule-pipeline/config"
	"github.com/orbitalpipe/granule-pipeline/internal/geo"
	"github.com/orbitalpipe/granule-pipeline/internal/xlog"
	"github.com/orbitalpipe/granule-pipeline/queue"
	"github.com/orbitalpipe/granule-pipeline/record"
)

// trackLetters are the left and right pair suffixes each of the three
// ICESat-2 ground-track groups is split into (original_source's
// /gt%d%c dataset prefix convention), indexed by Pair-1.
var trackLetters = []byte{'l', 'r'}

// WorkerInput bundles everything one ground-track-pair worker needs:
// the archive it reads from, the granule-global ids a resource name
// resolves to, the request parameters, the record definitions its
// output rows are packed against, and the queue its batches are
// posted to.
type WorkerInput struct {
	Archive *archive.Archive

	Rgt, Cycle, Region int
	Track, Pair        int // Pair: 1=left, 2=right

	Params *config.Parameters
	Mask   RasterMask

	ExtentDef *record.Definition
	PhotonDef *record.Definition
	Output    *queue.Queue

	// Counter is shared across every worker spawned for this granule;
	// each emitted extent claims the next value so extent_id.counter
	// is assigned in emission order per (track, pair) (spec.md §4.5
	// "counter assigned in the order extents are emitted").
	Counter *uint32

	// Log may be nil; every call goes through xlog.Logger's nil-receiver
	// no-op so a worker run outside a logged request context (tests)
	// does not need to fake one.
	Log *xlog.Logger
}

// WorkerStats summarizes one worker's run for the subsetter's
// completion bookkeeping and logging (spec.md §4.5 "extents_sent /
// extents_dropped / extents_retried" counters from
// Atl06Reader.cpp's subsettingThread).
type WorkerStats struct {
	ExtentsSent    int
	ExtentsDropped int
	ExtentsRetried int
}

// arrayPaths are the dataset paths one ground-track-pair worker opens
// (spec.md §4.5 "opens on the order of sixteen lazy array handles
// covering geolocation, height, signal classification, and ancillary
// fields"). ph_segment_index is a synthetic per-photon dataset this
// module expects the archive to carry mapping each photon back to its
// enclosing segment row, standing in for original_source's
// segment_ph_cnt-based accumulation bookkeeping.
func arrayPaths(prefix string) []string {
	return []string{
		prefix + "/geolocation/segment_id",
		prefix + "/geolocation/reference_photon_lat",
		prefix + "/geolocation/reference_photon_lon",
		prefix + "/geolocation/delta_time",
		prefix + "/geolocation/solar_elevation",
		prefix + "/geolocation/pitch",
		prefix + "/geolocation/roll",
		prefix + "/heights/dist_ph_along",
		prefix + "/heights/h_ph",
		prefix + "/heights/signal_conf_ph",
		prefix + "/heights/quality_ph",
		prefix + "/heights/lat_ph",
		prefix + "/heights/lon_ph",
		prefix + "/heights/delta_time",
		prefix + "/heights/ph_segment_index",
		prefix + "/bckgrd_atlas/bckgrd_rate",
	}
}

const (
	pSegmentID    = 0
	pSegLat       = 1
	pSegLon       = 2
	pSegDeltaTime = 3
	pDistAlong    = 7
	pHPh          = 8
	pConf         = 9
	pPhSegIdx     = 14
)

// RunWorker opens in.Track/in.Pair's array handles, subsets them to
// the configured region, walks photons into extents, and posts
// kBatchSize-sized batches to in.Output, retrying on back-pressure
// timeout (spec.md §4.5 steps 2-6). It returns once every extent has
// been posted (or permanently failed) and reports its own stats; it
// never posts the stream terminator, that is the subsetter's job once
// every worker has returned.
func RunWorker(ctx context.Context, in WorkerInput) (WorkerStats, error) {
	var stats WorkerStats

	prefix := fmt.Sprintf("/gt%d%c", in.Track, trackLetters[in.Pair-1])
	paths := arrayPaths(prefix)
	in.Log.Debugf("worker gt%d%c: opening %d array handles", in.Track, trackLetters[in.Pair-1], len(paths))

	timeout := in.Params.ReadTimeout()
	joinCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	handles := make([]*archive.ArrayHandle, len(paths))
	for i, p := range paths {
		info, err := in.Archive.Dataset(p)
		if err != nil {
			in.Log.Warnf("worker gt%d%c: dataset %s: %v", in.Track, trackLetters[in.Pair-1], p, err)
			return stats, newErr(KindResourceMissing, in.Track, in.Pair, err)
		}
		handles[i] = archive.NewArrayHandle(in.Archive, p, "", 0, info.NumRows())
	}

	for i, h := range handles {
		switch h.JoinContext(joinCtx) {
		case archive.JoinTimeout:
			in.Log.Warnf("worker gt%d%c: timed out joining %s", in.Track, trackLetters[in.Pair-1], paths[i])
			return stats, newErr(KindTimeout, in.Track, in.Pair, fmt.Errorf("joining %s", paths[i]))
		case archive.JoinError:
			return stats, newErr(KindResourceMissing, in.Track, in.Pair, h.Err())
		}
	}

	segN := handles[pSegmentID].Size()
	if segN == 0 {
		in.Log.Debugf("worker gt%d%c: no segments in range, nothing to subset", in.Track, trackLetters[in.Pair-1])
		return stats, nil
	}
	segLat := make([]float64, segN)
	segLon := make([]float64, segN)
	segID := make([]uint32, segN)
	segTime := make([]float64, segN)
	for i := uint64(0); i < segN; i++ {
		segLat[i] = handles[pSegLat].Float64At(i)
		segLon[i] = handles[pSegLon].Float64At(i)
		segID[i] = uint32(handles[pSegmentID].Uint64At(i))
		segTime[i] = handles[pSegDeltaTime].Float64At(i)
	}

	mask := in.Mask
	if mask == nil && len(in.Params.Polygon) > 0 {
		mask = NewPolygonMask(in.Params.Polygon, geo.ProjectPoint)
	}
	rs := WalkRegion(segLon, segLat, mask)
	if rs.NumSegments == 0 {
		return stats, nil
	}

	for _, h := range handles {
		h.Trim(uint64(rs.FirstSegment))
	}

	photonN := handles[pHPh].Size()
	tp := trackPhotons{
		Distance:     make([]float64, 0, photonN),
		Height:       make([]float64, 0, photonN),
		Confidence:   make([]uint8, 0, photonN),
		SegmentIndex: make([]int, 0, photonN),
		SegmentID:    segID[rs.FirstSegment : rs.FirstSegment+rs.NumSegments],
		Lat:          segLat[rs.FirstSegment : rs.FirstSegment+rs.NumSegments],
		Lon:          segLon[rs.FirstSegment : rs.FirstSegment+rs.NumSegments],
		GPSTime:      segTime[rs.FirstSegment : rs.FirstSegment+rs.NumSegments],
	}
	lastSeg := rs.NumSegments - 1
	for i := uint64(0); i < photonN; i++ {
		segIdx := int(handles[pPhSegIdx].Uint64At(i))
		if segIdx < 0 || segIdx > lastSeg {
			continue
		}
		tp.Distance = append(tp.Distance, handles[pDistAlong].Float64At(i))
		tp.Height = append(tp.Height, handles[pHPh].Float64At(i))
		tp.Confidence = append(tp.Confidence, uint8(handles[pConf].Uint64At(i)))
		tp.SegmentIndex = append(tp.SegmentIndex, segIdx)
	}

	windows := WalkExtents(tp, in.Params.SignalConfidence, in.Params.ExtentLength, in.Params.ExtentStep)

	container := record.NewContainer()
	for _, w := range windows {
		if !w.passesFilters(in.Params.PhotonCount, in.Params.AlongTrackSpread) {
			stats.ExtentsDropped++
			continue
		}
		counter := atomic.AddUint32(in.Counter, 1) - 1
		e := Extent{
			ExtentID:         MakeExtentID(in.Rgt, in.Cycle, in.Region, in.Track, in.Pair-1, counter, ClassElevation),
			Rgt:              in.Rgt,
			Cycle:            in.Cycle,
			Region:           in.Region,
			Track:            in.Track,
			Pair:             in.Pair,
			SegmentID:        tp.SegmentID[w.SegmentIdx],
			Latitude:         tp.Lat[w.SegmentIdx],
			Longitude:        tp.Lon[w.SegmentIdx],
			GPSTime:          tp.GPSTime[w.SegmentIdx],
			PhotonCount:      uint32(len(w.Photons)),
			AlongTrackSpread: w.spread(),
			Height:           meanHeight(w.Photons),
		}
		for _, p := range w.Photons {
			e.Photons = append(e.Photons, Photon{Height: p.Height, Confidence: p.Confidence})
		}

		rec, err := buildExtentRecord(in.ExtentDef, in.PhotonDef, e)
		if err != nil {
			return stats, newErr(KindOutOfMemory, in.Track, in.Pair, err)
		}
		serialized, err := rec.Serialize(nil, record.ModeCopy)
		if err != nil {
			return stats, newErr(KindOutOfMemory, in.Track, in.Pair, err)
		}
		container.Add(serialized)
		stats.ExtentsSent++

		if container.Len() >= in.Params.BatchSize {
			retried, err := postWithRetry(ctx, in.Output, container.Serialize())
			stats.ExtentsRetried += retried
			if err != nil {
				return stats, newErr(KindTimeout, in.Track, in.Pair, err)
			}
			container = record.NewContainer()
		}
	}
	if container.Len() > 0 {
		retried, err := postWithRetry(ctx, in.Output, container.Serialize())
		stats.ExtentsRetried += retried
		if err != nil {
			return stats, newErr(KindTimeout, in.Track, in.Pair, err)
		}
	}
	in.Log.Infof("worker gt%d%c: done, sent=%d dropped=%d retried=%d",
		in.Track, trackLetters[in.Pair-1], stats.ExtentsSent, stats.ExtentsDropped, stats.ExtentsRetried)
	return stats, nil
}

// postWithRetry posts payload to q, retrying on queue.ErrTimeout until
// ctx is done (spec.md §4.5 "retry loop on back-pressure timeout,
// counted separately from successful sends").
func postWithRetry(ctx context.Context, q *queue.Queue, payload []byte) (retried int, err error) {
	for {
		err = q.Post(ctx, payload)
		if err == nil {
			return retried, nil
		}
		if err != queue.ErrTimeout {
			return retried, err
		}
		retried++
		select {
		case <-ctx.Done():
			return retried, ctx.Err()
		default:
		}
	}
}

func meanHeight(photons []photonCandidate) float64 {
	if len(photons) == 0 {
		return 0
	}
	var sum float64
	for _, p := range photons {
		sum += p.Height
	}
	return sum / float64(len(photons))
}
