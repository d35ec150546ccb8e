package sample

import (
	"context"

	"github.com/orbitalpipe/granule-pipeline/internal/xlog"
	"github.com/orbitalpipe/granule-pipeline/queue"
	"github.com/orbitalpipe/granule-pipeline/raster"
	"github.com/orbitalpipe/granule-pipeline/record"
)

// extent field names this dispatcher reads via the record fabric's
// typed lookup (spec.md §4.8 step 1 "extracts (extent_id, lon, lat,
// [gps_time], [height]) via the record fabric's typed field lookup").
// These name subset/extent.go's extentLayout fields by the wire
// contract the two packages share through the *record.Registry, not a
// Go import: sample has no package dependency on subset.
const (
	extentFieldID        = "ExtentID"
	extentFieldLongitude = "Longitude"
	extentFieldLatitude  = "Latitude"
	extentFieldGPSTime   = "GPSTime"
)

// outputBatchSize caps how many serialized sample records accumulate
// in one container before being posted, mirroring
// config.DefaultBatchSize's role for the subsetter's extent batches.
const outputBatchSize = 256

// bankHolder is satisfied by raster.IndexedRaster and raster.SingleRaster:
// both expose the SamplerBank backing them so Run can build each
// source's trailing file-directory record without the raster package
// needing to know about sample-package record shapes.
type bankHolder interface {
	Bank() *raster.SamplerBank
}

// Source pairs one attached raster source with the short key its
// samples are tagged under (spec.md §4.8 "keyed by extent_id and a
// short source key").
type Source struct {
	Key    string
	Raster raster.Raster
}

// Input bundles one sampling request's wiring: the shared registry
// (already carrying the extent record types a subsetter registered),
// the extent stream to consume, the queue samples are posted to, the
// request's attached raster sources, and the sampling options applied
// uniformly to every source (spec.md §6's sampling_algo/sampling_radius/
// zonal_stats knobs, translated from config.Parameters by the caller).
type Input struct {
	Reg     *record.Registry
	In      *queue.Subscriber
	Out     *queue.Queue
	Sources []Source
	Opts    raster.SampleOptions
	Log     *xlog.Logger
}

// Stats aggregates one dispatch run's counters.
type Stats struct {
	ExtentsProcessed int
	ExtentsFailed    int
	SamplesSent      int
}

// Run consumes in.In's extent stream until its terminator, samples
// every attached source at each extent's query point, and posts one
// sample record per sample a source returns (the zonal variant when
// in.Opts.Zonal is set) to in.Out; the samples of one source at one
// extent are separate records, not one list record. Once the stream ends it posts one
// file-directory record per source carrying a bank (spec.md §4.8 step
// "on termination, emits a file directory record ... so consumers can
// materialize provenance"), then the stream's own terminator. A
// per-extent per-source sampling failure is logged and skipped; it
// never fails the run, matching raster.SamplerBank.Sample's own
// per-tile failure isolation.
func Run(ctx context.Context, in Input) (Stats, error) {
	var stats Stats

	defs, err := DefineSampleTypes(in.Reg)
	if err != nil {
		return stats, err
	}

	out := record.NewContainer()
	flush := func() error {
		if out.Len() == 0 {
			return nil
		}
		if err := postWithRetry(ctx, in.Out, out.Serialize()); err != nil {
			return err
		}
		out = record.NewContainer()
		return nil
	}

consume:
	for {
		ref, err := in.In.ReceiveRef(ctx)
		if err != nil {
			return stats, newErr(KindTimeout, 0, err)
		}
		if ref.IsTerminator() {
			ref.Dereference()
			break consume
		}
		payload := ref.Payload()
		container, cerr := record.ParseContainer(payload)
		ref.Dereference()
		if cerr != nil {
			return stats, newErr(KindUnsupportedFormat, 0, cerr)
		}

		for _, raw := range container.Parts() {
			rec, derr := record.Deserialize(in.Reg, raw)
			if derr != nil {
				stats.ExtentsFailed++
				in.Log.Warnf("sample: deserializing extent: %v", derr)
				continue
			}
			if err := dispatchExtent(ctx, in, defs, rec, out, &stats); err != nil {
				return stats, err
			}
			if out.Len() >= outputBatchSize {
				if err := flush(); err != nil {
					return stats, newErr(KindTimeout, 0, err)
				}
			}
		}
	}

	if err := flush(); err != nil {
		return stats, newErr(KindTimeout, 0, err)
	}

	if err := postFileDirectories(ctx, in, defs); err != nil {
		return stats, err
	}

	if err := in.Out.PostTerminator(); err != nil {
		return stats, newErr(KindTimeout, 0, err)
	}
	return stats, nil
}

// dispatchExtent extracts one extent's query point, samples every
// attached source, and adds the resulting sample/zonal records to out.
func dispatchExtent(ctx context.Context, in Input, defs Definitions, rec *record.Record, out *record.Container, stats *Stats) error {
	extentID, _ := rec.GetUint64(extentFieldID)
	lon, err := rec.GetFloat64(extentFieldLongitude)
	if err != nil {
		stats.ExtentsFailed++
		return nil
	}
	lat, err := rec.GetFloat64(extentFieldLatitude)
	if err != nil {
		stats.ExtentsFailed++
		return nil
	}
	gpsTime, _ := rec.GetFloat64(extentFieldGPSTime)
	stats.ExtentsProcessed++

	for _, src := range in.Sources {
		samples, zonal, serr := src.Raster.GetSamples(ctx, lon, lat, gpsTime, in.Opts)
		if serr != nil {
			in.Log.Warnf("sample: source %s: extent %d: %v", src.Key, extentID, serr)
			continue
		}
		if in.Opts.Zonal {
			for _, z := range zonal {
				row, err := buildZonalSampleRecord(defs.ZonalSample, extentID, src.Key, z)
				if err != nil {
					return newErr(KindOutOfMemory, extentID, err)
				}
				serialized, err := row.Serialize(nil, record.ModeCopy)
				if err != nil {
					return newErr(KindOutOfMemory, extentID, err)
				}
				out.Add(serialized)
				stats.SamplesSent++
			}
			continue
		}
		for _, s := range samples {
			row, err := buildSampleRecord(defs.Sample, extentID, src.Key, s)
			if err != nil {
				return newErr(KindOutOfMemory, extentID, err)
			}
			serialized, err := row.Serialize(nil, record.ModeCopy)
			if err != nil {
				return newErr(KindOutOfMemory, extentID, err)
			}
			out.Add(serialized)
			stats.SamplesSent++
		}
	}
	return nil
}

// postFileDirectories builds and posts one file-directory record per
// source that exposes a SamplerBank (sources sharing one bank each
// still get their own record, tagged by their own key, since a sample
// record's provenance is read per source_key).
func postFileDirectories(ctx context.Context, in Input, defs Definitions) error {
	container := record.NewContainer()
	for _, src := range in.Sources {
		holder, ok := src.Raster.(bankHolder)
		if !ok {
			continue
		}
		bank := holder.Bank()
		if bank == nil {
			continue
		}
		rec, err := buildFileDirectoryRecord(defs.FileDirectory, defs.FileEntry, src.Key, bank.FileDirectory())
		if err != nil {
			return newErr(KindOutOfMemory, 0, err)
		}
		serialized, err := rec.Serialize(nil, record.ModeCopy)
		if err != nil {
			return newErr(KindOutOfMemory, 0, err)
		}
		container.Add(serialized)
	}
	if container.Len() == 0 {
		return nil
	}
	if err := postWithRetry(ctx, in.Out, container.Serialize()); err != nil {
		return newErr(KindTimeout, 0, err)
	}
	return nil
}

// postWithRetry posts payload to q, retrying on queue.ErrTimeout until
// ctx is done (subset/worker.go's postWithRetry, duplicated here since
// it closes over sample's own stats-free signature and sample has no
// dependency on subset).
func postWithRetry(ctx context.Context, q *queue.Queue, payload []byte) error {
	for {
		err := q.Post(ctx, payload)
		if err == nil {
			return nil
		}
		if err != queue.ErrTimeout {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
