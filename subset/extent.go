// Package subset implements the per-granule subsetter (spec.md §4.5,
// component C5): one worker per ground-track pair, each joining a
// handful of lazy array handles from the archive reader, applying a
// region/quality filter, and emitting batches of fixed-width extent
// records through the record fabric and pub/sub queue.
//
// Grounded directly on plugins/icesat2/plugin/Atl06Reader.cpp in
// original_source/ (the per-(track,pair) subsettingThread loop, its
// Region::rasterregion/polyregion inclusion walk, its batch-and-post
// loop with retry-on-timeout) and on the teacher's pond usage in
// cmd/main.go (convert_gsf_list's fixed worker pool) for the
// concurrency idiom.
package subset

import "github.com/orbitalpipe/granule-pipeline/record"

// ExtentClass tags what kind of payload an extent_id refers to,
// mirroring original_source/Icesat2Parms.h's EXTENT_ID_* flags folded
// into the low bits of the id.
type ExtentClass uint8

const (
	ClassElevation ExtentClass = 1
	ClassPhoton    ExtentClass = 2
)

// ExtentID bit widths (spec.md §3 "extent_id bit-layout: rgt(10) |
// cycle(8) | region(8) | track(2) | pair(1) | counter(30) | class(5)").
const (
	rgtBits     = 10
	cycleBits   = 8
	regionBits  = 8
	trackBits   = 2
	pairBits    = 1
	counterBits = 30
	classBits   = 5

	classShift   = 0
	counterShift = classShift + classBits
	pairShift    = counterShift + counterBits
	trackShift   = pairShift + pairBits
	regionShift  = trackShift + trackBits
	cycleShift   = regionShift + regionBits
	rgtShift     = cycleShift + cycleBits
)

func mask(bits int) uint64 { return (uint64(1) << bits) - 1 }

// MakeExtentID packs the granule-global (rgt, cycle, region) with the
// per-worker (track, pair), a monotonically increasing per-(track,
// pair) counter, and a payload class into one 64-bit id. Equality of
// everything but counter defines "same granule + same track" (spec.md
// §3).
func MakeExtentID(rgt, cycle, region, track, pair int, counter uint32, class ExtentClass) uint64 {
	return uint64(rgt)&mask(rgtBits)<<rgtShift |
		uint64(cycle)&mask(cycleBits)<<cycleShift |
		uint64(region)&mask(regionBits)<<regionShift |
		uint64(track)&mask(trackBits)<<trackShift |
		uint64(pair)&mask(pairBits)<<pairShift |
		uint64(counter)&mask(counterBits)<<counterShift |
		uint64(class)&mask(classBits)<<classShift
}

// ExtentIDPrefix masks out the counter, leaving the bits that identify
// "same granule + same track" per spec.md §3.
func ExtentIDPrefix(id uint64) uint64 {
	return id &^ (mask(counterBits) << counterShift)
}

// SplitExtentID reverses MakeExtentID, for tests and diagnostics.
func SplitExtentID(id uint64) (rgt, cycle, region, track, pair int, counter uint32, class ExtentClass) {
	rgt = int(id >> rgtShift & mask(rgtBits))
	cycle = int(id >> cycleShift & mask(cycleBits))
	region = int(id >> regionShift & mask(regionBits))
	track = int(id >> trackShift & mask(trackBits))
	pair = int(id >> pairShift & mask(pairBits))
	counter = uint32(id >> counterShift & mask(counterBits))
	class = ExtentClass(id >> classShift & mask(classBits))
	return
}

// extentLayout is a pure schema shape for record.DefineFromStruct;
// its field values are never populated directly (buildExtentRecord
// below writes through the named setters instead, same separation
// the record fabric's tag.go/serialize.go already keep between layout
// and data).
type extentLayout struct {
	ExtentID         uint64
	Rgt              uint16
	Cycle            uint16
	Region           uint16
	Track            uint8
	Pair             uint8
	SegmentID        uint32
	Latitude         float64
	Longitude        float64
	GPSTime          float64
	QualityFlags     uint32
	PhotonCount      uint32
	AlongTrackSpread float64
	Height           float64
	Photons          []byte `record:"batch,ext=subset.photon"`
}

// ExtentRecordType is the type name extent batch records are
// registered and serialized under.
const ExtentRecordType = "subset.extent"

// photonLayout is one row of an extent's Batch-flagged photon tail.
type photonLayout struct {
	Height     float64
	Confidence uint8
}

// PhotonRecordType names the nested per-photon row Definition.
const PhotonRecordType = "subset.photon"

// DefineExtentTypes registers ExtentRecordType and PhotonRecordType
// against reg, idempotently. Every package constructing extents calls
// this before building one.
func DefineExtentTypes(reg *record.Registry) (*record.Definition, *record.Definition, error) {
	photonDef, err := reg.DefineFromStruct(photonLayout{}, PhotonRecordType, "")
	if err != nil && !record.IsKind(err, record.KindDuplicate) {
		return nil, nil, err
	}
	if photonDef == nil {
		photonDef, err = reg.Lookup(PhotonRecordType)
		if err != nil {
			return nil, nil, err
		}
	}

	extentDef, err := reg.DefineFromStruct(extentLayout{}, ExtentRecordType, "ExtentID")
	if err != nil && !record.IsKind(err, record.KindDuplicate) {
		return nil, nil, err
	}
	if extentDef == nil {
		extentDef, err = reg.Lookup(ExtentRecordType)
		if err != nil {
			return nil, nil, err
		}
	}
	return extentDef, photonDef, nil
}

// Photon is one along-track elevation measurement considered when
// forming an extent.
type Photon struct {
	Height     float64
	Confidence uint8
}

// Extent is the in-memory form of one subsetter output row, before
// it's packed into a *record.Record for batching.
type Extent struct {
	ExtentID         uint64
	Rgt              int
	Cycle            int
	Region           int
	Track            int
	Pair             int
	SegmentID        uint32
	Latitude         float64
	Longitude        float64
	GPSTime          float64
	QualityFlags     uint32
	PhotonCount      uint32
	AlongTrackSpread float64
	Height           float64
	Photons          []Photon
}

// buildExtentRecord packs e into a fresh *record.Record of def's
// shape, including its photon batch tail.
func buildExtentRecord(def *record.Definition, photonDef *record.Definition, e Extent) (*record.Record, error) {
	rec := record.NewRecord(def)
	rec.SetUint64("ExtentID", e.ExtentID)
	rec.SetUint64("Rgt", uint64(e.Rgt))
	rec.SetUint64("Cycle", uint64(e.Cycle))
	rec.SetUint64("Region", uint64(e.Region))
	rec.SetUint64("Track", uint64(e.Track))
	rec.SetUint64("Pair", uint64(e.Pair))
	rec.SetUint64("SegmentID", uint64(e.SegmentID))
	rec.SetFloat64("Latitude", e.Latitude)
	rec.SetFloat64("Longitude", e.Longitude)
	rec.SetFloat64("GPSTime", e.GPSTime)
	rec.SetUint64("QualityFlags", uint64(e.QualityFlags))
	rec.SetUint64("PhotonCount", uint64(e.PhotonCount))
	rec.SetFloat64("AlongTrackSpread", e.AlongTrackSpread)
	rec.SetFloat64("Height", e.Height)

	for _, p := range e.Photons {
		row := record.NewRecord(photonDef)
		row.SetFloat64("Height", p.Height)
		row.SetUint64("Confidence", uint64(p.Confidence))
		if err := rec.AppendBatch(row.Bytes()); err != nil {
			return nil, err
		}
	}
	return rec, nil
}
