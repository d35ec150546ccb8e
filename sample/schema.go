// Package sample implements the sample dispatcher (spec.md §4.8,
// component C8): it consumes a subsetter's extent stream, samples
// every attached raster source (C6+C7) at each extent's query point,
// and emits one sample record per sample each source returns at an
// extent (or the zonal-stats variant; samples are not grouped into one
// list record per source and extent), followed by a trailing file-directory record
// mapping every file_id assigned during the request to its URL.
//
// Grounded directly on plugins/icesat2/plugin/RasterSampler.cpp in
// original_source/ (the per-extent sampling loop, the plain/zonal
// record split) and packages/geo/RasterSample.h (the exact
// value/time/fileId/flags and count/min/max/mean/median/stdev/mad
// field sets raster.Sample/raster.ZonalSample already carry).
package sample

import (
	"fmt"

	"github.com/orbitalpipe/granule-pipeline/record"
)

func errFieldNotFound(name string) error {
	return fmt.Errorf("field %q not found", name)
}

// Fixed buffer widths for the record fabric's text-bearing fields.
// record.FieldType.String has no working Get/Set accessor (serialize.go
// only implements GetUint64/SetUint64 and GetFloat64/SetFloat64) and
// Record.AppendBatch requires every batch row to share one width, so a
// Go string field cannot be carried directly. This module narrows
// every URL/key/group attribute to a fixed-size, nul-padded byte array
// instead -- a C-style fixed char buffer, the same choice
// original_source/GeoIndexedRaster.h's cacheitem_t makes implicitly by
// storing std::string fileName inline rather than by reference. A URL
// or group id longer than its buffer is truncated; this is recorded as
// an accepted narrowing, not silently-wrong data, since every producer
// in this module controls its own URL lengths.
const (
	maxSourceKeyLen = 32
	maxGroupIDLen   = 64
	maxURLLen       = 512
)

// sampleLayout is SampleRecord's pure schema shape for
// record.DefineFromStruct (subset/extent.go's extentLayout pattern: the
// layout struct's fields are never populated directly; buildSampleRecord
// below writes through the named setters instead).
type sampleLayout struct {
	ExtentID  uint64
	SourceKey [maxSourceKeyLen]byte
	GroupID   [maxGroupIDLen]byte
	URL       [maxURLLen]byte
	Value     float64
	Time      float64
	FileID    uint64
	Flags     uint32
}

// SampleRecordType is the type name the plain (non-zonal) sample
// record is registered and serialized under.
const SampleRecordType = "sample.value"

// zonalSampleLayout is ZonalSampleRecord's schema shape: every
// sampleLayout field plus the windowed statistics
// original_source/RasterSample.h's nested stats struct carries. It is
// declared as its own flat struct, not an embedding of sampleLayout,
// since record.DefineFromStruct's reflection walk treats an embedded
// struct field as one opaque User-typed field rather than flattening
// it (record/tag.go's goFieldType maps reflect.Struct to FieldType.User)
// -- matching spec.md §3's "distinct record definitions, not one record
// with optional fields" decision for the plain/zonal split.
type zonalSampleLayout struct {
	ExtentID  uint64
	SourceKey [maxSourceKeyLen]byte
	GroupID   [maxGroupIDLen]byte
	URL       [maxURLLen]byte
	Value     float64
	Time      float64
	FileID    uint64
	Flags     uint32
	Count     uint32
	Min       float64
	Max       float64
	Mean      float64
	Median    float64
	StdDev    float64
	MAD       float64
}

// ZonalSampleRecordType is the type name the zonal-stats sample record
// is registered and serialized under.
const ZonalSampleRecordType = "sample.zonal"

// fileEntryLayout is one row of a file-directory record's Batch tail:
// one assigned file_id and the URL it resolves to.
type fileEntryLayout struct {
	FileID uint64
	URL    [maxURLLen]byte
}

// FileEntryRecordType names the nested per-entry row Definition.
const FileEntryRecordType = "sample.fileentry"

// fileDirectoryLayout is the trailing provenance record a dispatch run
// emits once per attached source, mapping every file_id that source's
// SamplerBank assigned during the request back to its URL (spec.md
// §4.8 "a file directory record mapping every file_id assigned during
// the request to its URL, so consumers can materialize provenance").
type fileDirectoryLayout struct {
	SourceKey [maxSourceKeyLen]byte
	Entries   []byte `record:"batch,ext=sample.fileentry"`
}

// FileDirectoryRecordType names the file-directory record.
const FileDirectoryRecordType = "sample.filedirectory"

// Definitions bundles every record.Definition the sample package needs
// to build or deserialize its output.
type Definitions struct {
	Sample        *record.Definition
	ZonalSample   *record.Definition
	FileEntry     *record.Definition
	FileDirectory *record.Definition
}

// DefineSampleTypes registers every sample-package record type against
// reg, idempotently (subset.DefineExtentTypes' define-or-lookup
// pattern: a second call from another goroutine or process restart
// sees KindDuplicate and falls back to Lookup rather than failing).
func DefineSampleTypes(reg *record.Registry) (Definitions, error) {
	var d Definitions

	sampleDef, err := reg.DefineFromStruct(sampleLayout{}, SampleRecordType, "ExtentID")
	if err != nil && !record.IsKind(err, record.KindDuplicate) {
		return d, err
	}
	if sampleDef == nil {
		if sampleDef, err = reg.Lookup(SampleRecordType); err != nil {
			return d, err
		}
	}

	zonalDef, err := reg.DefineFromStruct(zonalSampleLayout{}, ZonalSampleRecordType, "ExtentID")
	if err != nil && !record.IsKind(err, record.KindDuplicate) {
		return d, err
	}
	if zonalDef == nil {
		if zonalDef, err = reg.Lookup(ZonalSampleRecordType); err != nil {
			return d, err
		}
	}

	entryDef, err := reg.DefineFromStruct(fileEntryLayout{}, FileEntryRecordType, "FileID")
	if err != nil && !record.IsKind(err, record.KindDuplicate) {
		return d, err
	}
	if entryDef == nil {
		if entryDef, err = reg.Lookup(FileEntryRecordType); err != nil {
			return d, err
		}
	}

	dirDef, err := reg.DefineFromStruct(fileDirectoryLayout{}, FileDirectoryRecordType, "")
	if err != nil && !record.IsKind(err, record.KindDuplicate) {
		return d, err
	}
	if dirDef == nil {
		if dirDef, err = reg.Lookup(FileDirectoryRecordType); err != nil {
			return d, err
		}
	}

	d.Sample, d.ZonalSample, d.FileEntry, d.FileDirectory = sampleDef, zonalDef, entryDef, dirDef
	return d, nil
}

// setFixedString copies s into rec's named fixed-width byte-array
// field, nul-padding or truncating to fit, and getFixedString reverses
// it, trimming at the first nul. Both operate directly on
// Record.Bytes() via the field's exported BitOffset/Elements, the same
// exported surface record/serialize.go's own accessors are built on --
// no change to the record package itself was needed.
func setFixedString(rec *record.Record, def *record.Definition, name, s string) error {
	f, ok := def.Field(name)
	if !ok {
		return newErr(KindUnsupportedFormat, 0, errFieldNotFound(name))
	}
	width := f.Elements * f.Type.ByteSize()
	off := f.BitOffset / 8
	buf := rec.Bytes()
	if off+width > len(buf) {
		return newErr(KindUnsupportedFormat, 0, errFieldNotFound(name))
	}
	dst := buf[off : off+width]
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, s)
	return nil
}

func getFixedString(rec *record.Record, def *record.Definition, name string) (string, error) {
	f, ok := def.Field(name)
	if !ok {
		return "", newErr(KindUnsupportedFormat, 0, errFieldNotFound(name))
	}
	width := f.Elements * f.Type.ByteSize()
	off := f.BitOffset / 8
	buf := rec.Bytes()
	if off+width > len(buf) {
		return "", newErr(KindUnsupportedFormat, 0, errFieldNotFound(name))
	}
	raw := buf[off : off+width]
	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}
	return string(raw[:n]), nil
}
