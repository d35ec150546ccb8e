package sample

import (
	"sort"

	"github.com/orbitalpipe/granule-pipeline/raster"
	"github.com/orbitalpipe/granule-pipeline/record"
)

// buildSampleRecord packs one plain raster.Sample into a fresh
// *record.Record of def's shape, tagged with the extent it was drawn
// for and the short key of the source it came from.
func buildSampleRecord(def *record.Definition, extentID uint64, sourceKey string, s raster.Sample) (*record.Record, error) {
	rec := record.NewRecord(def)
	if err := rec.SetUint64("ExtentID", extentID); err != nil {
		return nil, err
	}
	if err := setFixedString(rec, def, "SourceKey", sourceKey); err != nil {
		return nil, err
	}
	if err := setFixedString(rec, def, "GroupID", s.GroupID); err != nil {
		return nil, err
	}
	if err := setFixedString(rec, def, "URL", s.URL); err != nil {
		return nil, err
	}
	if err := rec.SetFloat64("Value", s.Value); err != nil {
		return nil, err
	}
	if err := rec.SetFloat64("Time", s.Time); err != nil {
		return nil, err
	}
	if err := rec.SetUint64("FileID", s.FileID); err != nil {
		return nil, err
	}
	if err := rec.SetUint64("Flags", uint64(s.Flags)); err != nil {
		return nil, err
	}
	return rec, nil
}

// buildZonalSampleRecord packs one raster.ZonalSample (the plain
// sample fields plus windowed statistics) into a fresh *record.Record
// of def's shape.
func buildZonalSampleRecord(def *record.Definition, extentID uint64, sourceKey string, z raster.ZonalSample) (*record.Record, error) {
	rec := record.NewRecord(def)
	if err := rec.SetUint64("ExtentID", extentID); err != nil {
		return nil, err
	}
	if err := setFixedString(rec, def, "SourceKey", sourceKey); err != nil {
		return nil, err
	}
	if err := setFixedString(rec, def, "GroupID", z.GroupID); err != nil {
		return nil, err
	}
	if err := setFixedString(rec, def, "URL", z.URL); err != nil {
		return nil, err
	}
	if err := rec.SetFloat64("Value", z.Value); err != nil {
		return nil, err
	}
	if err := rec.SetFloat64("Time", z.Time); err != nil {
		return nil, err
	}
	if err := rec.SetUint64("FileID", z.FileID); err != nil {
		return nil, err
	}
	if err := rec.SetUint64("Flags", uint64(z.Flags)); err != nil {
		return nil, err
	}
	if err := rec.SetUint64("Count", uint64(z.Count)); err != nil {
		return nil, err
	}
	if err := rec.SetFloat64("Min", z.Min); err != nil {
		return nil, err
	}
	if err := rec.SetFloat64("Max", z.Max); err != nil {
		return nil, err
	}
	if err := rec.SetFloat64("Mean", z.Mean); err != nil {
		return nil, err
	}
	if err := rec.SetFloat64("Median", z.Median); err != nil {
		return nil, err
	}
	if err := rec.SetFloat64("StdDev", z.StdDev); err != nil {
		return nil, err
	}
	if err := rec.SetFloat64("MAD", z.MAD); err != nil {
		return nil, err
	}
	return rec, nil
}

// buildFileDirectoryRecord packs one source's assigned file_id -> URL
// map into a fresh *record.Record of dirDef's shape, one Batch row per
// entry (subset/extent.go's buildExtentRecord's photon-batching
// pattern, reused here for file entries instead of photons). Entries
// are sorted by file_id for a deterministic wire encoding.
func buildFileDirectoryRecord(dirDef, entryDef *record.Definition, sourceKey string, directory map[uint64]string) (*record.Record, error) {
	rec := record.NewRecord(dirDef)
	if err := setFixedString(rec, dirDef, "SourceKey", sourceKey); err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(directory))
	for id := range directory {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		row := record.NewRecord(entryDef)
		if err := row.SetUint64("FileID", id); err != nil {
			return nil, err
		}
		if err := setFixedString(row, entryDef, "URL", directory[id]); err != nil {
			return nil, err
		}
		if err := rec.AppendBatch(row.Bytes()); err != nil {
			return nil, err
		}
	}
	return rec, nil
}
