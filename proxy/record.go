package proxy

import "github.com/orbitalpipe/granule-pipeline/record"

// buildExceptionRecord constructs one proxy.exception record
// (subset/extent.go's buildExtentRecord pattern: write through the
// schema's named setters rather than populating the layout struct
// directly).
func buildExceptionRecord(def *record.Definition, resource string, kind Kind, level uint32, text string) (*record.Record, error) {
	rec := record.NewRecord(def)
	if err := setFixedString(rec, def, "Resource", resource); err != nil {
		return nil, err
	}
	if err := rec.SetUint64("Kind", uint64(kind)); err != nil {
		return nil, err
	}
	if err := rec.SetUint64("Level", uint64(level)); err != nil {
		return nil, err
	}
	if err := setFixedString(rec, def, "Text", text); err != nil {
		return nil, err
	}
	return rec, nil
}
