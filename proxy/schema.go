package proxy

import (
	"github.com/orbitalpipe/granule-pipeline/record"
)

// Fixed buffer widths for the exception record's text-bearing fields,
// the same fixed-byte-array narrowing sample/schema.go documents in
// full (record.FieldType.String has no working accessor and
// Record.AppendBatch needs a uniform row width; neither applies to a
// lone record here, but the fixed-width convention is kept for
// consistency with the rest of the record fabric's types).
const (
	maxResourceLen      = 256
	maxExceptionTextLen = 512
)

// exceptionLayout is ExceptionRecord's schema shape (spec.md §5
// "Propagation policy": a worker-local I/O error is surfaced as "a
// structured exception record with (code, level, text)" on the
// request's output queue rather than aborting the request).
type exceptionLayout struct {
	Resource [maxResourceLen]byte
	Kind     uint32
	Level    uint32
	Text     [maxExceptionTextLen]byte
}

// ExceptionRecordType names the exception record.
const ExceptionRecordType = "proxy.exception"

// Definitions bundles the record.Definition the proxy package needs.
type Definitions struct {
	Exception *record.Definition
}

// DefineProxyTypes registers the exception record against reg,
// idempotently (subset.DefineExtentTypes' define-or-lookup pattern).
func DefineProxyTypes(reg *record.Registry) (Definitions, error) {
	var d Definitions
	def, err := reg.DefineFromStruct(exceptionLayout{}, ExceptionRecordType, "")
	if err != nil && !record.IsKind(err, record.KindDuplicate) {
		return d, err
	}
	if def == nil {
		if def, err = reg.Lookup(ExceptionRecordType); err != nil {
			return d, err
		}
	}
	d.Exception = def
	return d, nil
}

// setFixedString and getFixedString duplicate sample/schema.go's
// helpers of the same name rather than importing them, to keep proxy
// from depending on sample for a two-function utility.
func setFixedString(rec *record.Record, def *record.Definition, name, s string) error {
	f, ok := def.Field(name)
	if !ok {
		return newErr(KindResourceMissing, "", errFieldNotFound(name))
	}
	width := f.Elements * f.Type.ByteSize()
	off := f.BitOffset / 8
	buf := rec.Bytes()
	if off+width > len(buf) {
		return newErr(KindResourceMissing, "", errFieldNotFound(name))
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
		return "", newErr(KindResourceMissing, "", errFieldNotFound(name))
	}
	width := f.Elements * f.Type.ByteSize()
	off := f.BitOffset / 8
	buf := rec.Bytes()
	if off+width > len(buf) {
		return "", newErr(KindResourceMissing, "", errFieldNotFound(name))
	}
	raw := buf[off : off+width]
	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}
	return string(raw[:n]), nil
}

func errFieldNotFound(name string) error {
	return &fieldNotFoundError{name: name}
}

type fieldNotFoundError struct{ name string }

func (e *fieldNotFoundError) Error() string { return "field " + e.name + " not found" }
