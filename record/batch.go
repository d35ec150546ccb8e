package record

import "fmt"

// AppendBatch appends one fixed-size sub-record to the Record's Batch
// tail (spec.md §4.1's "variable tail of photon/elevation rows"; an
// extent record's Batch field holds one such tail per track). The
// Definition must have exactly one Batch field; row must be exactly
// that field's ExtType sub-record width, i.e. len(row) bytes are
// opaque to this package and interpreted only by the ExtType
// Definition's own Fields.
func (r *Record) AppendBatch(row []byte) error {
	f, ok := r.def.BatchField()
	if !ok {
		return newErr(KindUnknownType, "AppendBatch", "", fmt.Errorf("definition %s has no Batch field", r.def.TypeName))
	}
	if r.batchRowSize != 0 && len(row) != r.batchRowSize {
		return newErr(KindUndersizedBuffer, "AppendBatch", f.Name, fmt.Errorf("row width %d does not match prior rows %d", len(row), r.batchRowSize))
	}
	r.batchRowSize = len(row)
	cp := make([]byte, len(row))
	copy(cp, row)
	r.batch = append(r.batch, cp)
	return nil
}

// BatchLen returns the number of rows appended to the Record's Batch
// tail.
func (r *Record) BatchLen() int { return len(r.batch) }

// BatchRow returns the raw bytes of the i'th Batch row.
func (r *Record) BatchRow(i int) ([]byte, error) {
	if i < 0 || i >= len(r.batch) {
		return nil, newErr(KindOutOfRange, "BatchRow", "", nil)
	}
	return r.batch[i], nil
}
