package record

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Mode selects how a Record's backing buffer relates to the bytes it
// was built from, mirroring RecordObject::serialMode_t.
type Mode int

const (
	// ModeCopy duplicates the source bytes into a new buffer owned by
	// the Record.
	ModeCopy Mode = iota
	// ModeAllocate allocates a fresh zeroed buffer sized for the
	// Definition, ignoring any source bytes.
	ModeAllocate
	// ModeReference aliases the source buffer directly; the caller
	// must keep it alive and unmodified for the Record's lifetime.
	ModeReference
)

// Record is one live instance of a Definition: a type-name prefix plus
// a data buffer, with field-level accessors. Concurrent field access
// on the same Record is not safe; callers that share a Record across
// goroutines must synchronize externally (spec.md §5 "a Record is a
// single-writer value once dispatched").
type Record struct {
	def *Definition
	buf []byte // fixed-size data only, not the type-name prefix

	batch        [][]byte // Batch field tail rows, if def has a Batch field
	batchRowSize int      // width of each row once the first is appended
}

// NewRecord allocates a zeroed Record for def.
func NewRecord(def *Definition) *Record {
	return &Record{def: def, buf: make([]byte, def.DataSize)}
}

// Definition returns the Record's Definition.
func (r *Record) Definition() *Definition { return r.def }

// Bytes returns the Record's raw data buffer, excluding the type-name
// prefix. Mutating the returned slice mutates the Record under
// ModeReference.
func (r *Record) Bytes() []byte { return r.buf }

// Serialize writes the type-name prefix (null-terminated), the
// Record's fixed data buffer, and — if the Definition has a Batch
// field — an 8-byte (row size, row count) header followed by the
// batch rows, to dst. ModeCopy and ModeAllocate both return a buffer
// independent of dst; ModeReference reuses dst directly when it is
// already exactly sized.
func (r *Record) Serialize(dst []byte, mode Mode) ([]byte, error) {
	prefixLen := len(r.def.TypeName) + 1
	total := prefixLen + len(r.buf)
	hasBatch := false
	if _, ok := r.def.BatchField(); ok {
		hasBatch = true
		total += 8 + r.batchRowSize*len(r.batch)
	}

	switch mode {
	case ModeReference:
		if len(dst) != total {
			return nil, newErr(KindUndersizedBuffer, "Serialize", "", fmt.Errorf("need %d bytes, got %d", total, len(dst)))
		}
	default:
		dst = make([]byte, total)
	}

	copy(dst, r.def.TypeName)
	dst[len(r.def.TypeName)] = 0
	pos := prefixLen
	copy(dst[pos:], r.buf)
	pos += len(r.buf)

	if hasBatch {
		binary.BigEndian.PutUint32(dst[pos:], uint32(r.batchRowSize))
		pos += 4
		binary.BigEndian.PutUint32(dst[pos:], uint32(len(r.batch)))
		pos += 4
		for _, row := range r.batch {
			copy(dst[pos:], row)
			pos += len(row)
		}
	}
	return dst, nil
}

// Deserialize reads a type-name-prefixed buffer back into a Record,
// looking up its Definition in reg. The type-name prefix in buf must
// match the looked-up Definition's name byte-for-byte; any mismatch
// (wrong prefix, unterminated buffer) is a KindUnknownType error.
func Deserialize(reg *Registry, buf []byte) (*Record, error) {
	nul := -1
	for i, b := range buf {
		if b == 0 {
			nul = i
			break
		}
	}
	if nul < 0 {
		return nil, newErr(KindUnknownType, "Deserialize", "", fmt.Errorf("buffer has no type-name terminator"))
	}

	typeName := string(buf[:nul])
	def, err := reg.Lookup(typeName)
	if err != nil {
		return nil, newErr(KindUnknownType, "Deserialize", "", err)
	}

	data := buf[nul+1:]
	if len(data) < def.DataSize {
		return nil, newErr(KindUndersizedBuffer, "Deserialize", "", fmt.Errorf("need %d data bytes, got %d", def.DataSize, len(data)))
	}

	out := &Record{def: def, buf: make([]byte, def.DataSize)}
	copy(out.buf, data[:def.DataSize])

	if _, ok := def.BatchField(); ok {
		tail := data[def.DataSize:]
		if len(tail) < 8 {
			return nil, newErr(KindUndersizedBuffer, "Deserialize", "", fmt.Errorf("truncated batch header"))
		}
		rowSize := int(binary.BigEndian.Uint32(tail))
		count := int(binary.BigEndian.Uint32(tail[4:]))
		tail = tail[8:]
		need := rowSize * count
		if len(tail) < need {
			return nil, newErr(KindUndersizedBuffer, "Deserialize", "", fmt.Errorf("truncated batch rows: need %d, got %d", need, len(tail)))
		}
		out.batchRowSize = rowSize
		out.batch = make([][]byte, count)
		for i := 0; i < count; i++ {
			row := make([]byte, rowSize)
			copy(row, tail[i*rowSize:(i+1)*rowSize])
			out.batch[i] = row
		}
	}

	return out, nil
}

// GetUint64 reads an unsigned integer (or bit-field) field, regardless
// of its declared width, promoted to uint64. Bit-fields and fields
// flagged BigEndian are unpacked big-endian; other scalar fields are
// unpacked little-endian.
func (r *Record) GetUint64(name string) (uint64, error) {
	f, ok := r.def.Field(name)
	if !ok {
		return 0, newErr(KindNotFound, "GetUint64", name, nil)
	}

	if f.Type == BitField {
		return r.getBits(f)
	}

	width := f.Type.ByteSize()
	off := f.byteOffset()
	if off+width > len(r.buf) {
		return 0, newErr(KindOutOfRange, "GetUint64", name, nil)
	}
	raw := r.buf[off : off+width]

	var order binary.ByteOrder = binary.BigEndian
	if !f.Flags.has(BigEndian) {
		order = binary.LittleEndian
	}

	switch width {
	case 1:
		return uint64(raw[0]), nil
	case 2:
		return uint64(order.Uint16(raw)), nil
	case 4:
		return uint64(order.Uint32(raw)), nil
	case 8:
		return order.Uint64(raw), nil
	default:
		return 0, newErr(KindUnknownType, "GetUint64", name, nil)
	}
}

// SetUint64 writes v into field name, packing per its declared width,
// endianness, and (for BitField) bit offset/width.
func (r *Record) SetUint64(name string, v uint64) error {
	f, ok := r.def.Field(name)
	if !ok {
		return newErr(KindNotFound, "SetUint64", name, nil)
	}

	if f.Type == BitField {
		return r.setBits(f, v)
	}

	width := f.Type.ByteSize()
	off := f.byteOffset()
	if off+width > len(r.buf) {
		return newErr(KindOutOfRange, "SetUint64", name, nil)
	}
	raw := r.buf[off : off+width]

	var order binary.ByteOrder = binary.BigEndian
	if !f.Flags.has(BigEndian) {
		order = binary.LittleEndian
	}

	switch width {
	case 1:
		raw[0] = byte(v)
	case 2:
		order.PutUint16(raw, uint16(v))
	case 4:
		order.PutUint32(raw, uint32(v))
	case 8:
		order.PutUint64(raw, v)
	default:
		return newErr(KindUnknownType, "SetUint64", name, nil)
	}
	return nil
}

// GetFloat64 reads a Float32 or Float64 field, promoted to float64.
func (r *Record) GetFloat64(name string) (float64, error) {
	f, ok := r.def.Field(name)
	if !ok {
		return 0, newErr(KindNotFound, "GetFloat64", name, nil)
	}
	bits, err := r.GetUint64(name)
	if err != nil {
		return 0, err
	}
	switch f.Type {
	case Float32:
		return float64(math.Float32frombits(uint32(bits))), nil
	case Float64, Time8:
		return math.Float64frombits(bits), nil
	default:
		return 0, newErr(KindUnknownType, "GetFloat64", name, nil)
	}
}

// SetFloat64 writes v into a Float32 or Float64 field, narrowing as
// needed.
func (r *Record) SetFloat64(name string, v float64) error {
	f, ok := r.def.Field(name)
	if !ok {
		return newErr(KindNotFound, "SetFloat64", name, nil)
	}
	switch f.Type {
	case Float32:
		return r.SetUint64(name, uint64(math.Float32bits(float32(v))))
	case Float64, Time8:
		return r.SetUint64(name, math.Float64bits(v))
	default:
		return newErr(KindUnknownType, "SetFloat64", name, nil)
	}
}

// bitWidth returns the number of value bits a bit-field occupies,
// taken from Field.Elements (bit-fields repurpose Elements as a bit
// width rather than an array length, matching RecordObject's packing
// of sub-byte flags).
func bitWidth(f Field) int {
	if f.Elements <= 0 || f.Elements > 64 {
		return 64
	}
	return f.Elements
}

// getBits reads a big-endian-packed bit-field spanning f.BitOffset for
// bitWidth(f) bits, independent of byte alignment.
func (r *Record) getBits(f Field) (uint64, error) {
	width := bitWidth(f)
	startByte := f.BitOffset / 8
	endByte := (f.BitOffset + width + 7) / 8
	if endByte > len(r.buf) {
		return 0, newErr(KindOutOfRange, "getBits", f.Name, nil)
	}

	var acc uint64
	for _, b := range r.buf[startByte:endByte] {
		acc = acc<<8 | uint64(b)
	}

	totalBits := (endByte - startByte) * 8
	shift := totalBits - (f.BitOffset-startByte*8) - width
	mask := uint64(1)<<uint(width) - 1
	if width == 64 {
		mask = math.MaxUint64
	}
	return (acc >> uint(shift)) & mask, nil
}

// setBits writes v (masked to bitWidth(f) bits) into a big-endian-
// packed bit-field, leaving surrounding bits untouched.
func (r *Record) setBits(f Field, v uint64) error {
	width := bitWidth(f)
	startByte := f.BitOffset / 8
	endByte := (f.BitOffset + width + 7) / 8
	if endByte > len(r.buf) {
		return newErr(KindOutOfRange, "setBits", f.Name, nil)
	}

	var acc uint64
	for _, b := range r.buf[startByte:endByte] {
		acc = acc<<8 | uint64(b)
	}

	totalBits := (endByte - startByte) * 8
	shift := totalBits - (f.BitOffset-startByte*8) - width
	mask := uint64(1)<<uint(width) - 1
	if width == 64 {
		mask = math.MaxUint64
	}
	acc = (acc &^ (mask << uint(shift))) | ((v & mask) << uint(shift))

	for i := endByte - startByte - 1; i >= 0; i-- {
		r.buf[startByte+i] = byte(acc)
		acc >>= 8
	}
	return nil
}

// Deref follows a Pointer field: it reads the field's inline value as
// a byte offset from the Record's data start and returns the data
// bytes starting there. A zero offset on a Pointer field is
// KindBadNullPointer unless allowNull is set, matching
// RecordObject::getPointer's refusal to dereference an unset pointer
// by default.
func (r *Record) Deref(name string, allowNull bool) ([]byte, error) {
	f, ok := r.def.Field(name)
	if !ok {
		return nil, newErr(KindNotFound, "Deref", name, nil)
	}
	if !f.Flags.has(Pointer) {
		return nil, newErr(KindUnknownType, "Deref", name, fmt.Errorf("field is not a Pointer"))
	}

	off, err := r.GetUint64(name)
	if err != nil {
		return nil, err
	}
	if off == 0 {
		if allowNull {
			return nil, nil
		}
		return nil, newErr(KindBadNullPointer, "Deref", name, nil)
	}
	if int(off) >= len(r.buf) {
		return nil, newErr(KindOutOfRange, "Deref", name, nil)
	}
	return r.buf[off:], nil
}
