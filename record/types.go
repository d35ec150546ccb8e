// Package record implements the typed record fabric (spec.md §4.1,
// component C1): a process-wide registry of record definitions, each
// describing a dictionary of named fields over a fixed-size byte
// buffer, plus serialization/deserialization and length-prefixed
// container records. Every other component in this module (subset,
// raster, sample, proxy) emits its output through this package so
// that stages never copy payloads between each other — only a
// *Record (or a queue.Ref around one) moves between goroutines.
//
// This is grounded directly on RecordObject.h/.cpp from the original
// C++ implementation this spec distills (see original_source/ in the
// retrieval pack): field_t{type,offset,elements,exttype,flags},
// serialMode_t{COPY,ALLOCATE,REFERENCE}, and the BIGENDIAN/POINTER/
// BATCH field flags are carried over under Go-idiomatic names.
package record

// FieldType enumerates the scalar and structural types a Field can
// carry, mirroring RecordObject::fieldType_t.
type FieldType int

const (
	Int8 FieldType = iota
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	BitField
	Time8 // float64 GPS seconds, see internal/gpstime
	String
	User // compound: bytes are opaque, ExtType names the nested Definition
	InvalidField
)

// ByteSize returns the storage width of a fixed-width scalar type, or
// 0 for variable-width / structural types (String, User, BitField).
func (t FieldType) ByteSize() int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64, Time8:
		return 8
	default:
		return 0
	}
}

// Flags are per-field behavior bits, mirroring fieldFlags_t plus the
// BATCH extension this spec's record fabric needs (spec.md §4.1 "a
// variable tail of photon/elevation rows") that original_source/'s
// RasterSampler.cpp models as RecordObject::BATCH.
type Flags uint32

const (
	// BigEndian marks a field whose multi-byte value is packed
	// big-endian. Per spec.md §4.1 all bit-fields are packed
	// big-endian regardless of host; BigEndian additionally applies
	// to plain scalar fields that opt into it.
	BigEndian Flags = 1 << iota
	// Pointer marks a field whose inline value is a byte offset from
	// the record base to the real value, dereferenced on read.
	Pointer
	// Batch marks the field carrying a variable-length tail of
	// ExtType sub-records (e.g. an extent's photon rows, a sample
	// list's per-tile samples). At most one Batch field per
	// Definition; it must be the last field in declaration order.
	Batch
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// Field describes one named member of a Definition.
type Field struct {
	Name      string
	Type      FieldType
	BitOffset int    // bit offset from the record data's start
	Elements  int    // array length; 1 for scalars, 0 for an unbounded Batch tail
	Flags     Flags
	ExtType   string // nested Definition name, for User and Batch fields
}

func (f Field) byteOffset() int { return f.BitOffset / 8 }
