package archive

import "encoding/binary"

// Class enumerates the datatype classes this reader maps to Go types
// (spec.md §4.3 "Datatype mapping").
type Class int

const (
	ClassFixedPoint Class = iota
	ClassFloatingPoint
	ClassString
	ClassCompound
)

// Datatype describes one dataset's element encoding.
type Datatype struct {
	Class        Class
	Size         int // bytes per element
	Signed       bool
	BigEndian    bool
	CompoundName string // set for ClassCompound; carries the schema name so bytes stay opaque
}

// parseDatatypeMessage decodes a Datatype message body into a
// Datatype (spec.md §4.3: "Fixed-point of width 8/16/32/64 → signed or
// unsigned integer... floating-point of width 32/64 → native
// float/double; strings → zero-terminated bytes; compound → leave
// bytes opaque, carry schema... Endianness from the datatype
// message").
func parseDatatypeMessage(body []byte) (Datatype, error) {
	if len(body) < 8 {
		return Datatype{}, newErr(KindUnsupportedVersion, "", nil)
	}
	classAndVersion := body[0]
	class := classAndVersion & 0x0F
	bitField0 := body[1]
	size := int(binary.LittleEndian.Uint32(body[4:8]))

	dt := Datatype{Size: size}

	switch class {
	case 0: // fixed-point
		dt.Class = ClassFixedPoint
		dt.Signed = bitField0&0x08 != 0
		dt.BigEndian = bitField0&0x01 != 0
	case 1: // floating-point
		dt.Class = ClassFloatingPoint
		dt.BigEndian = bitField0&0x01 != 0
	case 3: // string
		dt.Class = ClassString
	case 6: // compound
		dt.Class = ClassCompound
		dt.CompoundName = "compound" // nested member parsing not required: bytes stay opaque
	default:
		dt.Class = ClassCompound
		dt.CompoundName = "unknown"
	}

	return dt, nil
}

// GoKind reports the record.FieldType this Datatype maps onto, for
// components (subset) that want to embed archive values directly into
// typed record fields.
func (dt Datatype) GoKind() string {
	switch dt.Class {
	case ClassFixedPoint:
		switch {
		case dt.Size == 1 && dt.Signed:
			return "int8"
		case dt.Size == 1:
			return "uint8"
		case dt.Size == 2 && dt.Signed:
			return "int16"
		case dt.Size == 2:
			return "uint16"
		case dt.Size == 4 && dt.Signed:
			return "int32"
		case dt.Size == 4:
			return "uint32"
		case dt.Size == 8 && dt.Signed:
			return "int64"
		default:
			return "uint64"
		}
	case ClassFloatingPoint:
		if dt.Size == 4 {
			return "float32"
		}
		return "float64"
	case ClassString:
		return "string"
	default:
		return "compound"
	}
}
