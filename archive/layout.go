package archive

import "encoding/binary"

// LayoutClass enumerates the storage layouts this reader supports
// (spec.md §6 "Only supported layouts: contiguous, chunked (B-tree v1
// indexed), compact").
type LayoutClass int

const (
	LayoutContiguous LayoutClass = iota
	LayoutChunked
	LayoutCompact
)

// Layout describes where and how a dataset's bytes are stored.
type Layout struct {
	Class      LayoutClass
	Address    uint64 // contiguous/chunked: file offset; unused for compact
	Size       uint64 // contiguous: byte length
	ChunkDims  []uint64
	CompactBuf []byte // compact: the data itself, embedded in the message
}

// parseDataspaceMessage decodes a Dataspace message into its
// per-dimension extents.
func parseDataspaceMessage(body []byte) ([]uint64, error) {
	if len(body) < 4 {
		return nil, nil
	}
	version := body[0]
	rank := int(body[1])
	flags := body[2]

	pos := 4
	if version == 1 {
		pos = 8 // v1 reserves 5 bytes after flags, padded
	}

	dims := make([]uint64, rank)
	for i := 0; i < rank; i++ {
		if pos+8 > len(body) {
			break
		}
		dims[i] = binary.LittleEndian.Uint64(body[pos:])
		pos += 8
	}

	if flags&0x01 != 0 {
		pos += 8 * rank // max dims present; not needed here
	}
	return dims, nil
}

// parseDataLayoutMessage decodes a Data Layout message (versions 3/4
// field order; version 1/2 legacy layouts are not produced by this
// module's archives and are treated as unsupported).
func parseDataLayoutMessage(body []byte, offsetSize, lengthSize int) (Layout, error) {
	if len(body) < 2 {
		return Layout{}, newErr(KindUnsupportedLayout, "", nil)
	}
	version := body[0]
	if version < 3 {
		return Layout{}, newErr(KindUnsupportedVersion, "", nil)
	}
	class := body[1]
	pos := 2

	switch class {
	case 0: // compact
		if pos+2 > len(body) {
			return Layout{}, newErr(KindUnsupportedLayout, "", nil)
		}
		size := int(binary.LittleEndian.Uint16(body[pos:]))
		pos += 2
		if pos+size > len(body) {
			return Layout{}, newErr(KindUnsupportedLayout, "", nil)
		}
		return Layout{Class: LayoutCompact, CompactBuf: body[pos : pos+size]}, nil

	case 1: // contiguous
		if pos+offsetSize+lengthSize > len(body) {
			return Layout{}, newErr(KindUnsupportedLayout, "", nil)
		}
		addr := readUint(body[pos:], offsetSize)
		pos += offsetSize
		size := readUint(body[pos:], lengthSize)
		return Layout{Class: LayoutContiguous, Address: addr, Size: size}, nil

	case 2: // chunked
		if pos+1 > len(body) {
			return Layout{}, newErr(KindUnsupportedLayout, "", nil)
		}
		rank := int(body[pos])
		pos++
		if pos+offsetSize > len(body) {
			return Layout{}, newErr(KindUnsupportedLayout, "", nil)
		}
		btreeAddr := readUint(body[pos:], offsetSize)
		pos += offsetSize

		dims := make([]uint64, rank)
		for i := 0; i < rank; i++ {
			if pos+4 > len(body) {
				break
			}
			dims[i] = uint64(binary.LittleEndian.Uint32(body[pos:]))
			pos += 4
		}
		return Layout{Class: LayoutChunked, Address: btreeAddr, ChunkDims: dims}, nil

	default:
		return Layout{}, newErr(KindUnsupportedLayout, "", nil)
	}
}
