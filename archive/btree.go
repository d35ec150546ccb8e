package archive

import "encoding/binary"

// chunkEntry is one leaf entry of a chunked dataset's B-tree v1 index:
// the chunk's byte size, filter mask (which pipeline steps were
// skipped for this particular chunk), its offset in each dimension,
// and its file address.
type chunkEntry struct {
	size       uint32
	filterMask uint32
	offsets    []uint64 // one per dataset dimension, plus a trailing element-size dimension
	addr       uint64
}

// walkChunkBTree enumerates every chunk reachable from the B-tree v1
// rooted at addr, recursing through internal nodes into leaves
// (node-type 1 trees, used for chunked-dataset indexing). rank is the
// dataset's dimensionality (chunk offset tuples carry rank+1 values,
// the trailing value always 0 and used only for datatype variants
// this reader does not need).
func walkChunkBTree(c *BlockCache, sb *superblock, addr uint64, rank int) ([]chunkEntry, error) {
	offsetSize := int(sb.offsetSize)
	lengthSize := int(sb.lengthSize)

	head, err := c.Read(int64(addr), 4)
	if err != nil {
		return nil, err
	}
	if string(head) != "TREE" {
		return nil, newErr(KindUnsupportedVersion, "", nil)
	}

	fixed, err := c.Read(int64(addr), 4+2+2+2*offsetSize)
	if err != nil {
		return nil, err
	}
	nodeLevel := fixed[5]
	numEntries := int(binary.LittleEndian.Uint16(fixed[6:8]))

	keySize := 8 + 8*rank // chunk size(4)+filter mask(4) + rank+1 offsets(8 each), minus the final
	keySize = 4 + 4 + 8*(rank+1)

	pos := int64(addr) + int64(4+2+2+2*offsetSize)

	// Keys and child pointers alternate (key 0, child 0, key 1, child 1,
	// ..., key N); key i describes child i.
	firstKeyLen := keySize
	body, err := c.Read(pos, firstKeyLen+numEntries*(offsetSize+keySize))
	if err != nil {
		return nil, err
	}

	var out []chunkEntry
	off := 0
	for i := 0; i < numEntries; i++ {
		if off+keySize+offsetSize > len(body) {
			break
		}
		keyBody := body[off : off+keySize]
		off += keySize

		childAddr := readUint(body[off:], offsetSize)
		off += offsetSize

		if nodeLevel == 0 {
			entry := parseChunkKey(keyBody, rank)
			entry.addr = childAddr
			out = append(out, entry)
		} else {
			children, err := walkChunkBTree(c, sb, childAddr, rank)
			if err != nil {
				return nil, err
			}
			out = append(out, children...)
		}
	}

	_ = lengthSize
	return out, nil
}

func parseChunkKey(body []byte, rank int) chunkEntry {
	size := binary.LittleEndian.Uint32(body[0:4])
	filterMask := binary.LittleEndian.Uint32(body[4:8])
	offsets := make([]uint64, rank+1)
	pos := 8
	for i := 0; i <= rank && pos+8 <= len(body); i++ {
		offsets[i] = binary.LittleEndian.Uint64(body[pos:])
		pos += 8
	}
	return chunkEntry{size: size, filterMask: filterMask, offsets: offsets}
}

// intersectsRow reports whether chunk e covers row index row along
// dimension 0 (the row-major axis every dataset this pipeline reads is
// sliced along), given the chunk's extent chunkRows along that
// dimension.
func (e chunkEntry) intersectsRow(row uint64, chunkRows uint64) bool {
	if len(e.offsets) == 0 {
		return false
	}
	start := e.offsets[0]
	return row >= start && row < start+chunkRows
}
