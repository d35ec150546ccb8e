package archive

import "encoding/binary"

// Signature is the 8-byte magic every archive begins with (spec.md
// §6).
var Signature = [8]byte{0x89, 0x48, 0x44, 0x46, 0x0D, 0x0A, 0x1A, 0x0A}

// superblock carries the handful of fields the rest of the reader
// needs: where the root group's object header lives and how wide
// on-disk offsets/lengths are (spec.md §6 "Sizes of offsets/lengths
// come from the superblock").
type superblock struct {
	version        uint8
	offsetSize     uint8
	lengthSize     uint8
	rootHeaderAddr uint64
}

// readSuperblock parses the fixed-format superblock starting at
// offset 0. Versions 0-3 share the signature and version byte; this
// reader supports the fields common across them (offset/length
// widths, root group symbol-table or object-header address) and does
// not interpret superblock extension messages, which this module's
// datasets never require.
func readSuperblock(c *BlockCache) (*superblock, error) {
	head, err := c.Read(0, 24)
	if err != nil {
		return nil, err
	}
	for i := range Signature {
		if head[i] != Signature[i] {
			return nil, newErr(KindBadSignature, "", nil)
		}
	}

	version := head[8]
	if version > 3 {
		return nil, newErr(KindUnsupportedVersion, "", nil)
	}

	sb := &superblock{version: version}

	switch {
	case version <= 1:
		// offset 13: offset size, 14: length size; root symbol table
		// entry begins at a fixed offset after the fixed fields.
		sb.offsetSize = head[13]
		sb.lengthSize = head[14]
		fixedEnd := 24
		if version == 1 {
			fixedEnd = 24 + 4 // indexed-storage internal node K, reserved
		}
		width := int(sb.offsetSize)
		rest, err := c.Read(int64(fixedEnd), width*4+4+2)
		if err != nil {
			return nil, err
		}
		// base address, free-space address, eof address, driver info
		// address, then the root symbol-table entry's link name offset
		// (width bytes) before the object header address (width bytes).
		pos := width * 4
		rootEntryOff := fixedEnd + pos + width // skip to object-header field of the symbol table entry
		rootHeader, err := c.Read(int64(rootEntryOff), width)
		if err != nil {
			return nil, err
		}
		sb.rootHeaderAddr = readUint(rootHeader, width)
		_ = rest
	default: // version 2/3
		sb.offsetSize = head[9]
		sb.lengthSize = head[10]
		width := int(sb.offsetSize)
		// Fixed prefix (signature, version, offset/length size, file
		// consistency flags) is 12 bytes; base, superblock-extension,
		// eof, and root-group-object-header addresses follow directly.
		const fixedPrefix = 12
		rest, err := c.Read(fixedPrefix, width*4)
		if err != nil {
			return nil, err
		}
		sb.rootHeaderAddr = readUint(rest[width*3:], width)
	}

	return sb, nil
}

// readUint reads a little-endian unsigned integer of the given byte
// width (spec.md §6 "all multi-byte fields are little-endian
// on-disk").
func readUint(b []byte, width int) uint64 {
	switch width {
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	default:
		var v uint64
		for i := width - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v
	}
}
