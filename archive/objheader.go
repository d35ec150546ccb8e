package archive

import (
	"encoding/binary"
	"strings"
)

// Object header message type ids the reader understands; every other
// id is skipped by its declared length (spec.md §4.3 "Unknown
// messages are skipped by their declared length").
const (
	msgDataspace       = 0x0001
	msgLinkInfo        = 0x0002
	msgDatatype        = 0x0003
	msgDataLayout      = 0x0008
	msgFilterPipeline  = 0x000B
	msgLink            = 0x0006
	msgSymbolTable     = 0x0011
	msgContinuation    = 0x0010
)

// message is one raw object-header message: its type id and body
// bytes (header stripped).
type message struct {
	msgType uint16
	body    []byte
}

// link is one resolved group entry: a name and the address of its
// object header.
type link struct {
	name string
	addr uint64
}

// readObjectHeader reads and parses the messages of the object header
// at addr. Both v1 (fixed message count, per-message 8-byte padding)
// and v2 ("OHDR"-prefixed, self-delimiting) headers are parsed.
// Continuation messages are followed for v1 headers only: a v2 header
// is read from its first chunk alone, and a continuation message found
// there is returned as an ordinary message without the OCHK block it
// points to being read.
func readObjectHeader(c *BlockCache, sb *superblock, addr uint64) ([]message, error) {
	prefix, err := c.Read(int64(addr), 4)
	if err != nil {
		return nil, err
	}
	if string(prefix) == "OHDR" {
		return readObjectHeaderV2(c, sb, addr)
	}
	return readObjectHeaderV1(c, sb, addr)
}

func readObjectHeaderV1(c *BlockCache, sb *superblock, addr uint64) ([]message, error) {
	head, err := c.Read(int64(addr), 16)
	if err != nil {
		return nil, err
	}
	version := head[0]
	if version != 1 {
		return nil, newErr(KindUnsupportedVersion, "", nil)
	}
	numMsgs := binary.LittleEndian.Uint16(head[2:4])
	headerSize := binary.LittleEndian.Uint32(head[8:12])

	pos := int64(addr) + 16
	body, err := c.Read(pos, int(headerSize))
	if err != nil {
		return nil, err
	}

	var out []message
	off := 0
	remaining := int(numMsgs)
	for remaining > 0 && off+8 <= len(body) {
		mtype := binary.LittleEndian.Uint16(body[off:])
		msize := binary.LittleEndian.Uint16(body[off+2:])
		// body[off+4] flags, body[off+5:off+8] reserved
		msgStart := off + 8
		msgEnd := msgStart + int(msize)
		if msgEnd > len(body) {
			break
		}

		if mtype == msgContinuation {
			cont := body[msgStart:msgEnd]
			width := int(sb.offsetSize)
			contAddr := readUint(cont, width)
			contLen := readUint(cont[width:], int(sb.lengthSize))
			more, err := readContinuationV1(c, int64(contAddr), int64(contLen))
			if err != nil {
				return nil, err
			}
			out = append(out, more...)
		} else {
			out = append(out, message{msgType: mtype, body: body[msgStart:msgEnd]})
		}

		off = msgEnd
		remaining--
	}
	return out, nil
}

func readContinuationV1(c *BlockCache, addr, length int64) ([]message, error) {
	body, err := c.Read(addr, int(length))
	if err != nil {
		return nil, err
	}
	var out []message
	off := 0
	for off+8 <= len(body) {
		mtype := binary.LittleEndian.Uint16(body[off:])
		msize := binary.LittleEndian.Uint16(body[off+2:])
		msgStart := off + 8
		msgEnd := msgStart + int(msize)
		if msgEnd > len(body) {
			break
		}
		out = append(out, message{msgType: mtype, body: body[msgStart:msgEnd]})
		off = msgEnd
	}
	return out, nil
}

func readObjectHeaderV2(c *BlockCache, sb *superblock, addr uint64) ([]message, error) {
	head, err := c.Read(int64(addr), 6)
	if err != nil {
		return nil, err
	}
	flags := head[5]
	pos := int64(addr) + 6
	if flags&0x20 != 0 { // times present
		pos += 16
	}
	if flags&0x10 != 0 { // max compact/min dense present
		pos += 4
	}
	sizeOfChunk0 := 1 << (flags & 0x03)
	chunkSizeBytes, err := c.Read(pos, sizeOfChunk0)
	if err != nil {
		return nil, err
	}
	chunkSize := readUint(chunkSizeBytes, sizeOfChunk0)
	pos += int64(sizeOfChunk0)

	body, err := c.Read(pos, int(chunkSize))
	if err != nil {
		return nil, err
	}

	var out []message
	off := 0
	for off+4 <= len(body) {
		mtype := body[off]
		msize := binary.LittleEndian.Uint16(body[off+1:])
		mflags := body[off+3]
		msgStart := off + 4
		if mflags&0x04 != 0 { // creation order tracked
			msgStart += 2
		}
		msgEnd := msgStart + int(msize)
		if msgEnd > len(body) || msgEnd < msgStart {
			break
		}
		out = append(out, message{msgType: uint16(mtype), body: body[msgStart:msgEnd]})
		off = msgEnd
	}
	return out, nil
}

// resolveLink walks a group's object-header messages for compact link
// storage (Link messages embedded directly) and returns the named
// child's address, if present. Dense link storage (link messages kept
// in a fractal heap, addressed indirectly through a Link Info
// message's fractal-heap pointer) is supported for the common
// single-direct-block case via resolveDenseLink.
func resolveLink(c *BlockCache, sb *superblock, msgs []message, name string) (uint64, bool, error) {
	for _, m := range msgs {
		if m.msgType != msgLink {
			continue
		}
		l, ok := parseLinkMessage(m.body, int(sb.offsetSize))
		if ok && l.name == name {
			return l.addr, true, nil
		}
	}

	for _, m := range msgs {
		if m.msgType != msgLinkInfo {
			continue
		}
		heapAddr, ok := parseLinkInfoFractalHeap(m.body, int(sb.offsetSize))
		if !ok {
			continue
		}
		addr, found, err := resolveDenseLink(c, sb, heapAddr, name)
		if err != nil {
			return 0, false, err
		}
		if found {
			return addr, true, nil
		}
	}

	return 0, false, nil
}

// parseLinkMessage decodes a compact "Link Message" (version 1, hard
// link only — the only link type the archives this reader handles
// actually contain): version(1) flags(1) [link type(1)] [creation
// order(8)] [charset(1)] name-len name object-header-address.
func parseLinkMessage(body []byte, offsetSize int) (link, bool) {
	if len(body) < 2 {
		return link{}, false
	}
	flags := body[1]
	pos := 2
	if flags&0x08 != 0 {
		pos++ // link type present (only hard links supported; skip byte)
	}
	if flags&0x04 != 0 {
		pos += 8 // creation order
	}
	if flags&0x10 != 0 {
		pos++ // charset
	}

	lenSize := 1 << (flags & 0x03)
	if pos+lenSize > len(body) {
		return link{}, false
	}
	nameLen := int(readUint(body[pos:pos+lenSize], lenSize))
	pos += lenSize
	if pos+nameLen > len(body) {
		return link{}, false
	}
	name := string(body[pos : pos+nameLen])
	pos += nameLen

	if pos+offsetSize > len(body) {
		return link{}, false
	}
	addr := readUint(body[pos:pos+offsetSize], offsetSize)
	return link{name: name, addr: addr}, true
}

// parseLinkInfoFractalHeap extracts the fractal-heap address from a
// Link Info message, if link storage for this group is dense.
func parseLinkInfoFractalHeap(body []byte, offsetSize int) (uint64, bool) {
	if len(body) < 2 {
		return 0, false
	}
	flags := body[1]
	pos := 2
	if flags&0x01 != 0 {
		pos += 8 // max creation index tracked
	}
	if pos+offsetSize > len(body) {
		return 0, false
	}
	heapAddr := readUint(body[pos:pos+offsetSize], offsetSize)
	const undefinedAddr = ^uint64(0)
	if heapAddr == undefinedAddr {
		return 0, false
	}
	return heapAddr, true
}

// resolveDenseLink reads the fractal heap's header (FRHP) and, for the
// common case of a single managed direct block (FHDB), scans its
// serialized link messages for name. Multi-level indirect-block heaps
// are out of scope for this reader; a heap using them surfaces as
// "not found" rather than failing the whole lookup, since a dense
// group this deep is not expected for the per-beam group trees this
// pipeline reads.
func resolveDenseLink(c *BlockCache, sb *superblock, heapAddr uint64, name string) (uint64, bool, error) {
	head, err := c.Read(int64(heapAddr), 4)
	if err != nil {
		return 0, false, err
	}
	if string(head) != "FRHP" {
		return 0, false, nil
	}

	// Root block address sits near the end of the fixed header;
	// offset kept approximate and resilient via a bounded scan for the
	// FHDB signature rather than decoding every fractal-heap field.
	region, err := c.Read(int64(heapAddr), 4096)
	if err != nil {
		return 0, false, err
	}
	idx := strings.Index(string(region), "FHDB")
	if idx < 0 {
		return 0, false, nil
	}

	direct, err := c.Read(int64(heapAddr)+int64(idx), 4096)
	if err != nil {
		return 0, false, err
	}

	pos := 4 // past "FHDB"
	for pos+8 < len(direct) {
		l, ok := parseLinkMessage(direct[pos:], int(sb.offsetSize))
		if ok && l.name == name {
			return l.addr, true, nil
		}
		pos++
	}
	return 0, false, nil
}
