package archive

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMessage wraps a v2 object-header message body with its 4-byte
// message header (type, size, flags; creation order omitted since
// every header built here has flags=0).
func buildMessage(msgType byte, body []byte) []byte {
	out := make([]byte, 4+len(body))
	out[0] = msgType
	binary.LittleEndian.PutUint16(out[1:], uint16(len(body)))
	out[3] = 0
	copy(out[4:], body)
	return out
}

// buildObjectHeaderV2 assembles a self-delimiting v2 object header
// ("OHDR", flags=0 so chunk0 size is a single byte) from a
// concatenation of pre-built messages.
func buildObjectHeaderV2(chunk0 []byte) []byte {
	out := []byte("OHDR")
	out = append(out, 2, 0) // version, flags
	out = append(out, byte(len(chunk0)))
	out = append(out, chunk0...)
	return out
}

func buildLinkMessageBody(name string, addr uint32) []byte {
	body := []byte{1, 0, byte(len(name))}
	body = append(body, []byte(name)...)
	addrBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(addrBytes, addr)
	return append(body, addrBytes...)
}

func buildDataspaceBody(dim uint64) []byte {
	body := []byte{2, 1, 0, 0}
	dimBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(dimBytes, dim)
	return append(body, dimBytes...)
}

func buildFixedPointDatatypeBody(size uint32, signed bool) []byte {
	bitField0 := byte(0)
	if signed {
		bitField0 |= 0x08
	}
	body := []byte{0x10, bitField0, 0, 0}
	sizeBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(sizeBytes, size)
	return append(body, sizeBytes...)
}

func buildCompactLayoutBody(data []byte) []byte {
	body := []byte{3, 0}
	sizeBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(sizeBytes, uint16(len(data)))
	body = append(body, sizeBytes...)
	return append(body, data...)
}

func int32LE(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

// buildSuperblockV2 assembles a minimal version-2/3-style superblock
// with 4-byte offsets/lengths and the given root group object-header
// address.
func buildSuperblockV2(rootAddr uint32) []byte {
	out := append([]byte{}, Signature[:]...)
	out = append(out, 2, 4, 4, 0) // version, offset size, length size, flags
	zero := make([]byte, 4)
	undefined := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	rootBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(rootBytes, rootAddr)
	out = append(out, zero...)      // base address
	out = append(out, undefined...) // superblock extension address (none)
	out = append(out, zero...)      // eof address (unused by this reader)
	out = append(out, rootBytes...) // root group object header address
	return out
}

// buildTestArchive lays out a superblock, a root group with one "data"
// link, and a compact-layout rank-1 int32 dataset at /data, returning
// the full byte image plus the dataset's expected values.
func buildTestArchive() ([]byte, []int32) {
	values := []int32{10, 20, 30}
	var dataBytes []byte
	for _, v := range values {
		dataBytes = append(dataBytes, int32LE(v)...)
	}

	datasetChunk0 := buildMessage(msgDataspace, buildDataspaceBody(uint64(len(values))))
	datasetChunk0 = append(datasetChunk0, buildMessage(msgDatatype, buildFixedPointDatatypeBody(4, true))...)
	datasetChunk0 = append(datasetChunk0, buildMessage(msgDataLayout, buildCompactLayoutBody(dataBytes))...)
	datasetHeader := buildObjectHeaderV2(datasetChunk0)

	const datasetAddr = 64
	const rootAddr = 32

	rootChunk0 := buildMessage(msgLink, buildLinkMessageBody("data", datasetAddr))
	rootHeader := buildObjectHeaderV2(rootChunk0)

	sb := buildSuperblockV2(rootAddr)

	image := make([]byte, datasetAddr+len(datasetHeader))
	copy(image, sb)
	copy(image[rootAddr:], rootHeader)
	copy(image[datasetAddr:], datasetHeader)

	return image, values
}

func TestReadSuperblockAndResolveCompactDataset(t *testing.T) {
	image, values := buildTestArchive()
	h := &fakeHandle{data: image}
	cache := NewBlockCache(h, nil)

	sb, err := readSuperblock(cache)
	require.NoError(t, err)
	assert.EqualValues(t, 32, sb.rootHeaderAddr)
	assert.EqualValues(t, 4, sb.offsetSize)

	a := &Archive{sb: sb, c: cache, dsCache: make(map[string]*DatasetInfo)}

	info, err := a.Dataset("/data")
	require.NoError(t, err)
	assert.Equal(t, ClassFixedPoint, info.Datatype.Class)
	assert.EqualValues(t, 4, info.Datatype.Size)
	assert.EqualValues(t, len(values), info.NumRows())
	assert.Equal(t, LayoutCompact, info.Layout.Class)

	raw, err := a.ReadRows("/data", 0, uint64(len(values)))
	require.NoError(t, err)
	require.Len(t, raw, len(values)*4)
	for i, want := range values {
		got := int32(binary.LittleEndian.Uint32(raw[i*4 : i*4+4]))
		assert.Equal(t, want, got)
	}
}

func TestResolvePathMissingDataset(t *testing.T) {
	image, _ := buildTestArchive()
	h := &fakeHandle{data: image}
	cache := NewBlockCache(h, nil)

	sb, err := readSuperblock(cache)
	require.NoError(t, err)

	a := &Archive{sb: sb, c: cache, dsCache: make(map[string]*DatasetInfo)}
	_, err = a.Dataset("/nope")
	assert.True(t, IsKind(err, KindDatasetNotFound))
}
