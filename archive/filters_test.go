package archive

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnshuffleRoundTrip(t *testing.T) {
	elementSize := 4
	original := []byte{
		0x01, 0x02, 0x03, 0x04,
		0x05, 0x06, 0x07, 0x08,
		0x09, 0x0A, 0x0B, 0x0C,
	}

	numElements := len(original) / elementSize
	shuffled := make([]byte, len(original))
	for e := 0; e < numElements; e++ {
		for b := 0; b < elementSize; b++ {
			shuffled[b*numElements+e] = original[e*elementSize+b]
		}
	}

	restored, err := unshuffle(shuffled, elementSize)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestInflateRaw(t *testing.T) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello archive pipeline"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	out, err := inflateRaw(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "hello archive pipeline", string(out))
}

func TestVerifyFletcher32(t *testing.T) {
	payload := []byte("altimetry")
	var sum1, sum2 uint32
	for _, b := range payload {
		sum1 = (sum1 + uint32(b)) % 65535
		sum2 = (sum2 + sum1) % 65535
	}
	checksum := sum2<<16 | sum1

	buf := make([]byte, len(payload)+4)
	copy(buf, payload)
	binary.LittleEndian.PutUint32(buf[len(payload):], checksum)

	out, err := verifyFletcher32(buf)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestVerifyFletcher32Mismatch(t *testing.T) {
	buf := []byte{1, 2, 3, 0, 0, 0, 0}
	_, err := verifyFletcher32(buf)
	assert.True(t, IsKind(err, KindChecksumMismatch))
}

func TestApplyFiltersReverseOrder(t *testing.T) {
	elementSize := 4
	original := []byte{
		0x01, 0x02, 0x03, 0x04,
		0x05, 0x06, 0x07, 0x08,
	}
	numElements := len(original) / elementSize
	shuffled := make([]byte, len(original))
	for e := 0; e < numElements; e++ {
		for b := 0; b < elementSize; b++ {
			shuffled[b*numElements+e] = original[e*elementSize+b]
		}
	}

	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.DefaultCompression)
	_, _ = w.Write(shuffled)
	_ = w.Close()

	// steps reflect write-order (shuffle applied first, then deflate
	// onto the shuffled bytes); applyFiltersReverse walks them back to
	// front, so deflate (inflate) runs before shuffle (unshuffle).
	steps := []filterStep{
		{id: filterShuffle, elementSize: elementSize},
		{id: filterDeflate},
	}

	out, err := applyFiltersReverse(steps, buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, original, out)
}
