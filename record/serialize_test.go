package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pointDef(t *testing.T) (*Registry, *Definition) {
	t.Helper()
	reg := NewRegistry()
	def, err := reg.Define("test.point", "id", 12, []Field{
		{Name: "id", Type: Uint32, BitOffset: 0, Elements: 1, Flags: BigEndian},
		{Name: "value", Type: Float64, BitOffset: 32, Elements: 1, Flags: BigEndian},
	})
	require.NoError(t, err)
	return reg, def
}

func TestRecordScalarRoundTrip(t *testing.T) {
	reg, def := pointDef(t)

	rec := NewRecord(def)
	require.NoError(t, rec.SetUint64("id", 42))
	require.NoError(t, rec.SetFloat64("value", 3.5))

	wire, err := rec.Serialize(nil, ModeCopy)
	require.NoError(t, err)

	back, err := Deserialize(reg, wire)
	require.NoError(t, err)

	id, err := back.GetUint64("id")
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)

	value, err := back.GetFloat64("value")
	require.NoError(t, err)
	assert.Equal(t, 3.5, value)
}

func TestRecordUnknownTypeOnDeserialize(t *testing.T) {
	reg := NewRegistry()
	_, err := Deserialize(reg, []byte("test.point\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00"))
	assert.True(t, IsKind(err, KindUnknownType))
}

func TestRecordUndersizedBuffer(t *testing.T) {
	reg, _ := pointDef(t)
	_, err := Deserialize(reg, []byte("test.point\x00\x01\x02"))
	assert.True(t, IsKind(err, KindUndersizedBuffer))
}

func bitFieldDef(t *testing.T) *Definition {
	t.Helper()
	reg := NewRegistry()
	def, err := reg.Define("test.flags", "", 4, []Field{
		{Name: "rgt", Type: BitField, BitOffset: 0, Elements: 10},
		{Name: "cycle", Type: BitField, BitOffset: 10, Elements: 8},
		{Name: "region", Type: BitField, BitOffset: 18, Elements: 8},
		{Name: "track", Type: BitField, BitOffset: 26, Elements: 2},
		{Name: "pair", Type: BitField, BitOffset: 28, Elements: 1},
	})
	require.NoError(t, err)
	return def
}

func TestRecordBitFieldPacking(t *testing.T) {
	def := bitFieldDef(t)
	rec := NewRecord(def)

	require.NoError(t, rec.SetUint64("rgt", 513))
	require.NoError(t, rec.SetUint64("cycle", 12))
	require.NoError(t, rec.SetUint64("region", 7))
	require.NoError(t, rec.SetUint64("track", 2))
	require.NoError(t, rec.SetUint64("pair", 1))

	rgt, err := rec.GetUint64("rgt")
	require.NoError(t, err)
	assert.EqualValues(t, 513, rgt)

	cycle, err := rec.GetUint64("cycle")
	require.NoError(t, err)
	assert.EqualValues(t, 12, cycle)

	region, err := rec.GetUint64("region")
	require.NoError(t, err)
	assert.EqualValues(t, 7, region)

	track, err := rec.GetUint64("track")
	require.NoError(t, err)
	assert.EqualValues(t, 2, track)

	pair, err := rec.GetUint64("pair")
	require.NoError(t, err)
	assert.EqualValues(t, 1, pair)
}

func TestRecordPointerDeref(t *testing.T) {
	reg := NewRegistry()
	def, err := reg.Define("test.ptr", "", 16, []Field{
		{Name: "offset", Type: Uint32, BitOffset: 0, Elements: 1, Flags: Pointer},
		{Name: "payload", Type: Uint64, BitOffset: 64, Elements: 1},
	})
	require.NoError(t, err)

	rec := NewRecord(def)
	require.NoError(t, rec.SetUint64("offset", 8))
	require.NoError(t, rec.SetUint64("payload", 0xBEEF))

	data, err := rec.Deref("offset", false)
	require.NoError(t, err)
	assert.Len(t, data, 8)
}

func TestRecordPointerNullRejected(t *testing.T) {
	reg := NewRegistry()
	def, err := reg.Define("test.ptr2", "", 4, []Field{
		{Name: "offset", Type: Uint32, BitOffset: 0, Elements: 1, Flags: Pointer},
	})
	require.NoError(t, err)

	rec := NewRecord(def)
	_, err = rec.Deref("offset", false)
	assert.True(t, IsKind(err, KindBadNullPointer))

	data, err := rec.Deref("offset", true)
	require.NoError(t, err)
	assert.Nil(t, data)
}
