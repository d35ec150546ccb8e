package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extentWithPhotonsDef(t *testing.T) (*Registry, *Definition) {
	t.Helper()
	reg := NewRegistry()
	def, err := reg.Define("test.extent", "extent_id", 8, []Field{
		{Name: "extent_id", Type: Uint64, BitOffset: 0, Elements: 1, Flags: BigEndian},
		{Name: "photons", Type: User, BitOffset: 64, Elements: 0, Flags: Batch, ExtType: "test.photon"},
	})
	require.NoError(t, err)
	return reg, def
}

func TestRecordBatchRoundTrip(t *testing.T) {
	reg, def := extentWithPhotonsDef(t)

	rec := NewRecord(def)
	require.NoError(t, rec.SetUint64("extent_id", 7))
	require.NoError(t, rec.AppendBatch([]byte{1, 2, 3, 4}))
	require.NoError(t, rec.AppendBatch([]byte{5, 6, 7, 8}))
	assert.Equal(t, 2, rec.BatchLen())

	wire, err := rec.Serialize(nil, ModeCopy)
	require.NoError(t, err)

	back, err := Deserialize(reg, wire)
	require.NoError(t, err)
	assert.Equal(t, 2, back.BatchLen())

	row0, err := back.BatchRow(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, row0)

	row1, err := back.BatchRow(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6, 7, 8}, row1)
}

func TestRecordBatchRowWidthMismatch(t *testing.T) {
	_, def := extentWithPhotonsDef(t)
	rec := NewRecord(def)

	require.NoError(t, rec.AppendBatch([]byte{1, 2, 3, 4}))
	err := rec.AppendBatch([]byte{1, 2})
	assert.True(t, IsKind(err, KindUndersizedBuffer))
}

func TestRecordNoBatchField(t *testing.T) {
	_, def := pointDef(t)
	rec := NewRecord(def)
	err := rec.AppendBatch([]byte{1})
	assert.True(t, IsKind(err, KindUnknownType))
}
