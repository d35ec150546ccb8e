package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedFields() []Field {
	return []Field{
		{Name: "id", Type: Uint32, BitOffset: 0, Elements: 1},
		{Name: "value", Type: Float64, BitOffset: 32, Elements: 1},
	}
}

func TestRegistryDefineAndLookup(t *testing.T) {
	reg := NewRegistry()

	def, err := reg.Define("test.point", "id", 12, fixedFields())
	require.NoError(t, err)
	assert.Equal(t, "test.point", def.TypeName)

	got, err := reg.Lookup("test.point")
	require.NoError(t, err)
	assert.Same(t, def, got)
}

func TestRegistryDefineDuplicateIdentical(t *testing.T) {
	reg := NewRegistry()

	first, err := reg.Define("test.point", "id", 12, fixedFields())
	require.NoError(t, err)

	second, err := reg.Define("test.point", "id", 12, fixedFields())
	assert.True(t, IsKind(err, KindDuplicate))
	assert.Same(t, first, second)
}

func TestRegistryDefineDuplicateConflicting(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Define("test.point", "id", 12, fixedFields())
	require.NoError(t, err)

	conflicting := []Field{{Name: "id", Type: Uint64, BitOffset: 0, Elements: 1}}
	_, err = reg.Define("test.point", "id", 8, conflicting)
	assert.True(t, IsKind(err, KindDuplicate))

	// registry must not have mutated
	got, err := reg.Lookup("test.point")
	require.NoError(t, err)
	assert.Equal(t, 12, got.DataSize)
}

func TestRegistryLookupMissing(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Lookup("nope")
	assert.True(t, IsKind(err, KindNotFound))
}

type exampleStruct struct {
	ID    uint32  `record:"bigendian"`
	Value float64 `record:"bigendian"`
	Note  string
}

func TestDefineFromStruct(t *testing.T) {
	reg := NewRegistry()
	def, err := reg.DefineFromStruct(exampleStruct{}, "test.example", "ID")
	require.NoError(t, err)

	idField, ok := def.Field("ID")
	require.True(t, ok)
	assert.Equal(t, Uint32, idField.Type)
	assert.True(t, idField.Flags.has(BigEndian))

	valueField, ok := def.Field("Value")
	require.True(t, ok)
	assert.Equal(t, Float64, valueField.Type)
}
