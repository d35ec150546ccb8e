package record

import (
	"encoding/binary"
	"fmt"
)

// Container concatenates N heterogeneous serialized records under one
// outer envelope: a uint32 record count followed, for each record, by
// a uint32 byte length and that many type-name-prefixed record bytes.
// A Container is parseable without knowing any Definition in advance
// (spec.md §4.1 "a reader with no schema can still split a container
// into its member records and defer interpretation"); only
// Record-level Deserialize needs the Registry.
type Container struct {
	parts [][]byte // each already type-name-prefixed, as from Record.Serialize
}

// NewContainer returns an empty Container.
func NewContainer() *Container { return &Container{} }

// Add appends one already-serialized record's bytes.
func (c *Container) Add(serialized []byte) {
	c.parts = append(c.parts, serialized)
}

// Len returns the number of member records.
func (c *Container) Len() int { return len(c.parts) }

// Serialize writes the envelope and every member record into a single
// byte slice.
func (c *Container) Serialize() []byte {
	size := 4
	for _, p := range c.parts {
		size += 4 + len(p)
	}

	out := make([]byte, size)
	binary.BigEndian.PutUint32(out, uint32(len(c.parts)))
	pos := 4
	for _, p := range c.parts {
		binary.BigEndian.PutUint32(out[pos:], uint32(len(p)))
		pos += 4
		copy(out[pos:], p)
		pos += len(p)
	}
	return out
}

// ParseContainer splits buf back into its member records' raw bytes,
// without interpreting any of them.
func ParseContainer(buf []byte) (*Container, error) {
	if len(buf) < 4 {
		return nil, newErr(KindUndersizedBuffer, "ParseContainer", "", fmt.Errorf("buffer too short for count"))
	}
	count := binary.BigEndian.Uint32(buf)
	pos := 4

	c := &Container{parts: make([][]byte, 0, count)}
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(buf) {
			return nil, newErr(KindUndersizedBuffer, "ParseContainer", "", fmt.Errorf("truncated length prefix for member %d", i))
		}
		length := binary.BigEndian.Uint32(buf[pos:])
		pos += 4
		if pos+int(length) > len(buf) {
			return nil, newErr(KindUndersizedBuffer, "ParseContainer", "", fmt.Errorf("truncated member %d", i))
		}
		c.parts = append(c.parts, buf[pos:pos+int(length)])
		pos += int(length)
	}
	return c, nil
}

// Parts returns the raw, still type-name-prefixed bytes of every
// member record in order.
func (c *Container) Parts() [][]byte { return c.parts }

// Decode deserializes every member against reg, stopping at the first
// error.
func (c *Container) Decode(reg *Registry) ([]*Record, error) {
	out := make([]*Record, 0, len(c.parts))
	for i, p := range c.parts {
		rec, err := Deserialize(reg, p)
		if err != nil {
			return nil, fmt.Errorf("record: container member %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
