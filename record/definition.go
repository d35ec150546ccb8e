package record

import (
	"reflect"
	"sync"
)

// Definition is the process-wide description of one record type:
// its on-wire type size (the length of the type-name prefix),
// data size, designated id field, and field dictionary. Mirrors
// RecordObject::definition_t.
type Definition struct {
	TypeName string
	IDField  string
	DataSize int

	fields     map[string]Field
	fieldOrder []string // declaration order; the Batch field, if any, is last
}

// Field looks up a field by name.
func (d *Definition) Field(name string) (Field, bool) {
	f, ok := d.fields[name]
	return f, ok
}

// Fields returns the fields in declaration order.
func (d *Definition) Fields() []Field {
	out := make([]Field, len(d.fieldOrder))
	for i, name := range d.fieldOrder {
		out[i] = d.fields[name]
	}
	return out
}

// BatchField returns the Definition's Batch-flagged field, if any
// (spec.md §4.1's "variable tail"; original_source/RasterSampler.cpp
// uses RecordObject::BATCH the same way to find a record's
// repeated-subrecord tail).
func (d *Definition) BatchField() (Field, bool) {
	for _, name := range d.fieldOrder {
		f := d.fields[name]
		if f.Flags.has(Batch) {
			return f, true
		}
	}
	return Field{}, false
}

func sameFields(a, b map[string]Field) bool {
	if len(a) != len(b) {
		return false
	}
	for name, fa := range a {
		fb, ok := b[name]
		if !ok || fa != fb {
			return false
		}
	}
	return true
}

// Registry is the process-global append-only definition dictionary
// (spec.md §3 "Record definition ... lives for the process", §5
// "guarded by one mutex; write-only grows, read-mostly hot path").
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry constructs an empty Registry. Most processes share one
// instance (see Global); tests construct their own to stay isolated.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// global is the process-wide registry every package-level helper in
// this module (subset, raster, sample) registers its record types
// against, matching the spec's "lifecycle: initialize once at
// startup" note for the definition registry.
var global = NewRegistry()

// Global returns the process-wide Registry.
func Global() *Registry { return global }

// Define registers a new record type. Registration is idempotent: if
// typeName is already registered with byte-for-byte identical fields,
// Define returns the existing Definition and a KindDuplicate error,
// without mutating the registry (spec.md §8 "Registering a
// definition twice with identical fields returns kDuplicate"). If
// typeName exists with different fields, Define returns an error and
// leaves the registry untouched either way.
func (r *Registry) Define(typeName, idField string, dataSize int, fields []Field) (*Definition, error) {
	fieldMap := make(map[string]Field, len(fields))
	order := make([]string, 0, len(fields))
	for _, f := range fields {
		fieldMap[f.Name] = f
		order = append(order, f.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.defs[typeName]; ok {
		if existing.IDField == idField && existing.DataSize == dataSize && sameFields(existing.fields, fieldMap) {
			return existing, newErr(KindDuplicate, "Define", "", nil)
		}
		return nil, newErr(KindDuplicate, "Define", "", nil)
	}

	def := &Definition{
		TypeName:   typeName,
		IDField:    idField,
		DataSize:   dataSize,
		fields:     fieldMap,
		fieldOrder: order,
	}
	r.defs[typeName] = def
	return def, nil
}

// Lookup returns a previously registered Definition.
func (r *Registry) Lookup(typeName string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[typeName]
	if !ok {
		return nil, newErr(KindNotFound, "Lookup", "", nil)
	}
	return def, nil
}

// DefineFromStruct derives field offsets/sizes from a Go struct's
// memory layout via reflection, using `record:"..."` struct tags for
// anything reflection alone cannot express (the Batch flag, pointer
// semantics, an ExtType name for compound/batch fields). This lets a
// component (subset, sample) declare its wire record as an ordinary
// Go struct instead of hand-building a []Field slice, the same
// convenience the teacher's tiledb.go gets from `tiledb:"..."` tags
// via stagparser — reused here against a `record:"..."` tag instead.
func (r *Registry) DefineFromStruct(example any, typeName, idField string) (*Definition, error) {
	fields, dataSize, err := fieldsFromStruct(example)
	if err != nil {
		return nil, err
	}
	return r.Define(typeName, idField, dataSize, fields)
}

func structValue(example any) reflect.Value {
	v := reflect.ValueOf(example)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	return v
}
