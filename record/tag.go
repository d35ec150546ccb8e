package record

import (
	"fmt"
	"reflect"

	stgpsr "github.com/yuin/stagparser"
)

// fieldsFromStruct walks a Go struct's fields, deriving each Field's
// byte offset from reflect.Type.Field(i).Offset and its scalar type
// from the Go field type, then overlays anything the `record:"..."`
// tag specifies (batch, pointer, bigendian, ext, elements). Parsed
// the same way the teacher's schemaAttrs (schema.go) walks a struct
// for its `tiledb:"..."` tags: one stgpsr.ParseStruct call per tag
// namespace, keyed back to field name.
func fieldsFromStruct(example any) ([]Field, int, error) {
	val := structValue(example)
	if val.Kind() != reflect.Struct {
		return nil, 0, fmt.Errorf("record: DefineFromStruct requires a struct or pointer to struct, got %s", val.Kind())
	}
	typ := val.Type()

	tagDefs, err := stgpsr.ParseStruct(example, "record")
	if err != nil {
		return nil, 0, fmt.Errorf("record: parsing record tags: %w", err)
	}

	fields := make([]Field, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		if sf.PkgPath != "" { // unexported
			continue
		}

		field := Field{
			Name:      sf.Name,
			BitOffset: int(sf.Offset) * 8,
			Elements:  1,
		}

		ft, elements, ok := goFieldType(sf.Type)
		if !ok {
			continue
		}
		field.Type = ft
		field.Elements = elements

		for _, def := range tagDefs[sf.Name] {
			applyTagDef(&field, def)
		}

		fields = append(fields, field)
	}

	return fields, int(typ.Size()), nil
}

func goFieldType(t reflect.Type) (FieldType, int, bool) {
	switch t.Kind() {
	case reflect.Int8:
		return Int8, 1, true
	case reflect.Int16:
		return Int16, 1, true
	case reflect.Int32:
		return Int32, 1, true
	case reflect.Int64:
		return Int64, 1, true
	case reflect.Uint8:
		return Uint8, 1, true
	case reflect.Uint16:
		return Uint16, 1, true
	case reflect.Uint32:
		return Uint32, 1, true
	case reflect.Uint64:
		return Uint64, 1, true
	case reflect.Float32:
		return Float32, 1, true
	case reflect.Float64:
		return Float64, 1, true
	case reflect.String:
		return String, 1, true
	case reflect.Slice, reflect.Array:
		elemType, _, ok := goFieldType(t.Elem())
		if !ok {
			return InvalidField, 0, false
		}
		n := 0
		if t.Kind() == reflect.Array {
			n = t.Len()
		}
		return elemType, n, true
	case reflect.Struct:
		return User, 1, true
	default:
		return InvalidField, 0, false
	}
}

// applyTagDef overlays one parsed `record:"..."` clause onto field.
// Recognized clauses: batch, pointer, bigendian, ext=<name>,
// elements=<n>.
func applyTagDef(field *Field, def stgpsr.Definition) {
	switch def.Name() {
	case "batch":
		field.Flags |= Batch
		field.Elements = 0
	case "pointer":
		field.Flags |= Pointer
	case "bigendian":
		field.Flags |= BigEndian
	case "ext":
		if v, ok := def.Attribute("ext"); ok {
			if s, ok := v.(string); ok {
				field.ExtType = s
			}
		}
	case "elements":
		if v, ok := def.Attribute("elements"); ok {
			if n, ok := v.(int64); ok {
				field.Elements = int(n)
			}
		}
	}
}
