// Package variables models workflow payload values as a tagged union so
// serialization and file discovery are type-safe instead of reflective.
package variables

import (
	"encoding/json"
	"sort"
)

// Kind tags the variant held by a Value.
type Kind string

const (
	KindNull   Kind = "null"
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindArray  Kind = "array"
	KindObject Kind = "object"
	KindFile   Kind = "file"
)

// Value is one workflow variable value: a scalar, a list, a map, or a
// file reference. File references are recognized by the FileVariant
// discriminator during decoding.
type Value struct {
	Kind   Kind
	Str    string
	Num    float64
	Bool   bool
	Array  []Value
	Object map[string]Value
	File   *File
}

// UnmarshalJSON classifies raw JSON into the closed set of kinds.
// An object carrying the file discriminator that fails to decode as a
// file is kept as a plain object rather than rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	var probe any

	err := json.Unmarshal(data, &probe)
	if err != nil {
		return err
	}

	switch typed := probe.(type) {
	case nil:
		v.Kind = KindNull
	case string:
		v.Kind = KindString
		v.Str = typed
	case float64:
		v.Kind = KindNumber
		v.Num = typed
	case bool:
		v.Kind = KindBool
		v.Bool = typed
	case []any:
		var items []Value

		err := json.Unmarshal(data, &items)
		if err != nil {
			return err
		}

		v.Kind = KindArray
		v.Array = items
	case map[string]any:
		if variant, ok := typed[VariantKey].(string); ok && variant == FileVariant {
			var file File

			if err := json.Unmarshal(data, &file); err == nil {
				v.Kind = KindFile
				v.File = &file

				return nil
			}
		}

		var object map[string]Value

		err := json.Unmarshal(data, &object)
		if err != nil {
			return err
		}

		v.Kind = KindObject
		v.Object = object
	}

	return nil
}

// MarshalJSON re-emits the value in its wire form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindArray:
		return json.Marshal(v.Array)
	case KindObject:
		return json.Marshal(v.Object)
	case KindFile:
		return json.Marshal(v.File)
	default:
		return []byte("null"), nil
	}
}

// Files returns the file references directly held by this value: the
// value itself if it is a file, or the file items of a list. Discovery
// deliberately does not recurse into nested objects or nested lists.
func (v Value) Files() []*File {
	switch v.Kind {
	case KindFile:
		return []*File{v.File}
	case KindArray:
		var files []*File

		for _, item := range v.Array {
			if item.Kind == KindFile {
				files = append(files, item.File)
			}
		}

		return files
	default:
		return nil
	}
}

// sortedKeys returns map keys in a stable order for deterministic projection.
func sortedKeys(object map[string]Value) []string {
	keys := make([]string, 0, len(object))
	for key := range object {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
