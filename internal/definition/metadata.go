package definition

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// TypeIdentityKey is the reserved metadata key carrying an export's type
// identity. Imports with a non-empty Constraint.TypeIdentity only match
// exports whose metadata holds the same string under this key.
const TypeIdentityKey = "ExportTypeIdentity"

// Metadata is an immutable string-keyed dictionary of cty values. The zero
// value is an empty dictionary.
type Metadata struct {
	entries map[string]cty.Value
}

// NewMetadata copies m into a new Metadata. Unknown values are rejected
// because they cannot be matched or cached.
func NewMetadata(m map[string]cty.Value) (Metadata, error) {
	if len(m) == 0 {
		return Metadata{}, nil
	}
	entries := make(map[string]cty.Value, len(m))
	for k, v := range m {
		if v == cty.NilVal {
			return Metadata{}, fmt.Errorf("metadata %q: nil value", k)
		}
		if !v.IsWhollyKnown() {
			return Metadata{}, fmt.Errorf("metadata %q: value must be known", k)
		}
		entries[k] = v
	}
	return Metadata{entries: entries}, nil
}

// MetadataFromGo converts plain Go values (strings, numbers, bools, slices
// and maps of those) into Metadata.
func MetadataFromGo(m map[string]any) (Metadata, error) {
	if len(m) == 0 {
		return Metadata{}, nil
	}
	converted := make(map[string]cty.Value, len(m))
	for k, v := range m {
		cv, err := ToValue(v)
		if err != nil {
			return Metadata{}, fmt.Errorf("metadata %q: %w", k, err)
		}
		converted[k] = cv
	}
	return NewMetadata(converted)
}

// MustMetadata is MetadataFromGo for literals known to be valid.
func MustMetadata(m map[string]any) Metadata {
	md, err := MetadataFromGo(m)
	if err != nil {
		panic(err)
	}
	return md
}

// ToValue converts a Go value into its implied cty.Value.
func ToValue(v any) (cty.Value, error) {
	if cv, ok := v.(cty.Value); ok {
		return cv, nil
	}
	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("could not imply cty type from %T: %w", v, err)
	}
	cv, err := gocty.ToCtyValue(v, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("could not convert %T: %w", v, err)
	}
	return cv, nil
}

// Len returns the number of entries.
func (m Metadata) Len() int { return len(m.entries) }

// Get returns the value stored under key.
func (m Metadata) Get(key string) (cty.Value, bool) {
	v, ok := m.entries[key]
	return v, ok
}

// Has reports whether key is present.
func (m Metadata) Has(key string) bool {
	_, ok := m.entries[key]
	return ok
}

// String returns the value under key when it is a known, non-null string.
func (m Metadata) String(key string) (string, bool) {
	v, ok := m.entries[key]
	if !ok || v.IsNull() || v.Type() != cty.String {
		return "", false
	}
	return v.AsString(), true
}

// GoValue returns the value under key converted to plain Go types.
func (m Metadata) GoValue(key string) (any, bool, error) {
	v, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	gv, err := FromValue(v)
	return gv, true, err
}

// Keys returns the keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the underlying entries.
func (m Metadata) Map() map[string]cty.Value {
	out := make(map[string]cty.Value, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// With returns a copy of m with key set to v.
func (m Metadata) With(key string, v cty.Value) Metadata {
	out := m.Map()
	out[key] = v
	return Metadata{entries: out}
}

// Equal compares keys and values exactly.
func (m Metadata) Equal(o Metadata) bool {
	if len(m.entries) != len(o.entries) {
		return false
	}
	for k, v := range m.entries {
		ov, ok := o.entries[k]
		if !ok || !v.RawEquals(ov) {
			return false
		}
	}
	return true
}

// GoString renders the metadata deterministically for logs and errors.
func (m Metadata) GoString() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		gv, err := FromValue(m.entries[k])
		if err != nil {
			fmt.Fprintf(&sb, "%s=<%s>", k, m.entries[k].Type().FriendlyName())
			continue
		}
		fmt.Fprintf(&sb, "%s=%v", k, gv)
	}
	sb.WriteByte('}')
	return sb.String()
}

// FromValue converts a cty.Value into plain Go values: string, float64, bool,
// []any and map[string]any.
func FromValue(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	if ty.IsPrimitiveType() {
		switch ty {
		case cty.String:
			return val.AsString(), nil
		case cty.Number:
			bf := val.AsBigFloat()
			if bf.IsInt() {
				if i, acc := bf.Int64(); acc == 0 {
					return i, nil
				}
			}
			f, _ := bf.Float64()
			return f, nil
		case cty.Bool:
			return val.True(), nil
		default:
			return nil, fmt.Errorf("unsupported primitive type: %s", ty.FriendlyName())
		}
	}
	if ty.IsObjectType() || ty.IsMapType() {
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			gv, err := FromValue(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = gv
		}
		return out, nil
	}
	if ty.IsTupleType() || ty.IsListType() || ty.IsSetType() {
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			gv, err := FromValue(v)
			if err != nil {
				return nil, err
			}
			out = append(out, gv)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", ty.FriendlyName())
}
