package definition

import (
	"sort"
	"strings"
)

// Constraint is the serializable form of an import's matching predicate:
// contract name equality, required metadata keys and an optional type
// identity. Contract names are compared exactly (case-sensitive, ordinal).
type Constraint struct {
	ContractName     string
	RequiredMetadata []string
	TypeIdentity     string
}

// ToConstraint builds the predicate form from a contract name and the
// metadata keys an export must carry.
func ToConstraint(contractName string, requiredMetadata ...string) Constraint {
	c := Constraint{ContractName: contractName}
	if len(requiredMetadata) > 0 {
		keys := append([]string(nil), requiredMetadata...)
		sort.Strings(keys)
		c.RequiredMetadata = dedupeSorted(keys)
	}
	return c
}

// WithTypeIdentity returns a copy of c that also requires the given type
// identity.
func (c Constraint) WithTypeIdentity(identity string) Constraint {
	c.RequiredMetadata = append([]string(nil), c.RequiredMetadata...)
	c.TypeIdentity = identity
	return c
}

// Matches evaluates the constraint against an export definition.
func (c Constraint) Matches(e *ExportDefinition) bool {
	if e == nil || e.ContractName != c.ContractName {
		return false
	}
	for _, key := range c.RequiredMetadata {
		if !e.Metadata.Has(key) {
			return false
		}
	}
	if c.TypeIdentity != "" && e.TypeIdentity() != c.TypeIdentity {
		return false
	}
	return true
}

// Predicate exposes the constraint as a plain function.
func (c Constraint) Predicate() func(*ExportDefinition) bool {
	return c.Matches
}

// Key returns a canonical string usable as a map or cache key.
func (c Constraint) Key() string {
	var sb strings.Builder
	sb.WriteString(c.ContractName)
	sb.WriteByte('\x00')
	keys := append([]string(nil), c.RequiredMetadata...)
	sort.Strings(keys)
	sb.WriteString(strings.Join(keys, "\x01"))
	sb.WriteByte('\x00')
	sb.WriteString(c.TypeIdentity)
	return sb.String()
}

// Equal compares constraints structurally, ignoring the order of required
// metadata keys.
func (c Constraint) Equal(o Constraint) bool {
	return c.Key() == o.Key()
}

func (c Constraint) String() string {
	var sb strings.Builder
	sb.WriteString(c.ContractName)
	if len(c.RequiredMetadata) > 0 {
		sb.WriteString("[requires ")
		sb.WriteString(strings.Join(c.RequiredMetadata, ","))
		sb.WriteByte(']')
	}
	if c.TypeIdentity != "" {
		sb.WriteString("<")
		sb.WriteString(c.TypeIdentity)
		sb.WriteString(">")
	}
	return sb.String()
}

func dedupeSorted(keys []string) []string {
	out := keys[:0]
	for i, k := range keys {
		if i > 0 && keys[i-1] == k {
			continue
		}
		out = append(out, k)
	}
	return out
}
