package definition

import "fmt"

// Cardinality states how many matching exports an import tolerates.
type Cardinality uint8

const (
	// ExactlyOne requires a single matching export.
	ExactlyOne Cardinality = iota
	// ZeroOrOne accepts no export or a single one.
	ZeroOrOne
	// ZeroOrMore accepts any number of exports.
	ZeroOrMore
)

var cardinalityNames = map[Cardinality]string{
	ExactlyOne: "exactly_one",
	ZeroOrOne:  "zero_or_one",
	ZeroOrMore: "zero_or_more",
}

func (c Cardinality) String() string {
	if name, ok := cardinalityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("cardinality(%d)", uint8(c))
}

// Valid reports whether c is one of the known cardinalities.
func (c Cardinality) Valid() bool {
	_, ok := cardinalityNames[c]
	return ok
}

// ParseCardinality converts the manifest spelling of a cardinality
// ("exactly_one", "zero_or_one", "zero_or_more") into its value.
// An empty string yields ExactlyOne.
func ParseCardinality(s string) (Cardinality, error) {
	if s == "" {
		return ExactlyOne, nil
	}
	for c, name := range cardinalityNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown cardinality %q: must be 'exactly_one', 'zero_or_one' or 'zero_or_more'", s)
}

// CountClass buckets a candidate count the way the matching table does.
type CountClass uint8

const (
	CountZero CountClass = iota
	CountOne
	CountTwoOrMore
)

// ClassifyCount maps n to Zero, One or TwoOrMore.
func ClassifyCount(n int) CountClass {
	switch {
	case n <= 0:
		return CountZero
	case n == 1:
		return CountOne
	default:
		return CountTwoOrMore
	}
}

// Accepts reports whether n candidate exports satisfy c.
func (c Cardinality) Accepts(n int) bool {
	switch ClassifyCount(n) {
	case CountZero:
		return c != ExactlyOne
	case CountOne:
		return true
	default:
		return c == ZeroOrMore
	}
}
