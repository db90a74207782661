package filter

import "fmt"

// MaxConditionsPerGroup is the maximum number of conditions per clause group.
const MaxConditionsPerGroup = 32

// Expression groups weighted clauses with must/should/filter boolean semantics.
// Must and should clauses contribute to the score; filter clauses only restrict.
type Expression struct {
	must   []Condition
	should []Condition
	filter []Condition
}

// NewExpression validates and creates an Expression.
func NewExpression(must, should, filter []Condition) (Expression, error) {
	if len(must) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many must conditions (max %d)", MaxConditionsPerGroup)
	}
	if len(should) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many should conditions (max %d)", MaxConditionsPerGroup)
	}
	if len(filter) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many filter conditions (max %d)", MaxConditionsPerGroup)
	}
	return Expression{must: must, should: should, filter: filter}, nil
}

// Must returns the required scoring conditions.
func (e Expression) Must() []Condition { return e.must }

// Should returns the optional scoring conditions.
func (e Expression) Should() []Condition { return e.should }

// Filter returns the non-scoring restrictions.
func (e Expression) Filter() []Condition { return e.filter }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool {
	return len(e.must) == 0 && len(e.should) == 0 && len(e.filter) == 0
}

// Kind is the matching strategy of a Condition.
type Kind int

// Condition kinds.
const (
	KindExact  Kind = iota + 1 // whole-value equality on a keyword field
	KindPrefix                 // phrase prefix on a text field
	KindFuzzy                  // full-text match tolerating typos
	KindTerms                  // equality against any of several values
	KindEither                 // disjunction of other conditions
)

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindPrefix:
		return "prefix"
	case KindFuzzy:
		return "fuzzy"
	case KindTerms:
		return "terms"
	case KindEither:
		return "either"
	default:
		return "unknown"
	}
}

// Condition is a single weighted clause.
type Condition struct {
	kind   Kind
	field  string
	value  string
	values []string
	boost  float64
	any    []Condition
}

// NewExact creates an exact-match condition.
func NewExact(field, value string, boost float64) (Condition, error) {
	return newValue(KindExact, field, value, boost)
}

// NewPrefix creates a phrase-prefix condition.
func NewPrefix(field, value string, boost float64) (Condition, error) {
	return newValue(KindPrefix, field, value, boost)
}

// NewFuzzy creates a typo-tolerant full-text condition.
func NewFuzzy(field, value string, boost float64) (Condition, error) {
	return newValue(KindFuzzy, field, value, boost)
}

func newValue(kind Kind, field, value string, boost float64) (Condition, error) {
	if field == "" {
		return Condition{}, fmt.Errorf("condition field is required")
	}
	if value == "" {
		return Condition{}, fmt.Errorf("%s value is required for field %q", kind, field)
	}
	if boost < 0 {
		return Condition{}, fmt.Errorf("boost must be non-negative, got %g", boost)
	}
	if boost == 0 {
		boost = 1
	}
	return Condition{kind: kind, field: field, value: value, boost: boost}, nil
}

// NewTerms creates a condition matching any of values.
func NewTerms(field string, values []string) (Condition, error) {
	if field == "" {
		return Condition{}, fmt.Errorf("condition field is required")
	}
	if len(values) == 0 {
		return Condition{}, fmt.Errorf("terms values are required for field %q", field)
	}
	return Condition{kind: KindTerms, field: field, values: values, boost: 1}, nil
}

// NewEither creates a disjunction. Nested disjunctions are rejected.
func NewEither(conds ...Condition) (Condition, error) {
	if len(conds) < 2 {
		return Condition{}, fmt.Errorf("either needs at least two conditions, got %d", len(conds))
	}
	for _, c := range conds {
		if c.kind == KindEither {
			return Condition{}, fmt.Errorf("nested either conditions are not supported")
		}
	}
	return Condition{kind: KindEither, any: conds, boost: 1}, nil
}

// Kind returns the matching strategy.
func (c Condition) Kind() Kind { return c.kind }

// Field returns the document field name.
func (c Condition) Field() string { return c.field }

// Value returns the match value of exact, prefix and fuzzy conditions.
func (c Condition) Value() string { return c.value }

// Values returns the accepted values of a terms condition.
func (c Condition) Values() []string { return c.values }

// Boost returns the score weight.
func (c Condition) Boost() float64 { return c.boost }

// Any returns the alternatives of an either condition.
func (c Condition) Any() []Condition { return c.any }
