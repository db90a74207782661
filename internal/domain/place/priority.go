package place

import "fmt"

// Priority orders types by precision. Lower rank is more precise.
type Priority struct {
	rank map[Type]int
}

// DefaultPriority ranks house > poi > street > admin > zone.
func DefaultPriority() Priority {
	p, _ := NewPriority(nil)
	return p
}

// NewPriority builds an ordering from type names, most precise first.
// Types left out keep their default relative order after the listed ones.
func NewPriority(order []string) (Priority, error) {
	rank := make(map[Type]int, len(allTypes))
	for _, s := range order {
		t, err := ParseType(s)
		if err != nil {
			return Priority{}, err
		}
		if _, dup := rank[t]; dup {
			return Priority{}, fmt.Errorf("duplicate place type %q in priority", s)
		}
		rank[t] = len(rank)
	}
	for _, t := range allTypes {
		if _, ok := rank[t]; !ok {
			rank[t] = len(rank)
		}
	}
	return Priority{rank: rank}, nil
}

// Rank returns the position of t; unknown types rank last.
func (p Priority) Rank(t Type) int {
	if r, ok := p.rank[t]; ok {
		return r
	}
	return len(p.rank)
}

// Less reports whether a is more precise than b.
func (p Priority) Less(a, b Type) bool {
	return p.Rank(a) < p.Rank(b)
}
