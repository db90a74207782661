package place

import "fmt"

// Type classifies an indexed document.
type Type string

// Document types.
const (
	Admin  Type = "admin"
	Street Type = "street"
	House  Type = "house"
	POI    Type = "poi"
	Zone   Type = "zone"
)

var allTypes = []Type{House, POI, Street, Admin, Zone}

// AllTypes returns every known type, most precise first.
func AllTypes() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// ParseType converts a string into a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown place type %q", s)
	}
	return t, nil
}

// IsValid reports whether t is a known type.
func (t Type) IsValid() bool {
	switch t {
	case Admin, Street, House, POI, Zone:
		return true
	}
	return false
}

// IsArea reports whether documents of this type are described by a bounding box.
func (t Type) IsArea() bool {
	return t == Admin || t == Zone
}
