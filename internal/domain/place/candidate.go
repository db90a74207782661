package place

import "github.com/kailas-cloud/geodex/internal/domain/geo"

// Admin levels carried by AdminRef.
const (
	LevelCity    = "city"
	LevelRegion  = "region"
	LevelCountry = "country"
)

// AdminRef references an administrative area enclosing a document.
type AdminRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level string `json:"level"`
}

// Attributes are the type-dependent fields of a Candidate.
type Attributes struct {
	Name        string
	Street      string
	HouseNumber string
	Postcode    string
	// Admins is ordered narrowest first; the ids form the administrative-hierarchy chain.
	Admins     []AdminRef
	Names      map[string]string // localized names keyed by language
	Importance float64
}

// Geometry is a representative point plus, for areas, a bounding box.
type Geometry struct {
	Point geo.Point
	BBox  geo.BBox
}

// Candidate is one index hit prior to merging. Request-scoped, never persisted.
type Candidate struct {
	id       string
	typ      Type
	score    float64
	geometry Geometry
	attrs    Attributes
}

// New creates a Candidate without validation; see Validate.
func New(id string, typ Type, score float64, geometry Geometry, attrs Attributes) Candidate {
	return Candidate{id: id, typ: typ, score: score, geometry: geometry, attrs: attrs}
}

// ID returns the document identifier.
func (c Candidate) ID() string { return c.id }

// Type returns the document type.
func (c Candidate) Type() Type { return c.typ }

// Score returns the engine relevance score.
func (c Candidate) Score() float64 { return c.score }

// Geometry returns the document geometry.
func (c Candidate) Geometry() Geometry { return c.geometry }

// Name returns the default display name.
func (c Candidate) Name() string { return c.attrs.Name }

// Street returns the street name of a house.
func (c Candidate) Street() string { return c.attrs.Street }

// HouseNumber returns the house number, empty for non-house documents.
func (c Candidate) HouseNumber() string { return c.attrs.HouseNumber }

// Postcode returns the postcode.
func (c Candidate) Postcode() string { return c.attrs.Postcode }

// Admins returns the enclosing administrative areas, narrowest first.
func (c Candidate) Admins() []AdminRef { return c.attrs.Admins }

// Importance returns the static importance used as a late tie-breaker.
func (c Candidate) Importance() float64 { return c.attrs.Importance }

// Names returns the localized names.
func (c Candidate) Names() map[string]string { return c.attrs.Names }

// WithScore returns a copy of c with a different score.
func (c Candidate) WithScore(score float64) Candidate {
	c.score = score
	return c
}

// AdminChain returns the administrative-hierarchy ids, narrowest first.
func (c Candidate) AdminChain() []string {
	ids := make([]string, 0, len(c.attrs.Admins))
	for _, a := range c.attrs.Admins {
		ids = append(ids, a.ID)
	}
	return ids
}

// LocalizedName returns the name for lang, falling back to the default name.
func (c Candidate) LocalizedName(lang string) string {
	if lang != "" {
		if n := c.attrs.Names[lang]; n != "" {
			return n
		}
	}
	return c.attrs.Name
}

// StreetName is the street a house lies on, or the name of anything else.
func (c Candidate) StreetName() string {
	if c.typ == House && c.attrs.Street != "" {
		return c.attrs.Street
	}
	return c.attrs.Name
}

// City returns the name of the nearest enclosing city, if any.
func (c Candidate) City() string {
	return c.adminName(LevelCity)
}

// Country returns the name of the enclosing country, if any.
func (c Candidate) Country() string {
	return c.adminName(LevelCountry)
}

func (c Candidate) adminName(level string) string {
	for _, a := range c.attrs.Admins {
		if a.Level == level {
			return a.Name
		}
	}
	return ""
}

// Key identifies candidates that describe the same place.
type Key struct {
	Type        Type
	Name        string
	Postcode    string
	HouseNumber string
}

// Key returns the identity key used for deduplication.
func (c Candidate) Key() Key {
	return Key{
		Type:        c.typ,
		Name:        Normalize(c.StreetName()),
		Postcode:    Normalize(c.attrs.Postcode),
		HouseNumber: Normalize(c.attrs.HouseNumber),
	}
}

// IsAncestorOf reports whether c restates the location of house h at lower precision:
// its own position in the hierarchy (own id for areas, admin chain otherwise) is fully
// contained in h's admin chain.
func (c Candidate) IsAncestorOf(h Candidate) bool {
	if h.typ != House || c.typ == House || c.typ == POI {
		return false
	}
	chain := c.AdminChain()
	if c.typ.IsArea() {
		chain = append([]string{c.id}, chain...)
	}
	if len(chain) == 0 {
		return false
	}
	houseChain := make(map[string]struct{}, len(h.attrs.Admins))
	for _, a := range h.attrs.Admins {
		houseChain[a.ID] = struct{}{}
	}
	for _, id := range chain {
		if _, ok := houseChain[id]; !ok {
			return false
		}
	}
	return true
}
