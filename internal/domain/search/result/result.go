package result

import (
	"github.com/kailas-cloud/geodex/internal/domain/geo"
	"github.com/kailas-cloud/geodex/internal/domain/place"
)

// Fields are the structured parts of a formatted place.
type Fields struct {
	Name        string
	HouseNumber string
	Street      string
	Postcode    string
	City        string
	Country     string
	AdminNames  []string // narrowest first
}

// RankedResult is a formatted, display-ready place. Immutable.
type RankedResult struct {
	id     string
	typ    place.Type
	label  string
	coord  geo.Point
	score  float64
	fields Fields
}

// New creates a ranked result.
func New(id string, typ place.Type, label string, coord geo.Point, score float64, fields Fields) RankedResult {
	return RankedResult{id: id, typ: typ, label: label, coord: coord, score: score, fields: fields}
}

// ID returns the document identifier.
func (r RankedResult) ID() string { return r.id }

// Type returns the place type.
func (r RankedResult) Type() place.Type { return r.typ }

// Label returns the display label.
func (r RankedResult) Label() string { return r.label }

// Coord returns the representative point.
func (r RankedResult) Coord() geo.Point { return r.coord }

// Score returns the relevance score after bias.
func (r RankedResult) Score() float64 { return r.score }

// Fields returns the structured components.
func (r RankedResult) Fields() Fields { return r.fields }

// Page is one window of an ordered result sequence.
type Page struct {
	Results []RankedResult
	// Total counts merged results, independent of the window.
	Total  int
	Offset int
	Limit  int
}

// Empty returns a page with no results.
func Empty(offset, limit int) Page {
	return Page{Results: []RankedResult{}, Offset: offset, Limit: limit}
}
