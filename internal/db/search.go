package db

import (
	"github.com/kailas-cloud/geodex/internal/domain/geo"
	"github.com/kailas-cloud/geodex/internal/domain/search/filter"
)

// GeoDecay multiplies scores by a gaussian of the distance to Center.
type GeoDecay struct {
	Center       geo.Point
	ScaleMeters  float64
	OffsetMeters float64
	Decay        float64
}

// Factor returns the decay multiplier for a document at p.
func (d GeoDecay) Factor(p geo.Point) float64 {
	return geo.GaussDecay(d.Center.DistanceTo(p), d.ScaleMeters, d.OffsetMeters, d.Decay)
}

// PlaceQuery is the input for a scored clause-tree search.
type PlaceQuery struct {
	IndexName  string
	Expression filter.Expression
	Decay      *GeoDecay
	BBox       *geo.BBox
	Shape      *geo.Shape
	Limit      int
}

// NearQuery finds point documents within RadiusMeters of Center.
// Entry scores are distances in meters, ascending.
type NearQuery struct {
	IndexName    string
	Center       geo.Point
	RadiusMeters float64
	Types        []string
	Limit        int
}

// CoverQuery finds area documents whose bounding box contains Point.
// Entry scores are bounding box half-diagonals in meters, ascending.
type CoverQuery struct {
	IndexName string
	Point     geo.Point
	Types     []string
	Limit     int
}

// SearchResult is the output of a search operation.
// Total counts every match, not only the returned entries.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
