package geodex

import (
	"fmt"

	"github.com/twpayne/go-geom"

	"github.com/kailas-cloud/geodex/internal/domain"
	"github.com/kailas-cloud/geodex/internal/domain/geo"
	"github.com/kailas-cloud/geodex/internal/domain/place"
	"github.com/kailas-cloud/geodex/internal/domain/search/request"
	"github.com/kailas-cloud/geodex/internal/domain/search/result"
	placerepo "github.com/kailas-cloud/geodex/internal/repository/place"
)

// Place types.
const (
	TypeHouse  = string(place.House)
	TypeStreet = string(place.Street)
	TypePOI    = string(place.POI)
	TypeAdmin  = string(place.Admin)
	TypeZone   = string(place.Zone)
)

// Admin levels for AdminRef.
const (
	LevelCity    = place.LevelCity
	LevelRegion  = place.LevelRegion
	LevelCountry = place.LevelCountry
)

// Document is one place to load: the same shape as a line of the seed files.
type Document = placerepo.Document

// AdminRef names one enclosing administrative area of a Document.
type AdminRef = place.AdminRef

// AutocompleteOptions narrow and page an autocomplete query. Zero values select defaults.
type AutocompleteOptions struct {
	Limit  int
	Offset int
	// Lat and Lon bias results toward a point; set both or neither.
	Lat, Lon *float64
	// BBox restricts results to minLon, minLat, maxLon, maxLat.
	BBox []float64
	// Shape restricts results to a polygon; holes exclude.
	Shape *geom.Polygon
	Types []string
	Lang  string
}

func (o AutocompleteOptions) toRequest() (request.Options, error) {
	opts := request.Options{Limit: o.Limit, Offset: o.Offset, Lang: o.Lang}

	if (o.Lat == nil) != (o.Lon == nil) {
		return request.Options{}, fmt.Errorf("%w: lat and lon must be set together", domain.ErrInvalidRequest)
	}
	if o.Lat != nil {
		opts.Center = &geo.Point{Lat: *o.Lat, Lon: *o.Lon}
	}

	if len(o.BBox) > 0 {
		if len(o.BBox) != 4 {
			return request.Options{}, fmt.Errorf("%w: bbox needs 4 values", domain.ErrInvalidRequest)
		}
		bb, err := geo.NewBBox(o.BBox[1], o.BBox[0], o.BBox[3], o.BBox[2])
		if err != nil {
			return request.Options{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
		}
		opts.BBox = &bb
	}
	if o.Shape != nil {
		shape, err := geo.NewShape(o.Shape)
		if err != nil {
			return request.Options{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
		}
		opts.Shape = &shape
	}

	for _, s := range o.Types {
		t, err := place.ParseType(s)
		if err != nil {
			return request.Options{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
		}
		opts.Types = append(opts.Types, t)
	}
	return opts, nil
}

// Place is one formatted result.
type Place struct {
	ID    string
	Type  string
	Label string
	Lat   float64
	Lon   float64
	// Score is the relevance for Autocomplete and the matched radius in meters for Reverse.
	Score       float64
	Name        string
	HouseNumber string
	Street      string
	Postcode    string
	City        string
	Country     string
	Admins      []string // narrowest first
}

// Page is one window of results. Total counts every merged result.
type Page struct {
	Places []Place
	Total  int
	Offset int
	Limit  int
}

func placeFromResult(r result.RankedResult) Place {
	f := r.Fields()
	return Place{
		ID:          r.ID(),
		Type:        string(r.Type()),
		Label:       r.Label(),
		Lat:         r.Coord().Lat,
		Lon:         r.Coord().Lon,
		Score:       r.Score(),
		Name:        f.Name,
		HouseNumber: f.HouseNumber,
		Street:      f.Street,
		Postcode:    f.Postcode,
		City:        f.City,
		Country:     f.Country,
		Admins:      f.AdminNames,
	}
}

func pageFromResult(p result.Page) Page {
	places := make([]Place, len(p.Results))
	for i, r := range p.Results {
		places[i] = placeFromResult(r)
	}
	return Page{Places: places, Total: p.Total, Offset: p.Offset, Limit: p.Limit}
}
