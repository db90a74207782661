package chi

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/kailas-cloud/geodex/internal/domain/geo"
	"github.com/kailas-cloud/geodex/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/geodex/internal/usecase/health"
)

// ErrorCode is the machine-readable error kind of an ErrorResponse.
type ErrorCode string

// Error codes.
const (
	ErrorCodeInvalidRequest   ErrorCode = "invalid_request"
	ErrorCodeNotFound         ErrorCode = "not_found"
	ErrorCodeIndexUnavailable ErrorCode = "index_unavailable"
	ErrorCodeTimeout          ErrorCode = "timeout"
	ErrorCodeUnauthorized     ErrorCode = "unauthorized"
	ErrorCodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// AutocompleteRequest is the POST /autocomplete body.
type AutocompleteRequest struct {
	Q      string   `json:"q"`
	Limit  *int     `json:"limit,omitempty"`
	Offset *int     `json:"offset,omitempty"`
	Lat    *float64 `json:"lat,omitempty"`
	Lon    *float64 `json:"lon,omitempty"`
	Type   []string `json:"type,omitempty"`
	Lang   string   `json:"lang,omitempty"`
	BBox   string   `json:"bbox,omitempty"` // minLon,minLat,maxLon,maxLat
	// Shape is a GeoJSON Polygon, or a Feature carrying one, that results must lie in.
	Shape json.RawMessage `json:"shape,omitempty"`
}

// PageResponse is one page of GeoJSON features.
type PageResponse struct {
	Type     string             `json:"type"`
	Features []*geojson.Feature `json:"features"`
	Total    int                `json:"total"`
	Offset   int                `json:"offset"`
	Limit    int                `json:"limit"`
}

// RoutesResponse is the GET / body.
type RoutesResponse struct {
	Name   string   `json:"name"`
	Routes []string `json:"routes"`
}

// StatusResponse is the GET /status body.
type StatusResponse struct {
	Status  healthuc.Status                 `json:"status"`
	Version string                          `json:"version"`
	Checks  map[string]healthuc.CheckResult `json:"checks"`
}

func pageToResponse(p result.Page) PageResponse {
	features := make([]*geojson.Feature, len(p.Results))
	for i, r := range p.Results {
		features[i] = featureFromResult(r)
	}
	return PageResponse{
		Type:     "FeatureCollection",
		Features: features,
		Total:    p.Total,
		Offset:   p.Offset,
		Limit:    p.Limit,
	}
}

// featureFromResult renders a result as a GeoJSON point feature.
func featureFromResult(r result.RankedResult) *geojson.Feature {
	f := r.Fields()
	props := map[string]any{
		"id":    r.ID(),
		"type":  string(r.Type()),
		"label": r.Label(),
		"score": r.Score(),
	}
	setProp(props, "name", f.Name)
	setProp(props, "housenumber", f.HouseNumber)
	setProp(props, "street", f.Street)
	setProp(props, "postcode", f.Postcode)
	setProp(props, "city", f.City)
	setProp(props, "country", f.Country)
	if len(f.AdminNames) > 0 {
		props["admins"] = f.AdminNames
	}

	c := r.Coord()
	return &geojson.Feature{
		ID:         r.ID(),
		Geometry:   geom.NewPointFlat(geom.XY, []float64{c.Lon, c.Lat}),
		Properties: props,
	}
}

func setProp(props map[string]any, k, v string) {
	if v != "" {
		props[k] = v
	}
}

// shapeFromJSON decodes a GeoJSON Polygon geometry or a Feature wrapping one.
func shapeFromJSON(raw json.RawMessage) (*geo.Shape, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("shape: %w", err)
	}

	var g geom.T
	if head.Type == "Feature" {
		var f geojson.Feature
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("shape: %w", err)
		}
		g = f.Geometry
	} else if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("shape: %w", err)
	}

	poly, ok := g.(*geom.Polygon)
	if !ok {
		return nil, errors.New("shape: must be a GeoJSON Polygon")
	}
	s, err := geo.NewShape(poly)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
