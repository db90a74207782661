package elastic

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/kailas-cloud/geodex/internal/db"
	"github.com/kailas-cloud/geodex/internal/domain/geo"
	"github.com/kailas-cloud/geodex/internal/domain/search/filter"
)

// SearchPlaces runs a bool query, wrapped in a gauss function_score when decay is set.
func (s *Store) SearchPlaces(ctx context.Context, q *db.PlaceQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	boolQuery := s.buildBool(q.Expression)
	if q.BBox != nil {
		appendClause(boolQuery, "filter", geoBoundingBox(db.FieldCoord, *q.BBox))
	}
	if q.Shape != nil {
		appendClause(boolQuery, "filter", geoShape(db.FieldCoord, *q.Shape))
	}

	query := map[string]any{"bool": boolQuery}
	if q.Decay != nil {
		query = map[string]any{
			"function_score": map[string]any{
				"query": query,
				"functions": []any{
					map[string]any{"gauss": map[string]any{
						db.FieldCoord: map[string]any{
							"origin": latLon(q.Decay.Center),
							"scale":  meters(q.Decay.ScaleMeters),
							"offset": meters(q.Decay.OffsetMeters),
							"decay":  q.Decay.Decay,
						},
					}},
				},
				"boost_mode": "multiply",
			},
		}
	}

	return s.search(ctx, q.IndexName, map[string]any{
		"query":            query,
		"size":             q.Limit,
		"track_total_hits": true,
	}, scoreFromHit)
}

// SearchNear returns point documents within the radius, nearest first.
func (s *Store) SearchNear(ctx context.Context, q *db.NearQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.Limit <= 0 || q.RadiusMeters <= 0 {
		return nil, fmt.Errorf("limit and radius must be positive")
	}

	filters := []any{
		map[string]any{"geo_distance": map[string]any{
			"distance":    meters(q.RadiusMeters),
			db.FieldCoord: latLon(q.Center),
		}},
	}
	if len(q.Types) > 0 {
		filters = append(filters, map[string]any{"terms": map[string]any{db.FieldType: q.Types}})
	}

	return s.search(ctx, q.IndexName, map[string]any{
		"query": map[string]any{"bool": map[string]any{"filter": filters}},
		"sort": []any{
			map[string]any{"_geo_distance": map[string]any{
				db.FieldCoord: latLon(q.Center),
				"order":       "asc",
				"unit":        "m",
			}},
		},
		"size": q.Limit,
	}, scoreFromSort)
}

// SearchCovering returns documents whose bounding box contains the point,
// smallest box first (score is the half-diagonal in meters).
func (s *Store) SearchCovering(ctx context.Context, q *db.CoverQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	filters := []any{
		rangeQuery(db.FieldBBoxMinLat, "lte", q.Point.Lat),
		rangeQuery(db.FieldBBoxMaxLat, "gte", q.Point.Lat),
		rangeQuery(db.FieldBBoxMinLon, "lte", q.Point.Lon),
		rangeQuery(db.FieldBBoxMaxLon, "gte", q.Point.Lon),
	}
	if len(q.Types) > 0 {
		filters = append(filters, map[string]any{"terms": map[string]any{db.FieldType: q.Types}})
	}

	res, err := s.search(ctx, q.IndexName, map[string]any{
		"query": map[string]any{"bool": map[string]any{"filter": filters}},
		"size":  q.Limit,
	}, nil)
	if err != nil {
		return nil, err
	}

	for i := range res.Entries {
		if bb, ok := parseBBox(res.Entries[i].Fields); ok {
			res.Entries[i].Score = bb.HalfDiagonalMeters()
		}
	}
	slices.SortStableFunc(res.Entries, func(a, b db.SearchEntry) int { return cmp.Compare(a.Score, b.Score) })
	return res, nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

type searchHit struct {
	ID     string         `json:"_id"`
	Score  *float64       `json:"_score"`
	Source map[string]any `json:"_source"`
	Sort   []any          `json:"sort"`
}

type scoreFunc func(h *searchHit) float64

func scoreFromHit(h *searchHit) float64 {
	if h.Score == nil {
		return 0
	}
	return *h.Score
}

func scoreFromSort(h *searchHit) float64 {
	if len(h.Sort) == 0 {
		return 0
	}
	d, _ := h.Sort[0].(float64)
	return d
}

func (s *Store) search(ctx context.Context, index string, body map[string]any, score scoreFunc) (*db.SearchResult, error) {
	req := esapi.SearchRequest{
		Index: []string{index},
		Body:  esutil.NewJSONReader(body),
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, &db.Error{Op: db.OpESSearch, Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError(db.OpESSearch, res)
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, &db.Error{Op: db.OpESSearch, Err: fmt.Errorf("decode: %w", err)}
	}

	entries := make([]db.SearchEntry, 0, len(sr.Hits.Hits))
	for i := range sr.Hits.Hits {
		h := &sr.Hits.Hits[i]
		e := db.SearchEntry{Key: h.ID, Fields: flatten(h.Source)}
		if score != nil {
			e.Score = score(h)
		}
		entries = append(entries, e)
	}
	return &db.SearchResult{Total: sr.Hits.Total.Value, Entries: entries}, nil
}

// --- Query building ---

// buildBool renders a clause tree as a bool query body.
func (s *Store) buildBool(expr filter.Expression) map[string]any {
	b := map[string]any{}
	for _, c := range expr.Must() {
		appendClause(b, "must", s.buildCondition(c, true))
	}
	for _, c := range expr.Should() {
		appendClause(b, "should", s.buildCondition(c, true))
	}
	for _, c := range expr.Filter() {
		appendClause(b, "filter", s.buildCondition(c, false))
	}
	return b
}

func appendClause(b map[string]any, occur string, clause map[string]any) {
	list, _ := b[occur].([]any)
	b[occur] = append(list, clause)
}

func (s *Store) buildCondition(c filter.Condition, weighted bool) map[string]any {
	boost := 1.0
	if weighted {
		boost = c.Boost() * s.fieldWeight(c.Field())
	}

	switch c.Kind() {
	case filter.KindExact:
		return map[string]any{"term": map[string]any{
			c.Field(): map[string]any{"value": c.Value(), "boost": boost},
		}}
	case filter.KindTerms:
		return map[string]any{"terms": map[string]any{c.Field(): c.Values(), "boost": boost}}
	case filter.KindPrefix:
		return map[string]any{"match_bool_prefix": map[string]any{
			c.Field(): map[string]any{"query": c.Value(), "operator": "and", "boost": boost},
		}}
	case filter.KindFuzzy:
		return map[string]any{"match": map[string]any{
			c.Field(): map[string]any{"query": c.Value(), "operator": "and", "fuzziness": "AUTO", "boost": boost},
		}}
	case filter.KindEither:
		alts := make([]any, 0, len(c.Any()))
		for _, a := range c.Any() {
			alts = append(alts, s.buildCondition(a, weighted))
		}
		return map[string]any{"bool": map[string]any{
			"should":               alts,
			"minimum_should_match": 1,
			"boost":                boost,
		}}
	}
	return map[string]any{"match_none": map[string]any{}}
}

// fieldWeight returns the schema weight of a text field, 1 otherwise.
func (s *Store) fieldWeight(name string) float64 {
	if s.schema == nil || name == "" {
		return 1
	}
	f, ok := s.schema.Field(name)
	if !ok || f.Type != db.IndexFieldText || f.TextWeight <= 0 {
		return 1
	}
	return f.TextWeight
}

func geoBoundingBox(field string, b geo.BBox) map[string]any {
	return map[string]any{"geo_bounding_box": map[string]any{
		field: map[string]any{
			"top_left":     map[string]float64{"lat": b.MaxLat, "lon": b.MinLon},
			"bottom_right": map[string]float64{"lat": b.MinLat, "lon": b.MaxLon},
		},
	}}
}

// geoShape matches points inside the polygon; geo_shape queries accept geo_point fields.
func geoShape(field string, s geo.Shape) map[string]any {
	return map[string]any{"geo_shape": map[string]any{
		field: map[string]any{
			"shape":    map[string]any{"type": "polygon", "coordinates": s.Rings()},
			"relation": "intersects",
		},
	}}
}

func rangeQuery(field, op string, v float64) map[string]any {
	return map[string]any{"range": map[string]any{field: map[string]any{op: v}}}
}

func latLon(p geo.Point) map[string]float64 {
	return map[string]float64{"lat": p.Lat, "lon": p.Lon}
}

func meters(m float64) string {
	return strconv.FormatFloat(m, 'f', -1, 64) + "m"
}

func parseBBox(fields map[string]string) (geo.BBox, bool) {
	var v [4]float64
	for i, name := range []string{db.FieldBBoxMinLat, db.FieldBBoxMinLon, db.FieldBBoxMaxLat, db.FieldBBoxMaxLon} {
		f, err := strconv.ParseFloat(fields[name], 64)
		if err != nil {
			return geo.BBox{}, false
		}
		v[i] = f
	}
	bb, err := geo.NewBBox(v[0], v[1], v[2], v[3])
	return bb, err == nil
}
