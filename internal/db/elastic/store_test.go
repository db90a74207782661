package elastic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/twpayne/go-geom"

	"github.com/kailas-cloud/geodex/internal/db"
	"github.com/kailas-cloud/geodex/internal/domain/geo"
	"github.com/kailas-cloud/geodex/internal/domain/search/filter"
)

// fakeNode answers like an Elasticsearch 8 node and records request bodies.
type fakeNode struct {
	mu     sync.Mutex
	bodies [][]byte
	paths  []string
	handle func(w http.ResponseWriter, r *http.Request, body []byte)
}

func (f *fakeNode) lastBody(t *testing.T) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bodies) == 0 {
		t.Fatal("no request recorded")
	}
	var m map[string]any
	if err := json.Unmarshal(f.bodies[len(f.bodies)-1], &m); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	return m
}

func newFakeStore(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, body []byte)) (*Store, *fakeNode) {
	t.Helper()
	node := &fakeNode{handle: handle}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		node.mu.Lock()
		node.bodies = append(node.bodies, body)
		node.paths = append(node.paths, r.Method+" "+r.URL.Path)
		node.mu.Unlock()

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		node.handle(w, r, body)
	}))
	t.Cleanup(srv.Close)

	s, err := NewStore(Config{Addrs: []string{srv.URL}, Schema: db.PlaceIndex("places", "geodex:place:")})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, node
}

func reply(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func dig(m map[string]any, path ...string) any {
	var cur any = m
	for _, p := range path {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = mm[p]
	}
	return cur
}

func TestNewStore_RequiresAddrs(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPing(t *testing.T) {
	s, _ := newFakeStore(t, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		reply(w, http.StatusOK, `{}`)
	})
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Unhealthy(t *testing.T) {
	s, _ := newFakeStore(t, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		reply(w, http.StatusServiceUnavailable, `{}`)
	})
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

// --- documents ---

func bulkLines(body []byte) [][]byte {
	var lines [][]byte
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) > 0 {
			lines = append(lines, append([]byte(nil), sc.Bytes()...))
		}
	}
	return lines
}

func TestPutDocuments(t *testing.T) {
	s, node := newFakeStore(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		if !strings.HasSuffix(r.URL.Path, "/_bulk") {
			reply(w, http.StatusNotFound, `{}`)
			return
		}
		var items []string
		for i := 1; i < len(bulkLines(body)); i += 2 {
			items = append(items, fmt.Sprintf(`{"index":{"_id":"%d","status":201}}`, i))
		}
		reply(w, http.StatusOK, `{"took":1,"errors":false,"items":[`+strings.Join(items, ",")+`]}`)
	})

	err := s.PutDocuments(context.Background(), "places", []db.Document{{
		Key: "geodex:place:h1",
		Fields: map[string]string{
			db.FieldID:         "h1",
			db.FieldCoord:      "13.3889,52.517",
			db.FieldImportance: "0.5",
			db.FieldAdminIDs:   "c1;r1",
			db.FieldAdmins:     `[{"id":"c1"}]`,
		},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	node.mu.Lock()
	lines := bulkLines(node.bodies[len(node.bodies)-1])
	node.mu.Unlock()
	if len(lines) != 2 {
		t.Fatalf("expected one action and one source line, got %d lines", len(lines))
	}
	var src map[string]any
	if err := json.Unmarshal(lines[1], &src); err != nil {
		t.Fatalf("decode source: %v", err)
	}
	if src[db.FieldImportance] != 0.5 {
		t.Errorf("importance should be numeric, got %#v", src[db.FieldImportance])
	}
	if dig(src, db.FieldCoord, "lat") != 52.517 || dig(src, db.FieldCoord, "lon") != 13.3889 {
		t.Errorf("coord should be a lat/lon object, got %#v", src[db.FieldCoord])
	}
	ids, ok := src[db.FieldAdminIDs].([]any)
	if !ok || len(ids) != 2 {
		t.Errorf("admin_ids should be a list, got %#v", src[db.FieldAdminIDs])
	}
	if src[db.FieldAdmins] != `[{"id":"c1"}]` {
		t.Errorf("unmapped fields stay strings, got %#v", src[db.FieldAdmins])
	}
}

func TestPutDocuments_ItemFailure(t *testing.T) {
	s, _ := newFakeStore(t, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		reply(w, http.StatusOK, `{"took":1,"errors":true,"items":[
			{"index":{"_id":"geodex:place:bad","status":400,
			  "error":{"type":"mapper_parsing_exception","reason":"failed to parse field [coord]"}}}]}`)
	})

	err := s.PutDocuments(context.Background(), "places", []db.Document{{
		Key:    "geodex:place:bad",
		Fields: map[string]string{db.FieldCoord: "x"},
	}})
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpESBulk {
		t.Fatalf("expected bulk db.Error, got %v", err)
	}
	if !strings.Contains(err.Error(), "mapper_parsing_exception") {
		t.Errorf("error should carry the item failure, got %v", err)
	}
}

func TestPutDocuments_Empty(t *testing.T) {
	s := &Store{}
	if err := s.PutDocuments(context.Background(), "places", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetDocument(t *testing.T) {
	s, _ := newFakeStore(t, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		reply(w, http.StatusOK, `{"_index":"places","_id":"geodex:place:h1","found":true,"_source":{
			"id":"h1","type":"house","coord":{"lat":52.517,"lon":13.3889},
			"importance":0.5,"admin_ids":["c1","r1"]}}`)
	})

	m, err := s.GetDocument(context.Background(), "places", "geodex:place:h1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{
		"id":         "h1",
		"type":       "house",
		"coord":      "13.3889,52.517",
		"importance": "0.5",
		"admin_ids":  "c1;r1",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %q, want %q", k, m[k], v)
		}
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"missing document", `{"_index":"places","_id":"x","found":false}`, db.ErrKeyNotFound},
		{
			"missing index",
			`{"error":{"type":"index_not_found_exception","reason":"no such index [places]"},"status":404}`,
			db.ErrIndexNotFound,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newFakeStore(t, func(w http.ResponseWriter, r *http.Request, _ []byte) {
				reply(w, http.StatusNotFound, tc.body)
			})
			_, err := s.GetDocument(context.Background(), "places", "x")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

// --- index lifecycle ---

func TestCreateIndex(t *testing.T) {
	s, node := newFakeStore(t, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		reply(w, http.StatusOK, `{"acknowledged":true,"index":"places"}`)
	})

	if err := s.CreateIndex(context.Background(), db.PlaceIndex("places", "geodex:place:")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := node.lastBody(t)

	if dig(body, "mappings", "dynamic") != false {
		t.Error("mapping must not be dynamic")
	}
	checks := map[string]string{
		db.FieldCoord:      "geo_point",
		db.FieldName:       "text",
		db.FieldPostcode:   "keyword",
		db.FieldImportance: "double",
	}
	for field, typ := range checks {
		if got := dig(body, "mappings", "properties", field, "type"); got != typ {
			t.Errorf("%s type = %v, want %s", field, got, typ)
		}
	}
	if dig(body, "mappings", "properties", db.FieldPostcode, "normalizer") != foldNormalizer {
		t.Error("case-insensitive tags need the fold normalizer")
	}
	if dig(body, "mappings", "properties", db.FieldAdminIDs, "normalizer") != nil {
		t.Error("case-sensitive tags must not be normalized")
	}
	if dig(body, "settings", "analysis", "normalizer", foldNormalizer) == nil {
		t.Error("fold normalizer must be declared")
	}
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	s, _ := newFakeStore(t, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		reply(w, http.StatusBadRequest,
			`{"error":{"type":"resource_already_exists_exception","reason":"index [places] already exists"},"status":400}`)
	})
	err := s.CreateIndex(context.Background(), db.PlaceIndex("places", "geodex:place:"))
	if !errors.Is(err, db.ErrIndexExists) {
		t.Fatalf("expected ErrIndexExists, got %v", err)
	}
}

func TestIndexExistsAndDrop(t *testing.T) {
	var exists atomic.Bool
	exists.Store(true)
	s, _ := newFakeStore(t, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		switch {
		case r.Method == http.MethodHead && exists.Load():
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodDelete && exists.Load():
			exists.Store(false)
			reply(w, http.StatusOK, `{"acknowledged":true}`)
		default:
			reply(w, http.StatusNotFound,
				`{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`)
		}
	})
	ctx := context.Background()

	if ok, err := s.IndexExists(ctx, "places"); err != nil || !ok {
		t.Fatalf("expected index to exist, got %v %v", ok, err)
	}
	if err := s.DropIndex(ctx, "places"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if ok, err := s.IndexExists(ctx, "places"); err != nil || ok {
		t.Fatalf("expected index to be gone, got %v %v", ok, err)
	}
	if err := s.DropIndex(ctx, "places"); !errors.Is(err, db.ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
}

// --- search ---

const placeHits = `{"hits":{"total":{"value":2},"hits":[
	{"_id":"geodex:place:h1","_score":9.5,"_source":{"id":"h1","type":"house","coord":{"lat":52.517,"lon":13.3889}}},
	{"_id":"geodex:place:s1","_score":4.0,"_source":{"id":"s1","type":"street","coord":{"lat":52.52,"lon":13.39}}}
]}}`

func TestSearchPlaces(t *testing.T) {
	s, node := newFakeStore(t, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		reply(w, http.StatusOK, placeHits)
	})

	pc, _ := filter.NewExact(db.FieldPostcode, "10117", 10)
	hn, _ := filter.NewExact(db.FieldHouseNumber, "27", 10)
	expr, _ := filter.NewExpression([]filter.Condition{pc}, []filter.Condition{hn}, nil)
	bbox, _ := geo.ParseBBox("13.08,52.33,13.76,52.68")

	res, err := s.SearchPlaces(context.Background(), &db.PlaceQuery{
		IndexName:  "places",
		Expression: expr,
		Decay:      &db.GeoDecay{Center: geo.Point{Lat: 52.5, Lon: 13.4}, ScaleMeters: 50000, Decay: 0.5},
		BBox:       &bbox,
		Limit:      20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 2 || len(res.Entries) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Entries[0].Key != "geodex:place:h1" || res.Entries[0].Score != 9.5 {
		t.Errorf("unexpected first entry %+v", res.Entries[0])
	}
	if res.Entries[0].Fields[db.FieldCoord] != "13.3889,52.517" {
		t.Errorf("coord not flattened: %q", res.Entries[0].Fields[db.FieldCoord])
	}

	body := node.lastBody(t)
	if body["size"] != float64(20) {
		t.Errorf("size = %v", body["size"])
	}
	fs := dig(body, "query", "function_score")
	if fs == nil {
		t.Fatal("decay must wrap the query in function_score")
	}
	if dig(body, "query", "function_score", "boost_mode") != "multiply" {
		t.Error("decay must multiply the relevance score")
	}
	boolQ := dig(body, "query", "function_score", "query", "bool")
	for _, occur := range []string{"must", "should", "filter"} {
		if list, _ := dig(boolQ.(map[string]any), occur).([]any); len(list) != 1 {
			t.Errorf("bool.%s = %v, want one clause", occur, list)
		}
	}
	if dig(boolQ.(map[string]any), "filter") == nil {
		t.Error("bbox filter missing")
	}
}

func TestSearchPlaces_Shape(t *testing.T) {
	s, node := newFakeStore(t, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		reply(w, http.StatusOK, placeHits)
	})

	poly, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{
		{{13.37, 52.51}, {13.40, 52.51}, {13.40, 52.53}, {13.37, 52.53}, {13.37, 52.51}},
	})
	if err != nil {
		t.Fatalf("polygon: %v", err)
	}
	shape, err := geo.NewShape(poly)
	if err != nil {
		t.Fatalf("shape: %v", err)
	}

	if _, err := s.SearchPlaces(context.Background(), &db.PlaceQuery{
		IndexName: "places",
		Shape:     &shape,
		Limit:     10,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	filters, _ := dig(node.lastBody(t), "query", "bool", "filter").([]any)
	if len(filters) != 1 {
		t.Fatalf("filter = %v, want the shape only", filters)
	}
	gs, _ := filters[0].(map[string]any)
	if dig(gs, "geo_shape", db.FieldCoord, "shape", "type") != "polygon" {
		t.Fatalf("unexpected shape filter %v", gs)
	}
	rings, _ := dig(gs, "geo_shape", db.FieldCoord, "shape", "coordinates").([]any)
	if len(rings) != 1 {
		t.Fatalf("rings = %v", rings)
	}
	first, _ := rings[0].([]any)
	if len(first) != 5 || fmt.Sprint(first[0]) != "[13.37 52.51]" {
		t.Errorf("exterior ring = %v, want [lon lat] positions", first)
	}
}

func TestSearchPlaces_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"bad query", 400, `{"error":{"type":"parsing_exception","reason":"unknown query"},"status":400}`, db.ErrBadQuery},
		{"missing index", 404, `{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`, db.ErrIndexNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newFakeStore(t, func(w http.ResponseWriter, r *http.Request, _ []byte) {
				reply(w, tc.status, tc.body)
			})
			_, err := s.SearchPlaces(context.Background(), &db.PlaceQuery{IndexName: "places", Limit: 10})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSearchPlaces_ServerError(t *testing.T) {
	s, _ := newFakeStore(t, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		reply(w, http.StatusInternalServerError, `{"error":{"type":"search_phase_execution_exception","reason":"all shards failed"},"status":500}`)
	})
	_, err := s.SearchPlaces(context.Background(), &db.PlaceQuery{IndexName: "places", Limit: 10})
	var dbErr *db.Error
	if !errors.As(err, &dbErr) {
		t.Fatalf("expected db.Error, got %v", err)
	}
	if errors.Is(err, db.ErrBadQuery) || errors.Is(err, db.ErrIndexNotFound) {
		t.Errorf("server errors must not map to query errors: %v", err)
	}
}

func TestSearchNear(t *testing.T) {
	s, node := newFakeStore(t, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		reply(w, http.StatusOK, `{"hits":{"total":{"value":1},"hits":[
			{"_id":"geodex:place:h1","_score":null,"sort":[12.5],"_source":{"id":"h1","coord":{"lat":52.517,"lon":13.3889}}}
		]}}`)
	})

	res, err := s.SearchNear(context.Background(), &db.NearQuery{
		IndexName:    "places",
		Center:       geo.Point{Lat: 52.517, Lon: 13.389},
		RadiusMeters: 500,
		Types:        []string{"house"},
		Limit:        5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].Score != 12.5 {
		t.Fatalf("distance should come from the sort value, got %+v", res.Entries)
	}

	body := node.lastBody(t)
	sorts, _ := body["sort"].([]any)
	if len(sorts) != 1 || dig(sorts[0].(map[string]any), "_geo_distance", "unit") != "m" {
		t.Errorf("expected geo distance sort in meters, got %v", body["sort"])
	}
	filters, _ := dig(body, "query", "bool", "filter").([]any)
	if len(filters) != 2 {
		t.Fatalf("expected distance and type filters, got %v", filters)
	}
	if dig(filters[0].(map[string]any), "geo_distance", "distance") != "500m" {
		t.Errorf("unexpected distance filter %v", filters[0])
	}
}

func TestSearchCovering(t *testing.T) {
	s, node := newFakeStore(t, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		reply(w, http.StatusOK, `{"hits":{"total":{"value":2},"hits":[
			{"_id":"k:de","_score":0,"_source":{"id":"de",
				"bbox_min_lat":47.27,"bbox_min_lon":5.87,"bbox_max_lat":55.06,"bbox_max_lon":15.04}},
			{"_id":"k:berlin","_score":0,"_source":{"id":"berlin",
				"bbox_min_lat":52.33,"bbox_min_lon":13.08,"bbox_max_lat":52.68,"bbox_max_lon":13.76}}
		]}}`)
	})

	res, err := s.SearchCovering(context.Background(), &db.CoverQuery{
		IndexName: "places",
		Point:     geo.Point{Lat: 52.517, Lon: 13.3889},
		Types:     []string{"admin"},
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Entries) != 2 || res.Entries[0].Fields["id"] != "berlin" {
		t.Fatalf("expected smallest box first, got %+v", res.Entries)
	}
	if res.Entries[0].Score >= res.Entries[1].Score {
		t.Errorf("scores must ascend: %f, %f", res.Entries[0].Score, res.Entries[1].Score)
	}

	filters, _ := dig(node.lastBody(t), "query", "bool", "filter").([]any)
	if len(filters) != 5 {
		t.Errorf("expected four range filters and a type filter, got %d", len(filters))
	}
}

func TestBuildCondition_FieldWeights(t *testing.T) {
	s := &Store{schema: db.PlaceIndex("places", "geodex:place:")}

	prefix, _ := filter.NewPrefix(db.FieldName, "Otto", 3)
	got := s.buildCondition(prefix, true)
	if b := dig(got, "match_bool_prefix", db.FieldName, "boost"); b != 6.0 {
		t.Errorf("name boost = %v, want 6 (clause 3 x field 2)", b)
	}

	unweighted := s.buildCondition(prefix, false)
	if b := dig(unweighted, "match_bool_prefix", db.FieldName, "boost"); b != 1.0 {
		t.Errorf("filter context boost = %v, want 1", b)
	}

	fuzzy, _ := filter.NewFuzzy(db.FieldName, "Otto", 1)
	either, _ := filter.NewEither(prefix, fuzzy)
	alts, _ := dig(s.buildCondition(either, true), "bool", "should").([]any)
	if len(alts) != 2 {
		t.Fatalf("either should render two alternatives, got %v", alts)
	}
	if dig(alts[1].(map[string]any), "match", db.FieldName, "fuzziness") != "AUTO" {
		t.Errorf("fuzzy alternative = %v", alts[1])
	}
}

func TestFlattenValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
		ok   bool
	}{
		{"x", "x", true},
		{1.5, "1.5", true},
		{[]any{"a", "b"}, "a;b", true},
		{map[string]any{"lat": 1.0, "lon": 2.0}, "2,1", true},
		{map[string]any{"x": 1.0}, "", false},
		{nil, "", false},
	}
	for _, tc := range tests {
		got, ok := flattenValue(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("flattenValue(%v) = %q,%v want %q,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
