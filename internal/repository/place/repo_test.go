package place

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/geodex/internal/db"
	"github.com/kailas-cloud/geodex/internal/domain"
	"github.com/kailas-cloud/geodex/internal/domain/geo"
	domplace "github.com/kailas-cloud/geodex/internal/domain/place"
	"github.com/kailas-cloud/geodex/internal/domain/search/request"
)

func TestSearch_Success(t *testing.T) {
	repo, ms, m := newTestRepo(t)

	var got *db.PlaceQuery
	ms.searchPlacesFn = func(_ context.Context, q *db.PlaceQuery) (*db.SearchResult, error) {
		got = q
		return &db.SearchResult{Total: 1, Entries: []db.SearchEntry{
			{Key: testPrefix + "h1", Score: 12.5, Fields: houseFields()},
		}}, nil
	}

	center := geo.Point{Lat: 52.52, Lon: 13.40}
	req := mustRequest(t, "Otto-Braun-Straße 72", request.Options{Limit: 5, Center: &center})

	cands, total, err := repo.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 1 || total != 1 {
		t.Fatalf("expected 1 candidate of 1, got %d of %d", len(cands), total)
	}
	c := cands[0]
	if c.ID() != "h1" || c.Type() != domplace.House || c.Score() != 12.5 {
		t.Errorf("unexpected candidate %s %s %f", c.ID(), c.Type(), c.Score())
	}
	if c.HouseNumber() != "72" || c.City() != "Berlin" || c.Importance() != 0.2 {
		t.Errorf("attributes not decoded: %q %q %f", c.HouseNumber(), c.City(), c.Importance())
	}

	if got.IndexName != "places" || got.Limit != req.Window() {
		t.Errorf("query = %+v, want index places and limit %d", got, req.Window())
	}
	if got.Decay == nil || got.Decay.Center != center || got.Decay.ScaleMeters != 50_000 {
		t.Errorf("decay = %+v", got.Decay)
	}
	if got.Expression.IsEmpty() {
		t.Error("expression must be forwarded")
	}
	if v := testutil.ToFloat64(m.Requests.WithLabelValues(OpSearch, "ok")); v != 1 {
		t.Errorf("requests{search,ok} = %f, want 1", v)
	}
}

func TestSearch_DropsUndecodableRows(t *testing.T) {
	repo, ms, m := newTestRepo(t)

	bad := houseFields()
	bad[db.FieldCoord] = "not-a-point"
	badAdmins := houseFields()
	badAdmins[db.FieldAdmins] = "{"

	ms.searchPlacesFn = func(_ context.Context, _ *db.PlaceQuery) (*db.SearchResult, error) {
		return &db.SearchResult{Total: 3, Entries: []db.SearchEntry{
			{Key: testPrefix + "bad", Fields: bad},
			{Key: testPrefix + "h1", Score: 1, Fields: houseFields()},
			{Key: testPrefix + "admins", Fields: badAdmins},
		}}, nil
	}

	cands, total, err := repo.Search(context.Background(), mustRequest(t, "Otto", request.Options{}))
	if err != nil {
		t.Fatalf("decode failures must not fail the request: %v", err)
	}
	if len(cands) != 1 || cands[0].ID() != "h1" {
		t.Fatalf("expected only h1, got %d candidates", len(cands))
	}
	if total != 1 {
		t.Errorf("total = %d, undecodable rows must not be counted", total)
	}
	if v := testutil.ToFloat64(m.Dropped.WithLabelValues(ReasonUndecodable)); v != 2 {
		t.Errorf("dropped = %f, want 2", v)
	}
}

func TestSearch_IDFallsBackToKey(t *testing.T) {
	repo, ms, _ := newTestRepo(t)

	fields := houseFields()
	delete(fields, db.FieldID)
	ms.searchPlacesFn = func(_ context.Context, _ *db.PlaceQuery) (*db.SearchResult, error) {
		return &db.SearchResult{Total: 1, Entries: []db.SearchEntry{{Key: testPrefix + "h9", Fields: fields}}}, nil
	}

	cands, _, err := repo.Search(context.Background(), mustRequest(t, "Otto", request.Options{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cands[0].ID() != "h9" {
		t.Errorf("id = %q, want h9", cands[0].ID())
	}
}

func TestSearch_RetriesOnce(t *testing.T) {
	repo, ms, m := newTestRepo(t)

	calls := 0
	ms.searchPlacesFn = func(_ context.Context, _ *db.PlaceQuery) (*db.SearchResult, error) {
		calls++
		if calls == 1 {
			return nil, &db.Error{Op: db.OpSearch, Err: errors.New("connection reset")}
		}
		return &db.SearchResult{}, nil
	}

	if _, _, err := repo.Search(context.Background(), mustRequest(t, "Otto", request.Options{})); err != nil {
		t.Fatalf("expected recovery on retry, got %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if v := testutil.ToFloat64(m.Retries.WithLabelValues(OpSearch)); v != 1 {
		t.Errorf("retries = %f, want 1", v)
	}
}

func TestSearch_Unavailable(t *testing.T) {
	repo, ms, m := newTestRepo(t)

	calls := 0
	ms.searchPlacesFn = func(_ context.Context, _ *db.PlaceQuery) (*db.SearchResult, error) {
		calls++
		return nil, &db.Error{Op: db.OpSearch, Err: errors.New("connection refused")}
	}

	_, _, err := repo.Search(context.Background(), mustRequest(t, "Otto", request.Options{}))
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want exactly one retry", calls)
	}
	if v := testutil.ToFloat64(m.Requests.WithLabelValues(OpSearch, "unavailable")); v != 1 {
		t.Errorf("requests{search,unavailable} = %f, want 1", v)
	}
}

func TestSearch_NoRetry(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
		notErr  error
	}{
		{"bad query", &db.Error{Op: db.OpSearch, Err: db.ErrBadQuery}, db.ErrBadQuery, domain.ErrIndexUnavailable},
		{"missing index", &db.Error{Op: db.OpSearch, Err: db.ErrIndexNotFound}, domain.ErrIndexUnavailable, nil},
		{"caller cancelled", context.Canceled, context.Canceled, domain.ErrTimeout},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo, ms, _ := newTestRepo(t)
			calls := 0
			ms.searchPlacesFn = func(_ context.Context, _ *db.PlaceQuery) (*db.SearchResult, error) {
				calls++
				return nil, tc.err
			}

			_, _, err := repo.Search(context.Background(), mustRequest(t, "Otto", request.Options{}))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if tc.notErr != nil && errors.Is(err, tc.notErr) {
				t.Errorf("error must not be %v: %v", tc.notErr, err)
			}
			if calls != 1 {
				t.Errorf("calls = %d, want 1", calls)
			}
		})
	}
}

func TestSearch_Timeout(t *testing.T) {
	ms := &mockStore{}
	opts := testOptions()
	opts.Timeout = 20 * time.Millisecond
	repo := New(ms, opts, Metrics{}, nil)

	calls := 0
	ms.searchPlacesFn = func(ctx context.Context, _ *db.PlaceQuery) (*db.SearchResult, error) {
		calls++
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, _, err := repo.Search(context.Background(), mustRequest(t, "Otto", request.Options{}))
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, an expired deadline must not be retried", calls)
	}
}

func TestNearest(t *testing.T) {
	repo, ms, _ := newTestRepo(t)

	var got *db.NearQuery
	ms.searchNearFn = func(_ context.Context, q *db.NearQuery) (*db.SearchResult, error) {
		got = q
		return &db.SearchResult{Total: 1, Entries: []db.SearchEntry{
			{Key: testPrefix + "h1", Score: 42, Fields: houseFields()},
		}}, nil
	}

	center := geo.Point{Lat: 52.5246, Lon: 13.4159}
	cands, err := repo.Nearest(context.Background(), center, 500,
		[]domplace.Type{domplace.House, domplace.Street}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RadiusMeters != 500 || got.Limit != 10 || got.Center != center {
		t.Errorf("query = %+v", got)
	}
	if len(got.Types) != 2 || got.Types[0] != "house" || got.Types[1] != "street" {
		t.Errorf("types = %v", got.Types)
	}
	if len(cands) != 1 || cands[0].Score() != 42 {
		t.Errorf("distance must be carried as score, got %+v", cands)
	}
}

func TestCovering(t *testing.T) {
	repo, ms, _ := newTestRepo(t)

	ms.searchCoveringFn = func(_ context.Context, q *db.CoverQuery) (*db.SearchResult, error) {
		if len(q.Types) != 1 || q.Types[0] != "admin" {
			t.Errorf("types = %v", q.Types)
		}
		return &db.SearchResult{Total: 1, Entries: []db.SearchEntry{{
			Key:   testPrefix + "berlin",
			Score: 15000,
			Fields: map[string]string{
				db.FieldID: "berlin", db.FieldType: "admin", db.FieldName: "Berlin",
				db.FieldCoord:      "13.4050,52.5200",
				db.FieldBBoxMinLat: "52.33", db.FieldBBoxMinLon: "13.08",
				db.FieldBBoxMaxLat: "52.68", db.FieldBBoxMaxLon: "13.76",
				db.FieldNamePrefix + "fr": "Berlin (fr)",
			},
		}}}, nil
	}

	cands, err := repo.Covering(context.Background(), geo.Point{Lat: 52.5, Lon: 13.4},
		[]domplace.Type{domplace.Admin}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	c := cands[0]
	if c.Geometry().BBox.MaxLon != 13.76 {
		t.Errorf("bbox not decoded: %+v", c.Geometry().BBox)
	}
	if c.LocalizedName("fr") != "Berlin (fr)" {
		t.Errorf("localized name = %q", c.LocalizedName("fr"))
	}
}

func TestGet(t *testing.T) {
	repo, ms, _ := newTestRepo(t)

	ms.getDocumentFn = func(_ context.Context, index, key string) (map[string]string, error) {
		if index != "places" || key != testPrefix+"h1" {
			t.Errorf("get(%q, %q)", index, key)
		}
		return houseFields(), nil
	}

	c, err := repo.Get(context.Background(), "h1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID() != "h1" || c.Postcode() != "10178" {
		t.Errorf("unexpected candidate %s %s", c.ID(), c.Postcode())
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, ms, m := newTestRepo(t)

	calls := 0
	ms.getDocumentFn = func(_ context.Context, _, _ string) (map[string]string, error) {
		calls++
		return nil, db.ErrKeyNotFound
	}

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if calls != 1 {
		t.Errorf("missing documents must not be retried, calls = %d", calls)
	}
	if v := testutil.ToFloat64(m.Requests.WithLabelValues(OpGet, "not_found")); v != 1 {
		t.Errorf("requests{get,not_found} = %f, want 1", v)
	}

	if _, err := repo.Get(context.Background(), ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("empty id: expected ErrNotFound, got %v", err)
	}
}

func TestSearch_TotalAndShape(t *testing.T) {
	repo, ms, _ := newTestRepo(t)

	bbox, err := geo.ParseBBox("13.37,52.51,13.40,52.53")
	if err != nil {
		t.Fatalf("bbox: %v", err)
	}
	var got *db.PlaceQuery
	ms.searchPlacesFn = func(_ context.Context, q *db.PlaceQuery) (*db.SearchResult, error) {
		got = q
		return &db.SearchResult{Total: 250, Entries: []db.SearchEntry{
			{Key: testPrefix + "h1", Score: 3, Fields: houseFields()},
		}}, nil
	}

	cands, total, err := repo.Search(context.Background(), mustRequest(t, "Otto", request.Options{BBox: &bbox}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 1 || total != 250 {
		t.Errorf("got %d candidates of %d, want 1 of 250", len(cands), total)
	}
	if got.BBox == nil || *got.BBox != bbox || got.Shape != nil {
		t.Errorf("spatial restriction not forwarded: bbox=%v shape=%v", got.BBox, got.Shape)
	}
}
