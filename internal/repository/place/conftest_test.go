package place

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/geodex/internal/db"
	"github.com/kailas-cloud/geodex/internal/domain/query"
	"github.com/kailas-cloud/geodex/internal/domain/search/request"
)

// mockStore implements the consumer interfaces for tests.
type mockStore struct {
	searchPlacesFn   func(ctx context.Context, q *db.PlaceQuery) (*db.SearchResult, error)
	searchNearFn     func(ctx context.Context, q *db.NearQuery) (*db.SearchResult, error)
	searchCoveringFn func(ctx context.Context, q *db.CoverQuery) (*db.SearchResult, error)
	getDocumentFn    func(ctx context.Context, index, key string) (map[string]string, error)
	putDocumentsFn   func(ctx context.Context, index string, docs []db.Document) error
	createIndexFn    func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn    func(ctx context.Context, name string) (bool, error)
}

func (m *mockStore) SearchPlaces(ctx context.Context, q *db.PlaceQuery) (*db.SearchResult, error) {
	if m.searchPlacesFn != nil {
		return m.searchPlacesFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchNear(ctx context.Context, q *db.NearQuery) (*db.SearchResult, error) {
	if m.searchNearFn != nil {
		return m.searchNearFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchCovering(ctx context.Context, q *db.CoverQuery) (*db.SearchResult, error) {
	if m.searchCoveringFn != nil {
		return m.searchCoveringFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) GetDocument(ctx context.Context, index, key string) (map[string]string, error) {
	if m.getDocumentFn != nil {
		return m.getDocumentFn(ctx, index, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) PutDocuments(ctx context.Context, index string, docs []db.Document) error {
	if m.putDocumentsFn != nil {
		return m.putDocumentsFn(ctx, index, docs)
	}
	return nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) DropIndex(_ context.Context, _ string) error { return nil }

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

const testPrefix = "geodex:place:"

func testOptions() Options {
	return Options{
		IndexName:  "places",
		KeyPrefix:  testPrefix,
		Timeout:    time.Second,
		RetryDelay: time.Millisecond,
	}
}

func testMetrics() Metrics {
	return Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "requests"}, []string{"op", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "duration"}, []string{"op"}),
		Retries:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "retries"}, []string{"op"}),
		Dropped:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "dropped"}, []string{"reason"}),
	}
}

func newTestRepo(t *testing.T) (*Repo, *mockStore, Metrics) {
	t.Helper()
	ms := &mockStore{}
	m := testMetrics()
	return New(ms, testOptions(), m, nil), ms, m
}

func mustRequest(t *testing.T, raw string, opts request.Options) request.Request {
	t.Helper()
	parsed := query.NewParser(query.DefaultPostcodeFormat).Parse(raw)
	req, err := request.NewBuilder(request.Limits{}, request.Weights{}, request.Decay{}).Build(parsed, opts)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return req
}

func houseFields() map[string]string {
	return map[string]string{
		db.FieldID:          "h1",
		db.FieldType:        "house",
		db.FieldName:        "Otto-Braun-Straße",
		db.FieldStreet:      "Otto-Braun-Straße",
		db.FieldHouseNumber: "72",
		db.FieldPostcode:    "10178",
		db.FieldCoord:       "13.4159,52.5246",
		db.FieldAdmins:      `[{"id":"berlin","name":"Berlin","level":"city"},{"id":"de","name":"Deutschland","level":"country"}]`,
		db.FieldImportance:  "0.2",
	}
}
