package geodex

import (
	"context"
	"time"

	"github.com/kailas-cloud/geodex/internal/db"
	"github.com/kailas-cloud/geodex/internal/domain/geo"
	"github.com/kailas-cloud/geodex/internal/domain/search/request"
	"github.com/kailas-cloud/geodex/internal/domain/search/result"
	placerepo "github.com/kailas-cloud/geodex/internal/repository/place"
)

// --- autocompleteUseCase mock ---

type mockAutocompleteUC struct {
	fn func(ctx context.Context, raw string, opts request.Options) (result.Page, error)
}

func (m *mockAutocompleteUC) Autocomplete(ctx context.Context, raw string, opts request.Options) (result.Page, error) {
	return m.fn(ctx, raw, opts)
}

// --- lookupUseCase mock ---

type mockLookupUC struct {
	reverseFn func(ctx context.Context, p geo.Point, lang string) (result.Page, error)
	featureFn func(ctx context.Context, id, lang string) (result.RankedResult, error)
}

func (m *mockLookupUC) Reverse(ctx context.Context, p geo.Point, lang string) (result.Page, error) {
	return m.reverseFn(ctx, p, lang)
}

func (m *mockLookupUC) Feature(ctx context.Context, id, lang string) (result.RankedResult, error) {
	return m.featureFn(ctx, id, lang)
}

// --- loaderUseCase mock ---

type mockLoaderUC struct {
	ensureFn func(ctx context.Context) (bool, error)
	loadFn   func(ctx context.Context, docs []placerepo.Document) (int, int, error)
}

func (m *mockLoaderUC) EnsureIndex(ctx context.Context) (bool, error) {
	return m.ensureFn(ctx)
}

func (m *mockLoaderUC) Load(ctx context.Context, docs []placerepo.Document) (int, int, error) {
	return m.loadFn(ctx, docs)
}

// --- db.Store fake: only the methods the client calls directly ---

type fakeStore struct {
	db.Store
	readyErr error
	pingErr  error
	hasIndex bool
	closed   bool
}

func (f *fakeStore) WaitForReady(context.Context, time.Duration) error { return f.readyErr }

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) IndexExists(context.Context, string) (bool, error) { return f.hasIndex, nil }

func (f *fakeStore) Close() { f.closed = true }

// --- helpers ---

func testClient(ac autocompleteUseCase, lu lookupUseCase, lo loaderUseCase) *Client {
	return &Client{
		store:        &fakeStore{},
		autocomplete: ac,
		lookup:       lu,
		loader:       lo,
	}
}
