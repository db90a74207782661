package geodex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/geodex/internal/config"
	"github.com/kailas-cloud/geodex/internal/db"
	"github.com/kailas-cloud/geodex/internal/db/engine"
	"github.com/kailas-cloud/geodex/internal/domain/geo"
	"github.com/kailas-cloud/geodex/internal/domain/place"
	"github.com/kailas-cloud/geodex/internal/domain/query"
	"github.com/kailas-cloud/geodex/internal/domain/search/request"
	"github.com/kailas-cloud/geodex/internal/domain/search/result"
	placerepo "github.com/kailas-cloud/geodex/internal/repository/place"
	autocompleteuc "github.com/kailas-cloud/geodex/internal/usecase/autocomplete"
	"github.com/kailas-cloud/geodex/internal/usecase/format"
	healthuc "github.com/kailas-cloud/geodex/internal/usecase/health"
	lookupuc "github.com/kailas-cloud/geodex/internal/usecase/lookup"
	"github.com/kailas-cloud/geodex/internal/version"
)

const defaultReadinessTimeout = 10 * time.Second

// Internal interfaces, replaced in tests.
type autocompleteUseCase interface {
	Autocomplete(ctx context.Context, raw string, opts request.Options) (result.Page, error)
}

type lookupUseCase interface {
	Reverse(ctx context.Context, p geo.Point, lang string) (result.Page, error)
	Feature(ctx context.Context, id, lang string) (result.RankedResult, error)
}

type loaderUseCase interface {
	EnsureIndex(ctx context.Context) (bool, error)
	Load(ctx context.Context, docs []placerepo.Document) (loaded, skipped int, err error)
}

// openStore is replaced in tests.
var openStore = engine.Open

// Client is the geodex SDK entry point. Safe for concurrent use.
type Client struct {
	store        db.Store
	autocomplete autocompleteUseCase
	lookup       lookupUseCase
	loader       loaderUseCase
	health       healthUseCase
	obs          *observer
}

// New creates a Client and waits until the engine answers.
// The provided context bounds the readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{readiness: defaultReadinessTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}
	if len(cfg.engine.Database.Addrs) == 0 {
		return nil, errors.New("geodex: database address required (use WithRedis or WithElasticsearch)")
	}
	cfg.engine.ApplyDefaults()
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	obs, err := newObserver(cfg.logger, cfg.metrics)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg.engine)
	if err != nil {
		return nil, fmt.Errorf("geodex: %w", err)
	}
	if err := store.WaitForReady(ctx, cfg.readiness); err != nil {
		store.Close()
		return nil, fmt.Errorf("geodex: database not ready: %w", err)
	}

	c, err := wireClient(store, cfg.engine, cfg.logger, obs)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func wireClient(store db.Store, cfg config.Config, logger *zap.Logger, obs *observer) (*Client, error) {
	priority, err := place.NewPriority(cfg.Ranking.TypePriority)
	if err != nil {
		return nil, fmt.Errorf("geodex: %w", err)
	}

	opts := placerepo.Options{
		IndexName:  cfg.Index.Name,
		KeyPrefix:  cfg.Index.KeyPrefix,
		Timeout:    time.Duration(cfg.Index.RequestTimeoutMs) * time.Millisecond,
		RetryDelay: time.Duration(cfg.Index.RetryDelayMs) * time.Millisecond,
	}
	repo := placerepo.New(store, opts, placerepo.Metrics{}, logger)

	parser := query.NewParser(query.PostcodeFormat{
		Country: cfg.Query.PostcodeCountry,
		Digits:  cfg.Query.PostcodeDigits,
	})
	builder := request.NewBuilder(
		request.Limits{Default: cfg.Query.DefaultLimit, Max: cfg.Query.MaxLimit},
		request.DefaultWeights(),
		request.Decay{
			ScaleMeters:  cfg.Ranking.DecayScaleKm * 1000,
			OffsetMeters: cfg.Ranking.DecayOffsetKm * 1000,
			Decay:        cfg.Ranking.Decay,
		},
	)
	merger := autocompleteuc.NewMerger(priority, cfg.Ranking.ScoreEpsilon, nil, logger)
	formatter := format.New()

	return &Client{
		store:        store,
		autocomplete: autocompleteuc.New(parser, builder, repo, merger, formatter),
		lookup:       lookupuc.New(repo, merger, formatter, priority, cfg.Index.ReverseRadiusM),
		loader:       placerepo.NewLoader(store, opts, 0, logger),
		health:       healthuc.New(store, store, cfg.Index.Name, version.Version),
		obs:          obs,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks engine connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Autocomplete resolves a partial query into ranked places.
// Queries without a street, place name or house number yield an empty page.
func (c *Client) Autocomplete(ctx context.Context, q string, o AutocompleteOptions) (_ Page, err error) {
	start := time.Now()
	defer func() { c.obs.observe("autocomplete", start, err) }()

	opts, err := o.toRequest()
	if err != nil {
		return Page{}, err
	}
	page, err := c.autocomplete.Autocomplete(ctx, q, opts)
	if err != nil {
		return Page{}, fmt.Errorf("autocomplete: %w", err)
	}
	return pageFromResult(page), nil
}

// Reverse returns the most precise place at lat/lon, or an empty page.
func (c *Client) Reverse(ctx context.Context, lat, lon float64, lang string) (_ Page, err error) {
	start := time.Now()
	defer func() { c.obs.observe("reverse", start, err) }()

	page, err := c.lookup.Reverse(ctx, geo.Point{Lat: lat, Lon: lon}, lang)
	if err != nil {
		return Page{}, fmt.Errorf("reverse: %w", err)
	}
	return pageFromResult(page), nil
}

// Feature fetches one place by id. Returns ErrNotFound for unknown ids.
func (c *Client) Feature(ctx context.Context, id, lang string) (_ Place, err error) {
	start := time.Now()
	defer func() { c.obs.observe("feature", start, err) }()

	r, err := c.lookup.Feature(ctx, id, lang)
	if err != nil {
		return Place{}, err
	}
	return placeFromResult(r), nil
}

// EnsureIndex creates the place index unless it exists.
// Reports whether it was created.
func (c *Client) EnsureIndex(ctx context.Context) (created bool, err error) {
	start := time.Now()
	defer func() { c.obs.observe("ensure_index", start, err) }()

	return c.loader.EnsureIndex(ctx)
}

// Load writes documents into the index. Documents that fail the place schema
// are skipped and counted; a write failure stops the load.
func (c *Client) Load(ctx context.Context, docs []Document) (loaded, skipped int, err error) {
	start := time.Now()
	defer func() { c.obs.observe("load", start, err) }()

	return c.loader.Load(ctx, docs)
}
