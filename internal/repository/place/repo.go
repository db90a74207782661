package place

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/kailas-cloud/geodex/internal/db"
	"github.com/kailas-cloud/geodex/internal/domain"
	"github.com/kailas-cloud/geodex/internal/domain/geo"
	domplace "github.com/kailas-cloud/geodex/internal/domain/place"
	"github.com/kailas-cloud/geodex/internal/domain/search/request"
	"github.com/kailas-cloud/geodex/internal/logger"
)

// Index operations, used as metric labels.
const (
	OpSearch   = "search"
	OpNearest  = "nearest"
	OpCovering = "covering"
	OpGet      = "get"
)

// ReasonUndecodable labels rows that could not be decoded into a candidate.
const ReasonUndecodable = "undecodable"

// Defaults for Options.
const (
	DefaultTimeout    = 2 * time.Second
	DefaultRetryDelay = 50 * time.Millisecond
)

// store is the consumer interface for place queries (ISP).
type store interface {
	db.PlaceSearcher
	GetDocument(ctx context.Context, index, key string) (map[string]string, error)
}

// Options configure the index client.
type Options struct {
	IndexName  string
	KeyPrefix  string // storage key prefix, e.g. "geodex:place:"
	Timeout    time.Duration
	RetryDelay time.Duration
}

// Metrics are optional collectors; nil fields are skipped.
type Metrics struct {
	Requests *prometheus.CounterVec   // labels: op, status
	Duration *prometheus.HistogramVec // labels: op
	Retries  *prometheus.CounterVec   // labels: op
	Dropped  *prometheus.CounterVec   // labels: reason
}

// Repo is the index client: it runs requests against an engine with a deadline
// and a single retry, and decodes rows into candidates.
type Repo struct {
	store   store
	opts    Options
	metrics Metrics
	logger  *zap.Logger
}

// New creates a place repository.
func New(s store, opts Options, m Metrics, logger *zap.Logger) *Repo {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{store: s, opts: opts, metrics: m, logger: logger}
}

// Search executes a built request and returns up to req.Window() candidates
// in engine order. Scores include the geographic bias. total counts every
// decodable match in the index, including those beyond the window.
func (r *Repo) Search(ctx context.Context, req request.Request) (cands []domplace.Candidate, total int, err error) {
	q := &db.PlaceQuery{
		IndexName:  r.opts.IndexName,
		Expression: req.Expression(),
		BBox:       req.BBox(),
		Shape:      req.Shape(),
		Limit:      req.Window(),
	}
	if b := req.Bias(); b != nil {
		q.Decay = &db.GeoDecay{
			Center:       b.Center,
			ScaleMeters:  b.ScaleMeters,
			OffsetMeters: b.OffsetMeters,
			Decay:        b.Decay,
		}
	}

	var sr *db.SearchResult
	err = r.call(ctx, OpSearch, func(ctx context.Context) error {
		var err error
		sr, err = r.store.SearchPlaces(ctx, q)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	cands = r.decode(ctx, sr)
	if sr != nil {
		dropped := len(sr.Entries) - len(cands)
		total = max(sr.Total-dropped, len(cands))
	}
	return cands, total, nil
}

// Nearest returns point documents within radiusMeters of center, nearest first.
// Candidate scores are distances in meters.
func (r *Repo) Nearest(
	ctx context.Context, center geo.Point, radiusMeters float64, types []domplace.Type, size int,
) ([]domplace.Candidate, error) {
	q := &db.NearQuery{
		IndexName:    r.opts.IndexName,
		Center:       center,
		RadiusMeters: radiusMeters,
		Types:        typeStrings(types),
		Limit:        size,
	}

	var sr *db.SearchResult
	err := r.call(ctx, OpNearest, func(ctx context.Context) error {
		var err error
		sr, err = r.store.SearchNear(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.decode(ctx, sr), nil
}

// Covering returns documents whose bounding box contains p, smallest first.
// Candidate scores are bounding box half-diagonals in meters.
func (r *Repo) Covering(ctx context.Context, p geo.Point, types []domplace.Type, size int) ([]domplace.Candidate, error) {
	q := &db.CoverQuery{
		IndexName: r.opts.IndexName,
		Point:     p,
		Types:     typeStrings(types),
		Limit:     size,
	}

	var sr *db.SearchResult
	err := r.call(ctx, OpCovering, func(ctx context.Context) error {
		var err error
		sr, err = r.store.SearchCovering(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.decode(ctx, sr), nil
}

// Get fetches a single document by id.
func (r *Repo) Get(ctx context.Context, id string) (domplace.Candidate, error) {
	if id == "" {
		return domplace.Candidate{}, fmt.Errorf("%w: empty id", domain.ErrNotFound)
	}

	var fields map[string]string
	err := r.call(ctx, OpGet, func(ctx context.Context) error {
		var err error
		fields, err = r.store.GetDocument(ctx, r.opts.IndexName, r.opts.KeyPrefix+id)
		return err
	})
	if err != nil {
		return domplace.Candidate{}, err
	}

	c, err := parseFields(id, 0, fields)
	if err != nil {
		r.drop(ctx, ReasonUndecodable, err)
		return domplace.Candidate{}, fmt.Errorf("get %s: %w", id, err)
	}
	return c, nil
}

// call runs fn under the request deadline, retrying once on transient failures.
func (r *Repo) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	start := time.Now()
	attempt := 0
	backoff := retry.WithMaxRetries(1, retry.NewConstant(r.opts.RetryDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			r.incRetry(op)
		}
		err := fn(ctx)
		if err == nil || !retryable(ctx, err) {
			return err
		}
		logger.FromContextOr(ctx, r.logger).Warn("index request failed, retrying",
			zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		return retry.RetryableError(err)
	})

	mapped := mapError(ctx, op, err)
	r.observe(op, start, mapped)
	return mapped
}

// retryable reports whether a failure may succeed on a second attempt.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch {
	case errors.Is(err, db.ErrKeyNotFound),
		errors.Is(err, db.ErrBadQuery),
		errors.Is(err, db.ErrIndexNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func mapError(ctx context.Context, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrKeyNotFound):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, domain.ErrTimeout)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, db.ErrBadQuery):
		// Rejected queries surface as internal errors.
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrIndexUnavailable, err)
}

func (r *Repo) decode(ctx context.Context, sr *db.SearchResult) []domplace.Candidate {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}
	out := make([]domplace.Candidate, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		c, err := parseFields(strings.TrimPrefix(e.Key, r.opts.KeyPrefix), e.Score, e.Fields)
		if err != nil {
			r.drop(ctx, ReasonUndecodable, err)
			continue
		}
		out = append(out, c)
	}
	return out
}

func (r *Repo) drop(ctx context.Context, reason string, err error) {
	if r.metrics.Dropped != nil {
		r.metrics.Dropped.WithLabelValues(reason).Inc()
	}
	logger.FromContextOr(ctx, r.logger).Warn("dropping index row", zap.String("reason", reason), zap.Error(err))
}

func (r *Repo) incRetry(op string) {
	if r.metrics.Retries != nil {
		r.metrics.Retries.WithLabelValues(op).Inc()
	}
}

func (r *Repo) observe(op string, start time.Time, err error) {
	if r.metrics.Duration != nil {
		r.metrics.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	if r.metrics.Requests != nil {
		r.metrics.Requests.WithLabelValues(op, statusLabel(err)).Inc()
	}
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrIndexUnavailable):
		return "unavailable"
	}
	return "error"
}

func typeStrings(types []domplace.Type) []string {
	if len(types) == 0 {
		return nil
	}
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
