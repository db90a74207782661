// Package lookup implements the coordinate and id keyed place lookups.
package lookup

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/geodex/internal/domain"
	"github.com/kailas-cloud/geodex/internal/domain/geo"
	"github.com/kailas-cloud/geodex/internal/domain/place"
	"github.com/kailas-cloud/geodex/internal/domain/search/result"
)

// DefaultRadiusMeters bounds the nearest-point search of Reverse.
const DefaultRadiusMeters = 500

// tieMeters is the radius difference under which type priority decides.
const tieMeters = 1.0

// candidatesPerKind is how many rows each reverse sub-query fetches.
const candidatesPerKind = 10

var (
	pointTypes = []place.Type{place.House, place.Street, place.POI}
	areaTypes  = []place.Type{place.Admin, place.Zone}
)

// Service answers reverse and feature lookups.
type Service struct {
	index     Index
	validator Validator
	formatter Formatter
	priority  place.Priority
	radius    float64
}

// New creates a lookup service. radiusMeters <= 0 selects DefaultRadiusMeters.
func New(index Index, validator Validator, formatter Formatter, priority place.Priority, radiusMeters float64) *Service {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}
	return &Service{index: index, validator: validator, formatter: formatter, priority: priority, radius: radiusMeters}
}

// Reverse returns the place at p: the candidate with the smallest effective radius
// among nearby houses, streets and POIs and the areas covering p. A page with no
// results means nothing is there.
func (s *Service) Reverse(ctx context.Context, p geo.Point, lang string) (result.Page, error) {
	if !geo.ValidateCoordinates(p.Lat, p.Lon) {
		return result.Page{}, fmt.Errorf("%w: coordinates out of range", domain.ErrInvalidRequest)
	}

	// Both sub-queries run at once, so each index deadline bounds the whole lookup.
	var near, covering []place.Candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if near, err = s.index.Nearest(gctx, p, s.radius, pointTypes, candidatesPerKind); err != nil {
			return fmt.Errorf("nearest: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if covering, err = s.index.Covering(gctx, p, areaTypes, candidatesPerKind); err != nil {
			return fmt.Errorf("covering: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return result.Page{}, err
	}

	cands := s.validator.Valid(ctx, append(near, covering...))
	best, ok := s.closest(p, cands)
	if !ok {
		return result.Empty(0, 1), nil
	}
	return result.Page{
		Results: []result.RankedResult{s.formatter.FormatOne(best, lang)},
		Total:   1,
		Limit:   1,
	}, nil
}

// closest picks the smallest effective radius; the returned candidate's score is that radius.
func (s *Service) closest(p geo.Point, cands []place.Candidate) (place.Candidate, bool) {
	var (
		best   place.Candidate
		bestR  float64
		picked bool
	)
	for _, c := range cands {
		r, ok := effectiveRadius(p, c, s.radius)
		if !ok {
			continue
		}
		if !picked || r < bestR-tieMeters ||
			(r <= bestR+tieMeters && s.priority.Less(c.Type(), best.Type())) {
			best, bestR, picked = c, r, true
		}
	}
	return best.WithScore(bestR), picked
}

// effectiveRadius is the distance to point documents, or half the bounding box
// diagonal for areas whose box covers p.
func effectiveRadius(p geo.Point, c place.Candidate, maxPoint float64) (float64, bool) {
	g := c.Geometry()
	if c.Type().IsArea() {
		if g.BBox.IsZero() || !g.BBox.Contains(p) {
			return 0, false
		}
		return g.BBox.HalfDiagonalMeters(), true
	}
	d := p.DistanceTo(g.Point)
	return d, d <= maxPoint
}

// Feature fetches one place by id.
func (s *Service) Feature(ctx context.Context, id, lang string) (result.RankedResult, error) {
	c, err := s.index.Get(ctx, id)
	if err != nil {
		return result.RankedResult{}, fmt.Errorf("feature %q: %w", id, err)
	}
	if len(s.validator.Valid(ctx, []place.Candidate{c})) == 0 {
		return result.RankedResult{}, fmt.Errorf("feature %q: %w", id, domain.ErrNotFound)
	}
	return s.formatter.FormatOne(c, lang), nil
}
