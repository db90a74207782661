package lookup

import (
	"context"

	"github.com/kailas-cloud/geodex/internal/domain/geo"
	"github.com/kailas-cloud/geodex/internal/domain/place"
	"github.com/kailas-cloud/geodex/internal/domain/search/result"
)

// Index reads places by location and by id.
type Index interface {
	Nearest(ctx context.Context, center geo.Point, radiusMeters float64, types []place.Type, size int) ([]place.Candidate, error)
	Covering(ctx context.Context, p geo.Point, types []place.Type, size int) ([]place.Candidate, error)
	Get(ctx context.Context, id string) (place.Candidate, error)
}

// Validator drops candidates that break the document schema.
type Validator interface {
	Valid(ctx context.Context, cands []place.Candidate) []place.Candidate
}

// Formatter renders a single candidate.
type Formatter interface {
	FormatOne(c place.Candidate, lang string) result.RankedResult
}
