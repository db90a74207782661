package autocomplete

import (
	"context"

	"github.com/kailas-cloud/geodex/internal/domain/place"
	"github.com/kailas-cloud/geodex/internal/domain/search/request"
	"github.com/kailas-cloud/geodex/internal/domain/search/result"
)

// Index executes built requests against the place index.
// total counts every match, including those beyond req.Window().
type Index interface {
	Search(ctx context.Context, req request.Request) (cands []place.Candidate, total int, err error)
}

// Formatter renders merged candidates.
type Formatter interface {
	Format(cands []place.Candidate, lang string) []result.RankedResult
}
