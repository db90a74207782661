// Package autocomplete runs the free-text geocoding pipeline:
// parse, build, query the index, merge, format.
package autocomplete

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/geodex/internal/domain/query"
	"github.com/kailas-cloud/geodex/internal/domain/search/request"
	"github.com/kailas-cloud/geodex/internal/domain/search/result"
)

// Service answers autocomplete queries.
type Service struct {
	parser    *query.Parser
	builder   *request.Builder
	index     Index
	merger    *Merger
	formatter Formatter
}

// New creates an autocomplete service.
func New(parser *query.Parser, builder *request.Builder, index Index, merger *Merger, formatter Formatter) *Service {
	return &Service{parser: parser, builder: builder, index: index, merger: merger, formatter: formatter}
}

// Autocomplete returns one page of ranked places for raw.
// Queries without a name or housenumber anchor (e.g. a bare postcode) yield an empty page.
func (s *Service) Autocomplete(ctx context.Context, raw string, opts request.Options) (result.Page, error) {
	parsed := s.parser.Parse(raw)

	req, err := s.builder.Build(parsed, opts)
	if err != nil {
		return result.Page{}, fmt.Errorf("build request: %w", err)
	}
	if !req.Anchored() {
		return result.Empty(req.Offset(), req.Limit()), nil
	}

	cands, matches, err := s.index.Search(ctx, req)
	if err != nil {
		return result.Page{}, fmt.Errorf("search index: %w", err)
	}

	merged := s.merger.Merge(ctx, cands, parsed)
	page := window(merged, req.Offset(), req.Limit())
	return result.Page{
		Results: s.formatter.Format(page, req.Lang()),
		Total:   total(len(merged), len(cands), matches),
		Offset:  req.Offset(),
		Limit:   req.Limit(),
	}, nil
}

// total adds the matches left beyond the fetch window to the merged count.
// The window is the same for every page it covers, so is the total.
func total(merged, fetched, matches int) int {
	return merged + max(0, matches-fetched)
}
