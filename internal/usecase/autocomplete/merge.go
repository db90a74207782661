package autocomplete

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/geodex/internal/domain/place"
	"github.com/kailas-cloud/geodex/internal/domain/query"
	"github.com/kailas-cloud/geodex/internal/logger"
)

// DefaultEpsilon is the relative score gap within which type priority decides.
const DefaultEpsilon = 0.05

// Merger deduplicates and orders the candidates of one query.
// Stateless apart from its configuration; safe for concurrent use.
type Merger struct {
	priority place.Priority
	epsilon  float64
	dropped  *prometheus.CounterVec // labels: reason; may be nil
	logger   *zap.Logger
}

// NewMerger creates a merger. epsilon <= 0 selects DefaultEpsilon.
func NewMerger(priority place.Priority, epsilon float64, dropped *prometheus.CounterVec, logger *zap.Logger) *Merger {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{priority: priority, epsilon: epsilon, dropped: dropped, logger: logger}
}

// Merge returns the deduplicated, precedence-applied candidates of parsed in final order.
// Malformed candidates are dropped and logged. Merge never fails and is idempotent.
func (m *Merger) Merge(ctx context.Context, cands []place.Candidate, parsed query.Parsed) []place.Candidate {
	valid := m.Valid(ctx, cands)
	out := dedup(valid)
	out = suppressAncestors(out, parsed)
	m.order(out)
	return out
}

// Valid returns the candidates that honour the document schema, logging and
// counting the rest.
func (m *Merger) Valid(ctx context.Context, cands []place.Candidate) []place.Candidate {
	out := make([]place.Candidate, 0, len(cands))
	for _, c := range cands {
		err := c.Validate()
		if err == nil {
			out = append(out, c)
			continue
		}
		reason := "invalid"
		var verr *place.ValidationError
		if errors.As(err, &verr) {
			reason = verr.Reason
		}
		if m.dropped != nil {
			m.dropped.WithLabelValues(reason).Inc()
		}
		logger.FromContextOr(ctx, m.logger).Warn("dropping malformed candidate",
			zap.String("id", c.ID()), zap.String("type", string(c.Type())), zap.String("reason", reason))
	}
	return out
}

// dedup keeps the best candidate per identity key, preserving first-seen order.
func dedup(cands []place.Candidate) []place.Candidate {
	best := make(map[place.Key]int, len(cands))
	out := make([]place.Candidate, 0, len(cands))
	for _, c := range cands {
		k := c.Key()
		i, seen := best[k]
		if !seen {
			best[k] = len(out)
			out = append(out, c)
			continue
		}
		if better(c, out[i]) {
			out[i] = c
		}
	}
	return out
}

func better(a, b place.Candidate) bool {
	if a.Score() != b.Score() {
		return a.Score() > b.Score()
	}
	if a.Importance() != b.Importance() {
		return a.Importance() > b.Importance()
	}
	return a.ID() < b.ID()
}

// suppressAncestors drops street and admin candidates that restate an exact
// address match at lower precision.
func suppressAncestors(cands []place.Candidate, parsed query.Parsed) []place.Candidate {
	exact := exactMatches(cands, parsed)
	if len(exact) == 0 {
		return cands
	}
	out := cands[:0]
	for _, c := range cands {
		if !isAncestorOfAny(c, exact) {
			out = append(out, c)
		}
	}
	return out
}

func exactMatches(cands []place.Candidate, parsed query.Parsed) []place.Candidate {
	hn := parsed.HouseNumber()
	if hn == nil || parsed.Postcode() == "" {
		return nil
	}
	number := place.Normalize(hn.String())
	postcode := place.Normalize(parsed.Postcode())

	var out []place.Candidate
	for _, c := range cands {
		if c.Type() == place.House &&
			place.Normalize(c.HouseNumber()) == number &&
			place.Normalize(c.Postcode()) == postcode {
			out = append(out, c)
		}
	}
	return out
}

func isAncestorOfAny(c place.Candidate, houses []place.Candidate) bool {
	for _, h := range houses {
		if c.IsAncestorOf(h) {
			return true
		}
	}
	return false
}

// order sorts by score into bands: a band holds every candidate within epsilon
// (relative) of the band's top score. Inside a band type priority decides first.
func (m *Merger) order(cands []place.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return m.finer(cands[i], cands[j], false)
	})

	for start := 0; start < len(cands); {
		floor := cands[start].Score() - m.epsilon*math.Abs(cands[start].Score())
		end := start + 1
		for end < len(cands) && cands[end].Score() >= floor {
			end++
		}
		band := cands[start:end]
		sort.SliceStable(band, func(i, j int) bool {
			return m.finer(band[i], band[j], true)
		})
		start = end
	}
}

// finer is the total order used inside and across bands.
func (m *Merger) finer(a, b place.Candidate, byType bool) bool {
	if byType {
		if ra, rb := m.priority.Rank(a.Type()), m.priority.Rank(b.Type()); ra != rb {
			return ra < rb
		}
	}
	if a.Score() != b.Score() {
		return a.Score() > b.Score()
	}
	if a.Importance() != b.Importance() {
		return a.Importance() > b.Importance()
	}
	if a.ID() != b.ID() {
		return a.ID() < b.ID()
	}
	return m.priority.Rank(a.Type()) < m.priority.Rank(b.Type())
}

// window returns seq[offset : offset+limit] clamped to bounds.
func window[T any](seq []T, offset, limit int) []T {
	if offset >= len(seq) {
		return seq[:0]
	}
	end := min(offset+limit, len(seq))
	return seq[offset:end]
}
