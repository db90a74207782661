package request

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/geodex/internal/domain"
	"github.com/kailas-cloud/geodex/internal/domain/geo"
	"github.com/kailas-cloud/geodex/internal/domain/place"
	"github.com/kailas-cloud/geodex/internal/domain/query"
	"github.com/kailas-cloud/geodex/internal/domain/search/filter"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed raw query length in bytes.
	MaxQueryLength = 1024
	DefaultLimit   = 10
	MaxLimit       = 20
	// MaxWindow is how many raw candidates are fetched for merging. Every page
	// within it sees the same candidate set, so totals agree across pages.
	MaxWindow = 100
)

// Document fields targeted by clauses.
const (
	FieldName        = "name"
	FieldStreet      = "street"
	FieldHouseNumber = "housenumber"
	FieldPostcode    = "postcode"
	FieldType        = "type"
	FieldAdminNames  = "admin_names"
)

// Weights are clause boosts.
type Weights struct {
	Postcode    float64
	HouseNumber float64
	NamePrefix  float64
	NameFuzzy   float64
	Street      float64
	Admin       float64
}

// DefaultWeights favour exact address components over name matches.
func DefaultWeights() Weights {
	return Weights{Postcode: 10, HouseNumber: 10, NamePrefix: 3, NameFuzzy: 1, Street: 2, Admin: 2}
}

// Limits bound pagination.
type Limits struct {
	Default int
	Max     int
}

// Decay configures the gaussian geographic bias.
type Decay struct {
	ScaleMeters  float64
	OffsetMeters float64
	Decay        float64
}

// DefaultDecay halves the score 50 km from the bias center.
func DefaultDecay() Decay {
	return Decay{ScaleMeters: 50_000, Decay: 0.5}
}

// Bias is a smooth proximity preference, never a hard filter.
type Bias struct {
	Center       geo.Point
	ScaleMeters  float64
	OffsetMeters float64
	Decay        float64
}

// Factor returns the score multiplier for a document at p.
func (b Bias) Factor(p geo.Point) float64 {
	return geo.GaussDecay(b.Center.DistanceTo(p), b.ScaleMeters, b.OffsetMeters, b.Decay)
}

// Options are caller-supplied request options.
type Options struct {
	Limit  int // 0 selects the default
	Offset int
	Center *geo.Point
	BBox   *geo.BBox
	Shape  *geo.Shape
	Types  []place.Type
	Lang   string
}

// Request is a validated engine-neutral search request.
type Request struct {
	expression filter.Expression
	bias       *Bias
	bbox       *geo.BBox
	shape      *geo.Shape
	types      []place.Type
	offset     int
	limit      int
	window     int
	lang       string
	anchored   bool
}

// Expression returns the clause tree.
func (r Request) Expression() filter.Expression { return r.expression }

// Bias returns the geographic bias (nil when no center was given).
func (r Request) Bias() *Bias { return r.bias }

// BBox returns the bounding-box restriction (nil when unset).
func (r Request) BBox() *geo.BBox { return r.bbox }

// Shape returns the polygon restriction (nil when unset).
func (r Request) Shape() *geo.Shape { return r.shape }

// Types returns the allowed types (empty means all).
func (r Request) Types() []place.Type { return r.types }

// Offset returns the page offset.
func (r Request) Offset() int { return r.offset }

// Limit returns the page size.
func (r Request) Limit() int { return r.limit }

// Window returns how many candidates to fetch from the index.
func (r Request) Window() int { return r.window }

// Lang returns the language hint for labels.
func (r Request) Lang() string { return r.lang }

// Anchored reports whether the query names something an index can match on.
// An unanchored request yields an empty page without an index call.
func (r Request) Anchored() bool { return r.anchored }

// Builder translates parsed queries into requests.
type Builder struct {
	limits  Limits
	weights Weights
	decay   Decay
}

// NewBuilder creates a Builder. Zero values select defaults.
func NewBuilder(limits Limits, weights Weights, decay Decay) *Builder {
	if limits.Max <= 0 {
		limits.Max = MaxLimit
	}
	if limits.Default <= 0 || limits.Default > limits.Max {
		limits.Default = min(DefaultLimit, limits.Max)
	}
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	if decay == (Decay{}) {
		decay = DefaultDecay()
	}
	return &Builder{limits: limits, weights: weights, decay: decay}
}

// Build validates opts and produces the clause tree for parsed.
func (b *Builder) Build(parsed query.Parsed, opts Options) (Request, error) {
	if len(parsed.Raw()) > MaxQueryLength {
		return Request{}, invalid("query too long (max %d bytes)", MaxQueryLength)
	}
	if opts.Limit < 0 {
		return Request{}, invalid("limit must be non-negative, got %d", opts.Limit)
	}
	if opts.Offset < 0 {
		return Request{}, invalid("offset must be non-negative, got %d", opts.Offset)
	}
	limit := opts.Limit
	if limit == 0 {
		limit = b.limits.Default
	}
	if limit > b.limits.Max {
		limit = b.limits.Max
	}

	req := Request{
		offset:   opts.Offset,
		limit:    limit,
		window:   window(opts.Offset, limit),
		lang:     strings.ToLower(strings.TrimSpace(opts.Lang)),
		anchored: parsed.HasAnchor(),
	}

	if opts.Center != nil {
		if !geo.ValidateCoordinates(opts.Center.Lat, opts.Center.Lon) {
			return Request{}, invalid("center coordinates out of range")
		}
		req.bias = &Bias{
			Center:       *opts.Center,
			ScaleMeters:  b.decay.ScaleMeters,
			OffsetMeters: b.decay.OffsetMeters,
			Decay:        b.decay.Decay,
		}
	}
	if opts.BBox != nil {
		bb, err := geo.NewBBox(opts.BBox.MinLat, opts.BBox.MinLon, opts.BBox.MaxLat, opts.BBox.MaxLon)
		if err != nil {
			return Request{}, invalid("%v", err)
		}
		req.bbox = &bb
	}
	if opts.Shape != nil {
		shape := *opts.Shape
		req.shape = &shape
	}
	types, err := uniqueTypes(opts.Types)
	if err != nil {
		return Request{}, err
	}
	req.types = types

	if !req.anchored {
		return req, nil
	}

	expr, err := b.clauses(parsed, types)
	if err != nil {
		return Request{}, invalid("%v", err)
	}
	req.expression = expr
	return req, nil
}

func (b *Builder) clauses(parsed query.Parsed, types []place.Type) (filter.Expression, error) {
	var must, should, restrict []filter.Condition
	add := func(group *[]filter.Condition, c filter.Condition, err error) error {
		if err != nil {
			return err
		}
		*group = append(*group, c)
		return nil
	}

	if pc := parsed.Postcode(); pc != "" {
		c, err := filter.NewExact(FieldPostcode, pc, b.weights.Postcode)
		if err := add(&must, c, err); err != nil {
			return filter.Expression{}, err
		}
	}

	if text := parsed.FreeText(); text != "" {
		prefix, err := filter.NewPrefix(FieldName, text, b.weights.NamePrefix)
		if err != nil {
			return filter.Expression{}, err
		}
		fuzzy, err := filter.NewFuzzy(FieldName, text, b.weights.NameFuzzy)
		if err != nil {
			return filter.Expression{}, err
		}
		c, err := filter.NewEither(prefix, fuzzy)
		if err := add(&must, c, err); err != nil {
			return filter.Expression{}, err
		}
		c, err = filter.NewPrefix(FieldStreet, text, b.weights.Street)
		if err := add(&should, c, err); err != nil {
			return filter.Expression{}, err
		}
	}

	if hn := parsed.HouseNumber(); hn != nil {
		c, err := filter.NewExact(FieldHouseNumber, hn.String(), b.weights.HouseNumber)
		if err := add(&should, c, err); err != nil {
			return filter.Expression{}, err
		}
		c, err = houseNumberGate(hn.String(), types)
		if err := add(&restrict, c, err); err != nil {
			return filter.Expression{}, err
		}
	}

	if admin := parsed.AdminText(); admin != "" {
		c, err := filter.NewFuzzy(FieldAdminNames, admin, b.weights.Admin)
		if err := add(&should, c, err); err != nil {
			return filter.Expression{}, err
		}
	}

	if len(types) > 0 {
		c, err := filter.NewTerms(FieldType, typeStrings(types))
		if err := add(&restrict, c, err); err != nil {
			return filter.Expression{}, err
		}
	}

	// Without a required clause every optional clause becomes required,
	// otherwise the restrictions alone would match the whole index.
	if len(must) == 0 {
		must, should = should, nil
	}
	return filter.NewExpression(must, should, restrict)
}

// houseNumberGate admits houses only when their number matches, and every other type as is.
func houseNumberGate(number string, types []place.Type) (filter.Condition, error) {
	exact, err := filter.NewExact(FieldHouseNumber, number, 1)
	if err != nil {
		return filter.Condition{}, err
	}
	if len(types) == 0 {
		types = place.AllTypes()
	}
	var others []string
	for _, t := range types {
		if t != place.House {
			others = append(others, string(t))
		}
	}
	if len(others) == 0 {
		return exact, nil
	}
	nonHouse, err := filter.NewTerms(FieldType, others)
	if err != nil {
		return filter.Condition{}, err
	}
	return filter.NewEither(nonHouse, exact)
}

func uniqueTypes(in []place.Type) ([]place.Type, error) {
	if len(in) == 0 {
		return nil, nil
	}
	seen := make(map[place.Type]bool, len(in))
	out := make([]place.Type, 0, len(in))
	for _, t := range in {
		if !t.IsValid() {
			return nil, invalid("unknown place type %q", t)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

func typeStrings(types []place.Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func window(offset, limit int) int {
	return max(offset+limit, MaxWindow)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, fmt.Sprintf(format, args...))
}
