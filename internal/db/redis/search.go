package redis

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/geodex/internal/db"
	"github.com/kailas-cloud/geodex/internal/domain/geo"
	"github.com/kailas-cloud/geodex/internal/domain/search/filter"
)

// nearFetchCap bounds how many in-radius hits are pulled before sorting by distance:
// FT.SEARCH cannot order by geo distance itself.
const nearFetchCap = 1000

// overFetch multiplies the page size when rows are rescored or filtered after
// FT.SEARCH, so that weaker text matches close to the bias center can still rank.
// Matches beyond overFetch*Limit are out of reach.
const overFetch = 5

// SearchPlaces runs a scored clause-tree search via FT.SEARCH WITHSCORES.
// Geographic decay, the bounding box and the shape are applied to the returned rows.
func (s *Store) SearchPlaces(ctx context.Context, q *db.PlaceQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	parts := []string{}
	if expr := buildExpression(q.Expression); expr != "" {
		parts = append(parts, expr)
	}
	if q.BBox != nil {
		parts = append(parts, buildGeoFilter(db.FieldCoord, q.BBox.Center(), q.BBox.HalfDiagonalMeters()))
	}
	if q.Shape != nil {
		env := q.Shape.Envelope()
		parts = append(parts, buildGeoFilter(db.FieldCoord, env.Center(), env.HalfDiagonalMeters()))
	}
	queryStr := "*"
	if len(parts) > 0 {
		queryStr = strings.Join(parts, " ")
	}

	adjusted := q.BBox != nil || q.Shape != nil || q.Decay != nil
	fetch := q.Limit
	if adjusted {
		fetch = max(q.Limit, min(q.Limit*overFetch, nearFetchCap))
	}

	raw, err := s.search(ctx, q.IndexName, queryStr, true, fetch)
	if err != nil {
		return nil, err
	}
	res, err := parseScoredResult(raw)
	if err != nil {
		return nil, err
	}
	if !adjusted {
		return res, nil
	}

	fetched := len(res.Entries)
	res.Entries = adjustEntries(res.Entries, q.Decay, q.BBox, q.Shape)
	// The geo prefilter is a circle around the area: rows it let through but
	// the area rejects are not matches.
	if fetched >= res.Total {
		res.Total = len(res.Entries)
	} else {
		res.Total = max(res.Total-(fetched-len(res.Entries)), len(res.Entries))
	}
	if len(res.Entries) > q.Limit {
		res.Entries = res.Entries[:q.Limit]
	}
	return res, nil
}

// SearchNear returns point documents within the radius, nearest first.
func (s *Store) SearchNear(ctx context.Context, q *db.NearQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.Limit <= 0 || q.RadiusMeters <= 0 {
		return nil, fmt.Errorf("limit and radius must be positive")
	}

	parts := []string{buildGeoFilter(db.FieldCoord, q.Center, q.RadiusMeters)}
	if len(q.Types) > 0 {
		parts = append(parts, buildTagFilter(db.FieldType, q.Types...))
	}

	raw, err := s.search(ctx, q.IndexName, strings.Join(parts, " "), false, nearFetchCap)
	if err != nil {
		return nil, err
	}
	res, err := parseListResult(raw)
	if err != nil {
		return nil, err
	}

	entries := make([]db.SearchEntry, 0, len(res.Entries))
	for _, e := range res.Entries {
		p, err := geo.ParsePoint(e.Fields[db.FieldCoord])
		if err != nil {
			continue
		}
		e.Score = q.Center.DistanceTo(p)
		entries = append(entries, e)
	}
	slices.SortStableFunc(entries, func(a, b db.SearchEntry) int { return cmp.Compare(a.Score, b.Score) })
	if len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}
	res.Entries = entries
	return res, nil
}

// SearchCovering returns documents whose bounding box contains the point,
// smallest box first (score is the half-diagonal in meters).
func (s *Store) SearchCovering(ctx context.Context, q *db.CoverQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	lat := formatFloat(q.Point.Lat)
	lon := formatFloat(q.Point.Lon)
	parts := []string{
		fmt.Sprintf("@%s:[-inf %s]", db.FieldBBoxMinLat, lat),
		fmt.Sprintf("@%s:[%s +inf]", db.FieldBBoxMaxLat, lat),
		fmt.Sprintf("@%s:[-inf %s]", db.FieldBBoxMinLon, lon),
		fmt.Sprintf("@%s:[%s +inf]", db.FieldBBoxMaxLon, lon),
	}
	if len(q.Types) > 0 {
		parts = append(parts, buildTagFilter(db.FieldType, q.Types...))
	}

	raw, err := s.search(ctx, q.IndexName, strings.Join(parts, " "), false, q.Limit)
	if err != nil {
		return nil, err
	}
	res, err := parseListResult(raw)
	if err != nil {
		return nil, err
	}

	for i := range res.Entries {
		if bb, ok := parseBBox(res.Entries[i].Fields); ok {
			res.Entries[i].Score = bb.HalfDiagonalMeters()
		}
	}
	slices.SortStableFunc(res.Entries, func(a, b db.SearchEntry) int { return cmp.Compare(a.Score, b.Score) })
	return res, nil
}

func (s *Store) search(
	ctx context.Context, index, queryStr string, withScores bool, limit int,
) ([]rueidis.RedisMessage, error) {
	args := []string{index, queryStr}
	if withScores {
		args = append(args, "WITHSCORES")
	}
	args = append(args, "LIMIT", "0", strconv.Itoa(limit), "DIALECT", "2")

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		switch {
		case isRedisErr(err, "unknown index name"), isRedisErr(err, "no such index"):
			return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("%w: %s", db.ErrIndexNotFound, index)}
		case isRedisErr(err, "syntax error"):
			return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("%w: %v", db.ErrBadQuery, err)}
		}
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	return raw, nil
}

func adjustEntries(entries []db.SearchEntry, decay *db.GeoDecay, bbox *geo.BBox, shape *geo.Shape) []db.SearchEntry {
	out := entries[:0]
	for _, e := range entries {
		p, err := geo.ParsePoint(e.Fields[db.FieldCoord])
		if err != nil {
			// No usable point: keep the row unbiased, the repository decides on validity.
			if bbox == nil && shape == nil {
				out = append(out, e)
			}
			continue
		}
		if bbox != nil && !bbox.Contains(p) {
			continue
		}
		if shape != nil && !shape.Contains(p) {
			continue
		}
		if decay != nil {
			e.Score *= decay.Factor(p)
		}
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(a, b db.SearchEntry) int { return cmp.Compare(b.Score, a.Score) })
	return out
}

// --- Result parsing ---

func parseScoredResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, min(int(total), (len(raw)-1)/3))
	// 3-stride: [total, key1, score1, fields1, key2, score2, fields2, ...]
	for i := 1; i+2 < len(raw); i += 3 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}

		fields, err := raw[i+2].ToArray()
		if err != nil {
			continue
		}

		entries = append(entries, db.SearchEntry{
			Key:    key,
			Score:  score,
			Fields: parseFieldPairs(fields),
		})
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseListResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, min(int(total), (len(raw)-1)/2))
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entries = append(entries, db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		})
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

func parseBBox(fields map[string]string) (geo.BBox, bool) {
	var v [4]float64
	for i, name := range []string{db.FieldBBoxMinLat, db.FieldBBoxMinLon, db.FieldBBoxMaxLat, db.FieldBBoxMaxLon} {
		f, err := strconv.ParseFloat(fields[name], 64)
		if err != nil {
			return geo.BBox{}, false
		}
		v[i] = f
	}
	bb, err := geo.NewBBox(v[0], v[1], v[2], v[3])
	return bb, err == nil
}

// --- Query building ---

// buildExpression renders a clause tree as an FT.SEARCH query.
// Must and filter clauses intersect; should clauses are optional (~) and only add score.
func buildExpression(expr filter.Expression) string {
	if expr.IsEmpty() {
		return ""
	}

	var parts []string
	for _, c := range expr.Must() {
		if s := buildCondition(c, true); s != "" {
			parts = append(parts, s)
		}
	}
	for _, c := range expr.Filter() {
		if s := buildCondition(c, false); s != "" {
			parts = append(parts, s)
		}
	}
	required := len(parts) > 0
	for _, c := range expr.Should() {
		s := buildCondition(c, true)
		if s == "" {
			continue
		}
		if required {
			s = "~" + s
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

func buildCondition(c filter.Condition, weighted bool) string {
	var s string
	switch c.Kind() {
	case filter.KindExact:
		s = buildTagFilter(c.Field(), c.Value())
	case filter.KindTerms:
		s = buildTagFilter(c.Field(), c.Values()...)
	case filter.KindPrefix:
		s = buildPrefixText(c.Field(), c.Value())
	case filter.KindFuzzy:
		s = buildFuzzyText(c.Field(), c.Value())
	case filter.KindEither:
		alts := make([]string, 0, len(c.Any()))
		for _, a := range c.Any() {
			if as := buildCondition(a, weighted); as != "" {
				alts = append(alts, as)
			}
		}
		if len(alts) == 0 {
			return ""
		}
		return "(" + strings.Join(alts, " | ") + ")"
	}
	if s == "" || !weighted || c.Boost() == 1 {
		return s
	}
	return fmt.Sprintf("(%s) => { $weight: %s; }", s, formatFloat(c.Boost()))
}

func buildTagFilter(field string, values ...string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = tagEscaper.Replace(v)
	}
	return fmt.Sprintf("@%s:{%s}", field, strings.Join(escaped, " | "))
}

// buildPrefixText matches all words in order-insensitive intersection, the last as a prefix.
func buildPrefixText(field, value string) string {
	ws := words(value)
	if len(ws) == 0 {
		return ""
	}
	last := len(ws) - 1
	if utf8.RuneCountInString(ws[last]) >= 2 {
		ws[last] += "*"
	}
	return fmt.Sprintf("@%s:(%s)", field, strings.Join(ws, " "))
}

// buildFuzzyText allows one edit per word of four or more characters.
func buildFuzzyText(field, value string) string {
	ws := words(value)
	if len(ws) == 0 {
		return ""
	}
	for i, w := range ws {
		if utf8.RuneCountInString(w) >= 4 {
			ws[i] = "%" + w + "%"
		}
	}
	return fmt.Sprintf("@%s:(%s)", field, strings.Join(ws, " "))
}

func buildGeoFilter(field string, center geo.Point, radiusMeters float64) string {
	return fmt.Sprintf("@%s:[%s %s %s m]", field,
		formatFloat(center.Lon), formatFloat(center.Lat), formatFloat(radiusMeters))
}

// words splits text the way the engine tokenizes it: on anything but letters and digits.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	" ", "\\ ",
)
