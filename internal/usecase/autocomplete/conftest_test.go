package autocomplete

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/kailas-cloud/geodex/internal/domain/geo"
	"github.com/kailas-cloud/geodex/internal/domain/place"
	"github.com/kailas-cloud/geodex/internal/domain/query"
	"github.com/kailas-cloud/geodex/internal/domain/search/filter"
	"github.com/kailas-cloud/geodex/internal/domain/search/request"
	"github.com/kailas-cloud/geodex/internal/usecase/format"
)

var (
	berlin  = place.AdminRef{ID: "admin:berlin", Name: "Berlin", Level: place.LevelCity}
	hamburg = place.AdminRef{ID: "admin:hamburg", Name: "Hamburg", Level: place.LevelCity}
	germany = place.AdminRef{ID: "admin:de", Name: "Deutschland", Level: place.LevelCountry}
	mitte   = place.Geometry{Point: geo.Point{Lat: 52.5170, Lon: 13.3889}}
)

func house(id, street, number, postcode string, score float64) place.Candidate {
	return place.New(id, place.House, score, mitte, place.Attributes{
		Name: street, Street: street, HouseNumber: number, Postcode: postcode,
		Admins: []place.AdminRef{berlin, germany},
	})
}

func street(id, name, postcode string, score float64, city place.AdminRef) place.Candidate {
	return place.New(id, place.Street, score, mitte, place.Attributes{
		Name: name, Postcode: postcode, Admins: []place.AdminRef{city, germany},
	})
}

func admin(id, name string, score float64, parents ...place.AdminRef) place.Candidate {
	return place.New(id, place.Admin, score, mitte, place.Attributes{Name: name, Admins: parents})
}

func poi(id, name, postcode string, score float64) place.Candidate {
	return place.New(id, place.POI, score, mitte, place.Attributes{
		Name: name, Postcode: postcode, Admins: []place.AdminRef{berlin, germany},
	})
}

// fixtureDocs mirrors the open-address fixture around Berlin Mitte.
func fixtureDocs() []place.Candidate {
	return []place.Candidate{
		house("h-doro-27", "Dorotheenstraße", "27", "10117", 0),
		house("h-doro-28", "Dorotheenstraße", "28", "10117", 0),
		house("h-otto-72", "Otto-Braun-Straße", "72", "10178", 0),
		house("h-otto-74", "Otto-Braun-Straße", "74", "10178", 0),
		street("s-doro", "Dorotheenstraße", "10117", 0, berlin),
		street("s-otto", "Otto-Braun-Straße", "10178", 0, berlin),
		street("s-doro-hh", "Dorotheenstraße", "22301", 0, hamburg),
		admin("admin:berlin", "Berlin", 0, germany),
		poi("p-reichstag", "Reichstagsgebäude", "11011", 0),
	}
}

// fakeIndex evaluates request clauses over an in-memory document set:
// exact is folded equality, prefix is a folded word prefix, fuzzy is a folded
// substring, terms is membership and either is disjunction.
type fakeIndex struct {
	mu    sync.Mutex
	docs  []place.Candidate
	err   error
	calls []request.Request
}

func (f *fakeIndex) Search(_ context.Context, req request.Request) ([]place.Candidate, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, 0, f.err
	}

	expr := req.Expression()
	var out []place.Candidate
	for _, d := range f.docs {
		score, ok := evalAll(expr.Must(), d)
		if !ok {
			continue
		}
		if _, ok := evalAll(expr.Filter(), d); !ok {
			continue
		}
		for _, c := range expr.Should() {
			if s, ok := eval(c, d); ok {
				score += s
			}
		}
		out = append(out, d.WithScore(score))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score() > out[j].Score() })
	matches := len(out)
	if len(out) > req.Window() {
		out = out[:req.Window()]
	}
	return out, matches, nil
}

func (f *fakeIndex) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func evalAll(conds []filter.Condition, d place.Candidate) (float64, bool) {
	var total float64
	for _, c := range conds {
		s, ok := eval(c, d)
		if !ok {
			return 0, false
		}
		total += s
	}
	return total, true
}

func eval(c filter.Condition, d place.Candidate) (float64, bool) {
	v := place.Normalize(fieldValue(c.Field(), d))
	want := place.Normalize(c.Value())
	var ok bool
	switch c.Kind() {
	case filter.KindExact:
		ok = v == want
	case filter.KindPrefix:
		ok = want != "" && (strings.HasPrefix(v, want) || strings.Contains(v, " "+want))
	case filter.KindFuzzy:
		ok = want != "" && strings.Contains(v, want)
	case filter.KindTerms:
		for _, t := range c.Values() {
			if place.Normalize(t) == v {
				ok = true
			}
		}
	case filter.KindEither:
		best := 0.0
		for _, alt := range c.Any() {
			if s, hit := eval(alt, d); hit {
				ok = true
				best = max(best, s)
			}
		}
		return best, ok
	}
	if !ok {
		return 0, false
	}
	return c.Boost(), true
}

func fieldValue(field string, d place.Candidate) string {
	switch field {
	case request.FieldName:
		return d.StreetName()
	case request.FieldStreet:
		return d.Street()
	case request.FieldHouseNumber:
		return d.HouseNumber()
	case request.FieldPostcode:
		return d.Postcode()
	case request.FieldType:
		return string(d.Type())
	case request.FieldAdminNames:
		names := make([]string, 0, len(d.Admins()))
		for _, a := range d.Admins() {
			names = append(names, a.Name)
		}
		return strings.Join(names, " ")
	}
	return ""
}

func newTestService(idx Index) *Service {
	return New(
		query.NewParser(query.DefaultPostcodeFormat),
		request.NewBuilder(request.Limits{}, request.Weights{}, request.Decay{}),
		idx,
		NewMerger(place.DefaultPriority(), 0, nil, nil),
		format.New(),
	)
}
