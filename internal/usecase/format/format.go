// Package format renders merged candidates into display-ready results.
package format

import (
	"github.com/kailas-cloud/geodex/internal/domain/place"
	"github.com/kailas-cloud/geodex/internal/domain/search/result"
)

// Formatter renders candidates. Stateless and safe for concurrent use.
type Formatter struct{}

// New creates a Formatter.
func New() *Formatter { return &Formatter{} }

// Format renders an ordered candidate set. Street labels gain a city suffix when
// the same street name occurs in more than one city within cands.
func (f *Formatter) Format(cands []place.Candidate, lang string) []result.RankedResult {
	ambiguous := ambiguousStreets(cands)
	out := make([]result.RankedResult, 0, len(cands))
	for _, c := range cands {
		_, collides := ambiguous[place.Normalize(c.Name())]
		out = append(out, f.render(c, lang, collides && c.Type() == place.Street))
	}
	return out
}

// FormatOne renders a single candidate, without collision context.
func (f *Formatter) FormatOne(c place.Candidate, lang string) result.RankedResult {
	return f.render(c, lang, false)
}

func (f *Formatter) render(c place.Candidate, lang string, withCity bool) result.RankedResult {
	return result.New(c.ID(), c.Type(), Label(c, lang, withCity), c.Geometry().Point, c.Score(), fields(c, lang))
}

// Label renders the display label of c.
func Label(c place.Candidate, lang string, withCity bool) string {
	switch c.Type() {
	case place.House:
		return c.StreetName() + " " + c.HouseNumber()
	case place.Admin, place.Zone:
		return c.LocalizedName(lang)
	case place.Street:
		if city := c.City(); withCity && city != "" {
			return c.Name() + ", " + city
		}
		return c.Name()
	}
	return c.Name()
}

func fields(c place.Candidate, lang string) result.Fields {
	admins := c.Admins()
	names := make([]string, 0, len(admins))
	for _, a := range admins {
		names = append(names, a.Name)
	}
	name := c.Name()
	if c.Type().IsArea() {
		name = c.LocalizedName(lang)
	}
	return result.Fields{
		Name:        name,
		HouseNumber: c.HouseNumber(),
		Street:      c.Street(),
		Postcode:    c.Postcode(),
		City:        c.City(),
		Country:     c.Country(),
		AdminNames:  names,
	}
}

// ambiguousStreets returns normalized street names seen in two or more distinct cities.
func ambiguousStreets(cands []place.Candidate) map[string]struct{} {
	cities := make(map[string]map[string]struct{})
	for _, c := range cands {
		if c.Type() != place.Street {
			continue
		}
		name := place.Normalize(c.Name())
		if cities[name] == nil {
			cities[name] = make(map[string]struct{})
		}
		cities[name][place.Normalize(c.City())] = struct{}{}
	}
	out := make(map[string]struct{})
	for name, set := range cities {
		if len(set) >= 2 {
			out[name] = struct{}{}
		}
	}
	return out
}
