package place

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/geodex/internal/db"
	"github.com/kailas-cloud/geodex/internal/domain/geo"
	domplace "github.com/kailas-cloud/geodex/internal/domain/place"
)

// Document is the fixture/ingest representation of a place (one JSON object per line).
type Document struct {
	ID          string              `json:"id"`
	Type        string              `json:"type"`
	Name        string              `json:"name,omitempty"`
	Street      string              `json:"street,omitempty"`
	HouseNumber string              `json:"housenumber,omitempty"`
	Postcode    string              `json:"postcode,omitempty"`
	Names       map[string]string   `json:"names,omitempty"`
	Admins      []domplace.AdminRef `json:"admins,omitempty"`
	Lat         float64             `json:"lat"`
	Lon         float64             `json:"lon"`
	// BBox is minLon,minLat,maxLon,maxLat.
	BBox       []float64 `json:"bbox,omitempty"`
	Importance float64   `json:"importance,omitempty"`
}

// Candidate converts the document to a domain candidate with zero score.
func (d Document) Candidate() (domplace.Candidate, error) {
	g := domplace.Geometry{Point: geo.Point{Lat: d.Lat, Lon: d.Lon}}
	if len(d.BBox) > 0 {
		if len(d.BBox) != 4 {
			return domplace.Candidate{}, fmt.Errorf("document %q: bbox needs 4 values", d.ID)
		}
		bb, err := geo.NewBBox(d.BBox[1], d.BBox[0], d.BBox[3], d.BBox[2])
		if err != nil {
			return domplace.Candidate{}, fmt.Errorf("document %q: %w", d.ID, err)
		}
		g.BBox = bb
	}
	return domplace.New(d.ID, domplace.Type(d.Type), 0, g, domplace.Attributes{
		Name:        d.Name,
		Street:      d.Street,
		HouseNumber: strings.ToLower(d.HouseNumber),
		Postcode:    d.Postcode,
		Admins:      d.Admins,
		Names:       d.Names,
		Importance:  d.Importance,
	}), nil
}

// buildFields flattens a valid candidate into engine fields.
func buildFields(c domplace.Candidate) (map[string]string, error) {
	m := map[string]string{
		db.FieldID:         c.ID(),
		db.FieldType:       string(c.Type()),
		db.FieldCoord:      c.Geometry().Point.String(),
		db.FieldImportance: strconv.FormatFloat(c.Importance(), 'f', -1, 64),
	}
	// Houses are matched by their street name.
	if name := c.Name(); name != "" {
		m[db.FieldName] = name
	} else if c.Type() == domplace.House {
		m[db.FieldName] = c.Street()
	}
	setIf(m, db.FieldStreet, c.Street())
	setIf(m, db.FieldHouseNumber, c.HouseNumber())
	setIf(m, db.FieldPostcode, c.Postcode())

	if admins := c.Admins(); len(admins) > 0 {
		raw, err := json.Marshal(admins)
		if err != nil {
			return nil, fmt.Errorf("encode admins: %w", err)
		}
		m[db.FieldAdmins] = string(raw)
		names := make([]string, len(admins))
		for i, a := range admins {
			names[i] = a.Name
		}
		m[db.FieldAdminIDs] = strings.Join(c.AdminChain(), db.AdminIDSeparator)
		m[db.FieldAdminNames] = strings.Join(names, db.AdminIDSeparator)
	}

	if bb := c.Geometry().BBox; !bb.IsZero() {
		m[db.FieldBBoxMinLat] = formatFloat(bb.MinLat)
		m[db.FieldBBoxMinLon] = formatFloat(bb.MinLon)
		m[db.FieldBBoxMaxLat] = formatFloat(bb.MaxLat)
		m[db.FieldBBoxMaxLon] = formatFloat(bb.MaxLon)
	}

	for lang, name := range c.Names() {
		if lang != "" && name != "" {
			m[db.FieldNamePrefix+strings.ToLower(lang)] = name
		}
	}
	return m, nil
}

// parseFields converts flat engine fields back into a candidate.
// Only decoding failures are reported; schema checks belong to Candidate.Validate.
func parseFields(fallbackID string, score float64, m map[string]string) (domplace.Candidate, error) {
	id := m[db.FieldID]
	if id == "" {
		id = fallbackID
	}

	var g domplace.Geometry
	coord, ok := m[db.FieldCoord]
	if !ok {
		return domplace.Candidate{}, fmt.Errorf("document %q: missing coord", id)
	}
	p, err := geo.ParsePoint(coord)
	if err != nil {
		return domplace.Candidate{}, fmt.Errorf("document %q: %w", id, err)
	}
	g.Point = p

	if _, ok := m[db.FieldBBoxMinLat]; ok {
		bb, err := parseBBox(m)
		if err != nil {
			return domplace.Candidate{}, fmt.Errorf("document %q: %w", id, err)
		}
		g.BBox = bb
	}

	attrs := domplace.Attributes{
		Name:        m[db.FieldName],
		Street:      m[db.FieldStreet],
		HouseNumber: m[db.FieldHouseNumber],
		Postcode:    m[db.FieldPostcode],
	}
	if raw := m[db.FieldAdmins]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &attrs.Admins); err != nil {
			return domplace.Candidate{}, fmt.Errorf("document %q: decode admins: %w", id, err)
		}
	}
	if raw := m[db.FieldImportance]; raw != "" {
		imp, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domplace.Candidate{}, fmt.Errorf("document %q: importance: %w", id, err)
		}
		attrs.Importance = imp
	}
	for k, v := range m {
		if lang, ok := strings.CutPrefix(k, db.FieldNamePrefix); ok && lang != "" {
			if attrs.Names == nil {
				attrs.Names = make(map[string]string)
			}
			attrs.Names[lang] = v
		}
	}

	return domplace.New(id, domplace.Type(m[db.FieldType]), score, g, attrs), nil
}

func parseBBox(m map[string]string) (geo.BBox, error) {
	var v [4]float64
	for i, name := range []string{db.FieldBBoxMinLat, db.FieldBBoxMinLon, db.FieldBBoxMaxLat, db.FieldBBoxMaxLon} {
		f, err := strconv.ParseFloat(m[name], 64)
		if err != nil {
			return geo.BBox{}, fmt.Errorf("bbox %s: %w", name, err)
		}
		v[i] = f
	}
	return geo.NewBBox(v[0], v[1], v[2], v[3])
}

func setIf(m map[string]string, k, v string) {
	if v != "" {
		m[k] = v
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
