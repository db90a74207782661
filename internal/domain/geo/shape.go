package geo

import (
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// Shape is a polygon search area. The first ring is the exterior, further rings are holes.
type Shape struct {
	poly     *geom.Polygon
	envelope BBox
}

// NewShape validates p and flattens it to two dimensions.
func NewShape(p *geom.Polygon) (Shape, error) {
	if p == nil || p.NumLinearRings() == 0 {
		return Shape{}, fmt.Errorf("shape needs an exterior ring")
	}

	rings := make([][]geom.Coord, p.NumLinearRings())
	for i := range rings {
		coords := p.LinearRing(i).Coords()
		if len(coords) < 4 {
			return Shape{}, fmt.Errorf("shape ring %d needs at least 4 positions", i)
		}
		ring := make([]geom.Coord, len(coords))
		for j, c := range coords {
			if !ValidateCoordinates(c.Y(), c.X()) {
				return Shape{}, fmt.Errorf("shape ring %d: position %d out of range", i, j)
			}
			ring[j] = geom.Coord{c.X(), c.Y()}
		}
		if first, last := ring[0], ring[len(ring)-1]; first[0] != last[0] || first[1] != last[1] {
			return Shape{}, fmt.Errorf("shape ring %d is not closed", i)
		}
		rings[i] = ring
	}

	flat, err := geom.NewPolygon(geom.XY).SetCoords(rings)
	if err != nil {
		return Shape{}, fmt.Errorf("shape: %w", err)
	}
	b := flat.Bounds()
	env, err := NewBBox(b.Min(1), b.Min(0), b.Max(1), b.Max(0))
	if err != nil {
		return Shape{}, fmt.Errorf("shape: %w", err)
	}
	return Shape{poly: flat, envelope: env}, nil
}

// Envelope returns the bounding box of the exterior ring.
func (s Shape) Envelope() BBox { return s.envelope }

// Contains reports whether p lies inside the exterior ring and outside every hole.
func (s Shape) Contains(p Point) bool {
	if s.poly == nil || !s.envelope.Contains(p) {
		return false
	}
	c := geom.Coord{p.Lon, p.Lat}
	if !xy.IsPointInRing(geom.XY, c, s.poly.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < s.poly.NumLinearRings(); i++ {
		if xy.IsPointInRing(geom.XY, c, s.poly.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

// Rings returns the rings as [lon, lat] positions, exterior first.
func (s Shape) Rings() [][][2]float64 {
	if s.poly == nil {
		return nil
	}
	out := make([][][2]float64, s.poly.NumLinearRings())
	for i := range out {
		coords := s.poly.LinearRing(i).Coords()
		ring := make([][2]float64, len(coords))
		for j, c := range coords {
			ring[j] = [2]float64{c.X(), c.Y()}
		}
		out[i] = ring
	}
	return out
}
