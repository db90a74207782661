package geo

import (
	"fmt"
	"strconv"
	"strings"
)

// BBox is an axis-aligned bounding box. Boxes crossing the antimeridian are not supported.
type BBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// NewBBox creates a validated bounding box.
func NewBBox(minLat, minLon, maxLat, maxLon float64) (BBox, error) {
	if !ValidateCoordinates(minLat, minLon) || !ValidateCoordinates(maxLat, maxLon) {
		return BBox{}, fmt.Errorf("bbox corners out of range")
	}
	if minLat > maxLat || minLon > maxLon {
		return BBox{}, fmt.Errorf("bbox min corner must not exceed max corner")
	}
	return BBox{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: maxLon}, nil
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat".
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("bbox %q: expected minLon,minLat,maxLon,maxLat", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	return NewBBox(v[1], v[0], v[3], v[2])
}

// Contains reports whether p lies inside the box, edges included.
func (b BBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// Center returns the midpoint of the box.
func (b BBox) Center() Point {
	return Point{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// HalfDiagonalMeters is the distance from the center to a corner, used as the box's radius.
func (b BBox) HalfDiagonalMeters() float64 {
	return Haversine(b.MinLat, b.MinLon, b.MaxLat, b.MaxLon) / 2
}

// IsZero reports whether the box is unset.
func (b BBox) IsZero() bool {
	return b == BBox{}
}
