// Package geo implements rectangle math over lat/lng regions.
package geo

import (
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
)

// DefaultMarginDeg pads a viewport by roughly 1 km of latitude. It is a linear
// degree offset, so the east/west margin shrinks with latitude.
const DefaultMarginDeg = 0.01

func toBound(r model.Region) orb.Bound {
	return orb.Bound{
		Min: orb.Point{r.West, r.South},
		Max: orb.Point{r.East, r.North},
	}
}

func fromBound(b orb.Bound) model.Region {
	return model.Region{
		North: b.Max[1],
		South: b.Min[1],
		East:  b.Max[0],
		West:  b.Min[0],
	}
}

// Contains reports whether every edge of inner lies within outer (inclusive).
func Contains(outer, inner model.Region) bool {
	b := toBound(outer)
	return b.Contains(orb.Point{inner.West, inner.South}) &&
		b.Contains(orb.Point{inner.East, inner.North})
}

// Expand pads every edge of r by margin degrees.
func Expand(r model.Region, margin float64) model.Region {
	return fromBound(toBound(r).Pad(margin))
}

func PointIn(r model.Region, lat, lng float64) bool {
	return toBound(r).Contains(orb.Point{lng, lat})
}

// Intersects reports whether a and b share at least one point.
func Intersects(a, b model.Region) bool {
	return toBound(a).Intersects(toBound(b))
}
