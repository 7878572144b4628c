// Package h3mapper converts between H3 cells and lat/lng regions.
package h3mapper

import (
	"errors"
	"fmt"
	"math"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
)

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

// RegionForCells returns the smallest region covering every cell boundary.
// Cells straddling the antimeridian are rejected.
func (m *Mapper) RegionForCells(cells []string) (model.Region, error) {
	if len(cells) == 0 {
		return model.Region{}, errors.New("no cells")
	}
	r := model.Region{
		North: math.Inf(-1),
		South: math.Inf(1),
		East:  math.Inf(-1),
		West:  math.Inf(1),
	}
	for _, s := range cells {
		c, err := parseCell(s)
		if err != nil {
			return model.Region{}, err
		}
		b, err := c.Boundary()
		if err != nil {
			return model.Region{}, fmt.Errorf("boundary %s: %w", s, err)
		}
		west, east := math.Inf(1), math.Inf(-1)
		for _, ll := range b {
			r.North = math.Max(r.North, ll.Lat)
			r.South = math.Min(r.South, ll.Lat)
			west = math.Min(west, ll.Lng)
			east = math.Max(east, ll.Lng)
		}
		if east-west > 180 {
			return model.Region{}, fmt.Errorf("cell %s crosses the antimeridian", s)
		}
		r.West = math.Min(r.West, west)
		r.East = math.Max(r.East, east)
	}
	return r, nil
}

// CellForPoint returns the cell at res containing lat/lng.
func (m *Mapper) CellForPoint(lat, lng float64, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	c, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), res)
	if err != nil {
		return "", fmt.Errorf("h3 cell for point: %w", err)
	}
	return c.String(), nil
}

func parseCell(s string) (h3.Cell, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("parse cell %q: %w", s, err)
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("invalid h3 cell %q", s)
	}
	return c, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}
