// Package invalidation defines the change events published by the listings
// pipeline when ads are created, edited or removed.
package invalidation

import (
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
)

const (
	OpInsert  = "insert"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpRefresh = "refresh" // drop the cache regardless of location
)

type Event struct {
	Version  uint64    `json:"version"`
	Op       string    `json:"op"`
	Source   string    `json:"source"`
	TS       time.Time `json:"ts"`
	BBox     *BBox     `json:"bbox,omitempty"`
	H3Cells  []string  `json:"h3_cells,omitempty"`
	HouseIDs []string  `json:"house_ids,omitempty"`
}

type BBox struct {
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
	SRID string  `json:"srid"`
}

func (b BBox) Region() model.Region {
	return model.Region{North: b.Y2, South: b.Y1, East: b.X2, West: b.X1}
}

// Validate checks the envelope. Versions increase per source; refresh needs
// no location, every other op needs at least one of bbox, h3_cells or
// house_ids.
func (e Event) Validate() error {
	if e.Version == 0 {
		return fmt.Errorf("version must be > 0")
	}
	switch e.Op {
	case OpInsert, OpUpdate, OpDelete, OpRefresh:
	default:
		return fmt.Errorf("op must be insert|update|delete|refresh")
	}
	if strings.TrimSpace(e.Source) == "" {
		return fmt.Errorf("source is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if e.Op == OpRefresh {
		return nil
	}
	if e.BBox == nil && len(e.H3Cells) == 0 && len(e.HouseIDs) == 0 {
		return fmt.Errorf("one of bbox, h3_cells or house_ids is required")
	}
	if e.BBox != nil {
		bb := *e.BBox
		if bb.SRID != "EPSG:4326" {
			return fmt.Errorf("bbox.srid must be EPSG:4326")
		}
		if !(bb.X1 >= -180 && bb.X1 <= 180 && bb.X2 >= -180 && bb.X2 <= 180) {
			return fmt.Errorf("bbox longitude out of range")
		}
		if !(bb.Y1 >= -90 && bb.Y1 <= 90 && bb.Y2 >= -90 && bb.Y2 <= 90) {
			return fmt.Errorf("bbox latitude out of range")
		}
		if !(bb.X2 > bb.X1 && bb.Y2 > bb.Y1) {
			return fmt.Errorf("bbox must satisfy x2>x1 and y2>y1")
		}
	}
	for i, id := range e.HouseIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("house_ids[%d] is empty", i)
		}
	}
	return nil
}

// DedupeKey identifies the stream a version belongs to.
func (e Event) DedupeKey() string {
	return strings.TrimSpace(e.Source)
}
