// Package model defines core domain types shared across the service.
package model

import (
	"errors"
	"fmt"
	"time"
)

// Region is a lat/lng rectangle. North > South and East > West; regions
// crossing the antimeridian are not supported.
type Region struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

func (r Region) Validate() error {
	if !(r.South >= -90 && r.North <= 90) {
		return errors.New("latitude must be in [-90,90]")
	}
	if !(r.West >= -180 && r.East <= 180) {
		return errors.New("longitude must be in [-180,180]")
	}
	if r.North <= r.South || r.East <= r.West {
		return errors.New("region must satisfy north>south and east>west")
	}
	return nil
}

func (r Region) String() string {
	return fmt.Sprintf("n=%.6f,s=%.6f,e=%.6f,w=%.6f", r.North, r.South, r.East, r.West)
}

// BBox is the wfs style x1,y1,x2,y2 form accepted on the wire
type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
	SRID   string
}

func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%s", b.X1, b.Y1, b.X2, b.Y2, b.SRID)
}

func (b BBox) Region() Region {
	return Region{North: b.Y2, South: b.Y1, East: b.X2, West: b.X1}
}

// Ad is a single normalized listing. Optional fields are nil when the
// provider did not send them.
type Ad struct {
	HouseID     string    `json:"house_id"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Price       float64   `json:"price"`
	Rooms       int       `json:"rooms"`
	Floor       int       `json:"floor"`
	TotalFloors *int      `json:"total_floors,omitempty"`
	Area        *float64  `json:"area,omitempty"`
	KitchenArea *float64  `json:"kitchen_area,omitempty"`
	URL         string    `json:"url"`
	UpdatedAt   time.Time `json:"updated_at"`
	IsActive    bool      `json:"is_active"`
	DistanceM   float64   `json:"distance_m"`
	Address     string    `json:"address,omitempty"`
}

// House is a derived, view-dependent aggregate of ads sharing a building id.
type House struct {
	HouseID        string  `json:"house_id"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	Address        string  `json:"address"`
	ActiveAdsCount int     `json:"active_ads_count"`
	TotalAdsCount  int     `json:"total_ads_count"`
	HasActiveAds   bool    `json:"has_active_ads"`
}

// FilterCriteria constraints; a nil field means no constraint.
type FilterCriteria struct {
	Rooms          *int     `json:"rooms,omitempty"`
	MaxPrice       *float64 `json:"max_price,omitempty"`
	MinArea        *float64 `json:"min_area,omitempty"`
	MinKitchenArea *float64 `json:"min_kitchen_area,omitempty"`
}

func (c FilterCriteria) IsEmpty() bool {
	return c.Rooms == nil && c.MaxPrice == nil && c.MinArea == nil && c.MinKitchenArea == nil
}

type ViewData struct {
	Houses []House `json:"houses"`
	Ads    []Ad    `json:"ads"`
}

type CacheInfo struct {
	HasCache    bool          `json:"has_cache"`
	AgeMs       int64         `json:"age_ms"`
	Region      *Region       `json:"region,omitempty"`
	HousesCount int           `json:"houses_count"`
	AdsCount    int           `json:"ads_count"`
	TTL         time.Duration `json:"-"`
	TTLMs       int64         `json:"ttl_ms"`
	Generation  uint64        `json:"generation"`
}
