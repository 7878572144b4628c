package listings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/aggregate/houses"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/geo"
)

type DropReason string

const (
	DropMalformed     DropReason = "malformed"
	DropNoHouseID     DropReason = "missing_house_id"
	DropNoCoordinates DropReason = "missing_coordinates"
	DropNoPrice       DropReason = "missing_price"
	DropOutOfRegion   DropReason = "out_of_region"
)

// Batch is the normalized output of one provider response.
type Batch struct {
	Ads     []model.Ad
	Houses  []model.House
	Dropped map[DropReason]int
}

func (b Batch) DroppedTotal() int {
	n := 0
	for _, c := range b.Dropped {
		n += c
	}
	return n
}

// Normalize converts raw records into ads and derives the initial house list.
// Records missing required fields are skipped one by one.
func Normalize(raws []RawAd) Batch {
	return normalize(raws, nil)
}

// NormalizeWithin is Normalize plus dropping ads whose coordinates fall
// outside region.
func NormalizeWithin(raws []RawAd, region model.Region) Batch {
	return normalize(raws, &region)
}

func normalize(raws []RawAd, within *model.Region) Batch {
	b := Batch{
		Ads:     make([]model.Ad, 0, len(raws)),
		Dropped: map[DropReason]int{},
	}
	for i := range raws {
		ad, reason := toAd(&raws[i])
		if reason != "" {
			b.Dropped[reason]++
			continue
		}
		if within != nil && !geo.PointIn(*within, ad.Lat, ad.Lng) {
			b.Dropped[DropOutOfRegion]++
			continue
		}
		b.Ads = append(b.Ads, ad)
	}
	b.Houses = houses.Derive(b.Ads)
	return b
}

func toAd(r *RawAd) (model.Ad, DropReason) {
	houseID := strings.TrimSpace(string(r.HouseID))
	if houseID == "" {
		return model.Ad{}, DropNoHouseID
	}
	if !r.Lat.Valid || !r.Lng.Valid || !validLatLng(r.Lat.Value, r.Lng.Value) {
		return model.Ad{}, DropNoCoordinates
	}
	if !r.Price.Valid {
		return model.Ad{}, DropNoPrice
	}
	return model.Ad{
		HouseID:     houseID,
		Lat:         r.Lat.Value,
		Lng:         r.Lng.Value,
		Price:       r.Price.Value,
		Rooms:       intOr(r.Rooms, 0),
		Floor:       intOr(r.Floor, 0),
		TotalFloors: intPtr(r.TotalFloors),
		Area:        floatPtr(r.Area),
		KitchenArea: floatPtr(r.KitchenArea),
		URL:         strings.TrimSpace(r.URL),
		UpdatedAt:   r.UpdatedAt.Time,
		IsActive:    StatusFromCode(r.StatusCode).Active(),
		DistanceM:   r.DistanceM.Value,
		Address:     strings.TrimSpace(r.Address),
	}, ""
}

func validLatLng(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// toInt rounds n; values beyond int32 are treated as absent.
func toInt(n Number) (int, bool) {
	if !n.Valid {
		return 0, false
	}
	v := math.Round(n.Value)
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

func intOr(n Number, def int) int {
	if v, ok := toInt(n); ok {
		return v
	}
	return def
}

func intPtr(n Number) *int {
	v, ok := toInt(n)
	if !ok {
		return nil
	}
	return &v
}

func floatPtr(n Number) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// DecodeRecords splits a provider payload into records, decoding each one on
// its own so a single malformed record does not discard the batch. The payload
// is either a bare JSON array or an object with an "ads" array.
func DecodeRecords(body []byte) ([]RawAd, int, error) {
	body = bytes.TrimSpace(body)
	var items []json.RawMessage
	if len(body) > 0 && body[0] == '{' {
		var env struct {
			Ads []json.RawMessage `json:"ads"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, 0, fmt.Errorf("decode envelope: %w", err)
		}
		items = env.Ads
	} else if err := json.Unmarshal(body, &items); err != nil {
		return nil, 0, fmt.Errorf("decode array: %w", err)
	}

	out := make([]RawAd, 0, len(items))
	malformed := 0
	for _, it := range items {
		var r RawAd
		if err := json.Unmarshal(it, &r); err != nil {
			malformed++
			continue
		}
		out = append(out, r)
	}
	return out, malformed, nil
}
