// Package houses derives per-building aggregates from ads.
package houses

import (
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/geo"
)

type counts struct {
	total  int
	active int
}

// group buckets ads by house id, preserving first-seen order.
func group(ads []model.Ad) (order []string, first map[string]model.Ad, by map[string]*counts) {
	first = make(map[string]model.Ad)
	by = make(map[string]*counts)
	for _, ad := range ads {
		c, ok := by[ad.HouseID]
		if !ok {
			c = &counts{}
			by[ad.HouseID] = c
			first[ad.HouseID] = ad
			order = append(order, ad.HouseID)
		}
		c.total++
		if ad.IsActive {
			c.active++
		}
	}
	return order, first, by
}

func newHouse(id string, ad model.Ad, c *counts) model.House {
	return model.House{
		HouseID:        id,
		Lat:            ad.Lat,
		Lng:            ad.Lng,
		Address:        ad.Address,
		ActiveAdsCount: c.active,
		TotalAdsCount:  c.total,
		HasActiveAds:   c.active > 0,
	}
}

// Derive builds one house per distinct house id. Coordinates and address
// come from the first ad seen for that house.
func Derive(ads []model.Ad) []model.House {
	order, first, by := group(ads)
	out := make([]model.House, 0, len(order))
	for _, id := range order {
		out = append(out, newHouse(id, first[id], by[id]))
	}
	return out
}

// Recolor recomputes house counts for the exact viewport from the already
// filtered ads. Only ads inside exact contribute; houses outside exact, or
// left without any contributing ad, are dropped. Inputs are not modified.
func Recolor(hs []model.House, filtered []model.Ad, exact model.Region) []model.House {
	inView := make([]model.Ad, 0, len(filtered))
	for _, ad := range filtered {
		if geo.PointIn(exact, ad.Lat, ad.Lng) {
			inView = append(inView, ad)
		}
	}
	order, first, by := group(inView)

	out := make([]model.House, 0, len(order))
	placed := make(map[string]struct{}, len(order))
	known := make(map[string]struct{}, len(hs))
	for _, h := range hs {
		known[h.HouseID] = struct{}{}
		c, ok := by[h.HouseID]
		if !ok {
			continue
		}
		if _, dup := placed[h.HouseID]; dup {
			continue
		}
		if !geo.PointIn(exact, h.Lat, h.Lng) {
			continue
		}
		placed[h.HouseID] = struct{}{}
		h.ActiveAdsCount = c.active
		h.TotalAdsCount = c.total
		h.HasActiveAds = c.active > 0
		out = append(out, h)
	}

	// ads whose house was not in hs still get a house, located at the first ad
	for _, id := range order {
		if _, ok := placed[id]; ok {
			continue
		}
		if _, ok := known[id]; ok {
			// known house whose own coordinates are outside exact
			continue
		}
		out = append(out, newHouse(id, first[id], by[id]))
	}
	return out
}
