// Package filter applies listing filter criteria to ads.
package filter

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
)

// Apply returns the ads that satisfy every present criterion, in input order.
// Ads that lack an optional field a criterion refers to are kept.
func Apply(ads []model.Ad, c model.FilterCriteria) []model.Ad {
	out := make([]model.Ad, 0, len(ads))
	if c.IsEmpty() {
		return append(out, ads...)
	}
	for _, ad := range ads {
		if Match(ad, c) {
			out = append(out, ad)
		}
	}
	return out
}

func Match(ad model.Ad, c model.FilterCriteria) bool {
	if c.MaxPrice != nil && ad.Price > *c.MaxPrice {
		return false
	}
	if c.Rooms != nil && ad.Rooms < *c.Rooms {
		return false
	}
	if c.MinArea != nil && ad.Area != nil && *ad.Area < *c.MinArea {
		return false
	}
	if c.MinKitchenArea != nil && ad.KitchenArea != nil && *ad.KitchenArea < *c.MinKitchenArea {
		return false
	}
	return true
}

// ParseQuery reads rooms, max_price, min_area and min_kitchen_area from q.
// Missing or blank parameters leave the criterion unset.
func ParseQuery(q url.Values) (model.FilterCriteria, error) {
	var c model.FilterCriteria

	if v := strings.TrimSpace(q.Get("rooms")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return model.FilterCriteria{}, fmt.Errorf("rooms: expected a non-negative integer, got %q", v)
		}
		c.Rooms = &n
	}
	for _, p := range []struct {
		name string
		dst  **float64
	}{
		{"max_price", &c.MaxPrice},
		{"min_area", &c.MinArea},
		{"min_kitchen_area", &c.MinKitchenArea},
	} {
		v := strings.TrimSpace(q.Get(p.name))
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return model.FilterCriteria{}, fmt.Errorf("%s: expected a finite non-negative number, got %q", p.name, v)
		}
		*p.dst = &f
	}
	return c, nil
}
