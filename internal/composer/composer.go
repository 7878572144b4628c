// Package composer renders viewport results in the negotiated output format.
package composer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
)

type Format int

const (
	FormatJSON Format = iota
	FormatGeoJSON
)

const (
	ContentTypeJSON    = "application/json"
	ContentTypeGeoJSON = "application/geo+json"
)

type NegotiationInput struct {
	AcceptHeader  string
	OutputFormat  string
	DefaultFormat Format
}

type Negotiation struct {
	Format      Format
	ContentType string
}

func (f Format) String() string {
	if f == FormatGeoJSON {
		return "geojson"
	}
	return "json"
}

func negotiation(f Format) Negotiation {
	if f == FormatGeoJSON {
		return Negotiation{Format: FormatGeoJSON, ContentType: ContentTypeGeoJSON}
	}
	return Negotiation{Format: FormatJSON, ContentType: ContentTypeJSON}
}

// NegotiateFormat picks the output format. An explicit format parameter wins,
// then the highest-q supported Accept entry, then the default.
func NegotiateFormat(in NegotiationInput) Negotiation {
	of := strings.ToLower(strings.TrimSpace(in.OutputFormat))
	switch {
	case of == "geojson", strings.HasPrefix(of, ContentTypeGeoJSON):
		return negotiation(FormatGeoJSON)
	case of == "json", strings.HasPrefix(of, ContentTypeJSON):
		return negotiation(FormatJSON)
	}

	bestQ := -1.0
	best := Negotiation{}
	for part := range strings.SplitSeq(strings.ToLower(in.AcceptHeader), ",") {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		mt := token
		params := ""
		if i := strings.Index(token, ";"); i >= 0 {
			mt = strings.TrimSpace(token[:i])
			params = token[i+1:]
		}
		q := 1.0
		for p := range strings.SplitSeq(params, ";") {
			p = strings.TrimSpace(p)
			if after, ok := strings.CutPrefix(p, "q="); ok {
				if v, err := strconv.ParseFloat(after, 64); err == nil {
					q = v
				}
			}
		}
		var cand Negotiation
		switch {
		case mt == "*/*":
			cand = negotiation(in.DefaultFormat)
		case strings.Contains(mt, "geo+json"):
			cand = negotiation(FormatGeoJSON)
		case mt == ContentTypeJSON:
			cand = negotiation(FormatJSON)
		default:
			continue
		}
		if q > bestQ {
			bestQ = q
			best = cand
		}
	}
	if bestQ >= 0 {
		return best
	}
	return negotiation(in.DefaultFormat)
}

// Compose encodes view in the negotiated format.
func Compose(view *model.ViewData, neg Negotiation) ([]byte, error) {
	if view == nil {
		view = &model.ViewData{}
	}
	if neg.Format == FormatGeoJSON {
		return FeatureCollection(view).MarshalJSON()
	}
	b, err := json.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("marshal view: %w", err)
	}
	return b, nil
}

// FeatureCollection renders houses and ads as points. Houses come first;
// the "kind" property tells them apart.
func FeatureCollection(view *model.ViewData) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, h := range view.Houses {
		f := geojson.NewFeature(orb.Point{h.Lng, h.Lat})
		f.ID = h.HouseID
		f.Properties = geojson.Properties{
			"kind":             "house",
			"house_id":         h.HouseID,
			"address":          h.Address,
			"active_ads_count": h.ActiveAdsCount,
			"total_ads_count":  h.TotalAdsCount,
			"has_active_ads":   h.HasActiveAds,
		}
		fc.Append(f)
	}
	for _, a := range view.Ads {
		f := geojson.NewFeature(orb.Point{a.Lng, a.Lat})
		props := geojson.Properties{
			"kind":      "ad",
			"house_id":  a.HouseID,
			"price":     a.Price,
			"rooms":     a.Rooms,
			"floor":     a.Floor,
			"url":       a.URL,
			"is_active": a.IsActive,
		}
		if a.Area != nil {
			props["area"] = *a.Area
		}
		if a.KitchenArea != nil {
			props["kitchen_area"] = *a.KitchenArea
		}
		if a.TotalFloors != nil {
			props["total_floors"] = *a.TotalFloors
		}
		if !a.UpdatedAt.IsZero() {
			props["updated_at"] = a.UpdatedAt
		}
		f.Properties = props
		fc.Append(f)
	}
	return fc
}
