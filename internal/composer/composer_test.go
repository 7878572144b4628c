package composer

import (
	"encoding/json"
	"testing"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
)

func TestNegotiateFormat_OrderOfPrecedence(t *testing.T) {
	neg := NegotiateFormat(NegotiationInput{
		OutputFormat:  "json",
		AcceptHeader:  "application/geo+json",
		DefaultFormat: FormatJSON,
	})
	if neg.Format != FormatJSON {
		t.Fatalf("format parameter must win; got %v", neg.Format)
	}

	neg = NegotiateFormat(NegotiationInput{
		AcceptHeader:  "application/json;q=0.5,application/geo+json;q=0.9",
		DefaultFormat: FormatJSON,
	})
	if neg.Format != FormatGeoJSON || neg.ContentType != ContentTypeGeoJSON {
		t.Fatalf("expected geojson via Accept, got %+v", neg)
	}

	neg = NegotiateFormat(NegotiationInput{AcceptHeader: "text/html,*/*;q=0.1", DefaultFormat: FormatJSON})
	if neg.Format != FormatJSON {
		t.Fatalf("*/* must select the default, got %v", neg.Format)
	}

	neg = NegotiateFormat(NegotiationInput{AcceptHeader: "text/html", DefaultFormat: FormatJSON})
	if neg.ContentType != ContentTypeJSON {
		t.Fatalf("unsupported Accept must fall back, got %+v", neg)
	}
}

func TestCompose_GeoJSON(t *testing.T) {
	area := 42.0
	view := &model.ViewData{
		Houses: []model.House{{HouseID: "h1", Lat: 55.75, Lng: 37.61, ActiveAdsCount: 1, TotalAdsCount: 2, HasActiveAds: true}},
		Ads:    []model.Ad{{HouseID: "h1", Lat: 55.75, Lng: 37.61, Price: 9e6, Rooms: 2, Area: &area, IsActive: true}},
	}
	b, err := Compose(view, Negotiation{Format: FormatGeoJSON})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Fatalf("got %s", b)
	}
	house := fc.Features[0]
	if house.Properties["kind"] != "house" || house.Geometry.Type != "Point" {
		t.Fatalf("house feature=%+v", house)
	}
	if house.Geometry.Coordinates[0] != 37.61 || house.Geometry.Coordinates[1] != 55.75 {
		t.Fatalf("coordinates must be lng,lat: %v", house.Geometry.Coordinates)
	}
	if fc.Features[1].Properties["area"] != 42.0 {
		t.Fatalf("ad feature=%+v", fc.Features[1])
	}
}

func TestCompose_JSONEmptyView(t *testing.T) {
	b, err := Compose(nil, Negotiation{Format: FormatJSON})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if string(b) != `{"houses":null,"ads":null}` {
		t.Fatalf("got %s", b)
	}
}
