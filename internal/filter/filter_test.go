package filter

import (
	"net/url"
	"testing"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func sample() []model.Ad {
	return []model.Ad{
		{HouseID: "a", Price: 4_000_000, Rooms: 1, Area: fptr(30), KitchenArea: fptr(6)},
		{HouseID: "b", Price: 5_000_000, Rooms: 2, Area: fptr(50)},
		{HouseID: "c", Price: 9_000_000, Rooms: 3},
		{HouseID: "d", Price: 7_500_000, Rooms: 2, Area: fptr(45), KitchenArea: fptr(12)},
	}
}

func ids(ads []model.Ad) []string {
	out := make([]string, 0, len(ads))
	for _, a := range ads {
		out = append(out, a.HouseID)
	}
	return out
}

func TestApply_EmptyCriteriaReturnsAll(t *testing.T) {
	in := sample()
	got := Apply(in, model.FilterCriteria{})
	if len(got) != len(in) {
		t.Fatalf("len=%d want %d", len(got), len(in))
	}
	for i := range in {
		if got[i].HouseID != in[i].HouseID {
			t.Fatalf("order changed at %d", i)
		}
	}
}

func TestApply_IsSubset(t *testing.T) {
	in := sample()
	criteria := []model.FilterCriteria{
		{MaxPrice: fptr(5_000_000)},
		{Rooms: iptr(2)},
		{MinArea: fptr(40)},
		{MinKitchenArea: fptr(10)},
		{Rooms: iptr(2), MaxPrice: fptr(8_000_000), MinArea: fptr(46)},
		{MaxPrice: fptr(1)},
	}
	set := map[string]bool{}
	for _, a := range in {
		set[a.HouseID] = true
	}
	for _, c := range criteria {
		got := Apply(in, c)
		if len(got) > len(in) {
			t.Fatalf("filter grew the list: %v", ids(got))
		}
		for _, a := range got {
			if !set[a.HouseID] {
				t.Fatalf("filter produced ad not in input: %s", a.HouseID)
			}
		}
	}
}

func TestApply_PriceIsInclusiveUpperBound(t *testing.T) {
	got := ids(Apply(sample(), model.FilterCriteria{MaxPrice: fptr(5_000_000)}))
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v want [a b]", got)
	}
	got = ids(Apply(sample(), model.FilterCriteria{MaxPrice: fptr(4_999_999.99)}))
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("got %v want [a]", got)
	}
}

func TestApply_RoomsMinimum(t *testing.T) {
	got := ids(Apply(sample(), model.FilterCriteria{Rooms: iptr(2)}))
	if len(got) != 3 || got[0] != "b" || got[1] != "c" || got[2] != "d" {
		t.Fatalf("got %v want [b c d]", got)
	}
}

func TestApply_MissingOptionalFieldsAreKept(t *testing.T) {
	got := ids(Apply(sample(), model.FilterCriteria{MinArea: fptr(40)}))
	// c has no area and is kept; a has 30 and is dropped
	if len(got) != 3 || got[0] != "b" || got[1] != "c" || got[2] != "d" {
		t.Fatalf("got %v want [b c d]", got)
	}

	got = ids(Apply(sample(), model.FilterCriteria{MinKitchenArea: fptr(10)}))
	if len(got) != 3 || got[0] != "b" || got[1] != "c" || got[2] != "d" {
		t.Fatalf("got %v want [b c d]", got)
	}
}

func TestApply_DoesNotAliasInput(t *testing.T) {
	in := sample()
	got := Apply(in, model.FilterCriteria{})
	got[0].Price = 1
	if in[0].Price == 1 {
		t.Fatal("Apply must return a fresh slice")
	}
}

func TestParseQuery(t *testing.T) {
	q := url.Values{}
	q.Set("rooms", "2")
	q.Set("max_price", "4000000")
	q.Set("min_area", " ")
	q.Set("min_kitchen_area", "8.5")

	c, err := ParseQuery(q)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if c.Rooms == nil || *c.Rooms != 2 {
		t.Fatalf("rooms=%v", c.Rooms)
	}
	if c.MaxPrice == nil || *c.MaxPrice != 4_000_000 {
		t.Fatalf("max_price=%v", c.MaxPrice)
	}
	if c.MinArea != nil {
		t.Fatal("blank min_area must stay unset")
	}
	if c.MinKitchenArea == nil || *c.MinKitchenArea != 8.5 {
		t.Fatalf("min_kitchen_area=%v", c.MinKitchenArea)
	}

	empty, err := ParseQuery(url.Values{})
	if err != nil || !empty.IsEmpty() {
		t.Fatalf("empty query: %+v err=%v", empty, err)
	}

	for _, bad := range []url.Values{
		{"rooms": {"two"}},
		{"rooms": {"-1"}},
		{"max_price": {"cheap"}},
		{"min_area": {"-3"}},
		{"max_price": {"NaN"}},
		{"max_price": {"Inf"}},
		{"min_kitchen_area": {"infinity"}},
	} {
		if _, err := ParseQuery(bad); err == nil {
			t.Fatalf("expected error for %v", bad)
		}
	}
}
