// Package listings converts raw provider records into normalized ads.
package listings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RawAd is one provider record as it arrives on the wire. Numeric fields are
// loosely typed upstream (numbers, numeric strings or null).
type RawAd struct {
	HouseID     ID        `json:"house_id"`
	Lat         Number    `json:"lat"`
	Lng         Number    `json:"lng"`
	Price       Number    `json:"price"`
	Rooms       Number    `json:"rooms"`
	Floor       Number    `json:"floor"`
	TotalFloors Number    `json:"total_floors"`
	Area        Number    `json:"area"`
	KitchenArea Number    `json:"kitchen_area"`
	URL         string    `json:"url"`
	UpdatedAt   Timestamp `json:"updated_at"`
	StatusCode  Number    `json:"status_code"`
	Address     string    `json:"address"`
	DistanceM   Number    `json:"distance_m"`
}

// Number is a float that may be absent. Valid is false for null, missing and
// empty-string values.
type Number struct {
	Value float64
	Valid bool
}

func Num(v float64) Number { return Number{Value: v, Valid: true} }

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = Number{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("number string: %w", err)
		}
		v, ok := parseLooseFloat(s)
		*n = Number{Value: v, Valid: ok}
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return fmt.Errorf("number: %w", err)
	}
	*n = Number{Value: v, Valid: err == nil && finite(v)}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, n.Value, 'f', -1, 64), nil
}

// accepts "5 000 000", "42,5" and non-breaking spaces; garbage, NaN and
// infinities are absent
func parseLooseFloat(s string) (float64, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\t':
			return -1
		case ',':
			return '.'
		}
		return r
	}, s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(v) {
		return 0, false
	}
	return v, true
}

// ID is a building identifier that upstream sends either as a string or a number.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("id: %w", err)
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(num.String())
	return nil
}

// Timestamp accepts RFC3339, "2006-01-02 15:04:05" and unix seconds.
type Timestamp struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if b[0] != '"' {
		secs, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		t.Time = time.Unix(int64(secs), 0).UTC()
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			t.Time = ts
			return nil
		}
	}
	// unparseable dates read as zero
	t.Time = time.Time{}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	b, err := t.Time.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	return b, nil
}
