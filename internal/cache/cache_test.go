package cache

import (
	"testing"
	"time"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
)

func TestIsValid_HitWithinTTLAndRegion(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := &Entry{Region: model.Region{North: 1, South: 0, East: 1, West: 0}, FetchedAt: t0}
	req := model.Region{North: 0.5, South: 0.2, East: 0.5, West: 0.2}

	if !IsValid(e, req, t0.Add(10*time.Second), 300*time.Second) {
		t.Fatal("expected hit 10s after fetch")
	}
}

func TestIsValid_ExpiryForcesMiss(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := &Entry{Region: model.Region{North: 1, South: 0, East: 1, West: 0}, FetchedAt: t0}
	req := model.Region{North: 0.5, South: 0.2, East: 0.5, West: 0.2}
	ttl := 300 * time.Second

	if IsValid(e, req, t0.Add(400*time.Second), ttl) {
		t.Fatal("expected miss 400s after fetch")
	}
	if IsValid(e, req, t0.Add(ttl+time.Nanosecond), ttl) {
		t.Fatal("expected miss just past ttl")
	}
	if IsValid(e, req, t0.Add(ttl), ttl) {
		t.Fatal("age equal to ttl is expired")
	}
}

func TestIsValid_RegionNotCovered(t *testing.T) {
	t0 := time.Now()
	e := &Entry{Region: model.Region{North: 1, South: 0, East: 1, West: 0}, FetchedAt: t0}
	req := model.Region{North: 1.2, South: 0.2, East: 0.5, West: 0.2}
	if IsValid(e, req, t0, time.Minute) {
		t.Fatal("expected miss when cached region does not cover request")
	}
}

func TestIsValid_NilEntry(t *testing.T) {
	if IsValid(nil, model.Region{North: 1, East: 1}, time.Now(), time.Minute) {
		t.Fatal("nil entry can never be valid")
	}
}

func TestStore_PutGetClear(t *testing.T) {
	s := NewStore()
	if s.Get() != nil {
		t.Fatal("new store must be empty")
	}
	e1 := &Entry{Generation: 1}
	e2 := &Entry{Generation: 2}
	s.Put(e1)
	s.Put(e2)
	if got := s.Get(); got != e2 {
		t.Fatalf("got generation %d want 2", got.Generation)
	}
	s.Clear()
	if s.Get() != nil {
		t.Fatal("Clear must empty the slot")
	}
}
