package snapshot

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/cache"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/cache/keys"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
)

func newMini(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	cli, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	return cli, mr
}

func sampleEntry(fetched time.Time) *cache.Entry {
	area := 42.5
	return &cache.Entry{
		Region: model.Region{North: 55.81, South: 55.69, East: 37.71, West: 37.49},
		Ads: []model.Ad{
			{HouseID: "h1", Lat: 55.75, Lng: 37.6, Price: 4_500_000, Rooms: 2, Area: &area, IsActive: true},
		},
		Houses: []model.House{
			{HouseID: "h1", Lat: 55.75, Lng: 37.6, ActiveAdsCount: 1, TotalAdsCount: 1, HasActiveAds: true},
		},
		FetchedAt:  fetched,
		Generation: 7,
	}
}

func TestRedisMirror_RoundTrip(t *testing.T) {
	cli, mr := newMini(t)
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := t0.Add(time.Minute)
	m := NewRedisMirror(cli, "test", 5*time.Minute, WithClock(func() time.Time { return now }))

	ctx := context.Background()
	if err := m.Save(ctx, sampleEntry(t0)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	key := keys.Snapshot("test")
	if ttl := mr.TTL(key); ttl != 4*time.Minute {
		t.Fatalf("ttl=%s want remaining 4m", ttl)
	}

	got, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.Generation != 7 || len(got.Ads) != 1 || len(got.Houses) != 1 {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if !got.FetchedAt.Equal(t0) {
		t.Fatalf("fetched_at=%s want %s", got.FetchedAt, t0)
	}
	if got.Ads[0].Area == nil || *got.Ads[0].Area != 42.5 {
		t.Fatalf("optional area lost: %+v", got.Ads[0])
	}
	if got.Ads[0].KitchenArea != nil {
		t.Fatal("absent kitchen area must stay absent")
	}

	if err := m.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, err := m.Load(ctx); err != nil || got != nil {
		t.Fatalf("after delete got=%v err=%v", got, err)
	}
}

func TestRedisMirror_ExpiredEntryNotWritten(t *testing.T) {
	cli, mr := newMini(t)
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := t0.Add(6 * time.Minute)
	m := NewRedisMirror(cli, "test", 5*time.Minute, WithClock(func() time.Time { return now }))

	if err := m.Save(context.Background(), sampleEntry(t0)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if mr.Exists(keys.Snapshot("test")) {
		t.Fatal("expired entry must not be mirrored")
	}
}

func TestRedisMirror_ExpiresWithEntry(t *testing.T) {
	cli, mr := newMini(t)
	t0 := time.Now()
	m := NewRedisMirror(cli, "test", time.Minute, WithClock(func() time.Time { return t0 }))

	if err := m.Save(context.Background(), sampleEntry(t0)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	mr.FastForward(61 * time.Second)
	if got, err := m.Load(context.Background()); err != nil || got != nil {
		t.Fatalf("after expiry got=%v err=%v", got, err)
	}
}

func TestRedisMirror_CorruptPayload(t *testing.T) {
	cli, mr := newMini(t)
	m := NewRedisMirror(cli, "test", time.Minute)
	if err := mr.Set(keys.Snapshot("test"), "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := m.Load(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRedisMirror_NamespacesAreIsolated(t *testing.T) {
	cli, _ := newMini(t)
	now := time.Now()
	a := NewRedisMirror(cli, "a", time.Minute, WithClock(func() time.Time { return now }))
	b := NewRedisMirror(cli, "b", time.Minute, WithClock(func() time.Time { return now }))

	if err := a.Save(context.Background(), sampleEntry(now)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got, _ := b.Load(context.Background()); got != nil {
		t.Fatal("namespace b must not see a's snapshot")
	}
}
