package fixture

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
)

const sample = `{"ads":[
 {"house_id":"a","lat":55.75,"lng":37.60,"price":1},
 {"house_id":"b","lat":55.76,"lng":37.61,"price":2},
 {"house_id":"c","lat":59.93,"lng":30.31,"price":3},
 {"house_id":"d","lat":null,"lng":37.61,"price":4},
 {"house_id":"e","lat":55.77,"lng":37.62,"price":5}
]}`

func load(t *testing.T) *Provider {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ads.json")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := Load(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return p
}

func TestFetchAds_FiltersByRegionAndLimit(t *testing.T) {
	p := load(t)
	moscow := model.Region{North: 55.8, South: 55.7, East: 37.7, West: 37.5}

	got, err := p.FetchAds(context.Background(), moscow, 0)
	if err != nil {
		t.Fatalf("FetchAds: %v", err)
	}
	if len(got) != 3 || got[0].HouseID != "a" || got[2].HouseID != "e" {
		t.Fatalf("got %+v", got)
	}

	got, _ = p.FetchAds(context.Background(), moscow, 2)
	if len(got) != 2 || got[1].HouseID != "b" {
		t.Fatalf("limit not applied: %+v", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := Load("", logger); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json"), logger); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFetchAds_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(nil).FetchAds(ctx, model.Region{North: 1, East: 1}, 1); err == nil {
		t.Fatal("expected context error")
	}
}
