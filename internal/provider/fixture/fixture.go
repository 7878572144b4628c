// Package fixture serves ads from a local JSON file for offline development.
package fixture

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/config"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/geo"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/listings"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/provider"
)

func init() {
	provider.Register("fixture", func(cfg config.ProviderCfg, logger *slog.Logger) (provider.Interface, error) {
		return Load(cfg.Fixture, logger)
	})
}

type Provider struct {
	raws   []listings.RawAd
	logger *slog.Logger
}

// Load reads path, which holds either {"ads":[...]} or a bare array.
func Load(path string, logger *slog.Logger) (*Provider, error) {
	if path == "" {
		return nil, fmt.Errorf("fixture provider: PROVIDER_FIXTURE is empty")
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture provider: read %s: %w", path, err)
	}
	raws, malformed, err := listings.DecodeRecords(body)
	if err != nil {
		return nil, fmt.Errorf("fixture provider: decode %s: %w", path, err)
	}
	logger.Info("fixture provider loaded", "path", path, "records", len(raws), "malformed", malformed)
	return &Provider{raws: raws, logger: logger}, nil
}

func New(raws []listings.RawAd) *Provider {
	return &Provider{raws: raws}
}

// FetchAds returns records whose coordinates fall inside region, in file
// order, truncated to limit. Records without coordinates are skipped.
func (p *Provider) FetchAds(ctx context.Context, region model.Region, limit int) ([]listings.RawAd, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fixture provider: %w", err)
	}
	out := make([]listings.RawAd, 0)
	for _, r := range p.raws {
		if limit > 0 && len(out) >= limit {
			break
		}
		if !r.Lat.Valid || !r.Lng.Valid {
			continue
		}
		if geo.PointIn(region, r.Lat.Value, r.Lng.Value) {
			out = append(out, r)
		}
	}
	provider.WarnIfCapped(ctx, p.logger, region, len(out), limit)
	return out, nil
}
