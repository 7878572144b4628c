// Package provider defines the listings provider seam and its driver registry.
package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/config"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/listings"
)

// Interface fetches raw ads inside region, at most limit of them.
type Interface interface {
	FetchAds(ctx context.Context, region model.Region, limit int) ([]listings.RawAd, error)
}

// Func adapts a plain function to Interface.
type Func func(ctx context.Context, region model.Region, limit int) ([]listings.RawAd, error)

func (f Func) FetchAds(ctx context.Context, region model.Region, limit int) ([]listings.RawAd, error) {
	return f(ctx, region, limit)
}

// WarnIfCapped logs when an upstream answer reached limit, which means the
// region may hold ads that were left out. received counts every record the
// upstream sent, including ones discarded while decoding.
func WarnIfCapped(ctx context.Context, logger *slog.Logger, region model.Region, received, limit int) bool {
	if limit <= 0 || received < limit {
		return false
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "provider result hit the record cap; region may be truncated",
		"limit", limit,
		"received", received,
		"region", region.String())
	return true
}

type Factory func(cfg config.ProviderCfg, logger *slog.Logger) (Interface, error)

const DefaultDriver = "http"

var reg = map[string]Factory{}

func Register(name string, f Factory) {
	reg[name] = f
}

func New(cfg config.ProviderCfg, logger *slog.Logger) (Interface, error) {
	if f, ok := reg[cfg.Driver]; ok {
		return f(cfg, logger)
	}
	if f, ok := reg[DefaultDriver]; ok {
		logger.Warn("unknown provider driver; falling back to http", "driver", cfg.Driver)
		return f(cfg, logger)
	}
	return nil, fmt.Errorf("no factory for provider driver %q and no %s driver registered", cfg.Driver, DefaultDriver)
}
