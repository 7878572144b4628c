package viewport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/cache"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/observability"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/geo"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/listings"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/provider"
)

// orchestrator owns the generation counter. Every write to the store goes
// through install, which holds mu while comparing generations.
type orchestrator struct {
	mu       sync.Mutex
	gen      uint64
	store    *cache.Store
	provider provider.Interface
	margin   float64
	limit    int
	now      func() time.Time
	logger   *slog.Logger
}

// fetch pads requested, calls the provider and installs the result if no
// newer fetch started in the meantime.
func (o *orchestrator) fetch(ctx context.Context, requested model.Region) (*cache.Entry, error) {
	o.mu.Lock()
	o.gen++
	g := o.gen
	o.mu.Unlock()

	padded := geo.Expand(requested, o.margin)

	raws, err := o.provider.FetchAds(ctx, padded, o.limit)
	if err != nil {
		observability.IncFetch("error")
		o.logger.ErrorContext(ctx, "provider fetch failed",
			"generation", g,
			"region", padded.String(),
			"err", err)
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	b := listings.NormalizeWithin(raws, padded)
	for reason, n := range b.Dropped {
		observability.AddRecordsDropped(string(reason), n)
	}
	if n := b.DroppedTotal(); n > 0 {
		o.logger.DebugContext(ctx, "records dropped during normalization",
			"generation", g,
			"dropped", n,
			"kept", len(b.Ads))
	}

	e := &cache.Entry{
		Region:     padded,
		Ads:        b.Ads,
		Houses:     b.Houses,
		FetchedAt:  o.now(),
		Generation: g,
	}
	if !o.install(e) {
		observability.IncFetch("superseded")
		o.logger.DebugContext(ctx, "discarding superseded fetch", "generation", g)
		return nil, ErrSuperseded
	}
	observability.IncFetch("ok")
	return e, nil
}

func (o *orchestrator) install(e *cache.Entry) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != e.Generation {
		return false
	}
	o.store.Put(e)
	return true
}

// adopt installs an entry that did not come from fetch (snapshot warm start).
// It only fills an empty slot and takes a fresh generation, so any fetch
// already in flight is superseded by it.
func (o *orchestrator) adopt(e *cache.Entry) (*cache.Entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.store.Get() != nil {
		return nil, false
	}
	o.gen++
	cp := *e
	cp.Generation = o.gen
	o.store.Put(&cp)
	return &cp, true
}

func (o *orchestrator) generation() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gen
}
