// Package viewport serves filtered listings for a map viewport from a
// single-slot cache, fetching a padded region from the provider on a miss.
package viewport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/aggregate/houses"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/cache"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/cache/keys"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/cache/snapshot"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/observability"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/filter"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/geo"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/logger"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/provider"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/viewportevents"
)

var (
	// ErrSuperseded means a newer fetch started while this one was in flight;
	// the caller should re-request.
	ErrSuperseded = errors.New("viewport: fetch superseded by a newer request")
	// ErrProvider wraps a failed provider call. The cached entry is untouched.
	ErrProvider      = errors.New("viewport: provider fetch failed")
	ErrInvalidRegion = errors.New("viewport: invalid region")
)

const DefaultLimit = 5000

// EventSink receives one event per GetFilteredData call.
type EventSink interface {
	Publish(ev viewportevents.Event)
}

// CellLocator tags events with the h3 cell under the viewport center.
type CellLocator interface {
	CellForPoint(lat, lng float64, res int) (string, error)
}

type Options struct {
	Provider provider.Interface
	Logger   *slog.Logger

	TTL       time.Duration // zero selects cache.DefaultTTL
	MarginDeg float64       // zero selects geo.DefaultMarginDeg
	Limit     int           // zero selects DefaultLimit

	Snapshot        snapshot.Mirror // optional
	SnapshotTimeout time.Duration
	Events          EventSink // optional
	Cells           CellLocator
	CellRes         int

	Now func() time.Time
}

type Service struct {
	store  *cache.Store
	orch   *orchestrator
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
	snap   snapshot.Mirror
	snapTO time.Duration
	// snapMu orders snapshot writes so the mirror ends with whatever the slot
	// held last: a save checks the slot and writes under it, and Invalidate
	// clears the slot and deletes under it.
	snapMu sync.Mutex
	events EventSink
	cells  CellLocator
	res    int
}

func New(opts Options) (*Service, error) {
	if opts.Provider == nil {
		return nil, errors.New("viewport: provider is required")
	}
	if opts.MarginDeg < 0 {
		return nil, fmt.Errorf("viewport: negative margin %v", opts.MarginDeg)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.TTL <= 0 {
		opts.TTL = cache.DefaultTTL
	}
	if opts.MarginDeg == 0 {
		opts.MarginDeg = geo.DefaultMarginDeg
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = 250 * time.Millisecond
	}

	store := cache.NewStore()
	return &Service{
		store: store,
		orch: &orchestrator{
			store:    store,
			provider: opts.Provider,
			margin:   opts.MarginDeg,
			limit:    opts.Limit,
			now:      opts.Now,
			logger:   opts.Logger,
		},
		ttl:    opts.TTL,
		now:    opts.Now,
		logger: opts.Logger,
		snap:   opts.Snapshot,
		snapTO: opts.SnapshotTimeout,
		events: opts.Events,
		cells:  opts.Cells,
		res:    opts.CellRes,
	}, nil
}

// GetFilteredData answers from the cached entry when it is fresh and covers
// region, otherwise fetches. Filters apply to the cached ads; houses are
// recolored against region itself, never the padded fetch region.
func (s *Service) GetFilteredData(ctx context.Context, region model.Region, criteria model.FilterCriteria) (*model.ViewData, error) {
	if err := region.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRegion, err)
	}
	start := s.now()
	ctx = logger.WithRegionKey(ctx, keys.Region(region))

	outcome := viewportevents.OutcomeHit
	e := s.store.Get()
	if cache.IsValid(e, region, start, s.ttl) {
		observability.IncCacheHit()
	} else {
		observability.IncCacheMiss()
		outcome = viewportevents.OutcomeMiss

		var err error
		e, err = s.orch.fetch(ctx, region)
		if err != nil {
			outcome = viewportevents.OutcomeError
			if errors.Is(err, ErrSuperseded) {
				outcome = viewportevents.OutcomeSuperseded
			}
			s.publish(start, outcome, region, nil, 0)
			return nil, err
		}
		s.mirror(ctx, e)
	}

	filtered := filter.Apply(e.Ads, criteria)
	view := &model.ViewData{
		Houses: houses.Recolor(e.Houses, filtered, region),
		Ads:    inRegion(filtered, region),
	}

	s.logger.DebugContext(logger.WithCacheOutcome(ctx, outcome), "viewport served",
		"generation", e.Generation,
		"houses", len(view.Houses),
		"ads", len(view.Ads))
	s.publish(start, outcome, region, view, e.Generation)
	return view, nil
}

func inRegion(ads []model.Ad, r model.Region) []model.Ad {
	out := make([]model.Ad, 0, len(ads))
	for _, ad := range ads {
		if geo.PointIn(r, ad.Lat, ad.Lng) {
			out = append(out, ad)
		}
	}
	return out
}

// Invalidate empties the slot and the mirrored snapshot. The generation is
// left alone, so a fetch already in flight may still install its result.
func (s *Service) Invalidate(ctx context.Context) {
	if s.snap == nil {
		s.store.Clear()
		return
	}
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	s.store.Clear()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.snapTO)
	defer cancel()
	if err := s.snap.Delete(ctx); err != nil {
		s.logger.WarnContext(ctx, "snapshot delete failed", "err", err)
	}
}

func (s *Service) CacheInfo() model.CacheInfo {
	info := model.CacheInfo{
		TTL:        s.ttl,
		TTLMs:      s.ttl.Milliseconds(),
		Generation: s.orch.generation(),
	}
	e := s.store.Get()
	if e == nil {
		return info
	}
	r := e.Region
	info.HasCache = true
	info.AgeMs = s.now().Sub(e.FetchedAt).Milliseconds()
	info.Region = &r
	info.HousesCount = len(e.Houses)
	info.AdsCount = len(e.Ads)
	return info
}

// CachedRegion returns the padded region of the current entry.
func (s *Service) CachedRegion() (model.Region, bool) {
	e := s.store.Get()
	if e == nil {
		return model.Region{}, false
	}
	return e.Region, true
}

// HasHouse reports whether the current entry holds an ad for houseID.
func (s *Service) HasHouse(houseID string) bool {
	e := s.store.Get()
	if e == nil {
		return false
	}
	for _, h := range e.Houses {
		if h.HouseID == houseID {
			return true
		}
	}
	return false
}

// Warm loads a still-fresh snapshot into an empty slot. It reports whether an
// entry was installed.
func (s *Service) Warm(ctx context.Context) (bool, error) {
	if s.snap == nil {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.snapTO)
	defer cancel()

	e, err := s.snap.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("warm from snapshot: %w", err)
	}
	if e == nil || s.now().Sub(e.FetchedAt) >= s.ttl {
		return false, nil
	}
	installed, ok := s.orch.adopt(e)
	if !ok {
		return false, nil
	}
	s.logger.InfoContext(ctx, "cache warmed from snapshot",
		"region", installed.Region.String(),
		"ads", len(installed.Ads),
		"generation", installed.Generation)
	return true, nil
}

func (s *Service) mirror(ctx context.Context, e *cache.Entry) {
	if s.snap == nil {
		return
	}
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	if s.store.Get() != e {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.snapTO)
	defer cancel()
	if err := s.snap.Save(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "snapshot save failed", "err", err)
	}
}

func (s *Service) publish(start time.Time, outcome string, region model.Region, view *model.ViewData, gen uint64) {
	if s.events == nil {
		return
	}
	ev := viewportevents.Event{
		TS:         start,
		Outcome:    outcome,
		Region:     region,
		RegionKey:  keys.Region(region),
		Generation: gen,
		DurationMs: float64(s.now().Sub(start).Microseconds()) / 1000,
	}
	if s.cells != nil {
		lat := (region.North + region.South) / 2
		lng := (region.East + region.West) / 2
		if cell, err := s.cells.CellForPoint(lat, lng, s.res); err == nil {
			ev.Cell = cell
		} else {
			s.logger.Debug("viewport cell lookup failed", "err", err)
		}
	}
	if view != nil {
		ev.Houses = len(view.Houses)
		ev.Ads = len(view.Ads)
	}
	s.events.Publish(ev)
}

// Close closes the event sink when it is an io.Closer.
func (s *Service) Close() error {
	if c, ok := s.events.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close event sink: %w", err)
		}
	}
	return nil
}
