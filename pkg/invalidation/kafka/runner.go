// Package kafka consumes listing change events and invalidates the viewport
// cache when a change touches the cached region.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/geo"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/invalidation"
)

// Invalidator is the slice of viewport.Service the runner drives.
type Invalidator interface {
	Invalidate(ctx context.Context)
	CachedRegion() (model.Region, bool)
	HasHouse(houseID string) bool
}

type CellResolver interface {
	RegionForCells(cells []string) (model.Region, error)
}

type Runner struct {
	log      *slog.Logger
	cfg      InvalidationConfig
	target   Invalidator
	cells    CellResolver
	ms       *metricSet
	versions *sourceVersions
	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
}

func New(cfg InvalidationConfig, target Invalidator, cells CellResolver, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		log:      opts.Logger,
		cfg:      cfg,
		target:   target,
		cells:    cells,
		ms:       newMetricSet(opts.Register),
		versions: newSourceVersions(cfg.DedupeSize),
		assign:   map[int32]struct{}{},
	}
}

func (r *Runner) Enabled() bool {
	return r.cfg.Enabled && r.cfg.Driver == DriverKafka
}

func (r *Runner) Start(ctx context.Context) error {
	if !r.Enabled() {
		r.log.Info("invalidation runner disabled", "driver", r.cfg.Driver, "enabled", r.cfg.Enabled)
		return nil
	}
	if r.target == nil {
		return errors.New("kafka runner: invalidation target is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			r.setAssignment(sess.Claims())
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			r.setAssignment(nil)
		},
		process: r.handleMessage,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				r.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("kafka invalidation runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("kafka invalidation runner stopped")
}

func (r *Runner) setAssignment(claims map[string][]int32) {
	r.assignMu.Lock()
	defer r.assignMu.Unlock()
	r.assign = map[int32]struct{}{}
	for _, parts := range claims {
		for _, p := range parts {
			r.assign[p] = struct{}{}
		}
	}
	r.assigned.Store(claims != nil)
}

func (r *Runner) Readiness() (ready bool, partitions []int32) {
	if !r.assigned.Load() {
		return false, nil
	}
	r.assignMu.RLock()
	defer r.assignMu.RUnlock()
	for p := range r.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

// handleMessage never fails on bad payloads: they are counted, logged and
// committed so one poison message cannot stall the partition.
func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	if !msg.Timestamp.IsZero() {
		r.ms.lagGauge.Set(time.Since(msg.Timestamp).Seconds())
	}

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		r.reject(msg, "decode", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		r.reject(msg, "validate", err)
		return nil
	}

	if !r.versions.advance(ev) {
		r.ms.decide(actionSkip, reasonStale)
		r.observe(ev.Op, nil, time.Since(start))
		return nil
	}

	err := r.apply(ctx, ev)
	r.observe(ev.Op, err, time.Since(start))
	if err != nil {
		r.log.Warn("invalidation event not applied",
			"source", ev.Source,
			"version", ev.Version,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"err", err)
	}
	return nil
}

func (r *Runner) reject(msg *sarama.ConsumerMessage, stage string, err error) {
	r.ms.msgs.WithLabelValues("rejected").Inc()
	r.log.Warn("invalidation message rejected",
		"stage", stage,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"err", err)
}

func (r *Runner) observe(op string, err error, dur time.Duration) {
	if op == "" {
		op = "unknown"
	}
	if err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
	} else {
		r.ms.msgs.WithLabelValues("ok").Inc()
	}
	r.ms.proc.WithLabelValues(op).Observe(dur.Seconds())
}

func (r *Runner) apply(ctx context.Context, ev invalidation.Event) error {
	hit, reason, err := r.affects(ev)
	if err != nil {
		return err
	}
	if !hit {
		r.ms.decide(actionSkip, reason)
		return nil
	}
	r.target.Invalidate(ctx)
	r.ms.decide(actionInvalidate, reason)
	r.ms.lastCleared.SetToCurrentTime()
	r.log.Info("viewport cache invalidated",
		"source", ev.Source,
		"version", ev.Version,
		"op", ev.Op,
		"reason", reason)
	return nil
}

// affects reports whether ev touches the cached entry and why.
func (r *Runner) affects(ev invalidation.Event) (bool, string, error) {
	if ev.Op == invalidation.OpRefresh {
		return true, reasonRefresh, nil
	}
	cached, ok := r.target.CachedRegion()
	if !ok {
		return false, reasonEmpty, nil
	}
	for _, id := range ev.HouseIDs {
		if r.target.HasHouse(id) {
			return true, reasonHouse, nil
		}
	}
	if ev.BBox != nil && geo.Intersects(cached, ev.BBox.Region()) {
		return true, reasonBBox, nil
	}
	if len(ev.H3Cells) > 0 {
		if r.cells == nil {
			return false, "", errors.New("event carries h3 cells but no cell resolver is configured")
		}
		cr, err := r.cells.RegionForCells(ev.H3Cells)
		if err != nil {
			return false, "", fmt.Errorf("resolve h3 cells: %w", err)
		}
		if geo.Intersects(cached, cr) {
			return true, reasonH3, nil
		}
	}
	return false, reasonDisjoint, nil
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
