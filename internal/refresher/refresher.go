// Package refresher periodically records market price snapshots for every
// catalog item.
package refresher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/skintrack/tracker/internal/market"
	"github.com/skintrack/tracker/internal/metrics"
	"github.com/skintrack/tracker/internal/model"
	"github.com/skintrack/tracker/internal/store"
	"github.com/skintrack/tracker/internal/tracker"
)

// DefaultSchedule refreshes every six hours.
const DefaultSchedule = "@every 6h"

// Broadcaster receives a message for every snapshot written.
type Broadcaster interface {
	Broadcast(msg tracker.WSMessage)
}

// Runner owns the cron scheduler and the refresh job.
type Runner struct {
	cron    *cron.Cron
	store   store.Store
	source  market.PriceSource
	hub     Broadcaster
	baseCtx context.Context
	now     func() time.Time
	running atomic.Bool
	initial sync.WaitGroup
}

// New creates a runner. hub may be nil.
func New(baseCtx context.Context, st store.Store, source market.PriceSource, hub Broadcaster) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(),
		store:   st,
		source:  source,
		hub:     hub,
		baseCtx: baseCtx,
		now:     time.Now,
	}
}

// Start schedules the refresh job, runs it once in the background, and starts
// the scheduler.
func (r *Runner) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := r.cron.AddFunc(schedule, func() { r.RunOnce(r.baseCtx) }); err != nil {
		return err
	}
	r.initial.Add(1)
	go func() {
		defer r.initial.Done()
		r.RunOnce(r.baseCtx)
	}()
	r.cron.Start()
	slog.Info("price refresher started", "schedule", schedule)
	return nil
}

// Stop halts the scheduler and waits for running jobs, including the
// start-up refresh, to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.initial.Wait()
	slog.Info("price refresher stopped")
}

// RunOnce fetches a price for every item and appends a snapshot for each
// one found. A cycle already in progress makes this call a no-op; it
// returns the number of snapshots written.
func (r *Runner) RunOnce(ctx context.Context) int {
	if !r.running.CompareAndSwap(false, true) {
		slog.Warn("price refresh already running, skipping")
		return 0
	}
	defer r.running.Store(false)

	start := time.Now()
	defer func() { metrics.RefreshDuration.Observe(time.Since(start).Seconds()) }()

	items, err := r.store.ListItems(ctx)
	if err != nil {
		slog.Error("price refresh: list items failed", "err", err)
		return 0
	}
	slog.Info("price refresh started", "items", len(items))

	written := 0
	for _, it := range items {
		if ctx.Err() != nil {
			break
		}
		price, ok, err := r.source.Price(ctx, it.MarketName)
		if err != nil {
			slog.Warn("price fetch failed", "item_id", it.ID, "market_name", it.MarketName, "err", err)
			continue
		}
		if !ok {
			slog.Info("no market price", "item_id", it.ID, "market_name", it.MarketName)
			continue
		}

		snap := &model.MarketSnapshot{
			ID:         uuid.New().String(),
			ItemID:     it.ID,
			PlatformID: store.SteamPlatformID,
			Price:      price,
			Currency:   model.BaseCurrency,
			CapturedAt: r.now().UTC(),
		}
		if err := r.store.InsertSnapshot(ctx, snap); err != nil {
			slog.Error("snapshot insert failed", "item_id", it.ID, "err", err)
			continue
		}
		written++
		metrics.SnapshotsWritten.Inc()

		if r.hub != nil {
			r.hub.Broadcast(tracker.WSMessage{
				Type:       tracker.MsgSnapshotRecorded,
				ItemID:     it.ID,
				MarketName: it.MarketName,
				PlatformID: snap.PlatformID,
				Price:      price.String(),
				Timestamp:  snap.CapturedAt.Format(time.RFC3339),
			})
		}
	}

	slog.Info("price refresh finished", "items", len(items), "snapshots", written, "elapsed", time.Since(start))
	return written
}
