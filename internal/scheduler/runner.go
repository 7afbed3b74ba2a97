// Package scheduler drives the daily allowance and interest ticks. The
// runner is only a driver: idempotence and per-child correctness live in
// the services, so overlapping runs and restarts are safe.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/port"
	"github.com/boddenberg/mesada-api-go/internal/service"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var runnerTracer = otel.Tracer("scheduler/runner")

// Runner periodically fans the two ticks out across all active configs.
type Runner struct {
	store       port.Store
	allowance   *service.AllowanceService
	interest    *service.InterestService
	clock       port.Clock
	logger      *zap.Logger
	interval    time.Duration
	concurrency int
}

// NewRunner creates a tick runner. concurrency bounds how many children
// are processed in parallel per pass.
func NewRunner(store port.Store, allowance *service.AllowanceService, interest *service.InterestService, clock port.Clock, logger *zap.Logger, interval time.Duration, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		store:       store,
		allowance:   allowance,
		interest:    interest,
		clock:       clock,
		logger:      logger,
		interval:    interval,
		concurrency: concurrency,
	}
}

// Start runs ticks until the context is cancelled. One pass fires
// immediately so a restarted service catches up without waiting a full
// interval.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.runPass(ctx, r.clock.Now())
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			r.runPass(ctx, r.clock.Now())
		}
	}
}

func (r *Runner) runPass(ctx context.Context, today time.Time) {
	summary, err := r.RunOnce(ctx, today)
	if err != nil {
		r.logger.Error("scheduler pass failed", zap.Error(err))
		return
	}
	r.logger.Info("scheduler pass finished",
		zap.String("date", summary.Date),
		zap.Int("disbursements", summary.Disbursements),
		zap.Int("interest_postings", summary.InterestPostings),
		zap.Int("errors", summary.Errors),
	)
}

// RunOnce executes a single pass for the given day and reports what it
// did. Per-child failures are counted, logged and skipped; they never
// abort the pass.
func (r *Runner) RunOnce(ctx context.Context, today time.Time) (*domain.TickSummary, error) {
	ctx, span := runnerTracer.Start(ctx, "Runner.RunOnce")
	defer span.End()

	allowances, err := r.store.ListActiveAllowanceConfigs(ctx)
	if err != nil {
		return nil, err
	}
	interests, err := r.store.ListActiveInterestConfigs(ctx)
	if err != nil {
		return nil, err
	}

	var disbursed, posted, failed int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, cfg := range allowances {
		cfg := cfg
		g.Go(func() error {
			ok, err := r.allowance.Tick(gctx, cfg.ChildID, today)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				r.logger.Error("allowance tick failed",
					zap.String("child_id", cfg.ChildID),
					zap.Error(err),
				)
				return nil
			}
			if ok {
				atomic.AddInt64(&disbursed, 1)
			}
			return nil
		})
	}

	for _, cfg := range interests {
		cfg := cfg
		g.Go(func() error {
			ok, err := r.interest.Tick(gctx, cfg.ChildID, today)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				r.logger.Error("interest tick failed",
					zap.String("child_id", cfg.ChildID),
					zap.Error(err),
				)
				return nil
			}
			if ok {
				atomic.AddInt64(&posted, 1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &domain.TickSummary{
		Date:             today.Format("2006-01-02"),
		Disbursements:    int(disbursed),
		InterestPostings: int(posted),
		Errors:           int(failed),
	}, nil
}
