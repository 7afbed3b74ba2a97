// Package service — AllowanceService manages recurring allowance
// configuration and disburses payments when their date arrives.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/infra/observability"
	"github.com/boddenberg/mesada-api-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var allowanceTracer = otel.Tracer("service/allowance")

// AllowanceService owns allowance configs and the disbursement tick.
type AllowanceService struct {
	store   port.Store
	ledger  *LedgerService
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewAllowanceService creates a new allowance service.
func NewAllowanceService(store port.Store, ledger *LedgerService, metrics *observability.Metrics, logger *zap.Logger) *AllowanceService {
	return &AllowanceService{store: store, ledger: ledger, metrics: metrics, logger: logger}
}

// ============================================================
// Configure — PUT /v1/children/{childId}/allowance
// ============================================================

// Configure creates or replaces a child's allowance config. The next
// payment date is set to the first valid occurrence strictly after today.
func (s *AllowanceService) Configure(ctx context.Context, childID string, req *domain.AllowanceConfigRequest, today time.Time) (*domain.AllowanceConfig, error) {
	ctx, span := allowanceTracer.Start(ctx, "AllowanceService.Configure")
	defer span.End()
	span.SetAttributes(attribute.String("child.id", childID))

	if req.Amount <= 0 {
		return nil, &domain.ErrInvalidAmount{Amount: req.Amount, Reason: "valor deve ser positivo"}
	}

	cfg := &domain.AllowanceConfig{
		ChildID:    childID,
		Amount:     domain.RoundCents(req.Amount),
		Frequency:  req.Frequency,
		DayOfWeek:  req.DayOfWeek,
		DayOfMonth: req.DayOfMonth,
		IsActive:   req.IsActive,
	}
	if err := validateSchedule(cfg); err != nil {
		return nil, err
	}

	child, err := s.store.GetChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	if child == nil {
		return nil, &domain.ErrNotFound{Resource: "child", ID: childID}
	}

	next, err := nextScheduleDate(cfg, dateOnly(today))
	if err != nil {
		return nil, err
	}
	cfg.NextPaymentDate = next

	if err := s.store.UpsertAllowanceConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("upsert allowance config: %w", err)
	}

	s.logger.Info("allowance configured",
		zap.String("child_id", childID),
		zap.Float64("amount", cfg.Amount),
		zap.String("frequency", string(cfg.Frequency)),
		zap.Time("next_payment_date", cfg.NextPaymentDate),
	)
	return cfg, nil
}

// Get returns a child's allowance config.
func (s *AllowanceService) Get(ctx context.Context, childID string) (*domain.AllowanceConfig, error) {
	ctx, span := allowanceTracer.Start(ctx, "AllowanceService.Get")
	defer span.End()

	cfg, err := s.store.GetAllowanceConfig(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("get allowance config: %w", err)
	}
	if cfg == nil {
		return nil, &domain.ErrNotFound{Resource: "allowance_config", ID: childID}
	}
	return cfg, nil
}

// ============================================================
// Tick — scheduler entry point
// ============================================================

// Tick disburses the child's allowance when its payment date has arrived.
// It is idempotent: a second call on the same day is a no-op, and a tick
// after missed days pays exactly one period before rescheduling relative
// to today, so gaps never compound.
// Returns true when a disbursement was posted.
func (s *AllowanceService) Tick(ctx context.Context, childID string, today time.Time) (bool, error) {
	ctx, span := allowanceTracer.Start(ctx, "AllowanceService.Tick")
	defer span.End()
	span.SetAttributes(attribute.String("child.id", childID))

	today = dateOnly(today)

	// The date check, the ledger append and the date advance form one
	// unit under the child's lock; a concurrent tick waits and then sees
	// the advanced date.
	disbursed := false
	err := s.ledger.withChildLock(childID, func() error {
		cfg, err := s.store.GetAllowanceConfig(ctx, childID)
		if err != nil {
			return fmt.Errorf("get allowance config: %w", err)
		}
		if cfg == nil || !cfg.IsActive {
			return nil
		}
		if cfg.NextPaymentDate.After(today) {
			return nil
		}
		if err := validateSchedule(cfg); err != nil {
			return err
		}

		// Reschedule relative to today before touching the ledger would
		// lose the payment on append failure; compute first, persist after.
		next, err := nextScheduleDate(cfg, today)
		if err != nil {
			return err
		}

		if _, err := s.ledger.appendLocked(ctx, childID, domain.KindAllowance, cfg.Amount, "mesada", "mesada recorrente", today); err != nil {
			return fmt.Errorf("disburse allowance: %w", err)
		}

		cfg.NextPaymentDate = next
		if err := s.store.UpsertAllowanceConfig(ctx, cfg); err != nil {
			return fmt.Errorf("advance next payment date: %w", err)
		}

		disbursed = true
		s.metrics.IncrDisbursement()
		s.logger.Info("allowance disbursed",
			zap.String("child_id", childID),
			zap.Float64("amount", cfg.Amount),
			zap.Time("next_payment_date", cfg.NextPaymentDate),
		)
		return nil
	})
	return disbursed, err
}

// ============================================================
// Schedule arithmetic
// ============================================================

func validateSchedule(cfg *domain.AllowanceConfig) error {
	switch cfg.Frequency {
	case domain.FrequencyDaily:
		return nil
	case domain.FrequencyWeekly:
		if cfg.DayOfWeek < 0 || cfg.DayOfWeek > 6 {
			return &domain.ErrSchedulingMisconfigured{ChildID: cfg.ChildID, Reason: fmt.Sprintf("day_of_week fora do intervalo 0-6: %d", cfg.DayOfWeek)}
		}
		return nil
	case domain.FrequencyMonthly:
		if cfg.DayOfMonth < 1 || cfg.DayOfMonth > 31 {
			return &domain.ErrSchedulingMisconfigured{ChildID: cfg.ChildID, Reason: fmt.Sprintf("day_of_month fora do intervalo 1-31: %d", cfg.DayOfMonth)}
		}
		return nil
	default:
		return &domain.ErrSchedulingMisconfigured{ChildID: cfg.ChildID, Reason: fmt.Sprintf("frequência desconhecida: %s", cfg.Frequency)}
	}
}

// nextScheduleDate returns the first valid schedule occurrence strictly
// after the given day.
func nextScheduleDate(cfg *domain.AllowanceConfig, after time.Time) (time.Time, error) {
	switch cfg.Frequency {
	case domain.FrequencyDaily:
		return after.AddDate(0, 0, 1), nil

	case domain.FrequencyWeekly:
		days := (cfg.DayOfWeek - int(after.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		return after.AddDate(0, 0, days), nil

	case domain.FrequencyMonthly:
		candidate := clampedMonthDay(after.Year(), after.Month(), cfg.DayOfMonth)
		if candidate.After(after) {
			return candidate, nil
		}
		y, m := after.Year(), after.Month()+1
		return clampedMonthDay(y, m, cfg.DayOfMonth), nil

	default:
		return time.Time{}, &domain.ErrSchedulingMisconfigured{ChildID: cfg.ChildID, Reason: fmt.Sprintf("frequência desconhecida: %s", cfg.Frequency)}
	}
}

// clampedMonthDay builds a date in the given month, clamping day to the
// month's length (e.g. day 31 in February becomes the 28th or 29th).
func clampedMonthDay(year int, month time.Month, day int) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// dateOnly truncates a timestamp to midnight UTC.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
