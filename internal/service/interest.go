// Package service — InterestService applies monthly interest on the
// minimum balance held over the trailing 30-day window.
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

var interestTracer = otel.Tracer("service/interest")

const (
	maxMonthlyRate     = 0.10
	interestWindowDays = 30
)

// InterestService owns interest configs and the monthly accrual tick.
type InterestService struct {
	store   port.Store
	ledger  *LedgerService
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewInterestService creates a new interest service.
func NewInterestService(store port.Store, ledger *LedgerService, metrics *observability.Metrics, logger *zap.Logger) *InterestService {
	return &InterestService{store: store, ledger: ledger, metrics: metrics, logger: logger}
}

// ============================================================
// Configure — PUT /v1/children/{childId}/interest
// ============================================================

// Configure creates or replaces a child's interest config. The rate must
// fall in [0, 0.10]; a change never rewrites interest already posted.
func (s *InterestService) Configure(ctx context.Context, childID string, req *domain.InterestConfigRequest) (*domain.InterestConfig, error) {
	ctx, span := interestTracer.Start(ctx, "InterestService.Configure")
	defer span.End()
	span.SetAttributes(attribute.String("child.id", childID))

	if req.MonthlyRate < 0 || req.MonthlyRate > maxMonthlyRate {
		return nil, &domain.ErrValidation{Field: "monthlyRate", Message: fmt.Sprintf("taxa deve estar entre 0 e %.2f", maxMonthlyRate)}
	}
	if req.MinimumBalance < 0 {
		return nil, &domain.ErrValidation{Field: "minimumBalance", Message: "saldo mínimo não pode ser negativo"}
	}
	day := req.ApplicationDay
	if day == 0 {
		day = 1
	}
	if day < 1 || day > 31 {
		return nil, &domain.ErrValidation{Field: "applicationDay", Message: "dia de aplicação deve estar entre 1 e 31"}
	}

	child, err := s.store.GetChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	if child == nil {
		return nil, &domain.ErrNotFound{Resource: "child", ID: childID}
	}

	// Preserve the double-application guard across reconfiguration.
	existing, err := s.store.GetInterestConfig(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("get interest config: %w", err)
	}

	cfg := &domain.InterestConfig{
		ChildID:        childID,
		MonthlyRate:    req.MonthlyRate,
		MinimumBalance: domain.RoundCents(req.MinimumBalance),
		ApplicationDay: day,
		IsActive:       req.IsActive,
	}
	if existing != nil {
		cfg.LastAppliedDate = existing.LastAppliedDate
	}

	if err := s.store.UpsertInterestConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("upsert interest config: %w", err)
	}

	s.logger.Info("interest configured",
		zap.String("child_id", childID),
		zap.Float64("monthly_rate", cfg.MonthlyRate),
		zap.Float64("minimum_balance", cfg.MinimumBalance),
		zap.Int("application_day", cfg.ApplicationDay),
	)
	return cfg, nil
}

// Get returns a child's interest config.
func (s *InterestService) Get(ctx context.Context, childID string) (*domain.InterestConfig, error) {
	ctx, span := interestTracer.Start(ctx, "InterestService.Get")
	defer span.End()

	cfg, err := s.store.GetInterestConfig(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("get interest config: %w", err)
	}
	if cfg == nil {
		return nil, &domain.ErrNotFound{Resource: "interest_config", ID: childID}
	}
	return cfg, nil
}

// ============================================================
// Tick — scheduler entry point
// ============================================================

// Tick applies monthly interest when today is the application day (clamped
// to the month's length) and no interest was applied this month yet.
// Interest accrues on the minimum balance held over the trailing 30 days,
// including the balance carried into the window. Balances below the
// configured minimum earn nothing and leave the config untouched.
// Returns true when an interest transaction was posted.
func (s *InterestService) Tick(ctx context.Context, childID string, today time.Time) (bool, error) {
	ctx, span := interestTracer.Start(ctx, "InterestService.Tick")
	defer span.End()
	span.SetAttributes(attribute.String("child.id", childID))

	today = dateOnly(today)

	// The month guard, the ledger append and the guard advance form one
	// unit under the child's lock; a concurrent tick waits and then sees
	// the advanced guard.
	posted := false
	err := s.ledger.withChildLock(childID, func() error {
		cfg, err := s.store.GetInterestConfig(ctx, childID)
		if err != nil {
			return fmt.Errorf("get interest config: %w", err)
		}
		if cfg == nil || !cfg.IsActive || cfg.MonthlyRate <= 0 {
			return nil
		}

		applyDay := clampedMonthDay(today.Year(), today.Month(), cfg.ApplicationDay)
		if !today.Equal(applyDay) {
			return nil
		}
		if cfg.LastAppliedDate != nil &&
			cfg.LastAppliedDate.Year() == today.Year() &&
			cfg.LastAppliedDate.Month() == today.Month() {
			return nil
		}

		minBalance, err := s.minBalanceInWindow(ctx, childID, today)
		if err != nil {
			return err
		}
		if minBalance < cfg.MinimumBalance && !domain.SameCents(minBalance, cfg.MinimumBalance) {
			return nil
		}

		interest := domain.InterestOn(minBalance, cfg.MonthlyRate)

		if interest > 0 {
			if _, err := s.ledger.appendLocked(ctx, childID, domain.KindInterest, interest, "rendimento", "rendimento mensal da poupança", today); err != nil {
				return fmt.Errorf("post interest: %w", err)
			}
			s.metrics.IncrInterestPosting()
			posted = true
		}

		// A zero-interest month still counts as applied.
		applied := today
		cfg.LastAppliedDate = &applied
		if err := s.store.UpsertInterestConfig(ctx, cfg); err != nil {
			return fmt.Errorf("advance last applied date: %w", err)
		}

		s.logger.Info("interest tick applied",
			zap.String("child_id", childID),
			zap.Float64("min_balance", minBalance),
			zap.Float64("interest", interest),
		)
		return nil
	})
	return posted, err
}

// minBalanceInWindow computes the lowest balance over the trailing window
// ending today. The balance carried into the window (the newest
// balance_after before the window start, zero when the ledger is younger)
// participates in the minimum.
func (s *InterestService) minBalanceInWindow(ctx context.Context, childID string, today time.Time) (float64, error) {
	windowStart := today.AddDate(0, 0, -interestWindowDays)

	carried := 0.0
	last, err := s.store.LastTransactionBefore(ctx, childID, windowStart)
	if err != nil {
		return 0, fmt.Errorf("carried-in balance: %w", err)
	}
	if last != nil {
		carried = last.BalanceAfter
	}

	txs, err := s.store.ListTransactions(ctx, childID, domain.HistoryFilter{
		From: &windowStart,
		To:   &today,
	})
	if err != nil {
		return 0, fmt.Errorf("list window transactions: %w", err)
	}

	min := carried
	for _, tx := range txs {
		if tx.BalanceAfter < min {
			min = tx.BalanceAfter
		}
	}
	return min, nil
}
