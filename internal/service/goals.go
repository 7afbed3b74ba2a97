// Package service — GoalService manages savings goals: contributions from
// the spendable balance, withdrawals back, and fulfillment requests.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var goalTracer = otel.Tracer("service/goals")

// GoalService orchestrates goal accounts on top of the ledger.
type GoalService struct {
	store  port.Store
	ledger *LedgerService
	clock  port.Clock
	logger *zap.Logger
}

// NewGoalService creates a new goal service.
func NewGoalService(store port.Store, ledger *LedgerService, clock port.Clock, logger *zap.Logger) *GoalService {
	return &GoalService{store: store, ledger: ledger, clock: clock, logger: logger}
}

// ============================================================
// Create / reads
// ============================================================

// Create registers a new savings goal for a child.
func (s *GoalService) Create(ctx context.Context, childID string, req *domain.CreateGoalRequest) (*domain.Goal, error) {
	ctx, span := goalTracer.Start(ctx, "GoalService.Create")
	defer span.End()
	span.SetAttributes(attribute.String("child.id", childID))

	if req.Name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "nome é obrigatório"}
	}
	if req.TargetAmount <= 0 {
		return nil, &domain.ErrInvalidAmount{Amount: req.TargetAmount, Reason: "meta deve ser positiva"}
	}

	child, err := s.store.GetChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	if child == nil {
		return nil, &domain.ErrNotFound{Resource: "child", ID: childID}
	}

	goal := &domain.Goal{
		ID:                uuid.New().String(),
		ChildID:           childID,
		Name:              req.Name,
		TargetAmount:      domain.RoundCents(req.TargetAmount),
		Category:          req.Category,
		FulfillmentStatus: domain.FulfillmentNone,
		CreatedAt:         s.clock.Now(),
	}
	if err := s.store.CreateGoal(ctx, goal); err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}

	s.logger.Info("goal created",
		zap.String("child_id", childID),
		zap.String("goal_id", goal.ID),
		zap.Float64("target", goal.TargetAmount),
	)
	return goal, nil
}

// List returns all goals for a child.
func (s *GoalService) List(ctx context.Context, childID string) ([]domain.Goal, error) {
	ctx, span := goalTracer.Start(ctx, "GoalService.List")
	defer span.End()

	child, err := s.store.GetChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	if child == nil {
		return nil, &domain.ErrNotFound{Resource: "child", ID: childID}
	}
	return s.store.ListGoals(ctx, childID)
}

// Get returns a single goal.
func (s *GoalService) Get(ctx context.Context, goalID string) (*domain.Goal, error) {
	goal, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}
	if goal == nil {
		return nil, &domain.ErrNotFound{Resource: "goal", ID: goalID}
	}
	return goal, nil
}

// ============================================================
// Contribute — POST /v1/goals/{goalId}/contribute
// ============================================================

// Contribute moves money from the spendable balance into the goal. The
// moved amount caps at the remaining gap so the goal never overshoots.
// The ledger debit and the goal increment commit together: a failed goal
// update refunds the debit.
func (s *GoalService) Contribute(ctx context.Context, goalID string, amount float64) (*domain.ContributeResponse, error) {
	ctx, span := goalTracer.Start(ctx, "GoalService.Contribute")
	defer span.End()
	span.SetAttributes(attribute.String("goal.id", goalID))

	amount = domain.RoundCents(amount)
	if amount <= 0 {
		return nil, &domain.ErrInvalidAmount{Amount: amount, Reason: "valor deve ser positivo"}
	}

	goal, err := s.Get(ctx, goalID)
	if err != nil {
		return nil, err
	}

	// Re-read and commit under the child's lock: the cap computation, the
	// debit and the goal update must not interleave with another move on
	// the same child.
	var resp *domain.ContributeResponse
	err = s.ledger.withChildLock(goal.ChildID, func() error {
		goal, err = s.Get(ctx, goalID)
		if err != nil {
			return err
		}
		remaining := goal.Remaining()
		if remaining == 0 {
			return &domain.ErrGoalNotEligible{GoalID: goalID, Reason: "meta já alcançada"}
		}

		move := amount
		if move > remaining {
			move = remaining
		}

		tx, err := s.ledger.appendLocked(ctx, goal.ChildID, domain.KindGoalDeposit, move, "meta", fmt.Sprintf("depósito na meta %s", goal.Name), time.Time{})
		if err != nil {
			return err
		}

		goal.CurrentAmount = domain.AddMoney(goal.CurrentAmount, move)
		if domain.SameCents(goal.CurrentAmount, goal.TargetAmount) || goal.CurrentAmount > goal.TargetAmount {
			goal.IsCompleted = true
		}

		if err := s.store.UpdateGoal(ctx, goal); err != nil {
			// Refund the debit so the ledger and the goal stay consistent.
			if _, rbErr := s.ledger.appendLocked(ctx, goal.ChildID, domain.KindGoalWithdrawal, move, "meta", fmt.Sprintf("estorno de depósito na meta %s", goal.Name), time.Time{}); rbErr != nil {
				s.logger.Error("contribute rollback failed",
					zap.String("goal_id", goalID),
					zap.Float64("amount", move),
					zap.Error(rbErr),
				)
			}
			return fmt.Errorf("update goal: %w", err)
		}

		s.logger.Info("goal contribution",
			zap.String("goal_id", goalID),
			zap.Float64("moved", move),
			zap.Float64("current", goal.CurrentAmount),
			zap.Bool("completed", goal.IsCompleted),
		)
		resp = &domain.ContributeResponse{Goal: goal, Transaction: tx, Moved: move}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ============================================================
// Withdraw — POST /v1/goals/{goalId}/withdraw
// ============================================================

// Withdraw moves money from the goal back to the spendable balance. A goal
// with a pending or approved fulfillment keeps its funds locked. Dropping
// below the target reopens the goal.
func (s *GoalService) Withdraw(ctx context.Context, goalID string, amount float64) (*domain.Goal, error) {
	ctx, span := goalTracer.Start(ctx, "GoalService.Withdraw")
	defer span.End()
	span.SetAttributes(attribute.String("goal.id", goalID))

	amount = domain.RoundCents(amount)
	if amount <= 0 {
		return nil, &domain.ErrInvalidAmount{Amount: amount, Reason: "valor deve ser positivo"}
	}

	goal, err := s.Get(ctx, goalID)
	if err != nil {
		return nil, err
	}

	// Same locking discipline as Contribute.
	err = s.ledger.withChildLock(goal.ChildID, func() error {
		goal, err = s.Get(ctx, goalID)
		if err != nil {
			return err
		}
		if goal.FulfillmentStatus == domain.FulfillmentPending || goal.FulfillmentStatus == domain.FulfillmentApproved {
			return &domain.ErrGoalNotEligible{GoalID: goalID, Reason: "meta com resgate em andamento"}
		}
		if amount > goal.CurrentAmount && !domain.SameCents(amount, goal.CurrentAmount) {
			return &domain.ErrInvalidAmount{Amount: amount, Reason: fmt.Sprintf("excede o saldo da meta de %.2f", goal.CurrentAmount)}
		}

		if _, err := s.ledger.appendLocked(ctx, goal.ChildID, domain.KindGoalWithdrawal, amount, "meta", fmt.Sprintf("retirada da meta %s", goal.Name), time.Time{}); err != nil {
			return err
		}

		goal.CurrentAmount = domain.AddMoney(goal.CurrentAmount, -amount)
		if goal.CurrentAmount < goal.TargetAmount && !domain.SameCents(goal.CurrentAmount, goal.TargetAmount) {
			goal.IsCompleted = false
			goal.FulfillmentStatus = domain.FulfillmentNone
		}

		if err := s.store.UpdateGoal(ctx, goal); err != nil {
			if _, rbErr := s.ledger.appendLocked(ctx, goal.ChildID, domain.KindGoalDeposit, amount, "meta", fmt.Sprintf("estorno de retirada da meta %s", goal.Name), time.Time{}); rbErr != nil {
				s.logger.Error("withdraw rollback failed",
					zap.String("goal_id", goalID),
					zap.Float64("amount", amount),
					zap.Error(rbErr),
				)
			}
			return fmt.Errorf("update goal: %w", err)
		}

		s.logger.Info("goal withdrawal",
			zap.String("goal_id", goalID),
			zap.Float64("amount", amount),
			zap.Float64("current", goal.CurrentAmount),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return goal, nil
}

// ============================================================
// RequestFulfillment — POST /v1/goals/{goalId}/fulfillment
// ============================================================

// RequestFulfillment asks a parent to convert a completed goal into the
// real purchase. Only a completed goal with no decision in flight (or a
// previously rejected one) is eligible.
func (s *GoalService) RequestFulfillment(ctx context.Context, goalID string) (*domain.ApprovalRequest, error) {
	ctx, span := goalTracer.Start(ctx, "GoalService.RequestFulfillment")
	defer span.End()
	span.SetAttributes(attribute.String("goal.id", goalID))

	goal, err := s.Get(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if !goal.IsCompleted {
		return nil, &domain.ErrGoalNotEligible{GoalID: goalID, Reason: "meta ainda não alcançada"}
	}
	if goal.FulfillmentStatus != domain.FulfillmentNone && goal.FulfillmentStatus != domain.FulfillmentRejected {
		return nil, &domain.ErrGoalNotEligible{GoalID: goalID, Reason: fmt.Sprintf("resgate já %s", goal.FulfillmentStatus)}
	}

	child, err := s.store.GetChild(ctx, goal.ChildID)
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	if child == nil {
		return nil, &domain.ErrNotFound{Resource: "child", ID: goal.ChildID}
	}

	request := &domain.ApprovalRequest{
		ID:          uuid.New().String(),
		ChildID:     goal.ChildID,
		FamilyID:    child.FamilyID,
		Kind:        domain.ApprovalGoalFulfillment,
		Amount:      goal.TargetAmount,
		Description: fmt.Sprintf("resgate da meta %s", goal.Name),
		GoalID:      goal.ID,
		Status:      domain.StatusPending,
		RequestedAt: s.clock.Now(),
	}
	if err := s.store.CreateApprovalRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("create approval request: %w", err)
	}

	goal.FulfillmentStatus = domain.FulfillmentPending
	if err := s.store.UpdateGoal(ctx, goal); err != nil {
		return nil, fmt.Errorf("mark goal pending: %w", err)
	}

	s.logger.Info("goal fulfillment requested",
		zap.String("goal_id", goalID),
		zap.String("request_id", request.ID),
	)
	return request, nil
}
