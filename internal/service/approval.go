// Package service — ApprovalService runs the parent-approval workflow.
// A request transitions from pending to exactly one terminal state; the
// ledger effect happens on approval only.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/infra/observability"
	"github.com/boddenberg/mesada-api-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var approvalTracer = otel.Tracer("service/approval")

// ApprovalService orchestrates approval requests and decisions.
type ApprovalService struct {
	store      port.Store
	ledger     *LedgerService
	authorizer port.Authorizer
	metrics    *observability.Metrics
	logger     *zap.Logger
	clock      port.Clock

	// decideMu serializes concurrent decisions on the same request so
	// exactly one of two racing parents wins.
	mapMu    sync.Mutex
	decideMu map[string]*sync.Mutex
}

// NewApprovalService creates a new approval service.
func NewApprovalService(store port.Store, ledger *LedgerService, authorizer port.Authorizer, metrics *observability.Metrics, logger *zap.Logger, clock port.Clock) *ApprovalService {
	return &ApprovalService{
		store:      store,
		ledger:     ledger,
		authorizer: authorizer,
		metrics:    metrics,
		logger:     logger,
		clock:      clock,
		decideMu:   make(map[string]*sync.Mutex),
	}
}

func (s *ApprovalService) lockRequest(requestID string) *sync.Mutex {
	s.mapMu.Lock()
	mu, ok := s.decideMu[requestID]
	if !ok {
		mu = &sync.Mutex{}
		s.decideMu[requestID] = mu
	}
	s.mapMu.Unlock()
	mu.Lock()
	return mu
}

// ============================================================
// SubmitLoan — POST /v1/approvals
// ============================================================

// SubmitLoan captures a child's loan request for parent approval. Money
// only moves if a parent approves.
func (s *ApprovalService) SubmitLoan(ctx context.Context, req *domain.LoanRequestBody) (*domain.ApprovalRequest, error) {
	ctx, span := approvalTracer.Start(ctx, "ApprovalService.SubmitLoan")
	defer span.End()
	span.SetAttributes(attribute.String("child.id", req.ChildID))

	amount := domain.RoundCents(req.Amount)
	if amount <= 0 {
		return nil, &domain.ErrInvalidAmount{Amount: amount, Reason: "valor deve ser positivo"}
	}

	child, err := s.store.GetChild(ctx, req.ChildID)
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	if child == nil {
		return nil, &domain.ErrNotFound{Resource: "child", ID: req.ChildID}
	}

	request := &domain.ApprovalRequest{
		ID:          uuid.New().String(),
		ChildID:     req.ChildID,
		FamilyID:    child.FamilyID,
		Kind:        domain.ApprovalLoan,
		Amount:      amount,
		Description: req.Description,
		Status:      domain.StatusPending,
		RequestedAt: s.clock.Now(),
	}
	if err := s.store.CreateApprovalRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("create approval request: %w", err)
	}

	s.logger.Info("loan requested",
		zap.String("child_id", req.ChildID),
		zap.String("request_id", request.ID),
		zap.Float64("amount", amount),
	)
	return request, nil
}

// ============================================================
// Reads
// ============================================================

// ListForChild returns a child's approval requests, optionally by status.
func (s *ApprovalService) ListForChild(ctx context.Context, childID string, status domain.ApprovalStatus) ([]domain.ApprovalRequest, error) {
	ctx, span := approvalTracer.Start(ctx, "ApprovalService.ListForChild")
	defer span.End()

	return s.store.ListApprovalRequests(ctx, childID, status)
}

// ListForFamily returns a family's approval requests, optionally by status.
func (s *ApprovalService) ListForFamily(ctx context.Context, familyID string, status domain.ApprovalStatus) ([]domain.ApprovalRequest, error) {
	ctx, span := approvalTracer.Start(ctx, "ApprovalService.ListForFamily")
	defer span.End()

	return s.store.ListFamilyApprovalRequests(ctx, familyID, status)
}

// Get returns a single approval request.
func (s *ApprovalService) Get(ctx context.Context, requestID string) (*domain.ApprovalRequest, error) {
	req, err := s.store.GetApprovalRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get approval request: %w", err)
	}
	if req == nil {
		return nil, &domain.ErrNotFound{Resource: "approval_request", ID: requestID}
	}
	return req, nil
}

// ============================================================
// Decide — POST /v1/approvals/{requestId}/decide
// ============================================================

// Decide settles a pending request. Approval posts the ledger effect
// before the status flips; when that append fails (e.g. the balance no
// longer covers the purchase) the request stays pending and the error
// surfaces to the caller. A request already settled returns AlreadyDecided
// no matter the earlier outcome.
func (s *ApprovalService) Decide(ctx context.Context, requestID, deciderID string, approve bool) (*domain.ApprovalRequest, error) {
	ctx, span := approvalTracer.Start(ctx, "ApprovalService.Decide")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.Bool("approve", approve),
	)

	allowed, err := s.authorizer.CanApprove(ctx, deciderID)
	if err != nil {
		return nil, fmt.Errorf("authorize decision: %w", err)
	}
	if !allowed {
		return nil, &domain.ErrForbidden{Action: "somente responsáveis podem decidir solicitações"}
	}

	mu := s.lockRequest(requestID)
	defer mu.Unlock()

	req, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.StatusPending {
		return nil, &domain.ErrAlreadyDecided{RequestID: requestID, Status: req.Status}
	}

	if approve {
		if err := s.applyEffect(ctx, req); err != nil {
			return nil, err
		}
		req.Status = domain.StatusApproved
	} else {
		if req.Kind == domain.ApprovalGoalFulfillment {
			if err := s.flipGoalStatus(ctx, req.GoalID, domain.FulfillmentRejected); err != nil {
				return nil, err
			}
		}
		req.Status = domain.StatusRejected
	}

	now := s.clock.Now()
	req.DecidedAt = &now
	req.DecidedBy = deciderID
	if err := s.store.UpdateApprovalRequest(ctx, req); err != nil {
		// The ledger effect already landed; surface loudly.
		s.logger.Error("decision persisted effect but not status",
			zap.String("request_id", requestID),
			zap.String("status", string(req.Status)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("update approval request: %w", err)
	}

	s.metrics.IncrApprovalDecision(string(req.Status))
	s.logger.Info("approval decided",
		zap.String("request_id", requestID),
		zap.String("child_id", req.ChildID),
		zap.String("kind", string(req.Kind)),
		zap.String("status", string(req.Status)),
		zap.String("decided_by", deciderID),
	)
	return req, nil
}

// applyEffect posts the approved request's money movement.
func (s *ApprovalService) applyEffect(ctx context.Context, req *domain.ApprovalRequest) error {
	switch req.Kind {
	case domain.ApprovalPurchase:
		_, err := s.ledger.Append(ctx, req.ChildID, domain.KindSpending, req.Amount, "compra", req.Description, time.Time{})
		return err
	case domain.ApprovalLoan:
		_, err := s.ledger.Append(ctx, req.ChildID, domain.KindLoan, req.Amount, "empréstimo", req.Description, time.Time{})
		return err
	case domain.ApprovalGoalFulfillment:
		// No ledger movement: the money stays earmarked in the goal.
		return s.flipGoalStatus(ctx, req.GoalID, domain.FulfillmentApproved)
	default:
		return &domain.ErrValidation{Field: "kind", Message: fmt.Sprintf("tipo de solicitação desconhecido: %s", req.Kind)}
	}
}

func (s *ApprovalService) flipGoalStatus(ctx context.Context, goalID string, status domain.FulfillmentStatus) error {
	goal, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return fmt.Errorf("get goal: %w", err)
	}
	if goal == nil {
		return &domain.ErrNotFound{Resource: "goal", ID: goalID}
	}
	goal.FulfillmentStatus = status
	if err := s.store.UpdateGoal(ctx, goal); err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	return nil
}
