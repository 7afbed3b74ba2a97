// Package service provides the business logic layer (use cases).
// LedgerService owns the append-only transaction log and the running
// balance of each child account.
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

var ledgerTracer = otel.Tracer("service/ledger")

// childLocks serializes ledger writes per child. All balance mutations go
// through a child's lock so the read-modify-write on balance_after never
// interleaves.
type childLocks struct {
	mapMu sync.Mutex
	muMap map[string]*sync.Mutex
}

func newChildLocks() *childLocks {
	return &childLocks{muMap: make(map[string]*sync.Mutex)}
}

func (l *childLocks) lock(childID string) *sync.Mutex {
	l.mapMu.Lock()
	mu, ok := l.muMap[childID]
	if !ok {
		mu = &sync.Mutex{}
		l.muMap[childID] = mu
	}
	l.mapMu.Unlock()
	mu.Lock()
	return mu
}

// LedgerService orchestrates all money movements on children's accounts.
type LedgerService struct {
	store             port.Store
	balances          port.Cache[float64]
	metrics           *observability.Metrics
	logger            *zap.Logger
	clock             port.Clock
	approvalThreshold float64
	locks             *childLocks
}

// NewLedgerService creates a new ledger service. approvalThreshold is the
// purchase amount at or above which spends require parent approval.
func NewLedgerService(store port.Store, balances port.Cache[float64], metrics *observability.Metrics, logger *zap.Logger, clock port.Clock, approvalThreshold float64) *LedgerService {
	return &LedgerService{
		store:             store,
		balances:          balances,
		metrics:           metrics,
		logger:            logger,
		clock:             clock,
		approvalThreshold: approvalThreshold,
		locks:             newChildLocks(),
	}
}

// ============================================================
// Append — the single write path into the ledger
// ============================================================

// Append posts a transaction of the given kind. amount is always positive;
// the sign is derived from the kind. Debits never drive the balance below
// zero. The child's cached balance is updated atomically with the insert.
func (s *LedgerService) Append(ctx context.Context, childID string, kind domain.TransactionKind, amount float64, category, description string, date time.Time) (*domain.Transaction, error) {
	mu := s.locks.lock(childID)
	defer mu.Unlock()
	return s.appendLocked(ctx, childID, kind, amount, category, description, date)
}

// withChildLock runs fn while holding the child's ledger lock. Flows that
// read state, append and write state back (scheduler ticks, goal moves)
// run their whole sequence under it, appending via appendLocked.
func (s *LedgerService) withChildLock(childID string, fn func() error) error {
	mu := s.locks.lock(childID)
	defer mu.Unlock()
	return fn()
}

// appendLocked is Append's body. The caller must hold the child's lock.
func (s *LedgerService) appendLocked(ctx context.Context, childID string, kind domain.TransactionKind, amount float64, category, description string, date time.Time) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Append")
	defer span.End()
	span.SetAttributes(
		attribute.String("child.id", childID),
		attribute.String("tx.kind", string(kind)),
	)

	amount = domain.RoundCents(amount)
	if amount <= 0 {
		return nil, &domain.ErrInvalidAmount{Amount: amount, Reason: "valor deve ser positivo"}
	}
	if !domain.DebitKinds[kind] && !domain.CreditKinds[kind] {
		return nil, &domain.ErrValidation{Field: "kind", Message: fmt.Sprintf("tipo de transação desconhecido: %s", kind)}
	}
	if date.IsZero() {
		date = s.clock.Now()
	}

	child, err := s.store.GetChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	if child == nil {
		return nil, &domain.ErrNotFound{Resource: "child", ID: childID}
	}

	signed := amount
	if domain.DebitKinds[kind] {
		if child.Balance < amount && !domain.SameCents(child.Balance, amount) {
			s.metrics.IncrRejectedDebit()
			return nil, &domain.ErrInsufficientBalance{Available: child.Balance, Required: amount}
		}
		signed = -amount
	}

	tx := &domain.Transaction{
		ID:           uuid.New().String(),
		ChildID:      childID,
		Amount:       signed,
		Kind:         kind,
		Category:     category,
		Description:  description,
		BalanceAfter: domain.AddMoney(child.Balance, signed),
		Date:         date,
	}

	if err := s.store.AppendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}

	s.balances.Delete(childID)
	s.metrics.IncrLedgerAppend(kind)
	s.logger.Info("transaction appended",
		zap.String("child_id", childID),
		zap.String("kind", string(kind)),
		zap.Float64("amount", signed),
		zap.Float64("balance_after", tx.BalanceAfter),
	)
	return tx, nil
}

// ============================================================
// Reads
// ============================================================

// Balance returns the child's current balance, served from cache when warm.
func (s *LedgerService) Balance(ctx context.Context, childID string) (float64, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Balance")
	defer span.End()

	if v, ok := s.balances.Get(childID); ok {
		s.metrics.IncrCacheHit("balance")
		return v, nil
	}
	s.metrics.IncrCacheMiss("balance")

	child, err := s.store.GetChild(ctx, childID)
	if err != nil {
		return 0, fmt.Errorf("get child: %w", err)
	}
	if child == nil {
		return 0, &domain.ErrNotFound{Resource: "child", ID: childID}
	}
	s.balances.Set(childID, child.Balance)
	return child.Balance, nil
}

// History returns the child's transactions newest-first, narrowed by the
// filter. Re-invoking with the same filter re-reads from the store;
// nothing is consumed.
func (s *LedgerService) History(ctx context.Context, childID string, filter domain.HistoryFilter) ([]domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.History")
	defer span.End()
	span.SetAttributes(attribute.String("child.id", childID))

	child, err := s.store.GetChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	if child == nil {
		return nil, &domain.ErrNotFound{Resource: "child", ID: childID}
	}
	return s.store.ListTransactions(ctx, childID, filter)
}

// ============================================================
// Spend — POST /v1/children/{childId}/spend
// ============================================================

// Spend posts a purchase. Amounts below the approval threshold debit the
// ledger directly; larger ones become a pending approval request.
func (s *LedgerService) Spend(ctx context.Context, childID string, req *domain.SpendRequest) (*domain.SpendResponse, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Spend")
	defer span.End()

	if req.Amount <= 0 {
		return nil, &domain.ErrInvalidAmount{Amount: req.Amount, Reason: "valor deve ser positivo"}
	}
	if req.Category == "" {
		return nil, &domain.ErrValidation{Field: "category", Message: "categoria é obrigatória"}
	}

	if req.Amount < s.approvalThreshold {
		tx, err := s.Append(ctx, childID, domain.KindSpending, req.Amount, req.Category, req.Description, time.Time{})
		if err != nil {
			return nil, err
		}
		return &domain.SpendResponse{
			Status:      "completed",
			Transaction: tx,
			NewBalance:  tx.BalanceAfter,
		}, nil
	}

	child, err := s.store.GetChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	if child == nil {
		return nil, &domain.ErrNotFound{Resource: "child", ID: childID}
	}

	request := &domain.ApprovalRequest{
		ID:          uuid.New().String(),
		ChildID:     childID,
		FamilyID:    child.FamilyID,
		Kind:        domain.ApprovalPurchase,
		Amount:      domain.RoundCents(req.Amount),
		Description: req.Description,
		Status:      domain.StatusPending,
		RequestedAt: s.clock.Now(),
	}
	if err := s.store.CreateApprovalRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("create approval request: %w", err)
	}

	s.logger.Info("purchase captured for approval",
		zap.String("child_id", childID),
		zap.String("request_id", request.ID),
		zap.Float64("amount", request.Amount),
	)
	return &domain.SpendResponse{Status: "pending_approval", Request: request}, nil
}

// ============================================================
// Bonus — POST /v1/children/{childId}/bonus
// ============================================================

// Bonus posts a parent-initiated direct credit.
func (s *LedgerService) Bonus(ctx context.Context, childID string, req *domain.BonusRequest) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Bonus")
	defer span.End()

	category := req.Category
	if category == "" {
		category = "bônus"
	}
	return s.Append(ctx, childID, domain.KindBonus, req.Amount, category, req.Description, time.Time{})
}

// ============================================================
// Loan repayment — POST /v1/children/{childId}/loans/repay
// ============================================================

// RepayLoan posts a loan_payment debit. The amount is validated against
// the outstanding loan balance at commit time.
func (s *LedgerService) RepayLoan(ctx context.Context, childID string, amount float64) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.RepayLoan")
	defer span.End()

	amount = domain.RoundCents(amount)
	if amount <= 0 {
		return nil, &domain.ErrInvalidAmount{Amount: amount, Reason: "valor deve ser positivo"}
	}

	outstanding, err := s.OutstandingLoan(ctx, childID)
	if err != nil {
		return nil, err
	}
	if amount > outstanding && !domain.SameCents(amount, outstanding) {
		return nil, &domain.ErrInvalidAmount{
			Amount: amount,
			Reason: fmt.Sprintf("excede o saldo devedor de %.2f", outstanding),
		}
	}

	return s.Append(ctx, childID, domain.KindLoanPayment, amount, "empréstimo", "pagamento de empréstimo", time.Time{})
}

// OutstandingLoan returns the child's loan debt: loans granted minus
// payments made.
func (s *LedgerService) OutstandingLoan(ctx context.Context, childID string) (float64, error) {
	txs, err := s.store.ListTransactions(ctx, childID, domain.HistoryFilter{
		Kinds: []domain.TransactionKind{domain.KindLoan, domain.KindLoanPayment},
	})
	if err != nil {
		return 0, fmt.Errorf("list loan transactions: %w", err)
	}

	outstanding := 0.0
	for _, tx := range txs {
		// loan amounts are positive, loan_payment amounts negative
		outstanding = domain.AddMoney(outstanding, tx.Amount)
	}
	if outstanding < 0 {
		outstanding = 0
	}
	return outstanding, nil
}
