package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/infra/cache"
	"github.com/boddenberg/mesada-api-go/internal/infra/memory"
	"github.com/boddenberg/mesada-api-go/internal/infra/observability"
	"github.com/boddenberg/mesada-api-go/internal/service"

	"go.uber.org/zap"
)

// --- Shared fixtures ---

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func newLedger(store *memory.Store, threshold float64, now time.Time) *service.LedgerService {
	return service.NewLedgerService(
		store,
		cache.New[float64](time.Minute),
		observability.NewMetrics(),
		zap.NewNop(),
		fixedClock{now},
		threshold,
	)
}

func seedChild(t *testing.T, store *memory.Store, id, familyID string) {
	t.Helper()
	err := store.CreateChild(context.Background(), &domain.Child{
		ID:        id,
		FamilyID:  familyID,
		Name:      "Ana",
		CreatedAt: day("2024-01-01"),
	})
	if err != nil {
		t.Fatalf("seed child: %v", err)
	}
}

// credit puts money on the child's account through the ledger so the
// balance chain stays valid.
func credit(t *testing.T, ledger *service.LedgerService, childID string, amount float64, date time.Time) {
	t.Helper()
	if _, err := ledger.Append(context.Background(), childID, domain.KindBonus, amount, "bônus", "", date); err != nil {
		t.Fatalf("credit %v: %v", amount, err)
	}
}

// laggedStore delays the reads that open a read-check-append-write
// sequence, so two concurrent callers overlap on the read unless the
// service serializes the whole sequence.
type laggedStore struct {
	*memory.Store
	lag time.Duration
}

func (s *laggedStore) GetAllowanceConfig(ctx context.Context, childID string) (*domain.AllowanceConfig, error) {
	time.Sleep(s.lag)
	return s.Store.GetAllowanceConfig(ctx, childID)
}

func (s *laggedStore) GetInterestConfig(ctx context.Context, childID string) (*domain.InterestConfig, error) {
	time.Sleep(s.lag)
	return s.Store.GetInterestConfig(ctx, childID)
}

func (s *laggedStore) GetGoal(ctx context.Context, goalID string) (*domain.Goal, error) {
	time.Sleep(s.lag)
	return s.Store.GetGoal(ctx, goalID)
}

func (s *laggedStore) GetApprovalRequest(ctx context.Context, requestID string) (*domain.ApprovalRequest, error) {
	time.Sleep(s.lag)
	return s.Store.GetApprovalRequest(ctx, requestID)
}

// --- Tests ---

func TestAppend_BalanceChain(t *testing.T) {
	store := memory.NewStore()
	ledger := newLedger(store, 20, day("2024-08-01"))
	seedChild(t, store, "child-1", "fam-1")

	tx1, err := ledger.Append(context.Background(), "child-1", domain.KindBonus, 50, "bônus", "", day("2024-08-01"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tx1.BalanceAfter != 50 {
		t.Errorf("expected balance_after 50, got %v", tx1.BalanceAfter)
	}

	tx2, err := ledger.Append(context.Background(), "child-1", domain.KindSpending, 19.90, "lanche", "", day("2024-08-02"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tx2.Amount != -19.90 {
		t.Errorf("expected debit stored negative, got %v", tx2.Amount)
	}
	if tx2.BalanceAfter != 30.10 {
		t.Errorf("expected balance_after 30.10, got %v", tx2.BalanceAfter)
	}

	balance, err := ledger.Balance(context.Background(), "child-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 30.10 {
		t.Errorf("expected balance 30.10, got %v", balance)
	}
}

func TestAppend_InsufficientBalance(t *testing.T) {
	store := memory.NewStore()
	ledger := newLedger(store, 100, day("2024-08-01"))
	seedChild(t, store, "child-1", "fam-1")
	credit(t, ledger, "child-1", 10, day("2024-08-01"))

	_, err := ledger.Append(context.Background(), "child-1", domain.KindSpending, 10.01, "lanche", "", day("2024-08-02"))
	var insufficient *domain.ErrInsufficientBalance
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// Draining the account to exactly zero is allowed.
	tx, err := ledger.Append(context.Background(), "child-1", domain.KindSpending, 10, "lanche", "", day("2024-08-02"))
	if err != nil {
		t.Fatalf("expected full drain to succeed, got %v", err)
	}
	if tx.BalanceAfter != 0 {
		t.Errorf("expected balance_after 0, got %v", tx.BalanceAfter)
	}
}

func TestAppend_RejectsBadInput(t *testing.T) {
	store := memory.NewStore()
	ledger := newLedger(store, 20, day("2024-08-01"))
	seedChild(t, store, "child-1", "fam-1")

	if _, err := ledger.Append(context.Background(), "child-1", domain.KindBonus, -5, "bônus", "", time.Time{}); err == nil {
		t.Error("expected error for negative amount")
	}
	if _, err := ledger.Append(context.Background(), "child-1", "pix", 5, "x", "", time.Time{}); err == nil {
		t.Error("expected error for unknown kind")
	}

	_, err := ledger.Append(context.Background(), "ghost", domain.KindBonus, 5, "bônus", "", time.Time{})
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("expected ErrNotFound for unknown child, got %v", err)
	}
}

func TestSpend_BelowThresholdPostsDirectly(t *testing.T) {
	store := memory.NewStore()
	ledger := newLedger(store, 20, day("2024-08-01"))
	seedChild(t, store, "child-1", "fam-1")
	credit(t, ledger, "child-1", 50, day("2024-08-01"))

	resp, err := ledger.Spend(context.Background(), "child-1", &domain.SpendRequest{Amount: 19.99, Category: "lanche"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Status != "completed" {
		t.Errorf("expected status completed, got %s", resp.Status)
	}
	if resp.Transaction == nil || resp.Transaction.Kind != domain.KindSpending {
		t.Error("expected a spending transaction")
	}
	if resp.NewBalance != 30.01 {
		t.Errorf("expected new balance 30.01, got %v", resp.NewBalance)
	}
}

func TestSpend_AtThresholdRequiresApproval(t *testing.T) {
	store := memory.NewStore()
	ledger := newLedger(store, 20, day("2024-08-01"))
	seedChild(t, store, "child-1", "fam-1")
	credit(t, ledger, "child-1", 50, day("2024-08-01"))

	resp, err := ledger.Spend(context.Background(), "child-1", &domain.SpendRequest{Amount: 20, Category: "jogo"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Status != "pending_approval" {
		t.Errorf("expected status pending_approval, got %s", resp.Status)
	}
	if resp.Request == nil || resp.Request.Kind != domain.ApprovalPurchase {
		t.Fatal("expected a purchase approval request")
	}
	if resp.Request.Status != domain.StatusPending {
		t.Errorf("expected pending request, got %s", resp.Request.Status)
	}

	// Money has not moved.
	balance, _ := ledger.Balance(context.Background(), "child-1")
	if balance != 50 {
		t.Errorf("expected untouched balance 50, got %v", balance)
	}
}

func TestHistory_Filters(t *testing.T) {
	store := memory.NewStore()
	ledger := newLedger(store, 100, day("2024-08-01"))
	seedChild(t, store, "child-1", "fam-1")
	credit(t, ledger, "child-1", 100, day("2024-08-01"))
	if _, err := ledger.Append(context.Background(), "child-1", domain.KindSpending, 10, "lanche", "", day("2024-08-02")); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.Append(context.Background(), "child-1", domain.KindSpending, 5, "jogo", "", day("2024-08-03")); err != nil {
		t.Fatal(err)
	}

	spends, err := ledger.History(context.Background(), "child-1", domain.HistoryFilter{
		Kinds: []domain.TransactionKind{domain.KindSpending},
	})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(spends) != 2 {
		t.Fatalf("expected 2 spending transactions, got %d", len(spends))
	}
	// Newest first.
	if !spends[0].Date.After(spends[1].Date) {
		t.Error("expected newest-first ordering")
	}

	limited, err := ledger.History(context.Background(), "child-1", domain.HistoryFilter{Limit: 1})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 transaction with limit, got %d", len(limited))
	}

	// Re-reading with the same filter returns the same page.
	again, _ := ledger.History(context.Background(), "child-1", domain.HistoryFilter{Limit: 1})
	if len(again) != 1 || again[0].ID != limited[0].ID {
		t.Error("expected stable re-read")
	}
}

func TestRepayLoan_ValidatedAgainstOutstanding(t *testing.T) {
	store := memory.NewStore()
	ledger := newLedger(store, 100, day("2024-08-01"))
	seedChild(t, store, "child-1", "fam-1")

	if _, err := ledger.Append(context.Background(), "child-1", domain.KindLoan, 30, "empréstimo", "", day("2024-08-01")); err != nil {
		t.Fatal(err)
	}

	if _, err := ledger.RepayLoan(context.Background(), "child-1", 40); err == nil {
		t.Error("expected repayment above outstanding to fail")
	}

	tx, err := ledger.RepayLoan(context.Background(), "child-1", 10)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if tx.Kind != domain.KindLoanPayment || tx.Amount != -10 {
		t.Errorf("expected loan_payment of -10, got %s %v", tx.Kind, tx.Amount)
	}

	outstanding, err := ledger.OutstandingLoan(context.Background(), "child-1")
	if err != nil {
		t.Fatalf("outstanding: %v", err)
	}
	if outstanding != 20 {
		t.Errorf("expected outstanding 20, got %v", outstanding)
	}
}

func TestBonus_DefaultsCategory(t *testing.T) {
	store := memory.NewStore()
	ledger := newLedger(store, 20, day("2024-08-01"))
	seedChild(t, store, "child-1", "fam-1")

	tx, err := ledger.Bonus(context.Background(), "child-1", &domain.BonusRequest{Amount: 15})
	if err != nil {
		t.Fatalf("bonus: %v", err)
	}
	if tx.Category != "bônus" {
		t.Errorf("expected default category, got %s", tx.Category)
	}
}
