package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/infra/memory"
	"github.com/boddenberg/mesada-api-go/internal/infra/observability"
	"github.com/boddenberg/mesada-api-go/internal/service"

	"go.uber.org/zap"
)

type approvalFixture struct {
	store  *memory.Store
	ledger *service.LedgerService
	goals  *service.GoalService
	svc    *service.ApprovalService
}

// newApprovalFixture wires a family with one parent ("parent-1") and one
// child whose user ID matches the child account ("child-1").
func newApprovalFixture(t *testing.T, threshold float64) *approvalFixture {
	t.Helper()
	store := memory.NewStore()
	users := memory.NewAuthStore()
	now := day("2024-08-01")

	seedUser := func(id string, role domain.Role) {
		err := users.CreateUser(context.Background(), &domain.User{
			ID:       id,
			FamilyID: "fam-1",
			Email:    id + "@example.com",
			Role:     role,
		})
		if err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	seedUser("parent-1", domain.RoleParent)
	seedUser("child-1", domain.RoleChild)

	ledger := newLedger(store, threshold, now)
	authorizer := service.NewFamilyAuthorizer(users, store)
	svc := service.NewApprovalService(store, ledger, authorizer, observability.NewMetrics(), zap.NewNop(), fixedClock{now})
	goals := service.NewGoalService(store, ledger, fixedClock{now}, zap.NewNop())

	seedChild(t, store, "child-1", "fam-1")
	return &approvalFixture{store: store, ledger: ledger, goals: goals, svc: svc}
}

func TestSubmitLoan_CreatesPendingRequest(t *testing.T) {
	f := newApprovalFixture(t, 20)

	req, err := f.svc.SubmitLoan(context.Background(), &domain.LoanRequestBody{
		ChildID:     "child-1",
		Amount:      30,
		Description: "quero comprar um jogo",
	})
	if err != nil {
		t.Fatalf("submit loan: %v", err)
	}
	if req.Kind != domain.ApprovalLoan || req.Status != domain.StatusPending {
		t.Errorf("expected pending loan request, got %s %s", req.Kind, req.Status)
	}
	if req.FamilyID != "fam-1" {
		t.Errorf("expected request scoped to fam-1, got %s", req.FamilyID)
	}

	// Money only moves on approval.
	balance, _ := f.ledger.Balance(context.Background(), "child-1")
	if balance != 0 {
		t.Errorf("expected untouched balance, got %v", balance)
	}
}

func TestDecide_OnlyParentsDecide(t *testing.T) {
	f := newApprovalFixture(t, 20)
	req, err := f.svc.SubmitLoan(context.Background(), &domain.LoanRequestBody{ChildID: "child-1", Amount: 30})
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.Decide(context.Background(), req.ID, "child-1", true)
	var forbidden *domain.ErrForbidden
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ErrForbidden for child decider, got %v", err)
	}
}

func TestDecide_ConcurrentDecisionsSingleWinner(t *testing.T) {
	store := memory.NewStore()
	users := memory.NewAuthStore()
	now := day("2024-08-01")
	err := users.CreateUser(context.Background(), &domain.User{
		ID:       "parent-1",
		FamilyID: "fam-1",
		Email:    "parent-1@example.com",
		Role:     domain.RoleParent,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	ledger := newLedger(store, 20, now)
	authorizer := service.NewFamilyAuthorizer(users, store)
	lagged := &laggedStore{Store: store, lag: 50 * time.Millisecond}
	svc := service.NewApprovalService(lagged, ledger, authorizer, observability.NewMetrics(), zap.NewNop(), fixedClock{now})
	seedChild(t, store, "child-1", "fam-1")

	req, err := svc.SubmitLoan(context.Background(), &domain.LoanRequestBody{ChildID: "child-1", Amount: 30})
	if err != nil {
		t.Fatal(err)
	}

	// Two parents settle the same request at once; exactly one decision
	// wins and the loan is credited once.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Decide(context.Background(), req.ID, "parent-1", true)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var already *domain.ErrAlreadyDecided
		if !errors.As(err, &already) {
			t.Errorf("expected ErrAlreadyDecided for the losing decision, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly one decision to land, got %d", succeeded)
	}

	balance, _ := ledger.Balance(context.Background(), "child-1")
	if balance != 30 {
		t.Errorf("expected a single loan credit of 30, got balance %v", balance)
	}
}

func TestDecide_ApprovedLoanCreditsLedger(t *testing.T) {
	f := newApprovalFixture(t, 20)
	req, err := f.svc.SubmitLoan(context.Background(), &domain.LoanRequestBody{ChildID: "child-1", Amount: 30})
	if err != nil {
		t.Fatal(err)
	}

	decided, err := f.svc.Decide(context.Background(), req.ID, "parent-1", true)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.Status != domain.StatusApproved || decided.DecidedBy != "parent-1" || decided.DecidedAt == nil {
		t.Errorf("unexpected decided request: %+v", decided)
	}

	balance, _ := f.ledger.Balance(context.Background(), "child-1")
	if balance != 30 {
		t.Errorf("expected loan credit of 30, got %v", balance)
	}
	outstanding, _ := f.ledger.OutstandingLoan(context.Background(), "child-1")
	if outstanding != 30 {
		t.Errorf("expected outstanding 30, got %v", outstanding)
	}

	// Settled is settled.
	_, err = f.svc.Decide(context.Background(), req.ID, "parent-1", false)
	var already *domain.ErrAlreadyDecided
	if !errors.As(err, &already) {
		t.Fatalf("expected ErrAlreadyDecided, got %v", err)
	}
}

func TestDecide_PurchaseWithoutFundsStaysPending(t *testing.T) {
	f := newApprovalFixture(t, 20)
	credit(t, f.ledger, "child-1", 50, day("2024-08-01"))

	// A spend at the threshold parks as a pending purchase.
	resp, err := f.ledger.Spend(context.Background(), "child-1", &domain.SpendRequest{Amount: 40, Category: "jogo"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Request == nil {
		t.Fatal("expected a pending purchase request")
	}

	// Balance drops below the purchase before the parent decides.
	if _, err := f.ledger.Append(context.Background(), "child-1", domain.KindSpending, 15, "lanche", "", time.Time{}); err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.Decide(context.Background(), resp.Request.ID, "parent-1", true)
	var insufficient *domain.ErrInsufficientBalance
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// The request survives for a later retry.
	fresh, _ := f.svc.Get(context.Background(), resp.Request.ID)
	if fresh.Status != domain.StatusPending {
		t.Errorf("expected request still pending, got %s", fresh.Status)
	}
}

func TestDecide_ApprovedPurchaseDebits(t *testing.T) {
	f := newApprovalFixture(t, 20)
	credit(t, f.ledger, "child-1", 50, day("2024-08-01"))

	resp, err := f.ledger.Spend(context.Background(), "child-1", &domain.SpendRequest{Amount: 40, Category: "jogo"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Decide(context.Background(), resp.Request.ID, "parent-1", true); err != nil {
		t.Fatalf("decide: %v", err)
	}

	balance, _ := f.ledger.Balance(context.Background(), "child-1")
	if balance != 10 {
		t.Errorf("expected balance 10 after approved purchase, got %v", balance)
	}
}

func TestDecide_GoalFulfillmentFlipsStatusOnly(t *testing.T) {
	f := newApprovalFixture(t, 20)
	credit(t, f.ledger, "child-1", 100, day("2024-08-01"))

	goal, err := f.goals.Create(context.Background(), "child-1", &domain.CreateGoalRequest{Name: "patinete", TargetAmount: 60})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.goals.Contribute(context.Background(), goal.ID, 60); err != nil {
		t.Fatal(err)
	}
	req, err := f.goals.RequestFulfillment(context.Background(), goal.ID)
	if err != nil {
		t.Fatal(err)
	}

	before, _ := f.ledger.Balance(context.Background(), "child-1")

	if _, err := f.svc.Decide(context.Background(), req.ID, "parent-1", true); err != nil {
		t.Fatalf("decide: %v", err)
	}

	fresh, _ := f.goals.Get(context.Background(), goal.ID)
	if fresh.FulfillmentStatus != domain.FulfillmentApproved {
		t.Errorf("expected fulfillment approved, got %s", fresh.FulfillmentStatus)
	}

	// The earmarked money stays in the goal.
	after, _ := f.ledger.Balance(context.Background(), "child-1")
	if before != after {
		t.Errorf("expected no balance change, got %v -> %v", before, after)
	}
}

func TestDecide_RejectedFulfillmentUnlocksGoal(t *testing.T) {
	f := newApprovalFixture(t, 20)
	credit(t, f.ledger, "child-1", 100, day("2024-08-01"))

	goal, err := f.goals.Create(context.Background(), "child-1", &domain.CreateGoalRequest{Name: "patinete", TargetAmount: 60})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.goals.Contribute(context.Background(), goal.ID, 60); err != nil {
		t.Fatal(err)
	}
	req, err := f.goals.RequestFulfillment(context.Background(), goal.ID)
	if err != nil {
		t.Fatal(err)
	}

	decided, err := f.svc.Decide(context.Background(), req.ID, "parent-1", false)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.Status != domain.StatusRejected {
		t.Errorf("expected rejected, got %s", decided.Status)
	}

	// The child may withdraw again after a rejection.
	fresh, _ := f.goals.Get(context.Background(), goal.ID)
	if fresh.FulfillmentStatus != domain.FulfillmentRejected {
		t.Errorf("expected fulfillment rejected, got %s", fresh.FulfillmentStatus)
	}
	if _, err := f.goals.Withdraw(context.Background(), goal.ID, 10); err != nil {
		t.Errorf("expected withdraw after rejection, got %v", err)
	}
}

func TestListApprovals_ByChildAndFamily(t *testing.T) {
	f := newApprovalFixture(t, 20)
	if _, err := f.svc.SubmitLoan(context.Background(), &domain.LoanRequestBody{ChildID: "child-1", Amount: 10}); err != nil {
		t.Fatal(err)
	}
	req2, err := f.svc.SubmitLoan(context.Background(), &domain.LoanRequestBody{ChildID: "child-1", Amount: 20})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Decide(context.Background(), req2.ID, "parent-1", false); err != nil {
		t.Fatal(err)
	}

	pending, err := f.svc.ListForChild(context.Background(), "child-1", domain.StatusPending)
	if err != nil {
		t.Fatalf("list for child: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 pending request, got %d", len(pending))
	}

	all, err := f.svc.ListForFamily(context.Background(), "fam-1", "")
	if err != nil {
		t.Fatalf("list for family: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 family requests, got %d", len(all))
	}
}
