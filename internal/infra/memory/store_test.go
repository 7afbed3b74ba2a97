package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/infra/memory"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedChild(t *testing.T, store *memory.Store, id string) {
	t.Helper()
	err := store.CreateChild(context.Background(), &domain.Child{
		ID:        id,
		FamilyID:  "fam-1",
		Name:      "Ana",
		CreatedAt: day("2024-01-01"),
	})
	if err != nil {
		t.Fatalf("seed child: %v", err)
	}
}

func appendTx(t *testing.T, store *memory.Store, id string, kind domain.TransactionKind, amount, balanceAfter float64, date string) {
	t.Helper()
	err := store.AppendTransaction(context.Background(), &domain.Transaction{
		ID:           id,
		ChildID:      "child-1",
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Date:         day(date),
	})
	if err != nil {
		t.Fatalf("append %s: %v", id, err)
	}
}

func TestAppendTransaction_UpdatesBalance(t *testing.T) {
	store := memory.NewStore()
	seedChild(t, store, "child-1")

	appendTx(t, store, "tx-1", domain.KindBonus, 50, 50, "2024-08-01")
	appendTx(t, store, "tx-2", domain.KindSpending, -20, 30, "2024-08-02")

	child, err := store.GetChild(context.Background(), "child-1")
	if err != nil {
		t.Fatal(err)
	}
	if child.Balance != 30 {
		t.Errorf("expected cached balance 30, got %v", child.Balance)
	}
}

func TestAppendTransaction_UnknownChild(t *testing.T) {
	store := memory.NewStore()

	err := store.AppendTransaction(context.Background(), &domain.Transaction{
		ID:      "tx-1",
		ChildID: "ghost",
		Kind:    domain.KindBonus,
		Amount:  10,
	})
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListTransactions_OrderAndFilters(t *testing.T) {
	store := memory.NewStore()
	seedChild(t, store, "child-1")
	appendTx(t, store, "tx-1", domain.KindBonus, 50, 50, "2024-08-01")
	appendTx(t, store, "tx-2", domain.KindSpending, -20, 30, "2024-08-02")
	appendTx(t, store, "tx-3", domain.KindSpending, -5, 25, "2024-08-03")

	all, err := store.ListTransactions(context.Background(), "child-1", domain.HistoryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(all))
	}
	if all[0].ID != "tx-3" || all[2].ID != "tx-1" {
		t.Errorf("expected newest-first ordering, got %s..%s", all[0].ID, all[2].ID)
	}

	spends, _ := store.ListTransactions(context.Background(), "child-1", domain.HistoryFilter{
		Kinds: []domain.TransactionKind{domain.KindSpending},
	})
	if len(spends) != 2 {
		t.Errorf("expected 2 spending transactions, got %d", len(spends))
	}

	from := day("2024-08-02")
	to := day("2024-08-02")
	window, _ := store.ListTransactions(context.Background(), "child-1", domain.HistoryFilter{From: &from, To: &to})
	if len(window) != 1 || window[0].ID != "tx-2" {
		t.Errorf("expected only tx-2 in the window, got %+v", window)
	}

	limited, _ := store.ListTransactions(context.Background(), "child-1", domain.HistoryFilter{Limit: 2})
	if len(limited) != 2 || limited[0].ID != "tx-3" {
		t.Errorf("expected the 2 newest, got %+v", limited)
	}
}

func TestLastTransactionBefore(t *testing.T) {
	store := memory.NewStore()
	seedChild(t, store, "child-1")
	appendTx(t, store, "tx-1", domain.KindBonus, 50, 50, "2024-06-01")
	appendTx(t, store, "tx-2", domain.KindBonus, 10, 60, "2024-06-15")
	appendTx(t, store, "tx-3", domain.KindBonus, 10, 70, "2024-07-10")

	last, err := store.LastTransactionBefore(context.Background(), "child-1", day("2024-07-01"))
	if err != nil {
		t.Fatal(err)
	}
	if last == nil || last.ID != "tx-2" {
		t.Fatalf("expected tx-2, got %+v", last)
	}

	// The cutoff is strict: a transaction on the cutoff day stays out.
	last, _ = store.LastTransactionBefore(context.Background(), "child-1", day("2024-06-01"))
	if last != nil {
		t.Errorf("expected no transaction strictly before the first, got %+v", last)
	}

	// Date ties resolve to the later insertion.
	appendTx(t, store, "tx-4", domain.KindBonus, 5, 75, "2024-07-10")
	last, _ = store.LastTransactionBefore(context.Background(), "child-1", day("2024-08-01"))
	if last == nil || last.ID != "tx-4" {
		t.Errorf("expected tie to resolve to tx-4, got %+v", last)
	}
}
