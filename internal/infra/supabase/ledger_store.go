package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Children + ledger — port.Store implementation (part 1)
// ============================================================

type childRow struct {
	ID        string  `json:"id"`
	FamilyID  string  `json:"family_id"`
	Name      string  `json:"name"`
	Balance   float64 `json:"balance"`
	CreatedAt string  `json:"created_at"`
}

func (r childRow) toDomain() *domain.Child {
	created, _ := time.Parse(time.RFC3339, r.CreatedAt)
	return &domain.Child{
		ID:        r.ID,
		FamilyID:  r.FamilyID,
		Name:      r.Name,
		Balance:   r.Balance,
		CreatedAt: created,
	}
}

func (c *Client) CreateChild(ctx context.Context, child *domain.Child) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateChild")
	defer span.End()

	err := c.execute(ctx, func() error {
		_, err := c.doPost(ctx, "children", map[string]any{
			"id":         child.ID,
			"family_id":  child.FamilyID,
			"name":       child.Name,
			"balance":    child.Balance,
			"created_at": child.CreatedAt.Format(time.RFC3339),
		})
		return err
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/children", Err: err}
	}
	return nil
}

func (c *Client) GetChild(ctx context.Context, childID string) (*domain.Child, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetChild")
	defer span.End()
	span.SetAttributes(attribute.String("child.id", childID))

	var child *domain.Child
	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("children?id=eq.%s&limit=1", childID)
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		if body == nil || string(body) == "[]" {
			child = nil
			return nil
		}
		var rows []childRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode children: %w", err)
		}
		if len(rows) > 0 {
			child = rows[0].toDomain()
		}
		return nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/children", Err: err}
	}
	return child, nil
}

func (c *Client) ListChildren(ctx context.Context, familyID string) ([]domain.Child, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListChildren")
	defer span.End()

	var out []domain.Child
	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("children?family_id=eq.%s&order=created_at.asc", familyID)
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		out = []domain.Child{}
		if body == nil || string(body) == "[]" {
			return nil
		}
		var rows []childRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode children: %w", err)
		}
		for _, r := range rows {
			out = append(out, *r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/children", Err: err}
	}
	return out, nil
}

// ============================================================
// Transactions
// ============================================================

type transactionRow struct {
	ID           string  `json:"id"`
	ChildID      string  `json:"child_id"`
	Amount       float64 `json:"amount"`
	Kind         string  `json:"kind"`
	Category     string  `json:"category"`
	Description  string  `json:"description"`
	BalanceAfter float64 `json:"balance_after"`
	Date         string  `json:"date"`
}

func (r transactionRow) toDomain() domain.Transaction {
	date, err := time.Parse(time.RFC3339, r.Date)
	if err != nil {
		date, _ = time.Parse("2006-01-02", r.Date)
	}
	return domain.Transaction{
		ID:           r.ID,
		ChildID:      r.ChildID,
		Amount:       r.Amount,
		Kind:         domain.TransactionKind(r.Kind),
		Category:     r.Category,
		Description:  r.Description,
		BalanceAfter: r.BalanceAfter,
		Date:         date,
	}
}

// AppendTransaction calls the append_transaction Postgres function, which
// inserts the row and updates children.balance in one database transaction.
func (c *Client) AppendTransaction(ctx context.Context, tx *domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "Supabase.AppendTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("child.id", tx.ChildID),
		attribute.String("tx.kind", string(tx.Kind)),
	)

	err := c.execute(ctx, func() error {
		_, err := c.doRPC(ctx, "append_transaction", map[string]any{
			"p_id":            tx.ID,
			"p_child_id":      tx.ChildID,
			"p_amount":        tx.Amount,
			"p_kind":          string(tx.Kind),
			"p_category":      tx.Category,
			"p_description":   tx.Description,
			"p_balance_after": tx.BalanceAfter,
			"p_date":          tx.Date.Format(time.RFC3339),
		})
		return err
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/transactions", Err: err}
	}
	return nil
}

func (c *Client) ListTransactions(ctx context.Context, childID string, filter domain.HistoryFilter) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("child.id", childID))

	path := fmt.Sprintf("transactions?child_id=eq.%s&order=date.desc", childID)
	if filter.From != nil {
		path += "&date=gte." + url.QueryEscape(filter.From.Format(time.RFC3339))
	}
	if filter.To != nil {
		path += "&date=lte." + url.QueryEscape(filter.To.Format(time.RFC3339))
	}
	if filter.Category != "" {
		path += "&category=eq." + url.QueryEscape(filter.Category)
	}
	if len(filter.Kinds) == 1 {
		path += "&kind=eq." + url.QueryEscape(string(filter.Kinds[0]))
	} else if len(filter.Kinds) > 1 {
		in := ""
		for i, k := range filter.Kinds {
			if i > 0 {
				in += ","
			}
			in += string(k)
		}
		path += "&kind=in.(" + url.QueryEscape(in) + ")"
	}
	if filter.Limit > 0 {
		path += fmt.Sprintf("&limit=%d", filter.Limit)
	}

	var out []domain.Transaction
	err := c.execute(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		out = []domain.Transaction{}
		if body == nil || string(body) == "[]" {
			return nil
		}
		var rows []transactionRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode transactions: %w", err)
		}
		for _, r := range rows {
			out = append(out, r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/transactions", Err: err}
	}
	return out, nil
}

func (c *Client) LastTransactionBefore(ctx context.Context, childID string, t time.Time) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.LastTransactionBefore")
	defer span.End()

	var out *domain.Transaction
	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("transactions?child_id=eq.%s&date=lt.%s&order=date.desc&limit=1",
			childID, url.QueryEscape(t.Format(time.RFC3339)))
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		out = nil
		if body == nil || string(body) == "[]" {
			return nil
		}
		var rows []transactionRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode transactions: %w", err)
		}
		if len(rows) > 0 {
			tx := rows[0].toDomain()
			out = &tx
		}
		return nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/transactions", Err: err}
	}
	return out, nil
}
