package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Goals — port.Store implementation (part 2)
// ============================================================

type goalRow struct {
	ID                string  `json:"id"`
	ChildID           string  `json:"child_id"`
	Name              string  `json:"name"`
	TargetAmount      float64 `json:"target_amount"`
	CurrentAmount     float64 `json:"current_amount"`
	Category          string  `json:"category"`
	IsCompleted       bool    `json:"is_completed"`
	FulfillmentStatus string  `json:"fulfillment_status"`
	CreatedAt         string  `json:"created_at"`
}

func (r goalRow) toDomain() domain.Goal {
	created, _ := time.Parse(time.RFC3339, r.CreatedAt)
	return domain.Goal{
		ID:                r.ID,
		ChildID:           r.ChildID,
		Name:              r.Name,
		TargetAmount:      r.TargetAmount,
		CurrentAmount:     r.CurrentAmount,
		Category:          r.Category,
		IsCompleted:       r.IsCompleted,
		FulfillmentStatus: domain.FulfillmentStatus(r.FulfillmentStatus),
		CreatedAt:         created,
	}
}

func (c *Client) CreateGoal(ctx context.Context, goal *domain.Goal) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateGoal")
	defer span.End()

	err := c.execute(ctx, func() error {
		_, err := c.doPost(ctx, "goals", map[string]any{
			"id":                 goal.ID,
			"child_id":           goal.ChildID,
			"name":               goal.Name,
			"target_amount":      goal.TargetAmount,
			"current_amount":     goal.CurrentAmount,
			"category":           goal.Category,
			"is_completed":       goal.IsCompleted,
			"fulfillment_status": string(goal.FulfillmentStatus),
			"created_at":         goal.CreatedAt.Format(time.RFC3339),
		})
		return err
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/goals", Err: err}
	}
	return nil
}

func (c *Client) GetGoal(ctx context.Context, goalID string) (*domain.Goal, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetGoal")
	defer span.End()
	span.SetAttributes(attribute.String("goal.id", goalID))

	var out *domain.Goal
	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("goals?id=eq.%s&limit=1", goalID)
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		out = nil
		if body == nil || string(body) == "[]" {
			return nil
		}
		var rows []goalRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode goals: %w", err)
		}
		if len(rows) > 0 {
			g := rows[0].toDomain()
			out = &g
		}
		return nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/goals", Err: err}
	}
	return out, nil
}

func (c *Client) ListGoals(ctx context.Context, childID string) ([]domain.Goal, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListGoals")
	defer span.End()

	var out []domain.Goal
	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("goals?child_id=eq.%s&order=created_at.asc", childID)
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		out = []domain.Goal{}
		if body == nil || string(body) == "[]" {
			return nil
		}
		var rows []goalRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode goals: %w", err)
		}
		for _, r := range rows {
			out = append(out, r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/goals", Err: err}
	}
	return out, nil
}

func (c *Client) UpdateGoal(ctx context.Context, goal *domain.Goal) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateGoal")
	defer span.End()

	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("goals?id=eq.%s", goal.ID)
		return c.doPatch(ctx, path, map[string]any{
			"current_amount":     goal.CurrentAmount,
			"is_completed":       goal.IsCompleted,
			"fulfillment_status": string(goal.FulfillmentStatus),
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/goals", Err: err}
	}
	return nil
}
