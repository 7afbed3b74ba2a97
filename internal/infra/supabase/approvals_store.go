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
// Approval requests — port.Store implementation (part 4)
// ============================================================

type approvalRow struct {
	ID          string  `json:"id"`
	ChildID     string  `json:"child_id"`
	FamilyID    string  `json:"family_id"`
	Kind        string  `json:"kind"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	GoalID      string  `json:"goal_id"`
	Status      string  `json:"status"`
	RequestedAt string  `json:"requested_at"`
	DecidedAt   *string `json:"decided_at"`
	DecidedBy   string  `json:"decided_by"`
}

func (r approvalRow) toDomain() domain.ApprovalRequest {
	requested, _ := time.Parse(time.RFC3339, r.RequestedAt)
	req := domain.ApprovalRequest{
		ID:          r.ID,
		ChildID:     r.ChildID,
		FamilyID:    r.FamilyID,
		Kind:        domain.ApprovalKind(r.Kind),
		Amount:      r.Amount,
		Description: r.Description,
		GoalID:      r.GoalID,
		Status:      domain.ApprovalStatus(r.Status),
		RequestedAt: requested,
		DecidedBy:   r.DecidedBy,
	}
	if r.DecidedAt != nil {
		if t, err := time.Parse(time.RFC3339, *r.DecidedAt); err == nil {
			req.DecidedAt = &t
		}
	}
	return req
}

func (c *Client) CreateApprovalRequest(ctx context.Context, req *domain.ApprovalRequest) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateApprovalRequest")
	defer span.End()
	span.SetAttributes(attribute.String("request.kind", string(req.Kind)))

	err := c.execute(ctx, func() error {
		_, err := c.doPost(ctx, "approval_requests", map[string]any{
			"id":           req.ID,
			"child_id":     req.ChildID,
			"family_id":    req.FamilyID,
			"kind":         string(req.Kind),
			"amount":       req.Amount,
			"description":  req.Description,
			"goal_id":      req.GoalID,
			"status":       string(req.Status),
			"requested_at": req.RequestedAt.Format(time.RFC3339),
		})
		return err
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/approval_requests", Err: err}
	}
	return nil
}

func (c *Client) GetApprovalRequest(ctx context.Context, requestID string) (*domain.ApprovalRequest, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetApprovalRequest")
	defer span.End()

	var out *domain.ApprovalRequest
	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("approval_requests?id=eq.%s&limit=1", requestID)
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		out = nil
		if body == nil || string(body) == "[]" {
			return nil
		}
		var rows []approvalRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode approval_requests: %w", err)
		}
		if len(rows) > 0 {
			r := rows[0].toDomain()
			out = &r
		}
		return nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/approval_requests", Err: err}
	}
	return out, nil
}

func (c *Client) listApprovals(ctx context.Context, path string) ([]domain.ApprovalRequest, error) {
	var out []domain.ApprovalRequest
	err := c.execute(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		out = []domain.ApprovalRequest{}
		if body == nil || string(body) == "[]" {
			return nil
		}
		var rows []approvalRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode approval_requests: %w", err)
		}
		for _, r := range rows {
			out = append(out, r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/approval_requests", Err: err}
	}
	return out, nil
}

func (c *Client) ListApprovalRequests(ctx context.Context, childID string, status domain.ApprovalStatus) ([]domain.ApprovalRequest, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListApprovalRequests")
	defer span.End()

	path := fmt.Sprintf("approval_requests?child_id=eq.%s&order=requested_at.desc", childID)
	if status != "" {
		path += "&status=eq." + string(status)
	}
	return c.listApprovals(ctx, path)
}

func (c *Client) ListFamilyApprovalRequests(ctx context.Context, familyID string, status domain.ApprovalStatus) ([]domain.ApprovalRequest, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListFamilyApprovalRequests")
	defer span.End()

	path := fmt.Sprintf("approval_requests?family_id=eq.%s&order=requested_at.desc", familyID)
	if status != "" {
		path += "&status=eq." + string(status)
	}
	return c.listApprovals(ctx, path)
}

func (c *Client) UpdateApprovalRequest(ctx context.Context, req *domain.ApprovalRequest) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateApprovalRequest")
	defer span.End()

	data := map[string]any{
		"status":     string(req.Status),
		"decided_by": req.DecidedBy,
	}
	if req.DecidedAt != nil {
		data["decided_at"] = req.DecidedAt.Format(time.RFC3339)
	}

	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("approval_requests?id=eq.%s", req.ID)
		return c.doPatch(ctx, path, data)
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/approval_requests", Err: err}
	}
	return nil
}
