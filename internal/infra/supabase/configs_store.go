package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
)

// ============================================================
// Allowance / interest configs — port.Store implementation (part 3)
// ============================================================

type allowanceRow struct {
	ChildID         string  `json:"child_id"`
	Amount          float64 `json:"amount"`
	Frequency       string  `json:"frequency"`
	DayOfWeek       int     `json:"day_of_week"`
	DayOfMonth      int     `json:"day_of_month"`
	NextPaymentDate string  `json:"next_payment_date"`
	IsActive        bool    `json:"is_active"`
}

func (r allowanceRow) toDomain() domain.AllowanceConfig {
	next, err := time.Parse("2006-01-02", r.NextPaymentDate)
	if err != nil {
		next, _ = time.Parse(time.RFC3339, r.NextPaymentDate)
	}
	return domain.AllowanceConfig{
		ChildID:         r.ChildID,
		Amount:          r.Amount,
		Frequency:       domain.AllowanceFrequency(r.Frequency),
		DayOfWeek:       r.DayOfWeek,
		DayOfMonth:      r.DayOfMonth,
		NextPaymentDate: next,
		IsActive:        r.IsActive,
	}
}

// UpsertAllowanceConfig replaces the child's single allowance config.
// PostgREST merge-duplicates performs the upsert on the child_id key.
func (c *Client) UpsertAllowanceConfig(ctx context.Context, cfg *domain.AllowanceConfig) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertAllowanceConfig")
	defer span.End()

	err := c.execute(ctx, func() error {
		_, err := c.doPost(ctx, "allowance_configs?on_conflict=child_id", map[string]any{
			"child_id":          cfg.ChildID,
			"amount":            cfg.Amount,
			"frequency":         string(cfg.Frequency),
			"day_of_week":       cfg.DayOfWeek,
			"day_of_month":      cfg.DayOfMonth,
			"next_payment_date": cfg.NextPaymentDate.Format("2006-01-02"),
			"is_active":         cfg.IsActive,
		})
		return err
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/allowance_configs", Err: err}
	}
	return nil
}

func (c *Client) GetAllowanceConfig(ctx context.Context, childID string) (*domain.AllowanceConfig, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetAllowanceConfig")
	defer span.End()

	var out *domain.AllowanceConfig
	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("allowance_configs?child_id=eq.%s&limit=1", childID)
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		out = nil
		if body == nil || string(body) == "[]" {
			return nil
		}
		var rows []allowanceRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode allowance_configs: %w", err)
		}
		if len(rows) > 0 {
			cfg := rows[0].toDomain()
			out = &cfg
		}
		return nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/allowance_configs", Err: err}
	}
	return out, nil
}

func (c *Client) ListActiveAllowanceConfigs(ctx context.Context) ([]domain.AllowanceConfig, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListActiveAllowanceConfigs")
	defer span.End()

	var out []domain.AllowanceConfig
	err := c.execute(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "allowance_configs?is_active=is.true&order=child_id.asc")
		if err != nil {
			return err
		}
		out = []domain.AllowanceConfig{}
		if body == nil || string(body) == "[]" {
			return nil
		}
		var rows []allowanceRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode allowance_configs: %w", err)
		}
		for _, r := range rows {
			out = append(out, r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/allowance_configs", Err: err}
	}
	return out, nil
}

// ============================================================
// Interest configs
// ============================================================

type interestRow struct {
	ChildID         string  `json:"child_id"`
	MonthlyRate     float64 `json:"monthly_rate"`
	MinimumBalance  float64 `json:"minimum_balance"`
	ApplicationDay  int     `json:"application_day"`
	IsActive        bool    `json:"is_active"`
	LastAppliedDate *string `json:"last_applied_date"`
}

func (r interestRow) toDomain() domain.InterestConfig {
	cfg := domain.InterestConfig{
		ChildID:        r.ChildID,
		MonthlyRate:    r.MonthlyRate,
		MinimumBalance: r.MinimumBalance,
		ApplicationDay: r.ApplicationDay,
		IsActive:       r.IsActive,
	}
	if r.LastAppliedDate != nil {
		if t, err := time.Parse("2006-01-02", *r.LastAppliedDate); err == nil {
			cfg.LastAppliedDate = &t
		}
	}
	return cfg
}

func (c *Client) UpsertInterestConfig(ctx context.Context, cfg *domain.InterestConfig) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertInterestConfig")
	defer span.End()

	data := map[string]any{
		"child_id":        cfg.ChildID,
		"monthly_rate":    cfg.MonthlyRate,
		"minimum_balance": cfg.MinimumBalance,
		"application_day": cfg.ApplicationDay,
		"is_active":       cfg.IsActive,
	}
	if cfg.LastAppliedDate != nil {
		data["last_applied_date"] = cfg.LastAppliedDate.Format("2006-01-02")
	} else {
		data["last_applied_date"] = nil
	}

	err := c.execute(ctx, func() error {
		_, err := c.doPost(ctx, "interest_configs?on_conflict=child_id", data)
		return err
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/interest_configs", Err: err}
	}
	return nil
}

func (c *Client) GetInterestConfig(ctx context.Context, childID string) (*domain.InterestConfig, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetInterestConfig")
	defer span.End()

	var out *domain.InterestConfig
	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("interest_configs?child_id=eq.%s&limit=1", childID)
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		out = nil
		if body == nil || string(body) == "[]" {
			return nil
		}
		var rows []interestRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode interest_configs: %w", err)
		}
		if len(rows) > 0 {
			cfg := rows[0].toDomain()
			out = &cfg
		}
		return nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/interest_configs", Err: err}
	}
	return out, nil
}

func (c *Client) ListActiveInterestConfigs(ctx context.Context) ([]domain.InterestConfig, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListActiveInterestConfigs")
	defer span.End()

	var out []domain.InterestConfig
	err := c.execute(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "interest_configs?is_active=is.true&order=child_id.asc")
		if err != nil {
			return err
		}
		out = []domain.InterestConfig{}
		if body == nil || string(body) == "[]" {
			return nil
		}
		var rows []interestRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode interest_configs: %w", err)
		}
		for _, r := range rows {
			out = append(out, r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/interest_configs", Err: err}
	}
	return out, nil
}
