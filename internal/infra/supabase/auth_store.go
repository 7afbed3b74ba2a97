package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/port"
)

// ============================================================
// AuthStore implementation — families, users, refresh tokens
// ============================================================

var (
	_ port.Store     = (*Client)(nil)
	_ port.AuthStore = (*Client)(nil)
)

type userRow struct {
	ID           string  `json:"id"`
	FamilyID     string  `json:"family_id"`
	Email        string  `json:"email"`
	Name         string  `json:"name"`
	Role         string  `json:"role"`
	PasswordHash string  `json:"password_hash"`
	LastLoginAt  *string `json:"last_login_at"`
	CreatedAt    string  `json:"created_at"`
}

func (r userRow) toDomain() *domain.User {
	created, _ := time.Parse(time.RFC3339, r.CreatedAt)
	u := &domain.User{
		ID:           r.ID,
		FamilyID:     r.FamilyID,
		Email:        r.Email,
		Name:         r.Name,
		Role:         domain.Role(r.Role),
		PasswordHash: r.PasswordHash,
		CreatedAt:    created,
	}
	if r.LastLoginAt != nil {
		if t, err := time.Parse(time.RFC3339, *r.LastLoginAt); err == nil {
			u.LastLoginAt = &t
		}
	}
	return u
}

func (c *Client) CreateFamily(ctx context.Context, family *domain.Family) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateFamily")
	defer span.End()

	err := c.execute(ctx, func() error {
		_, err := c.doPost(ctx, "families", map[string]any{
			"id":         family.ID,
			"name":       family.Name,
			"created_at": family.CreatedAt.Format(time.RFC3339),
		})
		return err
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/families", Err: err}
	}
	return nil
}

func (c *Client) CreateUser(ctx context.Context, user *domain.User) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateUser")
	defer span.End()

	err := c.execute(ctx, func() error {
		_, err := c.doPost(ctx, "users", map[string]any{
			"id":            user.ID,
			"family_id":     user.FamilyID,
			"email":         user.Email,
			"name":          user.Name,
			"role":          string(user.Role),
			"password_hash": user.PasswordHash,
			"created_at":    user.CreatedAt.Format(time.RFC3339),
		})
		return err
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/users", Err: err}
	}
	return nil
}

func (c *Client) getUser(ctx context.Context, query string) (*domain.User, error) {
	var out *domain.User
	err := c.execute(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "users?"+query+"&limit=1")
		if err != nil {
			return err
		}
		out = nil
		if body == nil || string(body) == "[]" {
			return nil
		}
		var rows []userRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode users: %w", err)
		}
		if len(rows) > 0 {
			out = rows[0].toDomain()
		}
		return nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/users", Err: err}
	}
	return out, nil
}

func (c *Client) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserByEmail")
	defer span.End()

	return c.getUser(ctx, "email=eq."+url.QueryEscape(email))
}

func (c *Client) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserByID")
	defer span.End()

	return c.getUser(ctx, "id=eq."+userID)
}

func (c *Client) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateLastLogin")
	defer span.End()

	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("users?id=eq.%s", userID)
		return c.doPatch(ctx, path, map[string]any{
			"last_login_at": at.Format(time.RFC3339),
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/users", Err: err}
	}
	return nil
}

// ============================================================
// Refresh tokens
// ============================================================

type refreshTokenRow struct {
	UserID    string `json:"user_id"`
	TokenHash string `json:"token_hash"`
	ExpiresAt string `json:"expires_at"`
}

func (c *Client) StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	ctx, span := tracer.Start(ctx, "Supabase.StoreRefreshToken")
	defer span.End()

	err := c.execute(ctx, func() error {
		_, err := c.doPost(ctx, "refresh_tokens", map[string]any{
			"user_id":    userID,
			"token_hash": tokenHash,
			"expires_at": expiresAt.Format(time.RFC3339),
		})
		return err
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/refresh_tokens", Err: err}
	}
	return nil
}

func (c *Client) GetRefreshToken(ctx context.Context, tokenHash string) (*port.RefreshToken, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetRefreshToken")
	defer span.End()

	var out *port.RefreshToken
	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("refresh_tokens?token_hash=eq.%s&limit=1", tokenHash)
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		out = nil
		if body == nil || string(body) == "[]" {
			return nil
		}
		var rows []refreshTokenRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode refresh_tokens: %w", err)
		}
		if len(rows) > 0 {
			expires, _ := time.Parse(time.RFC3339, rows[0].ExpiresAt)
			out = &port.RefreshToken{
				UserID:    rows[0].UserID,
				TokenHash: rows[0].TokenHash,
				ExpiresAt: expires,
			}
		}
		return nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/refresh_tokens", Err: err}
	}
	return out, nil
}

func (c *Client) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	ctx, span := tracer.Start(ctx, "Supabase.RevokeRefreshToken")
	defer span.End()

	err := c.execute(ctx, func() error {
		return c.doDelete(ctx, fmt.Sprintf("refresh_tokens?token_hash=eq.%s", tokenHash))
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/refresh_tokens", Err: err}
	}
	return nil
}

func (c *Client) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.RevokeAllRefreshTokens")
	defer span.End()

	err := c.execute(ctx, func() error {
		return c.doDelete(ctx, fmt.Sprintf("refresh_tokens?user_id=eq.%s", userID))
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/refresh_tokens", Err: err}
	}
	return nil
}
