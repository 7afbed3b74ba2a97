package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/infra/memory"
	"github.com/boddenberg/mesada-api-go/internal/service"

	"go.uber.org/zap"
)

func newAuth() *service.AuthService {
	return service.NewAuthService(memory.NewAuthStore(), "test-secret", 15*time.Minute, 24*time.Hour, zap.NewNop())
}

func register(t *testing.T, svc *service.AuthService) *domain.RegisterResponse {
	t.Helper()
	resp, err := svc.Register(context.Background(), &domain.RegisterRequest{
		FamilyName: "Silva",
		ParentName: "Maria",
		Email:      "maria@example.com",
		Password:   "senha-forte-123",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return resp
}

func TestAuth_RegisterLoginRefreshLogout(t *testing.T) {
	svc := newAuth()
	reg := register(t, svc)
	if reg.FamilyID == "" || reg.UserID == "" {
		t.Fatalf("expected family and user IDs, got %+v", reg)
	}

	login, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "Maria@Example.com",
		Password: "senha-forte-123",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.Role != domain.RoleParent || login.FamilyID != reg.FamilyID {
		t.Errorf("unexpected login response: %+v", login)
	}

	claims, err := svc.ValidateAccessToken(login.AccessToken)
	if err != nil {
		t.Fatalf("validate access token: %v", err)
	}
	if claims.Sub != reg.UserID || claims.FamilyID != reg.FamilyID || claims.Role != domain.RoleParent {
		t.Errorf("unexpected claims: %+v", claims)
	}

	// Refresh rotates: the old token dies with the exchange.
	refreshed, err := svc.Refresh(context.Background(), &domain.RefreshRequest{RefreshToken: login.RefreshToken})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Error("expected a rotated refresh token")
	}

	_, err = svc.Refresh(context.Background(), &domain.RefreshRequest{RefreshToken: login.RefreshToken})
	var unauthorized *domain.ErrUnauthorized
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected rotated-out token to be rejected, got %v", err)
	}

	// Logout kills every remaining session.
	if err := svc.Logout(context.Background(), reg.UserID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), &domain.RefreshRequest{RefreshToken: refreshed.RefreshToken}); !errors.As(err, &unauthorized) {
		t.Fatalf("expected refresh after logout to fail, got %v", err)
	}
}

func TestAuth_RegisterValidation(t *testing.T) {
	svc := newAuth()
	register(t, svc)

	_, err := svc.Register(context.Background(), &domain.RegisterRequest{
		FamilyName: "Outra",
		ParentName: "João",
		Email:      "maria@example.com",
		Password:   "outra-senha-123",
	})
	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}

	_, err = svc.Register(context.Background(), &domain.RegisterRequest{
		FamilyName: "Souza",
		ParentName: "Ana",
		Email:      "ana@example.com",
		Password:   "curta",
	})
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error for short password, got %v", err)
	}
}

func TestAuth_LoginRejectsBadCredentials(t *testing.T) {
	svc := newAuth()
	register(t, svc)

	var unauthorized *domain.ErrUnauthorized

	_, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "maria@example.com",
		Password: "senha-errada-000",
	})
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected ErrUnauthorized for wrong password, got %v", err)
	}

	_, err = svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "ninguem@example.com",
		Password: "tanto-faz-123",
	})
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown email, got %v", err)
	}
}

func TestAuth_ChildCredentialsMapToChildID(t *testing.T) {
	svc := newAuth()
	reg := register(t, svc)

	err := svc.CreateChildCredentials(context.Background(), reg.FamilyID, "child-1", "Pedro", "pedro@example.com", "senha-do-pedro")
	if err != nil {
		t.Fatalf("create child credentials: %v", err)
	}

	login, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "pedro@example.com",
		Password: "senha-do-pedro",
	})
	if err != nil {
		t.Fatalf("child login: %v", err)
	}
	if login.Role != domain.RoleChild {
		t.Errorf("expected child role, got %s", login.Role)
	}
	// The token subject is the child account itself.
	if login.UserID != "child-1" {
		t.Errorf("expected user ID child-1, got %s", login.UserID)
	}

	claims, err := svc.ValidateAccessToken(login.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Sub != "child-1" || claims.Role != domain.RoleChild {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestAuth_ValidateRejectsForeignToken(t *testing.T) {
	svc := newAuth()
	register(t, svc)

	other := service.NewAuthService(memory.NewAuthStore(), "other-secret", 15*time.Minute, 24*time.Hour, zap.NewNop())
	otherReg := register(t, other)
	_ = otherReg

	login, err := other.Login(context.Background(), &domain.LoginRequest{
		Email:    "maria@example.com",
		Password: "senha-forte-123",
	})
	if err != nil {
		t.Fatal(err)
	}

	var unauthorized *domain.ErrUnauthorized
	if _, err := svc.ValidateAccessToken(login.AccessToken); !errors.As(err, &unauthorized) {
		t.Fatalf("expected token signed with another secret to be rejected, got %v", err)
	}
	if _, err := svc.ValidateAccessToken("not-a-jwt"); !errors.As(err, &unauthorized) {
		t.Fatalf("expected malformed token to be rejected, got %v", err)
	}
}
