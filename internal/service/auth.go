// Package service — AuthService handles family registration, login and
// JWT token management for parents and children.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var authTracer = otel.Tracer("service/auth")

const (
	minPasswordLen = 8
	bcryptCost     = 12
)

// AuthService orchestrates authentication flows.
type AuthService struct {
	store      port.AuthStore
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *zap.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(store port.AuthStore, jwtSecret string, accessTTL, refreshTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:      store,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     logger,
	}
}

// ============================================================
// Register — POST /v1/auth/register
// ============================================================

// Register creates a family and its first parent account.
func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.RegisterResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Register")
	defer span.End()

	if req.FamilyName == "" {
		return nil, &domain.ErrValidation{Field: "familyName", Message: "nome da família é obrigatório"}
	}
	if req.ParentName == "" {
		return nil, &domain.ErrValidation{Field: "parentName", Message: "nome do responsável é obrigatório"}
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		return nil, &domain.ErrValidation{Field: "email", Message: "e-mail inválido"}
	}
	if len(req.Password) < minPasswordLen {
		return nil, &domain.ErrValidation{Field: "password", Message: fmt.Sprintf("senha deve ter pelo menos %d caracteres", minPasswordLen)}
	}

	existing, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if existing != nil {
		return nil, &domain.ErrConflict{Message: "e-mail já cadastrado"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	family := &domain.Family{
		ID:        uuid.New().String(),
		Name:      req.FamilyName,
		CreatedAt: now,
	}
	if err := s.store.CreateFamily(ctx, family); err != nil {
		return nil, fmt.Errorf("create family: %w", err)
	}

	parent := &domain.User{
		ID:           uuid.New().String(),
		FamilyID:     family.ID,
		Email:        email,
		Name:         req.ParentName,
		Role:         domain.RoleParent,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, parent); err != nil {
		return nil, fmt.Errorf("create parent user: %w", err)
	}

	s.logger.Info("family registered",
		zap.String("family_id", family.ID),
		zap.String("user_id", parent.ID),
	)

	return &domain.RegisterResponse{
		FamilyID: family.ID,
		UserID:   parent.ID,
		Message:  "Família cadastrada com sucesso",
	}, nil
}

// ============================================================
// CreateChildCredentials — optional child login
// ============================================================

// CreateChildCredentials lets a child log into the app with their own
// account. The user ID equals the child ID so the token subject maps
// directly onto the child record.
func (s *AuthService) CreateChildCredentials(ctx context.Context, familyID, childID, name, email, password string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.CreateChildCredentials")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return &domain.ErrValidation{Field: "email", Message: "e-mail inválido"}
	}
	if len(password) < minPasswordLen {
		return &domain.ErrValidation{Field: "password", Message: fmt.Sprintf("senha deve ter pelo menos %d caracteres", minPasswordLen)}
	}

	existing, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("check existing user: %w", err)
	}
	if existing != nil {
		return &domain.ErrConflict{Message: "e-mail já cadastrado"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           childID,
		FamilyID:     familyID,
		Email:        email,
		Name:         name,
		Role:         domain.RoleChild,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create child user: %w", err)
	}

	s.logger.Info("child credentials created",
		zap.String("family_id", familyID),
		zap.String("child_id", childID),
	)
	return nil
}

// ============================================================
// Login — POST /v1/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, &domain.ErrUnauthorized{Message: "Credenciais inválidas"}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("login: failed password attempt", zap.String("user_id", user.ID))
		return nil, &domain.ErrUnauthorized{Message: "Credenciais inválidas"}
	}

	_ = s.store.UpdateLastLogin(ctx, user.ID, time.Now())

	accessToken, err := s.signAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, refreshHash, err := s.generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.store.StoreRefreshToken(ctx, user.ID, refreshHash, time.Now().Add(s.refreshTTL)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	s.logger.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
	)

	return &domain.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.accessTTL.Seconds()),
		UserID:       user.ID,
		FamilyID:     user.FamilyID,
		Role:         user.Role,
	}, nil
}
