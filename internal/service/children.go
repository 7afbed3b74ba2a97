// Package service — ChildService manages child account records.
package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var childTracer = otel.Tracer("service/children")

// ChildService creates and reads child accounts.
type ChildService struct {
	store  port.Store
	auth   *AuthService
	clock  port.Clock
	logger *zap.Logger
}

// NewChildService creates a new child service.
func NewChildService(store port.Store, auth *AuthService, clock port.Clock, logger *zap.Logger) *ChildService {
	return &ChildService{store: store, auth: auth, clock: clock, logger: logger}
}

// Create registers a child account with a zero balance. When email and
// password are given, login credentials are created alongside it.
func (s *ChildService) Create(ctx context.Context, familyID string, req *domain.CreateChildRequest) (*domain.Child, error) {
	ctx, span := childTracer.Start(ctx, "ChildService.Create")
	defer span.End()
	span.SetAttributes(attribute.String("family.id", familyID))

	if req.Name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "nome é obrigatório"}
	}
	if req.Email != "" && req.Password == "" {
		return nil, &domain.ErrValidation{Field: "password", Message: "senha é obrigatória quando e-mail é informado"}
	}

	child := &domain.Child{
		ID:        uuid.New().String(),
		FamilyID:  familyID,
		Name:      req.Name,
		Balance:   0,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.CreateChild(ctx, child); err != nil {
		return nil, fmt.Errorf("create child: %w", err)
	}

	if req.Email != "" {
		if err := s.auth.CreateChildCredentials(ctx, familyID, child.ID, child.Name, req.Email, req.Password); err != nil {
			return nil, err
		}
	}

	s.logger.Info("child created",
		zap.String("family_id", familyID),
		zap.String("child_id", child.ID),
	)
	return child, nil
}

// Get returns one child account.
func (s *ChildService) Get(ctx context.Context, childID string) (*domain.Child, error) {
	ctx, span := childTracer.Start(ctx, "ChildService.Get")
	defer span.End()

	child, err := s.store.GetChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	if child == nil {
		return nil, &domain.ErrNotFound{Resource: "child", ID: childID}
	}
	return child, nil
}

// List returns all children in a family.
func (s *ChildService) List(ctx context.Context, familyID string) ([]domain.Child, error) {
	ctx, span := childTracer.Start(ctx, "ChildService.List")
	defer span.End()

	return s.store.ListChildren(ctx, familyID)
}
