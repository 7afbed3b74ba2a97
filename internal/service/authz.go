package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/port"
)

// FamilyAuthorizer implements port.Authorizer with family-scoped rules:
// parents act on any child of their family, children only on themselves,
// and only parents decide approval requests.
type FamilyAuthorizer struct {
	users port.AuthStore
	store port.Store
}

// NewFamilyAuthorizer creates the default authorizer.
func NewFamilyAuthorizer(users port.AuthStore, store port.Store) *FamilyAuthorizer {
	return &FamilyAuthorizer{users: users, store: store}
}

// CanActOn reports whether the user may operate on the child's account.
func (a *FamilyAuthorizer) CanActOn(ctx context.Context, userID, childID string) (bool, error) {
	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return false, nil
	}
	if user.Role == domain.RoleChild {
		return userID == childID, nil
	}

	child, err := a.store.GetChild(ctx, childID)
	if err != nil {
		return false, fmt.Errorf("get child: %w", err)
	}
	if child == nil {
		return false, nil
	}
	return child.FamilyID == user.FamilyID, nil
}

// CanApprove reports whether the user may decide approval requests.
func (a *FamilyAuthorizer) CanApprove(ctx context.Context, userID string) (bool, error) {
	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("get user: %w", err)
	}
	return user != nil && user.Role == domain.RoleParent, nil
}
