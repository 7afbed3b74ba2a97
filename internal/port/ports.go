// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// Clock abstracts "today" so ticks and tests can pin dates.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock with the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Authorizer answers permission questions about a caller. Services take
// the caller's identity as input; token parsing stays in the handlers.
type Authorizer interface {
	// CanActOn reports whether the user may operate on the child's account.
	CanActOn(ctx context.Context, userID, childID string) (bool, error)
	// CanApprove reports whether the user may decide approval requests.
	CanApprove(ctx context.Context, userID string) (bool, error)
}

// Store defines all data operations for the allowance ledger.
// Implemented by the Supabase adapter and the in-memory store.
type Store interface {
	// Children
	CreateChild(ctx context.Context, child *domain.Child) error
	GetChild(ctx context.Context, childID string) (*domain.Child, error)
	ListChildren(ctx context.Context, familyID string) ([]domain.Child, error)

	// Ledger. AppendTransaction must atomically insert the transaction
	// and set the child's cached balance to tx.BalanceAfter.
	AppendTransaction(ctx context.Context, tx *domain.Transaction) error
	ListTransactions(ctx context.Context, childID string, filter domain.HistoryFilter) ([]domain.Transaction, error)
	// LastTransactionBefore returns the newest transaction dated strictly
	// before t, or nil when the ledger has none.
	LastTransactionBefore(ctx context.Context, childID string, t time.Time) (*domain.Transaction, error)

	// Goals
	CreateGoal(ctx context.Context, goal *domain.Goal) error
	GetGoal(ctx context.Context, goalID string) (*domain.Goal, error)
	ListGoals(ctx context.Context, childID string) ([]domain.Goal, error)
	UpdateGoal(ctx context.Context, goal *domain.Goal) error

	// Allowance configs
	UpsertAllowanceConfig(ctx context.Context, cfg *domain.AllowanceConfig) error
	GetAllowanceConfig(ctx context.Context, childID string) (*domain.AllowanceConfig, error)
	ListActiveAllowanceConfigs(ctx context.Context) ([]domain.AllowanceConfig, error)

	// Interest configs
	UpsertInterestConfig(ctx context.Context, cfg *domain.InterestConfig) error
	GetInterestConfig(ctx context.Context, childID string) (*domain.InterestConfig, error)
	ListActiveInterestConfigs(ctx context.Context) ([]domain.InterestConfig, error)

	// Approval requests
	CreateApprovalRequest(ctx context.Context, req *domain.ApprovalRequest) error
	GetApprovalRequest(ctx context.Context, requestID string) (*domain.ApprovalRequest, error)
	ListApprovalRequests(ctx context.Context, childID string, status domain.ApprovalStatus) ([]domain.ApprovalRequest, error)
	ListFamilyApprovalRequests(ctx context.Context, familyID string, status domain.ApprovalStatus) ([]domain.ApprovalRequest, error)
	UpdateApprovalRequest(ctx context.Context, req *domain.ApprovalRequest) error
}

// AuthStore defines data operations for users, families and sessions.
type AuthStore interface {
	CreateFamily(ctx context.Context, family *domain.Family) error
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, userID string) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error

	StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}

// RefreshToken is a stored (hashed) refresh token.
type RefreshToken struct {
	UserID    string
	TokenHash string
	ExpiresAt time.Time
}
