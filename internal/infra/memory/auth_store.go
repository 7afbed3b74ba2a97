package memory

import (
	"context"
	"sync"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/port"
)

// AuthStore is a thread-safe in-memory port.AuthStore.
type AuthStore struct {
	mu       sync.RWMutex
	families map[string]*domain.Family
	users    map[string]*domain.User
	byEmail  map[string]string // email → userID
	tokens   map[string]*port.RefreshToken
}

// NewAuthStore creates an empty in-memory auth store.
func NewAuthStore() *AuthStore {
	return &AuthStore{
		families: make(map[string]*domain.Family),
		users:    make(map[string]*domain.User),
		byEmail:  make(map[string]string),
		tokens:   make(map[string]*port.RefreshToken),
	}
}

var _ port.AuthStore = (*AuthStore)(nil)

func (s *AuthStore) CreateFamily(ctx context.Context, family *domain.Family) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := *family
	s.families[family.ID] = &f
	return nil
}

func (s *AuthStore) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := *user
	s.users[user.ID] = &u
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *AuthStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, nil
	}
	u := *s.users[id]
	return &u, nil
}

func (s *AuthStore) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *AuthStore) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (s *AuthStore) StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tokenHash] = &port.RefreshToken{UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt}
	return nil
}

func (s *AuthStore) GetRefreshToken(ctx context.Context, tokenHash string) (*port.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[tokenHash]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *AuthStore) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, tokenHash)
	return nil
}

func (s *AuthStore) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, t := range s.tokens {
		if t.UserID == userID {
			delete(s.tokens, hash)
		}
	}
	return nil
}
