// Package memory provides in-memory implementations of the persistence
// ports. Used in tests and for running the service without Supabase.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/boddenberg/mesada-api-go/internal/port"
)

// Store is a thread-safe in-memory port.Store.
type Store struct {
	mu           sync.RWMutex
	children     map[string]*domain.Child
	transactions map[string][]domain.Transaction // childID → insertion order
	goals        map[string]*domain.Goal
	allowances   map[string]*domain.AllowanceConfig
	interests    map[string]*domain.InterestConfig
	approvals    map[string]*domain.ApprovalRequest
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		children:     make(map[string]*domain.Child),
		transactions: make(map[string][]domain.Transaction),
		goals:        make(map[string]*domain.Goal),
		allowances:   make(map[string]*domain.AllowanceConfig),
		interests:    make(map[string]*domain.InterestConfig),
		approvals:    make(map[string]*domain.ApprovalRequest),
	}
}

var _ port.Store = (*Store)(nil)

// ============================================================
// Children
// ============================================================

func (s *Store) CreateChild(ctx context.Context, child *domain.Child) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *child
	s.children[child.ID] = &c
	return nil
}

func (s *Store) GetChild(ctx context.Context, childID string) (*domain.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.children[childID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListChildren(ctx context.Context, familyID string) ([]domain.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Child{}
	for _, c := range s.children {
		if c.FamilyID == familyID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ============================================================
// Ledger
// ============================================================

// AppendTransaction inserts the transaction and updates the child's
// cached balance under one lock, so the two never diverge.
func (s *Store) AppendTransaction(ctx context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	child, ok := s.children[tx.ChildID]
	if !ok {
		return &domain.ErrNotFound{Resource: "child", ID: tx.ChildID}
	}
	s.transactions[tx.ChildID] = append(s.transactions[tx.ChildID], *tx)
	child.Balance = tx.BalanceAfter
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, childID string, filter domain.HistoryFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.transactions[childID]
	out := []domain.Transaction{}
	// Walk newest-first; insertion order breaks date ties.
	for i := len(all) - 1; i >= 0; i-- {
		tx := all[i]
		if !filter.Matches(&tx) {
			continue
		}
		out = append(out, tx)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *Store) LastTransactionBefore(ctx context.Context, childID string, t time.Time) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.transactions[childID]
	var best *domain.Transaction
	for i := range all {
		tx := all[i]
		if !tx.Date.Before(t) {
			continue
		}
		if best == nil || tx.Date.After(best.Date) || tx.Date.Equal(best.Date) {
			cp := tx
			best = &cp
		}
	}
	return best, nil
}

// ============================================================
// Goals
// ============================================================

func (s *Store) CreateGoal(ctx context.Context, goal *domain.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := *goal
	s.goals[goal.ID] = &g
	return nil
}

func (s *Store) GetGoal(ctx context.Context, goalID string) (*domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[goalID]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (s *Store) ListGoals(ctx context.Context, childID string) ([]domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Goal{}
	for _, g := range s.goals {
		if g.ChildID == childID {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateGoal(ctx context.Context, goal *domain.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := *goal
	s.goals[goal.ID] = &g
	return nil
}

// ============================================================
// Allowance configs
// ============================================================

func (s *Store) UpsertAllowanceConfig(ctx context.Context, cfg *domain.AllowanceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cfg
	s.allowances[cfg.ChildID] = &c
	return nil
}

func (s *Store) GetAllowanceConfig(ctx context.Context, childID string) (*domain.AllowanceConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.allowances[childID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListActiveAllowanceConfigs(ctx context.Context) ([]domain.AllowanceConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.AllowanceConfig{}
	for _, c := range s.allowances {
		if c.IsActive {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChildID < out[j].ChildID })
	return out, nil
}

// ============================================================
// Interest configs
// ============================================================

func (s *Store) UpsertInterestConfig(ctx context.Context, cfg *domain.InterestConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cfg
	s.interests[cfg.ChildID] = &c
	return nil
}

func (s *Store) GetInterestConfig(ctx context.Context, childID string) (*domain.InterestConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.interests[childID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListActiveInterestConfigs(ctx context.Context) ([]domain.InterestConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.InterestConfig{}
	for _, c := range s.interests {
		if c.IsActive {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChildID < out[j].ChildID })
	return out, nil
}

// ============================================================
// Approval requests
// ============================================================

func (s *Store) CreateApprovalRequest(ctx context.Context, req *domain.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *req
	s.approvals[req.ID] = &r
	return nil
}

func (s *Store) GetApprovalRequest(ctx context.Context, requestID string) (*domain.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.approvals[requestID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *Store) ListApprovalRequests(ctx context.Context, childID string, status domain.ApprovalStatus) ([]domain.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.ApprovalRequest{}
	for _, r := range s.approvals {
		if r.ChildID != childID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

func (s *Store) UpdateApprovalRequest(ctx context.Context, req *domain.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *req
	s.approvals[req.ID] = &r
	return nil
}

func (s *Store) ListFamilyApprovalRequests(ctx context.Context, familyID string, status domain.ApprovalStatus) ([]domain.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.ApprovalRequest{}
	for _, r := range s.approvals {
		if r.FamilyID != familyID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}
