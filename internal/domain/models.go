// Package domain defines the core business entities for the Mesada API.
// These models are independent of external services and represent the
// canonical data structures used throughout the service.
package domain

import "time"

// ============================================================
// Family / Users
// ============================================================

// Role identifies what a user is allowed to do within a family.
type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

// Family groups parents and children under one household.
type Family struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User represents an authenticated family member.
type User struct {
	ID           string     `json:"id"`
	FamilyID     string     `json:"family_id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         Role       `json:"role"`
	PasswordHash string     `json:"-"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ============================================================
// Children
// ============================================================

// Child is a kid's spending-money account. Balance is a denormalized
// cache of the latest transaction's balance_after; the ledger is the
// source of truth.
type Child struct {
	ID        string    `json:"id"`
	FamilyID  string    `json:"family_id"`
	Name      string    `json:"name"`
	Balance   float64   `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

// ============================================================
// Transactions (the ledger)
// ============================================================

// TransactionKind classifies a money movement.
type TransactionKind string

const (
	KindAllowance      TransactionKind = "allowance"
	KindSpending       TransactionKind = "spending"
	KindInterest       TransactionKind = "interest"
	KindGoalDeposit    TransactionKind = "goal_deposit"
	KindGoalWithdrawal TransactionKind = "goal_withdrawal"
	KindLoan           TransactionKind = "loan"
	KindLoanPayment    TransactionKind = "loan_payment"
	KindBonus          TransactionKind = "bonus"
)

// DebitKinds are the kinds that remove money from the spendable balance.
// Their amounts are stored negative and may never drive the balance
// below zero.
var DebitKinds = map[TransactionKind]bool{
	KindSpending:    true,
	KindGoalDeposit: true,
	KindLoanPayment: true,
}

// CreditKinds add money to the spendable balance.
var CreditKinds = map[TransactionKind]bool{
	KindAllowance:      true,
	KindInterest:       true,
	KindGoalWithdrawal: true,
	KindLoan:           true,
	KindBonus:          true,
}

// Transaction is an immutable ledger record. BalanceAfter is the running
// balance immediately after this transaction; for a child's transactions
// ordered by date (ties broken by insertion order) it always equals the
// previous BalanceAfter plus Amount.
type Transaction struct {
	ID           string          `json:"id"`
	ChildID      string          `json:"child_id"`
	Amount       float64         `json:"amount"`
	Kind         TransactionKind `json:"kind"`
	Category     string          `json:"category"`
	Description  string          `json:"description,omitempty"`
	BalanceAfter float64         `json:"balance_after"`
	Date         time.Time       `json:"date"`
}

// HistoryFilter narrows a ledger history read. Zero values mean no filter.
type HistoryFilter struct {
	From     *time.Time
	To       *time.Time
	Kinds    []TransactionKind
	Category string
	Limit    int
}

// Matches reports whether a transaction passes the filter. Limit is
// applied by the reader, not here.
func (f HistoryFilter) Matches(tx *Transaction) bool {
	if f.From != nil && tx.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && tx.Date.After(*f.To) {
		return false
	}
	if f.Category != "" && tx.Category != f.Category {
		return false
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if tx.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ============================================================
// Goals
// ============================================================

// FulfillmentStatus tracks the parent-approval state of a completed goal.
type FulfillmentStatus string

const (
	FulfillmentNone     FulfillmentStatus = "none"
	FulfillmentPending  FulfillmentStatus = "pending"
	FulfillmentApproved FulfillmentStatus = "approved"
	FulfillmentRejected FulfillmentStatus = "rejected"
)

// Goal is a savings sub-target tied to a child. CurrentAmount only moves
// through goal_deposit / goal_withdrawal ledger transactions.
type Goal struct {
	ID                string            `json:"id"`
	ChildID           string            `json:"child_id"`
	Name              string            `json:"name"`
	TargetAmount      float64           `json:"target_amount"`
	CurrentAmount     float64           `json:"current_amount"`
	Category          string            `json:"category,omitempty"`
	IsCompleted       bool              `json:"is_completed"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Remaining returns how much is still missing to reach the target.
func (g *Goal) Remaining() float64 {
	r := g.TargetAmount - g.CurrentAmount
	if r < 0 {
		return 0
	}
	return r
}

// ============================================================
// Allowance
// ============================================================

// AllowanceFrequency is how often the allowance is disbursed.
type AllowanceFrequency string

const (
	FrequencyDaily   AllowanceFrequency = "daily"
	FrequencyWeekly  AllowanceFrequency = "weekly"
	FrequencyMonthly AllowanceFrequency = "monthly"
)

// AllowanceConfig holds a child's recurring allowance settings. One per
// child; NextPaymentDate is advanced only after a successful disbursement.
type AllowanceConfig struct {
	ChildID         string             `json:"child_id"`
	Amount          float64            `json:"amount"`
	Frequency       AllowanceFrequency `json:"frequency"`
	DayOfWeek       int                `json:"day_of_week"`  // 0=Sunday..6=Saturday, weekly only
	DayOfMonth      int                `json:"day_of_month"` // 1-31, monthly only
	NextPaymentDate time.Time          `json:"next_payment_date"`
	IsActive        bool               `json:"is_active"`
}

// ============================================================
// Interest
// ============================================================

// InterestConfig holds a child's monthly savings-interest settings.
// LastAppliedDate prevents double application within the same month.
type InterestConfig struct {
	ChildID         string     `json:"child_id"`
	MonthlyRate     float64    `json:"monthly_rate"`    // 0..0.10
	MinimumBalance  float64    `json:"minimum_balance"` // eligibility floor over the trailing window
	ApplicationDay  int        `json:"application_day"` // 1-31, clamped to month length
	IsActive        bool       `json:"is_active"`
	LastAppliedDate *time.Time `json:"last_applied_date,omitempty"`
}

// ============================================================
// Approvals
// ============================================================

// ApprovalKind is what kind of money movement is awaiting a decision.
type ApprovalKind string

const (
	ApprovalPurchase        ApprovalKind = "purchase"
	ApprovalLoan            ApprovalKind = "loan"
	ApprovalGoalFulfillment ApprovalKind = "goal_fulfillment"
)

// ApprovalStatus is the request's state. Pending is the only non-terminal
// state; approved and rejected are terminal.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

// ApprovalRequest is a pending money movement that must be decided by a
// parent before it affects the ledger. Status transitions exactly once.
type ApprovalRequest struct {
	ID          string         `json:"id"`
	ChildID     string         `json:"child_id"`
	FamilyID    string         `json:"family_id"`
	Kind        ApprovalKind   `json:"kind"`
	Amount      float64        `json:"amount"`
	Description string         `json:"description,omitempty"`
	GoalID      string         `json:"goal_id,omitempty"` // set for goal_fulfillment
	Status      ApprovalStatus `json:"status"`
	RequestedAt time.Time      `json:"requested_at"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
	DecidedBy   string         `json:"decided_by,omitempty"`
}

// ============================================================
// API Request / Response types
// ============================================================

// RegisterRequest is the body for POST /v1/auth/register.
type RegisterRequest struct {
	FamilyName string `json:"familyName"`
	ParentName string `json:"parentName"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// RegisterResponse is the body for 201 from POST /v1/auth/register.
type RegisterResponse struct {
	FamilyID string `json:"familyId"`
	UserID   string `json:"userId"`
	Message  string `json:"message"`
}

// LoginRequest is the body for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the body for 200 from POST /v1/auth/login.
type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	UserID       string `json:"userId"`
	FamilyID     string `json:"familyId"`
	Role         Role   `json:"role"`
}

// RefreshRequest is the body for POST /v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// CreateChildRequest is the body for POST /v1/children.
type CreateChildRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`    // optional child login
	Password string `json:"password,omitempty"` // required when email is set
}

// SpendRequest is the body for POST /v1/children/{childId}/spend.
type SpendRequest struct {
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description,omitempty"`
}

// SpendResponse reports whether the spend posted directly or was captured
// for approval. Exactly one of Transaction / Request is set.
type SpendResponse struct {
	Status      string           `json:"status"` // completed, pending_approval
	Transaction *Transaction     `json:"transaction,omitempty"`
	Request     *ApprovalRequest `json:"request,omitempty"`
	NewBalance  float64          `json:"newBalance,omitempty"`
}

// BonusRequest is the body for POST /v1/children/{childId}/bonus.
type BonusRequest struct {
	Amount      float64 `json:"amount"`
	Category    string  `json:"category,omitempty"`
	Description string  `json:"description,omitempty"`
}

// LoanRepayRequest is the body for POST /v1/children/{childId}/loans/repay.
type LoanRepayRequest struct {
	Amount float64 `json:"amount"`
}

// CreateGoalRequest is the body for POST /v1/children/{childId}/goals.
type CreateGoalRequest struct {
	Name         string  `json:"name"`
	TargetAmount float64 `json:"targetAmount"`
	Category     string  `json:"category,omitempty"`
}

// ContributeRequest is the body for POST /v1/goals/{goalId}/contribute.
type ContributeRequest struct {
	Amount float64 `json:"amount"`
}

// ContributeResponse carries the updated goal plus the ledger debit that
// funded it. Moved may be less than the requested amount when the goal
// caps at its target.
type ContributeResponse struct {
	Goal        *Goal        `json:"goal"`
	Transaction *Transaction `json:"transaction"`
	Moved       float64      `json:"moved"`
}

// WithdrawRequest is the body for POST /v1/goals/{goalId}/withdraw.
type WithdrawRequest struct {
	Amount float64 `json:"amount"`
}

// LoanRequestBody is the body for POST /v1/approvals.
type LoanRequestBody struct {
	ChildID     string  `json:"childId"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description,omitempty"`
}

// DecideRequest is the body for POST /v1/approvals/{requestId}/decide.
type DecideRequest struct {
	Approve bool `json:"approve"`
}

// AllowanceConfigRequest is the body for PUT /v1/children/{childId}/allowance.
type AllowanceConfigRequest struct {
	Amount     float64            `json:"amount"`
	Frequency  AllowanceFrequency `json:"frequency"`
	DayOfWeek  int                `json:"dayOfWeek,omitempty"`
	DayOfMonth int                `json:"dayOfMonth,omitempty"`
	IsActive   bool               `json:"isActive"`
}

// InterestConfigRequest is the body for PUT /v1/children/{childId}/interest.
type InterestConfigRequest struct {
	MonthlyRate    float64 `json:"monthlyRate"`
	MinimumBalance float64 `json:"minimumBalance"`
	ApplicationDay int     `json:"applicationDay,omitempty"`
	IsActive       bool    `json:"isActive"`
}

// TickRequest is the body for POST /v1/admin/tick.
type TickRequest struct {
	Date string `json:"date,omitempty"` // YYYY-MM-DD, defaults to today
}

// TickSummary reports what a scheduler pass actually did.
type TickSummary struct {
	Date             string `json:"date"`
	Disbursements    int    `json:"disbursements"`
	InterestPostings int    `json:"interestPostings"`
	Errors           int    `json:"errors"`
}

// BalanceResponse is returned by GET /v1/children/{childId}/balance.
type BalanceResponse struct {
	ChildID string  `json:"child_id"`
	Balance float64 `json:"balance"`
}

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// LedgerMetrics is returned by GET /v1/metrics/ledger.
type LedgerMetrics struct {
	TotalAppends      int64   `json:"totalAppends"`
	Disbursements     int64   `json:"disbursements"`
	InterestPostings  int64   `json:"interestPostings"`
	ApprovalDecisions int64   `json:"approvalDecisions"`
	RejectedDebits    int64   `json:"rejectedDebits"`
	ErrorRate         float64 `json:"errorRate"`
	Period            string  `json:"period"`
}
