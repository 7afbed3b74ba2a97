package domain

import "fmt"

// Error types for consistent error handling across the service.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrInvalidAmount indicates a non-positive or malformed monetary amount.
type ErrInvalidAmount struct {
	Amount float64
	Reason string
}

func (e *ErrInvalidAmount) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid amount %.2f: %s", e.Amount, e.Reason)
	}
	return fmt.Sprintf("invalid amount: %.2f", e.Amount)
}

// ErrInsufficientBalance indicates a debit would drive the balance below zero.
type ErrInsufficientBalance struct {
	Available float64
	Required  float64
}

func (e *ErrInsufficientBalance) Error() string {
	return fmt.Sprintf("insufficient balance: available=%.2f required=%.2f", e.Available, e.Required)
}

// ErrGoalNotEligible indicates a goal operation that its state does not allow.
type ErrGoalNotEligible struct {
	GoalID string
	Reason string
}

func (e *ErrGoalNotEligible) Error() string {
	return fmt.Sprintf("goal %s not eligible: %s", e.GoalID, e.Reason)
}

// ErrAlreadyDecided indicates a decision on a terminal approval request.
type ErrAlreadyDecided struct {
	RequestID string
	Status    ApprovalStatus
}

func (e *ErrAlreadyDecided) Error() string {
	return fmt.Sprintf("request %s already decided: %s", e.RequestID, e.Status)
}

// ErrSchedulingMisconfigured indicates an allowance or interest config
// whose fields do not form a valid schedule.
type ErrSchedulingMisconfigured struct {
	ChildID string
	Reason  string
}

func (e *ErrSchedulingMisconfigured) Error() string {
	return fmt.Sprintf("scheduling misconfigured for child %s: %s", e.ChildID, e.Reason)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrForbidden indicates the user lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates a resource already exists (e.g. duplicate email).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}
