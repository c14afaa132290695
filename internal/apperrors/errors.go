package apperrors

import "fmt"

// ValidationError reports a user-fixable input problem.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError reports a missing referenced entity.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ForbiddenError reports an ownership or role violation.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string { return e.Reason }

// ConflictError reports a state conflict, e.g. a duplicate enrollment or an
// order that is not in a cancellable status.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// CapacityExceededError reports a full class. The whole calculation is
// rejected when any line hits this, never a partial order.
type CapacityExceededError struct {
	ClassID   uint
	ClassName string
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("class %q (id %d) is at capacity", e.ClassName, e.ClassID)
}

// InvalidScheduleError reports an installment-policy violation. Constraint
// names the specific rule that failed.
type InvalidScheduleError struct {
	Constraint string
}

func (e *InvalidScheduleError) Error() string {
	return "invalid installment schedule: " + e.Constraint
}

// GatewayError wraps a payment-provider failure. Retryable separates
// transient transport problems from terminal declines; callers must not
// mutate local state based on a retryable gateway error because the
// subsequent webhook is the source of truth.
type GatewayError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *GatewayError) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("gateway %s failed (%s): %v", e.Op, kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }
