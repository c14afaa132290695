package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway is the payment-provider contract the orchestrator depends on.
// Metadata linking back to internal ids is mandatory on every create call;
// webhook handlers locate local rows via that metadata, never by guessing
// from amounts.
type Gateway interface {
	// CreateCharge opens a one-time charge for the full order amount.
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	// CreateRecurringSchedule opens a recurring charge schedule backing an
	// installment plan.
	CreateRecurringSchedule(ctx context.Context, req ScheduleRequest) (*ScheduleResult, error)
	// CancelSchedule stops a recurring schedule at the provider.
	CancelSchedule(ctx context.Context, scheduleRef string) error
	// Refund returns part or all of a settled charge.
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	// ChargeStatus queries the provider's current view of a charge. Used by
	// the stale-payment sweep; webhooks remain authoritative for transitions.
	ChargeStatus(ctx context.Context, chargeRef string) (ChargeState, error)
}

// ChargeState is the provider's current view of a charge.
type ChargeState string

const (
	ChargeStatePending ChargeState = "pending"
	ChargeStateSettled ChargeState = "settled"
	ChargeStateFailed  ChargeState = "failed"
	// ChargeStateUnknown means the provider has no record of the charge,
	// typically because the customer never opened the payment page.
	ChargeStateUnknown ChargeState = "unknown"
)

// ChargeRequest describes a one-time charge.
type ChargeRequest struct {
	OrderRef         string // internal order uuid, carried as metadata
	Amount           decimal.Decimal
	Currency         string
	PaymentMethodRef string
	CustomerName     string
	CustomerEmail    string
	Description      string
}

// ChargeResult is the synchronous half of a charge. Status here is advisory;
// the webhook is authoritative.
type ChargeResult struct {
	ChargeRef   string
	RedirectURL string
	Token       string
}

// ScheduleRequest describes a recurring charge schedule.
type ScheduleRequest struct {
	PlanRef          string // internal plan reference, carried as metadata
	PerCycleAmount   decimal.Decimal
	Currency         string
	IntervalDays     int
	Cycles           int
	StartDate        time.Time
	PaymentMethodRef string
	CustomerName     string
	CustomerEmail    string
}

// ScheduleResult identifies the provider-side schedule.
type ScheduleResult struct {
	ScheduleRef string
}

// RefundRequest targets a settled charge.
type RefundRequest struct {
	ChargeRef string
	Amount    decimal.Decimal
	Reason    string
}

// RefundResult is the provider's synchronous refund acknowledgment.
type RefundResult struct {
	RefundRef string
	Amount    decimal.Decimal
}

// EventType names the normalized webhook events the reconciler consumes.
type EventType string

const (
	EventChargeSucceeded       EventType = "charge.succeeded"
	EventChargeFailed          EventType = "charge.failed"
	EventInvoicePaid           EventType = "recurring.invoice.paid"
	EventInvoiceFailed         EventType = "recurring.invoice.failed"
	EventSubscriptionCancelled EventType = "subscription.cancelled"
	EventSubscriptionUnpaid    EventType = "subscription.unpaid"
	EventChargeRefunded        EventType = "charge.refunded"
	EventInvoiceUpcoming       EventType = "invoice.upcoming"
	EventUnknown               EventType = ""
)

// Event is a provider notification normalized at the boundary. Exactly one
// of OrderRef/PlanRef identifies the local aggregate, recovered from the
// metadata the orchestrator attached at create time.
type Event struct {
	ID            string // provider event id, idempotency key
	Type          EventType
	OrderRef      string
	PlanRef       string
	ChargeRef     string
	ScheduleRef   string
	Cycle         int // installment number when the provider reports it; 0 = next pending
	Amount        decimal.Decimal
	RefundAmount  decimal.Decimal
	FailureReason string
	OccurredAt    time.Time
}
