package gateway

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"

	"sportsreg_app/internal/apperrors"
)

// MidtransGateway implements Gateway on Midtrans: Snap for one-time charges,
// the subscription API for recurring schedules. Keys are injected at
// startup, never read from the environment here.
type MidtransGateway struct {
	snapClient snap.Client
	coreClient coreapi.Client
	serverKey  string
}

var _ Gateway = (*MidtransGateway)(nil)

// NewMidtransGateway builds the Snap and Core API clients.
func NewMidtransGateway(serverKey, clientKey string, production bool) *MidtransGateway {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}

	var s snap.Client
	s.New(serverKey, env)

	var c coreapi.Client
	c.New(serverKey, env)

	midtrans.ClientKey = clientKey

	return &MidtransGateway{
		snapClient: s,
		coreClient: c,
		serverKey:  serverKey,
	}
}

// CreateCharge opens a Snap transaction for the order total. Amounts are
// sent in minor units. The internal order ref rides along as metadata and in
// the generated transaction order id.
func (g *MidtransGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	chargeRef := fmt.Sprintf("chg-%s-%d", req.OrderRef, time.Now().Unix())

	param := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  chargeRef,
			GrossAmt: toMinorUnits(req.Amount),
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.CustomerName,
			Email: req.CustomerEmail,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    req.OrderRef,
				Name:  req.Description,
				Price: toMinorUnits(req.Amount),
				Qty:   1,
			},
		},
		Metadata: map[string]string{"order_ref": req.OrderRef},
	}

	resp, merr := g.snapClient.CreateTransaction(param)
	if merr != nil {
		return nil, wrapMidtransError("create charge", merr)
	}

	return &ChargeResult{
		ChargeRef:   chargeRef,
		RedirectURL: resp.RedirectURL,
		Token:       resp.Token,
	}, nil
}

// CreateRecurringSchedule opens a Midtrans subscription charging the
// per-cycle amount every IntervalDays for Cycles cycles.
func (g *MidtransGateway) CreateRecurringSchedule(ctx context.Context, req ScheduleRequest) (*ScheduleResult, error) {
	sub := &coreapi.SubscriptionReq{
		Name:        "plan-" + req.PlanRef,
		Amount:      toMinorUnits(req.PerCycleAmount),
		Currency:    req.Currency,
		PaymentType: coreapi.PaymentTypeCreditCard,
		Token:       req.PaymentMethodRef,
		Schedule: coreapi.ScheduleDetails{
			Interval:     req.IntervalDays,
			IntervalUnit: "day",
			MaxInterval:  req.Cycles,
			StartTime:    req.StartDate.Format("2006-01-02 15:04:05 -0700"),
		},
		Metadata: map[string]string{"plan_ref": req.PlanRef},
		CustomerDetails: &midtrans.CustomerDetails{
			FName: req.CustomerName,
			Email: req.CustomerEmail,
		},
	}

	resp, merr := g.coreClient.CreateSubscription(sub)
	if merr != nil {
		return nil, wrapMidtransError("create recurring schedule", merr)
	}

	return &ScheduleResult{ScheduleRef: resp.ID}, nil
}

// CancelSchedule disables the provider-side subscription.
func (g *MidtransGateway) CancelSchedule(ctx context.Context, scheduleRef string) error {
	_, merr := g.coreClient.DisableSubscription(scheduleRef)
	if merr != nil {
		return wrapMidtransError("cancel schedule", merr)
	}
	return nil
}

// Refund refunds part or all of a settled charge.
func (g *MidtransGateway) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	refundKey := fmt.Sprintf("rf-%s-%d", req.ChargeRef, time.Now().Unix())

	_, merr := g.coreClient.RefundTransaction(req.ChargeRef, &coreapi.RefundReq{
		RefundKey: refundKey,
		Amount:    toMinorUnits(req.Amount),
		Reason:    req.Reason,
	})
	if merr != nil {
		return nil, wrapMidtransError("refund", merr)
	}

	return &RefundResult{RefundRef: refundKey, Amount: req.Amount}, nil
}

// ChargeStatus looks up the transaction state at Midtrans. A 404 means the
// transaction was never attempted; Snap order ids only materialize once the
// customer opens the payment page.
func (g *MidtransGateway) ChargeStatus(ctx context.Context, chargeRef string) (ChargeState, error) {
	resp, merr := g.coreClient.CheckTransaction(chargeRef)
	if merr != nil {
		if merr.StatusCode == 404 {
			return ChargeStateUnknown, nil
		}
		return ChargeStateUnknown, wrapMidtransError("check charge status", merr)
	}

	switch resp.TransactionStatus {
	case "capture", "settlement":
		return ChargeStateSettled, nil
	case "pending", "authorize":
		return ChargeStatePending, nil
	case "deny", "expire", "cancel", "failure":
		return ChargeStateFailed, nil
	default:
		return ChargeStateUnknown, nil
	}
}

// VerifySignature checks the notification signature:
// SHA512(order_id + status_code + gross_amount + server_key).
func (g *MidtransGateway) VerifySignature(orderID, statusCode, grossAmount, signatureKey string) bool {
	h := sha512.Sum512([]byte(orderID + statusCode + grossAmount + g.serverKey))
	return hex.EncodeToString(h[:]) == signatureKey
}

// Notification is the shape of a Midtrans HTTP notification, limited to the
// fields reconciliation needs.
type Notification struct {
	TransactionID      string            `json:"transaction_id"`
	OrderID            string            `json:"order_id"`
	TransactionStatus  string            `json:"transaction_status"`
	FraudStatus        string            `json:"fraud_status"`
	StatusCode         string            `json:"status_code"`
	GrossAmount        string            `json:"gross_amount"`
	RefundAmount       string            `json:"refund_amount"`
	SignatureKey       string            `json:"signature_key"`
	PaymentType        string            `json:"payment_type"`
	SubscriptionID     string            `json:"subscription_id"`
	SubscriptionStatus string            `json:"subscription_status"`
	StatusMessage      string            `json:"status_message"`
	Metadata           map[string]string `json:"metadata"`
	TransactionTime    string            `json:"transaction_time"`
}

// ParseNotification normalizes a raw Midtrans notification into an Event.
// The caller verifies the signature first. Unknown statuses come back as
// EventUnknown; the reconciler logs and acknowledges those.
func (g *MidtransGateway) ParseNotification(raw []byte) (*Event, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, &apperrors.ValidationError{Field: "payload", Reason: "invalid notification JSON"}
	}

	ev := &Event{
		ID:          n.TransactionID + ":" + n.TransactionStatus,
		ChargeRef:   n.OrderID,
		ScheduleRef: n.SubscriptionID,
		OrderRef:    n.Metadata["order_ref"],
		PlanRef:     n.Metadata["plan_ref"],
		OccurredAt:  parseTransactionTime(n.TransactionTime),
	}
	if amt, err := decimal.NewFromString(n.GrossAmount); err == nil {
		ev.Amount = fromMinorUnits(amt)
	}
	if amt, err := decimal.NewFromString(n.RefundAmount); err == nil {
		ev.RefundAmount = fromMinorUnits(amt)
	}

	recurring := ev.PlanRef != "" || n.SubscriptionID != ""

	switch n.TransactionStatus {
	case "capture":
		if n.FraudStatus == "challenge" {
			// Held for manual review; nothing to apply yet.
			ev.Type = EventUnknown
			return ev, nil
		}
		fallthrough
	case "settlement":
		if recurring {
			ev.Type = EventInvoicePaid
		} else {
			ev.Type = EventChargeSucceeded
		}
	case "deny", "expire", "cancel", "failure":
		if recurring {
			ev.Type = EventInvoiceFailed
		} else {
			ev.Type = EventChargeFailed
		}
		ev.FailureReason = n.StatusMessage
		if ev.FailureReason == "" {
			ev.FailureReason = n.TransactionStatus
		}
	case "refund", "partial_refund":
		ev.Type = EventChargeRefunded
	case "":
		// Subscription lifecycle notifications carry no transaction status.
		switch n.SubscriptionStatus {
		case "inactive", "cancelled":
			ev.Type = EventSubscriptionCancelled
			ev.ID = n.SubscriptionID + ":" + n.SubscriptionStatus
		case "unpaid":
			ev.Type = EventSubscriptionUnpaid
			ev.ID = n.SubscriptionID + ":" + n.SubscriptionStatus
		default:
			ev.Type = EventUnknown
		}
	default:
		ev.Type = EventUnknown
	}

	return ev, nil
}

func parseTransactionTime(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// wrapMidtransError classifies a Midtrans failure: 5xx and transport errors
// are retryable, 4xx declines are terminal.
func wrapMidtransError(op string, merr *midtrans.Error) error {
	retryable := merr.StatusCode == 0 || merr.StatusCode >= 500
	return &apperrors.GatewayError{Op: op, Retryable: retryable, Err: merr}
}

// Midtrans amounts are integers in the smallest currency unit.
func toMinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromMinorUnits(d decimal.Decimal) decimal.Decimal {
	return d.Shift(-2)
}
