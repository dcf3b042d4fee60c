// Package processor adapts the hosted payment processor (Stripe Connect) to
// the marketplace: seller accounts, onboarding links, payment intents with a
// platform fee, and verified webhook events.
package processor

import (
	"context"
	"time"
)

// Account is the processor-side view of a seller's connected account.
type Account struct {
	ID             string
	ChargesEnabled bool
	PayoutsEnabled bool
	Requirements   []string
	DisabledReason string
}

type PaymentStatus string

const (
	PaymentSucceeded       PaymentStatus = "succeeded"
	PaymentProcessing      PaymentStatus = "processing"
	PaymentCanceled        PaymentStatus = "canceled"
	PaymentRequiresMethod  PaymentStatus = "requires_payment_method"
	PaymentRequiresAction  PaymentStatus = "requires_action"
	PaymentRequiresConfirm PaymentStatus = "requires_confirmation"
	PaymentRequiresCapture PaymentStatus = "requires_capture"
)

// PaymentRequest charges the buyer Amount, keeps PlatformFee and routes the
// rest to DestinationAccount.
type PaymentRequest struct {
	OrderID            string
	BuyerID            string
	SellerID           string
	ItemID             string
	Amount             int64
	PlatformFee        int64
	Currency           string
	DestinationAccount string
}

type Payment struct {
	Reference      string
	ClientSecret   string
	Status         PaymentStatus
	FailureMessage string
}

// Client is the outbound API surface used by the marketplace.
type Client interface {
	CreateAccount(ctx context.Context, sellerID string) (string, error)
	CreateOnboardingLink(ctx context.Context, accountID string) (string, error)
	GetAccount(ctx context.Context, accountID string) (Account, error)
	CreatePayment(ctx context.Context, req PaymentRequest) (Payment, error)
	GetPayment(ctx context.Context, reference string) (Payment, error)
}

// Verifier authenticates a raw webhook body against its signature header.
type Verifier interface {
	VerifyEvent(payload []byte, signature string) (Event, error)
}

const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventPaymentCanceled  = "payment_intent.canceled"
	EventCheckoutExpired  = "checkout.session.expired"
	EventAccountUpdated   = "account.updated"
	EventPayoutCreated    = "payout.created"
	EventPayoutPaid       = "payout.paid"
	EventPayoutFailed     = "payout.failed"
	EventPayoutCanceled   = "payout.canceled"
)

// Event is a verified processor event reduced to the fields the settlement
// side needs. It is also the wire format of the webhook retry queue.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Account string    `json:"account,omitempty"` // connected account the event belongs to
	Created time.Time `json:"created"`

	Payment       *PaymentObject `json:"payment,omitempty"`
	AccountUpdate *Account       `json:"account_update,omitempty"`
	Payout        *PayoutObject  `json:"payout,omitempty"`
}

type PaymentObject struct {
	Reference string `json:"reference"`
	// SessionID is set for checkout session events; Reference then holds the
	// session's payment intent when one exists.
	SessionID      string `json:"session_id,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`
}

type PayoutObject struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	FailureMessage string `json:"failure_message,omitempty"`
}
