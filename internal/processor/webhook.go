package processor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ariefcatur/lightshow-market/internal/apperr"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// DefaultTolerance is the maximum age of a signed webhook timestamp.
const DefaultTolerance = 5 * time.Minute

type StripeVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret, tolerance: DefaultTolerance}
}

// VerifyEvent checks the Stripe-Signature header and decodes the event. Any
// signature problem yields an INVALID_SIGNATURE error; nothing in the body is
// trusted before that check passes. A signed event whose object cannot be
// decoded yields INVALID_INPUT along with the event's id and type.
func (v *StripeVerifier) VerifyEvent(payload []byte, signature string) (Event, error) {
	if signature == "" {
		return Event{}, apperr.New(apperr.CodeInvalidSignature, "missing signature", nil)
	}
	sev, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, apperr.New(apperr.CodeInvalidSignature, "", err)
	}
	return decodeEvent(sev)
}

func decodeEvent(sev stripe.Event) (Event, error) {
	ev := Event{
		ID:      sev.ID,
		Type:    string(sev.Type),
		Account: sev.Account,
		Created: time.Unix(sev.Created, 0).UTC(),
	}
	if sev.Data == nil {
		return ev, nil
	}
	raw := sev.Data.Raw

	switch ev.Type {
	case EventPaymentSucceeded, EventPaymentFailed, EventPaymentCanceled:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return ev, decodeErr(ev.Type, err)
		}
		p := &PaymentObject{Reference: pi.ID}
		if pi.LastPaymentError != nil {
			p.FailureMessage = pi.LastPaymentError.Msg
		}
		if ev.Type == EventPaymentCanceled && p.FailureMessage == "" {
			p.FailureMessage = string(pi.CancellationReason)
		}
		ev.Payment = p

	case EventCheckoutExpired:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(raw, &cs); err != nil {
			return ev, decodeErr(ev.Type, err)
		}
		p := &PaymentObject{SessionID: cs.ID}
		if cs.PaymentIntent != nil {
			p.Reference = cs.PaymentIntent.ID
		}
		ev.Payment = p

	case EventAccountUpdated:
		var acct stripe.Account
		if err := json.Unmarshal(raw, &acct); err != nil {
			return ev, decodeErr(ev.Type, err)
		}
		a := toAccount(&acct)
		ev.AccountUpdate = &a

	case EventPayoutCreated, EventPayoutPaid, EventPayoutFailed, EventPayoutCanceled:
		var po stripe.Payout
		if err := json.Unmarshal(raw, &po); err != nil {
			return ev, decodeErr(ev.Type, err)
		}
		ev.Payout = &PayoutObject{
			ID:             po.ID,
			Amount:         po.Amount,
			Currency:       string(po.Currency),
			Status:         string(po.Status),
			FailureMessage: po.FailureMessage,
		}
	}
	return ev, nil
}

func decodeErr(eventType string, err error) error {
	return apperr.New(apperr.CodeInvalidInput, fmt.Sprintf("decode %s payload", eventType), err)
}
