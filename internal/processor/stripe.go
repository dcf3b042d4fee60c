package processor

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"golang.org/x/time/rate"
)

type StripeConfig struct {
	SecretKey  string
	RefreshURL string
	ReturnURL  string
	// RPS caps outbound API calls per second; Stripe rejects bursts with 429.
	RPS float64
}

// StripeClient implements Client with Stripe Connect express accounts and
// destination charges.
type StripeClient struct {
	api        *client.API
	limiter    *rate.Limiter
	refreshURL string
	returnURL  string
}

func NewStripeClient(cfg StripeConfig) *StripeClient {
	burst := int(cfg.RPS)
	if burst < 1 {
		burst = 1
	}
	return &StripeClient{
		api:        client.New(cfg.SecretKey, nil),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), burst),
		refreshURL: cfg.RefreshURL,
		returnURL:  cfg.ReturnURL,
	}
}

func (c *StripeClient) CreateAccount(ctx context.Context, sellerID string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	params := &stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("seller-account:" + sellerID)
	params.AddMetadata("seller_id", sellerID)

	acct, err := c.api.Accounts.New(params)
	if err != nil {
		return "", err
	}
	return acct.ID, nil
}

func (c *StripeClient) CreateOnboardingLink(ctx context.Context, accountID string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(c.refreshURL),
		ReturnURL:  stripe.String(c.returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := c.api.AccountLinks.New(params)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

func (c *StripeClient) GetAccount(ctx context.Context, accountID string) (Account, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Account{}, err
	}
	params := &stripe.AccountParams{}
	params.Context = ctx

	acct, err := c.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return Account{}, err
	}
	return toAccount(acct), nil
}

func (c *StripeClient) CreatePayment(ctx context.Context, req PaymentRequest) (Payment, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Payment{}, err
	}
	params := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(req.Amount),
		Currency:             stripe.String(strings.ToLower(req.Currency)),
		ApplicationFeeAmount: stripe.Int64(req.PlatformFee),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(req.DestinationAccount),
		},
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("order:" + req.OrderID)
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("buyer_id", req.BuyerID)
	params.AddMetadata("seller_id", req.SellerID)
	params.AddMetadata("item_id", req.ItemID)

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return Payment{}, err
	}
	return toPayment(pi), nil
}

func (c *StripeClient) GetPayment(ctx context.Context, reference string) (Payment, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Payment{}, err
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.Get(reference, params)
	if err != nil {
		return Payment{}, err
	}
	return toPayment(pi), nil
}

// ErrorMessage returns the processor's human-readable message for err.
func ErrorMessage(err error) string {
	var serr *stripe.Error
	if errors.As(err, &serr) && serr.Msg != "" {
		return serr.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func toAccount(a *stripe.Account) Account {
	out := Account{
		ID:             a.ID,
		ChargesEnabled: a.ChargesEnabled,
		PayoutsEnabled: a.PayoutsEnabled,
	}
	if a.Requirements != nil {
		out.Requirements = append([]string(nil), a.Requirements.CurrentlyDue...)
		out.DisabledReason = string(a.Requirements.DisabledReason)
	}
	return out
}

func toPayment(pi *stripe.PaymentIntent) Payment {
	out := Payment{
		Reference:    pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       PaymentStatus(pi.Status),
	}
	if pi.LastPaymentError != nil {
		out.FailureMessage = pi.LastPaymentError.Msg
	}
	return out
}
