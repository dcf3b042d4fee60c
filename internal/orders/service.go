package orders

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ariefcatur/lightshow-market/internal/apperr"
	kafkax "github.com/ariefcatur/lightshow-market/internal/kafka"
	"github.com/ariefcatur/lightshow-market/internal/processor"
	"github.com/ariefcatur/lightshow-market/internal/sellers"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type AccountStatusProvider interface {
	GetAccountStatus(ctx context.Context, sellerID string) (sellers.Status, error)
}

type PaymentCreator interface {
	CreatePayment(ctx context.Context, req processor.PaymentRequest) (processor.Payment, error)
}

// Publisher is fire-and-forget event publishing.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Sender writes a message and reports whether the broker accepted it.
type Sender interface {
	Send(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// StatusCache holds order status snapshots. SetStatus overwrites; FillStatus
// only writes when nothing is cached, so a read-through fill never replaces a
// settled snapshot with an older one.
type StatusCache interface {
	SetStatus(ctx context.Context, s StatusSnapshot) error
	FillStatus(ctx context.Context, s StatusSnapshot) error
}

type Service struct {
	Store    Store
	Accounts AccountStatusProvider
	Payments PaymentCreator
	Events   Publisher
	Outbox   Sender
	Cache    StatusCache
	FeeBps   int64
	Producer string
	Logger   *zap.Logger
}

var validate = validator.New()

// CreateOrder checks the seller can be paid, creates the processor payment and
// then records a pending order. The processor call comes first so a provider
// failure leaves nothing behind locally.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if err := validate.Struct(in); err != nil {
		return CreateOrderResult{}, apperr.New(apperr.CodeInvalidInput, "", err)
	}

	status, err := s.Accounts.GetAccountStatus(ctx, in.SellerID)
	if err != nil {
		if apperr.Is(err, apperr.CodeNotOnboarded) {
			return CreateOrderResult{}, apperr.New(apperr.CodeSellerNotPayable, "seller has not onboarded", err)
		}
		return CreateOrderResult{}, err
	}
	if !status.ChargesEnabled {
		return CreateOrderResult{}, apperr.New(apperr.CodeSellerNotPayable, "", nil)
	}

	fee := PlatformFee(in.Amount, s.FeeBps)
	order := Order{
		ID:               uuid.NewString(),
		BuyerID:          in.BuyerID,
		SellerID:         in.SellerID,
		ItemID:           in.ItemID,
		AmountCents:      in.Amount,
		Currency:         in.Currency,
		PlatformFeeCents: fee,
		Status:           StatusPending,
		CreatedAt:        time.Now().UTC(),
	}

	// Destination always comes from the stored account, never the caller.
	payment, err := s.Payments.CreatePayment(ctx, processor.PaymentRequest{
		OrderID:            order.ID,
		BuyerID:            order.BuyerID,
		SellerID:           order.SellerID,
		ItemID:             order.ItemID,
		Amount:             order.AmountCents,
		PlatformFee:        fee,
		Currency:           order.Currency,
		DestinationAccount: status.ExternalAccountID,
	})
	if err != nil {
		s.Logger.Error("payment creation failed", zap.String("order_id", order.ID), zap.String("seller_id", in.SellerID), zap.Error(err))
		return CreateOrderResult{}, apperr.New(apperr.CodePaymentProviderError, processor.ErrorMessage(err), err)
	}
	order.ExternalPaymentReference = payment.Reference
	order.UpdatedAt = order.CreatedAt

	if err := s.Store.Insert(ctx, order); err != nil {
		return CreateOrderResult{}, s.queueForReconcile(ctx, order, err)
	}

	if s.Cache != nil {
		_ = s.Cache.FillStatus(ctx, order.Snapshot())
	}
	s.publishCreated(ctx, order)

	return CreateOrderResult{
		OrderID:          order.ID,
		ClientSecret:     payment.ClientSecret,
		PaymentReference: payment.Reference,
		PlatformFee:      fee,
	}, nil
}

// queueForReconcile records an order whose payment exists but whose row does
// not, so the settler can insert it later.
func (s *Service) queueForReconcile(ctx context.Context, order Order, cause error) error {
	fields := []zap.Field{
		zap.String("order_id", order.ID),
		zap.String("payment_reference", order.ExternalPaymentReference),
		zap.Error(cause),
	}
	rec := OutboxRecord{Order: order, Cause: cause.Error(), QueuedAt: time.Now().UTC()}
	env, err := NewEnvelope(EventOrderOutbox, s.Producer, middleware.GetReqID(ctx), order.ID, rec)
	if err == nil {
		var b []byte
		if b, err = json.Marshal(env); err == nil {
			err = s.Outbox.Send(ctx, PartitionKey(order.ID), b, Headers(EventOrderOutbox)...)
		}
	}
	if err != nil {
		s.Logger.Error("reconciliation item lost: order not persisted and outbox write failed", append(fields, zap.NamedError("outbox_error", err))...)
		return apperr.New(apperr.CodePersistenceError, "order could not be saved for payment "+order.ExternalPaymentReference, cause)
	}
	s.Logger.Error("order not persisted; queued for reconciliation", fields...)
	return apperr.New(apperr.CodePersistenceError, "order could not be saved; payment "+order.ExternalPaymentReference+" queued for reconciliation", cause)
}

func (s *Service) publishCreated(ctx context.Context, o Order) {
	env, err := NewEnvelope(EventOrderCreated, s.Producer, middleware.GetReqID(ctx), o.ID, OrderCreatedPayload{
		OrderID:          o.ID,
		BuyerID:          o.BuyerID,
		SellerID:         o.SellerID,
		ItemID:           o.ItemID,
		AmountCents:      o.AmountCents,
		PlatformFeeCents: o.PlatformFeeCents,
		Currency:         o.Currency,
		PaymentRef:       o.ExternalPaymentReference,
	})
	if err != nil {
		s.Logger.Warn("order created event not built", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	s.Events.Publish(PartitionKey(o.ID), kafkax.MustMarshal(env), Headers(EventOrderCreated)...)
}

func (s *Service) GetOrder(ctx context.Context, id string) (Order, error) {
	return s.Store.Get(ctx, id)
}
