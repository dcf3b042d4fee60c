package orders

import "time"

// Order is one digital item bought by one buyer from one seller.
type Order struct {
	ID                       string    `json:"order_id"`
	BuyerID                  string    `json:"buyer_id"`
	SellerID                 string    `json:"seller_id"`
	ItemID                   string    `json:"item_id"`
	AmountCents              int64     `json:"amount"`
	Currency                 string    `json:"currency"`
	PlatformFeeCents         int64     `json:"platform_fee"`
	ExternalPaymentReference string    `json:"payment_reference"`
	Status                   Status    `json:"status"`
	FailureMessage           string    `json:"failure_message,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// MaxOrderAmount is the processor's per-charge ceiling in minor units.
const MaxOrderAmount = 99999999

type CreateOrderInput struct {
	BuyerID  string `json:"buyerId" validate:"required,max=128"`
	SellerID string `json:"sellerId" validate:"required,max=128,nefield=BuyerID"`
	ItemID   string `json:"itemId" validate:"required,max=128"`
	Amount   int64  `json:"amount" validate:"gt=0,lte=99999999"`
	Currency string `json:"currency" validate:"required,iso4217"`
}

type CreateOrderResult struct {
	OrderID          string `json:"orderId"`
	ClientSecret     string `json:"clientSecret"`
	PaymentReference string `json:"paymentReference"`
	PlatformFee      int64  `json:"platformFee"`
}

// StatusSnapshot is the cached read model of an order's status. It carries the
// parties so reads can be authorized without the database.
type StatusSnapshot struct {
	OrderID   string    `json:"orderId"`
	BuyerID   string    `json:"buyerId"`
	SellerID  string    `json:"sellerId"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (o Order) Snapshot() StatusSnapshot {
	return StatusSnapshot{OrderID: o.ID, BuyerID: o.BuyerID, SellerID: o.SellerID, Status: o.Status, UpdatedAt: o.UpdatedAt}
}
