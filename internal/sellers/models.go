package sellers

import "time"

// Account maps a platform seller to a processor account that can receive funds.
type Account struct {
	SellerID          string    `json:"seller_id"`
	ExternalAccountID string    `json:"external_account_id"`
	ChargesEnabled    bool      `json:"charges_enabled"`
	PayoutsEnabled    bool      `json:"payouts_enabled"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Status is the persisted account merged with the processor's live view.
type Status struct {
	SellerID          string   `json:"seller_id"`
	ExternalAccountID string   `json:"external_account_id"`
	ChargesEnabled    bool     `json:"charges_enabled"`
	PayoutsEnabled    bool     `json:"payouts_enabled"`
	Requirements      []string `json:"requirements,omitempty"`
	DisabledReason    string   `json:"disabled_reason,omitempty"`
}

type Onboarding struct {
	URL               string `json:"onboarding_url"`
	ExternalAccountID string `json:"external_account_id"`
	Created           bool   `json:"created"`
}
