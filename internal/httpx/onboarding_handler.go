package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/lightshow-market/internal/apperr"
	"github.com/ariefcatur/lightshow-market/internal/sellers"
	"github.com/go-chi/chi/v5"
)

type OnboardingService interface {
	BeginOnboarding(ctx context.Context, sellerID string) (sellers.Onboarding, error)
	GetAccountStatus(ctx context.Context, sellerID string) (sellers.Status, error)
}

type OnboardingHandler struct {
	Responder
	Sellers OnboardingService
}

type startOnboardingReq struct {
	SellerID string `json:"sellerId"`
}

type startOnboardingResp struct {
	OnboardingURL     string `json:"onboardingUrl"`
	ExternalAccountID string `json:"externalAccountId"`
}

type accountStatusResp struct {
	SellerID          string   `json:"sellerId"`
	ExternalAccountID string   `json:"externalAccountId"`
	ChargesEnabled    bool     `json:"chargesEnabled"`
	PayoutsEnabled    bool     `json:"payoutsEnabled"`
	Requirements      []string `json:"requirements"`
	DisabledReason    string   `json:"disabledReason,omitempty"`
}

func (h *OnboardingHandler) Register(r chi.Router) {
	r.Post("/onboarding/start", h.start)
	r.Get("/onboarding/status/{sellerId}", h.status)
}

// sellerOnly rejects requests where the caller is not the seller named.
func sellerOnly(r *http.Request, sellerID string) error {
	if sellerID == "" || Subject(r.Context()) != sellerID {
		return apperr.New(apperr.CodeInvalidSeller, "caller is not this seller", nil)
	}
	return nil
}

func (h *OnboardingHandler) start(w http.ResponseWriter, r *http.Request) {
	var req startOnboardingReq
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := sellerOnly(r, req.SellerID); err != nil {
		h.fail(w, r, err)
		return
	}
	ob, err := h.Sellers.BeginOnboarding(r.Context(), req.SellerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, startOnboardingResp{OnboardingURL: ob.URL, ExternalAccountID: ob.ExternalAccountID})
}

func (h *OnboardingHandler) status(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	if err := sellerOnly(r, sellerID); err != nil {
		h.fail(w, r, err)
		return
	}
	st, err := h.Sellers.GetAccountStatus(r.Context(), sellerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	reqs := st.Requirements
	if reqs == nil {
		reqs = []string{}
	}
	writeJSON(w, http.StatusOK, accountStatusResp{
		SellerID:          st.SellerID,
		ExternalAccountID: st.ExternalAccountID,
		ChargesEnabled:    st.ChargesEnabled,
		PayoutsEnabled:    st.PayoutsEnabled,
		Requirements:      reqs,
		DisabledReason:    st.DisabledReason,
	})
}
