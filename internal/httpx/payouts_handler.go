package httpx

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ariefcatur/lightshow-market/internal/apperr"
	"github.com/ariefcatur/lightshow-market/internal/payouts"
	"github.com/go-chi/chi/v5"
)

const (
	defaultPayoutLimit = 50
	maxPayoutLimit     = 200
)

type PayoutLister interface {
	ListBySeller(ctx context.Context, sellerID string, limit int) ([]payouts.Payout, error)
}

type PayoutsHandler struct {
	Responder
	Payouts PayoutLister
}

func (h *PayoutsHandler) Register(r chi.Router) {
	r.Get("/sellers/{sellerId}/payouts", h.list)
}

func (h *PayoutsHandler) list(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	if err := sellerOnly(r, sellerID); err != nil {
		h.fail(w, r, err)
		return
	}
	limit := defaultPayoutLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.fail(w, r, apperr.New(apperr.CodeInvalidInput, "limit must be a positive integer", err))
			return
		}
		limit = min(n, maxPayoutLimit)
	}
	ps, err := h.Payouts.ListBySeller(r.Context(), sellerID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}
