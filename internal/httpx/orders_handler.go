package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/lightshow-market/internal/apperr"
	"github.com/ariefcatur/lightshow-market/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type OrderService interface {
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (orders.CreateOrderResult, error)
	GetOrder(ctx context.Context, id string) (orders.Order, error)
}

type StatusCache interface {
	GetStatus(ctx context.Context, orderID string) (orders.StatusSnapshot, bool, error)
	FillStatus(ctx context.Context, s orders.StatusSnapshot) error
}

type OrdersHandler struct {
	Responder
	Orders OrderService
	Cache  StatusCache // optional
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
}

// party reports whether the caller is the buyer or the seller of the order.
func party(r *http.Request, buyerID, sellerID string) bool {
	sub := Subject(r.Context())
	return sub != "" && (sub == buyerID || sub == sellerID)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.CreateOrderInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	if in.BuyerID == "" || Subject(r.Context()) != in.BuyerID {
		h.fail(w, r, apperr.New(apperr.CodeInvalidBuyer, "caller is not this buyer", nil))
		return
	}
	res, err := h.Orders.CreateOrder(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// getOrder hides orders the caller is not party to behind ORDER_NOT_FOUND.
func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !party(r, o.BuyerID, o.SellerID) {
		h.fail(w, r, apperr.New(apperr.CodeOrderNotFound, "", nil))
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.Cache != nil {
		snap, ok, err := h.Cache.GetStatus(r.Context(), id)
		if err != nil {
			h.Logger.Warn("status cache read failed", zap.String("order_id", id), zap.Error(err))
		}
		if ok && err == nil {
			h.writeStatus(w, r, snap)
			return
		}
	}

	o, err := h.Orders.GetOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	snap := o.Snapshot()
	if h.Cache != nil {
		_ = h.Cache.FillStatus(r.Context(), snap)
	}
	h.writeStatus(w, r, snap)
}

func (h *OrdersHandler) writeStatus(w http.ResponseWriter, r *http.Request, snap orders.StatusSnapshot) {
	if !party(r, snap.BuyerID, snap.SellerID) {
		h.fail(w, r, apperr.New(apperr.CodeOrderNotFound, "", nil))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
