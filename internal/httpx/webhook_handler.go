package httpx

import (
	"context"
	"io"
	"net/http"

	"github.com/ariefcatur/lightshow-market/internal/apperr"
	"github.com/ariefcatur/lightshow-market/internal/processor"
	"github.com/ariefcatur/lightshow-market/internal/settlement"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const signatureHeader = "Stripe-Signature"

type EventQueue interface {
	Enqueue(ctx context.Context, ev processor.Event) error
}

// WebhookHandler verifies processor events and hands them to the applier.
// Events that fail to apply are parked on the retry queue and acknowledged;
// only a failure to park them answers 5xx.
type WebhookHandler struct {
	Responder
	Verifier processor.Verifier
	Applier  settlement.EventApplier
	Retry    EventQueue
}

type webhookResp struct {
	Received bool `json:"received"`
	Queued   bool `json:"queued,omitempty"`
}

func (h *WebhookHandler) Register(r chi.Router) {
	r.Post("/webhook", h.receive)
}

func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.fail(w, r, apperr.New(apperr.CodeInvalidInput, "unreadable body", err))
		return
	}

	ev, err := h.Verifier.VerifyEvent(payload, r.Header.Get(signatureHeader))
	if apperr.Is(err, apperr.CodeInvalidSignature) {
		h.Logger.Warn("webhook rejected",
			zap.String("remote_addr", r.RemoteAddr), zap.Int("bytes", len(payload)), zap.Error(err))
		h.fail(w, r, err)
		return
	}
	if err != nil {
		// Signed but undecodable: redelivery would fail the same way.
		h.Logger.Error("signed event undecodable; acknowledged without applying",
			zap.String("event_id", ev.ID), zap.String("event_type", ev.Type), zap.Error(err))
		writeJSON(w, http.StatusOK, webhookResp{Received: true})
		return
	}

	// Apply runs to completion even if the client disconnects.
	ctx := context.WithoutCancel(r.Context())
	_, err = h.Applier.Apply(ctx, ev)
	if err == nil {
		writeJSON(w, http.StatusOK, webhookResp{Received: true})
		return
	}

	log := h.Logger.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))
	if qerr := h.Retry.Enqueue(ctx, ev); qerr != nil {
		log.Error("event not applied and not queued", zap.Error(err), zap.NamedError("queue_error", qerr))
		h.fail(w, r, apperr.New(apperr.CodePersistenceError, "event could not be applied", err))
		return
	}
	log.Warn("event queued for retry", zap.Error(err))
	writeJSON(w, http.StatusOK, webhookResp{Received: true, Queued: true})
}
