package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/lightshow-market/internal/apperr"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Responder writes JSON bodies and maps errors onto the apperr taxonomy.
type Responder struct {
	Logger *zap.Logger
	Debug  bool // expose error causes in response details
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (rs Responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		ae = &apperr.AppError{Code: apperr.CodeInternal, Message: apperr.CodeInternal.Message, Cause: err}
	}
	if ae.Code.Status >= http.StatusInternalServerError {
		rs.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", ae.Code.Code),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	body := errorBody{Code: ae.Code.Code, Message: ae.Message}
	if rs.Debug && ae.Cause != nil {
		body.Details = ae.Cause.Error()
	}
	writeJSON(w, ae.Code.Status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.New(apperr.CodeInvalidInput, "request body too large", err)
		}
		return apperr.New(apperr.CodeInvalidInput, "invalid json", err)
	}
	return nil
}
