package http

import (
	"errors"
	"log/slog"
	"net/http"

	"payledger/internal/core"
	"payledger/internal/log"
	"payledger/internal/middleware/trace"
)

var (
	errBadJSON   = errors.New("malformed JSON body")
	errBadID     = errors.New("invalid identifier")
	errRateLimit = errors.New("rate limit exceeded")
)

// writeError maps ledger errors onto status codes. Unknown errors are
// logged and reported as 500 without their message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var (
		validation *core.ValidationError
		notFound   *core.NotFoundError
		conflict   *core.ConflictError
	)
	switch {
	case errors.Is(err, errBadJSON), errors.Is(err, errBadID):
		status = http.StatusBadRequest
		resp.Code = log.ErrorTypeValidation
	case errors.As(err, &validation):
		status = http.StatusUnprocessableEntity
		resp.Code = log.ErrorTypeValidation
		if validation.Field != "" {
			resp.Details = map[string]any{"field": validation.Field}
		}
	case errors.As(err, &notFound):
		status = http.StatusNotFound
		resp.Code = log.ErrorTypeNotFound
	default:
		if over, ok := core.AsOverpayment(err); ok {
			status = http.StatusConflict
			resp.Code = log.ErrorTypeOverpayment
			resp.Details = map[string]any{
				"remaining": over.Remaining,
				"attempted": over.Attempted,
			}
		} else if errors.As(err, &conflict) {
			status = http.StatusConflict
			resp.Code = log.ErrorTypeConflict
			resp.Details = map[string]any{"retryable": true}
		} else {
			resp.Code = log.ErrorTypeInternal
			resp.Error = "internal server error"
		}
	}

	level := slog.LevelWarn
	if status >= 500 {
		level = slog.LevelError
	}
	log.FromContext(r.Context()).LogFields(r.Context(), level, "Request failed",
		log.NewFields().
			WithRequestID(trace.RequestID(r.Context())).
			WithErrorType(resp.Code).
			WithError(err))

	writeJSON(w, status, resp)
}

func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: errRateLimit.Error(), Code: "rate_limited"})
}
