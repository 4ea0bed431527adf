package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// JSONResponse is a small builder for JSON replies.
type JSONResponse struct {
	status  int
	headers map[string]string
	body    any
}

func NewJSONResponse(body any) *JSONResponse {
	return &JSONResponse{status: http.StatusOK, headers: map[string]string{}, body: body}
}

func (b *JSONResponse) Status(code int) *JSONResponse {
	b.status = code
	return b
}

func (b *JSONResponse) Header(name, value string) *JSONResponse {
	b.headers[name] = value
	return b
}

func (b *JSONResponse) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.status)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.status)
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	NewJSONResponse(body).Status(status).Write(w)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// WarningsResponse wraps a created resource with advisory warnings.
type WarningsResponse struct {
	Data     any      `json:"data"`
	Warnings []string `json:"warnings"`
}
