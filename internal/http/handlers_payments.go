package http

import (
	"net/http"

	"payledger/internal/core"
	"payledger/internal/services"
)

type applyPaymentRequest struct {
	services.NewPayment
	Envelope
}

type updatePaymentRequest struct {
	services.PaymentPatch
	Envelope
}

// paymentResult returns the event together with the reconciled obligation.
type paymentResult struct {
	Payment    core.Payment    `json:"payment"`
	Obligation core.Obligation `json:"obligation"`
}

func (h *handlers) applyPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req applyPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, o, err := h.svc.Payments.Apply(r.Context(), id, req.NewPayment, req.actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentResult{Payment: p, Obligation: o})
}

func (h *handlers) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.svc.Payments.ForObligation(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) updatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updatePaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, o, err := h.svc.Payments.Update(r.Context(), id, req.PaymentPatch, req.actor(r), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResult{Payment: p, Obligation: o})
}

func (h *handlers) reversePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var env Envelope
	if err := decodeJSON(w, r, &env); err != nil {
		writeError(w, r, err)
		return
	}
	p, o, err := h.svc.Payments.Reverse(r.Context(), id, env.actor(r), env.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResult{Payment: p, Obligation: o})
}
