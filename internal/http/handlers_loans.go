package http

import (
	"net/http"

	"payledger/internal/core"
	"payledger/internal/services"
)

type createLoanRequest struct {
	services.NewLoan
	Envelope
}

type updateLoanRequest struct {
	services.LoanPatch
	Envelope
}

type applyLoanPaymentRequest struct {
	services.NewLoanPayment
	Envelope
}

type verifyLoanPaymentRequest struct {
	VerifiedBy string `json:"verified_by"`
	Envelope
}

type loanPaymentResult struct {
	Payment core.LoanPayment `json:"payment"`
	Loan    core.LoanRecord  `json:"loan"`
}

func (h *handlers) createLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := h.svc.Loans.Create(r.Context(), req.NewLoan, req.actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

func (h *handlers) listLoans(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Loans.List(r.Context(), core.LoanStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) getLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := h.svc.Loans.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *handlers) updateLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateLoanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	loan, err := h.svc.Loans.Update(r.Context(), id, req.LoanPatch, req.actor(r), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// cancelLoan is the DELETE verb for loans; records are cancelled, never removed.
func (h *handlers) cancelLoan(w http.ResponseWriter, r *http.Request) {
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
	loan, err := h.svc.Loans.Cancel(r.Context(), id, env.actor(r), env.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *handlers) loanSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := h.svc.Loans.Schedule(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handlers) applyLoanPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req applyLoanPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, loan, err := h.svc.Loans.ApplyPayment(r.Context(), id, req.NewLoanPayment, req.actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loanPaymentResult{Payment: p, Loan: loan})
}

func (h *handlers) listLoanPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.svc.Loans.Payments(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) verifyLoanPayment(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	paymentID, err := pathID(r, "paymentID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req verifyLoanPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	verifier := req.VerifiedBy
	if verifier == "" {
		verifier = req.actor(r)
	}
	p, err := h.svc.Loans.VerifyPayment(r.Context(), loanID, paymentID, verifier)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) loanStats(w http.ResponseWriter, r *http.Request) {
	loanID, err := queryInt64(r, "loan_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := h.svc.Loans.Stats(r.Context(), loanID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
