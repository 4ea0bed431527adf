package http

import (
	"context"
	"net/http"

	"payledger/internal/core"
	"payledger/internal/services"
	"payledger/internal/storage"
)

type createObligationRequest struct {
	services.NewObligation
	Envelope
}

type updateObligationRequest struct {
	services.ObligationPatch
	Envelope
}

type obligationCreated struct {
	Obligation core.Obligation `json:"obligation"`
	Schedules  []core.Schedule `json:"schedules"`
}

func (h *handlers) createObligation(w http.ResponseWriter, r *http.Request) {
	var req createObligationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, rows, err := h.svc.Ledger.Create(r.Context(), req.NewObligation, req.actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []core.Schedule{}
	}
	writeJSON(w, http.StatusCreated, obligationCreated{Obligation: o, Schedules: rows})
}

func (h *handlers) listObligations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.ObligationFilter{
		Kind:   core.ObligationKind(q.Get("kind")),
		Status: core.Status(q.Get("status")),
	}
	var err error
	if filter.CategoryID, err = queryInt64(r, "category_id"); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.ProjectID, err = queryInt64(r, "project_id"); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.IncludeDeleted, err = queryBool(r, "include_deleted"); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.Kind != "" && !filter.Kind.IsValid() {
		writeError(w, r, core.NewValidationError("kind", core.ErrInvalidKind))
		return
	}

	list, err := h.svc.Ledger.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) getObligation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	includeDeleted, err := queryBool(r, "include_deleted")
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.svc.Ledger.Get(r.Context(), id, includeDeleted)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handlers) updateObligation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateObligationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.svc.Ledger.Update(r.Context(), id, req.ObligationPatch, req.actor(r), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handlers) deleteObligation(w http.ResponseWriter, r *http.Request) {
	h.toggleObligation(w, r, h.svc.Ledger.SoftDelete)
}

func (h *handlers) restoreObligation(w http.ResponseWriter, r *http.Request) {
	h.toggleObligation(w, r, h.svc.Ledger.Restore)
}

func (h *handlers) toggleObligation(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, id int64, actor, reason string) (core.Obligation, error)) {
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
	o, err := fn(r.Context(), id, env.actor(r), env.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handlers) auditTrail(table string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		entries, err := h.svc.Ledger.AuditTrail(r.Context(), table, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}
