package http

import (
	"net/http"

	"payledger/internal/core"
	"payledger/internal/services"
)

type generateScheduleRequest struct {
	Replace bool `json:"replace"`
	Envelope
}

type addScheduleRequest struct {
	services.NewSchedule
	Envelope
}

func (h *handlers) generateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req generateScheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !req.Replace {
		if req.Replace, err = queryBool(r, "replace"); err != nil {
			writeError(w, r, err)
			return
		}
	}
	rows, err := h.svc.Schedules.Generate(r.Context(), id, req.Replace, req.actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rows)
}

func (h *handlers) addSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req addScheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	row, warnings, err := h.svc.Schedules.AddManual(r.Context(), id, req.NewSchedule, req.actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusCreated, WarningsResponse{Data: row, Warnings: warnings})
}

func (h *handlers) listSchedules(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := h.svc.Schedules.ForObligation(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handlers) schedulesBetween(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := h.svc.Schedules.Between(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handlers) overdue(w http.ResponseWriter, r *http.Request) {
	day, err := queryDate(r, "date")
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.svc.Views.Overdue(r.Context(), day)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handlers) forecast(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonthParams(r, core.Today(h.clock))
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := h.svc.Views.Forecast(r.Context(), month.Year, month.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}
