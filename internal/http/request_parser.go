package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"payledger/internal/core"
)

const (
	maxBodyBytes = 1 << 20
	headerActor  = "X-Actor"
)

// Envelope carries the attribution fields accepted on every mutation.
type Envelope struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// actor prefers the body label and falls back to the X-Actor header.
func (e Envelope) actor(r *http.Request) string {
	if a := strings.TrimSpace(e.Actor); a != "" {
		return a
	}
	return strings.TrimSpace(r.Header.Get(headerActor))
}

// decodeJSON reads a bounded body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", errBadJSON)
	}
	return nil
}

// pathID parses a positive integer path variable.
func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s=%q", errBadID, name, raw)
	}
	return id, nil
}

func queryInt64(r *http.Request, name string) (int64, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, core.NewValidationError(name, fmt.Errorf("not a valid number: %q", v))
	}
	return n, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, core.NewValidationError(name, fmt.Errorf("not a boolean: %q", v))
	}
	return b, nil
}

// queryDate parses an optional YYYY-MM-DD parameter; absent yields the zero Date.
func queryDate(r *http.Request, name string) (core.Date, error) {
	d, err := core.ParseDate(r.URL.Query().Get(name))
	if err != nil {
		return core.Date{}, core.NewValidationError(name, err)
	}
	return d, nil
}

// MonthParams is a forecast target month.
type MonthParams struct {
	Year  int
	Month int
}

// parseMonthParams reads year and month, defaulting each to today's value.
func parseMonthParams(r *http.Request, today core.Date) (MonthParams, error) {
	p := MonthParams{Year: today.Year(), Month: today.Month()}
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return p, core.NewValidationError("year", fmt.Errorf("invalid year %q", v))
		}
		p.Year = y
	}
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return p, core.NewValidationError("month", core.ErrInvalidMonth)
		}
		p.Month = m
	}
	return p, nil
}
