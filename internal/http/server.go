// Package http exposes the ledger as a JSON API routed with gorilla/mux.
package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"payledger/internal/core"
	"payledger/internal/log"
	"payledger/internal/middleware/ratelimit"
	"payledger/internal/middleware/security"
	"payledger/internal/middleware/trace"
	"payledger/internal/services"
)

// Services bundles the application layer the handlers call into.
type Services struct {
	Ledger     *services.LedgerService
	Payments   *services.PaymentService
	Schedules  *services.ScheduleService
	Loans      *services.LoanService
	Views      *services.ViewService
	References *services.ReferenceService
}

// Options configures the HTTP surface.
type Options struct {
	Addr               string
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	Clock              core.Clock
	Logger             *log.Logger
	// Ready reports whether dependencies (the database) are reachable.
	Ready func(context.Context) error
}

type Server struct {
	http.Server
	limiter *ratelimit.Limiter
	trace   *trace.Middleware
}

type handlers struct {
	svc   Services
	clock core.Clock
	ready func(context.Context) error
}

// NewServer wires routes and middleware. Writes are rate limited per client.
func NewServer(opts Options, svc Services) *Server {
	if opts.Clock == nil {
		opts.Clock = core.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	h := &handlers{svc: svc, clock: opts.Clock, ready: opts.Ready}

	ips := security.NewIPResolver()
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute})
	tracer := trace.NewMiddleware(ips.ClientIP)

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "route not found", Code: log.ErrorTypeNotFound})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed", Code: "method_not_allowed"})
	})

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(limiter.Middleware(ips.ClientIP, writeRateLimited,
		http.MethodPost, http.MethodPatch, http.MethodDelete))
	h.routes(api)

	c := cors.New(cors.Options{
		AllowedOrigins:   opts.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", headerActor, trace.HeaderRequestID},
		ExposedHeaders:   []string{trace.HeaderRequestID},
		AllowCredentials: false,
		MaxAge:           600,
	})

	var handler http.Handler = r
	handler = log.Middleware(opts.Logger.WithComponent(log.ComponentHTTP), trace.RequestID)(handler)
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = c.Handler(handler)
	handler = tracer.Middleware(handler)

	return &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		limiter: limiter,
		trace:   tracer,
	}
}

func (h *handlers) routes(api *mux.Router) {
	api.HandleFunc("/obligations", h.createObligation).Methods(http.MethodPost)
	api.HandleFunc("/obligations", h.listObligations).Methods(http.MethodGet)
	api.HandleFunc("/obligations/{id:[0-9]+}", h.getObligation).Methods(http.MethodGet)
	api.HandleFunc("/obligations/{id:[0-9]+}", h.updateObligation).Methods(http.MethodPatch)
	api.HandleFunc("/obligations/{id:[0-9]+}", h.deleteObligation).Methods(http.MethodDelete)
	api.HandleFunc("/obligations/{id:[0-9]+}/restore", h.restoreObligation).Methods(http.MethodPost)
	api.HandleFunc("/obligations/{id:[0-9]+}/audit", h.auditTrail(core.TableObligations)).Methods(http.MethodGet)

	api.HandleFunc("/obligations/{id:[0-9]+}/payments", h.applyPayment).Methods(http.MethodPost)
	api.HandleFunc("/obligations/{id:[0-9]+}/payments", h.listPayments).Methods(http.MethodGet)
	api.HandleFunc("/payments/{id:[0-9]+}", h.updatePayment).Methods(http.MethodPatch)
	api.HandleFunc("/payments/{id:[0-9]+}/reverse", h.reversePayment).Methods(http.MethodPost)
	api.HandleFunc("/payments/{id:[0-9]+}/audit", h.auditTrail(core.TablePayments)).Methods(http.MethodGet)

	api.HandleFunc("/obligations/{id:[0-9]+}/schedule", h.generateSchedule).Methods(http.MethodPost)
	api.HandleFunc("/obligations/{id:[0-9]+}/schedules", h.listSchedules).Methods(http.MethodGet)
	api.HandleFunc("/obligations/{id:[0-9]+}/schedules", h.addSchedule).Methods(http.MethodPost)
	api.HandleFunc("/schedules", h.schedulesBetween).Methods(http.MethodGet)

	api.HandleFunc("/overdue", h.overdue).Methods(http.MethodGet)
	api.HandleFunc("/forecast", h.forecast).Methods(http.MethodGet)

	api.HandleFunc("/loans", h.createLoan).Methods(http.MethodPost)
	api.HandleFunc("/loans", h.listLoans).Methods(http.MethodGet)
	api.HandleFunc("/loans/stats", h.loanStats).Methods(http.MethodGet)
	api.HandleFunc("/loans/{id:[0-9]+}", h.getLoan).Methods(http.MethodGet)
	api.HandleFunc("/loans/{id:[0-9]+}", h.updateLoan).Methods(http.MethodPatch)
	api.HandleFunc("/loans/{id:[0-9]+}", h.cancelLoan).Methods(http.MethodDelete)
	api.HandleFunc("/loans/{id:[0-9]+}/schedule", h.loanSchedule).Methods(http.MethodGet)
	api.HandleFunc("/loans/{id:[0-9]+}/payments", h.applyLoanPayment).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id:[0-9]+}/payments", h.listLoanPayments).Methods(http.MethodGet)
	api.HandleFunc("/loans/{id:[0-9]+}/payments/{paymentID:[0-9]+}/verify", h.verifyLoanPayment).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id:[0-9]+}/audit", h.auditTrail(core.TableLoans)).Methods(http.MethodGet)

	api.HandleFunc("/categories", h.createCategory).Methods(http.MethodPost)
	api.HandleFunc("/categories", h.listCategories).Methods(http.MethodGet)
	api.HandleFunc("/projects", h.createProject).Methods(http.MethodPost)
	api.HandleFunc("/projects", h.listProjects).Methods(http.MethodGet)
	api.HandleFunc("/budgets", h.createBudget).Methods(http.MethodPost)
	api.HandleFunc("/budgets", h.listBudgets).Methods(http.MethodGet)
}

// Shutdown drains connections and stops the limiter sweep.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

// ParseOrigins splits a comma-separated CORS origin list.
func ParseOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "not ready", Code: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
