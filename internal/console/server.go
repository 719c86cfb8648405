// Package console serves the client views over local HTTP as JSON. It is
// presentation only: every route calls the coordinator views or the
// domain client and renders what they return.
package console

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xtrntr/brokerclient/internal/broker"
	"github.com/xtrntr/brokerclient/internal/coordinator"
	"github.com/xtrntr/brokerclient/internal/session"
)

// LoginPath is the unauthenticated entry point
const LoginPath = "/login"

// Server holds the views for the one live session
type Server struct {
	client *broker.Client
	store  *session.Store
	logger *slog.Logger
	gather prometheus.Gatherer

	orders    *coordinator.CustomerOrders
	dashboard *coordinator.Dashboard
	assets    *coordinator.Assets
	admin     *coordinator.AdminPanel
}

// New creates the console. gather may be nil to leave /metrics out.
func New(client *broker.Client, store *session.Store, logger *slog.Logger, gather prometheus.Gatherer) *Server {
	return &Server{
		client:    client,
		store:     store,
		logger:    logger,
		gather:    gather,
		orders:    coordinator.NewCustomerOrders(client, logger),
		dashboard: coordinator.NewDashboard(client, logger),
		assets:    coordinator.NewAssets(client),
		admin:     coordinator.NewAdminPanel(client, logger),
	}
}

// ToEntry drops all view state. The gateway calls it when the session is
// torn down; the next request is answered with the login entry point.
func (s *Server) ToEntry() {
	s.orders.Reset()
	s.dashboard.Reset()
	s.assets.Reset()
	s.admin.Reset()
	s.logger.Info("session ended, views reset")
}

// Router returns the console routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.entry)
	r.Get(LoginPath, s.loginStatus)
	r.Post(LoginPath, s.login)
	r.Post("/logout", s.logout)
	r.Get("/health", s.health)
	if s.gather != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.requireRole(false))
		r.Get("/dashboard", s.getDashboard)
		r.Get("/orders", s.getOrders)
		r.Post("/orders", s.createOrder)
		r.Delete("/orders/{orderID}", s.cancelOrder)
		r.Get("/assets", s.getAssets)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireRole(true))
		r.Get("/", s.getAdmin)
		r.Get("/instruments", s.getInstruments)
		r.Put("/customer", s.selectCustomer)
		r.Delete("/customer", s.clearCustomer)
		r.Post("/orders", s.adminCreateOrder)
		r.Delete("/orders/{orderID}", s.adminCancelOrder)
		r.Post("/orders/{orderID}/match", s.adminMatchOrder)
	})
	return r
}

// requireRole admits only a live session of the given role. Anyone else is
// pointed at their own entry point.
func (s *Server) requireRole(admin bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := s.store.Current()
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "not logged in", Redirect: LoginPath})
				return
			}
			if identity.IsAdmin != admin {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "not available for this user", Redirect: identity.EntryPoint()})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("console request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
