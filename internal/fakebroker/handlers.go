package fakebroker

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/brokerclient/internal/models"
)

// Reply texts of the real backend
const (
	msgLoginSuccessful      = "Login successful"
	msgCreateFailed         = "Failed to create order: "
	msgCancelFailed         = "Failed to cancel order: "
	msgMatchFailed          = "Failed to match order: "
	msgListOrdersFailed     = "Failed to list orders: "
	msgOnlySelfOrders       = "You can only create orders for yourself"
	msgOnlyAdminMatch       = "Only admin users can match orders"
	msgOnlyAdminPending     = "Only admin users can view all pending orders"
	msgCustomerIDRequired   = "Customer ID is required for admin to list assets"
	msgInvalidOrderData     = "Invalid order data"
	msgInvalidRequestFormat = "Invalid request body"
)

type userKey struct{}

// Router returns the backend's HTTP surface: the REST API under /api and
// the health endpoints at the root
func (b *Backend) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Username", "Password", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/", b.info)
	r.Get("/health", b.health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", b.login)

		r.Group(func(r chi.Router) {
			r.Use(b.requireCredentials)
			r.Post("/orders", b.createOrder)
			r.Get("/orders", b.listOrders)
			r.Get("/orders/pending", b.listPending)
			r.Post("/orders/match", b.matchOrder)
			r.Delete("/orders/{orderID}", b.cancelOrder)
			r.Get("/assets", b.listAssets)
			if _, ok := b.Instruments(); ok {
				r.Get("/assets/available", b.listInstruments)
			}
		})
	})
	return r
}

// requireCredentials authenticates every call from its Username and Password headers
func (b *Backend) requireCredentials(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := b.Authenticate(r.Header.Get("Username"), r.Header.Get("Password"))
		if err != nil {
			http.Error(w, ErrInvalidCredentials.Error(), http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func caller(r *http.Request) User {
	u, _ := r.Context().Value(userKey{}).(User)
	return u
}

type loginResponse struct {
	Message    string `json:"message"`
	UserID     *int64 `json:"userId"`
	CustomerID *int64 `json:"customerId"`
	IsAdmin    *bool  `json:"isAdmin"`
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, msgInvalidRequestFormat, http.StatusBadRequest)
		return
	}

	user, err := b.Authenticate(req.Username, req.Password)
	if err != nil {
		b.logger.Warn("login rejected", "username", req.Username)
		writeJSON(w, http.StatusUnauthorized, loginResponse{Message: ErrInvalidCredentials.Error()})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Message:    msgLoginSuccessful,
		UserID:     &user.ID,
		CustomerID: &user.ID,
		IsAdmin:    &user.IsAdmin,
	})
}

type createOrderRequest struct {
	UserID     int64            `json:"userId"`
	CustomerID int64            `json:"customerId"`
	AssetName  string           `json:"assetName"`
	Side       models.OrderSide `json:"side"`
	Size       decimal.Decimal  `json:"size"`
	Price      decimal.Decimal  `json:"price"`
}

func (b *Backend) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, msgCreateFailed+msgInvalidRequestFormat, http.StatusBadRequest)
		return
	}
	target := req.UserID
	if target == 0 {
		target = req.CustomerID
	}

	u := caller(r)
	if !u.IsAdmin {
		if target == 0 {
			target = u.ID
		}
		if target != u.ID {
			http.Error(w, msgOnlySelfOrders, http.StatusForbidden)
			return
		}
	}

	asset := strings.TrimSpace(req.AssetName)
	if target <= 0 || asset == "" || !req.Size.IsPositive() || !req.Price.IsPositive() ||
		(req.Side != models.OrderSideBuy && req.Side != models.OrderSideSell) {
		http.Error(w, msgCreateFailed+msgInvalidOrderData, http.StatusBadRequest)
		return
	}

	order, err := b.PlaceOrder(target, asset, req.Side, req.Size, req.Price)
	if err != nil {
		http.Error(w, msgCreateFailed+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (b *Backend) listOrders(w http.ResponseWriter, r *http.Request) {
	u := caller(r)
	q := r.URL.Query()

	var start, end time.Time
	for name, dst := range map[string]*time.Time{"startDate": &start, "endDate": &end} {
		if v := q.Get(name); v != "" {
			parsed, err := models.ParseDateTime(v)
			if err != nil {
				http.Error(w, msgListOrdersFailed+err.Error(), http.StatusBadRequest)
				return
			}
			*dst = parsed
		}
	}

	userID := u.ID
	if u.IsAdmin {
		userID = 0
		if v := q.Get("userId"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				http.Error(w, msgListOrdersFailed+"invalid userId", http.StatusBadRequest)
				return
			}
			userID = id
		}
	}
	writeJSON(w, http.StatusOK, b.Orders(userID, start, end))
}

func (b *Backend) listPending(w http.ResponseWriter, r *http.Request) {
	if !caller(r).IsAdmin {
		http.Error(w, msgOnlyAdminPending, http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, b.PendingOrders())
}

func (b *Backend) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		http.Error(w, msgCancelFailed+ErrOrderNotFound.Error(), http.StatusBadRequest)
		return
	}
	order, err := b.CancelOrder(orderID, caller(r))
	if err != nil {
		http.Error(w, msgCancelFailed+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (b *Backend) matchOrder(w http.ResponseWriter, r *http.Request) {
	if !caller(r).IsAdmin {
		http.Error(w, msgOnlyAdminMatch, http.StatusForbidden)
		return
	}
	var req struct {
		OrderID int64 `json:"orderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, msgMatchFailed+msgInvalidRequestFormat, http.StatusBadRequest)
		return
	}
	order, err := b.MatchOrder(req.OrderID)
	if err != nil {
		http.Error(w, msgMatchFailed+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (b *Backend) listAssets(w http.ResponseWriter, r *http.Request) {
	u := caller(r)
	userID := u.ID
	if u.IsAdmin {
		v := r.URL.Query().Get("userId")
		id, err := strconv.ParseInt(v, 10, 64)
		if v == "" || err != nil {
			http.Error(w, msgCustomerIDRequired, http.StatusBadRequest)
			return
		}
		userID = id
	}
	writeJSON(w, http.StatusOK, b.Holdings(userID))
}

func (b *Backend) listInstruments(w http.ResponseWriter, r *http.Request) {
	names, _ := b.Instruments()
	writeJSON(w, http.StatusOK, names)
}

func (b *Backend) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "UP",
		"timestamp": wallClock(b.now()).Format("2006-01-02T15:04:05.999999999"),
	})
}

func (b *Backend) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"application": "Brokerage Firm Backend API",
		"status":      "Running",
		"endpoints": map[string]string{
			"Login":                       "POST /api/auth/login",
			"Create Order":                "POST /api/orders",
			"List Orders":                 "GET /api/orders",
			"Cancel Order":                "DELETE /api/orders/{orderId}",
			"List Assets":                 "GET /api/assets",
			"Match Order (Admin)":         "POST /api/orders/match",
			"List Pending Orders (Admin)": "GET /api/orders/pending",
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
