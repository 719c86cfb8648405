package console

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/brokerclient/internal/broker"
	"github.com/xtrntr/brokerclient/internal/coordinator"
	"github.com/xtrntr/brokerclient/internal/gateway"
	"github.com/xtrntr/brokerclient/internal/models"
)

type errorBody struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

type identityBody struct {
	Username string `json:"username"`
	UserID   int64  `json:"userId"`
	IsAdmin  bool   `json:"isAdmin"`
	Message  string `json:"message,omitempty"`
	Redirect string `json:"redirect"`
}

func identityView(i models.Identity) identityBody {
	return identityBody{
		Username: i.Username,
		UserID:   i.UserID,
		IsAdmin:  i.IsAdmin,
		Message:  i.Message,
		Redirect: i.EntryPoint(),
	}
}

type orderBody struct {
	models.Order
	CanCancel bool `json:"canCancel"`
	CanMatch  bool `json:"canMatch"`
}

func orderViews(identity models.Identity, orders []models.Order) []orderBody {
	out := make([]orderBody, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderBody{Order: o, CanCancel: identity.CanCancel(o), CanMatch: identity.CanMatch(o)})
	}
	return out
}

type mutationBody struct {
	Order   models.Order `json:"order"`
	Warning string       `json:"warning,omitempty"`
}

func (s *Server) entry(w http.ResponseWriter, r *http.Request) {
	target := LoginPath
	if identity, ok := s.store.Current(); ok {
		target = identity.EntryPoint()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) loginStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.store.Current()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, identityView(identity))
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Username and password required"})
		return
	}

	identity, err := s.client.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.ToEntry()
	writeJSON(w, http.StatusOK, identityView(identity))
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.client.Logout(r.Context())
	s.ToEntry()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status, err := s.client.Health(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	if err := s.dashboard.Load(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	identity, _ := s.store.Current()
	state := s.dashboard.State()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":       identityView(identity),
		"holdings":   state.Holdings,
		"recent":     orderViews(identity, state.Recent),
		"orderCount": len(state.Orders),
		"cashTotal":  state.CashTotal,
		"stockCount": state.StockCount,
	})
}

func (s *Server) getOrders(w http.ResponseWriter, r *http.Request) {
	if err := s.orders.Load(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.renderOrders(w)
}

func (s *Server) renderOrders(w http.ResponseWriter) {
	identity, _ := s.store.Current()
	state := s.orders.State()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders":   orderViews(identity, state.Orders),
		"holdings": state.Holdings,
	})
}

type orderForm struct {
	UserID    int64            `json:"userId"`
	AssetName string           `json:"assetName"`
	Side      models.OrderSide `json:"side"`
	Size      decimal.Decimal  `json:"size"`
	Price     decimal.Decimal  `json:"price"`
}

func decodeOrderForm(r *http.Request) (models.CreateOrderRequest, error) {
	var f orderForm
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		return models.CreateOrderRequest{}, err
	}
	return models.CreateOrderRequest{
		UserID:    f.UserID,
		AssetName: f.AssetName,
		Side:      f.Side,
		Size:      f.Size,
		Price:     f.Price,
	}, nil
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOrderForm(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return
	}
	order, err := s.orders.Create(r.Context(), req)
	s.writeMutation(w, order, err)
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	order, err := s.orders.Cancel(r.Context(), orderID)
	s.writeMutation(w, order, err)
}

func (s *Server) getAssets(w http.ResponseWriter, r *http.Request) {
	if err := s.assets.Load(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	state := s.assets.State()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cash":      state.Cash,
		"stocks":    state.Stocks,
		"cashTotal": coordinator.CashTotal(state.Holdings),
	})
}

func (s *Server) getAdmin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := coordinator.Filter{Instrument: q.Get("asset")}
	if v := q.Get("customer"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid customer"})
			return
		}
		filter.Customer = id
	}
	s.admin.SetFilter(filter)

	if err := s.admin.Load(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.renderAdmin(w)
}

func (s *Server) renderAdmin(w http.ResponseWriter) {
	identity, _ := s.store.Current()
	state := s.admin.State()
	body := map[string]interface{}{
		"orders":      orderViews(identity, state.Filtered),
		"pending":     orderViews(identity, state.Pending),
		"customers":   state.Customers,
		"instruments": state.Instruments,
		"filter":      map[string]interface{}{"customer": state.Filter.Customer, "asset": state.Filter.Instrument},
		"stats":       state.Stats,
		"selected":    state.Selected,
		"cash":        state.Cash,
		"stocks":      state.Stocks,
	}
	if state.HoldingsErr != nil {
		body["holdingsError"] = state.HoldingsErr.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) getInstruments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.client.ListAvailableInstruments(r.Context()))
}

func (s *Server) selectCustomer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID int64 `json:"customerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return
	}
	if err := s.admin.SelectCustomer(r.Context(), req.CustomerID); err != nil {
		s.writeError(w, err)
		return
	}
	s.renderAdmin(w)
}

func (s *Server) clearCustomer(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.SelectCustomer(r.Context(), 0); err != nil {
		s.writeError(w, err)
		return
	}
	s.renderAdmin(w)
}

func (s *Server) adminCreateOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOrderForm(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return
	}
	order, err := s.admin.Create(r.Context(), req)
	s.writeMutation(w, order, err)
}

func (s *Server) adminCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	order, err := s.admin.Cancel(r.Context(), orderID)
	s.writeMutation(w, order, err)
}

func (s *Server) adminMatchOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	order, err := s.admin.Match(r.Context(), orderID)
	s.writeMutation(w, order, err)
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid order id"})
		return 0, false
	}
	return id, true
}

// writeMutation reports a mutation. A failed refresh does not undo a change
// the backend already applied, so it is sent as a warning.
func (s *Server) writeMutation(w http.ResponseWriter, order models.Order, err error) {
	var refreshErr *coordinator.RefreshError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, mutationBody{Order: order})
	case errors.As(err, &refreshErr):
		writeJSON(w, http.StatusOK, mutationBody{Order: order, Warning: refreshErr.Error()})
	default:
		s.writeError(w, err)
	}
}

// writeError maps the client error taxonomy onto HTTP statuses
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		authErr       *broker.AuthError
		validationErr *broker.ValidationError
		apiErr        *gateway.APIError
		transportErr  *gateway.TransportError
	)
	status := http.StatusInternalServerError
	body := errorBody{Error: err.Error()}

	switch {
	case errors.As(err, &authErr):
		status = http.StatusUnauthorized
		body = errorBody{Error: authErr.Message, Redirect: LoginPath}
	case errors.Is(err, gateway.ErrUnauthorized), errors.Is(err, coordinator.ErrNoSession):
		status = http.StatusUnauthorized
		body.Redirect = LoginPath
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.Is(err, coordinator.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, coordinator.ErrUnknownOrder):
		status = http.StatusNotFound
	case errors.Is(err, coordinator.ErrNotActionable):
		status = http.StatusConflict
	case errors.As(err, &apiErr):
		status = apiErr.Status
		body.Error = apiErr.Error()
	case errors.As(err, &transportErr):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("console request failed", "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
