// Package broker exposes one typed operation per backend resource. Every
// operation goes through the gateway, so credentials and 401 handling are
// never repeated here.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/brokerclient/internal/gateway"
	"github.com/xtrntr/brokerclient/internal/models"
	"github.com/xtrntr/brokerclient/internal/session"
)

// FallbackInstruments is served when the instrument catalog cannot be fetched
var FallbackInstruments = []string{"AAPL", "GOOGL", "MSFT", "NVDA", "TSLA"}

// Client is the domain client
type Client struct {
	gw       *gateway.Gateway
	session  *session.Store
	validate *validator.Validate
	logger   *slog.Logger
}

// NewClient creates a domain client over gw, reading the identity from store
func NewClient(gw *gateway.Gateway, store *session.Store, logger *slog.Logger) *Client {
	return &Client{
		gw:       gw,
		session:  store,
		validate: newValidator(),
		logger:   logger,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// decimals are compared exactly, never through float64
	v.RegisterValidation("positive", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(decimal.Decimal)
		return ok && d.IsPositive()
	})
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginReply struct {
	Message    string `json:"message"`
	UserID     *int64 `json:"userId"`
	CustomerID *int64 `json:"customerId"`
	IsAdmin    *bool  `json:"isAdmin"`
}

// Login authenticates against the backend and starts a session
func (c *Client) Login(ctx context.Context, username, password string) (models.Identity, error) {
	var reply loginReply
	err := c.gw.Call(ctx, http.MethodPost, "/auth/login", nil, loginRequest{Username: username, Password: password}, &reply)
	if err != nil {
		message := DefaultLoginFailure
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			message = apiErr.Message
		}
		c.logger.Warn("login rejected", "username", username, "error", err)
		return models.Identity{}, &AuthError{Message: message, Err: err}
	}

	userID := reply.UserID
	if userID == nil {
		userID = reply.CustomerID
	}
	if userID == nil || *userID == 0 {
		return models.Identity{}, &AuthError{Message: DefaultLoginFailure, Err: ErrInvalidResponse}
	}

	identity := models.Identity{
		Username: username,
		Password: password,
		UserID:   *userID,
		IsAdmin:  reply.IsAdmin != nil && *reply.IsAdmin,
		Message:  reply.Message,
	}
	if err := c.session.Save(ctx, identity); err != nil {
		return models.Identity{}, err
	}
	return identity, nil
}

// Logout ends the session locally
func (c *Client) Logout(ctx context.Context) {
	c.session.Clear(ctx)
}

// Identity returns the live identity, if any
func (c *Client) Identity() (models.Identity, bool) {
	return c.session.Current()
}

// ListOrders lists orders matching the filter. The user id is only sent for
// administrators; the backend scopes customers to themselves.
func (c *Client) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	query := url.Values{}
	if filter.UserID > 0 && c.can(models.CapViewAllCustomers) {
		query.Set("userId", strconv.FormatInt(filter.UserID, 10))
	}
	if !filter.StartDate.IsZero() {
		query.Set("startDate", filter.StartDate.Format(models.DateTimeLayout))
	}
	if !filter.EndDate.IsZero() {
		query.Set("endDate", filter.EndDate.Format(models.DateTimeLayout))
	}

	var orders []models.Order
	if err := c.gw.Call(ctx, http.MethodGet, "/orders", query, nil, &orders); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

type createOrderBody struct {
	UserID    int64            `json:"userId"`
	AssetName string           `json:"assetName"`
	Side      models.OrderSide `json:"side"`
	Size      json.Number      `json:"size"`
	Price     json.Number      `json:"price"`
}

// CreateOrder places a PENDING order. Customers always order for themselves.
func (c *Client) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (models.Order, error) {
	if identity, ok := c.session.Current(); ok && !identity.Can(models.CapOrderForAnyCustomer) {
		req.UserID = identity.UserID
	}
	req.AssetName = strings.ToUpper(strings.TrimSpace(req.AssetName))
	if err := c.validate.Struct(req); err != nil {
		return models.Order{}, newValidationError(err)
	}

	body := createOrderBody{
		UserID:    req.UserID,
		AssetName: req.AssetName,
		Side:      req.Side,
		Size:      json.Number(req.Size.String()),
		Price:     json.Number(req.Price.String()),
	}
	var order models.Order
	if err := c.gw.Call(ctx, http.MethodPost, "/orders", nil, body, &order); err != nil {
		return models.Order{}, fmt.Errorf("failed to create order: %w", err)
	}
	c.logger.Info("order created", "order_id", order.ID, "user_id", order.UserID,
		"asset", order.AssetName, "side", order.Side, "size", order.Size, "price", order.Price)
	return order, nil
}

// CancelOrder cancels a PENDING order and returns it in its new state
func (c *Client) CancelOrder(ctx context.Context, orderID int64) (models.Order, error) {
	var order models.Order
	path := "/orders/" + strconv.FormatInt(orderID, 10)
	if err := c.gw.Call(ctx, http.MethodDelete, path, nil, nil, &order); err != nil {
		return models.Order{}, fmt.Errorf("failed to cancel order %d: %w", orderID, err)
	}
	c.logger.Info("order cancelled", "order_id", orderID)
	return order, nil
}

// MatchOrder settles a PENDING order. It cannot be undone.
func (c *Client) MatchOrder(ctx context.Context, orderID int64) (models.Order, error) {
	var order models.Order
	body := map[string]int64{"orderId": orderID}
	if err := c.gw.Call(ctx, http.MethodPost, "/orders/match", nil, body, &order); err != nil {
		return models.Order{}, fmt.Errorf("failed to match order %d: %w", orderID, err)
	}
	c.logger.Info("order matched", "order_id", orderID)
	return order, nil
}

// ListPendingOrders lists every PENDING order
func (c *Client) ListPendingOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := c.gw.Call(ctx, http.MethodGet, "/orders/pending", nil, nil, &orders); err != nil {
		return nil, fmt.Errorf("failed to list pending orders: %w", err)
	}
	return orders, nil
}

// ListAssets lists holdings. userID selects the customer for administrators
// and is never sent for anyone else.
func (c *Client) ListAssets(ctx context.Context, userID int64) ([]models.AssetHolding, error) {
	var query url.Values
	if userID > 0 && c.can(models.CapViewAllCustomers) {
		query = url.Values{"userId": {strconv.FormatInt(userID, 10)}}
	}

	var holdings []models.AssetHolding
	if err := c.gw.Call(ctx, http.MethodGet, "/assets", query, nil, &holdings); err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	for _, h := range holdings {
		if err := h.Validate(); err != nil {
			c.logger.Warn("backend reported an inconsistent holding", "error", err)
		}
	}
	return holdings, nil
}

// ListAvailableInstruments returns the tradable asset names. It never fails:
// any error yields FallbackInstruments.
func (c *Client) ListAvailableInstruments(ctx context.Context) []string {
	var names []string
	if err := c.gw.Call(ctx, http.MethodGet, "/assets/available", nil, nil, &names); err != nil {
		c.logger.Warn("instrument catalog unavailable, using fallback", "error", err)
		return append([]string(nil), FallbackInstruments...)
	}
	return names
}

// HealthStatus is the backend health report
type HealthStatus struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Health queries the backend health endpoint
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var status HealthStatus
	if err := c.gw.Health(ctx, &status); err != nil {
		return HealthStatus{}, fmt.Errorf("health check failed: %w", err)
	}
	return status, nil
}

func (c *Client) can(capability models.Capability) bool {
	identity, ok := c.session.Current()
	return ok && identity.Can(capability)
}
