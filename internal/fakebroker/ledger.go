// Package fakebroker emulates the brokerage backend in memory: per-request
// header credentials, order lifecycle and the usable-balance reservation
// math. It backs local development and the client test suites.
package fakebroker

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtrntr/brokerclient/internal/models"
)

// Backend errors. Handlers turn them into the backend's plain-text replies.
var (
	ErrInvalidCredentials  = errors.New("Invalid credentials")
	ErrOrderNotFound       = errors.New("Order not found")
	ErrInsufficientBalance = errors.New("Insufficient usable balance")
	ErrNotOwnOrder         = errors.New("You can only cancel your own orders")
	ErrNotPendingCancel    = errors.New("Only pending orders can be cancelled")
	ErrNotPendingMatch     = errors.New("Only pending orders can be matched")
	ErrUserExists          = errors.New("username already taken")
)

// User is an account known to the backend
type User struct {
	ID       int64
	Username string
	IsAdmin  bool
	hash     []byte
}

type holdingKey struct {
	userID int64
	asset  string
}

// Backend is the in-memory brokerage
type Backend struct {
	mu          sync.Mutex
	users       map[string]*User
	nextUserID  int64
	orders      map[int64]*models.Order
	nextOrderID int64
	holdings    map[holdingKey]*models.AssetHolding

	instruments []string
	cost        int
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Backend
type Option func(*Backend)

// WithInstruments serves names from GET /api/assets/available. Without it the
// endpoint does not exist, as on the real backend.
func WithInstruments(names ...string) Option {
	return func(b *Backend) { b.instruments = names }
}

// WithBcryptCost sets the password hashing cost
func WithBcryptCost(cost int) Option {
	return func(b *Backend) { b.cost = cost }
}

// WithClock replaces time.Now for order timestamps
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) { b.logger = logger }
}

// New creates an empty backend
func New(opts ...Option) *Backend {
	b := &Backend{
		users:       make(map[string]*User),
		nextUserID:  1,
		orders:      make(map[int64]*models.Order),
		nextOrderID: 1,
		holdings:    make(map[holdingKey]*models.AssetHolding),
		cost:        bcrypt.DefaultCost,
		now:         time.Now,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddUser registers an account and returns its id
func (b *Backend) AddUser(username, password string, admin bool) (int64, error) {
	if username == "" || password == "" {
		return 0, fmt.Errorf("username and password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return 0, fmt.Errorf("failed to hash password: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[username]; ok {
		return 0, ErrUserExists
	}
	u := &User{ID: b.nextUserID, Username: username, IsAdmin: admin, hash: hash}
	b.users[username] = u
	b.nextUserID++
	return u.ID, nil
}

// Deposit adds size to both the total and usable amount of a holding
func (b *Backend) Deposit(userID int64, asset string, size decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.holdingLocked(userID, asset)
	h.Size = h.Size.Add(size)
	h.UsableSize = h.UsableSize.Add(size)
}

// Authenticate checks a username and password pair
func (b *Backend) Authenticate(username, password string) (User, error) {
	b.mu.Lock()
	u, ok := b.users[username]
	b.mu.Unlock()
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return *u, nil
}

// PlaceOrder reserves the order's cost and records it as PENDING. A BUY
// reserves size*price of cash; a SELL reserves size of the asset.
func (b *Backend) PlaceOrder(userID int64, asset string, side models.OrderSide, size, price decimal.Decimal) (models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	order := models.Order{
		UserID:     userID,
		AssetName:  asset,
		Side:       side,
		Size:       size,
		Price:      price,
		Status:     models.OrderStatusPending,
		CreateDate: models.Timestamp{Time: wallClock(b.now())},
	}

	reserveAsset, amount := reservation(order)
	h, ok := b.holdings[holdingKey{userID, reserveAsset}]
	if !ok || h.UsableSize.LessThan(amount) {
		return models.Order{}, ErrInsufficientBalance
	}
	h.UsableSize = h.UsableSize.Sub(amount)

	order.ID = b.nextOrderID
	b.nextOrderID++
	b.orders[order.ID] = &order
	b.logger.Info("order placed", "order_id", order.ID, "user_id", userID, "side", side, "asset", asset)
	return order, nil
}

// CancelOrder releases the reservation of a PENDING order. Non-admins may
// only cancel their own orders.
func (b *Backend) CancelOrder(orderID int64, caller User) (models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[orderID]
	if !ok {
		return models.Order{}, ErrOrderNotFound
	}
	if !caller.IsAdmin && o.UserID != caller.ID {
		return models.Order{}, ErrNotOwnOrder
	}
	if o.Status != models.OrderStatusPending {
		return models.Order{}, ErrNotPendingCancel
	}

	asset, amount := reservation(*o)
	if h, ok := b.holdings[holdingKey{o.UserID, asset}]; ok {
		h.UsableSize = h.UsableSize.Add(amount)
	}
	o.Status = models.OrderStatusCancelled
	b.logger.Info("order cancelled", "order_id", orderID)
	return *o, nil
}

// MatchOrder settles a PENDING order against the owner's holdings
func (b *Backend) MatchOrder(orderID int64) (models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[orderID]
	if !ok {
		return models.Order{}, ErrOrderNotFound
	}
	if o.Status != models.OrderStatusPending {
		return models.Order{}, ErrNotPendingMatch
	}

	total := o.Total()
	switch o.Side {
	case models.OrderSideBuy:
		// the reserved cash leaves; the bought asset arrives fully usable
		if cash, ok := b.holdings[holdingKey{o.UserID, models.CashAsset}]; ok {
			cash.Size = cash.Size.Sub(total)
		}
		h := b.holdingLocked(o.UserID, o.AssetName)
		h.Size = h.Size.Add(o.Size)
		h.UsableSize = h.UsableSize.Add(o.Size)
	case models.OrderSideSell:
		if h, ok := b.holdings[holdingKey{o.UserID, o.AssetName}]; ok {
			h.Size = h.Size.Sub(o.Size)
		}
		cash := b.holdingLocked(o.UserID, models.CashAsset)
		cash.Size = cash.Size.Add(total)
		cash.UsableSize = cash.UsableSize.Add(total)
	}
	o.Status = models.OrderStatusMatched
	b.logger.Info("order matched", "order_id", orderID)
	return *o, nil
}

// Orders lists orders ordered by id. userID 0 means every user; zero dates
// mean no range. The range only applies when both ends are given.
func (b *Backend) Orders(userID int64, start, end time.Time) []models.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	ranged := !start.IsZero() && !end.IsZero()
	out := make([]models.Order, 0, len(b.orders))
	for _, o := range b.orders {
		if userID != 0 && o.UserID != userID {
			continue
		}
		if ranged && (o.CreateDate.Before(start) || o.CreateDate.After(end)) {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PendingOrders lists every PENDING order
func (b *Backend) PendingOrders() []models.Order {
	all := b.Orders(0, time.Time{}, time.Time{})
	out := all[:0]
	for _, o := range all {
		if o.Status == models.OrderStatusPending {
			out = append(out, o)
		}
	}
	return out
}

// Holdings lists a user's holdings ordered by asset name
func (b *Backend) Holdings(userID int64) []models.AssetHolding {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.AssetHolding, 0)
	for k, h := range b.holdings {
		if k.userID == userID {
			out = append(out, *h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetName < out[j].AssetName })
	return out
}

// Instruments returns the configured catalog and whether one is configured
func (b *Backend) Instruments() ([]string, bool) {
	if b.instruments == nil {
		return nil, false
	}
	return append([]string(nil), b.instruments...), true
}

func (b *Backend) holdingLocked(userID int64, asset string) *models.AssetHolding {
	k := holdingKey{userID, asset}
	h, ok := b.holdings[k]
	if !ok {
		h = &models.AssetHolding{CustomerID: userID, AssetName: asset}
		b.holdings[k] = h
	}
	return h
}

// wallClock drops the zone but keeps the reading, the way the backend stores
// local date-times
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// reservation returns which holding an order locks and by how much
func reservation(o models.Order) (string, decimal.Decimal) {
	if o.Side == models.OrderSideBuy {
		return models.CashAsset, o.Total()
	}
	return o.AssetName, o.Size
}
