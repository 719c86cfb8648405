package coordinator

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xtrntr/brokerclient/internal/models"
)

// CustomerOrdersState is what the orders page renders
type CustomerOrdersState struct {
	Loaded   bool
	Orders   []models.Order
	Holdings []models.AssetHolding
}

// CustomerOrders backs the customer orders page: the caller's orders next
// to the holdings those orders reserve against
type CustomerOrders struct {
	backend Backend
	logger  *slog.Logger

	ops sync.Mutex // one load or mutation at a time

	mu    sync.RWMutex
	state CustomerOrdersState
}

// NewCustomerOrders creates an empty view
func NewCustomerOrders(backend Backend, logger *slog.Logger) *CustomerOrders {
	return &CustomerOrders{backend: backend, logger: logger}
}

// Load fetches orders and holdings together and commits only when both arrive
func (v *CustomerOrders) Load(ctx context.Context) error {
	v.ops.Lock()
	defer v.ops.Unlock()
	return v.load(ctx)
}

func (v *CustomerOrders) load(ctx context.Context) error {
	identity, err := identityOf(v.backend)
	if err != nil {
		return err
	}

	var orders []models.Order
	var holdings []models.AssetHolding
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = v.backend.ListOrders(gctx, models.OrderFilter{UserID: identity.UserID})
		return err
	})
	g.Go(func() error {
		var err error
		holdings, err = v.backend.ListAssets(gctx, identity.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	v.mu.Lock()
	v.state = CustomerOrdersState{Loaded: true, Orders: orders, Holdings: holdings}
	v.mu.Unlock()
	return nil
}

// State returns the committed state
func (v *CustomerOrders) State() CustomerOrdersState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// Create places an order and reloads the page state
func (v *CustomerOrders) Create(ctx context.Context, req models.CreateOrderRequest) (models.Order, error) {
	v.ops.Lock()
	defer v.ops.Unlock()

	order, err := v.backend.CreateOrder(ctx, req)
	if err != nil {
		return models.Order{}, err
	}
	return order, v.refresh(ctx)
}

// Cancel cancels a loaded order the caller may cancel, then reloads
func (v *CustomerOrders) Cancel(ctx context.Context, orderID int64) (models.Order, error) {
	v.ops.Lock()
	defer v.ops.Unlock()

	identity, err := identityOf(v.backend)
	if err != nil {
		return models.Order{}, err
	}
	o, ok := findOrder(v.State().Orders, orderID)
	if !ok {
		return models.Order{}, ErrUnknownOrder
	}
	if err := checkCancel(identity, o); err != nil {
		return models.Order{}, err
	}

	order, err := v.backend.CancelOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	return order, v.refresh(ctx)
}

// Reset drops everything the view holds
func (v *CustomerOrders) Reset() {
	v.mu.Lock()
	v.state = CustomerOrdersState{}
	v.mu.Unlock()
}

func (v *CustomerOrders) refresh(ctx context.Context) error {
	if err := v.load(ctx); err != nil {
		v.logger.Warn("refresh after mutation failed", "view", "orders", "error", err)
		return &RefreshError{Err: err}
	}
	return nil
}
