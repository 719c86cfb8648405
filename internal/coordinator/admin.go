package coordinator

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xtrntr/brokerclient/internal/models"
)

// AdminStats are the counters on top of the admin panel
type AdminStats struct {
	Total     int
	Pending   int
	Matched   int
	Customers int
}

// AdminState is what the admin panel renders
type AdminState struct {
	Loaded      bool
	Orders      []models.Order
	Pending     []models.Order
	Filtered    []models.Order
	Customers   []int64
	Instruments []string
	Filter      Filter
	Stats       AdminStats

	// Selected is the customer whose holdings are shown, 0 for none
	Selected    int64
	Cash        []models.AssetHolding
	Stocks      []models.AssetHolding
	Holdings    []models.AssetHolding
	HoldingsErr error
}

// AdminPanel backs the administrator view over every customer
type AdminPanel struct {
	backend Backend
	logger  *slog.Logger

	ops sync.Mutex // loads and mutations

	mu          sync.RWMutex
	orders      []models.Order
	pending     []models.Order
	customers   []int64
	instruments []string
	loaded      bool
	filter      Filter

	selected    int64
	selection   uint64 // bumped on every selection change
	holdings    []models.AssetHolding
	holdingsErr error
}

// NewAdminPanel creates an empty admin panel
func NewAdminPanel(backend Backend, logger *slog.Logger) *AdminPanel {
	return &AdminPanel{backend: backend, logger: logger}
}

// Load fetches all orders, the pending book and the instrument catalog
// together. Nothing is committed unless both order lists arrive.
func (v *AdminPanel) Load(ctx context.Context) error {
	v.ops.Lock()
	defer v.ops.Unlock()
	return v.load(ctx)
}

func (v *AdminPanel) load(ctx context.Context) error {
	identity, err := identityOf(v.backend)
	if err != nil {
		return err
	}
	if !identity.Can(models.CapViewAllCustomers) || !identity.Can(models.CapViewPendingBook) {
		return ErrForbidden
	}

	var orders, pending []models.Order
	var instruments []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = v.backend.ListOrders(gctx, models.OrderFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		pending, err = v.backend.ListPendingOrders(gctx)
		return err
	})
	g.Go(func() error {
		instruments = v.backend.ListAvailableInstruments(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	v.mu.Lock()
	v.orders = orders
	v.pending = pending
	v.customers = Customers(orders)
	v.instruments = instruments
	v.loaded = true
	v.mu.Unlock()
	return nil
}

// State returns the committed state with the filter applied
func (v *AdminPanel) State() AdminState {
	v.mu.RLock()
	defer v.mu.RUnlock()

	cash, stocks := SplitHoldings(v.holdings)
	return AdminState{
		Loaded:      v.loaded,
		Orders:      v.orders,
		Pending:     v.pending,
		Filtered:    v.filter.Apply(v.orders),
		Customers:   v.customers,
		Instruments: v.instruments,
		Filter:      v.filter,
		Stats: AdminStats{
			Total:     len(v.orders),
			Pending:   len(v.pending),
			Matched:   CountStatus(v.orders, models.OrderStatusMatched),
			Customers: len(v.customers),
		},
		Selected:    v.selected,
		Cash:        cash,
		Stocks:      stocks,
		Holdings:    v.holdings,
		HoldingsErr: v.holdingsErr,
	}
}

// SetFilter replaces the order filter
func (v *AdminPanel) SetFilter(f Filter) {
	v.mu.Lock()
	v.filter = f
	v.mu.Unlock()
}

// SelectCustomer shows customerID's holdings, discarding the previous
// customer's. 0 clears the selection. A fetch that finishes after the
// selection moved on is dropped.
func (v *AdminPanel) SelectCustomer(ctx context.Context, customerID int64) error {
	v.mu.Lock()
	v.selection++
	seq := v.selection
	v.selected = customerID
	v.holdings = nil
	v.holdingsErr = nil
	v.mu.Unlock()

	if customerID == 0 {
		return nil
	}
	return v.fetchHoldings(ctx, customerID, seq)
}

func (v *AdminPanel) fetchHoldings(ctx context.Context, customerID int64, seq uint64) error {
	holdings, err := v.backend.ListAssets(ctx, customerID)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.selection != seq {
		v.logger.Debug("dropping holdings for a superseded selection", "customer_id", customerID)
		return nil
	}
	if err != nil {
		v.holdings = nil
		v.holdingsErr = err
		return err
	}
	v.holdings = holdings
	v.holdingsErr = nil
	return nil
}

// Create places an order for any customer, then reloads
func (v *AdminPanel) Create(ctx context.Context, req models.CreateOrderRequest) (models.Order, error) {
	v.ops.Lock()
	defer v.ops.Unlock()

	identity, err := identityOf(v.backend)
	if err != nil {
		return models.Order{}, err
	}
	if !identity.Can(models.CapOrderForAnyCustomer) {
		return models.Order{}, ErrForbidden
	}
	order, err := v.backend.CreateOrder(ctx, req)
	if err != nil {
		return models.Order{}, err
	}
	return order, v.refresh(ctx)
}

// Cancel cancels a loaded PENDING order, then reloads
func (v *AdminPanel) Cancel(ctx context.Context, orderID int64) (models.Order, error) {
	return v.mutate(ctx, orderID, checkCancel, v.backend.CancelOrder)
}

// Match settles a loaded PENDING order, then reloads
func (v *AdminPanel) Match(ctx context.Context, orderID int64) (models.Order, error) {
	return v.mutate(ctx, orderID, checkMatch, v.backend.MatchOrder)
}

func (v *AdminPanel) mutate(
	ctx context.Context,
	orderID int64,
	check func(models.Identity, models.Order) error,
	call func(context.Context, int64) (models.Order, error),
) (models.Order, error) {
	v.ops.Lock()
	defer v.ops.Unlock()

	identity, err := identityOf(v.backend)
	if err != nil {
		return models.Order{}, err
	}
	v.mu.RLock()
	o, ok := findOrder(v.orders, orderID)
	if !ok {
		o, ok = findOrder(v.pending, orderID)
	}
	v.mu.RUnlock()
	if !ok {
		return models.Order{}, ErrUnknownOrder
	}
	if err := check(identity, o); err != nil {
		return models.Order{}, err
	}

	order, err := call(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	return order, v.refresh(ctx)
}

// refresh reloads the order lists and the selected customer's holdings,
// which a create, cancel or match may have changed
func (v *AdminPanel) refresh(ctx context.Context) error {
	if err := v.load(ctx); err != nil {
		v.logger.Warn("refresh after mutation failed", "view", "admin", "error", err)
		return &RefreshError{Err: err}
	}

	v.mu.RLock()
	customerID, seq := v.selected, v.selection
	v.mu.RUnlock()
	if customerID == 0 {
		return nil
	}
	if err := v.fetchHoldings(ctx, customerID, seq); err != nil {
		v.logger.Warn("holdings refresh after mutation failed", "customer_id", customerID, "error", err)
		return &RefreshError{Err: err}
	}
	return nil
}

// Reset drops everything the view holds, including the selection
func (v *AdminPanel) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.orders, v.pending, v.customers, v.instruments = nil, nil, nil, nil
	v.loaded = false
	v.filter = Filter{}
	v.selection++
	v.selected = 0
	v.holdings = nil
	v.holdingsErr = nil
}
