package coordinator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xtrntr/brokerclient/internal/models"
)

// DashboardState is the customer landing page
type DashboardState struct {
	Loaded     bool
	Holdings   []models.AssetHolding
	Orders     []models.Order
	Recent     []models.Order
	CashTotal  decimal.Decimal
	StockCount int
}

// Dashboard backs the customer landing page
type Dashboard struct {
	backend Backend
	logger  *slog.Logger

	ops sync.Mutex

	mu    sync.RWMutex
	state DashboardState
}

// NewDashboard creates an empty dashboard
func NewDashboard(backend Backend, logger *slog.Logger) *Dashboard {
	return &Dashboard{backend: backend, logger: logger}
}

// Load fetches holdings and orders together and derives the aggregates
func (v *Dashboard) Load(ctx context.Context) error {
	v.ops.Lock()
	defer v.ops.Unlock()

	identity, err := identityOf(v.backend)
	if err != nil {
		return err
	}

	var holdings []models.AssetHolding
	var orders []models.Order
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		holdings, err = v.backend.ListAssets(gctx, identity.UserID)
		return err
	})
	g.Go(func() error {
		var err error
		orders, err = v.backend.ListOrders(gctx, models.OrderFilter{UserID: identity.UserID})
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	v.mu.Lock()
	v.state = DashboardState{
		Loaded:     true,
		Holdings:   holdings,
		Orders:     orders,
		Recent:     Recent(orders, RecentLimit),
		CashTotal:  CashTotal(holdings),
		StockCount: StockCount(holdings),
	}
	v.mu.Unlock()
	v.logger.Debug("dashboard loaded", "user_id", identity.UserID, "orders", len(orders), "holdings", len(holdings))
	return nil
}

// State returns the committed state
func (v *Dashboard) State() DashboardState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// Reset drops everything the view holds
func (v *Dashboard) Reset() {
	v.mu.Lock()
	v.state = DashboardState{}
	v.mu.Unlock()
}

// AssetsState is the customer holdings page
type AssetsState struct {
	Loaded   bool
	Cash     []models.AssetHolding
	Stocks   []models.AssetHolding
	Holdings []models.AssetHolding
}

// Assets backs the customer holdings page
type Assets struct {
	backend Backend

	mu    sync.RWMutex
	state AssetsState
}

// NewAssets creates an empty holdings view
func NewAssets(backend Backend) *Assets {
	return &Assets{backend: backend}
}

// Load fetches the caller's holdings
func (v *Assets) Load(ctx context.Context) error {
	identity, err := identityOf(v.backend)
	if err != nil {
		return err
	}
	holdings, err := v.backend.ListAssets(ctx, identity.UserID)
	if err != nil {
		return err
	}
	cash, stocks := SplitHoldings(holdings)

	v.mu.Lock()
	v.state = AssetsState{Loaded: true, Cash: cash, Stocks: stocks, Holdings: holdings}
	v.mu.Unlock()
	return nil
}

// State returns the committed state
func (v *Assets) State() AssetsState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// Reset drops everything the view holds
func (v *Assets) Reset() {
	v.mu.Lock()
	v.state = AssetsState{}
	v.mu.Unlock()
}
