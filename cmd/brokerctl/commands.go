package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/xtrntr/brokerclient/internal/coordinator"
	"github.com/xtrntr/brokerclient/internal/models"
)

type command struct {
	summary string
	flags   func(fs *pflag.FlagSet)
	run     func(ctx context.Context, a *app, fs *pflag.FlagSet) error
}

func noFlags(*pflag.FlagSet) {}

var errNotLoggedIn = errors.New("not logged in, run 'brokerctl login'")

var commands = map[string]command{
	"login": {
		summary: "log in and remember the session",
		flags: func(fs *pflag.FlagSet) {
			fs.StringP("username", "u", "", "username")
			fs.StringP("password", "p", "", "password, read from stdin when empty")
		},
		run: runLogin,
	},
	"logout":      {summary: "forget the session", flags: noFlags, run: runLogout},
	"whoami":      {summary: "show the logged in user", flags: noFlags, run: runWhoami},
	"dashboard":   {summary: "recent orders and balance summary", flags: noFlags, run: runDashboard},
	"orders":      {summary: "list orders", flags: orderListFlags, run: runOrders},
	"create":      {summary: "place an order", flags: createFlags, run: runCreate},
	"cancel":      {summary: "cancel a pending order: cancel <order-id>", flags: noFlags, run: runCancel},
	"pending":     {summary: "list pending orders of every customer (admin)", flags: noFlags, run: runPending},
	"match":       {summary: "match a pending order (admin): match <order-id>", flags: noFlags, run: runMatch},
	"assets":      {summary: "list asset holdings", flags: assetFlags, run: runAssets},
	"admin":       {summary: "admin panel overview (admin)", flags: adminFlags, run: runAdmin},
	"instruments": {summary: "list tradable instruments", flags: noFlags, run: runInstruments},
	"health":      {summary: "check the backend health endpoint", flags: noFlags, run: runHealth},
}

func (a *app) identity() (models.Identity, error) {
	identity, ok := a.store.Current()
	if !ok {
		return models.Identity{}, errNotLoggedIn
	}
	return identity, nil
}

func runLogin(ctx context.Context, a *app, fs *pflag.FlagSet) error {
	username, _ := fs.GetString("username")
	password, _ := fs.GetString("password")
	if username == "" {
		return fmt.Errorf("%w: login requires --username", errUsage)
	}
	if password == "" {
		line, err := bufio.NewReader(a.stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	identity, err := a.client.Login(ctx, username, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Logged in as %s (%s)\n", identity.Username, role(identity))
	return nil
}

func runLogout(ctx context.Context, a *app, _ *pflag.FlagSet) error {
	a.client.Logout(ctx)
	fmt.Fprintln(a.stdout, "Logged out")
	return nil
}

func runWhoami(_ context.Context, a *app, _ *pflag.FlagSet) error {
	identity, err := a.identity()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s (id %d, %s)\n", identity.Username, identity.UserID, role(identity))
	return nil
}

func runDashboard(ctx context.Context, a *app, _ *pflag.FlagSet) error {
	identity, err := a.identity()
	if err != nil {
		return err
	}
	view := coordinator.NewDashboard(a.client, a.logger)
	if err := view.Load(ctx); err != nil {
		return err
	}
	state := view.State()
	fmt.Fprintf(a.stdout, "Welcome, %s\n", identity.Username)
	fmt.Fprintf(a.stdout, "Cash: %s %s   Stock holdings: %d   Orders: %d\n\n",
		state.CashTotal.String(), models.CashAsset, state.StockCount, len(state.Orders))
	fmt.Fprintln(a.stdout, "Recent orders")
	return printOrders(a.stdout, state.Recent)
}

func orderListFlags(fs *pflag.FlagSet) {
	fs.Int64("user", 0, "customer id (admin only)")
	fs.String("from", "", "start date, YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS")
	fs.String("to", "", "end date, YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS")
}

func runOrders(ctx context.Context, a *app, fs *pflag.FlagSet) error {
	if _, err := a.identity(); err != nil {
		return err
	}
	userID, _ := fs.GetInt64("user")
	from, err := dateFlag(fs, "from", false)
	if err != nil {
		return err
	}
	to, err := dateFlag(fs, "to", true)
	if err != nil {
		return err
	}

	orders, err := a.client.ListOrders(ctx, models.OrderFilter{UserID: userID, StartDate: from, EndDate: to})
	if err != nil {
		return err
	}
	return printOrders(a.stdout, orders)
}

// dateFlag reads a date or date-time flag. A bare end date covers the
// whole day.
func dateFlag(fs *pflag.FlagSet, name string, endOfDay bool) (time.Time, error) {
	raw, _ := fs.GetString(name)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Second)
		}
		return t, nil
	}
	t, err := models.ParseDateTime(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid --%s %q", errUsage, name, raw)
	}
	return t, nil
}

func createFlags(fs *pflag.FlagSet) {
	fs.Int64("user", 0, "customer id the order is for (admin only)")
	fs.String("asset", "", "asset name, e.g. AAPL")
	fs.String("side", "", "BUY or SELL")
	fs.String("size", "", "order size")
	fs.String("price", "", "limit price")
}

func runCreate(ctx context.Context, a *app, fs *pflag.FlagSet) error {
	identity, err := a.identity()
	if err != nil {
		return err
	}
	req, err := orderRequest(fs)
	if err != nil {
		return err
	}

	var order models.Order
	if identity.Can(models.CapOrderForAnyCustomer) {
		order, err = coordinator.NewAdminPanel(a.client, a.logger).Create(ctx, req)
	} else {
		order, err = coordinator.NewCustomerOrders(a.client, a.logger).Create(ctx, req)
	}
	if err = warnOnRefresh(a, err); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Order %d placed\n", order.ID)
	return printOrders(a.stdout, []models.Order{order})
}

func orderRequest(fs *pflag.FlagSet) (models.CreateOrderRequest, error) {
	userID, _ := fs.GetInt64("user")
	asset, _ := fs.GetString("asset")
	side, _ := fs.GetString("side")
	req := models.CreateOrderRequest{
		UserID:    userID,
		AssetName: asset,
		Side:      models.OrderSide(strings.ToUpper(side)),
	}
	for _, f := range []struct {
		name string
		dst  *decimal.Decimal
	}{{"size", &req.Size}, {"price", &req.Price}} {
		raw, _ := fs.GetString(f.name)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return req, fmt.Errorf("%w: invalid --%s %q", errUsage, f.name, raw)
		}
		*f.dst = d
	}
	return req, nil
}

func orderIDArg(fs *pflag.FlagSet) (int64, error) {
	if fs.NArg() != 1 {
		return 0, fmt.Errorf("%w: expected one order id", errUsage)
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid order id %q", errUsage, fs.Arg(0))
	}
	return id, nil
}

func runCancel(ctx context.Context, a *app, fs *pflag.FlagSet) error {
	identity, err := a.identity()
	if err != nil {
		return err
	}
	orderID, err := orderIDArg(fs)
	if err != nil {
		return err
	}

	var order models.Order
	if identity.IsAdmin {
		panel := coordinator.NewAdminPanel(a.client, a.logger)
		if err := panel.Load(ctx); err != nil {
			return err
		}
		order, err = panel.Cancel(ctx, orderID)
	} else {
		view := coordinator.NewCustomerOrders(a.client, a.logger)
		if err := view.Load(ctx); err != nil {
			return err
		}
		order, err = view.Cancel(ctx, orderID)
	}
	if err = warnOnRefresh(a, err); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Order %d %s\n", order.ID, strings.ToLower(string(order.Status)))
	return nil
}

func runPending(ctx context.Context, a *app, _ *pflag.FlagSet) error {
	if _, err := a.identity(); err != nil {
		return err
	}
	orders, err := a.client.ListPendingOrders(ctx)
	if err != nil {
		return err
	}
	return printOrders(a.stdout, orders)
}

func runMatch(ctx context.Context, a *app, fs *pflag.FlagSet) error {
	if _, err := a.identity(); err != nil {
		return err
	}
	orderID, err := orderIDArg(fs)
	if err != nil {
		return err
	}
	panel := coordinator.NewAdminPanel(a.client, a.logger)
	if err := panel.Load(ctx); err != nil {
		return err
	}
	order, err := panel.Match(ctx, orderID)
	if err = warnOnRefresh(a, err); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Order %d %s\n", order.ID, strings.ToLower(string(order.Status)))
	return nil
}

func assetFlags(fs *pflag.FlagSet) {
	fs.Int64("user", 0, "customer id (admin only, required for admins)")
}

func runAssets(ctx context.Context, a *app, fs *pflag.FlagSet) error {
	if _, err := a.identity(); err != nil {
		return err
	}
	userID, _ := fs.GetInt64("user")
	holdings, err := a.client.ListAssets(ctx, userID)
	if err != nil {
		return err
	}
	return printHoldings(a.stdout, holdings)
}

func adminFlags(fs *pflag.FlagSet) {
	fs.Int64("customer", 0, "show only this customer's orders")
	fs.String("asset", "", "show only orders for this asset")
	fs.Int64("holdings", 0, "also show this customer's holdings")
}

func runAdmin(ctx context.Context, a *app, fs *pflag.FlagSet) error {
	if _, err := a.identity(); err != nil {
		return err
	}
	customer, _ := fs.GetInt64("customer")
	asset, _ := fs.GetString("asset")
	holdingsOf, _ := fs.GetInt64("holdings")

	panel := coordinator.NewAdminPanel(a.client, a.logger)
	panel.SetFilter(coordinator.Filter{Customer: customer, Instrument: asset})
	if err := panel.Load(ctx); err != nil {
		return err
	}
	if holdingsOf > 0 {
		if err := panel.SelectCustomer(ctx, holdingsOf); err != nil {
			return err
		}
	}

	state := panel.State()
	fmt.Fprintf(a.stdout, "Orders: %d   Pending: %d   Matched: %d   Customers: %d\n\n",
		state.Stats.Total, state.Stats.Pending, state.Stats.Matched, state.Stats.Customers)
	if err := printOrders(a.stdout, state.Filtered); err != nil {
		return err
	}
	if state.Selected > 0 {
		fmt.Fprintf(a.stdout, "\nHoldings of customer %d\n", state.Selected)
		return printHoldings(a.stdout, state.Holdings)
	}
	return nil
}

func runInstruments(ctx context.Context, a *app, _ *pflag.FlagSet) error {
	for _, name := range a.client.ListAvailableInstruments(ctx) {
		fmt.Fprintln(a.stdout, name)
	}
	return nil
}

func runHealth(ctx context.Context, a *app, _ *pflag.FlagSet) error {
	status, err := a.client.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s %s\n", status.Status, status.Timestamp)
	return nil
}

// warnOnRefresh lets a mutation the backend applied succeed even when the
// reload after it failed
func warnOnRefresh(a *app, err error) error {
	var refreshErr *coordinator.RefreshError
	if errors.As(err, &refreshErr) {
		a.logger.Warn("reload after change failed", "error", refreshErr.Err)
		return nil
	}
	return err
}

func role(i models.Identity) string {
	if i.IsAdmin {
		return "admin"
	}
	return "customer"
}
