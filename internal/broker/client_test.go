package broker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtrntr/brokerclient/internal/fakebroker"
	"github.com/xtrntr/brokerclient/internal/gateway"
	"github.com/xtrntr/brokerclient/internal/logging"
	"github.com/xtrntr/brokerclient/internal/models"
	"github.com/xtrntr/brokerclient/internal/session"
)

type testEnv struct {
	client    *Client
	store     *session.Store
	fb        *fakebroker.Backend
	redirects int
	mu        sync.Mutex
}

func newClientFor(t *testing.T, handler http.Handler) *testEnv {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := session.Open(context.Background(),
		session.NewFilePersisterFs(afero.NewMemMapFs(), "/session"), logging.Discard())
	require.NoError(t, err)

	env := &testEnv{store: store}
	nav := gateway.NavigatorFunc(func() {
		env.mu.Lock()
		env.redirects++
		env.mu.Unlock()
	})
	gw := gateway.New(gateway.Config{BaseURL: srv.URL + "/api", HealthURL: srv.URL},
		store, nav, logging.Discard(), nil)
	env.client = NewClient(gw, store, logging.Discard())
	return env
}

func newEnv(t *testing.T, opts ...fakebroker.Option) *testEnv {
	t.Helper()
	fb := fakebroker.New(append([]fakebroker.Option{fakebroker.WithBcryptCost(bcrypt.MinCost)}, opts...)...)
	require.NoError(t, fb.Seed(fakebroker.DefaultAccounts))
	env := newClientFor(t, fb.Router())
	env.fb = fb
	return env
}

func (e *testEnv) redirectCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.redirects
}

func TestLogin(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	identity, err := env.client.Login(ctx, "customer1", "pass123")
	require.NoError(t, err)
	assert.Equal(t, models.Identity{
		Username: "customer1", Password: "pass123", UserID: 2, IsAdmin: false, Message: "Login successful",
	}, identity)

	current, ok := env.store.Current()
	require.True(t, ok)
	assert.Equal(t, identity, current)
	assert.False(t, env.store.IsAdministrator())

	env.client.Logout(ctx)
	assert.False(t, env.store.IsAuthenticated())
	env.client.Logout(ctx)
}

func TestLogin_Rejected(t *testing.T) {
	env := newEnv(t)

	_, err := env.client.Login(context.Background(), "customer1", "wrong")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Invalid credentials", authErr.Message)
	assert.ErrorIs(t, err, gateway.ErrUnauthorized)
	assert.False(t, env.store.IsAuthenticated())
}

func TestLogin_ReplyShapes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantID  int64
		wantErr string
		wantIs  error
	}{
		{"Backend customerId field", http.StatusOK, `{"message":"Login successful","customerId":7,"isAdmin":false}`, 7, "", nil},
		{"userId field", http.StatusOK, `{"userId":7,"isAdmin":true}`, 7, "", nil},
		{"Missing id", http.StatusOK, `{"message":"Login successful"}`, 0, DefaultLoginFailure, ErrInvalidResponse},
		{"Server error without message", http.StatusInternalServerError, ``, 0, DefaultLoginFailure, nil},
		{"Server error with message", http.StatusInternalServerError, `{"message":"Login failed: db down"}`, 0, "Login failed: db down", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			env := newClientFor(t, r)

			identity, err := env.client.Login(context.Background(), "someone", "secret")
			if tt.wantErr != "" {
				var authErr *AuthError
				require.ErrorAs(t, err, &authErr)
				assert.Equal(t, tt.wantErr, authErr.Error())
				if tt.wantIs != nil {
					assert.ErrorIs(t, err, tt.wantIs)
				}
				assert.False(t, env.store.IsAuthenticated())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, identity.UserID)
			current, _ := env.store.Current()
			assert.Equal(t, tt.wantID, current.UserID)
		})
	}
}

func TestLaterUnauthorizedTearsDown(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	_, err := env.client.Login(ctx, "customer1", "pass123")
	require.NoError(t, err)

	// the stored password no longer matches what the backend holds
	current, _ := env.store.Current()
	current.Password = "rotated"
	require.NoError(t, env.store.Save(ctx, current))

	_, err = env.client.ListOrders(ctx, models.OrderFilter{})
	assert.ErrorIs(t, err, gateway.ErrUnauthorized)
	assert.False(t, env.store.IsAuthenticated())
	assert.Equal(t, 1, env.redirectCount())

	_, err = env.client.ListAssets(ctx, 0)
	assert.ErrorIs(t, err, gateway.ErrUnauthorized)
}

func TestCreateOrder_Validation(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	_, err := env.client.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	valid := models.CreateOrderRequest{
		UserID: 2, AssetName: "AAPL", Side: models.OrderSideBuy,
		Size: decimal.NewFromInt(1), Price: decimal.NewFromInt(10),
	}
	tests := []struct {
		name   string
		mutate func(r *models.CreateOrderRequest)
		field  string
	}{
		{"Missing user", func(r *models.CreateOrderRequest) { r.UserID = 0 }, "userId must be positive"},
		{"Blank asset", func(r *models.CreateOrderRequest) { r.AssetName = "  " }, "assetName is required"},
		{"Bad side", func(r *models.CreateOrderRequest) { r.Side = "HOLD" }, "side must be one of BUY SELL"},
		{"Zero size", func(r *models.CreateOrderRequest) { r.Size = decimal.Zero }, "size must be positive"},
		{"Negative price", func(r *models.CreateOrderRequest) { r.Price = decimal.NewFromInt(-5) }, "price must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := env.client.CreateOrder(ctx, req)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Contains(t, vErr.Fields, tt.field)
		})
	}
	assert.Empty(t, env.fb.Orders(0, time.Time{}, time.Time{}), "nothing reached the backend")

	order, err := env.client.CreateOrder(ctx, valid)
	require.NoError(t, err)
	assert.Equal(t, int64(2), order.UserID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.True(t, order.Price.Equal(decimal.NewFromInt(10)))
}

func TestOrderValidator_ExactDecimals(t *testing.T) {
	v := newValidator()
	tiny := decimal.New(1, -400)

	tests := []struct {
		name  string
		size  decimal.Decimal
		valid bool
	}{
		{"Below float64 range", tiny, true},
		{"Negative below float64 range", tiny.Neg(), false},
		{"Zero", decimal.Zero, false},
		{"Large", decimal.New(1, 400), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := models.CreateOrderRequest{
				UserID: 2, AssetName: "AAPL", Side: models.OrderSideBuy,
				Size: tt.size, Price: tiny,
			}
			err := v.Struct(req)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, newValidationError(err), &vErr)
			assert.Equal(t, []string{"size must be positive"}, vErr.Fields)
		})
	}
}

func TestCustomerScoping(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	_, err := env.fb.PlaceOrder(3, "GOOGL", models.OrderSideSell, decimal.NewFromInt(1), decimal.NewFromInt(100))
	require.NoError(t, err)

	_, err = env.client.Login(ctx, "customer1", "pass123")
	require.NoError(t, err)

	// another customer's id is never sent, so both calls see the same thing
	scoped, err := env.client.ListAssets(ctx, 5)
	require.NoError(t, err)
	plain, err := env.client.ListAssets(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, plain, scoped)

	orders, err := env.client.ListOrders(ctx, models.OrderFilter{UserID: 3})
	require.NoError(t, err)
	assert.Empty(t, orders)

	// a customer order always targets the caller
	order, err := env.client.CreateOrder(ctx, models.CreateOrderRequest{
		UserID: 3, AssetName: "aapl", Side: models.OrderSideSell,
		Size: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), order.UserID)
	assert.Equal(t, "AAPL", order.AssetName)

	_, err = env.client.ListPendingOrders(ctx)
	var apiErr *gateway.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.True(t, env.store.IsAuthenticated(), "403 leaves the session alone")
}

func TestAdminOperations(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	env := newEnv(t, fakebroker.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	_, err := env.client.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	first, err := env.client.CreateOrder(ctx, models.CreateOrderRequest{
		UserID: 2, AssetName: "AAPL", Side: models.OrderSideSell,
		Size: decimal.NewFromInt(2), Price: decimal.RequireFromString("150.25"),
	})
	require.NoError(t, err)
	now = now.Add(72 * time.Hour)
	second, err := env.client.CreateOrder(ctx, models.CreateOrderRequest{
		UserID: 3, AssetName: "GOOGL", Side: models.OrderSideSell,
		Size: decimal.NewFromInt(1), Price: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	orders, err := env.client.ListOrders(ctx, models.OrderFilter{UserID: 2})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, first.ID, orders[0].ID)
	assert.True(t, orders[0].CreateDate.Equal(time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)))

	ranged, err := env.client.ListOrders(ctx, models.OrderFilter{
		StartDate: time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, second.ID, ranged[0].ID)

	pending, err := env.client.ListPendingOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	matched, err := env.client.MatchOrder(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusMatched, matched.Status)

	_, err = env.client.MatchOrder(ctx, first.ID)
	var apiErr *gateway.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Failed to match order: Only pending orders can be matched", apiErr.Message)

	cancelled, err := env.client.CancelOrder(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)

	holdings, err := env.client.ListAssets(ctx, 2)
	require.NoError(t, err)
	for _, h := range holdings {
		assert.NoError(t, h.Validate())
		if h.IsCash() {
			assert.True(t, h.Size.Equal(decimal.RequireFromString("10300.5")))
		}
	}

	_, err = env.client.ListAssets(ctx, 0)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestListAvailableInstruments(t *testing.T) {
	t.Run("Catalog served", func(t *testing.T) {
		env := newEnv(t, fakebroker.WithInstruments("AAPL", "AMZN"))
		_, err := env.client.Login(context.Background(), "customer1", "pass123")
		require.NoError(t, err)
		assert.Equal(t, []string{"AAPL", "AMZN"}, env.client.ListAvailableInstruments(context.Background()))
	})

	t.Run("Endpoint missing", func(t *testing.T) {
		env := newEnv(t)
		_, err := env.client.Login(context.Background(), "customer1", "pass123")
		require.NoError(t, err)
		got := env.client.ListAvailableInstruments(context.Background())
		assert.Equal(t, []string{"AAPL", "GOOGL", "MSFT", "NVDA", "TSLA"}, got)

		got[0] = "CHANGED"
		assert.Equal(t, "AAPL", FallbackInstruments[0])
	})

	t.Run("Transport failure", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		store, err := session.Open(context.Background(),
			session.NewFilePersisterFs(afero.NewMemMapFs(), "/s"), logging.Discard())
		require.NoError(t, err)
		gw := gateway.New(gateway.Config{BaseURL: srv.URL + "/api", HealthURL: srv.URL}, store, nil, logging.Discard(), nil)
		client := NewClient(gw, store, logging.Discard())

		assert.Equal(t, FallbackInstruments, client.ListAvailableInstruments(context.Background()))

		_, err = client.Health(context.Background())
		var transportErr *gateway.TransportError
		assert.True(t, errors.As(err, &transportErr))
	})
}

func TestHealth(t *testing.T) {
	env := newEnv(t)
	status, err := env.client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "UP", status.Status)
	assert.NotEmpty(t, status.Timestamp)
}
