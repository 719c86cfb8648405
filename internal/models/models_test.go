package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetHolding_Reserved(t *testing.T) {
	tests := []struct {
		name        string
		holding     AssetHolding
		reserved    string
		expectError bool
	}{
		{
			name:     "Nothing reserved",
			holding:  AssetHolding{AssetName: "AAPL", Size: decimal.NewFromInt(10), UsableSize: decimal.NewFromInt(10)},
			reserved: "0",
		},
		{
			name:     "Partially reserved cash",
			holding:  AssetHolding{AssetName: CashAsset, Size: decimal.RequireFromString("10000.00"), UsableSize: decimal.RequireFromString("9250.50")},
			reserved: "749.5",
		},
		{
			name:        "Usable exceeds size",
			holding:     AssetHolding{AssetName: "AAPL", Size: decimal.NewFromInt(1), UsableSize: decimal.NewFromInt(2)},
			reserved:    "-1",
			expectError: true,
		},
		{
			name:        "Negative usable",
			holding:     AssetHolding{AssetName: "AAPL", Size: decimal.NewFromInt(1), UsableSize: decimal.NewFromInt(-1)},
			reserved:    "2",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, decimal.RequireFromString(tt.reserved).Equal(tt.holding.Reserved()), "reserved = %s", tt.holding.Reserved())
			if tt.expectError {
				assert.Error(t, tt.holding.Validate())
			} else {
				assert.NoError(t, tt.holding.Validate())
			}
		})
	}
}

func TestAssetHolding_IsCash(t *testing.T) {
	assert.True(t, AssetHolding{AssetName: "TRY"}.IsCash())
	assert.False(t, AssetHolding{AssetName: "AAPL"}.IsCash())
}

func TestOrderStatus_Terminal(t *testing.T) {
	assert.False(t, OrderStatusPending.Terminal())
	assert.True(t, OrderStatusMatched.Terminal())
	assert.True(t, OrderStatusCancelled.Terminal())
}

func TestOrder_DecodeBackendPayload(t *testing.T) {
	payload := `{"id":3,"userId":2,"assetName":"AAPL","orderSide":"BUY","size":5.00,"price":"150.25","status":"PENDING","createDate":"2025-03-14T09:26:53.589"}`

	var order Order
	require.NoError(t, json.Unmarshal([]byte(payload), &order))

	assert.Equal(t, int64(3), order.ID)
	assert.Equal(t, OrderSideBuy, order.Side)
	assert.True(t, decimal.RequireFromString("751.25").Equal(order.Total()))
	assert.Equal(t, time.Date(2025, 3, 14, 9, 26, 53, 589000000, time.UTC), order.CreateDate.Time)
}

func TestTimestamp_RoundTripLayouts(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"Seconds", `"2025-01-02T03:04:05"`, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"RFC3339", `"2025-01-02T03:04:05Z"`, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"Null", `null`, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.input), &ts))
			assert.True(t, tt.want.Equal(ts.Time))
		})
	}

	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))

	out, err := json.Marshal(Timestamp{Time: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, `"2025-01-02T03:04:05"`, string(out))
}

func TestIdentity_Capabilities(t *testing.T) {
	admin := Identity{Username: "admin", UserID: 1, IsAdmin: true}
	customer := Identity{Username: "customer1", UserID: 2}

	for _, c := range []Capability{CapViewAllCustomers, CapOrderForAnyCustomer, CapMatchOrders, CapViewPendingBook} {
		assert.True(t, admin.Can(c))
		assert.False(t, customer.Can(c))
	}

	own := Order{ID: 1, UserID: 2, Status: OrderStatusPending}
	other := Order{ID: 2, UserID: 3, Status: OrderStatusPending}
	matched := Order{ID: 3, UserID: 2, Status: OrderStatusMatched}
	cancelled := Order{ID: 4, UserID: 2, Status: OrderStatusCancelled}

	assert.True(t, customer.CanCancel(own))
	assert.False(t, customer.CanCancel(other))
	assert.True(t, admin.CanCancel(other))

	for _, o := range []Order{matched, cancelled} {
		assert.False(t, customer.CanCancel(o))
		assert.False(t, admin.CanCancel(o))
		assert.False(t, admin.CanMatch(o))
	}
	assert.True(t, admin.CanMatch(own))
	assert.False(t, customer.CanMatch(own))

	assert.Equal(t, "/admin", admin.EntryPoint())
	assert.Equal(t, "/dashboard", customer.EntryPoint())
}
