package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CashAsset is the holding name the backend uses for the currency balance
const CashAsset = "TRY"

// Identity represents the authenticated user held by the session store
type Identity struct {
	Username string `json:"username"`
	Password string `json:"password"` // resent as a credential on every call
	UserID   int64  `json:"userId"`
	IsAdmin  bool   `json:"isAdmin"`
	Message  string `json:"message,omitempty"`
}

// OrderSide is BUY or SELL
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus is the backend-owned lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusMatched   OrderStatus = "MATCHED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusMatched || s == OrderStatusCancelled
}

// Order represents a buy or sell order as reported by the backend
type Order struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"userId"`
	AssetName  string          `json:"assetName"`
	Side       OrderSide       `json:"orderSide"`
	Size       decimal.Decimal `json:"size"`
	Price      decimal.Decimal `json:"price"`
	Status     OrderStatus     `json:"status"`
	CreateDate Timestamp       `json:"createDate"`
}

// Total is size times price, the TRY amount a BUY reserves
func (o Order) Total() decimal.Decimal {
	return o.Size.Mul(o.Price)
}

// AssetHolding represents one user's position in one asset
type AssetHolding struct {
	CustomerID int64           `json:"customerId,omitempty"`
	AssetName  string          `json:"assetName"`
	Size       decimal.Decimal `json:"size"`
	UsableSize decimal.Decimal `json:"usableSize"`
}

// Reserved is the part of the holding locked by the owner's pending orders
func (a AssetHolding) Reserved() decimal.Decimal {
	return a.Size.Sub(a.UsableSize)
}

// IsCash reports whether the holding is the currency balance
func (a AssetHolding) IsCash() bool {
	return a.AssetName == CashAsset
}

// Validate checks 0 <= usableSize <= size
func (a AssetHolding) Validate() error {
	if a.UsableSize.IsNegative() {
		return fmt.Errorf("holding %s: usable size %s is negative", a.AssetName, a.UsableSize)
	}
	if a.UsableSize.GreaterThan(a.Size) {
		return fmt.Errorf("holding %s: usable size %s exceeds size %s", a.AssetName, a.UsableSize, a.Size)
	}
	return nil
}

// OrderFilter narrows an order listing; zero fields are unconstrained
type OrderFilter struct {
	UserID    int64
	StartDate time.Time
	EndDate   time.Time
}

// CreateOrderRequest is the payload of an order-creation call
type CreateOrderRequest struct {
	UserID    int64           `json:"userId" validate:"gt=0"`
	AssetName string          `json:"assetName" validate:"required"`
	Side      OrderSide       `json:"side" validate:"oneof=BUY SELL"`
	Size      decimal.Decimal `json:"size" validate:"positive"`
	Price     decimal.Decimal `json:"price" validate:"positive"`
}

// DateTimeLayout is the zone-less ISO date-time the backend reads and writes
const DateTimeLayout = "2006-01-02T15:04:05"

const fractionalLayout = "2006-01-02T15:04:05.999999999"

// Timestamp decodes the backend's local date-times
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(fractionalLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := ParseDateTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseDateTime accepts the backend layout with optional fraction, or RFC 3339
func ParseDateTime(s string) (time.Time, error) {
	if ts, err := time.Parse(fractionalLayout, s); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("timestamp: unrecognised date-time %q", s)
}
