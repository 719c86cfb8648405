// Package coordinator keeps view state coherent with the backend. There is
// no push channel, so every mutation is followed by a full refetch and the
// fetched collections replace the old ones wholesale.
package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/xtrntr/brokerclient/internal/models"
)

// Backend is the slice of the domain client the views use
type Backend interface {
	Identity() (models.Identity, bool)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	ListPendingOrders(ctx context.Context) ([]models.Order, error)
	ListAssets(ctx context.Context, userID int64) ([]models.AssetHolding, error)
	ListAvailableInstruments(ctx context.Context) []string
	CreateOrder(ctx context.Context, req models.CreateOrderRequest) (models.Order, error)
	CancelOrder(ctx context.Context, orderID int64) (models.Order, error)
	MatchOrder(ctx context.Context, orderID int64) (models.Order, error)
}

var (
	// ErrNotActionable is returned for cancel or match on an order that is
	// already MATCHED or CANCELLED. No call is made.
	ErrNotActionable = errors.New("order is no longer pending")
	// ErrForbidden is returned when the identity lacks the capability
	ErrForbidden = errors.New("not permitted for this user")
	// ErrUnknownOrder is returned for an order id the view has not loaded
	ErrUnknownOrder = errors.New("order not loaded")
	// ErrNoSession is returned when no identity is live
	ErrNoSession = errors.New("not logged in")
)

// RefreshError reports a mutation that succeeded on the backend but whose
// follow-up refetch failed. The view keeps its previous state.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("change applied but refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

func identityOf(b Backend) (models.Identity, error) {
	identity, ok := b.Identity()
	if !ok {
		return models.Identity{}, ErrNoSession
	}
	return identity, nil
}

// checkCancel refuses locally what the backend would refuse
func checkCancel(identity models.Identity, o models.Order) error {
	if o.Status.Terminal() {
		return ErrNotActionable
	}
	if !identity.CanCancel(o) {
		return ErrForbidden
	}
	return nil
}

func checkMatch(identity models.Identity, o models.Order) error {
	if o.Status.Terminal() {
		return ErrNotActionable
	}
	if !identity.CanMatch(o) {
		return ErrForbidden
	}
	return nil
}
