package coordinator

import (
	"sort"
	"strings"

	"github.com/emirpasic/gods/sets/treeset"
	"github.com/emirpasic/gods/utils"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/brokerclient/internal/models"
)

// RecentLimit is how many orders the dashboard shows
const RecentLimit = 5

// Customers returns the distinct user ids across orders, ascending
func Customers(orders []models.Order) []int64 {
	set := treeset.NewWith(utils.Int64Comparator)
	for _, o := range orders {
		set.Add(o.UserID)
	}
	ids := make([]int64, 0, set.Size())
	for _, v := range set.Values() {
		ids = append(ids, v.(int64))
	}
	return ids
}

// Filter narrows the admin order list. Zero fields do not constrain.
type Filter struct {
	Customer   int64
	Instrument string
}

// Active reports whether any dimension is constrained
func (f Filter) Active() bool {
	return f.Customer != 0 || f.Instrument != ""
}

// Match reports whether o satisfies every constrained dimension
func (f Filter) Match(o models.Order) bool {
	if f.Customer != 0 && o.UserID != f.Customer {
		return false
	}
	if f.Instrument != "" && !strings.EqualFold(o.AssetName, strings.TrimSpace(f.Instrument)) {
		return false
	}
	return true
}

// Apply returns the orders that match f
func (f Filter) Apply(orders []models.Order) []models.Order {
	return lo.Filter(orders, func(o models.Order, _ int) bool { return f.Match(o) })
}

// SplitHoldings separates the cash holding from instrument holdings
func SplitHoldings(holdings []models.AssetHolding) (cash, stocks []models.AssetHolding) {
	cash = lo.Filter(holdings, func(h models.AssetHolding, _ int) bool { return h.IsCash() })
	stocks = lo.Filter(holdings, func(h models.AssetHolding, _ int) bool { return !h.IsCash() })
	return cash, stocks
}

// CashTotal sums the size of the cash holdings
func CashTotal(holdings []models.AssetHolding) decimal.Decimal {
	return lo.Reduce(holdings, func(sum decimal.Decimal, h models.AssetHolding, _ int) decimal.Decimal {
		if h.IsCash() {
			return sum.Add(h.Size)
		}
		return sum
	}, decimal.Zero)
}

// StockCount is the number of instrument holdings
func StockCount(holdings []models.AssetHolding) int {
	return lo.CountBy(holdings, func(h models.AssetHolding) bool { return !h.IsCash() })
}

// CountStatus counts orders in the given status
func CountStatus(orders []models.Order, status models.OrderStatus) int {
	return lo.CountBy(orders, func(o models.Order) bool { return o.Status == status })
}

// Recent returns up to n orders, newest first. Orders created in the same
// instant are ordered by id, highest first.
func Recent(orders []models.Order, n int) []models.Order {
	if n <= 0 {
		return nil
	}
	sorted := append([]models.Order(nil), orders...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.CreateDate.Equal(b.CreateDate.Time) {
			return a.CreateDate.After(b.CreateDate.Time)
		}
		return a.ID > b.ID
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func findOrder(orders []models.Order, id int64) (models.Order, bool) {
	return lo.Find(orders, func(o models.Order) bool { return o.ID == id })
}
