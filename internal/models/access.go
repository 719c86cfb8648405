package models

// Capability is a role-conditional permission checked against an Identity
type Capability int

const (
	// CapViewAllCustomers allows listing orders and holdings of any customer
	CapViewAllCustomers Capability = iota
	// CapOrderForAnyCustomer allows creating orders on behalf of another customer
	CapOrderForAnyCustomer
	// CapMatchOrders allows matching pending orders
	CapMatchOrders
	// CapViewPendingBook allows listing every pending order
	CapViewPendingBook
)

// Can reports whether the identity holds the capability. Every capability
// is administrator-only; customers are scoped to themselves.
func (i Identity) Can(c Capability) bool {
	switch c {
	case CapViewAllCustomers, CapOrderForAnyCustomer, CapMatchOrders, CapViewPendingBook:
		return i.IsAdmin
	}
	return false
}

// CanCancel reports whether the client should offer a cancel for the order
func (i Identity) CanCancel(o Order) bool {
	if o.Status != OrderStatusPending {
		return false
	}
	return i.IsAdmin || o.UserID == i.UserID
}

// CanMatch reports whether the client should offer a match for the order
func (i Identity) CanMatch(o Order) bool {
	return o.Status == OrderStatusPending && i.Can(CapMatchOrders)
}

// EntryPoint is the landing route for the identity
func (i Identity) EntryPoint() string {
	if i.IsAdmin {
		return "/admin"
	}
	return "/dashboard"
}
