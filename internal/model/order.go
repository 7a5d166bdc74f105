package model

import "github.com/shopspring/decimal"

// OrderStatus tracks the broker-side lifecycle of an order.
type OrderStatus string

const (
	OrderStatusWorking  OrderStatus = "WORKING"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusRejected OrderStatus = "REJECTED"
	OrderStatusCanceled OrderStatus = "CANCELED"
	OrderStatusUnknown  OrderStatus = "UNKNOWN"
)

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusRejected, OrderStatusCanceled:
		return true
	default:
		return false
	}
}

// OrderState is the broker's view of an order at one poll.
type OrderState struct {
	ID              string
	Status          OrderStatus
	RejectionReason string

	// Price is the working limit price as the broker reports it (absolute).
	Price decimal.Decimal
	// NetDebit marks the order as paying premium; SignedPrice is negative
	// for credits by the repo-wide sign convention.
	NetDebit       bool
	FilledQuantity decimal.Decimal
}

// SignedPrice returns the limit price with the debit/credit sign applied:
// positive when paying, negative when receiving.
func (s OrderState) SignedPrice() decimal.Decimal {
	if s.NetDebit {
		return s.Price
	}
	return s.Price.Neg()
}
