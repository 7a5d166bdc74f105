package broker

import (
	"context"

	"trader/internal/model"

	"github.com/shopspring/decimal"
)

// Client is the REST surface of the brokerage. Implementations own auth
// refresh and rate limiting; callers only see errors normalized into the
// pkg/exception sentinels.
type Client interface {
	AccountHash(ctx context.Context) (string, error)
	Quotes(ctx context.Context, symbols []string) (map[string]model.Quote, error)
	Order(ctx context.Context, orderID string) (OrderDetail, error)
	PlaceOrder(ctx context.Context, spec OrderSpec) (string, error)
	ReplaceOrder(ctx context.Context, orderID string, spec OrderSpec) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// SubscriptionKind selects a level-one streaming service.
type SubscriptionKind string

const (
	SubscribeOptions  SubscriptionKind = "LEVELONE_OPTIONS"
	SubscribeEquities SubscriptionKind = "LEVELONE_EQUITIES"
)

// Streamer is one live streaming session. A session is single-use: after a
// transport failure the owner discards it and dials a fresh one, because the
// server forgets subscriptions across logins.
type Streamer interface {
	Login(ctx context.Context) error
	Subscribe(ctx context.Context, kind SubscriptionKind, symbols []string) error
	Unsubscribe(ctx context.Context, kind SubscriptionKind, symbols []string) error

	// ReceiveOne blocks until the next message arrives or ctx expires.
	// Heartbeats and acks yield an empty update slice with a nil error; they
	// still count as liveness.
	ReceiveOne(ctx context.Context) ([]model.QuoteUpdate, error)

	Close() error
}

// Dialer opens a fresh streaming session. The stream client calls it on every
// (re)connect.
type Dialer func(ctx context.Context) (Streamer, error)

// Instruction is a single-leg action.
type Instruction string

const (
	BuyToOpen   Instruction = "BUY_TO_OPEN"
	BuyToClose  Instruction = "BUY_TO_CLOSE"
	SellToOpen  Instruction = "SELL_TO_OPEN"
	SellToClose Instruction = "SELL_TO_CLOSE"
)

// OrderLeg is one contract within a multi-leg order.
type OrderLeg struct {
	Instruction Instruction
	Symbol      string
	AssetType   string
	Quantity    int
}

// OrderSpec is a broker-ready order definition.
type OrderSpec struct {
	Session         string
	Duration        string
	OrderType       string
	ComplexStrategy string

	// Price is always absolute; OrderType carries the debit/credit side.
	Price decimal.Decimal
	Legs  []OrderLeg
}

// OrderDetail is the broker's full view of an order, including enough of the
// original legs to rebuild it for a cancel-and-resubmit replace.
type OrderDetail struct {
	State model.OrderState
	Spec  OrderSpec
}
