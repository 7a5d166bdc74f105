package schwab

import (
	"strconv"

	"trader/internal/broker"
	"trader/internal/model"

	"github.com/shopspring/decimal"
)

type accountNumberResponse struct {
	AccountNumber string `json:"accountNumber"`
	HashValue     string `json:"hashValue"`
}

type quoteResponse struct {
	Symbol string `json:"symbol"`
	Quote  struct {
		BidPrice  *float64 `json:"bidPrice"`
		AskPrice  *float64 `json:"askPrice"`
		LastPrice *float64 `json:"lastPrice"`
	} `json:"quote"`
}

func (r quoteResponse) toQuote() model.Quote {
	var q model.Quote
	if r.Quote.BidPrice != nil {
		q.Bid, q.HasBid = *r.Quote.BidPrice, true
	}
	if r.Quote.AskPrice != nil {
		q.Ask, q.HasAsk = *r.Quote.AskPrice, true
	}
	if r.Quote.LastPrice != nil {
		q.Last, q.HasLast = *r.Quote.LastPrice, true
	}
	return q
}

type userPreferenceResponse struct {
	StreamerInfo []streamerInfo `json:"streamerInfo"`
}

type streamerInfo struct {
	SocketUrl  string `json:"streamerSocketUrl"`
	CustomerID string `json:"schwabClientCustomerId"`
	CorrelID   string `json:"schwabClientCorrelId"`
	Channel    string `json:"schwabClientChannel"`
	FunctionID string `json:"schwabClientFunctionId"`
}

type orderResponse struct {
	OrderID            int64           `json:"orderId"`
	Status             string          `json:"status"`
	StatusDescription  string          `json:"statusDescription"`
	Session            string          `json:"session"`
	Duration           string          `json:"duration"`
	OrderType          string          `json:"orderType"`
	ComplexStrategy    string          `json:"complexOrderStrategyType"`
	Price              decimal.Decimal `json:"price"`
	FilledQuantity     decimal.Decimal `json:"filledQuantity"`
	OrderLegCollection []orderLeg      `json:"orderLegCollection"`
}

type orderLeg struct {
	Instruction string          `json:"instruction"`
	Quantity    decimal.Decimal `json:"quantity"`
	Instrument  struct {
		Symbol    string `json:"symbol"`
		AssetType string `json:"assetType"`
	} `json:"instrument"`
}

func (r orderResponse) toDetail() broker.OrderDetail {
	legs := make([]broker.OrderLeg, 0, len(r.OrderLegCollection))
	for _, leg := range r.OrderLegCollection {
		legs = append(legs, broker.OrderLeg{
			Instruction: broker.Instruction(leg.Instruction),
			Symbol:      leg.Instrument.Symbol,
			AssetType:   leg.Instrument.AssetType,
			Quantity:    int(leg.Quantity.IntPart()),
		})
	}

	return broker.OrderDetail{
		State: model.OrderState{
			ID:              strconv.FormatInt(r.OrderID, 10),
			Status:          orderStatus(r.Status),
			RejectionReason: r.StatusDescription,
			Price:           r.Price,
			NetDebit:        r.OrderType != "NET_CREDIT",
			FilledQuantity:  r.FilledQuantity,
		},
		Spec: broker.OrderSpec{
			Session:         r.Session,
			Duration:        r.Duration,
			OrderType:       r.OrderType,
			ComplexStrategy: r.ComplexStrategy,
			Price:           r.Price,
			Legs:            legs,
		},
	}
}

// orderStatus folds the broker's many working states down to the four the
// lifecycle loop distinguishes.
func orderStatus(status string) model.OrderStatus {
	switch status {
	case "FILLED":
		return model.OrderStatusFilled
	case "REJECTED":
		return model.OrderStatusRejected
	case "CANCELED", "EXPIRED", "REPLACED":
		return model.OrderStatusCanceled
	case "AWAITING_PARENT_ORDER", "AWAITING_CONDITION", "AWAITING_STOP_CONDITION",
		"AWAITING_MANUAL_REVIEW", "ACCEPTED", "PENDING_ACTIVATION", "QUEUED",
		"WORKING", "NEW", "PENDING_REPLACE", "PENDING_CANCEL":
		return model.OrderStatusWorking
	default:
		return model.OrderStatusUnknown
	}
}

type orderRequest struct {
	Session         string            `json:"session"`
	Duration        string            `json:"duration"`
	OrderType       string            `json:"orderType"`
	ComplexStrategy string            `json:"complexOrderStrategyType,omitempty"`
	Price           string            `json:"price"`
	OrderStrategy   string            `json:"orderStrategyType"`
	Legs            []orderRequestLeg `json:"orderLegCollection"`
}

type orderRequestLeg struct {
	Instruction string             `json:"instruction"`
	Quantity    int                `json:"quantity"`
	Instrument  orderReqInstrument `json:"instrument"`
}

type orderReqInstrument struct {
	Symbol    string `json:"symbol"`
	AssetType string `json:"assetType"`
}

func orderRequestFrom(spec broker.OrderSpec) orderRequest {
	legs := make([]orderRequestLeg, 0, len(spec.Legs))
	for _, leg := range spec.Legs {
		legs = append(legs, orderRequestLeg{
			Instruction: string(leg.Instruction),
			Quantity:    leg.Quantity,
			Instrument: orderReqInstrument{
				Symbol:    leg.Symbol,
				AssetType: leg.AssetType,
			},
		})
	}

	return orderRequest{
		Session:         spec.Session,
		Duration:        spec.Duration,
		OrderType:       spec.OrderType,
		ComplexStrategy: spec.ComplexStrategy,
		Price:           spec.Price.StringFixed(2),
		OrderStrategy:   "SINGLE",
		Legs:            legs,
	}
}
