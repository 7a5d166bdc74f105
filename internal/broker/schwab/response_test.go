package schwab

import (
	"net/http"
	"testing"

	"trader/internal/model"
	"trader/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

func TestOrderStatusMapping(t *testing.T) {
	testCases := []struct {
		raw      string
		expected model.OrderStatus
	}{
		{"FILLED", model.OrderStatusFilled},
		{"REJECTED", model.OrderStatusRejected},
		{"CANCELED", model.OrderStatusCanceled},
		{"EXPIRED", model.OrderStatusCanceled},
		{"REPLACED", model.OrderStatusCanceled},
		{"WORKING", model.OrderStatusWorking},
		{"ACCEPTED", model.OrderStatusWorking},
		{"PENDING_ACTIVATION", model.OrderStatusWorking},
		{"SOMETHING_NEW", model.OrderStatusUnknown},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, orderStatus(tc.raw), tc.raw)
	}
}

func TestOrderDetailRoundTrip(t *testing.T) {
	raw := `{
		"orderId": 1003811730601,
		"status": "WORKING",
		"session": "NORMAL",
		"duration": "DAY",
		"orderType": "NET_CREDIT",
		"complexOrderStrategyType": "DIAGONAL",
		"price": 1.05,
		"filledQuantity": 0,
		"orderLegCollection": [
			{"instruction": "BUY_TO_CLOSE", "quantity": 1, "instrument": {"symbol": "SPXW  251003C06450000", "assetType": "OPTION"}},
			{"instruction": "SELL_TO_OPEN", "quantity": 1, "instrument": {"symbol": "SPXW  251010C06500000", "assetType": "OPTION"}}
		]
	}`

	var resp orderResponse
	require.NoError(t, sonic.ConfigFastest.Unmarshal([]byte(raw), &resp))

	detail := resp.toDetail()
	assert.Equal(t, "1003811730601", detail.State.ID)
	assert.Equal(t, model.OrderStatusWorking, detail.State.Status)
	assert.False(t, detail.State.NetDebit)
	assert.Equal(t, "-1.05", detail.State.SignedPrice().StringFixed(2))

	require.Len(t, detail.Spec.Legs, 2)
	assert.Equal(t, "DIAGONAL", detail.Spec.ComplexStrategy)
	assert.Equal(t, "SPXW  251010C06500000", detail.Spec.Legs[1].Symbol)
}

func TestOrderIDFromLocation(t *testing.T) {
	assert.Equal(t, "1003811730601",
		orderIDFromLocation("https://api.schwabapi.com/trader/v1/accounts/abc/orders/1003811730601"))
	assert.Equal(t, "", orderIDFromLocation(""))
	assert.Equal(t, "42", orderIDFromLocation("42"))
}

func TestNormalizeError(t *testing.T) {
	testCases := []struct {
		desc     string
		status   int
		body     string
		sentinel error
	}{
		{"unauthorized", http.StatusUnauthorized, "token expired", exception.ErrBrokerAuth},
		{"forbidden", http.StatusForbidden, "not allowed", exception.ErrBrokerAuth},
		{"missing order", http.StatusNotFound, "no such order", exception.ErrOrderNotFound},
		{"already filled", http.StatusBadRequest, "order is already filled", exception.ErrOrderAlreadyFilled},
		{"already canceled", http.StatusBadRequest, "order already canceled", exception.ErrOrderAlreadyCanceled},
		{"replace unsupported", http.StatusBadRequest, "order cannot be replaced", exception.ErrBrokerUnsupported},
		{"server error", http.StatusBadGateway, "upstream boom", exception.ErrBrokerTransport},
		{"plain bad request", http.StatusBadRequest, "validation failed", exception.ErrBrokerRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			err := normalizeError(tc.status, tc.body)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.sentinel), "got %+v", err)
		})
	}
}

func TestQuoteResponsePartialFields(t *testing.T) {
	raw := `{"symbol": "SPY", "quote": {"bidPrice": 450.1, "lastPrice": 450.2}}`

	var resp quoteResponse
	require.NoError(t, sonic.ConfigFastest.Unmarshal([]byte(raw), &resp))

	q := resp.toQuote()
	assert.True(t, q.HasBid)
	assert.True(t, q.HasLast)
	assert.False(t, q.HasAsk)
}
