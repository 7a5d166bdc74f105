package order

import (
	"testing"
	"time"

	"trader/internal/broker"
	"trader/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollSpecSignPicksOrderType(t *testing.T) {
	credit := RollSpec("OLD", "NEW", 1, 1, decimal.NewFromFloat(-0.80))
	assert.Equal(t, "NET_CREDIT", credit.OrderType)
	assert.Equal(t, "0.80", credit.Price.StringFixed(2))

	debit := RollSpec("OLD", "NEW", 1, 1, decimal.NewFromFloat(0.50))
	assert.Equal(t, "NET_DEBIT", debit.OrderType)
	assert.Equal(t, "0.50", debit.Price.StringFixed(2))

	require.Len(t, credit.Legs, 2)
	assert.Equal(t, broker.BuyToClose, credit.Legs[0].Instruction)
	assert.Equal(t, broker.SellToOpen, credit.Legs[1].Instruction)
}

func TestVerticalSpecLegs(t *testing.T) {
	exp := time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC)
	spec := VerticalSpec("SPXW", exp, model.Call, decimal.NewFromInt(6450), decimal.NewFromInt(6500), 2, decimal.NewFromFloat(12.30))

	require.Len(t, spec.Legs, 2)
	assert.Equal(t, "SPXW  251003C06450000", spec.Legs[0].Symbol)
	assert.Equal(t, "SPXW  251003C06500000", spec.Legs[1].Symbol)
	assert.Equal(t, broker.BuyToOpen, spec.Legs[0].Instruction)
	assert.Equal(t, broker.SellToOpen, spec.Legs[1].Instruction)
	assert.Equal(t, 2, spec.Legs[0].Quantity)
	assert.Equal(t, "VERTICAL", spec.ComplexStrategy)
}

func TestBoxSpreadSpecLegs(t *testing.T) {
	exp := time.Date(2026, 12, 18, 0, 0, 0, 0, time.UTC)
	spec := BoxSpreadSpec("SPX", exp, decimal.NewFromInt(5000), decimal.NewFromInt(5100), 1, decimal.NewFromFloat(99.50))

	require.Len(t, spec.Legs, 4)
	assert.Equal(t, "NET_CREDIT", spec.OrderType)

	// Short call spread plus short put spread across the same strikes.
	assert.Equal(t, broker.SellToOpen, spec.Legs[0].Instruction)
	assert.Equal(t, broker.BuyToOpen, spec.Legs[1].Instruction)
	assert.Equal(t, broker.BuyToOpen, spec.Legs[2].Instruction)
	assert.Equal(t, broker.SellToOpen, spec.Legs[3].Instruction)
	assert.Equal(t, "SPX   261218C05000000", spec.Legs[0].Symbol)
	assert.Equal(t, "SPX   261218P05100000", spec.Legs[3].Symbol)
}

func TestSellToOpenSpec(t *testing.T) {
	spec := SellToOpenSpec("SPXW  251003C06450000", 3, decimal.NewFromFloat(1.25))
	require.Len(t, spec.Legs, 1)
	assert.Equal(t, "LIMIT", spec.OrderType)
	assert.Equal(t, 3, spec.Legs[0].Quantity)
	assert.Equal(t, broker.SellToOpen, spec.Legs[0].Instruction)
}
