package order

import (
	"time"

	"trader/internal/broker"
	"trader/internal/model"

	"github.com/shopspring/decimal"
)

const (
	assetOption = "OPTION"

	orderTypeNetCredit = "NET_CREDIT"
	orderTypeNetDebit  = "NET_DEBIT"
	orderTypeLimit     = "LIMIT"

	strategyDiagonal = "DIAGONAL"
	strategyVertical = "VERTICAL"
	strategyCustom   = "CUSTOM"
	strategyNone     = "NONE"
)

// netOrderType maps a signed price onto the broker's debit/credit order
// types. The returned spec price is always absolute.
func netOrderType(price decimal.Decimal) (string, decimal.Decimal) {
	if price.Sign() < 0 {
		return orderTypeNetCredit, price.Abs()
	}
	return orderTypeNetDebit, price
}

// SellToOpenSpec sells quantity contracts of one option at an unsigned limit
// credit.
func SellToOpenSpec(symbol string, quantity int, credit decimal.Decimal) broker.OrderSpec {
	return broker.OrderSpec{
		Session:         "NORMAL",
		Duration:        "DAY",
		OrderType:       orderTypeLimit,
		ComplexStrategy: strategyNone,
		Price:           credit.Abs(),
		Legs: []broker.OrderLeg{
			{Instruction: broker.SellToOpen, Symbol: symbol, AssetType: assetOption, Quantity: quantity},
		},
	}
}

// RollSpec closes oldSymbol and opens newSymbol in one diagonal order. price
// is signed: negative for a net credit.
func RollSpec(oldSymbol, newSymbol string, oldQuantity, newQuantity int, price decimal.Decimal) broker.OrderSpec {
	orderType, abs := netOrderType(price)
	return broker.OrderSpec{
		Session:         "NORMAL",
		Duration:        "DAY",
		OrderType:       orderType,
		ComplexStrategy: strategyDiagonal,
		Price:           abs,
		Legs: []broker.OrderLeg{
			{Instruction: broker.BuyToClose, Symbol: oldSymbol, AssetType: assetOption, Quantity: oldQuantity},
			{Instruction: broker.SellToOpen, Symbol: newSymbol, AssetType: assetOption, Quantity: newQuantity},
		},
	}
}

// VerticalSpec opens a two-strike vertical on one expiration: long the low
// strike, short the high strike for calls; price is signed.
func VerticalSpec(underlying string, expiration time.Time, side model.PutCall, lowStrike, highStrike decimal.Decimal, quantity int, price decimal.Decimal) broker.OrderSpec {
	orderType, abs := netOrderType(price)
	return broker.OrderSpec{
		Session:         "NORMAL",
		Duration:        "DAY",
		OrderType:       orderType,
		ComplexStrategy: strategyVertical,
		Price:           abs,
		Legs: []broker.OrderLeg{
			{Instruction: broker.BuyToOpen, Symbol: model.OptionSymbol(underlying, expiration, side, lowStrike), AssetType: assetOption, Quantity: quantity},
			{Instruction: broker.SellToOpen, Symbol: model.OptionSymbol(underlying, expiration, side, highStrike), AssetType: assetOption, Quantity: quantity},
		},
	}
}

// BoxSpreadSpec sells a four-leg box: short the call spread and the put
// spread across the same two strikes. credit is unsigned.
func BoxSpreadSpec(underlying string, expiration time.Time, lowStrike, highStrike decimal.Decimal, quantity int, credit decimal.Decimal) broker.OrderSpec {
	return broker.OrderSpec{
		Session:         "NORMAL",
		Duration:        "DAY",
		OrderType:       orderTypeNetCredit,
		ComplexStrategy: strategyCustom,
		Price:           credit.Abs(),
		Legs: []broker.OrderLeg{
			{Instruction: broker.SellToOpen, Symbol: model.OptionSymbol(underlying, expiration, model.Call, lowStrike), AssetType: assetOption, Quantity: quantity},
			{Instruction: broker.BuyToOpen, Symbol: model.OptionSymbol(underlying, expiration, model.Call, highStrike), AssetType: assetOption, Quantity: quantity},
			{Instruction: broker.BuyToOpen, Symbol: model.OptionSymbol(underlying, expiration, model.Put, lowStrike), AssetType: assetOption, Quantity: quantity},
			{Instruction: broker.SellToOpen, Symbol: model.OptionSymbol(underlying, expiration, model.Put, highStrike), AssetType: assetOption, Quantity: quantity},
		},
	}
}
