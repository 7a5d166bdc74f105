package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PutCall is the option contract side.
type PutCall byte

const (
	Call PutCall = 'C'
	Put  PutCall = 'P'
)

// OptionSymbol builds the OCC-style symbol the broker expects:
// a 6 character space-padded underlying, YYMMDD expiration, C/P,
// and the strike in thousandths padded to 8 digits.
//
//	OptionSymbol("SPXW", date, Call, 6450) -> "SPXW  251003C06450000"
func OptionSymbol(underlying string, expiration time.Time, side PutCall, strike decimal.Decimal) string {
	u := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(underlying), "$"))
	milli := strike.Mul(decimal.NewFromInt(1000)).IntPart()
	return fmt.Sprintf("%-6s%s%c%08d", u, expiration.Format("060102"), side, milli)
}

// Underlying extracts the underlying ticker from an option symbol, or returns
// the input unchanged when it is already a plain equity symbol.
func Underlying(symbol string) string {
	sym := strings.TrimPrefix(symbol, "$")
	if i := strings.IndexByte(sym, ' '); i > 0 {
		sym = sym[:i]
	}
	return strings.ToUpper(sym)
}
