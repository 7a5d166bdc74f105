package model

// Quote is a cached level-one snapshot for a single symbol. Each field keeps
// its last good reading; the Has* flags tell absent apart from zero.
type Quote struct {
	Bid  float64
	Ask  float64
	Last float64

	HasBid  bool
	HasAsk  bool
	HasLast bool
}

// QuoteUpdate is one symbol's slice of an incoming stream message. Fields the
// message did not carry, or carried with a non-positive reading, have their
// Has* flag unset and must not clear cached values.
type QuoteUpdate struct {
	Symbol string

	Bid  float64
	Ask  float64
	Last float64

	HasBid  bool
	HasAsk  bool
	HasLast bool
}
