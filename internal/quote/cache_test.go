package quote

import (
	"testing"

	"trader/internal/model"
)

func TestCacheStickyMerge(t *testing.T) {
	c := NewCache()

	c.Apply(model.QuoteUpdate{Symbol: "SPY", Bid: 100.5, HasBid: true, Ask: 100.7, HasAsk: true, Last: 100.6, HasLast: true})

	// A delta carrying only a new bid must not clear ask or last.
	c.Apply(model.QuoteUpdate{Symbol: "SPY", Bid: 100.55, HasBid: true})

	bid, ask, ok := c.BidAsk("SPY")
	if !ok {
		t.Fatal("expected bid/ask after two updates")
	}
	if bid != 100.55 {
		t.Fatalf("bid mismatch! should be 100.55 but got %v", bid)
	}
	if ask != 100.7 {
		t.Fatalf("ask mismatch! should be 100.7 but got %v", ask)
	}

	last, ok := c.Last("SPY")
	if !ok || last != 100.6 {
		t.Fatalf("last mismatch! should be 100.6 but got %v (ok=%v)", last, ok)
	}
}

func TestCacheIgnoresZeroAndAbsentFields(t *testing.T) {
	c := NewCache()

	c.Apply(model.QuoteUpdate{Symbol: "SPY", Last: 99.9, HasLast: true})

	// Zeroes are placeholders, never real prices.
	c.Apply(model.QuoteUpdate{Symbol: "SPY", Last: 0, HasLast: true})
	c.Apply(model.QuoteUpdate{Symbol: "SPY"})

	last, ok := c.Last("SPY")
	if !ok || last != 99.9 {
		t.Fatalf("last should stay 99.9, got %v (ok=%v)", last, ok)
	}
}

func TestCacheUnknownSymbol(t *testing.T) {
	c := NewCache()

	if _, ok := c.Last("QQQ"); ok {
		t.Fatal("unknown symbol should not report a last price")
	}
	if _, _, ok := c.BidAsk("QQQ"); ok {
		t.Fatal("unknown symbol should not report bid/ask")
	}
}

func TestCacheBidAskNeedsBothSides(t *testing.T) {
	c := NewCache()

	c.Apply(model.QuoteUpdate{Symbol: "SPY", Bid: 100.5, HasBid: true})
	if _, _, ok := c.BidAsk("SPY"); ok {
		t.Fatal("bid alone should not satisfy BidAsk")
	}

	c.Apply(model.QuoteUpdate{Symbol: "SPY", Ask: 100.7, HasAsk: true})
	if _, _, ok := c.BidAsk("SPY"); !ok {
		t.Fatal("both sides present, BidAsk should succeed")
	}
}
