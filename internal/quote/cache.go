package quote

import (
	"sync"

	"trader/internal/model"
)

// Cache holds the latest level-one snapshot per symbol. Reads never block on
// the stream: absent symbols and absent fields report ok=false instead of
// erroring.
//
// Fields are last-good: once a field has held a valid reading, an update that
// lacks the field leaves the cached value in place.
type Cache struct {
	mu   sync.RWMutex
	data map[string]model.Quote
}

func NewCache() *Cache {
	return &Cache{data: make(map[string]model.Quote)}
}

// Apply merges one stream update into the cache.
func (c *Cache) Apply(u model.QuoteUpdate) {
	if u.Symbol == "" {
		return
	}

	c.mu.Lock()
	q := c.data[u.Symbol]
	if u.HasBid && u.Bid > 0 {
		q.Bid = u.Bid
		q.HasBid = true
	}
	if u.HasAsk && u.Ask > 0 {
		q.Ask = u.Ask
		q.HasAsk = true
	}
	if u.HasLast && u.Last > 0 {
		q.Last = u.Last
		q.HasLast = true
	}
	c.data[u.Symbol] = q
	c.mu.Unlock()
}

// Last returns the last trade price for symbol.
func (c *Cache) Last(symbol string) (float64, bool) {
	c.mu.RLock()
	q, exists := c.data[symbol]
	c.mu.RUnlock()
	if !exists || !q.HasLast {
		return 0, false
	}
	return q.Last, true
}

// BidAsk returns the current bid/ask for symbol. Either side may be absent
// independently of the other.
func (c *Cache) BidAsk(symbol string) (bid, ask float64, ok bool) {
	c.mu.RLock()
	q, exists := c.data[symbol]
	c.mu.RUnlock()
	if !exists || !q.HasBid || !q.HasAsk {
		return 0, 0, false
	}
	return q.Bid, q.Ask, true
}

// Snapshot returns a copy of the cached quote for symbol.
func (c *Cache) Snapshot(symbol string) (model.Quote, bool) {
	c.mu.RLock()
	q, exists := c.data[symbol]
	c.mu.RUnlock()
	return q, exists
}
