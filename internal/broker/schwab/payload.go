package schwab

import (
	"trader/internal/broker"
	"trader/internal/model"
)

// streamEnvelope covers every inbound frame shape: data, acks, and
// heartbeats. Frames carry only the sections relevant to them.
type streamEnvelope struct {
	Data   []dataPacket `json:"data"`
	Notify []struct {
		Heartbeat string `json:"heartbeat"`
	} `json:"notify"`
	Response []streamAck `json:"response"`
}

type dataPacket struct {
	Service string          `json:"service"`
	Content []levelOneEntry `json:"content"`
}

// levelOneEntry is one symbol's delta within a data frame. The wire uses
// numbered fields; only the ones that changed are present, hence pointers.
type levelOneEntry struct {
	Key    string   `json:"key"`
	Field1 *float64 `json:"1"`
	Field2 *float64 `json:"2"`
	Field3 *float64 `json:"3"`
	Field4 *float64 `json:"4"`
}

// levelOneFields returns the subscription field list for a service: symbol
// plus bid, ask, and last, which sit at different indexes per service.
func levelOneFields(kind broker.SubscriptionKind) string {
	if kind == broker.SubscribeOptions {
		return "0,2,3,4"
	}
	return "0,1,2,3"
}

// parseQuoteUpdates flattens a data frame into per-symbol updates. Field
// indexes differ between the equity and option services: equities carry
// bid/ask/last at 1/2/3, options at 2/3/4.
func parseQuoteUpdates(env streamEnvelope) []model.QuoteUpdate {
	var updates []model.QuoteUpdate
	for _, packet := range env.Data {
		options := packet.Service == string(broker.SubscribeOptions)
		for _, entry := range packet.Content {
			if entry.Key == "" {
				continue
			}

			bid, ask, last := entry.Field1, entry.Field2, entry.Field3
			if options {
				bid, ask, last = entry.Field2, entry.Field3, entry.Field4
			}

			u := model.QuoteUpdate{Symbol: entry.Key}
			if bid != nil {
				u.Bid, u.HasBid = *bid, true
			}
			if ask != nil {
				u.Ask, u.HasAsk = *ask, true
			}
			if last != nil {
				u.Last, u.HasLast = *last, true
			}
			if u.HasBid || u.HasAsk || u.HasLast {
				updates = append(updates, u)
			}
		}
	}
	return updates
}
