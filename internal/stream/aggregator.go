package stream

import (
	"context"
	"strings"
	"sync"

	"github.com/yanun0323/logs"
)

// Target is the subscription surface the aggregator drives. *Client
// satisfies it.
type Target interface {
	SubscribeOptions(ctx context.Context, symbols []string) error
	SubscribeEquities(ctx context.Context, symbols []string) error
	UnsubscribeOptions(ctx context.Context, symbols []string) error
	UnsubscribeEquities(ctx context.Context, symbols []string) error
}

type demand struct {
	options  map[string]struct{}
	equities map[string]struct{}
}

// Aggregator merges subscription demand from independent consumers into one
// desired set and pushes only the deltas to the stream client. A symbol stays
// subscribed as long as any consumer wants it.
//
// All reconciliation runs under one mutex, so concurrent register calls can
// never interleave partial diffs.
type Aggregator struct {
	mu     sync.Mutex
	target Target

	consumers    map[string]demand
	lastOptions  map[string]struct{}
	lastEquities map[string]struct{}
}

func NewAggregator(target Target) *Aggregator {
	return &Aggregator{
		target:       target,
		consumers:    make(map[string]demand),
		lastOptions:  make(map[string]struct{}),
		lastEquities: make(map[string]struct{}),
	}
}

// Register replaces the consumer's demand and reconciles. Passing empty sets
// keeps the consumer registered with no demand.
func (a *Aggregator) Register(ctx context.Context, consumerID string, options, equities []string) {
	d := demand{
		options:  make(map[string]struct{}, len(options)),
		equities: make(map[string]struct{}, len(equities)),
	}
	for _, s := range options {
		if s = strings.TrimSpace(s); s != "" {
			d.options[s] = struct{}{}
		}
	}
	for _, s := range equities {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			d.equities[s] = struct{}{}
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.consumers[consumerID] = d
	a.reconcile(ctx)
}

// Unregister clears the consumer's demand and reconciles.
func (a *Aggregator) Unregister(ctx context.Context, consumerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.consumers[consumerID]; !ok {
		return
	}
	delete(a.consumers, consumerID)
	a.reconcile(ctx)
}

// reconcile diffs the union of all demand against the last applied state and
// issues only the deltas. Caller holds mu.
func (a *Aggregator) reconcile(ctx context.Context) {
	desiredOptions := make(map[string]struct{})
	desiredEquities := make(map[string]struct{})
	for _, d := range a.consumers {
		for s := range d.options {
			desiredOptions[s] = struct{}{}
		}
		for s := range d.equities {
			desiredEquities[s] = struct{}{}
		}
	}

	removedOptions := diff(a.lastOptions, desiredOptions)
	removedEquities := diff(a.lastEquities, desiredEquities)
	addedOptions := diff(desiredOptions, a.lastOptions)
	addedEquities := diff(desiredEquities, a.lastEquities)

	if len(removedOptions) > 0 {
		if err := a.target.UnsubscribeOptions(ctx, removedOptions); err != nil {
			logs.Errorf("aggregator: unsubscribe options, err: %+v", err)
		}
	}
	if len(removedEquities) > 0 {
		if err := a.target.UnsubscribeEquities(ctx, removedEquities); err != nil {
			logs.Errorf("aggregator: unsubscribe equities, err: %+v", err)
		}
	}
	if len(addedOptions) > 0 {
		if err := a.target.SubscribeOptions(ctx, addedOptions); err != nil {
			logs.Errorf("aggregator: subscribe options, err: %+v", err)
		}
	}
	if len(addedEquities) > 0 {
		if err := a.target.SubscribeEquities(ctx, addedEquities); err != nil {
			logs.Errorf("aggregator: subscribe equities, err: %+v", err)
		}
	}

	a.lastOptions = desiredOptions
	a.lastEquities = desiredEquities
}

// diff returns the members of a that are not in b.
func diff(a, b map[string]struct{}) []string {
	out := make([]string, 0, len(a))
	for s := range a {
		if _, ok := b[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
