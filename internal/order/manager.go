package order

import (
	"context"
	"sync"
	"time"

	"trader/internal/alert"
	"trader/internal/broker"
	"trader/internal/model"
	"trader/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Outcome is the terminal result of a price-improvement session. Every
// session ends in exactly one of these; the loop never runs unbounded.
type Outcome string

const (
	OutcomeFilled       Outcome = "FILLED"
	OutcomeCancelled    Outcome = "CANCELLED"
	OutcomeRejected     Outcome = "REJECTED"
	OutcomeExhausted    Outcome = "EXHAUSTED"
	OutcomeNotSubmitted Outcome = "NOT_SUBMITTED"
	// OutcomeUnknown means an order was submitted but monitoring failed before
	// a terminal state was observed; the order may still be working.
	OutcomeUnknown Outcome = "UNKNOWN"
)

// Factory submits one order attempt at the given signed price and returns the
// broker order id. An empty id with a nil error means nothing was submitted
// (dry-run); the session stops rather than monitor a nonexistent order.
type Factory func(ctx context.Context, price decimal.Decimal) (string, error)

// Config tunes the retry and monitoring behavior. Zero values fall back to
// defaults.
type Config struct {
	// Step is the unsigned per-attempt price improvement.
	Step decimal.Decimal
	// MaxAttempts caps the session; reaching it returns OutcomeExhausted.
	MaxAttempts int

	// MonitorTimeout bounds one attempt. After LateCutoff (local time) the
	// shorter LateMonitorTimeout applies, to react faster near the close.
	MonitorTimeout     time.Duration
	LateMonitorTimeout time.Duration
	LateCutoffHour     int
	LateCutoffMinute   int

	// PollInterval spaces broker status calls; TickInterval bounds the
	// cancellation latency of the inner loop.
	PollInterval time.Duration
	TickInterval time.Duration
	// StatusTTL is the read-through status cache age limit.
	StatusTTL time.Duration

	// Ticks maps an underlying to its price tick; anything absent uses
	// DefaultTick.
	Ticks       map[string]decimal.Decimal
	DefaultTick decimal.Decimal

	// Now is injectable for tests.
	Now func() time.Time
}

func (cfg *Config) init() {
	if cfg.Step.IsZero() {
		cfg.Step = decimal.NewFromFloat(0.05)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 75
	}
	if cfg.MonitorTimeout <= 0 {
		cfg.MonitorTimeout = time.Minute
	}
	if cfg.LateMonitorTimeout <= 0 {
		cfg.LateMonitorTimeout = 15 * time.Second
	}
	if cfg.LateCutoffHour == 0 && cfg.LateCutoffMinute == 0 {
		cfg.LateCutoffHour, cfg.LateCutoffMinute = 15, 30
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = time.Second
	}
	if cfg.DefaultTick.IsZero() {
		cfg.DefaultTick = decimal.NewFromFloat(0.01)
	}
	if cfg.Ticks == nil {
		tick := decimal.NewFromFloat(0.05)
		cfg.Ticks = map[string]decimal.Decimal{"SPX": tick, "SPXW": tick}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
}

type statusEntry struct {
	at    time.Time
	state model.OrderState
}

// Manager drives submitted orders to a terminal outcome, improving the limit
// price on each timeout. Sessions for different order ids are independent and
// never block each other.
type Manager struct {
	api    broker.Client
	alerts alert.Sink
	cfg    Config

	cacheMu     sync.Mutex
	statusCache map[string]statusEntry
}

func NewManager(api broker.Client, alerts alert.Sink, cfg Config) *Manager {
	cfg.init()
	return &Manager{
		api:         api,
		alerts:      alerts,
		cfg:         cfg,
		statusCache: make(map[string]statusEntry),
	}
}

// PlaceWithImprovement submits through factory and retries on timeout with a
// stepped price until a terminal outcome. A positive initial price is a debit
// (paying: step up); a negative one is a credit (receiving: step down). Each
// attempt's price is rounded to the underlying's tick.
//
// Cancelling ctx during monitoring cancels the working order and returns
// OutcomeCancelled within one tick interval.
func (m *Manager) PlaceWithImprovement(ctx context.Context, underlying string, factory Factory, initial decimal.Decimal) (Outcome, error) {
	if initial.IsZero() {
		return OutcomeNotSubmitted, exception.ErrOrderInvalidPrice
	}

	tick := m.tickFor(underlying)
	isDebit := initial.Sign() > 0
	timeout := m.monitorTimeout()

	for attempt := 0; attempt < m.cfg.MaxAttempts; attempt++ {
		step := m.cfg.Step.Mul(decimal.NewFromInt(int64(attempt)))
		price := initial.Add(step)
		if !isDebit {
			price = initial.Sub(step)
		}
		price = RoundToTick(price, tick)

		if attempt > 0 {
			m.alerts.Notifyf("attempt %d/%d: improving price to %s", attempt+1, m.cfg.MaxAttempts, price)
		}

		orderID, err := factory(ctx, price)
		if err != nil {
			m.alerts.Error("order submission failed: " + err.Error())
			return OutcomeNotSubmitted, errors.Wrap(err, "submit order")
		}
		if orderID == "" {
			// Dry-run or deliberate non-submission; nothing to monitor.
			logs.Info("order: factory submitted nothing, stopping improvement loop")
			return OutcomeNotSubmitted, nil
		}

		res, err := m.monitor(ctx, orderID, timeout)
		if err != nil {
			m.alerts.Errorf("order %s: monitoring aborted, order may still be working: %s", orderID, err.Error())
			return OutcomeUnknown, err
		}
		switch res {
		case monitorFilled:
			m.alerts.Notifyf("order %s filled", orderID)
			return OutcomeFilled, nil
		case monitorRejected:
			return OutcomeRejected, nil
		case monitorCancelled:
			return OutcomeCancelled, nil
		case monitorTimeout:
			// The broker may have filled or cancelled it concurrently, so a
			// failed cancel here is logged, not escalated.
			if err := m.Cancel(ctx, orderID); err != nil {
				logs.Errorf("order: cancel timed-out order %s, continuing with next price, err: %+v", orderID, err)
			}
		}
	}

	m.alerts.Notifyf("order not filled after %d price improvement attempts", m.cfg.MaxAttempts)
	return OutcomeExhausted, nil
}

type monitorResult int

const (
	monitorFilled monitorResult = iota
	monitorRejected
	monitorCancelled
	monitorTimeout
)

// monitor polls one working order until it reaches a terminal state, ctx is
// cancelled, or the attempt deadline passes. The deadline is measured from
// this attempt's start.
func (m *Manager) monitor(ctx context.Context, orderID string, timeout time.Duration) (monitorResult, error) {
	start := m.cfg.Now()
	var lastPoll time.Time
	var lastLog time.Time

	for m.cfg.Now().Sub(start) < timeout {
		select {
		case <-ctx.Done():
			if err := m.Cancel(context.WithoutCancel(ctx), orderID); err != nil {
				logs.Errorf("order: cancel %s after cancellation signal, err: %+v", orderID, err)
			}
			m.alerts.Notifyf("order %s cancelled", orderID)
			return monitorCancelled, nil
		default:
		}

		now := m.cfg.Now()
		if lastPoll.IsZero() || now.Sub(lastPoll) >= m.cfg.PollInterval {
			state, err := m.CheckStatus(ctx, orderID)
			lastPoll = now
			if err != nil {
				return 0, errors.Wrapf(err, "check order %s", orderID)
			}

			if lastLog.IsZero() || now.Sub(lastLog) >= 5*time.Second {
				remaining := (timeout - now.Sub(start)).Truncate(time.Second)
				logs.Infof("order %s: status %s, remaining %s, price %s, filled %s",
					orderID, state.Status, remaining, state.Price, state.FilledQuantity)
				lastLog = now
			}

			switch state.Status {
			case model.OrderStatusFilled:
				return monitorFilled, nil
			case model.OrderStatusRejected:
				m.alerts.Error("order " + orderID + " rejected: " + state.RejectionReason)
				return monitorRejected, nil
			case model.OrderStatusCanceled:
				return monitorCancelled, nil
			}
		}

		timer := time.NewTimer(m.cfg.TickInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	return monitorTimeout, nil
}

// CheckStatus returns the broker's view of the order through a short-TTL
// read-through cache, so concurrent pollers within one tick share a single
// broker call. Invalidation is purely by age.
func (m *Manager) CheckStatus(ctx context.Context, orderID string) (model.OrderState, error) {
	now := m.cfg.Now()
	m.cacheMu.Lock()
	if e, ok := m.statusCache[orderID]; ok && now.Sub(e.at) < m.cfg.StatusTTL {
		m.cacheMu.Unlock()
		return e.state, nil
	}
	m.cacheMu.Unlock()

	detail, err := m.api.Order(ctx, orderID)
	if err != nil {
		return model.OrderState{}, errors.Wrap(err, "get order")
	}

	m.cacheMu.Lock()
	m.statusCache[orderID] = statusEntry{at: now, state: detail.State}
	m.cacheMu.Unlock()
	return detail.State, nil
}

// Cancel cancels a working order. Broker responses meaning "already filled"
// or "already cancelled" are success-equivalent: the order is terminal either
// way, which is all the caller cares about.
func (m *Manager) Cancel(ctx context.Context, orderID string) error {
	err := m.api.CancelOrder(ctx, orderID)
	if err == nil {
		return nil
	}
	if errors.Is(err, exception.ErrOrderAlreadyFilled) || errors.Is(err, exception.ErrOrderAlreadyCanceled) {
		return nil
	}
	return errors.Wrapf(err, "cancel order %s", orderID)
}

// Replace moves a working order to a new price, preferring the broker's
// in-place replace. When that is unsupported it falls back to cancel and
// resubmit from the order's current legs; if the cancel loses a race against
// a fill, the fill is surfaced instead of resubmitting a duplicate.
func (m *Manager) Replace(ctx context.Context, orderID string, newPrice decimal.Decimal) (string, error) {
	detail, err := m.api.Order(ctx, orderID)
	if err != nil {
		return "", errors.Wrapf(err, "load order %s for replace", orderID)
	}

	spec := detail.Spec
	if len(spec.Legs) == 0 {
		return "", exception.ErrOrderEmptyLegs
	}
	tick := m.tickFor(model.Underlying(spec.Legs[0].Symbol))
	spec.Price = RoundToTick(newPrice.Abs(), tick)

	newID, err := m.api.ReplaceOrder(ctx, orderID, spec)
	if err == nil {
		return newID, nil
	}
	if !errors.Is(err, exception.ErrBrokerUnsupported) {
		return "", errors.Wrapf(err, "replace order %s", orderID)
	}

	m.alerts.Notifyf("broker cannot replace order %s in place, cancelling and resubmitting", orderID)
	if err := m.api.CancelOrder(ctx, orderID); err != nil {
		if errors.Is(err, exception.ErrOrderAlreadyFilled) {
			return "", errors.Wrapf(exception.ErrOrderAlreadyFilled, "replace of %s aborted", orderID)
		}
		if state, serr := m.CheckStatus(ctx, orderID); serr == nil && state.Status == model.OrderStatusFilled {
			return "", errors.Wrapf(exception.ErrOrderAlreadyFilled, "replace of %s aborted", orderID)
		}
		return "", errors.Wrapf(err, "cancel order %s for replace", orderID)
	}

	newID, err = m.api.PlaceOrder(ctx, spec)
	if err != nil {
		return "", errors.Wrapf(err, "resubmit order %s", orderID)
	}
	return newID, nil
}

func (m *Manager) tickFor(underlying string) decimal.Decimal {
	if tick, ok := m.cfg.Ticks[model.Underlying(underlying)]; ok {
		return tick
	}
	return m.cfg.DefaultTick
}

// monitorTimeout picks the attempt timeout, shortening it after the late
// cutoff to react faster near the close.
func (m *Manager) monitorTimeout() time.Duration {
	now := m.cfg.Now()
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), m.cfg.LateCutoffHour, m.cfg.LateCutoffMinute, 0, 0, now.Location())
	if !now.Before(cutoff) {
		return m.cfg.LateMonitorTimeout
	}
	return m.cfg.MonitorTimeout
}
