package stream

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"trader/internal/alert"
	"trader/internal/broker"
	"trader/internal/quote"
	"trader/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// State is the connection lifecycle phase, exposed for observability.
type State int32

const (
	StateInit State = iota
	StateConnecting
	StateLoggedIn
	StateStreaming
	StateRecovering
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateLoggedIn:
		return "logged_in"
	case StateStreaming:
		return "streaming"
	case StateRecovering:
		return "recovering"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config tunes the resilience behavior. Zero values fall back to defaults.
type Config struct {
	// ReceiveTimeout bounds a single wait for a message. Timing out is
	// normal in an idle market and is not a transport failure.
	ReceiveTimeout time.Duration
	// StaleAfter is the gap since the last handled message after which the
	// watchdog forces a reconnect.
	StaleAfter time.Duration
	// WatchdogInterval is the watchdog's own tick cadence.
	WatchdogInterval time.Duration
	// RestartCooldown is the minimum spacing between forced restarts.
	RestartCooldown time.Duration
	// AlertAfter is how long transport failures must persist before the one
	// operator alert for the episode goes out.
	AlertAfter time.Duration

	Backoff Backoff

	// Now is injectable for tests.
	Now func() time.Time
}

func (cfg *Config) init() {
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = 30 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = time.Minute
	}
	if cfg.RestartCooldown <= 0 {
		cfg.RestartCooldown = time.Minute
	}
	if cfg.AlertAfter <= 0 {
		cfg.AlertAfter = 5 * time.Minute
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
}

// Client owns the single live streaming session: it subscribes symbols,
// feeds the shared quote cache, and heals the connection.
//
// Exactly three paths touch the session: the receive loop, the watchdog, and
// an in-flight rebuild; they serialize on mu so concurrent restart triggers
// never run rebuild logic twice.
type Client struct {
	dial   broker.Dialer
	cache  *quote.Cache
	alerts alert.Sink
	cfg    Config

	mu       sync.Mutex
	sess     broker.Streamer
	options  map[string]struct{}
	equities map[string]struct{}

	hp     *health
	state  atomic.Int32
	forced atomic.Bool

	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
}

// NewClient builds a stream client around a dialer. The cache is shared with
// whoever reads quotes.
func NewClient(dial broker.Dialer, cache *quote.Cache, alerts alert.Sink, cfg Config) *Client {
	cfg.init()
	return &Client{
		dial:     dial,
		cache:    cache,
		alerts:   alerts,
		cfg:      cfg,
		options:  make(map[string]struct{}),
		equities: make(map[string]struct{}),
	}
}

// Start connects, logs in, and launches the receive loop and the watchdog.
// Calling Start on a running client is a no-op. A login rejection is fatal
// and returned; a transport failure is not, the background loop keeps
// retrying it.
func (c *Client) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}

	c.runCtx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.hp = newHealth(c.cfg.Now())
	c.state.Store(int32(StateInit))

	if err := c.connect(); err != nil {
		if isAuthErr(err) {
			c.state.Store(int32(StateFailed))
			c.started.Store(false)
			c.cancel()
			c.alerts.Error("stream login failed, operator action required: " + err.Error())
			return errors.Wrap(err, "stream login")
		}
		c.hp.failure(c.cfg.Now())
		logs.Errorf("stream: initial connect failed, retrying in background, err: %+v", err)
	}

	c.wg.Add(2)
	go c.run()
	go c.watchdog()
	return nil
}

// Stop cancels both loops and closes the session with a best-effort logout.
// Safe to call when already stopped.
func (c *Client) Stop() {
	if !c.started.CompareAndSwap(true, false) {
		return
	}
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()
	if sess != nil {
		if err := sess.Close(); err != nil {
			logs.Errorf("stream: close session, err: %+v", err)
		}
	}
	c.state.Store(int32(StateInit))
}

// State returns the current lifecycle phase.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Last returns the cached last trade price for symbol.
func (c *Client) Last(symbol string) (float64, bool) {
	return c.cache.Last(symbol)
}

// BidAsk returns the cached bid/ask for symbol.
func (c *Client) BidAsk(symbol string) (bid, ask float64, ok bool) {
	return c.cache.BidAsk(symbol)
}

// SubscribeOptions adds option symbols not already tracked. Demand is
// retained even while disconnected and replayed on the next login.
func (c *Client) SubscribeOptions(ctx context.Context, symbols []string) error {
	return c.subscribe(ctx, broker.SubscribeOptions, symbols)
}

// SubscribeEquities adds equity symbols not already tracked.
func (c *Client) SubscribeEquities(ctx context.Context, symbols []string) error {
	return c.subscribe(ctx, broker.SubscribeEquities, symbols)
}

// UnsubscribeOptions drops option symbols from the stream. Callers are
// expected to have checked that no other consumer still wants them.
func (c *Client) UnsubscribeOptions(ctx context.Context, symbols []string) error {
	return c.unsubscribe(ctx, broker.SubscribeOptions, symbols)
}

// UnsubscribeEquities drops equity symbols from the stream.
func (c *Client) UnsubscribeEquities(ctx context.Context, symbols []string) error {
	return c.unsubscribe(ctx, broker.SubscribeEquities, symbols)
}

// Subscribed reports whether symbol is currently tracked.
func (c *Client) Subscribed(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.options[symbol]; ok {
		return true
	}
	_, ok := c.equities[strings.ToUpper(symbol)]
	return ok
}

func (c *Client) subscribe(ctx context.Context, kind broker.SubscriptionKind, symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := c.setFor(kind)
	fresh := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = normalizeSymbol(kind, s)
		if s == "" {
			continue
		}
		if _, exists := set[s]; exists {
			continue
		}
		fresh = append(fresh, s)
	}
	if len(fresh) == 0 {
		return nil
	}

	// Record demand before the wire call: if the session is down or the call
	// fails, the reconnect path re-issues the whole set anyway.
	for _, s := range fresh {
		set[s] = struct{}{}
	}
	if c.sess == nil {
		return nil
	}
	if err := c.sess.Subscribe(ctx, kind, fresh); err != nil {
		return errors.Wrapf(err, "subscribe %s", kind)
	}
	return nil
}

func (c *Client) unsubscribe(ctx context.Context, kind broker.SubscriptionKind, symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := c.setFor(kind)
	drop := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = normalizeSymbol(kind, s)
		if _, exists := set[s]; !exists {
			continue
		}
		drop = append(drop, s)
	}
	if len(drop) == 0 {
		return nil
	}

	for _, s := range drop {
		delete(set, s)
	}
	if c.sess == nil {
		return nil
	}
	if err := c.sess.Unsubscribe(ctx, kind, drop); err != nil {
		return errors.Wrapf(err, "unsubscribe %s", kind)
	}
	return nil
}

func (c *Client) setFor(kind broker.SubscriptionKind) map[string]struct{} {
	if kind == broker.SubscribeEquities {
		return c.equities
	}
	return c.options
}

func normalizeSymbol(kind broker.SubscriptionKind, s string) string {
	s = strings.TrimSpace(s)
	if kind == broker.SubscribeEquities {
		s = strings.ToUpper(s)
	}
	return s
}

// run owns the connect/receive cycle until Stop.
func (c *Client) run() {
	defer c.wg.Done()
	for {
		if c.runCtx.Err() != nil {
			return
		}

		if c.session() == nil {
			if streak := c.hp.streak(); streak > 0 {
				if c.hp.shouldAlert(c.cfg.Now(), c.cfg.AlertAfter) {
					c.alerts.Error("stream connection failing for over " + c.cfg.AlertAfter.String() + ", still retrying")
				}
				if !c.sleep(c.cfg.Backoff.Next(streak)) {
					return
				}
			}
			if err := c.connect(); err != nil {
				if isAuthErr(err) {
					c.state.Store(int32(StateFailed))
					c.alerts.Error("stream login failed, operator action required: " + err.Error())
					return
				}
				c.hp.failure(c.cfg.Now())
				logs.Errorf("stream: reconnect failed, err: %+v", err)
				continue
			}
		}

		c.receive()
	}
}

// connect dials a fresh session, logs in, and replays all retained demand.
// The server forgets subscriptions across logins. Serialized on mu so it
// cannot race a watchdog teardown or concurrent subscribe calls.
func (c *Client) connect() error {
	c.state.Store(int32(StateConnecting))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		return nil
	}

	sess, err := c.dial(c.runCtx)
	if err != nil {
		return errors.Wrap(err, "dial stream")
	}
	if err := sess.Login(c.runCtx); err != nil {
		_ = sess.Close()
		return errors.Wrap(err, "stream login")
	}
	c.state.Store(int32(StateLoggedIn))

	if len(c.options) > 0 {
		if err := sess.Subscribe(c.runCtx, broker.SubscribeOptions, keys(c.options)); err != nil {
			_ = sess.Close()
			return errors.Wrap(err, "resubscribe options")
		}
	}
	if len(c.equities) > 0 {
		if err := sess.Subscribe(c.runCtx, broker.SubscribeEquities, keys(c.equities)); err != nil {
			_ = sess.Close()
			return errors.Wrap(err, "resubscribe equities")
		}
	}

	c.sess = sess
	// A watchdog teardown flag that nobody consumed (the reader saw the nil
	// session instead of a close error) must not outlive the session it was
	// raised for, or the next genuine failure gets misread.
	c.forced.Store(false)
	c.hp.restarted(c.cfg.Now())
	c.state.Store(int32(StateStreaming))
	logs.Infof("stream: connected, %d option and %d equity symbols active", len(c.options), len(c.equities))
	return nil
}

// receive pulls messages until the session breaks or Stop is called.
func (c *Client) receive() {
	for {
		if c.runCtx.Err() != nil {
			return
		}
		sess := c.session()
		if sess == nil {
			return
		}

		rctx, cancel := context.WithTimeout(c.runCtx, c.cfg.ReceiveTimeout)
		updates, err := sess.ReceiveOne(rctx)
		cancel()

		if err != nil {
			if c.runCtx.Err() != nil {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				// Idle market. The watchdog, not this loop, decides when
				// silence has gone on long enough to restart.
				continue
			}

			c.dropSession(sess)
			c.state.Store(int32(StateRecovering))
			if c.forced.Swap(false) {
				// Watchdog-triggered teardown, not a transport failure.
				c.hp.resetStreak()
				logs.Info("stream: session closed by watchdog, rebuilding")
			} else {
				c.hp.failure(c.cfg.Now())
				logs.Errorf("stream: receive failed, rebuilding, err: %+v", err)
			}
			return
		}

		c.hp.message(c.cfg.Now())
		for _, u := range updates {
			c.cache.Apply(u)
		}
	}
}

// watchdog forces a reconnect when the stream has gone silent past the stale
// threshold, catching half-open sockets whose reads keep timing out cleanly.
// Forced restarts are rate-limited by the cooldown.
func (c *Client) watchdog() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.runCtx.Done():
			return
		case <-ticker.C:
		}

		if c.State() == StateFailed {
			return
		}
		now := c.cfg.Now()
		if !c.hp.stale(now, c.cfg.StaleAfter) {
			continue
		}
		if !c.hp.restartAllowed(now, c.cfg.RestartCooldown) {
			continue
		}

		logs.Warnf("stream: no message for over %s, forcing reconnect", c.cfg.StaleAfter)
		c.forceRestart()
	}
}

func (c *Client) forceRestart() {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()

	c.hp.resetStreak()
	if sess == nil {
		return
	}
	c.forced.Store(true)
	if err := sess.Close(); err != nil {
		logs.Errorf("stream: close stale session, err: %+v", err)
	}
}

func (c *Client) session() broker.Streamer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *Client) dropSession(old broker.Streamer) {
	c.mu.Lock()
	if c.sess == old {
		c.sess = nil
	}
	c.mu.Unlock()
	_ = old.Close()
}

// sleep waits for d or until Stop; returns false when stopping.
func (c *Client) sleep(d time.Duration) bool {
	if d <= 0 {
		return c.runCtx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.runCtx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func isAuthErr(err error) bool {
	return errors.Is(err, exception.ErrBrokerAuth) || errors.Is(err, exception.ErrStreamLoginRejected)
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}
