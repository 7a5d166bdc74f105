package stream

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"trader/internal/broker"
	"trader/internal/model"
	"trader/internal/quote"
	"trader/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSink struct {
	mu     sync.Mutex
	errors []string
}

func (s *recordSink) Notify(string) {}

func (s *recordSink) Notifyf(string, ...any) {}

func (s *recordSink) Error(message string) {
	s.mu.Lock()
	s.errors = append(s.errors, message)
	s.mu.Unlock()
}

func (s *recordSink) Errorf(format string, args ...any) {
	s.Error(fmt.Sprintf(format, args...))
}

func (s *recordSink) errorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errors)
}

type fakeStreamer struct {
	mu       sync.Mutex
	subs     map[broker.SubscriptionKind][]string
	loginErr error

	// quietClose makes Close a no-op, so a blocked ReceiveOne stays blocked.
	quietClose bool

	recv      chan error
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{
		subs: make(map[broker.SubscriptionKind][]string),
		recv: make(chan error, 16),
		done: make(chan struct{}),
	}
}

func (f *fakeStreamer) Login(context.Context) error { return f.loginErr }

func (f *fakeStreamer) Subscribe(_ context.Context, kind broker.SubscriptionKind, symbols []string) error {
	f.mu.Lock()
	f.subs[kind] = append(f.subs[kind], symbols...)
	f.mu.Unlock()
	return nil
}

func (f *fakeStreamer) Unsubscribe(_ context.Context, kind broker.SubscriptionKind, symbols []string) error {
	return nil
}

func (f *fakeStreamer) ReceiveOne(ctx context.Context) ([]model.QuoteUpdate, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return nil, exception.ErrStreamClosed
	case err := <-f.recv:
		if err != nil {
			return nil, err
		}
		return []model.QuoteUpdate{{Symbol: "SPY", Last: 450.5, HasLast: true}}, nil
	}
}

func (f *fakeStreamer) Close() error {
	if f.quietClose {
		return nil
	}
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

func (f *fakeStreamer) subscribed(kind broker.SubscriptionKind) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subs[kind]...)
}

type fakeDialer struct {
	mu      sync.Mutex
	streams []*fakeStreamer
	prepare func(*fakeStreamer)
}

func (d *fakeDialer) dial(context.Context) (broker.Streamer, error) {
	s := newFakeStreamer()
	if d.prepare != nil {
		d.prepare(s)
	}
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.streams)
}

func (d *fakeDialer) stream(i int) *fakeStreamer {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.streams) {
		return nil
	}
	return d.streams[i]
}

func fastConfig() Config {
	return Config{
		ReceiveTimeout:   time.Minute,
		StaleAfter:       time.Hour,
		WatchdogInterval: time.Hour,
		RestartCooldown:  time.Hour,
		AlertAfter:       time.Hour,
		Backoff:          Backoff{Min: time.Millisecond, Max: 2 * time.Millisecond, Factor: 2},
	}
}

func TestClientStartIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	c := NewClient(dialer.dial, quote.NewCache(), &recordSink{}, fastConfig())

	require.NoError(t, c.Start(t.Context()))
	require.NoError(t, c.Start(t.Context()))
	defer c.Stop()

	assert.Equal(t, 1, dialer.count())
	assert.Equal(t, StateStreaming, c.State())
}

func TestClientStopTwice(t *testing.T) {
	dialer := &fakeDialer{}
	c := NewClient(dialer.dial, quote.NewCache(), &recordSink{}, fastConfig())

	require.NoError(t, c.Start(t.Context()))
	c.Stop()
	c.Stop()
}

func TestClientUpdatesReachCache(t *testing.T) {
	dialer := &fakeDialer{}
	cache := quote.NewCache()
	c := NewClient(dialer.dial, cache, &recordSink{}, fastConfig())

	require.NoError(t, c.Start(t.Context()))
	defer c.Stop()

	dialer.stream(0).recv <- nil

	require.Eventually(t, func() bool {
		last, ok := cache.Last("SPY")
		return ok && last == 450.5
	}, time.Second, time.Millisecond)
}

func TestClientResubscribesAfterTransportFailure(t *testing.T) {
	dialer := &fakeDialer{}
	c := NewClient(dialer.dial, quote.NewCache(), &recordSink{}, fastConfig())

	require.NoError(t, c.Start(t.Context()))
	defer c.Stop()

	require.NoError(t, c.SubscribeOptions(t.Context(), []string{"SPXW  251003C06450000"}))
	require.NoError(t, c.SubscribeEquities(t.Context(), []string{"spy"}))

	dialer.stream(0).recv <- exception.ErrBrokerTransport

	// The whole retained set must be replayed on the fresh session.
	require.Eventually(t, func() bool {
		s := dialer.stream(1)
		if s == nil {
			return false
		}
		opts := s.subscribed(broker.SubscribeOptions)
		eqs := s.subscribed(broker.SubscribeEquities)
		return len(opts) == 1 && opts[0] == "SPXW  251003C06450000" &&
			len(eqs) == 1 && eqs[0] == "SPY"
	}, time.Second, time.Millisecond)

	assert.Eventually(t, func() bool {
		return c.State() == StateStreaming
	}, time.Second, time.Millisecond)
}

func TestClientLoginRejectionIsFatal(t *testing.T) {
	dialer := &fakeDialer{prepare: func(s *fakeStreamer) {
		s.loginErr = exception.ErrStreamLoginRejected
	}}
	sink := &recordSink{}
	c := NewClient(dialer.dial, quote.NewCache(), sink, fastConfig())

	err := c.Start(t.Context())
	require.Error(t, err)

	// No retry loop for credential problems, and exactly one operator alert.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, dialer.count())
	assert.Equal(t, 1, sink.errorCount())

	// Nothing was launched, so the derived context must already be released.
	assert.ErrorIs(t, c.runCtx.Err(), context.Canceled)
}

func TestClientWatchdogForcesOneRestartPerCooldown(t *testing.T) {
	dialer := &fakeDialer{}
	cfg := fastConfig()
	cfg.StaleAfter = 30 * time.Millisecond
	cfg.WatchdogInterval = 10 * time.Millisecond
	cfg.RestartCooldown = time.Hour
	c := NewClient(dialer.dial, quote.NewCache(), &recordSink{}, cfg)

	require.NoError(t, c.Start(t.Context()))
	defer c.Stop()

	// Silence past the stale threshold forces exactly one reconnect; the
	// cooldown blocks further forced restarts.
	require.Eventually(t, func() bool {
		return dialer.count() == 2
	}, time.Second, time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, dialer.count())
	assert.Equal(t, StateStreaming, c.State())
}

func TestClientForcedTeardownFlagClearedOnReconnect(t *testing.T) {
	dialer := &fakeDialer{prepare: func(s *fakeStreamer) { s.quietClose = true }}
	c := NewClient(dialer.dial, quote.NewCache(), &recordSink{}, fastConfig())

	require.NoError(t, c.Start(t.Context()))
	defer c.Stop()

	// Tear the session down the way the watchdog does, then let the reader
	// finish one successful receive. It then observes the nil session instead
	// of a close error and never consumes the teardown flag.
	c.forceRestart()
	dialer.stream(0).recv <- nil

	require.Eventually(t, func() bool {
		return dialer.count() == 2 && c.State() == StateStreaming
	}, time.Second, time.Millisecond)

	// The stale flag must not survive into the fresh session, or the next
	// genuine transport failure would be misread as watchdog fallout.
	assert.False(t, c.forced.Load())
}

func TestClientSubscribeDedupes(t *testing.T) {
	dialer := &fakeDialer{}
	c := NewClient(dialer.dial, quote.NewCache(), &recordSink{}, fastConfig())

	require.NoError(t, c.Start(t.Context()))
	defer c.Stop()

	require.NoError(t, c.SubscribeEquities(t.Context(), []string{"SPY"}))
	require.NoError(t, c.SubscribeEquities(t.Context(), []string{"spy"}))

	assert.Len(t, dialer.stream(0).subscribed(broker.SubscribeEquities), 1)
	assert.True(t, c.Subscribed("SPY"))
}
