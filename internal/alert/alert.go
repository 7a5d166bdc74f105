package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/yanun0323/logs"
)

// Sink is a one-way, fire-and-forget notification channel. Implementations
// must never block the caller and never return errors: a lost notification is
// preferable to a stalled trading loop.
type Sink interface {
	Notify(message string)
	Notifyf(format string, args ...any)
	Error(message string)
	Errorf(format string, args ...any)
}

// Notifier delivers a message to an external channel, e.g. Telegram.
type Notifier interface {
	Send(ctx context.Context, message string, isError bool) error
}

type entry struct {
	at      time.Time
	message string
	isError bool
}

// Dispatcher fans alerts out to the log and an optional external notifier.
// The queue is bounded; on overflow the oldest entry is dropped so the feed
// stays fresh.
type Dispatcher struct {
	queue    chan entry
	notifier Notifier
}

const defaultQueueSize = 1000

// NewDispatcher builds a dispatcher. notifier may be nil, in which case
// alerts only reach the log.
func NewDispatcher(notifier Notifier, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		queue:    make(chan entry, queueSize),
		notifier: notifier,
	}
}

// Run drains the queue until ctx is done. Start it exactly once.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.queue:
			d.deliver(ctx, e)
		}
	}
}

// Notify enqueues an informational alert.
func (d *Dispatcher) Notify(message string) {
	d.enqueue(entry{at: time.Now(), message: message})
}

// Error enqueues an operator-visible error alert.
func (d *Dispatcher) Error(message string) {
	d.enqueue(entry{at: time.Now(), message: message, isError: true})
}

// Notifyf enqueues a formatted informational alert.
func (d *Dispatcher) Notifyf(format string, args ...any) {
	d.Notify(fmt.Sprintf(format, args...))
}

// Errorf enqueues a formatted error alert.
func (d *Dispatcher) Errorf(format string, args ...any) {
	d.Error(fmt.Sprintf(format, args...))
}

func (d *Dispatcher) enqueue(e entry) {
	select {
	case d.queue <- e:
		return
	default:
	}

	// Full: drop the oldest entry to keep the feed fresh.
	select {
	case <-d.queue:
	default:
	}
	select {
	case d.queue <- e:
	default:
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e entry) {
	if e.isError {
		logs.Errorf("alert: %s", e.message)
	} else {
		logs.Infof("alert: %s", e.message)
	}

	if d.notifier == nil {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := d.notifier.Send(sendCtx, e.message, e.isError); err != nil {
		// Best-effort channel; never escalate delivery failures.
		logs.Errorf("alert: notifier send failed: %+v", err)
	}
}
