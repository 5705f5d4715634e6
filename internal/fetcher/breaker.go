package fetcher

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrHostUnavailable is returned while a host's breaker is open.
var ErrHostUnavailable = eris.New("fetcher: host unavailable after repeated failures")

// breakerState is the state of one host's circuit breaker.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// hostBreaker stops downloads from a host after threshold consecutive failed
// downloads. After cooldown one trial request is let through; its outcome closes or
// reopens the breaker.
type hostBreaker struct {
	host      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

func newHostBreaker(host string, threshold int, cooldown time.Duration) *hostBreaker {
	return &hostBreaker{host: host, threshold: threshold, cooldown: cooldown, now: time.Now}
}

// allow reports whether a download may start.
func (b *hostBreaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return eris.Wrapf(ErrHostUnavailable, "fetcher: %s", b.host)
		}
		b.transition(breakerHalfOpen)
		b.probing = true
		return nil
	case breakerHalfOpen:
		if b.probing {
			return eris.Wrapf(ErrHostUnavailable, "fetcher: %s (trial in flight)", b.host)
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// record reports the outcome of a download allowed by allow.
func (b *hostBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		b.probing = false
		if b.state != breakerClosed {
			b.transition(breakerClosed)
		}
		return
	}

	b.failures++
	switch b.state {
	case breakerHalfOpen:
		b.probing = false
		b.openedAt = b.now()
		b.transition(breakerOpen)
	case breakerClosed:
		if b.failures >= b.threshold {
			b.openedAt = b.now()
			b.transition(breakerOpen)
		}
	}
}

// abort releases a download that ended without an outcome, such as a
// cancelled context.
func (b *hostBreaker) abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

func (b *hostBreaker) State() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *hostBreaker) transition(to breakerState) {
	zap.L().Warn("fetcher: host breaker state change",
		zap.String("host", b.host),
		zap.String("from", b.state.String()),
		zap.String("to", to.String()),
		zap.Int("failures", b.failures),
	)
	b.state = to
}
