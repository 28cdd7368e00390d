package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/accelmon/accel"
)

// DefaultInterval is the nominal sampling period.
const DefaultInterval = 300 * time.Millisecond

// ErrInvalidState is returned when an operation is attempted outside the
// lifecycle state it belongs to. Sampling never touches hardware in that case.
var ErrInvalidState = fmt.Errorf("invalid poller state")

// State is the poller lifecycle. Transitions are one-directional; a stopped
// poller is not resumable and restarting requires re-acquiring the bus.
type State int

const (
	Uninitialized State = iota
	Configured
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Configured:
		return "configured"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Device is the sampled accelerometer.
type Device interface {
	Configure(ctx context.Context) error
	Sample(ctx context.Context) (accel.Acceleration, error)
}

// Result is what the consumer receives on every tick: either a fresh reading
// or the error that tick produced. Exactly one of the two is meaningful.
type Result struct {
	Reading accel.Acceleration
	Err     error
	At      time.Time
}

type Opts struct {
	Release func(ctx context.Context) error
	Buffer  int
}

type Opt func(*Opts)

// WithRelease registers a cleanup hook, typically the bus handle release,
// invoked once when the poller stops.
func WithRelease(release func(ctx context.Context) error) Opt {
	return func(o *Opts) {
		o.Release = release
	}
}

// WithBuffer sets the result channel capacity. The default of 1 gives
// latest-wins delivery to a slow consumer.
func WithBuffer(size int) Opt {
	return func(o *Opts) {
		if size > 0 {
			o.Buffer = size
		}
	}
}

// Poller drives a Device on a fixed cadence from its own goroutine and hands
// results to the consumer over a channel. The consumer side never shares
// state with the sampling goroutine.
type Poller struct {
	mx     sync.Mutex
	state  State
	dev    Device
	config Opts

	out  chan Result
	done chan struct{}
	wg   sync.WaitGroup
}

func New(dev Device, opts ...Opt) *Poller {
	config := Opts{Buffer: 1}
	for _, opt := range opts {
		opt(&config)
	}
	return &Poller{
		state:  Uninitialized,
		dev:    dev,
		config: config,
	}
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.state
}

// Configure performs the one-time device setup and moves the poller to
// Configured. It is only valid on a fresh poller.
func (p *Poller) Configure(ctx context.Context) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.state != Uninitialized {
		return fmt.Errorf("%w: configure in state %s", ErrInvalidState, p.state)
	}
	if err := p.dev.Configure(ctx); err != nil {
		return fmt.Errorf("device configuration failed: %w", err)
	}
	p.state = Configured
	return nil
}

// Start begins sampling every interval and returns the result channel the
// consumer reads from. An interval <= 0 selects DefaultInterval. The channel
// is closed once the poller has fully stopped.
func (p *Poller) Start(interval time.Duration) (<-chan Result, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.state != Configured {
		return nil, fmt.Errorf("%w: start in state %s", ErrInvalidState, p.state)
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	p.out = make(chan Result, p.config.Buffer)
	p.done = make(chan struct{})
	p.state = Running
	p.wg.Add(1)
	go p.run(interval)
	return p.out, nil
}

// Stop cancels future ticks and releases the bus handle. Idempotent, safe to
// call in any state. When it returns, no new tick will begin; a tick that was
// already executing has completed and its result delivery was best-effort.
func (p *Poller) Stop() {
	p.mx.Lock()
	if p.state == Stopped {
		p.mx.Unlock()
		return
	}
	running := p.state == Running
	p.state = Stopped
	if running {
		close(p.done)
	}
	p.mx.Unlock()

	if running {
		p.wg.Wait()
		close(p.out)
	}
	if p.config.Release != nil {
		if err := p.config.Release(context.Background()); err != nil {
			slog.Warn("bus release failed", "error", err)
		}
		p.config.Release = nil
	}
}

func (p *Poller) run(interval time.Duration) {
	defer p.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			// re-check cancellation; select picks randomly when both
			// channels are ready
			select {
			case <-p.done:
				return
			default:
			}
			// the sample runs on this goroutine, so at most one bus
			// transaction is ever in flight; ticks that come due while a
			// slow sample is still executing are dropped by the ticker,
			// not queued
			p.deliver(p.sampleOnce())
		}
	}
}

func (p *Poller) sampleOnce() Result {
	res := Result{At: time.Now()}
	res.Reading, res.Err = p.dev.Sample(context.Background())
	return res
}

// deliver hands a result to the consumer without ever blocking the sampling
// loop. A consumer that has fallen behind loses the stale undelivered result
// in favor of the fresh one.
func (p *Poller) deliver(res Result) {
	select {
	case p.out <- res:
		return
	default:
	}
	select {
	case <-p.out:
		slog.Debug("consumer behind, displacing stale result")
	default:
	}
	select {
	case p.out <- res:
	default:
	}
}
