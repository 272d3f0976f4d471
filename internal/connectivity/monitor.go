// Package connectivity tracks whether network tiers may be used. It combines
// host link signals with a periodic heartbeat probe and publishes every state
// change to subscribers.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/lectio/internal/domain"
	"github.com/mmcdole/lectio/internal/events"
)

const (
	defaultHeartbeat    = 30 * time.Second
	defaultSettle       = 4 * time.Second
	defaultProbeTimeout = 5 * time.Second
)

// Options configures a Monitor.
type Options struct {
	Heartbeat    time.Duration
	Settle       time.Duration // how long Syncing lasts after reconnecting
	ProbeTimeout time.Duration
	Links        <-chan bool // optional host link signals
	StartOffline bool
}

// Monitor owns the process-wide ConnectivityState.
//
// State changes are serialized by transMu and published while it is held, so
// subscribers see transitions in order. Subscribers may call State and
// IsOnline but must not call Notify.
type Monitor struct {
	prober Prober
	opts   Options
	logger *slog.Logger

	transMu   sync.Mutex
	settle    *time.Timer
	settleGen int
	closed    bool

	mu    sync.RWMutex
	state domain.ConnectivityState

	subs    events.Broadcaster[domain.ConnectivityState]
	probeCh chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewMonitor creates a monitor. A nil prober disables the heartbeat; only
// link signals and Notify then move the state.
func NewMonitor(prober Prober, opts Options, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	if opts.Settle <= 0 {
		opts.Settle = defaultSettle
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	m := &Monitor{
		prober:  prober,
		opts:    opts,
		logger:  logger,
		probeCh: make(chan struct{}, 1),
		cancel:  func() {},
	}
	if opts.StartOffline {
		m.state = domain.ConnectivityState{IsOnline: false, WasOffline: true}
	} else {
		m.state = domain.ConnectivityState{IsOnline: true}
	}
	return m
}

// Start runs the initial probe and the heartbeat loop until Close.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		m.cancel = cancel
		m.wg.Add(1)
		go m.loop(ctx)
	})
}

// Close stops the heartbeat and the settle timer and waits for the loop.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		m.transMu.Lock()
		m.closed = true
		m.disarm()
		m.transMu.Unlock()

		m.cancel()
		m.wg.Wait()
	})
	return nil
}

func (m *Monitor) State() domain.ConnectivityState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Monitor) IsOnline() bool {
	return m.State().IsOnline
}

func (m *Monitor) Subscribe(fn func(domain.ConnectivityState)) func() {
	return m.subs.Subscribe(fn)
}

// Notify feeds a host link signal. An online signal also schedules a probe,
// which demotes the monitor again if the network is not really reachable.
func (m *Monitor) Notify(online bool) {
	m.apply(online, "link")
	if online {
		m.requestProbe()
	}
}

func (m *Monitor) requestProbe() {
	select {
	case m.probeCh <- struct{}{}:
	default:
	}
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	m.probe(ctx)

	t := time.NewTicker(m.opts.Heartbeat)
	defer t.Stop()

	links := m.opts.Links
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.probe(ctx)
		case <-m.probeCh:
			m.probe(ctx)
		case online, ok := <-links:
			if !ok {
				links = nil
				continue
			}
			m.apply(online, "link")
			if online {
				m.probe(ctx)
			}
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	if m.prober == nil {
		return
	}
	probeCtx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	err := m.prober.Probe(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.logger.Debug("heartbeat probe failed", "error", err)
	}
	m.apply(err == nil, "probe")
}

// apply moves the state machine for one observation. Observations that do not
// change online-ness emit nothing.
func (m *Monitor) apply(online bool, cause string) {
	m.transMu.Lock()
	defer m.transMu.Unlock()
	if m.closed {
		return
	}

	cur := m.State()
	var next domain.ConnectivityState
	switch {
	case online && !cur.IsOnline:
		next = domain.ConnectivityState{IsOnline: true, IsSyncing: true, WasOffline: true}
		m.arm()
	case !online && cur.IsOnline:
		next = domain.ConnectivityState{IsOnline: false, IsSyncing: false, WasOffline: true}
		m.disarm()
	default:
		return
	}
	m.set(next, cause)
}

// arm starts the settle window. Caller holds transMu.
func (m *Monitor) arm() {
	m.disarm()
	gen := m.settleGen
	m.settle = time.AfterFunc(m.opts.Settle, func() { m.settled(gen) })
}

// disarm cancels a pending settle window. Caller holds transMu.
func (m *Monitor) disarm() {
	m.settleGen++
	if m.settle != nil {
		m.settle.Stop()
		m.settle = nil
	}
}

func (m *Monitor) settled(gen int) {
	m.transMu.Lock()
	defer m.transMu.Unlock()
	if m.closed || gen != m.settleGen {
		return
	}
	m.settle = nil
	if cur := m.State(); !cur.IsOnline || !cur.IsSyncing {
		return
	}
	m.set(domain.ConnectivityState{IsOnline: true}, "settled")
}

// set stores and publishes next. Caller holds transMu.
func (m *Monitor) set(next domain.ConnectivityState, cause string) {
	m.mu.Lock()
	m.state = next
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "state", next.String(), "cause", cause)
	m.subs.Publish(next)
}

// Static is a fixed connectivity state, used for forced offline operation.
type Static struct {
	Online bool
}

func (s Static) State() domain.ConnectivityState {
	return domain.ConnectivityState{IsOnline: s.Online, WasOffline: !s.Online}
}

func (s Static) IsOnline() bool { return s.Online }

func (s Static) Subscribe(func(domain.ConnectivityState)) func() { return func() {} }
