package connection

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/langlink/internal/lifecycle"
	"github.com/rickgao/langlink/internal/queue"
)

// Manager drives the connection lifecycle: it feeds commands, transport
// events and timer expiries through the state machine one at a time and
// performs the resulting effects.
type Manager interface {
	// Start begins processing events.
	Start(ctx context.Context) error

	// Stop disarms every timer, closes the transport and waits for the
	// dispatcher to exit.
	Stop(ctx context.Context) error

	// Configure sets the endpoint used by later connection attempts.
	Configure(endpoint string)

	// Connect requests a connection. Ignored without an endpoint.
	Connect()

	// Disconnect closes the connection and stops reconnecting.
	Disconnect()

	// SetTabVisible reports the editor tab's visibility.
	SetTabVisible(visible bool)

	// SetOnline reports the host's network reachability.
	SetOnline(online bool)

	// Suspend pauses the connection (e.g. host going to sleep).
	Suspend()

	// Resume reconnects after Suspend.
	Resume()

	// SetKeepAlive keeps the connection alive while the tab is hidden.
	SetKeepAlive(on bool)

	// ForceReconnect drops the current transport as if it had failed.
	ForceReconnect()

	// Send issues a request on the open transport.
	Send(ctx context.Context, request interface{}) (json.RawMessage, error)

	// State returns a snapshot of the machine state.
	State() lifecycle.State

	// Stats returns activity counters.
	Stats() ManagerStats
}

// Observer is notified after every processed event, on the dispatcher
// goroutine. It must not block.
type Observer interface {
	ObserveChange(change lifecycle.Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(change lifecycle.Change)

// ObserveChange calls f(change).
func (f ObserverFunc) ObserveChange(change lifecycle.Change) { f(change) }

// Option configures a manager.
type Option func(*manager)

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(m *manager) { m.observers = append(m.observers, o) }
}

// WithReconnectHandler sets the hook run on every successful open.
func WithReconnectHandler(fn func()) Option {
	return func(m *manager) { m.onReconnect = fn }
}

// WithDisconnectHandler sets the hook run on entering disconnected or offline.
func WithDisconnectHandler(fn func()) Option {
	return func(m *manager) { m.onDisconnect = fn }
}

// envelope is one inbox entry.
type envelope struct {
	event   lifecycle.Event
	attempt uint64 // Transport attempt that produced the event; 0 for commands
	token   uint64 // Timer arm token; set only for TimerFired
}

type armedTimer struct {
	timer *time.Timer
	token uint64
}

// manager implements the Manager interface.
type manager struct {
	cfg     ManagerConfig
	dialer  Dialer
	machine *lifecycle.Machine
	logger  *slog.Logger

	observers    []Observer
	onReconnect  func()
	onDisconnect func()

	inbox *queue.Queue[envelope]

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	// Owned by the dispatcher goroutine.
	state      lifecycle.State
	timers     map[lifecycle.Timer]armedTimer
	timerSeq   uint64
	pingCancel context.CancelFunc

	// Written by the dispatcher, read by Send/State/Stats.
	mu        sync.RWMutex
	snapshot  lifecycle.State
	transport Transport
	attempt   uint64
	stats     ManagerStats
}

// NewManager creates a new lifecycle manager.
func NewManager(cfg ManagerConfig, dialer Dialer, logger *slog.Logger, opts ...Option) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	machine := lifecycle.NewMachine(cfg.Timing)
	m := &manager{
		cfg:     cfg,
		dialer:  dialer,
		machine: machine,
		logger:  logger,
		inbox:   queue.New[envelope](cfg.InboxSize),
		state:   machine.Initial(),
		timers:  make(map[lifecycle.Timer]armedTimer),
	}
	m.snapshot = m.state
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins the dispatcher.
func (m *manager) Start(ctx context.Context) error {
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)

	if m.cfg.InitialEndpoint != "" {
		m.Configure(m.cfg.InitialEndpoint)
	}
	if m.cfg.InitiallyHidden {
		m.SetTabVisible(false)
	}
	if m.cfg.InitiallyOffline {
		m.SetOnline(false)
	}
	if m.cfg.ConnectOnStart {
		m.Connect()
	}

	m.wg.Add(1)
	go m.run()

	m.logger.Info("connection manager started",
		"endpoint", m.cfg.InitialEndpoint,
		"open_timeout", m.cfg.Timing.OpenTimeout,
		"ping_period", m.cfg.Timing.PingPeriod,
	)
	return nil
}

// Stop gracefully shuts down. It waits at most ShutdownGrace for in-flight
// heartbeats even when ctx has no deadline.
func (m *manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping connection manager")

	if m.cfg.ShutdownGrace > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ShutdownGrace)
		defer cancel()
	}

	if m.cancel != nil {
		m.cancel()
	}

	// Wait for goroutines with timeout
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
	}

	m.inbox.Close()
	m.logger.Info("connection manager stopped")
	return nil
}

func (m *manager) Configure(endpoint string) {
	m.post(envelope{event: lifecycle.Configure{Endpoint: endpoint}})
}

func (m *manager) Connect()    { m.post(envelope{event: lifecycle.Connect{}}) }
func (m *manager) Disconnect() { m.post(envelope{event: lifecycle.Disconnect{}}) }
func (m *manager) Suspend()    { m.post(envelope{event: lifecycle.Suspend{}}) }
func (m *manager) Resume()     { m.post(envelope{event: lifecycle.Resume{}}) }

func (m *manager) SetTabVisible(visible bool) {
	if visible {
		m.post(envelope{event: lifecycle.TabVisible{}})
	} else {
		m.post(envelope{event: lifecycle.TabHidden{}})
	}
}

func (m *manager) SetOnline(online bool) {
	if online {
		m.post(envelope{event: lifecycle.Online{}})
	} else {
		m.post(envelope{event: lifecycle.Offline{}})
	}
}

func (m *manager) SetKeepAlive(on bool) {
	if on {
		m.post(envelope{event: lifecycle.KeepAliveStart{}})
	} else {
		m.post(envelope{event: lifecycle.KeepAliveEnd{}})
	}
}

func (m *manager) ForceReconnect() {
	m.post(envelope{event: lifecycle.Error{Message: "Client error"}})
}

// Send issues a request on the open transport. A request timeout is
// reported to the machine as a connection error.
func (m *manager) Send(ctx context.Context, request interface{}) (json.RawMessage, error) {
	m.mu.RLock()
	tr := m.transport
	attempt := m.attempt
	opened := m.snapshot.Opened()
	m.mu.RUnlock()

	if !opened || tr == nil {
		return nil, ErrNotConnected
	}

	data, err := tr.Request(ctx, request)
	if errors.Is(err, ErrTimeout) {
		m.post(envelope{event: lifecycle.Error{Message: timedOutMessage}, attempt: attempt})
	}
	return data, err
}

// failureReason is the message logged for a failed request or heartbeat.
func failureReason(err error) string {
	if errors.Is(err, ErrTimeout) {
		return timedOutMessage
	}
	return err.Error()
}

func (m *manager) State() lifecycle.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

func (m *manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func (m *manager) post(env envelope) {
	if !m.inbox.Push(env) {
		m.logger.Debug("inbox closed, dropping event", "event", env.event.Name())
	}
}

// run is the dispatcher loop. Events are processed strictly one at a time.
func (m *manager) run() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			m.teardown()
			return
		case <-m.inbox.Ready():
			for {
				env, ok := m.inbox.Pop()
				if !ok {
					break
				}
				m.dispatch(env)
			}
		}
	}
}

// dispatch runs env and every event it raises, depth first, before
// returning to the inbox.
func (m *manager) dispatch(env envelope) {
	if !m.accept(env) {
		m.mu.Lock()
		m.stats.DroppedStale++
		m.mu.Unlock()
		return
	}

	pending := []lifecycle.Event{env.event}
	for len(pending) > 0 {
		ev := pending[0]
		pending = pending[1:]

		from := m.state
		step := m.machine.Transition(from, ev)
		m.state = step.State

		m.mu.Lock()
		m.snapshot = step.State
		if step.State.Ctx.RetryCount > from.Ctx.RetryCount {
			m.stats.Errors++
		}
		m.mu.Unlock()

		if e, ok := ev.(lifecycle.Error); ok && step.State.Ctx.RetryCount > from.Ctx.RetryCount {
			m.logger.Warn("connection error",
				"error", e.Message,
				"retry_count", step.State.Ctx.RetryCount,
			)
		}
		if from.ConnPath() != step.State.ConnPath() {
			m.logger.Debug("state transition",
				"event", ev.Name(),
				"from", from.ConnPath(),
				"to", step.State.ConnPath(),
			)
		}

		for _, eff := range step.Effects {
			m.execute(eff)
		}

		change := lifecycle.Change{Event: ev, From: from, To: step.State}
		for _, o := range m.observers {
			o.ObserveChange(change)
		}

		pending = append(step.Raised, pending...)
	}
}

// accept drops expiries of disarmed or re-armed timers and events from
// transports other than the current one.
func (m *manager) accept(env envelope) bool {
	if fired, ok := env.event.(lifecycle.TimerFired); ok {
		armed, ok := m.timers[fired.Timer]
		if !ok || armed.token != env.token {
			m.logger.Debug("dropping stale timer", "timer", fired.Timer.String())
			return false
		}
		delete(m.timers, fired.Timer)
		return true
	}

	if env.attempt != 0 {
		m.mu.RLock()
		current := m.attempt
		live := m.transport != nil
		m.mu.RUnlock()
		if env.attempt != current || !live {
			m.logger.Debug("dropping event from closed transport",
				"event", env.event.Name(),
				"attempt", env.attempt,
			)
			return false
		}
	}
	return true
}

func (m *manager) execute(eff lifecycle.Effect) {
	switch e := eff.(type) {
	case lifecycle.OpenTransport:
		m.openTransport(e.Endpoint)
	case lifecycle.CancelPending:
		m.cancelPending()
	case lifecycle.CloseTransport:
		m.closeTransport()
	case lifecycle.SendPing:
		m.sendPing(e.Seq)
	case lifecycle.ArmTimer:
		m.armTimer(e.Timer, e.Delay)
	case lifecycle.DisarmTimer:
		m.disarmTimer(e.Timer)
	case lifecycle.NotifyReconnect:
		m.mu.Lock()
		m.stats.Opens++
		m.mu.Unlock()
		m.logger.Info("connection opened")
		if m.onReconnect != nil {
			m.onReconnect()
		}
	case lifecycle.NotifyDisconnect:
		if m.onDisconnect != nil {
			m.onDisconnect()
		}
	}
}

func (m *manager) openTransport(endpoint string) {
	if m.transport != nil {
		m.logger.Error("transport still open, closing before reopening", "attempt", m.attempt)
		m.cancelPending()
		m.closeTransport()
	}

	m.mu.Lock()
	m.attempt++
	attempt := m.attempt
	m.stats.Attempts++
	m.mu.Unlock()

	sink := func(ev lifecycle.Event) {
		m.post(envelope{event: ev, attempt: attempt})
	}
	tr := m.dialer.Dial(m.ctx, endpoint, sink)

	m.mu.Lock()
	m.transport = tr
	m.mu.Unlock()

	m.logger.Debug("opening transport", "endpoint", endpoint, "attempt", attempt)
}

func (m *manager) cancelPending() {
	if m.pingCancel != nil {
		m.pingCancel()
		m.pingCancel = nil
	}
	if m.transport != nil {
		m.transport.CancelPending(ErrCancelled)
	}
}

func (m *manager) closeTransport() {
	tr := m.transport
	if tr == nil {
		return
	}

	m.mu.Lock()
	m.transport = nil
	m.mu.Unlock()

	if err := tr.Close(); err != nil {
		m.logger.Debug("transport close failed", "error", err)
	}
}

// sendPing runs the heartbeat off the dispatcher and posts its outcome.
func (m *manager) sendPing(seq uint64) {
	tr := m.transport
	attempt := m.attempt
	if tr == nil {
		m.post(envelope{event: lifecycle.PingFailed{Seq: seq, Reason: ErrNotConnected.Error()}})
		return
	}

	if m.pingCancel != nil {
		m.pingCancel()
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.pingCancel = cancel

	m.mu.Lock()
	m.stats.PingsSent++
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		if err := tr.Ping(ctx); err != nil {
			m.post(envelope{event: lifecycle.PingFailed{Seq: seq, Reason: failureReason(err)}, attempt: attempt})
			return
		}
		m.post(envelope{event: lifecycle.PingDone{Seq: seq}, attempt: attempt})
	}()
}

func (m *manager) armTimer(timer lifecycle.Timer, delay time.Duration) {
	m.disarmTimer(timer)

	m.timerSeq++
	token := m.timerSeq
	t := time.AfterFunc(delay, func() {
		m.post(envelope{event: lifecycle.TimerFired{Timer: timer}, token: token})
	})
	m.timers[timer] = armedTimer{timer: t, token: token}
}

func (m *manager) disarmTimer(timer lifecycle.Timer) {
	if armed, ok := m.timers[timer]; ok {
		armed.timer.Stop()
		delete(m.timers, timer)
	}
}

// teardown releases every resource the machine holds without running a
// transition.
func (m *manager) teardown() {
	for timer := range m.timers {
		m.disarmTimer(timer)
	}
	m.cancelPending()
	m.closeTransport()
}
