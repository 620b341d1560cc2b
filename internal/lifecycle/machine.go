package lifecycle

// Step is the result of one transition.
type Step struct {
	State   State
	Effects []Effect
	// Raised events must be dispatched, in order, before any queued input.
	Raised []Event
}

// Machine computes transitions. It holds only configuration and is safe for
// concurrent use.
type Machine struct {
	timing Timing
}

// NewMachine creates a machine with the given timing.
func NewMachine(timing Timing) *Machine {
	return &Machine{timing: timing}
}

// Timing returns the machine's timing.
func (m *Machine) Timing() Timing {
	return m.timing
}

// Initial returns the initial state: disconnected, no endpoint, empty log.
func (m *Machine) Initial() State {
	return State{Conn: ConnDisconnected}
}

// Transition applies ev to s. It never mutates s.
func (m *Machine) Transition(s State, ev Event) Step {
	t := &tx{timing: m.timing, s: s}

	switch e := ev.(type) {
	case Configure:
		t.s.Ctx.Endpoint = e.Endpoint
	case Connect:
		t.connect()
	case Disconnect:
		if t.s.Conn != ConnDisconnected {
			t.goTo(ConnDisconnected)
		}
	case TabVisible:
		t.s.Tab = VisibleOrUnknown
	case TabHidden:
		t.s.Tab = Hidden
	case Online:
		t.s.Network = NetOnlineOrUnknown
	case Offline:
		t.s.Network = NetOffline
	case KeepAliveStart:
		t.s.KeepAlive = KeepAliveOn
	case KeepAliveEnd:
		t.s.KeepAlive = KeepAliveOff
	case Suspend:
		switch t.s.Conn {
		case ConnSocketCreated, ConnErrorWait, ConnTimedOut, ConnOffline:
			t.goTo(ConnSuspended)
		}
	case Resume:
		if t.s.Conn == ConnSuspended {
			t.goTo(ConnTimedOut)
		}
	case Opened:
		if t.s.Opening() {
			t.exitOpening()
			t.clearError()
			t.emit(NotifyReconnect{})
			t.enterOpened()
		}
	case Error:
		if t.s.Conn == ConnSocketCreated {
			t.exitConn()
			t.pushError(e.Message)
			t.enterConn(ConnErrorWait)
		}
	case TimerFired:
		t.timerFired(e.Timer)
	case PingDone:
		if t.pingPending(e.Seq) {
			t.enterPongReceived()
		}
	case PingFailed:
		if t.pingPending(e.Seq) {
			t.raise(Error{Message: e.Reason})
		}
	}

	t.settle()

	return Step{State: t.s, Effects: t.effects, Raised: t.raised}
}

// tx accumulates one transition.
type tx struct {
	timing  Timing
	s       State
	effects []Effect
	raised  []Event
}

func (t *tx) emit(effects ...Effect) {
	t.effects = append(t.effects, effects...)
}

func (t *tx) raise(ev Event) {
	t.raised = append(t.raised, ev)
}

func (t *tx) connect() {
	if t.s.Ctx.Endpoint == "" {
		return
	}
	switch t.s.Conn {
	case ConnDisconnected, ConnErrorWait, ConnTimedOut:
		if t.s.Network == NetOffline {
			t.goTo(ConnOffline)
			return
		}
		t.goTo(ConnSocketCreated)
	}
}

func (t *tx) timerFired(timer Timer) {
	switch timer {
	case TimerOpen:
		if t.s.Opening() {
			t.raise(Error{Message: "Open timeout"})
		}
	case TimerPing:
		if t.s.Opened() && t.s.Ping == PingPongReceived {
			t.exitPongReceived()
			t.enterPingSent()
		}
	case TimerIdle:
		if t.s.Conn == ConnSocketCreated && t.s.Idle == IdleInactive {
			t.goTo(ConnTimedOut)
		}
	case TimerBackoff:
		if t.s.Conn == ConnErrorWait {
			// settle picks socketCreated when the tab is visible.
			t.goTo(ConnTimedOut)
		}
	}
}

func (t *tx) pingPending(seq uint64) bool {
	return t.s.Opened() && t.s.Ping == PingSent && seq == t.s.PingSeq
}

// settle applies eventless transitions until the state is stable.
func (t *tx) settle() {
	for i := 0; i < 8; i++ {
		if !t.settleOnce() {
			return
		}
	}
}

func (t *tx) settleOnce() bool {
	switch t.s.Conn {
	case ConnSocketCreated:
		if t.s.Idle == IdleActive && t.s.mayDisconnect() {
			t.enterInactive()
			return true
		}
		if t.s.Idle == IdleInactive && !t.s.mayDisconnect() {
			t.exitInactive()
			t.s.Idle = IdleActive
			return true
		}
	case ConnErrorWait:
		if t.s.Network == NetOffline {
			t.goTo(ConnOffline)
			return true
		}
	case ConnTimedOut:
		if t.s.Network == NetOffline {
			t.goTo(ConnOffline)
			return true
		}
		if t.s.Tab == VisibleOrUnknown {
			if t.s.Ctx.Endpoint == "" {
				t.goTo(ConnDisconnected)
			} else {
				t.goTo(ConnSocketCreated)
			}
			return true
		}
	case ConnOffline:
		if t.s.Network == NetOnlineOrUnknown {
			t.goTo(ConnTimedOut)
			return true
		}
	}
	return false
}

func (t *tx) goTo(next ConnPhase) {
	t.exitConn()
	t.enterConn(next)
}

func (t *tx) enterConn(next ConnPhase) {
	t.s.Conn = next
	switch next {
	case ConnDisconnected, ConnOffline:
		t.clearError()
		t.emit(NotifyDisconnect{})
	case ConnSuspended:
		t.clearError()
	case ConnErrorWait:
		t.emit(ArmTimer{Timer: TimerBackoff, Delay: t.timing.Backoff.Delay(t.s.Ctx.RetryCount)})
	case ConnSocketCreated:
		t.emit(OpenTransport{Endpoint: t.s.Ctx.Endpoint})
		t.enterOpening()
		t.enterIdle()
	}
}

// exitConn runs the exit actions of the current connection state. Leaving
// socketCreated always cancels pending requests and then closes the transport.
func (t *tx) exitConn() {
	switch t.s.Conn {
	case ConnErrorWait:
		t.emit(DisarmTimer{Timer: TimerBackoff})
	case ConnSocketCreated:
		t.exitOpen()
		t.exitIdle()
		t.emit(CancelPending{}, CloseTransport{})
	}
}

func (t *tx) enterOpening() {
	t.s.Open = OpenOpening
	t.s.Ping = PingPongReceived
	t.emit(ArmTimer{Timer: TimerOpen, Delay: t.timing.OpenTimeout})
}

func (t *tx) exitOpening() {
	t.emit(DisarmTimer{Timer: TimerOpen})
}

func (t *tx) enterOpened() {
	t.s.Open = OpenOpened
	t.enterPongReceived()
}

func (t *tx) exitOpen() {
	if t.s.Open == OpenOpening {
		t.exitOpening()
		return
	}
	if t.s.Ping == PingPongReceived {
		t.exitPongReceived()
	}
}

func (t *tx) enterPongReceived() {
	t.s.Ping = PingPongReceived
	t.emit(ArmTimer{Timer: TimerPing, Delay: t.timing.PingPeriod})
}

func (t *tx) exitPongReceived() {
	t.emit(DisarmTimer{Timer: TimerPing})
}

func (t *tx) enterPingSent() {
	t.s.Ping = PingSent
	t.s.PingSeq++
	t.emit(SendPing{Seq: t.s.PingSeq})
}

// enterIdle derives the idle sub-state from the current visibility instead of
// waiting for the next visibility event.
func (t *tx) enterIdle() {
	t.s.Idle = IdleActive
	if t.s.mayDisconnect() {
		t.enterInactive()
	}
}

func (t *tx) exitIdle() {
	if t.s.Idle == IdleInactive {
		t.exitInactive()
	}
}

func (t *tx) enterInactive() {
	t.s.Idle = IdleInactive
	t.emit(ArmTimer{Timer: TimerIdle, Delay: t.timing.IdleTimeout})
}

func (t *tx) exitInactive() {
	t.emit(DisarmTimer{Timer: TimerIdle})
}

func (t *tx) pushError(msg string) {
	log := make([]string, len(t.s.Ctx.ErrorLog), len(t.s.Ctx.ErrorLog)+1)
	copy(log, t.s.Ctx.ErrorLog)
	t.s.Ctx.ErrorLog = append(log, msg)
	t.s.Ctx.RetryCount++
}

func (t *tx) clearError() {
	t.s.Ctx.ErrorLog = []string{}
	t.s.Ctx.RetryCount = 0
}
