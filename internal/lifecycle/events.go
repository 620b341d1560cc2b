package lifecycle

// Event is an input to the machine. The set is closed.
type Event interface {
	Name() string
	isEvent()
}

// Commands from the embedding application.
type (
	// Configure sets or replaces the endpoint. It never opens a connection.
	Configure struct{ Endpoint string }
	// Connect requests a connection. Ignored without an endpoint.
	Connect struct{}
	// Disconnect returns to disconnected and clears the error episode.
	Disconnect struct{}
)

// Visibility, network, suspension and keep-alive inputs.
type (
	TabVisible     struct{}
	TabHidden      struct{}
	Online         struct{}
	Offline        struct{}
	Suspend        struct{}
	Resume         struct{}
	KeepAliveStart struct{}
	KeepAliveEnd   struct{}
)

// Transport and driver feedback.
type (
	// Opened reports that the transport finished opening.
	Opened struct{}
	// Error reports any connection failure with a human-readable message.
	Error struct{ Message string }
	// TimerFired reports the expiry of a timer armed with ArmTimer.
	TimerFired struct{ Timer Timer }
	// PingDone reports a successful heartbeat with sequence Seq.
	PingDone struct{ Seq uint64 }
	// PingFailed reports a rejected heartbeat with sequence Seq.
	PingFailed struct {
		Seq    uint64
		Reason string
	}
)

func (Configure) Name() string      { return "CONFIGURE" }
func (Connect) Name() string        { return "CONNECT" }
func (Disconnect) Name() string     { return "DISCONNECT" }
func (TabVisible) Name() string     { return "TAB_VISIBLE" }
func (TabHidden) Name() string      { return "TAB_HIDDEN" }
func (Online) Name() string         { return "ONLINE" }
func (Offline) Name() string        { return "OFFLINE" }
func (Suspend) Name() string        { return "SUSPEND" }
func (Resume) Name() string         { return "RESUME" }
func (KeepAliveStart) Name() string { return "KEEP_ALIVE_START" }
func (KeepAliveEnd) Name() string   { return "KEEP_ALIVE_END" }
func (Opened) Name() string         { return "OPENED" }
func (Error) Name() string          { return "ERROR" }
func (e TimerFired) Name() string   { return "TIMER_" + e.Timer.String() }
func (PingDone) Name() string       { return "PING_DONE" }
func (PingFailed) Name() string     { return "PING_FAILED" }

func (Configure) isEvent()      {}
func (Connect) isEvent()        {}
func (Disconnect) isEvent()     {}
func (TabVisible) isEvent()     {}
func (TabHidden) isEvent()      {}
func (Online) isEvent()         {}
func (Offline) isEvent()        {}
func (Suspend) isEvent()        {}
func (Resume) isEvent()         {}
func (KeepAliveStart) isEvent() {}
func (KeepAliveEnd) isEvent()   {}
func (Opened) isEvent()         {}
func (Error) isEvent()          {}
func (TimerFired) isEvent()     {}
func (PingDone) isEvent()       {}
func (PingFailed) isEvent()     {}
