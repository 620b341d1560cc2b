package lifecycle

import "fmt"

// ConnPhase is the top-level state of the connection region.
type ConnPhase int

const (
	ConnDisconnected ConnPhase = iota
	ConnSocketCreated
	ConnErrorWait
	ConnTimedOut
	ConnOffline
	ConnSuspended
)

func (p ConnPhase) String() string {
	switch p {
	case ConnDisconnected:
		return "disconnected"
	case ConnSocketCreated:
		return "socketCreated"
	case ConnErrorWait:
		return "errorWait"
	case ConnTimedOut:
		return "timedOut"
	case ConnOffline:
		return "temporarilyOffline"
	case ConnSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// OpenPhase is the open sub-region of socketCreated.
type OpenPhase int

const (
	OpenOpening OpenPhase = iota
	OpenOpened
)

func (p OpenPhase) String() string {
	if p == OpenOpened {
		return "opened"
	}
	return "opening"
}

// PingPhase is the heartbeat sub-region of opened.
type PingPhase int

const (
	PingPongReceived PingPhase = iota
	PingSent
)

func (p PingPhase) String() string {
	if p == PingSent {
		return "pingSent"
	}
	return "pongReceived"
}

// IdlePhase is the idle sub-region of socketCreated.
type IdlePhase int

const (
	IdleActive IdlePhase = iota
	IdleInactive
)

func (p IdlePhase) String() string {
	if p == IdleInactive {
		return "inactive"
	}
	return "active"
}

// Visibility is the tab visibility region.
type Visibility int

const (
	VisibleOrUnknown Visibility = iota
	Hidden
)

func (p Visibility) String() string {
	if p == Hidden {
		return "hidden"
	}
	return "visibleOrUnknown"
}

// NetworkPhase is the network region.
type NetworkPhase int

const (
	NetOnlineOrUnknown NetworkPhase = iota
	NetOffline
)

func (p NetworkPhase) String() string {
	if p == NetOffline {
		return "offline"
	}
	return "onlineOrUnknown"
}

// KeepAlivePhase is the keep-alive region. While on, a hidden tab does not
// allow the idle region to become inactive.
type KeepAlivePhase int

const (
	KeepAliveOff KeepAlivePhase = iota
	KeepAliveOn
)

func (p KeepAlivePhase) String() string {
	if p == KeepAliveOn {
		return "on"
	}
	return "off"
}

// Context is the mutable record owned by the machine.
type Context struct {
	Endpoint   string   // Empty until configured
	ErrorLog   []string // Never mutated in place; replaced on every change
	RetryCount int      // Consecutive failed attempts since the last success
}

// State is the full machine state. Open, Ping, Idle and PingSeq are only
// meaningful while Conn is ConnSocketCreated.
type State struct {
	Conn      ConnPhase
	Open      OpenPhase
	Ping      PingPhase
	Idle      IdlePhase
	Tab       Visibility
	Network   NetworkPhase
	KeepAlive KeepAlivePhase
	PingSeq   uint64 // Sequence number of the last heartbeat sent

	Ctx Context
}

// ConnPath returns the dotted path of the connection region's active leaf,
// e.g. "socketCreated.opened.pingSent".
func (s State) ConnPath() string {
	if s.Conn != ConnSocketCreated {
		return s.Conn.String()
	}
	if s.Open == OpenOpening {
		return "socketCreated.opening"
	}
	return "socketCreated.opened." + s.Ping.String()
}

// String renders every region.
func (s State) String() string {
	conn := s.ConnPath()
	if s.Conn == ConnSocketCreated {
		conn += "|idle." + s.Idle.String()
	}
	return fmt.Sprintf("%s tab=%s network=%s keepAlive=%s retries=%d",
		conn, s.Tab, s.Network, s.KeepAlive, s.Ctx.RetryCount)
}

// Opening reports whether a transport attempt is waiting for OPENED.
func (s State) Opening() bool {
	return s.Conn == ConnSocketCreated && s.Open == OpenOpening
}

// Opened reports whether the transport is open.
func (s State) Opened() bool {
	return s.Conn == ConnSocketCreated && s.Open == OpenOpened
}

// DisconnectedByUser reports whether the connection was explicitly disconnected.
func (s State) DisconnectedByUser() bool {
	return s.Conn == ConnDisconnected
}

// NetworkMissing reports whether the network is the reason for being offline.
func (s State) NetworkMissing() bool {
	return s.Conn == ConnOffline || (s.Conn == ConnDisconnected && s.Network == NetOffline)
}

// Errors returns a copy of the error log.
func (s State) Errors() []string {
	out := make([]string, len(s.Ctx.ErrorLog))
	copy(out, s.Ctx.ErrorLog)
	return out
}

// LastError returns the most recent error message, or "".
func (s State) LastError() string {
	if n := len(s.Ctx.ErrorLog); n > 0 {
		return s.Ctx.ErrorLog[n-1]
	}
	return ""
}

func (s State) mayDisconnect() bool {
	return s.Tab == Hidden && s.KeepAlive == KeepAliveOff
}

// Change describes one processed event, for observers.
type Change struct {
	Event Event
	From  State
	To    State
}
