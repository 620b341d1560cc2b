package lifecycle

import (
	"fmt"
	"time"
)

// Timer identifies one of the machine's timers. At most one timer of each
// kind is armed at a time.
type Timer int

const (
	TimerOpen    Timer = iota // open timeout, owned by opening
	TimerPing                 // heartbeat period, owned by pongReceived
	TimerIdle                 // idle timeout, owned by idle.inactive
	TimerBackoff              // retry delay, owned by errorWait
)

func (t Timer) String() string {
	switch t {
	case TimerOpen:
		return "OPEN"
	case TimerPing:
		return "PING"
	case TimerIdle:
		return "IDLE"
	case TimerBackoff:
		return "BACKOFF"
	default:
		return "UNKNOWN"
	}
}

// Effect is a side effect the driver must execute, in order.
type Effect interface {
	fmt.Stringer
	isEffect()
}

type (
	// OpenTransport starts a new transport attempt against Endpoint.
	OpenTransport struct{ Endpoint string }
	// CancelPending fails every request outstanding on the current transport.
	CancelPending struct{}
	// CloseTransport closes the current transport. Closing twice is a no-op.
	CloseTransport struct{}
	// SendPing sends heartbeat Seq and reports PingDone or PingFailed.
	SendPing struct{ Seq uint64 }
	// ArmTimer (re)starts Timer; on expiry the driver feeds TimerFired.
	ArmTimer struct {
		Timer Timer
		Delay time.Duration
	}
	// DisarmTimer stops Timer. A disarmed timer must never be delivered.
	DisarmTimer struct{ Timer Timer }
	// NotifyReconnect tells the application a connection was established.
	NotifyReconnect struct{}
	// NotifyDisconnect tells the application the connection is gone for good.
	NotifyDisconnect struct{}
)

func (e OpenTransport) String() string  { return "open(" + e.Endpoint + ")" }
func (CancelPending) String() string    { return "cancelPending" }
func (CloseTransport) String() string   { return "close" }
func (e SendPing) String() string       { return fmt.Sprintf("ping(%d)", e.Seq) }
func (e ArmTimer) String() string       { return fmt.Sprintf("arm(%s,%s)", e.Timer, e.Delay) }
func (e DisarmTimer) String() string    { return "disarm(" + e.Timer.String() + ")" }
func (NotifyReconnect) String() string  { return "notifyReconnect" }
func (NotifyDisconnect) String() string { return "notifyDisconnect" }

func (OpenTransport) isEffect()    {}
func (CancelPending) isEffect()    {}
func (CloseTransport) isEffect()   {}
func (SendPing) isEffect()         {}
func (ArmTimer) isEffect()         {}
func (DisarmTimer) isEffect()      {}
func (NotifyReconnect) isEffect()  {}
func (NotifyDisconnect) isEffect() {}
