package connection

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rickgao/langlink/internal/lifecycle"
)

// Errors
var (
	ErrNotConnected   = errors.New("not connected")
	ErrTimeout        = errors.New("request timeout")
	ErrCancelled      = errors.New("closing connection")
	ErrAlreadyStarted = errors.New("already started")
)

// timedOutMessage is logged when a request or heartbeat gets no reply in time.
const timedOutMessage = "Connection timed out"

// Subprotocol is the WebSocket subprotocol spoken by the language service.
const Subprotocol = "tools.refinery.language.web.xtext.v1"

// Request is the envelope for a request to the language service.
type Request struct {
	ID      string      `json:"id"`
	Request interface{} `json:"request"`
}

// Response is any frame from the language service: either a reply to a
// request (ID set) or a push message (Service set).
type Response struct {
	ID       string          `json:"id,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`   // "request" or "server" on failure
	Message  string          `json:"message,omitempty"` // Failure detail
	Resource string          `json:"resource,omitempty"`
	StateID  string          `json:"stateId,omitempty"`
	Service  string          `json:"service,omitempty"`
	Push     json.RawMessage `json:"push,omitempty"`
}

// PingRequest is the heartbeat request body.
type PingRequest struct {
	Ping string `json:"ping"`
}

// PongResult is the heartbeat reply body.
type PongResult struct {
	Pong string `json:"pong"`
}

// PushMessage is a server-initiated message delivered to the PushHandler.
type PushMessage struct {
	Resource string
	StateID  string
	Service  string
	Data     json.RawMessage
}

// PushHandler receives push messages. It runs on the transport's read
// goroutine and must not block.
type PushHandler func(PushMessage)

// ClientConfig configures the WebSocket transport.
type ClientConfig struct {
	Subprotocol      string        // Required subprotocol (e.g., tools.refinery.language.web.xtext.v1)
	HandshakeTimeout time.Duration // Max time for the opening handshake
	WriteTimeout     time.Duration // Write deadline for sends
	RequestTimeout   time.Duration // Max wait for a reply to a request
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Subprotocol:      Subprotocol,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		// Large enough for a reply from a throttled background client.
		RequestTimeout: 5 * time.Second,
	}
}

// ManagerConfig configures the lifecycle manager.
type ManagerConfig struct {
	Timing           lifecycle.Timing
	InboxSize        int           // Initial capacity of the event inbox
	ShutdownGrace    time.Duration // Max wait for the dispatcher on Stop
	InitialEndpoint  string        // Configured before the first command when set
	ConnectOnStart   bool          // Issue CONNECT when the manager starts
	InitiallyHidden  bool          // Start with the tab hidden
	InitiallyOffline bool          // Start with the network offline
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Timing:        lifecycle.DefaultTiming(),
		InboxSize:     64,
		ShutdownGrace: 5 * time.Second,
	}
}

// ManagerStats provides counters about the manager's activity.
type ManagerStats struct {
	Attempts     int64 // Transports opened
	Opens        int64 // Successful OPENED transitions
	Errors       int64 // Errors that triggered backoff
	PingsSent    int64
	DroppedStale int64 // Timer or transport events discarded as stale
}
