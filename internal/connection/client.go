package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/langlink/internal/lifecycle"
)

// EventSink receives lifecycle events produced by a transport.
type EventSink func(lifecycle.Event)

// Dialer opens transports to the language service.
type Dialer interface {
	// Dial starts opening a transport and returns immediately. The outcome
	// is reported through sink as OPENED or ERROR. Later failures of the
	// open transport are reported as ERROR.
	Dial(ctx context.Context, endpoint string, sink EventSink) Transport
}

// Transport is a single connection attempt to the language service.
type Transport interface {
	// Request sends a request and waits for its reply.
	Request(ctx context.Context, request interface{}) (json.RawMessage, error)

	// Ping sends a heartbeat and verifies the echoed nonce.
	Ping(ctx context.Context) error

	// CancelPending fails every outstanding request with reason.
	CancelPending(reason error)

	// Close gracefully closes the transport. Safe to call more than once.
	Close() error
}

// wsDialer dials gorilla WebSocket transports.
type wsDialer struct {
	cfg    ClientConfig
	onPush PushHandler
	logger *slog.Logger
}

// NewDialer creates a Dialer backed by gorilla/websocket.
func NewDialer(cfg ClientConfig, onPush PushHandler, logger *slog.Logger) Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &wsDialer{cfg: cfg, onPush: onPush, logger: logger}
}

// Dial starts the handshake in the background.
func (d *wsDialer) Dial(ctx context.Context, endpoint string, sink EventSink) Transport {
	c := newClient(ctx, d.cfg, endpoint, sink, d.onPush, d.logger.With("endpoint", endpoint))
	go c.connect()
	return c
}

type result struct {
	data json.RawMessage
	err  error
}

// client implements Transport over a single WebSocket.
type client struct {
	cfg      ClientConfig
	endpoint string
	sink     EventSink
	onPush   PushHandler
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// Write serialization
	writeMu sync.Mutex

	// State
	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	pending   map[string]chan result
}

func newClient(ctx context.Context, cfg ClientConfig, endpoint string, sink EventSink, onPush PushHandler, logger *slog.Logger) *client {
	ctx, cancel := context.WithCancel(ctx)
	return &client{
		cfg:      cfg,
		endpoint: endpoint,
		sink:     sink,
		onPush:   onPush,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[string]chan result),
	}
}

// connect performs the handshake and reports the outcome to the sink.
func (c *client) connect() {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		Subprotocols:     []string{c.cfg.Subprotocol},
	}

	header := http.Header{}
	header.Set("Accept", "application/json")

	conn, _, err := dialer.DialContext(c.ctx, c.endpoint, header)
	if err != nil {
		if c.isClosed() {
			return
		}
		c.logger.Warn("websocket dial failed", "error", err)
		c.sink(lifecycle.Error{Message: fmt.Sprintf("Socket error: %v", err)})
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if got := conn.Subprotocol(); got != c.cfg.Subprotocol {
		c.logger.Warn("server negotiated unknown subprotocol", "subprotocol", got)
		c.sink(lifecycle.Error{Message: "Unknown subprotocol " + got})
		return
	}

	c.logger.Debug("websocket connected")
	c.sink(lifecycle.Opened{})

	// Start reading only after OPENED so socket failures are reported after it.
	go c.readLoop(conn)
}

// Close fails outstanding requests, then closes the socket.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	c.CancelPending(ErrCancelled)
	c.cancel()

	if conn == nil {
		return nil
	}
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Closing connection"),
		time.Now().Add(time.Second),
	)
	return conn.Close()
}

// CancelPending fails every outstanding request with reason.
func (c *client) CancelPending(reason error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, ch := range c.pending {
		ch <- result{err: reason}
		delete(c.pending, id)
	}
}

// Request sends a request and waits for the reply, the request timeout,
// or ctx, whichever comes first.
func (c *client) Request(ctx context.Context, request interface{}) (json.RawMessage, error) {
	id := uuid.NewString()
	data, err := json.Marshal(Request{ID: id, Request: request})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ch := make(chan result, 1)
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := c.conn
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(conn, data); err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("write request: %w", err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.data, r.err
	case <-timer.C:
		c.removePending(id)
		return nil, ErrTimeout
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	}
}

// Ping sends a random nonce and checks that the server echoes it back.
func (c *client) Ping(ctx context.Context) error {
	nonce := uuid.NewString()
	data, err := c.Request(ctx, PingRequest{Ping: nonce})
	if err != nil {
		return err
	}

	var pong PongResult
	if err := json.Unmarshal(data, &pong); err != nil {
		return fmt.Errorf("decode pong: %w", err)
	}
	if pong.Pong != nonce {
		return fmt.Errorf("expected pong %s but got %s instead", nonce, pong.Pong)
	}
	return nil
}

func (c *client) write(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) removePending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// readLoop routes replies to their pending requests and push messages to
// the push handler. It exits when the socket fails or is closed.
func (c *client) readLoop(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			// Ignore errors after Close() is called
			if c.isClosed() {
				return
			}
			c.logger.Warn("websocket read failed", "error", err)
			c.sink(lifecycle.Error{Message: closeReason(err)})
			return
		}

		if msgType != websocket.TextMessage {
			c.logger.Error("unexpected message format", "type", msgType)
			c.sink(lifecycle.Error{Message: "Unexpected message format"})
			continue
		}

		var msg Response
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Error("malformed message", "error", err)
			c.sink(lifecycle.Error{Message: "Malformed message"})
			continue
		}

		switch {
		case msg.Service != "":
			if c.onPush != nil {
				c.onPush(PushMessage{
					Resource: msg.Resource,
					StateID:  msg.StateID,
					Service:  msg.Service,
					Data:     msg.Push,
				})
			}
		case msg.ID != "":
			c.resolve(msg)
		default:
			c.logger.Error("message with neither id nor service")
			c.sink(lifecycle.Error{Message: "Malformed message"})
		}
	}
}

func (c *client) resolve(msg Response) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("reply for unknown request", "id", msg.ID)
		return
	}
	if msg.Error != "" {
		ch <- result{err: fmt.Errorf("%s error: %s", msg.Error, msg.Message)}
		return
	}
	ch <- result{data: msg.Response}
}

func closeReason(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return fmt.Sprintf("Socket closed unexpectedly: %d %s", closeErr.Code, closeErr.Text)
	}
	return fmt.Sprintf("Socket closed unexpectedly: %v", err)
}
