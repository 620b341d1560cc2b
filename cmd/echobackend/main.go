// echobackend is a development language service that speaks the
// tools.refinery.language.web.xtext.v1 subprotocol.
// Usage: go run ./cmd/echobackend --addr :1313 --drop-every 5 --close-after 1m
//
// It answers {"ping":n} with {"pong":n} and echoes every other request.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/langlink/internal/connection"
)

// backendConfig controls fault injection.
type backendConfig struct {
	DropEvery  int           // Ignore every Nth ping; 0 disables
	CloseAfter time.Duration // Close each socket after this long; 0 disables
}

type backend struct {
	cfg      backendConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader
	pings    atomic.Int64
}

func newBackend(cfg backendConfig, logger *slog.Logger) *backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &backend{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:  func(r *http.Request) bool { return true },
			Subprotocols: []string{connection.Subprotocol},
		},
	}
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := b.logger.With("remote", r.RemoteAddr)
	logger.Info("client connected")

	if b.cfg.CloseAfter > 0 {
		timer := time.AfterFunc(b.cfg.CloseAfter, func() {
			logger.Info("closing socket on schedule")
			conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "scheduled restart"),
				time.Now().Add(time.Second),
			)
			conn.Close()
		})
		defer timer.Stop()
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.Info("client disconnected", "error", err)
			return
		}

		reply, ok := b.handle(data)
		if !ok {
			continue
		}
		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn("write failed", "error", err)
			return
		}
	}
}

// handle builds the reply for one request frame. It returns false when the
// frame gets no reply.
func (b *backend) handle(data []byte) (connection.Response, bool) {
	var req struct {
		ID      string          `json:"id"`
		Request json.RawMessage `json:"request"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.ID == "" {
		b.logger.Warn("malformed request")
		return connection.Response{}, false
	}

	var ping connection.PingRequest
	if err := json.Unmarshal(req.Request, &ping); err == nil && ping.Ping != "" {
		n := b.pings.Add(1)
		if b.cfg.DropEvery > 0 && n%int64(b.cfg.DropEvery) == 0 {
			b.logger.Info("dropping ping", "count", n)
			return connection.Response{}, false
		}
		pong, _ := json.Marshal(connection.PongResult{Pong: ping.Ping})
		return connection.Response{ID: req.ID, Response: pong}, true
	}

	return connection.Response{ID: req.ID, Response: req.Request}, true
}

func main() {
	addr := flag.String("addr", ":1313", "listen address")
	path := flag.String("path", "/xtext-service", "websocket path")
	dropEvery := flag.Int("drop-every", 0, "ignore every Nth ping (0 disables)")
	closeAfter := flag.Duration("close-after", 0, "close each socket after this long (0 disables)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	mux := http.NewServeMux()
	mux.Handle(*path, newBackend(backendConfig{
		DropEvery:  *dropEvery,
		CloseAfter: *closeAfter,
	}, logger))

	server := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	go func() {
		logger.Info("echo backend listening", "addr", *addr, "path", *path)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
	logger.Info("echo backend stopped")
}
