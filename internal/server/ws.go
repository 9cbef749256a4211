package server

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/herizador/Proxy-Audio-share/internal/config"
	"github.com/herizador/Proxy-Audio-share/internal/metrics"
	"github.com/herizador/Proxy-Audio-share/internal/relay"
)

// WebSocketHandler upgrades requests and attaches the resulting connections
// to the relay
type WebSocketHandler struct {
	router   *relay.Router
	upgrader websocket.Upgrader
	opts     connOptions
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewWebSocketHandler creates the relay WebSocket endpoint
func NewWebSocketHandler(cfg *config.Config, router *relay.Router, logger *slog.Logger, m *metrics.Metrics) *WebSocketHandler {
	return &WebSocketHandler{
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    cfg.Server.ReadBufferSize,
			WriteBufferSize:   cfg.Server.WriteBufferSize,
			EnableCompression: false,
			CheckOrigin:       originChecker(cfg.Server.AllowedOrigins),
		},
		opts: connOptions{
			pingInterval:   cfg.WebSocket.GetPingInterval(),
			pongWait:       cfg.WebSocket.GetPongWait(),
			writeWait:      cfg.WebSocket.GetWriteWait(),
			maxMessageSize: int64(cfg.Server.MaxMessageSize),
			sendQueueSize:  cfg.WebSocket.SendQueueSize,
		},
		logger:  logger,
		metrics: m,
	}
}

// ServeHTTP implements http.Handler
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	// Audio frames are small and latency bound
	if tcp, ok := ws.NetConn().(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}

	conn := newWSConn(uuid.NewString(), ws, h.opts, h.logger, h.metrics)
	go conn.writePump()

	h.logger.Debug("WebSocket connection opened",
		slog.String("conn_id", conn.ID()),
		slog.String("remote_addr", r.RemoteAddr),
	)

	session, err := h.router.Attach(conn, r.URL.Query())
	if err != nil {
		// Attach already closed the connection with the matching code
		return
	}

	conn.readPump(session)
}

// originChecker allows every origin when the list is empty or contains "*"
func originChecker(allowed []string) func(*http.Request) bool {
	allowAll := len(allowed) == 0
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		set[strings.ToLower(origin)] = true
	}

	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return set[strings.ToLower(u.Scheme+"://"+u.Host)]
	}
}
