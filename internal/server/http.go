package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/herizador/Proxy-Audio-share/internal/config"
	"github.com/herizador/Proxy-Audio-share/internal/metrics"
	"github.com/herizador/Proxy-Audio-share/internal/relay"
)

const serviceName = "audio-relay"

// HTTPServer serves the WebSocket relay endpoint and the monitoring API
type HTTPServer struct {
	server    *http.Server
	handler   http.Handler
	logger    *slog.Logger
	config    *config.Config
	registry  *relay.Registry
	websocket *WebSocketHandler
	metrics   *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates the HTTP front door
func NewHTTPServer(appConfig *config.Config, logger *slog.Logger,
	registry *relay.Registry, router *relay.Router, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		registry:  registry,
		websocket: NewWebSocketHandler(appConfig, router, logger, m),
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	c := cors.New(cors.Options{
		AllowedOrigins: appConfig.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	})
	h.handler = c.Handler(h.upgradeAnyPath(mux))

	// No read or write timeouts: upgraded connections are long lived and
	// manage their own deadlines
	h.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", appConfig.Server.Address, appConfig.Server.Port),
		Handler:           h.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Relay endpoint; the upgrade handler must see the raw ResponseWriter
	mux.Handle("/ws", h.websocket)

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Room monitoring endpoints
	mux.HandleFunc("/rooms", h.withMetrics("/rooms", h.handleRooms))
	mux.HandleFunc("/rooms/", h.withMetrics("/rooms/{id}", h.handleRoomDetail))

	// Statistics and configuration
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// upgradeAnyPath sends WebSocket upgrade requests to the relay whatever their path
func (h *HTTPServer) upgradeAnyPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			h.websocket.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns the complete HTTP handler, CORS included
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server. Upgraded connections are not
// tracked by net/http and are closed through the registry.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleRoot answers plain HTTP requests on / with a short liveness text
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Audio relay is running")
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"relay": map[string]interface{}{
				"status": "running",
				"rooms":  h.registry.Len(),
			},
			"events": map[string]interface{}{
				"enabled": h.config.Events.Enabled,
			},
		},
	}

	writeJSON(w, health)
}

// handleRooms implements the /rooms endpoint
func (h *HTTPServer) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rooms := h.registry.Snapshot()

	writeJSON(w, map[string]interface{}{
		"total_rooms": len(rooms),
		"timestamp":   time.Now().UTC(),
		"rooms":       rooms,
	})
}

// handleRoomDetail implements the /rooms/{id} endpoint
func (h *HTTPServer) handleRoomDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := strings.TrimPrefix(r.URL.Path, "/rooms/")
	if roomID == "" {
		http.Error(w, "Room ID required", http.StatusBadRequest)
		return
	}

	info, exists := h.registry.RoomInfo(roomID)
	if !exists {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}

	writeJSON(w, info)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.registry.Stats()

	writeJSON(w, map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"relay":     stats,
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"address":          h.config.Server.Address,
			"port":             h.config.Server.Port,
			"max_message_size": h.config.Server.MaxMessageSize,
			"allowed_origins":  h.config.Server.AllowedOrigins,
		},
		"websocket": map[string]interface{}{
			"ping_interval":   h.config.WebSocket.PingInterval,
			"pong_wait":       h.config.WebSocket.PongWait,
			"write_wait":      h.config.WebSocket.WriteWait,
			"send_queue_size": h.config.WebSocket.SendQueueSize,
		},
		"relay": map[string]interface{}{
			"buffer_capacity":        h.config.Relay.BufferCapacity,
			"max_frame_size":         h.config.Relay.MaxFrameSize,
			"min_packet_interval_ms": h.config.Relay.MinPacketIntervalMs,
			"inactive_timeout":       h.config.Relay.InactiveTimeout,
			"sweep_interval":         h.config.Relay.SweepInterval,
		},
		"events": map[string]interface{}{
			"enabled": h.config.Events.Enabled,
			"channel": h.config.Events.Channel,
			// Redis address and password are intentionally omitted
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, sanitizedConfig)
}
