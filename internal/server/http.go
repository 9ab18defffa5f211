package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/call"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/config"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/metrics"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/mixer"
)

// HTTPServer provides read-only monitoring endpoints. It observes the
// registry and counters and never touches the audio path.
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	config    *config.Config
	registry  *call.Registry
	engine    *mixer.Engine
	udpServer *UDPServer
	metrics   *metrics.Metrics
	startTime time.Time
}

// NewHTTPServer creates the monitoring HTTP server. metrics may be nil.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	registry *call.Registry, eng *mixer.Engine, udpServer *UDPServer, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		registry:  registry,
		engine:    eng,
		udpServer: udpServer,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/calls", h.withMetrics("/calls", h.handleCalls))
	mux.HandleFunc("/calls/", h.withMetrics("/calls/{talkgroup}", h.handleCallDetail))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.Handle("/metrics", promhttp.Handler())
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		if h.metrics == nil {
			return
		}

		duration := time.Since(startTime).Seconds()
		h.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), duration)

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

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting monitoring HTTP server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping monitoring HTTP server...")
	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	udpStats := h.udpServer.Statistics()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"components": map[string]interface{}{
			"udp_server": map[string]interface{}{
				"status":            "running",
				"packets_received":  udpStats.PacketsReceived,
				"packets_processed": udpStats.PacketsProcessed,
				"parse_errors":      udpStats.ParseErrors,
			},
			"registry": map[string]interface{}{
				"status":       "running",
				"active_calls": h.registry.Len(),
			},
			"mixer": map[string]interface{}{
				"status":          "running",
				"buffered_frames": h.engine.Buffered(),
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleCalls implements the /calls endpoint
func (h *HTTPServer) handleCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := h.registry.Snapshot()
	response := map[string]interface{}{
		"total_calls": len(infos),
		"timestamp":   time.Now().UTC(),
		"calls":       infos,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleCallDetail implements the /calls/{talkgroup} endpoint
func (h *HTTPServer) handleCallDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tgStr := r.URL.Path[len("/calls/"):]
	if tgStr == "" {
		http.Error(w, "Talkgroup required", http.StatusBadRequest)
		return
	}

	tg, err := strconv.ParseInt(tgStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid talkgroup", http.StatusBadRequest)
		return
	}

	info, ok := h.registry.Get(tg)
	if !ok {
		http.Error(w, "No active call for talkgroup", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"timestamp":       time.Now().UTC(),
		"uptime_seconds":  time.Since(h.startTime).Seconds(),
		"udp":             h.udpServer.Statistics(),
		"active_calls":    h.registry.Len(),
		"buffered_frames": h.engine.Buffered(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The config holds nothing secret, expose the effective values as-is.
	response := map[string]interface{}{
		"server": map[string]interface{}{
			"udp_port":     h.config.Server.UDPPort,
			"bind_address": h.config.Server.BindAddress,
			"queue_size":   h.config.Server.QueueSize,
			"workers":      h.config.Server.Workers,
		},
		"audio": map[string]interface{}{
			"sample_rate":       h.config.Audio.SampleRate,
			"chunk_ms":          h.config.Audio.ChunkMS,
			"stream_timeout":    h.config.Audio.StreamTimeout,
			"max_buffer_chunks": h.config.Audio.MaxBufferChunks,
		},
		"pan": map[string]interface{}{
			"edge_margin": h.config.Pan.EdgeMargin,
		},
		"status": map[string]interface{}{
			"path":        h.config.Status.Path,
			"interval_ms": h.config.Status.IntervalMS,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
