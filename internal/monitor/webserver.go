// Package monitor provides the HTTP interface for the touch conditioning
// daemon: tuning, calibration control, field output and debug charts.
package monitor

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/touch.report/internal/config"
	"github.com/banshee-data/touch.report/internal/db"
	"github.com/banshee-data/touch.report/internal/httputil"
	"github.com/banshee-data/touch.report/internal/skin"
	"github.com/banshee-data/touch.report/internal/units"
	"github.com/banshee-data/touch.report/internal/version"
)

//go:embed status.html
var StatusHTML embed.FS

// DebugRouter is implemented by subsystems that expose bench-debugging
// endpoints (serial bridge, database).
type DebugRouter interface {
	AttachDebugRoutes(mux *http.ServeMux)
}

// WebServer handles the HTTP interface for monitoring the conditioning
// pipeline. It provides endpoints for health checks, tuning, calibration
// control and real-time field output.
type WebServer struct {
	address   string
	pipeline  *skin.Pipeline
	stats     *CycleStats
	broker    *FieldBroker
	db        *db.DB
	sessionID string
	server    *http.Server
}

// WebServerConfig contains configuration options for the web server
type WebServerConfig struct {
	Address   string
	Pipeline  *skin.Pipeline
	Stats     *CycleStats
	Broker    *FieldBroker
	DB        *db.DB
	SessionID string
	// Debug subsystems mounted under /debug/. Nil entries are skipped.
	Debug []DebugRouter
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(cfg WebServerConfig) *WebServer {
	ws := &WebServer{
		address:   cfg.Address,
		pipeline:  cfg.Pipeline,
		stats:     cfg.Stats,
		broker:    cfg.Broker,
		db:        cfg.DB,
		sessionID: cfg.SessionID,
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(cfg.Debug),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers
func (ws *WebServer) setupRoutes(debug []DebugRouter) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/skin/status", ws.handleSkinStatus)
	mux.HandleFunc("/api/skin/params", ws.handleSkinParams)
	mux.HandleFunc("/api/skin/calibrate", ws.handleSkinCalibrate)
	mux.HandleFunc("/api/skin/thresholds", ws.handleSkinThresholds)
	mux.HandleFunc("/api/skin/autorange", ws.handleSkinAutoRange)
	mux.HandleFunc("/api/skin/field", ws.handleSkinField)
	mux.HandleFunc("/api/skin/baseline", ws.handleSkinBaseline)
	mux.HandleFunc("/api/skin/stream", ws.handleSkinStream)
	mux.HandleFunc("/api/skin/sessions", ws.handleSkinSessions)
	mux.HandleFunc("/api/skin/cycles", ws.handleSkinCycles)
	mux.HandleFunc("/debug/skin/heatmap", ws.handleFieldHeatmapChart)
	mux.HandleFunc("/debug/skin/baseline", ws.handleBaselineChart)
	mux.HandleFunc("/debug/skin/stats", ws.handleStatsChart)

	for _, d := range debug {
		if d != nil {
			d.AttachDebugRoutes(mux)
		}
	}

	return mux
}

// handleHealth handles the health check endpoint
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "skin", "version": "%s", "timestamp": "%s"}`,
		version.Version, time.Now().UTC().Format(time.RFC3339))
}

// handleStatus handles the main status page endpoint
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	data := struct {
		HTTPAddress string
		SessionID   string
		Rows        int
		Cols        int
		State       string
		Uptime      string
		Stats       *StatsSnapshot
	}{
		HTTPAddress: ws.address,
		SessionID:   ws.sessionID,
		Rows:        ws.pipeline.Rows(),
		Cols:        ws.pipeline.Cols(),
		State:       ws.pipeline.State().String(),
		Uptime:      ws.stats.GetUptime().Round(time.Second).String(),
		Stats:       ws.stats.GetLatestSnapshot(),
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// handleSkinStatus returns pipeline-level counters and state as JSON.
func (ws *WebServer) handleSkinStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	status := ws.pipeline.Status()
	status["session_id"] = ws.sessionID
	status["stream_subscribers"] = ws.broker.SubscriberCount()
	if snap := ws.stats.GetLatestSnapshot(); snap != nil {
		status["cycles_per_sec"] = snap.CyclesPerSec
		status["fields_per_sec"] = snap.FieldsPerSec
	}
	httputil.WriteJSONOK(w, status)
}

// handleSkinParams serves the tuning parameters. GET returns the effective
// values; POST accepts a partial config in the same schema and applies it
// atomically between cycles.
func (ws *WebServer) handleSkinParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, config.FromParams(ws.pipeline.Params()))
	case http.MethodPost:
		var cfg config.TuningConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid params JSON: %v", err))
			return
		}
		if err := cfg.Validate(); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		ws.pipeline.SetParams(cfg.Apply(ws.pipeline.Params()))
		httputil.WriteJSONOK(w, config.FromParams(ws.pipeline.Params()))
	default:
		httputil.MethodNotAllowed(w)
	}
}

// handleSkinCalibrate triggers a baseline calibration. An optional
// duration_frames query param overrides the configured batch length first.
func (ws *WebServer) handleSkinCalibrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	if v := r.URL.Query().Get("duration_frames"); v != "" {
		frames, err := strconv.Atoi(v)
		if err != nil || frames < 1 {
			httputil.BadRequest(w, fmt.Sprintf("invalid duration_frames %q", v))
			return
		}
		p := ws.pipeline.Params()
		p.CalibrationDurationFrames = frames
		ws.pipeline.SetParams(p)
	}

	started := ws.pipeline.BeginCalibration()
	if started && ws.db != nil && ws.sessionID != "" {
		if _, err := ws.db.RecordCalibrationRequested(ws.sessionID, ws.pipeline.Params().CalibrationDurationFrames); err != nil {
			log.Printf("failed to record calibration request: %v", err)
		}
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"started":         started,
		"state":           ws.pipeline.State().String(),
		"duration_frames": ws.pipeline.Params().CalibrationDurationFrames,
	})
}

// handleSkinThresholds pins the intensity-mapping window and disables
// auto-range. Expects POST with min and max query params.
func (ws *WebServer) handleSkinThresholds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	min, err := strconv.ParseFloat(r.URL.Query().Get("min"), 64)
	if err != nil {
		httputil.BadRequest(w, "missing or invalid 'min' parameter")
		return
	}
	max, err := strconv.ParseFloat(r.URL.Query().Get("max"), 64)
	if err != nil {
		httputil.BadRequest(w, "missing or invalid 'max' parameter")
		return
	}
	if err := ws.pipeline.SetThresholds(min, max); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"thresholds": skin.RangeThresholds{Min: min, Max: max},
		"auto_range": false,
	})
}

// handleSkinAutoRange toggles per-cycle recomputation of the mapping window.
// Expects POST with enabled=true|false.
func (ws *WebServer) handleSkinAutoRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		httputil.BadRequest(w, "missing or invalid 'enabled' parameter")
		return
	}
	ws.pipeline.SetAutoRange(enabled)
	httputil.WriteJSONOK(w, map[string]interface{}{"auto_range": enabled})
}

// handleSkinField returns the most recent field snapshot. The units query
// param selects the output scale (norm, byte, percent).
func (ws *WebServer) handleSkinField(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	scale := r.URL.Query().Get("units")
	if scale == "" {
		scale = units.Norm
	}
	if !units.IsValid(scale) {
		httputil.BadRequest(w, fmt.Sprintf("invalid units %q, valid: %s", scale, units.GetValidScalesString()))
		return
	}

	snap := ws.pipeline.Snapshot()
	if snap == nil {
		httputil.NotFound(w, "no field emitted yet")
		return
	}
	if scale != units.Norm {
		snap.Field = units.ConvertField(snap.Field, scale)
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":    scale,
		"snapshot": snap,
	})
}

// handleSkinBaseline returns the current per-cell baseline.
func (ws *WebServer) handleSkinBaseline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"state":    ws.pipeline.State().String(),
		"rows":     ws.pipeline.Rows(),
		"cols":     ws.pipeline.Cols(),
		"baseline": ws.pipeline.Baseline(),
	})
}

// handleSkinStream streams field snapshots as server-sent events, one event
// per conditioning cycle.
func (ws *WebServer) handleSkinStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalError(w, "streaming unsupported")
		return
	}

	id, ch := ws.broker.Subscribe()
	defer ws.broker.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				log.Printf("failed to marshal field snapshot: %v", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// handleSkinSessions lists recorded capture sessions.
func (ws *WebServer) handleSkinSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.db == nil {
		httputil.InternalError(w, "no database configured")
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	sessions, err := ws.db.Sessions(limit)
	if err != nil {
		httputil.InternalError(w, fmt.Sprintf("list sessions: %v", err))
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

// handleSkinCycles returns recorded per-cycle diagnostics for a session.
// Query params:
//
//	session_id (optional, defaults to the live session)
//	limit (optional, default 500)
func (ws *WebServer) handleSkinCycles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.db == nil {
		httputil.InternalError(w, "no database configured")
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = ws.sessionID
	}
	if sessionID == "" {
		httputil.BadRequest(w, "missing 'session_id' parameter")
		return
	}
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	stats, err := ws.db.CycleStats(sessionID, limit)
	if err != nil {
		httputil.InternalError(w, fmt.Sprintf("get cycle stats: %v", err))
		return
	}
	httputil.WriteJSONOK(w, stats)
}

// Close shuts down the web server
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
