package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/firewatch/firewatch/internal/ledger"
	"github.com/firewatch/firewatch/internal/logbuf"
	"github.com/firewatch/firewatch/internal/poller"
	"github.com/firewatch/firewatch/internal/rules"
	"github.com/firewatch/firewatch/internal/source"
	"github.com/firewatch/firewatch/internal/types"
	"github.com/firewatch/firewatch/internal/version"
)

// Server exposes alert and monitor state over HTTP.
type Server struct {
	ledger    *ledger.Ledger
	poller    *poller.Poller
	engine    *rules.Engine
	readings  source.ReadingSource
	logBuffer *logbuf.Buffer
	logger    zerolog.Logger
	port      string
	startTime time.Time
}

// NewServer creates an API server. logBuffer and readings are optional;
// the corresponding endpoints degrade gracefully when nil.
func NewServer(ld *ledger.Ledger, p *poller.Poller, engine *rules.Engine, readings source.ReadingSource, logger zerolog.Logger, port string) *Server {
	return &Server{
		ledger:    ld,
		poller:    p,
		engine:    engine,
		readings:  readings,
		logger:    logger.With().Str("component", "api").Logger(),
		port:      port,
		startTime: time.Now(),
	}
}

// SetLogBuffer wires the captured log tail into /api/logs.
func (s *Server) SetLogBuffer(lb *logbuf.Buffer) {
	s.logBuffer = lb
}

// Start runs the HTTP server. It blocks until the listener fails.
func (s *Server) Start() error {
	addr := ":" + s.port
	s.logger.Info().
		Str("address", addr).
		Msg("Starting API server")

	return http.ListenAndServe(addr, s.Handler())
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/alerts/active", s.handleActiveAlerts)
	mux.HandleFunc("/alerts/statistics", s.handleStatistics)
	mux.HandleFunc("/alerts/", s.handleAlertLifecycle)
	mux.HandleFunc("/monitor/status", s.handleMonitorStatus)
	mux.HandleFunc("/monitor/config", s.handleMonitorConfig)
	mux.HandleFunc("/monitor/trigger-check", s.handleTriggerCheck)
	mux.HandleFunc("/monitor/latest-reading", s.handleLatestReading)
	mux.HandleFunc("/rules", s.handleRules)
	mux.HandleFunc("/rules/evaluate", s.handleRulesEvaluate)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.ledger.Statistics()
	status := s.poller.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"version":        version.Version,
		"commit":         version.Commit,
		"build_date":     version.BuildDate,
		"monitoring":     status.IsRunning,
		"active_alerts":  stats.Active,
		"total_alerts":   stats.Total,
	})
}

func (s *Server) handleActiveAlerts(w http.ResponseWriter, r *http.Request) {
	priority := types.Priority(r.URL.Query().Get("priority"))
	if priority != "" && !priority.Valid() {
		writeError(w, http.StatusBadRequest, "unknown priority: "+string(priority))
		return
	}
	alerts := s.ledger.ActiveAlerts(priority)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Statistics())
}

// handleAlertLifecycle routes POST /alerts/{id}/acknowledge and
// POST /alerts/{id}/resolve, plus GET /alerts/{id}.
func (s *Server) handleAlertLifecycle(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/alerts/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		alert, err := s.ledger.Get(parts[0])
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				writeError(w, http.StatusNotFound, "alert not found: "+parts[0])
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, alert)

	case len(parts) == 2 && r.Method == http.MethodPost:
		s.handleLifecycleAction(w, r, parts[0], parts[1])

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleLifecycleAction(w http.ResponseWriter, r *http.Request, alertID, action string) {
	var body struct {
		By string `json:"by"`
	}
	if r.Body != nil {
		// An empty body is fine; "by" defaults below.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if body.By == "" {
		body.By = "api"
	}

	var ok bool
	switch action {
	case "acknowledge":
		ok = s.ledger.Acknowledge(r.Context(), alertID, body.By)
	case "resolve":
		ok = s.ledger.Resolve(r.Context(), alertID, body.By)
	default:
		writeError(w, http.StatusNotFound, "unknown action: "+action)
		return
	}

	if !ok {
		writeError(w, http.StatusNotFound, "no active alert with id "+alertID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"alert_id": alertID,
		"status":   action + "d",
		"by":       body.By,
	})
}

func (s *Server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	status := s.poller.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"is_running":     status.IsRunning,
		"check_interval": status.CheckInterval.Seconds(),
		"last_checked":   formatTime(status.LastChecked),
		"last_processed": formatTime(status.LastProcessed),
	})
}

// handleMonitorConfig adjusts the check interval at runtime.
func (s *Server) handleMonitorConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		CheckIntervalSeconds float64 `json:"check_interval_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	interval := time.Duration(body.CheckIntervalSeconds * float64(time.Second))
	if err := s.poller.SetInterval(interval); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"check_interval": interval.Seconds(),
	})
}

func (s *Server) handleTriggerCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	reading, alerts, err := s.poller.TriggerManualCheck(r.Context())
	if err != nil {
		if errors.Is(err, source.ErrNoData) {
			writeError(w, http.StatusNotFound, "no readings available")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	fired := make([]string, 0, len(alerts))
	for _, a := range alerts {
		fired = append(fired, a.ID)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reading_at":   reading.Timestamp.UTC().Format(time.RFC3339),
		"risk_score":   reading.RiskScore,
		"alerts_fired": fired,
	})
}

func (s *Server) handleLatestReading(w http.ResponseWriter, r *http.Request) {
	if s.readings == nil {
		writeError(w, http.StatusServiceUnavailable, "reading source not configured")
		return
	}
	reading, err := s.readings.Latest(r.Context())
	if err != nil {
		if errors.Is(err, source.ErrNoData) {
			writeError(w, http.StatusNotFound, "no readings available")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	ruleSet := s.engine.Rules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(ruleSet),
		"rules": ruleSet,
	})
}

// handleRulesEvaluate dry-runs the rule set against a posted reading.
// Nothing fires: no alerts, no cooldown consumption.
func (s *Server) handleRulesEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var reading types.Reading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		writeError(w, http.StatusBadRequest, "invalid reading: "+err.Error())
		return
	}

	matched := s.engine.Check(reading)
	if matched == nil {
		matched = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matched_rules": matched,
		"count":         len(matched),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.logBuffer == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.logBuffer.Recent(limit))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
