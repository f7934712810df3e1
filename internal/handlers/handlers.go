// Package handlers provides HTTP request handlers for the PageRecon API.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/pagerecon-go/internal/analyzer"
	"github.com/Rorqualx/pagerecon-go/internal/browser"
	"github.com/Rorqualx/pagerecon-go/internal/config"
	"github.com/Rorqualx/pagerecon-go/internal/metrics"
	"github.com/Rorqualx/pagerecon-go/internal/render"
	"github.com/Rorqualx/pagerecon-go/internal/report"
	"github.com/Rorqualx/pagerecon-go/internal/security"
	"github.com/Rorqualx/pagerecon-go/internal/session"
	"github.com/Rorqualx/pagerecon-go/internal/signatures"
	"github.com/Rorqualx/pagerecon-go/internal/stats"
	"github.com/Rorqualx/pagerecon-go/internal/types"
	"github.com/Rorqualx/pagerecon-go/pkg/version"
)

// sensitiveParams contains query parameter names that may contain secrets
// and should be redacted in logs.
var sensitiveParams = []string{
	"key", "token", "api_key", "apikey", "password", "secret", "auth",
	"access_token", "refresh_token", "bearer", "credential", "private_key",
}

// sanitizeURLForLogging removes sensitive query parameters from URLs before logging.
// This prevents accidental exposure of API keys, tokens, and other secrets in logs.
func sanitizeURLForLogging(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "[invalid-url]"
	}

	if parsed.RawQuery == "" {
		return rawURL
	}

	query := parsed.Query()
	redacted := false
	for _, param := range sensitiveParams {
		for key := range query {
			if strings.EqualFold(key, param) {
				query.Set(key, "[REDACTED]")
				redacted = true
			}
		}
	}

	if !redacted {
		return rawURL
	}

	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// Handler handles all PageRecon API requests.
type Handler struct {
	pool     *browser.Pool
	sessions *session.Manager
	analyzer *analyzer.Analyzer
	sigs     *signatures.Manager
	domains  *stats.Manager
	config   *config.Config
}

// New creates a new Handler.
func New(pool *browser.Pool, sessions *session.Manager, an *analyzer.Analyzer, sigs *signatures.Manager, domains *stats.Manager, cfg *config.Config) *Handler {
	return &Handler{
		pool:     pool,
		sessions: sessions,
		analyzer: an,
		sigs:     sigs,
		domains:  domains,
		config:   cfg,
	}
}

// ServeHTTP handles incoming requests (implements http.Handler).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.URL.Path {
	case "/health":
		h.HandleHealth(w, r)
	case "/v1":
		if r.Method != http.MethodPost {
			h.HandleMethodNotAllowed(w, r)
			return
		}
		h.HandleAPI(w, r)
	case "/":
		if r.Method != http.MethodGet {
			h.HandleMethodNotAllowed(w, r)
			return
		}
		h.handleStatusPage(w)
	case "/report":
		if r.Method != http.MethodGet {
			h.HandleMethodNotAllowed(w, r)
			return
		}
		h.handleReportPage(w, r)
	case "/stats":
		if r.Method != http.MethodGet {
			h.HandleMethodNotAllowed(w, r)
			return
		}
		h.handleDomainStats(w)
	default:
		h.HandleNotFound(w, r)
	}
}

// serviceStart anchors the uptime shown on the status page.
var serviceStart = time.Now()

// handleStatusPage serves the HTML status page.
func (h *Handler) handleStatusPage(w http.ResponseWriter) {
	data := render.StatusPageData{
		Version:   version.Full(),
		GoVersion: version.GoVersion(),
		Uptime:    time.Since(serviceStart).Round(time.Second).String(),
		Sessions:  h.sessions.Count(),
	}
	if h.pool != nil {
		data.PoolSize = h.pool.Size()
	}

	page, err := render.RenderStatusPage(data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to render status page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

// handleReportPage serves the last report of a session as HTML.
func (h *Handler) handleReportPage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session query parameter is required", http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	rep, err := sess.LastReport()
	if err != nil {
		http.Error(w, "no report available for session", http.StatusNotFound)
		return
	}

	page, err := render.RenderReport(rep)
	if err != nil {
		log.Error().Err(err).Msg("Failed to render report page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

// HandleHealth handles the /health endpoint.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.handleHealth(w, time.Now())
}

// HandleAPI handles the main API endpoint.
func (h *Handler) HandleAPI(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	// Limit request body size to prevent memory exhaustion (1MB max)
	const maxBodySize = 1 << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	// Parse request using pooled buffer to reduce GC pressure
	buf := getBuffer()
	defer putBuffer(buf)

	if _, err := io.Copy(buf, r.Body); err != nil {
		log.Warn().Err(err).Msg("Failed to read request body")
		h.writeError(w, "Failed to read request", startTime)
		return
	}

	var req types.Request
	if err := json.Unmarshal(buf.Bytes(), &req); err != nil {
		log.Warn().Err(err).Msg("Failed to decode request")
		h.writeError(w, "Invalid JSON request", startTime)
		return
	}

	log.Info().
		Str("cmd", req.Cmd).
		Str("url", sanitizeURLForLogging(req.URL)).
		Str("session", req.Session).
		Msg("Request received")

	h.routeCommand(w, r, &req, startTime)
}

// HandleMethodNotAllowed handles requests with unsupported HTTP methods.
func (h *Handler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeErrorWithStatus(w, http.StatusMethodNotAllowed, "Method not allowed", time.Now())
}

// HandleNotFound handles requests to unknown paths.
func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.writeErrorWithStatus(w, http.StatusNotFound, "Not found", time.Now())
}

// handleHealth returns service health information.
func (h *Handler) handleHealth(w http.ResponseWriter, startTime time.Time) {
	resp := types.Response{
		Status:    types.StatusOK,
		Message:   "PageRecon is ready",
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// analysisBudget derives the analysis timeout and settle delay for a request,
// clamping client overrides to the configured ceilings.
func (h *Handler) analysisBudget(req *types.Request) (timeout, settle time.Duration) {
	timeout = h.config.DefaultTimeout
	if req.MaxTimeout > 0 {
		timeout = time.Duration(req.MaxTimeout) * time.Millisecond
		if timeout > h.config.MaxTimeout {
			timeout = h.config.MaxTimeout
		}
	}

	settle = h.config.SettleDelay
	if req.SettleMs > 0 {
		settle = time.Duration(req.SettleMs) * time.Millisecond
	}
	return timeout, settle
}

// handleAnalyzeRun runs one analysis. With a session the session's page is
// used and the result is stored on it; without one a throwaway monitored
// page serves the single request.
func (h *Handler) handleAnalyzeRun(w http.ResponseWriter, ctx context.Context, req *types.Request, startTime time.Time) {
	if req.URL == "" && req.Session == "" {
		h.fail(w, req.Cmd, "url is required", startTime)
		return
	}

	if req.URL != "" {
		// SSRF protection
		if err := security.ValidateURL(req.URL); err != nil {
			log.Warn().Err(err).Str("url", sanitizeURLForLogging(req.URL)).Msg("URL validation failed")
			h.fail(w, req.Cmd, "Invalid URL: "+err.Error(), startTime)
			return
		}
	}

	timeout, settle := h.analysisBudget(req)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := analyzer.Options{URL: req.URL, Settle: settle}

	var rep *report.Report
	var err error

	if req.Session != "" {
		var sess *session.Session
		sess, err = h.sessions.Get(req.Session)
		if err != nil {
			log.Warn().Err(err).Str("session", req.Session).Msg("Session lookup failed")
			h.fail(w, req.Cmd, "Session not found: "+req.Session, startTime)
			return
		}
		rep, err = h.analyzer.Analyze(ctx, sess, opts)
		if err == nil {
			sess.StoreReport(rep)
		}
	} else {
		rep, err = h.analyzeOnce(ctx, opts)
	}

	h.recordDomainOutcome(req.URL, rep, err, time.Since(startTime))

	if err != nil {
		log.Error().Err(err).Str("url", sanitizeURLForLogging(req.URL)).Msg("Analysis failed")
		h.fail(w, req.Cmd, err.Error(), startTime)
		return
	}

	h.writeReport(w, req.Cmd, "Analysis completed", rep, startTime)
}

// recordDomainOutcome feeds per-domain statistics from one analysis run.
func (h *Handler) recordDomainOutcome(requestURL string, rep *report.Report, runErr error, duration time.Duration) {
	if h.domains == nil {
		return
	}

	target := requestURL
	if rep != nil && rep.URL != "" {
		target = rep.URL
	}
	domain := stats.ExtractDomain(target)
	if domain == "" {
		return
	}

	blocked := false
	if rep != nil {
		for _, f := range rep.Findings.AntiBot {
			if strings.HasPrefix(f.Label, "Block page:") {
				blocked = true
				break
			}
		}
	}

	h.domains.RecordAnalysis(domain, duration, runErr == nil, blocked)
}

// handleDomainStats serves the per-domain analysis statistics as JSON.
func (h *Handler) handleDomainStats(w http.ResponseWriter) {
	if h.domains == nil {
		h.writeJSONResponse(w, http.StatusOK, map[string]stats.DomainStatsJSON{})
		return
	}
	h.writeJSONResponse(w, http.StatusOK, h.domains.AllStats())
}

// analyzeOnce runs an analysis on a throwaway monitored page. The browser
// goes back to the pool when the analysis finishes.
func (h *Handler) analyzeOnce(ctx context.Context, opts analyzer.Options) (*report.Report, error) {
	brow, err := h.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer h.pool.Release(brow)

	page, err := browser.NewStealthPage(brow)
	if err != nil {
		return nil, err
	}

	sess, err := session.NewSession(uuid.NewString(), brow, page, h.sigs)
	if err != nil {
		_ = page.Close()
		return nil, err
	}
	defer sess.Close()

	return h.analyzer.Analyze(ctx, sess, opts)
}

// handleAnalyzeLast returns the most recent report stored on a session.
func (h *Handler) handleAnalyzeLast(w http.ResponseWriter, req *types.Request, startTime time.Time) {
	if req.Session == "" {
		h.fail(w, req.Cmd, "session is required", startTime)
		return
	}

	sess, err := h.sessions.Get(req.Session)
	if err != nil {
		h.fail(w, req.Cmd, "Session not found: "+req.Session, startTime)
		return
	}

	rep, err := sess.LastReport()
	if err != nil {
		h.fail(w, req.Cmd, "No report available for session: "+req.Session, startTime)
		return
	}

	h.writeReport(w, req.Cmd, "Last report retrieved", rep, startTime)
}

// handleSessionCreate creates a new monitored session.
func (h *Handler) handleSessionCreate(w http.ResponseWriter, ctx context.Context, req *types.Request, startTime time.Time) {
	sessionID := req.Session
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if validationErr := security.ValidateSessionID(sessionID); validationErr != "" {
		h.fail(w, req.Cmd, validationErr, startTime)
		return
	}

	browserInstance, err := h.pool.Acquire(ctx)
	if err != nil {
		h.fail(w, req.Cmd, "Failed to acquire browser: "+err.Error(), startTime)
		return
	}

	// Create transfers browser ownership to the session, including on error
	sess, err := h.sessions.Create(sessionID, browserInstance)
	if err != nil {
		h.fail(w, req.Cmd, "Failed to create session: "+err.Error(), startTime)
		return
	}

	metrics.RecordRequest(req.Cmd, types.StatusOK, time.Since(startTime))
	resp := types.Response{
		Status:    types.StatusOK,
		Message:   "Session created successfully",
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
		Sessions:  []string{sess.ID()},
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// handleSessionList lists all active sessions.
func (h *Handler) handleSessionList(w http.ResponseWriter, req *types.Request, startTime time.Time) {
	sessions := h.sessions.List()

	metrics.RecordRequest(req.Cmd, types.StatusOK, time.Since(startTime))
	resp := types.Response{
		Status:    types.StatusOK,
		Message:   "Session list retrieved",
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
		Sessions:  sessions,
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// handleSessionDestroy destroys a session.
func (h *Handler) handleSessionDestroy(w http.ResponseWriter, req *types.Request, startTime time.Time) {
	if req.Session == "" {
		h.fail(w, req.Cmd, "session is required", startTime)
		return
	}

	if err := h.sessions.Destroy(req.Session); err != nil {
		h.fail(w, req.Cmd, "Failed to destroy session: "+err.Error(), startTime)
		return
	}

	metrics.RecordRequest(req.Cmd, types.StatusOK, time.Since(startTime))
	resp := types.Response{
		Status:    types.StatusOK,
		Message:   "Session destroyed successfully",
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// writeReport writes a successful response carrying a report.
func (h *Handler) writeReport(w http.ResponseWriter, cmd, message string, rep *report.Report, startTime time.Time) {
	metrics.RecordRequest(cmd, types.StatusOK, time.Since(startTime))
	resp := types.Response{
		Status:    types.StatusOK,
		Message:   message,
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
		Report:    rep,
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// fail records the failed command and writes the error response.
func (h *Handler) fail(w http.ResponseWriter, cmd, message string, startTime time.Time) {
	metrics.RecordRequest(cmd, types.StatusError, time.Since(startTime))
	h.writeError(w, message, startTime)
}

// writeError writes an error response. For compatibility with clients of the
// original tool, the HTTP status stays 200 with the error in the JSON body.
// Use writeErrorWithStatus for cases where HTTP status codes are preferred.
func (h *Handler) writeError(w http.ResponseWriter, message string, startTime time.Time) {
	h.writeErrorWithStatus(w, http.StatusOK, message, startTime)
}

// writeErrorWithStatus writes an error response with a specific HTTP status code.
func (h *Handler) writeErrorWithStatus(w http.ResponseWriter, statusCode int, message string, startTime time.Time) {
	resp := types.Response{
		Status:    types.StatusError,
		Message:   message,
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
	}
	h.writeJSONResponse(w, statusCode, resp)
}

// writeJSONResponse buffers JSON before writing so encoding errors are caught
// before headers are sent.
func (h *Handler) writeJSONResponse(w http.ResponseWriter, statusCode int, resp interface{}) {
	buf := getResponseBuffer()
	defer putResponseBuffer(buf)

	if err := json.NewEncoder(buf).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","message":"internal encoding error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	_, _ = w.Write(buf.Bytes())
}
