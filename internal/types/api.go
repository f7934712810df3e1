package types

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Rorqualx/pagerecon-go/internal/report"
)

// Request validation limits.
const (
	MaxCmdLength       = 64
	MaxURLLength       = 8192
	MaxSessionIDLength = 128
	MaxTimeoutMs       = 300000 // 5 minutes in milliseconds
	MaxSettleMs        = 60000
)

// Request represents an incoming API request.
type Request struct {
	Cmd        string `json:"cmd"`
	URL        string `json:"url,omitempty"`
	Session    string `json:"session,omitempty"`
	MaxTimeout int    `json:"maxTimeout,omitempty"` // Overall analysis budget in ms
	SettleMs   int    `json:"settleMs,omitempty"`   // Extra wait after load before collecting
}

// Validate validates the request and returns an error if invalid.
func (r *Request) Validate() error {
	if r.Cmd == "" {
		return fmt.Errorf("cmd is required")
	}
	if len(r.Cmd) > MaxCmdLength {
		return fmt.Errorf("cmd exceeds maximum length of %d", MaxCmdLength)
	}

	switch r.Cmd {
	case CmdAnalyzeRun, CmdAnalyzeLast, CmdSessionsCreate, CmdSessionsList, CmdSessionsDestroy:
		// Valid command
	default:
		// %q prevents log injection through the command field
		return fmt.Errorf("Unknown command: %q", r.Cmd)
	}

	if r.URL != "" {
		if len(r.URL) > MaxURLLength {
			return fmt.Errorf("url exceeds maximum length of %d", MaxURLLength)
		}
		u, err := url.Parse(r.URL)
		if err != nil {
			return fmt.Errorf("invalid url: %w", err)
		}
		scheme := strings.ToLower(u.Scheme)
		if scheme != "http" && scheme != "https" {
			return fmt.Errorf("url scheme must be http or https, got: %s", scheme)
		}
	}

	if r.Session != "" && len(r.Session) > MaxSessionIDLength {
		return fmt.Errorf("session exceeds maximum length of %d", MaxSessionIDLength)
	}

	if r.MaxTimeout < 0 {
		return fmt.Errorf("maxTimeout cannot be negative")
	}
	if r.MaxTimeout > MaxTimeoutMs {
		return fmt.Errorf("maxTimeout exceeds maximum of %d ms", MaxTimeoutMs)
	}

	if r.SettleMs < 0 {
		return fmt.Errorf("settleMs cannot be negative")
	}
	if r.SettleMs > MaxSettleMs {
		return fmt.Errorf("settleMs exceeds maximum of %d ms", MaxSettleMs)
	}

	return nil
}

// Response represents an API response.
type Response struct {
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	StartTime int64          `json:"startTimestamp"`
	EndTime   int64          `json:"endTimestamp"`
	Version   string         `json:"version"`
	Report    *report.Report `json:"report,omitempty"`
	Sessions  []string       `json:"sessions,omitempty"`
}

// Commands supported by the API.
const (
	CmdAnalyzeRun      = "analyze.run"
	CmdAnalyzeLast     = "analyze.last"
	CmdSessionsCreate  = "sessions.create"
	CmdSessionsList    = "sessions.list"
	CmdSessionsDestroy = "sessions.destroy"
)

// Status values for API responses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)
