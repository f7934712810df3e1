package types

import (
	"encoding/json"
	"strings"
	"testing"
)

// TestRequestJSONFieldNames verifies request JSON field names match the wire API.
func TestRequestJSONFieldNames(t *testing.T) {
	req := Request{
		Cmd:        "analyze.run",
		URL:        "https://example.com",
		Session:    "test-session",
		MaxTimeout: 60000,
		SettleMs:   1500,
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	jsonStr := string(data)

	expectedFields := []string{
		`"cmd"`,
		`"url"`,
		`"session"`,
		`"maxTimeout"`,
		`"settleMs"`,
	}

	for _, field := range expectedFields {
		if !strings.Contains(jsonStr, field) {
			t.Errorf("Expected field %s not found in JSON: %s", field, jsonStr)
		}
	}

	incorrectFields := []string{
		`"max_timeout"`, // camelCase on the wire
		`"settle_ms"`,
		`"sessionId"`,
	}

	for _, field := range incorrectFields {
		if strings.Contains(jsonStr, field) {
			t.Errorf("Unexpected field %s found in JSON: %s", field, jsonStr)
		}
	}
}

// TestResponseJSONFieldNames verifies response JSON field names match the wire API.
func TestResponseJSONFieldNames(t *testing.T) {
	resp := Response{
		Status:    StatusOK,
		Message:   "Analysis completed",
		StartTime: 1705432800000,
		EndTime:   1705432801000,
		Version:   "1.0.0",
		Sessions:  []string{"session1"},
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Failed to marshal response: %v", err)
	}

	jsonStr := string(data)

	expectedFields := []string{
		`"status"`,
		`"message"`,
		`"startTimestamp"`,
		`"endTimestamp"`,
		`"version"`,
		`"sessions"`,
	}

	for _, field := range expectedFields {
		if !strings.Contains(jsonStr, field) {
			t.Errorf("Expected field %s not found in JSON: %s", field, jsonStr)
		}
	}

	incorrectFields := []string{
		`"start_timestamp"`,
		`"end_timestamp"`,
		`"start_time"`,
		`"end_time"`,
	}

	for _, field := range incorrectFields {
		if strings.Contains(jsonStr, field) {
			t.Errorf("Unexpected field %s found in JSON: %s", field, jsonStr)
		}
	}

	// Report is omitted entirely when no analysis ran
	if strings.Contains(jsonStr, `"report"`) {
		t.Errorf("Empty report should be omitted from JSON: %s", jsonStr)
	}
}

// TestRequestDeserialization verifies client request payloads parse correctly.
func TestRequestDeserialization(t *testing.T) {
	tests := []struct {
		name        string
		json        string
		wantCmd     string
		wantURL     string
		wantSession string
		wantSettle  int
	}{
		{
			name:    "basic analyze.run",
			json:    `{"cmd":"analyze.run","url":"https://example.com"}`,
			wantCmd: "analyze.run",
			wantURL: "https://example.com",
		},
		{
			name:       "analyze.run with settle delay",
			json:       `{"cmd":"analyze.run","url":"https://example.com","settleMs":2000}`,
			wantCmd:    "analyze.run",
			wantURL:    "https://example.com",
			wantSettle: 2000,
		},
		{
			name:        "analyze.run against a session",
			json:        `{"cmd":"analyze.run","session":"my-session-0123456"}`,
			wantCmd:     "analyze.run",
			wantSession: "my-session-0123456",
		},
		{
			name:        "analyze.last",
			json:        `{"cmd":"analyze.last","session":"my-session-0123456"}`,
			wantCmd:     "analyze.last",
			wantSession: "my-session-0123456",
		},
		{
			name:        "sessions.create",
			json:        `{"cmd":"sessions.create","session":"my-session-0123456"}`,
			wantCmd:     "sessions.create",
			wantSession: "my-session-0123456",
		},
		{
			name:    "sessions.list",
			json:    `{"cmd":"sessions.list"}`,
			wantCmd: "sessions.list",
		},
		{
			name:        "sessions.destroy",
			json:        `{"cmd":"sessions.destroy","session":"my-session-0123456"}`,
			wantCmd:     "sessions.destroy",
			wantSession: "my-session-0123456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			if err := json.Unmarshal([]byte(tt.json), &req); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}

			if req.Cmd != tt.wantCmd {
				t.Errorf("Cmd = %q, want %q", req.Cmd, tt.wantCmd)
			}
			if req.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", req.URL, tt.wantURL)
			}
			if req.Session != tt.wantSession {
				t.Errorf("Session = %q, want %q", req.Session, tt.wantSession)
			}
			if req.SettleMs != tt.wantSettle {
				t.Errorf("SettleMs = %v, want %v", req.SettleMs, tt.wantSettle)
			}
		})
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid analyze.run", Request{Cmd: CmdAnalyzeRun, URL: "https://example.com"}, false},
		{"valid sessions.list", Request{Cmd: CmdSessionsList}, false},
		{"missing cmd", Request{URL: "https://example.com"}, true},
		{"unknown cmd", Request{Cmd: "pages.fetch"}, true},
		{"ftp url", Request{Cmd: CmdAnalyzeRun, URL: "ftp://example.com"}, true},
		{"oversized url", Request{Cmd: CmdAnalyzeRun, URL: "https://example.com/" + strings.Repeat("a", MaxURLLength)}, true},
		{"negative timeout", Request{Cmd: CmdAnalyzeRun, URL: "https://example.com", MaxTimeout: -1}, true},
		{"timeout over limit", Request{Cmd: CmdAnalyzeRun, URL: "https://example.com", MaxTimeout: MaxTimeoutMs + 1}, true},
		{"negative settle", Request{Cmd: CmdAnalyzeRun, URL: "https://example.com", SettleMs: -1}, true},
		{"settle over limit", Request{Cmd: CmdAnalyzeRun, URL: "https://example.com", SettleMs: MaxSettleMs + 1}, true},
		{"oversized session id", Request{Cmd: CmdSessionsDestroy, Session: strings.Repeat("s", MaxSessionIDLength+1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
