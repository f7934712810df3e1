package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Rorqualx/pagerecon-go/internal/report"
	"github.com/Rorqualx/pagerecon-go/internal/types"
)

// BenchmarkJSONDecode measures JSON request parsing performance.
// This tests the core JSON decoding path that every request goes through.
func BenchmarkJSONDecode(b *testing.B) {
	reqBody := `{"cmd":"analyze.run","url":"https://example.com","maxTimeout":60000}`

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var req types.Request
		if err := json.Unmarshal([]byte(reqBody), &req); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkJSONDecodeWithPool measures JSON decoding using pooled buffers.
func BenchmarkJSONDecodeWithPool(b *testing.B) {
	reqBody := `{"cmd":"analyze.run","url":"https://example.com","maxTimeout":60000}`
	reader := strings.NewReader(reqBody)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reader.Reset(reqBody)

		buf := getBuffer()
		_, _ = io.Copy(buf, reader)
		var req types.Request
		if err := json.Unmarshal(buf.Bytes(), &req); err != nil {
			b.Fatal(err)
		}
		putBuffer(buf)
	}
}

// BenchmarkJSONEncode measures report response encoding performance.
func BenchmarkJSONEncode(b *testing.B) {
	rep := report.New("https://example.com/")
	rep.Network.TotalRequests = 120
	for i := 0; i < 40; i++ {
		rep.Network.Endpoints = append(rep.Network.Endpoints, report.Endpoint{
			Endpoint:   "https://example.com/api/resource",
			Methods:    []string{"GET", "POST"},
			Count:      3,
			SampleURLs: []string{"https://example.com/api/resource?page=1"},
		})
	}
	rep.WindowSignatures = map[string]string{
		"jQuery":        "jQuery",
		"React":         "React",
		"__NEXT_DATA__": "Next.js",
	}

	resp := types.Response{
		Status:    types.StatusOK,
		Message:   "Analysis completed",
		StartTime: 1234567890123,
		EndTime:   1234567890456,
		Version:   "1.0.0",
		Report:    rep,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, err := json.Marshal(resp)
		if err != nil {
			b.Fatal(err)
		}
		_ = data
	}
}

// BenchmarkBufferPool measures sync.Pool allocation performance.
func BenchmarkBufferPool(b *testing.B) {
	b.Run("WithPool", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := getBuffer()
			buf.WriteString("test data for buffer pool benchmark")
			putBuffer(buf)
		}
	})

	b.Run("WithoutPool", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := bytes.NewBuffer(make([]byte, 0, 4096))
			buf.WriteString("test data for buffer pool benchmark")
			// No return to pool - simulates GC pressure
		}
	})
}

// BenchmarkHTTPHandler benchmarks the HTTP handler without actual browser operations.
// This measures middleware + routing overhead.
func BenchmarkHTTPHandler(b *testing.B) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := getBuffer()
		defer putBuffer(buf)

		_, _ = io.Copy(buf, r.Body)
		var req types.Request
		_ = json.Unmarshal(buf.Bytes(), &req)

		resp := types.Response{
			Status:  types.StatusOK,
			Message: "test",
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	reqBody := `{"cmd":"analyze.run","url":"https://example.com"}`

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1", strings.NewReader(reqBody))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
	}
}

// BenchmarkResponseBuffer benchmarks response buffer pool.
func BenchmarkResponseBuffer(b *testing.B) {
	b.Run("WithPool", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := getResponseBuffer()
			buf.WriteString(strings.Repeat("x", 8000))
			putResponseBuffer(buf)
		}
	})

	b.Run("WithoutPool", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := bytes.NewBuffer(make([]byte, 0, 8192))
			buf.WriteString(strings.Repeat("x", 8000))
		}
	})
}

// BenchmarkSanitizeURL benchmarks log sanitization of request URLs.
func BenchmarkSanitizeURL(b *testing.B) {
	urls := []string{
		"https://example.com/path",
		"https://example.com/path?page=2&sort=asc",
		"https://example.com/path?api_key=secret&page=2",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = sanitizeURLForLogging(urls[i%len(urls)])
	}
}
