package intercept

import (
	"testing"

	"github.com/Rorqualx/pagerecon-go/internal/signatures"
)

func TestFilterRelevant(t *testing.T) {
	f := NewFilter(signatures.Get())

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"api endpoint", "https://example.com/api/products", true},
		{"api with query", "https://example.com/api/search?q=shoes&page=2", true},
		{"graphql", "https://example.com/graphql", true},
		{"extensionless path", "https://example.com/listing", true},
		{"http scheme", "http://example.com/api", true},

		{"stylesheet", "https://example.com/assets/site.css", false},
		{"script", "https://example.com/bundle.js", false},
		{"image png", "https://example.com/logo.png", false},
		{"image with query", "https://example.com/logo.png?v=3", false},
		{"font", "https://example.com/fonts/inter.woff2", false},
		{"source map", "https://example.com/bundle.js.map", false},
		{"suffix case-insensitive", "https://example.com/LOGO.PNG", false},

		{"analytics vendor", "https://www.google-analytics.com/collect", false},
		{"tag manager", "https://www.googletagmanager.com/gtm.js", false},
		{"ad vendor", "https://stats.g.doubleclick.net/j/collect", false},
		{"vendor substring in subdomain", "https://region1.google-analytics.com/g/collect", false},

		{"data url", "data:text/plain;base64,aGk=", false},
		{"blob url", "blob:https://example.com/uuid", false},
		{"websocket", "wss://example.com/socket", false},
		{"malformed", "http://exa mple.com/%zz", false},
		{"relative path", "/api/items", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Relevant(tt.url); got != tt.want {
				t.Errorf("Relevant(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestEndpointKey(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		want   string
		wantOK bool
	}{
		{"strips query", "https://example.com/api/items?page=2", "https://example.com/api/items", true},
		{"strips fragment", "https://example.com/api/items#top", "https://example.com/api/items", true},
		{"keeps port", "https://example.com:8443/api", "https://example.com:8443/api", true},
		{"bare origin", "https://example.com", "https://example.com", true},
		{"no host", "/api/items", "", false},
		{"garbage", "http://exa mple.com/%zz", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EndpointKey(tt.url)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("EndpointKey(%q) = (%q, %v), want (%q, %v)", tt.url, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNormalizeMethod(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"get", "GET"},
		{"POST", "POST"},
		{" put ", "PUT"},
		{"", "GET"},
	}

	for _, tt := range tests {
		if got := normalizeMethod(tt.in); got != tt.want {
			t.Errorf("normalizeMethod(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
