package intercept

import (
	"net/url"
	"strings"

	"github.com/Rorqualx/pagerecon-go/internal/signatures"
)

// Filter decides which observed requests carry diagnostic value. Static
// assets and analytics/advertising vendor traffic are noise; malformed URLs
// are excluded silently.
type Filter struct {
	suffixes []string
	vendors  []string
}

// NewFilter builds a filter from the current signature tables.
func NewFilter(sig *signatures.Signatures) *Filter {
	return &Filter{
		suffixes: sig.AssetSuffixes,
		vendors:  sig.VendorHosts,
	}
}

// Relevant reports whether a request URL should be logged.
func (f *Filter) Relevant(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}

	for _, vendor := range f.vendors {
		if strings.Contains(host, vendor) {
			return false
		}
	}

	path := strings.ToLower(u.Path)
	for _, suffix := range f.suffixes {
		if strings.HasSuffix(path, suffix) {
			return false
		}
	}

	return true
}

// EndpointKey reduces a request URL to its aggregation key: scheme, host and
// path with query and fragment stripped. The second return value is false
// for URLs that cannot be parsed.
func EndpointKey(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	return u.Scheme + "://" + u.Host + u.Path, true
}

func normalizeMethod(method string) string {
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		return "GET"
	}
	return m
}
