package detect

import (
	"regexp"
	"strings"

	"github.com/Rorqualx/pagerecon-go/internal/report"
)

// maxBodyLenForRegex limits the markup size for regex matching to prevent
// ReDoS with very large documents. 100KB is enough to classify a block page.
const maxBodyLenForRegex = 100 * 1024

// BlockCategory is the broad classification of a detected block page.
type BlockCategory string

// Block categories.
const (
	BlockRateLimit    BlockCategory = "rate_limit"
	BlockAccessDenied BlockCategory = "access_denied"
	BlockGeoBlocked   BlockCategory = "geo_blocked"
)

// blockPattern defines one block-page detection pattern and its metadata.
type blockPattern struct {
	pattern     *regexp.Regexp
	code        string
	category    BlockCategory
	description string
}

// blockPatterns contains all block-page patterns, ordered by specificity.
// Patterns use [^<]{0,N} instead of .{0,N} to prevent backtracking on HTML
// content while still matching across element boundaries.
var blockPatterns = []blockPattern{
	// Cloudflare-specific errors (most specific first)
	{
		pattern:     regexp.MustCompile(`(?i)error[^<]{0,10}code[^<]{0,5}:?\s{0,5}1015`),
		code:        "CF_1015",
		category:    BlockRateLimit,
		description: "Cloudflare rate limit exceeded",
	},
	{
		pattern:     regexp.MustCompile(`(?i)error[^<]{0,10}code[^<]{0,5}:?\s{0,5}1020`),
		code:        "CF_1020",
		category:    BlockAccessDenied,
		description: "Cloudflare access denied - suspicious request",
	},
	{
		pattern:     regexp.MustCompile(`(?i)error[^<]{0,10}code[^<]{0,5}:?\s{0,5}1006`),
		code:        "CF_1006",
		category:    BlockAccessDenied,
		description: "Cloudflare access denied",
	},
	{
		pattern:     regexp.MustCompile(`(?i)error[^<]{0,10}code[^<]{0,5}:?\s{0,5}1007`),
		code:        "CF_1007",
		category:    BlockAccessDenied,
		description: "Cloudflare access denied",
	},
	{
		pattern:     regexp.MustCompile(`(?i)error[^<]{0,10}code[^<]{0,5}:?\s{0,5}1008`),
		code:        "CF_1008",
		category:    BlockAccessDenied,
		description: "Cloudflare access denied",
	},
	{
		pattern:     regexp.MustCompile(`(?i)error[^<]{0,10}code[^<]{0,5}:?\s{0,5}1009`),
		code:        "CF_1009",
		category:    BlockGeoBlocked,
		description: "Cloudflare geo-restriction",
	},
	{
		pattern:     regexp.MustCompile(`(?i)error[^<]{0,10}code[^<]{0,5}:?\s{0,5}1010`),
		code:        "CF_1010",
		category:    BlockAccessDenied,
		description: "Cloudflare browser signature rejected",
	},
	{
		pattern:     regexp.MustCompile(`(?i)error[^<]{0,10}code[^<]{0,5}:?\s{0,5}1012`),
		code:        "CF_1012",
		category:    BlockAccessDenied,
		description: "Cloudflare access denied",
	},

	// Generic patterns (less specific, checked after Cloudflare codes)
	{
		pattern:     regexp.MustCompile(`(?i)access\s{1,5}denied`),
		code:        "ACCESS_DENIED",
		category:    BlockAccessDenied,
		description: "Generic access denied",
	},
	{
		pattern:     regexp.MustCompile(`(?i)rate\s{0,3}limit`),
		code:        "RATE_LIMITED",
		category:    BlockRateLimit,
		description: "Generic rate limit",
	},
	{
		pattern:     regexp.MustCompile(`(?i)too\s{1,5}many\s{1,5}requests`),
		code:        "TOO_MANY_REQUESTS",
		category:    BlockRateLimit,
		description: "Too many requests",
	},
	{
		pattern:     regexp.MustCompile(`(?i)you\s{1,5}(have\s{1,5}been\s{1,5})?blocked`),
		code:        "BLOCKED",
		category:    BlockAccessDenied,
		description: "Request blocked",
	},
}

// BlockInfo describes a classified block page.
type BlockInfo struct {
	Code        string
	Category    BlockCategory
	Description string
}

// ClassifyBlockPage checks page markup for block and rate-limit pages.
// The body is truncated to maxBodyLenForRegex before matching.
func ClassifyBlockPage(html string) (BlockInfo, bool) {
	if len(html) > maxBodyLenForRegex {
		html = html[:maxBodyLenForRegex]
	}

	for _, p := range blockPatterns {
		if p.pattern.MatchString(html) {
			// First match wins, patterns are ordered by specificity
			return BlockInfo{
				Code:        p.code,
				Category:    p.category,
				Description: p.description,
			}, true
		}
	}

	// A Cloudflare interstitial without a specific error code still counts
	lower := strings.ToLower(html)
	if strings.Contains(lower, "cloudflare") && strings.Contains(lower, "sorry, you have been blocked") {
		return BlockInfo{
			Code:        "CF_BLOCK",
			Category:    BlockAccessDenied,
			Description: "Cloudflare block page",
		}, true
	}

	return BlockInfo{}, false
}

// BlockPage classifies the snapshot markup and returns the result as a
// finding. An unblocked page yields no findings.
func BlockPage(snap Snapshot) []report.Finding {
	info, ok := ClassifyBlockPage(snap.HTML)
	if !ok {
		return []report.Finding{}
	}
	return []report.Finding{{
		Label:    "Block page: " + string(info.Category),
		Evidence: info.Code + " " + info.Description,
	}}
}
