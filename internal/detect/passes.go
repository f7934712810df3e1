package detect

import (
	"sort"
	"strings"

	"github.com/Rorqualx/pagerecon-go/internal/report"
	"github.com/Rorqualx/pagerecon-go/internal/signatures"
)

// AntiBot looks for anti-automation vendors in cookie names and markup.
func AntiBot(snap Snapshot, sig *signatures.Signatures) []report.Finding {
	findings := []report.Finding{}
	seen := map[string]bool{}

	for _, c := range snap.Cookies {
		name := strings.ToLower(c.Name)
		for _, p := range sig.AntiBotCookies {
			if strings.Contains(name, strings.ToLower(p.Match)) && !seen[p.Label] {
				seen[p.Label] = true
				findings = append(findings, report.Finding{
					Label:    p.Label,
					Evidence: "cookie " + c.Name,
				})
			}
		}
	}

	html := strings.ToLower(snap.HTML)
	for _, p := range sig.AntiBotMarkers {
		if strings.Contains(html, strings.ToLower(p.Match)) && !seen[p.Label] {
			seen[p.Label] = true
			findings = append(findings, report.Finding{
				Label:    p.Label,
				Evidence: "markup contains " + p.Match,
			})
		}
	}

	return findings
}

// Technology looks for CMS, shop-system, and framework markers in markup and
// cookie names.
func Technology(snap Snapshot, sig *signatures.Signatures) []report.Finding {
	findings := []report.Finding{}
	seen := map[string]bool{}

	html := strings.ToLower(snap.HTML)
	for _, p := range sig.Technology {
		if strings.Contains(html, strings.ToLower(p.Match)) && !seen[p.Label] {
			seen[p.Label] = true
			findings = append(findings, report.Finding{
				Label:    p.Label,
				Evidence: "markup contains " + p.Match,
			})
		}
	}

	for _, c := range snap.Cookies {
		name := strings.ToLower(c.Name)
		for _, p := range sig.TechnologyCookies {
			if strings.Contains(name, strings.ToLower(p.Match)) && !seen[p.Label] {
				seen[p.Label] = true
				findings = append(findings, report.Finding{
					Label:    p.Label,
					Evidence: "cookie " + c.Name,
				})
			}
		}
	}

	return findings
}

// Pagination looks for paging conventions: markup markers and link query
// parameters.
func Pagination(snap Snapshot, sig *signatures.Signatures) []report.Finding {
	findings := []report.Finding{}
	seen := map[string]bool{}

	html := strings.ToLower(snap.HTML)
	for _, p := range sig.PaginationMarkers {
		if strings.Contains(html, strings.ToLower(p.Match)) && !seen[p.Label] {
			seen[p.Label] = true
			findings = append(findings, report.Finding{
				Label:    p.Label,
				Evidence: "markup contains " + p.Match,
			})
		}
	}

	for param, href := range linkQueryParams(snap.HTML, sig.PaginationParams) {
		label := "Query parameter ?" + param
		if !seen[label] {
			seen[label] = true
			findings = append(findings, report.Finding{
				Label:    label,
				Evidence: href,
			})
		}
	}

	sort.Slice(findings, func(a, b int) bool { return findings[a].Label < findings[b].Label })
	return findings
}

// Auth looks for authentication surfaces: session-style cookies and login
// markers in markup.
func Auth(snap Snapshot, sig *signatures.Signatures) []report.Finding {
	findings := []report.Finding{}
	seen := map[string]bool{}

	for _, c := range snap.Cookies {
		name := strings.ToLower(c.Name)
		for _, p := range sig.AuthCookies {
			if strings.Contains(name, strings.ToLower(p.Match)) && !seen[p.Label] {
				seen[p.Label] = true
				findings = append(findings, report.Finding{
					Label:    p.Label,
					Evidence: "cookie " + c.Name,
				})
			}
		}
	}

	html := strings.ToLower(snap.HTML)
	for _, p := range sig.AuthMarkers {
		if strings.Contains(html, strings.ToLower(p.Match)) && !seen[p.Label] {
			seen[p.Label] = true
			findings = append(findings, report.Finding{
				Label:    p.Label,
				Evidence: "markup contains " + p.Match,
			})
		}
	}

	return findings
}

// CookieNames returns the deduplicated, sorted names of all page cookies.
// Names only; values stay in the browser.
func CookieNames(snap Snapshot) []string {
	seen := map[string]bool{}
	names := []string{}
	for _, c := range snap.Cookies {
		if !seen[c.Name] {
			seen[c.Name] = true
			names = append(names, c.Name)
		}
	}
	sort.Strings(names)
	return names
}
