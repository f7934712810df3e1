// Package detect implements the per-analysis collector: local detection
// passes over a one-shot page snapshot plus the two correlated queries to the
// page monitor.
package detect

import (
	"context"

	"github.com/go-rod/rod"
)

// Cookie carries the name and flags of one page cookie. Values are never
// captured; the inventory is names-only by design of the report.
type Cookie struct {
	Name     string
	Secure   bool
	HTTPOnly bool
}

// Snapshot is the one-shot page state the local passes run over. It is taken
// once at collection time; the passes never touch the live page.
type Snapshot struct {
	URL     string
	HTML    string
	Cookies []Cookie
}

// CaptureSnapshot reads the rendered markup and cookie set of a live page.
// Partial failures degrade to empty fields; a snapshot of an unresponsive
// page still produces a well-formed (if empty) report downstream.
func CaptureSnapshot(ctx context.Context, page *rod.Page) Snapshot {
	p := page.Context(ctx)

	var snap Snapshot
	if info, err := p.Info(); err == nil {
		snap.URL = info.URL
	}
	if html, err := p.HTML(); err == nil {
		snap.HTML = html
	}
	if cookies, err := p.Cookies(nil); err == nil {
		snap.Cookies = make([]Cookie, 0, len(cookies))
		for _, c := range cookies {
			snap.Cookies = append(snap.Cookies, Cookie{
				Name:     c.Name,
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
			})
		}
	}
	return snap
}
