// Package scan implements the window signature scanner: presence probes for
// known page globals that reveal frameworks, vendors, and defenses.
package scan

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Rorqualx/pagerecon-go/internal/signatures"
)

// Prober evaluates one boolean probe expression in the page's script context.
// Implemented for live pages by PageProber; tests substitute fakes.
type Prober interface {
	Probe(ctx context.Context, expr string) (bool, error)
}

// Devtools-hook labels for the two bespoke checks. These globals exist on any
// page once the corresponding browser extension is installed, so mere
// presence proves nothing; the checks below require a registered renderer.
const (
	reactHookLabel = "React (renderer registered)"
	vueHookLabel   = "Vue (app registered)"
)

const reactHookExpr = `(function () {
  try {
    var h = window.__REACT_DEVTOOLS_GLOBAL_HOOK__;
    return !!(h && h.renderers && h.renderers.size > 0);
  } catch (e) { return false; }
})()`

const vueHookExpr = `(function () {
  try {
    var h = window.__VUE_DEVTOOLS_GLOBAL_HOOK__;
    return !!(h && (h.Vue || (h.apps && h.apps.length > 0)));
  } catch (e) { return false; }
})()`

// Scanner probes a page for the configured window properties.
type Scanner struct {
	sigs *signatures.Manager
}

// New creates a scanner backed by the given signature tables.
func New(sigs *signatures.Manager) *Scanner {
	return &Scanner{sigs: sigs}
}

// Scan probes every configured property plus the two framework devtools
// hooks. A probe that errors or throws counts as absent; the scan itself
// never fails. The result maps property name to label for present globals.
func (s *Scanner) Scan(ctx context.Context, p Prober) map[string]string {
	found := make(map[string]string)

	for _, wp := range s.sigs.Get().WindowProperties {
		present, err := p.Probe(ctx, presenceExpr(wp.Property))
		if err != nil || !present {
			continue
		}
		found[wp.Property] = wp.Label
	}

	if present, err := p.Probe(ctx, reactHookExpr); err == nil && present {
		found["__REACT_DEVTOOLS_GLOBAL_HOOK__"] = reactHookLabel
	}
	if present, err := p.Probe(ctx, vueHookExpr); err == nil && present {
		found["__VUE_DEVTOOLS_GLOBAL_HOOK__"] = vueHookLabel
	}

	return found
}

// presenceExpr builds the probe for one property. The property name is
// embedded as a quoted string literal, never interpolated into code, and the
// access is guarded so throwing getters count as absent.
func presenceExpr(property string) string {
	quoted := strconv.Quote(property)
	return fmt.Sprintf(`(function () {
  try { return typeof window[%s] !== 'undefined'; } catch (e) { return false; }
})()`, quoted)
}
