package intercept

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ysmood/gson"

	"github.com/Rorqualx/pagerecon-go/internal/security"
	"github.com/Rorqualx/pagerecon-go/internal/types"
)

// Page is the subset of a browser page the monitor needs: exposing a
// callback to page scripts and registering a script that runs before every
// new document. Implemented by *rod.Page.
type Page interface {
	Expose(name string, fn func(gson.JSON) (interface{}, error)) (func() error, error)
	EvalOnNewDocument(js string) (func() error, error)
}

// Monitor instruments one page. It installs the request hooks, receives
// sightings through the exposed binding, and owns the interceptor log for
// that page. Attachment failure is the one error this layer surfaces;
// malformed sightings are dropped silently.
type Monitor struct {
	interceptor *Interceptor

	mu          sync.Mutex
	attached    bool
	stopBinding func() error
	removeHook  func() error
}

// NewMonitor creates a monitor with a fresh interceptor log.
func NewMonitor(interceptor *Interceptor) *Monitor {
	return &Monitor{interceptor: interceptor}
}

// Attach installs the binding and the hook script into the page. pageURL is
// the page's current or intended location; privileged schemes are rejected
// before touching the page.
func (m *Monitor) Attach(p Page, pageURL string) error {
	if security.IsRestrictedPageURL(pageURL) {
		return types.NewRestrictedPageError(pageURL)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.attached {
		return nil
	}

	stop, err := p.Expose(BindingName, m.onSighting)
	if err != nil {
		return types.NewBindingError(pageURL, err)
	}

	remove, err := p.EvalOnNewDocument(hookScript)
	if err != nil {
		if stop != nil {
			_ = stop()
		}
		return types.NewInjectionError(pageURL, err)
	}

	m.attached = true
	m.stopBinding = stop
	m.removeHook = remove
	return nil
}

// Attached reports whether the monitor is installed in a page.
func (m *Monitor) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attached
}

// Interceptor returns the log owner for this page.
func (m *Monitor) Interceptor() *Interceptor {
	return m.interceptor
}

// OnNavigated resets the log so the new document starts a fresh observation
// window.
func (m *Monitor) OnNavigated() {
	m.interceptor.Reset()
}

// Detach removes the binding and the hook registration. Uninstall errors are
// ignored; the page may already be gone.
func (m *Monitor) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.attached {
		return
	}
	m.attached = false

	if m.stopBinding != nil {
		_ = m.stopBinding()
		m.stopBinding = nil
	}
	if m.removeHook != nil {
		_ = m.removeHook()
		m.removeHook = nil
	}
}

// onSighting decodes one reported request. The binding payload is the JSON
// string produced by the hook script.
func (m *Monitor) onSighting(payload gson.JSON) (interface{}, error) {
	var s Sighting
	if err := json.Unmarshal([]byte(payload.Str()), &s); err != nil {
		return nil, nil
	}
	if s.URL == "" {
		return nil, nil
	}
	if s.Timestamp == 0 {
		s.Timestamp = time.Now().UnixMilli()
	}
	m.interceptor.Record(s)
	return nil, nil
}
