package intercept

import (
	"errors"
	"strings"
	"testing"

	"github.com/ysmood/gson"
)

// fakePage records hook installation and lets tests fail either step.
type fakePage struct {
	exposeErr  error
	evalErr    error
	exposed    map[string]func(gson.JSON) (interface{}, error)
	scripts    []string
	stopped    bool
	hookPulled bool
}

func newFakePage() *fakePage {
	return &fakePage{exposed: make(map[string]func(gson.JSON) (interface{}, error))}
}

func (f *fakePage) Expose(name string, fn func(gson.JSON) (interface{}, error)) (func() error, error) {
	if f.exposeErr != nil {
		return nil, f.exposeErr
	}
	f.exposed[name] = fn
	return func() error {
		f.stopped = true
		return nil
	}, nil
}

func (f *fakePage) EvalOnNewDocument(js string) (func() error, error) {
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	f.scripts = append(f.scripts, js)
	return func() error {
		f.hookPulled = true
		return nil
	}, nil
}

// report simulates the in-page hook calling the exposed binding.
func (f *fakePage) report(t *testing.T, payload string) {
	t.Helper()
	fn, ok := f.exposed[BindingName]
	if !ok {
		t.Fatalf("binding %s not exposed", BindingName)
	}
	if _, err := fn(gson.New(payload)); err != nil {
		t.Fatalf("binding returned error: %v", err)
	}
}

func TestMonitorAttach_InstallsHooks(t *testing.T) {
	ic := newTestInterceptor(t)
	m := NewMonitor(ic)
	page := newFakePage()

	if err := m.Attach(page, "https://example.com/"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if !m.Attached() {
		t.Error("Attached() = false after successful attach")
	}
	if len(page.scripts) != 1 {
		t.Fatalf("injected scripts = %d, want 1", len(page.scripts))
	}

	script := page.scripts[0]
	for _, want := range []string{BindingName, "window.fetch", "XMLHttpRequest", "__prHooksInstalled"} {
		if !strings.Contains(script, want) {
			t.Errorf("hook script missing %q", want)
		}
	}
}

func TestMonitorAttach_RestrictedPage(t *testing.T) {
	ic := newTestInterceptor(t)
	m := NewMonitor(ic)
	page := newFakePage()

	err := m.Attach(page, "chrome://settings")
	if err == nil {
		t.Fatal("Attach() on chrome:// page succeeded, want error")
	}
	if len(page.exposed) != 0 || len(page.scripts) != 0 {
		t.Error("Attach() touched the page despite the restricted URL")
	}
}

func TestMonitorAttach_BindingFailure(t *testing.T) {
	ic := newTestInterceptor(t)
	m := NewMonitor(ic)
	page := newFakePage()
	page.exposeErr = errors.New("target crashed")

	if err := m.Attach(page, "https://example.com/"); err == nil {
		t.Fatal("Attach() succeeded despite binding failure")
	}
	if m.Attached() {
		t.Error("Attached() = true after failed attach")
	}
}

func TestMonitorAttach_InjectionFailureUndoesBinding(t *testing.T) {
	ic := newTestInterceptor(t)
	m := NewMonitor(ic)
	page := newFakePage()
	page.evalErr = errors.New("injection refused")

	if err := m.Attach(page, "https://example.com/"); err == nil {
		t.Fatal("Attach() succeeded despite injection failure")
	}
	if !page.stopped {
		t.Error("binding left installed after injection failure")
	}
}

func TestMonitorSightingFlow(t *testing.T) {
	ic := newTestInterceptor(t)
	m := NewMonitor(ic)
	page := newFakePage()

	if err := m.Attach(page, "https://example.com/"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	page.report(t, `{"method":"POST","url":"https://example.com/api/cart","source":"fetch","timestamp":1700000000000}`)
	page.report(t, `{"method":"GET","url":"https://example.com/style.css","source":"fetch"}`)
	page.report(t, `not json`)
	page.report(t, `{"method":"GET","source":"xhr"}`)

	snap := ic.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot() length = %d, want 1", len(snap))
	}
	if snap[0].Method != "POST" || snap[0].URL != "https://example.com/api/cart" || snap[0].Source != SourceFetch {
		t.Errorf("logged sighting = %+v", snap[0])
	}
}

func TestMonitorSighting_FillsTimestamp(t *testing.T) {
	ic := newTestInterceptor(t)
	m := NewMonitor(ic)
	page := newFakePage()

	if err := m.Attach(page, "https://example.com/"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	page.report(t, `{"method":"GET","url":"https://example.com/api/x","source":"xhr"}`)

	snap := ic.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot() length = %d, want 1", len(snap))
	}
	if snap[0].Timestamp == 0 {
		t.Error("sighting without timestamp was not stamped on arrival")
	}
}

func TestMonitorDetach(t *testing.T) {
	ic := newTestInterceptor(t)
	m := NewMonitor(ic)
	page := newFakePage()

	if err := m.Attach(page, "https://example.com/"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	m.Detach()
	if m.Attached() {
		t.Error("Attached() = true after Detach()")
	}
	if !page.stopped || !page.hookPulled {
		t.Error("Detach() left page hooks installed")
	}

	// Detach is idempotent.
	m.Detach()
}

func TestMonitorOnNavigated_ResetsLog(t *testing.T) {
	ic := newTestInterceptor(t)
	m := NewMonitor(ic)
	page := newFakePage()

	if err := m.Attach(page, "https://example.com/"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	page.report(t, `{"method":"GET","url":"https://example.com/api/old","source":"fetch"}`)
	m.OnNavigated()

	if got := len(ic.Snapshot()); got != 0 {
		t.Errorf("Snapshot() after navigation length = %d, want 0", got)
	}
}
