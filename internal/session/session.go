// Package session manages monitored browser pages. A session keeps one page
// instrumented across navigations so repeated analyses observe the page's
// accumulated state (cookies, storage, the running monitor log) instead of a
// cold start each time.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Rorqualx/pagerecon-go/internal/browser"
	"github.com/Rorqualx/pagerecon-go/internal/channel"
	"github.com/Rorqualx/pagerecon-go/internal/config"
	"github.com/Rorqualx/pagerecon-go/internal/detect"
	"github.com/Rorqualx/pagerecon-go/internal/intercept"
	"github.com/Rorqualx/pagerecon-go/internal/metrics"
	"github.com/Rorqualx/pagerecon-go/internal/report"
	"github.com/Rorqualx/pagerecon-go/internal/scan"
	"github.com/Rorqualx/pagerecon-go/internal/signatures"
	"github.com/Rorqualx/pagerecon-go/internal/types"
)

// scanTimeout bounds the window property probes so the answer lands inside
// the query timeout instead of racing it.
const scanTimeout = 2500 * time.Millisecond

// Session is one monitored page. It owns the page's monitor, the broadcast
// transport its queries travel over, and the responder that answers them.
type Session struct {
	id        string
	Browser   *rod.Browser
	Page      *rod.Page
	CreatedAt time.Time

	lastUsed atomic.Int64 // Unix nano timestamp for lock-free access

	bus       *channel.Bus
	responder *channel.Responder
	monitor   *intercept.Monitor
	scanner   *scan.Scanner

	reportMu   sync.RWMutex
	lastReport *report.Report

	// Set by the manager when auto-analysis is enabled. Called after each
	// document load event. The watcher goroutine reads it concurrently with
	// the manager's write, so access goes through loadMu.
	loadMu sync.Mutex
	onLoad func(*Session)

	watchCancel context.CancelFunc
	watchDone   chan struct{}

	closeOnce sync.Once
}

// NewSession instruments a page and starts its navigation watcher. The page
// should be freshly created; the monitor's hooks install before the first
// real document loads.
func NewSession(id string, brow *rod.Browser, page *rod.Page, sigs *signatures.Manager) (*Session, error) {
	s := &Session{
		id:        id,
		Browser:   brow,
		Page:      page,
		CreatedAt: time.Now(),
		bus:       channel.NewBus(),
		monitor:   intercept.NewMonitor(intercept.New(sigs)),
		scanner:   scan.New(sigs),
	}
	s.lastUsed.Store(s.CreatedAt.UnixNano())

	if err := s.EnsureMonitor(); err != nil {
		return nil, err
	}

	s.responder = channel.NewResponder(s.bus)
	s.responder.Handle(channel.ActionGetInterceptedRequests, func() (any, error) {
		return s.monitor.Interceptor().Summary(), nil
	})
	s.responder.Handle(channel.ActionGetWindowProperties, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
		defer cancel()
		return s.scanner.Scan(ctx, scan.NewPageProber(s.Page)), nil
	})

	s.startWatcher()
	return s, nil
}

// ID identifies the session. Doubles as the coalescing key for overlapping
// analyses of the same page.
func (s *Session) ID() string { return s.id }

// Transport returns the broadcast channel this session's monitor answers on.
func (s *Session) Transport() channel.Transport { return s.bus }

// EnsureMonitor installs the monitor if it is not already attached.
func (s *Session) EnsureMonitor() error {
	if s.monitor.Attached() {
		return nil
	}
	return s.monitor.Attach(s.Page, s.pageURL())
}

// Navigate loads url in the session page and waits for the load event. The
// monitor log resets through the navigation watcher when the new document
// commits.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.Touch()
	page := s.Page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

// Snapshot captures the page state the local detection passes run over.
func (s *Session) Snapshot(ctx context.Context) detect.Snapshot {
	return detect.CaptureSnapshot(ctx, s.Page)
}

// LastReport returns the most recent report stored for this session, or
// ErrNoReport if no analysis has completed yet.
func (s *Session) LastReport() (*report.Report, error) {
	s.reportMu.RLock()
	defer s.reportMu.RUnlock()
	if s.lastReport == nil {
		return nil, types.ErrNoReport
	}
	return s.lastReport, nil
}

// StoreReport records the result of a completed analysis.
func (s *Session) StoreReport(rep *report.Report) {
	s.reportMu.Lock()
	s.lastReport = rep
	s.reportMu.Unlock()
}

// Touch updates the LastUsed timestamp atomically. Keeps the session alive
// during long operations.
func (s *Session) Touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// LastUsedTime returns the last used time as a time.Time.
func (s *Session) LastUsedTime() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// SetLoadHook installs fn to run after each document load event.
func (s *Session) SetLoadHook(fn func(*Session)) {
	s.loadMu.Lock()
	s.onLoad = fn
	s.loadMu.Unlock()
}

// loadHook returns the current load hook, nil when none is installed.
func (s *Session) loadHook() func(*Session) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.onLoad
}

// Close tears down the session's instrumentation and page. The browser is
// the caller's to release; sessions never own pool membership.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.watchCancel != nil {
			s.watchCancel()
			select {
			case <-s.watchDone:
			case <-time.After(2 * time.Second):
				log.Warn().Str("session_id", s.id).Msg("Navigation watcher did not stop promptly")
			}
		}
		if s.responder != nil {
			s.responder.Close()
		}
		if s.monitor != nil {
			s.monitor.Detach()
		}
		if s.Page != nil {
			if err := s.Page.Close(); err != nil {
				log.Debug().Err(err).Str("session_id", s.id).Msg("Error closing session page")
			}
		}
	})
}

// pageURL reads the page's current location, empty when unavailable.
func (s *Session) pageURL() string {
	info, err := s.Page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// startWatcher resets the monitor log when the main frame commits a new
// document and fires the load hook when one finishes loading.
func (s *Session) startWatcher() {
	ctx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	s.watchDone = make(chan struct{})

	page := s.Page.Context(ctx)
	go func() {
		defer close(s.watchDone)
		page.EachEvent(
			func(e *proto.PageFrameNavigated) {
				if e.Frame.ParentID == "" {
					s.monitor.OnNavigated()
					log.Debug().
						Str("session_id", s.id).
						Str("url", e.Frame.URL).
						Msg("Navigation committed, monitor log reset")
				}
			},
			func(e *proto.PageLoadEventFired) {
				if fn := s.loadHook(); fn != nil {
					fn(s)
				}
			},
		)()
	}()
}

// Manager handles session lifecycle and cleanup. It maintains a map of
// active sessions and periodically cleans up expired ones.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	config   *config.Config
	pool     *browser.Pool // Pool reference for returning browsers on cleanup
	sigs     *signatures.Manager
	onLoad   func(*Session)
	stopCh   chan struct{}
	wg       sync.WaitGroup // Track background goroutines for clean shutdown
}

// NewManager creates a new session manager and starts its cleanup routine.
// The pool parameter is used to return browsers when sessions are destroyed.
func NewManager(cfg *config.Config, pool *browser.Pool, sigs *signatures.Manager) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		config:   cfg,
		pool:     pool,
		sigs:     sigs,
		stopCh:   make(chan struct{}),
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.cleanupRoutine()
	}()

	log.Info().
		Dur("ttl", cfg.SessionTTL).
		Dur("cleanup_interval", cfg.SessionCleanupInterval).
		Int("max_sessions", cfg.MaxSessions).
		Msg("Session manager initialized")

	return m
}

// SetLoadHook installs fn to run after each document load in every session
// created from now on. Used to trigger automatic analysis on navigation.
func (m *Manager) SetLoadHook(fn func(*Session)) {
	m.mu.Lock()
	m.onLoad = fn
	m.mu.Unlock()
}

// Create creates and registers a new monitored session with the given ID.
// The browser is returned to the pool on any error.
func (m *Manager) Create(id string, brow *rod.Browser) (*Session, error) {
	m.mu.RLock()
	onLoad := m.onLoad
	m.mu.RUnlock()

	release := func() {
		if m.pool != nil {
			m.pool.Release(brow)
		}
	}

	// Cheap checks before spending a page on a doomed create
	m.mu.RLock()
	_, exists := m.sessions[id]
	full := len(m.sessions) >= m.config.MaxSessions
	m.mu.RUnlock()
	if exists {
		release()
		return nil, types.ErrSessionAlreadyExists
	}
	if full {
		release()
		return nil, types.ErrTooManySessions
	}

	page, err := browser.NewStealthPage(brow)
	if err != nil {
		release()
		return nil, err
	}

	sess, err := NewSession(id, brow, page, m.sigs)
	if err != nil {
		_ = page.Close()
		release()
		return nil, err
	}
	sess.SetLoadHook(onLoad)

	if err := m.Register(sess); err != nil {
		sess.Close()
		release()
		return nil, err
	}

	log.Info().
		Str("session_id", id).
		Int("total_sessions", m.Count()).
		Msg("Session created")

	return sess, nil
}

// Register adds an already-built session to the manager. Fails when the ID
// is taken or the session limit is reached.
func (m *Manager) Register(sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sess.ID()]; exists {
		return types.ErrSessionAlreadyExists
	}
	if len(m.sessions) >= m.config.MaxSessions {
		return types.ErrTooManySessions
	}

	m.sessions[sess.ID()] = sess
	metrics.UpdateSessionMetrics(len(m.sessions))
	return nil
}

// Get retrieves a session by ID and refreshes its LastUsed timestamp.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	session, exists := m.sessions[id]
	m.mu.RUnlock()

	if !exists {
		return nil, types.ErrSessionNotFound
	}

	session.Touch()
	return session, nil
}

// Destroy removes a session and closes its resources.
// The browser is returned to the pool after cleanup.
func (m *Manager) Destroy(id string) error {
	m.mu.Lock()
	session, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
		metrics.UpdateSessionMetrics(len(m.sessions))
	}
	m.mu.Unlock()

	if !exists {
		return types.ErrSessionNotFound
	}

	session.Close()

	if session.Browser != nil && m.pool != nil {
		m.pool.Release(session.Browser)
	}

	log.Info().
		Str("session_id", id).
		Dur("lifetime", time.Since(session.CreatedAt)).
		Msg("Session destroyed")

	return nil
}

// List returns all active session IDs.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// cleanupRoutine periodically removes expired sessions.
func (m *Manager) cleanupRoutine() {
	ticker := time.NewTicker(m.config.SessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpired()
		case <-m.stopCh:
			return
		}
	}
}

// cleanupExpired removes sessions that have exceeded their TTL.
// Two-phase: collect under lock, then tear down outside it.
func (m *Manager) cleanupExpired() {
	now := time.Now()

	m.mu.Lock()
	var expired []*Session
	for id, session := range m.sessions {
		if now.Sub(session.LastUsedTime()) > m.config.SessionTTL {
			expired = append(expired, session)
			delete(m.sessions, id)
		}
	}
	remaining := len(m.sessions)
	metrics.UpdateSessionMetrics(remaining)
	m.mu.Unlock()

	if len(expired) == 0 {
		return
	}

	eg := new(errgroup.Group)
	eg.SetLimit(4) // Limit concurrent cleanups

	for _, session := range expired {
		sess := session
		eg.Go(func() error {
			sess.Close()
			if sess.Browser != nil && m.pool != nil {
				m.pool.Release(sess.Browser)
			}
			log.Info().
				Str("session_id", sess.ID()).
				Dur("lifetime", now.Sub(sess.CreatedAt)).
				Msg("Session expired and cleaned up")
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		log.Error().Err(err).Msg("Session cleanup encountered errors")
	}

	log.Debug().
		Int("expired_count", len(expired)).
		Int("remaining", remaining).
		Msg("Session cleanup completed")
}

// Close shuts down the session manager and cleans up all sessions,
// returning their browsers to the pool.
func (m *Manager) Close() error {
	close(m.stopCh)
	m.wg.Wait()

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.sessions = nil
	m.mu.Unlock()

	if len(sessions) == 0 {
		log.Info().Msg("Session manager closed")
		return nil
	}

	eg := new(errgroup.Group)
	eg.SetLimit(4) // Limit concurrent cleanups

	for _, session := range sessions {
		sess := session
		eg.Go(func() error {
			sess.Close()
			if sess.Browser != nil && m.pool != nil {
				m.pool.Release(sess.Browser)
			}
			log.Debug().Str("session_id", sess.ID()).Msg("Session closed during shutdown")
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		log.Error().Err(err).Msg("Session shutdown encountered errors")
	}

	metrics.UpdateSessionMetrics(0)
	log.Info().Msg("Session manager closed")
	return nil
}
