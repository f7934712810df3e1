// Package signatures provides detection signature loading and management.
package signatures

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Maximum size for remote signatures response (10MB)
const maxRemoteResponseSize = 10 * 1024 * 1024

// ReloadStats contains statistics about signature reloads.
type ReloadStats struct {
	LastReloadTime     time.Time `json:"lastReloadTime,omitempty"`
	ReloadCount        int64     `json:"reloadCount"`
	LastError          error     `json:"-"`
	LastErrorStr       string    `json:"lastError,omitempty"`
	RemoteSuccesses    int64     `json:"remoteSuccesses,omitempty"`
	RemoteFailures     int64     `json:"remoteFailures,omitempty"`
	LastRemoteFetch    time.Time `json:"lastRemoteFetch,omitempty"`
	LastRemoteError    error     `json:"-"`
	LastRemoteErrorStr string    `json:"lastRemoteError,omitempty"`
}

// Manager provides hot-reload capable signature management.
// It maintains embedded default tables and optionally watches an external
// file for runtime updates. Reads are lock-free using atomic.Value.
type Manager struct {
	embedded     *Signatures  // Compiled-in defaults (immutable)
	current      atomic.Value // *Signatures - atomic swap for lock-free reads
	externalPath string       // Path to external override file
	watcher      *fsnotify.Watcher
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex // Protects reload operations
	stats        ReloadStats
	closed       bool

	// Remote fetch fields
	remoteURL       string
	refreshInterval time.Duration
	httpClient      *http.Client
	refreshTicker   *time.Ticker
}

// NewManager creates a new signatures Manager.
// If externalPath is empty, only embedded tables are used.
// If hotReload is true and externalPath is set, file changes trigger reloads.
func NewManager(externalPath string, hotReload bool) (*Manager, error) {
	return NewManagerWithRemote(externalPath, hotReload, "", 0)
}

// NewManagerWithRemote creates a Manager with optional remote fetch support.
// If remoteURL is set and refreshInterval > 0, tables are periodically fetched
// from the URL. File tables take priority over remote; remote supplements if
// no file is configured.
func NewManagerWithRemote(externalPath string, hotReload bool, remoteURL string, refreshInterval time.Duration) (*Manager, error) {
	m := &Manager{
		embedded:        Get(),
		externalPath:    externalPath,
		stopCh:          make(chan struct{}),
		remoteURL:       remoteURL,
		refreshInterval: refreshInterval,
	}

	if remoteURL != "" {
		m.httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	// Start with embedded tables
	m.current.Store(m.embedded)

	if externalPath != "" {
		if err := m.loadExternal(); err != nil {
			log.Warn().
				Err(err).
				Str("path", externalPath).
				Msg("Failed to load external signatures, using embedded defaults")
		} else {
			log.Info().
				Str("path", externalPath).
				Msg("Loaded external signatures file")
		}

		if hotReload {
			if err := m.startWatcher(); err != nil {
				log.Warn().
					Err(err).
					Str("path", externalPath).
					Msg("Failed to start file watcher, hot-reload disabled")
			} else {
				log.Info().
					Str("path", externalPath).
					Msg("Hot-reload enabled for signatures file")
			}
		}
	}

	if remoteURL != "" && refreshInterval > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if sig, err := m.loadRemote(ctx); err != nil {
			m.mu.Lock()
			m.stats.RemoteFailures++
			m.stats.LastRemoteError = err
			m.stats.LastRemoteFetch = time.Now()
			m.mu.Unlock()
			log.Warn().
				Err(err).
				Str("url", remoteURL).
				Msg("Initial remote signature fetch failed, using current tables")
		} else {
			m.mu.Lock()
			m.stats.RemoteSuccesses++
			m.stats.LastRemoteFetch = time.Now()
			m.stats.LastRemoteError = nil
			m.mu.Unlock()
			// Only use remote if no external file is loaded
			if externalPath == "" {
				m.current.Store(m.mergeWithEmbedded(sig))
				log.Info().
					Str("url", remoteURL).
					Msg("Loaded signatures from remote URL")
			} else {
				log.Debug().
					Str("url", remoteURL).
					Msg("Remote signatures fetched but file signatures take priority")
			}
		}

		m.startRemoteRefresh()
	}

	return m, nil
}

// Get returns the current Signatures instance.
// This is a lock-free O(1) operation safe for concurrent use.
func (m *Manager) Get() *Signatures {
	return m.current.Load().(*Signatures)
}

// Reload manually reloads signatures from the external file.
// Returns an error if no external path is configured or reload fails.
// On failure, the previous tables remain in use.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.externalPath == "" {
		return fmt.Errorf("no external signatures path configured")
	}

	return m.loadExternalLocked()
}

// Stats returns the current reload statistics.
func (m *Manager) Stats() ReloadStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats
	if stats.LastError != nil {
		stats.LastErrorStr = stats.LastError.Error()
	}
	if stats.LastRemoteError != nil {
		stats.LastRemoteErrorStr = stats.LastRemoteError.Error()
	}
	return stats
}

// Close stops the file watcher and cleans up resources.
// Safe to call multiple times.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

// loadExternal loads signatures from the external file.
func (m *Manager) loadExternal() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadExternalLocked()
}

// loadExternalLocked loads signatures from the external file.
// Must be called with m.mu held.
func (m *Manager) loadExternalLocked() error {
	data, err := os.ReadFile(m.externalPath)
	if err != nil {
		m.stats.LastError = err
		return fmt.Errorf("failed to read signatures file: %w", err)
	}

	sig, err := parseAndValidate(data)
	if err != nil {
		m.stats.LastError = err
		return fmt.Errorf("failed to parse signatures file: %w", err)
	}

	// Merge with embedded tables (external overrides, embedded fills gaps)
	m.current.Store(m.mergeWithEmbedded(sig))

	m.stats.LastReloadTime = time.Now()
	m.stats.ReloadCount++
	m.stats.LastError = nil

	log.Info().
		Int64("reload_count", m.stats.ReloadCount).
		Msg("Signatures hot-reloaded successfully")

	return nil
}

// parseAndValidate parses YAML data and validates the signatures.
func parseAndValidate(data []byte) (*Signatures, error) {
	var s Signatures
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return &s, nil
}

// loadRemote fetches signatures from the remote URL.
func (m *Manager) loadRemote(ctx context.Context) (*Signatures, error) {
	if m.remoteURL == "" {
		return nil, fmt.Errorf("no remote URL configured")
	}
	if m.httpClient == nil {
		return nil, fmt.Errorf("HTTP client not initialized")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.remoteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", "PageRecon-Go/1.0")
	req.Header.Set("Accept", "application/yaml, application/x-yaml, text/yaml, text/x-yaml, */*")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	// Limit response size to prevent memory exhaustion
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	sig, err := parseAndValidate(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse remote signatures: %w", err)
	}

	return sig, nil
}

// startRemoteRefresh starts the periodic remote signature refresh loop.
func (m *Manager) startRemoteRefresh() {
	if m.remoteURL == "" || m.refreshInterval <= 0 {
		return
	}

	m.refreshTicker = time.NewTicker(m.refreshInterval)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if m.refreshTicker != nil {
				m.refreshTicker.Stop()
			}
		}()

		log.Info().
			Str("url", m.remoteURL).
			Dur("interval", m.refreshInterval).
			Msg("Started remote signature refresh loop")

		for {
			select {
			case <-m.stopCh:
				log.Debug().Msg("Remote signature refresh loop stopped")
				return
			case <-m.refreshTicker.C:
				m.refreshFromRemote()
			}
		}
	}()
}

// refreshFromRemote fetches signatures from remote and updates if successful.
func (m *Manager) refreshFromRemote() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sig, err := m.loadRemote(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.LastRemoteFetch = time.Now()

	if err != nil {
		m.stats.RemoteFailures++
		m.stats.LastRemoteError = err
		log.Warn().
			Err(err).
			Str("url", m.remoteURL).
			Int64("failures", m.stats.RemoteFailures).
			Msg("Remote signature fetch failed, keeping previous tables")
		return
	}

	m.stats.RemoteSuccesses++
	m.stats.LastRemoteError = nil

	// File tables take priority over remote
	if m.externalPath == "" {
		m.current.Store(m.mergeWithEmbedded(sig))
		log.Info().
			Int64("successes", m.stats.RemoteSuccesses).
			Msg("Remote signatures refreshed successfully")
	} else {
		log.Debug().
			Str("url", m.remoteURL).
			Msg("Remote signatures fetched but file signatures take priority")
	}
}

// Validate checks that the Signatures have minimum required tables.
func (s *Signatures) Validate() error {
	// The relevance filter and the scanner cannot run on fully empty tables
	if len(s.WindowProperties) == 0 && len(s.AssetSuffixes) == 0 && len(s.VendorHosts) == 0 {
		return fmt.Errorf("signatures must define window_properties, asset_suffixes, or vendor_hosts")
	}
	return nil
}

// mergeWithEmbedded creates a new Signatures by merging external with embedded.
// External tables take precedence; embedded fills in missing ones.
func (m *Manager) mergeWithEmbedded(external *Signatures) *Signatures {
	merged := &Signatures{}

	pickProps := func(ext, emb []WindowProperty) []WindowProperty {
		if len(ext) > 0 {
			return ext
		}
		return emb
	}
	pickPatterns := func(ext, emb []Pattern) []Pattern {
		if len(ext) > 0 {
			return ext
		}
		return emb
	}
	pickStrings := func(ext, emb []string) []string {
		if len(ext) > 0 {
			return ext
		}
		return emb
	}

	merged.WindowProperties = pickProps(external.WindowProperties, m.embedded.WindowProperties)
	merged.AntiBotCookies = pickPatterns(external.AntiBotCookies, m.embedded.AntiBotCookies)
	merged.AntiBotMarkers = pickPatterns(external.AntiBotMarkers, m.embedded.AntiBotMarkers)
	merged.Technology = pickPatterns(external.Technology, m.embedded.Technology)
	merged.TechnologyCookies = pickPatterns(external.TechnologyCookies, m.embedded.TechnologyCookies)
	merged.AssetSuffixes = pickStrings(external.AssetSuffixes, m.embedded.AssetSuffixes)
	merged.VendorHosts = pickStrings(external.VendorHosts, m.embedded.VendorHosts)
	merged.PaginationMarkers = pickPatterns(external.PaginationMarkers, m.embedded.PaginationMarkers)
	merged.PaginationParams = pickStrings(external.PaginationParams, m.embedded.PaginationParams)
	merged.AuthCookies = pickPatterns(external.AuthCookies, m.embedded.AuthCookies)
	merged.AuthMarkers = pickPatterns(external.AuthMarkers, m.embedded.AuthMarkers)
	merged.SPAMarkers = pickStrings(external.SPAMarkers, m.embedded.SPAMarkers)

	return merged
}

// startWatcher starts the file watcher for hot-reload.
func (m *Manager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(m.externalPath); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch file: %w", err)
	}

	m.watcher = watcher

	m.wg.Add(1)
	go m.watchFile()

	return nil
}

// watchFile watches for file changes and triggers reloads.
func (m *Manager) watchFile() {
	defer m.wg.Done()

	// Debounce timer to coalesce rapid file changes
	const debounceDelay = 100 * time.Millisecond
	var debounceTimer *time.Timer
	var debouncing bool

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}

			// Only reload on write or create events
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			log.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("Signatures file changed")

			if debouncing {
				if !debounceTimer.Stop() {
					select {
					case <-debounceTimer.C:
					default:
					}
				}
				debounceTimer.Reset(debounceDelay)
			} else {
				debouncing = true
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					if err := m.Reload(); err != nil {
						log.Warn().
							Err(err).
							Str("path", m.externalPath).
							Msg("Hot-reload failed, keeping previous signatures")
					}
					debouncing = false
				})
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("File watcher error")

		case <-m.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}
