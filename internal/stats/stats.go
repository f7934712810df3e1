// Package stats provides domain-level statistics for analysis runs.
package stats

import (
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// maxDomains is the maximum number of domains to track before LRU eviction.
const maxDomains = 10000

// evictionBatchSize is the number of domains to evict at once to reduce eviction overhead.
const evictionBatchSize = 100

// Maximum counter value to prevent overflow (90% of int64 max).
const maxCounterValue int64 = 1 << 62

// DomainStats tracks analysis outcomes for a single domain.
type DomainStats struct {
	mu sync.RWMutex

	// Counters
	AnalysisCount int64 `json:"analysisCount"`
	SuccessCount  int64 `json:"successCount"`
	ErrorCount    int64 `json:"errorCount"`
	BlockedCount  int64 `json:"blockedCount"` // Analyses that landed on a block page

	// Timing (internal, for average calculation)
	totalDurationMs int64

	// Timestamps
	LastAnalyzed time.Time `json:"lastAnalyzed,omitempty"`
	LastBlocked  time.Time `json:"lastBlocked,omitempty"`
	LastAccess   time.Time `json:"-"` // For LRU eviction, not serialized
}

// DomainStatsJSON is the JSON-serializable representation of DomainStats.
type DomainStatsJSON struct {
	AnalysisCount int64     `json:"analysisCount"`
	SuccessCount  int64     `json:"successCount"`
	ErrorCount    int64     `json:"errorCount"`
	BlockedCount  int64     `json:"blockedCount"`
	AvgDurationMs int64     `json:"avgDurationMs"`
	LastAnalyzed  time.Time `json:"lastAnalyzed,omitempty"`
	LastBlocked   time.Time `json:"lastBlocked,omitempty"`
}

// ToJSON converts DomainStats to its JSON-serializable form.
func (s *DomainStats) ToJSON() DomainStatsJSON {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var avgDuration int64
	if s.AnalysisCount > 0 {
		avgDuration = s.totalDurationMs / s.AnalysisCount
	}

	return DomainStatsJSON{
		AnalysisCount: s.AnalysisCount,
		SuccessCount:  s.SuccessCount,
		ErrorCount:    s.ErrorCount,
		BlockedCount:  s.BlockedCount,
		AvgDurationMs: avgDuration,
		LastAnalyzed:  s.LastAnalyzed,
		LastBlocked:   s.LastBlocked,
	}
}

// ErrorRate returns the error rate (0.0-1.0) for this domain.
func (s *DomainStats) ErrorRate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.AnalysisCount == 0 {
		return 0
	}
	return float64(s.ErrorCount) / float64(s.AnalysisCount)
}

// Manager manages statistics for all analyzed domains.
type Manager struct {
	mu      sync.RWMutex
	domains map[string]*DomainStats

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewManager creates a new domain stats manager and starts its background
// cleanup routine.
func NewManager() *Manager {
	m := &Manager{
		domains: make(map[string]*DomainStats),
		stopCh:  make(chan struct{}),
	}

	m.wg.Add(1)
	go m.cleanupRoutine()

	return m
}

// cleanupRoutine periodically removes stale domain entries so domains that
// are no longer analyzed do not accumulate forever.
func (m *Manager) cleanupRoutine() {
	defer m.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupStale(30 * time.Minute)
		case <-m.stopCh:
			return
		}
	}
}

// cleanupStale removes domain stats that haven't been accessed recently.
func (m *Manager) cleanupStale(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var removed int

	for domain, stats := range m.domains {
		stats.mu.RLock()
		lastAccess := stats.LastAccess
		stats.mu.RUnlock()

		if now.Sub(lastAccess) > maxAge {
			delete(m.domains, domain)
			removed++
		}
	}

	if removed > 0 {
		log.Debug().
			Int("removed", removed).
			Int("remaining", len(m.domains)).
			Msg("Cleaned up stale domain stats")
	}
}

// Close stops the background cleanup routine. Safe to call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

// ExtractDomain extracts the domain from a URL.
func ExtractDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// getOrCreate returns the stats for a domain, creating if needed. The manager
// lock is released before the stats lock is taken so locks never nest.
func (m *Manager) getOrCreate(domain string) *DomainStats {
	m.mu.Lock()

	stats, exists := m.domains[domain]
	if !exists {
		// Evict oldest domains in batch if at capacity
		if len(m.domains) >= maxDomains {
			m.evictOldestBatchLocked(evictionBatchSize)
		}
		stats = &DomainStats{
			LastAccess: time.Now(), // Safe - no one else has a reference yet
		}
		m.domains[domain] = stats
		m.mu.Unlock()
		return stats
	}

	m.mu.Unlock()

	stats.mu.Lock()
	stats.LastAccess = time.Now()
	stats.mu.Unlock()

	return stats
}

// evictOldestBatchLocked removes the N least recently accessed domains.
// Must be called with m.mu held.
func (m *Manager) evictOldestBatchLocked(count int) {
	if count <= 0 || len(m.domains) == 0 {
		return
	}

	if len(m.domains) <= count {
		for domain := range m.domains {
			delete(m.domains, domain)
		}
		return
	}

	type domainTime struct {
		domain     string
		lastAccess time.Time
	}
	candidates := make([]domainTime, 0, len(m.domains))
	for domain, stats := range m.domains {
		// m.mu is held so no new domains appear; a slightly stale
		// LastAccess is fine for approximate LRU
		stats.mu.RLock()
		lastAccess := stats.LastAccess
		stats.mu.RUnlock()
		candidates = append(candidates, domainTime{domain, lastAccess})
	}

	// Selection of the N oldest; for 100 out of 10000 this is cheap enough
	for i := 0; i < count && i < len(candidates); i++ {
		minIdx := i
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].lastAccess.Before(candidates[minIdx].lastAccess) {
				minIdx = j
			}
		}
		if minIdx != i {
			candidates[i], candidates[minIdx] = candidates[minIdx], candidates[i]
		}
		delete(m.domains, candidates[i].domain)
	}
}

// Get returns the stats for a domain (nil if not tracked).
func (m *Manager) Get(domain string) *DomainStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.domains[domain]
}

// RecordAnalysis updates stats after an analysis run completes.
// blocked marks runs that landed on a block or rate-limit page.
func (m *Manager) RecordAnalysis(domain string, duration time.Duration, success, blocked bool) {
	if domain == "" {
		return
	}

	stats := m.getOrCreate(domain)

	stats.mu.Lock()
	defer stats.mu.Unlock()

	// Overflow protection: reset counters and timestamps together if the
	// counter approaches its cap
	if stats.AnalysisCount >= maxCounterValue {
		log.Warn().
			Str("domain", domain).
			Int64("analysis_count", stats.AnalysisCount).
			Msg("Counter overflow protection triggered, resetting stats")
		stats.AnalysisCount = 0
		stats.SuccessCount = 0
		stats.ErrorCount = 0
		stats.BlockedCount = 0
		stats.totalDurationMs = 0
		stats.LastAnalyzed = time.Time{}
		stats.LastBlocked = time.Time{}
	}

	stats.AnalysisCount++
	durationMs := duration.Milliseconds()
	if stats.totalDurationMs < maxCounterValue-durationMs {
		stats.totalDurationMs += durationMs
	}
	stats.LastAnalyzed = time.Now()

	if success {
		stats.SuccessCount++
	} else {
		stats.ErrorCount++
	}

	if blocked {
		stats.BlockedCount++
		stats.LastBlocked = time.Now()
	}
}

// ErrorRate returns the error rate for a domain.
func (m *Manager) ErrorRate(domain string) float64 {
	stats := m.Get(domain)
	if stats == nil {
		return 0
	}
	return stats.ErrorRate()
}

// AnalysisCount returns the analysis count for a domain.
func (m *Manager) AnalysisCount(domain string) int64 {
	stats := m.Get(domain)
	if stats == nil {
		return 0
	}
	stats.mu.RLock()
	defer stats.mu.RUnlock()
	return stats.AnalysisCount
}

// AllStats returns a copy of all domain statistics.
func (m *Manager) AllStats() map[string]DomainStatsJSON {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]DomainStatsJSON, len(m.domains))
	for domain, stats := range m.domains {
		result[domain] = stats.ToJSON()
	}
	return result
}

// Reset clears all statistics for a domain.
func (m *Manager) Reset(domain string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.domains, domain)
}

// ResetAll clears all domain statistics.
func (m *Manager) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains = make(map[string]*DomainStats)
}

// DomainCount returns the number of tracked domains.
func (m *Manager) DomainCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.domains)
}
