// Package browser provides browser pool management for efficient resource usage.
// The pool maintains a fixed number of browser instances that are reused across
// analyses, avoiding the cost of spawning a fresh browser per request.
package browser

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Rorqualx/pagerecon-go/internal/config"
	"github.com/Rorqualx/pagerecon-go/internal/metrics"
	"github.com/Rorqualx/pagerecon-go/internal/types"
)

// Pool manages a pool of reusable browser instances.
//
// The pool pre-warms browsers at startup and maintains them for reuse.
// Each browser can host multiple sequential monitored pages.
//
// Lock ordering: mu must be acquired before any browser entry locks.
// Never hold mu while performing slow I/O operations.
type Pool struct {
	mu        sync.Mutex
	browsers  []*browserEntry
	available chan *rod.Browser
	config    *config.Config
	closed    atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup

	// Atomic counter for race-free Available() reads.
	availableCount atomic.Int32

	// Goroutines abandoned when a browser close exceeded its deadline.
	leakedGoroutines atomic.Int32

	closeWg sync.WaitGroup

	// Semaphore limiting concurrent recycles.
	recycleSem chan struct{}

	stats PoolStats
}

// browserEntry tracks metadata for each browser in the pool.
type browserEntry struct {
	browser   *rod.Browser
	createdAt time.Time
	useCount  atomic.Int64
}

// PoolStats provides statistics about pool usage.
type PoolStats struct {
	Acquired atomic.Int64
	Released atomic.Int64
	Recycled atomic.Int64
	Errors   atomic.Int64
}

// NewPool creates a new browser pool with the specified configuration.
// It pre-warms the pool by launching the configured number of browsers.
//
// This function blocks until all browsers are ready or an error occurs.
// If any browser fails to launch, the pool is cleaned up and an error is returned.
func NewPool(cfg *config.Config) (*Pool, error) {
	log.Info().
		Int("pool_size", cfg.BrowserPoolSize).
		Bool("headless", cfg.Headless).
		Str("browser_path", cfg.BrowserPath).
		Msg("Initializing browser pool")

	pool := &Pool{
		config:     cfg,
		available:  make(chan *rod.Browser, cfg.BrowserPoolSize),
		browsers:   make([]*browserEntry, 0, cfg.BrowserPoolSize),
		stopCh:     make(chan struct{}),
		recycleSem: make(chan struct{}, 4),
	}

	for i := 0; i < cfg.BrowserPoolSize; i++ {
		browser, err := pool.spawnBrowser(context.Background())
		if err != nil {
			log.Error().Err(err).Int("browser_index", i).Msg("Failed to spawn browser during pool initialization")
			if closeErr := pool.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to close pool during cleanup")
			}
			return nil, fmt.Errorf("failed to spawn browser %d: %w", i, err)
		}

		entry := &browserEntry{
			browser:   browser,
			createdAt: time.Now(),
		}
		pool.browsers = append(pool.browsers, entry)
		pool.available <- browser

		log.Debug().Int("browser_index", i).Msg("Browser spawned and added to pool")
	}

	pool.availableCount.Store(int32(cfg.BrowserPoolSize))
	metrics.UpdatePoolMetrics(cfg.BrowserPoolSize, cfg.BrowserPoolSize)

	pool.wg.Add(2)
	go func() {
		defer pool.wg.Done()
		pool.monitorMemory()
	}()
	go func() {
		defer pool.wg.Done()
		pool.healthCheckRoutine()
	}()

	log.Info().
		Int("pool_size", cfg.BrowserPoolSize).
		Msg("Browser pool initialized successfully")

	return pool, nil
}

// createLauncher creates a configured Rod launcher.
//
// The flags keep the instrumented browser looking like an ordinary desktop
// Chrome: anti-bot vendors behave differently toward automation-flagged
// browsers, and an analysis of a page that is busy fighting the analyzer
// describes the fight, not the page.
func (p *Pool) createLauncher() *launcher.Launcher {
	l := launcher.New()

	if p.config.BrowserPath != "" {
		l = l.Bin(p.config.BrowserPath)
	}

	// HEADLESS=false uses an Xvfb virtual display: a real headed browser,
	// with no "HeadlessChrome" in any detection vector. HEADLESS=true uses
	// --headless=new for environments without Xvfb.
	if p.config.Headless {
		l = l.Set("headless", "new")
	} else {
		// Rod enables headless by default; disable it explicitly when a
		// virtual display is in use.
		l = l.Headless(false)
	}

	// Container flags
	l = l.Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage")

	// WebRTC can reveal the host's real public IP and internal topology
	// through ICE candidates.
	l = l.Set("force-webrtc-ip-handling-policy", "disable_non_proxied_udp")

	// navigator.webdriver must stay undefined.
	l = l.Set("disable-blink-features", "AutomationControlled")
	l = l.Delete("enable-automation")

	disabledFeatures := "Translate,TranslateUI,BlinkGenPropertyTrees,WebRtcHideLocalIpsWithMdns"
	l = l.Set("disable-features", disabledFeatures)
	l = l.Set("enable-features", "NetworkService,NetworkServiceInProcess")

	// SwiftShader gives a realistic software WebGL fingerprint; empty WebGL
	// values are a detection signal.
	l = l.Set("use-gl", "swiftshader").
		Set("use-angle", "swiftshader").
		Set("enable-unsafe-swiftshader").
		Set("enable-webgl").
		Set("enable-webgl2")

	l = l.Set("accept-lang", "en-US,en;q=0.9")

	l = l.Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-infobars").
		Set("disable-search-engine-choice-screen")

	l = l.Set("window-size", "1920,1080")

	l = l.Set("disable-background-networking").
		Set("disable-default-apps").
		Set("disable-extensions").
		Set("disable-sync").
		Set("mute-audio").
		Set("no-zygote").
		Set("safebrowsing-disable-auto-update")

	// Memory limits for container environments
	l = l.Set("js-flags", "--max-old-space-size=256").
		Set("disable-ipc-flooding-protection").
		Set("disable-renderer-backgrounding")

	l = l.Set("disable-gpu-sandbox")

	// On ARM, --disable-gpu breaks SwiftShader WebGL; use software
	// compositing instead.
	if isARM() {
		l = l.Set("disable-gpu-compositing")
		log.Debug().Msg("ARM detected: using software rendering with SwiftShader for WebGL")
	}

	return l
}

// spawnBrowser launches a new browser instance.
// Each call creates a fresh launcher since launchers can only be used once.
func (p *Pool) spawnBrowser(ctx context.Context) (*rod.Browser, error) {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
	log.Debug().Msg("Spawning new browser instance")

	l := p.createLauncher()

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	log.Debug().Str("url", url).Msg("Browser spawned successfully")
	return browser, nil
}

// Acquire obtains a browser from the pool.
// It blocks until a browser is available, the context is canceled,
// or the pool timeout is reached.
//
// The caller MUST call Release() when done with the browser:
//
//	browser, err := pool.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Release(browser)
func (p *Pool) Acquire(ctx context.Context) (*rod.Browser, error) {
	if p.closed.Load() {
		return nil, types.ErrBrowserPoolClosed
	}

	const maxRetries = 5 // Bounded retry when browsers turn up unhealthy

	for retry := 0; retry < maxRetries; retry++ {
		log.Debug().
			Int32("available", p.availableCount.Load()).
			Int("retry", retry).
			Msg("Acquiring browser from pool")

		select {
		case browser, ok := <-p.available:
			if !ok || p.closed.Load() {
				if browser != nil {
					_ = browser.Close()
				}
				return nil, types.ErrBrowserPoolClosed
			}

			p.stats.Acquired.Add(1)
			metrics.BrowserPoolAcquired.Inc()

			// Decrement availableCount only after the health check passes;
			// otherwise the count can show availability while every browser
			// in the channel is dead.
			if !p.isHealthy(browser) {
				log.Warn().Int("retry", retry).Msg("Acquired unhealthy browser, recycling")
				p.stats.Errors.Add(1)
				go p.recycleBrowser(browser)
				continue
			}

			p.availableCount.Add(-1)
			metrics.UpdatePoolMetrics(p.config.BrowserPoolSize, int(p.availableCount.Load()))

			p.mu.Lock()
			for _, entry := range p.browsers {
				if entry.browser == browser {
					entry.useCount.Add(1)
					break
				}
			}
			p.mu.Unlock()

			log.Debug().
				Int64("total_acquired", p.stats.Acquired.Load()).
				Msg("Browser acquired from pool")

			return browser, nil

		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", types.ErrContextCanceled, ctx.Err())

		case <-time.After(p.config.BrowserPoolTimeout):
			p.stats.Errors.Add(1)
			return nil, types.ErrBrowserPoolTimeout
		}
	}

	p.stats.Errors.Add(1)
	return nil, fmt.Errorf("%w: all browsers unhealthy after %d retries", types.ErrBrowserUnhealthy, maxRetries)
}

// Release returns a browser to the pool.
// This method cleans up any pages and prepares the browser for reuse.
//
// It is safe to call Release multiple times or on a nil browser.
func (p *Pool) Release(browser *rod.Browser) {
	if browser == nil {
		return
	}

	// Lock early: the closed check and channel send must be atomic with
	// respect to Close().
	p.mu.Lock()

	if p.closed.Load() {
		p.mu.Unlock()
		if err := browser.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing browser during release (pool closed)")
		}
		return
	}

	p.stats.Released.Add(1)
	p.mu.Unlock() // Release lock during page cleanup (slow I/O)

	// Close all pages before returning to the pool so monitored pages and
	// their hooks never leak into the next analysis.
	cleanupFailed := false
	pages, err := browser.Pages()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to get pages for cleanup, browser may be unhealthy")
		cleanupFailed = true
	} else {
		for _, page := range pages {
			if err := page.Navigate("about:blank"); err != nil {
				log.Warn().Err(err).Msg("Failed to navigate page to blank during cleanup")
				cleanupFailed = true
			}
			if err := page.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close page during cleanup")
				cleanupFailed = true
			}
		}
	}

	if cleanupFailed {
		log.Warn().Msg("Page cleanup failed, recycling browser instead of returning to pool")
		go p.recycleBrowser(browser)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Closed may have flipped during page cleanup
	if p.closed.Load() {
		if err := browser.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing browser during release (pool closed during cleanup)")
		}
		return
	}

	select {
	case p.available <- browser:
		p.availableCount.Add(1)
		metrics.UpdatePoolMetrics(p.config.BrowserPoolSize, int(p.availableCount.Load()))
		log.Debug().
			Int64("total_released", p.stats.Released.Load()).
			Msg("Browser released to pool")
	default:
		log.Warn().Msg("Pool is full, closing excess browser")
		if err := browser.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing excess browser")
		}
	}
}

// isHealthy checks if a browser is responsive and usable.
func (p *Pool) isHealthy(browser *rod.Browser) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		log.Debug().Err(err).Msg("Browser health check failed: cannot create page")
		return false
	}
	defer page.Close()

	err = page.Context(ctx).Navigate("about:blank")
	if err != nil {
		log.Debug().Err(err).Msg("Browser health check failed: cannot navigate")
		return false
	}

	return true
}

// recycleBrowser replaces an unhealthy browser with a new one.
// Must NEVER be called while holding p.mu: the call chain acquires p.mu
// through updateBrowserEntry, and the lock is not reentrant.
func (p *Pool) recycleBrowser(oldBrowser *rod.Browser) {
	if p.closed.Load() {
		log.Debug().Msg("Skipping browser recycle - pool is closed")
		return
	}

	p.stats.Recycled.Add(1)
	metrics.BrowserPoolRecycled.Inc()

	log.Info().
		Int64("total_recycled", p.stats.Recycled.Load()).
		Msg("Recycling browser")

	p.closeBrowserWithTimeout(oldBrowser, 10*time.Second)

	var newBrowser *rod.Browser
	var spawnErr error

	spawnCtx, spawnCancel := context.WithTimeout(context.Background(), 30*time.Second)

	spawnDone := make(chan struct{})
	go func() {
		defer close(spawnDone)
		newBrowser, spawnErr = p.spawnBrowser(spawnCtx)
	}()

	select {
	case <-spawnDone:
		spawnCancel()
	case <-p.stopCh:
		spawnCancel()
		log.Warn().Msg("Browser spawn abandoned during pool shutdown")
		p.removeBrowserEntry(oldBrowser)
		select {
		case <-spawnDone:
		case <-time.After(2 * time.Second):
			log.Warn().Msg("Spawn goroutine did not exit promptly after cancellation")
		}
		return
	case <-time.After(30 * time.Second):
		spawnCancel()
		log.Error().Msg("Browser spawn timed out during recycle")
		p.removeBrowserEntry(oldBrowser)
		return
	}

	if spawnErr != nil {
		log.Error().Err(spawnErr).Msg("Failed to spawn replacement browser")
		p.removeBrowserEntry(oldBrowser)
		return
	}

	newEntry := &browserEntry{
		browser:   newBrowser,
		createdAt: time.Now(),
	}
	p.updateBrowserEntry(oldBrowser, newEntry)

	p.addBrowserToPool(newBrowser)
}

// closeBrowserWithTimeout closes a browser with a timeout.
// If the close times out, the goroutine is tracked as leaked and we proceed.
func (p *Pool) closeBrowserWithTimeout(browser *rod.Browser, timeout time.Duration) bool {
	closeDone := make(chan struct{})
	closeStarted := time.Now()

	p.closeWg.Add(1)
	go func() {
		defer p.closeWg.Done()
		defer close(closeDone)
		if err := browser.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing browser")
		}
	}()

	select {
	case <-closeDone:
		log.Debug().
			Dur("duration", time.Since(closeStarted)).
			Msg("Browser closed successfully")
		return true
	case <-p.stopCh:
		// Pool is shutting down; the goroutine stays tracked in closeWg and
		// is waited on in Close().
		log.Warn().
			Dur("elapsed", time.Since(closeStarted)).
			Msg("Browser close wait abandoned during pool shutdown")
		return false
	case <-time.After(timeout):
		leaked := p.leakedGoroutines.Add(1)
		log.Warn().
			Dur("elapsed", time.Since(closeStarted)).
			Int32("leaked_count", leaked).
			Msg("Browser close timed out - goroutine leaked")
		if leaked > 10 {
			log.Error().Int32("count", leaked).Msg("High number of leaked goroutines from browser close timeouts")
		}
		p.stats.Errors.Add(1)
		return false
	}
}

// addBrowserToPool safely adds a browser to the available pool.
func (p *Pool) addBrowserToPool(browser *rod.Browser) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		log.Warn().Msg("Pool closed, closing browser instead of adding to pool")
		if err := browser.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing browser (pool was closed)")
		}
		return
	}

	select {
	case p.available <- browser:
		p.availableCount.Add(1)
		metrics.UpdatePoolMetrics(p.config.BrowserPoolSize, int(p.availableCount.Load()))
		log.Info().Msg("Browser added to pool")
	default:
		log.Warn().Msg("Pool is full, closing browser")
		if err := browser.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing excess browser")
		}
	}
}

// monitorMemory periodically checks memory usage and triggers recycling if needed.
func (p *Pool) monitorMemory() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	maxBytes := uint64(p.config.MaxMemoryMB) * 1024 * 1024

	for {
		select {
		case <-p.stopCh:
			log.Debug().Msg("Memory monitor stopping")
			return
		case <-ticker.C:
			if p.closed.Load() {
				return
			}

			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			log.Debug().
				Uint64("alloc_mb", m.Alloc/1024/1024).
				Uint64("sys_mb", m.Sys/1024/1024).
				Int("max_mb", p.config.MaxMemoryMB).
				Msg("Memory stats")

			if m.Alloc > maxBytes {
				log.Warn().
					Uint64("current_mb", m.Alloc/1024/1024).
					Int("max_mb", p.config.MaxMemoryMB).
					Msg("Memory threshold exceeded, recycling browsers")

				p.recycleAll()
			}
		}
	}
}

// healthCheckRoutine periodically verifies browser health and recycles stale browsers.
func (p *Pool) healthCheckRoutine() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	maxAge := 30 * time.Minute // Recycle browsers older than this

	for {
		select {
		case <-p.stopCh:
			log.Debug().Msg("Health check routine stopping")
			return
		case <-ticker.C:
			if p.closed.Load() {
				return
			}

			p.mu.Lock()
			now := time.Now()
			var toRecycle []*rod.Browser

			for _, entry := range p.browsers {
				if now.Sub(entry.createdAt) > maxAge {
					toRecycle = append(toRecycle, entry.browser)
				}
			}
			p.mu.Unlock()

			// Recycle outside of lock
			for _, browser := range toRecycle {
				log.Info().Msg("Recycling stale browser")
				p.recycleBrowser(browser)
			}
		}
	}
}

// recycleAll recycles all browsers in the pool.
// This is used when memory pressure is detected.
func (p *Pool) recycleAll() {
	p.mu.Lock()
	toRecycle := make([]*rod.Browser, len(p.browsers))
	for i, entry := range p.browsers {
		toRecycle[i] = entry.browser
	}
	p.mu.Unlock()

	log.Info().Int("count", len(toRecycle)).Msg("Recycling all browsers due to memory pressure")

	var recycleWg sync.WaitGroup
	for _, browser := range toRecycle {
		if p.closed.Load() {
			log.Debug().Msg("Pool closed during recycleAll, aborting remaining recycles")
			break
		}

		recycleWg.Add(1)
		go func(b *rod.Browser) {
			defer recycleWg.Done()

			select {
			case p.recycleSem <- struct{}{}:
				defer func() { <-p.recycleSem }()
				p.recycleBrowser(b)
			case <-p.stopCh:
				log.Debug().Msg("Pool shutdown during recycleAll, skipping recycle")
			}
		}(browser)
	}

	recycleWg.Wait()
}

// Size returns the configured pool size.
func (p *Pool) Size() int {
	return p.config.BrowserPoolSize
}

// Available returns the number of browsers currently available in the pool.
func (p *Pool) Available() int {
	if p.closed.Load() {
		return 0
	}
	return int(p.availableCount.Load())
}

// PoolStatsSnapshot holds a point-in-time snapshot of pool statistics.
type PoolStatsSnapshot struct {
	Acquired         int64
	Released         int64
	Recycled         int64
	Errors           int64
	LeakedGoroutines int32
}

// Stats returns a snapshot of the current pool statistics.
func (p *Pool) Stats() PoolStatsSnapshot {
	return PoolStatsSnapshot{
		Acquired:         p.stats.Acquired.Load(),
		Released:         p.stats.Released.Load(),
		Recycled:         p.stats.Recycled.Load(),
		Errors:           p.stats.Errors.Load(),
		LeakedGoroutines: p.leakedGoroutines.Load(),
	}
}

// GetStats returns the current statistics values.
func (p *Pool) GetStats() (acquired, released, recycled, errors int64) {
	return p.stats.Acquired.Load(),
		p.stats.Released.Load(),
		p.stats.Recycled.Load(),
		p.stats.Errors.Load()
}

// Close shuts down the pool and releases all resources.
// After Close is called, Acquire will return an error.
//
// Close is safe to call multiple times.
func (p *Pool) Close() error {
	// Set closed flag under lock to coordinate with Release()
	p.mu.Lock()
	if p.closed.Swap(true) {
		p.mu.Unlock()
		return nil // Already closed
	}
	// Close channel while holding lock to prevent send-on-closed-channel panic
	close(p.available)
	p.mu.Unlock()

	log.Info().Msg("Closing browser pool")

	close(p.stopCh)

	// Wait for background goroutines with timeout
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Debug().Msg("Background goroutines stopped")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("Timeout waiting for background goroutines to stop")
	}

	// Wait for any pending close goroutines
	closeWgDone := make(chan struct{})
	go func() {
		p.closeWg.Wait()
		close(closeWgDone)
	}()
	select {
	case <-closeWgDone:
		log.Debug().Msg("Browser close goroutines finished")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("Timeout waiting for browser close goroutines")
	}

	p.mu.Lock()
	browsers := make([]*browserEntry, len(p.browsers))
	copy(browsers, p.browsers)
	p.browsers = nil
	p.mu.Unlock()

	// Close all browsers in parallel, bounded
	eg := new(errgroup.Group)
	eg.SetLimit(4)

	for _, entry := range browsers {
		browser := entry.browser
		eg.Go(func() error {
			if err := browser.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing browser during pool shutdown")
				return err
			}
			return nil
		})
	}

	closeErr := eg.Wait()

	// Drain any remaining items from channel (safe after close)
	for b := range p.available {
		if b != nil {
			_ = b.Close()
		}
	}

	p.stats.Acquired.Store(0)
	p.stats.Released.Store(0)
	p.stats.Recycled.Store(0)
	p.stats.Errors.Store(0)
	metrics.UpdatePoolMetrics(0, 0)

	log.Info().Msg("Browser pool closed")

	return closeErr
}

// removeBrowserEntry removes a browser from the tracking slice.
// Uses swap-with-last for O(1) removal.
func (p *Pool) removeBrowserEntry(oldBrowser *rod.Browser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, entry := range p.browsers {
		if entry.browser == oldBrowser {
			last := len(p.browsers) - 1
			if i != last {
				p.browsers[i] = p.browsers[last]
			}
			p.browsers = p.browsers[:last]
			return
		}
	}
}

// updateBrowserEntry replaces an old browser entry with a new one.
// Returns true if the entry was found and updated.
func (p *Pool) updateBrowserEntry(oldBrowser *rod.Browser, newEntry *browserEntry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, entry := range p.browsers {
		if entry.browser == oldBrowser {
			p.browsers[i] = newEntry
			return true
		}
	}
	return false
}

// isARM returns true if running on ARM architecture.
func isARM() bool {
	arch := runtime.GOARCH
	return arch == "arm" || arch == "arm64"
}
