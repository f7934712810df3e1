// Package intercept owns the network observation side of an instrumented
// page: the injected request hooks, the relevance filter, and the capped
// in-memory log of sightings.
package intercept

import (
	"sort"
	"sync"

	"github.com/Rorqualx/pagerecon-go/internal/metrics"
	"github.com/Rorqualx/pagerecon-go/internal/report"
	"github.com/Rorqualx/pagerecon-go/internal/signatures"
)

// LogCapacity bounds the per-page sighting log. Once full, later sightings
// are dropped; the first arrivals win.
const LogCapacity = 200

// Request sources reported by the injected hooks.
const (
	SourceFetch = "fetch"
	SourceXHR   = "xhr"
)

// Sighting is one observed outbound request.
type Sighting struct {
	Method    string `json:"method"`
	URL       string `json:"url"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// Interceptor records request sightings for one page. It is the only writer
// of the log; everything else sees copies. Safe for concurrent use.
type Interceptor struct {
	sigs *signatures.Manager

	mu       sync.Mutex
	entries  []Sighting
	overflow int64
}

// New creates an empty interceptor backed by the given signature tables.
func New(sigs *signatures.Manager) *Interceptor {
	return &Interceptor{
		sigs:    sigs,
		entries: make([]Sighting, 0, LogCapacity),
	}
}

// Record applies the relevance filter and appends the sighting if the log
// has room. Returns whether the sighting was logged.
func (i *Interceptor) Record(s Sighting) bool {
	f := NewFilter(i.sigs.Get())
	if !f.Relevant(s.URL) {
		metrics.RecordRequestExcluded()
		return false
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if len(i.entries) >= LogCapacity {
		i.overflow++
		metrics.RecordRequestDropped()
		return false
	}
	i.entries = append(i.entries, s)
	metrics.RecordRequestLogged()
	return true
}

// Reset clears the log. Called when the page navigates to a new document so
// each document gets a fresh observation window.
func (i *Interceptor) Reset() {
	i.mu.Lock()
	i.entries = i.entries[:0]
	i.overflow = 0
	i.mu.Unlock()
}

// Snapshot returns a copy of the current log in arrival order.
func (i *Interceptor) Snapshot() []Sighting {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := make([]Sighting, len(i.entries))
	copy(out, i.entries)
	return out
}

// Overflow reports how many relevant sightings were dropped at capacity.
func (i *Interceptor) Overflow() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.overflow
}

// Summary aggregates the log into the network section of a report.
func (i *Interceptor) Summary() report.NetworkSummary {
	return Aggregate(i.Snapshot())
}

// Aggregate groups sightings by endpoint (origin plus path, query and
// fragment stripped) and returns them sorted by descending request count.
func Aggregate(sightings []Sighting) report.NetworkSummary {
	type group struct {
		endpoint string
		methods  map[string]struct{}
		count    int
		samples  []string
		sampled  map[string]struct{}
	}

	groups := make(map[string]*group)
	order := make([]string, 0)

	for _, s := range sightings {
		endpoint, ok := EndpointKey(s.URL)
		if !ok {
			continue
		}
		g, exists := groups[endpoint]
		if !exists {
			g = &group{
				endpoint: endpoint,
				methods:  make(map[string]struct{}),
				sampled:  make(map[string]struct{}),
			}
			groups[endpoint] = g
			order = append(order, endpoint)
		}
		g.count++
		g.methods[normalizeMethod(s.Method)] = struct{}{}
		// Samples hold the first few distinct URLs; a repeated URL must not
		// fill every slot.
		if _, dup := g.sampled[s.URL]; !dup && len(g.samples) < report.MaxSampleURLs {
			g.sampled[s.URL] = struct{}{}
			g.samples = append(g.samples, s.URL)
		}
	}

	endpoints := make([]report.Endpoint, 0, len(groups))
	for _, key := range order {
		g := groups[key]
		methods := make([]string, 0, len(g.methods))
		for m := range g.methods {
			methods = append(methods, m)
		}
		sort.Strings(methods)
		endpoints = append(endpoints, report.Endpoint{
			Endpoint:   g.endpoint,
			Methods:    methods,
			Count:      g.count,
			SampleURLs: g.samples,
		})
	}

	// Busiest endpoints first; stable tie-break keeps output deterministic
	sort.SliceStable(endpoints, func(a, b int) bool {
		if endpoints[a].Count != endpoints[b].Count {
			return endpoints[a].Count > endpoints[b].Count
		}
		return endpoints[a].Endpoint < endpoints[b].Endpoint
	})

	return report.NetworkSummary{
		TotalRequests: len(sightings),
		Endpoints:     endpoints,
	}
}
