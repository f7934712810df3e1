// Package analyzer orchestrates one analysis run: monitor attachment,
// navigation, snapshot capture, and the merged collection pass.
package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/Rorqualx/pagerecon-go/internal/channel"
	"github.com/Rorqualx/pagerecon-go/internal/detect"
	"github.com/Rorqualx/pagerecon-go/internal/metrics"
	"github.com/Rorqualx/pagerecon-go/internal/report"
	"github.com/Rorqualx/pagerecon-go/internal/signatures"
)

// Target is the monitored page an analysis runs against. Implemented by
// session pages; tests substitute fakes.
type Target interface {
	// ID identifies the page for overlap coalescing. Two calls with the
	// same ID while one is in flight share a single run.
	ID() string

	// Transport is the channel the target's monitor answers queries on.
	Transport() channel.Transport

	// EnsureMonitor attaches the monitor if it is not already installed.
	// This is the one failure an analysis surfaces from the monitor layer.
	EnsureMonitor() error

	// Navigate loads a new document in the target page and waits for it.
	Navigate(ctx context.Context, url string) error

	// Snapshot captures the page state the local passes run over.
	Snapshot(ctx context.Context) detect.Snapshot
}

// Options controls a single analysis run.
type Options struct {
	URL    string        // navigate here first when non-empty
	Settle time.Duration // extra wait after load before collecting
}

// Analyzer runs analyses against monitored pages. Concurrent runs against
// the same target share one result; distinct targets run independently.
type Analyzer struct {
	sigs  *signatures.Manager
	group singleflight.Group
}

// New creates an analyzer backed by the given signature tables.
func New(sigs *signatures.Manager) *Analyzer {
	return &Analyzer{sigs: sigs}
}

// Analyze produces a merged report for the target. Overlapping calls for the
// same target ID are coalesced; late joiners receive the in-flight result.
func (a *Analyzer) Analyze(ctx context.Context, t Target, opts Options) (*report.Report, error) {
	v, err, shared := a.group.Do(t.ID(), func() (interface{}, error) {
		return a.run(ctx, t, opts)
	})
	if shared {
		log.Debug().Str("target", t.ID()).Msg("Joined in-flight analysis")
	}
	if err != nil {
		return nil, err
	}
	return v.(*report.Report), nil
}

func (a *Analyzer) run(ctx context.Context, t Target, opts Options) (*report.Report, error) {
	start := time.Now()

	if err := t.EnsureMonitor(); err != nil {
		metrics.RecordAnalysis("attach_failed", time.Since(start))
		return nil, err
	}

	if opts.URL != "" {
		if err := t.Navigate(ctx, opts.URL); err != nil {
			metrics.RecordAnalysis("navigation_failed", time.Since(start))
			return nil, fmt.Errorf("failed to navigate to %s: %w", opts.URL, err)
		}
	}

	if opts.Settle > 0 {
		if !sleepWithContext(ctx, opts.Settle) {
			log.Debug().Str("target", t.ID()).Msg("Settle wait interrupted by context cancellation")
		}
	}

	snap := t.Snapshot(ctx)

	collector := detect.NewCollector(a.sigs, t.Transport())
	defer collector.Close()
	rep := collector.Collect(ctx, snap)

	metrics.RecordAnalysis("ok", time.Since(start))
	log.Info().
		Str("url", snap.URL).
		Int("endpoints", len(rep.Network.Endpoints)).
		Int("window_signatures", len(rep.WindowSignatures)).
		Dur("duration", time.Since(start)).
		Msg("Analysis completed")

	return rep, nil
}

// sleepWithContext sleeps for d or until the context is canceled. Returns
// true if the sleep completed normally.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
