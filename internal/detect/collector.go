package detect

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Rorqualx/pagerecon-go/internal/channel"
	"github.com/Rorqualx/pagerecon-go/internal/metrics"
	"github.com/Rorqualx/pagerecon-go/internal/report"
	"github.com/Rorqualx/pagerecon-go/internal/signatures"
)

// Collector runs one analysis: the local passes over a snapshot plus the two
// correlated monitor queries. A collector is created fresh per analysis and
// closed when its report is produced; nothing is shared between runs.
type Collector struct {
	sigs   *signatures.Manager
	client *channel.Client
}

// NewCollector attaches a fresh collector to the channel transport.
func NewCollector(sigs *signatures.Manager, tr channel.Transport) *Collector {
	return &Collector{
		sigs:   sigs,
		client: channel.NewClient(tr),
	}
}

// Close detaches the collector from the channel.
func (c *Collector) Close() {
	c.client.Close()
}

// Collect produces the merged report. The monitor queries run concurrently
// with their own timeouts; a query that never gets an answer contributes an
// empty section instead of failing the analysis. Collect itself cannot fail.
func (c *Collector) Collect(ctx context.Context, snap Snapshot) *report.Report {
	rep := report.New(snap.URL)
	rep.GeneratedAt = time.Now().UnixMilli()

	var netData, winData json.RawMessage

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, ok := c.client.Query(gctx, channel.ActionGetInterceptedRequests, channel.DefaultQueryTimeout)
		if !ok {
			metrics.RecordChannelTimeout(channel.ActionGetInterceptedRequests)
			return nil
		}
		netData = data
		return nil
	})
	g.Go(func() error {
		data, ok := c.client.Query(gctx, channel.ActionGetWindowProperties, channel.DefaultQueryTimeout)
		if !ok {
			metrics.RecordChannelTimeout(channel.ActionGetWindowProperties)
			return nil
		}
		winData = data
		return nil
	})
	_ = g.Wait()

	if netData != nil {
		var sum report.NetworkSummary
		if err := json.Unmarshal(netData, &sum); err != nil {
			log.Debug().Err(err).Msg("Discarding malformed network summary answer")
		} else {
			rep.Network = sum
		}
	}
	if winData != nil {
		var props map[string]string
		if err := json.Unmarshal(winData, &props); err != nil {
			log.Debug().Err(err).Msg("Discarding malformed window properties answer")
		} else if props != nil {
			rep.WindowSignatures = props
		}
	}

	sig := c.sigs.Get()
	rep.Findings.AntiBot = append(AntiBot(snap, sig), BlockPage(snap)...)
	rep.Findings.Technology = Technology(snap, sig)
	rep.Findings.DataDelivery = DataDelivery(snap, sig)
	rep.Findings.Pagination = Pagination(snap, sig)
	rep.Findings.Auth = Auth(snap, sig)
	rep.Findings.Cookies = CookieNames(snap)

	rep.Normalize()
	return rep
}
