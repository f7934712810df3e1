package scan

import (
	"context"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// PageProber evaluates probe expressions in a live page.
type PageProber struct {
	page *rod.Page
}

// NewPageProber wraps a page for probing.
func NewPageProber(page *rod.Page) *PageProber {
	return &PageProber{page: page}
}

// Probe evaluates expr by value in the page. A thrown exception inside the
// page counts as absent, not as an error; only protocol-level failures are
// returned.
func (p *PageProber) Probe(ctx context.Context, expr string) (bool, error) {
	res, err := proto.RuntimeEvaluate{
		Expression:    expr,
		ReturnByValue: true,
	}.Call(p.page.Context(ctx))
	if err != nil {
		return false, err
	}
	if res.ExceptionDetails != nil {
		return false, nil
	}
	return res.Result.Value.Bool(), nil
}
