package detect

import (
	"strings"
	"testing"

	"github.com/Rorqualx/pagerecon-go/internal/report"
	"github.com/Rorqualx/pagerecon-go/internal/signatures"
)

func TestDataDelivery_ServerRendered(t *testing.T) {
	sig := signatures.Get()

	snap := Snapshot{
		HTML: `<html><body><article>` + strings.Repeat("Plenty of article text here. ", 20) + `</article></body></html>`,
	}

	dd := DataDelivery(snap, sig)
	if dd.Mode != report.DeliveryServerRendered {
		t.Errorf("Mode = %q, want %q (evidence: %v)", dd.Mode, report.DeliveryServerRendered, dd.Evidence)
	}
	if len(dd.Evidence) == 0 {
		t.Error("classification carries no evidence")
	}
}

func TestDataDelivery_SPA(t *testing.T) {
	sig := signatures.Get()

	snap := Snapshot{
		HTML: `<html><body><div id="root"></div><script src="/bundle.js"></script></body></html>`,
	}

	dd := DataDelivery(snap, sig)
	if dd.Mode != report.DeliverySPA {
		t.Errorf("Mode = %q, want %q (evidence: %v)", dd.Mode, report.DeliverySPA, dd.Evidence)
	}
}

func TestDataDelivery_Hybrid(t *testing.T) {
	sig := signatures.Get()

	snap := Snapshot{
		HTML: `<html><body><div id="__next"><main>` +
			strings.Repeat("Server-delivered product description text. ", 20) +
			`</main></div></body></html>`,
	}

	dd := DataDelivery(snap, sig)
	if dd.Mode != report.DeliveryHybrid {
		t.Errorf("Mode = %q, want %q (evidence: %v)", dd.Mode, report.DeliveryHybrid, dd.Evidence)
	}
}

func TestDataDelivery_EmptyPage(t *testing.T) {
	sig := signatures.Get()

	dd := DataDelivery(Snapshot{}, sig)
	if dd.Mode != report.DeliveryServerRendered {
		t.Errorf("Mode for empty page = %q, want %q", dd.Mode, report.DeliveryServerRendered)
	}
	if dd.Evidence == nil {
		t.Error("Evidence must be non-nil even for an empty page")
	}
}

func TestVisibleTextLen(t *testing.T) {
	tests := []struct {
		name string
		html string
		want int
	}{
		{"plain text", `<p>hello world</p>`, 11},
		{"script ignored", `<p>hi</p><script>var x = "lots and lots of script";</script>`, 2},
		{"style ignored", `<style>body{color:red}</style><span>ok</span>`, 2},
		{"whitespace collapsed", "<p>a\n\n\t  b</p>", 3},
		{"empty", ``, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := visibleTextLen(tt.html); got != tt.want {
				t.Errorf("visibleTextLen() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLinkQueryParams(t *testing.T) {
	html := `<body>
		<a href="/items?page=2">next</a>
		<a href="/items?page=3">after</a>
		<a href="https://other.example/search?cursor=abc&x=1">deep</a>
		<a href="::bad::url::%zz">broken</a>
	</body>`

	got := linkQueryParams(html, []string{"page", "cursor"})

	if got["page"] != "/items?page=2" {
		t.Errorf("page example = %q, want the first matching href", got["page"])
	}
	if got["cursor"] != "https://other.example/search?cursor=abc&x=1" {
		t.Errorf("cursor example = %q", got["cursor"])
	}
	if len(got) != 2 {
		t.Errorf("linkQueryParams() = %v, want 2 entries", got)
	}
}
