package detect

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/Rorqualx/pagerecon-go/internal/report"
	"github.com/Rorqualx/pagerecon-go/internal/signatures"
)

// minServerTextLen is the visible-text size above which a document counts as
// carrying substantive server-delivered content. SPA shells typically ship
// far less than this.
const minServerTextLen = 200

// DataDelivery classifies how the page receives its content by combining the
// presence of client-side application root markers with the amount of text
// actually present in the delivered markup.
func DataDelivery(snap Snapshot, sig *signatures.Signatures) report.DataDelivery {
	lower := strings.ToLower(snap.HTML)

	var markers []string
	for _, m := range sig.SPAMarkers {
		if strings.Contains(lower, strings.ToLower(m)) {
			markers = append(markers, m)
		}
	}

	textLen := visibleTextLen(snap.HTML)

	dd := report.DataDelivery{Evidence: []string{}}
	switch {
	case len(markers) == 0:
		dd.Mode = report.DeliveryServerRendered
		dd.Evidence = append(dd.Evidence,
			fmt.Sprintf("no client-side app root markers, %d chars of delivered text", textLen))
	case textLen < minServerTextLen:
		dd.Mode = report.DeliverySPA
		dd.Evidence = append(dd.Evidence,
			"app root marker "+markers[0],
			fmt.Sprintf("sparse delivered text (%d chars)", textLen))
	default:
		dd.Mode = report.DeliveryHybrid
		dd.Evidence = append(dd.Evidence,
			"app root marker "+markers[0],
			fmt.Sprintf("substantive delivered text (%d chars)", textLen))
	}
	return dd
}

// visibleTextLen measures the text a reader would see in the delivered
// markup. Script, style, and template subtrees are skipped; whitespace runs
// collapse to single characters.
func visibleTextLen(rawHTML string) int {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return 0
	}

	var total int
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			total += len(strings.Join(strings.Fields(n.Data), " "))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return total
}

// linkQueryParams walks all anchors in the markup and returns, for each
// recognized paging parameter found in a link's query string, one example
// href. Unparseable hrefs are skipped.
func linkQueryParams(rawHTML string, params []string) map[string]string {
	found := make(map[string]string)
	if len(params) == 0 {
		return found
	}

	recognized := make(map[string]bool, len(params))
	for _, p := range params {
		recognized[strings.ToLower(p)] = true
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return found
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				u, err := url.Parse(attr.Val)
				if err != nil {
					continue
				}
				for key := range u.Query() {
					lk := strings.ToLower(key)
					if recognized[lk] {
						if _, ok := found[lk]; !ok {
							found[lk] = attr.Val
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}
