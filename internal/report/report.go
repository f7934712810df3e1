// Package report defines the merged analysis report produced for a page.
package report

// Report is the result of one analysis run. Every section is always present,
// even when a pass produced nothing, so consumers never branch on missing keys.
type Report struct {
	URL              string            `json:"url"`
	GeneratedAt      int64             `json:"generatedAt"` // Unix milliseconds
	Network          NetworkSummary    `json:"network"`
	WindowSignatures map[string]string `json:"windowSignatures"`
	Findings         Findings          `json:"findings"`
}

// MaxSampleURLs caps how many full URLs each endpoint group retains.
const MaxSampleURLs = 3

// NetworkSummary aggregates the relevant requests observed on a page.
type NetworkSummary struct {
	TotalRequests int        `json:"totalRequests"`
	Endpoints     []Endpoint `json:"endpoints"`
}

// Endpoint is one aggregation group: all requests sharing origin and path.
type Endpoint struct {
	Endpoint   string   `json:"endpoint"`
	Methods    []string `json:"methods"`
	Count      int      `json:"count"`
	SampleURLs []string `json:"sampleUrls"`
}

// Findings holds the results of the local detection passes.
type Findings struct {
	AntiBot      []Finding    `json:"antiBot"`
	Technology   []Finding    `json:"technology"`
	DataDelivery DataDelivery `json:"dataDelivery"`
	Pagination   []Finding    `json:"pagination"`
	Auth         []Finding    `json:"auth"`
	Cookies      []string     `json:"cookies"`
}

// Finding is a single detection hit.
type Finding struct {
	Label    string `json:"label"`
	Evidence string `json:"evidence,omitempty"`
}

// Data delivery classifications.
const (
	DeliveryServerRendered = "server-rendered"
	DeliverySPA            = "single-page-app"
	DeliveryHybrid         = "hybrid"
)

// DataDelivery classifies how the page receives its content.
type DataDelivery struct {
	Mode     string   `json:"mode"`
	Evidence []string `json:"evidence"`
}

// New returns a report with every section initialized so that an analysis
// where every pass comes up empty still serializes with all keys present.
func New(url string) *Report {
	return &Report{
		URL: url,
		Network: NetworkSummary{
			Endpoints: []Endpoint{},
		},
		WindowSignatures: map[string]string{},
		Findings: Findings{
			AntiBot:    []Finding{},
			Technology: []Finding{},
			DataDelivery: DataDelivery{
				Mode:     DeliveryServerRendered,
				Evidence: []string{},
			},
			Pagination: []Finding{},
			Auth:       []Finding{},
			Cookies:    []string{},
		},
	}
}

// Normalize replaces nil sections with their empty forms. Callers that build
// a report piecemeal run this before handing it to serialization or rendering.
func (r *Report) Normalize() {
	if r.Network.Endpoints == nil {
		r.Network.Endpoints = []Endpoint{}
	}
	if r.WindowSignatures == nil {
		r.WindowSignatures = map[string]string{}
	}
	if r.Findings.AntiBot == nil {
		r.Findings.AntiBot = []Finding{}
	}
	if r.Findings.Technology == nil {
		r.Findings.Technology = []Finding{}
	}
	if r.Findings.DataDelivery.Mode == "" {
		r.Findings.DataDelivery.Mode = DeliveryServerRendered
	}
	if r.Findings.DataDelivery.Evidence == nil {
		r.Findings.DataDelivery.Evidence = []string{}
	}
	if r.Findings.Pagination == nil {
		r.Findings.Pagination = []Finding{}
	}
	if r.Findings.Auth == nil {
		r.Findings.Auth = []Finding{}
	}
	if r.Findings.Cookies == nil {
		r.Findings.Cookies = []string{}
	}
}
