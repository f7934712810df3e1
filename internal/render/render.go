// Package render produces the HTML surfaces of the service: the status page
// and the human-readable report view. Everything that originates from an
// analyzed page (URLs, window property names, detection evidence) passes
// through html/template so it is escaped before it reaches a browser.
package render

import (
	"bytes"
	"html"
	"html/template"
	"regexp"
	"time"

	"github.com/Rorqualx/pagerecon-go/internal/report"
)

// versionSanitizer strips characters that have no business in a version
// string. Prevents XSS via build-time ldflags injection.
var versionSanitizer = regexp.MustCompile(`[^a-zA-Z0-9.\-_+]`)

// SanitizeVersion sanitizes a version string before it is rendered.
// Returns "unknown" if the result is empty after sanitization.
func SanitizeVersion(version string) string {
	escaped := html.EscapeString(version)
	sanitized := versionSanitizer.ReplaceAllString(escaped, "")
	if sanitized == "" {
		return "unknown"
	}
	if len(sanitized) > 100 {
		sanitized = sanitized[:100]
	}
	return sanitized
}

// StatusPageData contains the data for rendering the status page.
type StatusPageData struct {
	Version   string
	GoVersion string
	Uptime    string
	PoolSize  int
	Sessions  int
}

var statusPageTemplate = template.Must(template.New("status").Parse(statusPageHTML))

// RenderStatusPage renders the service status page.
func RenderStatusPage(data StatusPageData) (string, error) {
	// Pre-sanitize version as defense in depth on top of template escaping
	data.Version = SanitizeVersion(data.Version)

	var buf bytes.Buffer
	if err := statusPageTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// reportPageData wraps a report with presentation fields.
type reportPageData struct {
	*report.Report
	GeneratedTime string
}

var reportPageTemplate = template.Must(template.New("report").Parse(reportPageHTML))

// RenderReport renders a report as a standalone HTML page. Every value in the
// report came from an untrusted page, so nothing here may bypass escaping.
func RenderReport(r *report.Report) (string, error) {
	r.Normalize()

	data := reportPageData{Report: r}
	if r.GeneratedAt > 0 {
		data.GeneratedTime = time.UnixMilli(r.GeneratedAt).UTC().Format(time.RFC3339)
	}

	var buf bytes.Buffer
	if err := reportPageTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const statusPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>PageRecon Status</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: linear-gradient(135deg, #1a1a2e 0%, #16213e 100%);
            color: #e0e0e0;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            margin: 0;
        }
        .container {
            text-align: center;
            padding: 2rem;
            background: rgba(255,255,255,0.05);
            border-radius: 16px;
            box-shadow: 0 8px 32px rgba(0,0,0,0.3);
            max-width: 500px;
        }
        h1 {
            color: #00d9ff;
            margin-bottom: 0.5rem;
            font-size: 2.5rem;
        }
        .subtitle {
            color: #888;
            margin-bottom: 2rem;
        }
        .status {
            display: inline-flex;
            align-items: center;
            gap: 0.5rem;
            padding: 0.75rem 1.5rem;
            background: rgba(0, 255, 128, 0.1);
            border: 1px solid rgba(0, 255, 128, 0.3);
            border-radius: 8px;
            color: #00ff80;
            font-weight: 600;
            margin-bottom: 1.5rem;
        }
        .info {
            text-align: left;
            background: rgba(0,0,0,0.2);
            padding: 1rem;
            border-radius: 8px;
            font-family: monospace;
            font-size: 0.9rem;
        }
        .info div {
            padding: 0.25rem 0;
        }
        .label {
            color: #888;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>PageRecon</h1>
        <p class="subtitle">Page Diagnostic Service</p>
        <div class="status">Service Healthy</div>
        <div class="info">
            <div><span class="label">Version:</span> {{.Version}}</div>
            <div><span class="label">Go Version:</span> {{.GoVersion}}</div>
            <div><span class="label">Uptime:</span> {{.Uptime}}</div>
            <div><span class="label">Pool Size:</span> {{.PoolSize}}</div>
            <div><span class="label">Sessions:</span> {{.Sessions}}</div>
        </div>
    </div>
</body>
</html>`

const reportPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>PageRecon Report</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #16213e;
            color: #e0e0e0;
            margin: 0;
            padding: 2rem;
        }
        h1 { color: #00d9ff; }
        h2 {
            color: #00d9ff;
            border-bottom: 1px solid rgba(255,255,255,0.1);
            padding-bottom: 0.25rem;
            margin-top: 2rem;
        }
        .meta { color: #888; font-family: monospace; }
        table {
            border-collapse: collapse;
            width: 100%;
            font-size: 0.9rem;
        }
        th, td {
            text-align: left;
            padding: 0.4rem 0.75rem;
            border-bottom: 1px solid rgba(255,255,255,0.08);
        }
        th { color: #888; font-weight: 600; }
        code {
            font-family: monospace;
            background: rgba(0,0,0,0.3);
            padding: 0.1rem 0.3rem;
            border-radius: 4px;
        }
        .empty { color: #666; font-style: italic; }
        .badge {
            display: inline-block;
            padding: 0.2rem 0.6rem;
            border-radius: 6px;
            background: rgba(0, 217, 255, 0.12);
            border: 1px solid rgba(0, 217, 255, 0.35);
            color: #00d9ff;
            margin: 0.15rem;
            font-size: 0.85rem;
        }
    </style>
</head>
<body>
    <h1>PageRecon Report</h1>
    <p class="meta">{{.URL}}{{if .GeneratedTime}} &middot; {{.GeneratedTime}}{{end}}</p>

    <h2>Network ({{.Network.TotalRequests}} relevant requests)</h2>
    {{if .Network.Endpoints}}
    <table>
        <tr><th>Endpoint</th><th>Methods</th><th>Count</th><th>Samples</th></tr>
        {{range .Network.Endpoints}}
        <tr>
            <td><code>{{.Endpoint}}</code></td>
            <td>{{range .Methods}}<span class="badge">{{.}}</span>{{end}}</td>
            <td>{{.Count}}</td>
            <td>{{range .SampleURLs}}<div><code>{{.}}</code></div>{{end}}</td>
        </tr>
        {{end}}
    </table>
    {{else}}<p class="empty">No relevant network traffic observed.</p>{{end}}

    <h2>Window Signatures</h2>
    {{if .WindowSignatures}}
    <table>
        <tr><th>Property</th><th>Category</th></tr>
        {{range $name, $category := .WindowSignatures}}
        <tr><td><code>{{$name}}</code></td><td>{{$category}}</td></tr>
        {{end}}
    </table>
    {{else}}<p class="empty">No known window properties detected.</p>{{end}}

    <h2>Anti-Bot</h2>
    {{if .Findings.AntiBot}}
    {{range .Findings.AntiBot}}<div><span class="badge">{{.Label}}</span>{{if .Evidence}} <code>{{.Evidence}}</code>{{end}}</div>{{end}}
    {{else}}<p class="empty">Nothing detected.</p>{{end}}

    <h2>Technology</h2>
    {{if .Findings.Technology}}
    {{range .Findings.Technology}}<div><span class="badge">{{.Label}}</span>{{if .Evidence}} <code>{{.Evidence}}</code>{{end}}</div>{{end}}
    {{else}}<p class="empty">Nothing detected.</p>{{end}}

    <h2>Data Delivery</h2>
    <p><span class="badge">{{.Findings.DataDelivery.Mode}}</span></p>
    {{range .Findings.DataDelivery.Evidence}}<div><code>{{.}}</code></div>{{end}}

    <h2>Pagination</h2>
    {{if .Findings.Pagination}}
    {{range .Findings.Pagination}}<div><span class="badge">{{.Label}}</span>{{if .Evidence}} <code>{{.Evidence}}</code>{{end}}</div>{{end}}
    {{else}}<p class="empty">Nothing detected.</p>{{end}}

    <h2>Auth</h2>
    {{if .Findings.Auth}}
    {{range .Findings.Auth}}<div><span class="badge">{{.Label}}</span>{{if .Evidence}} <code>{{.Evidence}}</code>{{end}}</div>{{end}}
    {{else}}<p class="empty">Nothing detected.</p>{{end}}

    <h2>Cookies</h2>
    {{if .Findings.Cookies}}
    {{range .Findings.Cookies}}<span class="badge">{{.}}</span>{{end}}
    {{else}}<p class="empty">No notable cookies.</p>{{end}}
</body>
</html>`
