// Package signatures provides detection signature loading and management.
package signatures

import (
	"embed"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed signatures.yaml
var defaultSignaturesFS embed.FS

// WindowProperty maps a page global to the product or framework it implies.
type WindowProperty struct {
	Property string `yaml:"property"`
	Label    string `yaml:"label"`
}

// Pattern is a case-insensitive substring match paired with a label.
type Pattern struct {
	Match string `yaml:"match"`
	Label string `yaml:"label"`
}

// Signatures contains all detection tables used by the scanner and the
// collector passes.
type Signatures struct {
	WindowProperties []WindowProperty `yaml:"window_properties"`

	AntiBotCookies []Pattern `yaml:"anti_bot_cookies"`
	AntiBotMarkers []Pattern `yaml:"anti_bot_markers"`

	Technology        []Pattern `yaml:"technology"`
	TechnologyCookies []Pattern `yaml:"technology_cookies"`

	AssetSuffixes []string `yaml:"asset_suffixes"`
	VendorHosts   []string `yaml:"vendor_hosts"`

	PaginationMarkers []Pattern `yaml:"pagination_markers"`
	PaginationParams  []string  `yaml:"pagination_params"`

	AuthCookies []Pattern `yaml:"auth_cookies"`
	AuthMarkers []Pattern `yaml:"auth_markers"`

	SPAMarkers []string `yaml:"spa_markers"`
}

var (
	instance *Signatures
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Signatures instance.
// Tables are loaded from the embedded signatures.yaml file.
func Get() *Signatures {
	once.Do(func() {
		instance, loadErr = load()
		if loadErr != nil {
			log.Error().Err(loadErr).Msg("Failed to load signatures, using defaults")
			instance = defaultSignatures()
		}
	})
	return instance
}

// load reads signatures from the embedded YAML file.
func load() (*Signatures, error) {
	data, err := defaultSignaturesFS.ReadFile("signatures.yaml")
	if err != nil {
		return nil, err
	}

	var s Signatures
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	log.Debug().
		Int("window_properties", len(s.WindowProperties)).
		Int("anti_bot_cookies", len(s.AntiBotCookies)).
		Int("asset_suffixes", len(s.AssetSuffixes)).
		Int("vendor_hosts", len(s.VendorHosts)).
		Msg("Signatures loaded")

	return &s, nil
}

// defaultSignatures returns a hardcoded fallback subset of the embedded
// tables, enough to keep the relevance filter and the core passes working.
func defaultSignatures() *Signatures {
	return &Signatures{
		WindowProperties: []WindowProperty{
			{Property: "_cf_chl_opt", Label: "Cloudflare challenge"},
			{Property: "turnstile", Label: "Cloudflare Turnstile"},
			{Property: "grecaptcha", Label: "Google reCAPTCHA"},
			{Property: "jQuery", Label: "jQuery"},
			{Property: "__NEXT_DATA__", Label: "Next.js"},
		},
		AntiBotCookies: []Pattern{
			{Match: "__cf_bm", Label: "Cloudflare Bot Management"},
			{Match: "cf_clearance", Label: "Cloudflare clearance"},
			{Match: "datadome", Label: "DataDome"},
		},
		AntiBotMarkers: []Pattern{
			{Match: "challenges.cloudflare.com", Label: "Cloudflare challenge"},
			{Match: "cf-turnstile", Label: "Cloudflare Turnstile"},
		},
		Technology: []Pattern{
			{Match: "wp-content", Label: "WordPress"},
			{Match: "cdn.shopify.com", Label: "Shopify"},
		},
		AssetSuffixes: []string{
			".css", ".js", ".png", ".jpg", ".gif", ".svg", ".ico", ".woff", ".woff2",
		},
		VendorHosts: []string{
			"google-analytics.com", "googletagmanager.com", "doubleclick.net",
		},
		PaginationParams: []string{"page", "offset", "cursor"},
		AuthCookies: []Pattern{
			{Match: "sessionid", Label: "Session cookie"},
		},
		SPAMarkers: []string{`id="root"`, `id="app"`, `id="__next"`},
	}
}
