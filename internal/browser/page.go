package browser

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"
)

// Default viewport matching the launcher's window-size flag.
const (
	defaultViewportWidth  = 1920
	defaultViewportHeight = 1080
)

// DefaultUserAgent is presented to pages so anti-bot vendors see an
// ordinary desktop Chrome rather than a bare automation UA.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// NewStealthPage creates a page with automation fingerprints patched before
// any document script runs. Monitored pages are always created through here:
// a page that looks automated gets served different network behavior than
// the one the operator is trying to diagnose.
func NewStealthPage(browser *rod.Browser) (*rod.Page, error) {
	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("failed to create stealth page: %w", err)
	}

	if err := SetUserAgent(page, DefaultUserAgent); err != nil {
		_ = page.Close()
		return nil, err
	}
	if err := SetViewport(page, defaultViewportWidth, defaultViewportHeight); err != nil {
		_ = page.Close()
		return nil, err
	}

	log.Debug().Msg("Stealth page created")
	return page, nil
}

// SetUserAgent overrides the page's user agent and accept language.
func SetUserAgent(page *rod.Page, userAgent string) error {
	err := proto.NetworkSetUserAgentOverride{
		UserAgent:      userAgent,
		AcceptLanguage: "en-US,en;q=0.9",
		Platform:       "Win32",
	}.Call(page)
	if err != nil {
		return fmt.Errorf("failed to set user agent: %w", err)
	}
	return nil
}

// SetViewport sets the page viewport dimensions.
func SetViewport(page *rod.Page, width, height int) error {
	err := proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}.Call(page)
	if err != nil {
		return fmt.Errorf("failed to set viewport: %w", err)
	}
	return nil
}
