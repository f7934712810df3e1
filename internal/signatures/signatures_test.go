package signatures

import (
	"testing"
)

func TestGetSignatures(t *testing.T) {
	sig := Get()

	if sig == nil {
		t.Fatal("Get() returned nil")
	}

	if len(sig.WindowProperties) < 20 {
		t.Errorf("Expected at least 20 window properties, got %d", len(sig.WindowProperties))
	}
	if len(sig.AssetSuffixes) < 10 {
		t.Errorf("Expected at least 10 asset suffixes, got %d", len(sig.AssetSuffixes))
	}
	if len(sig.VendorHosts) < 10 {
		t.Errorf("Expected at least 10 vendor hosts, got %d", len(sig.VendorHosts))
	}
	if len(sig.AntiBotCookies) == 0 {
		t.Error("Expected anti-bot cookie patterns")
	}
	if len(sig.Technology) == 0 {
		t.Error("Expected technology patterns")
	}
	if len(sig.PaginationParams) == 0 {
		t.Error("Expected pagination parameters")
	}
	if len(sig.AuthCookies) == 0 {
		t.Error("Expected auth cookie patterns")
	}
	if len(sig.SPAMarkers) == 0 {
		t.Error("Expected SPA markers")
	}
}

func TestGetSignaturesSingleton(t *testing.T) {
	sig1 := Get()
	sig2 := Get()

	if sig1 != sig2 {
		t.Error("Expected Get() to return the same instance")
	}
}

func TestSignaturesContainExpectedEntries(t *testing.T) {
	sig := Get()

	wantProps := map[string]string{
		"grecaptcha":    "Google reCAPTCHA",
		"__NEXT_DATA__": "Next.js",
		"jQuery":        "jQuery",
	}
	for prop, label := range wantProps {
		found := false
		for _, wp := range sig.WindowProperties {
			if wp.Property == prop {
				found = true
				if wp.Label != label {
					t.Errorf("Property %q label = %q, want %q", prop, wp.Label, label)
				}
				break
			}
		}
		if !found {
			t.Errorf("Expected window property %q not found", prop)
		}
	}

	for _, suffix := range []string{".css", ".js", ".woff2"} {
		found := false
		for _, s := range sig.AssetSuffixes {
			if s == suffix {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected asset suffix %q not found", suffix)
		}
	}

	for _, host := range []string{"google-analytics.com", "doubleclick.net"} {
		found := false
		for _, h := range sig.VendorHosts {
			if h == host {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected vendor host %q not found", host)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		sig     Signatures
		wantErr bool
	}{
		{
			name:    "empty tables",
			sig:     Signatures{},
			wantErr: true,
		},
		{
			name: "window properties only",
			sig: Signatures{
				WindowProperties: []WindowProperty{{Property: "jQuery", Label: "jQuery"}},
			},
			wantErr: false,
		},
		{
			name: "asset suffixes only",
			sig: Signatures{
				AssetSuffixes: []string{".css"},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sig.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultSignatures(t *testing.T) {
	sig := defaultSignatures()

	if err := sig.Validate(); err != nil {
		t.Errorf("defaultSignatures() failed validation: %v", err)
	}
	if len(sig.AssetSuffixes) == 0 || len(sig.VendorHosts) == 0 {
		t.Error("Fallback tables must keep the relevance filter working")
	}
}
