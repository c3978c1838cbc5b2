package server

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestApplyTimeDefaults(t *testing.T) {
	tests := []struct {
		name    string
		input   *Config
		wantTTL int64
	}{
		{
			name:    "zero gets default",
			input:   &Config{},
			wantTTL: 600,
		},
		{
			name:    "negative gets default",
			input:   &Config{RequestTTL: -5},
			wantTTL: 600,
		},
		{
			name:    "custom value preserved",
			input:   &Config{RequestTTL: 90},
			wantTTL: 90,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applyTimeDefaults(tt.input)
			if tt.input.RequestTTL != tt.wantTTL {
				t.Errorf("RequestTTL = %d, want %d", tt.input.RequestTTL, tt.wantTTL)
			}
		})
	}
}

func TestApplyLimitDefaults(t *testing.T) {
	tests := []struct {
		name             string
		input            *Config
		wantBytes        int
		wantAttempts     int
		wantPath         string
		wantBody         int64
		wantProxyCount   int
		wantResponseType string
	}{
		{
			name:             "all zeros should get defaults",
			input:            &Config{},
			wantBytes:        32,
			wantAttempts:     3,
			wantPath:         "/oauth/par",
			wantBody:         65536,
			wantProxyCount:   1,
			wantResponseType: "code",
		},
		{
			name:             "short references are raised to the minimum",
			input:            &Config{ReferenceBytes: 8},
			wantBytes:        16,
			wantAttempts:     3,
			wantPath:         "/oauth/par",
			wantBody:         65536,
			wantProxyCount:   1,
			wantResponseType: "code",
		},
		{
			name: "custom values should be preserved",
			input: &Config{
				ReferenceBytes:         48,
				MaxReferenceAttempts:   5,
				ParEndpointPath:        "/par",
				MaxRequestBodyBytes:    1024,
				TrustedProxyCount:      2,
				SupportedResponseTypes: []string{"code id_token"},
			},
			wantBytes:        48,
			wantAttempts:     5,
			wantPath:         "/par",
			wantBody:         1024,
			wantProxyCount:   2,
			wantResponseType: "code id_token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applyLimitDefaults(tt.input)

			if tt.input.ReferenceBytes != tt.wantBytes {
				t.Errorf("ReferenceBytes = %d, want %d", tt.input.ReferenceBytes, tt.wantBytes)
			}
			if tt.input.MaxReferenceAttempts != tt.wantAttempts {
				t.Errorf("MaxReferenceAttempts = %d, want %d", tt.input.MaxReferenceAttempts, tt.wantAttempts)
			}
			if tt.input.ParEndpointPath != tt.wantPath {
				t.Errorf("ParEndpointPath = %q, want %q", tt.input.ParEndpointPath, tt.wantPath)
			}
			if tt.input.MaxRequestBodyBytes != tt.wantBody {
				t.Errorf("MaxRequestBodyBytes = %d, want %d", tt.input.MaxRequestBodyBytes, tt.wantBody)
			}
			if tt.input.TrustedProxyCount != tt.wantProxyCount {
				t.Errorf("TrustedProxyCount = %d, want %d", tt.input.TrustedProxyCount, tt.wantProxyCount)
			}
			if len(tt.input.SupportedResponseTypes) != 1 || tt.input.SupportedResponseTypes[0] != tt.wantResponseType {
				t.Errorf("SupportedResponseTypes = %v, want [%s]", tt.input.SupportedResponseTypes, tt.wantResponseType)
			}
		})
	}
}

func TestApplySecurityDefaults(t *testing.T) {
	tests := []struct {
		name            string
		input           *Config
		wantRequirePKCE bool
		wantPlain       bool
	}{
		{
			name:            "default config gets secure defaults",
			input:           &Config{},
			wantRequirePKCE: true,
		},
		{
			name:            "explicit plain keeps PKCE optional",
			input:           &Config{AllowPKCEPlain: true},
			wantRequirePKCE: false,
			wantPlain:       true,
		},
		{
			name:            "explicitly enabled security features stay enabled",
			input:           &Config{RequirePKCE: true},
			wantRequirePKCE: true,
		},
		{
			name:            "RequirePKCE false alone is treated as unset",
			input:           &Config{RequirePKCE: false},
			wantRequirePKCE: true,
		},
		{
			name:            "DisablePKCE opts out",
			input:           &Config{DisablePKCE: true},
			wantRequirePKCE: false,
		},
		{
			name:            "DisablePKCE wins over RequirePKCE",
			input:           &Config{RequirePKCE: true, DisablePKCE: true},
			wantRequirePKCE: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			applySecurityDefaults(tt.input, logger)

			if tt.input.RequirePKCE != tt.wantRequirePKCE {
				t.Errorf("RequirePKCE = %v, want %v", tt.input.RequirePKCE, tt.wantRequirePKCE)
			}
			if tt.input.AllowPKCEPlain != tt.wantPlain {
				t.Errorf("AllowPKCEPlain = %v, want %v", tt.input.AllowPKCEPlain, tt.wantPlain)
			}
		})
	}
}

func TestLogSecurityWarnings(t *testing.T) {
	tests := []struct {
		name         string
		config       *Config
		wantWarnings []string
		notWanted    []string
	}{
		{
			name:      "secure config logs nothing",
			config:    &Config{RequirePKCE: true, RequestTTL: 600},
			notWanted: []string{"WARNING", "NOTICE"},
		},
		{
			name:         "PKCE disabled",
			config:       &Config{RequirePKCE: false},
			wantWarnings: []string{"PKCE is DISABLED"},
		},
		{
			name:         "plain PKCE",
			config:       &Config{RequirePKCE: true, AllowPKCEPlain: true},
			wantWarnings: []string{"Plain PKCE method is ALLOWED"},
		},
		{
			name:         "proxy trust",
			config:       &Config{RequirePKCE: true, TrustProxy: true},
			wantWarnings: []string{"Trusting proxy headers"},
		},
		{
			name:         "reuse allowed",
			config:       &Config{RequirePKCE: true, AllowReuse: true},
			wantWarnings: []string{"request_uri reuse is ALLOWED"},
		},
		{
			name:         "long lifetime",
			config:       &Config{RequirePKCE: true, RequestTTL: 7200},
			wantWarnings: []string{"long request lifetime"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			logSecurityWarnings(tt.config, logger)

			out := buf.String()
			for _, want := range tt.wantWarnings {
				if !strings.Contains(out, want) {
					t.Errorf("expected log to contain %q, got: %s", want, out)
				}
			}
			for _, unwanted := range tt.notWanted {
				if strings.Contains(out, unwanted) {
					t.Errorf("expected log not to contain %q, got: %s", unwanted, out)
				}
			}
		})
	}
}

func TestApplySecureDefaults_TrimsIssuer(t *testing.T) {
	config := applySecureDefaults(&Config{Issuer: "https://auth.example.com/"}, slog.Default())
	if config.Issuer != "https://auth.example.com" {
		t.Errorf("Issuer = %q, want trailing slash removed", config.Issuer)
	}
}

func TestConfig_GetRequestTTL(t *testing.T) {
	if got := (&Config{}).GetRequestTTL(); got != DefaultRequestTTL {
		t.Errorf("GetRequestTTL() = %d, want %d", got, DefaultRequestTTL)
	}
	if got := (&Config{RequestTTL: 30}).GetRequestTTL(); got != 30 {
		t.Errorf("GetRequestTTL() = %d, want 30", got)
	}
}
