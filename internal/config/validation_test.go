package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBytes(t *testing.T) {
	tests := []struct {
		name          string
		config        string
		wantErrors    []string
		wantWarnings  []string
		wantErrCount  int
		wantWarnCount int
	}{
		{
			name:          "valid_minimal",
			config:        minimalConfig,
			wantErrCount:  0,
			wantWarnCount: 0,
		},
		{
			name:         "invalid_json",
			config:       `{"version": }`,
			wantErrors:   []string{"invalid JSON"},
			wantErrCount: 1,
		},
		{
			name:         "missing_sections",
			config:       `{"version": "v1"}`,
			wantErrors:   []string{"server field is required", "provider field is required", "login field is required", "session field is required"},
			wantErrCount: 4,
		},
		{
			name: "plain_text_secrets",
			config: `{
				"version": "v1",
				"server": {"addr": ":8080", "baseURL": "https://login.example.com"},
				"provider": {"clientId": "id", "clientSecret": "shh"},
				"login": {"allowedReturnOrigins": ["http://localhost:5173"]},
				"session": {"signingKey": "$SESSION_KEY"}
			}`,
			wantErrors:    []string{"clientSecret must use environment variable reference", "found bash-style syntax '$SESSION_KEY'"},
			wantWarnings:  []string{"bash-style syntax"},
			wantErrCount:  2,
			wantWarnCount: 1,
		},
		{
			name: "oidc_missing_endpoints",
			config: `{
				"version": "v1",
				"server": {"addr": ":8080", "baseURL": "https://login.example.com"},
				"provider": {"type": "oidc", "clientId": "id", "clientSecret": {"$env": "X"}, "tokenUrl": "https://idp/token"},
				"login": {"allowedReturnOrigins": ["http://localhost:5173"]},
				"session": {"signingKey": {"$env": "Y"}}
			}`,
			wantErrors:   []string{"authorizationUrl is required", "userInfoUrl is required"},
			wantErrCount: 2,
		},
		{
			name: "bad_origin_and_duration",
			config: `{
				"version": "v1",
				"server": {"addr": ":8080", "baseURL": "https://login.example.com"},
				"provider": {"clientId": "id", "clientSecret": {"$env": "X"}, "timeout": "soon"},
				"login": {"allowedReturnOrigins": ["localhost:5173"], "stateTtl": "-1m"},
				"session": {"signingKey": {"$env": "Y"}}
			}`,
			wantErrors:   []string{"invalid duration 'soon'", "invalid origin", "stateTtl must be positive"},
			wantErrCount: 3,
		},
		{
			name: "firestore_without_project_and_slow_cleanup",
			config: `{
				"version": "v1",
				"server": {"addr": ":8080", "baseURL": "https://login.example.com"},
				"provider": {"clientId": "id", "clientSecret": {"$env": "X"}},
				"login": {"allowedReturnOrigins": ["http://localhost:5173"], "stateTtl": "5m"},
				"session": {"signingKey": {"$env": "Y"}},
				"storage": {"kind": "firestore", "cleanupInterval": "10m"},
				"extra": true
			}`,
			wantErrors:    []string{"gcpProject is required for firestore storage"},
			wantWarnings:  []string{"longer than login.stateTtl", "unknown top-level field 'extra'"},
			wantErrCount:  1,
			wantWarnCount: 2,
		},
		{
			name: "unknown_storage_kind",
			config: `{
				"version": "v2",
				"server": {"addr": ":8080", "baseURL": "https://login.example.com"},
				"provider": {"clientId": "id", "clientSecret": {"$env": "X"}},
				"login": {"allowedReturnOrigins": ["http://localhost:5173"]},
				"session": {"signingKey": {"$env": "Y"}},
				"storage": {"kind": "redis"}
			}`,
			wantErrors:   []string{"unsupported version 'v2'", "unknown storage kind 'redis'"},
			wantErrCount: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateBytes([]byte(tt.config))

			assert.Len(t, result.Errors, tt.wantErrCount, "errors: %+v", result.Errors)
			assert.Len(t, result.Warnings, tt.wantWarnCount, "warnings: %+v", result.Warnings)
			assert.Equal(t, tt.wantErrCount == 0, result.IsValid())

			for _, want := range tt.wantErrors {
				assert.True(t, containsMessage(result.Errors, want), "expected error containing %q in %+v", want, result.Errors)
			}
			for _, want := range tt.wantWarnings {
				assert.True(t, containsMessage(result.Warnings, want), "expected warning containing %q in %+v", want, result.Warnings)
			}
		})
	}
}

func TestValidateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(minimalConfig), 0o600))

	result, err := ValidateFile(path)
	require.NoError(t, err)
	assert.True(t, result.IsValid())

	_, err = ValidateFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func containsMessage(errs []ValidationError, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
