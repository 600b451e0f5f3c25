package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/dgellow/signin-front/internal/urlutil"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

var knownSections = []string{"version", "server", "provider", "login", "session", "storage"}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ValidateBytes(data), nil
}

// ValidateBytes is ValidateFile for an in-memory document.
func ValidateBytes(data []byte) *ValidationResult {
	result := &ValidationResult{}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result
	}

	checkBashStyleSyntax(rawConfig, "", result)

	for key := range rawConfig {
		if !slices.Contains(knownSections, key) {
			result.addWarning(key, "unknown top-level field '%s' is ignored", key)
		}
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": \"%s\"", Version)
	} else if version != Version {
		result.addError("version", "unsupported version '%s' - use '%s'", version, Version)
	}

	validateServerStructure(rawConfig, result)
	validateProviderStructure(rawConfig, result)
	validateLoginStructure(rawConfig, result)
	validateSessionStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)

	return result
}

func section(rawConfig map[string]any, name string, required bool, result *ValidationResult) (map[string]any, bool) {
	value, exists := rawConfig[name]
	if !exists {
		if required {
			result.addError(name, "%s field is required and must be an object", name)
		}
		return nil, false
	}
	obj, ok := value.(map[string]any)
	if !ok {
		result.addError(name, "%s must be an object", name)
		return nil, false
	}
	return obj, true
}

func validateServerStructure(rawConfig map[string]any, result *ValidationResult) {
	server, ok := section(rawConfig, "server", true, result)
	if !ok {
		return
	}
	if _, ok := server["addr"]; !ok {
		result.addError("server.addr", "addr is required. Example: \":8080\" or \"0.0.0.0:8080\"")
	}
	if _, ok := server["baseURL"]; !ok {
		result.addError("server.baseURL", "baseURL is required. Example: \"https://login.example.com\"")
	}
	if origins, ok := server["allowedOrigins"]; ok {
		if _, isList := origins.([]any); !isList {
			result.addError("server.allowedOrigins", "allowedOrigins must be an array of origins")
		}
	}
	if rl, ok := server["rateLimit"].(map[string]any); ok {
		if perSecond, ok := rl["perSecond"].(float64); ok && perSecond < 0 {
			result.addError("server.rateLimit.perSecond", "perSecond cannot be negative")
		}
		if burst, ok := rl["burst"].(float64); ok && burst < 0 {
			result.addError("server.rateLimit.burst", "burst cannot be negative")
		}
	}
}

func validateProviderStructure(rawConfig map[string]any, result *ValidationResult) {
	provider, ok := section(rawConfig, "provider", true, result)
	if !ok {
		return
	}

	providerType := string(ProviderTypeGoogle)
	if t, exists := provider["type"]; exists {
		s, isString := t.(string)
		if !isString {
			result.addError("provider.type", "type must be a string. Options: google, oidc")
			return
		}
		providerType = s
	}

	if _, ok := provider["clientId"]; !ok {
		result.addError("provider.clientId", "clientId is required")
	}
	if secret, ok := provider["clientSecret"]; !ok {
		result.addError("provider.clientSecret", "clientSecret is required")
	} else if err := validateEnvVarReference(secret, "clientSecret", "provider.clientSecret"); err != nil {
		result.Errors = append(result.Errors, *err)
	}
	checkDuration(provider, "timeout", "provider.timeout", result)

	switch ProviderType(providerType) {
	case ProviderTypeGoogle:
	case ProviderTypeOIDC:
		if _, hasDiscovery := provider["discoveryUrl"]; !hasDiscovery {
			for _, endpoint := range []string{"authorizationUrl", "tokenUrl", "userInfoUrl"} {
				if _, ok := provider[endpoint]; !ok {
					result.addError("provider."+endpoint, "%s is required for OIDC provider when discoveryUrl is not provided", endpoint)
				}
			}
		}
	default:
		result.addError("provider.type", "unknown provider '%s' - supported providers: google, oidc", providerType)
	}
}

func validateLoginStructure(rawConfig map[string]any, result *ValidationResult) {
	login, ok := section(rawConfig, "login", true, result)
	if !ok {
		return
	}
	origins, ok := login["allowedReturnOrigins"].([]any)
	if !ok || len(origins) == 0 {
		result.addError("login.allowedReturnOrigins", "at least one allowed return origin is required. Example: [\"http://localhost:5173\"]")
	}
	for i, o := range origins {
		s, isString := o.(string)
		if !isString {
			result.addError(fmt.Sprintf("login.allowedReturnOrigins[%d]", i), "origin must be a string, got %T", o)
			continue
		}
		if _, err := urlutil.NewReturnURLPolicy([]string{s}); err != nil {
			result.addError(fmt.Sprintf("login.allowedReturnOrigins[%d]", i), "%v", err)
		}
	}
	checkDuration(login, "stateTtl", "login.stateTtl", result)
}

func validateSessionStructure(rawConfig map[string]any, result *ValidationResult) {
	session, ok := section(rawConfig, "session", true, result)
	if !ok {
		return
	}
	if key, ok := session["signingKey"]; !ok {
		result.addError("session.signingKey", "signingKey is required. Hint: Must be at least %d bytes long for HMAC-SHA256", MinSigningKeyLength)
	} else if err := validateEnvVarReference(key, "signingKey", "session.signingKey"); err != nil {
		result.Errors = append(result.Errors, *err)
	}
	checkDuration(session, "ttl", "session.ttl", result)
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := section(rawConfig, "storage", false, result)
	if !ok {
		return
	}
	kind, _ := storage["kind"].(string)
	switch StorageKind(kind) {
	case "", StorageKindMemory:
		if _, ok := storage["gcpProject"]; ok {
			result.addWarning("storage.gcpProject", "gcpProject is ignored for memory storage")
		}
	case StorageKindFirestore:
		if _, ok := storage["gcpProject"]; !ok {
			result.addError("storage.gcpProject", "gcpProject is required for firestore storage")
		}
	default:
		result.addError("storage.kind", "unknown storage kind '%s' - supported kinds: memory, firestore", kind)
	}

	cleanup, cleanupOK := checkDuration(storage, "cleanupInterval", "storage.cleanupInterval", result)
	if login, ok := rawConfig["login"].(map[string]any); ok && cleanupOK {
		if ttlStr, ok := login["stateTtl"].(string); ok {
			if ttl, err := time.ParseDuration(ttlStr); err == nil && cleanup > ttl {
				result.addWarning("storage.cleanupInterval",
					"cleanupInterval (%s) is longer than login.stateTtl (%s). Expired login requests will remain stored until cleanup runs.",
					cleanup, ttlStr)
			}
		}
	}
}

// checkDuration reports a malformed duration string. It returns the parsed
// value and whether one was present and valid.
func checkDuration(obj map[string]any, key, path string, result *ValidationResult) (time.Duration, bool) {
	value, exists := obj[key]
	if !exists {
		return 0, false
	}
	s, ok := value.(string)
	if !ok {
		result.addError(path, "%s must be a duration string such as \"5m\"", key)
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		result.addError(path, "invalid duration '%s': %v", s, err)
		return 0, false
	}
	if d <= 0 {
		result.addError(path, "%s must be positive", key)
		return 0, false
	}
	return d, true
}

// validateEnvVarReference validates that a field uses proper env var reference format
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		bashStyleRegex := regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", v, matches[1]),
			}
		}
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	bashStyleRegex := regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)

	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI and ensures unambiguous parsing", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
