package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrReturnURLNotAllowed is returned for return URLs outside the allow-list.
var ErrReturnURLNotAllowed = errors.New("return URL not allowed")

// ReturnURLPolicy decides which caller-supplied return URLs the service
// will redirect a browser to after login or logout. A return URL is
// accepted only when its origin (scheme://host[:port]) exactly matches one
// of the configured origins.
type ReturnURLPolicy struct {
	origins map[string]struct{}
}

// NewReturnURLPolicy builds a policy from origins such as
// "http://localhost:5173". Paths, queries and fragments are rejected.
func NewReturnURLPolicy(origins []string) (*ReturnURLPolicy, error) {
	p := &ReturnURLPolicy{origins: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		origin, err := parseOrigin(o)
		if err != nil {
			return nil, err
		}
		p.origins[origin] = struct{}{}
	}
	return p, nil
}

func parseOrigin(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(raw, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid origin %q: scheme must be http or https", raw)
	}
	if u.Host == "" || u.User != nil || u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("invalid origin %q: expected scheme://host[:port]", raw)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}

// Validate parses raw and returns its normalized form if the origin is
// allowed. Relative URLs, userinfo and non-http(s) schemes are rejected.
func (p *ReturnURLPolicy) Validate(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrReturnURLNotAllowed)
	}
	// Backslashes are treated as path separators by some browsers.
	if strings.ContainsAny(raw, "\\\r\n\t") {
		return "", fmt.Errorf("%w: invalid characters", ErrReturnURLNotAllowed)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReturnURLNotAllowed, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%w: must be absolute", ErrReturnURLNotAllowed)
	}
	if u.User != nil {
		return "", fmt.Errorf("%w: userinfo not permitted", ErrReturnURLNotAllowed)
	}

	origin := strings.ToLower(u.Scheme + "://" + u.Host)
	if _, ok := p.origins[origin]; !ok {
		return "", fmt.Errorf("%w: origin %s", ErrReturnURLNotAllowed, origin)
	}
	return u.String(), nil
}

// Origins returns the configured origins.
func (p *ReturnURLPolicy) Origins() []string {
	out := make([]string, 0, len(p.origins))
	for o := range p.origins {
		out = append(out, o)
	}
	return out
}
