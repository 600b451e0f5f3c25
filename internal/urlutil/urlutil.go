package urlutil

import (
	"net/url"
	"path"
	"strings"
)

// JoinPath appends path segments to base, collapsing duplicate slashes and
// keeping a trailing slash when the last segment has one.
func JoinPath(base string, paths ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return u.String(), nil
	}

	u.Path = path.Join(append([]string{"/", u.Path}, paths...)...)
	if len(paths) > 0 && strings.HasSuffix(paths[len(paths)-1], "/") && u.Path != "/" {
		u.Path += "/"
	}
	return u.String(), nil
}

// WithQuery returns raw with the given query parameters set, replacing any
// existing values under the same keys. Empty values are skipped.
func WithQuery(raw string, params map[string]string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	q := u.Query()
	for k, v := range params {
		if v == "" {
			continue
		}
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
