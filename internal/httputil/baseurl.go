package httputil

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeBaseURL trims, validates, and canonicalizes a backend base URL
// used by the AUTOMAT proxy router and registry. It rejects user info, query
// strings, and fragments so a registered tag cannot smuggle request-altering
// components into the forwarding target.
func NormalizeBaseURL(raw string) (string, *url.URL, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(raw), "/")
	if baseURL == "" {
		return "", nil, fmt.Errorf("base URL is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", nil, fmt.Errorf("base URL must be a valid absolute URL")
	}
	if parsed.User != nil {
		return "", nil, fmt.Errorf("base URL must not include user info")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", nil, fmt.Errorf("base URL scheme must be http or https")
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", nil, fmt.Errorf("base URL must not include query or fragment")
	}

	return baseURL, parsed, nil
}
