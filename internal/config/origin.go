package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	errEmptyDomain    = errors.New("domain cannot be empty")
	errDomainSpace    = errors.New("domain cannot contain whitespace")
	errDomainWildcard = errors.New("wildcards are not allowed in trusted origins")
	errDomainPath     = errors.New("domain must not include path, query, or fragment")
)

// SanitizeTrustedDomain validates and normalizes a CORS trusted domain.
// It returns the lowercased host (optionally with port) without a scheme.
func SanitizeTrustedDomain(raw string) (string, error) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if cleaned == "" {
		return "", errEmptyDomain
	}

	cleaned = strings.TrimPrefix(cleaned, "http://")
	cleaned = strings.TrimPrefix(cleaned, "https://")
	cleaned = strings.TrimSuffix(cleaned, "/")

	if strings.ContainsAny(cleaned, " \t\r\n") {
		return "", errDomainSpace
	}
	if strings.Contains(cleaned, "*") {
		return "", errDomainWildcard
	}

	u, err := url.Parse("http://" + cleaned)
	if err != nil {
		return "", fmt.Errorf("invalid domain format: %w", err)
	}
	if u.Host == "" || u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return "", errDomainPath
	}

	return u.Host, nil
}

// ValidateBaseURL checks that a performance API base URL is an absolute http(s)
// URL without query or fragment. Used by `scalex doctor`.
func ValidateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid api base url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api base url %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("api base url %q has no host", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("api base url %q must not include query or fragment", raw)
	}
	return nil
}
