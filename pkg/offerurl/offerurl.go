// Package offerurl normalizes and validates the callback URLs vendors
// register for receiving pickup offers.
package offerurl

import (
	"fmt"
	"net/url"
	"strings"
)

// OfferPath is the fixed path every offer POST targets.
const OfferPath = "/api/offer"

// Normalize rewrites a vendor-registered URL so it targets OfferPath.
// A URL already ending in OfferPath is preserved as-is; otherwise path,
// query, and fragment are replaced. Vendors may therefore register either a
// bare base URL or the full offer endpoint.
func Normalize(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse offer url: %w", err)
	}
	if strings.HasSuffix(parsed.Path, OfferPath) {
		return parsed.String(), nil
	}
	parsed.Path = OfferPath
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String(), nil
}

// Validate enforces the outbound URL policy: http/https scheme, a non-empty
// host, and no loopback hosts when allowLoopback is false.
func Validate(raw string, allowLoopback bool) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse offer url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported offer url scheme %q", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("offer url has no host")
	}
	if !allowLoopback && IsLoopbackHost(parsed.Hostname()) {
		return fmt.Errorf("loopback offer url %q not allowed", raw)
	}
	return nil
}

// IsLoopbackHost reports whether host is a loopback address.
func IsLoopbackHost(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
