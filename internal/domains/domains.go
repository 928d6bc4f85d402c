// Package domains provides registered-domain extraction and the
// third-party test used throughout request and cookie classification.
package domains

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Hostname extracts the lowercase hostname from a URL, without port.
// Returns "" for unparsable input.
func Hostname(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// Registered extracts the registered domain (eTLD+1) from a URL, a bare
// hostname, or a cookie domain with a leading dot.
//
//	https://ads.google.com/page -> google.com
//	tracker.cdn.example.co.uk   -> example.co.uk
//	.seznam.cz                  -> seznam.cz
//
// IPs and hosts that are themselves a public suffix fall back to the
// cleaned hostname.
func Registered(urlOrDomain string) string {
	host := urlOrDomain
	if strings.Contains(host, "://") {
		host = Hostname(host)
	}
	host = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(host), "."))
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	if host == "" {
		return urlOrDomain
	}
	if net.ParseIP(host) != nil {
		return host
	}

	registered, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return registered
}

// IsThirdParty reports whether a request host belongs to a different
// registered domain than the page.
func IsThirdParty(requestDomain, pageDomain string) bool {
	return Registered(requestDomain) != Registered(pageDomain)
}
