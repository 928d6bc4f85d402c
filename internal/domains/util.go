package domains

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeURL ensures the URL has a scheme and strips trailing slashes.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return strings.TrimRight(u, "/")
}

// HashCookieValue returns the SHA-256 hex digest of a cookie value.
// Raw values are never persisted.
func HashCookieValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
