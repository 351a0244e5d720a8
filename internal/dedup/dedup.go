// Package dedup derives the stable identity key that maps many ingested
// items to one event.
package dedup

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"
)

// Query parameters stripped before hashing. utm_* is matched as a prefix,
// the rest must match exactly (case-insensitive).
var trackingExact = map[string]struct{}{
	"ref":   {},
	"gclid": {},
	"ncid":  {},
	"cmp":   {},
}

// CleanURL strips tracking parameters and the fragment, preserving case.
// This is the form stored and displayed. Returns the input unchanged when it
// does not parse.
func CleanURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	query := parsed.Query()
	for key := range query {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			query.Del(key)
			continue
		}
		if _, ok := trackingExact[lower]; ok {
			query.Del(key)
		}
	}
	parsed.RawQuery = query.Encode()
	parsed.Fragment = ""

	return parsed.String()
}

// CanonicalURL is the lower-cased clean form used for identity hashing.
func CanonicalURL(raw string) string {
	return strings.ToLower(CleanURL(raw))
}

// Key hashes the canonical link, falling back to the lower-cased trimmed
// title when the link is empty. Preferring the link avoids over-deduplication
// when many distinct links carry similar titles.
func Key(title, link string) string {
	base := strings.TrimSpace(CanonicalURL(link))
	if base == "" {
		base = strings.ToLower(strings.TrimSpace(title))
	}
	sum := sha1.Sum([]byte(base))
	return hex.EncodeToString(sum[:])
}
