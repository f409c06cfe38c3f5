package cache

import (
	"strconv"
	"strings"
	"time"
)

// DefaultTTL is used when neither an explicit expiration nor a usable
// Cache-Control directive is present.
const DefaultTTL = 7 * 24 * time.Hour

// TTLFromCacheControl derives a storage TTL from a Cache-Control header
// value. Only s-maxage and max-age are interpreted, with s-maxage taking
// precedence; every other directive is ignored for caching purposes and
// passed through to the client untouched.
func TTLFromCacheControl(value string) (time.Duration, bool) {
	var (
		maxAge    time.Duration
		hasMaxAge bool
	)
	for _, directive := range strings.Split(value, ",") {
		directive = strings.TrimSpace(directive)
		name, arg, ok := strings.Cut(directive, "=")
		if !ok {
			continue
		}
		secs, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || secs < 0 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "s-maxage":
			return time.Duration(secs) * time.Second, true
		case "max-age":
			maxAge = time.Duration(secs) * time.Second
			hasMaxAge = true
		}
	}
	return maxAge, hasMaxAge
}
