package hydrant

import (
	"net/http"
	"strings"

	"github.com/hydrant-dev/hydrant/pkg/cache"
)

// Classification tags a request for cache-key variation and for the
// viewport hint handed to the application.
type Classification struct {
	// DeviceTags are the detected device classes, usually one of
	// "mobile", "tablet", or "desktop".
	DeviceTags []string

	// RequestClass is "bot" for crawlers, "user" otherwise.
	RequestClass string
}

// Device returns the primary device tag.
func (c Classification) Device() string {
	if len(c.DeviceTags) == 0 {
		return "desktop"
	}
	return c.DeviceTags[0]
}

var botMarkers = []string{
	"bot", "crawler", "spider", "slurp", "bingpreview",
	"facebookexternalhit", "whatsapp", "telegrambot", "headlesschrome",
}

// Classify derives device and request-class tags from the request. A
// device query parameter forces the device tag, overriding User-Agent
// detection; the parameter itself never reaches the cache key (the key
// generator strips it before hashing).
func Classify(r *http.Request) Classification {
	ua := strings.ToLower(r.UserAgent())

	device := "desktop"
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		device = "tablet"
	case strings.Contains(ua, "mobi"):
		device = "mobile"
	}
	if forced := r.URL.Query().Get(cache.DeviceParam); forced != "" {
		device = forced
	}

	class := "user"
	for _, marker := range botMarkers {
		if strings.Contains(ua, marker) {
			class = "bot"
			break
		}
	}

	return Classification{
		DeviceTags:   []string{device},
		RequestClass: class,
	}
}
