package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// DeviceParam is the query parameter that forces a device classification.
// It is stripped from the query string before hashing so the forced value
// only contributes through the device tags, never twice.
const DeviceParam = "device"

// KeyOptions carries the request classification that varies a cache key.
type KeyOptions struct {
	// DeviceTags are the detected device classes (e.g. "mobile").
	DeviceTags []string

	// RequestClass is the request classification tag (e.g. "bot").
	RequestClass string

	// Extras are caller-supplied values appended verbatim to the hash input.
	Extras []string

	// IgnoreDeviceTags suppresses device variation: the key equals the key
	// of an identical request without device tags.
	IgnoreDeviceTags bool

	// IgnoreRequestClass suppresses request-class variation.
	IgnoreRequestClass bool
}

// Key maps a request's path, query string, and classification onto a
// deterministic cache key of the form "<lowercased-path>/<hash>".
//
// Key is a pure function: identical inputs, including query parameter
// order, always produce the same key. Reordered parameters produce a
// different key — parameter order is significant to downstream systems.
func Key(path, rawQuery string, opts KeyOptions) string {
	p := strings.ToLower(path)
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}

	parts := []string{stripDeviceParam(rawQuery)}
	if !opts.IgnoreDeviceTags {
		for _, tag := range opts.DeviceTags {
			parts = append(parts, "device="+tag)
		}
	}
	if !opts.IgnoreRequestClass && opts.RequestClass != "" {
		parts = append(parts, "class="+opts.RequestClass)
	}
	for i, extra := range opts.Extras {
		parts = append(parts, fmt.Sprintf("ex%d=%s", i, extra))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p + hex.EncodeToString(sum[:])
}

// stripDeviceParam removes every DeviceParam pair from a raw query string
// while preserving the order of the remaining pairs.
func stripDeviceParam(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	pairs := strings.Split(rawQuery, "&")
	kept := pairs[:0]
	for _, pair := range pairs {
		name := pair
		if idx := strings.IndexByte(pair, '='); idx != -1 {
			name = pair[:idx]
		}
		if name == DeviceParam {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}
