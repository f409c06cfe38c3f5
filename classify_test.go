package hydrant

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func classifyRequest(t *testing.T, target, userAgent string) Classification {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return Classify(req)
}

func TestClassify_Devices(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want string
	}{
		{"desktop chrome", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0", "desktop"},
		{"iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148", "mobile"},
		{"android phone", "Mozilla/5.0 (Linux; Android 14) Mobile Safari/537.36", "mobile"},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)", "tablet"},
		{"android tablet", "Mozilla/5.0 (Linux; Android 14; Tablet) Safari/537.36", "tablet"},
		{"empty ua", "", "desktop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := classifyRequest(t, "http://example.com/", tt.ua)
			if got := cls.Device(); got != tt.want {
				t.Fatalf("Device() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify_ForcedDevice(t *testing.T) {
	cls := classifyRequest(t, "http://example.com/?device=mobile",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0")
	if got := cls.Device(); got != "mobile" {
		t.Fatalf("Device() = %q, want %q", got, "mobile")
	}
}

func TestClassify_Bots(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want string
	}{
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", "bot"},
		{"bingbot", "Mozilla/5.0 (compatible; bingbot/2.0)", "bot"},
		{"facebook preview", "facebookexternalhit/1.1", "bot"},
		{"headless chrome", "Mozilla/5.0 HeadlessChrome/120.0", "bot"},
		{"regular user", "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) Safari/605.1.15", "user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := classifyRequest(t, "http://example.com/", tt.ua)
			if cls.RequestClass != tt.want {
				t.Fatalf("RequestClass = %q, want %q", cls.RequestClass, tt.want)
			}
		})
	}
}
