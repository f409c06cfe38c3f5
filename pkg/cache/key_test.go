package cache

import (
	"strings"
	"testing"
)

func TestKey_Deterministic(t *testing.T) {
	opts := KeyOptions{DeviceTags: []string{"mobile"}, RequestClass: "user"}

	a := Key("/products", "color=red&size=m", opts)
	b := Key("/products", "color=red&size=m", opts)
	if a != b {
		t.Fatalf("identical inputs produced different keys: %q vs %q", a, b)
	}
}

func TestKey_QueryOrderSignificant(t *testing.T) {
	a := Key("/products", "color=red&size=m", KeyOptions{})
	b := Key("/products", "size=m&color=red", KeyOptions{})
	if a == b {
		t.Fatalf("reordered query produced the same key %q", a)
	}
}

func TestKey_PathNormalization(t *testing.T) {
	tests := []struct {
		name  string
		pathA string
		pathB string
		same  bool
	}{
		{"case insensitive", "/Products", "/products", true},
		{"trailing slash trimmed", "/products/", "/products", true},
		{"root keeps slash", "/", "/", true},
		{"different paths differ", "/products", "/cart", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Key(tt.pathA, "", KeyOptions{})
			b := Key(tt.pathB, "", KeyOptions{})
			if (a == b) != tt.same {
				t.Fatalf("Key(%q) = %q, Key(%q) = %q, want same=%v", tt.pathA, a, tt.pathB, b, tt.same)
			}
		})
	}
}

func TestKey_RootPathSingleSlash(t *testing.T) {
	key := Key("/", "", KeyOptions{})
	if strings.Contains(key, "//") {
		t.Fatalf("Key(\"/\") = %q, want a single slash before the hash", key)
	}
	if !strings.HasPrefix(key, "/") {
		t.Fatalf("Key(\"/\") = %q, want leading slash", key)
	}
}

func TestKey_PathPrefix(t *testing.T) {
	key := Key("/Products/", "q=1", KeyOptions{})
	if !strings.HasPrefix(key, "/products/") {
		t.Fatalf("key %q does not start with normalized path", key)
	}
}

func TestKey_ClassificationVariesKey(t *testing.T) {
	base := Key("/p", "", KeyOptions{})

	if got := Key("/p", "", KeyOptions{DeviceTags: []string{"mobile"}}); got == base {
		t.Fatal("device tag did not vary the key")
	}
	if got := Key("/p", "", KeyOptions{RequestClass: "bot"}); got == base {
		t.Fatal("request class did not vary the key")
	}
	if got := Key("/p", "", KeyOptions{Extras: []string{"en"}}); got == base {
		t.Fatal("extra did not vary the key")
	}
}

func TestKey_IgnoreFlags(t *testing.T) {
	base := Key("/p", "", KeyOptions{})

	got := Key("/p", "", KeyOptions{
		DeviceTags:       []string{"mobile"},
		IgnoreDeviceTags: true,
	})
	if got != base {
		t.Fatalf("IgnoreDeviceTags key = %q, want %q", got, base)
	}

	got = Key("/p", "", KeyOptions{
		RequestClass:       "bot",
		IgnoreRequestClass: true,
	})
	if got != base {
		t.Fatalf("IgnoreRequestClass key = %q, want %q", got, base)
	}
}

func TestKey_DeviceParamStripped(t *testing.T) {
	// A forced device only contributes through the tags, so the raw
	// device pair must not vary the key on its own.
	a := Key("/p", "device=mobile&x=1", KeyOptions{DeviceTags: []string{"mobile"}})
	b := Key("/p", "x=1", KeyOptions{DeviceTags: []string{"mobile"}})
	if a != b {
		t.Fatalf("device param was hashed: %q vs %q", a, b)
	}
}

func TestStripDeviceParam(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"device=mobile", ""},
		{"a=1&device=mobile&b=2", "a=1&b=2"},
		{"device=mobile&device=tablet", ""},
		{"devices=1&a=2", "devices=1&a=2"},
		{"b=2&a=1", "b=2&a=1"},
	}
	for _, tt := range tests {
		if got := stripDeviceParam(tt.raw); got != tt.want {
			t.Fatalf("stripDeviceParam(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
