package render

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestResourceLoader_BlockedTags(t *testing.T) {
	l := NewResourceLoader("https://example.com", nil, []string{"*"}, nil, nil)

	for _, tag := range []string{"img", "IMG", "video", "audio", "picture", "embed"} {
		if l.Allows("https://example.com/x.png", tag) {
			t.Fatalf("Allows(%q) = true, want false", tag)
		}
	}
	if !l.Allows("https://example.com/x.js", "script") {
		t.Fatal("script element was blocked")
	}
}

func TestResourceLoader_SameOriginBundles(t *testing.T) {
	l := NewResourceLoader("https://example.com", []string{"main.js"}, nil, nil, nil)

	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/assets/main.js", true},
		{"/assets/main.js", true},
		{"https://example.com/assets/main.js.map", true},
		{"https://example.com/assets/mod.mjs", true},
		{"https://evil.example.net/assets/main.js", false},
		{"https://example.com/data.json", false},
	}
	for _, tt := range tests {
		if got := l.Allows(tt.url, "script"); got != tt.want {
			t.Fatalf("Allows(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestResourceLoader_Patterns(t *testing.T) {
	l := NewResourceLoader("https://example.com",
		nil,
		[]string{"https://api.example.com/*", "https://cdn.example.com/fonts/*.woff2"},
		nil, nil)

	tests := []struct {
		url  string
		want bool
	}{
		{"https://api.example.com/v1/products", true},
		{"https://cdn.example.com/fonts/inter.woff2", true},
		{"https://cdn.example.com/fonts/inter.ttf", false},
		{"https://other.example.com/v1/products", false},
	}
	for _, tt := range tests {
		if got := l.Allows(tt.url, "script"); got != tt.want {
			t.Fatalf("Allows(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestResourceLoader_LoadBlocked(t *testing.T) {
	l := NewResourceLoader("https://example.com", nil, nil, nil, nil)

	_, err := l.Load(context.Background(), "https://elsewhere.com/x.json", "script")
	var blocked ErrResourceBlocked
	if !errors.As(err, &blocked) {
		t.Fatalf("Load error = %v, want ErrResourceBlocked", err)
	}
	if blocked.URL != "https://elsewhere.com/x.json" {
		t.Fatalf("blocked URL = %q", blocked.URL)
	}
}

func TestResourceLoader_LoadCachesSuccess(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, rawURL string) ([]byte, error) {
		calls++
		return []byte("bundle"), nil
	}
	l := NewResourceLoader("https://example.com", nil, nil, fetch, nil)

	for i := 0; i < 3; i++ {
		data, err := l.Load(context.Background(), "/assets/main.js", "script")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if string(data) != "bundle" {
			t.Fatalf("Load = %q, want %q", data, "bundle")
		}
	}
	if calls != 1 {
		t.Fatalf("fetch ran %d times, want 1", calls)
	}
}

func TestResourceLoader_FailureNotCached(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, rawURL string) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("upstream down")
		}
		return []byte("ok"), nil
	}
	l := NewResourceLoader("https://example.com", nil, nil, fetch, nil)

	if _, err := l.Load(context.Background(), "/assets/main.js", "script"); err == nil {
		t.Fatal("expected first Load to fail")
	}
	data, err := l.Load(context.Background(), "/assets/main.js", "script")
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if string(data) != "ok" {
		t.Fatalf("second Load = %q, want %q", data, "ok")
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		s       string
		want    bool
	}{
		{"exact", "exact", true},
		{"exact", "exactly", false},
		{"https://a.com/*", "https://a.com/x/y", true},
		{"https://a.com/*", "https://b.com/x", false},
		{"*.woff2", "font.woff2", true},
		{"*.woff2", "font.woff", false},
		{"https://*/api/*", "https://a.com/api/v1", true},
		{"*", "anything", true},
	}
	for _, tt := range tests {
		if got := matchPattern(tt.pattern, tt.s); got != tt.want {
			t.Fatalf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.s, got, tt.want)
		}
	}
}
