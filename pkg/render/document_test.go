package render

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

func TestIntegrityHash(t *testing.T) {
	src := `window.__X__={};`
	sum := sha256.Sum256([]byte(src))
	want := "sha256-" + base64.StdEncoding.EncodeToString(sum[:])
	if got := IntegrityHash(src); got != want {
		t.Fatalf("IntegrityHash = %q, want %q", got, want)
	}
}

func TestStateScript_EscapesClosingTag(t *testing.T) {
	tag, source, err := stateScript("__X__", map[string]any{
		"html": "</script><script>alert(1)</script>",
	})
	if err != nil {
		t.Fatalf("stateScript: %v", err)
	}
	if strings.Contains(source, "</script") {
		t.Fatalf("payload can break out of the script element: %q", source)
	}
	if !strings.HasPrefix(tag, "<script>") || !strings.HasSuffix(tag, "</script>") {
		t.Fatalf("tag = %q", tag)
	}
	if !strings.Contains(source, `window.__X__=`) {
		t.Fatalf("source = %q", source)
	}
}

func TestEscapeAttr(t *testing.T) {
	got := escapeAttr(`a"b<c>&'d`)
	want := "a&quot;b&lt;c&gt;&amp;&#39;d"
	if got != want {
		t.Fatalf("escapeAttr = %q, want %q", got, want)
	}
}

func TestDocumentBuilder_Assemble(t *testing.T) {
	b := &documentBuilder{}
	b.addHead(linkTag("stylesheet", "/app.css"))
	tag, src, err := stateScript("__X__", map[string]any{"n": 1})
	if err != nil {
		t.Fatalf("stateScript: %v", err)
	}
	b.addInlineScript(tag, src)
	b.addHead(scriptSrcTag("/loader.js"))

	doc := b.assemble("<main>hi</main>", []string{"var a=1;"}, 42*time.Millisecond)

	html := string(doc.HTML)
	if !strings.HasPrefix(html, "<!DOCTYPE html>") {
		t.Fatalf("missing doctype:\n%s", html)
	}
	for _, fragment := range []string{
		`<link rel="stylesheet" href="/app.css">`,
		`<script src="/loader.js" defer></script>`,
		"<main>hi</main>",
		"<!-- rendered in 42ms -->",
	} {
		if !strings.Contains(html, fragment) {
			t.Fatalf("missing %q:\n%s", fragment, html)
		}
	}

	// One hash for the sandbox inline script, one for the state script.
	if len(doc.Integrity) != 2 {
		t.Fatalf("Integrity count = %d, want 2", len(doc.Integrity))
	}
	if doc.Integrity[0] != IntegrityHash("var a=1;") {
		t.Fatalf("Integrity[0] = %q", doc.Integrity[0])
	}
	if doc.Integrity[1] != IntegrityHash(src) {
		t.Fatalf("Integrity[1] = %q", doc.Integrity[1])
	}
	if doc.Duration != 42*time.Millisecond {
		t.Fatalf("Duration = %v", doc.Duration)
	}
}

func TestDocumentBuilder_EmptyHeadFragmentSkipped(t *testing.T) {
	b := &documentBuilder{}
	b.addHead("")
	doc := b.assemble("", nil, 0)
	if strings.Contains(string(doc.HTML), "\n\n\n") {
		t.Fatalf("empty fragment produced blank head line:\n%s", doc.HTML)
	}
}
