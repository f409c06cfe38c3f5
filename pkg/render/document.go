package render

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Document is the finished output of a render session.
type Document struct {
	// HTML is the complete serialized document.
	HTML []byte

	// Integrity holds a "sha256-..." digest for every inline script in
	// the document and in the executed sandbox, for use in a
	// Content-Security-Policy header.
	Integrity []string

	// Failed reports that this is the error document. Callers use it to
	// pick a short cache TTL so a transient failure is not served for
	// the full default lifetime.
	Failed bool

	// Duration is the wall time the session spent rendering.
	Duration time.Duration
}

// IntegrityHash returns the CSP source expression for an inline script.
func IntegrityHash(script string) string {
	sum := sha256.Sum256([]byte(script))
	return "sha256-" + base64.StdEncoding.EncodeToString(sum[:])
}

// escapeAttr escapes a value for inclusion in an HTML attribute.
func escapeAttr(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#39;",
	)
	return r.Replace(s)
}

// linkTag builds a <link> head fragment.
func linkTag(rel, href string) string {
	return fmt.Sprintf(`<link rel=%q href=%q>`, escapeAttr(rel), escapeAttr(href))
}

// scriptSrcTag builds a deferred external <script> fragment.
func scriptSrcTag(src string) string {
	return fmt.Sprintf(`<script src=%q defer></script>`, escapeAttr(src))
}

// stateScript serializes v into an inline script assigning it to the
// given window property. json.Marshal escapes <, >, and & so the payload
// cannot terminate the script element early.
func stateScript(property string, v any) (tag, source string, err error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", "", fmt.Errorf("serialize %s: %w", property, err)
	}
	source = fmt.Sprintf("window.%s=%s;", property, raw)
	return "<script>" + source + "</script>", source, nil
}

// documentBuilder accumulates head and body fragments and tracks inline
// script sources for integrity hashing.
type documentBuilder struct {
	head          []string
	inlineSources []string
}

func (b *documentBuilder) addHead(fragment string) {
	if fragment != "" {
		b.head = append(b.head, fragment)
	}
}

// addInlineScript records the script source for integrity hashing and
// appends the wrapping tag to the head.
func (b *documentBuilder) addInlineScript(tag, source string) {
	b.head = append(b.head, tag)
	b.inlineSources = append(b.inlineSources, source)
}

// assemble produces the final document. sandboxScripts are the inline
// scripts observed inside the executed environment; their hashes join
// those of the assembled fragments.
func (b *documentBuilder) assemble(body string, sandboxScripts []string, elapsed time.Duration) *Document {
	var out strings.Builder
	out.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	for _, fragment := range b.head {
		out.WriteString(fragment)
		out.WriteString("\n")
	}
	out.WriteString("</head>\n<body>\n")
	out.WriteString(body)
	fmt.Fprintf(&out, "\n<!-- rendered in %dms -->\n", elapsed.Milliseconds())
	out.WriteString("</body>\n</html>\n")

	integrity := make([]string, 0, len(sandboxScripts)+len(b.inlineSources))
	for _, src := range sandboxScripts {
		integrity = append(integrity, IntegrityHash(src))
	}
	for _, src := range b.inlineSources {
		integrity = append(integrity, IntegrityHash(src))
	}

	return &Document{
		HTML:      []byte(out.String()),
		Integrity: integrity,
		Duration:  elapsed,
	}
}
