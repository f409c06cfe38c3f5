package render

import (
	"fmt"
	"strings"
)

// PruneCSS reduces a stylesheet to the rules plausibly used by the given
// markup so the inlined critical CSS stays small. The match is
// deliberately conservative: a rule is kept when any simple selector in
// it (tag, class, or id) appears in the markup, and at-rules that cannot
// be matched against markup (@font-face, @keyframes, @import, @charset)
// are always kept. Over-keeping is harmless; dropping a used rule is not.
//
// A parse failure returns an error; callers fall back to serving the page
// with no inline styles rather than failing the request.
func PruneCSS(css, markup string) (string, error) {
	var out strings.Builder
	if err := pruneBlock(stripComments(css), markup, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

func pruneBlock(css, markup string, out *strings.Builder) error {
	rest := css
	for {
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return nil
		}

		brace := strings.IndexByte(rest, '{')
		semi := strings.IndexByte(rest, ';')

		// Statement at-rule (@import, @charset) ends at ';' with no block.
		if semi != -1 && (brace == -1 || semi < brace) {
			stmt := strings.TrimSpace(rest[:semi+1])
			if stmt != ";" {
				out.WriteString(stmt)
				out.WriteString("\n")
			}
			rest = rest[semi+1:]
			continue
		}
		if brace == -1 {
			return fmt.Errorf("css: trailing content without block: %q", truncate(rest, 40))
		}

		prelude := strings.TrimSpace(rest[:brace])
		body, remainder, err := readBalanced(rest[brace:])
		if err != nil {
			return err
		}
		rest = remainder

		switch {
		case strings.HasPrefix(prelude, "@media"), strings.HasPrefix(prelude, "@supports"):
			var inner strings.Builder
			if err := pruneBlock(body, markup, &inner); err != nil {
				return err
			}
			if kept := strings.TrimSpace(inner.String()); kept != "" {
				fmt.Fprintf(out, "%s{%s}\n", prelude, kept)
			}
		case strings.HasPrefix(prelude, "@"):
			// @font-face, @keyframes and friends have no markup to match.
			fmt.Fprintf(out, "%s{%s}\n", prelude, body)
		default:
			if selectorUsed(prelude, markup) {
				fmt.Fprintf(out, "%s{%s}\n", prelude, body)
			}
		}
	}
}

// readBalanced consumes a brace-balanced block starting at '{' and
// returns the body (without the outer braces) and the remainder.
func readBalanced(s string) (body, rest string, err error) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], nil
			}
		}
	}
	return "", "", fmt.Errorf("css: unbalanced braces near %q", truncate(s, 40))
}

func selectorUsed(selectors, markup string) bool {
	for _, sel := range strings.Split(selectors, ",") {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		if sel == "*" || strings.HasPrefix(sel, ":root") {
			return true
		}
		for _, name := range simpleNames(sel) {
			switch name {
			case "html", "body":
				return true
			}
			if strings.Contains(markup, name) {
				return true
			}
		}
	}
	return false
}

// simpleNames extracts the tag, class, and id names mentioned anywhere in
// a selector, dropping pseudo-classes and attribute conditions.
func simpleNames(sel string) []string {
	var names []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			names = append(names, current.String())
			current.Reset()
		}
	}
	for _, r := range sel {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '-', r == '_':
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return names
}

func stripComments(css string) string {
	var out strings.Builder
	for {
		start := strings.Index(css, "/*")
		if start == -1 {
			out.WriteString(css)
			return out.String()
		}
		out.WriteString(css[:start])
		end := strings.Index(css[start+2:], "*/")
		if end == -1 {
			return out.String()
		}
		css = css[start+2+end+2:]
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
