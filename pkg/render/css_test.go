package render

import (
	"strings"
	"testing"
)

func TestPruneCSS_KeepsUsedRules(t *testing.T) {
	css := `
.used { color: red; }
.unused { color: blue; }
#present { margin: 0; }
#absent { margin: 1px; }
`
	markup := `<div class="used" id="present">hi</div>`

	got, err := PruneCSS(css, markup)
	if err != nil {
		t.Fatalf("PruneCSS: %v", err)
	}
	if !strings.Contains(got, ".used") {
		t.Fatalf("used class rule dropped:\n%s", got)
	}
	if !strings.Contains(got, "#present") {
		t.Fatalf("used id rule dropped:\n%s", got)
	}
	if strings.Contains(got, ".unused") || strings.Contains(got, "#absent") {
		t.Fatalf("unused rule kept:\n%s", got)
	}
}

func TestPruneCSS_AlwaysKeptSelectors(t *testing.T) {
	css := `
* { box-sizing: border-box; }
:root { --x: 1; }
html { height: 100%; }
body { margin: 0; }
`
	got, err := PruneCSS(css, "<div></div>")
	if err != nil {
		t.Fatalf("PruneCSS: %v", err)
	}
	for _, sel := range []string{"*", ":root", "html", "body"} {
		if !strings.Contains(got, sel) {
			t.Fatalf("selector %q dropped:\n%s", sel, got)
		}
	}
}

func TestPruneCSS_AtRules(t *testing.T) {
	css := `
@import url("other.css");
@font-face { font-family: X; src: url(x.woff2); }
@keyframes spin { from { transform: none; } }
@media (min-width: 600px) {
  .used { display: flex; }
  .unused { display: none; }
}
@media print {
  .unused { display: none; }
}
`
	got, err := PruneCSS(css, `<p class="used"></p>`)
	if err != nil {
		t.Fatalf("PruneCSS: %v", err)
	}
	if !strings.Contains(got, "@import") {
		t.Fatalf("@import dropped:\n%s", got)
	}
	if !strings.Contains(got, "@font-face") || !strings.Contains(got, "@keyframes") {
		t.Fatalf("unmatched at-rule dropped:\n%s", got)
	}
	if !strings.Contains(got, "@media (min-width: 600px)") {
		t.Fatalf("media block with used rule dropped:\n%s", got)
	}
	if strings.Contains(got, "@media print") {
		t.Fatalf("emptied media block kept:\n%s", got)
	}
	if strings.Contains(got, ".unused") {
		t.Fatalf("unused rule inside media kept:\n%s", got)
	}
}

func TestPruneCSS_SelectorList(t *testing.T) {
	// One used selector keeps the whole rule.
	got, err := PruneCSS(`.absent, .used { color: red; }`, `<i class="used"></i>`)
	if err != nil {
		t.Fatalf("PruneCSS: %v", err)
	}
	if !strings.Contains(got, "color: red") {
		t.Fatalf("rule with one used selector dropped:\n%s", got)
	}
}

func TestPruneCSS_Comments(t *testing.T) {
	got, err := PruneCSS(`/* note { */ .used { color: red; } /* trailing`, `<b class="used"></b>`)
	if err != nil {
		t.Fatalf("PruneCSS: %v", err)
	}
	if !strings.Contains(got, ".used") {
		t.Fatalf("rule after comment dropped:\n%s", got)
	}
	if strings.Contains(got, "note") {
		t.Fatalf("comment survived:\n%s", got)
	}
}

func TestPruneCSS_UnbalancedBraces(t *testing.T) {
	if _, err := PruneCSS(`.a { color: red;`, "<div></div>"); err == nil {
		t.Fatal("expected an error for unbalanced braces")
	}
}

func TestPruneCSS_Empty(t *testing.T) {
	got, err := PruneCSS("", "<div></div>")
	if err != nil {
		t.Fatalf("PruneCSS: %v", err)
	}
	if got != "" {
		t.Fatalf("PruneCSS(\"\") = %q, want empty", got)
	}
}
