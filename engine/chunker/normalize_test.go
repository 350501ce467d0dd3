package chunker

import (
	"strings"
	"testing"
)

func TestNormalize_Empty(t *testing.T) {
	if got := Normalize(""); got != "" {
		t.Fatalf("expected empty passthrough, got %q", got)
	}
}

func TestNormalize_HTML(t *testing.T) {
	in := "<p>Background: The study was <b>randomized</b>.</p><br>Methods: See below."
	got := Normalize(in)
	if strings.Contains(got, "<") || strings.Contains(got, ">") {
		t.Fatalf("markup survived: %q", got)
	}
	if !strings.Contains(got, "randomized") {
		t.Fatalf("text dropped: %q", got)
	}
	if !strings.Contains(got, "\n") {
		t.Fatalf("block break not preserved: %q", got)
	}
}

func TestNormalize_Entities(t *testing.T) {
	got := Normalize("risk &lt; 5&#37; vs control")
	if !strings.Contains(got, "< 5%") {
		t.Fatalf("entities not unescaped: %q", got)
	}
}

func TestNormalize_NFKC(t *testing.T) {
	// Fullwidth digits and a ligature must canonicalize.
	got := Normalize("ｅﬃcacy was ９５%")
	if !strings.Contains(got, "efficacy") {
		t.Errorf("ligature not folded: %q", got)
	}
	if !strings.Contains(got, "95%") {
		t.Errorf("fullwidth digits not folded: %q", got)
	}
}

func TestNormalize_HyphenBreak(t *testing.T) {
	got := Normalize("treatment of hyper-\ntension in adults")
	if !strings.Contains(got, "hypertension") {
		t.Fatalf("hyphen break not rejoined: %q", got)
	}
}

func TestNormalize_PreservesStatSymbols(t *testing.T) {
	in := "Δ=−10.3 pp; p<0.001; 95% CI −12.1 to −8.5; change ±2.4"
	got := Normalize(in)
	for _, sym := range []string{"Δ", "±", "%", "p<0.001", "CI"} {
		if !strings.Contains(got, sym) {
			t.Errorf("symbol %q altered: %q", sym, got)
		}
	}
}

func TestNormalize_WhitespaceCollapse(t *testing.T) {
	got := Normalize("a   b\t\tc\n\n\n\nd")
	if got != "a b c\n\nd" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalize_NoCaseChange(t *testing.T) {
	got := Normalize("RCT of IL-6 inhibitors")
	if got != "RCT of IL-6 inhibitors" {
		t.Fatalf("case or content altered: %q", got)
	}
}
