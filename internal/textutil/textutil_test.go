package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"  isle of man ":   "isle of man",
		"A/B: Holdings?":   "A-B- Holdings",
		"":                 "",
		`quote"pipe|more>`: "quotepipemore",
	}
	for in, want := range cases {
		if got := SanitizeFileName(in); got != want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeRefKeepsSlashes(t *testing.T) {
	if got := SanitizeRef(" 241/REGBLD 1 "); got != "241/REGBLD_1" {
		t.Fatalf("unexpected ref %q", got)
	}
	if got := SanitizeRef("12a-b.c"); got != "12a-b.c" {
		t.Fatalf("unexpected ref %q", got)
	}
}

func TestSplitRef(t *testing.T) {
	base, leaf, nested := SplitRef("241/REGBLD1")
	if base != "241" || leaf != "REGBLD1" || !nested {
		t.Fatalf("unexpected split %q %q %v", base, leaf, nested)
	}
	base, leaf, nested = SplitRef("247")
	if base != "247" || leaf != "247" || nested {
		t.Fatalf("unexpected split %q %q %v", base, leaf, nested)
	}
	base, leaf, nested = SplitRef("/")
	if base != "/" || leaf != "/" || nested {
		t.Fatalf("unexpected split for empty segments %q %q %v", base, leaf, nested)
	}
}

func TestMarkdownEscape(t *testing.T) {
	if got := MarkdownEscape("St_Mary's #1 *Church* `x`"); got != "St\\_Mary's \\#1 \\*Church\\* \\`x\\`" {
		t.Fatalf("unexpected escape %q", got)
	}
}

func TestCleanText(t *testing.T) {
	if got := CleanText("  Manx\n\t  Holdings  Ltd\x07 "); got != "Manx Holdings Ltd" {
		t.Fatalf("unexpected clean %q", got)
	}
}
