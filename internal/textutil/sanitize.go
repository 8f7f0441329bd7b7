package textutil

import (
	"regexp"
	"strings"
)

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed. The result is trimmed of leading/trailing whitespace.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(fileNameReplacer.Replace(name))
}

var refUnsafe = regexp.MustCompile(`[^\w\-./]`)

// SanitizeRef trims a register reference and replaces every character other
// than word characters, '-', '.' and '/' with '_'. Slashes are kept because
// they separate a base reference from its sub-document.
func SanitizeRef(ref string) string {
	return refUnsafe.ReplaceAllString(strings.TrimSpace(ref), "_")
}

// SplitRef returns the first and last slash-separated segments of ref and
// whether it had more than one segment.
func SplitRef(ref string) (base, leaf string, nested bool) {
	var parts []string
	for _, p := range strings.Split(strings.Trim(ref, "/"), "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ref, ref, false
	}
	return parts[0], parts[len(parts)-1], len(parts) > 1
}

var markdownSpecial = regexp.MustCompile("([#*_`])")

// MarkdownEscape backslash-escapes the characters Markdown treats as
// heading, emphasis or code markers.
func MarkdownEscape(text string) string {
	return markdownSpecial.ReplaceAllString(text, `\$1`)
}
