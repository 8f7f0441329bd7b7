package registered

import (
	"regexp"
	"strings"

	"imdata/internal/tabular"
	"imdata/internal/textutil"
)

// OCR text sources recorded in the extracted CSV.
const (
	SourceFencedBlock  = "fenced_block"
	SourceFullMarkdown = "full_md"
)

var featureSeparators = regexp.MustCompile(`[;|,]+`)

// BuildMarkdown renders the per-reference summary: title, building name,
// parish, registration dates, features, links and the OCR text.
func BuildMarkdown(ref string, row tabular.Row, ocrText string, links []string) string {
	field := func(name string) string { return strings.TrimSpace(row.Get(name)) }

	name := field("Building_Name")
	if name == "" {
		name = "(Unknown building)"
	}
	lines := []string{"# RB " + ref, "", textutil.MarkdownEscape(name), ""}

	if parish := field("Parish"); parish != "" {
		lines = append(lines, "## Parish", parish, "")
	}
	lines = append(lines, "## Registration date", orNotProvided(field("Date_Registered")), "")

	dereg := field("Deregistration_Date")
	if dereg != "" || strings.EqualFold(field("Status"), "de-registered") {
		lines = append(lines, "## De-registration date", orNotProvided(dereg), "")
	}

	if features := field("Features"); features != "" {
		lines = append(lines, "## Features")
		for _, f := range featureSeparators.Split(features, -1) {
			if f = strings.TrimSpace(f); f != "" {
				lines = append(lines, "- "+f)
			}
		}
		lines = append(lines, "")
	}

	lines = append(lines, "## Links")
	if len(links) == 0 {
		lines = append(lines, "(none)")
	}
	for _, u := range links {
		lines = append(lines, "- "+u)
	}
	lines = append(lines, "")

	lines = append(lines, "## OCR")
	if strings.TrimSpace(ocrText) != "" {
		lines = append(lines, "```", ocrText, "```")
	} else {
		lines = append(lines, "(no extractable text)")
	}
	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func orNotProvided(v string) string {
	if v == "" {
		return "(not provided)"
	}
	return v
}

var (
	ocrHeading  = regexp.MustCompile(`(?m)^##[ \t]+OCR[ \t]*$`)
	fencedBlock = regexp.MustCompile("(?s)```(.*?)```")
	anyHeading  = regexp.MustCompile(`(?m)^##[ \t]+.+$`)
)

// ExtractOCRBlock returns the fenced block under "## OCR" when there is one,
// otherwise the whole document, together with which of the two was used.
func ExtractOCRBlock(md string) (text, source string) {
	if loc := ocrHeading.FindStringIndex(md); loc != nil {
		if m := fencedBlock.FindStringSubmatch(md[loc[1]:]); m != nil {
			return strings.TrimSpace(m[1]), SourceFencedBlock
		}
	}
	return strings.TrimSpace(md), SourceFullMarkdown
}

func sectionHeading(title string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^##[ \t]+` + regexp.QuoteMeta(title) + `[ \t]*$`)
}

// FindSection returns the byte range of the "## title" section, from its
// heading to the next "## " heading or the end of text, or -1, -1. Lines
// inside ``` fences are never headings.
func FindSection(text, title string) (start, end int) {
	heading := sectionHeading(title)
	start = -1
	inFence := false
	for pos := 0; pos < len(text); {
		lineEnd := len(text)
		if i := strings.IndexByte(text[pos:], '\n'); i >= 0 {
			lineEnd = pos + i
		}
		line := text[pos:lineEnd]
		switch {
		case strings.HasPrefix(line, "```"):
			inFence = !inFence
		case inFence:
		case start < 0:
			if heading.MatchString(line) {
				start = pos
			}
		case anyHeading.MatchString(line):
			return start, pos
		}
		pos = lineEnd + 1
	}
	if start < 0 {
		return -1, -1
	}
	return start, len(text)
}

// SetSection replaces the "## title" section with body, or inserts it before
// "## Links" (appending when there is no Links section). Applying the same
// edit twice yields the same text.
func SetSection(text, title, body string) string {
	block := "## " + title + "\n" + strings.TrimRight(body, " \t\r\n") + "\n\n"
	if s, e := FindSection(text, title); s >= 0 {
		return text[:s] + block + text[e:]
	}
	if s, _ := FindSection(text, "Links"); s >= 0 {
		return text[:s] + block + text[s:]
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text + "\n" + block
}

// FillDateSection sets a date section to value (or "(not provided)") when the
// section is missing or empty. A section with content is left alone.
func FillDateSection(text, title, value string) string {
	s, e := FindSection(text, title)
	if s >= 0 {
		section := text[s:e]
		if i := strings.IndexByte(section, '\n'); i >= 0 && strings.TrimSpace(section[i+1:]) != "" {
			return text
		}
	}
	return SetSection(text, title, orNotProvided(strings.TrimSpace(value)))
}

// Details is the content of the "## Extracted details" section.
type Details struct {
	Architects []string
	Builders   []string
	StartYear  string
	EndYear    string
	StartText  string
	EndText    string
	Reasons    []string
}

// SetExtractedDetails writes the "## Extracted details" section.
func SetExtractedDetails(text string, d Details) string {
	var lines []string
	if len(d.Architects) > 0 {
		lines = append(lines, "* Architects: "+strings.Join(d.Architects, ", "))
	}
	if len(d.Builders) > 0 {
		lines = append(lines, "* Builders: "+strings.Join(d.Builders, ", "))
	}
	if c := d.construction(); c != "" {
		lines = append(lines, "* Construction: "+c)
	}
	if len(d.Reasons) > 0 {
		lines = append(lines, "* Reasons for registration:")
		for _, r := range d.Reasons {
			if r = strings.TrimSpace(r); r != "" {
				lines = append(lines, "  - "+r)
			}
		}
	}
	body := "(no extracted details)"
	if len(lines) > 0 {
		body = strings.Join(lines, "\n")
	}
	return SetSection(text, "Extracted details", body)
}

// construction prefers the verbatim date text over the year span.
func (d Details) construction() string {
	switch {
	case d.StartText != "" && d.EndText != "":
		return d.StartText + " – " + d.EndText
	case d.StartText != "" || d.EndText != "":
		return d.StartText + d.EndText
	case d.StartYear != "" || d.EndYear != "":
		return d.StartYear + "–" + d.EndYear
	}
	return ""
}

// SetCleanedOCR writes the "## Cleaned OCR" section.
func SetCleanedOCR(text, cleaned string) string {
	body := "(no cleaned text)"
	if strings.TrimSpace(cleaned) != "" {
		body = "```\n" + strings.TrimRight(cleaned, " \t\r\n") + "\n```"
	}
	return SetSection(text, "Cleaned OCR", body)
}
