package registered

import (
	"path/filepath"
	"regexp"
	"strings"

	"imdata/internal/services"
	"imdata/internal/tabular"
	"imdata/internal/textutil"
)

// ReadIndex loads the index CSV and checks it has the required columns.
func ReadIndex(path string, required ...string) (*tabular.Frame, error) {
	frame, err := tabular.ReadCSVFile(path, tabular.ReadOptions{})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "registered", "read index", path, err)
	}
	var missing []string
	for _, name := range required {
		if !frame.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, services.Wrap(services.ErrValidation, "registered", "read index",
			"index CSV missing required columns: "+strings.Join(missing, ", "), nil)
	}
	return frame, nil
}

// Layout is where one reference's files live.
type Layout struct {
	Ref         string
	SourcePDF   string
	Dir         string
	ReadablePDF string
	Markdown    string
	ImagesDir   string
}

// NewLayout derives the file layout of ref. Slashed references such as
// "241/REGBLD1" are stored as rb-241/REGBLD1/REGBLD1.md; plain ones as
// rb-247/rb-247.md. Source PDFs are cached as <pdfDir>/rb-<ref>.pdf.
func NewLayout(pdfDir, outDir, ref string) Layout {
	l := Layout{Ref: ref, SourcePDF: filepath.Join(pdfDir, "rb-"+ref+".pdf")}
	base, leaf, nested := textutil.SplitRef(ref)
	if nested {
		l.Dir = filepath.Join(outDir, "rb-"+base, leaf)
		l.ReadablePDF = filepath.Join(l.Dir, leaf+"-readable.pdf")
		l.Markdown = filepath.Join(l.Dir, leaf+".md")
	} else {
		l.Dir = filepath.Join(outDir, "rb-"+ref)
		l.ReadablePDF = filepath.Join(l.Dir, "rb-"+ref+"-readable.pdf")
		l.Markdown = filepath.Join(l.Dir, "rb-"+ref+".md")
	}
	l.ImagesDir = filepath.Join(l.Dir, "images")
	return l
}

// MarkdownPath is where extract and merge look for an RB's Markdown.
func MarkdownPath(mdRoot, rb string) string {
	return filepath.Join(mdRoot, "rb-"+rb, "rb-"+rb+".md")
}

var linkSeparators = regexp.MustCompile(`[,\s]+`)

// SplitLinks splits a Links cell on commas and whitespace. Links starting
// with "/" are prefixed with base when one is set.
func SplitLinks(links, base string) []string {
	var urls []string
	for _, part := range linkSeparators.Split(strings.TrimSpace(links), -1) {
		if part == "" {
			continue
		}
		if base != "" && strings.HasPrefix(part, "/") {
			part = strings.TrimRight(base, "/") + part
		}
		urls = append(urls, part)
	}
	return urls
}

// PickPDF returns the first link that mentions ".pdf", or "".
func PickPDF(links, base string) string {
	for _, u := range SplitLinks(links, base) {
		if strings.Contains(strings.ToLower(u), ".pdf") {
			return u
		}
	}
	return ""
}
