package companies

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"imdata/internal/tabular"
	"imdata/internal/textutil"
)

// Columns is the layout of a search result row.
var Columns = []string{"Name", "Number", "Inc/Reg Date", "Status", "Registry Type", "Name Status", "URL", "Index Date"}

// ParseSearchPage extracts result rows from the first table of a search page.
// Rows with fewer than six cells (headers, pagers) are ignored.
func ParseSearchPage(body []byte, registryURL, indexDate string) (*tabular.Frame, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}
	frame := tabular.New(Columns...)
	table := doc.Find("table").First()
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() < 6 {
			return
		}
		first := cells.Eq(0)
		name := textutil.CleanText(first.Text())
		link := ""
		if anchor := first.Find("a").First(); anchor.Length() > 0 {
			name = textutil.CleanText(anchor.Text())
			if href, ok := anchor.Attr("href"); ok && strings.TrimSpace(href) != "" {
				link = registryURL + strings.TrimSpace(href)
			}
		}
		cell := func(i int) string { return textutil.CleanText(cells.Eq(i).Text()) }
		_ = frame.Append(name, cell(1), cell(2), cell(3), cell(4), cell(5), link, indexDate)
	})
	return frame, nil
}

// ParseDetailsPage collects label/value pairs from a company detail page:
// two-cell table rows (th/td or td/td) and definition lists.
func ParseDetailsPage(body []byte) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse details page: %w", err)
	}
	fields := make(map[string]string)
	add := func(label, value string) {
		label = strings.TrimSuffix(textutil.CleanText(label), ":")
		label = strings.TrimSpace(label)
		if label == "" {
			return
		}
		if _, exists := fields[label]; exists {
			return
		}
		fields[label] = textutil.CleanText(value)
	}
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("th, td")
		if cells.Length() != 2 {
			return
		}
		add(cells.Eq(0).Text(), cells.Eq(1).Text())
	})
	doc.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		dl.Find("dt").Each(func(_ int, dt *goquery.Selection) {
			add(dt.Text(), dt.NextFiltered("dd").Text())
		})
	})
	return fields, nil
}
