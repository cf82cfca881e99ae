package render

import (
	"fmt"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// TextLayer returns the embedded text of every page, in order. Scanned pages
// yield empty strings. The result is only a hint for the recognizer; the page
// image stays authoritative.
func TextLayer(path string) ([]string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	n := reader.NumPage()
	out := make([]string, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		out[i-1] = strings.TrimSpace(text)
	}
	return out, nil
}
