package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrPDFExtraction wraps failures to parse a PDF or pull text out of it
var ErrPDFExtraction = errors.New("failed to extract PDF text")

// ExtractPDF returns the text of every page that has any, each under a
// "--- Page N ---" header. Scanned PDFs without a text layer give "".
func ExtractPDF(data []byte) (text string, err error) {
	// the parser panics on some malformed object graphs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrPDFExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPDFExtraction, err)
	}

	fonts := make(map[string]*pdf.Font)
	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}

		content, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", ErrPDFExtraction, i, err)
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		pages = append(pages, fmt.Sprintf("--- Page %d ---\n%s", i, content))
	}

	return strings.Join(pages, "\n\n"), nil
}
