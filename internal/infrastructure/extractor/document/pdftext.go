package document

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// LayerReader reads the PDF text layer with ledongthuc/pdf.
type LayerReader struct {
	MaxPages int
}

func NewLayerReader(maxPages int) *LayerReader {
	return &LayerReader{MaxPages: maxPages}
}

func (r *LayerReader) ReadPages(ctx context.Context, path string) (pages []string, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("corrupt pdf: %v", rec)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	if r.MaxPages > 0 && total > r.MaxPages {
		total = r.MaxPages
	}

	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d plain text: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
