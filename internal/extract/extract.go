// Package extract turns uploaded PDF bytes into plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrExtraction is returned for corrupt or non-PDF input.
var ErrExtraction = errors.New("extract: cannot extract text")

// Error is an extraction failure for one named file. It matches ErrExtraction
// under errors.Is; Err holds the parser detail, which is not meant for clients.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrExtraction, e.Name, e.Err)
}

func (e *Error) Unwrap() []error { return []error{ErrExtraction, e.Err} }

func failed(name string, err error) error { return &Error{Name: name, Err: err} }

// pdfMagic is the header every PDF file starts with.
var pdfMagic = []byte("%PDF-")

// Extractor converts a document's bytes to text.
type Extractor interface {
	Extract(ctx context.Context, name string, data []byte) (string, error)
}

// PDFExtractor extracts the text layer of a PDF page by page. Scanned pages
// without a text layer contribute nothing. It is safe for concurrent use.
type PDFExtractor struct{}

// Extract implements Extractor. Pages are joined with a newline and the result
// is trimmed, so a PDF without any text layer yields "".
func (PDFExtractor) Extract(ctx context.Context, name string, data []byte) (text string, err error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return "", failed(name, errors.New("not a PDF file"))
	}

	// The parser panics on some malformed object streams.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", failed(name, fmt.Errorf("malformed PDF: %v", r))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", failed(name, err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pt, err := page.GetPlainText(nil)
		if err != nil {
			return "", failed(name, fmt.Errorf("page %d: %w", i, err))
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(pt)
	}
	return strings.TrimSpace(b.String()), nil
}
