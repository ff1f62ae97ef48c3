package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// parsePDF extracts the plain text layer from a PDF. Scanned PDFs without a
// text layer yield empty output, which the ingestion pipeline reports as a
// failure rather than silently indexing nothing.
func parsePDF(data []byte) (text string, err error) {
	// The pdf package panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = decodeFailure("application/pdf", "pdf reader panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", decodeFailure("application/pdf", "open pdf: %v", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", decodeFailure("application/pdf", "extract text: %v", err)
	}
	var b strings.Builder
	if _, err := io.Copy(&b, plain); err != nil {
		return "", decodeFailure("application/pdf", "read text: %v", err)
	}
	return b.String(), nil
}
