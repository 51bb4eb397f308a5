package parser

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// extractPDF returns the plain text of a PDF and its page count.
func extractPDF(data []byte) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("error creating PDF reader: %w", err)
	}

	text, err := reader.GetPlainText()
	if err != nil {
		return "", 0, fmt.Errorf("could not read content of pdf: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(text); err != nil {
		return "", 0, fmt.Errorf("could not read content of pdf: %w", err)
	}
	return buf.String(), reader.NumPage(), nil
}
