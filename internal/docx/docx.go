// Package docx extracts plain text from Office Open XML word-processing documents.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"code.sajari.com/docconv/v2"
)

const (
	contentTypesPart = "[Content_Types].xml"
	documentPart     = "word/document.xml"
)

// ErrNotDocx indicates the payload is not a readable .docx container.
var ErrNotDocx = errors.New("not a docx document")

// Converter converts .docx bytes into plain text using docconv.
type Converter struct{}

// NewConverter returns a docx text converter.
func NewConverter() *Converter {
	return &Converter{}
}

// ConvertToText returns the document header, body and footer text.
func (c *Converter) ConvertToText(ctx context.Context, raw []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := checkContainer(raw); err != nil {
		return "", err
	}

	text, _, err := docconv.ConvertDocx(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("convert docx: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// checkContainer confirms the parts docconv dereferences are present.
func checkContainer(raw []byte) error {
	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotDocx, err)
	}

	found := map[string]bool{}
	for _, f := range reader.File {
		found[f.Name] = true
	}
	for _, part := range []string{contentTypesPart, documentPart} {
		if !found[part] {
			return fmt.Errorf("%w: missing %s", ErrNotDocx, part)
		}
	}
	return nil
}
