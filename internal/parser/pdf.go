package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"prepvista-rag/internal/models"
	"prepvista-rag/internal/ragerr"
)

// pdf signature must appear within this many leading bytes
const signatureWindow = 1024

// Extractor turns raw document bytes into ordered page text
type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]models.Page, error)
}

type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// IsPDF reports whether data carries a PDF header
func IsPDF(data []byte) bool {
	head := data
	if len(head) > signatureWindow {
		head = head[:signatureWindow]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}

// Extract returns one entry per page, numbered from 1. Pages without
// extractable text are returned with empty text.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (pages []models.Page, err error) {
	if !IsPDF(data) {
		return nil, fmt.Errorf("missing pdf header: %w", ragerr.ErrUnsupportedFormat)
	}

	// malformed files can panic deep inside the reader
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("failed to read pdf: %v: %w", r, ragerr.ErrExtractionFailed)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %v: %w", err, ragerr.ErrExtractionFailed)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("pdf has no pages: %w", ragerr.ErrExtractionFailed)
	}

	failed := 0
	pages = make([]models.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, perr := pageText(reader, i)
		if perr != nil {
			failed++
			log.Warn().Err(perr).Int("page", i).Msg("Failed to extract page text")
		}
		pages = append(pages, models.Page{Number: i, Text: CleanText(text)})
	}

	if failed == numPages {
		return nil, fmt.Errorf("no page could be decoded: %w", ragerr.ErrExtractionFailed)
	}
	log.Debug().Int("pages", numPages).Int("failed", failed).Msg("Extracted pdf")
	return pages, nil
}

func pageText(reader *pdf.Reader, i int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("page %d: %v", i, r)
		}
	}()
	page := reader.Page(i)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// CleanText collapses every whitespace run to a single space
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
