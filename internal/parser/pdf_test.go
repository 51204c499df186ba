package parser

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepvista-rag/internal/ragerr"
)

// buildPDF writes a minimal single-font PDF with one text line per page
func buildPDF(pageTexts ...string) []byte {
	var objects []string
	n := len(pageTexts)
	// 1 catalog, 2 pages, 3 font, then page/content pairs
	kids := ""
	for i := range pageTexts {
		kids += fmt.Sprintf("%d 0 R ", 4+2*i)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, n),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pageTexts {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestPDFExtractorPages(t *testing.T) {
	data := buildPDF("Photosynthesis converts light   energy", "The Krebs cycle")

	pages, err := NewPDFExtractor().Extract(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 2, pages[1].Number)
	assert.Contains(t, pages[0].Text, "Photosynthesis converts light energy")
	assert.Contains(t, pages[1].Text, "Krebs cycle")
}

func TestPDFExtractorUnsupportedFormat(t *testing.T) {
	_, err := NewPDFExtractor().Extract(context.Background(), []byte("PK\x03\x04 this is a zip archive"))
	assert.ErrorIs(t, err, ragerr.ErrUnsupportedFormat)

	_, err = NewPDFExtractor().Extract(context.Background(), nil)
	assert.ErrorIs(t, err, ragerr.ErrUnsupportedFormat)
}

func TestPDFExtractorCorruptFile(t *testing.T) {
	data := []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> garbage without xref")

	_, err := NewPDFExtractor().Extract(context.Background(), data)
	assert.ErrorIs(t, err, ragerr.ErrExtractionFailed)
}

func TestPDFExtractorTruncatedFile(t *testing.T) {
	data := buildPDF("Cell division")
	_, err := NewPDFExtractor().Extract(context.Background(), data[:len(data)/2])
	assert.ErrorIs(t, err, ragerr.ErrExtractionFailed)
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7 ...")))
	assert.True(t, IsPDF(append(bytes.Repeat([]byte{0}, 100), []byte("%PDF-1.3")...)))
	assert.False(t, IsPDF(append(bytes.Repeat([]byte{' '}, 2000), []byte("%PDF-1.3")...)))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a b c", CleanText("  a\n\n b\t c  "))
	assert.Equal(t, "", CleanText("\n \t"))
}
