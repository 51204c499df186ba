package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"prepvista-rag/internal/models"
	"prepvista-rag/internal/ragerr"
)

// PageSeparator joins the text of consecutive pages
const PageSeparator = "\n\n"

// Chunker splits page text into overlapping passages of at most Size runes
type Chunker struct {
	Size    int
	Overlap int
}

func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("size=%d overlap=%d: %w", size, overlap, ragerr.ErrInvalidChunkConfig)
	}
	return &Chunker{Size: size, Overlap: overlap}, nil
}

// DocumentText is the text the chunker works on: non-empty pages joined by PageSeparator
func DocumentText(pages []models.Page) string {
	runes, _ := joinPages(pages)
	return string(runes)
}

// joinPages returns the document runes and the page number of every rune.
// Separator runes belong to the page before them.
func joinPages(pages []models.Page) ([]rune, []int) {
	var runes []rune
	var pageOf []int
	for _, p := range pages {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		if len(runes) > 0 {
			last := pageOf[len(pageOf)-1]
			for _, r := range PageSeparator {
				runes = append(runes, r)
				pageOf = append(pageOf, last)
			}
		}
		for _, r := range text {
			runes = append(runes, r)
			pageOf = append(pageOf, p.Number)
		}
	}
	return runes, pageOf
}

// Split returns the chunks of the document with sequence indexes starting at 0.
// Ids and document ids are left for the caller to assign.
func (c *Chunker) Split(pages []models.Page) []models.Chunk {
	runes, pageOf := joinPages(pages)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []models.Chunk
	start := 0
	for seq := 0; ; seq++ {
		end := n
		if n-start > c.Size {
			end = c.boundary(runes, start)
		}

		body := start
		if seq > 0 {
			body = start + c.Overlap
		}
		page := pageOf[body]
		chunks = append(chunks, models.Chunk{
			SequenceIndex: seq,
			PageNumber:    &page,
			Content:       string(runes[start:end]),
			Metadata: map[string]string{
				models.MetaPageStart: strconv.Itoa(pageOf[start]),
				models.MetaPageEnd:   strconv.Itoa(pageOf[end-1]),
				models.MetaCharStart: strconv.Itoa(start),
				models.MetaCharEnd:   strconv.Itoa(end),
			},
		})

		if end == n {
			break
		}
		start = end - c.Overlap
	}
	return chunks
}

// boundary picks the end of the chunk starting at start. The end always
// lies beyond start+Overlap so the next chunk makes progress.
func (c *Chunker) boundary(runes []rune, start int) int {
	lo := start + c.Overlap + 1
	hi := start + c.Size
	half := max(lo, start+c.Size/2)

	// paragraph or page break
	for e := hi; e >= half && e >= 2; e-- {
		if runes[e-1] == '\n' && runes[e-2] == '\n' {
			return e
		}
	}
	// end of sentence
	for e := hi; e >= half && e >= 2; e-- {
		if unicode.IsSpace(runes[e-1]) && isSentenceEnd(runes[e-2]) {
			return e
		}
	}
	// any word break
	for e := hi; e >= lo; e-- {
		if unicode.IsSpace(runes[e-1]) {
			return e
		}
	}
	// a single word longer than the window continues in the next chunk
	return hi
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// Reassemble rebuilds the document text from chunks in sequence order by
// dropping the leading overlap of every chunk but the first.
func Reassemble(chunks []models.Chunk, overlap int) string {
	var sb strings.Builder
	for i, chunk := range chunks {
		runes := []rune(chunk.Content)
		if i > 0 {
			runes = runes[min(overlap, len(runes)):]
		}
		sb.WriteString(string(runes))
	}
	return sb.String()
}
