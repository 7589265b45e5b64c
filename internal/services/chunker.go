package services

import (
	"sort"
	"strings"

	"github.com/dawask/rag-backend/internal/logger"
	"github.com/dawask/rag-backend/internal/parser"
)

// ProvisionalChunk is the chunker's output: raw text plus pointers back to
// the document items it was built from, so structural enrichment can pull
// tables and locate pictures.
type ProvisionalChunk struct {
	Text     string
	Headings []string
	Pages    []int
	Items    []parser.Item
}

// tokens are approximated as chars/3; the embedding models in play average
// about three characters per token on this corpus.
const charsPerToken = 3

type Chunker struct {
	log *logger.Logger
}

func NewChunker(log *logger.Logger) *Chunker {
	return &Chunker{log: log.With("service", "Chunker")}
}

// ChunkDocument walks the document's heading tree and accumulates body items
// under the active heading path, cutting at the token budget. Small sibling
// runs under the same heading are merged into one chunk.
func (c *Chunker) ChunkDocument(doc *parser.ParsedDocument, maxTokens int) []ProvisionalChunk {
	if maxTokens <= 0 {
		maxTokens = 1500
	}
	budget := maxTokens * charsPerToken

	var out []ProvisionalChunk
	var headingStack []string
	var cur *ProvisionalChunk
	curChars := 0

	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.TrimSpace(cur.Text)
		if cur.Text != "" {
			cur.Pages = sortedUniquePages(cur.Pages)
			out = append(out, *cur)
		}
		cur = nil
		curChars = 0
	}

	open := func() {
		headings := make([]string, len(headingStack))
		copy(headings, headingStack)
		cur = &ProvisionalChunk{Headings: headings}
	}

	appendItem := func(it parser.Item, text string) {
		if cur == nil {
			open()
		}
		if cur.Text != "" {
			cur.Text += "\n\n"
		}
		cur.Text += text
		curChars += len(text)
		cur.Items = append(cur.Items, it)
		if it.Page > 0 {
			cur.Pages = append(cur.Pages, it.Page)
		}
	}

	for _, it := range doc.Items {
		switch it.Kind {
		case parser.ItemHeading:
			// A new heading closes the current chunk and rewrites the path at
			// the heading's depth.
			flush()
			level := it.Level
			if level < 1 {
				level = 1
			}
			if level <= len(headingStack) {
				headingStack = headingStack[:level-1]
			}
			headingStack = append(headingStack, strings.TrimSpace(it.Text))

		case parser.ItemText:
			text := strings.TrimSpace(it.Text)
			if text == "" {
				continue
			}
			if curChars > 0 && curChars+len(text) > budget {
				flush()
			}
			appendItem(it, text)

		case parser.ItemTable:
			md := strings.TrimSpace(it.Text)
			if md == "" {
				continue
			}
			if curChars > 0 && curChars+len(md) > budget {
				flush()
			}
			appendItem(it, md)
		}
	}
	flush()

	if c.log != nil {
		c.log.Info("Chunked document", "filename", doc.Filename, "chunks", len(out))
	}
	return out
}

func sortedUniquePages(pages []int) []int {
	seen := map[int]bool{}
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if p < 0 || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// VerticalSpan returns the chunk's vertical extent over its items, in page
// units. Defaults cover chunks whose items carry no geometry.
func (p ProvisionalChunk) VerticalSpan() (top, bottom float64) {
	top, bottom = 0, 1000
	first := true
	for _, it := range p.Items {
		if it.BBox.Height() <= 0 && it.BBox.Top == 0 && it.BBox.Bottom == 0 {
			continue
		}
		if first {
			top, bottom = it.BBox.Top, it.BBox.Bottom
			first = false
			continue
		}
		if it.BBox.Top < top {
			top = it.BBox.Top
		}
		if it.BBox.Bottom > bottom {
			bottom = it.BBox.Bottom
		}
	}
	return top, bottom
}
