package services

import (
	"reflect"
	"strings"
	"testing"

	"github.com/dawask/rag-backend/internal/parser"
)

func TestChunkDocumentFollowsHeadingTree(t *testing.T) {
	doc := &parser.ParsedDocument{
		Filename: "course.pdf",
		Items: []parser.Item{
			{Kind: parser.ItemHeading, Level: 1, Text: "Part I", Page: 1},
			{Kind: parser.ItemHeading, Level: 2, Text: "Prayer", Page: 1},
			{Kind: parser.ItemText, Text: "Text about prayer.", Page: 1},
			{Kind: parser.ItemHeading, Level: 2, Text: "Fasting", Page: 2},
			{Kind: parser.ItemText, Text: "Text about fasting.", Page: 2},
			{Kind: parser.ItemHeading, Level: 1, Text: "Part II", Page: 3},
			{Kind: parser.ItemText, Text: "Part two intro.", Page: 3},
		},
	}

	chunks := NewChunker(newTestLogger(t)).ChunkDocument(doc, 1500)
	if len(chunks) != 3 {
		t.Fatalf("chunks: want=3 got=%d", len(chunks))
	}
	if !reflect.DeepEqual(chunks[0].Headings, []string{"Part I", "Prayer"}) {
		t.Fatalf("chunk 0 headings: got=%v", chunks[0].Headings)
	}
	if !reflect.DeepEqual(chunks[1].Headings, []string{"Part I", "Fasting"}) {
		t.Fatalf("sibling heading must replace at its depth: got=%v", chunks[1].Headings)
	}
	if !reflect.DeepEqual(chunks[2].Headings, []string{"Part II"}) {
		t.Fatalf("level-1 heading must truncate the stack: got=%v", chunks[2].Headings)
	}
}

func TestChunkDocumentCutsAtBudget(t *testing.T) {
	para := strings.Repeat("word ", 100) // ~500 chars
	doc := &parser.ParsedDocument{
		Items: []parser.Item{
			{Kind: parser.ItemHeading, Level: 1, Text: "H"},
			{Kind: parser.ItemText, Text: para, Page: 1},
			{Kind: parser.ItemText, Text: para, Page: 1},
			{Kind: parser.ItemText, Text: para, Page: 2},
		},
	}
	// Budget of 250 tokens = 750 chars: the three paragraphs cannot fit one chunk.
	chunks := NewChunker(newTestLogger(t)).ChunkDocument(doc, 250)
	if len(chunks) < 2 {
		t.Fatalf("expected budget cut, got %d chunks", len(chunks))
	}
	for _, c := range chunks {
		if !reflect.DeepEqual(c.Headings, []string{"H"}) {
			t.Fatalf("all pieces keep the heading path: got=%v", c.Headings)
		}
	}
}

func TestChunkDocumentCollectsSortedUniquePages(t *testing.T) {
	doc := &parser.ParsedDocument{
		Items: []parser.Item{
			{Kind: parser.ItemText, Text: "a", Page: 3},
			{Kind: parser.ItemText, Text: "b", Page: 1},
			{Kind: parser.ItemText, Text: "c", Page: 3},
		},
	}
	chunks := NewChunker(newTestLogger(t)).ChunkDocument(doc, 1500)
	if len(chunks) != 1 {
		t.Fatalf("chunks: want=1 got=%d", len(chunks))
	}
	if !reflect.DeepEqual(chunks[0].Pages, []int{1, 3}) {
		t.Fatalf("pages: got=%v", chunks[0].Pages)
	}
}

func TestChunkDocumentSkipsEmptyItems(t *testing.T) {
	doc := &parser.ParsedDocument{
		Items: []parser.Item{
			{Kind: parser.ItemText, Text: "   "},
			{Kind: parser.ItemTable, Text: ""},
		},
	}
	chunks := NewChunker(newTestLogger(t)).ChunkDocument(doc, 1500)
	if len(chunks) != 0 {
		t.Fatalf("whitespace-only input yields no chunks: got=%d", len(chunks))
	}
}

func TestVerticalSpanDefaultsWithoutGeometry(t *testing.T) {
	top, bottom := (ProvisionalChunk{}).VerticalSpan()
	if top != 0 || bottom != 1000 {
		t.Fatalf("defaults: got=(%v, %v)", top, bottom)
	}
}

func TestVerticalSpanCoversItems(t *testing.T) {
	chunk := ProvisionalChunk{Items: []parser.Item{
		{BBox: parser.BBox{Top: 120, Bottom: 200}},
		{BBox: parser.BBox{Top: 40, Bottom: 90}},
	}}
	top, bottom := chunk.VerticalSpan()
	if top != 40 || bottom != 200 {
		t.Fatalf("span: got=(%v, %v)", top, bottom)
	}
}
