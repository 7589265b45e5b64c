package services

import (
	"strings"
	"testing"
)

func TestSplitEnrichedChunksReindexOnlyWithoutBudget(t *testing.T) {
	chunks := []EnrichedChunk{
		{ChunkIndex: 7, Text: strings.Repeat("long text ", 500)},
		{ChunkIndex: 9, Text: "short"},
	}
	out := SplitEnrichedChunks(chunks, 0, 0)
	if len(out) != 2 {
		t.Fatalf("no budget means no splitting: got=%d chunks", len(out))
	}
	if out[0].ChunkIndex != 0 || out[1].ChunkIndex != 1 {
		t.Fatalf("indexes must be sequential: got=%d %d", out[0].ChunkIndex, out[1].ChunkIndex)
	}
}

func TestSplitEnrichedChunksSplitsOversizeOnParagraphs(t *testing.T) {
	para := strings.Repeat("word ", 50) // ~250 chars
	text := para + "\n\n" + para + "\n\n" + para
	out := SplitEnrichedChunks([]EnrichedChunk{{Text: text}}, 100, 10) // 300-char budget
	if len(out) < 2 {
		t.Fatalf("expected a split, got %d pieces", len(out))
	}
	for i, piece := range out {
		if piece.ChunkIndex != i {
			t.Fatalf("piece %d has index %d", i, piece.ChunkIndex)
		}
		if len(piece.Text) > 100*splitCharFactor {
			t.Fatalf("piece %d over budget: %d chars", i, len(piece.Text))
		}
	}
}

func TestSplitKeepsTablesAndImagesOnFirstPieceOnly(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta. ", 60)
	chunk := EnrichedChunk{
		Text:       text,
		Tables:     []string{"| a | b |"},
		ImagesURLs: []string{"https://example.com/img.jpg"},
	}
	out := SplitEnrichedChunks([]EnrichedChunk{chunk}, 100, 0)
	if len(out) < 2 {
		t.Fatalf("expected a split, got %d pieces", len(out))
	}
	if len(out[0].Tables) != 1 || len(out[0].ImagesURLs) != 1 {
		t.Fatalf("first piece must keep attachments: %+v", out[0])
	}
	for _, piece := range out[1:] {
		if len(piece.Tables) != 0 || len(piece.ImagesURLs) != 0 {
			t.Fatalf("later pieces must not duplicate attachments: %+v", piece)
		}
	}
}

func TestSplitFlagsTableCuts(t *testing.T) {
	row := "| cell one | cell two | cell three |"
	rows := make([]string, 40)
	for i := range rows {
		rows[i] = row
	}
	text := strings.Join(rows, "\n")
	out := SplitEnrichedChunks([]EnrichedChunk{{Text: text}}, 100, 0)
	if len(out) < 2 {
		t.Fatalf("expected the table to be cut, got %d pieces", len(out))
	}
	if !out[0].IsTableCut {
		t.Fatalf("first piece of a cut table must be flagged is_table_cut")
	}
	if !out[1].IsTableContinuation {
		t.Fatalf("second piece must be flagged is_table_continuation")
	}
	if out[0].IsTableContinuation {
		t.Fatalf("first piece is not a continuation")
	}
}

func TestOverlapTailCutsAtWordBoundary(t *testing.T) {
	tail := overlapTail("the quick brown fox jumps", 10)
	if strings.HasPrefix(tail, " ") {
		t.Fatalf("tail starts with space: %q", tail)
	}
	if len(tail) > 10 {
		t.Fatalf("tail too long: %q", tail)
	}
	if !strings.HasSuffix("the quick brown fox jumps", tail) {
		t.Fatalf("tail must be a suffix: %q", tail)
	}
}

func TestHardSplitCoversAllText(t *testing.T) {
	text := strings.Repeat("x", 95)
	pieces := hardSplit(text, 30, 5)
	last := pieces[len(pieces)-1]
	if !strings.HasSuffix(text, last) {
		t.Fatalf("last piece must end the text")
	}
	for _, p := range pieces {
		if len(p) > 30 {
			t.Fatalf("piece over size: %d", len(p))
		}
	}
}
