package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

func TestEnrichChunksBypassesChunksWithoutVisuals(t *testing.T) {
	// nil generator: a bypassed chunk must never reach it.
	s := &EnrichmentService{
		log: newTestLogger(t),
		sem: semaphore.NewWeighted(enrichConcurrency),
	}
	id := uuid.New()
	chunks := []EnrichedChunk{{Text: "plain prose without tables or images"}}

	results, err := s.EnrichChunks(context.Background(), chunks, []uuid.UUID{id})
	if err != nil {
		t.Fatalf("EnrichChunks: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results length: want=1 got=%d", len(results))
	}
	if results[0].ChunkID != id {
		t.Fatalf("chunk id: want=%s got=%s", id, results[0].ChunkID)
	}
	if results[0].Text != chunks[0].Text {
		t.Fatalf("bypass must keep text untouched")
	}
	if results[0].VisualSummary != "" {
		t.Fatalf("bypass must not invent a summary")
	}
	if results[0].Entities == nil || len(results[0].Entities) != 0 {
		t.Fatalf("bypass yields an empty entity slice, got %v", results[0].Entities)
	}
}

func TestEnrichChunksRejectsMismatchedIDs(t *testing.T) {
	s := &EnrichmentService{
		log: newTestLogger(t),
		sem: semaphore.NewWeighted(enrichConcurrency),
	}
	_, err := s.EnrichChunks(context.Background(), []EnrichedChunk{{Text: "x"}}, nil)
	if err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestDecodeEntitiesNormalizes(t *testing.T) {
	raw := []any{
		map[string]any{"name": " Wudu ", "type": "concept", "aliases": []any{"Woudou"}, "relevance": 0.9},
		map[string]any{"name": "", "type": "PERSON", "aliases": []any{}, "relevance": 0.5},
	}
	entities := decodeEntities(raw)
	if len(entities) != 1 {
		t.Fatalf("empty names must be skipped: got=%d", len(entities))
	}
	if entities[0].Name != "Wudu" {
		t.Fatalf("name trim: got=%q", entities[0].Name)
	}
	if entities[0].Type != "CONCEPT" {
		t.Fatalf("type uppercase: got=%q", entities[0].Type)
	}
	if entities[0].Relevance != 0.9 {
		t.Fatalf("relevance: got=%v", entities[0].Relevance)
	}
}

func TestDecodeEntitiesGarbageYieldsEmpty(t *testing.T) {
	if got := decodeEntities("not a list"); len(got) != 0 {
		t.Fatalf("garbage input: got=%v", got)
	}
	if got := decodeEntities(nil); got == nil {
		t.Fatalf("nil input must still yield a non-nil slice")
	}
}

func TestStripTableNoiseRemovesRowsKeepsProse(t *testing.T) {
	text := `Introduction paragraph.

| Name | Value |
| --- | --- |
| Zakat | 2.5% |

Closing paragraph.`

	cleaned := StripTableNoise(text)
	if strings.Contains(cleaned, "|") {
		t.Fatalf("table rows must be stripped: %q", cleaned)
	}
	if !strings.Contains(cleaned, "Introduction paragraph.") || !strings.Contains(cleaned, "Closing paragraph.") {
		t.Fatalf("prose must survive: %q", cleaned)
	}
	if strings.Contains(cleaned, "\n\n\n") {
		t.Fatalf("blank runs must collapse: %q", cleaned)
	}
}

func TestBuildEnrichmentPromptIncludesTables(t *testing.T) {
	chunk := EnrichedChunk{
		HeadingFull: "Part I > Zakat",
		Text:        "body",
		Tables:      []string{"| a | b |"},
	}
	prompt := buildEnrichmentPrompt(chunk)
	if !strings.Contains(prompt, "--- TABLES ---") {
		t.Fatalf("tables appendix missing")
	}
	if !strings.Contains(prompt, "Table 1: | a | b |") {
		t.Fatalf("table rendering missing: %q", prompt)
	}
	if !strings.Contains(prompt, "Part I > Zakat") {
		t.Fatalf("heading context missing")
	}
}
