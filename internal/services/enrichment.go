package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dawask/rag-backend/internal/logger"
	"github.com/dawask/rag-backend/internal/repos"
)

// enrichConcurrency bounds outstanding generator calls across the whole
// batch, not per document.
const enrichConcurrency = 10

// ChunkAIResult is the enrichment output for one persisted chunk: possibly
// cleaned text, a visual summary and the entities to link.
type ChunkAIResult struct {
	ChunkID       uuid.UUID
	Text          string
	VisualSummary string
	Entities      []repos.ExtractedEntity
}

type EnrichmentService struct {
	log    *logger.Logger
	openai OpenAIClient
	sem    *semaphore.Weighted
}

func NewEnrichmentService(log *logger.Logger, openai OpenAIClient) *EnrichmentService {
	return &EnrichmentService{
		log:    log.With("service", "EnrichmentService"),
		openai: openai,
		sem:    semaphore.NewWeighted(enrichConcurrency),
	}
}

var enrichmentSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"visual_summary": map[string]any{"type": "string"},
		"entities": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":      map[string]any{"type": "string"},
					"type":      map[string]any{"type": "string"},
					"aliases":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"relevance": map[string]any{"type": "number"},
				},
				"required":             []string{"name", "type", "aliases", "relevance"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"visual_summary", "entities"},
	"additionalProperties": false,
}

// EnrichChunks runs visual summarization and entity extraction over the
// batch. Chunks without tables and without images bypass the generator;
// per-chunk errors degrade to empty results and never fail the batch.
func (s *EnrichmentService) EnrichChunks(ctx context.Context, chunks []EnrichedChunk, chunkIDs []uuid.UUID) ([]ChunkAIResult, error) {
	if len(chunks) != len(chunkIDs) {
		return nil, fmt.Errorf("chunk/id count mismatch: %d vs %d", len(chunks), len(chunkIDs))
	}

	results := make([]ChunkAIResult, len(chunks))
	g, gctx := errgroup.WithContext(ctx)

	for i := range chunks {
		i := i
		g.Go(func() error {
			if err := s.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer s.sem.Release(1)
			results[i] = s.enrichOne(gctx, chunks[i], chunkIDs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *EnrichmentService) enrichOne(ctx context.Context, chunk EnrichedChunk, chunkID uuid.UUID) ChunkAIResult {
	passthrough := ChunkAIResult{
		ChunkID:  chunkID,
		Text:     chunk.Text,
		Entities: []repos.ExtractedEntity{},
	}

	if len(chunk.Tables) == 0 && len(chunk.ImagesURLs) == 0 {
		return passthrough
	}

	prompt := buildEnrichmentPrompt(chunk)
	raw, err := s.openai.GenerateJSONWithImages(
		ctx,
		"You are an expert in structured data extraction for a knowledge graph.",
		prompt,
		chunk.ImagesURLs,
		"chunk_enrichment",
		enrichmentSchema,
	)
	if err != nil {
		s.log.Warn("Chunk enrichment failed, proceeding without AI data",
			"chunk_id", chunkID.String(),
			"error", err.Error(),
		)
		return passthrough
	}

	out := passthrough
	if vs, ok := raw["visual_summary"].(string); ok {
		out.VisualSummary = strings.TrimSpace(vs)
	}
	out.Entities = decodeEntities(raw["entities"])

	if out.VisualSummary != "" {
		out.Text = StripTableNoise(chunk.Text)
	}
	return out
}

func buildEnrichmentPrompt(chunk EnrichedChunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, `CHUNK CONTEXT: %s
TEXT CONTENT:
%s

YOUR MISSION:
Respond ONLY with a JSON object containing two keys:

1. "visual_summary":
   - Analyze the provided TABLES and IMAGES.
   - Extract only factual information that is NOT already in the text.
   - Format: a list of raw facts separated by line breaks.
   - If nothing new: return "".

2. "entities":
   - Extract entities (People, Places, Key concepts, Events).
   - For each entity provide:
     - "name": canonical name (the most complete form).
     - "type": category (PERSON, PLACE, CONCEPT, EVENT).
     - "aliases": list of variants found or known (e.g. ["Wudu", "Ablutions"]).
     - "relevance": score from 0.0 to 1.0 (importance of the entity in this chunk).

RULES:
- No introductory sentences.
- If a table continues a previous one (is_continuation: %t), keep it coherent.
- STRICT JSON ONLY.`, chunk.HeadingFull, chunk.Text, chunk.IsTableContinuation)

	if len(chunk.Tables) > 0 {
		b.WriteString("\n\n--- TABLES ---\n")
		for i, t := range chunk.Tables {
			fmt.Fprintf(&b, "Table %d: %s\n", i+1, t)
		}
	}
	return b.String()
}

func decodeEntities(raw any) []repos.ExtractedEntity {
	out := []repos.ExtractedEntity{}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return out
	}
	var decoded []struct {
		Name      string   `json:"name"`
		Type      string   `json:"type"`
		Aliases   []string `json:"aliases"`
		Relevance float64  `json:"relevance"`
	}
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return out
	}
	for _, e := range decoded {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		out = append(out, repos.ExtractedEntity{
			Name:      name,
			Type:      strings.ToUpper(strings.TrimSpace(e.Type)),
			Aliases:   e.Aliases,
			Relevance: e.Relevance,
		})
	}
	return out
}

var (
	tableSeparatorRowRe = regexp.MustCompile(`(?m)^\s*\|[\s\-\|]+\|\s*$`)
	tableRowRe          = regexp.MustCompile(`(?m)^\s*\|.*\|\s*$`)
	blankRunRe          = regexp.MustCompile(`\n\s*\n`)
)

// StripTableNoise removes standalone markdown table rows and collapses
// excess blank lines. Applied only when a visual summary replaces the
// table's information.
func StripTableNoise(text string) string {
	cleaned := tableSeparatorRowRe.ReplaceAllString(text, "")
	cleaned = tableRowRe.ReplaceAllString(cleaned, "")
	cleaned = blankRunRe.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}
