package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/dawask/rag-backend/internal/logger"
	"github.com/dawask/rag-backend/internal/parser"
	"github.com/dawask/rag-backend/internal/platform/qdrant"
	"github.com/dawask/rag-backend/internal/repos"
	"github.com/dawask/rag-backend/internal/types"
)

// Ingest pipeline states. FAILED is terminal for the attempt; rows persisted
// by earlier steps stay in place.
type IngestStatus string

const (
	IngestStatusReceived   IngestStatus = "RECEIVED"
	IngestStatusParsed     IngestStatus = "PARSED"
	IngestStatusChunked    IngestStatus = "CHUNKED"
	IngestStatusIdentified IngestStatus = "IDENTIFIED"
	IngestStatusEnriched   IngestStatus = "ENRICHED"
	IngestStatusPersisted  IngestStatus = "PERSISTED"
	IngestStatusSummarized IngestStatus = "SUMMARIZED"
	IngestStatusVectorized IngestStatus = "VECTORIZED"
	IngestStatusIndexed    IngestStatus = "INDEXED"
	IngestStatusDone       IngestStatus = "DONE"
	IngestStatusFailed     IngestStatus = "FAILED"
)

// IdentityHeading labels the per-document identity chunk.
const IdentityHeading = "DOCUMENT_IDENTITY"

type IngestFile struct {
	Filename string
	Data     []byte
}

type IngestFileResult struct {
	Filename    string  `json:"filename"`
	Status      string  `json:"status"`
	DocID       string  `json:"doc_id,omitempty"`
	ChunksCount int     `json:"chunks_count,omitempty"`
	Duration    float64 `json:"duration"`
	Detail      string  `json:"detail,omitempty"`
}

type IngestBulkResult struct {
	OverallStatus string             `json:"overall_status"`
	TotalFiles    int                `json:"total_files"`
	TotalDuration float64            `json:"total_duration"`
	Results       []IngestFileResult `json:"results"`
}

type IngestionService struct {
	log        *logger.Logger
	parser     parser.Parser
	chunker    *Chunker
	processor  *Processor
	identity   *IdentityService
	enrichment *EnrichmentService
	embedder   Embedder
	vectors    qdrant.VectorStore
	docs       repos.DocumentRepo
	chunks     repos.ChunkRepo
	entities   repos.EntityRepo
	bench      *BenchConfigs
}

func NewIngestionService(
	log *logger.Logger,
	docParser parser.Parser,
	chunker *Chunker,
	processor *Processor,
	identity *IdentityService,
	enrichment *EnrichmentService,
	embedder Embedder,
	vectors qdrant.VectorStore,
	docs repos.DocumentRepo,
	chunks repos.ChunkRepo,
	entities repos.EntityRepo,
	bench *BenchConfigs,
) *IngestionService {
	return &IngestionService{
		log:        log.With("service", "IngestionService"),
		parser:     docParser,
		chunker:    chunker,
		processor:  processor,
		identity:   identity,
		enrichment: enrichment,
		embedder:   embedder,
		vectors:    vectors,
		docs:       docs,
		chunks:     chunks,
		entities:   entities,
		bench:      bench,
	}
}

// IngestBulk runs the pipeline for each file in turn. A failing file is
// reported and skipped; the rest of the batch continues.
func (s *IngestionService) IngestBulk(ctx context.Context, files []IngestFile, configID string) IngestBulkResult {
	overallStart := time.Now()
	results := make([]IngestFileResult, 0, len(files))

	s.log.Info("Bulk ingestion started", "files", len(files), "config_id", configID)

	for _, file := range files {
		result, err := s.ingestSingle(ctx, file, configID)
		if err != nil {
			s.log.Error("Ingestion failed",
				"filename", file.Filename,
				"status", string(IngestStatusFailed),
				"error", err.Error(),
			)
			results = append(results, IngestFileResult{
				Filename: file.Filename,
				Status:   "error",
				Detail:   err.Error(),
			})
			continue
		}
		results = append(results, result)
	}

	return IngestBulkResult{
		OverallStatus: "completed",
		TotalFiles:    len(files),
		TotalDuration: time.Since(overallStart).Seconds(),
		Results:       results,
	}
}

func (s *IngestionService) ingestSingle(ctx context.Context, file IngestFile, configID string) (IngestFileResult, error) {
	start := time.Now()
	cfg := s.bench.Ingest(configID)
	s.step(file.Filename, IngestStatusReceived)

	// Re-ingesting a known filename reuses its document row.
	doc, err := s.docs.Upsert(ctx, nil, file.Filename)
	if err != nil {
		return IngestFileResult{}, fmt.Errorf("upsert document: %w", err)
	}

	parsed, err := s.parser.Parse(ctx, file.Filename, file.Data)
	if err != nil {
		return IngestFileResult{}, fmt.Errorf("parse: %w", err)
	}
	s.step(file.Filename, IngestStatusParsed)

	markdown := parser.Flatten(parsed.Items)

	provisional := s.chunker.ChunkDocument(parsed, cfg.ChunkSize)
	if len(provisional) == 0 {
		return IngestFileResult{}, fmt.Errorf("no chunks produced for %q", file.Filename)
	}
	s.step(file.Filename, IngestStatusChunked)

	identityText := s.identity.CreateIdentity(ctx, file.Filename, markdown)
	if err := s.persistIdentityChunk(ctx, doc.ID, identityText); err != nil {
		return IngestFileResult{}, fmt.Errorf("persist identity chunk: %w", err)
	}
	s.step(file.Filename, IngestStatusIdentified)

	enriched := s.processor.EnrichChunks(ctx, parsed, provisional)
	CleanChunkHeadings(enriched, TOCHeadingSet(markdown))
	if cfg.Mode == IngestModeRecursive {
		enriched = SplitEnrichedChunks(enriched, cfg.ChunkSize, cfg.Overlap)
	} else {
		enriched = SplitEnrichedChunks(enriched, 0, 0)
	}
	s.step(file.Filename, IngestStatusEnriched)

	rows, err := s.persistChunkBatch(ctx, doc.ID, enriched)
	if err != nil {
		return IngestFileResult{}, fmt.Errorf("persist chunks: %w", err)
	}
	s.step(file.Filename, IngestStatusPersisted)

	chunkIDs := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		chunkIDs[i] = row.ID
	}

	aiResults, err := s.enrichment.EnrichChunks(ctx, enriched, chunkIDs)
	if err != nil {
		return IngestFileResult{}, fmt.Errorf("ai enrichment: %w", err)
	}
	if err := s.persistAIResults(ctx, aiResults); err != nil {
		return IngestFileResult{}, fmt.Errorf("persist ai data: %w", err)
	}
	s.step(file.Filename, IngestStatusSummarized)

	points, err := s.vectorize(ctx, doc.ID, enriched, aiResults, chunkIDs)
	if err != nil {
		return IngestFileResult{}, fmt.Errorf("vectorize: %w", err)
	}
	s.step(file.Filename, IngestStatusVectorized)

	if err := s.vectors.UpsertPoints(ctx, points); err != nil {
		return IngestFileResult{}, fmt.Errorf("index vectors: %w", err)
	}
	s.step(file.Filename, IngestStatusIndexed)

	duration := time.Since(start).Seconds()
	s.log.Info("Ingestion complete",
		"filename", file.Filename,
		"status", string(IngestStatusDone),
		"doc_id", doc.ID.String(),
		"chunks", len(chunkIDs),
		"duration_s", duration,
	)

	return IngestFileResult{
		Filename:    file.Filename,
		Status:      "success",
		DocID:       doc.ID.String(),
		ChunksCount: len(chunkIDs),
		Duration:    duration,
	}, nil
}

func (s *IngestionService) step(filename string, status IngestStatus) {
	s.log.Debug("Pipeline step", "filename", filename, "status", string(status))
}

func (s *IngestionService) persistIdentityChunk(ctx context.Context, docID uuid.UUID, identityText string) error {
	headings, err := json.Marshal([]string{IdentityHeading})
	if err != nil {
		return err
	}
	row := &types.Chunk{
		DocumentID:  docID,
		ChunkIndex:  types.IdentityChunkIndex,
		Text:        identityText,
		Headings:    datatypes.JSON(headings),
		HeadingFull: IdentityHeading,
		ChunkType:   types.ChunkTypeIdentity,
		IsIdentity:  true,
	}
	_, err = s.chunks.CreateBatch(ctx, nil, []*types.Chunk{row})
	return err
}

func (s *IngestionService) persistChunkBatch(ctx context.Context, docID uuid.UUID, enriched []EnrichedChunk) ([]*types.Chunk, error) {
	rows := make([]*types.Chunk, 0, len(enriched))
	for _, chunk := range enriched {
		headings, err := json.Marshal(chunk.Headings)
		if err != nil {
			return nil, err
		}
		pages, err := json.Marshal(chunk.PageNumbers)
		if err != nil {
			return nil, err
		}
		tables, err := json.Marshal(chunk.Tables)
		if err != nil {
			return nil, err
		}
		images, err := json.Marshal(chunk.ImagesURLs)
		if err != nil {
			return nil, err
		}
		rows = append(rows, &types.Chunk{
			DocumentID:  docID,
			ChunkIndex:  chunk.ChunkIndex,
			Text:        chunk.Text,
			Headings:    datatypes.JSON(headings),
			HeadingFull: chunk.HeadingFull,
			PageNumbers: datatypes.JSON(pages),
			Tables:      datatypes.JSON(tables),
			ImagesURLs:  datatypes.JSON(images),
			ChunkType:   types.ChunkTypeContent,
		})
	}
	return s.chunks.CreateBatch(ctx, nil, rows)
}

func (s *IngestionService) persistAIResults(ctx context.Context, results []ChunkAIResult) error {
	updates := make([]repos.ChunkAIUpdate, 0, len(results))
	for _, res := range results {
		updates = append(updates, repos.ChunkAIUpdate{
			ChunkID:       res.ChunkID,
			Text:          res.Text,
			VisualSummary: res.VisualSummary,
		})
	}
	if err := s.chunks.UpdateAIData(ctx, nil, updates); err != nil {
		return err
	}

	for _, res := range results {
		for _, entity := range res.Entities {
			if err := s.entities.LinkToChunk(ctx, res.ChunkID, entity); err != nil {
				// Entity graph growth is best-effort; the chunk itself is intact.
				s.log.Warn("Entity link failed",
					"chunk_id", res.ChunkID.String(),
					"entity", entity.Name,
					"error", err.Error(),
				)
			}
		}
	}
	return nil
}

func (s *IngestionService) vectorize(
	ctx context.Context,
	docID uuid.UUID,
	enriched []EnrichedChunk,
	aiResults []ChunkAIResult,
	chunkIDs []uuid.UUID,
) ([]qdrant.Point, error) {
	texts := make([]string, len(aiResults))
	for i, res := range aiResults {
		texts[i] = BuildEmbeddingText(enriched[i].HeadingFull, res.Text, res.VisualSummary)
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
	}

	points := make([]qdrant.Point, len(vectors))
	for i := range vectors {
		points[i] = qdrant.Point{
			ID:      chunkIDs[i].String(),
			Vector:  vectors[i],
			Content: texts[i],
			DocID:   docID.String(),
		}
	}
	return points, nil
}
