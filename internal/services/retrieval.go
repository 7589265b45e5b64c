package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/dawask/rag-backend/internal/logger"
	"github.com/dawask/rag-backend/internal/platform/qdrant"
	"github.com/dawask/rag-backend/internal/repos"
	"github.com/dawask/rag-backend/internal/types"
)

// rrfK is the rank-fusion constant: fused(id) = sum over lists of
// 1/(rrfK + rank).
const rrfK = 60

// ContextItem is one element of the answer context: either a document's
// identity card or a reranked content chunk.
type ContextItem struct {
	ChunkID       uuid.UUID
	DocID         uuid.UUID
	ChunkIndex    int
	IsIdentity    bool
	Text          string
	RerankText    string
	VisualSummary string
	HeadingFull   string
	Tables        []string
	ImagesURLs    []string
	PageNumbers   []int
	Score         float64
}

type RetrievalService struct {
	log      *logger.Logger
	chunks   repos.ChunkRepo
	vectors  qdrant.VectorStore
	embedder Embedder
	reranker Reranker
}

func NewRetrievalService(
	log *logger.Logger,
	chunks repos.ChunkRepo,
	vectors qdrant.VectorStore,
	embedder Embedder,
	reranker Reranker,
) *RetrievalService {
	return &RetrievalService{
		log:      log.With("service", "RetrievalService"),
		chunks:   chunks,
		vectors:  vectors,
		embedder: embedder,
		reranker: reranker,
	}
}

// Retrieve runs the hybrid search pipeline: embed the query variants and run
// the lexical search concurrently, dense-search each variant, fuse with RRF,
// hydrate from Postgres (dropping stale ids), rerank against V1 and group the
// survivors by document with identity cards leading.
func (s *RetrievalService) Retrieve(ctx context.Context, q RewrittenQuery, docID *uuid.UUID, topK, topN int) ([]ContextItem, error) {
	if topK <= 0 {
		topK = 20
	}

	var docFilter []string
	if docID != nil {
		docFilter = []string{docID.String()}
	}

	variants := q.Variants
	if len(variants) == 0 {
		variants = []string{q.VectorQuery}
	}

	// Embeddings and the lexical search are independent; run them together.
	denseLists := make([][]qdrant.Match, len(variants))
	var lexical []qdrant.Match

	g, gctx := errgroup.WithContext(ctx)
	for i, variant := range variants {
		i, variant := i, variant
		g.Go(func() error {
			// Each channel is additive; a failed variant just contributes nothing.
			vector, err := s.embedder.EmbedQuery(gctx, variant)
			if err != nil {
				s.log.Warn("Variant embedding failed", "variant", i+1, "error", err.Error())
				return nil
			}
			matches, err := s.vectors.DenseSearch(gctx, vector, topK, docFilter)
			if err != nil {
				s.log.Warn("Dense search failed", "variant", i+1, "error", err.Error())
				return nil
			}
			denseLists[i] = matches
			return nil
		})
	}
	g.Go(func() error {
		matches, err := s.vectors.LexicalSearch(gctx, q.KeywordQuery, topK)
		if err != nil {
			// Lexical search is additive; dense results alone still work.
			s.log.Warn("Lexical search failed", "error", err.Error())
			return nil
		}
		lexical = matches
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lists := append(append([][]qdrant.Match{}, denseLists...), lexical)
	fused := FuseRRF(lists, rrfK)
	if len(fused) > topK {
		fused = fused[:topK]
	}
	if len(fused) == 0 {
		return []ContextItem{}, nil
	}

	items, err := s.hydrate(ctx, fused)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []ContextItem{}, nil
	}

	ranked := s.rerank(ctx, q.VectorQuery, items, topN)

	return s.groupByDocument(ctx, ranked)
}

// FuseRRF merges ranked match lists with reciprocal rank fusion and returns
// ids ordered by fused score descending (ties broken by id for stability).
func FuseRRF(lists [][]qdrant.Match, k int) []qdrant.Match {
	if k <= 0 {
		k = rrfK
	}
	scores := map[string]float64{}
	for _, list := range lists {
		for rank, m := range list {
			if m.ID == "" {
				continue
			}
			scores[m.ID] += 1.0 / float64(k+rank+1)
		}
	}
	out := make([]qdrant.Match, 0, len(scores))
	for id, score := range scores {
		out = append(out, qdrant.Match{ID: id, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// hydrate loads the fused ids from Postgres in fused order. Ids the index
// still knows but the database does not are dropped.
func (s *RetrievalService) hydrate(ctx context.Context, fused []qdrant.Match) ([]ContextItem, error) {
	ids := make([]uuid.UUID, 0, len(fused))
	for _, m := range fused {
		id, err := uuid.Parse(m.ID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	rows, err := s.chunks.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate chunks: %w", err)
	}
	byID := make(map[uuid.UUID]*types.Chunk, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	out := make([]ContextItem, 0, len(ids))
	for _, id := range ids {
		row, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, contextItemFromChunk(row))
	}
	return out, nil
}

func contextItemFromChunk(row *types.Chunk) ContextItem {
	heading := strings.TrimSpace(row.HeadingFull)
	display := row.Text
	if heading != "" && heading != DefaultHeading {
		display = "### " + heading + "\n\n" + row.Text
	}
	return ContextItem{
		ChunkID:       row.ID,
		DocID:         row.DocumentID,
		ChunkIndex:    row.ChunkIndex,
		IsIdentity:    row.IsIdentity,
		Text:          display,
		RerankText:    BuildRerankPassage(row.VisualSummary, heading, row.Text),
		VisualSummary: row.VisualSummary,
		HeadingFull:   heading,
		Tables:        decodeJSONStrings(row.Tables),
		ImagesURLs:    decodeJSONStrings(row.ImagesURLs),
		PageNumbers:   decodeJSONInts(row.PageNumbers),
	}
}

// rerank sorts the hydrated items with the cross encoder. On reranker error
// the fused order is kept, truncated to topN.
func (s *RetrievalService) rerank(ctx context.Context, query string, items []ContextItem, topN int) []ContextItem {
	if topN <= 0 || topN > len(items) {
		topN = len(items)
	}

	passages := make([]string, len(items))
	for i, item := range items {
		passages[i] = item.RerankText
	}

	results, err := s.reranker.Rerank(ctx, query, passages, topN)
	if err != nil {
		s.log.Warn("Reranking failed, keeping fused order", "error", err.Error())
		return items[:topN]
	}

	out := make([]ContextItem, 0, len(results))
	for _, r := range results {
		item := items[r.Index]
		item.Score = r.Score
		out = append(out, item)
	}
	return out
}

// groupByDocument orders documents by their best-ranked chunk, emits each
// document's identity card first, then its chunks by ascending chunk_index.
func (s *RetrievalService) groupByDocument(ctx context.Context, ranked []ContextItem) ([]ContextItem, error) {
	if len(ranked) == 0 {
		return []ContextItem{}, nil
	}

	docOrder := []uuid.UUID{}
	grouped := map[uuid.UUID][]ContextItem{}
	for _, item := range ranked {
		if _, seen := grouped[item.DocID]; !seen {
			docOrder = append(docOrder, item.DocID)
		}
		grouped[item.DocID] = append(grouped[item.DocID], item)
	}

	identities, err := s.chunks.GetIdentitiesByDocumentIDs(ctx, nil, docOrder)
	if err != nil {
		return nil, fmt.Errorf("fetch identities: %w", err)
	}
	identityByDoc := map[uuid.UUID]ContextItem{}
	for _, row := range identities {
		identityByDoc[row.DocumentID] = contextItemFromChunk(row)
	}

	out := make([]ContextItem, 0, len(ranked)+len(identityByDoc))
	for _, docID := range docOrder {
		if identity, ok := identityByDoc[docID]; ok {
			out = append(out, identity)
		}
		chunks := grouped[docID]
		sort.SliceStable(chunks, func(i, j int) bool {
			return chunks[i].ChunkIndex < chunks[j].ChunkIndex
		})
		out = append(out, chunks...)
	}
	return out, nil
}

func decodeJSONStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func decodeJSONInts(raw datatypes.JSON) []int {
	if len(raw) == 0 {
		return nil
	}
	var out []int
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
