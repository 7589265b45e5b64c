package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dawask/rag-backend/internal/logger"
	"github.com/dawask/rag-backend/internal/platform/qdrant"
	"github.com/dawask/rag-backend/internal/repos"
	"github.com/dawask/rag-backend/internal/services"
	"github.com/dawask/rag-backend/internal/types"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
}

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/healthcheck", HealthCheck)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d", http.StatusOK, w.Code)
	}
	if w.Body.String() != "ok" {
		t.Fatalf("body: want=%q got=%q", "ok", w.Body.String())
	}
}

func TestRespondErrorEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondError(c, http.StatusBadRequest, "bad_input", errors.New("boom"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: want=%d got=%d", http.StatusBadRequest, w.Code)
	}
	var envelope ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Message != "boom" || envelope.Error.Code != "bad_input" {
		t.Fatalf("envelope: got=%+v", envelope)
	}
}

func TestQueryRequiresQuestion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewQueryHandler(newTestLogger(t), nil, nil, nil, nil, services.NewBenchConfigs(newTestLogger(t)))
	router := gin.New()
	router.GET("/query", h.Query)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/query?config_id=01", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: want=%d got=%d", http.StatusBadRequest, w.Code)
	}
}

func TestQueryRejectsMalformedDocID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewQueryHandler(newTestLogger(t), nil, nil, nil, nil, services.NewBenchConfigs(newTestLogger(t)))
	router := gin.New()
	router.GET("/query", h.Query)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/query?question=hi&doc_id=not-a-uuid", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: want=%d got=%d", http.StatusBadRequest, w.Code)
	}
}

// failingGenerator errors on every text generation, which degrades the
// rewriter to the raw question and the answer to the apology.
type failingGenerator struct{}

func (g *failingGenerator) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return nil, errors.New("embed unavailable")
}

func (g *failingGenerator) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	return nil, errors.New("generation unavailable")
}

func (g *failingGenerator) GenerateJSONWithImages(ctx context.Context, system, user string, imageURLs []string, schemaName string, schema map[string]any) (map[string]any, error) {
	return nil, errors.New("generation unavailable")
}

func (g *failingGenerator) GenerateText(ctx context.Context, req services.GenerateTextRequest) (string, error) {
	return "", errors.New("generation unavailable")
}

type fixedEmbedder struct{ vec []float32 }

func (e *fixedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, nil
}

func (e *fixedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.vec, nil
}

func (e *fixedEmbedder) Dimension() int { return len(e.vec) }

type fixedVectorStore struct{ match qdrant.Match }

func (s *fixedVectorStore) EnsureCollection(ctx context.Context) error { return nil }

func (s *fixedVectorStore) UpsertPoints(ctx context.Context, points []qdrant.Point) error {
	return nil
}

func (s *fixedVectorStore) DenseSearch(ctx context.Context, vector []float32, topK int, docFilter []string) ([]qdrant.Match, error) {
	return []qdrant.Match{s.match}, nil
}

func (s *fixedVectorStore) LexicalSearch(ctx context.Context, query string, topK int) ([]qdrant.Match, error) {
	return []qdrant.Match{s.match}, nil
}

type fixedChunkRepo struct{ row *types.Chunk }

func (r *fixedChunkRepo) CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*types.Chunk) ([]*types.Chunk, error) {
	return chunks, nil
}

func (r *fixedChunkRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Chunk, error) {
	for _, id := range ids {
		if r.row != nil && id == r.row.ID {
			return []*types.Chunk{r.row}, nil
		}
	}
	return []*types.Chunk{}, nil
}

func (r *fixedChunkRepo) GetIdentitiesByDocumentIDs(ctx context.Context, tx *gorm.DB, docIDs []uuid.UUID) ([]*types.Chunk, error) {
	return []*types.Chunk{}, nil
}

func (r *fixedChunkRepo) UpdateAIData(ctx context.Context, tx *gorm.DB, updates []repos.ChunkAIUpdate) error {
	return nil
}

type passthroughReranker struct{}

func (r *passthroughReranker) Rerank(ctx context.Context, query string, passages []string, topN int) ([]services.RerankResult, error) {
	if topN > len(passages) {
		topN = len(passages)
	}
	out := make([]services.RerankResult, 0, topN)
	for i := 0; i < topN; i++ {
		out = append(out, services.RerankResult{Index: i, Score: 1 - float64(i)/100})
	}
	return out, nil
}

func (r *passthroughReranker) MinScore() float64 { return 0 }

type recordingSessions struct{ appends int }

func (s *recordingSessions) History(ctx context.Context, sessionID string) ([]services.DialogTurn, error) {
	return nil, nil
}

func (s *recordingSessions) AppendExchange(ctx context.Context, sessionID, question, answer string) error {
	s.appends++
	return nil
}

func (s *recordingSessions) Clear(ctx context.Context, sessionID string) error { return nil }

// A generator outage must still return HTTP 200 with the apology and the
// retrieved sources, and must leave the session history untouched.
func TestQueryGeneratorOutageReturnsApologyAndSkipsHistory(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := newTestLogger(t)

	chunkID := uuid.New()
	repo := &fixedChunkRepo{row: &types.Chunk{
		ID:         chunkID,
		DocumentID: uuid.New(),
		ChunkIndex: 2,
		Text:       "Zakat is due on wealth held for one lunar year.",
	}}
	gen := &failingGenerator{}
	sessions := &recordingSessions{}

	retrieval := services.NewRetrievalService(log, repo,
		&fixedVectorStore{match: qdrant.Match{ID: chunkID.String(), Score: 0.9}},
		&fixedEmbedder{vec: []float32{0.5, 0.5}},
		&passthroughReranker{})
	h := NewQueryHandler(log,
		services.NewQueryRewriter(log, gen),
		retrieval,
		services.NewAnswerService(log, gen),
		sessions,
		services.NewBenchConfigs(log))

	router := gin.New()
	router.GET("/query", h.Query)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/query?question=zakat+rules&session_id=s1", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusOK, w.Code, w.Body.String())
	}
	var resp QueryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != services.ApologyAnswer {
		t.Fatalf("answer: want apology got=%q", resp.Answer)
	}
	if len(resp.Sources) == 0 {
		t.Fatalf("sources must stay populated on generator failure")
	}
	if resp.Sources[0].ChunkID != chunkID.String() {
		t.Fatalf("source chunk: want=%s got=%s", chunkID, resp.Sources[0].ChunkID)
	}
	if sessions.appends != 0 {
		t.Fatalf("failed generations must not be appended to history: appends=%d", sessions.appends)
	}
}

func TestIngestBulkRejectsEmptyUpload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewIngestHandler(newTestLogger(t), nil)
	router := gin.New()
	router.POST("/ingest-bulk", h.IngestBulk)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ingest-bulk", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: want=%d got=%d", http.StatusBadRequest, w.Code)
	}
}
