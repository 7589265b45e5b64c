package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dawask/rag-backend/internal/logger"
	"github.com/dawask/rag-backend/internal/services"
)

type QueryHandler struct {
	log       *logger.Logger
	rewriter  *services.QueryRewriter
	retrieval *services.RetrievalService
	answer    *services.AnswerService
	sessions  services.SessionStore
	bench     *services.BenchConfigs
}

func NewQueryHandler(
	log *logger.Logger,
	rewriter *services.QueryRewriter,
	retrieval *services.RetrievalService,
	answer *services.AnswerService,
	sessions services.SessionStore,
	bench *services.BenchConfigs,
) *QueryHandler {
	return &QueryHandler{
		log:       log.With("handler", "QueryHandler"),
		rewriter:  rewriter,
		retrieval: retrieval,
		answer:    answer,
		sessions:  sessions,
		bench:     bench,
	}
}

// SourceItem is the serialized view of one final-context element.
type SourceItem struct {
	ChunkID     string   `json:"chunk_id"`
	DocID       string   `json:"doc_id"`
	ChunkIndex  int      `json:"chunk_index"`
	IsIdentity  bool     `json:"is_identity"`
	Text        string   `json:"text"`
	HeadingFull string   `json:"heading_full,omitempty"`
	PageNumbers []int    `json:"page_numbers,omitempty"`
	Tables      []string `json:"tables,omitempty"`
	ImagesURLs  []string `json:"images_urls,omitempty"`
	Score       float64  `json:"score"`
}

type QueryResponse struct {
	Answer          string       `json:"answer"`
	StandaloneQuery string       `json:"standalone_query"`
	ConfigApplied   string       `json:"config_applied"`
	ChunksCount     int          `json:"chunks_count"`
	Sources         []SourceItem `json:"sources"`
}

// GET /query?question=…&session_id=…&config_id=…&doc_id=…
// Runs the full retrieval-then-answer path. The request only fails outright
// when retrieval itself cannot reach the database; generator trouble degrades
// to the apology answer with sources still populated.
func (h *QueryHandler) Query(c *gin.Context) {
	question := strings.TrimSpace(c.Query("question"))
	if question == "" {
		RespondError(c, http.StatusBadRequest, "missing_question", fmt.Errorf("question is required"))
		return
	}
	sessionID := c.Query("session_id")
	configID := c.Query("config_id")
	cfg := h.bench.Query(configID)

	var docID *uuid.UUID
	if raw := strings.TrimSpace(c.Query("doc_id")); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_doc_id", err)
			return
		}
		docID = &parsed
	}

	ctx := c.Request.Context()

	history, err := h.sessions.History(ctx, sessionID)
	if err != nil {
		h.log.Warn("History unavailable, continuing without", "session_id", sessionID, "error", err.Error())
		history = nil
	}

	rewritten := h.rewriter.Rewrite(ctx, question, history)

	items, err := h.retrieval.Retrieve(ctx, rewritten, docID, cfg.TopK, cfg.TopN)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "retrieval_failed", err)
		return
	}

	answer, ok := h.answer.Generate(ctx, question, items, history, cfg.PromptStyle)
	if ok {
		if err := h.sessions.AppendExchange(ctx, sessionID, question, answer); err != nil {
			h.log.Warn("History append failed", "session_id", sessionID, "error", err.Error())
		}
	}

	sources := make([]SourceItem, 0, len(items))
	chunksCount := 0
	for _, item := range items {
		if !item.IsIdentity {
			chunksCount++
		}
		sources = append(sources, SourceItem{
			ChunkID:     item.ChunkID.String(),
			DocID:       item.DocID.String(),
			ChunkIndex:  item.ChunkIndex,
			IsIdentity:  item.IsIdentity,
			Text:        item.Text,
			HeadingFull: item.HeadingFull,
			PageNumbers: item.PageNumbers,
			Tables:      item.Tables,
			ImagesURLs:  item.ImagesURLs,
			Score:       item.Score,
		})
	}

	RespondOK(c, QueryResponse{
		Answer:          answer,
		StandaloneQuery: rewritten.VectorQuery,
		ConfigApplied:   configID,
		ChunksCount:     chunksCount,
		Sources:         sources,
	})
}

// POST /clear-history
// Body: {"session_id": "..."}. Resets that session's dialog memory.
func (h *QueryHandler) ClearHistory(c *gin.Context) {
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if err := h.sessions.Clear(c.Request.Context(), body.SessionID); err != nil {
		RespondError(c, http.StatusInternalServerError, "clear_failed", err)
		return
	}
	RespondOK(c, gin.H{"status": "cleared"})
}
