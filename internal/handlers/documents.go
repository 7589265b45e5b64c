package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dawask/rag-backend/internal/logger"
	"github.com/dawask/rag-backend/internal/repos"
)

type DocumentHandler struct {
	log  *logger.Logger
	docs repos.DocumentRepo
}

func NewDocumentHandler(log *logger.Logger, docs repos.DocumentRepo) *DocumentHandler {
	return &DocumentHandler{
		log:  log.With("handler", "DocumentHandler"),
		docs: docs,
	}
}

type DocumentItem struct {
	DocID     string `json:"doc_id"`
	Filename  string `json:"filename"`
	CreatedAt string `json:"created_at"`
}

// GET /documents
// Lists ingested documents, newest first.
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	docs, err := h.docs.List(c.Request.Context(), nil)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	items := make([]DocumentItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, DocumentItem{
			DocID:     doc.ID.String(),
			Filename:  doc.Filename,
			CreatedAt: doc.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	RespondOK(c, gin.H{"documents": items})
}
