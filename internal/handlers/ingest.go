package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dawask/rag-backend/internal/logger"
	"github.com/dawask/rag-backend/internal/services"
)

type IngestHandler struct {
	log       *logger.Logger
	ingestion *services.IngestionService
}

func NewIngestHandler(log *logger.Logger, ingestion *services.IngestionService) *IngestHandler {
	return &IngestHandler{
		log:       log.With("handler", "IngestHandler"),
		ingestion: ingestion,
	}
}

// POST /ingest-bulk
// Multipart upload: "files" (repeated) plus "config_id". Files are processed
// sequentially; per-file failures show up in the per-file results.
func (h *IngestHandler) IngestBulk(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_multipart", err)
		return
	}

	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		RespondError(c, http.StatusBadRequest, "no_files", fmt.Errorf("no files provided"))
		return
	}
	configID := c.PostForm("config_id")

	files := make([]services.IngestFile, 0, len(fileHeaders))
	for _, header := range fileHeaders {
		f, err := header.Open()
		if err != nil {
			RespondError(c, http.StatusBadRequest, "unreadable_file", fmt.Errorf("open %q: %w", header.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			RespondError(c, http.StatusBadRequest, "unreadable_file", fmt.Errorf("read %q: %w", header.Filename, err))
			return
		}
		files = append(files, services.IngestFile{Filename: header.Filename, Data: data})
	}

	result := h.ingestion.IngestBulk(c.Request.Context(), files, configID)
	RespondOK(c, result)
}
