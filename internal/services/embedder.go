package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dawask/rag-backend/internal/logger"
	"github.com/dawask/rag-backend/internal/utils"
)

// Embedder produces dense vectors of a fixed dimension. Development runs
// against a local sidecar model server; production goes through the hosted
// OpenAI embeddings API.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// BuildEmbeddingText assembles the canonical per-chunk embedding input:
// the heading as a markdown title, the body, and any visual summary.
func BuildEmbeddingText(headingFull, text, visualSummary string) string {
	var b strings.Builder
	heading := strings.TrimSpace(headingFull)
	if heading != "" && heading != DefaultHeading {
		b.WriteString("# ")
		b.WriteString(heading)
		b.WriteString("\n\n")
	}
	b.WriteString(text)
	if vs := strings.TrimSpace(visualSummary); vs != "" {
		b.WriteString("\n\n")
		b.WriteString(vs)
	}
	return b.String()
}

func NewEmbedderFromEnv(log *logger.Logger, openai OpenAIClient) (Embedder, error) {
	dim := utils.GetEnvAsInt("QDRANT_VECTOR_DIM", 1024, log)
	queryPrefix := utils.GetEnv("EMBED_QUERY_PREFIX", "", log)

	if strings.EqualFold(strings.TrimSpace(os.Getenv("ENVIRONMENT")), "production") {
		if openai == nil {
			return nil, fmt.Errorf("openai client required for production embedder")
		}
		return &openAIEmbedder{
			log:         log.With("service", "Embedder", "backend", "openai"),
			client:      openai,
			dim:         dim,
			queryPrefix: queryPrefix,
		}, nil
	}

	url := strings.TrimRight(strings.TrimSpace(os.Getenv("EMBEDDER_URL")), "/")
	if url == "" {
		url = "http://localhost:8001"
	}
	return &sidecarEmbedder{
		log:         log.With("service", "Embedder", "backend", "sidecar"),
		baseURL:     url,
		dim:         dim,
		queryPrefix: queryPrefix,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// ---- hosted backend ----

type openAIEmbedder struct {
	log         *logger.Logger
	client      OpenAIClient
	dim         int
	queryPrefix string
}

func (e *openAIEmbedder) Dimension() int { return e.dim }

func (e *openAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return e.client.Embed(ctx, texts)
}

func (e *openAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.queryPrefix != "" {
		text = e.queryPrefix + text
	}
	vecs, err := e.client.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}
	return vecs[0], nil
}

// ---- sidecar backend ----

type sidecarEmbedder struct {
	log         *logger.Logger
	baseURL     string
	dim         int
	queryPrefix string
	httpClient  *http.Client
}

type sidecarEmbedRequest struct {
	Texts []string `json:"texts"`
}

type sidecarEmbedResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

func (e *sidecarEmbedder) Dimension() int { return e.dim }

func (e *sidecarEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return e.embed(ctx, texts)
}

func (e *sidecarEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.queryPrefix != "" {
		text = e.queryPrefix + text
	}
	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}
	return vecs[0], nil
}

func (e *sidecarEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(sidecarEmbedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder sidecar call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedder response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedder sidecar http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded sidecarEmbedResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode embedder response: %w", err)
	}
	if len(decoded.Vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(decoded.Vectors), len(texts))
	}
	return decoded.Vectors, nil
}
