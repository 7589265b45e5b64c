package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dawask/rag-backend/internal/logger"
	"github.com/dawask/rag-backend/internal/utils"
)

// RerankResult pairs a passage index (into the submitted slice) with its
// cross-encoder relevance score.
type RerankResult struct {
	Index int
	Score float64
}

// Reranker scores (query, passage) pairs with a cross encoder and returns
// passages sorted by score descending, filtered by the minimum score and
// truncated to topN. Callers degrade to original order on error.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []string, topN int) ([]RerankResult, error)
	MinScore() float64
}

// BuildRerankPassage assembles the structured passage text submitted to the
// cross encoder. Empty fields are omitted; the dense score never appears.
func BuildRerankPassage(visualSummary, headingFull, rawText string) string {
	parts := []string{}
	if vs := strings.TrimSpace(visualSummary); vs != "" {
		parts = append(parts, "[VISUAL AND TABLE CONTENT]: "+vs)
	}
	if h := strings.TrimSpace(headingFull); h != "" && h != DefaultHeading {
		parts = append(parts, "[TITLE/CONTEXT]: "+h)
	}
	parts = append(parts, "[RAW TEXT]: "+rawText)
	return strings.Join(parts, "\n\n")
}

func NewRerankerFromEnv(log *logger.Logger) Reranker {
	minScore := utils.GetEnvAsFloat("RERANK_MIN_SCORE", 0.01, log)

	url := strings.TrimRight(strings.TrimSpace(os.Getenv("RERANKER_URL")), "/")
	if url == "" {
		if strings.EqualFold(strings.TrimSpace(os.Getenv("ENVIRONMENT")), "production") {
			url = "https://api.cohere.com"
		} else {
			url = "http://localhost:8002"
		}
	}

	return &httpReranker{
		log:        log.With("service", "Reranker"),
		baseURL:    url,
		apiKey:     strings.TrimSpace(os.Getenv("RERANKER_API_KEY")),
		model:      utils.GetEnv("RERANK_MODEL", "rerank-multilingual-v3.0", log),
		minScore:   minScore,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type httpReranker struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	minScore   float64
	httpClient *http.Client
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (r *httpReranker) MinScore() float64 { return r.minScore }

func (r *httpReranker) Rerank(ctx context.Context, query string, passages []string, topN int) ([]RerankResult, error) {
	if len(passages) == 0 {
		return []RerankResult{}, nil
	}
	if topN <= 0 {
		topN = len(passages)
	}

	payload, err := json.Marshal(rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: passages,
		TopN:      len(passages),
	})
	if err != nil {
		return nil, fmt.Errorf("encode rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v2/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reranker call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read reranker response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("reranker http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded rerankResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode reranker response: %w", err)
	}

	out := make([]RerankResult, 0, len(decoded.Results))
	for _, res := range decoded.Results {
		if res.Index < 0 || res.Index >= len(passages) {
			continue
		}
		if res.RelevanceScore < r.minScore {
			continue
		}
		out = append(out, RerankResult{Index: res.Index, Score: res.RelevanceScore})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}
