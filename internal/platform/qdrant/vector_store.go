package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dawask/rag-backend/internal/logger"
)

const (
	payloadContentKey  = "page_content"
	payloadChunkIDKey  = "chunk_id"
	payloadDocIDKey    = "doc_id"
	maxErrorBodyBytes  = 1024
	minLexicalWordRune = 3
)

// Point is one indexed chunk: the dense vector plus the searchable payload.
type Point struct {
	ID      string
	Vector  []float32
	Content string
	DocID   string
}

type Match struct {
	ID    string
	Score float64
}

type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	UpsertPoints(ctx context.Context, points []Point) error
	DenseSearch(ctx context.Context, vector []float32, topK int, docFilter []string) ([]Match, error)
	LexicalSearch(ctx context.Context, query string, topK int) ([]Match, error)
}

type vectorStore struct {
	log      *logger.Logger
	cfg      Config
	baseURL  string
	distance string
	http     *http.Client
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type qdrantSearchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func NewVectorStore(log *logger.Logger, cfg Config) (VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg, true); err != nil {
		return nil, err
	}

	s := &vectorStore{
		log:     log.With("service", "QdrantVectorStore"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}

	log.Info(
		"Qdrant vector store configured",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"vector_dim", cfg.VectorDim,
		"score_threshold", cfg.ScoreThreshold,
	)
	return s, nil
}

// EnsureCollection creates the collection (cosine distance, configured
// dimension) and the full-text payload index on first use. Existing
// collections are verified for dimension compatibility.
func (s *vectorStore) EnsureCollection(ctx context.Context) error {
	const op = "ensure_collection"

	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &info)
	if err == nil {
		size := info.Config.Params.Vectors.Size
		if size != 0 && size != s.cfg.VectorDim {
			return &OperationError{
				Code:      OperationErrorValidation,
				Operation: op,
				Message: fmt.Sprintf(
					"qdrant collection %q vector size mismatch: expected=%d actual=%d",
					s.cfg.Collection,
					s.cfg.VectorDim,
					size,
				),
			}
		}
		s.distance = strings.TrimSpace(info.Config.Params.Vectors.Distance)
		return nil
	}

	var opErrTyped *OperationError
	if !errors.As(err, &opErrTyped) || opErrTyped.StatusCode != http.StatusNotFound {
		return err
	}

	createReq := map[string]any{
		"vectors": map[string]any{
			"size":     s.cfg.VectorDim,
			"distance": "Cosine",
		},
	}
	if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath(""), createReq, nil); err != nil {
		return err
	}
	s.distance = "Cosine"

	indexReq := map[string]any{
		"field_name": payloadContentKey,
		"field_schema": map[string]any{
			"type":          "text",
			"tokenizer":     "multilingual",
			"lowercase":     true,
			"ascii_folding": true,
		},
	}
	if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/index?wait=true"), indexReq, nil); err != nil {
		return err
	}

	s.log.Info("Qdrant collection created",
		"collection", s.cfg.Collection,
		"vector_dim", s.cfg.VectorDim,
	)
	return nil
}

func (s *vectorStore) UpsertPoints(ctx context.Context, points []Point) error {
	if s == nil {
		return nil
	}
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}

	body := make([]map[string]any, 0, len(points))
	for _, p := range points {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return opErr(op, OperationErrorValidation, "point id is required", nil)
		}
		if len(p.Vector) == 0 {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("point %q has empty vector", id), nil)
		}
		if s.cfg.VectorDim > 0 && len(p.Vector) != s.cfg.VectorDim {
			return opErr(
				op,
				OperationErrorValidation,
				fmt.Sprintf(
					"point %q dimension mismatch: expected=%d got=%d",
					id,
					s.cfg.VectorDim,
					len(p.Vector),
				),
				nil,
			)
		}
		body = append(body, map[string]any{
			"id":     id,
			"vector": p.Vector,
			"payload": map[string]any{
				payloadContentKey: p.Content,
				payloadChunkIDKey: id,
				payloadDocIDKey:   p.DocID,
			},
		})
	}

	req := map[string]any{"points": body}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), req, nil)
}

func (s *vectorStore) DenseSearch(ctx context.Context, vector []float32, topK int, docFilter []string) ([]Match, error) {
	if s == nil {
		return nil, fmt.Errorf("vector store unavailable")
	}
	const op = "dense_search"
	if len(vector) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if s.cfg.VectorDim > 0 && len(vector) != s.cfg.VectorDim {
		return nil, opErr(
			op,
			OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(vector)),
			nil,
		)
	}
	if topK <= 0 {
		topK = 10
	}

	req := map[string]any{
		"vector":          vector,
		"limit":           topK,
		"with_payload":    true,
		"with_vector":     false,
		"score_threshold": s.cfg.ScoreThreshold,
	}
	if len(docFilter) > 0 {
		req["filter"] = map[string]any{
			"must": []any{
				map[string]any{
					"key":   payloadDocIDKey,
					"match": map[string]any{"any": docFilter},
				},
			},
		}
	}

	var rawResults []qdrantSearchResultItem
	if err := s.doJSON(
		ctx,
		op,
		http.MethodPost,
		s.collectionPath("/points/search"),
		req,
		&rawResults,
	); err != nil {
		return nil, err
	}

	out := make([]Match, 0, len(rawResults))
	for _, item := range rawResults {
		id := extractChunkID(item)
		if id == "" {
			continue
		}
		out = append(out, Match{ID: id, Score: s.normalizeScore(item.Score)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

// LexicalSearch matches chunks containing at least one of the query's
// words (length > 2), using the collection's full-text index. Scores are
// rank-derived: the lexical channel only contributes ordering to fusion.
func (s *vectorStore) LexicalSearch(ctx context.Context, query string, topK int) ([]Match, error) {
	if s == nil {
		return nil, fmt.Errorf("vector store unavailable")
	}
	const op = "lexical_search"
	words := lexicalWords(query)
	if len(words) == 0 {
		return []Match{}, nil
	}
	if topK <= 0 {
		topK = 10
	}

	should := make([]any, 0, len(words))
	for _, w := range words {
		should = append(should, map[string]any{
			"key":   payloadContentKey,
			"match": map[string]any{"text": w},
		})
	}
	req := map[string]any{
		"filter":       map[string]any{"should": should},
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
	}

	var result struct {
		Points []qdrantSearchResultItem `json:"points"`
	}
	if err := s.doJSON(
		ctx,
		op,
		http.MethodPost,
		s.collectionPath("/points/scroll"),
		req,
		&result,
	); err != nil {
		return nil, err
	}

	out := make([]Match, 0, len(result.Points))
	for i, item := range result.Points {
		id := extractChunkID(item)
		if id == "" {
			continue
		}
		out = append(out, Match{ID: id, Score: 1.0 / float64(i+1)})
	}
	return out, nil
}

func lexicalWords(query string) []string {
	fields := strings.Fields(query)
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		w := strings.Trim(f, ".,;:!?\"'()[]")
		if len([]rune(w)) < minLexicalWordRune {
			continue
		}
		key := strings.ToLower(w)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, w)
	}
	return out
}

func (s *vectorStore) collectionPath(suffix string) string {
	return "/collections/" + s.cfg.Collection + suffix
}

func (s *vectorStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1024*maxErrorBodyBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    statusErr,
		}
	}

	if out == nil {
		return nil
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}

	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil {
		if strings.TrimSpace(statusObject.Error) != "" {
			return strings.TrimSpace(statusObject.Error)
		}
	}

	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func extractChunkID(item qdrantSearchResultItem) string {
	if payloadID, ok := item.Payload[payloadChunkIDKey].(string); ok {
		id := strings.TrimSpace(payloadID)
		if id != "" {
			return id
		}
	}
	return decodePointID(item.ID)
}

func decodePointID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var idString string
	if err := json.Unmarshal(raw, &idString); err == nil {
		return strings.TrimSpace(idString)
	}
	var idNumber int64
	if err := json.Unmarshal(raw, &idNumber); err == nil {
		return fmt.Sprintf("%d", idNumber)
	}
	return strings.TrimSpace(string(raw))
}

func (s *vectorStore) normalizeScore(score float64) float64 {
	switch strings.ToLower(strings.TrimSpace(s.distance)) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1.0 / (1.0 + score)
	default:
		return score
	}
}
