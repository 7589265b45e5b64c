package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dawask/rag-backend/internal/logger"
	"github.com/dawask/rag-backend/internal/utils"
)

// RewrittenQuery fans the user's question out into search inputs. VectorQuery
// (V1) is the canonical standalone query used for reranking and prompting.
type RewrittenQuery struct {
	VectorQuery  string
	Variants     []string
	KeywordQuery string
}

const rewriterSystemPrompt = `You are an expert in Islamic knowledge engineering and RAG search optimization.
Your mission: transform the user's query into exploratory search vectors without ever presuming the answer.

WRITING AXES:
1. LINGUISTIC: systematically use bilingual terminology (e.g. Prayer/Salat, Oneness/Tawhid).
2. CONTEXTUAL: add academic domain terms (Fiqh, Sira, Aqida, Hadith) to target the right chapters.
3. STRUCTURAL: if the question asks for a list or a "who", use terms describing the category (e.g. "family members", "mentioned companions") WITHOUT listing specific names you already know.

VARIANT GUIDELINES:
- V1 (Fidelity & History): clear reformulation resolving pronouns (e.g. replace "he" with the prior subject based on the history).
- V2 (Context & Domain): steer the search toward the legal, historical or spiritual frame of the topic.
- V3 (Technical variants): focus on technical Arabic terms and their varied phonetic transcriptions.
- KEYWORDS: raw list of proper nouns and technical terms. For each Arabic term, propose 2-3 spelling variants (e.g. 'Aisha, Aicha, Ayesha).

FORBIDDEN:
- Never include example answers (e.g. if asked for companion names, do not cite "Abu Bakr" in your variants).

OUTPUT FORMAT:
V1: [sentence]
V2: [sentence]
V3: [sentence]
KEYWORDS: [Word1, Word2, Word3...]`

type QueryRewriter struct {
	log          *logger.Logger
	openai       OpenAIClient
	historyLimit int
}

func NewQueryRewriter(log *logger.Logger, openai OpenAIClient) *QueryRewriter {
	return &QueryRewriter{
		log:          log.With("service", "QueryRewriter"),
		openai:       openai,
		historyLimit: utils.GetEnvAsInt("CHAT_HISTORY_LIMIT", 6, log),
	}
}

// Rewrite calls the generator for V1/V2/V3/KEYWORDS. Any failure, including
// unparseable output, degrades to the raw question.
func (r *QueryRewriter) Rewrite(ctx context.Context, question string, history []DialogTurn) RewrittenQuery {
	fallback := RewrittenQuery{
		VectorQuery:  question,
		Variants:     []string{question},
		KeywordQuery: question,
	}

	prompt := fmt.Sprintf(`DISCUSSION HISTORY:
%s

STUDENT'S LATEST QUESTION:
%s`, RenderHistory(history, r.historyLimit), question)

	raw, err := r.openai.GenerateText(ctx, GenerateTextRequest{
		System:      rewriterSystemPrompt,
		Text:        prompt,
		Temperature: 0.05,
	})
	if err != nil {
		r.log.Warn("Query rewrite failed, using raw question", "error", err.Error())
		return fallback
	}

	parsed := ParseRewriterOutput(raw, question)
	r.log.Debug("Query rewritten",
		"v1", parsed.VectorQuery,
		"variants", len(parsed.Variants),
		"keywords", parsed.KeywordQuery,
	)
	return parsed
}

// ParseRewriterOutput does line-prefix parsing of the generator output.
// A missing V1 falls back to the raw question.
func ParseRewriterOutput(raw, question string) RewrittenQuery {
	var v1, v2, v3, keywords string
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "V1:"):
			v1 = strings.TrimSpace(strings.TrimPrefix(line, "V1:"))
		case strings.HasPrefix(line, "V2:"):
			v2 = strings.TrimSpace(strings.TrimPrefix(line, "V2:"))
		case strings.HasPrefix(line, "V3:"):
			v3 = strings.TrimSpace(strings.TrimPrefix(line, "V3:"))
		case strings.HasPrefix(line, "KEYWORDS:"):
			keywords = strings.TrimSpace(strings.TrimPrefix(line, "KEYWORDS:"))
		}
	}

	if v1 == "" {
		v1 = question
	}
	variants := []string{v1}
	if v2 != "" {
		variants = append(variants, v2)
	}
	if v3 != "" {
		variants = append(variants, v3)
	}
	if keywords == "" {
		keywords = question
	}
	return RewrittenQuery{
		VectorQuery:  v1,
		Variants:     variants,
		KeywordQuery: keywords,
	}
}
