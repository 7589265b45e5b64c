package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dawask/rag-backend/internal/logger"
	"github.com/dawask/rag-backend/internal/utils"
)

// ApologyAnswer is returned whenever answer generation fails; history is
// never updated with it.
const ApologyAnswer = "Sorry, I am running into a technical difficulty generating the answer."

const answerTemperature = 0.25

func promptLight() string {
	return `You are an expert Teacher. Answer the student directly.
- Your knowledge is strictly limited to the provided context.
- If the topic is absent, answer: "I cannot help with this topic."
- No citation verbs ("the document says").
- Structure with lists or clear paragraphs, no introduction.`
}

func promptVerbose() string {
	return `You are an expert Teacher doing document analysis.
Your role is to identify, organize and faithfully restate the information in the documents, without excessive simplification, and to answer the student directly.

RULES:
1. RELY ONLY on the provided documents. NEVER use external knowledge.
2. NUANCES: respect precise distinctions (e.g. "the state ends" vs "the prohibitions end").
3. PARTIAL ANSWERS: if you only have 3 of 5 requested steps, list the 3 and say something like: "This is all the information available to me."
4. LINGUISTIC TOLERANCE: accept variants (Wudu/Woudou) but use the text's exact terms in your answer.
5. HONESTY: if the information is absent, say something like: "I found no information in the provided documents."
6. STRUCTURE: help the user with concrete examples taken from the documents.
At the end of your answer, suggest a follow-up based on what you found in the received knowledge.`
}

func promptReasoning() string {
	return `You are a rigorous analyst. Before answering, you must decompose your reasoning.

MANDATORY STRUCTURE:
1. <thinking>:
   - List the entities (proper nouns, places) found in the chunks.
   - Identify dates or the chronology.
   - Note any contradictions between sources.
</thinking>

2. FINAL ANSWER:
   - Apply the absolute-fidelity rules (NO EXTERNAL KNOWLEDGE).
   - Answer in a structured, pedagogical way.
   - If information is missing to conclude, say so explicitly.
   - At the end of your answer, suggest a follow-up based on what you found in the received knowledge.`
}

func systemPromptForStyle(style string) string {
	switch style {
	case "light":
		return promptLight()
	case "reasoning":
		return promptReasoning()
	default:
		return promptVerbose()
	}
}

type AnswerService struct {
	log          *logger.Logger
	openai       OpenAIClient
	historyLimit int
	maxTokens    int
}

func NewAnswerService(log *logger.Logger, openai OpenAIClient) *AnswerService {
	return &AnswerService{
		log:          log.With("service", "AnswerService"),
		openai:       openai,
		historyLimit: utils.GetEnvAsInt("CHAT_HISTORY_LIMIT", 6, log),
		maxTokens:    utils.GetEnvAsInt("ANSWER_MAX_OUTPUT_TOKENS", 3000, log),
	}
}

// Generate builds the multimodal teaching prompt from the grouped context
// and calls the generator. The boolean reports success; on failure the
// apology string comes back and the caller must not append to history.
func (s *AnswerService) Generate(ctx context.Context, question string, contextItems []ContextItem, history []DialogTurn, style string) (string, bool) {
	contextText, imageURLs := FormatContext(contextItems)

	prompt := fmt.Sprintf(`EXCHANGE HISTORY:
%s

YOUR CURRENT KNOWLEDGE:
%s

STUDENT'S QUESTION:
%s

TEACHER'S ANSWER:
`, RenderHistory(history, s.historyLimit), contextText, question)

	answer, err := s.openai.GenerateText(ctx, GenerateTextRequest{
		System:          systemPromptForStyle(style),
		Text:            prompt,
		ImageURLs:       imageURLs,
		Temperature:     answerTemperature,
		MaxOutputTokens: s.maxTokens,
	})
	if err != nil || strings.TrimSpace(answer) == "" {
		if err != nil {
			s.log.Error("Answer generation failed", "error", err.Error())
		}
		return ApologyAnswer, false
	}
	return answer, true
}

// FormatContext renders the grouped context into knowledge blocks and
// collects the deduplicated image URLs for the multimodal payload.
func FormatContext(items []ContextItem) (string, []string) {
	parts := []string{}
	imageURLs := []string{}
	seenImages := map[string]bool{}

	for _, item := range items {
		if item.IsIdentity {
			parts = append(parts, fmt.Sprintf("\n===== SOURCE: %s =====", identityLabel(item)))
			continue
		}

		pageStr := "Page: N/A"
		if len(item.PageNumbers) > 0 {
			pages := make([]string, len(item.PageNumbers))
			for i, p := range item.PageNumbers {
				pages[i] = strconv.Itoa(p)
			}
			pageStr = "Page(s): " + strings.Join(pages, ", ")
		}

		block := fmt.Sprintf("\n[KNOWLEDGE #%d | %s]\n%s\n", item.ChunkIndex, pageStr, item.RerankText)
		for _, table := range item.Tables {
			if strings.Contains(item.RerankText, table) {
				continue
			}
			block += fmt.Sprintf("\n[TABLE DATA]:\n%s\n", table)
		}
		parts = append(parts, block)

		for _, url := range item.ImagesURLs {
			if url == "" || seenImages[url] {
				continue
			}
			seenImages[url] = true
			imageURLs = append(imageURLs, url)
		}
	}

	return strings.Join(parts, "\n"), imageURLs
}

func identityLabel(item ContextItem) string {
	// The card's first content line doubles as the source label.
	for _, line := range strings.Split(item.Text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "━") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "TITLE:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "TITLE:"))
		}
	}
	return "Untitled document"
}
