package services

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type capturingGenerator struct {
	lastText GenerateTextRequest
	answer   string
	textErr  error
}

func (c *capturingGenerator) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (c *capturingGenerator) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	return nil, errors.New("not implemented")
}

func (c *capturingGenerator) GenerateJSONWithImages(ctx context.Context, system, user string, imageURLs []string, schemaName string, schema map[string]any) (map[string]any, error) {
	return nil, errors.New("not implemented")
}

func (c *capturingGenerator) GenerateText(ctx context.Context, req GenerateTextRequest) (string, error) {
	c.lastText = req
	return c.answer, c.textErr
}

func TestGenerateUsesConfiguredTokenBudget(t *testing.T) {
	t.Setenv("ANSWER_MAX_OUTPUT_TOKENS", "512")
	gen := &capturingGenerator{answer: "The pillars are five."}
	s := NewAnswerService(newTestLogger(t), gen)

	answer, ok := s.Generate(context.Background(), "How many pillars?", nil, nil, "light")
	if !ok || answer != "The pillars are five." {
		t.Fatalf("generate: ok=%v answer=%q", ok, answer)
	}
	if gen.lastText.MaxOutputTokens != 512 {
		t.Fatalf("token budget: want=512 got=%d", gen.lastText.MaxOutputTokens)
	}
}

func TestGenerateFailureReturnsApology(t *testing.T) {
	gen := &capturingGenerator{textErr: errors.New("model overloaded")}
	s := NewAnswerService(newTestLogger(t), gen)

	answer, ok := s.Generate(context.Background(), "q", nil, nil, "")
	if ok {
		t.Fatalf("failed generation must report ok=false")
	}
	if answer != ApologyAnswer {
		t.Fatalf("answer: want apology got=%q", answer)
	}
}

func TestFormatContextKnowledgeBlocks(t *testing.T) {
	items := []ContextItem{
		{
			IsIdentity: true,
			Text:       identityDivider + "\nDOCUMENT IDENTITY CARD\n" + identityDivider + "\nTITLE: The Sealed Nectar\nTYPE: biography",
		},
		{
			ChunkIndex:  4,
			RerankText:  "[RAW TEXT]: The migration began at night.",
			PageNumbers: []int{12, 13},
		},
	}
	text, images := FormatContext(items)

	if !strings.Contains(text, "===== SOURCE: The Sealed Nectar =====") {
		t.Fatalf("identity source banner missing: %q", text)
	}
	if !strings.Contains(text, "[KNOWLEDGE #4 | Page(s): 12, 13]") {
		t.Fatalf("knowledge header missing: %q", text)
	}
	if len(images) != 0 {
		t.Fatalf("no images expected: %v", images)
	}
}

func TestFormatContextTableBlocksOnlyWhenMissingFromText(t *testing.T) {
	already := "| inline | table |"
	items := []ContextItem{
		{
			ChunkIndex: 1,
			RerankText: "[RAW TEXT]: prose with " + already,
			Tables:     []string{already, "| other | table |"},
		},
	}
	text, _ := FormatContext(items)
	if strings.Count(text, already) != 1 {
		t.Fatalf("table already in text must not repeat: %q", text)
	}
	if !strings.Contains(text, "[TABLE DATA]:\n| other | table |") {
		t.Fatalf("missing table must be appended: %q", text)
	}
}

func TestFormatContextDedupesImages(t *testing.T) {
	items := []ContextItem{
		{ChunkIndex: 1, RerankText: "a", ImagesURLs: []string{"https://cdn/x.jpg", ""}},
		{ChunkIndex: 2, RerankText: "b", ImagesURLs: []string{"https://cdn/x.jpg", "https://cdn/y.jpg"}},
	}
	_, images := FormatContext(items)
	want := []string{"https://cdn/x.jpg", "https://cdn/y.jpg"}
	if len(images) != len(want) {
		t.Fatalf("images: want=%v got=%v", want, images)
	}
	for i := range want {
		if images[i] != want[i] {
			t.Fatalf("images[%d]: want=%q got=%q", i, want[i], images[i])
		}
	}
}

func TestFormatContextPageFallback(t *testing.T) {
	text, _ := FormatContext([]ContextItem{{ChunkIndex: 0, RerankText: "x"}})
	if !strings.Contains(text, "Page: N/A") {
		t.Fatalf("page fallback missing: %q", text)
	}
}

func TestIdentityLabelFallsBackWhenNoTitleLine(t *testing.T) {
	got := identityLabel(ContextItem{Text: identityDivider + "\nno structured card here"})
	if got != "Untitled document" {
		t.Fatalf("got=%q", got)
	}
}

func TestSystemPromptForStyle(t *testing.T) {
	if systemPromptForStyle("light") != promptLight() {
		t.Fatalf("light style mismatch")
	}
	if systemPromptForStyle("reasoning") != promptReasoning() {
		t.Fatalf("reasoning style mismatch")
	}
	if systemPromptForStyle("") != promptVerbose() {
		t.Fatalf("default must be verbose")
	}
	if systemPromptForStyle("unknown") != promptVerbose() {
		t.Fatalf("unknown style must be verbose")
	}
}
