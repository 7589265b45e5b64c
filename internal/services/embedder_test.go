package services

import (
	"strings"
	"testing"
)

func TestBuildEmbeddingTextPrependsHeading(t *testing.T) {
	got := BuildEmbeddingText("Part I > Prayer", "body text", "")
	if got != "# Part I > Prayer\n\nbody text" {
		t.Fatalf("got=%q", got)
	}
}

func TestBuildEmbeddingTextSkipsDefaultHeading(t *testing.T) {
	if got := BuildEmbeddingText(DefaultHeading, "body", ""); got != "body" {
		t.Fatalf("default heading must not prefix: got=%q", got)
	}
	if got := BuildEmbeddingText("", "body", ""); got != "body" {
		t.Fatalf("empty heading must not prefix: got=%q", got)
	}
}

func TestBuildEmbeddingTextAppendsVisualSummary(t *testing.T) {
	got := BuildEmbeddingText("", "body", "Fact one\nFact two")
	if got != "body\n\nFact one\nFact two" {
		t.Fatalf("got=%q", got)
	}
}

func TestBuildRerankPassageOrderAndOmissions(t *testing.T) {
	got := BuildRerankPassage("tables say X", "Part I", "raw body")
	want := "[VISUAL AND TABLE CONTENT]: tables say X\n\n[TITLE/CONTEXT]: Part I\n\n[RAW TEXT]: raw body"
	if got != want {
		t.Fatalf("want=%q got=%q", want, got)
	}

	got = BuildRerankPassage("", DefaultHeading, "raw body")
	if got != "[RAW TEXT]: raw body" {
		t.Fatalf("empty fields must be omitted: got=%q", got)
	}
}

func TestRenderHistoryLimitsAndLabels(t *testing.T) {
	history := []DialogTurn{
		{Role: RoleStudent, Content: "q1"},
		{Role: RoleTeacher, Content: "a1"},
		{Role: RoleStudent, Content: "q2"},
		{Role: RoleTeacher, Content: "a2"},
	}
	got := RenderHistory(history, 2)
	if strings.Contains(got, "q1") || strings.Contains(got, "a1") {
		t.Fatalf("limit must drop the oldest turns: %q", got)
	}
	if !strings.Contains(got, "Student: q2") || !strings.Contains(got, "Teacher: a2") {
		t.Fatalf("labels missing: %q", got)
	}
}

func TestRenderHistoryEmpty(t *testing.T) {
	if got := RenderHistory(nil, 6); got != "" {
		t.Fatalf("empty history renders empty: got=%q", got)
	}
}
