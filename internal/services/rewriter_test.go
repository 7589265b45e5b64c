package services

import (
	"reflect"
	"testing"
)

func TestParseRewriterOutputFull(t *testing.T) {
	raw := `V1: What is the miqat for pilgrims coming from Medina?
V2: Miqat boundaries in Fiqh of Hajj and Umrah
V3: Mawaqit, miqat, mīqāt spatial boundaries of ihram
KEYWORDS: miqat, mawaqit, ihram, Dhul Hulayfa`

	got := ParseRewriterOutput(raw, "what about the miqat?")
	if got.VectorQuery != "What is the miqat for pilgrims coming from Medina?" {
		t.Fatalf("v1: got=%q", got.VectorQuery)
	}
	if len(got.Variants) != 3 {
		t.Fatalf("variants: want=3 got=%d", len(got.Variants))
	}
	if got.KeywordQuery != "miqat, mawaqit, ihram, Dhul Hulayfa" {
		t.Fatalf("keywords: got=%q", got.KeywordQuery)
	}
}

func TestParseRewriterOutputMissingV1FallsBack(t *testing.T) {
	raw := `V2: some context variant
KEYWORDS: a, b`

	got := ParseRewriterOutput(raw, "original question")
	if got.VectorQuery != "original question" {
		t.Fatalf("v1 fallback: got=%q", got.VectorQuery)
	}
	want := []string{"original question", "some context variant"}
	if !reflect.DeepEqual(got.Variants, want) {
		t.Fatalf("variants: want=%v got=%v", want, got.Variants)
	}
}

func TestParseRewriterOutputGarbageFallsBackEntirely(t *testing.T) {
	got := ParseRewriterOutput("the model rambled with no structure at all", "raw q")
	if got.VectorQuery != "raw q" || got.KeywordQuery != "raw q" {
		t.Fatalf("fallback: got=%+v", got)
	}
	if len(got.Variants) != 1 || got.Variants[0] != "raw q" {
		t.Fatalf("variants fallback: got=%v", got.Variants)
	}
}

func TestParseRewriterOutputIgnoresIndentationAndBlankLines(t *testing.T) {
	raw := "\n   V1: trimmed variant   \n\n  KEYWORDS: k1, k2  \n"
	got := ParseRewriterOutput(raw, "q")
	if got.VectorQuery != "trimmed variant" {
		t.Fatalf("v1: got=%q", got.VectorQuery)
	}
	if got.KeywordQuery != "k1, k2" {
		t.Fatalf("keywords: got=%q", got.KeywordQuery)
	}
}
