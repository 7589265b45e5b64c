package parser

import (
	"strings"
	"testing"
)

func TestDetectScannedRequiresSparseTextAndImages(t *testing.T) {
	if !DetectScanned([]int{8, 3, 0}, []int{1, 1, 2}) {
		t.Fatal("expected sparse pages with images to be detected as scanned")
	}
	if DetectScanned([]int{8, 900, 0}, []int{1, 1, 1}) {
		t.Fatal("a text-heavy page should disqualify scan detection")
	}
	if DetectScanned([]int{8, 3, 0}, []int{1, 0, 1}) {
		t.Fatal("a page without images should disqualify scan detection")
	}
	if DetectScanned(nil, nil) {
		t.Fatal("empty document should not be scanned")
	}
}

func TestDetectScannedInspectsOnlyLeadingPages(t *testing.T) {
	// Page 4 onwards is ignored by the heuristic.
	if !DetectScanned([]int{10, 10, 10, 5000}, []int{1, 1, 1, 0}) {
		t.Fatal("pages beyond the third should not affect the result")
	}
}

func TestHeadingLevelNumbered(t *testing.T) {
	level, ok := headingLevel("2.3.1 Boundary conditions")
	if !ok {
		t.Fatal("expected a numbered heading to classify")
	}
	if level != 3 {
		t.Fatalf("expected level 3, got %d", level)
	}
}

func TestHeadingLevelRejectsSentences(t *testing.T) {
	if _, ok := headingLevel("This is a full sentence that ends with a period."); ok {
		t.Fatal("sentence should not classify as a heading")
	}
	if _, ok := headingLevel("a lowercase fragment"); ok {
		t.Fatal("lowercase fragment should not classify as a heading")
	}
	long := strings.Repeat("word ", 30)
	if _, ok := headingLevel(long); ok {
		t.Fatal("overlong text should not classify as a heading")
	}
}

func TestFlattenRendersHeadingsAndBodies(t *testing.T) {
	items := []Item{
		{Kind: ItemHeading, Text: "Intro", Level: 1},
		{Kind: ItemText, Text: "Hello world."},
		{Kind: ItemHeading, Text: "Details", Level: 2},
		{Kind: ItemTable, Text: "| a | b |\n| --- | --- |\n| 1 | 2 |"},
		{Kind: ItemPicture},
	}
	got := Flatten(items)
	want := "# Intro\n\nHello world.\n\n## Details\n\n| a | b |\n| --- | --- |\n| 1 | 2 |"
	if got != want {
		t.Fatalf("unexpected markdown:\n%s", got)
	}
}
