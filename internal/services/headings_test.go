package services

import (
	"strings"
	"testing"
)

func TestIsValidHeadingRejections(t *testing.T) {
	toc := map[string]bool{}
	cases := []struct {
		heading string
		valid   bool
	}{
		{"The Five Pillars", true},
		{"", false},
		{`"He who believes" is a quote`, false},
		{"«Citation française»", false},
		{"1. 2. 3.", false},
		{"-- -- --", false},
		{"Page 12", false},
		{"page 3", false},
		{"Offer at 19,99 €", false},
		{"Price: 10 USD", false},
		{"Meeting of 12/05/2023", false},
		{"3.2 Conditions of validity", true},
	}
	for _, tc := range cases {
		if got := IsValidHeading(tc.heading, toc); got != tc.valid {
			t.Fatalf("IsValidHeading(%q): want=%v got=%v", tc.heading, tc.valid, got)
		}
	}
}

func TestIsValidHeadingOverlongUnlessInTOC(t *testing.T) {
	long := strings.Repeat("Chapter on the conditions and pillars ", 3)
	if IsValidHeading(long, map[string]bool{}) {
		t.Fatalf("overlong heading outside TOC must be rejected")
	}
	if !IsValidHeading(long, map[string]bool{strings.TrimSpace(long): true}) {
		t.Fatalf("overlong heading present in TOC must be accepted")
	}
}

func TestCleanChunkHeadingsInheritsFromLastValid(t *testing.T) {
	chunks := []EnrichedChunk{
		{Headings: []string{"Part I", "Prayer"}},
		{Headings: []string{"Part I", "Page 4"}},
		{Headings: []string{"Part I", "Fasting"}},
	}
	CleanChunkHeadings(chunks, nil)

	if chunks[0].HeadingFull != "Part I > Prayer" {
		t.Fatalf("valid heading kept: got=%q", chunks[0].HeadingFull)
	}
	if chunks[1].HeadingFull != "Part I > Prayer" {
		t.Fatalf("rejected heading inherits previous: got=%q", chunks[1].HeadingFull)
	}
	if chunks[2].HeadingFull != "Part I > Fasting" {
		t.Fatalf("later valid heading resets: got=%q", chunks[2].HeadingFull)
	}
}

func TestCleanChunkHeadingsDefaultsWithoutPredecessor(t *testing.T) {
	chunks := []EnrichedChunk{
		{Headings: []string{`"Opening quote"`}},
		{Headings: nil},
	}
	CleanChunkHeadings(chunks, nil)
	if chunks[0].HeadingFull != DefaultHeading {
		t.Fatalf("rejected with no predecessor: got=%q", chunks[0].HeadingFull)
	}
	if chunks[1].HeadingFull != DefaultHeading {
		t.Fatalf("heading-less chunk gets default: got=%q", chunks[1].HeadingFull)
	}
}

func TestCleanChunkHeadingsDoesNotAliasInheritedSlices(t *testing.T) {
	chunks := []EnrichedChunk{
		{Headings: []string{"Valid"}},
		{Headings: []string{"Page 1"}},
	}
	CleanChunkHeadings(chunks, nil)
	chunks[1].Headings[0] = "mutated"
	if chunks[0].Headings[0] != "Valid" {
		t.Fatalf("inherited slice must be a copy")
	}
}
