package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dawask/rag-backend/internal/logger"
)

const (
	identityMaxSampleChars = 10000
	identitySampleCount    = 15
	identityTOCMaxEntries  = 60
	identityDivider        = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"
)

var tocKeywords = []string{"table of contents", "contents", "summary", "sommaire"}

type IdentityService struct {
	log    *logger.Logger
	openai OpenAIClient
}

func NewIdentityService(log *logger.Logger, openai OpenAIClient) *IdentityService {
	return &IdentityService{
		log:    log.With("service", "IdentityService"),
		openai: openai,
	}
}

// CreateIdentity produces the per-document identity card from the flattened
// markdown. Generator failure falls back to a deterministic card, so the
// returned text is always usable.
func (s *IdentityService) CreateIdentity(ctx context.Context, title, markdown string) string {
	toc := ExtractTableOfContents(markdown)
	sampled := SampleDocument(markdown, identityMaxSampleChars)
	prompt := buildIdentityPrompt(title, toc, sampled)

	text, err := s.openai.GenerateText(ctx, GenerateTextRequest{
		Text:            prompt,
		Temperature:     0.02,
		MaxOutputTokens: 600,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			s.log.Warn("Identity generation failed, using fallback card", "title", title, "error", err.Error())
		}
		return FallbackIdentityCard(title, toc)
	}
	return strings.TrimSpace(text)
}

// ExtractTableOfContents pulls a TOC block from the markdown: an explicit
// contents heading takes the next 25 lines; otherwise the collected headings
// serve as the structure.
func ExtractTableOfContents(markdown string) string {
	lines := strings.Split(markdown, "\n")
	headings := []string{}

	for i, line := range lines {
		if i >= 100 {
			break
		}
		stripped := strings.TrimSpace(line)
		if !strings.HasPrefix(stripped, "#") {
			continue
		}
		heading := strings.TrimSpace(strings.TrimLeft(stripped, "#"))
		if heading == "" || len(heading) >= 100 {
			continue
		}
		lower := strings.ToLower(heading)
		for _, kw := range tocKeywords {
			if strings.Contains(lower, kw) {
				end := i + 25
				if end > len(lines) {
					end = len(lines)
				}
				block := []string{}
				for _, l := range lines[i:end] {
					if t := strings.TrimSpace(l); t != "" {
						block = append(block, t)
					}
				}
				return strings.Join(block, "\n")
			}
		}
		headings = append(headings, heading)
	}

	if len(headings) == 0 {
		// Last resort: scan the whole document for headings.
		for _, line := range lines {
			stripped := strings.TrimSpace(line)
			if strings.HasPrefix(stripped, "# ") {
				heading := strings.TrimSpace(strings.TrimPrefix(stripped, "# "))
				if heading != "" && len(heading) < 100 {
					headings = append(headings, heading)
				}
			}
			if len(headings) >= identityTOCMaxEntries {
				break
			}
		}
	}
	if len(headings) > identityTOCMaxEntries {
		headings = headings[:identityTOCMaxEntries]
	}
	if len(headings) == 0 {
		return "No table of contents detected"
	}
	return strings.Join(headings, "\n")
}

// TOCHeadingSet lists the headings of the document for hygiene lookups.
func TOCHeadingSet(markdown string) []string {
	out := []string{}
	for _, line := range strings.Split(markdown, "\n") {
		stripped := strings.TrimSpace(line)
		if !strings.HasPrefix(stripped, "#") {
			continue
		}
		heading := strings.TrimSpace(strings.TrimLeft(stripped, "#"))
		if heading != "" && len(heading) < 100 {
			out = append(out, heading)
		}
	}
	return out
}

// SampleDocument keeps short documents whole; long ones are sampled as 15
// leading, 15 middle and 15 trailing paragraphs.
func SampleDocument(markdown string, maxChars int) string {
	if len(markdown) <= maxChars {
		return markdown
	}

	paragraphs := strings.Split(markdown, "\n\n")
	total := len(paragraphs)
	if total <= identitySampleCount*3 {
		if len(markdown) > maxChars {
			return markdown[:maxChars]
		}
		return markdown
	}

	start := paragraphs[:identitySampleCount]
	mid := total / 2
	midLo := mid - identitySampleCount/2
	if midLo < 0 {
		midLo = 0
	}
	midHi := midLo + identitySampleCount
	if midHi > total {
		midHi = total
	}
	middle := paragraphs[midLo:midHi]
	end := paragraphs[total-identitySampleCount:]

	sampled := "--- DOCUMENT START ---\n" + strings.Join(start, "\n\n") +
		"\n\n... [MIDDLE CONTENT] ...\n\n" + strings.Join(middle, "\n\n") +
		"\n\n... [FINAL CONTENT] ...\n\n" + strings.Join(end, "\n\n") +
		"\n--- DOCUMENT END ---"

	if len(sampled) > maxChars {
		sampled = sampled[:maxChars]
	}
	return sampled
}

func buildIdentityPrompt(title, toc, sampledText string) string {
	if strings.TrimSpace(title) == "" {
		title = "Not specified"
	}
	return fmt.Sprintf(`You are an assistant specialized in creating ultra-condensed IDENTITY CARDS for religious and/or educational documents.

DOCUMENT UNDER ANALYSIS:
Title: %s

TABLE OF CONTENTS:
%s

DOCUMENT EXCERPTS:
%s

%s
TASK: Create an ultra-condensed IDENTITY CARD (MAX 400 words).
YOU MUST USE LINE BREAKS BETWEEN EVERY ELEMENT.
%s

STRICT FORMAT TO FOLLOW:

%s
DOCUMENT IDENTITY CARD
%s

TITLE: [exact title]
TYPE: [biography / course / essay / etc.]
SUBJECT: [2-3 sentence summary of what the document covers]

DOCUMENT STRUCTURE (TABLE OF CONTENTS):
(Each chapter MUST be on its own line with a dash)
- 1. [Chapter name] (p.[number])
- 2. [Chapter name] (p.[number])
...

KEY THEMES: [3-5 comma-separated keywords]

CONTEXT: [era, place, setting if found in the sampled pages - 1-2 lines max]

%s

LAYOUT RULES:
1. NEVER compact the table of contents into dense paragraphs.
2. ONE CHAPTER = ONE LINE. This is crucial for semantic distinction.
3. Never mix person or section names on the same line.
4. Page numbers are ESSENTIAL.
5. Ultra-scannable format for an LLM and a reranker.

START DIRECTLY WITH the divider line (no preamble).`,
		title, toc, sampledText,
		identityDivider, identityDivider,
		identityDivider, identityDivider,
		identityDivider,
	)
}

// FallbackIdentityCard is the deterministic card used when the generator is
// unavailable. Built from the title and the extracted TOC only.
func FallbackIdentityCard(title, toc string) string {
	if strings.TrimSpace(title) == "" {
		title = "Title not detected"
	}
	formattedTOC := strings.ReplaceAll(toc, ". ", ".\n- ")

	return strings.TrimSpace(fmt.Sprintf(`%s
DOCUMENT IDENTITY CARD
%s

TITLE: %s
TYPE: Religious / educational document
SUBJECT: Content pending analysis

DOCUMENT STRUCTURE:
- %s

KEY THEMES: To be determined
CONTEXT: Islam / Academic

%s`, identityDivider, identityDivider, title, formattedTOC, identityDivider))
}
