package services

import (
	"regexp"
	"strings"
)

// DefaultHeading replaces headings rejected by hygiene and labels chunks
// that never had one.
const DefaultHeading = "General section"

const maxHeadingLen = 56

var (
	quotedHeadingRe  = regexp.MustCompile(`^\s*["'«“‘].+`)
	punctOnlyRe      = regexp.MustCompile(`^[\d\s\p{P}\p{S}]+$`)
	pageHeadingRe    = regexp.MustCompile(`(?i)^\s*page\s*\d+\s*$`)
	priceHeadingRe   = regexp.MustCompile(`\d+([.,]\d+)?\s*(€|\$|£|EUR|USD)`)
	dateHeadingRe    = regexp.MustCompile(`\b\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}\b`)
)

// IsValidHeading applies the hygiene rules: quoted citations, pure
// punctuation or digits, page/price/date patterns, and overlong strings not
// present in the document's table of contents are all rejected.
func IsValidHeading(heading string, toc map[string]bool) bool {
	h := strings.TrimSpace(heading)
	if h == "" {
		return false
	}
	if quotedHeadingRe.MatchString(h) {
		return false
	}
	if punctOnlyRe.MatchString(h) {
		return false
	}
	if pageHeadingRe.MatchString(h) || priceHeadingRe.MatchString(h) || dateHeadingRe.MatchString(h) {
		return false
	}
	if len([]rune(h)) > maxHeadingLen && !toc[h] {
		return false
	}
	return true
}

// CleanChunkHeadings rejects bad leaf headings in place. A rejected chunk
// inherits the nearest preceding chunk's valid heading path; with no valid
// predecessor it falls back to the default label.
func CleanChunkHeadings(chunks []EnrichedChunk, tocHeadings []string) {
	toc := make(map[string]bool, len(tocHeadings))
	for _, h := range tocHeadings {
		if t := strings.TrimSpace(h); t != "" {
			toc[t] = true
		}
	}

	var lastValid []string
	for i := range chunks {
		if len(chunks[i].Headings) == 0 {
			// Never had a heading; nothing to reject or inherit.
			chunks[i].HeadingFull = DefaultHeading
			continue
		}
		leaf := chunks[i].Headings[len(chunks[i].Headings)-1]

		if IsValidHeading(leaf, toc) {
			lastValid = chunks[i].Headings
			chunks[i].HeadingFull = joinHeadings(chunks[i].Headings)
			continue
		}

		if len(lastValid) > 0 {
			inherited := make([]string, len(lastValid))
			copy(inherited, lastValid)
			chunks[i].Headings = inherited
			chunks[i].HeadingFull = joinHeadings(inherited)
		} else {
			chunks[i].Headings = nil
			chunks[i].HeadingFull = DefaultHeading
		}
	}
}
