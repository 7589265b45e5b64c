package services

import (
	"strings"
)

// Character-proxy factor applied to the token-denominated chunk_size and
// overlap knobs.
const splitCharFactor = 3

var splitSeparators = []string{"\n\n", "\n", "|", ". ", " "}

// SplitEnrichedChunks rechunks over-long chunks with a recursive character
// splitter and reassigns sequential chunk indexes. When a markdown table is
// cut across pieces, the earlier piece is flagged is_table_cut and the
// following pieces is_table_continuation so downstream prompts keep row
// cohesion in mind.
func SplitEnrichedChunks(chunks []EnrichedChunk, chunkSizeTokens, overlapTokens int) []EnrichedChunk {
	if chunkSizeTokens <= 0 {
		// docling_auto mode: the chunker's own budget already applied.
		reindex(chunks)
		return chunks
	}
	size := chunkSizeTokens * splitCharFactor
	overlap := overlapTokens * splitCharFactor

	out := make([]EnrichedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Text) <= size {
			out = append(out, chunk)
			continue
		}

		pieces := splitTextRecursive(chunk.Text, size, overlap, splitSeparators)
		for pi, piece := range pieces {
			sub := chunk
			sub.Text = piece
			sub.ImagesURLs = nil
			sub.Tables = nil
			if pi == 0 {
				sub.ImagesURLs = chunk.ImagesURLs
				sub.Tables = chunk.Tables
			}

			startsTable := strings.HasPrefix(strings.TrimSpace(piece), "|")
			endsTable := strings.HasSuffix(strings.TrimSpace(piece), "|")
			if pi > 0 && startsTable {
				sub.IsTableContinuation = true
			}
			if pi < len(pieces)-1 && endsTable {
				nextStarts := strings.HasPrefix(strings.TrimSpace(pieces[pi+1]), "|")
				if nextStarts {
					sub.IsTableCut = true
				}
			}
			out = append(out, sub)
		}
	}

	reindex(out)
	return out
}

func reindex(chunks []EnrichedChunk) {
	for i := range chunks {
		chunks[i].ChunkIndex = i
	}
}

// splitTextRecursive is a priority-separator splitter: split on the first
// separator that appears, merge runs back up to the size limit with overlap,
// and recurse with the remaining separators on any piece still too large.
func splitTextRecursive(text string, size, overlap int, separators []string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}
	if len(separators) == 0 {
		return hardSplit(text, size, overlap)
	}

	sep := separators[0]
	rest := separators[1:]
	if !strings.Contains(text, sep) {
		return splitTextRecursive(text, size, overlap, rest)
	}

	parts := strings.Split(text, sep)
	merged := mergeParts(parts, sep, size, overlap)

	out := make([]string, 0, len(merged))
	for _, m := range merged {
		if len(m) <= size {
			if strings.TrimSpace(m) != "" {
				out = append(out, strings.TrimSpace(m))
			}
			continue
		}
		out = append(out, splitTextRecursive(m, size, overlap, rest)...)
	}
	return out
}

func mergeParts(parts []string, sep string, size, overlap int) []string {
	out := []string{}
	var cur strings.Builder

	flush := func() {
		s := cur.String()
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	for _, part := range parts {
		addition := part
		if cur.Len() > 0 {
			addition = sep + part
		}
		if cur.Len() > 0 && cur.Len()+len(addition) > size {
			tail := overlapTail(cur.String(), overlap)
			flush()
			if tail != "" {
				cur.WriteString(tail)
				cur.WriteString(sep)
			}
			cur.WriteString(part)
			continue
		}
		cur.WriteString(addition)
	}
	flush()
	return out
}

// overlapTail returns the last up-to-overlap characters of s, cut at a word
// boundary when possible.
func overlapTail(s string, overlap int) string {
	if overlap <= 0 || s == "" {
		return ""
	}
	if len(s) <= overlap {
		return s
	}
	tail := s[len(s)-overlap:]
	if idx := strings.IndexAny(tail, " \n"); idx >= 0 && idx < len(tail)-1 {
		tail = tail[idx+1:]
	}
	return tail
}

func hardSplit(text string, size, overlap int) []string {
	if size <= 0 {
		return []string{text}
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}
	out := []string{}
	for start := 0; start < len(text); start += step {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		out = append(out, text[start:end])
		if end == len(text) {
			break
		}
	}
	return out
}
