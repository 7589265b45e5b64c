package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dawask/rag-backend/internal/logger"
	"github.com/dawask/rag-backend/internal/parser"
	"github.com/dawask/rag-backend/internal/platform/gcp"
)

// EnrichedChunk is a chunk after structural enrichment: canonical text,
// heading metadata, page set, table renderings and uploaded image URLs.
type EnrichedChunk struct {
	ChunkIndex          int
	Text                string
	Headings            []string
	HeadingFull         string
	PageNumbers         []int
	Tables              []string
	ImagesURLs          []string
	IsTableContinuation bool
	IsTableCut          bool
}

const (
	imageCaptureMargin = 100.0
	minImageEdgePx     = 200
	tableOverlapRatio  = 0.05
)

type Processor struct {
	log    *logger.Logger
	bucket gcp.BucketService
}

func NewProcessor(log *logger.Logger, bucket gcp.BucketService) *Processor {
	return &Processor{
		log:    log.With("service", "Processor"),
		bucket: bucket,
	}
}

// EnrichChunks extracts tables, heading metadata and relevant page images for
// each provisional chunk. Every surviving picture is uploaded at most once per
// ingest (dedup by page+bbox signature) and its URL attached to the first
// chunk that captures it.
func (p *Processor) EnrichChunks(ctx context.Context, doc *parser.ParsedDocument, chunks []ProvisionalChunk) []EnrichedChunk {
	pictures := make([]parser.Item, 0)
	for _, it := range doc.Items {
		if it.Kind == parser.ItemPicture {
			pictures = append(pictures, it)
		}
	}

	uploaded := map[string]string{}
	out := make([]EnrichedChunk, 0, len(chunks))

	for i, chunk := range chunks {
		enriched := EnrichedChunk{
			ChunkIndex:  i,
			Text:        chunk.Text,
			Headings:    chunk.Headings,
			HeadingFull: joinHeadings(chunk.Headings),
			PageNumbers: chunk.Pages,
			Tables:      collectTables(chunk.Items),
		}

		cMin, cMax := chunk.VerticalSpan()
		pageSet := map[int]bool{}
		for _, pg := range chunk.Pages {
			pageSet[pg] = true
		}

		for _, pic := range pictures {
			if !pageSet[pic.Page] {
				continue
			}
			sig := pictureSignature(pic)
			if _, done := uploaded[sig]; done {
				continue
			}

			isNear := pic.BBox.Top >= cMin-imageCaptureMargin && pic.BBox.Top <= cMax+imageCaptureMargin
			isSole := len(chunk.Pages) == 1 && chunk.Pages[0] == pic.Page
			if !isNear && !isSole {
				continue
			}
			if pic.WidthPx < minImageEdgePx || pic.HeightPx < minImageEdgePx {
				continue
			}
			if isMarkdownTable(chunk.Text) && pictureCoversChunk(pic.BBox, cMin, cMax) {
				// Almost certainly the rendered table itself.
				continue
			}
			if pic.Image == nil {
				continue
			}

			url, err := p.bucket.UploadImage(ctx, pic.Image)
			if err != nil {
				p.log.Warn("Image upload failed, chunk proceeds without it",
					"page", pic.Page,
					"chunk_index", i,
					"error", err.Error(),
				)
				continue
			}
			uploaded[sig] = url
			enriched.ImagesURLs = append(enriched.ImagesURLs, url)
		}

		out = append(out, enriched)
	}
	return out
}

func collectTables(items []parser.Item) []string {
	out := []string{}
	for _, it := range items {
		if it.Kind != parser.ItemTable {
			continue
		}
		md := strings.TrimSpace(it.Text)
		if md == "" || containsString(out, md) {
			continue
		}
		out = append(out, md)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func pictureSignature(pic parser.Item) string {
	return fmt.Sprintf("pg_%d_%.1f_%.1f_%.1f_%.1f",
		pic.Page, pic.BBox.Left, pic.BBox.Top, pic.BBox.Right, pic.BBox.Bottom)
}

func isMarkdownTable(text string) bool {
	lines := strings.Split(text, "\n")
	pipeLines := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|") {
			pipeLines++
		}
	}
	return pipeLines >= 2
}

func pictureCoversChunk(pic parser.BBox, cMin, cMax float64) bool {
	extent := cMax - cMin
	if extent <= 0 {
		return false
	}
	top := pic.Top
	if top < cMin {
		top = cMin
	}
	bottom := pic.Bottom
	if bottom > cMax {
		bottom = cMax
	}
	overlap := bottom - top
	return overlap > tableOverlapRatio*extent
}

func joinHeadings(headings []string) string {
	cleaned := make([]string, 0, len(headings))
	for _, h := range headings {
		if t := strings.TrimSpace(h); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return DefaultHeading
	}
	return strings.Join(cleaned, " > ")
}
