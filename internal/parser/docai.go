package parser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/dawask/rag-backend/internal/logger"
)

type docAIConfig struct {
	projectID   string
	location    string
	processorID string
	version     string
}

type docAIParser struct {
	log    *logger.Logger
	client *documentai.DocumentProcessorClient
	cfg    docAIConfig
}

// NewDocAIParser builds the Document AI backed parser. OCR is part of the
// processor itself, so scanned and native PDFs go through the same call; the
// Scanned flag on the result records what the heuristic saw.
func NewDocAIParser(log *logger.Logger) (Parser, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "parser.DocAI")

	cfg := docAIConfig{
		projectID:   strings.TrimSpace(os.Getenv("DOCUMENTAI_PROJECT_ID")),
		location:    strings.TrimSpace(os.Getenv("DOCUMENTAI_LOCATION")),
		processorID: strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_ID")),
		version:     strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_VERSION")),
	}
	if cfg.location == "" {
		cfg.location = "us"
	}
	if cfg.projectID == "" || cfg.processorID == "" {
		return nil, fmt.Errorf("DOCUMENTAI_PROJECT_ID and DOCUMENTAI_PROCESSOR_ID are required")
	}

	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.location)
	client, err := documentai.NewDocumentProcessorClient(
		context.Background(),
		option.WithEndpoint(endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}

	slog.Info("Document AI parser initialized", "endpoint", endpoint)

	return &docAIParser{
		log:    slog,
		client: client,
		cfg:    cfg,
	}, nil
}

func (p *docAIParser) Parse(ctx context.Context, filename string, data []byte) (*ParsedDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	if len(data) == 0 {
		return nil, fmt.Errorf("empty document %q", filename)
	}

	name := processorName(p.cfg.projectID, p.cfg.location, p.cfg.processorID, p.cfg.version)
	resp, err := p.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: "application/pdf",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return nil, fmt.Errorf("documentai returned no document for %q", filename)
	}

	doc := resp.Document
	out := &ParsedDocument{
		Filename:  filename,
		PageCount: len(doc.Pages),
	}

	pageTextLens := make([]int, 0, len(doc.Pages))
	pageImageCounts := make([]int, 0, len(doc.Pages))

	for _, page := range doc.Pages {
		if page == nil {
			continue
		}
		pageNum := int(page.PageNumber)
		pageTextChars := 0
		pagePictures := 0

		pageImg := decodePageRender(page)

		for _, para := range page.Paragraphs {
			if para == nil || para.Layout == nil {
				continue
			}
			text := strings.TrimSpace(textFromAnchor(doc.Text, para.Layout.TextAnchor))
			if text == "" {
				continue
			}
			pageTextChars += len(text)
			bbox := layoutBBox(page, para.Layout)

			if level, ok := headingLevel(text); ok {
				out.Items = append(out.Items, Item{
					Kind:  ItemHeading,
					Page:  pageNum,
					BBox:  bbox,
					Text:  text,
					Level: level,
				})
				continue
			}
			out.Items = append(out.Items, Item{
				Kind: ItemText,
				Page: pageNum,
				BBox: bbox,
				Text: text,
			})
		}

		for _, table := range page.Tables {
			if table == nil {
				continue
			}
			md := strings.TrimSpace(tableToMarkdown(doc.Text, table))
			if md == "" {
				continue
			}
			var bbox BBox
			if table.Layout != nil {
				bbox = layoutBBox(page, table.Layout)
			}
			out.Items = append(out.Items, Item{
				Kind: ItemTable,
				Page: pageNum,
				BBox: bbox,
				Text: md,
			})
		}

		for _, ve := range page.VisualElements {
			if ve == nil || ve.Layout == nil {
				continue
			}
			if !strings.Contains(strings.ToLower(ve.Type), "image") {
				continue
			}
			pagePictures++
			bbox := layoutBBox(page, ve.Layout)
			item := Item{
				Kind: ItemPicture,
				Page: pageNum,
				BBox: bbox,
			}
			if pageImg != nil {
				if cropped := cropPageImage(page, pageImg, ve.Layout); cropped != nil {
					item.Image = cropped
					item.WidthPx = cropped.Bounds().Dx()
					item.HeightPx = cropped.Bounds().Dy()
				}
			}
			out.Items = append(out.Items, item)
		}

		pageTextLens = append(pageTextLens, pageTextChars)
		pageImageCounts = append(pageImageCounts, pagePictures)
	}

	out.Scanned = DetectScanned(pageTextLens, pageImageCounts)

	p.log.Info(
		"Parsed document",
		"filename", filename,
		"pages", out.PageCount,
		"items", len(out.Items),
		"scanned", out.Scanned,
	)
	return out, nil
}

func (p *docAIParser) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

var (
	numberedHeadingRe = regexp.MustCompile(`^(\d+(?:\.\d+)*)[.)]?\s+\S`)
	sentenceEndRe     = regexp.MustCompile(`[.!?;:,]$`)
)

// headingLevel classifies a paragraph as a heading. Document AI's OCR output
// does not label headings, so this relies on shape: short, no sentence-final
// punctuation, numbered or title-cased. Numbered headings derive their level
// from the numbering depth.
func headingLevel(text string) (int, bool) {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > 80 {
		return 0, false
	}
	if sentenceEndRe.MatchString(text) {
		return 0, false
	}
	if m := numberedHeadingRe.FindStringSubmatch(text); m != nil {
		return strings.Count(m[1], ".") + 1, true
	}
	words := strings.Fields(text)
	if len(words) == 0 || len(words) > 8 {
		return 0, false
	}
	first := []rune(words[0])
	if !unicode.IsUpper(first[0]) {
		return 0, false
	}
	return 1, true
}

func layoutBBox(page *documentaipb.Document_Page, layout *documentaipb.Document_Page_Layout) BBox {
	if layout == nil || layout.BoundingPoly == nil {
		return BBox{}
	}
	var pw, ph float64 = 1, 1
	if page != nil && page.Dimension != nil {
		pw = float64(page.Dimension.Width)
		ph = float64(page.Dimension.Height)
	}

	first := true
	var out BBox
	add := func(x, y float64) {
		if first {
			out = BBox{Top: y, Bottom: y, Left: x, Right: x}
			first = false
			return
		}
		if y < out.Top {
			out.Top = y
		}
		if y > out.Bottom {
			out.Bottom = y
		}
		if x < out.Left {
			out.Left = x
		}
		if x > out.Right {
			out.Right = x
		}
	}
	for _, v := range layout.BoundingPoly.NormalizedVertices {
		if v == nil {
			continue
		}
		add(float64(v.X)*pw, float64(v.Y)*ph)
	}
	if first {
		for _, v := range layout.BoundingPoly.Vertices {
			if v == nil {
				continue
			}
			add(float64(v.X), float64(v.Y))
		}
	}
	return out
}

func decodePageRender(page *documentaipb.Document_Page) image.Image {
	if page == nil || page.Image == nil || len(page.Image.Content) == 0 {
		return nil
	}
	img, _, err := image.Decode(bytes.NewReader(page.Image.Content))
	if err != nil {
		return nil
	}
	return img
}

// cropPageImage cuts the element's region out of the rendered page, mapping
// page units onto render pixels.
func cropPageImage(page *documentaipb.Document_Page, pageImg image.Image, layout *documentaipb.Document_Page_Layout) image.Image {
	bbox := layoutBBox(page, layout)
	if bbox.Width() <= 0 || bbox.Height() <= 0 {
		return nil
	}
	var pw, ph float64 = 1, 1
	if page.Dimension != nil && page.Dimension.Width > 0 && page.Dimension.Height > 0 {
		pw = float64(page.Dimension.Width)
		ph = float64(page.Dimension.Height)
	}
	b := pageImg.Bounds()
	x0 := b.Min.X + int(bbox.Left/pw*float64(b.Dx()))
	x1 := b.Min.X + int(bbox.Right/pw*float64(b.Dx()))
	y0 := b.Min.Y + int(bbox.Top/ph*float64(b.Dy()))
	y1 := b.Min.Y + int(bbox.Bottom/ph*float64(b.Dy()))
	rect := image.Rect(x0, y0, x1, y1).Intersect(b)
	if rect.Empty() {
		return nil
	}
	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	si, ok := pageImg.(subImager)
	if !ok {
		return nil
	}
	return si.SubImage(rect)
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || len(anchor.TextSegments) == 0 || full == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.TextSegments {
		if seg == nil {
			continue
		}
		start := int(seg.StartIndex)
		end := int(seg.EndIndex)
		if start < 0 {
			start = 0
		}
		if end > len(full) {
			end = len(full)
		}
		if start >= end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return b.String()
}

func tableToMarkdown(full string, t *documentaipb.Document_Page_Table) string {
	if t == nil {
		return ""
	}

	header := []string{}
	if len(t.HeaderRows) > 0 && t.HeaderRows[0] != nil {
		header = tableRowToCells(full, t.HeaderRows[0])
	}
	bodyRows := append([]*documentaipb.Document_Page_Table_TableRow{}, t.BodyRows...)
	if len(header) == 0 && len(bodyRows) > 0 && bodyRows[0] != nil {
		header = tableRowToCells(full, bodyRows[0])
		bodyRows = bodyRows[1:]
	}
	if len(header) == 0 {
		return ""
	}

	rows := [][]string{header}
	for _, r := range bodyRows {
		if r == nil {
			continue
		}
		rows = append(rows, tableRowToCells(full, r))
	}

	maxCols := 0
	for _, r := range rows {
		if len(r) > maxCols {
			maxCols = len(r)
		}
	}
	if maxCols == 0 {
		return ""
	}
	for i := range rows {
		for len(rows[i]) < maxCols {
			rows[i] = append(rows[i], "")
		}
	}

	var out strings.Builder
	out.WriteString("| ")
	out.WriteString(strings.Join(escapePipes(rows[0]), " | "))
	out.WriteString(" |\n| ")
	sep := make([]string, maxCols)
	for i := 0; i < maxCols; i++ {
		sep[i] = "---"
	}
	out.WriteString(strings.Join(sep, " | "))
	out.WriteString(" |\n")
	for i := 1; i < len(rows); i++ {
		out.WriteString("| ")
		out.WriteString(strings.Join(escapePipes(rows[i]), " | "))
		out.WriteString(" |\n")
	}
	return out.String()
}

func tableRowToCells(full string, r *documentaipb.Document_Page_Table_TableRow) []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Cells))
	for _, c := range r.Cells {
		if c == nil || c.Layout == nil || c.Layout.TextAnchor == nil {
			out = append(out, "")
			continue
		}
		out = append(out, strings.TrimSpace(textFromAnchor(full, c.Layout.TextAnchor)))
	}
	return out
}

func escapePipes(row []string) []string {
	out := make([]string, len(row))
	for i, s := range row {
		out[i] = strings.ReplaceAll(s, "|", "\\|")
	}
	return out
}

func processorName(project, location, processorID, version string) string {
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
	if version != "" {
		return base + "/processorVersions/" + version
	}
	return base
}
