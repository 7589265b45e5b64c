package parser

import (
	"context"
	"image"
	"strings"
)

type ItemKind string

const (
	ItemText    ItemKind = "text"
	ItemHeading ItemKind = "heading"
	ItemTable   ItemKind = "table"
	ItemPicture ItemKind = "picture"
)

// BBox is a vertical+horizontal extent in page units (points), origin top-left.
type BBox struct {
	Top    float64
	Bottom float64
	Left   float64
	Right  float64
}

func (b BBox) Height() float64 {
	return b.Bottom - b.Top
}

func (b BBox) Width() float64 {
	return b.Right - b.Left
}

// Item is one structured element extracted from a document. Text carries the
// payload for text/heading/table kinds (tables as markdown); Image and the
// pixel dimensions are set only for pictures.
type Item struct {
	Kind ItemKind
	Page int
	BBox BBox

	Text  string
	Level int

	Image    image.Image
	WidthPx  int
	HeightPx int
}

type ParsedDocument struct {
	Filename  string
	PageCount int
	Scanned   bool
	Items     []Item
}

type Parser interface {
	Parse(ctx context.Context, filename string, data []byte) (*ParsedDocument, error)
}

const (
	scanDetectPages    = 3
	scanDetectMaxChars = 50
)

// DetectScanned reports whether a document looks like a scan: each of the
// first three pages has fewer than 50 text characters and at least one image.
func DetectScanned(pageTextLens []int, pageImageCounts []int) bool {
	n := len(pageTextLens)
	if n == 0 {
		return false
	}
	if n > scanDetectPages {
		n = scanDetectPages
	}
	for i := 0; i < n; i++ {
		if pageTextLens[i] >= scanDetectMaxChars {
			return false
		}
		images := 0
		if i < len(pageImageCounts) {
			images = pageImageCounts[i]
		}
		if images < 1 {
			return false
		}
	}
	return true
}

// Flatten renders the parsed items as markdown in reading order. Used for
// identity-card sampling and table-of-contents extraction.
func Flatten(items []Item) string {
	var b strings.Builder
	for _, it := range items {
		switch it.Kind {
		case ItemHeading:
			level := it.Level
			if level < 1 {
				level = 1
			}
			if level > 6 {
				level = 6
			}
			b.WriteString(strings.Repeat("#", level))
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(it.Text))
			b.WriteString("\n\n")
		case ItemText, ItemTable:
			t := strings.TrimSpace(it.Text)
			if t == "" {
				continue
			}
			b.WriteString(t)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimSpace(b.String())
}
