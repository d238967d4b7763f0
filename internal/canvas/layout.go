package canvas

import (
	"strings"

	"golang.org/x/image/font"
)

// Line is a single wrapped line with its measured advance width.
type Line struct {
	Text  string
	Width float64
}

// Layout is the measured result of wrapping a block's text.
type Layout struct {
	Lines  []Line
	Width  float64 // min(maxWidth, widest line)
	Height float64 // line count x line height
}

// measure returns the advance width of s in intrinsic pixels.
func measure(face font.Face, s string) float64 {
	return float64(font.MeasureString(face, s).Ceil())
}

// wrapText greedily packs whitespace-separated words into lines no wider
// than maxWidth. A line always keeps at least one word, so a single word
// wider than maxWidth is never split.
func wrapText(face font.Face, text string, maxWidth float64) []Line {
	words := strings.Fields(text)
	if len(words) == 0 {
		// Preserve the original string's presence: an empty or
		// whitespace-only text still occupies one empty line.
		return []Line{{Text: "", Width: 0}}
	}

	var lines []Line
	line := words[0]
	for _, word := range words[1:] {
		candidate := line + " " + word
		if measure(face, candidate) > maxWidth {
			lines = append(lines, Line{Text: line, Width: measure(face, line)})
			line = word
			continue
		}
		line = candidate
	}
	lines = append(lines, Line{Text: line, Width: measure(face, line)})
	return lines
}

// LayoutBlock wraps and measures a block against the given canvas width.
// The bounding box is always recomputed from the block's current text, font,
// and wrap fraction; nothing is cached across edits.
func (fs *FontSet) LayoutBlock(b *TextBlock, canvasWidth float64) (Layout, error) {
	face, err := fs.Face(b)
	if err != nil {
		return Layout{}, err
	}

	maxWidth := b.MaxWidthPx(canvasWidth)
	lines := wrapText(face, b.Text, maxWidth)

	widest := 0.0
	for _, ln := range lines {
		if ln.Width > widest {
			widest = ln.Width
		}
	}

	width := widest
	if width > maxWidth {
		width = maxWidth
	}

	return Layout{
		Lines:  lines,
		Width:  width,
		Height: float64(len(lines)) * b.LineHeight(),
	}, nil
}

// BlockRect returns the block's current bounding box on a canvas of the
// given width, applying the anchor convention via BoundingBoxFrom.
func (fs *FontSet) BlockRect(b *TextBlock, canvasWidth float64) (Rect, error) {
	layout, err := fs.LayoutBlock(b, canvasWidth)
	if err != nil {
		return Rect{}, err
	}
	return BoundingBoxFrom(b, layout.Width, layout.Height), nil
}
