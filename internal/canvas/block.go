// Package canvas implements the text-over-image compositing engine.
//
// The engine renders a background image plus an ordered list of styled,
// positioned text blocks onto a single raster surface, supports
// direct-manipulation editing (select/drag/resize), and exports a flattened
// PNG at the background image's intrinsic resolution.
//
// Coordinate contract: all stored geometry (anchors, widths) lives in
// intrinsic canvas pixel space. Pointer input arrives in display (on-screen)
// pixel space and is converted at each event via intrinsic/display ratios.
package canvas

import (
	"github.com/google/uuid"
)

// Alignment controls both text alignment and the anchor semantics of AnchorX.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// Wrap-width fraction limits and the resize floor in intrinsic pixels.
const (
	MinWidthFraction = 0.05
	MaxWidthFraction = 0.98
	MinBlockWidthPx  = 40.0
)

// DuplicateOffset is the positional offset applied to duplicated blocks.
const DuplicateOffset = 20.0

// TextBlock is one draggable, styled text box. Z-order equals list order in
// the editor; later blocks draw on top.
//
// AnchorX follows the block's alignment: it is the left edge for left-aligned
// blocks, the horizontal midpoint for centered blocks, and the right edge for
// right-aligned blocks. AnchorY is always the top edge.
type TextBlock struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	FontFamily string    `json:"fontFamily"`
	FontSize   float64   `json:"fontSize"`
	Color      string    `json:"color"` // hex, e.g. "#ffffff"
	Align      Alignment `json:"align"`
	Bold       bool      `json:"bold"`
	Italic     bool      `json:"italic"`
	Underline  bool      `json:"underline"`
	Shadow     bool      `json:"shadow"`
	AnchorX    float64   `json:"x"`
	AnchorY    float64   `json:"y"`

	// MaxWidthFraction is the wrap width as a fraction of canvas width,
	// clamped to [MinWidthFraction, MaxWidthFraction].
	MaxWidthFraction float64 `json:"maxWidthPct"`

	LineHeightMult float64 `json:"lineHeightMult"`
}

func newBlockID() string { return uuid.NewString() }

// NewHeadlineBlock returns the default first block of a fresh editor.
func NewHeadlineBlock() TextBlock {
	return TextBlock{
		ID:               uuid.NewString(),
		Text:             "Your Headline",
		FontFamily:       DefaultFamily,
		FontSize:         64,
		Color:            "#ffffff",
		Align:            AlignLeft,
		Bold:             true,
		Shadow:           true,
		AnchorX:          100,
		AnchorY:          120,
		MaxWidthFraction: 0.8,
		LineHeightMult:   1.08,
	}
}

// NewTextBlock returns the default block created by "add text box".
func NewTextBlock() TextBlock {
	return TextBlock{
		ID:               uuid.NewString(),
		Text:             "New Text",
		FontFamily:       DefaultFamily,
		FontSize:         36,
		Color:            "#ffffff",
		Align:            AlignLeft,
		Bold:             true,
		Shadow:           true,
		AnchorX:          100,
		AnchorY:          100,
		MaxWidthFraction: 0.75,
		LineHeightMult:   1.12,
	}
}

// LineHeight returns the per-line advance in intrinsic pixels.
func (b *TextBlock) LineHeight() float64 {
	mult := b.LineHeightMult
	if mult == 0 {
		mult = 1.1
	}
	return round(b.FontSize * mult)
}

// MaxWidthPx returns the wrap width in intrinsic pixels for a canvas of the
// given width.
func (b *TextBlock) MaxWidthPx(canvasWidth float64) float64 {
	frac := b.MaxWidthFraction
	if frac == 0 {
		frac = 0.8
	}
	return round(canvasWidth * frac)
}

// Rect is an axis-aligned rectangle in intrinsic pixel space.
type Rect struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

func (r Rect) Right() float64  { return r.Left + r.Width }
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Contains reports whether the point lies inside the rectangle (inclusive).
func (r Rect) Contains(x, y float64) bool {
	return x >= r.Left && x <= r.Right() && y >= r.Top && y <= r.Bottom()
}

// CenterX returns the horizontal midpoint.
func (r Rect) CenterX() float64 { return r.Left + r.Width/2 }

// CenterY returns the vertical midpoint.
func (r Rect) CenterY() float64 { return r.Top + r.Height/2 }

// BoundingBoxFrom converts a block's anchor position and measured size into
// its top-left bounding box. It is the single definition of the
// anchor-vs-alignment convention, shared by drawing, hit-testing, dragging,
// and resizing.
func BoundingBoxFrom(b *TextBlock, measuredWidth, measuredHeight float64) Rect {
	left := b.AnchorX
	switch b.Align {
	case AlignCenter:
		left = b.AnchorX - round(measuredWidth/2)
	case AlignRight:
		left = b.AnchorX - measuredWidth
	}
	return Rect{Left: left, Top: b.AnchorY, Width: measuredWidth, Height: measuredHeight}
}

// AnchorForLeft is the inverse of BoundingBoxFrom: it converts a bounding-box
// left edge back into the anchor convention implied by the block's alignment.
func AnchorForLeft(b *TextBlock, left, width float64) float64 {
	switch b.Align {
	case AlignCenter:
		return left + width/2
	case AlignRight:
		return left + width
	default:
		return left
	}
}

func round(v float64) float64 {
	if v < 0 {
		return float64(int(v - 0.5))
	}
	return float64(int(v + 0.5))
}
