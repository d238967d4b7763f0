package canvas

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Text shadow parameters, matching the editor's on-screen rendering.
const (
	shadowAlpha   = 115 // 45% black
	shadowOffsetY = 3
	shadowSigma   = 6.0
)

var (
	selectionColor     = color.NRGBA{R: 0x00, G: 0xe0, B: 0xff, A: 0xff}
	selectionEdgeColor = color.NRGBA{R: 0x00, G: 0x3d, B: 0x47, A: 0xff}
)

// RenderOptions controls what gets drawn beyond the exportable content.
type RenderOptions struct {
	// IncludeSelection draws the dashed outline and corner handles of the
	// selected block. Exports never include it.
	IncludeSelection bool
}

// Decode reads and decodes an image, honoring EXIF orientation.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Render flattens the background and every block, in z-order, onto a new
// surface at intrinsic resolution. The guide and alignment-line overlays are
// display-layer concerns and are never drawn here.
func (e *Editor) Render(opts RenderOptions) (*image.NRGBA, error) {
	if e.bg == nil {
		return nil, fmt.Errorf("render: no background image loaded")
	}

	dst := image.NewNRGBA(image.Rect(0, 0, int(e.intrinsicW), int(e.intrinsicH)))
	draw.Draw(dst, dst.Bounds(), e.bg, image.Point{}, draw.Src)

	for i := range e.blocks {
		b := &e.blocks[i]
		if err := e.drawBlock(dst, b); err != nil {
			return nil, err
		}
		if opts.IncludeSelection && b.ID == e.selected {
			if rect, ok := e.blockRect(b); ok {
				e.drawSelection(dst, rect)
			}
		}
	}

	return dst, nil
}

// ExportPNG writes the flattened composite as a PNG at intrinsic resolution.
// No re-layout happens here: the same state always encodes byte-identically.
func (e *Editor) ExportPNG(w io.Writer) error {
	img, err := e.Render(RenderOptions{})
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func (e *Editor) drawBlock(dst *image.NRGBA, b *TextBlock) error {
	face, err := e.fonts.Face(b)
	if err != nil {
		return err
	}
	layout, err := e.fonts.LayoutBlock(b, e.intrinsicW)
	if err != nil {
		return err
	}

	col := parseHexColor(b.Color)
	ascent := float64(face.Metrics().Ascent.Ceil())
	lineHeight := b.LineHeight()

	if b.Shadow {
		e.drawBlockShadow(dst, b, face, layout, ascent, lineHeight)
	}

	for i, ln := range layout.Lines {
		top := b.AnchorY + float64(i)*lineHeight
		lineX := lineLeft(b, ln.Width)

		drawer := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(col),
			Face: face,
			Dot:  fixed.P(int(round(lineX)), int(round(top+ascent))),
		}
		drawer.DrawString(ln.Text)

		// Underline is drawn manually per line from that line's own
		// measured width; no shadow applies to it.
		if b.Underline && ln.Width > 0 {
			gap := round(b.FontSize * 0.08)
			thickness := math.Max(1, round(b.FontSize*0.05))
			underlineY := top + b.FontSize + gap
			fillRect(dst, Rect{Left: lineX, Top: underlineY, Width: ln.Width, Height: thickness}, col)
		}
	}
	return nil
}

// drawBlockShadow rasterizes the block's text in translucent black onto a
// scratch layer, blurs it, and composites it under the text.
func (e *Editor) drawBlockShadow(dst *image.NRGBA, b *TextBlock, face font.Face, layout Layout, ascent, lineHeight float64) {
	layer := image.NewNRGBA(dst.Bounds())
	shadow := color.NRGBA{A: shadowAlpha}

	for i, ln := range layout.Lines {
		top := b.AnchorY + float64(i)*lineHeight + shadowOffsetY
		lineX := lineLeft(b, ln.Width)
		drawer := &font.Drawer{
			Dst:  layer,
			Src:  image.NewUniform(shadow),
			Face: face,
			Dot:  fixed.P(int(round(lineX)), int(round(top+ascent))),
		}
		drawer.DrawString(ln.Text)
	}

	blurred := imaging.Blur(layer, shadowSigma)
	draw.Draw(dst, dst.Bounds(), blurred, image.Point{}, draw.Over)
}

// lineLeft returns the left edge of one rendered line given the block's
// anchor and alignment.
func lineLeft(b *TextBlock, lineWidth float64) float64 {
	switch b.Align {
	case AlignCenter:
		return b.AnchorX - lineWidth/2
	case AlignRight:
		return b.AnchorX - lineWidth
	default:
		return b.AnchorX
	}
}

// drawSelection draws the dashed bounding outline plus the four corner
// handles of the selected block.
func (e *Editor) drawSelection(dst *image.NRGBA, rect Rect) {
	drawDashedRect(dst, rect, selectionColor, 2, 6, 4)

	size := e.HandleSize()
	corners := [][2]float64{
		{rect.Left, rect.Top},
		{rect.Right(), rect.Top},
		{rect.Left, rect.Bottom()},
		{rect.Right(), rect.Bottom()},
	}
	for _, c := range corners {
		handle := Rect{Left: c[0] - size/2, Top: c[1] - size/2, Width: size, Height: size}
		fillRect(dst, handle, selectionColor)
		strokeRect(dst, handle, selectionEdgeColor, 1)
	}
}

// =============================================================================
// Raster primitives
// =============================================================================

func drawImage(dst *image.NRGBA, src image.Image) {
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
}

func fillRect(dst *image.NRGBA, r Rect, col color.NRGBA) {
	x0, y0 := int(round(r.Left)), int(round(r.Top))
	x1, y1 := int(round(r.Right())), int(round(r.Bottom()))
	draw.Draw(dst, image.Rect(x0, y0, x1, y1), image.NewUniform(col), image.Point{}, draw.Over)
}

func strokeRect(dst *image.NRGBA, r Rect, col color.NRGBA, width float64) {
	fillRect(dst, Rect{Left: r.Left, Top: r.Top, Width: r.Width, Height: width}, col)
	fillRect(dst, Rect{Left: r.Left, Top: r.Bottom() - width, Width: r.Width, Height: width}, col)
	fillRect(dst, Rect{Left: r.Left, Top: r.Top, Width: width, Height: r.Height}, col)
	fillRect(dst, Rect{Left: r.Right() - width, Top: r.Top, Width: width, Height: r.Height}, col)
}

// drawDashedRect strokes a rectangle with a simple on/off dash pattern.
func drawDashedRect(dst *image.NRGBA, r Rect, col color.NRGBA, width, dashOn, dashOff float64) {
	period := dashOn + dashOff

	// Horizontal edges
	for x := r.Left; x < r.Right(); x += period {
		end := math.Min(x+dashOn, r.Right())
		fillRect(dst, Rect{Left: x, Top: r.Top, Width: end - x, Height: width}, col)
		fillRect(dst, Rect{Left: x, Top: r.Bottom() - width, Width: end - x, Height: width}, col)
	}
	// Vertical edges
	for y := r.Top; y < r.Bottom(); y += period {
		end := math.Min(y+dashOn, r.Bottom())
		fillRect(dst, Rect{Left: r.Left, Top: y, Width: width, Height: end - y}, col)
		fillRect(dst, Rect{Left: r.Right() - width, Top: y, Width: width, Height: end - y}, col)
	}
}

// parseHexColor parses "#rgb" or "#rrggbb" into an opaque color. Malformed
// values fall back to white rather than failing the render.
func parseHexColor(s string) color.NRGBA {
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	if len(s) == 0 || s[0] != '#' {
		return white
	}
	hex := s[1:]
	var r, g, b uint8
	switch len(hex) {
	case 3:
		_, err := fmt.Sscanf(hex, "%1x%1x%1x", &r, &g, &b)
		if err != nil {
			return white
		}
		r, g, b = r*17, g*17, b*17
	case 6:
		_, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b)
		if err != nil {
			return white
		}
	default:
		return white
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}
