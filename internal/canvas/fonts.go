package canvas

import (
	"fmt"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// Font families available to text blocks. Each family carries four faces so
// bold/italic render with real glyphs instead of synthetic slanting.
const (
	DefaultFamily = "sans"
	MonoFamily    = "mono"
)

type faceVariant struct {
	family string
	bold   bool
	italic bool
}

// FontSet parses the embedded font programs once. The parsed fonts are
// immutable and safe to share across renders; sized faces are not (a face
// carries per-glyph rasterizer state), so Face mints a fresh one per call.
// Measurements stay deterministic: the same text, font, and size always
// measure identically.
type FontSet struct {
	fonts map[faceVariant]*opentype.Font
}

// NewFontSet loads the built-in font families.
func NewFontSet() (*FontSet, error) {
	sources := map[faceVariant][]byte{
		{DefaultFamily, false, false}: goregular.TTF,
		{DefaultFamily, true, false}:  gobold.TTF,
		{DefaultFamily, false, true}:  goitalic.TTF,
		{DefaultFamily, true, true}:   gobolditalic.TTF,
		{MonoFamily, false, false}:    gomono.TTF,
		{MonoFamily, true, false}:     gomonobold.TTF,
		{MonoFamily, false, true}:     gomonoitalic.TTF,
		{MonoFamily, true, true}:      gomonobolditalic.TTF,
	}

	fonts := make(map[faceVariant]*opentype.Font, len(sources))
	for variant, ttf := range sources {
		f, err := opentype.Parse(ttf)
		if err != nil {
			return nil, fmt.Errorf("parse %s font: %w", variant.family, err)
		}
		fonts[variant] = f
	}

	return &FontSet{fonts: fonts}, nil
}

// Face returns a new sized face for the block's family and style. Unknown
// families fall back to the default family rather than failing the render.
// Each call returns a distinct face; callers must not share one across
// goroutines.
func (fs *FontSet) Face(b *TextBlock) (font.Face, error) {
	family := b.FontFamily
	if _, ok := fs.fonts[faceVariant{family, false, false}]; !ok {
		family = DefaultFamily
	}

	face, err := opentype.NewFace(fs.fonts[faceVariant{family, b.Bold, b.Italic}], &opentype.FaceOptions{
		Size:    b.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("new face %s %gpx: %w", family, b.FontSize, err)
	}
	return face, nil
}
