package canvas

import (
	"bytes"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportPNGDeterministic(t *testing.T) {
	e := testEditor(t)
	e.Select(e.Blocks()[0].ID)

	var first, second bytes.Buffer
	require.NoError(t, e.ExportPNG(&first))
	require.NoError(t, e.ExportPNG(&second))
	assert.Equal(t, first.Bytes(), second.Bytes(), "export twice without edits is byte-identical")
}

func TestConcurrentExportsShareFontSet(t *testing.T) {
	// One FontSet serves every composite request; simultaneous renders must
	// not disturb each other's glyph rasterization.
	fonts := testFonts(t)

	newEditor := func() *Editor {
		e := NewEditor(fonts)
		e.LoadBackground(testBackground(1080, 1080))
		return e
	}

	var want bytes.Buffer
	require.NoError(t, newEditor().ExportPNG(&want))

	const workers = 4
	outputs := make([][]byte, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var buf bytes.Buffer
			if err := newEditor().ExportPNG(&buf); err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			outputs[i] = buf.Bytes()
		}(i)
	}
	wg.Wait()

	for i, got := range outputs {
		assert.Equal(t, want.Bytes(), got, "worker %d output diverged", i)
	}
}

func TestExportMatchesIntrinsicResolution(t *testing.T) {
	e := NewEditor(testFonts(t))
	e.LoadBackground(testBackground(800, 600))
	e.SetDisplaySize(400, 300)

	var buf bytes.Buffer
	require.NoError(t, e.ExportPNG(&buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx(), "export ignores the display size")
	assert.Equal(t, 600, img.Bounds().Dy())
}

func TestExportExcludesSelectionOverlay(t *testing.T) {
	e := testEditor(t)
	e.Select(e.Blocks()[0].ID)

	var selected bytes.Buffer
	require.NoError(t, e.ExportPNG(&selected))

	e.Select("")
	var deselected bytes.Buffer
	require.NoError(t, e.ExportPNG(&deselected))

	assert.Equal(t, deselected.Bytes(), selected.Bytes(), "selection state never leaks into exports")
}

func TestRenderSelectionOnlyInPreview(t *testing.T) {
	e := testEditor(t)
	e.Select(e.Blocks()[0].ID)

	plain, err := e.Render(RenderOptions{})
	require.NoError(t, err)
	preview, err := e.Render(RenderOptions{IncludeSelection: true})
	require.NoError(t, err)

	assert.NotEqual(t, plain.Pix, preview.Pix, "preview draws the outline and handles")
}

func TestGuideNeverBakedIntoExport(t *testing.T) {
	e := testEditor(t)

	var none bytes.Buffer
	require.NoError(t, e.ExportPNG(&none))

	e.SetGuide(GuideIGStory)
	e.SetShowCenters(true)
	e.SetShowBorders(true)
	var withGuide bytes.Buffer
	require.NoError(t, e.ExportPNG(&withGuide))

	assert.Equal(t, none.Bytes(), withGuide.Bytes())
}

func TestRenderDrawsTextOverBackground(t *testing.T) {
	e := testEditor(t)

	bare := NewEditor(testFonts(t))
	bare.LoadBackground(testBackground(1080, 1080))
	bare.SetBlocks(nil)

	withText, err := e.Render(RenderOptions{})
	require.NoError(t, err)
	background, err := bare.Render(RenderOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, background.Pix, withText.Pix)
}

func TestUnderlineAddsPixels(t *testing.T) {
	e := testEditor(t)
	e.Select(e.Blocks()[0].ID)
	e.UpdateSelected(func(b *TextBlock) { b.Shadow = false })
	without, err := e.Render(RenderOptions{})
	require.NoError(t, err)

	e.UpdateSelected(func(b *TextBlock) { b.Underline = true })
	with, err := e.Render(RenderOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, without.Pix, with.Pix)
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
	}{
		{"#ffffff", color.NRGBA{255, 255, 255, 255}},
		{"#000000", color.NRGBA{0, 0, 0, 255}},
		{"#ff2d55", color.NRGBA{0xff, 0x2d, 0x55, 255}},
		{"#f0a", color.NRGBA{0xff, 0x00, 0xaa, 255}},
		{"", color.NRGBA{255, 255, 255, 255}},
		{"red", color.NRGBA{255, 255, 255, 255}},
		{"#12345", color.NRGBA{255, 255, 255, 255}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseHexColor(tt.in), "input %q", tt.in)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}

func TestDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testBackground(64, 48)))

	img, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())
}
