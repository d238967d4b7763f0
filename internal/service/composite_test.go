package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/adforge/adforge/internal/canvas"
	"github.com/adforge/adforge/internal/domain"
)

func pngBackground(t *testing.T, w, h int) *bytes.Reader {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	fill := color.NRGBA{R: 0x20, G: 0x30, B: 0x40, A: 0xff}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode background: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func newTestCompositeService(t *testing.T) (CompositeService, *memStorage) {
	t.Helper()
	fonts, err := canvas.NewFontSet()
	if err != nil {
		t.Fatalf("load fonts: %v", err)
	}
	store := newMemStorage()
	return NewCompositeService(fonts, store, testLogger()), store
}

func headlineBlock() canvas.TextBlock {
	return canvas.TextBlock{
		ID:               "b1",
		Text:             "Summer Sale",
		FontFamily:       "sans",
		FontSize:         64,
		Color:            "#ffffff",
		Align:            canvas.AlignLeft,
		Bold:             true,
		AnchorX:          100,
		AnchorY:          120,
		MaxWidthFraction: 0.8,
		LineHeightMult:   1.08,
	}
}

func TestCompose_StoresPNGAndReturnsURL(t *testing.T) {
	svc, store := newTestCompositeService(t)

	url, err := svc.Compose(context.Background(), "user-1", pngBackground(t, 800, 600), []canvas.TextBlock{headlineBlock()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(url, "/users/user-1/composites/") {
		t.Errorf("expected composite key in URL, got %q", url)
	}
	if len(store.objects) != 1 {
		t.Fatalf("expected one stored object, got %d", len(store.objects))
	}
	for _, obj := range store.objects {
		if obj.contentType != "image/png" {
			t.Errorf("expected image/png, got %q", obj.contentType)
		}
		cfg, err := png.DecodeConfig(bytes.NewReader(obj.data))
		if err != nil {
			t.Fatalf("stored composite is not a PNG: %v", err)
		}
		if cfg.Width != 800 || cfg.Height != 600 {
			t.Errorf("composite must keep intrinsic size, got %dx%d", cfg.Width, cfg.Height)
		}
	}
}

func TestPreview_RendersWithoutStoring(t *testing.T) {
	svc, store := newTestCompositeService(t)

	data, err := svc.Preview(context.Background(), pngBackground(t, 400, 300), []canvas.TextBlock{headlineBlock()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		t.Fatalf("preview is not a PNG: %v", err)
	}
	if len(store.objects) != 0 {
		t.Errorf("preview must not store anything, got %d objects", len(store.objects))
	}
}

func TestCompose_RejectsUndecodableBackground(t *testing.T) {
	svc, store := newTestCompositeService(t)

	_, err := svc.Compose(context.Background(), "user-1", strings.NewReader("not an image"), nil)
	if domain.ErrorCode(err) != domain.EINVALID {
		t.Fatalf("expected EINVALID, got %v", err)
	}
	if len(store.objects) != 0 {
		t.Error("failed compose must not store anything")
	}
}
