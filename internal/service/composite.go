package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/adforge/adforge/internal/canvas"
	"github.com/adforge/adforge/internal/domain"
	"github.com/adforge/adforge/internal/metrics"
	"github.com/adforge/adforge/internal/storage"
)

// =============================================================================
// Interface Definition
// =============================================================================

// CompositeService flattens text blocks onto a background image and hosts the
// exported PNG.
type CompositeService interface {
	// Compose renders the blocks onto the background at its intrinsic
	// resolution and stores the result. Returns the hosted URL.
	Compose(ctx context.Context, uid string, background io.Reader, blocks []canvas.TextBlock) (string, error)

	// Preview renders the blocks onto the background and returns raw PNG
	// bytes without storing anything.
	Preview(ctx context.Context, background io.Reader, blocks []canvas.TextBlock) ([]byte, error)
}

// MaxBackgroundSize caps background uploads for compositing (20MB).
const MaxBackgroundSize = 20 * 1024 * 1024

// =============================================================================
// Implementation
// =============================================================================

type compositeService struct {
	fonts  *canvas.FontSet
	store  storage.Storage
	logger *slog.Logger
}

// NewCompositeService creates a new CompositeService.
func NewCompositeService(fonts *canvas.FontSet, store storage.Storage, logger *slog.Logger) CompositeService {
	return &compositeService{
		fonts:  fonts,
		store:  store,
		logger: logger,
	}
}

// Compose renders the blocks onto the background and stores the result.
func (s *compositeService) Compose(ctx context.Context, uid string, background io.Reader, blocks []canvas.TextBlock) (string, error) {
	const op = "composite.compose"

	data, err := s.render(op, background, blocks)
	if err != nil {
		return "", err
	}

	key := storage.CompositeKey(uid)
	err = s.store.Put(ctx, key, bytes.NewReader(data), storage.PutOptions{
		ContentType: "image/png",
	})
	if err != nil {
		return "", domain.Internal(err, op, "Could not store composite")
	}

	url, err := s.store.URL(ctx, key, hostedURLTTL)
	if err != nil {
		return "", domain.Internal(err, op, "Could not produce composite URL")
	}

	metrics.CompositesExported.Inc()
	s.logger.Info("composite exported", "uid", uid, "key", key, "blocks", len(blocks), "bytes", len(data))
	return url, nil
}

// Preview renders the blocks and returns raw PNG bytes.
func (s *compositeService) Preview(ctx context.Context, background io.Reader, blocks []canvas.TextBlock) ([]byte, error) {
	const op = "composite.preview"
	return s.render(op, background, blocks)
}

func (s *compositeService) render(op string, background io.Reader, blocks []canvas.TextBlock) ([]byte, error) {
	start := time.Now()

	img, err := canvas.Decode(io.LimitReader(background, MaxBackgroundSize))
	if err != nil {
		return nil, domain.Invalid(op, "Background is not a decodable image")
	}

	editor := canvas.NewEditor(s.fonts)
	editor.LoadBackground(img)
	editor.SetBlocks(blocks)

	var buf bytes.Buffer
	if err := editor.ExportPNG(&buf); err != nil {
		return nil, domain.Internal(err, op, "Could not render composite")
	}

	s.logger.Debug("composite rendered", "blocks", len(blocks), "duration", time.Since(start))
	return buf.Bytes(), nil
}
