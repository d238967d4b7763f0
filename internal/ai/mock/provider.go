// Package mock provides canned AI providers for testing and development.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"time"

	"github.com/adforge/adforge/internal/ai"
	"github.com/adforge/adforge/internal/domain"
)

// Provider is a mock copy provider for testing and development
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	GenerateAdResponse *ai.CopyResult
	GenerateAdError    error
	OptimizeAdResponse *domain.OptimizerReport
	OptimizeAdError    error

	// Call tracking for testing
	GenerateAdCalls int
	OptimizeAdCalls int
}

// New creates a new mock copy provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// GenerateAd returns canned ad copy derived from the brief.
func (p *Provider) GenerateAd(ctx context.Context, params domain.GenerateParams) (*ai.CopyResult, error) {
	p.GenerateAdCalls++

	// If a custom response or error is set, use it
	if p.GenerateAdError != nil {
		return nil, p.GenerateAdError
	}
	if p.GenerateAdResponse != nil {
		return p.GenerateAdResponse, nil
	}

	return &ai.CopyResult{
		Copy: domain.AdCopy{
			Headline:    fmt.Sprintf("Meet %s", params.Product),
			PrimaryText: fmt.Sprintf("%s Made for %s.", params.Description, params.Audience),
			CTA:         "Shop Now",
		},
		ImagePrompt: fmt.Sprintf("Studio product photograph of %s, soft gradient background, negative space for headline", params.Product),
		Usage: ai.UsageInfo{
			Model:        "mock-copy-v1",
			InputTokens:  180,
			OutputTokens: 64,
			Duration:     120 * time.Millisecond,
		},
	}, nil
}

// OptimizeAd returns a canned optimizer report.
func (p *Provider) OptimizeAd(ctx context.Context, params domain.OptimizeParams) (*domain.OptimizerReport, error) {
	p.OptimizeAdCalls++

	if p.OptimizeAdError != nil {
		return nil, p.OptimizeAdError
	}
	if p.OptimizeAdResponse != nil {
		return p.OptimizeAdResponse, nil
	}

	return &domain.OptimizerReport{
		Summary:             "CTR is below platform benchmarks; the headline does not name a concrete benefit and the CTA is generic.",
		LikelyIssues:        []string{"Headline lacks a specific benefit", "CTA is generic"},
		RecommendedChanges:  []string{"Lead the headline with the offer", "Match the CTA to the campaign goal"},
		ImprovedHeadline:    "Save 20% On " + params.Copy.Headline,
		ImprovedPrimaryText: params.Copy.PrimaryText,
		ImprovedCTA:         "Claim Offer",
		ImprovedImagePrompt: "Bright lifestyle photograph, product in use, warm tones, negative space top third",
	}, nil
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.GenerateAdCalls = 0
	p.OptimizeAdCalls = 0
	p.GenerateAdResponse = nil
	p.GenerateAdError = nil
	p.OptimizeAdResponse = nil
	p.OptimizeAdError = nil
}

// ImageProvider is a mock image provider that renders a flat placeholder PNG.
type ImageProvider struct {
	GenerateImageError error
	GenerateImageCalls int
}

// NewImageProvider creates a new mock image provider.
func NewImageProvider() *ImageProvider {
	return &ImageProvider{}
}

// GenerateImage returns a solid-color PNG sized by the aspect ratio.
func (p *ImageProvider) GenerateImage(ctx context.Context, params ai.ImageParams) (*ai.ImageResult, error) {
	p.GenerateImageCalls++

	if p.GenerateImageError != nil {
		return nil, p.GenerateImageError
	}

	w, h := 1024, 1024
	switch params.AspectRatio {
	case "9x16":
		w, h = 576, 1024
	case "16x9":
		w, h = 1024, 576
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	fill := color.NRGBA{R: 0x2b, G: 0x3a, B: 0x67, A: 0xff}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	return &ai.ImageResult{
		Data:        buf.Bytes(),
		ContentType: "image/png",
		Usage: ai.UsageInfo{
			Model:    "mock-image-v1",
			Duration: 80 * time.Millisecond,
		},
	}, nil
}
