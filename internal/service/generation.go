package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/adforge/adforge/internal/ai"
	"github.com/adforge/adforge/internal/domain"
	"github.com/adforge/adforge/internal/metrics"
	"github.com/adforge/adforge/internal/storage"
)

// =============================================================================
// Interface Definition
// =============================================================================

// OptimizerTiers are the plans that include the ad optimizer.
var OptimizerTiers = []domain.SubscriptionTier{domain.TierPro, domain.TierBusiness}

// GenerationService orchestrates ad creative generation: metering, copy,
// background image, and hosting of the result.
type GenerationService interface {
	// GenerateAd produces a complete creative for the brief. Consumes one
	// generation from the user's quota.
	GenerateAd(ctx context.Context, uid string, params domain.GenerateParams) (*domain.AdCreative, error)

	// OptimizeAd analyzes an underperforming creative. Gated to the plans
	// in OptimizerTiers; does not consume quota.
	OptimizeAd(ctx context.Context, uid string, params domain.OptimizeParams) (*domain.OptimizerReport, error)

	// GenerateFromReport turns an optimizer report into a fresh creative
	// using the improved copy and image prompt. Consumes one generation.
	GenerateFromReport(ctx context.Context, uid string, report domain.OptimizerReport, aspectRatio string) (*domain.AdCreative, error)

	// UploadCreative stores a user-provided creative image and returns its
	// hosted URL. Gated to the plans in OptimizerTiers, since uploads only
	// feed the optimizer.
	UploadCreative(ctx context.Context, uid, filename, contentType string, data io.Reader, size int64) (string, error)
}

// MaxCreativeUploadSize caps uploaded creative images (10MB).
const MaxCreativeUploadSize = 10 * 1024 * 1024

// Thumbnail bounding box for uploaded creatives.
const (
	thumbMaxWidth  = 400
	thumbMaxHeight = 400
)

// hostedURLTTL is the presign lifetime for stored images on private buckets.
const hostedURLTTL = 24 * time.Hour

// =============================================================================
// Implementation
// =============================================================================

type generationService struct {
	copy   ai.CopyProvider
	images ai.ImageProvider
	usage  UsageService
	subs   SubscriptionSource
	claims ClaimsSource
	store  storage.Storage
	thumbs ThumbnailProcessor
	logger *slog.Logger
}

// ClaimsSource resolves role claims, used for the admin quota bypass.
type ClaimsSource interface {
	FetchClaims(ctx context.Context, uid string) (domain.Claims, error)
}

// NewGenerationService creates a new GenerationService.
func NewGenerationService(
	copyProvider ai.CopyProvider,
	imageProvider ai.ImageProvider,
	usage UsageService,
	subs SubscriptionSource,
	claims ClaimsSource,
	store storage.Storage,
	logger *slog.Logger,
) GenerationService {
	return &generationService{
		copy:   copyProvider,
		images: imageProvider,
		usage:  usage,
		subs:   subs,
		claims: claims,
		store:  store,
		thumbs: NewImagingProcessor(),
		logger: logger,
	}
}

// GenerateAd produces a complete creative for the brief.
func (s *generationService) GenerateAd(ctx context.Context, uid string, params domain.GenerateParams) (*domain.AdCreative, error) {
	const op = "generation.generate_ad"

	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := s.consumeQuota(ctx, uid); err != nil {
		return nil, err
	}

	result, err := s.copy.GenerateAd(ctx, params)
	if err != nil {
		metrics.RecordAICall("copy", "error")
		return nil, mapProviderError(op, err)
	}
	metrics.RecordAICall("copy", "ok")
	metrics.RecordTokens(result.Usage.InputTokens, result.Usage.OutputTokens)

	imageURL, err := s.renderAndHost(ctx, uid, result.ImagePrompt, aspectRatioForPlatform(params.Platform))
	if err != nil {
		return nil, err
	}

	metrics.AdsGenerated.WithLabelValues(params.Platform).Inc()
	s.logger.Info("ad generated",
		"uid", uid,
		"platform", params.Platform,
		"model", result.Usage.Model,
		"duration", result.Usage.Duration,
	)

	return &domain.AdCreative{
		Copy:     result.Copy,
		ImageURL: imageURL,
	}, nil
}

// OptimizeAd analyzes an underperforming creative.
func (s *generationService) OptimizeAd(ctx context.Context, uid string, params domain.OptimizeParams) (*domain.OptimizerReport, error) {
	const op = "generation.optimize_ad"

	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkOptimizerPlan(ctx, uid); err != nil {
		return nil, err
	}

	report, err := s.copy.OptimizeAd(ctx, params)
	if err != nil {
		metrics.RecordAICall("copy", "error")
		return nil, mapProviderError(op, err)
	}
	metrics.RecordAICall("copy", "ok")
	metrics.OptimizerRuns.Inc()
	return report, nil
}

// GenerateFromReport turns an optimizer report into a fresh creative.
func (s *generationService) GenerateFromReport(ctx context.Context, uid string, report domain.OptimizerReport, aspectRatio string) (*domain.AdCreative, error) {
	const op = "generation.generate_from_report"

	if report.ImprovedHeadline == "" && report.ImprovedPrimaryText == "" {
		return nil, domain.Invalid(op, "Report carries no improved copy to generate from")
	}
	if err := s.consumeQuota(ctx, uid); err != nil {
		return nil, err
	}

	prompt := report.ImprovedImagePrompt
	if prompt == "" {
		prompt = "Studio product photograph, soft gradient background, negative space reserved for headline area"
	}

	imageURL, err := s.renderAndHost(ctx, uid, prompt, aspectRatio)
	if err != nil {
		return nil, err
	}

	return &domain.AdCreative{
		Copy: domain.AdCopy{
			Headline:    report.ImprovedHeadline,
			PrimaryText: report.ImprovedPrimaryText,
			CTA:         report.ImprovedCTA,
		},
		ImageURL: imageURL,
	}, nil
}

// UploadCreative stores a user-provided creative image.
func (s *generationService) UploadCreative(ctx context.Context, uid, filename, contentType string, data io.Reader, size int64) (string, error) {
	const op = "generation.upload_creative"

	if err := s.checkOptimizerPlan(ctx, uid); err != nil {
		return "", err
	}
	if size > MaxCreativeUploadSize {
		return "", domain.Errorf(domain.ETOOLARGE, op, "Creative exceeds the %dMB upload limit", MaxCreativeUploadSize/(1024*1024))
	}
	detected := storage.DetectContentType(contentType, filename, nil)
	if !storage.IsAllowedImageType(detected) {
		return "", domain.Invalid(op, "Unsupported image format")
	}

	raw, err := io.ReadAll(io.LimitReader(data, MaxCreativeUploadSize))
	if err != nil {
		return "", domain.Internal(err, op, "Could not read creative")
	}

	key := storage.CreativeKey(uid, filename)
	err = s.store.Put(ctx, key, bytes.NewReader(raw), storage.PutOptions{
		ContentType: detected,
		MaxSize:     MaxCreativeUploadSize,
	})
	if err != nil {
		return "", domain.Internal(err, op, "Could not store creative")
	}

	// Thumbnails are best-effort: the optimizer works off the full creative,
	// the thumbnail only feeds the library view.
	s.storeThumbnail(ctx, uid, key, raw)

	url, err := s.store.URL(ctx, key, hostedURLTTL)
	if err != nil {
		return "", domain.Internal(err, op, "Could not produce creative URL")
	}
	return url, nil
}

// storeThumbnail generates and stores a thumbnail next to the creative.
// Failures are logged, never surfaced.
func (s *generationService) storeThumbnail(ctx context.Context, uid, key string, raw []byte) {
	thumb, w, h, err := s.thumbs.GenerateThumbnail(bytes.NewReader(raw), thumbMaxWidth, thumbMaxHeight)
	if err != nil {
		s.logger.Debug("thumbnail generation skipped", "key", key, "error", err)
		return
	}

	thumbKey := storage.CreativeThumbKey(key)
	err = s.store.Put(ctx, thumbKey, bytes.NewReader(thumb), storage.PutOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		s.logger.Warn("thumbnail store failed", "key", thumbKey, "error", err)
		return
	}
	s.logger.Debug("thumbnail stored", "key", thumbKey, "width", w, "height", h)
}

// =============================================================================
// Helpers
// =============================================================================

// consumeQuota meters one generation. Admins bypass the cap entirely.
func (s *generationService) consumeQuota(ctx context.Context, uid string) error {
	claims, err := s.claims.FetchClaims(ctx, uid)
	if err == nil && claims.IsAdmin() {
		return nil
	}
	_, err = s.usage.Consume(ctx, uid)
	return err
}

// checkOptimizerPlan enforces the optimizer plan gate. Admins bypass it.
func (s *generationService) checkOptimizerPlan(ctx context.Context, uid string) error {
	const op = "generation.optimizer_gate"

	claims, err := s.claims.FetchClaims(ctx, uid)
	if err == nil && claims.IsAdmin() {
		return nil
	}

	sub, err := s.subs.Current(ctx, uid)
	if err != nil {
		return err
	}
	if !sub.PlanIncludes(OptimizerTiers...) {
		tiers := make([]string, len(OptimizerTiers))
		for i, t := range OptimizerTiers {
			tiers[i] = string(t)
		}
		return domain.PlanNotEligible(op, "The ad optimizer", tiers)
	}
	return nil
}

// renderAndHost generates the background image and stores it, returning the
// hosted URL.
func (s *generationService) renderAndHost(ctx context.Context, uid, prompt, aspectRatio string) (string, error) {
	const op = "generation.render_image"

	img, err := s.images.GenerateImage(ctx, ai.ImageParams{
		Prompt:      prompt,
		AspectRatio: aspectRatio,
	})
	if err != nil {
		metrics.RecordAICall("image", "error")
		return "", mapProviderError(op, err)
	}
	metrics.RecordAICall("image", "ok")

	key := storage.GeneratedImageKey(uid, img.ContentType)
	err = s.store.Put(ctx, key, bytes.NewReader(img.Data), storage.PutOptions{
		ContentType: img.ContentType,
	})
	if err != nil {
		return "", domain.Internal(err, op, "Could not store generated image")
	}

	url, err := s.store.URL(ctx, key, hostedURLTTL)
	if err != nil {
		return "", domain.Internal(err, op, "Could not produce image URL")
	}
	return url, nil
}

// aspectRatioForPlatform maps an ad platform to the image aspect ratio the
// generator should use.
func aspectRatioForPlatform(platform string) string {
	switch platform {
	case "ig_story", "ig_reel", "tiktok":
		return "9x16"
	case "fb_feed", "linkedin":
		return "16x9"
	default:
		return "1x1"
	}
}

// mapProviderError translates AI provider failures into domain errors.
func mapProviderError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case ai.IsRetryable(err):
		return domain.Wrap(err, domain.ERATELIMIT, op, "The AI provider is busy. Please try again shortly.")
	default:
		return domain.Internal(err, op, "Ad generation failed. Please try again.")
	}
}
