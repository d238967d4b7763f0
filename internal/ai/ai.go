// Package ai defines the provider interfaces for ad copy generation, creative
// optimization, and image generation, plus the shared error taxonomy.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adforge/adforge/internal/domain"
)

// CopyProvider generates and optimizes ad copy.
type CopyProvider interface {
	// GenerateAd produces ad copy plus an image prompt for the brief.
	GenerateAd(ctx context.Context, params domain.GenerateParams) (*CopyResult, error)

	// OptimizeAd reviews an underperforming creative and recommends changes.
	OptimizeAd(ctx context.Context, params domain.OptimizeParams) (*domain.OptimizerReport, error)
}

// ImageProvider renders a background image from a text prompt.
type ImageProvider interface {
	// GenerateImage returns raw image bytes for the prompt.
	GenerateImage(ctx context.Context, params ImageParams) (*ImageResult, error)
}

// CopyResult is the structured output of ad copy generation.
type CopyResult struct {
	Copy        domain.AdCopy // headline, primary text, CTA
	ImagePrompt string        // prompt for the image provider
	Usage       UsageInfo
}

// ImageParams describes the image to generate.
type ImageParams struct {
	Prompt      string
	AspectRatio string // e.g. "1x1", "9x16"; provider-specific default when empty
	Style       string // optional style hint
}

// ImageResult is a generated image plus its media type.
type ImageResult struct {
	Data        []byte
	ContentType string
	Usage       UsageInfo
}

// UsageInfo tracks API usage for billing and monitoring.
type UsageInfo struct {
	Model        string        // AI model used
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	Duration     time.Duration // Request duration
}

// ProviderConfig contains common configuration for AI providers.
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for AI provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIBadOutput indicates the model returned output that could not be parsed
	EAIBadOutput = errors.New("ai provider returned malformed output")

	// EAIContentPolicy indicates the request violates content policy
	EAIContentPolicy = errors.New("request violates content policy")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}
