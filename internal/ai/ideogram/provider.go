// Package ideogram implements the image provider against the Ideogram v3
// generation API.
package ideogram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/adforge/adforge/internal/ai"
)

const (
	// APIBaseURL is the Ideogram v3 generation endpoint.
	APIBaseURL = "https://api.ideogram.ai/v1/ideogram-v3/generate"

	// DefaultAspectRatio is used when the caller does not specify one.
	DefaultAspectRatio = "1x1"

	// DefaultRenderingSpeed selects Ideogram's standard quality/latency mode.
	DefaultRenderingSpeed = "DEFAULT"

	// MaxImageDownload caps the size of a fetched result image (20MB).
	MaxImageDownload = 20 * 1024 * 1024
)

// negativePrompt keeps every form of rendered text out of the background so
// the compositing engine owns all typography.
const negativePrompt = "text, letters, words, numbers, typography, captions, hashtags, emojis, " +
	"watermarks, logos, brandmarks, signage, packaging text, stickers, UI text, labels, handwriting"

// Config contains configuration for the Ideogram provider.
type Config struct {
	APIKey         string
	ProviderConfig ai.ProviderConfig
}

// Provider implements ai.ImageProvider using the Ideogram API.
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new Ideogram image provider.
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("ideogram API key is required")
	}
	if config.ProviderConfig.MaxRetries == 0 {
		config.ProviderConfig.MaxRetries = 3
	}
	if config.ProviderConfig.RetryBaseDelay == 0 {
		config.ProviderConfig.RetryBaseDelay = 1 * time.Second
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		config.ProviderConfig.RequestTimeout = 120 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.ProviderConfig.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// GenerateImage renders one background image for the prompt and returns its
// bytes.
func (p *Provider) GenerateImage(ctx context.Context, params ai.ImageParams) (*ai.ImageResult, error) {
	startTime := time.Now()

	if params.Prompt == "" {
		return nil, ai.WrapError("generate image", fmt.Errorf("prompt is required"))
	}
	aspectRatio := params.AspectRatio
	if aspectRatio == "" {
		aspectRatio = DefaultAspectRatio
	}

	var result *generateResponse
	var lastErr error
	for attempt := 1; attempt <= p.config.ProviderConfig.MaxRetries; attempt++ {
		result, lastErr = p.generate(ctx, params.Prompt, aspectRatio)
		if lastErr == nil {
			break
		}
		if !ai.IsRetryable(lastErr) || attempt >= p.config.ProviderConfig.MaxRetries {
			return nil, ai.WrapError("generate image", lastErr)
		}

		delay := p.config.ProviderConfig.RetryBaseDelay * time.Duration(1<<(attempt-1))
		p.logger.Info("Retrying image request", "attempt", attempt, "delay", delay, "error", lastErr)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if result == nil || len(result.Data) == 0 {
		return nil, ai.WrapError("generate image", fmt.Errorf("%w: no images returned", ai.EAIBadOutput))
	}

	data, contentType, err := p.download(ctx, result.Data[0].URL)
	if err != nil {
		return nil, ai.WrapError("download image", err)
	}

	return &ai.ImageResult{
		Data:        data,
		ContentType: contentType,
		Usage: ai.UsageInfo{
			Model:    "ideogram-v3",
			Duration: time.Since(startTime),
		},
	}, nil
}

// generate posts the multipart generation request.
func (p *Provider) generate(ctx context.Context, prompt, aspectRatio string) (*generateResponse, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := map[string]string{
		"prompt":          prompt,
		"negative_prompt": negativePrompt,
		"aspect_ratio":    aspectRatio,
		"rendering_speed": DefaultRenderingSpeed,
		"num_images":      "1",
	}
	for name, value := range fields {
		if err := form.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write form field: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, APIBaseURL, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	// The API requires exactly this header name.
	req.Header.Set("Api-Key", p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, ai.EAIUnavailable
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(resp.StatusCode, bodyBytes)
	}

	var out generateResponse
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ai.EAIBadOutput, err)
	}
	return &out, nil
}

// download fetches the generated image from its temporary URL.
func (p *Provider) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", ai.EAIUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image download failed (status %d)", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageDownload+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > MaxImageDownload {
		return nil, "", fmt.Errorf("image exceeds %d bytes", MaxImageDownload)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	return data, contentType, nil
}

func mapHTTPError(statusCode int, body []byte) error {
	var errResp errorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.EAIUnauthorized
	case http.StatusTooManyRequests:
		return ai.EAIRateLimit
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ai.EAIContentPolicy, errResp.Message)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return ai.EAIUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, errResp.Message)
	}
}

// API response types

type generateResponse struct {
	Data []generatedImage `json:"data"`
}

type generatedImage struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Message string `json:"message"`
}
