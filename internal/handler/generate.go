// Package handler contains HTTP handlers for the AdForge application.
//
// This file implements the ad generation API.
//
// Routes handled:
//   - POST /generate-ad             -> GenerateAd
//   - POST /optimize-ad             -> OptimizeAd
//   - POST /generate-from-optimizer -> GenerateFromOptimizer
package handler

import (
	"log/slog"
	"net/http"

	"github.com/adforge/adforge/internal/auth"
	"github.com/adforge/adforge/internal/domain"
	"github.com/adforge/adforge/internal/service"
)

// GenerateHandler handles ad generation and optimization requests.
type GenerateHandler struct {
	generation service.GenerationService
	logger     *slog.Logger
}

// NewGenerateHandler creates a new GenerateHandler.
func NewGenerateHandler(generation service.GenerationService, logger *slog.Logger) *GenerateHandler {
	return &GenerateHandler{
		generation: generation,
		logger:     logger,
	}
}

// RegisterRoutes registers generation routes on the provided mux.
// All routes require an active subscription.
func (h *GenerateHandler) RegisterRoutes(mux *http.ServeMux, requirePaid func(http.Handler) http.Handler) {
	mux.Handle("POST /generate-ad", requirePaid(http.HandlerFunc(h.GenerateAd)))
	mux.Handle("POST /optimize-ad", requirePaid(http.HandlerFunc(h.OptimizeAd)))
	mux.Handle("POST /generate-from-optimizer", requirePaid(http.HandlerFunc(h.GenerateFromOptimizer)))
}

// GenerateAd produces a complete ad creative from a brief.
func (h *GenerateHandler) GenerateAd(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var params domain.GenerateParams
	if err := decodeJSON(r, &params); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	creative, err := h.generation.GenerateAd(r.Context(), identity.UID, params)
	if err != nil {
		ValidationErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, creative)
}

// OptimizeAd analyzes an underperforming creative and returns a report.
func (h *GenerateHandler) OptimizeAd(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var params domain.OptimizeParams
	if err := decodeJSON(r, &params); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	report, err := h.generation.OptimizeAd(r.Context(), identity.UID, params)
	if err != nil {
		ValidationErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// generateFromOptimizerRequest carries an optimizer report back for regeneration.
type generateFromOptimizerRequest struct {
	Report      domain.OptimizerReport `json:"report"`
	AspectRatio string                 `json:"aspect_ratio"`
}

// GenerateFromOptimizer builds a fresh creative from an optimizer report.
func (h *GenerateHandler) GenerateFromOptimizer(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req generateFromOptimizerRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "1x1"
	}

	creative, err := h.generation.GenerateFromReport(r.Context(), identity.UID, req.Report, req.AspectRatio)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, creative)
}
