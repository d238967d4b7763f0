// Package handler contains HTTP handlers for the AdForge application.
//
// This file implements the canvas composite API: flattening text blocks onto
// a background image server-side.
//
// Routes handled:
//   - POST /composite        -> Preview (flattened PNG back to the client)
//   - POST /composite/upload -> Compose (store the export, return its URL)
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/adforge/adforge/internal/auth"
	"github.com/adforge/adforge/internal/canvas"
	"github.com/adforge/adforge/internal/domain"
	"github.com/adforge/adforge/internal/service"
)

// CompositeHandler handles composite export requests.
type CompositeHandler struct {
	composite service.CompositeService
	logger    *slog.Logger
}

// NewCompositeHandler creates a new CompositeHandler.
func NewCompositeHandler(composite service.CompositeService, logger *slog.Logger) *CompositeHandler {
	return &CompositeHandler{
		composite: composite,
		logger:    logger,
	}
}

// RegisterRoutes registers composite routes on the provided mux.
func (h *CompositeHandler) RegisterRoutes(mux *http.ServeMux, requirePaid func(http.Handler) http.Handler) {
	mux.Handle("POST /composite", requirePaid(http.HandlerFunc(h.Preview)))
	mux.Handle("POST /composite/upload", requirePaid(http.HandlerFunc(h.Compose)))
}

// Compose flattens the posted blocks onto the posted background and returns
// the hosted URL of the exported PNG.
//
// The request is multipart/form-data with two parts:
//   - background: the image file
//   - blocks:     JSON array of text blocks
func (h *CompositeHandler) Compose(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	background, blocks, err := h.parseCompositeRequest(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	defer background.Close()

	url, err := h.composite.Compose(r.Context(), identity.UID, background, blocks)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Preview renders the composite and streams the PNG back without storing it.
func (h *CompositeHandler) Preview(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	background, blocks, err := h.parseCompositeRequest(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	defer background.Close()

	data, err := h.composite.Preview(r.Context(), background, blocks)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *CompositeHandler) parseCompositeRequest(r *http.Request) (multipartFile, []canvas.TextBlock, error) {
	const op = "handler.parse_composite"

	if err := r.ParseMultipartForm(service.MaxBackgroundSize); err != nil {
		return nil, nil, domain.Invalid(op, "Request must be multipart/form-data")
	}

	file, _, err := r.FormFile("background")
	if err != nil {
		return nil, nil, domain.Invalid(op, "Missing background image")
	}

	blocksJSON := r.FormValue("blocks")
	var blocks []canvas.TextBlock
	if blocksJSON != "" {
		if err := json.Unmarshal([]byte(blocksJSON), &blocks); err != nil {
			file.Close()
			return nil, nil, domain.Invalid(op, "Blocks payload is not valid JSON")
		}
	}

	return file, blocks, nil
}

// multipartFile is the subset of multipart.File the composite flow needs.
type multipartFile interface {
	Read(p []byte) (int, error)
	Close() error
}
