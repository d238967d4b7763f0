// Package handler contains HTTP handlers for the AdForge application.
//
// This file implements creative uploads.
//
// Route:
//   - POST /upload-creatives -> UploadCreatives
package handler

import (
	"log/slog"
	"net/http"

	"github.com/adforge/adforge/internal/auth"
	"github.com/adforge/adforge/internal/domain"
	"github.com/adforge/adforge/internal/metrics"
	"github.com/adforge/adforge/internal/service"
)

// maxUploadBatch caps how many creatives one request may carry.
const maxUploadBatch = 10

// UploadHandler handles creative image uploads.
type UploadHandler struct {
	generation service.GenerationService
	logger     *slog.Logger
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(generation service.GenerationService, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		generation: generation,
		logger:     logger,
	}
}

// RegisterRoutes registers upload routes on the provided mux.
func (h *UploadHandler) RegisterRoutes(mux *http.ServeMux, requirePaid func(http.Handler) http.Handler) {
	mux.Handle("POST /upload-creatives", requirePaid(http.HandlerFunc(h.UploadCreatives)))
}

type uploadedCreative struct {
	Filename string `json:"filename"`
	URL      string `json:"url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// UploadCreatives stores one or more creative images posted as multipart
// "files" parts. Per-file failures are reported alongside successes so one
// bad file does not sink the batch.
func (h *UploadHandler) UploadCreatives(w http.ResponseWriter, r *http.Request) {
	const op = "handler.upload_creatives"

	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if err := r.ParseMultipartForm(service.MaxCreativeUploadSize); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Request must be multipart/form-data"))
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No files in request"))
		return
	}
	if len(files) > maxUploadBatch {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Too many files in one request"))
		return
	}

	results := make([]uploadedCreative, 0, len(files))
	for _, fh := range files {
		result := uploadedCreative{Filename: fh.Filename}

		file, err := fh.Open()
		if err != nil {
			result.Error = "Could not read file"
			results = append(results, result)
			continue
		}

		url, err := h.generation.UploadCreative(r.Context(), identity.UID, fh.Filename, fh.Header.Get("Content-Type"), file, fh.Size)
		file.Close()
		if err != nil {
			h.logger.Info("creative upload rejected",
				"uid", identity.UID, "filename", fh.Filename, "error", err)
			result.Error = domain.ErrorMessage(err)
			metrics.CreativesUploaded.WithLabelValues("rejected").Inc()
		} else {
			result.URL = url
			metrics.CreativesUploaded.WithLabelValues("accepted").Inc()
		}
		results = append(results, result)
	}

	writeJSON(w, http.StatusOK, map[string]any{"creatives": results})
}
