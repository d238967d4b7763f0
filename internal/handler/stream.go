// Package handler contains HTTP handlers for the AdForge application.
//
// This file implements the live subscription event stream. The client keeps
// one stream open and flips paid features on the moment the billing webhook
// lands, without polling /me.
//
// Route:
//   - GET /subscription/events -> Events (server-sent events)
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/adforge/adforge/internal/auth"
	"github.com/adforge/adforge/internal/domain"
	"github.com/adforge/adforge/internal/entitlement"
)

// StreamHandler serves live subscription state over server-sent events.
type StreamHandler struct {
	feed   *entitlement.Feed
	logger *slog.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(feed *entitlement.Feed, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		feed:   feed,
		logger: logger,
	}
}

// RegisterRoutes registers the event stream route on the provided mux.
func (h *StreamHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /subscription/events", requireUser(http.HandlerFunc(h.Events)))
}

// subscriptionEvent is one SSE payload.
type subscriptionEvent struct {
	Status domain.SubscriptionStatus `json:"status"`
	Tier   domain.SubscriptionTier   `json:"tier"`
	Active bool                      `json:"active"`
}

// Events streams subscription snapshots until the client disconnects. Each
// backend write produces one event; stale versions are already dropped by
// the feed.
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	rc := http.NewResponseController(w)

	snapshots, stop := h.feed.Subscribe(r.Context(), identity.UID)
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("subscription stream unsupported by transport", "error", err)
		return
	}

	for snap := range snapshots {
		if snap.Err != nil {
			h.logger.Warn("subscription stream ended",
				"uid", identity.UID, "error", snap.Err)
			return
		}

		payload, err := json.Marshal(subscriptionEvent{
			Status: snap.Record.Status,
			Tier:   snap.Record.Tier,
			Active: snap.Record.IsActive(),
		})
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
