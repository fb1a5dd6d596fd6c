// Package webhook receives provider status callbacks, verifies their
// signatures, and hands the normalized reports to reconciliation.
package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/edupipe/edupipe/internal/provider/transcode"
	"github.com/edupipe/edupipe/internal/reconcile"
)

// maxBodySize bounds webhook payloads. Provider callbacks are small; a
// larger body is malformed or hostile.
const maxBodySize = 1 << 20

// Handler serves the provider webhook endpoints.
type Handler struct {
	transcoder transcode.Transcoder
	reconciler *reconcile.Reconciler
	log        *zap.Logger
}

// NewHandler creates a webhook Handler.
func NewHandler(t transcode.Transcoder, r *reconcile.Reconciler, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{transcoder: t, reconciler: r, log: log}
}

// Routes mounts the webhook endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/webhooks/transcoding", h.handleTranscoding)
}

// handleTranscoding processes one provider callback. Unknown uids and
// replayed terminal reports are acknowledged with 200 so the provider
// stops retrying; only signature, parse, and storage failures are
// non-2xx.
func (h *Handler) handleTranscoding(w http.ResponseWriter, r *http.Request) {
	adapter, ok := h.transcoder.(transcode.WebhookAdapter)
	if !ok {
		writeJSON(w, http.StatusNotImplemented, map[string]any{
			"error": "active provider does not deliver webhooks",
		})
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unreadable body"})
		return
	}

	if err := adapter.VerifySignature(raw, r.Header); err != nil {
		h.log.Warn("webhook signature rejected",
			zap.String("remote", r.RemoteAddr), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid signature"})
		return
	}

	report, err := adapter.ParseWebhook(raw)
	if err != nil {
		h.log.Warn("webhook payload rejected", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}

	outcome, err := h.reconciler.Apply(r.Context(), report)
	if err != nil {
		h.log.Error("webhook reconciliation failed",
			zap.String("provider_uid", report.ProviderUID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "reconciliation failed"})
		return
	}

	h.log.Info("webhook processed",
		zap.String("provider_uid", report.ProviderUID),
		zap.String("status", string(report.Status)),
		zap.Bool("applied", outcome.Applied),
		zap.String("reason", outcome.Reason))

	writeJSON(w, http.StatusOK, map[string]any{
		"received": true,
		"applied":  outcome.Applied,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
