// Package admin exposes the operational read/repair surface over the job
// store: job search, per-queue stats, and manual retry of failed jobs.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/edupipe/edupipe/internal/core"
	"github.com/edupipe/edupipe/internal/security"
)

const defaultListLimit = 50

// Handler serves the admin endpoints.
type Handler struct {
	storage core.Storage
	log     *zap.Logger
}

// NewHandler creates an admin Handler.
func NewHandler(s core.Storage, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{storage: s, log: log}
}

// Routes mounts the admin endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/admin/jobs", h.handleListJobs)
	r.Get("/admin/jobs/stats", h.handleQueueStats)
	r.Post("/admin/jobs/{id}/retry", h.handleRetryJob)
}

type jobView struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Queue       string          `json:"queue"`
	Status      core.JobStatus  `json:"status"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	Args        json.RawMessage `json:"args,omitempty"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

func toView(j *core.Job) jobView {
	return jobView{
		ID:          j.ID,
		Type:        j.Type,
		Queue:       j.Queue,
		Status:      j.Status,
		Attempt:     j.Attempt,
		MaxAttempts: j.MaxAttempts,
		LastError:   security.SanitizeErrorMessage(j.LastError),
		Args:        json.RawMessage(j.Args),
		CreatedAt:   j.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:   j.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// handleListJobs searches jobs filtered by status, queue, and type, with
// limit/offset pagination.
func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := core.JobFilter{
		Status: core.JobStatus(q.Get("status")),
		Queue:  q.Get("queue"),
		Type:   q.Get("type"),
		Limit:  defaultListLimit,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "limit must be 1-500"})
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "offset must be >= 0"})
			return
		}
		filter.Offset = n
	}

	found, total, err := h.storage.SearchJobs(r.Context(), filter)
	if err != nil {
		h.log.Error("job search failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "search failed"})
		return
	}

	views := make([]jobView, 0, len(found))
	for _, j := range found {
		views = append(views, toView(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   views,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// handleQueueStats returns per-queue job counts grouped by status.
func (h *Handler) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.storage.GetQueueStats(r.Context())
	if err != nil {
		h.log.Error("queue stats failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "stats failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queues": stats})
}

// handleRetryJob moves one failed job back to pending with a fresh
// attempt counter. Only failed jobs are eligible.
func (h *Handler) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := h.storage.RetryJob(r.Context(), id)
	switch {
	case errors.Is(err, core.ErrJobNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "job not found"})
		return
	case errors.Is(err, core.ErrJobNotRetriable):
		writeJSON(w, http.StatusConflict, map[string]any{"error": "job is not in a failed state"})
		return
	case err != nil:
		h.log.Error("job retry failed", zap.String("job_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "retry failed"})
		return
	}

	h.log.Info("job requeued by operator",
		zap.String("job_id", job.ID), zap.String("type", job.Type))
	writeJSON(w, http.StatusOK, map[string]any{"job": toView(job)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
