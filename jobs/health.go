package jobs

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/account-consolidation/internal/platform/httpx"
)

// QueueStats summarises the state of the consolidation queue.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reads the queue counters.
func InspectQueue(inspector *asynq.Inspector, queue string) (QueueStats, error) {
	stats := QueueStats{Queue: queue}
	info, err := inspector.GetQueueInfo(queue)
	if err != nil {
		return QueueStats{}, err
	}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// Handler exposes the queue over HTTP.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
	queue     string
}

// NewHandler constructs the HTTP handler. A nil inspector reports an empty queue.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger, queue string) *Handler {
	if queue == "" {
		queue = QueueDefault
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger, queue: queue}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, QueueStats{Queue: h.queue})
		return
	}
	stats, err := InspectQueue(h.inspector, h.queue)
	if err != nil {
		h.logger.Warn("jobs health", slog.String("queue", h.queue), slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue unavailable", "The consolidation queue could not be inspected.")
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}
