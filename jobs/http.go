package jobs

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledger/internal/platform/httpx"
)

// QueueInspector reads queue state. *asynq.Inspector satisfies it.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler reports queue health over HTTP.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

type queueHealth struct {
	Queue     string  `json:"queue"`
	Paused    bool    `json:"paused"`
	Pending   int     `json:"pending"`
	Active    int     `json:"active"`
	Scheduled int     `json:"scheduled"`
	Retry     int     `json:"retry"`
	Failed    int     `json:"failed"`
	LatencyMS float64 `json:"latencyMs"`
}

// NewHandler builds the jobs handler. inspector may be nil when Redis is not
// configured; health then reports an empty queue.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	out := queueHealth{Queue: QueueDefault}
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, out)
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"queue": QueueDefault, "error": "queue unavailable"})
		return
	}
	if info != nil {
		out = queueHealth{
			Queue:     info.Queue,
			Paused:    info.Paused,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Failed:    info.Failed,
			LatencyMS: float64(info.Latency.Milliseconds()),
		}
	}
	httpx.JSON(w, http.StatusOK, out)
}
