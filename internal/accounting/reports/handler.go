package reports

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/ledger/internal/accounting/transactions"
	"github.com/odyssey-erp/ledger/internal/platform/httpx"
)

// Handler exposes read-only reports over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes relative to the mount point.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/statistics", h.handleStatistics)
	r.Get("/unbalanced", h.handleUnbalanced)
	r.Get("/pending", h.handlePending)
	r.Get("/search", h.handleSearch)
	r.Get("/trial-balance", h.handleTrialBalance)
	r.Get("/income-statement", h.handleIncomeStatement)
	r.Get("/balance-sheet", h.handleBalanceSheet)
	r.Get("/integrity", h.handleIntegrity)
	r.Get("/accounts/{id}/statement", h.handleStatement)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	institutionID, from, to, ok := h.scope(w, r)
	if !ok {
		return
	}
	stats, err := h.service.Statistics(r.Context(), institutionID, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) handleUnbalanced(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Unbalanced(r.Context(), r.URL.Query().Get("institution_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": list})
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.PendingApproval(r.Context(), r.URL.Query().Get("institution_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": list})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var statuses []transactions.Status
	for _, s := range httpx.QueryList(r, "status") {
		statuses = append(statuses, transactions.Status(s))
	}
	list, err := h.service.Search(r.Context(), r.URL.Query().Get("institution_id"), r.URL.Query().Get("q"), statuses)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": list})
}

func (h *Handler) handleTrialBalance(w http.ResponseWriter, r *http.Request) {
	tb, err := h.service.TrialBalance(r.Context(), r.URL.Query().Get("institution_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) handleIncomeStatement(w http.ResponseWriter, r *http.Request) {
	institutionID, from, to, ok := h.scope(w, r)
	if !ok {
		return
	}
	pl, err := h.service.IncomeStatement(r.Context(), institutionID, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) handleBalanceSheet(w http.ResponseWriter, r *http.Request) {
	bs, err := h.service.BalanceSheet(r.Context(), r.URL.Query().Get("institution_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bs)
}

func (h *Handler) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.CheckIntegrity(r.Context(), r.URL.Query().Get("institution_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request) {
	_, from, to, ok := h.scope(w, r)
	if !ok {
		return
	}
	st, err := h.service.AccountStatement(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

// scope reads institution_id, from, and to. to covers the whole day when
// given as a plain date.
func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (institutionID string, from, to time.Time, ok bool) {
	from, err := httpx.QueryDate(r, "from", false)
	if err != nil {
		h.fail(w, r, err)
		return "", time.Time{}, time.Time{}, false
	}
	to, err = httpx.QueryDate(r, "to", true)
	if err != nil {
		h.fail(w, r, err)
		return "", time.Time{}, time.Time{}, false
	}
	return strings.TrimSpace(r.URL.Query().Get("institution_id")), from, to, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error("report request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	httpx.RespondError(w, err)
}
