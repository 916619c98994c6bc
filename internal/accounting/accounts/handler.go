package accounts

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/platform/httpx"
)

// Handler exposes the registry over JSON.
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

// MountRoutes registers account routes relative to the mount point.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Post("/seed", h.handleSeed)
	r.Get("/budget-alerts", h.handleBudgetAlerts)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleDelete)
		r.Get("/hierarchy", h.handleHierarchy)
		r.Get("/subtree", h.handleSubtree)
		r.Get("/rollup", h.handleRollup)
		r.Put("/parent", h.handleMove)
		r.Post("/activate", h.handleSetActive(true))
		r.Post("/deactivate", h.handleSetActive(false))
		r.Put("/budget", h.handleBudget)
	})
}

type createAccountRequest struct {
	InstitutionID    string              `json:"institutionId" validate:"required"`
	Code             string              `json:"accountCode" validate:"required,max=32"`
	Name             string              `json:"accountName" validate:"required,max=200"`
	Description      string              `json:"description"`
	Type             string              `json:"accountType" validate:"required"`
	Category         string              `json:"category" validate:"required"`
	SubCategory      string              `json:"subCategory"`
	ParentID         string              `json:"parentAccountId"`
	BudgetLimit      decimal.NullDecimal `json:"budgetLimit"`
	WarningThreshold decimal.NullDecimal `json:"warningThreshold"`
	BudgetPeriod     string              `json:"budgetPeriod"`
}

type moveAccountRequest struct {
	ParentID string `json:"parentAccountId"`
}

type budgetRequest struct {
	BudgetLimit      decimal.NullDecimal `json:"budgetLimit"`
	WarningThreshold decimal.NullDecimal `json:"warningThreshold"`
	BudgetPeriod     string              `json:"budgetPeriod"`
}

type seedRequest struct {
	InstitutionID string `json:"institutionId" validate:"required"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createAccountRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.service.CreateAccount(r.Context(), CreateInput{
		InstitutionID:    req.InstitutionID,
		Code:             req.Code,
		Name:             req.Name,
		Description:      req.Description,
		Type:             AccountType(strings.ToUpper(strings.TrimSpace(req.Type))),
		Category:         req.Category,
		SubCategory:      req.SubCategory,
		ParentID:         req.ParentID,
		BudgetLimit:      req.BudgetLimit,
		WarningThreshold: req.WarningThreshold,
		BudgetPeriod:     BudgetPeriod(strings.ToUpper(strings.TrimSpace(req.BudgetPeriod))),
		CreatedBy:        actor,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	institutionID, err := httpx.RequireQuery(r, "institution_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := ListFilter{
		InstitutionID: institutionID,
		Type:          AccountType(strings.ToUpper(strings.TrimSpace(q.Get("type")))),
		Category:      strings.ToUpper(strings.TrimSpace(q.Get("category"))),
		ParentID:      strings.TrimSpace(q.Get("parent_id")),
		RootsOnly:     q.Get("roots") == "true",
		ActiveOnly:    q.Get("active") == "true",
	}
	list, err := h.service.ListAccounts(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": list, "count": len(list)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) handleHierarchy(w http.ResponseWriter, r *http.Request) {
	path, err := h.service.Hierarchy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"path": path})
}

func (h *Handler) handleSubtree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.service.Subtree(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": tree})
}

func (h *Handler) handleRollup(w http.ResponseWriter, r *http.Request) {
	rollup, err := h.service.RollupBalance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rollup)
}

func (h *Handler) handleMove(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req moveAccountRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.service.MoveAccount(r.Context(), chi.URLParam(r, "id"), req.ParentID, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := httpx.RequireActor(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		account, err := h.service.SetActive(r.Context(), chi.URLParam(r, "id"), active, actor)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, account)
	}
}

func (h *Handler) handleBudget(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req budgetRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.service.UpdateBudget(r.Context(), chi.URLParam(r, "id"), BudgetInput{
		Limit:            req.BudgetLimit,
		WarningThreshold: req.WarningThreshold,
		Period:           BudgetPeriod(strings.ToUpper(strings.TrimSpace(req.BudgetPeriod))),
	}, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteAccount(r.Context(), chi.URLParam(r, "id"), actor); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSeed(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req seedRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.service.SeedDefaultChart(r.Context(), req.InstitutionID, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleBudgetAlerts(w http.ResponseWriter, r *http.Request) {
	institutionID, err := httpx.RequireQuery(r, "institution_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	alerts, err := h.service.BudgetAlerts(r.Context(), institutionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []BudgetAlert{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error("account request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	httpx.RespondError(w, err)
}
