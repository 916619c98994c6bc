package transactions

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/audit"
	"github.com/odyssey-erp/ledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
)

// IdempotencyHeader carries the client's retry key on create.
const IdempotencyHeader = "Idempotency-Key"

const maxPerPage = 200

// HistoryReader returns the audit trail of one entity.
type HistoryReader interface {
	History(ctx context.Context, entity, entityID string) ([]audit.TimelineRow, error)
}

// Handler exposes the engine over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
	history HistoryReader
}

// NewHandler builds a Handler instance. history may be nil.
func NewHandler(logger *slog.Logger, service *Service, history HistoryReader) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, history: history}
}

// MountRoutes registers transaction routes relative to the mount point.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		r.Get("/history", h.handleHistory)
		r.Post("/submit", h.handleSubmit)
		r.Post("/approve", h.handleApprove)
		r.Post("/reject", h.handleReject)
		r.Post("/post", h.handlePost)
		r.Post("/reverse", h.handleReverse)
		r.Post("/cancel", h.handleCancel)
		r.Post("/reconcile", h.handleReconcile)
	})
}

type createTransactionRequest struct {
	InstitutionID string           `json:"institutionId" validate:"required"`
	Type          string           `json:"transactionType" validate:"required"`
	Category      string           `json:"category"`
	Description   string           `json:"description" validate:"required,max=500"`
	Reference     string           `json:"reference" validate:"max=100"`
	Date          string           `json:"transactionDate"`
	Entries       journals.Entries `json:"journalEntries"`
	Relations
}

type updateTransactionRequest struct {
	Category    string           `json:"category"`
	Description string           `json:"description" validate:"required,max=500"`
	Reference   string           `json:"reference" validate:"max=100"`
	Date        string           `json:"transactionDate"`
	Entries     journals.Entries `json:"journalEntries"`
	Relations
}

type commentRequest struct {
	Comments string `json:"comments" validate:"max=1000"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type reverseRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type reconcileRequest struct {
	BankStatementID string `json:"bankStatementId" validate:"required"`
}

type listResponse struct {
	Transactions []Transaction             `json:"transactions"`
	Pagination   internalShared.Pagination `json:"pagination"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createTransactionRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := httpx.ParseDate("transactionDate", req.Date, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	txn, err := h.service.Create(r.Context(), CreateInput{
		InstitutionID:  req.InstitutionID,
		Type:           Type(req.Type),
		Category:       req.Category,
		Description:    req.Description,
		Reference:      req.Reference,
		Date:           date,
		Entries:        req.Entries,
		Relations:      req.Relations,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
		CreatedBy:      actor,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	institutionID, err := httpx.RequireQuery(r, "institution_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := httpx.QueryDate(r, "from", false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := httpx.QueryDate(r, "to", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := httpx.QueryInt(r, "page", 1)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	perPage, err := httpx.QueryInt(r, "per_page", 50)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	filter := Filter{
		InstitutionID: institutionID,
		AccountID:     strings.TrimSpace(r.URL.Query().Get("account_id")),
		From:          from,
		To:            to,
		Query:         strings.TrimSpace(r.URL.Query().Get("q")),
	}
	for _, s := range httpx.QueryList(r, "status") {
		filter.Statuses = append(filter.Statuses, Status(s))
	}
	for _, t := range httpx.QueryList(r, "type") {
		filter.Types = append(filter.Types, Type(t))
	}
	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	paging := internalShared.NewPagination(page, perPage, len(list))
	start, end := paging.Bounds()
	httpx.JSON(w, http.StatusOK, listResponse{Transactions: append([]Transaction{}, list[start:end]...), Pagination: paging})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	txn, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req updateTransactionRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := httpx.ParseDate("transactionDate", req.Date, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	txn, err := h.service.UpdateDraft(r.Context(), chi.URLParam(r, "id"), UpdateInput{
		Category:    req.Category,
		Description: req.Description,
		Reference:   req.Reference,
		Date:        date,
		Entries:     req.Entries,
		Relations:   req.Relations,
		UpdatedBy:   actor,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), actor); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.service.Get(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.history.History(r.Context(), "transaction", id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": rows})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id, actor string) (any, error) {
		return h.service.Submit(ctx, id, actor)
	})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := httpx.BindOptional(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.transition(w, r, func(ctx context.Context, id, actor string) (any, error) {
		return h.service.Approve(ctx, id, actor, req.Comments)
	})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := httpx.BindOptional(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.transition(w, r, func(ctx context.Context, id, actor string) (any, error) {
		return h.service.Reject(ctx, id, actor, req.Comments)
	})
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id, actor string) (any, error) {
		return h.service.Post(ctx, id, actor)
	})
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.transition(w, r, func(ctx context.Context, id, actor string) (any, error) {
		return h.service.Reverse(ctx, id, req.Reason, actor)
	})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := httpx.BindOptional(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.transition(w, r, func(ctx context.Context, id, actor string) (any, error) {
		return h.service.Cancel(ctx, id, actor, req.Reason)
	})
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.transition(w, r, func(ctx context.Context, id, actor string) (any, error) {
		return h.service.Reconcile(ctx, id, req.BankStatementID, actor)
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actor string) (any, error)) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := fn(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error("transaction request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("transaction_id", chi.URLParam(r, "id")),
			slog.Any("error", err),
		)
	}
	httpx.RespondError(w, err)
}
