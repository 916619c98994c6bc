package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/ledger/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Repository reads stored audit logs.
type Repository interface {
	QueryAuditLogs(ctx context.Context, q Query) ([]shared.AuditLog, error)
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// Service serves the audit trail.
type Service struct {
	repo Repository
}

// NewService builds the audit trail service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit records, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	q := toQuery(filters)
	q.Offset = (page - 1) * pageSize
	q.Limit = pageSize + 1
	q.Descending = true
	logs, err := s.repo.QueryAuditLogs(ctx, q)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(logs) > pageSize
	if hasNext {
		logs = logs[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: mapRows(logs), Paging: paging}, nil
}

// History returns every record of one entity, oldest first.
func (s *Service) History(ctx context.Context, entity, entityID string) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	logs, err := s.repo.QueryAuditLogs(ctx, Query{Entity: entity, EntityID: entityID})
	if err != nil {
		return nil, err
	}
	return mapRows(logs), nil
}

// Export returns the whole filtered timeline without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	q := toQuery(filters)
	q.Descending = true
	logs, err := s.repo.QueryAuditLogs(ctx, q)
	if err != nil {
		return nil, err
	}
	return mapRows(logs), nil
}

func toQuery(filters TimelineFilters) Query {
	return Query{
		From:     filters.From,
		To:       filters.To,
		Actor:    strings.TrimSpace(filters.Actor),
		Entity:   strings.TrimSpace(filters.Entity),
		EntityID: strings.TrimSpace(filters.EntityID),
		Action:   strings.TrimSpace(filters.Action),
	}
}

func mapRows(logs []shared.AuditLog) []TimelineRow {
	rows := make([]TimelineRow, 0, len(logs))
	for _, log := range logs {
		number, _ := log.Meta["number"].(string)
		rows = append(rows, TimelineRow{
			At:       log.At,
			Actor:    log.Actor,
			Action:   log.Action,
			Entity:   log.Entity,
			EntityID: log.EntityID,
			Number:   number,
			Meta:     log.Meta,
		})
	}
	return rows
}

// Match reports whether log satisfies the query filters, ignoring paging.
func (q Query) Match(log shared.AuditLog) bool {
	switch {
	case !q.From.IsZero() && log.At.Before(q.From):
		return false
	case !q.To.IsZero() && log.At.After(q.To):
		return false
	case q.Actor != "" && log.Actor != q.Actor:
		return false
	case q.Entity != "" && log.Entity != q.Entity:
		return false
	case q.EntityID != "" && log.EntityID != q.EntityID:
		return false
	case q.Action != "" && log.Action != q.Action:
		return false
	}
	return true
}
