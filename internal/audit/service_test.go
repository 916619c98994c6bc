package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/odyssey-erp/ledger/internal/shared"
)

type stubAuditRepo struct {
	logs     []shared.AuditLog
	lastCall Query
}

func (s *stubAuditRepo) QueryAuditLogs(ctx context.Context, q Query) ([]shared.AuditLog, error) {
	s.lastCall = q
	var out []shared.AuditLog
	for _, log := range s.logs {
		if q.Match(log) {
			out = append(out, log)
		}
	}
	if q.Offset > len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func mockLog(at, action, entityID string) shared.AuditLog {
	ts, _ := time.Parse(time.RFC3339, at)
	return shared.AuditLog{Actor: "bursar", Action: action, Entity: "transaction", EntityID: entityID, At: ts, Meta: map[string]any{"number": "TXN-2026-000001"}}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubAuditRepo{logs: []shared.AuditLog{
		mockLog("2026-03-10T10:00:00Z", "transaction.post", "t1"),
		mockLog("2026-03-09T09:00:00Z", "transaction.approve", "t1"),
		mockLog("2026-03-08T08:00:00Z", "transaction.submit", "t1"),
	}}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("expected next page 2, got %+v", result.Paging)
	}
	if repo.lastCall.Limit != 3 || repo.lastCall.Offset != 0 || !repo.lastCall.Descending {
		t.Fatalf("unexpected query %+v", repo.lastCall)
	}
	if result.Rows[0].Number != "TXN-2026-000001" {
		t.Fatalf("expected number from meta, got %q", result.Rows[0].Number)
	}
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubAuditRepo{}
	if _, err := NewService(repo).Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 500}); err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if repo.lastCall.Limit != maxPageSize+1 {
		t.Fatalf("expected limit %d, got %d", maxPageSize+1, repo.lastCall.Limit)
	}
	if repo.lastCall.Offset != 2*maxPageSize {
		t.Fatalf("expected offset %d, got %d", 2*maxPageSize, repo.lastCall.Offset)
	}
}

func TestServiceHistoryFiltersEntity(t *testing.T) {
	repo := &stubAuditRepo{logs: []shared.AuditLog{
		mockLog("2026-03-08T08:00:00Z", "transaction.create", "t1"),
		mockLog("2026-03-08T09:00:00Z", "transaction.create", "t2"),
	}}
	rows, err := NewService(repo).History(context.Background(), "transaction", "t2")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(rows) != 1 || rows[0].EntityID != "t2" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if repo.lastCall.Limit != 0 {
		t.Fatalf("history must not be paged")
	}
}

func TestWriteCSV(t *testing.T) {
	data, err := WriteCSV([]TimelineRow{{At: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Actor: "a", Action: "transaction.post", Entity: "transaction", EntityID: "t1", Number: "TXN-2026-000001"}})
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(lines))
	}
	if lines[1] != "2026-01-02T03:04:05Z,a,transaction.post,transaction,t1,TXN-2026-000001" {
		t.Fatalf("unexpected row %q", lines[1])
	}
}
