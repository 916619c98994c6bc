package jobs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity replays journal lines against stored balances.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskLedgerBudgetAlerts publishes alerts for accounts near their budget.
	TaskLedgerBudgetAlerts = "ledger:budget_alerts"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ScopePayload limits a ledger job to one institution. Empty means all.
type ScopePayload struct {
	InstitutionID string `json:"institution_id,omitempty"`
}

// NewIntegrityTask builds a TaskLedgerIntegrity task.
func NewIntegrityTask(institutionID string) (*asynq.Task, error) {
	return newScopedTask(TaskLedgerIntegrity, institutionID)
}

// NewBudgetAlertTask builds a TaskLedgerBudgetAlerts task.
func NewBudgetAlertTask(institutionID string) (*asynq.Task, error) {
	return newScopedTask(TaskLedgerBudgetAlerts, institutionID)
}

// NewTask builds a ledger task by type name, as accepted by the CLI.
func NewTask(name, institutionID string) (*asynq.Task, error) {
	switch strings.TrimSpace(name) {
	case TaskLedgerIntegrity, "integrity":
		return NewIntegrityTask(institutionID)
	case TaskLedgerBudgetAlerts, "budget_alerts", "budget-alerts":
		return NewBudgetAlertTask(institutionID)
	default:
		return nil, fmt.Errorf("jobs: unknown task %q", name)
	}
}

func newScopedTask(taskType, institutionID string) (*asynq.Task, error) {
	data, err := json.Marshal(ScopePayload{InstitutionID: strings.TrimSpace(institutionID)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

func decodeScope(t *asynq.Task) (ScopePayload, error) {
	var payload ScopePayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return payload, nil
}
