package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
)

// BudgetAlertRoutingKey is the event published per alerting account.
const BudgetAlertRoutingKey = "ledger.budget.alert"

// BudgetAlertSource lists accounts approaching or exceeding their budget.
type BudgetAlertSource interface {
	BudgetAlerts(ctx context.Context, institutionID string) ([]accounts.BudgetAlert, error)
}

// Publisher emits JSON events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// BudgetAlertEvent is the body of a ledger.budget.alert event.
type BudgetAlertEvent struct {
	InstitutionID string               `json:"institutionId"`
	DetectedAt    time.Time            `json:"detectedAt"`
	Alert         accounts.BudgetAlert `json:"alert"`
}

// BudgetAlertJob publishes budget alerts for each institution.
type BudgetAlertJob struct {
	Alerts       BudgetAlertSource
	Institutions InstitutionLister
	Events       Publisher
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
	clock        func() time.Time
}

// NewBudgetAlertJob initialises the budget alert handler.
func NewBudgetAlertJob(alerts BudgetAlertSource, institutions InstitutionLister, events Publisher, logger *slog.Logger, metrics *jobmetrics.Metrics) *BudgetAlertJob {
	return &BudgetAlertJob{
		Alerts:       alerts,
		Institutions: institutions,
		Events:       events,
		Logger:       logger,
		Metrics:      metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle scans budgets and publishes one event per alert.
func (j *BudgetAlertJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Alerts == nil || j.Events == nil {
		return errors.New("budget alerts: handler not configured")
	}
	payload, err := decodeScope(t)
	if err != nil {
		return err
	}

	run := j.metrics().Start(TaskLedgerBudgetAlerts)
	defer func() {
		resultErr = run.Finish(resultErr)
	}()

	institutions, err := scope(ctx, j.Institutions, payload)
	if err != nil {
		j.logger().Error("list institutions", slog.Any("error", err))
		return err
	}

	now := j.now()
	published := 0
	var errs []error
	for _, institutionID := range institutions {
		run.Institution()
		alerts, err := j.Alerts.BudgetAlerts(ctx, institutionID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		exceeded := 0
		for _, alert := range alerts {
			if alert.Status == accounts.BudgetStatusExceeded {
				exceeded++
			}
			event := BudgetAlertEvent{InstitutionID: institutionID, DetectedAt: now, Alert: alert}
			if err := j.Events.Publish(ctx, BudgetAlertRoutingKey, event); err != nil {
				j.logger().Warn("publish budget alert",
					slog.String("institution_id", institutionID),
					slog.String("account_id", alert.AccountID),
					slog.Any("error", err),
				)
				errs = append(errs, err)
				continue
			}
			published++
		}
		j.metrics().AddAnomalies("budget_exceeded", institutionID, exceeded)
	}

	j.logger().Info("completed budget alert scan",
		slog.Int("institutions", len(institutions)),
		slog.Int("published", published),
	)
	return errors.Join(errs...)
}

func (j *BudgetAlertJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerBudgetAlerts))
	}
	return slog.Default().With(slog.String("job", TaskLedgerBudgetAlerts))
}

func (j *BudgetAlertJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *BudgetAlertJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
