package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledger/internal/accounting/reports"
	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
)

// IntegrityChecker recomputes balances for one institution.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context, institutionID string) (reports.IntegrityReport, error)
}

// InstitutionLister enumerates institutions that own accounts.
type InstitutionLister interface {
	InstitutionIDs(ctx context.Context) ([]string, error)
}

// IntegrityJob runs the balance integrity check per institution.
type IntegrityJob struct {
	Checker      IntegrityChecker
	Institutions InstitutionLister
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
	clock        func() time.Time
}

// NewIntegrityJob initialises the integrity handler.
func NewIntegrityJob(checker IntegrityChecker, institutions InstitutionLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{
		Checker:      checker,
		Institutions: institutions,
		Logger:       logger,
		Metrics:      metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the check. Drifts are reported, never repaired.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Checker == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	payload, err := decodeScope(t)
	if err != nil {
		return err
	}

	start := j.now()
	run := j.metrics().Start(TaskLedgerIntegrity)
	defer func() {
		resultErr = run.Finish(resultErr)
	}()

	institutions, err := scope(ctx, j.Institutions, payload)
	if err != nil {
		j.logger().Error("list institutions", slog.Any("error", err))
		return err
	}

	drifted := 0
	var errs []error
	for _, institutionID := range institutions {
		logger := j.logger().With(slog.String("institution_id", institutionID))
		run.Institution()
		report, err := j.Checker.CheckIntegrity(ctx, institutionID)
		if err != nil {
			logger.Error("integrity check failed", slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		for _, d := range report.Drifts {
			logger.Warn("account balance drift",
				slog.String("account_id", d.AccountID),
				slog.String("account_code", d.Code),
				slog.String("stored_debit", d.StoredDebit.String()),
				slog.String("expected_debit", d.ExpectedDebit.String()),
				slog.String("stored_credit", d.StoredCredit.String()),
				slog.String("expected_credit", d.ExpectedCredit.String()),
			)
		}
		for _, u := range report.Unbalanced {
			logger.Warn("applied transaction unbalanced", slog.String("transaction_id", u.TransactionID), slog.String("number", u.Number))
		}
		j.metrics().AddAnomalies("balance_drift", institutionID, len(report.Drifts))
		j.metrics().AddAnomalies("unbalanced_transaction", institutionID, len(report.Unbalanced))
		if !report.OK {
			drifted++
		}
	}

	j.logger().Info("completed ledger integrity check",
		slog.Int("institutions", len(institutions)),
		slog.Int("with_anomalies", drifted),
		slog.Duration("duration", time.Since(start)),
	)
	return errors.Join(errs...)
}

func (j *IntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *IntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *IntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// scope resolves the institutions a job run covers.
func scope(ctx context.Context, lister InstitutionLister, payload ScopePayload) ([]string, error) {
	if payload.InstitutionID != "" {
		return []string{payload.InstitutionID}, nil
	}
	if lister == nil {
		return nil, errors.New("no institution given and no lister configured")
	}
	return lister.InstitutionIDs(ctx)
}
