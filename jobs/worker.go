package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// WorkerConfig configures the ledger worker process. Location is the time
// zone of cron specs and defaults to UTC.
type WorkerConfig struct {
	Redis       asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Location    *time.Location
}

// Worker consumes ledger tasks and, when any cron entry is registered, runs
// the scheduler next to the server.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
	redis     asynq.RedisClientOpt
	location  *time.Location
}

// NewWorker builds a Worker. Handlers and cron entries are added before Run.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	w := &Worker{mux: asynq.NewServeMux(), logger: logger, redis: cfg.Redis, location: cfg.Location}
	w.server = asynq.NewServer(cfg.Redis, asynq.Config{
		Concurrency:     cfg.Concurrency,
		Queues:          map[string]int{QueueDefault: 1},
		Logger:          asynqLogger{logger: logger},
		ShutdownTimeout: 30 * time.Second,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error("task failed",
				slog.String("task", task.Type()),
				slog.Int("retry", retried),
				slog.Int("max_retry", maxRetry),
				slog.Any("error", err),
			)
		}),
	})
	w.mux.Use(w.logTask)
	return w
}

// Handle routes a task type to fn.
func (w *Worker) Handle(taskType string, fn asynq.HandlerFunc) {
	w.mux.HandleFunc(taskType, fn)
}

// Schedule enqueues task on the cron spec.
func (w *Worker) Schedule(spec string, task *asynq.Task, opts ...asynq.Option) error {
	if w.scheduler == nil {
		w.scheduler = asynq.NewScheduler(w.redis, &asynq.SchedulerOpts{
			Location: w.location,
			Logger:   asynqLogger{logger: w.logger},
		})
	}
	id, err := w.scheduler.Register(spec, task, opts...)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", task.Type(), err)
	}
	w.logger.Info("cron registered", slog.String("task", task.Type()), slog.String("spec", spec), slog.String("entry_id", id))
	return nil
}

// Run processes tasks until ctx is cancelled or the server stops.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return errors.New("worker: not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return err
		}
	}
	<-ctx.Done()
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	return ctx.Err()
}

func (w *Worker) logTask(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		id, _ := asynq.GetTaskID(ctx)
		started := time.Now()
		err := next.ProcessTask(ctx, task)
		w.logger.Debug("task processed",
			slog.String("task", task.Type()),
			slog.String("task_id", id),
			slog.Duration("duration", time.Since(started)),
			slog.Bool("ok", err == nil),
		)
		return err
	})
}

// asynqLogger routes asynq's internal logging through slog.
type asynqLogger struct {
	logger *slog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...), slog.String("component", "asynq")) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...), slog.String("component", "asynq")) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...), slog.String("component", "asynq")) }
func (l asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...), slog.String("component", "asynq")) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Error(fmt.Sprint(args...), slog.String("component", "asynq")) }
