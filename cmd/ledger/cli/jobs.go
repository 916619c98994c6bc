package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/jobs"
)

// JobsCLI enqueues ledger jobs and reads queue counters.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI connects to the job queue at redisAddr.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	opt, err := jobs.RedisOpt(redisAddr)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: jobs.NewClient(opt), inspector: asynq.NewInspector(opt)}, nil
}

// Close releases the client and inspector connections.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// Trigger enqueues a ledger job by name for one institution, or all when
// institutionID is empty.
func (c *JobsCLI) Trigger(ctx context.Context, name, institutionID string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := jobs.NewTask(name, institutionID)
	if err != nil {
		return nil, err
	}
	return c.client.Enqueue(ctx, task)
}

// InspectQueue reads the default queue.
func (c *JobsCLI) InspectQueue() (*asynq.QueueInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	return c.inspector.GetQueueInfo(jobs.QueueDefault)
}

func newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Enqueue and inspect background jobs",
	}

	var institutionID string
	trigger := &cobra.Command{
		Use:   "trigger <integrity|budget_alerts>",
		Short: "Enqueue a ledger job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			helper, err := openJobsCLI()
			if err != nil {
				return err
			}
			defer func() { _ = helper.Close() }()
			info, err := helper.Trigger(cmd.Context(), args[0], institutionID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().StringVar(&institutionID, "institution", "", "limit the job to one institution")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			helper, err := openJobsCLI()
			if err != nil {
				return err
			}
			defer func() { _ = helper.Close() }()
			info, err := helper.InspectQueue()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s paused=%t pending=%d active=%d scheduled=%d retry=%d failed=%d latency=%s\n",
				info.Queue, info.Paused, info.Pending, info.Active, info.Scheduled, info.Retry, info.Failed, info.Latency)
			return nil
		},
	}

	cmd.AddCommand(trigger, stats)
	return cmd
}

func openJobsCLI() (*JobsCLI, error) {
	cfg, _, err := loadRuntime()
	if err != nil {
		return nil, err
	}
	if cfg.RedisAddr == "" {
		return nil, errors.New("jobs: REDIS_ADDR is not set")
	}
	return NewJobsCLI(cfg.RedisAddr)
}
