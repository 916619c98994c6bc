package jobs

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledger/internal/platform/cache"
)

// Client enqueues ledger tasks.
type Client struct {
	client *asynq.Client
}

// NewClient opens an asynq client on the given Redis.
func NewClient(redis asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redis)}
}

// Enqueue puts task on the default queue with three retries unless opts say
// otherwise.
func (c *Client) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	opts = append([]asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(3)}, opts...)
	return c.client.EnqueueContext(ctx, task, opts...)
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// RedisOpt converts a REDIS_ADDR value, host:port or redis:// URL, into
// asynq connection options.
func RedisOpt(addr string) (asynq.RedisClientOpt, error) {
	opts, err := cache.Options(addr)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}, nil
}
