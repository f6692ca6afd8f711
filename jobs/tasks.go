package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeStatementEmail is the task type for emailing customer statements.
	TaskTypeStatementEmail = "statement:email"
)

// StatementEmailPayload describes a statement delivery request.
type StatementEmailPayload struct {
	CustomerID int64  `json:"customer_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Recipient  string `json:"recipient"`
}

// NewStatementEmailTask constructs an Asynq task.
func NewStatementEmailTask(payload StatementEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeStatementEmail, data, asynq.MaxRetry(3), asynq.Queue(QueueDefault)), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueStatementEmail queues a statement for background delivery.
func (c *Client) EnqueueStatementEmail(ctx context.Context, customerID int64, from, to time.Time, recipient string) error {
	task, err := NewStatementEmailTask(StatementEmailPayload{
		CustomerID: customerID,
		From:       from.Format("2006-01-02"),
		To:         to.Format("2006-01-02"),
		Recipient:  recipient,
	})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task)
	return err
}
