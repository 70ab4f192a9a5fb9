package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/physiopost/internal/apperror"
)

const (
	TaskTypeDeliverPost = "publish:deliver"
	QueueName           = "publish"
)

// DeliverPostPayload is both the task payload and the webhook body.
type DeliverPostPayload struct {
	PostID  string `json:"postId"`
	Version int64  `json:"version,omitempty"`
}

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client submits delayed publish deliveries. Jobs cannot be withdrawn once
// enqueued; stale ones are recognised by their version at delivery time.
type Client struct {
	enq      taskEnqueuer
	maxRetry int
	now      func() time.Time
}

func NewClient(enq taskEnqueuer, maxRetry int) *Client {
	return &Client{enq: enq, maxRetry: maxRetry, now: time.Now}
}

// EnqueuePost schedules a delivery for postID at deliverAt and returns the job id.
func (c *Client) EnqueuePost(ctx context.Context, postID, version int64, deliverAt time.Time) (string, error) {
	delay := deliverAt.Sub(c.now())
	if delay < 0 {
		return "", apperror.QueueScheduling(
			fmt.Sprintf("delivery time %s is %s in the past", deliverAt.Format(time.RFC3339), (-delay).Round(time.Second)), nil)
	}

	payload, err := json.Marshal(DeliverPostPayload{
		PostID:  strconv.FormatInt(postID, 10),
		Version: version,
	})
	if err != nil {
		return "", apperror.QueueScheduling("encode delivery payload", err)
	}

	task := asynq.NewTask(TaskTypeDeliverPost, payload)

	info, err := c.enq.EnqueueContext(ctx, task,
		asynq.ProcessAt(deliverAt),
		asynq.MaxRetry(c.maxRetry),
		asynq.Queue(QueueName),
	)
	if err != nil {
		slog.Error("enqueue publish delivery", "post_id", postID, "error", err)
		return "", apperror.QueueScheduling("queue rejected the publish job", err)
	}

	slog.Info("publish delivery scheduled", "post_id", postID, "version", version, "task_id", info.ID, "deliver_at", deliverAt)
	return info.ID, nil
}
