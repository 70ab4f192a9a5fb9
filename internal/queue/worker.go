package queue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/physiopost/pkg/webhooksig"
)

// HandleDeliverTask posts the task payload to the webhook receiver. Returning
// an error hands the retry decision to asynq.
func (r *Relay) HandleDeliverTask(ctx context.Context, task *asynq.Task) error {
	body := task.Payload()

	signature, err := r.signer.Sign(body, r.webhookURL)
	if err != nil {
		return fmt.Errorf("sign delivery: %v: %w", err, asynq.SkipRetry)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhooksig.HeaderName, signature)
	if id, ok := asynq.GetTaskID(ctx); ok {
		req.Header.Set(DeliveryIDHeader, id)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		slog.Warn("publish delivery failed", "error", err)
		return fmt.Errorf("deliver publish webhook: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		slog.Info("publish delivered", "status", resp.StatusCode, "payload", string(body))
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout:
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, respBody)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		slog.Error("publish delivery rejected", "status", resp.StatusCode, "body", string(respBody))
		return fmt.Errorf("webhook returned %d: %s: %w", resp.StatusCode, respBody, asynq.SkipRetry)
	default:
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, respBody)
	}
}
