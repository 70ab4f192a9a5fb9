package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/physiopost/internal/apperror"
	"github.com/maheshrc27/physiopost/internal/queue"
	"github.com/maheshrc27/physiopost/internal/service"
	"github.com/maheshrc27/physiopost/internal/transfer"
	"github.com/maheshrc27/physiopost/pkg/webhooksig"
)

type SignatureVerifier interface {
	Verify(signature string, body []byte) error
}

type DeliveryLedger interface {
	Seen(ctx context.Context, deliveryID string) (bool, error)
	Record(ctx context.Context, deliveryID, outcome string) error
}

// WebhookHandler receives scheduled publish deliveries from the relay.
type WebhookHandler struct {
	verifier SignatureVerifier
	ledger   DeliveryLedger
	pub      service.PublishService
}

func NewWebhookHandler(verifier SignatureVerifier, ledger DeliveryLedger, pub service.PublishService) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, ledger: ledger, pub: pub}
}

func (h *WebhookHandler) PublishWebhook(c *fiber.Ctx) error {
	body := c.Body()

	if err := h.verifier.Verify(c.Get(webhooksig.HeaderName), body); err != nil {
		slog.Warn("rejected publish delivery", "error", err)
		return respondError(c, apperror.Authentication("invalid signature"))
	}

	var delivery transfer.WebhookDelivery
	if err := json.Unmarshal(body, &delivery); err != nil {
		return respondError(c, apperror.Validation("invalid payload"))
	}
	id, err := strconv.ParseInt(strings.TrimSpace(delivery.PostID), 10, 64)
	if err != nil || id <= 0 {
		return respondError(c, apperror.Validation("postId is required"))
	}

	deliveryID := c.Get(queue.DeliveryIDHeader)
	seen, err := h.ledger.Seen(c.Context(), deliveryID)
	if err != nil {
		slog.Warn("delivery ledger unavailable", "delivery_id", deliveryID, "error", err)
	}
	if seen {
		slog.Info("duplicate publish delivery", "delivery_id", deliveryID, "post_id", id)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "duplicate": true})
	}

	res, err := h.pub.PublishDelivered(c.Context(), id, delivery.Version)
	if err != nil {
		return respondError(c, err)
	}

	outcome := strings.ToLower(res.Status)
	if res.Skipped {
		outcome = "skipped"
	}
	if err := h.ledger.Record(c.Context(), deliveryID, outcome); err != nil {
		slog.Warn("could not record delivery", "delivery_id", deliveryID, "error", err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "result": res})
}
