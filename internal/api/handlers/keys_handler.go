package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/physiopost/internal/approval"
	"github.com/maheshrc27/physiopost/internal/service"
	"github.com/maheshrc27/physiopost/internal/transfer"
)

type ApiKeyHandler struct {
	s service.ApiKeyService
}

func NewApiKeyHandler(service service.ApiKeyService) *ApiKeyHandler {
	return &ApiKeyHandler{s: service}
}

// CreateApiKey issues a key. An optional role narrows what the key may do;
// the plaintext key is only present in this response.
func (h *ApiKeyHandler) CreateApiKey(c *fiber.Ctx) error {
	var req transfer.ApiKeyCreation
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return respondError(c, err)
		}
	}

	key, err := h.s.Create(c.Context(), GetActor(c), approval.Role(req.Role))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(key)
}

func (h *ApiKeyHandler) ListKeys(c *fiber.Ctx) error {
	keys, err := h.s.List(c.Context(), GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(keys)
}

func (h *ApiKeyHandler) RemoveAPIKey(c *fiber.Ctx) error {
	keyID := c.QueryInt("id", 0)

	if err := h.s.RemoveAPIKey(c.Context(), GetUserID(c), int64(keyID)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}
