package handlers

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/physiopost/configs"
	"github.com/maheshrc27/physiopost/internal/apperror"
	"github.com/maheshrc27/physiopost/internal/models"
	"github.com/maheshrc27/physiopost/internal/service"
	"github.com/maheshrc27/physiopost/pkg/utils"
)

type PlatformHandler struct {
	ps  service.PlatformService
	ig  service.InstagramService
	cfg config.Config
}

func NewPlatformHandler(ps service.PlatformService, ig service.InstagramService, cfg config.Config) *PlatformHandler {
	return &PlatformHandler{
		ps:  ps,
		ig:  ig,
		cfg: cfg,
	}
}

func (h *PlatformHandler) AddSocialAccount(c *fiber.Ctx) error {
	authURL, err := h.ps.GetAuthURL(c.Context(), c.Params("platform"), c.Query("state"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Redirect(authURL)
}

// CallbackHandler finishes the OAuth connect flow. The state parameter is the
// session token that started it.
func (h *PlatformHandler) CallbackHandler(c *fiber.Ctx) error {
	claims, err := utils.ValidateToken(h.cfg.SecretKey, c.Query("state"))
	if err != nil {
		return respondError(c, apperror.Authentication("unable to validate user"))
	}

	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil {
		return respondError(c, apperror.Authentication("unable to validate user"))
	}

	switch c.Params("platform") {
	case models.PlatformInstagram:
		if err := h.ig.InstagramCallback(c.Context(), c.Query("code"), userID); err != nil {
			return respondError(c, err)
		}
	default:
		return respondError(c, apperror.Validation("unsupported platform"))
	}

	redirectURL := fmt.Sprintf("%s/dashboard/accounts", h.cfg.FrontendURL)
	return c.Redirect(redirectURL, fiber.StatusTemporaryRedirect)
}

func (h *PlatformHandler) ListSocialAccounts(c *fiber.Ctx) error {
	accountList, err := h.ps.List(c.Context(), GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(accountList)
}

func (h *PlatformHandler) DeleteSocialAccount(c *fiber.Ctx) error {
	accountID := c.QueryInt("id", 0)

	if err := h.ps.Delete(c.Context(), GetUserID(c), int64(accountID)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}
