package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/physiopost/internal/apperror"
	"github.com/maheshrc27/physiopost/internal/approval"
	"github.com/maheshrc27/physiopost/internal/service"
)

var validate = validator.New()

func GetUserID(c *fiber.Ctx) int64 {
	s, _ := c.Locals("user_id").(string)
	userID, _ := strconv.ParseInt(s, 10, 64)
	return userID
}

func GetRole(c *fiber.Ctx) approval.Role {
	s, _ := c.Locals("role").(string)
	return approval.ParseRole(s)
}

func GetActor(c *fiber.Ctx) service.Actor {
	return service.Actor{UserID: GetUserID(c), Role: GetRole(c)}
}

func postID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, apperror.Validation("invalid post id")
	}
	return int64(id), nil
}

// parseBody decodes the request body into out and runs its validate tags.
func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperror.Validation("invalid request body")
	}
	return validateStruct(out)
}

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			e := apperror.Validation("invalid request body")
			e.Details = strings.Join(fields, "; ")
			return e
		}
		return apperror.Validation(err.Error())
	}
	return nil
}

// respondError writes err with the status of its kind.
func respondError(c *fiber.Ctx, err error) error {
	status := apperror.HTTPStatus(err)
	if status >= fiber.StatusInternalServerError {
		slog.Error("request failed", "path", c.Path(), "error", err)
	} else {
		slog.Info(err.Error())
	}

	msg, details := apperror.Public(err)
	body := fiber.Map{"error": msg}
	if details != "" {
		body["details"] = details
	}
	return c.Status(status).JSON(body)
}
