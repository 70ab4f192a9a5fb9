package handlers

import (
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/physiopost/internal/apperror"
	"github.com/maheshrc27/physiopost/internal/service"
	"github.com/maheshrc27/physiopost/internal/transfer"
)

type PostHandler struct {
	s     service.PostService
	sched service.SchedulingService
	gen   service.ContentGenerator
}

func NewPostHandler(s service.PostService, sched service.SchedulingService, gen service.ContentGenerator) *PostHandler {
	return &PostHandler{s: s, sched: sched, gen: gen}
}

// CreatePost accepts JSON or a multipart form with media under "files".
func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	var pc transfer.PostCreation
	if err := c.BodyParser(&pc); err != nil {
		return respondError(c, apperror.Validation("invalid request body"))
	}

	var files []*multipart.FileHeader
	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return respondError(c, apperror.Validation("unable to parse form"))
		}
		files = form.File["files"]

		if raw := c.FormValue("scheduledAt"); raw != "" {
			when, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return respondError(c, apperror.InvalidSchedule("scheduledAt must be RFC3339"))
			}
			pc.ScheduledAt = &when
		}
	}

	if err := validateStruct(&pc); err != nil {
		return respondError(c, err)
	}

	post, scheduled, err := h.s.CreatePost(c.Context(), GetActor(c), &pc, files)
	if err != nil {
		return respondError(c, err)
	}

	resp := fiber.Map{"post": post}
	if scheduled != nil {
		resp["schedule"] = scheduled
		resp["message"] = scheduled.Message
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	posts, err := h.s.List(c.Context(), GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	id, err := postID(c)
	if err != nil {
		return respondError(c, err)
	}

	post, err := h.s.PostInfo(c.Context(), id, GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	id, err := postID(c)
	if err != nil {
		return respondError(c, err)
	}

	if err := h.s.Remove(c.Context(), GetUserID(c), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *PostHandler) SubmitPost(c *fiber.Ctx) error {
	id, err := postID(c)
	if err != nil {
		return respondError(c, err)
	}

	post, err := h.s.Submit(c.Context(), GetActor(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) ApprovePost(c *fiber.Ctx) error {
	id, err := postID(c)
	if err != nil {
		return respondError(c, err)
	}

	var req transfer.ApproveRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return respondError(c, err)
		}
	}

	post, scheduled, err := h.s.Approve(c.Context(), GetActor(c), id, req.ScheduledAt)
	if err != nil {
		return respondError(c, err)
	}

	resp := fiber.Map{"post": post}
	if scheduled != nil {
		resp["schedule"] = scheduled
		resp["message"] = scheduled.Message
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *PostHandler) RejectPost(c *fiber.Ctx) error {
	id, err := postID(c)
	if err != nil {
		return respondError(c, err)
	}

	post, err := h.s.Reject(c.Context(), GetActor(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) SchedulePost(c *fiber.Ctx) error {
	id, err := postID(c)
	if err != nil {
		return respondError(c, err)
	}

	var req transfer.ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, apperror.InvalidSchedule("scheduledAt must be RFC3339"))
	}
	if req.ScheduledAt.IsZero() {
		return respondError(c, apperror.InvalidSchedule("scheduledAt is required"))
	}

	res, err := h.sched.ScheduleExplicit(c.Context(), GetActor(c), id, req.ScheduledAt)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}

func (h *PostHandler) PublishPost(c *fiber.Ctx) error {
	id, err := postID(c)
	if err != nil {
		return respondError(c, err)
	}

	res, err := h.sched.PublishImmediate(c.Context(), GetActor(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}

func (h *PostHandler) SuggestTime(c *fiber.Ctx) error {
	res, err := h.sched.SuggestTime(c.Context(), GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}

func (h *PostHandler) GenerateContent(c *fiber.Ctx) error {
	var req transfer.GenerateRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	out, err := h.gen.Generate(c.Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(out)
}
