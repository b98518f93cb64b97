package handlers

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docqa/console/internal/backend"
	"github.com/docqa/console/internal/middleware/validation"
	"github.com/docqa/console/internal/session"
	"github.com/docqa/console/internal/storage/models"
	"github.com/docqa/console/pkg/logger"
)

const (
	sessionLocal   = "session"
	persistTimeout = 5 * time.Second
)

type SessionHandler struct {
	manager *SessionManager
}

func NewSessionHandler(manager *SessionManager) *SessionHandler {
	return &SessionHandler{
		manager: manager,
	}
}

// Register mounts the session routes on an /api/v1 group.
func (h *SessionHandler) Register(api fiber.Router) {
	api.Post("/sessions", h.CreateSession)

	s := api.Group("/sessions/:id", h.LoadSession)
	s.Get("/", h.GetSession)
	s.Delete("/", h.CloseSession)
	s.Put("/input", h.SetInput)

	s.Post("/documents/reload", h.ReloadDocuments)
	s.Post("/documents/select-all", h.ToggleSelectAll)
	s.Post("/documents/upload", h.UploadDocuments)
	s.Post("/documents/:docID/toggle", h.ToggleSelect)
	s.Delete("/documents/:docID", h.RemoveDocument)

	s.Post("/query", h.Submit)
	s.Post("/query/confirm", h.ConfirmSearchAll)
	s.Post("/query/cancel", h.CancelSearchAll)

	s.Post("/conversation/clear", h.ProposeClear)
	s.Post("/conversation/clear/confirm", h.ConfirmClear)
	s.Post("/conversation/clear/cancel", h.CancelClear)
	s.Get("/conversation/search", h.SearchConversation)

	s.Post("/messages/:msgID/feedback", h.SetFeedback)
	s.Get("/messages/:msgID/content", h.MessageContent)

	s.Post("/suggestions/dismiss", h.DismissSuggestions)
	s.Post("/suggestions/:index/use", h.UseSuggestion)
}

// LoadSession resolves :id into a controller for the downstream handlers.
func (h *SessionHandler) LoadSession(c *fiber.Ctx) error {
	ctrl, err := h.manager.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}

	c.Locals(sessionLocal, ctrl)
	return c.Next()
}

func controller(c *fiber.Ctx) *session.Controller {
	ctrl, _ := c.Locals(sessionLocal).(*session.Controller)
	return ctrl
}

func (h *SessionHandler) persist(ctrl *session.Controller) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	h.manager.Persist(ctx, ctrl)
}

func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	ctrl := h.manager.Create()
	h.persist(ctrl)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":    ctrl.ID(),
		"state": ctrl.Snapshot(),
	})
}

// GetSession loads the document list on first view. A failed load still
// returns the session with an empty list and a warning.
func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	ctrl := controller(c)

	resp := fiber.Map{"id": ctrl.ID()}
	if err := ctrl.EnsureDocumentsLoaded(c.UserContext()); err != nil {
		resp["warning"] = err.Error()
	}
	resp["state"] = ctrl.Snapshot()

	return c.JSON(resp)
}

func (h *SessionHandler) CloseSession(c *fiber.Ctx) error {
	ctrl := controller(c)
	if err := h.manager.Remove(c.UserContext(), ctrl.ID()); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SessionHandler) SetInput(c *fiber.Ctx) error {
	var req struct {
		Input string `json:"input"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctrl := controller(c)
	ctrl.SetInput(req.Input)
	h.persist(ctrl)

	return c.JSON(fiber.Map{"input": req.Input})
}

func (h *SessionHandler) ReloadDocuments(c *fiber.Ctx) error {
	ctrl := controller(c)
	if err := ctrl.LoadDocuments(c.UserContext()); err != nil {
		return errorResponse(c, err)
	}
	h.persist(ctrl)

	s := ctrl.Snapshot()
	return c.JSON(fiber.Map{
		"documents": s.Documents,
		"selected":  s.Selected,
	})
}

func (h *SessionHandler) ToggleSelect(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("docID"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid document id",
		})
	}

	ctrl := controller(c)
	if err := ctrl.ToggleSelect(id); err != nil {
		return errorResponse(c, err)
	}
	h.persist(ctrl)

	return c.JSON(fiber.Map{"selected": ctrl.Snapshot().Selected})
}

func (h *SessionHandler) ToggleSelectAll(c *fiber.Ctx) error {
	ctrl := controller(c)
	ctrl.ToggleSelectAll()
	h.persist(ctrl)

	return c.JSON(fiber.Map{"selected": ctrl.Snapshot().Selected})
}

func (h *SessionHandler) RemoveDocument(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("docID"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid document id",
		})
	}

	ctrl := controller(c)
	if err := ctrl.RemoveDocument(c.UserContext(), id); err != nil {
		return errorResponse(c, err)
	}
	h.persist(ctrl)

	s := ctrl.Snapshot()
	return c.JSON(fiber.Map{
		"documents": s.Documents,
		"selected":  s.Selected,
	})
}

func (h *SessionHandler) UploadDocuments(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Expected multipart form data",
		})
	}

	headers := form.File[validation.UploadField]
	files := make([]session.UploadFile, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		files = append(files, session.UploadFile{
			Name: fh.Filename,
			Open: func() (io.ReadCloser, error) { return fh.Open() },
		})
	}

	ctrl := controller(c)
	results := ctrl.UploadAll(c.UserContext(), files)
	h.persist(ctrl)

	s := ctrl.Snapshot()
	return c.JSON(fiber.Map{
		"results":   results,
		"documents": s.Documents,
	})
}

func (h *SessionHandler) Submit(c *fiber.Ctx) error {
	text, ok := c.Locals(validation.QueryLocal).(string)
	if !ok {
		var req struct {
			Query string `json:"query"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		text = req.Query
	}

	ctrl := controller(c)
	result := ctrl.Submit(c.UserContext(), text)
	h.persist(ctrl)

	return c.JSON(result)
}

func (h *SessionHandler) ConfirmSearchAll(c *fiber.Ctx) error {
	ctrl := controller(c)
	result := ctrl.ConfirmSearchAll(c.UserContext())
	h.persist(ctrl)

	return c.JSON(result)
}

func (h *SessionHandler) CancelSearchAll(c *fiber.Ctx) error {
	controller(c).CancelSearchAll()
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SessionHandler) ProposeClear(c *fiber.Ctx) error {
	if err := controller(c).ProposeClear(); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"clear_proposed": true})
}

func (h *SessionHandler) ConfirmClear(c *fiber.Ctx) error {
	ctrl := controller(c)
	cleared := ctrl.ConfirmClear(c.UserContext())
	if cleared {
		h.persist(ctrl)
	}
	return c.JSON(fiber.Map{"cleared": cleared})
}

func (h *SessionHandler) CancelClear(c *fiber.Ctx) error {
	controller(c).CancelClear()
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SessionHandler) SearchConversation(c *fiber.Ctx) error {
	msgs := controller(c).SearchConversation(c.Query("q"))
	return c.JSON(fiber.Map{
		"messages": msgs,
		"count":    len(msgs),
	})
}

func (h *SessionHandler) SetFeedback(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("msgID"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid message id",
		})
	}

	var req struct {
		Type    string `json:"type"`
		Comment string `json:"comment"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctrl := controller(c)
	err = ctrl.SetFeedback(c.UserContext(), id, models.FeedbackType(req.Type), req.Comment)
	if errors.Is(err, session.ErrFeedback) {
		// Already logged by the controller; the client carries on.
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"message_id": id,
			"type":       req.Type,
			"recorded":   false,
		})
	}
	if err != nil {
		return errorResponse(c, err)
	}
	h.persist(ctrl)

	return c.JSON(fiber.Map{"message_id": id, "type": req.Type, "recorded": true})
}

func (h *SessionHandler) MessageContent(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("msgID"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid message id",
		})
	}

	content, err := controller(c).MessageContent(id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"content": content})
}

func (h *SessionHandler) DismissSuggestions(c *fiber.Ctx) error {
	controller(c).DismissSuggestions()
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SessionHandler) UseSuggestion(c *fiber.Ctx) error {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid suggestion index",
		})
	}

	ctrl := controller(c)
	text, err := ctrl.UseSuggestion(index)
	if err != nil {
		return errorResponse(c, err)
	}
	h.persist(ctrl)

	return c.JSON(fiber.Map{"input": text})
}

func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidSessionID),
		errors.Is(err, session.ErrInvalidFeedback):
		status = fiber.StatusBadRequest
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, session.ErrUnknownDocument),
		errors.Is(err, session.ErrUnknownMessage),
		errors.Is(err, session.ErrNoSuggestion):
		status = fiber.StatusNotFound
	case errors.Is(err, session.ErrQueryInFlight):
		status = fiber.StatusConflict
	case errors.Is(err, backend.ErrUnavailable):
		status = fiber.StatusServiceUnavailable
	case errors.Is(err, session.ErrFetch),
		errors.Is(err, session.ErrDelete):
		status = fiber.StatusBadGateway
	default:
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			status = fiber.StatusBadGateway
		}
	}

	if status == fiber.StatusInternalServerError {
		logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	}

	resp := fiber.Map{"error": err.Error()}
	if detail := backend.Detail(err); detail != "" {
		resp["detail"] = detail
	}
	return c.Status(status).JSON(resp)
}
