package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"devcollab/domain"
)

const maxBodySize = 64 << 10

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, tasks Tasks, auth Authenticator, logger *log.Logger) {
	h := &handlers{tasks: tasks, auth: auth, log: logger}

	e.POST("/api/projects/:projectId/tasks", h.assign)
	e.GET("/api/tasks/:taskId", h.get)
	e.PATCH("/api/tasks/:taskId/status", h.updateStatus)
	e.PATCH("/api/tasks/:taskId/completion", h.updateCompletion)
	e.DELETE("/api/tasks/:taskId", h.delete)
	e.GET("/healthz", healthz)
}

type handlers struct {
	tasks Tasks
	auth  Authenticator
	log   *log.Logger
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (h *handlers) assign(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var req assignRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid json")
	}
	task, err := h.tasks.Assign(c.Request().Context(), c.Param("projectId"), req.AssigneeID, req.Details, actor)
	if err != nil {
		return h.fail(c, "assign task", err)
	}
	return c.JSON(http.StatusCreated, task)
}

func (h *handlers) get(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	id, err := taskIDParam(c)
	if err != nil {
		return c.String(http.StatusBadRequest, "invalid task id")
	}
	task, err := h.tasks.Get(c.Request().Context(), id, actor)
	if err != nil {
		return h.fail(c, "get task", err)
	}
	return c.JSON(http.StatusOK, task)
}

func (h *handlers) updateStatus(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	id, err := taskIDParam(c)
	if err != nil {
		return c.String(http.StatusBadRequest, "invalid task id")
	}
	var req statusRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid json")
	}
	if req.Status == domain.StatusUnknown {
		return c.String(http.StatusBadRequest, "status is required")
	}
	task, err := h.tasks.UpdateStatus(c.Request().Context(), id, req.Status, req.PullRequestURL, actor)
	if err != nil {
		return h.fail(c, "update task status", err)
	}
	return c.JSON(http.StatusOK, task)
}

func (h *handlers) updateCompletion(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	id, err := taskIDParam(c)
	if err != nil {
		return c.String(http.StatusBadRequest, "invalid task id")
	}
	var req completionRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid json")
	}
	if req.Status == domain.StatusUnknown {
		return c.String(http.StatusBadRequest, "status is required")
	}
	task, err := h.tasks.UpdateCompletion(c.Request().Context(), id, req.Status, actor)
	if err != nil {
		return h.fail(c, "update task completion", err)
	}
	return c.JSON(http.StatusOK, task)
}

func (h *handlers) delete(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	id, err := taskIDParam(c)
	if err != nil {
		return c.String(http.StatusBadRequest, "invalid task id")
	}
	if err := h.tasks.Delete(c.Request().Context(), id, actor); err != nil {
		return h.fail(c, "delete task", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) actor(c echo.Context) (domain.User, error) {
	id, err := h.auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{ID: id}, nil
}

// fail maps a service error onto a response. Only unexpected errors are logged.
func (h *handlers) fail(c echo.Context, op string, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.WithFields(log.Fields{
			"op":         op,
			"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
		}).WithError(err).Error("request failed")
		return c.String(status, http.StatusText(status))
	}
	return c.String(status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvariant):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(c echo.Context, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// taskIDParam returns the unescaped task id. Echo matches on RawPath when the
// request carries escaped separators, leaving the parameter encoded.
func taskIDParam(c echo.Context) (string, error) {
	id := c.Param("taskId")
	if c.Request().URL.RawPath == "" {
		return id, nil
	}
	return url.PathUnescape(id)
}
