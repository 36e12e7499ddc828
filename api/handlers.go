package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

const requestBodyMaxSize = 1 << 20

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, gw Gateway, notifications Notifications, rooms Rooms, auth Authenticator, logger *log.Logger) {
	e.GET("/healthz", healthz())

	e.GET("/api/boards", listBoards(gw, auth))
	e.POST("/api/boards", createBoard(gw, auth))
	e.GET("/api/boards/:boardID", getBoardView(gw, auth, logger))
	e.POST("/api/boards/:boardID/invite", inviteUser(gw, auth))
	e.POST("/api/boards/:boardID/tasks", createTask(gw, auth))

	e.POST("/api/tasks/:taskID/move", moveTask(gw, auth))
	e.GET("/api/tasks/:taskID/edit", openTaskForEdit(gw, auth))
	e.PUT("/api/tasks/:taskID", saveTaskEdit(gw, auth))
	e.DELETE("/api/tasks/:taskID/edit", cancelTaskEdit(gw, auth))
	e.GET("/api/tasks/:taskID/comments", listComments(gw, auth))
	e.POST("/api/tasks/:taskID/comments", addComment(gw, auth))

	e.GET("/api/notifications", listNotifications(notifications, auth))
	e.GET("/api/notifications/unread", unreadCount(notifications, auth))
	e.POST("/api/notifications/:id/read", markNotificationRead(notifications, auth))
	e.DELETE("/api/notifications", clearNotifications(notifications, auth))

	e.GET("/ws/boards/:boardID", boardSocket(gw, rooms, auth, logger))
	e.GET("/ws/notifications/:userID", notificationSocket(rooms, auth, logger))
}

// writeDomainError maps domain sentinels onto HTTP statuses. Anything
// unrecognized is a 500.
func writeDomainError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.String(http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrForbidden):
		return c.String(http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrLockViolation):
		return c.String(http.StatusConflict, domain.ErrLockViolation.Error())
	case errors.Is(err, domain.ErrCrossBoardMove):
		return c.String(http.StatusUnprocessableEntity, domain.ErrCrossBoardMove.Error())
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func listBoards(gw Gateway, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		boards, err := gw.ListBoards(c.Request().Context(), userID)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, boards)
	}
}

type createBoardRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func createBoard(gw Gateway, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req createBoardRequest
		if err := decodeBody(c, &req); err != nil || req.Name == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		board, err := gw.CreateBoard(c.Request().Context(), userID, req.Name, req.Description)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusCreated, board)
	}
}

type boardViewResponse struct {
	Columns []domain.Column `json:"columns"`
	Tasks   []domain.Task   `json:"tasks"`
}

func getBoardView(gw Gateway, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		fetchStart := time.Now()
		columns, tasks, fetchErr := gw.BoardView(ctx, c.Param("boardID"), userID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			err = writeDomainError(c, fetchErr)
			return err
		}
		metrics.SetColumnsReturned(len(columns))
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, boardViewResponse{Columns: columns, Tasks: tasks})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

type inviteRequest struct {
	UserID string `json:"user_id"`
}

func inviteUser(gw Gateway, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req inviteRequest
		if err := decodeBody(c, &req); err != nil || req.UserID == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := gw.InviteUser(c.Request().Context(), c.Param("boardID"), userID, req.UserID); err != nil {
			return writeDomainError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type createTaskRequest struct {
	ColumnID string `json:"column_id"`
	Title    string `json:"title"`
	Notes    string `json:"notes"`
	Priority string `json:"priority"`
}

func createTask(gw Gateway, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil || req.ColumnID == "" || req.Title == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		task, err := gw.CreateTask(c.Request().Context(), c.Param("boardID"), req.ColumnID, userID, req.Title, req.Notes, req.Priority)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusCreated, task)
	}
}

type moveRequest struct {
	ColumnID string `json:"column_id"`
}

func moveTask(gw Gateway, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req moveRequest
		if err := decodeBody(c, &req); err != nil || req.ColumnID == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := gw.MoveTask(c.Request().Context(), c.Param("taskID"), req.ColumnID, userID); err != nil {
			return writeDomainError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type editResponse struct {
	Task       domain.Task `json:"task"`
	Granted    bool        `json:"granted"`
	LockedBy   string      `json:"locked_by"`
	AcquiredAt time.Time   `json:"acquired_at"`
}

func openTaskForEdit(gw Gateway, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		task, grant, err := gw.OpenTaskForEdit(c.Request().Context(), c.Param("taskID"), userID)
		if err != nil {
			return writeDomainError(c, err)
		}
		resp := editResponse{Task: task, Granted: grant.Granted, LockedBy: grant.Holder, AcquiredAt: grant.AcquiredAt}
		if !grant.Granted {
			// The task is being edited by someone else. 409 tells the client
			// to render read-only; the body says who holds the lock.
			return c.JSON(http.StatusConflict, resp)
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func saveTaskEdit(gw Gateway, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var patch domain.TaskPatch
		if err := decodeBody(c, &patch); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		task, err := gw.SaveTaskEdit(c.Request().Context(), c.Param("taskID"), userID, patch)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func cancelTaskEdit(gw Gateway, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := gw.CancelTaskEdit(c.Request().Context(), c.Param("taskID"), userID); err != nil {
			return writeDomainError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func listComments(gw Gateway, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		comments, err := gw.Comments(c.Request().Context(), c.Param("taskID"))
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, comments)
	}
}

type commentRequest struct {
	Content string `json:"content"`
}

func addComment(gw Gateway, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req commentRequest
		if err := decodeBody(c, &req); err != nil || req.Content == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		comment, err := gw.AddComment(c.Request().Context(), c.Param("taskID"), userID, req.Content)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusCreated, comment)
	}
}

func listNotifications(notifications Notifications, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		rows, err := notifications.List(c.Request().Context(), userID)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, rows)
	}
}

func unreadCount(notifications Notifications, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		count, err := notifications.UnreadCount(c.Request().Context(), userID)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, domain.UnreadEvent{Unread: count})
	}
}

func markNotificationRead(notifications Notifications, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := notifications.MarkRead(c.Request().Context(), userID, c.Param("id")); err != nil {
			return writeDomainError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func clearNotifications(notifications Notifications, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := notifications.ClearAll(c.Request().Context(), userID); err != nil {
			return writeDomainError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
