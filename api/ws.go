package api

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
	"kanban-api/realtime"
)

const (
	wsPongWait     = 60 * time.Second
	wsMaxFrameSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from the SPA origin; auth happens via token,
	// not origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Browsers cannot set headers on websocket handshakes, so the token may
// arrive as a query parameter instead.
func wsUserID(c echo.Context, auth Authenticator) (string, error) {
	if h := c.Request().Header.Get("Authorization"); h != "" {
		return auth.UserIDFromAuthHeader(h)
	}
	if token := c.QueryParam("token"); token != "" {
		return auth.UserIDFromToken(token)
	}
	return "", errMissingAuthorization
}

// clientFrame is the only shape clients may inject into a board room.
type clientFrame struct {
	Type     string `json:"type"`
	TaskID   string `json:"task_id"`
	LockedBy string `json:"locked_by,omitempty"`
}

var errInvalidFrame = errors.New("invalid frame")

// validateClientFrame parses and checks an inbound frame. Unknown fields,
// unknown types and shape mismatches are all rejected; nothing a client
// sends reaches a room unvalidated.
func validateClientFrame(data []byte) (clientFrame, error) {
	var frame clientFrame
	dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&frame); err != nil {
		return clientFrame{}, errInvalidFrame
	}
	if frame.TaskID == "" {
		return clientFrame{}, errInvalidFrame
	}
	switch frame.Type {
	case domain.EventTaskLocked:
		if frame.LockedBy == "" {
			return clientFrame{}, errInvalidFrame
		}
	case domain.EventTaskUnlocked, domain.EventTaskMoved:
		if frame.LockedBy != "" {
			return clientFrame{}, errInvalidFrame
		}
	default:
		return clientFrame{}, errInvalidFrame
	}
	return frame, nil
}

// boardSocket subscribes the caller to a board room. Valid client frames are
// re-published to the room; everything else is dropped.
func boardSocket(gw Gateway, rooms Rooms, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := wsUserID(c, auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		boardID := c.Param("boardID")
		if _, err := gw.Board(c.Request().Context(), boardID, userID); err != nil {
			return writeDomainError(c, err)
		}

		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}

		conn := realtime.NewConnection(userID, ws)
		conn.Start()
		room := domain.BoardRoom(boardID)
		rooms.Subscribe(room, conn)
		defer func() {
			rooms.Unsubscribe(room, conn)
			conn.Close(websocket.CloseNormalClosure, "")
		}()

		logger.WithFields(log.Fields{"board": boardID, "user": userID}).Debug("board socket open")

		ws.SetReadLimit(wsMaxFrameSize)
		_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return nil
			}
			frame, err := validateClientFrame(data)
			if err != nil {
				logger.WithFields(log.Fields{"board": boardID, "user": userID}).Warn("dropping invalid client frame")
				continue
			}
			rooms.Publish(room, frame)
		}
	}
}

// notificationSocket subscribes the caller to their own notification room.
// The stream is push-only; client frames are discarded.
func notificationSocket(rooms Rooms, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := wsUserID(c, auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if c.Param("userID") != userID {
			return c.String(http.StatusForbidden, "forbidden")
		}

		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}

		conn := realtime.NewConnection(userID, ws)
		conn.Start()
		room := domain.UserRoom(userID)
		rooms.Subscribe(room, conn)
		defer func() {
			rooms.Unsubscribe(room, conn)
			conn.Close(websocket.CloseNormalClosure, "")
		}()

		logger.WithField("user", userID).Debug("notification socket open")

		ws.SetReadLimit(wsMaxFrameSize)
		_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return nil
			}
		}
	}
}
