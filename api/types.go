package api

import (
	"context"

	"kanban-api/domain"
	"kanban-api/lock"
	"kanban-api/realtime"
)

// Gateway abstracts board mutations and reads for handlers.
type Gateway interface {
	CreateTask(ctx context.Context, boardID, columnID, creator, title, notes, priority string) (domain.Task, error)
	MoveTask(ctx context.Context, taskID, targetColumnID, actor string) error
	OpenTaskForEdit(ctx context.Context, taskID, editor string) (domain.Task, lock.Grant, error)
	SaveTaskEdit(ctx context.Context, taskID, editor string, patch domain.TaskPatch) (domain.Task, error)
	CancelTaskEdit(ctx context.Context, taskID, editor string) error
	AddComment(ctx context.Context, taskID, author, content string) (domain.Comment, error)
	Comments(ctx context.Context, taskID string) ([]domain.Comment, error)
	InviteUser(ctx context.Context, boardID, owner, invitee string) error
	CreateBoard(ctx context.Context, owner, name, description string) (domain.Board, error)
	Board(ctx context.Context, boardID, userID string) (domain.Board, error)
	BoardView(ctx context.Context, boardID, userID string) ([]domain.Column, []domain.Task, error)
	ListBoards(ctx context.Context, userID string) ([]domain.Board, error)
}

// Notifications is the per-user notification inbox.
type Notifications interface {
	List(ctx context.Context, userID string) ([]domain.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) error
	ClearAll(ctx context.Context, userID string) error
}

// Rooms is the slice of the hub the websocket layer drives.
type Rooms interface {
	Subscribe(room domain.RoomKey, sub realtime.Subscriber)
	Unsubscribe(room domain.RoomKey, sub realtime.Subscriber)
	Publish(room domain.RoomKey, event any)
}

// Authenticator is implemented by types able to extract user IDs from
// request credentials.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
	UserIDFromToken(string) (string, error)
}
