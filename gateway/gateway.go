// Package gateway is the single entry point for board-affecting writes. It
// couples "apply mutation" with "publish resulting event" so the two cannot
// diverge, and records an activity trail for downstream consumers.
package gateway

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
	"kanban-api/lock"
)

// Store is the durable board state the gateway mutates.
type Store interface {
	GetTask(ctx context.Context, taskID string) (domain.Task, error)
	InsertTask(ctx context.Context, t domain.Task) error
	UpdateTaskColumn(ctx context.Context, boardID, taskID, columnID string) error
	ApplyTaskPatch(ctx context.Context, boardID, taskID string, patch domain.TaskPatch) error
	ListBoardTasks(ctx context.Context, boardID string) ([]domain.Task, error)

	GetColumn(ctx context.Context, columnID string) (domain.Column, error)
	ListColumns(ctx context.Context, boardID string) ([]domain.Column, error)
	EnsureDefaultColumns(ctx context.Context, boardID string) error

	GetBoard(ctx context.Context, boardID string) (domain.Board, error)
	InsertBoard(ctx context.Context, b domain.Board) error
	AddBoardMember(ctx context.Context, boardID, userID string) error
	ListBoardsFor(ctx context.Context, userID string) ([]domain.Board, error)

	InsertComment(ctx context.Context, c domain.Comment) error
	ListComments(ctx context.Context, taskID string) ([]domain.Comment, error)

	EnqueueActivity(ctx context.Context, a domain.Activity) error
}

// Publisher delivers board events to live subscribers.
type Publisher interface {
	Publish(room domain.RoomKey, event any)
}

// Notifier fans notification pushes out to the given recipients.
type Notifier interface {
	Notify(ctx context.Context, recipients []string, message, taskID string)
}

// Locks is the slice of the lock manager the gateway drives.
type Locks interface {
	Acquire(ctx context.Context, boardID, taskID, requester string) (lock.Grant, error)
	Release(ctx context.Context, boardID, taskID, requester string) error
	Holder(taskID string) (string, bool)
}

// IDFunc mints identifiers for newly created records.
type IDFunc func() string

// Gateway wraps board mutations. All methods are safe for concurrent use;
// contention is per task (locking) or per room (delivery), never global.
type Gateway struct {
	store    Store
	locks    Locks
	notifier Notifier
	hub      Publisher
	logger   *log.Logger
	newID    IDFunc
}

// New constructs a Gateway.
func New(store Store, locks Locks, notifier Notifier, hub Publisher, newID IDFunc, logger *log.Logger) *Gateway {
	return &Gateway{
		store:    store,
		locks:    locks,
		notifier: notifier,
		hub:      hub,
		logger:   logger,
		newID:    newID,
	}
}

// MoveTask reassigns a task to another column of the same board and
// broadcasts task_moved. Columns of other boards are structurally invalid
// targets and rejected before any write.
func (g *Gateway) MoveTask(ctx context.Context, taskID, targetColumnID, actor string) error {
	task, err := g.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	column, err := g.store.GetColumn(ctx, targetColumnID)
	if err != nil {
		return err
	}
	if column.BoardID != task.BoardID {
		return domain.ErrCrossBoardMove
	}

	if err := g.store.UpdateTaskColumn(ctx, task.BoardID, taskID, targetColumnID); err != nil {
		return fmt.Errorf("move task: %w", err)
	}

	g.hub.Publish(domain.BoardRoom(task.BoardID), domain.NewTaskMovedEvent(taskID))
	g.recordActivity(ctx, domain.Activity{
		Type:    domain.ActivityTaskMoved,
		BoardID: task.BoardID,
		TaskID:  taskID,
		Actor:   actor,
		Subject: targetColumnID,
	})
	return nil
}

// CreateTask adds a task to a column of the board. The creator must be a
// member and the column must belong to the board.
func (g *Gateway) CreateTask(ctx context.Context, boardID, columnID, creator, title, notes, priority string) (domain.Task, error) {
	board, err := g.store.GetBoard(ctx, boardID)
	if err != nil {
		return domain.Task{}, err
	}
	if !board.HasMember(creator) {
		return domain.Task{}, domain.ErrForbidden
	}
	column, err := g.store.GetColumn(ctx, columnID)
	if err != nil {
		return domain.Task{}, err
	}
	if column.BoardID != boardID {
		return domain.Task{}, domain.ErrCrossBoardMove
	}

	order := 1
	tasks, err := g.store.ListBoardTasks(ctx, boardID)
	if err != nil {
		return domain.Task{}, err
	}
	for _, t := range tasks {
		if t.ColumnID == columnID && t.Order >= order {
			order = t.Order + 1
		}
	}

	task := domain.Task{
		ID:        g.newID(),
		BoardID:   boardID,
		ColumnID:  columnID,
		Title:     title,
		Notes:     notes,
		Priority:  priority,
		Order:     order,
		Assignees: []string{creator},
		CreatedBy: creator,
	}
	if err := g.store.InsertTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}

	g.recordActivity(ctx, domain.Activity{
		Type:    domain.ActivityTaskCreated,
		BoardID: boardID,
		TaskID:  task.ID,
		Actor:   creator,
	})
	return task, nil
}

// OpenTaskForEdit is the read that carries write intent: viewing the edit
// form acquires the task's lock. Deliberately a named transition rather
// than a side effect buried in a query handler.
func (g *Gateway) OpenTaskForEdit(ctx context.Context, taskID, editor string) (domain.Task, lock.Grant, error) {
	task, err := g.store.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, lock.Grant{}, err
	}
	grant, err := g.locks.Acquire(ctx, task.BoardID, taskID, editor)
	if err != nil {
		return domain.Task{}, lock.Grant{}, fmt.Errorf("acquire edit lock: %w", err)
	}
	return task, grant, nil
}

// SaveTaskEdit applies the patch and releases the editor's lock, in that
// order. The save requires the lock to currently be held by the editor;
// anything else is a lock violation (stale form submit, steal by timeout).
func (g *Gateway) SaveTaskEdit(ctx context.Context, taskID, editor string, patch domain.TaskPatch) (domain.Task, error) {
	task, err := g.store.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if holder, ok := g.locks.Holder(taskID); !ok || holder != editor {
		return domain.Task{}, domain.ErrLockViolation
	}

	if !patch.Empty() {
		if err := g.store.ApplyTaskPatch(ctx, task.BoardID, taskID, patch); err != nil {
			return domain.Task{}, fmt.Errorf("apply task patch: %w", err)
		}
	}

	// Release publishes task_unlocked. A failure here means the edit is
	// saved but the lock lingers until TTL; surfaced so the client can
	// retry the release.
	if err := g.locks.Release(ctx, task.BoardID, taskID, editor); err != nil {
		return domain.Task{}, err
	}

	g.recordActivity(ctx, domain.Activity{
		Type:    domain.ActivityTaskEdited,
		BoardID: task.BoardID,
		TaskID:  taskID,
		Actor:   editor,
	})

	updated, err := g.store.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	return updated, nil
}

// CancelTaskEdit abandons an edit: the lock is released, nothing is saved.
func (g *Gateway) CancelTaskEdit(ctx context.Context, taskID, editor string) error {
	task, err := g.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	return g.locks.Release(ctx, task.BoardID, taskID, editor)
}

// AddComment persists the comment and notifies the task's assignees,
// excluding the author.
func (g *Gateway) AddComment(ctx context.Context, taskID, author, content string) (domain.Comment, error) {
	task, err := g.store.GetTask(ctx, taskID)
	if err != nil {
		return domain.Comment{}, err
	}

	comment := domain.Comment{
		ID:        g.newID(),
		TaskID:    taskID,
		Author:    author,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.store.InsertComment(ctx, comment); err != nil {
		return domain.Comment{}, fmt.Errorf("insert comment: %w", err)
	}

	recipients := make([]string, 0, len(task.Assignees))
	for _, userID := range task.Assignees {
		if userID != author {
			recipients = append(recipients, userID)
		}
	}
	if len(recipients) > 0 {
		g.notifier.Notify(ctx, recipients, fmt.Sprintf("New comment on %s", task.Title), taskID)
	}

	g.recordActivity(ctx, domain.Activity{
		Type:    domain.ActivityCommentAdded,
		BoardID: task.BoardID,
		TaskID:  taskID,
		Actor:   author,
	})
	return comment, nil
}

// InviteUser adds invitee to the board's members and sends them a single
// notification. Only the board owner may invite.
func (g *Gateway) InviteUser(ctx context.Context, boardID, owner, invitee string) error {
	board, err := g.store.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if board.Owner != owner {
		return domain.ErrForbidden
	}
	if err := g.store.AddBoardMember(ctx, boardID, invitee); err != nil {
		return fmt.Errorf("add board member: %w", err)
	}

	g.notifier.Notify(ctx, []string{invitee}, fmt.Sprintf("Invited to %s", board.Name), "")
	g.recordActivity(ctx, domain.Activity{
		Type:    domain.ActivityUserInvited,
		BoardID: boardID,
		Actor:   owner,
		Subject: invitee,
	})
	return nil
}

// CreateBoard creates a board owned (and membered) by owner and seeds the
// default kanban stages. Seeding is an explicit idempotent step of board
// creation, not a persistence hook.
func (g *Gateway) CreateBoard(ctx context.Context, owner, name, description string) (domain.Board, error) {
	board := domain.Board{
		ID:          g.newID(),
		Name:        name,
		Description: description,
		Owner:       owner,
		Members:     []string{owner},
		CreatedAt:   time.Now().UTC(),
	}
	if err := g.store.InsertBoard(ctx, board); err != nil {
		return domain.Board{}, fmt.Errorf("insert board: %w", err)
	}
	if err := g.store.EnsureDefaultColumns(ctx, board.ID); err != nil {
		return domain.Board{}, fmt.Errorf("seed default columns: %w", err)
	}

	g.recordActivity(ctx, domain.Activity{
		Type:    domain.ActivityBoardCreated,
		BoardID: board.ID,
		Actor:   owner,
	})
	return board, nil
}

// Board returns the board itself, gated on membership.
func (g *Gateway) Board(ctx context.Context, boardID, userID string) (domain.Board, error) {
	board, err := g.store.GetBoard(ctx, boardID)
	if err != nil {
		return domain.Board{}, err
	}
	if !board.HasMember(userID) {
		return domain.Board{}, domain.ErrForbidden
	}
	return board, nil
}

// ListBoards returns every board the user owns or was invited to.
func (g *Gateway) ListBoards(ctx context.Context, userID string) ([]domain.Board, error) {
	return g.store.ListBoardsFor(ctx, userID)
}

// Comments lists a task's comments, oldest first.
func (g *Gateway) Comments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	if _, err := g.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return g.store.ListComments(ctx, taskID)
}

// BoardView returns the columns and tasks a member sees when opening a
// board.
func (g *Gateway) BoardView(ctx context.Context, boardID, userID string) ([]domain.Column, []domain.Task, error) {
	board, err := g.store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, nil, err
	}
	if !board.HasMember(userID) {
		return nil, nil, domain.ErrForbidden
	}
	columns, err := g.store.ListColumns(ctx, boardID)
	if err != nil {
		return nil, nil, err
	}
	tasks, err := g.store.ListBoardTasks(ctx, boardID)
	if err != nil {
		return nil, nil, err
	}
	return columns, tasks, nil
}

// recordActivity is best-effort: the mutation already committed
// and broadcast; a lost activity record only degrades feeds.
func (g *Gateway) recordActivity(ctx context.Context, a domain.Activity) {
	a.Timestamp = time.Now().UTC()
	if err := g.store.EnqueueActivity(ctx, a); err != nil {
		g.logger.WithError(err).WithFields(log.Fields{
			"type":  a.Type,
			"board": a.BoardID,
		}).Warn("activity enqueue failed")
	}
}
