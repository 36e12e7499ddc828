package domain

import "time"

// RoomKey names a broadcast group of live subscribers.
// Board rooms carry board-state events, user rooms carry personal
// notification counters.
type RoomKey string

// BoardRoom returns the room key for a board's event stream.
func BoardRoom(boardID string) RoomKey {
	return RoomKey("board:" + boardID)
}

// UserRoom returns the room key for a user's notification stream.
func UserRoom(userID string) RoomKey {
	return RoomKey("user:" + userID)
}

// Board event type discriminators. The wire shapes below are part of the
// client contract and must not change.
const (
	EventTaskLocked   = "task_locked"
	EventTaskUnlocked = "task_unlocked"
	EventTaskMoved    = "task_moved"
)

type TaskLockedEvent struct {
	Type     string `json:"type"`
	TaskID   string `json:"task_id"`
	LockedBy string `json:"locked_by"`
}

func NewTaskLockedEvent(taskID, holder string) TaskLockedEvent {
	return TaskLockedEvent{Type: EventTaskLocked, TaskID: taskID, LockedBy: holder}
}

type TaskUnlockedEvent struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id"`
}

func NewTaskUnlockedEvent(taskID string) TaskUnlockedEvent {
	return TaskUnlockedEvent{Type: EventTaskUnlocked, TaskID: taskID}
}

type TaskMovedEvent struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id"`
}

func NewTaskMovedEvent(taskID string) TaskMovedEvent {
	return TaskMovedEvent{Type: EventTaskMoved, TaskID: taskID}
}

// UnreadEvent is pushed to a user room after every notification write.
// The count is exact at computation time only; clients re-sync on the next
// event or an explicit refetch.
type UnreadEvent struct {
	Unread int `json:"unread"`
}

// Activity record types enqueued by the mutation gateway for downstream
// consumers (feeds, digests). Not part of the realtime contract.
const (
	ActivityTaskCreated  = "task-created"
	ActivityTaskMoved    = "task-moved"
	ActivityTaskEdited   = "task-edited"
	ActivityCommentAdded = "comment-added"
	ActivityUserInvited  = "user-invited"
	ActivityBoardCreated = "board-created"
)

// Activity describes a committed board mutation.
type Activity struct {
	Type      string    `json:"type"`
	BoardID   string    `json:"boardId"`
	TaskID    string    `json:"taskId,omitempty"`
	Actor     string    `json:"actor"`
	Subject   string    `json:"subject,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
