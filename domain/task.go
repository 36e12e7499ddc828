package domain

import "time"

// Priority levels accepted on tasks.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Task represents a single board item. The collaboration core only ever
// writes ColumnID, Order and the lock fields; everything else is owned by
// the CRUD layer and carried through patches verbatim.
type Task struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"boardId"`
	ColumnID  string    `json:"columnId"`
	Title     string    `json:"title"`
	Notes     string    `json:"notes,omitempty"`
	Priority  string    `json:"priority,omitempty"`
	Order     int       `json:"order"`
	Assignees []string  `json:"assignees,omitempty"`
	CreatedBy string    `json:"createdBy,omitempty"`
	IsLocked  bool      `json:"isLocked,omitempty"`
	LockedBy  string    `json:"lockedBy,omitempty"`
	LockedAt  time.Time `json:"lockedAt"`
}

// TaskPatch carries the editable task fields. Nil means "leave unchanged".
type TaskPatch struct {
	Title     *string   `json:"title,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
	Priority  *string   `json:"priority,omitempty"`
	Order     *int      `json:"order,omitempty"`
	Assignees *[]string `json:"assignees,omitempty"`
}

// Empty reports whether the patch would change nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Notes == nil && p.Priority == nil && p.Order == nil && p.Assignees == nil
}

// Comment is a message attached to a task.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
