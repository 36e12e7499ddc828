package storage

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"kanban-api/domain"
)

// Tasks are partitioned by board so a board view is a single-partition scan.
// Comments live in the same table under a "comment#<taskID>" partition.
type taskEntity struct {
	aztables.Entity
	ColumnID  string `json:"ColumnID"`
	Title     string `json:"Title"`
	Notes     string `json:"Notes"`
	Priority  string `json:"Priority"`
	Order     int    `json:"Order"`
	Assignees string `json:"Assignees"`
	CreatedBy string `json:"CreatedBy"`
	IsLocked  bool   `json:"IsLocked"`
	LockedBy  string `json:"LockedBy"`
	LockedAt  string `json:"LockedAt"`
}

func (e taskEntity) toDomain() domain.Task {
	return domain.Task{
		ID:        e.RowKey,
		BoardID:   e.PartitionKey,
		ColumnID:  e.ColumnID,
		Title:     e.Title,
		Notes:     e.Notes,
		Priority:  e.Priority,
		Order:     e.Order,
		Assignees: decodeStringList(e.Assignees),
		CreatedBy: e.CreatedBy,
		IsLocked:  e.IsLocked,
		LockedBy:  e.LockedBy,
		LockedAt:  decodeTime(e.LockedAt),
	}
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	return ent.toDomain(), nil
}

// GetTask looks a task up by id alone. The row key is globally unique, so a
// cross-partition filter resolves it without knowing the board.
func (s *Storage) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	var ent taskEntity
	if err := queryOne(ctx, s.taskTable, "RowKey eq '"+filterValue(taskID)+"'", &ent); err != nil {
		return domain.Task{}, err
	}
	return ent.toDomain(), nil
}

// ListBoardTasks retrieves every task of the given board, ordered by column
// position.
func (s *Storage) ListBoardTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + filterValue(boardID) + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapTableError(err)
		}
		for _, e := range resp.Entities {
			task, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Order < tasks[j].Order })
	return tasks, nil
}

// InsertTask creates a new task row.
func (s *Storage) InsertTask(ctx context.Context, t domain.Task) error {
	ent := taskEntity{
		Entity:    aztables.Entity{PartitionKey: t.BoardID, RowKey: t.ID},
		ColumnID:  t.ColumnID,
		Title:     t.Title,
		Notes:     t.Notes,
		Priority:  t.Priority,
		Order:     t.Order,
		Assignees: encodeStringList(t.Assignees),
		CreatedBy: t.CreatedBy,
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, data, nil)
	return mapTableError(err)
}

// mergeTask applies a partial property set to an existing task row.
func (s *Storage) mergeTask(ctx context.Context, boardID, taskID string, props map[string]any) error {
	props["PartitionKey"] = boardID
	props["RowKey"] = taskID
	data, err := json.Marshal(props)
	if err != nil {
		return err
	}
	mode := aztables.UpdateModeMerge
	_, err = s.taskTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: mode})
	return mapTableError(err)
}

// UpdateTaskColumn reassigns a task to another column.
func (s *Storage) UpdateTaskColumn(ctx context.Context, boardID, taskID, columnID string) error {
	return s.mergeTask(ctx, boardID, taskID, map[string]any{"ColumnID": columnID})
}

// ApplyTaskPatch merges only the fields the patch carries.
func (s *Storage) ApplyTaskPatch(ctx context.Context, boardID, taskID string, patch domain.TaskPatch) error {
	props := map[string]any{}
	if patch.Title != nil {
		props["Title"] = *patch.Title
	}
	if patch.Notes != nil {
		props["Notes"] = *patch.Notes
	}
	if patch.Priority != nil {
		props["Priority"] = *patch.Priority
	}
	if patch.Order != nil {
		props["Order"] = *patch.Order
	}
	if patch.Assignees != nil {
		props["Assignees"] = encodeStringList(*patch.Assignees)
	}
	if len(props) == 0 {
		return nil
	}
	return s.mergeTask(ctx, boardID, taskID, props)
}

// UpdateTaskLock records the current lock holder on the task row.
func (s *Storage) UpdateTaskLock(ctx context.Context, boardID, taskID, lockedBy string, lockedAt time.Time) error {
	return s.mergeTask(ctx, boardID, taskID, map[string]any{
		"IsLocked": true,
		"LockedBy": lockedBy,
		"LockedAt": encodeTime(lockedAt),
	})
}

// ClearTaskLock removes the lock marker from the task row.
func (s *Storage) ClearTaskLock(ctx context.Context, boardID, taskID string) error {
	return s.mergeTask(ctx, boardID, taskID, map[string]any{
		"IsLocked": false,
		"LockedBy": "",
		"LockedAt": "",
	})
}

type commentEntity struct {
	aztables.Entity
	Author    string `json:"Author"`
	Content   string `json:"Content"`
	CreatedAt string `json:"CreatedAt"`
}

func commentPartition(taskID string) string {
	return "comment#" + taskID
}

// InsertComment appends a comment row under the task's comment partition.
func (s *Storage) InsertComment(ctx context.Context, c domain.Comment) error {
	ent := commentEntity{
		Entity:    aztables.Entity{PartitionKey: commentPartition(c.TaskID), RowKey: c.ID},
		Author:    c.Author,
		Content:   c.Content,
		CreatedAt: encodeTime(c.CreatedAt),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, data, nil)
	return mapTableError(err)
}

// ListComments returns a task's comments, oldest first.
func (s *Storage) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	filter := "PartitionKey eq '" + filterValue(commentPartition(taskID)) + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	comments := []domain.Comment{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapTableError(err)
		}
		for _, e := range resp.Entities {
			var ent commentEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			comments = append(comments, domain.Comment{
				ID:        ent.RowKey,
				TaskID:    taskID,
				Author:    ent.Author,
				Content:   ent.Content,
				CreatedAt: decodeTime(ent.CreatedAt),
			})
		}
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].CreatedAt.Before(comments[j].CreatedAt) })
	return comments, nil
}
