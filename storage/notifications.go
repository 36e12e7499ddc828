package storage

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"kanban-api/domain"
)

// Notifications are partitioned by recipient; everything a user owns is one
// partition scan.
type notificationEntity struct {
	aztables.Entity
	Message   string `json:"Message"`
	TaskID    string `json:"TaskID"`
	IsRead    bool   `json:"IsRead"`
	CreatedAt string `json:"CreatedAt"`
}

func (e notificationEntity) toDomain() domain.Notification {
	return domain.Notification{
		ID:        e.RowKey,
		UserID:    e.PartitionKey,
		Message:   e.Message,
		TaskID:    e.TaskID,
		IsRead:    e.IsRead,
		CreatedAt: decodeTime(e.CreatedAt),
	}
}

// InsertNotification creates a durable notification row.
func (s *Storage) InsertNotification(ctx context.Context, n domain.Notification) error {
	ent := notificationEntity{
		Entity:    aztables.Entity{PartitionKey: n.UserID, RowKey: n.ID},
		Message:   n.Message,
		TaskID:    n.TaskID,
		IsRead:    n.IsRead,
		CreatedAt: encodeTime(n.CreatedAt),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.notificationTable.AddEntity(ctx, data, nil)
	return mapTableError(err)
}

// GetNotification fetches a single row owned by userID. Rows owned by other
// users are reported as missing.
func (s *Storage) GetNotification(ctx context.Context, userID, id string) (domain.Notification, error) {
	resp, err := s.notificationTable.GetEntity(ctx, userID, id, nil)
	if err != nil {
		return domain.Notification{}, mapTableError(err)
	}
	var ent notificationEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Notification{}, err
	}
	return ent.toDomain(), nil
}

// MarkNotificationRead flips the row's read flag.
func (s *Storage) MarkNotificationRead(ctx context.Context, userID, id string) error {
	props := map[string]any{
		"PartitionKey": userID,
		"RowKey":       id,
		"IsRead":       true,
	}
	data, err := json.Marshal(props)
	if err != nil {
		return err
	}
	mode := aztables.UpdateModeMerge
	_, err = s.notificationTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: mode})
	return mapTableError(err)
}

// DeleteNotifications removes every row the user owns. Table storage has no
// partition delete, so rows go one by one.
func (s *Storage) DeleteNotifications(ctx context.Context, userID string) error {
	rows, err := s.ListNotifications(ctx, userID)
	if err != nil {
		return err
	}
	for _, n := range rows {
		if _, err := s.notificationTable.DeleteEntity(ctx, userID, n.ID, nil); err != nil {
			if mapped := mapTableError(err); mapped != domain.ErrNotFound {
				return mapped
			}
		}
	}
	return nil
}

// ListNotifications returns the user's notifications, newest first.
func (s *Storage) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	filter := "PartitionKey eq '" + filterValue(userID) + "'"
	pager := s.notificationTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	rows := []domain.Notification{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapTableError(err)
		}
		for _, e := range resp.Entities {
			var ent notificationEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			rows = append(rows, ent.toDomain())
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows, nil
}

// CountUnread returns the number of unread rows the user owns.
func (s *Storage) CountUnread(ctx context.Context, userID string) (int, error) {
	filter := "PartitionKey eq '" + filterValue(userID) + "' and IsRead eq false"
	pager := s.notificationTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	count := 0
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return 0, mapTableError(err)
		}
		count += len(resp.Entities)
	}
	return count, nil
}
