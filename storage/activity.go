package storage

import (
	"context"
	"encoding/json"

	"kanban-api/domain"
)

// EnqueueActivity pushes an activity record onto the activity queue for the
// feed consumer.
func (s *Storage) EnqueueActivity(ctx context.Context, a domain.Activity) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = s.activityQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}
