// Package notify persists notification records and pushes unread counters
// to their recipients' rooms.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

// Store is the durable side of the service. Notification rows are the only
// persistent artifact of the realtime pipeline.
type Store interface {
	InsertNotification(ctx context.Context, n domain.Notification) error
	GetNotification(ctx context.Context, userID, id string) (domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	DeleteNotifications(ctx context.Context, userID string) error
	ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

// Publisher delivers unread counters to user rooms.
type Publisher interface {
	Publish(room domain.RoomKey, event any)
}

// Service computes unread counts and fans notification pushes out to user
// rooms. Recipients are decided by the caller; this component never derives
// an audience.
type Service struct {
	store  Store
	hub    Publisher
	cache  *UnreadCache
	logger *log.Logger
}

// NewService constructs a Service. cache may be nil.
func NewService(store Store, hub Publisher, cache *UnreadCache, logger *log.Logger) *Service {
	return &Service{store: store, hub: hub, cache: cache, logger: logger}
}

// Notify creates one durable unread row per recipient, then publishes that
// recipient's exact unread count to their room. A failing recipient is
// logged and skipped; the rest of the fan-out proceeds. The count is exact
// at publish time only (eventual consistency; clients re-sync on the next
// trigger).
func (s *Service) Notify(ctx context.Context, recipients []string, message, taskID string) {
	now := time.Now().UTC()
	for _, userID := range recipients {
		n := domain.Notification{
			ID:        uuid.NewString(),
			UserID:    userID,
			Message:   message,
			TaskID:    taskID,
			CreatedAt: now,
		}
		if err := s.store.InsertNotification(ctx, n); err != nil {
			s.logger.WithError(err).WithField("recipient", userID).Error("persist notification")
			continue
		}
		s.cache.Evict(ctx, userID)

		count, err := s.UnreadCount(ctx, userID)
		if err != nil {
			s.logger.WithError(err).WithField("recipient", userID).Error("count unread")
			continue
		}
		s.hub.Publish(domain.UserRoom(userID), domain.UnreadEvent{Unread: count})
	}
}

// UnreadCount returns the user's unread total, served from cache when warm.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	if count, ok := s.cache.Get(ctx, userID); ok {
		return count, nil
	}
	count, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.cache.Set(ctx, userID, count)
	return count, nil
}

// MarkRead flips a single notification to read. Rows owned by someone else
// are indistinguishable from missing ones. Idempotent.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	n, err := s.store.GetNotification(ctx, userID, id)
	if err != nil {
		return err
	}
	if n.IsRead {
		return nil
	}
	if err := s.store.MarkNotificationRead(ctx, userID, id); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	s.cache.Evict(ctx, userID)
	return nil
}

// ClearAll hard-deletes every notification the user owns. No soft delete,
// no undo.
func (s *Service) ClearAll(ctx context.Context, userID string) error {
	if err := s.store.DeleteNotifications(ctx, userID); err != nil {
		return fmt.Errorf("clear notifications: %w", err)
	}
	s.cache.Evict(ctx, userID)
	return nil
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.store.ListNotifications(ctx, userID)
}
