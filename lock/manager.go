// Package lock owns the per-task single-writer edit lock. Locking here is
// advisory: it redirects cooperative clients to a read view, it is not
// mutual exclusion enforced by the storage layer.
package lock

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

// Store persists lock transitions on the task row so lock state survives a
// restart and stays visible to plain reads.
type Store interface {
	UpdateTaskLock(ctx context.Context, boardID, taskID, lockedBy string, lockedAt time.Time) error
	ClearTaskLock(ctx context.Context, boardID, taskID string) error
}

// Publisher is the broadcast side of a lock transition.
type Publisher interface {
	Publish(room domain.RoomKey, event any)
}

// Grant is the outcome of an Acquire call. When Granted is false, Holder
// names the current editor the caller should be redirected to read-only
// mode for.
type Grant struct {
	Granted    bool
	Holder     string
	AcquiredAt time.Time
}

type taskLock struct {
	// mu serializes transitions for one task, including the store write, so
	// concurrent acquires cannot both win. Store latency on this task never
	// blocks any other task.
	mu         sync.Mutex
	holder     string
	acquiredAt time.Time
}

// Manager holds the lock table. One entry per task ever locked; entries are
// tiny and live for the process lifetime.
type Manager struct {
	store  Store
	hub    Publisher
	ttl    time.Duration // 0 disables expiry
	logger *log.Logger

	mu    sync.Mutex
	locks map[string]*taskLock
}

// NewManager constructs a Manager. ttl > 0 makes abandoned locks stealable
// once they are older than ttl.
func NewManager(store Store, hub Publisher, ttl time.Duration, logger *log.Logger) *Manager {
	return &Manager{
		store:  store,
		hub:    hub,
		ttl:    ttl,
		logger: logger,
		locks:  make(map[string]*taskLock),
	}
}

func (m *Manager) entry(taskID string) *taskLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.locks[taskID]
	if l == nil {
		l = &taskLock{}
		m.locks[taskID] = l
	}
	return l
}

func (m *Manager) expired(acquiredAt, now time.Time) bool {
	return m.ttl > 0 && now.Sub(acquiredAt) > m.ttl
}

// Acquire transitions the task to LOCKED(requester) and broadcasts
// task_locked to the board room. Re-acquire by the current holder is
// idempotent and does not refresh acquiredAt, so polling cannot hold off
// TTL expiry. When another user holds a live lock the call returns a denial
// with no state change and no event.
//
// The store write happens before the in-memory transition and the
// broadcast: if persisting fails, nothing changed and nothing is emitted.
func (m *Manager) Acquire(ctx context.Context, boardID, taskID, requester string) (Grant, error) {
	l := m.entry(taskID)
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	if l.holder != "" && !m.expired(l.acquiredAt, now) {
		if l.holder == requester {
			return Grant{Granted: true, Holder: requester, AcquiredAt: l.acquiredAt}, nil
		}
		return Grant{Granted: false, Holder: l.holder}, nil
	}

	if prev := l.holder; prev != "" {
		m.logger.WithFields(log.Fields{
			"task":       taskID,
			"stale":      prev,
			"requester":  requester,
			"acquiredAt": l.acquiredAt,
		}).Info("stealing expired task lock")
	}

	if err := m.store.UpdateTaskLock(ctx, boardID, taskID, requester, now); err != nil {
		return Grant{}, err
	}
	l.holder = requester
	l.acquiredAt = now

	m.hub.Publish(domain.BoardRoom(boardID), domain.NewTaskLockedEvent(taskID, requester))
	return Grant{Granted: true, Holder: requester, AcquiredAt: now}, nil
}

// Release transitions the task back to UNLOCKED and broadcasts
// task_unlocked. Releasing an unlocked task is a no-op success, so a stale
// cancel after a timeout steal does no harm. Releasing after expiry scrubs
// the durable row and broadcasts, whoever the requester is: the task row
// would otherwise keep naming a dead holder until the next acquire.
// Releasing someone else's live lock fails with ErrLockViolation and
// changes nothing.
func (m *Manager) Release(ctx context.Context, boardID, taskID, requester string) error {
	l := m.entry(taskID)
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	if l.holder == "" {
		return nil
	}
	if m.expired(l.acquiredAt, now) {
		if err := m.store.ClearTaskLock(ctx, boardID, taskID); err != nil {
			return err
		}
		l.holder = ""
		l.acquiredAt = time.Time{}
		m.hub.Publish(domain.BoardRoom(boardID), domain.NewTaskUnlockedEvent(taskID))
		return nil
	}
	if l.holder != requester {
		return domain.ErrLockViolation
	}

	if err := m.store.ClearTaskLock(ctx, boardID, taskID); err != nil {
		return err
	}
	l.holder = ""
	l.acquiredAt = time.Time{}

	m.hub.Publish(domain.BoardRoom(boardID), domain.NewTaskUnlockedEvent(taskID))
	return nil
}

// Holder reports the current live holder of a task lock, if any.
func (m *Manager) Holder(taskID string) (string, bool) {
	l := m.entry(taskID)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder == "" || m.expired(l.acquiredAt, time.Now().UTC()) {
		return "", false
	}
	return l.holder, true
}
