package core

import (
	"sync"
	"time"
)

const defaultNotificationLimit = 10

// NotificationSeverity classifies a user-facing notification.
type NotificationSeverity string

// Notification severities.
const (
	NotificationSuccess NotificationSeverity = "success"
	NotificationError   NotificationSeverity = "error"
	NotificationWarning NotificationSeverity = "warning"
	NotificationInfo    NotificationSeverity = "info"
)

// Notification is a transient message for whoever drives the ledger. It is
// never persisted.
type Notification struct {
	ID        int64                `json:"id"`
	Severity  NotificationSeverity `json:"severity"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	CreatedAt time.Time            `json:"created_at"`
}

// notificationQueue keeps the most recent notifications, newest first.
type notificationQueue struct {
	mu    sync.Mutex
	seq   int64
	limit int
	items []Notification
}

func newNotificationQueue(limit int) *notificationQueue {
	return &notificationQueue{limit: limit}
}

func (q *notificationQueue) push(n Notification) Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	n.ID = q.seq
	q.items = append([]Notification{n}, q.items...)
	if len(q.items) > q.limit {
		q.items = q.items[:q.limit]
	}
	return n
}

func (q *notificationQueue) remove(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, n := range q.items {
		if n.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

func (q *notificationQueue) list() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Notification(nil), q.items...)
}

// AddNotification queues n and returns it with its assigned id.
func (s *Service) AddNotification(n Notification) Notification {
	if n.Severity == "" {
		n.Severity = NotificationInfo
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	return s.notifications.push(n)
}

// RemoveNotification drops the notification with id, reporting whether it was queued.
func (s *Service) RemoveNotification(id int64) bool {
	return s.notifications.remove(id)
}

// Notifications returns queued notifications, newest first.
func (s *Service) Notifications() []Notification {
	return s.notifications.list()
}
