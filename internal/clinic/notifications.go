package clinic

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NotificationStore persists user notifications.
type NotificationStore interface {
	Create(ctx context.Context, n *Notification) error
	Find(ctx context.Context, id string) (*Notification, error)
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*Notification, error)
	Update(ctx context.Context, n *Notification) error
}

// Notifications records and delivers per-user notifications.
type Notifications struct {
	store NotificationStore
	now   func() time.Time
}

// NewNotifications constructs the notification service.
func NewNotifications(store NotificationStore) *Notifications {
	return &Notifications{store: store, now: time.Now}
}

// Create validates and stores a notification in sent state.
func (s *Notifications) Create(ctx context.Context, n *Notification) (*Notification, error) {
	if strings.TrimSpace(n.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(n.Title) == "" || strings.TrimSpace(n.Message) == "" {
		return nil, fmt.Errorf("%w: title and message are required", ErrInvalidInput)
	}
	if !validNotifyType(n.Type) {
		return nil, fmt.Errorf("%w: unsupported notification type %s", ErrInvalidInput, n.Type)
	}
	now := s.now().UTC()
	n.Status = NotificationSent
	n.SentAt = &now
	n.CreatedAt = now
	if n.ScheduledFor.IsZero() {
		n.ScheduledFor = now
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// ListByUser returns a user's notifications, newest first.
func (s *Notifications) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.ListByUser(ctx, userID, unreadOnly)
}

// MarkRead transitions a notification to read. Reading twice is a no-op.
func (s *Notifications) MarkRead(ctx context.Context, id string) (*Notification, error) {
	n, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.ReadAt != nil {
		return n, nil
	}
	now := s.now().UTC()
	n.Status = NotificationRead
	n.ReadAt = &now
	if err := s.store.Update(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// MarkReadFor is MarkRead guarded by ownership: a notification belonging to
// someone else reads as not found so ids cannot be probed.
func (s *Notifications) MarkReadFor(ctx context.Context, id, userID string) (*Notification, error) {
	n, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, ErrNotFound
	}
	return s.MarkRead(ctx, id)
}

func validNotifyType(t string) bool {
	switch t {
	case NotifyAppointment, NotifyFollowUp, NotifySystem, NotifyMessage, NotifyReminder:
		return true
	}
	return false
}
