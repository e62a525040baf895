// Package notify keeps local notifications bound to reminder fire times.
// The Service interface is the delivery primitive; Scheduler enforces the
// one-binding-per-reminder policy on top of it.
package notify

import (
	"context"
	"time"
)

// Payload is the content carried by a scheduled notification. ReminderID is
// the binding key used for cancellation.
type Payload struct {
	ReminderID string
	Title      string
	Body       string
	ChatID     int64
}

// Scheduled describes one pending notification.
type Scheduled struct {
	ID      string
	Payload Payload
}

// Service is the notification backend contract.
type Service interface {
	// RequestPermission reports whether notifications can be delivered.
	RequestPermission(ctx context.Context) (bool, error)
	// ScheduleAt registers a one-shot notification and returns its id.
	ScheduleAt(ctx context.Context, at time.Time, p Payload) (string, error)
	// Cancel drops a pending notification. Unknown ids are a no-op.
	Cancel(ctx context.Context, id string) error
	// ListScheduled enumerates pending notifications.
	ListScheduled(ctx context.Context) ([]Scheduled, error)
}
