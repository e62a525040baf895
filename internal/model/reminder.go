package model

import "time"

// Reminder is a user-scheduled, time-bound note with an optional local
// notification bound to its fire time.
type Reminder struct {
	ID             string
	Title          string
	Description    string
	Date           time.Time
	NotificationID string // empty when no notification is currently bound
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Past reports whether the reminder's fire time is already behind now.
// Past reminders stay visible and editable, they are only flagged.
func (r Reminder) Past(now time.Time) bool {
	return r.Date.Before(now)
}
