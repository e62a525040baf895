package notify

import (
	"context"
	"log"

	"remindcal/internal/apperr"
	"remindcal/internal/model"
)

// Scheduler binds notifications to reminders. It guarantees at most one
// active binding per reminder id: edits always cancel then reschedule.
type Scheduler struct {
	svc    Service
	chatID int64
}

// NewScheduler wraps svc for one delivery target.
func NewScheduler(svc Service, chatID int64) *Scheduler {
	return &Scheduler{svc: svc, chatID: chatID}
}

// Schedule registers a notification at the reminder's fire time with a
// payload carrying the reminder id. Failure is a SchedulingError; the caller
// treats it as a soft warning, not a save failure.
func (s *Scheduler) Schedule(ctx context.Context, r model.Reminder) (string, error) {
	granted, err := s.svc.RequestPermission(ctx)
	if err != nil {
		return "", &apperr.SchedulingError{Err: err}
	}
	if !granted {
		return "", &apperr.SchedulingError{Err: errPermissionDenied}
	}

	body := r.Description
	if body == "" {
		body = "Time for your reminder!"
	}
	id, err := s.svc.ScheduleAt(ctx, r.Date, Payload{
		ReminderID: r.ID,
		Title:      "🔔 Reminder: " + r.Title,
		Body:       body,
		ChatID:     s.chatID,
	})
	if err != nil {
		return "", &apperr.SchedulingError{Err: err}
	}
	return id, nil
}

// Cancel drops every pending notification bound to reminderID, defensively
// catching orphaned duplicates from earlier failed updates. Cancellation
// errors are logged, never propagated: a notification that is already gone
// may simply have fired.
func (s *Scheduler) Cancel(ctx context.Context, reminderID string) {
	scheduled, err := s.svc.ListScheduled(ctx)
	if err != nil {
		log.Printf("[warn] list notifications: %v", err)
		return
	}
	for _, n := range scheduled {
		if n.Payload.ReminderID != reminderID {
			continue
		}
		if err := s.svc.Cancel(ctx, n.ID); err != nil {
			log.Printf("[warn] cancel notification %s: %v", n.ID, err)
		}
	}
}

type permissionError string

func (e permissionError) Error() string { return string(e) }

const errPermissionDenied = permissionError("notification permission denied")
