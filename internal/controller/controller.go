// Package controller is the only mutation path for reminders: it validates
// input, writes to the document store, and keeps notification bindings in
// step with each record's lifecycle.
package controller

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"remindcal/internal/apperr"
	"remindcal/internal/auth"
	"remindcal/internal/docstore"
	"remindcal/internal/model"
	"remindcal/internal/notify"
	"remindcal/internal/store"
)

const (
	maxTitleLen       = 100
	maxDescriptionLen = 500
)

// ErrNoUser is returned when a mutation is attempted without a signed-in
// session.
var ErrNoUser = errors.New("not signed in")

// Input is the user-entered reminder form. Date carries the calendar day,
// Time the time of day; At combines them.
type Input struct {
	Title       string
	Description string
	Date        time.Time
	Time        time.Time
}

// At combines the date and time-of-day parts into the fire instant, in the
// date's location.
func (in Input) At() time.Time {
	return time.Date(
		in.Date.Year(), in.Date.Month(), in.Date.Day(),
		in.Time.Hour(), in.Time.Minute(), in.Time.Second(), 0,
		in.Date.Location(),
	)
}

// SaveResult reports a completed save. Warning is non-nil when the record
// was stored but no notification could be scheduled for it.
type SaveResult struct {
	Reminder model.Reminder
	Warning  error
}

// ReminderController orchestrates create, update and delete. One instance
// serves one session; at most one mutation is in flight at a time.
type ReminderController struct {
	docs      docstore.Store
	scheduler *notify.Scheduler
	cache     *store.ReminderStore
	session   auth.Session
	now       func() time.Time

	busy atomic.Bool
}

func New(docs docstore.Store, scheduler *notify.Scheduler, cache *store.ReminderStore, session auth.Session) *ReminderController {
	return &ReminderController{
		docs:      docs,
		scheduler: scheduler,
		cache:     cache,
		session:   session,
		now:       time.Now,
	}
}

// SetClock overrides the controller's clock. Tests only.
func (c *ReminderController) SetClock(now func() time.Time) {
	c.now = now
}

// Busy reports whether a mutation is in flight, so surfaces can disable
// their triggering controls.
func (c *ReminderController) Busy() bool {
	return c.busy.Load()
}

// Save validates the input and writes the reminder. With editingID it
// updates that record after cancelling its prior notification binding;
// otherwise it creates a record first so scheduling has a stable id, then
// persists the notification id with a second update. A re-entrant call while
// one is in flight is rejected with ErrBusy, never queued.
func (c *ReminderController) Save(ctx context.Context, in Input, editingID string) (SaveResult, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return SaveResult{}, apperr.ErrBusy
	}
	defer c.busy.Store(false)

	uid, ok := c.session.CurrentUserID()
	if !ok {
		return SaveResult{}, ErrNoUser
	}

	now := c.now()
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	when := in.At()
	if err := validate(title, description, when, now); err != nil {
		return SaveResult{}, err
	}

	path := store.CollectionPath(uid)
	record := docstore.Record{
		store.FieldTitle:       title,
		store.FieldDescription: description,
		store.FieldDate:        docstore.NewTimestamp(when),
		store.FieldUpdatedAt:   docstore.NewTimestamp(now),
	}

	var id string
	if editingID != "" {
		// Cancel-then-reschedule, never update in place: at most one
		// binding per reminder id.
		c.scheduler.Cancel(ctx, editingID)
		if err := c.docs.Update(ctx, path, editingID, record); err != nil {
			return SaveResult{}, err
		}
		id = editingID
	} else {
		record[store.FieldCreatedAt] = docstore.NewTimestamp(now)
		created, err := c.docs.Create(ctx, path, record)
		if err != nil {
			return SaveResult{}, err
		}
		id = created
	}

	reminder := model.Reminder{
		ID:          id,
		Title:       title,
		Description: description,
		Date:        when,
	}

	notificationID, schedErr := c.scheduler.Schedule(ctx, reminder)
	if schedErr != nil {
		// The reminder is saved either way; it just won't fire.
		return SaveResult{Reminder: reminder, Warning: schedErr}, nil
	}

	if err := c.docs.Update(ctx, path, id, docstore.Record{
		store.FieldNotificationID: notificationID,
		store.FieldUpdatedAt:      docstore.NewTimestamp(c.now()),
	}); err != nil {
		return SaveResult{}, err
	}
	reminder.NotificationID = notificationID

	return SaveResult{Reminder: reminder}, nil
}

// Remove cancels the notification binding first, then deletes the record.
// If the delete fails after cancellation, the notification is already gone;
// a missing notification is harmless, a duplicate one is not. A record that
// no longer exists reports apperr.ErrNotFound, meaning already deleted.
func (c *ReminderController) Remove(ctx context.Context, id string) error {
	if !c.busy.CompareAndSwap(false, true) {
		return apperr.ErrBusy
	}
	defer c.busy.Store(false)

	uid, ok := c.session.CurrentUserID()
	if !ok {
		return ErrNoUser
	}

	c.scheduler.Cancel(ctx, id)

	if err := c.docs.Delete(ctx, store.CollectionPath(uid), id); err != nil {
		return err
	}

	// Optimistic removal; the next snapshot reconciles either way.
	c.cache.RemoveLocal(id)
	return nil
}

// Restore rebinds notifications for every future-dated reminder of the
// session user. Pending notifications are in-memory only, so this runs once
// at startup. Per-reminder failures are logged and skipped.
func (c *ReminderController) Restore(ctx context.Context) error {
	uid, ok := c.session.CurrentUserID()
	if !ok {
		return nil
	}

	path := store.CollectionPath(uid)
	docs, err := c.docs.List(ctx, path, store.FieldDate)
	if err != nil {
		return err
	}

	now := c.now()
	for _, doc := range docs {
		reminder := store.DecodeReminder(doc, now.Location())
		if !reminder.Date.After(now) {
			continue
		}
		c.scheduler.Cancel(ctx, reminder.ID)
		notificationID, err := c.scheduler.Schedule(ctx, reminder)
		if err != nil {
			log.Printf("[warn] rebind reminder %s: %v", reminder.ID, err)
			continue
		}
		if err := c.docs.Update(ctx, path, reminder.ID, docstore.Record{
			store.FieldNotificationID: notificationID,
			store.FieldUpdatedAt:      docstore.NewTimestamp(c.now()),
		}); err != nil {
			log.Printf("[warn] persist rebinding %s: %v", reminder.ID, err)
		}
	}
	return nil
}

func validate(title, description string, when, now time.Time) error {
	if title == "" {
		return apperr.Validation(apperr.FieldTitle, "title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return apperr.Validation(apperr.FieldTitle, "title is too long")
	}
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return apperr.Validation(apperr.FieldDescription, "description is too long")
	}
	if !when.After(now) {
		return apperr.Validation(apperr.FieldDate, "must be in the future")
	}
	return nil
}
