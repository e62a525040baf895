// Package store maintains the live, ordered cache of one user's reminders,
// fed by the document store's push subscription.
package store

import (
	"sort"
	"sync"
	"time"

	"remindcal/internal/auth"
	"remindcal/internal/calendar"
	"remindcal/internal/docstore"
	"remindcal/internal/model"
)

// Reminder document field names.
const (
	FieldTitle          = "title"
	FieldDescription    = "description"
	FieldDate           = "date"
	FieldNotificationID = "notificationId"
	FieldCreatedAt      = "createdAt"
	FieldUpdatedAt      = "updatedAt"
)

// CollectionPath returns the reminder collection for a user.
func CollectionPath(uid string) string {
	return "users/" + uid + "/reminders"
}

// ReminderStore owns the in-memory reminder cache. Only subscription
// snapshots write to it, with one exception: RemoveLocal, the optimistic
// removal after a confirmed delete, which the next snapshot reconciles.
type ReminderStore struct {
	docs docstore.Store
	loc  *time.Location

	mu        sync.Mutex
	reminders []model.Reminder
	lastErr   error
	sub       *docstore.Subscription
	onChange  func()
}

func NewReminderStore(docs docstore.Store, loc *time.Location) *ReminderStore {
	if loc == nil {
		loc = time.Local
	}
	return &ReminderStore{docs: docs, loc: loc}
}

// SetOnChange registers a hook invoked after every applied snapshot. The bot
// uses it to re-render; tests use it to observe delivery.
func (s *ReminderStore) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Subscribe attaches to the session user's reminder collection. With no
// signed-in user the cache is cleared and nothing is subscribed: absence of
// a user is "no data", not an error. Any previous subscription is cancelled.
func (s *ReminderStore) Subscribe(session auth.Session) {
	s.Cancel()

	uid, ok := session.CurrentUserID()
	if !ok {
		s.mu.Lock()
		s.reminders = nil
		s.lastErr = nil
		s.mu.Unlock()
		return
	}

	sub := s.docs.Subscribe(CollectionPath(uid), FieldDate)

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()

	go func() {
		for ev := range sub.Events() {
			s.apply(ev)
		}
	}()
}

// Cancel detaches the current subscription. Idempotent and safe with no
// active subscription or after the owning session ended.
func (s *ReminderStore) Cancel() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}

// Reminders returns the current snapshot, ordered by date ascending with id
// as tiebreak.
func (s *ReminderStore) Reminders() []model.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Reminder, len(s.reminders))
	copy(out, s.reminders)
	return out
}

// RemindersOn returns the reminders on date's calendar day.
func (s *ReminderStore) RemindersOn(date time.Time) []model.Reminder {
	return calendar.RemindersOn(s.Reminders(), date)
}

// Err returns the last subscription error, if any. The cached data is the
// last-known-good snapshot regardless.
func (s *ReminderStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// RemoveLocal drops id from the cache immediately. Provisional: the next
// authoritative snapshot overwrites the whole set either way.
func (s *ReminderStore) RemoveLocal(id string) {
	s.mu.Lock()
	kept := s.reminders[:0]
	for _, r := range s.reminders {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	s.reminders = kept
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// apply replaces the cache with a decoded snapshot, or records the error
// while preserving the last-known-good data.
func (s *ReminderStore) apply(ev docstore.Event) {
	if ev.Err != nil {
		s.mu.Lock()
		s.lastErr = ev.Err
		fn := s.onChange
		s.mu.Unlock()
		if fn != nil {
			fn()
		}
		return
	}

	reminders := make([]model.Reminder, 0, len(ev.Docs))
	for _, doc := range ev.Docs {
		reminders = append(reminders, DecodeReminder(doc, s.loc))
	}
	sort.Slice(reminders, func(i, j int) bool {
		if !reminders[i].Date.Equal(reminders[j].Date) {
			return reminders[i].Date.Before(reminders[j].Date)
		}
		return reminders[i].ID < reminders[j].ID
	})

	s.mu.Lock()
	s.reminders = reminders
	s.lastErr = nil
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// DecodeReminder normalizes a raw document into a Reminder. Date fields may
// arrive in the store's timestamp encoding and are converted to absolute
// instants in loc.
func DecodeReminder(doc docstore.Document, loc *time.Location) model.Reminder {
	r := model.Reminder{ID: doc.ID}
	if v, ok := doc.Data[FieldTitle].(string); ok {
		r.Title = v
	}
	if v, ok := doc.Data[FieldDescription].(string); ok {
		r.Description = v
	}
	if v, ok := doc.Data[FieldNotificationID].(string); ok {
		r.NotificationID = v
	}
	if t, ok := docstore.NormalizeTime(doc.Data[FieldDate]); ok {
		r.Date = t.In(loc)
	}
	if t, ok := docstore.NormalizeTime(doc.Data[FieldCreatedAt]); ok {
		r.CreatedAt = t.In(loc)
	}
	if t, ok := docstore.NormalizeTime(doc.Data[FieldUpdatedAt]); ok {
		r.UpdatedAt = t.In(loc)
	}
	return r
}
