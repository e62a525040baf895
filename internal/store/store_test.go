package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"remindcal/internal/auth"
	"remindcal/internal/docstore"
)

// fakeDocs hands out subscriptions the test feeds by hand.
type fakeDocs struct {
	mu          sync.Mutex
	subs        []*docstore.Subscription
	collections []string
}

func (f *fakeDocs) Subscribe(collection, orderBy string) *docstore.Subscription {
	sub := docstore.NewSubscription(nil)
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.collections = append(f.collections, collection)
	f.mu.Unlock()
	return sub
}

func (f *fakeDocs) Create(ctx context.Context, collection string, data docstore.Record) (string, error) {
	return "", nil
}
func (f *fakeDocs) Update(ctx context.Context, collection, id string, partial docstore.Record) error {
	return nil
}
func (f *fakeDocs) Delete(ctx context.Context, collection, id string) error { return nil }
func (f *fakeDocs) List(ctx context.Context, collection, orderBy string) ([]docstore.Document, error) {
	return nil, nil
}

func (f *fakeDocs) lastSub(t *testing.T) *docstore.Subscription {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.subs)
	return f.subs[len(f.subs)-1]
}

func newTestStore(t *testing.T) (*ReminderStore, *fakeDocs, chan struct{}) {
	t.Helper()
	docs := &fakeDocs{}
	s := NewReminderStore(docs, time.UTC)
	changed := make(chan struct{}, 16)
	s.SetOnChange(func() { changed <- struct{}{} })
	s.Subscribe(auth.NewMemory("u1"))
	t.Cleanup(s.Cancel)
	return s, docs, changed
}

func waitChange(t *testing.T, changed chan struct{}) {
	t.Helper()
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("store never applied the snapshot")
	}
}

func reminderDoc(id, title string, date time.Time) docstore.Document {
	return docstore.Document{
		ID: id,
		Data: docstore.Record{
			FieldTitle: title,
			FieldDate:  docstore.NewTimestamp(date),
		},
	}
}

func TestSubscribe_UsesUserCollection(t *testing.T) {
	_, docs, _ := newTestStore(t)
	require.Equal(t, []string{"users/u1/reminders"}, docs.collections)
}

func TestSubscribe_NoUserMeansNoData(t *testing.T) {
	docs := &fakeDocs{}
	s := NewReminderStore(docs, time.UTC)

	session := auth.NewMemory("u1")
	session.SignOut()
	s.Subscribe(session)

	require.Empty(t, docs.subs, "signed-out sessions never subscribe")
	require.Empty(t, s.Reminders())
	require.NoError(t, s.Err())
}

func TestSnapshot_ReplacesAndSorts(t *testing.T) {
	s, docs, changed := newTestStore(t)
	sub := docs.lastSub(t)

	base := time.Date(2030, time.May, 10, 9, 0, 0, 0, time.UTC)
	sub.Push(docstore.Event{Docs: []docstore.Document{
		reminderDoc("b", "tie two", base),
		reminderDoc("c", "later", base.Add(time.Hour)),
		reminderDoc("a", "tie one", base),
	}})
	waitChange(t, changed)

	got := s.Reminders()
	require.Len(t, got, 3)
	// Date ascending, ties broken by id.
	require.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})

	// The next snapshot fully replaces the previous one.
	sub.Push(docstore.Event{Docs: []docstore.Document{
		reminderDoc("d", "only one left", base),
	}})
	waitChange(t, changed)

	got = s.Reminders()
	require.Len(t, got, 1)
	require.Equal(t, "d", got[0].ID)
}

func TestSnapshot_NormalizesWireTimestamps(t *testing.T) {
	s, docs, changed := newTestStore(t)
	sub := docs.lastSub(t)

	at := time.Date(2030, time.May, 10, 9, 30, 0, 0, time.UTC)
	// The shape timestamps take after a JSON round trip through storage.
	sub.Push(docstore.Event{Docs: []docstore.Document{{
		ID: "a",
		Data: docstore.Record{
			FieldTitle:          "wire format",
			FieldDescription:    "raw map timestamp",
			FieldNotificationID: "n1",
			FieldDate:           map[string]any{"_seconds": float64(at.Unix()), "_nanos": float64(0)},
		},
	}}})
	waitChange(t, changed)

	got := s.Reminders()
	require.Len(t, got, 1)
	require.True(t, got[0].Date.Equal(at))
	require.Equal(t, "n1", got[0].NotificationID)
	require.Equal(t, "raw map timestamp", got[0].Description)
}

func TestError_KeepsLastKnownGood(t *testing.T) {
	s, docs, changed := newTestStore(t)
	sub := docs.lastSub(t)

	base := time.Date(2030, time.May, 10, 9, 0, 0, 0, time.UTC)
	sub.Push(docstore.Event{Docs: []docstore.Document{reminderDoc("a", "keep me", base)}})
	waitChange(t, changed)

	sub.Push(docstore.Event{Err: errors.New("subscription broke")})
	waitChange(t, changed)

	// Stale-but-available beats empty.
	require.Len(t, s.Reminders(), 1)
	require.Error(t, s.Err())

	// A later good snapshot clears the error.
	sub.Push(docstore.Event{Docs: nil})
	waitChange(t, changed)
	require.NoError(t, s.Err())
	require.Empty(t, s.Reminders())
}

func TestCancel_Idempotent(t *testing.T) {
	s, _, _ := newTestStore(t)

	s.Cancel()
	s.Cancel() // repeated cancel, and cancel with nothing active, are no-ops

	fresh := NewReminderStore(&fakeDocs{}, time.UTC)
	fresh.Cancel() // never subscribed
}

func TestRemoveLocal_OptimisticUntilNextSnapshot(t *testing.T) {
	s, docs, changed := newTestStore(t)
	sub := docs.lastSub(t)

	base := time.Date(2030, time.May, 10, 9, 0, 0, 0, time.UTC)
	sub.Push(docstore.Event{Docs: []docstore.Document{
		reminderDoc("a", "stays", base),
		reminderDoc("b", "deleted locally", base.Add(time.Hour)),
	}})
	waitChange(t, changed)

	s.RemoveLocal("b")
	waitChange(t, changed)
	require.Len(t, s.Reminders(), 1)

	// The authoritative snapshot wins, whatever it says.
	sub.Push(docstore.Event{Docs: []docstore.Document{
		reminderDoc("a", "stays", base),
		reminderDoc("b", "server still has it", base.Add(time.Hour)),
	}})
	waitChange(t, changed)
	require.Len(t, s.Reminders(), 2)
}

func TestRemindersOn_FiltersByCalendarDay(t *testing.T) {
	s, docs, changed := newTestStore(t)
	sub := docs.lastSub(t)

	day := time.Date(2030, time.May, 10, 0, 0, 0, 0, time.UTC)
	sub.Push(docstore.Event{Docs: []docstore.Document{
		reminderDoc("a", "morning", day.Add(8*time.Hour)),
		reminderDoc("b", "evening", day.Add(20*time.Hour)),
		reminderDoc("c", "tomorrow", day.AddDate(0, 0, 1)),
	}})
	waitChange(t, changed)

	require.Len(t, s.RemindersOn(day), 2)
	require.Len(t, s.RemindersOn(day.AddDate(0, 0, 1)), 1)
	require.Empty(t, s.RemindersOn(day.AddDate(0, 0, 2)))
}

func TestResubscribe_CancelsPrevious(t *testing.T) {
	s, docs, _ := newTestStore(t)
	first := docs.lastSub(t)

	s.Subscribe(auth.NewMemory("u2"))

	// The first stream is closed; pushing to it is a silent no-op.
	first.Push(docstore.Event{})
	_, open := <-first.Events()
	require.False(t, open)

	require.Equal(t, []string{"users/u1/reminders", "users/u2/reminders"}, docs.collections)
}
