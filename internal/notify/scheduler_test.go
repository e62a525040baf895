package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"remindcal/internal/apperr"
	"remindcal/internal/model"
)

// fakeService records scheduling calls in memory.
type fakeService struct {
	denied      bool
	scheduleErr error
	cancelErr   error
	nextID      int
	scheduled   map[string]Payload
	cancelled   []string
}

func newFakeService() *fakeService {
	return &fakeService{scheduled: make(map[string]Payload)}
}

func (f *fakeService) RequestPermission(ctx context.Context) (bool, error) {
	return !f.denied, nil
}

func (f *fakeService) ScheduleAt(ctx context.Context, at time.Time, p Payload) (string, error) {
	if f.scheduleErr != nil {
		return "", f.scheduleErr
	}
	f.nextID++
	id := fmt.Sprintf("n%d", f.nextID)
	f.scheduled[id] = p
	return id, nil
}

func (f *fakeService) Cancel(ctx context.Context, id string) error {
	f.cancelled = append(f.cancelled, id)
	if f.cancelErr != nil {
		return f.cancelErr
	}
	delete(f.scheduled, id)
	return nil
}

func (f *fakeService) ListScheduled(ctx context.Context) ([]Scheduled, error) {
	var out []Scheduled
	for id, p := range f.scheduled {
		out = append(out, Scheduled{ID: id, Payload: p})
	}
	return out, nil
}

func futureReminder(id string) model.Reminder {
	return model.Reminder{
		ID:    id,
		Title: "dentist",
		Date:  time.Now().Add(time.Hour),
	}
}

func TestSchedule_BindsPayloadToReminder(t *testing.T) {
	svc := newFakeService()
	s := NewScheduler(svc, 42)

	id, err := s.Schedule(context.Background(), futureReminder("r1"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	p := svc.scheduled[id]
	require.Equal(t, "r1", p.ReminderID)
	require.Equal(t, int64(42), p.ChatID)
	require.Contains(t, p.Title, "dentist")
	require.Equal(t, "Time for your reminder!", p.Body, "empty description gets the default body")
}

func TestSchedule_PermissionDenied(t *testing.T) {
	svc := newFakeService()
	svc.denied = true
	s := NewScheduler(svc, 1)

	_, err := s.Schedule(context.Background(), futureReminder("r1"))

	var se *apperr.SchedulingError
	require.ErrorAs(t, err, &se)
	require.Empty(t, svc.scheduled, "nothing scheduled without permission")
}

func TestSchedule_BackendFailure(t *testing.T) {
	svc := newFakeService()
	svc.scheduleErr = errors.New("backend down")
	s := NewScheduler(svc, 1)

	_, err := s.Schedule(context.Background(), futureReminder("r1"))

	var se *apperr.SchedulingError
	require.ErrorAs(t, err, &se)
}

func TestCancel_RemovesAllBindingsForReminder(t *testing.T) {
	svc := newFakeService()
	s := NewScheduler(svc, 1)
	ctx := context.Background()

	// Two orphaned bindings for the same reminder, one for another.
	_, err := s.Schedule(ctx, futureReminder("r1"))
	require.NoError(t, err)
	_, err = s.Schedule(ctx, futureReminder("r1"))
	require.NoError(t, err)
	keep, err := s.Schedule(ctx, futureReminder("r2"))
	require.NoError(t, err)

	s.Cancel(ctx, "r1")

	require.Len(t, svc.scheduled, 1)
	require.Contains(t, svc.scheduled, keep)
}

func TestCancel_NoBindingIsNoop(t *testing.T) {
	svc := newFakeService()
	s := NewScheduler(svc, 1)

	// Must not panic, error or touch anything.
	s.Cancel(context.Background(), "unknown")
	require.Empty(t, svc.cancelled)
}

func TestCancel_ErrorsAreSwallowed(t *testing.T) {
	svc := newFakeService()
	svc.cancelErr = errors.New("already fired")
	s := NewScheduler(svc, 1)
	ctx := context.Background()

	_, err := s.Schedule(ctx, futureReminder("r1"))
	require.NoError(t, err)

	// Cancellation failure is logged, never propagated.
	s.Cancel(ctx, "r1")
	require.NotEmpty(t, svc.cancelled)
}

func TestCancelThenReschedule_SingleBinding(t *testing.T) {
	svc := newFakeService()
	s := NewScheduler(svc, 1)
	ctx := context.Background()

	_, err := s.Schedule(ctx, futureReminder("r1"))
	require.NoError(t, err)

	// The edit policy: cancel first, then schedule anew.
	s.Cancel(ctx, "r1")
	_, err = s.Schedule(ctx, futureReminder("r1"))
	require.NoError(t, err)

	count := 0
	for _, p := range svc.scheduled {
		if p.ReminderID == "r1" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestOnceAt_FiresExactlyOnce(t *testing.T) {
	at := time.Now().Add(time.Hour)
	sched := onceAt{at: at}

	require.Equal(t, at, sched.Next(time.Now()))
	require.True(t, sched.Next(at).IsZero(), "no further runs after the instant")
	require.True(t, sched.Next(at.Add(time.Minute)).IsZero())
}

func TestCronService_ScheduleListCancel(t *testing.T) {
	svc := NewCronService(time.UTC, func(Payload) {})
	ctx := context.Background()

	granted, err := svc.RequestPermission(ctx)
	require.NoError(t, err)
	require.True(t, granted)

	id, err := svc.ScheduleAt(ctx, time.Now().Add(time.Hour), Payload{ReminderID: "r1"})
	require.NoError(t, err)

	scheduled, err := svc.ListScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	require.Equal(t, id, scheduled[0].ID)
	require.Equal(t, "r1", scheduled[0].Payload.ReminderID)

	require.NoError(t, svc.Cancel(ctx, id))
	require.NoError(t, svc.Cancel(ctx, id), "cancelling twice is a no-op")

	scheduled, err = svc.ListScheduled(ctx)
	require.NoError(t, err)
	require.Empty(t, scheduled)
}

func TestCronService_NoSenderIsDenied(t *testing.T) {
	svc := NewCronService(time.UTC, nil)
	ctx := context.Background()

	granted, err := svc.RequestPermission(ctx)
	require.NoError(t, err)
	require.False(t, granted)

	_, err = svc.ScheduleAt(ctx, time.Now().Add(time.Hour), Payload{ReminderID: "r1"})
	require.Error(t, err)

	svc.SetSender(func(Payload) {})
	granted, err = svc.RequestPermission(ctx)
	require.NoError(t, err)
	require.True(t, granted)
}

func TestCronService_DeliversDueNotification(t *testing.T) {
	fired := make(chan Payload, 1)
	svc := NewCronService(time.UTC, func(p Payload) { fired <- p })
	svc.Start()
	defer svc.Stop()

	_, err := svc.ScheduleAt(context.Background(), time.Now().Add(50*time.Millisecond), Payload{ReminderID: "r1"})
	require.NoError(t, err)

	select {
	case p := <-fired:
		require.Equal(t, "r1", p.ReminderID)
	case <-time.After(3 * time.Second):
		t.Fatal("notification never fired")
	}

	scheduled, err := svc.ListScheduled(context.Background())
	require.NoError(t, err)
	require.Empty(t, scheduled, "fired notifications are retired")
}
