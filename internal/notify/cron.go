package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Sender delivers a fired notification to the user.
type Sender func(p Payload)

type cronEntry struct {
	entryID cron.EntryID
	at      time.Time
	payload Payload
}

// CronService implements Service with in-process one-shot cron schedules.
// Pending notifications live in memory only; callers rebind them on restart.
type CronService struct {
	cron *cron.Cron

	mu      sync.Mutex
	send    Sender
	entries map[string]cronEntry
}

func NewCronService(loc *time.Location, send Sender) *CronService {
	if loc == nil {
		loc = time.Local
	}
	return &CronService{
		cron:    cron.New(cron.WithLocation(loc)),
		send:    send,
		entries: make(map[string]cronEntry),
	}
}

// SetSender wires the delivery function. The bot provides it after
// construction because it needs the service first.
func (s *CronService) SetSender(send Sender) {
	s.mu.Lock()
	s.send = send
	s.mu.Unlock()
}

func (s *CronService) Start() {
	s.cron.Start()
}

func (s *CronService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// ScheduleInterval registers a periodic job on the same cron instance, used
// for the agenda digest.
func (s *CronService) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	spec := fmt.Sprintf("@every %ds", seconds)
	return s.cron.AddFunc(spec, job)
}

// RequestPermission is granted when a sender is wired. Without one, every
// schedule attempt would silently drop, so report denied up front.
func (s *CronService) RequestPermission(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send != nil, nil
}

func (s *CronService) ScheduleAt(ctx context.Context, at time.Time, p Payload) (string, error) {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.send == nil {
		return "", fmt.Errorf("no notification sender configured")
	}
	entryID := s.cron.Schedule(onceAt{at: at}, cron.FuncJob(func() {
		s.fire(id)
	}))
	s.entries[id] = cronEntry{entryID: entryID, at: at, payload: p}
	return id, nil
}

func (s *CronService) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		// Already fired or never scheduled.
		return nil
	}
	s.cron.Remove(entry.entryID)
	delete(s.entries, id)
	return nil
}

func (s *CronService) ListScheduled(ctx context.Context) ([]Scheduled, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Scheduled, 0, len(s.entries))
	for id, entry := range s.entries {
		out = append(out, Scheduled{ID: id, Payload: entry.payload})
	}
	return out, nil
}

// fire delivers and retires a notification when its schedule triggers.
func (s *CronService) fire(id string) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if ok {
		s.cron.Remove(entry.entryID)
		delete(s.entries, id)
	}
	send := s.send
	s.mu.Unlock()

	if ok && send != nil {
		send(entry.payload)
	}
}

// onceAt is a cron schedule that triggers exactly once at a fixed instant.
// After the instant passes, Next reports zero and cron never runs it again.
type onceAt struct {
	at time.Time
}

func (o onceAt) Next(t time.Time) time.Time {
	if o.at.After(t) {
		return o.at
	}
	return time.Time{}
}
