/*
Package reminders announces lessons that are about to start.

PURPOSE:
  The ledger sends no messages itself. This job publishes a
  lesson.reminder event for every scheduled lesson that enters the lead
  window (default 24h ahead); the WhatsApp/push consumer turns those into
  messages for the student or guardian.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Each check covers [end of previous window, now + lead)
  - The first check after start covers [now, now + lead)
  - A failed publish keeps that lesson in the next window
  - Delivery is at-least-once; consumers key on lesson id

USAGE:
  job := reminders.New(store, publisher, log)
  job.Start()
  // ... later
  job.Stop()

SEE ALSO:
  - ledger/store.go: UpcomingLessonStore
  - events: lesson.reminder
*/
package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/lesson-ledger/events"
	"github.com/warp/lesson-ledger/ledger"
)

const (
	DefaultInterval = 5 * time.Minute
	DefaultLead     = 24 * time.Hour
)

// Scheduler periodically publishes reminders for upcoming lessons.
type Scheduler struct {
	Store         ledger.UpcomingLessonStore
	Events        events.Publisher
	Clock         ledger.Clock
	CheckInterval time.Duration
	Lead          time.Duration
	Logger        zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// coveredUntil is the exclusive end of the last window already announced.
	coveredUntil time.Time
}

func New(store ledger.UpcomingLessonStore, pub events.Publisher, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		Store:         store,
		Events:        pub,
		CheckInterval: DefaultInterval,
		Lead:          DefaultLead,
		Logger:        log.With().Str("component", "reminders").Logger(),
	}
}

// Start begins periodic checks. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.Logger.Info().Dur("interval", s.CheckInterval).Dur("lead", s.Lead).Msg("Reminder scheduler started")
}

// Stop halts the scheduler and waits for an in-flight check to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	ticker, stop := s.ticker, s.stop
	s.ticker, s.stop = nil, nil
	s.mu.Unlock()

	if ticker == nil {
		return
	}
	ticker.Stop()
	close(stop)
	s.wg.Wait()
	s.Logger.Info().Msg("Reminder scheduler stopped")
}

func (s *Scheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	s.check()
	for {
		select {
		case <-ticker.C:
			s.check()
		case <-stop:
			return
		}
	}
}

func (s *Scheduler) check() {
	ctx, cancel := context.WithTimeout(context.Background(), s.CheckInterval)
	defer cancel()
	if _, err := s.RunNow(ctx); err != nil {
		s.Logger.Error().Err(err).Time("next_run", s.NextRunTime()).Msg("Reminder check failed")
	}
}

// RunNow performs one check and returns how many reminders were published.
// Lessons are announced in start order. A failed publish stops the check
// and the window advances only to that lesson's start, so the next check
// retries it.
func (s *Scheduler) RunNow(ctx context.Context) (int, error) {
	s.mu.Lock()
	now := s.Clock.Now()
	from := s.coveredUntil
	if from.IsZero() || from.Before(now) {
		from = now
	}
	until := now.Add(s.Lead)
	s.mu.Unlock()

	if !from.Before(until) {
		return 0, nil
	}

	due, err := s.Store.ListScheduledStarting(ctx, from, until)
	if err != nil {
		return 0, err
	}

	sent := 0
	covered := until
	for _, d := range due {
		if err = s.Events.Publish(ctx, reminder(d)); err != nil {
			covered = d.Lesson.StartTime
			err = fmt.Errorf("failed to publish reminder for lesson %s: %w", d.Lesson.ID, err)
			break
		}
		sent++
	}

	s.mu.Lock()
	if covered.After(s.coveredUntil) {
		s.coveredUntil = covered
	}
	s.mu.Unlock()

	if sent > 0 {
		s.Logger.Info().Int("count", sent).Time("until", covered).Msg("Lesson reminders published")
	}
	return sent, err
}

// NextRunTime returns when the next periodic check will occur.
func (s *Scheduler) NextRunTime() time.Time {
	return s.Clock.Now().Add(s.CheckInterval)
}

func reminder(d ledger.DueLesson) events.Event {
	return events.Event{
		Type:      events.LessonReminder,
		TeacherID: string(d.TeacherID),
		StudentID: string(d.Lesson.StudentID),
		Payload: map[string]any{
			"lesson_id":    string(d.Lesson.ID),
			"student_name": d.Lesson.StudentName,
			"start_time":   d.Lesson.StartTime.UTC().Format(time.RFC3339),
			"topic":        d.Lesson.Topic,
			"has_homework": d.Lesson.HasHomework,
		},
	}
}
