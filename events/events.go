/*
Package events publishes domain events for downstream consumers.

PURPOSE:
  The lesson ledger itself sends no notifications. It announces what
  happened (a lesson was scheduled, a package was bought, ...) and
  consumers such as the reminder or messaging workers react to it.

DELIVERY:
  Events are published after the write they describe has committed.
  A failed publish is logged by the caller and never rolls back the write.

IMPLEMENTATIONS:
  Nop:             drops events (no broker configured)
  LogPublisher:    writes events to the zerolog logger
  Recorder:        keeps events in memory (tests)
  RabbitPublisher: persistent JSON messages on an AMQP topic exchange

SEE ALSO:
  - rabbitmq.go: AMQP publisher
*/
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Type string

const (
	LessonScheduled  Type = "lesson.scheduled"
	LessonCompleted  Type = "lesson.completed"
	LessonCancelled  Type = "lesson.cancelled"
	LessonDeleted    Type = "lesson.deleted"
	LessonReminder   Type = "lesson.reminder"
	PaymentRecorded  Type = "payment.recorded"
	PaymentDeleted   Type = "payment.deleted"
	PackagePurchased Type = "package.purchased"
)

type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	TeacherID  string         `json:"teacher_id"`
	StudentID  string         `json:"student_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// stamp fills ID and OccurredAt when the caller left them empty.
func (e Event) stamp() Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return e
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// =============================================================================
// NOP / LOG
// =============================================================================

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

type LogPublisher struct {
	Logger zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{Logger: log}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	e = e.stamp()
	p.Logger.Info().
		Str("event_id", e.ID).
		Str("event", string(e.Type)).
		Str("teacher_id", e.TeacherID).
		Str("student_id", e.StudentID).
		Fields(e.Payload).
		Msg("domain event")
	return nil
}

// =============================================================================
// RECORDER
// =============================================================================

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e.stamp())
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of one type, in publish order.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
