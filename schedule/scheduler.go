/*
Package schedule creates lessons and moves them through their lifecycle.

PURPOSE:
  Books single or weekly-recurring lessons for a student, guarding the
  teacher's calendar against double booking and, for package students,
  spending one prepaid credit per booked lesson.

BOOKING (CreateLessons):
  1. Validate the request
  2. Inside one per-teacher transaction:
       a. Load the student (NotFound otherwise)
       b. Credit gate: credits >= occurrences when UseCredit
       c. Expand to weekly occurrences sharing one RecurringGroupID
       d. Every occurrence must be free against stored lessons and
          against the earlier occurrences of the same batch
       e. Insert all occurrences, then spend the credits
  3. Publish lesson.scheduled

  Any failure in step 2 leaves no lesson and no credit change behind.

LIFECYCLE:
  scheduled -> completed   CompleteLesson (repeat completion is a no-op)
  scheduled -> cancelled   CancelLesson   (uncharged credit lesson refunds 1)
  any       -> deleted     DeleteLesson   (scheduled credit lesson refunds 1)

SEE ALSO:
  - ledger/billing.go: what a status means for the balance
  - credits: where credits come from
*/
package schedule

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/lesson-ledger/events"
	"github.com/warp/lesson-ledger/ledger"
)

// MaxRecurringCount caps a single booking at one year of weekly lessons.
const MaxRecurringCount = 52

type Scheduler struct {
	Store  ledger.TxStore
	Events events.Publisher
	Clock  ledger.Clock
	IDs    ledger.IDFunc
}

func NewScheduler(store ledger.TxStore, pub events.Publisher) *Scheduler {
	return &Scheduler{Store: store, Events: pub}
}

// =============================================================================
// BOOKING
// =============================================================================

type CreateRequest struct {
	StudentID           ledger.StudentID
	StartTime           time.Time
	DurationMinutes     int
	Topic               string
	InternalNotes       string
	IsRecurring         bool
	RecurringCount      *int // nil means DefaultRecurrenceCount when recurring
	HasHomework         bool
	HomeworkDescription string
	UseCredit           bool
}

// occurrences returns how many lessons the request books.
func (r CreateRequest) occurrences() int {
	if !r.IsRecurring {
		return 1
	}
	if r.RecurringCount == nil {
		return ledger.DefaultRecurrenceCount
	}
	return *r.RecurringCount
}

func (r CreateRequest) validate() error {
	if r.StudentID == "" {
		return ledger.Invalid("student_id", "is required")
	}
	if r.StartTime.IsZero() {
		return ledger.Invalid("start_time", "is required")
	}
	if r.DurationMinutes <= 0 {
		return ledger.Invalid("duration_minutes", "must be greater than zero")
	}
	if n := r.occurrences(); n < 1 || n > MaxRecurringCount {
		return ledger.Invalid("recurring_count", "must be between 1 and 52")
	}
	return nil
}

// CreateLessons books the requested lesson(s) and returns the first one.
func (s *Scheduler) CreateLessons(ctx context.Context, teacher ledger.TeacherID, req CreateRequest) (ledger.Lesson, error) {
	if err := req.validate(); err != nil {
		return ledger.Lesson{}, err
	}
	count := req.occurrences()

	var created []ledger.Lesson
	err := s.Store.WithTx(ctx, teacher, func(tx ledger.Store) error {
		student, err := tx.GetStudent(ctx, teacher, req.StudentID)
		if err != nil {
			return err
		}
		if req.UseCredit && student.Credits < count {
			return &ledger.InsufficientCreditError{
				StudentID: student.ID,
				Required:  count,
				Available: student.Credits,
			}
		}

		lessons := s.expand(req, *student, count)
		if err := checkConflicts(ctx, tx, teacher, lessons); err != nil {
			return err
		}
		if err := tx.CreateLessons(ctx, teacher, lessons); err != nil {
			return err
		}
		if req.UseCredit {
			if _, err := tx.AdjustCredits(ctx, teacher, student.ID, -count); err != nil {
				return err
			}
		}
		created = lessons
		return nil
	})
	if err != nil {
		return ledger.Lesson{}, err
	}

	first := created[0]
	ledger.Publish(ctx, s.Events, events.Event{
		Type:      events.LessonScheduled,
		TeacherID: string(teacher),
		StudentID: string(first.StudentID),
		Payload: map[string]any{
			"lesson_id":      string(first.ID),
			"start_time":     first.StartTime.Format(time.RFC3339),
			"occurrences":    len(created),
			"paid_by_credit": first.PaidByCredit,
		},
	})
	zerolog.Ctx(ctx).Debug().
		Str("student_id", string(first.StudentID)).
		Int("occurrences", len(created)).
		Msg("lessons scheduled")
	return first, nil
}

func (s *Scheduler) expand(req CreateRequest, student ledger.Student, count int) []ledger.Lesson {
	var group *ledger.RecurringGroupID
	if req.IsRecurring {
		g := ledger.RecurringGroupID(s.IDs.New())
		group = &g
	}

	now := s.Clock.Now()
	starts := ledger.WeeklyOccurrences(req.StartTime, count)
	lessons := make([]ledger.Lesson, len(starts))
	for i, start := range starts {
		lessons[i] = ledger.Lesson{
			ID:                  ledger.LessonID(s.IDs.New()),
			StudentID:           student.ID,
			StudentName:         student.FullName,
			StartTime:           start,
			DurationMinutes:     req.DurationMinutes,
			PriceSnapshot:       student.HourlyRate,
			Topic:               req.Topic,
			InternalNotes:       req.InternalNotes,
			Status:              ledger.LessonScheduled,
			PaidByCredit:        req.UseCredit,
			RecurringGroupID:    group,
			HasHomework:         req.HasHomework,
			HomeworkDescription: req.HomeworkDescription,
			CreatedAt:           now,
		}
	}
	return lessons
}

// checkConflicts rejects the batch at its first occurrence that overlaps a
// stored lesson or an earlier occurrence of the same batch.
func checkConflicts(ctx context.Context, tx ledger.Store, teacher ledger.TeacherID, lessons []ledger.Lesson) error {
	for i, l := range lessons {
		iv := l.Interval()
		existing, err := tx.FindConflict(ctx, teacher, iv)
		if err != nil {
			return err
		}
		if existing != nil {
			return &ledger.ConflictError{At: l.StartTime, Occurrence: i + 1, ExistingLessonID: existing.ID}
		}
		for _, prev := range lessons[:i] {
			if prev.Interval().Overlaps(iv) {
				return &ledger.ConflictError{At: l.StartTime, Occurrence: i + 1, ExistingLessonID: prev.ID}
			}
		}
	}
	return nil
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// CompleteLesson marks a lesson delivered. Completing an already completed
// lesson succeeds without changes or events.
func (s *Scheduler) CompleteLesson(ctx context.Context, teacher ledger.TeacherID, id ledger.LessonID) (ledger.Lesson, error) {
	var out ledger.Lesson
	var changed bool
	err := s.Store.WithTx(ctx, teacher, func(tx ledger.Store) error {
		l, err := tx.GetLesson(ctx, teacher, id)
		if err != nil {
			return err
		}
		if !ledger.CanTransition(l.Status, ledger.LessonCompleted) {
			return &ledger.InvalidTransitionError{LessonID: id, From: l.Status, To: ledger.LessonCompleted}
		}
		if l.Status != ledger.LessonCompleted {
			l.Status = ledger.LessonCompleted
			if err := tx.UpdateLesson(ctx, teacher, *l); err != nil {
				return err
			}
			changed = true
		}
		out = *l
		return nil
	})
	if err != nil {
		return ledger.Lesson{}, err
	}

	if changed {
		s.publishLesson(ctx, teacher, events.LessonCompleted, out, nil)
	}
	return out, nil
}

// CancelLesson cancels a scheduled lesson. With charge set the lesson is
// billed as if delivered. An uncharged credit lesson gets its credit back.
func (s *Scheduler) CancelLesson(ctx context.Context, teacher ledger.TeacherID, id ledger.LessonID, reason string, charge bool) (ledger.Lesson, error) {
	var out ledger.Lesson
	var refunded int
	err := s.Store.WithTx(ctx, teacher, func(tx ledger.Store) error {
		l, err := tx.GetLesson(ctx, teacher, id)
		if err != nil {
			return err
		}
		if l.Status != ledger.LessonScheduled {
			return &ledger.InvalidTransitionError{LessonID: id, From: l.Status, To: ledger.LessonCancelled}
		}
		l.Status = ledger.LessonCancelled
		l.CancellationReason = reason
		l.IsCharged = charge
		if err := tx.UpdateLesson(ctx, teacher, *l); err != nil {
			return err
		}
		if l.PaidByCredit && !charge {
			if _, err := tx.AdjustCredits(ctx, teacher, l.StudentID, 1); err != nil {
				return err
			}
			refunded = 1
		}
		out = *l
		return nil
	})
	if err != nil {
		return ledger.Lesson{}, err
	}

	s.publishLesson(ctx, teacher, events.LessonCancelled, out, map[string]any{
		"reason":           reason,
		"charged":          charge,
		"refunded_credits": refunded,
	})
	return out, nil
}

type DeleteResult struct {
	RefundedCredits int
}

// DeleteLesson soft-deletes a lesson. A credit lesson that has not happened
// yet returns its credit; completed or cancelled ones keep it spent.
func (s *Scheduler) DeleteLesson(ctx context.Context, teacher ledger.TeacherID, id ledger.LessonID) (DeleteResult, error) {
	var res DeleteResult
	var deleted ledger.Lesson
	err := s.Store.WithTx(ctx, teacher, func(tx ledger.Store) error {
		l, err := tx.GetLesson(ctx, teacher, id)
		if err != nil {
			return err
		}
		if err := tx.SoftDeleteLesson(ctx, teacher, id); err != nil {
			return err
		}
		if l.PaidByCredit && l.Status == ledger.LessonScheduled {
			if _, err := tx.AdjustCredits(ctx, teacher, l.StudentID, 1); err != nil {
				return err
			}
			res.RefundedCredits = 1
		}
		deleted = *l
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}

	s.publishLesson(ctx, teacher, events.LessonDeleted, deleted, map[string]any{
		"refunded_credits": res.RefundedCredits,
	})
	return res, nil
}

func (s *Scheduler) publishLesson(ctx context.Context, teacher ledger.TeacherID, t events.Type, l ledger.Lesson, extra map[string]any) {
	payload := map[string]any{
		"lesson_id":  string(l.ID),
		"start_time": l.StartTime.Format(time.RFC3339),
	}
	for k, v := range extra {
		payload[k] = v
	}
	ledger.Publish(ctx, s.Events, events.Event{
		Type:      t,
		TeacherID: string(teacher),
		StudentID: string(l.StudentID),
		Payload:   payload,
	})
}

// =============================================================================
// LISTS
// =============================================================================

// StudentLessons returns one student's lessons, newest first.
func (s *Scheduler) StudentLessons(ctx context.Context, teacher ledger.TeacherID, id ledger.StudentID) ([]ledger.Lesson, error) {
	if _, err := s.Store.GetStudent(ctx, teacher, id); err != nil {
		return nil, err
	}
	return s.Store.ListLessonsByStudent(ctx, teacher, id)
}

// AllLessons returns the teacher's calendar in chronological order.
// Zero bounds are open.
func (s *Scheduler) AllLessons(ctx context.Context, teacher ledger.TeacherID, from, to time.Time) ([]ledger.Lesson, error) {
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, ledger.Invalid("to", "must be after from")
	}
	return s.Store.ListLessons(ctx, teacher, ledger.LessonFilter{From: from, To: to})
}
