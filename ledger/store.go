/*
store.go - Persistence contract for the lesson ledger

PURPOSE:
  Defines the interface between the domain logic and the database.
  Implementations: store/sqlstore (SQLite or PostgreSQL) and
  ledger/store (in-memory, for tests).

TENANCY:
  Every method takes the TeacherID as its first argument. There is no
  unscoped variant. A record owned by another teacher is reported exactly
  like a missing one (NotFoundError), so nothing leaks across tenants.

SOFT DELETE:
  Reads never return records flagged IsDeleted. The only "delete"
  operations are SoftDeleteLesson and SoftDeletePayment.

ATOMICITY:
  AdjustCredits is a single store-level increment that refuses to take
  credits below zero. WithTx runs a unit of work serialized per teacher:
  either every write inside fn commits or none does. The scheduler's
  conflict-check-then-insert and the package purchase both run inside it.

SEE ALSO:
  - store/sqlstore: SQL implementation
  - ledger/store/memory.go: In-memory implementation
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Tenant-scoped persistence
// =============================================================================

type StudentStore interface {
	CreateStudent(ctx context.Context, teacher TeacherID, s Student) error

	// GetStudent returns a NotFoundError for missing, deleted or foreign students.
	GetStudent(ctx context.Context, teacher TeacherID, id StudentID) (*Student, error)

	// ListStudents returns the teacher's non-deleted students ordered by name.
	ListStudents(ctx context.Context, teacher TeacherID) ([]Student, error)

	// UpdateStudent persists profile fields only. Credits and lessons are untouched.
	UpdateStudent(ctx context.Context, teacher TeacherID, id StudentID, p StudentProfile) error

	// AdjustCredits atomically adds delta to the student's credits and returns
	// the new value. A result below zero is refused with InsufficientCreditError.
	AdjustCredits(ctx context.Context, teacher TeacherID, id StudentID, delta int) (int, error)
}

// LessonFilter narrows ListLessons. Zero values mean unbounded.
type LessonFilter struct {
	From      time.Time // StartTime >= From
	To        time.Time // StartTime < To
	StudentID StudentID
}

type LessonStore interface {
	// CreateLessons inserts all lessons or none.
	CreateLessons(ctx context.Context, teacher TeacherID, lessons []Lesson) error

	GetLesson(ctx context.Context, teacher TeacherID, id LessonID) (*Lesson, error)

	// UpdateLesson persists status, cancellation reason and charged flag.
	// StartTime, duration and PriceSnapshot are immutable after creation.
	UpdateLesson(ctx context.Context, teacher TeacherID, l Lesson) error

	SoftDeleteLesson(ctx context.Context, teacher TeacherID, id LessonID) error

	// ListLessonsByStudent returns a student's lessons, newest first.
	ListLessonsByStudent(ctx context.Context, teacher TeacherID, student StudentID) ([]Lesson, error)

	// ListLessons returns the teacher's lessons in chronological order.
	ListLessons(ctx context.Context, teacher TeacherID, f LessonFilter) ([]Lesson, error)

	// FindConflict returns the earliest non-cancelled, non-deleted lesson of
	// the teacher overlapping iv, or nil.
	FindConflict(ctx context.Context, teacher TeacherID, iv Interval) (*Lesson, error)
}

// PaymentFilter narrows ListPayments. Zero values mean unbounded.
type PaymentFilter struct {
	From      time.Time // PaidAt >= From
	StudentID StudentID
}

type PaymentStore interface {
	CreatePayment(ctx context.Context, teacher TeacherID, p Payment) error
	GetPayment(ctx context.Context, teacher TeacherID, id PaymentID) (*Payment, error)
	SoftDeletePayment(ctx context.Context, teacher TeacherID, id PaymentID) error

	// ListPaymentsByStudent returns a student's payments, newest first.
	ListPaymentsByStudent(ctx context.Context, teacher TeacherID, student StudentID) ([]Payment, error)

	// ListPayments returns the teacher's payments in chronological order.
	ListPayments(ctx context.Context, teacher TeacherID, f PaymentFilter) ([]Payment, error)
}

type SettingsStore interface {
	// GetSettings returns a NotFoundError when the teacher has none yet.
	GetSettings(ctx context.Context, teacher TeacherID) (*TeacherSettings, error)

	// UpsertSettings creates the row if absent, else updates it.
	UpsertSettings(ctx context.Context, teacher TeacherID, s TeacherSettings) error
}

type Store interface {
	StudentStore
	LessonStore
	PaymentStore
	SettingsStore
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with a unit of work serialized per teacher.
// If fn returns an error every write made through the passed Store is
// rolled back. fn must only use the Store it is given.
type TxStore interface {
	Store
	WithTx(ctx context.Context, teacher TeacherID, fn func(Store) error) error
}

// =============================================================================
// UPCOMING LESSONS - the one read that crosses teachers
// =============================================================================

// DueLesson is a lesson paired with the teacher that owns it.
type DueLesson struct {
	TeacherID TeacherID
	Lesson    Lesson
}

type UpcomingLessonStore interface {
	// ListScheduledStarting returns scheduled, non-deleted lessons of every
	// teacher with from <= StartTime < to, ordered by start time.
	ListScheduledStarting(ctx context.Context, from, to time.Time) ([]DueLesson, error)
}
