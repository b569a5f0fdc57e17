/*
Package ledger provides the domain core of the lesson ledger.

PURPOSE:
  Holds the records a tutor works with (students, lessons, payments,
  settings) and the rules that turn them into a single authoritative
  balance per student. HTTP, auth and persistence details live elsewhere;
  this package only knows the Store contract.

KEY CONCEPTS IN THIS FILE (types.go):
  - TeacherID: the tenant key. Every store call is scoped by it.
  - Lesson: a priced appointment. Its PriceSnapshot is frozen at creation.
  - Payment: money received. Package purchases are ordinary payments.
  - Credits: prepaid lesson units counted on the Student.

DESIGN PRINCIPLES:
  1. Precision: money is decimal.Decimal, never float64
  2. Snapshots: a rate change never rewrites an existing lesson
  3. Soft delete: records are flagged, never removed
  4. Tenancy: a record owned by another teacher does not exist

SEE ALSO:
  - billing.go: which lessons count as debt
  - balance.go: Balance Calculator
  - statement.go: Statement projector
  - store.go: persistence contract
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TeacherID string
type StudentID string
type LessonID string
type PaymentID string
type RecurringGroupID string

// =============================================================================
// STUDENT
// =============================================================================

type Student struct {
	ID           StudentID
	TeacherID    TeacherID
	FullName     string
	GuardianName string
	Phone        string
	Notes        string
	HourlyRate   decimal.Decimal
	ColorCode    string
	IsActive     bool
	Credits      int
	IsDeleted    bool
	CreatedAt    time.Time
}

// StudentProfile is the mutable part of a Student. Credits are deliberately
// absent: they only move through Store.AdjustCredits.
type StudentProfile struct {
	FullName     string
	GuardianName string
	Phone        string
	Notes        string
	HourlyRate   decimal.Decimal
	ColorCode    string
	IsActive     bool
}

func (s *Student) Apply(p StudentProfile) {
	s.FullName = p.FullName
	s.GuardianName = p.GuardianName
	s.Phone = p.Phone
	s.Notes = p.Notes
	s.HourlyRate = p.HourlyRate
	s.ColorCode = p.ColorCode
	s.IsActive = p.IsActive
}

// =============================================================================
// LESSON
// =============================================================================

type LessonStatus string

const (
	LessonScheduled LessonStatus = "scheduled"
	LessonCompleted LessonStatus = "completed"
	LessonCancelled LessonStatus = "cancelled"
)

func (s LessonStatus) Valid() bool {
	switch s {
	case LessonScheduled, LessonCompleted, LessonCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a lesson may move from one status to another.
//
//	scheduled -> completed | cancelled
//	completed -> completed   (re-completion is accepted as a no-op)
//	cancelled -> (nothing)
func CanTransition(from, to LessonStatus) bool {
	switch from {
	case LessonScheduled:
		return to == LessonCompleted || to == LessonCancelled
	case LessonCompleted:
		return to == LessonCompleted
	}
	return false
}

type Lesson struct {
	ID                  LessonID
	StudentID           StudentID
	StudentName         string // read-side join, not persisted on the lesson
	StartTime           time.Time
	DurationMinutes     int
	PriceSnapshot       decimal.Decimal
	Topic               string
	InternalNotes       string
	Status              LessonStatus
	CancellationReason  string
	IsCharged           bool
	PaidByCredit        bool
	RecurringGroupID    *RecurringGroupID
	HasHomework         bool
	HomeworkDescription string
	IsDeleted           bool
	CreatedAt           time.Time
}

func (l Lesson) Duration() time.Duration { return time.Duration(l.DurationMinutes) * time.Minute }
func (l Lesson) EndTime() time.Time      { return l.StartTime.Add(l.Duration()) }
func (l Lesson) Interval() Interval      { return Interval{Start: l.StartTime, End: l.EndTime()} }

// =============================================================================
// PAYMENT
// =============================================================================

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentBankTransfer
}

type Payment struct {
	ID          PaymentID
	StudentID   StudentID
	Amount      decimal.Decimal
	PaidAt      time.Time
	Method      PaymentMethod
	Description string
	IsDeleted   bool
	CreatedAt   time.Time
}

// =============================================================================
// TEACHER SETTINGS
// =============================================================================

const (
	DefaultTitle           = "Teacher"
	DefaultLessonDuration  = 60
	DefaultRecurrenceCount = 4
)

type TeacherSettings struct {
	TeacherID             TeacherID
	DisplayName           string
	Title                 string
	DefaultHourlyRate     decimal.Decimal
	DefaultLessonDuration int
	UpdatedAt             time.Time
}

// DefaultSettings returns the settings a freshly registered teacher starts with.
func DefaultSettings(teacher TeacherID, displayName string) TeacherSettings {
	return TeacherSettings{
		TeacherID:             teacher,
		DisplayName:           displayName,
		Title:                 DefaultTitle,
		DefaultHourlyRate:     decimal.Zero,
		DefaultLessonDuration: DefaultLessonDuration,
	}
}
