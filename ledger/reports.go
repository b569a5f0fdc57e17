/*
reports.go - Dashboard aggregates

PURPOSE:
  Teacher-wide views used by the dashboard: revenue over time, lesson
  status distribution, today's schedule and the month's most active student.
  All functions are pure over already-scoped records; the Reports service
  loads those records for one teacher.

CALENDAR:
  "Today" and "this month" are evaluated in the configured location, so a
  lesson at 00:30 local time counts for the local day even though it is
  stored in UTC.

SEE ALSO:
  - api/dashboard.go: HTTP endpoints
*/
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EarningsWindowMonths = 6
	LowCreditThreshold   = 2
)

// =============================================================================
// REVENUE OVER TIME
// =============================================================================

type MonthTotal struct {
	Year  int
	Month time.Month
	Label string
	Total decimal.Decimal
}

// MonthlyEarnings groups payments by (year, month) over the trailing window
// ending with the month of now. Every month in the window is present, in
// chronological order, even when it has no payments.
func MonthlyEarnings(payments []Payment, now time.Time, loc *time.Location, months int) []MonthTotal {
	if months <= 0 {
		months = EarningsWindowMonths
	}
	first := StartOfMonth(now, loc).AddDate(0, -(months - 1), 0)

	out := make([]MonthTotal, months)
	index := make(map[[2]int]int, months)
	for i := 0; i < months; i++ {
		m := first.AddDate(0, i, 0)
		out[i] = MonthTotal{Year: m.Year(), Month: m.Month(), Label: m.Format("Jan"), Total: decimal.Zero}
		index[[2]int{m.Year(), int(m.Month())}] = i
	}

	for _, p := range payments {
		if p.IsDeleted {
			continue
		}
		at := p.PaidAt.In(loc)
		if i, ok := index[[2]int{at.Year(), int(at.Month())}]; ok {
			out[i].Total = out[i].Total.Add(p.Amount)
		}
	}
	return out
}

// =============================================================================
// LESSON STATUS DISTRIBUTION
// =============================================================================

type LessonStats struct {
	Completed         int
	ScheduledUpcoming int
	Cancelled         int
}

func CountLessons(lessons []Lesson, now time.Time) LessonStats {
	var s LessonStats
	for _, l := range lessons {
		if l.IsDeleted {
			continue
		}
		switch l.Status {
		case LessonCompleted:
			s.Completed++
		case LessonScheduled:
			if l.StartTime.After(now) {
				s.ScheduledUpcoming++
			}
		case LessonCancelled:
			s.Cancelled++
		}
	}
	return s
}

// =============================================================================
// SUMMARY
// =============================================================================

type NextLesson struct {
	LessonID    LessonID
	StudentID   StudentID
	StudentName string
	StartTime   time.Time
}

type Summary struct {
	MonthlyRevenue     decimal.Decimal
	ActiveStudentCount int
	LowCreditCount     int
	TodayLessonCount   int
	NextLesson         *NextLesson
}

func Summarize(students []Student, lessons []Lesson, payments []Payment, now time.Time, loc *time.Location) Summary {
	s := Summary{MonthlyRevenue: decimal.Zero}

	for _, st := range students {
		if st.IsDeleted || !st.IsActive {
			continue
		}
		s.ActiveStudentCount++
		if st.Credits <= LowCreditThreshold {
			s.LowCreditCount++
		}
	}

	monthStart := StartOfMonth(now, loc)
	monthEnd := monthStart.AddDate(0, 1, 0)
	for _, p := range payments {
		if p.IsDeleted || p.PaidAt.Before(monthStart) || !p.PaidAt.Before(monthEnd) {
			continue
		}
		s.MonthlyRevenue = s.MonthlyRevenue.Add(p.Amount)
	}

	dayStart := StartOfDay(now, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)
	var today []Lesson
	for _, l := range lessons {
		if l.IsDeleted || l.Status == LessonCancelled {
			continue
		}
		if l.StartTime.Before(dayStart) || !l.StartTime.Before(dayEnd) {
			continue
		}
		today = append(today, l)
	}
	sort.Slice(today, func(i, j int) bool { return today[i].StartTime.Before(today[j].StartTime) })
	s.TodayLessonCount = len(today)

	for _, l := range today {
		if l.StartTime.After(now) {
			s.NextLesson = &NextLesson{
				LessonID:    l.ID,
				StudentID:   l.StudentID,
				StudentName: l.StudentName,
				StartTime:   l.StartTime,
			}
			break
		}
	}
	return s
}

// =============================================================================
// TOP STUDENT
// =============================================================================

type TopStudent struct {
	StudentID   StudentID
	StudentName string
	LessonCount int
}

// FindTopStudent returns the student with the most completed lessons since
// the start of the current month, or nil when there are none. Ties go to
// the alphabetically first name.
func FindTopStudent(lessons []Lesson, now time.Time, loc *time.Location) *TopStudent {
	since := StartOfMonth(now, loc)
	counts := make(map[StudentID]*TopStudent)
	for _, l := range lessons {
		if l.IsDeleted || l.Status != LessonCompleted || l.StartTime.Before(since) {
			continue
		}
		ts, ok := counts[l.StudentID]
		if !ok {
			ts = &TopStudent{StudentID: l.StudentID, StudentName: l.StudentName}
			counts[l.StudentID] = ts
		}
		ts.LessonCount++
	}

	var best *TopStudent
	for _, ts := range counts {
		switch {
		case best == nil,
			ts.LessonCount > best.LessonCount,
			ts.LessonCount == best.LessonCount && ts.StudentName < best.StudentName,
			ts.LessonCount == best.LessonCount && ts.StudentName == best.StudentName && ts.StudentID < best.StudentID:
			best = ts
		}
	}
	return best
}

// =============================================================================
// REPORTS SERVICE
// =============================================================================

type Reports struct {
	Store    Store
	Clock    Clock
	Location *time.Location
}

func NewReports(store Store, clock Clock, loc *time.Location) *Reports {
	if loc == nil {
		loc = time.UTC
	}
	return &Reports{Store: store, Clock: clock, Location: loc}
}

func (r *Reports) Summary(ctx context.Context, teacher TeacherID) (Summary, error) {
	now := r.Clock.Now()
	students, err := r.Store.ListStudents(ctx, teacher)
	if err != nil {
		return Summary{}, err
	}
	dayStart := StartOfDay(now, r.Location)
	lessons, err := r.Store.ListLessons(ctx, teacher, LessonFilter{From: dayStart, To: dayStart.AddDate(0, 0, 1)})
	if err != nil {
		return Summary{}, err
	}
	payments, err := r.Store.ListPayments(ctx, teacher, PaymentFilter{From: StartOfMonth(now, r.Location)})
	if err != nil {
		return Summary{}, err
	}
	return Summarize(students, lessons, payments, now, r.Location), nil
}

func (r *Reports) MonthlyEarnings(ctx context.Context, teacher TeacherID) ([]MonthTotal, error) {
	now := r.Clock.Now()
	from := StartOfMonth(now, r.Location).AddDate(0, -(EarningsWindowMonths - 1), 0)
	payments, err := r.Store.ListPayments(ctx, teacher, PaymentFilter{From: from})
	if err != nil {
		return nil, err
	}
	return MonthlyEarnings(payments, now, r.Location, EarningsWindowMonths), nil
}

func (r *Reports) TopStudent(ctx context.Context, teacher TeacherID) (*TopStudent, error) {
	now := r.Clock.Now()
	lessons, err := r.Store.ListLessons(ctx, teacher, LessonFilter{From: StartOfMonth(now, r.Location)})
	if err != nil {
		return nil, err
	}
	return FindTopStudent(lessons, now, r.Location), nil
}

// Report is the combined revenue and lesson-status view.
type Report struct {
	Income  []MonthTotal
	Lessons LessonStats
}

func (r *Reports) Report(ctx context.Context, teacher TeacherID) (Report, error) {
	income, err := r.MonthlyEarnings(ctx, teacher)
	if err != nil {
		return Report{}, err
	}
	lessons, err := r.Store.ListLessons(ctx, teacher, LessonFilter{})
	if err != nil {
		return Report{}, err
	}
	return Report{Income: income, Lessons: CountLessons(lessons, r.Clock.Now())}, nil
}
