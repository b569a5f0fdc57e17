package schedule_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lesson-ledger/events"
	"github.com/warp/lesson-ledger/ledger"
	"github.com/warp/lesson-ledger/ledger/store"
	"github.com/warp/lesson-ledger/schedule"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const teacher ledger.TeacherID = "teacher-1"

type fixture struct {
	store     *store.Memory
	events    *events.Recorder
	scheduler *schedule.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	rec := events.NewRecorder()

	var mu sync.Mutex
	n := 0
	s := schedule.NewScheduler(mem, rec)
	s.IDs = func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
	s.Clock = func() time.Time { return time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC) }
	return &fixture{store: mem, events: rec, scheduler: s}
}

func (f *fixture) addStudent(t *testing.T, id string, credits int) {
	t.Helper()
	require.NoError(t, f.store.CreateStudent(context.Background(), teacher, ledger.Student{
		ID:         ledger.StudentID(id),
		FullName:   "Student " + id,
		HourlyRate: decimal.NewFromInt(500),
		IsActive:   true,
		Credits:    credits,
	}))
}

func (f *fixture) credits(t *testing.T, id string) int {
	t.Helper()
	st, err := f.store.GetStudent(context.Background(), teacher, ledger.StudentID(id))
	require.NoError(t, err)
	return st.Credits
}

func (f *fixture) lessonCount(t *testing.T) int {
	t.Helper()
	all, err := f.store.ListLessons(context.Background(), teacher, ledger.LessonFilter{})
	require.NoError(t, err)
	return len(all)
}

func monday(hour, minute int) time.Time {
	return time.Date(2025, time.March, 3, hour, minute, 0, 0, time.UTC)
}

func intPtr(n int) *int { return &n }

// =============================================================================
// BOOKING TESTS
// =============================================================================

func TestCreateLessons_Single(t *testing.T) {
	f := newFixture(t)
	f.addStudent(t, "s1", 0)
	ctx := context.Background()

	l, err := f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{
		StudentID: "s1", StartTime: monday(14, 0), DurationMinutes: 60, Topic: "Algebra",
	})
	require.NoError(t, err)

	assert.Equal(t, ledger.LessonScheduled, l.Status)
	assert.True(t, decimal.NewFromInt(500).Equal(l.PriceSnapshot))
	assert.Nil(t, l.RecurringGroupID)
	assert.False(t, l.PaidByCredit)
	assert.Equal(t, 1, f.lessonCount(t))
	assert.Len(t, f.events.OfType(events.LessonScheduled), 1)
}

func TestCreateLessons_RateChangeKeepsPriceSnapshot(t *testing.T) {
	f := newFixture(t)
	f.addStudent(t, "s1", 0)
	ctx := context.Background()

	// GIVEN a completed lesson booked at 500
	l, err := f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{StudentID: "s1", StartTime: monday(9, 0), DurationMinutes: 60})
	require.NoError(t, err)
	_, err = f.scheduler.CompleteLesson(ctx, teacher, l.ID)
	require.NoError(t, err)

	balances := ledger.NewBalances(f.store)
	before, err := balances.StudentBalance(ctx, teacher, "s1")
	require.NoError(t, err)

	// WHEN the student's rate is raised
	_, err = ledger.NewStudents(f.store).Update(ctx, teacher, "s1", ledger.StudentProfile{
		FullName: "Student s1", HourlyRate: decimal.NewFromInt(900), IsActive: true,
	})
	require.NoError(t, err)

	// THEN the existing lesson and the balance are unchanged
	got, err := f.store.GetLesson(ctx, teacher, l.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(500).Equal(got.PriceSnapshot))

	after, err := balances.StudentBalance(ctx, teacher, "s1")
	require.NoError(t, err)
	assert.True(t, before.TotalDebt.Equal(after.TotalDebt))

	// AND new bookings use the new rate
	next, err := f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{StudentID: "s1", StartTime: monday(11, 0), DurationMinutes: 60})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(900).Equal(next.PriceSnapshot))
}

func TestCreateLessons_RecurringDefaultsToFourWeekly(t *testing.T) {
	// GIVEN: A recurring request without an explicit count
	// WHEN: Booking
	// THEN: Four lessons exactly 7 days apart share one group id

	f := newFixture(t)
	f.addStudent(t, "s1", 0)
	ctx := context.Background()

	_, err := f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{
		StudentID: "s1", StartTime: monday(17, 0), DurationMinutes: 45, IsRecurring: true,
	})
	require.NoError(t, err)

	all, err := f.store.ListLessons(ctx, teacher, ledger.LessonFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, l := range all {
		assert.Equal(t, monday(17, 0).AddDate(0, 0, 7*i), l.StartTime)
		require.NotNil(t, l.RecurringGroupID)
		assert.Equal(t, *all[0].RecurringGroupID, *l.RecurringGroupID)
	}
}

func TestCreateLessons_ConflictWritesNothing(t *testing.T) {
	// GIVEN: An existing lesson on the third Monday at 14:00
	// WHEN: Booking 4 weekly credit lessons from the first Monday at 14:30
	// THEN: ConflictError names the 3rd occurrence; no lesson is written
	//       and no credit is spent

	f := newFixture(t)
	f.addStudent(t, "s1", 10)
	f.addStudent(t, "s2", 0)
	ctx := context.Background()

	_, err := f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{
		StudentID: "s2", StartTime: monday(14, 0).AddDate(0, 0, 14), DurationMinutes: 60,
	})
	require.NoError(t, err)

	_, err = f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{
		StudentID: "s1", StartTime: monday(14, 30), DurationMinutes: 60,
		IsRecurring: true, RecurringCount: intPtr(4), UseCredit: true,
	})

	var conflict *ledger.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 3, conflict.Occurrence)
	assert.Equal(t, monday(14, 30).AddDate(0, 0, 14), conflict.At)
	assert.Contains(t, err.Error(), "17.03.2025 14:30")

	assert.Equal(t, 1, f.lessonCount(t))
	assert.Equal(t, 10, f.credits(t, "s1"))
}

func TestCreateLessons_TouchingLessonsDoNotConflict(t *testing.T) {
	f := newFixture(t)
	f.addStudent(t, "s1", 0)
	ctx := context.Background()

	_, err := f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{StudentID: "s1", StartTime: monday(14, 0), DurationMinutes: 60})
	require.NoError(t, err)
	_, err = f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{StudentID: "s1", StartTime: monday(15, 0), DurationMinutes: 60})
	require.NoError(t, err)
	_, err = f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{StudentID: "s1", StartTime: monday(14, 59), DurationMinutes: 30})
	assert.ErrorIs(t, err, ledger.ErrSchedulingConflict)
}

func TestCreateLessons_CancelledLessonFreesSlot(t *testing.T) {
	f := newFixture(t)
	f.addStudent(t, "s1", 0)
	ctx := context.Background()

	l, err := f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{StudentID: "s1", StartTime: monday(14, 0), DurationMinutes: 60})
	require.NoError(t, err)
	_, err = f.scheduler.CancelLesson(ctx, teacher, l.ID, "sick", false)
	require.NoError(t, err)

	_, err = f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{StudentID: "s1", StartTime: monday(14, 0), DurationMinutes: 60})
	assert.NoError(t, err)
}

func TestCreateLessons_InsufficientCredit(t *testing.T) {
	// GIVEN: A student with 2 credits
	// WHEN: Booking 4 recurring credit lessons
	// THEN: InsufficientCreditError{4, 2}; nothing written

	f := newFixture(t)
	f.addStudent(t, "s1", 2)
	ctx := context.Background()

	_, err := f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{
		StudentID: "s1", StartTime: monday(10, 0), DurationMinutes: 60,
		IsRecurring: true, UseCredit: true,
	})

	var ice *ledger.InsufficientCreditError
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, 4, ice.Required)
	assert.Equal(t, 2, ice.Available)
	assert.Equal(t, 0, f.lessonCount(t))
	assert.Equal(t, 2, f.credits(t, "s1"))
}

func TestCreateLessons_UseCreditSpendsOnePerOccurrence(t *testing.T) {
	f := newFixture(t)
	f.addStudent(t, "s1", 5)
	ctx := context.Background()

	l, err := f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{
		StudentID: "s1", StartTime: monday(10, 0), DurationMinutes: 60,
		IsRecurring: true, RecurringCount: intPtr(3), UseCredit: true,
	})
	require.NoError(t, err)
	assert.True(t, l.PaidByCredit)
	assert.Equal(t, 2, f.credits(t, "s1"))
}

func TestCreateLessons_Validation(t *testing.T) {
	f := newFixture(t)
	f.addStudent(t, "s1", 0)
	ctx := context.Background()

	tests := []struct {
		name string
		req  schedule.CreateRequest
	}{
		{"zero duration", schedule.CreateRequest{StudentID: "s1", StartTime: monday(10, 0)}},
		{"missing start", schedule.CreateRequest{StudentID: "s1", DurationMinutes: 60}},
		{"zero count", schedule.CreateRequest{StudentID: "s1", StartTime: monday(10, 0), DurationMinutes: 60, IsRecurring: true, RecurringCount: intPtr(0)}},
		{"too many", schedule.CreateRequest{StudentID: "s1", StartTime: monday(10, 0), DurationMinutes: 60, IsRecurring: true, RecurringCount: intPtr(53)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.scheduler.CreateLessons(ctx, teacher, tt.req)
			assert.ErrorIs(t, err, ledger.ErrValidation)
		})
	}
}

func TestCreateLessons_UnknownStudent(t *testing.T) {
	f := newFixture(t)
	_, err := f.scheduler.CreateLessons(context.Background(), teacher, schedule.CreateRequest{
		StudentID: "ghost", StartTime: monday(10, 0), DurationMinutes: 60,
	})
	assert.True(t, ledger.IsNotFound(err))
}

func TestCreateLessons_ConcurrentBookingsOneWins(t *testing.T) {
	// GIVEN: Two requests for the same slot racing each other
	// WHEN: Both run concurrently
	// THEN: Exactly one succeeds, the other gets a conflict

	f := newFixture(t)
	f.addStudent(t, "s1", 0)
	f.addStudent(t, "s2", 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []ledger.StudentID{"s1", "s2"} {
		wg.Add(1)
		go func(i int, id ledger.StudentID) {
			defer wg.Done()
			_, errs[i] = f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{StudentID: id, StartTime: monday(9, 0), DurationMinutes: 60})
		}(i, id)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ledger.ErrSchedulingConflict)
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, 1, f.lessonCount(t))
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestCompleteLesson_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addStudent(t, "s1", 0)
	ctx := context.Background()

	l, err := f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{StudentID: "s1", StartTime: monday(10, 0), DurationMinutes: 60})
	require.NoError(t, err)

	done, err := f.scheduler.CompleteLesson(ctx, teacher, l.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.LessonCompleted, done.Status)

	again, err := f.scheduler.CompleteLesson(ctx, teacher, l.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.LessonCompleted, again.Status)
	assert.Len(t, f.events.OfType(events.LessonCompleted), 1)
}

func TestCompleteLesson_CancelledIsRejected(t *testing.T) {
	f := newFixture(t)
	f.addStudent(t, "s1", 0)
	ctx := context.Background()

	l, err := f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{StudentID: "s1", StartTime: monday(10, 0), DurationMinutes: 60})
	require.NoError(t, err)
	_, err = f.scheduler.CancelLesson(ctx, teacher, l.ID, "", true)
	require.NoError(t, err)

	_, err = f.scheduler.CompleteLesson(ctx, teacher, l.ID)
	var ite *ledger.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, ledger.LessonCancelled, ite.From)
}

func TestCompleteLesson_ForeignTeacherIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.addStudent(t, "s1", 0)
	ctx := context.Background()

	l, err := f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{StudentID: "s1", StartTime: monday(10, 0), DurationMinutes: 60})
	require.NoError(t, err)

	_, err = f.scheduler.CompleteLesson(ctx, "teacher-2", l.ID)
	assert.True(t, ledger.IsNotFound(err))
}

func TestCancelLesson_CreditRefund(t *testing.T) {
	tests := []struct {
		name        string
		charge      bool
		wantCredits int
	}{
		{"uncharged refunds", false, 5},
		{"charged keeps credit spent", true, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addStudent(t, "s1", 5)
			ctx := context.Background()

			l, err := f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{StudentID: "s1", StartTime: monday(10, 0), DurationMinutes: 60, UseCredit: true})
			require.NoError(t, err)
			require.Equal(t, 4, f.credits(t, "s1"))

			out, err := f.scheduler.CancelLesson(ctx, teacher, l.ID, "student sick", tt.charge)
			require.NoError(t, err)
			assert.Equal(t, ledger.LessonCancelled, out.Status)
			assert.Equal(t, "student sick", out.CancellationReason)
			assert.Equal(t, tt.charge, out.IsCharged)
			assert.Equal(t, tt.wantCredits, f.credits(t, "s1"))
		})
	}
}

func TestDeleteLesson_RefundsOnlyScheduledCreditLessons(t *testing.T) {
	// GIVEN: Two credit lessons, one completed and one still scheduled
	// WHEN: Deleting both
	// THEN: Only the scheduled one returns its credit

	f := newFixture(t)
	f.addStudent(t, "s1", 2)
	ctx := context.Background()

	first, err := f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{
		StudentID: "s1", StartTime: monday(10, 0), DurationMinutes: 60,
		IsRecurring: true, RecurringCount: intPtr(2), UseCredit: true,
	})
	require.NoError(t, err)
	require.Equal(t, 0, f.credits(t, "s1"))

	_, err = f.scheduler.CompleteLesson(ctx, teacher, first.ID)
	require.NoError(t, err)

	all, err := f.scheduler.StudentLessons(ctx, teacher, "s1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	second := all[0] // newest first

	res, err := f.scheduler.DeleteLesson(ctx, teacher, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.RefundedCredits)

	res, err = f.scheduler.DeleteLesson(ctx, teacher, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RefundedCredits)
	assert.Equal(t, 1, f.credits(t, "s1"))

	_, err = f.scheduler.DeleteLesson(ctx, teacher, second.ID)
	assert.True(t, ledger.IsNotFound(err))
	assert.Equal(t, 0, f.lessonCount(t))
}

func TestAllLessons_Range(t *testing.T) {
	f := newFixture(t)
	f.addStudent(t, "s1", 0)
	ctx := context.Background()

	_, err := f.scheduler.CreateLessons(ctx, teacher, schedule.CreateRequest{
		StudentID: "s1", StartTime: monday(10, 0), DurationMinutes: 60, IsRecurring: true,
	})
	require.NoError(t, err)

	got, err := f.scheduler.AllLessons(ctx, teacher, monday(0, 0).AddDate(0, 0, 7), monday(0, 0).AddDate(0, 0, 21))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Student s1", got[0].StudentName)
	assert.True(t, got[0].StartTime.Before(got[1].StartTime))

	_, err = f.scheduler.AllLessons(ctx, teacher, monday(10, 0), monday(9, 0))
	assert.ErrorIs(t, err, ledger.ErrValidation)
}
