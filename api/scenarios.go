/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Seeds the calling teacher's account with realistic data so the
	dashboard, calendar and statements have something to show. Scenarios
	go through the same services as the API, so every invariant holds.

AVAILABLE SCENARIOS:

	pay-per-lesson:  One student billed per lesson, partly paid
	package-student: Prepaid package spent by weekly credit lessons
	mixed-month:     Two students, charged and free cancellations,
	                 payments spread over the earnings window

HOW SCENARIOS WORK:
 1. Create students
 2. Sell packages where needed
 3. Book lessons relative to "now" (past ones are completed or cancelled)
 4. Record payments

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "package-student"}

NOTE:

	Scenarios add data; they never reset anything. Loading the same
	scenario twice fails with a scheduling conflict. Only enabled with
	app.demo_scenarios.

SEE ALSO:
  - server.go: route registration
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lesson-ledger/credits"
	"github.com/warp/lesson-ledger/ledger"
	"github.com/warp/lesson-ledger/schedule"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type LoadScenarioResponse struct {
	ScenarioID string   `json:"scenario_id"`
	StudentIDs []string `json:"student_ids"`
	Lessons    int      `json:"lessons"`
	Payments   int      `json:"payments"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "pay-per-lesson",
		Name:        "Pay Per Lesson",
		Description: "One student billed per completed lesson with a partial payment",
	},
	{
		ID:          "package-student",
		Name:        "Package Student",
		Description: "An 8-lesson package spent by weekly credit lessons, running low",
	},
	{
		ID:          "mixed-month",
		Name:        "Mixed Month",
		Description: "Two students, charged and free cancellations, payments over six months",
	},
}

// seeder records what a scenario created.
type seeder struct {
	h       *Handler
	teacher ledger.TeacherID
	now     time.Time
	out     LoadScenarioResponse
}

// =============================================================================
// HANDLERS
// =============================================================================

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	s := &seeder{
		h:       h,
		teacher: teacher(r),
		now:     h.Scheduler.Clock.Now().Truncate(time.Hour),
		out:     LoadScenarioResponse{ScenarioID: req.ScenarioID},
	}

	var err error
	switch req.ScenarioID {
	case "pay-per-lesson":
		err = s.payPerLesson(r.Context())
	case "package-student":
		err = s.packageStudent(r.Context())
	case "mixed-month":
		err = s.mixedMonth(r.Context())
	default:
		writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.out)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (s *seeder) payPerLesson(ctx context.Context) error {
	st, err := s.student(ctx, "Emma Clarke", "Sarah Clarke", 500)
	if err != nil {
		return err
	}

	// Four weekly lessons ending last week, one upcoming.
	past, err := s.book(ctx, st.ID, s.now.AddDate(0, 0, -28).Add(2*time.Hour), 4, false)
	if err != nil {
		return err
	}
	for _, l := range past {
		if _, err := s.h.Scheduler.CompleteLesson(ctx, s.teacher, l.ID); err != nil {
			return err
		}
	}
	if _, err := s.book(ctx, st.ID, s.now.AddDate(0, 0, 2).Add(2*time.Hour), 1, false); err != nil {
		return err
	}

	return s.pay(ctx, st.ID, 1000, s.now.AddDate(0, 0, -14), "First two lessons")
}

func (s *seeder) packageStudent(ctx context.Context) error {
	st, err := s.student(ctx, "Deniz Kaya", "Murat Kaya", 450)
	if err != nil {
		return err
	}

	_, err = s.h.Credits.AddPackage(ctx, s.teacher, credits.PackageRequest{
		StudentID:    st.ID,
		CreditAmount: 8,
		TotalPrice:   decimal.NewFromInt(3200),
		PackageName:  "8 lesson package",
		Method:       ledger.PaymentBankTransfer,
	})
	if err != nil {
		return err
	}
	s.out.Payments++

	past, err := s.book(ctx, st.ID, s.now.AddDate(0, 0, -14).Add(3*time.Hour), 2, true)
	if err != nil {
		return err
	}
	for _, l := range past {
		if _, err := s.h.Scheduler.CompleteLesson(ctx, s.teacher, l.ID); err != nil {
			return err
		}
	}
	_, err = s.book(ctx, st.ID, s.now.AddDate(0, 0, 1).Add(3*time.Hour), 4, true)
	return err
}

func (s *seeder) mixedMonth(ctx context.Context) error {
	a, err := s.student(ctx, "Leo Martin", "", 600)
	if err != nil {
		return err
	}
	b, err := s.student(ctx, "Zeynep Arslan", "Elif Arslan", 400)
	if err != nil {
		return err
	}

	aLessons, err := s.book(ctx, a.ID, s.now.AddDate(0, 0, -21).Add(4*time.Hour), 3, false)
	if err != nil {
		return err
	}
	if _, err := s.h.Scheduler.CompleteLesson(ctx, s.teacher, aLessons[0].ID); err != nil {
		return err
	}
	if _, err := s.h.Scheduler.CancelLesson(ctx, s.teacher, aLessons[1].ID, "Late cancellation", true); err != nil {
		return err
	}
	if _, err := s.h.Scheduler.CancelLesson(ctx, s.teacher, aLessons[2].ID, "Sick", false); err != nil {
		return err
	}

	bLessons, err := s.book(ctx, b.ID, s.now.AddDate(0, 0, -20).Add(5*time.Hour), 2, false)
	if err != nil {
		return err
	}
	for _, l := range bLessons {
		if _, err := s.h.Scheduler.CompleteLesson(ctx, s.teacher, l.ID); err != nil {
			return err
		}
	}

	for i := 1; i <= 5; i++ {
		if err := s.pay(ctx, a.ID, float64(300*i), s.now.AddDate(0, -i, 0), "Monthly payment"); err != nil {
			return err
		}
	}
	return s.pay(ctx, b.ID, 800, s.now.AddDate(0, 0, -1), "")
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *seeder) student(ctx context.Context, name, guardian string, rate int64) (ledger.Student, error) {
	st, err := s.h.Students.Create(ctx, s.teacher, ledger.StudentProfile{
		FullName:     name,
		GuardianName: guardian,
		HourlyRate:   decimal.NewFromInt(rate),
		IsActive:     true,
	})
	if err != nil {
		return ledger.Student{}, err
	}
	s.out.StudentIDs = append(s.out.StudentIDs, string(st.ID))
	return st, nil
}

// book schedules count weekly lessons and returns them oldest first.
func (s *seeder) book(ctx context.Context, student ledger.StudentID, start time.Time, count int, useCredit bool) ([]ledger.Lesson, error) {
	req := schedule.CreateRequest{
		StudentID:       student,
		StartTime:       start,
		DurationMinutes: ledger.DefaultLessonDuration,
		Topic:           "Mathematics",
		UseCredit:       useCredit,
	}
	if count > 1 {
		req.IsRecurring = true
		req.RecurringCount = &count
	}
	first, err := s.h.Scheduler.CreateLessons(ctx, s.teacher, req)
	if err != nil {
		return nil, err
	}
	s.out.Lessons += count
	if count == 1 {
		return []ledger.Lesson{first}, nil
	}

	lessons, err := s.h.Scheduler.Store.ListLessons(ctx, s.teacher, ledger.LessonFilter{
		StudentID: student,
		From:      start,
		To:        start.AddDate(0, 0, 7*count),
	})
	if err != nil {
		return nil, err
	}
	var series []ledger.Lesson
	for _, l := range lessons {
		if l.RecurringGroupID != nil && first.RecurringGroupID != nil && *l.RecurringGroupID == *first.RecurringGroupID {
			series = append(series, l)
		}
	}
	return series, nil
}

func (s *seeder) pay(ctx context.Context, student ledger.StudentID, amount float64, at time.Time, desc string) error {
	_, err := s.h.Payments.Record(ctx, s.teacher, ledger.PaymentRequest{
		StudentID:   student,
		Amount:      toDecimal(amount),
		Method:      ledger.PaymentCash,
		Description: desc,
		PaidAt:      at,
	})
	if err == nil {
		s.out.Payments++
	}
	return err
}
