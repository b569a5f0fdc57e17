package api

import (
	"net/http"

	"github.com/warp/lesson-ledger/ledger"
)

// =============================================================================
// DASHBOARD HANDLERS
// =============================================================================

// GetSummary returns this month's revenue, student counts and the next lesson.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.Reports.Summary(r.Context(), teacher(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(s))
}

// GetMonthlyEarnings returns the trailing six months, oldest first.
func (h *Handler) GetMonthlyEarnings(w http.ResponseWriter, r *http.Request) {
	months, err := h.Reports.MonthlyEarnings(r.Context(), teacher(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMonthTotalDTOs(months))
}

// GetTopStudent answers 204 when nobody completed a lesson this month.
func (h *Handler) GetTopStudent(w http.ResponseWriter, r *http.Request) {
	top, err := h.Reports.TopStudent(r.Context(), teacher(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if top == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, TopStudentDTO{
		StudentID:   string(top.StudentID),
		StudentName: top.StudentName,
		LessonCount: top.LessonCount,
	})
}

func (h *Handler) GetReports(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Reports.Report(r.Context(), teacher(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReportDTO{
		Income: toMonthTotalDTOs(rep.Income),
		Lessons: LessonStatsDTO{
			Completed:         rep.Lessons.Completed,
			ScheduledUpcoming: rep.Lessons.ScheduledUpcoming,
			Cancelled:         rep.Lessons.Cancelled,
		},
	})
}

// =============================================================================
// SETTINGS HANDLERS
// =============================================================================

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Settings.Get(r.Context(), teacher(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(s))
}

func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	title := req.Title
	if title == "" {
		title = ledger.DefaultTitle
	}
	s, err := h.Settings.Upsert(r.Context(), teacher(r), ledger.TeacherSettings{
		DisplayName:           req.DisplayName,
		Title:                 title,
		DefaultHourlyRate:     toDecimal(req.DefaultHourlyRate),
		DefaultLessonDuration: req.DefaultLessonDuration,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(s))
}
