/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model (decimal money, typed ids) from the wire contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts are JSON numbers. Responses convert decimal.Decimal with
  InexactFloat64; requests are rounded to 2 places on the way in.

TIMES:
  RFC3339 strings in UTC.

VALIDATION:
  Request bodies carry go-playground/validator tags; see decode() in
  handlers.go. Business rules (credits, conflicts) stay in the services.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: ErrorResponse mapping
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lesson-ledger/auth"
	"github.com/warp/lesson-ledger/credits"
	"github.com/warp/lesson-ledger/ledger"
)

func money(d decimal.Decimal) float64 { return d.InexactFloat64() }

func toDecimal(f float64) decimal.Decimal { return decimal.NewFromFloat(f).Round(2) }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// =============================================================================
// AUTH
// =============================================================================

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	FullName string `json:"full_name" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UserDTO struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	CreatedAt string `json:"created_at,omitempty"`
}

type LoginResponse struct {
	Token     string  `json:"token"`
	ExpiresAt string  `json:"expires_at"`
	User      UserDTO `json:"user"`
}

func toUserDTO(u auth.User) UserDTO {
	return UserDTO{
		ID:        string(u.ID),
		Email:     u.Email,
		FullName:  u.FullName,
		CreatedAt: formatTime(u.CreatedAt),
	}
}

// =============================================================================
// STUDENTS
// =============================================================================

// StudentRequest creates or updates a student. IsActive defaults to true.
type StudentRequest struct {
	FullName     string  `json:"full_name" validate:"required,max=200"`
	GuardianName string  `json:"guardian_name" validate:"max=200"`
	Phone        string  `json:"phone" validate:"max=50"`
	Notes        string  `json:"notes"`
	HourlyRate   float64 `json:"hourly_rate" validate:"gte=0"`
	ColorCode    string  `json:"color_code" validate:"omitempty,hexcolor"`
	IsActive     *bool   `json:"is_active"`
}

func (r StudentRequest) profile() ledger.StudentProfile {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return ledger.StudentProfile{
		FullName:     r.FullName,
		GuardianName: r.GuardianName,
		Phone:        r.Phone,
		Notes:        r.Notes,
		HourlyRate:   toDecimal(r.HourlyRate),
		ColorCode:    r.ColorCode,
		IsActive:     active,
	}
}

type StudentDTO struct {
	ID           string  `json:"id"`
	FullName     string  `json:"full_name"`
	GuardianName string  `json:"guardian_name,omitempty"`
	Phone        string  `json:"phone,omitempty"`
	Notes        string  `json:"notes,omitempty"`
	HourlyRate   float64 `json:"hourly_rate"`
	ColorCode    string  `json:"color_code,omitempty"`
	IsActive     bool    `json:"is_active"`
	Credits      int     `json:"credits"`
	CreatedAt    string  `json:"created_at,omitempty"`
}

func toStudentDTO(s ledger.Student) StudentDTO {
	return StudentDTO{
		ID:           string(s.ID),
		FullName:     s.FullName,
		GuardianName: s.GuardianName,
		Phone:        s.Phone,
		Notes:        s.Notes,
		HourlyRate:   money(s.HourlyRate),
		ColorCode:    s.ColorCode,
		IsActive:     s.IsActive,
		Credits:      s.Credits,
		CreatedAt:    formatTime(s.CreatedAt),
	}
}

type BalanceDTO struct {
	StudentID      string  `json:"student_id"`
	FullName       string  `json:"full_name"`
	Credits        int     `json:"credits"`
	TotalDebt      float64 `json:"total_debt"`
	TotalPayment   float64 `json:"total_payment"`
	CurrentBalance float64 `json:"current_balance"`
	Status         string  `json:"status"`
	StatusMessage  string  `json:"status_message"`
}

func toBalanceDTO(b ledger.Balance) BalanceDTO {
	return BalanceDTO{
		StudentID:      string(b.StudentID),
		FullName:       b.FullName,
		Credits:        b.Credits,
		TotalDebt:      money(b.TotalDebt),
		TotalPayment:   money(b.TotalPayment),
		CurrentBalance: money(b.CurrentBalance),
		Status:         string(b.Status),
		StatusMessage:  b.StatusMessage,
	}
}

// AddPackageRequest sells a block of prepaid lessons.
type AddPackageRequest struct {
	StudentID    string  `json:"student_id" validate:"required"`
	CreditAmount int     `json:"credit_amount" validate:"required,gt=0"`
	TotalPrice   float64 `json:"total_price" validate:"gte=0"`
	PackageName  string  `json:"package_name" validate:"max=200"`
	Method       string  `json:"method" validate:"omitempty,oneof=cash bank_transfer"`
}

func (r AddPackageRequest) request() credits.PackageRequest {
	return credits.PackageRequest{
		StudentID:    ledger.StudentID(r.StudentID),
		CreditAmount: r.CreditAmount,
		TotalPrice:   toDecimal(r.TotalPrice),
		PackageName:  r.PackageName,
		Method:       ledger.PaymentMethod(r.Method),
	}
}

type AddPackageResponse struct {
	StudentID  string     `json:"student_id"`
	NewCredits int        `json:"new_credits"`
	Payment    PaymentDTO `json:"payment"`
}

// =============================================================================
// LESSONS
// =============================================================================

type CreateLessonRequest struct {
	StudentID           string    `json:"student_id" validate:"required"`
	StartTime           time.Time `json:"start_time" validate:"required"`
	DurationMinutes     int       `json:"duration_minutes" validate:"required,gt=0,lte=720"`
	Topic               string    `json:"topic" validate:"max=200"`
	InternalNotes       string    `json:"internal_notes"`
	IsRecurring         bool      `json:"is_recurring"`
	RecurringCount      *int      `json:"recurring_count" validate:"omitempty,min=1,max=52"`
	HasHomework         bool      `json:"has_homework"`
	HomeworkDescription string    `json:"homework_description"`
	UseCredit           bool      `json:"use_credit"`
}

type CancelLessonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
	Charge bool   `json:"charge"`
}

type LessonDTO struct {
	ID                  string  `json:"id"`
	StudentID           string  `json:"student_id"`
	StudentName         string  `json:"student_name,omitempty"`
	StartTime           string  `json:"start_time"`
	EndTime             string  `json:"end_time"`
	DurationMinutes     int     `json:"duration_minutes"`
	Price               float64 `json:"price"`
	Topic               string  `json:"topic,omitempty"`
	InternalNotes       string  `json:"internal_notes,omitempty"`
	Status              string  `json:"status"`
	CancellationReason  string  `json:"cancellation_reason,omitempty"`
	IsCharged           bool    `json:"is_charged"`
	PaidByCredit        bool    `json:"paid_by_credit"`
	RecurringGroupID    *string `json:"recurring_group_id,omitempty"`
	HasHomework         bool    `json:"has_homework"`
	HomeworkDescription string  `json:"homework_description,omitempty"`
	CreatedAt           string  `json:"created_at,omitempty"`
}

func toLessonDTO(l ledger.Lesson) LessonDTO {
	dto := LessonDTO{
		ID:                  string(l.ID),
		StudentID:           string(l.StudentID),
		StudentName:         l.StudentName,
		StartTime:           formatTime(l.StartTime),
		EndTime:             formatTime(l.EndTime()),
		DurationMinutes:     l.DurationMinutes,
		Price:               money(l.PriceSnapshot),
		Topic:               l.Topic,
		InternalNotes:       l.InternalNotes,
		Status:              string(l.Status),
		CancellationReason:  l.CancellationReason,
		IsCharged:           l.IsCharged,
		PaidByCredit:        l.PaidByCredit,
		HasHomework:         l.HasHomework,
		HomeworkDescription: l.HomeworkDescription,
		CreatedAt:           formatTime(l.CreatedAt),
	}
	if l.RecurringGroupID != nil {
		g := string(*l.RecurringGroupID)
		dto.RecurringGroupID = &g
	}
	return dto
}

func toLessonDTOs(lessons []ledger.Lesson) []LessonDTO {
	out := make([]LessonDTO, len(lessons))
	for i, l := range lessons {
		out[i] = toLessonDTO(l)
	}
	return out
}

type DeleteLessonResponse struct {
	ID              string `json:"id"`
	RefundedCredits int    `json:"refunded_credits"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

type CreatePaymentRequest struct {
	StudentID   string     `json:"student_id" validate:"required"`
	Amount      float64    `json:"amount" validate:"required,gt=0"`
	Method      string     `json:"method" validate:"omitempty,oneof=cash bank_transfer"`
	Description string     `json:"description" validate:"max=500"`
	PaidAt      *time.Time `json:"paid_at"`
}

type PaymentDTO struct {
	ID          string  `json:"id"`
	StudentID   string  `json:"student_id"`
	Amount      float64 `json:"amount"`
	PaidAt      string  `json:"paid_at"`
	Method      string  `json:"method"`
	Description string  `json:"description,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

func toPaymentDTO(p ledger.Payment) PaymentDTO {
	return PaymentDTO{
		ID:          string(p.ID),
		StudentID:   string(p.StudentID),
		Amount:      money(p.Amount),
		PaidAt:      formatTime(p.PaidAt),
		Method:      string(p.Method),
		Description: p.Description,
		CreatedAt:   formatTime(p.CreatedAt),
	}
}

// =============================================================================
// STATEMENT
// =============================================================================

type StatementLineDTO struct {
	Date           string  `json:"date"`
	Kind           string  `json:"kind"`
	RefID          string  `json:"ref_id"`
	Description    string  `json:"description"`
	Debit          float64 `json:"debit"`
	Credit         float64 `json:"credit"`
	RunningBalance float64 `json:"running_balance"`
}

type TeacherHeaderDTO struct {
	DisplayName string `json:"display_name"`
	Title       string `json:"title"`
}

type StatementDTO struct {
	Student         StudentDTO         `json:"student"`
	Teacher         *TeacherHeaderDTO  `json:"teacher,omitempty"`
	GeneratedAt     string             `json:"generated_at"`
	Lines           []StatementLineDTO `json:"lines"`
	TotalDebit      float64            `json:"total_debit"`
	TotalCredit     float64            `json:"total_credit"`
	ClosingBalance  float64            `json:"closing_balance"`
	Status          string             `json:"status"`
	StatusMessage   string             `json:"status_message"`
	ArchiveLocation string             `json:"archive_location,omitempty"`
}

func toStatementDTO(st ledger.Statement) StatementDTO {
	dto := StatementDTO{
		Student:        toStudentDTO(st.Student),
		GeneratedAt:    formatTime(st.GeneratedAt),
		Lines:          make([]StatementLineDTO, len(st.Lines)),
		TotalDebit:     money(st.Totals.Debit),
		TotalCredit:    money(st.Totals.Credit),
		ClosingBalance: money(st.ClosingBalance),
		Status:         string(st.Status),
		StatusMessage:  st.Status.Message(),
	}
	if st.Teacher != nil {
		dto.Teacher = &TeacherHeaderDTO{DisplayName: st.Teacher.DisplayName, Title: st.Teacher.Title}
	}
	for i, l := range st.Lines {
		dto.Lines[i] = StatementLineDTO{
			Date:           formatTime(l.Date),
			Kind:           string(l.Kind),
			RefID:          l.RefID,
			Description:    l.Description,
			Debit:          money(l.Debit),
			Credit:         money(l.Credit),
			RunningBalance: money(l.RunningBalance),
		}
	}
	return dto
}

// =============================================================================
// DASHBOARD
// =============================================================================

type NextLessonDTO struct {
	LessonID    string `json:"lesson_id"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	StartTime   string `json:"start_time"`
}

type SummaryDTO struct {
	MonthlyRevenue     float64        `json:"monthly_revenue"`
	ActiveStudentCount int            `json:"active_student_count"`
	LowCreditCount     int            `json:"low_credit_count"`
	TodayLessonCount   int            `json:"today_lesson_count"`
	NextLesson         *NextLessonDTO `json:"next_lesson"`
}

func toSummaryDTO(s ledger.Summary) SummaryDTO {
	dto := SummaryDTO{
		MonthlyRevenue:     money(s.MonthlyRevenue),
		ActiveStudentCount: s.ActiveStudentCount,
		LowCreditCount:     s.LowCreditCount,
		TodayLessonCount:   s.TodayLessonCount,
	}
	if n := s.NextLesson; n != nil {
		dto.NextLesson = &NextLessonDTO{
			LessonID:    string(n.LessonID),
			StudentID:   string(n.StudentID),
			StudentName: n.StudentName,
			StartTime:   formatTime(n.StartTime),
		}
	}
	return dto
}

type MonthTotalDTO struct {
	Year  int     `json:"year"`
	Month int     `json:"month"`
	Label string  `json:"label"`
	Total float64 `json:"total"`
}

func toMonthTotalDTOs(months []ledger.MonthTotal) []MonthTotalDTO {
	out := make([]MonthTotalDTO, len(months))
	for i, m := range months {
		out[i] = MonthTotalDTO{Year: m.Year, Month: int(m.Month), Label: m.Label, Total: money(m.Total)}
	}
	return out
}

type TopStudentDTO struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	LessonCount int    `json:"lesson_count"`
}

type LessonStatsDTO struct {
	Completed         int `json:"completed"`
	ScheduledUpcoming int `json:"scheduled_upcoming"`
	Cancelled         int `json:"cancelled"`
}

type ReportDTO struct {
	Income  []MonthTotalDTO `json:"income"`
	Lessons LessonStatsDTO  `json:"lessons"`
}

// =============================================================================
// SETTINGS
// =============================================================================

type SettingsRequest struct {
	DisplayName           string  `json:"display_name" validate:"max=200"`
	Title                 string  `json:"title" validate:"max=100"`
	DefaultHourlyRate     float64 `json:"default_hourly_rate" validate:"gte=0"`
	DefaultLessonDuration int     `json:"default_lesson_duration" validate:"required,gt=0,lte=720"`
}

type SettingsDTO struct {
	DisplayName           string  `json:"display_name"`
	Title                 string  `json:"title"`
	DefaultHourlyRate     float64 `json:"default_hourly_rate"`
	DefaultLessonDuration int     `json:"default_lesson_duration"`
	UpdatedAt             string  `json:"updated_at,omitempty"`
}

func toSettingsDTO(s ledger.TeacherSettings) SettingsDTO {
	return SettingsDTO{
		DisplayName:           s.DisplayName,
		Title:                 s.Title,
		DefaultHourlyRate:     money(s.DefaultHourlyRate),
		DefaultLessonDuration: s.DefaultLessonDuration,
		UpdatedAt:             formatTime(s.UpdatedAt),
	}
}

// =============================================================================
// MISC
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Field     string `json:"field,omitempty"`
	Required  *int   `json:"required,omitempty"`
	Available *int   `json:"available,omitempty"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}
