/*
handlers.go - HTTP API handlers for the lesson ledger

PURPOSE:
  Exposes the ledger services via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the domain services.

ENDPOINTS:
  Auth (public):
    POST   /api/auth/register            Create teacher account
    POST   /api/auth/login               Issue bearer token

  Students:
    GET    /api/students                 List students (?active=true)
    POST   /api/students                 Create student
    GET    /api/students/{id}            Student details
    PUT    /api/students/{id}            Update profile
    GET    /api/students/{id}/balance    Balance summary
    GET    /api/students/{id}/lessons    Lessons, newest first
    GET    /api/students/{id}/statement  Statement (?archive=true stores a snapshot)
    POST   /api/students/add-package     Sell prepaid lesson credits

  Lessons:
    POST   /api/lessons                  Book single or weekly lessons
    GET    /api/lessons/all              Calendar (?from=&to= RFC3339)
    GET    /api/lessons/student/{id}     Lessons of one student
    PUT    /api/lessons/{id}/complete    Mark delivered
    PUT    /api/lessons/{id}/cancel      Cancel (optionally charged)
    DELETE /api/lessons/{id}             Soft delete

  Payments:
    POST   /api/payments                 Record payment
    GET    /api/payments/student/{id}    Payments of one student
    DELETE /api/payments/{id}            Soft delete

  Dashboard / Settings: see dashboard.go

ARCHITECTURE:
  Handler holds one instance of every service, all sharing one store.
  Every protected handler reads the teacher from the request context
  (auth.Middleware); no handler accepts a teacher id from the client.

REQUEST FLOW:
  1. Resolve teacher from context
  2. Decode and validate the body
  3. Call the service
  4. Serialize the DTO
  5. Map errors through writeDomainError

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error to status mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/lesson-ledger/archive"
	"github.com/warp/lesson-ledger/auth"
	"github.com/warp/lesson-ledger/credits"
	"github.com/warp/lesson-ledger/events"
	"github.com/warp/lesson-ledger/ledger"
	"github.com/warp/lesson-ledger/schedule"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Auth       *auth.Service
	Tokens     *auth.Tokens
	Students   *ledger.Students
	Balances   *ledger.Balances
	Statements *ledger.Statements
	Scheduler  *schedule.Scheduler
	Credits    *credits.Ledger
	Payments   *ledger.Payments
	Settings   *ledger.Settings
	Reports    *ledger.Reports

	// Archive stores statement snapshots. Nil disables ?archive=true.
	Archive archive.StatementArchive

	// Ping reports database health for /api/health.
	Ping func(ctx context.Context) error

	validate *validator.Validate
}

// Store is what the handler needs from persistence.
type Store interface {
	ledger.TxStore
	auth.UserStore
}

// NewHandler wires every service to store and pub. loc decides what
// "today" and "this month" mean on the dashboard.
func NewHandler(store Store, tokens *auth.Tokens, pub events.Publisher, loc *time.Location) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		Auth:       auth.NewService(store, tokens),
		Tokens:     tokens,
		Students:   ledger.NewStudents(store),
		Balances:   ledger.NewBalances(store),
		Statements: ledger.NewStatements(store, nil),
		Scheduler:  schedule.NewScheduler(store, pub),
		Credits:    credits.NewLedger(store, pub),
		Payments:   ledger.NewPayments(store, pub),
		Settings:   ledger.NewSettings(store),
		Reports:    ledger.NewReports(store, nil, loc),
		validate:   v,
	}
}

// WithClock pins "now" on every service. Token expiry keeps the wall clock.
func (h *Handler) WithClock(c ledger.Clock) *Handler {
	h.Auth.Clock = c
	h.Students.Clock = c
	h.Statements.Clock = c
	h.Scheduler.Clock = c
	h.Credits.Clock = c
	h.Payments.Clock = c
	h.Settings.Clock = c
	h.Reports.Clock = c
	return h
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decode reads a JSON body into dst and validates its struct tags.
// errEmptyBody is returned by decode when the body has no JSON value.
var errEmptyBody = ledger.Invalid("", "request body is required")

func (h *Handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return ledger.Invalid("", fmt.Sprintf("invalid JSON: %v", err))
	}
	return h.validate.Struct(dst)
}

// teacher returns the authenticated teacher. auth.Middleware guarantees
// one is present on protected routes.
func teacher(r *http.Request) ledger.TeacherID {
	t, _ := auth.TeacherFromContext(r.Context())
	return t
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, ledger.Invalid(name, "must be an RFC3339 timestamp")
	}
	return t, nil
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	user, err := h.Auth.Register(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	session, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ledger.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "Invalid email or password", nil)
			return
		}
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     session.Token,
		ExpiresAt: formatTime(session.ExpiresAt),
		User:      toUserDTO(session.User),
	})
}

// Unauthorized is the auth middleware's error writer.
func Unauthorized(w http.ResponseWriter, _ *http.Request, _ error) {
	writeError(w, http.StatusUnauthorized, "Unauthorized", nil)
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// ListStudents returns the teacher's students ordered by name.
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	students, err := h.Students.List(r.Context(), teacher(r), activeOnly)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	dtos := make([]StudentDTO, len(students))
	for i, s := range students {
		dtos[i] = toStudentDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req StudentRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	st, err := h.Students.Create(r.Context(), teacher(r), req.profile())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStudentDTO(st))
}

func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	id := ledger.StudentID(chi.URLParam(r, "id"))
	st, err := h.Students.Get(r.Context(), teacher(r), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(*st))
}

func (h *Handler) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	id := ledger.StudentID(chi.URLParam(r, "id"))
	var req StudentRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	st, err := h.Students.Update(r.Context(), teacher(r), id, req.profile())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(*st))
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := ledger.StudentID(chi.URLParam(r, "id"))
	b, err := h.Balances.StudentBalance(r.Context(), teacher(r), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// GetStatement returns the running-balance statement. With ?archive=true
// the same JSON is also stored for the PDF renderer.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	t := teacher(r)
	id := ledger.StudentID(chi.URLParam(r, "id"))
	st, err := h.Statements.StudentStatement(r.Context(), t, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	dto := toStatementDTO(st)
	if r.URL.Query().Get("archive") == "true" {
		if h.Archive == nil {
			writeError(w, http.StatusServiceUnavailable, "Statement archive is not configured", nil)
			return
		}
		body, err := json.Marshal(dto)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		key := archive.StatementKey(string(t), string(id), st.GeneratedAt)
		loc, err := h.Archive.Put(r.Context(), key, archive.ContentTypeJSON, body)
		if err != nil {
			writeDomainError(w, r, fmt.Errorf("archive statement: %w", err))
			return
		}
		dto.ArchiveLocation = loc
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) AddPackage(w http.ResponseWriter, r *http.Request) {
	var req AddPackageRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	res, err := h.Credits.AddPackage(r.Context(), teacher(r), req.request())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AddPackageResponse{
		StudentID:  string(res.StudentID),
		NewCredits: res.NewCredits,
		Payment:    toPaymentDTO(res.Payment),
	})
}

// =============================================================================
// LESSON HANDLERS
// =============================================================================

// CreateLesson books a lesson, or a weekly series, and returns the first one.
func (h *Handler) CreateLesson(w http.ResponseWriter, r *http.Request) {
	var req CreateLessonRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	l, err := h.Scheduler.CreateLessons(r.Context(), teacher(r), schedule.CreateRequest{
		StudentID:           ledger.StudentID(req.StudentID),
		StartTime:           req.StartTime,
		DurationMinutes:     req.DurationMinutes,
		Topic:               req.Topic,
		InternalNotes:       req.InternalNotes,
		IsRecurring:         req.IsRecurring,
		RecurringCount:      req.RecurringCount,
		HasHomework:         req.HasHomework,
		HomeworkDescription: req.HomeworkDescription,
		UseCredit:           req.UseCredit,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLessonDTO(l))
}

func (h *Handler) ListAllLessons(w http.ResponseWriter, r *http.Request) {
	from, err := parseTimeParam(r, "from")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	lessons, err := h.Scheduler.AllLessons(r.Context(), teacher(r), from, to)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLessonDTOs(lessons))
}

func (h *Handler) ListStudentLessons(w http.ResponseWriter, r *http.Request) {
	id := ledger.StudentID(chi.URLParam(r, "id"))
	lessons, err := h.Scheduler.StudentLessons(r.Context(), teacher(r), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLessonDTOs(lessons))
}

func (h *Handler) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	id := ledger.LessonID(chi.URLParam(r, "id"))
	l, err := h.Scheduler.CompleteLesson(r.Context(), teacher(r), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLessonDTO(l))
}

// CancelLesson accepts an optional body; an empty body cancels uncharged.
func (h *Handler) CancelLesson(w http.ResponseWriter, r *http.Request) {
	id := ledger.LessonID(chi.URLParam(r, "id"))
	// No body at all means an uncharged cancellation without a reason.
	var req CancelLessonRequest
	if err := h.decode(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeDomainError(w, r, err)
		return
	}

	l, err := h.Scheduler.CancelLesson(r.Context(), teacher(r), id, req.Reason, req.Charge)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLessonDTO(l))
}

func (h *Handler) DeleteLesson(w http.ResponseWriter, r *http.Request) {
	id := ledger.LessonID(chi.URLParam(r, "id"))
	res, err := h.Scheduler.DeleteLesson(r.Context(), teacher(r), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteLessonResponse{ID: string(id), RefundedCredits: res.RefundedCredits})
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := h.decode(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	in := ledger.PaymentRequest{
		StudentID:   ledger.StudentID(req.StudentID),
		Amount:      toDecimal(req.Amount),
		Method:      ledger.PaymentMethod(req.Method),
		Description: req.Description,
	}
	if req.PaidAt != nil {
		in.PaidAt = req.PaidAt.UTC()
	}

	p, err := h.Payments.Record(r.Context(), teacher(r), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(p))
}

func (h *Handler) ListStudentPayments(w http.ResponseWriter, r *http.Request) {
	id := ledger.StudentID(chi.URLParam(r, "id"))
	payments, err := h.Payments.ListByStudent(r.Context(), teacher(r), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id := ledger.PaymentID(chi.URLParam(r, "id"))
	if err := h.Payments.Delete(r.Context(), teacher(r), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Database: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Database: "ok"})
}
