/*
handlers_test.go - HTTP tests for the API

Tests run the full router (auth middleware included) against a SQLite
:memory: store and a pinned clock of 2025-03-10 09:00 UTC.
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lesson-ledger/api"
	"github.com/warp/lesson-ledger/archive"
	"github.com/warp/lesson-ledger/auth"
	"github.com/warp/lesson-ledger/events"
	"github.com/warp/lesson-ledger/ledger"
	"github.com/warp/lesson-ledger/store/sqlstore"
	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var now = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

type testServer struct {
	handler *api.Handler
	router  http.Handler
	events  *events.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlstore.New(context.Background(), sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tokens, err := auth.NewTokens("test-secret", "lesson-ledger", time.Hour)
	require.NoError(t, err)

	rec := events.NewRecorder()
	h := api.NewHandler(store, tokens, rec, time.UTC).WithClock(func() time.Time { return now })
	h.Auth.BcryptCost = bcrypt.MinCost
	h.Ping = store.Ping

	router := api.NewRouter(h, api.RouterConfig{
		Logger:         zerolog.Nop(),
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		DemoScenarios:  true,
	})
	return &testServer{handler: h, router: router, events: rec}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// login registers a teacher and returns a bearer token.
func (s *testServer) login(t *testing.T, email string) string {
	t.Helper()
	res := s.do(t, http.MethodPost, "/api/auth/register", "", api.RegisterRequest{
		Email: email, Password: "secret1", FullName: "Teacher " + email,
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = s.do(t, http.MethodPost, "/api/auth/login", "", api.LoginRequest{Email: email, Password: "secret1"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var out api.LoginResponse
	decodeBody(t, res, &out)
	require.NotEmpty(t, out.Token)
	return out.Token
}

func (s *testServer) createStudent(t *testing.T, token, name string, rate float64) api.StudentDTO {
	t.Helper()
	res := s.do(t, http.MethodPost, "/api/students", token, api.StudentRequest{FullName: name, HourlyRate: rate})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var st api.StudentDTO
	decodeBody(t, res, &st)
	return st
}

func (s *testServer) bookLesson(t *testing.T, token string, req api.CreateLessonRequest) *httptest.ResponseRecorder {
	t.Helper()
	if req.DurationMinutes == 0 {
		req.DurationMinutes = 60
	}
	return s.do(t, http.MethodPost, "/api/lessons", token, req)
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), dst), res.Body.String())
}

func at(day, hour, minute int) time.Time {
	return time.Date(2025, time.March, day, hour, minute, 0, 0, time.UTC)
}

// =============================================================================
// AUTH
// =============================================================================

func TestAuth_ProtectedRoutesNeedToken(t *testing.T) {
	s := newTestServer(t)

	res := s.do(t, http.MethodGet, "/api/students", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = s.do(t, http.MethodGet, "/api/students", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = s.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestAuth_DuplicateEmailAndBadPassword(t *testing.T) {
	// GIVEN: A registered teacher
	// WHEN: Registering the same email again, then logging in with a wrong password
	// THEN: 409 and 401

	s := newTestServer(t)
	s.login(t, "ayla@example.com")

	res := s.do(t, http.MethodPost, "/api/auth/register", "", api.RegisterRequest{
		Email: "AYLA@example.com", Password: "another", FullName: "Copy",
	})
	assert.Equal(t, http.StatusConflict, res.Code)

	res = s.do(t, http.MethodPost, "/api/auth/login", "", api.LoginRequest{Email: "ayla@example.com", Password: "wrong!"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestAuth_RegistrationCreatesDefaultSettings(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "ayla@example.com")

	res := s.do(t, http.MethodGet, "/api/settings", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var settings api.SettingsDTO
	decodeBody(t, res, &settings)
	assert.Equal(t, "Teacher", settings.Title)
	assert.Equal(t, "Teacher ayla@example.com", settings.DisplayName)
	assert.Equal(t, 60, settings.DefaultLessonDuration)
}

// =============================================================================
// BALANCE AND STATEMENT
// =============================================================================

func TestBalance_PayPerLessonFlow(t *testing.T) {
	// GIVEN: A student at 500/h with one completed lesson, one charged
	//        cancellation and one still scheduled
	// WHEN: The student pays 300
	// THEN: Debt 1000, paid 300, balance 700 and the statement agrees

	s := newTestServer(t)
	token := s.login(t, "ayla@example.com")
	st := s.createStudent(t, token, "Emma Clarke", 500)

	var ids []string
	for _, day := range []int{3, 4, 12} {
		res := s.bookLesson(t, token, api.CreateLessonRequest{StudentID: st.ID, StartTime: at(day, 14, 0), Topic: "Algebra"})
		require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
		var l api.LessonDTO
		decodeBody(t, res, &l)
		ids = append(ids, l.ID)
	}

	res := s.do(t, http.MethodPut, "/api/lessons/"+ids[0]+"/complete", token, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	res = s.do(t, http.MethodPut, "/api/lessons/"+ids[1]+"/cancel", token, api.CancelLessonRequest{Reason: "No show", Charge: true})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = s.do(t, http.MethodPost, "/api/payments", token, api.CreatePaymentRequest{StudentID: st.ID, Amount: 300})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = s.do(t, http.MethodGet, "/api/students/"+st.ID+"/balance", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var b api.BalanceDTO
	decodeBody(t, res, &b)
	assert.Equal(t, 1000.0, b.TotalDebt)
	assert.Equal(t, 300.0, b.TotalPayment)
	assert.Equal(t, 700.0, b.CurrentBalance)
	assert.Equal(t, "owes", b.Status)
	assert.Equal(t, "Student owes", b.StatusMessage)

	res = s.do(t, http.MethodGet, "/api/students/"+st.ID+"/statement", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var stmt api.StatementDTO
	decodeBody(t, res, &stmt)
	require.Len(t, stmt.Lines, 3)
	assert.Equal(t, b.CurrentBalance, stmt.ClosingBalance)
	assert.Equal(t, stmt.ClosingBalance, stmt.Lines[2].RunningBalance)
	require.NotNil(t, stmt.Teacher)
	assert.Equal(t, "Teacher", stmt.Teacher.Title)

	assert.Len(t, s.events.OfType(events.LessonScheduled), 3)
	assert.Len(t, s.events.OfType(events.PaymentRecorded), 1)
}

func TestStatement_Archive(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "ayla@example.com")
	st := s.createStudent(t, token, "Emma Clarke", 500)

	// Without an archive configured
	res := s.do(t, http.MethodGet, "/api/students/"+st.ID+"/statement?archive=true", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)

	mem := archive.NewMemory()
	s.handler.Archive = mem

	res = s.do(t, http.MethodGet, "/api/students/"+st.ID+"/statement?archive=true", token, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var stmt api.StatementDTO
	decodeBody(t, res, &stmt)
	require.NotEmpty(t, stmt.ArchiveLocation)

	var teacherID string
	{
		res := s.do(t, http.MethodPost, "/api/auth/login", "", api.LoginRequest{Email: "ayla@example.com", Password: "secret1"})
		var out api.LoginResponse
		decodeBody(t, res, &out)
		teacherID = out.User.ID
	}
	obj, ok := mem.Get(archive.StatementKey(teacherID, st.ID, now))
	require.True(t, ok)
	assert.Equal(t, archive.ContentTypeJSON, obj.ContentType)
	assert.Contains(t, string(obj.Body), `"closing_balance":0`)
}

// =============================================================================
// SCHEDULING ERRORS
// =============================================================================

func TestLessons_ConflictNamesTheSlot(t *testing.T) {
	// GIVEN: A lesson on 17.03 at 14:30
	// WHEN: Booking 4 weekly lessons from 03.03 at 14:00
	// THEN: 400 naming the third occurrence, nothing else created

	s := newTestServer(t)
	token := s.login(t, "ayla@example.com")
	st := s.createStudent(t, token, "Emma Clarke", 500)

	res := s.bookLesson(t, token, api.CreateLessonRequest{StudentID: st.ID, StartTime: at(17, 14, 30)})
	require.Equal(t, http.StatusCreated, res.Code)

	four := 4
	res = s.bookLesson(t, token, api.CreateLessonRequest{
		StudentID: st.ID, StartTime: at(3, 14, 0), IsRecurring: true, RecurringCount: &four,
	})
	require.Equal(t, http.StatusBadRequest, res.Code)
	var e api.ErrorResponse
	decodeBody(t, res, &e)
	assert.Equal(t, "Scheduling conflict", e.Error)
	assert.Contains(t, e.Details, "17.03.2025 14:00")

	res = s.do(t, http.MethodGet, "/api/lessons/all", token, nil)
	var all []api.LessonDTO
	decodeBody(t, res, &all)
	assert.Len(t, all, 1)
}

func TestLessons_InsufficientCreditReportsCounts(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "ayla@example.com")
	st := s.createStudent(t, token, "Deniz Kaya", 450)

	res := s.do(t, http.MethodPost, "/api/students/add-package", token, api.AddPackageRequest{
		StudentID: st.ID, CreditAmount: 2, TotalPrice: 900,
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var pkg api.AddPackageResponse
	decodeBody(t, res, &pkg)
	assert.Equal(t, 2, pkg.NewCredits)
	assert.Equal(t, "2 lesson package", pkg.Payment.Description)

	three := 3
	res = s.bookLesson(t, token, api.CreateLessonRequest{
		StudentID: st.ID, StartTime: at(11, 10, 0), IsRecurring: true, RecurringCount: &three, UseCredit: true,
	})
	require.Equal(t, http.StatusBadRequest, res.Code)
	var e api.ErrorResponse
	decodeBody(t, res, &e)
	require.NotNil(t, e.Required)
	require.NotNil(t, e.Available)
	assert.Equal(t, 3, *e.Required)
	assert.Equal(t, 2, *e.Available)
}

func TestLessons_DeleteRefundsScheduledCredit(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "ayla@example.com")
	st := s.createStudent(t, token, "Deniz Kaya", 450)

	res := s.do(t, http.MethodPost, "/api/students/add-package", token, api.AddPackageRequest{StudentID: st.ID, CreditAmount: 1, TotalPrice: 450})
	require.Equal(t, http.StatusCreated, res.Code)

	res = s.bookLesson(t, token, api.CreateLessonRequest{StudentID: st.ID, StartTime: at(11, 10, 0), UseCredit: true})
	require.Equal(t, http.StatusCreated, res.Code)
	var l api.LessonDTO
	decodeBody(t, res, &l)
	assert.True(t, l.PaidByCredit)

	res = s.do(t, http.MethodDelete, "/api/lessons/"+l.ID, token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var del api.DeleteLessonResponse
	decodeBody(t, res, &del)
	assert.Equal(t, 1, del.RefundedCredits)

	res = s.do(t, http.MethodGet, "/api/students/"+st.ID, token, nil)
	var got api.StudentDTO
	decodeBody(t, res, &got)
	assert.Equal(t, 1, got.Credits)
}

func TestLessons_InvalidTransitionIs409(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "ayla@example.com")
	st := s.createStudent(t, token, "Emma Clarke", 500)

	res := s.bookLesson(t, token, api.CreateLessonRequest{StudentID: st.ID, StartTime: at(11, 10, 0)})
	var l api.LessonDTO
	decodeBody(t, res, &l)

	res = s.do(t, http.MethodPut, "/api/lessons/"+l.ID+"/cancel", token, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = s.do(t, http.MethodPut, "/api/lessons/"+l.ID+"/complete", token, nil)
	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestLessons_CancelBodyForms(t *testing.T) {
	// GIVEN: Scheduled lessons
	// WHEN: Cancelling with a chunked empty body, a blank body, or broken JSON
	// THEN: Empty bodies cancel without charge, broken JSON is a 400

	s := newTestServer(t)
	token := s.login(t, "ayla@example.com")
	st := s.createStudent(t, token, "Emma Clarke", 500)

	tests := []struct {
		name    string
		body    string
		chunked bool
		want    int
	}{
		{"chunked empty", "", true, http.StatusOK},
		{"blank", "  \n", false, http.StatusOK},
		{"broken json", `{"charge":`, false, http.StatusBadRequest},
		{"unknown field", `{"refund":true}`, false, http.StatusBadRequest},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.bookLesson(t, token, api.CreateLessonRequest{StudentID: st.ID, StartTime: at(12+i, 10, 0)})
			require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
			var l api.LessonDTO
			decodeBody(t, res, &l)

			req := httptest.NewRequest(http.MethodPut, "/api/lessons/"+l.ID+"/cancel", strings.NewReader(tt.body))
			req.Header.Set("Authorization", "Bearer "+token)
			if tt.chunked {
				req.ContentLength = -1
			}
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)

			require.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want == http.StatusOK {
				var got api.LessonDTO
				decodeBody(t, rec, &got)
				assert.Equal(t, string(ledger.LessonCancelled), got.Status)
				assert.False(t, got.IsCharged)
			}
		})
	}
}

func TestLessons_CalendarRange(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "ayla@example.com")
	st := s.createStudent(t, token, "Emma Clarke", 500)

	for _, day := range []int{3, 10, 17} {
		res := s.bookLesson(t, token, api.CreateLessonRequest{StudentID: st.ID, StartTime: at(day, 9, 0)})
		require.Equal(t, http.StatusCreated, res.Code)
	}

	res := s.do(t, http.MethodGet, "/api/lessons/all?from=2025-03-10T00:00:00Z&to=2025-03-17T00:00:00Z", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var week []api.LessonDTO
	decodeBody(t, res, &week)
	require.Len(t, week, 1)
	assert.Equal(t, "Emma Clarke", week[0].StudentName)
	assert.Equal(t, "2025-03-10T10:00:00Z", week[0].EndTime)

	res = s.do(t, http.MethodGet, "/api/lessons/all?from=yesterday", token, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = s.do(t, http.MethodGet, "/api/lessons/student/"+st.ID, token, nil)
	var mine []api.LessonDTO
	decodeBody(t, res, &mine)
	require.Len(t, mine, 3)
	assert.Equal(t, "2025-03-17T09:00:00Z", mine[0].StartTime)
}

// =============================================================================
// VALIDATION AND TENANCY
// =============================================================================

func TestValidation_RequestBodies(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "ayla@example.com")

	tests := []struct {
		name  string
		path  string
		body  any
		field string
	}{
		{"student without name", "/api/students", api.StudentRequest{HourlyRate: 10}, "full_name"},
		{"negative rate", "/api/students", api.StudentRequest{FullName: "X", HourlyRate: -1}, "hourly_rate"},
		{"zero payment", "/api/payments", api.CreatePaymentRequest{StudentID: "s", Amount: 0}, "amount"},
		{"unknown method", "/api/payments", api.CreatePaymentRequest{StudentID: "s", Amount: 5, Method: "card"}, "method"},
		{"lesson without duration", "/api/lessons", map[string]any{"student_id": "s", "start_time": "2025-03-11T10:00:00Z"}, "duration_minutes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.do(t, http.MethodPost, tt.path, token, tt.body)
			require.Equal(t, http.StatusBadRequest, res.Code, res.Body.String())
			var e api.ErrorResponse
			decodeBody(t, res, &e)
			assert.Equal(t, tt.field, e.Field)
		})
	}
}

func TestTenancy_ForeignRecordsAreNotFound(t *testing.T) {
	// GIVEN: Teacher A's student and payment
	// WHEN: Teacher B reads, books against or deletes them
	// THEN: 404 every time and A's data is untouched

	s := newTestServer(t)
	tokenA := s.login(t, "a@example.com")
	tokenB := s.login(t, "b@example.com")
	st := s.createStudent(t, tokenA, "Emma Clarke", 500)

	res := s.do(t, http.MethodPost, "/api/payments", tokenA, api.CreatePaymentRequest{StudentID: st.ID, Amount: 100})
	var p api.PaymentDTO
	decodeBody(t, res, &p)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/students/"+st.ID, tokenB, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/students/"+st.ID+"/balance", tokenB, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.bookLesson(t, tokenB, api.CreateLessonRequest{StudentID: st.ID, StartTime: at(11, 10, 0)}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/payments/"+p.ID, tokenB, nil).Code)

	res = s.do(t, http.MethodGet, "/api/students", tokenB, nil)
	var list []api.StudentDTO
	decodeBody(t, res, &list)
	assert.Empty(t, list)

	res = s.do(t, http.MethodGet, "/api/payments/student/"+st.ID, tokenA, nil)
	var payments []api.PaymentDTO
	decodeBody(t, res, &payments)
	assert.Len(t, payments, 1)
}

// =============================================================================
// DASHBOARD AND SETTINGS
// =============================================================================

func TestDashboard_TopStudentAndSummary(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "ayla@example.com")

	res := s.do(t, http.MethodGet, "/api/dashboard/top-student", token, nil)
	assert.Equal(t, http.StatusNoContent, res.Code)

	st := s.createStudent(t, token, "Emma Clarke", 500)
	res = s.bookLesson(t, token, api.CreateLessonRequest{StudentID: st.ID, StartTime: at(3, 9, 0)})
	var l api.LessonDTO
	decodeBody(t, res, &l)
	s.do(t, http.MethodPut, "/api/lessons/"+l.ID+"/complete", token, nil)
	s.bookLesson(t, token, api.CreateLessonRequest{StudentID: st.ID, StartTime: at(10, 15, 0)})
	s.do(t, http.MethodPost, "/api/payments", token, api.CreatePaymentRequest{StudentID: st.ID, Amount: 250.5})

	res = s.do(t, http.MethodGet, "/api/dashboard/top-student", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var top api.TopStudentDTO
	decodeBody(t, res, &top)
	assert.Equal(t, "Emma Clarke", top.StudentName)
	assert.Equal(t, 1, top.LessonCount)

	res = s.do(t, http.MethodGet, "/api/dashboard/summary", token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var sum api.SummaryDTO
	decodeBody(t, res, &sum)
	assert.Equal(t, 250.5, sum.MonthlyRevenue)
	assert.Equal(t, 1, sum.ActiveStudentCount)
	assert.Equal(t, 1, sum.TodayLessonCount)
	require.NotNil(t, sum.NextLesson)
	assert.Equal(t, "2025-03-10T15:00:00Z", sum.NextLesson.StartTime)

	res = s.do(t, http.MethodGet, "/api/dashboard/monthly-earnings", token, nil)
	var months []api.MonthTotalDTO
	decodeBody(t, res, &months)
	require.Len(t, months, 6)
	assert.Equal(t, "Mar", months[5].Label)
	assert.Equal(t, 250.5, months[5].Total)

	res = s.do(t, http.MethodGet, "/api/dashboard/reports", token, nil)
	var rep api.ReportDTO
	decodeBody(t, res, &rep)
	assert.Equal(t, 1, rep.Lessons.Completed)
	assert.Equal(t, 1, rep.Lessons.ScheduledUpcoming)
}

func TestSettings_DefaultRateAppliesToNewStudents(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "ayla@example.com")

	res := s.do(t, http.MethodPost, "/api/settings", token, api.SettingsRequest{
		DisplayName: "Ayla Demir", DefaultHourlyRate: 650, DefaultLessonDuration: 45,
	})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var saved api.SettingsDTO
	decodeBody(t, res, &saved)
	assert.Equal(t, "Teacher", saved.Title)

	st := s.createStudent(t, token, "Emma Clarke", 0)
	assert.Equal(t, 650.0, st.HourlyRate)

	res = s.do(t, http.MethodPost, "/api/settings", token, api.SettingsRequest{DefaultLessonDuration: 0})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenarios_PackageStudent(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "ayla@example.com")

	res := s.do(t, http.MethodGet, "/api/scenarios", token, nil)
	require.Equal(t, http.StatusOK, res.Code)

	res = s.do(t, http.MethodPost, "/api/scenarios/load", token, api.LoadScenarioRequest{ScenarioID: "package-student"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var out api.LoadScenarioResponse
	decodeBody(t, res, &out)
	require.Len(t, out.StudentIDs, 1)
	assert.Equal(t, 6, out.Lessons)

	res = s.do(t, http.MethodGet, "/api/students/"+out.StudentIDs[0]+"/balance", token, nil)
	var b api.BalanceDTO
	decodeBody(t, res, &b)
	assert.Equal(t, 2, b.Credits)
	assert.Equal(t, 0.0, b.TotalDebt)
	assert.Equal(t, 3200.0, b.TotalPayment)
	assert.Equal(t, "in_credit", b.Status)

	// Loading twice collides with the lessons just booked.
	res = s.do(t, http.MethodPost, "/api/scenarios/load", token, api.LoadScenarioRequest{ScenarioID: "package-student"})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = s.do(t, http.MethodPost, "/api/scenarios/load", token, api.LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusNotFound, res.Code)
}
