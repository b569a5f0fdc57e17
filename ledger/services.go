package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/lesson-ledger/events"
)

// IDFunc generates record identifiers. Tests swap it for deterministic ids.
type IDFunc func() string

func NewID() string { return uuid.NewString() }

func (f IDFunc) New() string {
	if f == nil {
		return NewID()
	}
	return f()
}

// Publish sends an event after a successful write. Delivery failures are
// logged and never undo the write.
func Publish(ctx context.Context, p events.Publisher, e events.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event", string(e.Type)).Msg("event publish failed")
	}
}

// =============================================================================
// STUDENTS
// =============================================================================

type Students struct {
	Store Store
	Clock Clock
	IDs   IDFunc
}

func NewStudents(store Store) *Students {
	return &Students{Store: store}
}

func validateProfile(p StudentProfile) error {
	if strings.TrimSpace(p.FullName) == "" {
		return Invalid("full_name", "is required")
	}
	if p.HourlyRate.IsNegative() {
		return Invalid("hourly_rate", "must not be negative")
	}
	return nil
}

// Create adds a student. A zero hourly rate falls back to the teacher's
// default rate when settings exist.
func (s *Students) Create(ctx context.Context, teacher TeacherID, p StudentProfile) (Student, error) {
	if err := validateProfile(p); err != nil {
		return Student{}, err
	}
	if p.HourlyRate.IsZero() {
		settings, err := s.Store.GetSettings(ctx, teacher)
		switch {
		case err == nil:
			p.HourlyRate = settings.DefaultHourlyRate
		case !IsNotFound(err):
			return Student{}, err
		}
	}

	st := Student{
		ID:        StudentID(s.IDs.New()),
		TeacherID: teacher,
		CreatedAt: s.Clock.Now(),
	}
	st.Apply(p)
	if err := s.Store.CreateStudent(ctx, teacher, st); err != nil {
		return Student{}, err
	}
	return st, nil
}

func (s *Students) Get(ctx context.Context, teacher TeacherID, id StudentID) (*Student, error) {
	return s.Store.GetStudent(ctx, teacher, id)
}

func (s *Students) List(ctx context.Context, teacher TeacherID, activeOnly bool) ([]Student, error) {
	all, err := s.Store.ListStudents(ctx, teacher)
	if err != nil || !activeOnly {
		return all, err
	}
	active := all[:0]
	for _, st := range all {
		if st.IsActive {
			active = append(active, st)
		}
	}
	return active, nil
}

// Update changes profile fields. Existing lessons keep their price snapshots.
func (s *Students) Update(ctx context.Context, teacher TeacherID, id StudentID, p StudentProfile) (*Student, error) {
	if err := validateProfile(p); err != nil {
		return nil, err
	}
	if err := s.Store.UpdateStudent(ctx, teacher, id, p); err != nil {
		return nil, err
	}
	return s.Store.GetStudent(ctx, teacher, id)
}

// =============================================================================
// PAYMENTS
// =============================================================================

type Payments struct {
	Store  Store
	Events events.Publisher
	Clock  Clock
	IDs    IDFunc
}

func NewPayments(store Store, pub events.Publisher) *Payments {
	return &Payments{Store: store, Events: pub}
}

type PaymentRequest struct {
	StudentID   StudentID
	Amount      decimal.Decimal
	Method      PaymentMethod
	Description string
	PaidAt      time.Time // zero means now
}

func (s *Payments) Record(ctx context.Context, teacher TeacherID, req PaymentRequest) (Payment, error) {
	if !req.Amount.IsPositive() {
		return Payment{}, Invalid("amount", "must be greater than zero")
	}
	if req.Method == "" {
		req.Method = PaymentCash
	}
	if !req.Method.Valid() {
		return Payment{}, Invalid("method", "must be cash or bank_transfer")
	}
	if _, err := s.Store.GetStudent(ctx, teacher, req.StudentID); err != nil {
		return Payment{}, err
	}

	now := s.Clock.Now()
	paidAt := req.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}
	p := Payment{
		ID:          PaymentID(s.IDs.New()),
		StudentID:   req.StudentID,
		Amount:      req.Amount,
		PaidAt:      paidAt,
		Method:      req.Method,
		Description: req.Description,
		CreatedAt:   now,
	}
	if err := s.Store.CreatePayment(ctx, teacher, p); err != nil {
		return Payment{}, err
	}

	Publish(ctx, s.Events, events.Event{
		Type:      events.PaymentRecorded,
		TeacherID: string(teacher),
		StudentID: string(p.StudentID),
		Payload: map[string]any{
			"payment_id": string(p.ID),
			"amount":     p.Amount.String(),
			"method":     string(p.Method),
		},
	})
	return p, nil
}

func (s *Payments) ListByStudent(ctx context.Context, teacher TeacherID, id StudentID) ([]Payment, error) {
	if _, err := s.Store.GetStudent(ctx, teacher, id); err != nil {
		return nil, err
	}
	return s.Store.ListPaymentsByStudent(ctx, teacher, id)
}

func (s *Payments) Delete(ctx context.Context, teacher TeacherID, id PaymentID) error {
	p, err := s.Store.GetPayment(ctx, teacher, id)
	if err != nil {
		return err
	}
	if err := s.Store.SoftDeletePayment(ctx, teacher, id); err != nil {
		return err
	}
	Publish(ctx, s.Events, events.Event{
		Type:      events.PaymentDeleted,
		TeacherID: string(teacher),
		StudentID: string(p.StudentID),
		Payload:   map[string]any{"payment_id": string(p.ID)},
	})
	return nil
}

// =============================================================================
// SETTINGS
// =============================================================================

type Settings struct {
	Store Store
	Clock Clock
}

func NewSettings(store Store) *Settings {
	return &Settings{Store: store}
}

// Get returns stored settings, or the registration defaults when none exist.
func (s *Settings) Get(ctx context.Context, teacher TeacherID) (TeacherSettings, error) {
	settings, err := s.Store.GetSettings(ctx, teacher)
	if IsNotFound(err) {
		return DefaultSettings(teacher, ""), nil
	}
	if err != nil {
		return TeacherSettings{}, err
	}
	return *settings, nil
}

func (s *Settings) Upsert(ctx context.Context, teacher TeacherID, in TeacherSettings) (TeacherSettings, error) {
	if in.DefaultHourlyRate.IsNegative() {
		return TeacherSettings{}, Invalid("default_hourly_rate", "must not be negative")
	}
	if in.DefaultLessonDuration <= 0 {
		return TeacherSettings{}, Invalid("default_lesson_duration", "must be greater than zero")
	}
	in.TeacherID = teacher
	in.UpdatedAt = s.Clock.Now()
	if err := s.Store.UpsertSettings(ctx, teacher, in); err != nil {
		return TeacherSettings{}, err
	}
	return in, nil
}
