// Package store provides an in-memory ledger.TxStore.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/lesson-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type lessonRow struct {
	teacher ledger.TeacherID
	lesson  ledger.Lesson
}

type paymentRow struct {
	teacher ledger.TeacherID
	payment ledger.Payment
}

// state holds the data and implements ledger.Store without locking.
// Memory guards it with a mutex; WithTx hands it out directly.
type state struct {
	students map[ledger.StudentID]ledger.Student
	lessons  map[ledger.LessonID]lessonRow
	payments map[ledger.PaymentID]paymentRow
	settings map[ledger.TeacherID]ledger.TeacherSettings
}

func newState() *state {
	return &state{
		students: make(map[ledger.StudentID]ledger.Student),
		lessons:  make(map[ledger.LessonID]lessonRow),
		payments: make(map[ledger.PaymentID]paymentRow),
		settings: make(map[ledger.TeacherID]ledger.TeacherSettings),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.students {
		c.students[k] = v
	}
	for k, v := range s.lessons {
		c.lessons[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.settings {
		c.settings[k] = v
	}
	return c
}

// ===== STUDENTS =====

func (s *state) student(teacher ledger.TeacherID, id ledger.StudentID) (ledger.Student, bool) {
	st, ok := s.students[id]
	if !ok || st.TeacherID != teacher || st.IsDeleted {
		return ledger.Student{}, false
	}
	return st, true
}

func (s *state) CreateStudent(_ context.Context, teacher ledger.TeacherID, st ledger.Student) error {
	st.TeacherID = teacher
	s.students[st.ID] = st
	return nil
}

func (s *state) GetStudent(_ context.Context, teacher ledger.TeacherID, id ledger.StudentID) (*ledger.Student, error) {
	st, ok := s.student(teacher, id)
	if !ok {
		return nil, ledger.NotFound("student", string(id))
	}
	return &st, nil
}

func (s *state) ListStudents(_ context.Context, teacher ledger.TeacherID) ([]ledger.Student, error) {
	var out []ledger.Student
	for _, st := range s.students {
		if st.TeacherID == teacher && !st.IsDeleted {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].FullName), strings.ToLower(out[j].FullName)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) UpdateStudent(_ context.Context, teacher ledger.TeacherID, id ledger.StudentID, p ledger.StudentProfile) error {
	st, ok := s.student(teacher, id)
	if !ok {
		return ledger.NotFound("student", string(id))
	}
	st.Apply(p)
	s.students[id] = st
	return nil
}

func (s *state) AdjustCredits(_ context.Context, teacher ledger.TeacherID, id ledger.StudentID, delta int) (int, error) {
	st, ok := s.student(teacher, id)
	if !ok {
		return 0, ledger.NotFound("student", string(id))
	}
	if st.Credits+delta < 0 {
		return st.Credits, &ledger.InsufficientCreditError{StudentID: id, Required: -delta, Available: st.Credits}
	}
	st.Credits += delta
	s.students[id] = st
	return st.Credits, nil
}

// ===== LESSONS =====

func (s *state) withName(l ledger.Lesson) ledger.Lesson {
	if st, ok := s.students[l.StudentID]; ok {
		l.StudentName = st.FullName
	}
	return l
}

func (s *state) lesson(teacher ledger.TeacherID, id ledger.LessonID) (ledger.Lesson, bool) {
	row, ok := s.lessons[id]
	if !ok || row.teacher != teacher || row.lesson.IsDeleted {
		return ledger.Lesson{}, false
	}
	return row.lesson, true
}

func (s *state) CreateLessons(_ context.Context, teacher ledger.TeacherID, lessons []ledger.Lesson) error {
	for _, l := range lessons {
		if _, ok := s.student(teacher, l.StudentID); !ok {
			return ledger.NotFound("student", string(l.StudentID))
		}
	}
	for _, l := range lessons {
		l.StudentName = ""
		s.lessons[l.ID] = lessonRow{teacher: teacher, lesson: l}
	}
	return nil
}

func (s *state) GetLesson(_ context.Context, teacher ledger.TeacherID, id ledger.LessonID) (*ledger.Lesson, error) {
	l, ok := s.lesson(teacher, id)
	if !ok {
		return nil, ledger.NotFound("lesson", string(id))
	}
	l = s.withName(l)
	return &l, nil
}

func (s *state) UpdateLesson(_ context.Context, teacher ledger.TeacherID, in ledger.Lesson) error {
	l, ok := s.lesson(teacher, in.ID)
	if !ok {
		return ledger.NotFound("lesson", string(in.ID))
	}
	l.Status = in.Status
	l.CancellationReason = in.CancellationReason
	l.IsCharged = in.IsCharged
	s.lessons[in.ID] = lessonRow{teacher: teacher, lesson: l}
	return nil
}

func (s *state) SoftDeleteLesson(_ context.Context, teacher ledger.TeacherID, id ledger.LessonID) error {
	l, ok := s.lesson(teacher, id)
	if !ok {
		return ledger.NotFound("lesson", string(id))
	}
	l.IsDeleted = true
	s.lessons[id] = lessonRow{teacher: teacher, lesson: l}
	return nil
}

func (s *state) filterLessons(teacher ledger.TeacherID, f ledger.LessonFilter) []ledger.Lesson {
	var out []ledger.Lesson
	for _, row := range s.lessons {
		l := row.lesson
		if row.teacher != teacher || l.IsDeleted {
			continue
		}
		if f.StudentID != "" && l.StudentID != f.StudentID {
			continue
		}
		if !f.From.IsZero() && l.StartTime.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !l.StartTime.Before(f.To) {
			continue
		}
		out = append(out, s.withName(l))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) ListLessonsByStudent(_ context.Context, teacher ledger.TeacherID, student ledger.StudentID) ([]ledger.Lesson, error) {
	out := s.filterLessons(teacher, ledger.LessonFilter{StudentID: student})
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *state) ListLessons(_ context.Context, teacher ledger.TeacherID, f ledger.LessonFilter) ([]ledger.Lesson, error) {
	return s.filterLessons(teacher, f), nil
}

func (s *state) FindConflict(_ context.Context, teacher ledger.TeacherID, iv ledger.Interval) (*ledger.Lesson, error) {
	for _, l := range s.filterLessons(teacher, ledger.LessonFilter{}) {
		if l.Status == ledger.LessonCancelled {
			continue
		}
		if l.Interval().Overlaps(iv) {
			return &l, nil
		}
	}
	return nil, nil
}

func (s *state) ListScheduledStarting(_ context.Context, from, to time.Time) ([]ledger.DueLesson, error) {
	var out []ledger.DueLesson
	for _, row := range s.lessons {
		l := row.lesson
		if l.IsDeleted || l.Status != ledger.LessonScheduled {
			continue
		}
		if l.StartTime.Before(from) || !l.StartTime.Before(to) {
			continue
		}
		out = append(out, ledger.DueLesson{TeacherID: row.teacher, Lesson: s.withName(l)})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Lesson, out[j].Lesson
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.ID < b.ID
	})
	return out, nil
}

// ===== PAYMENTS =====

func (s *state) CreatePayment(_ context.Context, teacher ledger.TeacherID, p ledger.Payment) error {
	if _, ok := s.student(teacher, p.StudentID); !ok {
		return ledger.NotFound("student", string(p.StudentID))
	}
	s.payments[p.ID] = paymentRow{teacher: teacher, payment: p}
	return nil
}

func (s *state) payment(teacher ledger.TeacherID, id ledger.PaymentID) (ledger.Payment, bool) {
	row, ok := s.payments[id]
	if !ok || row.teacher != teacher || row.payment.IsDeleted {
		return ledger.Payment{}, false
	}
	return row.payment, true
}

func (s *state) GetPayment(_ context.Context, teacher ledger.TeacherID, id ledger.PaymentID) (*ledger.Payment, error) {
	p, ok := s.payment(teacher, id)
	if !ok {
		return nil, ledger.NotFound("payment", string(id))
	}
	return &p, nil
}

func (s *state) SoftDeletePayment(_ context.Context, teacher ledger.TeacherID, id ledger.PaymentID) error {
	p, ok := s.payment(teacher, id)
	if !ok {
		return ledger.NotFound("payment", string(id))
	}
	p.IsDeleted = true
	s.payments[id] = paymentRow{teacher: teacher, payment: p}
	return nil
}

func (s *state) filterPayments(teacher ledger.TeacherID, f ledger.PaymentFilter) []ledger.Payment {
	var out []ledger.Payment
	for _, row := range s.payments {
		p := row.payment
		if row.teacher != teacher || p.IsDeleted {
			continue
		}
		if f.StudentID != "" && p.StudentID != f.StudentID {
			continue
		}
		if !f.From.IsZero() && p.PaidAt.Before(f.From) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaidAt.Equal(out[j].PaidAt) {
			return out[i].PaidAt.Before(out[j].PaidAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) ListPaymentsByStudent(_ context.Context, teacher ledger.TeacherID, student ledger.StudentID) ([]ledger.Payment, error) {
	out := s.filterPayments(teacher, ledger.PaymentFilter{StudentID: student})
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *state) ListPayments(_ context.Context, teacher ledger.TeacherID, f ledger.PaymentFilter) ([]ledger.Payment, error) {
	return s.filterPayments(teacher, f), nil
}

// ===== SETTINGS =====

func (s *state) GetSettings(_ context.Context, teacher ledger.TeacherID) (*ledger.TeacherSettings, error) {
	st, ok := s.settings[teacher]
	if !ok {
		return nil, ledger.NotFound("settings", string(teacher))
	}
	return &st, nil
}

func (s *state) UpsertSettings(_ context.Context, teacher ledger.TeacherID, st ledger.TeacherSettings) error {
	st.TeacherID = teacher
	s.settings[teacher] = st
	return nil
}

// =============================================================================
// LOCKED WRAPPER
// =============================================================================

// Memory is a ledger.TxStore kept entirely in process memory.
type Memory struct {
	mu sync.RWMutex
	s  *state
}

func NewMemory() *Memory {
	return &Memory{s: newState()}
}

func (m *Memory) read(fn func(*state)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.s)
}

func (m *Memory) write(fn func(*state)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.s)
}

// WithTx executes fn within a transaction.
// For the memory store this is a snapshot + rollback on error. The whole
// store is locked for the duration, which also serializes per teacher.
func (m *Memory) WithTx(_ context.Context, _ ledger.TeacherID, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s.clone()
	if err := fn(m.s); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

func (m *Memory) CreateStudent(ctx context.Context, teacher ledger.TeacherID, st ledger.Student) (err error) {
	m.write(func(s *state) { err = s.CreateStudent(ctx, teacher, st) })
	return
}

func (m *Memory) GetStudent(ctx context.Context, teacher ledger.TeacherID, id ledger.StudentID) (out *ledger.Student, err error) {
	m.read(func(s *state) { out, err = s.GetStudent(ctx, teacher, id) })
	return
}

func (m *Memory) ListStudents(ctx context.Context, teacher ledger.TeacherID) (out []ledger.Student, err error) {
	m.read(func(s *state) { out, err = s.ListStudents(ctx, teacher) })
	return
}

func (m *Memory) UpdateStudent(ctx context.Context, teacher ledger.TeacherID, id ledger.StudentID, p ledger.StudentProfile) (err error) {
	m.write(func(s *state) { err = s.UpdateStudent(ctx, teacher, id, p) })
	return
}

func (m *Memory) AdjustCredits(ctx context.Context, teacher ledger.TeacherID, id ledger.StudentID, delta int) (out int, err error) {
	m.write(func(s *state) { out, err = s.AdjustCredits(ctx, teacher, id, delta) })
	return
}

func (m *Memory) CreateLessons(ctx context.Context, teacher ledger.TeacherID, lessons []ledger.Lesson) (err error) {
	m.write(func(s *state) { err = s.CreateLessons(ctx, teacher, lessons) })
	return
}

func (m *Memory) GetLesson(ctx context.Context, teacher ledger.TeacherID, id ledger.LessonID) (out *ledger.Lesson, err error) {
	m.read(func(s *state) { out, err = s.GetLesson(ctx, teacher, id) })
	return
}

func (m *Memory) UpdateLesson(ctx context.Context, teacher ledger.TeacherID, l ledger.Lesson) (err error) {
	m.write(func(s *state) { err = s.UpdateLesson(ctx, teacher, l) })
	return
}

func (m *Memory) SoftDeleteLesson(ctx context.Context, teacher ledger.TeacherID, id ledger.LessonID) (err error) {
	m.write(func(s *state) { err = s.SoftDeleteLesson(ctx, teacher, id) })
	return
}

func (m *Memory) ListLessonsByStudent(ctx context.Context, teacher ledger.TeacherID, student ledger.StudentID) (out []ledger.Lesson, err error) {
	m.read(func(s *state) { out, err = s.ListLessonsByStudent(ctx, teacher, student) })
	return
}

func (m *Memory) ListLessons(ctx context.Context, teacher ledger.TeacherID, f ledger.LessonFilter) (out []ledger.Lesson, err error) {
	m.read(func(s *state) { out, err = s.ListLessons(ctx, teacher, f) })
	return
}

func (m *Memory) FindConflict(ctx context.Context, teacher ledger.TeacherID, iv ledger.Interval) (out *ledger.Lesson, err error) {
	m.read(func(s *state) { out, err = s.FindConflict(ctx, teacher, iv) })
	return
}

func (m *Memory) ListScheduledStarting(ctx context.Context, from, to time.Time) (out []ledger.DueLesson, err error) {
	m.read(func(s *state) { out, err = s.ListScheduledStarting(ctx, from, to) })
	return
}

func (m *Memory) CreatePayment(ctx context.Context, teacher ledger.TeacherID, p ledger.Payment) (err error) {
	m.write(func(s *state) { err = s.CreatePayment(ctx, teacher, p) })
	return
}

func (m *Memory) GetPayment(ctx context.Context, teacher ledger.TeacherID, id ledger.PaymentID) (out *ledger.Payment, err error) {
	m.read(func(s *state) { out, err = s.GetPayment(ctx, teacher, id) })
	return
}

func (m *Memory) SoftDeletePayment(ctx context.Context, teacher ledger.TeacherID, id ledger.PaymentID) (err error) {
	m.write(func(s *state) { err = s.SoftDeletePayment(ctx, teacher, id) })
	return
}

func (m *Memory) ListPaymentsByStudent(ctx context.Context, teacher ledger.TeacherID, student ledger.StudentID) (out []ledger.Payment, err error) {
	m.read(func(s *state) { out, err = s.ListPaymentsByStudent(ctx, teacher, student) })
	return
}

func (m *Memory) ListPayments(ctx context.Context, teacher ledger.TeacherID, f ledger.PaymentFilter) (out []ledger.Payment, err error) {
	m.read(func(s *state) { out, err = s.ListPayments(ctx, teacher, f) })
	return
}

func (m *Memory) GetSettings(ctx context.Context, teacher ledger.TeacherID) (out *ledger.TeacherSettings, err error) {
	m.read(func(s *state) { out, err = s.GetSettings(ctx, teacher) })
	return
}

func (m *Memory) UpsertSettings(ctx context.Context, teacher ledger.TeacherID, st ledger.TeacherSettings) (err error) {
	m.write(func(s *state) { err = s.UpsertSettings(ctx, teacher, st) })
	return
}

var (
	_ ledger.TxStore             = (*Memory)(nil)
	_ ledger.UpcomingLessonStore = (*Memory)(nil)
)
