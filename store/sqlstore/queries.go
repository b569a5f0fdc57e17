package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lesson-ledger/ledger"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements ledger.Store on top of a connection or a transaction.
type queries struct {
	db       dbtx
	postgres bool
}

func (q *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, rebind(q.postgres, query), args...)
}

func (q *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, rebind(q.postgres, query), args...)
}

func (q *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, rebind(q.postgres, query), args...)
}

// affectedOrNotFound maps "no row matched" to a NotFoundError.
func affectedOrNotFound(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.NotFound(kind, id)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// STUDENTS
// =============================================================================

const studentColumns = `id, teacher_id, full_name, guardian_name, phone, notes, hourly_rate,
	color_code, is_active, credits, is_deleted, created_at`

func scanStudent(row scanner) (ledger.Student, error) {
	var (
		s         ledger.Student
		rate      string
		createdAt string
	)
	err := row.Scan(&s.ID, &s.TeacherID, &s.FullName, &s.GuardianName, &s.Phone, &s.Notes, &rate,
		&s.ColorCode, &s.IsActive, &s.Credits, &s.IsDeleted, &createdAt)
	if err != nil {
		return s, err
	}
	if s.HourlyRate, err = decimal.NewFromString(rate); err != nil {
		return s, fmt.Errorf("invalid hourly rate for student %s: %w", s.ID, err)
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return s, err
	}
	return s, nil
}

func (q *queries) CreateStudent(ctx context.Context, teacher ledger.TeacherID, s ledger.Student) error {
	_, err := q.exec(ctx, `
		INSERT INTO students (`+studentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, teacher, s.FullName, s.GuardianName, s.Phone, s.Notes, s.HourlyRate.String(),
		s.ColorCode, s.IsActive, s.Credits, false, formatTime(s.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create student: %w", err)
	}
	return nil
}

func (q *queries) GetStudent(ctx context.Context, teacher ledger.TeacherID, id ledger.StudentID) (*ledger.Student, error) {
	s, err := scanStudent(q.queryRow(ctx, `
		SELECT `+studentColumns+` FROM students
		WHERE teacher_id = ? AND id = ? AND is_deleted = FALSE`, teacher, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("student", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return &s, nil
}

func (q *queries) ListStudents(ctx context.Context, teacher ledger.TeacherID) ([]ledger.Student, error) {
	rows, err := q.query(ctx, `
		SELECT `+studentColumns+` FROM students
		WHERE teacher_id = ? AND is_deleted = FALSE
		ORDER BY LOWER(full_name), id`, teacher)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	var out []ledger.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *queries) UpdateStudent(ctx context.Context, teacher ledger.TeacherID, id ledger.StudentID, p ledger.StudentProfile) error {
	res, err := q.exec(ctx, `
		UPDATE students
		SET full_name = ?, guardian_name = ?, phone = ?, notes = ?, hourly_rate = ?, color_code = ?, is_active = ?
		WHERE teacher_id = ? AND id = ? AND is_deleted = FALSE`,
		p.FullName, p.GuardianName, p.Phone, p.Notes, p.HourlyRate.String(), p.ColorCode, p.IsActive,
		teacher, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update student: %w", err)
	}
	return affectedOrNotFound(res, "student", string(id))
}

// AdjustCredits is a single conditional UPDATE, so concurrent adjustments
// can never take the counter below zero.
func (q *queries) AdjustCredits(ctx context.Context, teacher ledger.TeacherID, id ledger.StudentID, delta int) (int, error) {
	res, err := q.exec(ctx, `
		UPDATE students SET credits = credits + ?
		WHERE teacher_id = ? AND id = ? AND is_deleted = FALSE AND credits + ? >= 0`,
		delta, teacher, id, delta,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to adjust credits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	st, err := q.GetStudent(ctx, teacher, id)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return st.Credits, &ledger.InsufficientCreditError{StudentID: id, Required: -delta, Available: st.Credits}
	}
	return st.Credits, nil
}

// =============================================================================
// LESSONS
// =============================================================================

const lessonColumns = `l.id, l.student_id, s.full_name, l.start_time, l.duration_minutes, l.price_snapshot,
	l.topic, l.internal_notes, l.status, l.cancellation_reason, l.is_charged, l.paid_by_credit,
	l.recurring_group_id, l.has_homework, l.homework_description, l.is_deleted, l.created_at`

const lessonFrom = ` FROM lessons l JOIN students s ON s.id = l.student_id `

func scanLesson(row scanner) (ledger.Lesson, error) {
	var (
		l         ledger.Lesson
		start     string
		price     string
		group     sql.NullString
		createdAt string
	)
	err := row.Scan(&l.ID, &l.StudentID, &l.StudentName, &start, &l.DurationMinutes, &price,
		&l.Topic, &l.InternalNotes, &l.Status, &l.CancellationReason, &l.IsCharged, &l.PaidByCredit,
		&group, &l.HasHomework, &l.HomeworkDescription, &l.IsDeleted, &createdAt)
	if err != nil {
		return l, err
	}
	if !l.Status.Valid() {
		return l, fmt.Errorf("invalid status %q for lesson %s", l.Status, l.ID)
	}
	if l.StartTime, err = parseTime(start); err != nil {
		return l, err
	}
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return l, err
	}
	if l.PriceSnapshot, err = decimal.NewFromString(price); err != nil {
		return l, fmt.Errorf("invalid price for lesson %s: %w", l.ID, err)
	}
	if group.Valid {
		g := ledger.RecurringGroupID(group.String)
		l.RecurringGroupID = &g
	}
	return l, nil
}

func (q *queries) listLessons(ctx context.Context, query string, args ...any) ([]ledger.Lesson, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lessons: %w", err)
	}
	defer rows.Close()

	var out []ledger.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (q *queries) CreateLessons(ctx context.Context, teacher ledger.TeacherID, lessons []ledger.Lesson) error {
	owned := make(map[ledger.StudentID]bool)
	for _, l := range lessons {
		if owned[l.StudentID] {
			continue
		}
		if _, err := q.GetStudent(ctx, teacher, l.StudentID); err != nil {
			return err
		}
		owned[l.StudentID] = true
	}

	for _, l := range lessons {
		var group sql.NullString
		if l.RecurringGroupID != nil {
			group = nullString(string(*l.RecurringGroupID))
		}
		_, err := q.exec(ctx, `
			INSERT INTO lessons
			(id, teacher_id, student_id, start_time, end_time, duration_minutes, price_snapshot,
			 topic, internal_notes, status, cancellation_reason, is_charged, paid_by_credit,
			 recurring_group_id, has_homework, homework_description, is_deleted, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, teacher, l.StudentID, formatTime(l.StartTime), formatTime(l.EndTime()), l.DurationMinutes,
			l.PriceSnapshot.String(), l.Topic, l.InternalNotes, l.Status, l.CancellationReason,
			l.IsCharged, l.PaidByCredit, group, l.HasHomework, l.HomeworkDescription, false,
			formatTime(l.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert lesson: %w", err)
		}
	}
	return nil
}

func (q *queries) GetLesson(ctx context.Context, teacher ledger.TeacherID, id ledger.LessonID) (*ledger.Lesson, error) {
	l, err := scanLesson(q.queryRow(ctx, `SELECT `+lessonColumns+lessonFrom+`
		WHERE l.teacher_id = ? AND l.id = ? AND l.is_deleted = FALSE`, teacher, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("lesson", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}
	return &l, nil
}

func (q *queries) UpdateLesson(ctx context.Context, teacher ledger.TeacherID, l ledger.Lesson) error {
	res, err := q.exec(ctx, `
		UPDATE lessons SET status = ?, cancellation_reason = ?, is_charged = ?
		WHERE teacher_id = ? AND id = ? AND is_deleted = FALSE`,
		l.Status, l.CancellationReason, l.IsCharged, teacher, l.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update lesson: %w", err)
	}
	return affectedOrNotFound(res, "lesson", string(l.ID))
}

func (q *queries) SoftDeleteLesson(ctx context.Context, teacher ledger.TeacherID, id ledger.LessonID) error {
	res, err := q.exec(ctx, `
		UPDATE lessons SET is_deleted = TRUE
		WHERE teacher_id = ? AND id = ? AND is_deleted = FALSE`, teacher, id)
	if err != nil {
		return fmt.Errorf("failed to delete lesson: %w", err)
	}
	return affectedOrNotFound(res, "lesson", string(id))
}

func (q *queries) ListLessonsByStudent(ctx context.Context, teacher ledger.TeacherID, student ledger.StudentID) ([]ledger.Lesson, error) {
	return q.listLessons(ctx, `SELECT `+lessonColumns+lessonFrom+`
		WHERE l.teacher_id = ? AND l.student_id = ? AND l.is_deleted = FALSE
		ORDER BY l.start_time DESC, l.id DESC`, teacher, student)
}

func (q *queries) ListLessons(ctx context.Context, teacher ledger.TeacherID, f ledger.LessonFilter) ([]ledger.Lesson, error) {
	query := `SELECT ` + lessonColumns + lessonFrom + `WHERE l.teacher_id = ? AND l.is_deleted = FALSE`
	args := []any{teacher}
	if !f.From.IsZero() {
		query += ` AND l.start_time >= ?`
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		query += ` AND l.start_time < ?`
		args = append(args, formatTime(f.To))
	}
	if f.StudentID != "" {
		query += ` AND l.student_id = ?`
		args = append(args, f.StudentID)
	}
	query += ` ORDER BY l.start_time, l.id`
	return q.listLessons(ctx, query, args...)
}

// FindConflict uses the stored end_time: existing.start < end AND existing.end > start.
func (q *queries) FindConflict(ctx context.Context, teacher ledger.TeacherID, iv ledger.Interval) (*ledger.Lesson, error) {
	l, err := scanLesson(q.queryRow(ctx, `SELECT `+lessonColumns+lessonFrom+`
		WHERE l.teacher_id = ? AND l.is_deleted = FALSE AND l.status <> ?
		  AND l.start_time < ? AND l.end_time > ?
		ORDER BY l.start_time, l.id
		LIMIT 1`,
		teacher, ledger.LessonCancelled, formatTime(iv.End), formatTime(iv.Start)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check conflicts: %w", err)
	}
	return &l, nil
}

// ListScheduledStarting is not tenant scoped. It only serves the reminder job.
func (q *queries) ListScheduledStarting(ctx context.Context, from, to time.Time) ([]ledger.DueLesson, error) {
	rows, err := q.query(ctx, `SELECT l.teacher_id, `+lessonColumns+lessonFrom+`
		WHERE l.is_deleted = FALSE AND l.status = ?
		  AND l.start_time >= ? AND l.start_time < ?
		ORDER BY l.start_time, l.id`,
		ledger.LessonScheduled, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming lessons: %w", err)
	}
	defer rows.Close()

	var out []ledger.DueLesson
	for rows.Next() {
		var teacher ledger.TeacherID
		l, err := scanLesson(prefixed{rows, &teacher})
		if err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		out = append(out, ledger.DueLesson{TeacherID: teacher, Lesson: l})
	}
	return out, rows.Err()
}

// prefixed scans one leading column into dest before the wrapped row's columns.
type prefixed struct {
	row  scanner
	dest any
}

func (p prefixed) Scan(dest ...any) error {
	return p.row.Scan(append([]any{p.dest}, dest...)...)
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentColumns = `id, student_id, amount, paid_at, method, description, is_deleted, created_at`

func scanPayment(row scanner) (ledger.Payment, error) {
	var (
		p         ledger.Payment
		amount    string
		paidAt    string
		createdAt string
	)
	err := row.Scan(&p.ID, &p.StudentID, &amount, &paidAt, &p.Method, &p.Description, &p.IsDeleted, &createdAt)
	if err != nil {
		return p, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return p, fmt.Errorf("invalid amount for payment %s: %w", p.ID, err)
	}
	if p.PaidAt, err = parseTime(paidAt); err != nil {
		return p, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	return p, nil
}

func (q *queries) listPayments(ctx context.Context, query string, args ...any) ([]ledger.Payment, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var out []ledger.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *queries) CreatePayment(ctx context.Context, teacher ledger.TeacherID, p ledger.Payment) error {
	if _, err := q.GetStudent(ctx, teacher, p.StudentID); err != nil {
		return err
	}
	_, err := q.exec(ctx, `
		INSERT INTO payments (id, teacher_id, student_id, amount, paid_at, method, description, is_deleted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, teacher, p.StudentID, p.Amount.String(), formatTime(p.PaidAt), p.Method, p.Description,
		false, formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (q *queries) GetPayment(ctx context.Context, teacher ledger.TeacherID, id ledger.PaymentID) (*ledger.Payment, error) {
	p, err := scanPayment(q.queryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE teacher_id = ? AND id = ? AND is_deleted = FALSE`, teacher, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("payment", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

func (q *queries) SoftDeletePayment(ctx context.Context, teacher ledger.TeacherID, id ledger.PaymentID) error {
	res, err := q.exec(ctx, `
		UPDATE payments SET is_deleted = TRUE
		WHERE teacher_id = ? AND id = ? AND is_deleted = FALSE`, teacher, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return affectedOrNotFound(res, "payment", string(id))
}

func (q *queries) ListPaymentsByStudent(ctx context.Context, teacher ledger.TeacherID, student ledger.StudentID) ([]ledger.Payment, error) {
	return q.listPayments(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE teacher_id = ? AND student_id = ? AND is_deleted = FALSE
		ORDER BY paid_at DESC, id DESC`, teacher, student)
}

func (q *queries) ListPayments(ctx context.Context, teacher ledger.TeacherID, f ledger.PaymentFilter) ([]ledger.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE teacher_id = ? AND is_deleted = FALSE`
	args := []any{teacher}
	if !f.From.IsZero() {
		query += ` AND paid_at >= ?`
		args = append(args, formatTime(f.From))
	}
	if f.StudentID != "" {
		query += ` AND student_id = ?`
		args = append(args, f.StudentID)
	}
	query += ` ORDER BY paid_at, id`
	return q.listPayments(ctx, query, args...)
}

// =============================================================================
// SETTINGS
// =============================================================================

func (q *queries) GetSettings(ctx context.Context, teacher ledger.TeacherID) (*ledger.TeacherSettings, error) {
	var (
		s         ledger.TeacherSettings
		rate      string
		updatedAt string
	)
	err := q.queryRow(ctx, `
		SELECT teacher_id, display_name, title, default_hourly_rate, default_lesson_duration, updated_at
		FROM teacher_settings WHERE teacher_id = ?`, teacher,
	).Scan(&s.TeacherID, &s.DisplayName, &s.Title, &rate, &s.DefaultLessonDuration, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("settings", string(teacher))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if s.DefaultHourlyRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("invalid default hourly rate: %w", err)
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (q *queries) UpsertSettings(ctx context.Context, teacher ledger.TeacherID, s ledger.TeacherSettings) error {
	_, err := q.exec(ctx, `
		INSERT INTO teacher_settings (teacher_id, display_name, title, default_hourly_rate, default_lesson_duration, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (teacher_id) DO UPDATE SET
			display_name = excluded.display_name,
			title = excluded.title,
			default_hourly_rate = excluded.default_hourly_rate,
			default_lesson_duration = excluded.default_lesson_duration,
			updated_at = excluded.updated_at`,
		teacher, s.DisplayName, s.Title, s.DefaultHourlyRate.String(), s.DefaultLessonDuration, formatTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
