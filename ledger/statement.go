/*
statement.go - Chronological statement with running balance

PURPOSE:
  Projects a student's lessons and payments into ordered ledger lines for
  the running-balance view and the PDF statement renderer.

LINE RULES:
  Billable lesson              -> debit  = PriceSnapshot
  Delivered, credit-funded     -> line with zero debit, "(package credit)"
  Payment (not deleted)        -> credit = Amount
  Scheduled / uncharged cancel -> not on the statement

  running += debit - credit, in ascending date order.

INVARIANT:
  ClosingBalance == ComputeBalance(...).CurrentBalance, because debits come
  from IsBillable exactly like TotalDebt does. Reordering the input never
  changes the closing balance, only the intermediate running values.

SEE ALSO:
  - balance.go: the same totals without the timeline
*/
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type LineKind string

const (
	LineLesson  LineKind = "lesson"
	LineCredit  LineKind = "credit_lesson"
	LinePayment LineKind = "payment"
)

type StatementLine struct {
	Date           time.Time
	Kind           LineKind
	RefID          string
	Description    string
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	RunningBalance decimal.Decimal
}

type StatementTotals struct {
	Debit   decimal.Decimal
	Credit  decimal.Decimal
	Balance decimal.Decimal
}

// Statement is the full projection for one student.
type Statement struct {
	Student        Student
	Teacher        *TeacherSettings // nil when the teacher has no settings
	GeneratedAt    time.Time
	Lines          []StatementLine
	Totals         StatementTotals
	ClosingBalance decimal.Decimal
	Status         BalanceStatus
}

func lessonDescription(l Lesson) string {
	topic := l.Topic
	if topic == "" {
		topic = "No topic"
	}
	return fmt.Sprintf("Lesson: %s (%d min)", topic, l.DurationMinutes)
}

func paymentDescription(p Payment) string {
	if p.Description == "" {
		return "Payment received"
	}
	return "Payment received - " + p.Description
}

// BuildStatement projects lessons and payments of one student into lines.
func BuildStatement(student Student, lessons []Lesson, payments []Payment) Statement {
	lines := make([]StatementLine, 0, len(lessons)+len(payments))

	for _, l := range lessons {
		if l.StudentID != student.ID || !IsDelivered(l) {
			continue
		}
		line := StatementLine{
			Date:        l.StartTime,
			Kind:        LineLesson,
			RefID:       string(l.ID),
			Description: lessonDescription(l),
			Debit:       decimal.Zero,
			Credit:      decimal.Zero,
		}
		if IsBillable(l) {
			line.Debit = l.PriceSnapshot
		} else {
			line.Kind = LineCredit
			line.Description += " (package credit)"
		}
		lines = append(lines, line)
	}

	for _, p := range payments {
		if p.StudentID != student.ID || p.IsDeleted {
			continue
		}
		lines = append(lines, StatementLine{
			Date:        p.PaidAt,
			Kind:        LinePayment,
			RefID:       string(p.ID),
			Description: paymentDescription(p),
			Debit:       decimal.Zero,
			Credit:      p.Amount,
		})
	}

	sortLines(lines)

	running := decimal.Zero
	totals := StatementTotals{Debit: decimal.Zero, Credit: decimal.Zero}
	for i := range lines {
		running = running.Add(lines[i].Debit).Sub(lines[i].Credit)
		lines[i].RunningBalance = running
		totals.Debit = totals.Debit.Add(lines[i].Debit)
		totals.Credit = totals.Credit.Add(lines[i].Credit)
	}
	totals.Balance = totals.Debit.Sub(totals.Credit)

	return Statement{
		Student:        student,
		Lines:          lines,
		Totals:         totals,
		ClosingBalance: running,
		Status:         StatusFor(running),
	}
}

// sortLines orders by date; same-instant lines put debits first, then by ref.
func sortLines(lines []StatementLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if (a.Kind == LinePayment) != (b.Kind == LinePayment) {
			return b.Kind == LinePayment
		}
		return a.RefID < b.RefID
	})
}

// =============================================================================
// STATEMENT SERVICE
// =============================================================================

type Statements struct {
	Store Store
	Clock Clock
}

func NewStatements(store Store, clock Clock) *Statements {
	return &Statements{Store: store, Clock: clock}
}

func (s *Statements) StudentStatement(ctx context.Context, teacher TeacherID, id StudentID) (Statement, error) {
	student, err := s.Store.GetStudent(ctx, teacher, id)
	if err != nil {
		return Statement{}, err
	}
	lessons, err := s.Store.ListLessonsByStudent(ctx, teacher, id)
	if err != nil {
		return Statement{}, err
	}
	payments, err := s.Store.ListPaymentsByStudent(ctx, teacher, id)
	if err != nil {
		return Statement{}, err
	}

	st := BuildStatement(*student, lessons, payments)
	st.GeneratedAt = s.Clock.Now()

	settings, err := s.Store.GetSettings(ctx, teacher)
	switch {
	case err == nil:
		st.Teacher = settings
	case !IsNotFound(err):
		return Statement{}, err
	}
	return st, nil
}
