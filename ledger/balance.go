/*
balance.go - Student balance calculation

PURPOSE:
  Answers "how much does this student owe?" by replaying the student's
  lessons and payments. There is no stored balance field that could drift.

FORMULA:
  TotalDebt      = sum(PriceSnapshot) over billable lessons (see IsBillable)
  TotalPayment   = sum(Amount) over non-deleted payments, package purchases included
  CurrentBalance = TotalDebt - TotalPayment

  > 0  the student owes
  < 0  the student overpaid or prepaid a package
  = 0  settled

EXAMPLE:
  Rate 500, three completed lessons, one 600 payment:
    TotalDebt 1500, TotalPayment 600, CurrentBalance 900 -> "Student owes"

SEE ALSO:
  - billing.go: IsBillable
  - statement.go: same numbers as a chronological ledger
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

type BalanceStatus string

const (
	BalanceOwes     BalanceStatus = "owes"
	BalanceInCredit BalanceStatus = "in_credit"
	BalanceSettled  BalanceStatus = "settled"
)

var balanceMessages = map[BalanceStatus]string{
	BalanceOwes:     "Student owes",
	BalanceInCredit: "Student overpaid/has credit",
	BalanceSettled:  "Settled",
}

func (s BalanceStatus) Message() string { return balanceMessages[s] }

func StatusFor(balance decimal.Decimal) BalanceStatus {
	switch balance.Sign() {
	case 1:
		return BalanceOwes
	case -1:
		return BalanceInCredit
	}
	return BalanceSettled
}

// Balance is the computed financial position of one student.
type Balance struct {
	StudentID      StudentID
	FullName       string
	Credits        int
	TotalDebt      decimal.Decimal
	TotalPayment   decimal.Decimal
	CurrentBalance decimal.Decimal
	Status         BalanceStatus
	StatusMessage  string
}

// ComputeBalance folds lessons and payments into a Balance. Records that
// belong to other students or are soft-deleted are ignored.
func ComputeBalance(student Student, lessons []Lesson, payments []Payment) Balance {
	debt := decimal.Zero
	for _, l := range lessons {
		if l.StudentID != student.ID || !IsBillable(l) {
			continue
		}
		debt = debt.Add(l.PriceSnapshot)
	}

	paid := decimal.Zero
	for _, p := range payments {
		if p.StudentID != student.ID || p.IsDeleted {
			continue
		}
		paid = paid.Add(p.Amount)
	}

	current := debt.Sub(paid)
	status := StatusFor(current)
	return Balance{
		StudentID:      student.ID,
		FullName:       student.FullName,
		Credits:        student.Credits,
		TotalDebt:      debt,
		TotalPayment:   paid,
		CurrentBalance: current,
		Status:         status,
		StatusMessage:  status.Message(),
	}
}

// =============================================================================
// BALANCE SERVICE
// =============================================================================

// Balances reads from a Store and never writes.
type Balances struct {
	Store Store
}

func NewBalances(store Store) *Balances {
	return &Balances{Store: store}
}

// StudentBalance returns a NotFoundError if the student is missing,
// soft-deleted or owned by another teacher.
func (b *Balances) StudentBalance(ctx context.Context, teacher TeacherID, id StudentID) (Balance, error) {
	student, err := b.Store.GetStudent(ctx, teacher, id)
	if err != nil {
		return Balance{}, err
	}
	lessons, err := b.Store.ListLessonsByStudent(ctx, teacher, id)
	if err != nil {
		return Balance{}, err
	}
	payments, err := b.Store.ListPaymentsByStudent(ctx, teacher, id)
	if err != nil {
		return Balance{}, err
	}
	return ComputeBalance(*student, lessons, payments), nil
}
