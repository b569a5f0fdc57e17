/*
Package credits sells prepaid lesson packages.

PURPOSE:
  A package purchase is two facts recorded together: the student gains N
  lesson credits, and the money received is recorded as an ordinary
  payment. Both happen in one transaction or not at all.

  Credits are later spent one per booked lesson by the scheduler
  (schedule.CreateRequest.UseCredit). There is no standalone "consume".

BALANCE EFFECT:
  The package payment lowers the balance like any payment. Lessons booked
  with a credit are not billable, so the same money is never counted twice.

SEE ALSO:
  - schedule/scheduler.go: credit consumption and refunds
  - ledger/billing.go: PaidByCredit lessons are not debt
*/
package credits

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/lesson-ledger/events"
	"github.com/warp/lesson-ledger/ledger"
)

type Ledger struct {
	Store  ledger.TxStore
	Events events.Publisher
	Clock  ledger.Clock
	IDs    ledger.IDFunc
}

func NewLedger(store ledger.TxStore, pub events.Publisher) *Ledger {
	return &Ledger{Store: store, Events: pub}
}

type PackageRequest struct {
	StudentID    ledger.StudentID
	CreditAmount int
	TotalPrice   decimal.Decimal
	PackageName  string
	Method       ledger.PaymentMethod
}

type PackageResult struct {
	StudentID  ledger.StudentID
	NewCredits int
	Payment    ledger.Payment
}

func (r PackageRequest) validate() error {
	if r.StudentID == "" {
		return ledger.Invalid("student_id", "is required")
	}
	if r.CreditAmount <= 0 {
		return ledger.Invalid("credit_amount", "must be greater than zero")
	}
	if r.TotalPrice.IsNegative() {
		return ledger.Invalid("total_price", "must not be negative")
	}
	if r.Method != "" && !r.Method.Valid() {
		return ledger.Invalid("method", "must be cash or bank_transfer")
	}
	return nil
}

func (r PackageRequest) description() string {
	if name := strings.TrimSpace(r.PackageName); name != "" {
		return name
	}
	return fmt.Sprintf("%d lesson package", r.CreditAmount)
}

// AddPackage grants credits and records the package payment atomically.
func (c *Ledger) AddPackage(ctx context.Context, teacher ledger.TeacherID, req PackageRequest) (PackageResult, error) {
	if err := req.validate(); err != nil {
		return PackageResult{}, err
	}
	method := req.Method
	if method == "" {
		method = ledger.PaymentCash
	}

	var res PackageResult
	err := c.Store.WithTx(ctx, teacher, func(tx ledger.Store) error {
		if _, err := tx.GetStudent(ctx, teacher, req.StudentID); err != nil {
			return err
		}
		credits, err := tx.AdjustCredits(ctx, teacher, req.StudentID, req.CreditAmount)
		if err != nil {
			return err
		}

		now := c.Clock.Now()
		p := ledger.Payment{
			ID:          ledger.PaymentID(c.IDs.New()),
			StudentID:   req.StudentID,
			Amount:      req.TotalPrice,
			PaidAt:      now,
			Method:      method,
			Description: req.description(),
			CreatedAt:   now,
		}
		if err := tx.CreatePayment(ctx, teacher, p); err != nil {
			return fmt.Errorf("failed to record package payment: %w", err)
		}

		res = PackageResult{StudentID: req.StudentID, NewCredits: credits, Payment: p}
		return nil
	})
	if err != nil {
		return PackageResult{}, err
	}

	ledger.Publish(ctx, c.Events, events.Event{
		Type:      events.PackagePurchased,
		TeacherID: string(teacher),
		StudentID: string(res.StudentID),
		Payload: map[string]any{
			"payment_id":  string(res.Payment.ID),
			"credits":     req.CreditAmount,
			"new_credits": res.NewCredits,
			"total_price": res.Payment.Amount.String(),
		},
	})
	return res, nil
}
