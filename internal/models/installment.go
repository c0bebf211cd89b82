package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Payment is one scheduled due amount within an installment. Due and
// paid dates are date-only strings (time.DateOnly layout). PaidDate is
// set iff IsPaid is true.
type Payment struct {
	ID            string          `json:"id"`
	InstallmentID string          `json:"installment_id"`
	DueDate       string          `json:"due_date"`
	Amount        decimal.Decimal `json:"amount"`
	IsPaid        bool            `json:"is_paid"`
	PaidDate      string          `json:"paid_date,omitempty"`
}

// Installment is a tracked financial obligation and its payment schedule.
type Installment struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	CreditorName    string    `json:"creditor_name"`
	ItemDescription string    `json:"item_description"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Payments        []Payment `json:"payments"`
}

// LastPaidPayment returns the index of the paid payment with the latest
// due date, or -1 if no payment is paid. Ties keep the earliest position
// in the existing payment order, so the result is deterministic.
func (inst *Installment) LastPaidPayment() int {
	type cand struct {
		idx     int
		dueDate string
	}
	var paid []cand
	for i, p := range inst.Payments {
		if p.IsPaid {
			paid = append(paid, cand{idx: i, dueDate: p.DueDate})
		}
	}
	if len(paid) == 0 {
		return -1
	}
	sort.SliceStable(paid, func(a, b int) bool {
		return paid[a].dueDate > paid[b].dueDate
	})
	return paid[0].idx
}
