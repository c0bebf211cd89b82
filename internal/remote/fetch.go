package remote

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"qistsync/internal/models"
	"qistsync/pkg/logger"
)

// FetchAll returns every installment owned by the user, newest first,
// with payment rows flattened onto each installment ordered by due date.
// One query; a failure never partially applies.
func (g *Gateway) FetchAll(ctx context.Context, userID string) ([]models.Installment, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT i.id, i.user_id, i.creditor_name, i.item_description, i.notes,
		       i.created_at, i.updated_at,
		       p.id, p.due_date, p.amount, p.is_paid, p.paid_date
		FROM installments i
		LEFT JOIN installment_payments p ON p.installment_id = i.id
		WHERE i.user_id = $1
		ORDER BY i.created_at DESC, i.id, p.due_date, p.id`, userID)
	if err != nil {
		logger.Error(ctx, "Remote fetch failed", "error", err, "user_id", userID)
		return nil, &Error{Op: "fetch", Err: err}
	}
	defer rows.Close()

	var (
		out  []models.Installment
		last *models.Installment
	)
	for rows.Next() {
		var (
			inst     models.Installment
			payID    sql.NullString
			dueDate  sql.NullString
			amount   sql.NullString
			isPaid   sql.NullBool
			paidDate sql.NullString
		)
		if err := rows.Scan(&inst.ID, &inst.UserID, &inst.CreditorName, &inst.ItemDescription,
			&inst.Notes, &inst.CreatedAt, &inst.UpdatedAt,
			&payID, &dueDate, &amount, &isPaid, &paidDate); err != nil {
			logger.Error(ctx, "Remote scan failed", "error", err)
			return nil, &Error{Op: "fetch", Err: err}
		}
		if last == nil || last.ID != inst.ID {
			out = append(out, inst)
			last = &out[len(out)-1]
		}
		if payID.Valid {
			amt := decimal.Zero
			if amount.Valid {
				if d, err := decimal.NewFromString(amount.String); err == nil {
					amt = d
				}
			}
			last.Payments = append(last.Payments, models.Payment{
				ID:            payID.String,
				InstallmentID: last.ID,
				DueDate:       dueDate.String,
				Amount:        amt,
				IsPaid:        isPaid.Bool,
				PaidDate:      paidDate.String,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "fetch", Err: err}
	}
	return out, nil
}
