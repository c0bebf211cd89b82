package remote

import (
	"context"
	"database/sql"

	"qistsync/internal/models"
	"qistsync/pkg/logger"
)

// The apply operations below are used only by the queue drain worker.
// The sync engine itself never writes to the remote store directly.

// UpsertInstallment writes the full installment and its payment schedule,
// replacing any existing payment rows, in one transaction.
func (g *Gateway) UpsertInstallment(ctx context.Context, inst models.Installment) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Op: "upsert", Err: err}
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO installments (id, user_id, creditor_name, item_description, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			creditor_name = EXCLUDED.creditor_name,
			item_description = EXCLUDED.item_description,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at`,
		inst.ID, inst.UserID, inst.CreditorName, inst.ItemDescription, inst.Notes,
		inst.CreatedAt, inst.UpdatedAt)
	if err != nil {
		logger.Error(ctx, "Remote upsert installment failed", "error", err, "id", inst.ID)
		return &Error{Op: "upsert", Err: err}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM installment_payments WHERE installment_id = $1`, inst.ID); err != nil {
		return &Error{Op: "upsert", Err: err}
	}
	for _, p := range inst.Payments {
		var paidDate sql.NullString
		if p.PaidDate != "" {
			paidDate = sql.NullString{String: p.PaidDate, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO installment_payments (id, installment_id, due_date, amount, is_paid, paid_date)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			p.ID, inst.ID, p.DueDate, p.Amount.String(), p.IsPaid, paidDate); err != nil {
			logger.Error(ctx, "Remote upsert payment failed", "error", err, "payment_id", p.ID)
			return &Error{Op: "upsert", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &Error{Op: "upsert", Err: err}
	}
	return nil
}

// DeleteInstallment removes the installment; payments cascade.
func (g *Gateway) DeleteInstallment(ctx context.Context, id, userID string) error {
	_, err := g.db.ExecContext(ctx,
		`DELETE FROM installments WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		logger.Error(ctx, "Remote delete failed", "error", err, "id", id)
		return &Error{Op: "delete", Err: err}
	}
	return nil
}

// SetPaymentPaid applies a toggle_payment operation: paid state plus the
// paired paid_date, and refreshes the parent's updated_at.
func (g *Gateway) SetPaymentPaid(ctx context.Context, installmentID, paymentID string, isPaid bool, paidDate string) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Op: "toggle", Err: err}
	}
	defer tx.Rollback()

	var pd sql.NullString
	if paidDate != "" {
		pd = sql.NullString{String: paidDate, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE installment_payments SET is_paid = $1, paid_date = $2
		WHERE id = $3 AND installment_id = $4`,
		isPaid, pd, paymentID, installmentID); err != nil {
		logger.Error(ctx, "Remote toggle failed", "error", err, "payment_id", paymentID)
		return &Error{Op: "toggle", Err: err}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE installments SET updated_at = NOW() WHERE id = $1`, installmentID); err != nil {
		return &Error{Op: "toggle", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &Error{Op: "toggle", Err: err}
	}
	return nil
}
