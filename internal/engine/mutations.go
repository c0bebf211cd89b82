package engine

import (
	"context"
	"time"

	"qistsync/internal/models"
	"qistsync/pkg/logger"
)

// SaveInstallment creates or updates an installment locally and enqueues
// the matching outbound operation. The local write completes before this
// returns; remote application is the queue's business.
func (e *Engine) SaveInstallment(ctx context.Context, inst models.Installment) {
	userID, err := e.sessions.CurrentUser(ctx)
	if err != nil {
		logger.Error(ctx, "Cannot save: no authenticated user")
		return
	}
	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	now := e.now()
	inst.UserID = userID
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now
	for i := range inst.Payments {
		p := &inst.Payments[i]
		switch {
		case !p.IsPaid:
			p.PaidDate = ""
		case p.PaidDate == "":
			p.PaidDate = now.Format(time.DateOnly)
		}
	}

	snapshot := e.store.Read(ctx, userID)
	isUpdate := false
	for i := range snapshot {
		if snapshot[i].ID == inst.ID {
			snapshot[i] = inst
			isUpdate = true
			break
		}
	}
	if !isUpdate {
		snapshot = append(snapshot, inst)
	}

	e.store.Write(ctx, userID, snapshot)
	e.cache.Invalidate(ctx, userID)
	logger.Info(ctx, "Installment saved locally", "id", inst.ID, "update", isUpdate)

	opType := models.OpCreate
	if isUpdate {
		opType = models.OpUpdate
	}
	op, err := models.NewInstallmentOp(opType, inst, userID)
	e.enqueue(ctx, op, err)
}

// DeleteInstallment removes the installment locally and enqueues a
// delete operation carrying only the id.
func (e *Engine) DeleteInstallment(ctx context.Context, installmentID string) {
	userID, err := e.sessions.CurrentUser(ctx)
	if err != nil {
		logger.Error(ctx, "Cannot delete: no authenticated user")
		return
	}
	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	snapshot := e.store.Read(ctx, userID)
	filtered := snapshot[:0:0]
	for _, inst := range snapshot {
		if inst.ID != installmentID {
			filtered = append(filtered, inst)
		}
	}

	e.store.Write(ctx, userID, filtered)
	e.cache.Invalidate(ctx, userID)
	logger.Info(ctx, "Installment deleted locally", "id", installmentID)

	op, err := models.NewDeleteOp(installmentID, userID)
	e.enqueue(ctx, op, err)
}

// TogglePayment flips a payment's paid state. Paid gains today's date,
// unpaid loses it. Missing installment or payment is a logged no-op and
// enqueues nothing.
func (e *Engine) TogglePayment(ctx context.Context, installmentID, paymentID string) {
	userID, err := e.sessions.CurrentUser(ctx)
	if err != nil {
		logger.Error(ctx, "Cannot toggle: no authenticated user")
		return
	}
	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	snapshot := e.store.Read(ctx, userID)
	inst := findInstallment(snapshot, installmentID)
	if inst == nil {
		logger.Error(ctx, "Installment not found", "id", installmentID)
		return
	}
	var payment *models.Payment
	for i := range inst.Payments {
		if inst.Payments[i].ID == paymentID {
			payment = &inst.Payments[i]
			break
		}
	}
	if payment == nil {
		logger.Error(ctx, "Payment not found", "id", paymentID, "installment_id", installmentID)
		return
	}

	now := e.now()
	payment.IsPaid = !payment.IsPaid
	if payment.IsPaid {
		payment.PaidDate = now.Format(time.DateOnly)
	} else {
		payment.PaidDate = ""
	}
	inst.UpdatedAt = now

	e.store.Write(ctx, userID, snapshot)
	e.cache.Invalidate(ctx, userID)
	logger.Info(ctx, "Payment toggled locally", "payment_id", paymentID, "is_paid", payment.IsPaid)

	op, err := models.NewToggleOp(installmentID, paymentID, payment.IsPaid, payment.PaidDate, userID)
	e.enqueue(ctx, op, err)
}

// UndoLastPayment marks the most recently due paid payment as unpaid.
// There is no undo history: "last" means latest due date among payments
// currently paid. No paid payment is a logged no-op.
func (e *Engine) UndoLastPayment(ctx context.Context, installmentID string) {
	userID, err := e.sessions.CurrentUser(ctx)
	if err != nil {
		logger.Error(ctx, "Cannot undo: no authenticated user")
		return
	}
	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	snapshot := e.store.Read(ctx, userID)
	inst := findInstallment(snapshot, installmentID)
	if inst == nil {
		logger.Error(ctx, "Installment not found", "id", installmentID)
		return
	}
	idx := inst.LastPaidPayment()
	if idx < 0 {
		logger.Error(ctx, "No paid payment to undo", "installment_id", installmentID)
		return
	}

	payment := &inst.Payments[idx]
	payment.IsPaid = false
	payment.PaidDate = ""
	inst.UpdatedAt = e.now()

	e.store.Write(ctx, userID, snapshot)
	e.cache.Invalidate(ctx, userID)
	logger.Info(ctx, "Payment undone locally", "payment_id", payment.ID, "due_date", payment.DueDate)

	op, err := models.NewToggleOp(installmentID, payment.ID, false, "", userID)
	e.enqueue(ctx, op, err)
}

func findInstallment(snapshot []models.Installment, id string) *models.Installment {
	for i := range snapshot {
		if snapshot[i].ID == id {
			return &snapshot[i]
		}
	}
	return nil
}
