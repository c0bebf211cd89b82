package models

import (
	"encoding/json"
	"time"
)

// Operation types consumed by the outbound queue.
const (
	OpCreate        = "create"
	OpUpdate        = "update"
	OpDelete        = "delete"
	OpTogglePayment = "toggle_payment"
)

// Entity types carried by an operation.
const (
	EntityInstallment = "installment"
	EntityPayment     = "payment"
)

// Operation is one pending mutation awaiting remote application.
// Data is a payload specific to Type (see the payload structs below).
type Operation struct {
	Type        string          `json:"type"`
	EntityType  string          `json:"entityType"`
	UserID      string          `json:"user_id"`
	Data        json.RawMessage `json:"data"`
	RequestedAt time.Time       `json:"requested_at"`
}

// DeletePayload is the data of a delete operation.
type DeletePayload struct {
	ID string `json:"id"`
}

// TogglePayload is the data of a toggle_payment operation. PaidDate is
// omitted when the payment is unpaid.
type TogglePayload struct {
	InstallmentID string `json:"installmentId"`
	PaymentID     string `json:"paymentId"`
	IsPaid        bool   `json:"isPaid"`
	PaidDate      string `json:"paidDate,omitempty"`
}

// NewInstallmentOp builds a create or update operation carrying the full
// installment. The owner id is stamped both on the operation and inside
// the payload.
func NewInstallmentOp(opType string, inst Installment, userID string) (Operation, error) {
	inst.UserID = userID
	data, err := json.Marshal(inst)
	if err != nil {
		return Operation{}, err
	}
	return Operation{
		Type:        opType,
		EntityType:  EntityInstallment,
		UserID:      userID,
		Data:        data,
		RequestedAt: time.Now(),
	}, nil
}

// NewDeleteOp builds a delete operation carrying only the installment id.
func NewDeleteOp(installmentID, userID string) (Operation, error) {
	data, err := json.Marshal(DeletePayload{ID: installmentID})
	if err != nil {
		return Operation{}, err
	}
	return Operation{
		Type:        OpDelete,
		EntityType:  EntityInstallment,
		UserID:      userID,
		Data:        data,
		RequestedAt: time.Now(),
	}, nil
}

// NewToggleOp builds a toggle_payment operation reflecting the payment's
// resulting paid state.
func NewToggleOp(installmentID, paymentID string, isPaid bool, paidDate, userID string) (Operation, error) {
	data, err := json.Marshal(TogglePayload{
		InstallmentID: installmentID,
		PaymentID:     paymentID,
		IsPaid:        isPaid,
		PaidDate:      paidDate,
	})
	if err != nil {
		return Operation{}, err
	}
	return Operation{
		Type:        OpTogglePayment,
		EntityType:  EntityPayment,
		UserID:      userID,
		Data:        data,
		RequestedAt: time.Now(),
	}, nil
}
