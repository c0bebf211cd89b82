package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"qistsync/internal/engine"
	"qistsync/internal/models"
)

// Controller exposes the sync engine over HTTP. The engine absorbs its
// own failures, so mutation handlers answer 202: the local write is
// durable and the remote application is queued.
type Controller struct {
	engine *engine.Engine
	ready  func(ctx *gin.Context) bool
}

func New(e *engine.Engine, ready func(ctx *gin.Context) bool) *Controller {
	return &Controller{engine: e, ready: ready}
}

// GetInstallments returns the user's snapshot: cache or local data
// immediately, remote only on a cold first run.
func (ct *Controller) GetInstallments(c *gin.Context) {
	snapshot := ct.engine.LoadInstallments(c.Request.Context())
	if snapshot == nil {
		snapshot = []models.Installment{}
	}
	c.JSON(http.StatusOK, snapshot)
}

type installmentBody struct {
	ID              string           `json:"id"`
	CreditorName    string           `json:"creditor_name" binding:"required"`
	ItemDescription string           `json:"item_description"`
	Notes           string           `json:"notes"`
	CreatedAt       time.Time        `json:"created_at"`
	Payments        []models.Payment `json:"payments"`
}

func (b *installmentBody) toModel() models.Installment {
	inst := models.Installment{
		ID:              b.ID,
		CreditorName:    b.CreditorName,
		ItemDescription: b.ItemDescription,
		Notes:           b.Notes,
		CreatedAt:       b.CreatedAt,
		Payments:        b.Payments,
	}
	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	for i := range inst.Payments {
		if inst.Payments[i].ID == "" {
			inst.Payments[i].ID = uuid.New().String()
		}
		inst.Payments[i].InstallmentID = inst.ID
	}
	return inst
}

// CreateInstallment saves a new installment (id assigned here when the
// client sent none).
func (ct *Controller) CreateInstallment(c *gin.Context) {
	var body installmentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	inst := body.toModel()
	ct.engine.SaveInstallment(c.Request.Context(), inst)
	c.JSON(http.StatusAccepted, gin.H{"id": inst.ID, "message": "Installment saved locally, sync queued"})
}

// UpdateInstallment saves an installment under the path id.
func (ct *Controller) UpdateInstallment(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing installment id"})
		return
	}
	var body installmentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	body.ID = id
	inst := body.toModel()
	ct.engine.SaveInstallment(c.Request.Context(), inst)
	c.JSON(http.StatusAccepted, gin.H{"id": id, "message": "Installment saved locally, sync queued"})
}

// DeleteInstallment removes the installment locally and queues the
// remote delete.
func (ct *Controller) DeleteInstallment(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing installment id"})
		return
	}
	ct.engine.DeleteInstallment(c.Request.Context(), id)
	c.JSON(http.StatusAccepted, gin.H{"id": id, "message": "Installment deleted locally, sync queued"})
}

// TogglePayment flips one payment's paid state.
func (ct *Controller) TogglePayment(c *gin.Context) {
	id := c.Param("id")
	paymentID := c.Param("paymentId")
	if id == "" || paymentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing installment or payment id"})
		return
	}
	ct.engine.TogglePayment(c.Request.Context(), id, paymentID)
	c.JSON(http.StatusAccepted, gin.H{"id": id, "payment_id": paymentID, "message": "Payment toggle queued"})
}

// UndoLastPayment marks the most recently due paid payment unpaid.
func (ct *Controller) UndoLastPayment(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing installment id"})
		return
	}
	ct.engine.UndoLastPayment(c.Request.Context(), id)
	c.JSON(http.StatusAccepted, gin.H{"id": id, "message": "Undo queued"})
}

// PendingOperations reports the outbound queue depth.
func (ct *Controller) PendingOperations(c *gin.Context) {
	count, err := ct.engine.PendingOperations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Queue unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": count})
}

// Health returns 200 if the process is alive. Used by load balancers.
func (ct *Controller) Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// Ready returns 200 if the service's collaborators are reachable.
func (ct *Controller) Ready(c *gin.Context) {
	if ct.ready != nil && !ct.ready(c) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "dependencies unavailable"})
		return
	}
	c.String(http.StatusOK, "OK")
}
