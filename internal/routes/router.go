package routes

import (
	"github.com/gin-gonic/gin"

	"qistsync/internal/controller"
	"qistsync/internal/middleware"
)

func Router(ct *controller.Controller) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())

	// Health for load balancers and K8s probes
	router.GET("/health", ct.Health)
	router.GET("/ready", ct.Ready)

	// Everything else is per-user, so JWT required
	api := router.Group("")
	api.Use(middleware.AuthMiddleware())
	{
		api.GET("/installments", ct.GetInstallments)
		api.POST("/installments", ct.CreateInstallment)
		api.PUT("/installments/:id", ct.UpdateInstallment)
		api.DELETE("/installments/:id", ct.DeleteInstallment)
		api.POST("/installments/:id/payments/:paymentId/toggle", ct.TogglePayment)
		api.POST("/installments/:id/undo", ct.UndoLastPayment)
		api.GET("/sync/pending", ct.PendingOperations)
		api.GET("/events", ct.Events)
	}

	return router
}
