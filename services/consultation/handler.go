package consultation

import (
	"net/http"
	"strconv"

	"medvive-settlement/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type handler struct {
	svc *Service
}

func RegisterRoutes(r *gin.Engine, svc *Service) {
	h := &handler{svc: svc}

	g := r.Group("/v1/transactions")
	g.POST("", h.initialize)
	g.GET("/:id", h.get)
	g.POST("/:id/confirm", h.confirm)
	g.POST("/:id/reminder", h.reminder)
}

func (h *handler) initialize(c *gin.Context) {
	var req InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid transaction request", err))
		return
	}

	txn, err := h.svc.InitializeTransaction(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": txn})
}

func (h *handler) get(c *gin.Context) {
	txn, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": txn})
}

func (h *handler) confirm(c *gin.Context) {
	result, err := h.svc.ConfirmPaymentStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (h *handler) reminder(c *gin.Context) {
	force, _ := strconv.ParseBool(c.Query("force"))
	sent, err := h.svc.SendPendingReminder(c.Request.Context(), c.Param("id"), force)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"sent": sent}})
}
