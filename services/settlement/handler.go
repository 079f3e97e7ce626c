package settlement

import (
	"net/http"

	"medvive-settlement/pkg/errutil"
	"medvive-settlement/pkg/middleware"
	"medvive-settlement/services/approval"

	"github.com/gin-gonic/gin"
)

type handler struct {
	svc *Service
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type providerFeeRequest struct {
	ConsultationFee int64  `json:"consultation_fee" binding:"required"`
	Currency        string `json:"currency"`
}

func RegisterRoutes(r *gin.Engine, svc *Service) {
	h := &handler{svc: svc}

	g := r.Group("/v1/payouts")
	g.POST("", h.initialize)
	g.GET("/:id", h.get)
	g.POST("/:id/approve", h.approve)
	g.POST("/:id/reject", h.reject)

	r.PUT("/v1/providers/:providerId/fee", h.setFee)
}

func (h *handler) initialize(c *gin.Context) {
	var req PendingPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid payout request", err))
		return
	}
	payout, err := h.svc.InitializePendingPayout(c.Request.Context(), req)
	if err != nil && !errutil.Is(err, errutil.StatusPartialFailure) {
		_ = c.Error(err)
		return
	}
	resp := gin.H{"data": payout}
	if err != nil {
		resp["warnings"] = []string{err.Error()}
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *handler) get(c *gin.Context) {
	payout, err := h.svc.GetPayout(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payout})
}

func (h *handler) approve(c *gin.Context) {
	ctx := c.Request.Context()
	out, err := h.svc.ApprovePayout(ctx, approval.PayoutPayload{PayoutID: c.Param("id")}, middleware.GetActor(ctx))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *handler) reject(c *gin.Context) {
	var req rejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errutil.ValidationFailed("invalid reject request", err))
			return
		}
	}

	ctx := c.Request.Context()
	out, err := h.svc.RejectPayout(ctx, approval.PayoutPayload{PayoutID: c.Param("id")}, middleware.GetActor(ctx), req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *handler) setFee(c *gin.Context) {
	var req providerFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid provider fee", err))
		return
	}
	fee, err := h.svc.SetProviderFee(c.Request.Context(), c.Param("providerId"), req.ConsultationFee, req.Currency)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": fee})
}
