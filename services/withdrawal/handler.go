package withdrawal

import (
	"net/http"

	"medvive-settlement/pkg/errutil"
	"medvive-settlement/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type handler struct {
	svc *Service
}

type initiateRequest struct {
	ProviderID    string `json:"provider_id" binding:"required"`
	Amount        int64  `json:"amount" binding:"required"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

type decisionRequest struct {
	Note   string `json:"note"`
	Reason string `json:"reason"`
}

func RegisterRoutes(r *gin.Engine, svc *Service) {
	h := &handler{svc: svc}

	g := r.Group("/v1/withdrawals")
	g.POST("", h.initiate)
	g.GET("/:id", h.get)
	g.POST("/:id/processing", h.processing)
	g.POST("/:id/approve", h.approve)
	g.POST("/:id/reject", h.reject)
}

func (h *handler) initiate(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid withdrawal request", err))
		return
	}

	w, err := h.svc.Initiate(c.Request.Context(), InitiateRequest{
		ProviderID: req.ProviderID,
		Amount:     req.Amount,
		Bank: BankDetails{
			BankName:      req.BankName,
			AccountNumber: req.AccountNumber,
			AccountName:   req.AccountName,
		},
	})
	if err != nil && !errutil.Is(err, errutil.StatusPartialFailure) {
		_ = c.Error(err)
		return
	}
	resp := gin.H{"data": w}
	if err != nil {
		resp["warnings"] = []string{err.Error()}
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *handler) get(c *gin.Context) {
	w, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": w})
}

func (h *handler) processing(c *gin.Context) {
	w, err := h.svc.MarkProcessing(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": w})
}

func (h *handler) bindDecision(c *gin.Context) (decisionRequest, bool) {
	var req decisionRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid decision", err))
		return req, false
	}
	return req, true
}

func (h *handler) approve(c *gin.Context) {
	req, ok := h.bindDecision(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	w, err := h.svc.Approve(ctx, c.Param("id"), middleware.GetActor(ctx), req.Note)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": w})
}

func (h *handler) reject(c *gin.Context) {
	req, ok := h.bindDecision(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	w, err := h.svc.Reject(ctx, c.Param("id"), middleware.GetActor(ctx), req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": w})
}
