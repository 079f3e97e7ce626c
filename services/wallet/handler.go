package wallet

import (
	"net/http"

	"medvive-settlement/pkg/db/pagination"
	"medvive-settlement/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type handler struct {
	svc *Service
}

func RegisterRoutes(r *gin.Engine, svc *Service) {
	h := &handler{svc: svc}

	g := r.Group("/v1/wallets/:providerId")
	g.POST("/activate", h.activate)
	g.GET("", h.get)
	g.GET("/journal", h.journal)
	g.GET("/reconcile", h.reconcile)
}

func (h *handler) activate(c *gin.Context) {
	account, err := h.svc.Activate(c.Request.Context(), c.Param("providerId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": account})
}

func (h *handler) get(c *gin.Context) {
	account, err := h.svc.GetAccount(c.Request.Context(), c.Param("providerId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": account})
}

func (h *handler) journal(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid pagination", err))
		return
	}

	entries, info, err := h.svc.ListJournal(c.Request.Context(), c.Param("providerId"), page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries, "page_info": info})
}

func (h *handler) reconcile(c *gin.Context) {
	rec, err := h.svc.Reconcile(c.Request.Context(), c.Param("providerId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.svc.VerifyChain(c.Request.Context(), c.Param("providerId")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rec})
}
