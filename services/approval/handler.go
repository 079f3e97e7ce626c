package approval

import (
	"net/http"

	"medvive-settlement/pkg/errutil"
	"medvive-settlement/pkg/middleware"
	"medvive-settlement/pkg/util"

	"github.com/gin-gonic/gin"
)

type handler struct {
	svc    *Service
	signer *util.ActionSigner
}

type decisionRequest struct {
	Token   string `json:"token" binding:"required"`
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason"`
}

func RegisterRoutes(r *gin.Engine, svc *Service, signer *util.ActionSigner) {
	h := &handler{svc: svc, signer: signer}
	r.POST("/v1/decisions", h.decide)
	r.GET("/v1/approvals/:id", h.get)
}

func (h *handler) decide(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid decision request", err))
		return
	}

	claims, err := h.signer.Verify(req.Token)
	if err != nil {
		_ = c.Error(errutil.Unauthorized("invalid decision token", err))
		return
	}

	actor := req.ActorID
	if actor == "" {
		actor = middleware.GetActor(c.Request.Context())
	}

	outcome, err := h.svc.ResolveDecision(c.Request.Context(), claims.TokenID, Action(claims.Action), actor, req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": outcome})
}

func (h *handler) get(c *gin.Context) {
	token, err := h.svc.GetToken(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": token})
}
