package messaging

import (
	"net/http"

	"medvive-settlement/pkg/errutil"
	"medvive-settlement/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type handler struct {
	svc *Service
}

type participantRequest struct {
	UserID     string `json:"user_id"`
	ReceiverID string `json:"receiver_id"`
}

func RegisterRoutes(r *gin.Engine, svc *Service) {
	h := &handler{svc: svc}

	g := r.Group("/v1/chats")
	g.POST("", h.open)
	g.POST("/:chatId/messages", h.message)
	g.POST("/:chatId/seen", h.seen)
	g.GET("/:chatId/unseen/:userId", h.unseen)
}

// participant prefers the body user id and falls back to the request actor.
func participant(c *gin.Context) (participantRequest, error) {
	var req participantRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			return req, errutil.ValidationFailed("invalid request body", err)
		}
	}
	if req.UserID != "" {
		return req, nil
	}
	if actor := middleware.GetActor(c.Request.Context()); actor != middleware.DefaultActor {
		req.UserID = actor
		return req, nil
	}
	return req, errutil.ValidationFailed("user_id is required", nil)
}

func (h *handler) open(c *gin.Context) {
	var req OpenChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid chat request", err))
		return
	}
	chat, err := h.svc.OpenChat(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": chat})
}

func (h *handler) message(c *gin.Context) {
	req, err := participant(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	receipt, err := h.svc.RecordMessage(c.Request.Context(), c.Param("chatId"), req.UserID, req.ReceiverID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": receipt})
}

func (h *handler) seen(c *gin.Context) {
	req, err := participant(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.svc.MarkSeen(c.Request.Context(), c.Param("chatId"), req.UserID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) unseen(c *gin.Context) {
	receipt, err := h.svc.Unseen(c.Request.Context(), c.Param("chatId"), c.Param("userId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": receipt})
}
