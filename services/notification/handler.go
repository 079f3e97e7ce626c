package notification

import (
	"net/http"

	"medvive-settlement/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type contactRequest struct {
	Role         Role   `json:"role" binding:"required,oneof=patient provider"`
	FullName     string `json:"full_name"`
	Email        string `json:"email" binding:"omitempty,email"`
	ProfileImage string `json:"profile_image"`
}

// RegisterRoutes exposes the contact directory so the platform can keep
// recipient details in sync.
func RegisterRoutes(r *gin.Engine, dir *ContactDirectory) {
	g := r.Group("/v1/contacts")

	g.PUT("/:userId", func(c *gin.Context) {
		var req contactRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errutil.ValidationFailed("invalid contact", err))
			return
		}
		contact := &Contact{
			UserID:       c.Param("userId"),
			Role:         req.Role,
			FullName:     req.FullName,
			Email:        req.Email,
			ProfileImage: req.ProfileImage,
		}
		if err := dir.Upsert(c.Request.Context(), contact); err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": contact})
	})

	g.GET("/:userId", func(c *gin.Context) {
		contact, err := dir.Lookup(c.Request.Context(), c.Param("userId"))
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": contact})
	})
}
