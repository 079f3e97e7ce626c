package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ActorHeader  = "X-Actor-ID"
	DefaultActor = "system"
)

type actorKey struct{}

var ActorContextKey = actorKey{}

// Actor stores the caller identity from the X-Actor-ID header on the request context.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(ActorHeader))
		if actor != "" {
			c.Request = c.Request.WithContext(WithActor(c.Request.Context(), actor))
		}
		c.Next()
	}
}

func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ActorContextKey, actor)
}

// GetActor returns the caller identity, DefaultActor when none was supplied.
func GetActor(ctx context.Context) string {
	actor, ok := ctx.Value(ActorContextKey).(string)
	if !ok || actor == "" {
		return DefaultActor
	}
	return actor
}
