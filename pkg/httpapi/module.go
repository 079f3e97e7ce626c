package httpapi

import (
	"net/http"

	"medvive-settlement/pkg/config"
	"medvive-settlement/pkg/health"
	"medvive-settlement/pkg/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewEngine),
	fx.Invoke(registerHealthEndpoint),
)

func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.Logger(),
		corsMiddleware(cfg),
		middleware.Actor(),
		middleware.Error(),
	)
	return r
}

func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	if cfg.Consultation.FrontendBaseURL == "" {
		return cors.Default()
	}

	cc := cors.DefaultConfig()
	cc.AllowOrigins = []string{cfg.Consultation.FrontendBaseURL}
	cc.AllowHeaders = append(cc.AllowHeaders, "Authorization", middleware.ActorHeader)
	cc.AllowCredentials = true
	return cors.New(cc)
}

func registerHealthEndpoint(r *gin.Engine, h health.HealthService) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/liveness", h.Liveness)
	r.GET("/health/readiness", h.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
