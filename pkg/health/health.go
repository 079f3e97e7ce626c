package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"

	probeTimeout = 2 * time.Second
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
}

// Probe reports a dependency as reachable by returning nil.
type Probe func(ctx context.Context) error

type named struct {
	name  string
	probe Probe
}

type health struct {
	probes []named
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	h := &health{}
	if p.DB != nil {
		h.probes = append(h.probes, named{name: p.DB.Name(), probe: pingDB(p.DB)})
	}
	if p.Redis != nil {
		h.probes = append(h.probes, named{name: "redis", probe: func(ctx context.Context) error {
			return p.Redis.Ping(ctx).Err()
		}})
	}
	return h
}

func pingDB(db *gorm.DB) Probe {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{Status: statusHealthy, Message: "OK"})
}

// Readiness probes every dependency concurrently and answers 503 when any
// of them fails.
func (h *health) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	deps := make([]Dependency, len(h.probes))
	var wg sync.WaitGroup
	for i, p := range h.probes {
		wg.Add(1)
		go func(i int, p named) {
			defer wg.Done()
			deps[i] = Dependency{Name: p.name, Status: statusHealthy, Message: "OK"}
			if err := p.probe(ctx); err != nil {
				deps[i].Status = statusUnhealthy
				deps[i].Message = err.Error()
			}
		}(i, p)
	}
	wg.Wait()

	resp := &Health{Status: statusHealthy, Message: "OK", Deps: deps}
	for _, d := range deps {
		if d.Status != statusHealthy {
			resp.Status = statusUnhealthy
			resp.Message = "one or more dependencies are unavailable"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}
