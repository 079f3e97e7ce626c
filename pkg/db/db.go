package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medvive-settlement/pkg/config"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/prometheus"
	"k8s.io/apimachinery/pkg/util/wait"
)

var Module = fx.Module("database",
	fx.Provide(
		Dialect,
		New,
	),
	fx.Invoke(
		RegisterConnectionPool,
		registerInstrumentation,
	),
)

var connectBackoff = wait.Backoff{
	Duration: time.Second,
	Factor:   2,
	Jitter:   0.1,
	Steps:    5,
	Cap:      15 * time.Second,
}

// New opens the database, retrying while it comes up.
func New(cfg *config.Config, dialector gorm.Dialector) (*gorm.DB, error) {
	level := logger.Info
	if cfg.AppEnv == "production" {
		level = logger.Warn
	}
	gormLogger := NewGormLogger(level, cfg.Database.SlowQuery, cfg.AppEnv != "production")

	var db *gorm.DB
	attempt := 0
	err := wait.ExponentialBackoffWithContext(context.Background(), connectBackoff, func(ctx context.Context) (bool, error) {
		attempt++
		var openErr error
		db, openErr = gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
		if openErr != nil {
			zap.L().Warn("[DB] database not ready", zap.Int("attempt", attempt), zap.Error(openErr))
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		zap.L().Error("[DB] failed to connect to database", zap.Int("attempts", attempt), zap.Error(err))
		return nil, fmt.Errorf("connect database: %w", err)
	}

	zap.L().Info("[DB] database connected", zap.String("type", cfg.Database.Type))
	return db, nil
}

type connectionPoolParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	DB        *gorm.DB
	Config    *config.Config
}

func RegisterConnectionPool(p connectionPoolParams) error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB from gorm: %w", err)
	}

	cp := p.Config.Database.ConnectionPool
	if cp.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cp.MaxIdleConn)
	}
	if cp.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cp.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(cp.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cp.ConnMaxIdleTime)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Info("[DB] closing connection pool")
			return sqlDB.Close()
		},
	})
	return nil
}

func registerInstrumentation(cfg *config.Config, db *gorm.DB) error {
	var errs []error
	if cfg.Database.Telemetry {
		if err := db.Use(otelgorm.NewPlugin()); err != nil {
			errs = append(errs, fmt.Errorf("db telemetry: %w", err))
		}
	}
	if cfg.Database.Metrics {
		if err := db.Use(prometheus.New(prometheus.Config{
			DBName:          dbName(db.Dialector),
			RefreshInterval: 15,
			StartServer:     true,
			HTTPServerPort:  9100,
		})); err != nil {
			errs = append(errs, fmt.Errorf("db metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

func dbName(dialector gorm.Dialector) string {
	var dsn string
	switch d := dialector.(type) {
	case *postgres.Dialector:
		dsn = d.Config.DSN
	case *mysql.Dialector:
		dsn = d.Config.DSN
		if i := strings.LastIndex(dsn, "/"); i >= 0 {
			name := dsn[i+1:]
			if j := strings.Index(name, "?"); j >= 0 {
				name = name[:j]
			}
			return name
		}
	}
	for _, part := range strings.Fields(dsn) {
		if name, ok := strings.CutPrefix(part, "dbname="); ok {
			return name
		}
	}
	return "unknown"
}
