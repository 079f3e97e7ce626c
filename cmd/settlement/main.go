package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"medvive-settlement/pkg/config"
	"medvive-settlement/pkg/db"
	"medvive-settlement/pkg/featureflags"
	"medvive-settlement/pkg/gen"
	"medvive-settlement/pkg/hashistack/secretmanager"
	"medvive-settlement/pkg/hashistack/servicediscover"
	"medvive-settlement/pkg/health"
	"medvive-settlement/pkg/httpapi"
	"medvive-settlement/pkg/logger"
	"medvive-settlement/pkg/otelcol"
	"medvive-settlement/pkg/profiling"
	"medvive-settlement/pkg/redis"
	"medvive-settlement/pkg/sequence"
	"medvive-settlement/pkg/server"
	"medvive-settlement/pkg/task"
	"medvive-settlement/services/approval"
	"medvive-settlement/services/consultation"
	"medvive-settlement/services/gateway"
	"medvive-settlement/services/messaging"
	"medvive-settlement/services/notification"
	"medvive-settlement/services/scheduler"
	"medvive-settlement/services/settlement"
	"medvive-settlement/services/wallet"
	"medvive-settlement/services/withdrawal"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
	}
	if secretmanager.Enabled() {
		opts = append(opts, secretmanager.Module)
	}

	opts = append(opts,
		db.Module,
		fx.Invoke(migrate),
		redis.Module,
		gen.Module,
		sequence.Module,
		task.Client,
		otelcol.Module,
		profiling.Module,
		featureflags.Module,
		health.Module,
		httpapi.Module,

		wallet.Module,
		wallet.HTTP,
		approval.Module,
		approval.HTTP,
		settlement.Module,
		settlement.HTTP,
		withdrawal.Module,
		withdrawal.HTTP,
		gateway.Module,
		notification.Module,
		notification.HTTP,
		consultation.Module,
		consultation.HTTP,
		messaging.Module,
		messaging.HTTP,

		// armed before the servers accept traffic
		scheduler.Module,
		server.ProvideHTTPServer,
		server.ProvideGRPCServer,
		servicediscover.Module,
		fxLogger,
	)

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
