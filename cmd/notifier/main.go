package main

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"medvive-settlement/pkg/config"
	"medvive-settlement/pkg/hashistack/secretmanager"
	"medvive-settlement/pkg/logger"
	"medvive-settlement/pkg/otelcol"
	"medvive-settlement/pkg/task"
	"medvive-settlement/services/notification"
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
		otelcol.Module,
		// outbound relay calls are traced through the global provider
		fx.Invoke(func(trace.TracerProvider) {}),
		task.Server,
		notification.WorkerModule,
		fxLogger,
	)

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
