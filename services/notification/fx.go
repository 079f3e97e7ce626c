package notification

import (
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(
		fx.Annotate(NewTaskNotifier, fx.As(new(Notifier))),
		NewContactDirectory,
		func(d *ContactDirectory) Directory { return d },
	),
)

var HTTP = fx.Module("notification.http",
	fx.Invoke(RegisterRoutes),
)

var WorkerModule = fx.Module("notification.worker",
	fx.Provide(NewDeliverer, NewWorker),
	fx.Invoke(registerWorker),
)
