package messaging

import (
	"medvive-settlement/services/scheduler"

	"go.uber.org/fx"
)

var Module = fx.Module("messaging",
	fx.Provide(
		NewService,
		func(s *scheduler.Scheduler) JobScheduler { return s },
	),
	fx.Invoke(registerJobs),
)

var HTTP = fx.Module("messaging.http",
	fx.Invoke(RegisterRoutes),
)
