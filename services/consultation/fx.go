package consultation

import (
	"medvive-settlement/services/scheduler"
	"medvive-settlement/services/settlement"

	"go.uber.org/fx"
)

var Module = fx.Module("consultation",
	fx.Provide(
		NewService,
		fx.Annotate(NewLookup, fx.As(new(settlement.TransactionLookup))),
		func(s *settlement.Service) PayoutInitializer { return s },
		func(s *scheduler.Scheduler) JobScheduler { return s },
	),
	fx.Invoke(registerJobs),
)

var HTTP = fx.Module("consultation.http",
	fx.Invoke(RegisterRoutes),
)
