package wallet

import (
	"go.uber.org/fx"
)

var Module = fx.Module("wallet.service",
	fx.Provide(NewService),
)

var HTTP = fx.Module("wallet.http",
	fx.Invoke(RegisterRoutes),
)
