package settlement

import (
	"medvive-settlement/services/approval"
	"medvive-settlement/services/wallet"

	"go.uber.org/fx"
)

var Module = fx.Module("settlement",
	fx.Provide(
		NewCharges,
		NewService,
		func(w *wallet.Service) WalletLedger { return w },
		func(i *approval.Issuer) TokenIssuer { return i },
		func(s *Service) approval.PayoutSettler { return s },
	),
)

var HTTP = fx.Module("settlement.http",
	fx.Invoke(RegisterRoutes),
)
